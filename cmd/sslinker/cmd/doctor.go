package cmd

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jmcleod/sslinker/config"
	"github.com/jmcleod/sslinker/proxy"
	"github.com/jmcleod/sslinker/storage"
)

type doctorResult struct {
	Valid  bool          `json:"valid"`
	Checks []checkResult `json:"checks"`
}

type checkResult struct {
	Name   string `json:"name"`
	Status string `json:"status"` // "pass", "fail", "warn"
	Detail string `json:"detail,omitempty"`
}

func (r *doctorResult) pass(name, detail string) {
	r.Checks = append(r.Checks, checkResult{Name: name, Status: "pass", Detail: detail})
}

func (r *doctorResult) warn(name, detail string) {
	r.Checks = append(r.Checks, checkResult{Name: name, Status: "warn", Detail: detail})
}

func (r *doctorResult) fail(name, detail string) {
	r.Valid = false
	r.Checks = append(r.Checks, checkResult{Name: name, Status: "fail", Detail: detail})
}

// runDoctor inspects the environment cfg describes without changing it.
// Missing directories are warnings since the first write creates them.
func runDoctor(cfg *config.Config, lookPath func(string) (string, error)) doctorResult {
	result := doctorResult{Valid: true}
	store := storage.New(cfg.Paths.CertDir)

	// 1. Certificate authority.
	if !store.CAPresent() {
		result.warn("ca_present", "no CA yet; run `sslinker ca init` or start the server")
	} else {
		result.pass("ca_present", store.CAPaths().Cert)
		data, err := os.ReadFile(store.CAPaths().Cert)
		if err != nil {
			result.fail("ca_certificate", err.Error())
		} else if info, err := storage.ParseCertificate(data); err != nil {
			result.fail("ca_certificate", err.Error())
		} else if !info.IsCA {
			result.fail("ca_certificate", "certificate is not a CA")
		} else if info.Status != storage.StatusActive {
			result.fail("ca_certificate", fmt.Sprintf("CA is %s (not after %s)", info.Status, info.NotAfter.Format("2006-01-02")))
		} else {
			result.pass("ca_certificate", fmt.Sprintf("%s, valid until %s", info.Subject, info.NotAfter.Format("2006-01-02")))
		}
	}

	// 2. Directories.
	checkDir(&result, "cert_dir", cfg.Paths.CertDir)
	checkDir(&result, "proxy_conf_dir", cfg.Paths.ProxyConfDir)
	checkDir(&result, "data_dir", cfg.Paths.DataDir)

	// 3. External tools.
	if cfg.Tools.Crypto == config.CryptoNative {
		result.pass("crypto_tool", "in-process")
	} else if path, err := lookPath(cfg.Tools.OpenSSL); err != nil {
		result.fail("crypto_tool", fmt.Sprintf("%s not found: %v", cfg.Tools.OpenSSL, err))
	} else {
		result.pass("crypto_tool", path)
	}
	if path, err := lookPath(cfg.Tools.Nginx); err != nil {
		result.fail("proxy_tool", fmt.Sprintf("%s not found: %v", cfg.Tools.Nginx, err))
	} else {
		result.pass("proxy_tool", path)
	}

	// 4. Virtual host template.
	// The built-in template only resolves issued certificates under
	// DefaultTemplateCertDir; uploads and other roots need a custom one.
	if cfg.Paths.TemplateFile == "" {
		if filepath.Clean(cfg.Paths.CertDir) != proxy.DefaultTemplateCertDir {
			result.warn("template", fmt.Sprintf("built-in template reads certificates from %s but cert_dir is %s; set paths.template_file",
				proxy.DefaultTemplateCertDir, cfg.Paths.CertDir))
		} else {
			result.pass("template", "built-in")
		}
	} else if _, err := proxy.LoadEngine(cfg.Paths.TemplateFile); err != nil {
		result.fail("template", err.Error())
	} else {
		result.pass("template", cfg.Paths.TemplateFile)
	}

	// 5. Local address.
	addr, err := storage.NewAddressFile(cfg.Paths.LocalAddrFile).Read()
	switch {
	case err != nil:
		result.fail("local_addr", err.Error())
	case addr == "":
		result.warn("local_addr", "unset; hosts lines use "+proxy.DefaultLocalAddr)
	default:
		result.pass("local_addr", addr)
	}

	return result
}

func checkDir(result *doctorResult, name, dir string) {
	fi, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		result.warn(name, dir+" does not exist yet")
		return
	case err != nil:
		result.fail(name, err.Error())
		return
	case !fi.IsDir():
		result.fail(name, dir+" is not a directory")
		return
	}
	f, err := os.CreateTemp(dir, ".sslinker-doctor-*")
	if err != nil {
		result.fail(name, fmt.Sprintf("%s is not writable: %v", dir, err))
		return
	}
	f.Close()
	os.Remove(f.Name())
	result.pass(name, dir)
}

func printDoctorResult(w io.Writer, result doctorResult) {
	failures, warnings := 0, 0
	for _, c := range result.Checks {
		tag := "[PASS]"
		switch c.Status {
		case "fail":
			tag = "[FAIL]"
			failures++
		case "warn":
			tag = "[WARN]"
			warnings++
		}
		if c.Detail != "" {
			fmt.Fprintf(w, "%s %s: %s\n", tag, c.Name, c.Detail)
		} else {
			fmt.Fprintf(w, "%s %s\n", tag, c.Name)
		}
	}

	fmt.Fprintln(w)
	if result.Valid {
		fmt.Fprintf(w, "Result: OK (%d warning(s))\n", warnings)
	} else {
		fmt.Fprintf(w, "Result: PROBLEMS FOUND (%d error(s), %d warning(s))\n", failures, warnings)
	}
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the CA, directories and external tools",
	Long: `Checks that the CA is present and valid, that the certificate, proxy and
data directories are writable, that openssl and nginx can be found and that
the virtual host template parses. Nothing is modified. Exits 1 when a check
fails.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		result := runDoctor(cfg, exec.LookPath)
		if err := render(cmd, result, func(w io.Writer) { printDoctorResult(w, result) }); err != nil {
			return err
		}
		if !result.Valid {
			return fmt.Errorf("%d check(s) failed", countFailures(result))
		}
		return nil
	},
}

func countFailures(r doctorResult) int {
	n := 0
	for _, c := range r.Checks {
		if c.Status == "fail" {
			n++
		}
	}
	return n
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
