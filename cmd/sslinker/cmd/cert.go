package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"

	"github.com/jmcleod/sslinker/lifecycle"
	"github.com/jmcleod/sslinker/storage"
)

var certCmd = &cobra.Command{
	Use:   "cert",
	Short: "Issue, list and delete certificates",
}

var (
	issueIPs        string
	issueProxyPass  string
	issueServerName string
)

var certIssueCmd = &cobra.Command{
	Use:   "issue <domain>",
	Short: "Issue a certificate signed by the CA",
	Long: `Issues a certificate for <domain> with a DNS SAN for the domain and one IP
SAN per --ip entry. With --proxy-pass, an nginx virtual host serving the
certificate is written and nginx is reloaded.`,
	Args: cobra.ExactArgs(1),
	RunE: withServices(func(cmd *cobra.Command, args []string, s *services) error {
		req := lifecycle.IssueRequest{Domain: args[0], IPs: issueIPs}
		if issueProxyPass != "" {
			req.Proxy = &lifecycle.ProxyRequest{ServerName: issueServerName, ProxyPass: issueProxyPass}
		}
		res, err := s.svc.Issue(cmd.Context(), req)
		if res == nil {
			return err
		}
		if rerr := render(cmd, res, func(w io.Writer) {
			fmt.Fprintln(w, res.Message)
			fmt.Fprintf(w, "certificate: %s\nkey:         %s\nSANs:        %s\n",
				res.Leaf.CertPath, res.Leaf.KeyPath, strings.Join(res.Leaf.SANStrings(), ", "))
			if res.Proxy != nil {
				fmt.Fprintf(w, "config:      %s\n", res.Proxy.Path)
			}
		}); rerr != nil {
			return rerr
		}
		return err
	}),
}

var certListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the CA, issued and uploaded certificates",
	Args:  cobra.NoArgs,
	RunE: withServices(func(cmd *cobra.Command, _ []string, s *services) error {
		certs, err := s.svc.Certificates()
		if err != nil {
			return err
		}
		return render(cmd, certs, func(w io.Writer) {
			table(w, "DOMAIN\tTYPE\tKEY\tSTATUS\tEXPIRES", func(tw io.Writer) {
				for _, c := range certs {
					key := "yes"
					if !c.Complete() {
						key = "missing"
					}
					status, expires := "-", "-"
					if c.Info != nil {
						status = c.Info.Status
						expires = c.Info.NotAfter.Format("2006-01-02")
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", c.Domain, c.Kind, key, status, expires)
				}
			})
		})
	}),
}

var uploadName string

var certUploadCmd = &cobra.Command{
	Use:   "upload <cert-file> <key-file>",
	Short: "Store an externally issued certificate and key",
	Args:  cobra.ExactArgs(2),
	RunE: withServices(func(cmd *cobra.Command, args []string, s *services) error {
		certData, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		keyData, err := os.ReadFile(args[1])
		if err != nil {
			return err
		}
		c, err := s.svc.Upload(cmd.Context(), storage.UploadRequest{
			CertFilename: filepath.Base(args[0]),
			Cert:         certData,
			KeyFilename:  filepath.Base(args[1]),
			Key:          keyData,
			Name:         uploadName,
		})
		if err != nil {
			return err
		}
		return render(cmd, c, func(w io.Writer) {
			fmt.Fprintf(w, "uploaded %s\ncertificate: %s\nkey:         %s\n", c.Domain, c.CertPath, c.KeyPath)
		})
	}),
}

var (
	downloadKey    bool
	downloadOutput string
)

var certDownloadCmd = &cobra.Command{
	Use:   "download <domain>",
	Short: "Write a certificate, or with --key its private key, to a file or stdout",
	Args:  cobra.ExactArgs(1),
	RunE: withServices(func(cmd *cobra.Command, args []string, s *services) error {
		kind := storage.FileCert
		if downloadKey {
			kind = storage.FileKey
		}
		f, err := s.svc.Download(args[0], kind)
		if err != nil {
			return err
		}

		data := f.Data
		if kind == storage.FileKey {
			buf := memguard.NewBufferFromBytes(f.Data)
			defer buf.Destroy()
			data = buf.Bytes()
		}

		if downloadOutput == "" || downloadOutput == "-" {
			_, err = cmd.OutOrStdout().Write(data)
			return err
		}
		perm := os.FileMode(0o644)
		if kind == storage.FileKey {
			perm = 0o600
		}
		if err := os.WriteFile(downloadOutput, data, perm); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s to %s\n", f.Name, downloadOutput)
		return nil
	}),
}

var deleteServerName string

var certDeleteCmd = &cobra.Command{
	Use:   "delete <domain>",
	Short: "Delete a certificate and the virtual host serving it",
	Long: `Deletes every file stored for <domain> and then removes the nginx virtual
host named --server-name (default <domain>). A missing or failing virtual host
is reported but does not undo the certificate deletion.`,
	Args: cobra.ExactArgs(1),
	RunE: withServices(func(cmd *cobra.Command, args []string, s *services) error {
		report, err := s.svc.DeleteCascade(cmd.Context(), lifecycle.CascadeRequest{
			Domain:      args[0],
			VirtualHost: deleteServerName,
		})
		if report == nil {
			return err
		}
		if rerr := render(cmd, report, func(w io.Writer) {
			fmt.Fprintln(w, report.Message)
			for _, p := range report.Removed {
				fmt.Fprintf(w, "  removed %s\n", p)
			}
		}); rerr != nil {
			return rerr
		}
		if err != nil {
			return err
		}
		if report.Partial() {
			return fmt.Errorf("deleted %s with %d error(s)", report.Domain, len(report.Errors))
		}
		return nil
	}),
}

var clearYes bool

var certClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every certificate in the certificate directory, including the CA",
	Args:  cobra.NoArgs,
	RunE: withServices(func(cmd *cobra.Command, _ []string, s *services) error {
		if !clearYes {
			return errors.New("refusing to clear without --yes")
		}
		report, err := s.svc.ClearAll(cmd.Context())
		if report != nil {
			if rerr := render(cmd, report, func(w io.Writer) {
				fmt.Fprintf(w, "removed %d files\n", len(report.Removed))
			}); rerr != nil {
				return rerr
			}
		}
		return err
	}),
}

func init() {
	rootCmd.AddCommand(certCmd)
	certCmd.AddCommand(certIssueCmd, certListCmd, certUploadCmd, certDownloadCmd, certDeleteCmd, certClearCmd)

	certIssueCmd.Flags().StringVar(&issueIPs, "ip", "", "Comma-separated IP addresses to add as SANs")
	certIssueCmd.Flags().StringVar(&issueProxyPass, "proxy-pass", "", "Also configure a virtual host forwarding to this upstream")
	certIssueCmd.Flags().StringVar(&issueServerName, "server-name", "", "Virtual host name (default the domain)")

	certUploadCmd.Flags().StringVar(&uploadName, "name", "", "Stored name (default the certificate file name)")

	certDownloadCmd.Flags().BoolVar(&downloadKey, "key", false, "Download the private key instead of the certificate")
	certDownloadCmd.Flags().StringVarP(&downloadOutput, "output", "o", "", "Output file (default stdout)")

	certDeleteCmd.Flags().StringVar(&deleteServerName, "server-name", "", "Virtual host to remove (default the domain)")

	certClearCmd.Flags().BoolVar(&clearYes, "yes", false, "Confirm deleting every certificate and the CA")
}
