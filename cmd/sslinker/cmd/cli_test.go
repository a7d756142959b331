package cmd

import (
	"bytes"
	"encoding/json"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/sslinker/audit"
	"github.com/jmcleod/sslinker/lifecycle"
	"github.com/jmcleod/sslinker/pki"
	"github.com/jmcleod/sslinker/proxy"
	"github.com/jmcleod/sslinker/storage"
)

func runCLI(t *testing.T, args ...string) ([]byte, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})
	err := rootCmd.Execute()
	if err != nil {
		t.Logf("stderr: %s", errOut.String())
	}
	return out.Bytes(), err
}

func runJSON[T any](t *testing.T, args ...string) T {
	t.Helper()
	out, err := runCLI(t, append(args, "--json")...)
	require.NoError(t, err)
	var v T
	require.NoError(t, json.Unmarshal(out, &v), string(out))
	return v
}

// TestCLI_Lifecycle drives the commands end to end with the in-process
// crypto tool and /bin/true standing in for nginx.
func TestCLI_Lifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("generates RSA keys")
	}
	truePath, err := exec.LookPath("true")
	if err != nil {
		t.Skip("true(1) not available")
	}

	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("SSLINKER_PATHS_CERT_DIR", filepath.Join(dir, "certs"))
	t.Setenv("SSLINKER_PATHS_PROXY_CONF_DIR", filepath.Join(dir, "conf.d"))
	t.Setenv("SSLINKER_PATHS_DATA_DIR", filepath.Join(dir, "data"))
	t.Setenv("SSLINKER_TOOLS_CRYPTO", "native")
	t.Setenv("SSLINKER_TOOLS_NGINX", truePath)
	t.Setenv("SSLINKER_CA_KEY_BITS", "2048")
	t.Setenv("SSLINKER_LOG_LEVEL", "error")

	boot := runJSON[pki.BootstrapResult](t, "ca", "init")
	assert.False(t, boot.Existed)
	assert.FileExists(t, boot.CertPath)

	type issueOutput struct {
		Certificate struct {
			Domain string   `json:"domain"`
			SANs   []string `json:"sans"`
		} `json:"certificate"`
		Proxy *proxy.Result `json:"proxy"`
	}
	issued := runJSON[issueOutput](t, "cert", "issue", "app.lan",
		"--ip", "10.0.0.7", "--proxy-pass", "http://127.0.0.1:9000")
	assert.Equal(t, "app.lan", issued.Certificate.Domain)
	assert.Contains(t, issued.Certificate.SANs, "IP:10.0.0.7")
	require.NotNil(t, issued.Proxy)
	assert.True(t, issued.Proxy.Active)

	certs := runJSON[[]storage.Certificate](t, "cert", "list")
	require.Len(t, certs, 2)
	assert.Equal(t, storage.KindCA, certs[0].Kind)

	hosts := runJSON[[]proxy.VirtualHost](t, "proxy", "list")
	require.Len(t, hosts, 1)
	assert.Equal(t, "http://127.0.0.1:9000", hosts[0].Upstream)

	report := runJSON[lifecycle.CascadeReport](t, "cert", "delete", "app.lan")
	assert.True(t, report.Success)
	assert.True(t, report.ProxyRemoved)
	assert.NoFileExists(t, hosts[0].Path)

	events := runJSON[[]audit.Event](t, "events")
	require.Len(t, events, 4)
	assert.Equal(t, audit.ActionCertDeleted, events[0].Action)
	assert.Equal(t, audit.ActionCAInitialized, events[3].Action)

	_, err = runCLI(t, "cert", "clear")
	assert.ErrorContains(t, err, "--yes")
}
