package pki_test

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/sslinker/internal/toolexec"
	"github.com/jmcleod/sslinker/internal/toolexec/toolexectest"
	"github.com/jmcleod/sslinker/pki"
	"github.com/jmcleod/sslinker/storage"
)

// fakeTool writes placeholder files and records every call.
type fakeTool struct {
	mu    sync.Mutex
	calls []string
	last  pki.SignRequest

	failKey  bool
	failSign bool
	// writeBeforeFail makes a failing SignRequest leave a request file.
	writeBeforeFail bool
}

func (f *fakeTool) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeTool) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeTool) GenerateKey(_ context.Context, keyPath string, bits int) error {
	f.record("genkey " + filepath.Base(keyPath))
	if f.failKey {
		return &toolexec.Error{Tool: "openssl", ExitCode: 1, Output: "genrsa failed"}
	}
	return os.WriteFile(keyPath, []byte("key"), 0o600)
}

func (f *fakeTool) SelfSign(_ context.Context, keyPath, certPath, cn string, days int) error {
	f.record("selfsign " + filepath.Base(certPath))
	return os.WriteFile(certPath, []byte("ca-cert "+cn), 0o644)
}

func (f *fakeTool) SignRequest(_ context.Context, req pki.SignRequest) error {
	f.record("sign " + filepath.Base(req.CertPath))
	f.mu.Lock()
	f.last = req
	f.mu.Unlock()
	if f.failSign {
		if f.writeBeforeFail {
			_ = os.WriteFile(req.RequestPath, []byte("csr"), 0o644)
		}
		return &toolexec.Error{Tool: "openssl", ExitCode: 1, Output: "x509 failed"}
	}
	if err := os.WriteFile(req.RequestPath, []byte("csr"), 0o644); err != nil {
		return err
	}
	return os.WriteFile(req.CertPath, []byte("leaf"), 0o644)
}

func newAuthority(t *testing.T, tool pki.CryptoTool) (*pki.Authority, *storage.Store) {
	t.Helper()
	store := storage.New(t.TempDir())
	return pki.New(store, tool), store
}

func TestBootstrap_CreatesCA(t *testing.T) {
	tool := &fakeTool{}
	a, store := newAuthority(t, tool)

	res, err := a.Bootstrap(t.Context())
	require.NoError(t, err)
	assert.False(t, res.Existed)
	assert.True(t, store.CAPresent())
	assert.Equal(t, []string{"genkey SSLinker.key", "selfsign SSLinker.crt"}, tool.Calls())

	data, err := os.ReadFile(res.CertPath)
	require.NoError(t, err)
	assert.Equal(t, "ca-cert SSLinker CA", string(data))
}

func TestBootstrap_Idempotent(t *testing.T) {
	tool := &fakeTool{}
	a, store := newAuthority(t, tool)

	_, err := a.Bootstrap(t.Context())
	require.NoError(t, err)
	paths := store.CAPaths()
	keyBefore, _ := os.ReadFile(paths.Key)
	certBefore, _ := os.ReadFile(paths.Cert)

	res, err := a.Bootstrap(t.Context())
	require.NoError(t, err)
	assert.True(t, res.Existed)
	assert.Len(t, tool.Calls(), 2, "second bootstrap must not invoke the tool")

	keyAfter, _ := os.ReadFile(paths.Key)
	certAfter, _ := os.ReadFile(paths.Cert)
	assert.Equal(t, keyBefore, keyAfter)
	assert.Equal(t, certBefore, certAfter)
}

func TestBootstrap_FailureLeavesNoPartialCA(t *testing.T) {
	tool := &fakeTool{failKey: true}
	a, store := newAuthority(t, tool)

	_, err := a.Bootstrap(t.Context())
	require.Error(t, err)
	assert.ErrorIs(t, err, toolexec.ErrInvocation)
	assert.False(t, store.CAPresent())
	assert.Empty(t, storage.Existing(store.CAPaths().Key, store.CAPaths().Cert))
}

func TestBootstrap_LoneKeyIsRegenerated(t *testing.T) {
	tool := &fakeTool{}
	a, store := newAuthority(t, tool)
	require.NoError(t, store.Init())
	require.NoError(t, os.WriteFile(store.CAPaths().Key, []byte("stale"), 0o600))

	res, err := a.Bootstrap(t.Context())
	require.NoError(t, err)
	assert.False(t, res.Existed)
	assert.True(t, store.CAPresent())
}

func TestIssueLeaf_RequiresCA(t *testing.T) {
	tool := &fakeTool{}
	a, _ := newAuthority(t, tool)

	_, err := a.IssueLeaf(t.Context(), "example.com", "")
	assert.ErrorIs(t, err, pki.ErrCAMissing)

	_, err = a.IssueLeaf(t.Context(), "example.com", "10.0.0.1,not-an-ip")
	assert.ErrorIs(t, err, pki.ErrCAMissing)
	_, err = a.IssueLeaf(t.Context(), storage.CAName, "")
	assert.ErrorIs(t, err, pki.ErrCAMissing)
	assert.Empty(t, tool.Calls())
}

func TestIssueLeaf_SANOrder(t *testing.T) {
	tool := &fakeTool{}
	a, store := newAuthority(t, tool)
	_, err := a.Bootstrap(t.Context())
	require.NoError(t, err)

	leaf, err := a.IssueLeaf(t.Context(), "example.com", "10.0.0.1, 10.0.0.2")
	require.NoError(t, err)

	want := []string{"DNS:example.com", "IP:10.0.0.1", "IP:10.0.0.2"}
	assert.Equal(t, want, leaf.SANStrings())
	assert.Equal(t, leaf.SANs, tool.last.SANs)
	assert.Equal(t, "example.com", tool.last.CommonName)
	assert.Equal(t, store.CAPaths().Key, tool.last.CAKeyPath)

	paths := store.IssuedPaths("example.com")
	assert.FileExists(t, paths.Key)
	assert.FileExists(t, paths.Cert)
	assert.NoFileExists(t, paths.Request, "signing request must be removed")
}

func TestIssueLeaf_EmptyIPEntriesSkipped(t *testing.T) {
	a, _ := newAuthority(t, &fakeTool{})
	_, err := a.Bootstrap(t.Context())
	require.NoError(t, err)

	leaf, err := a.IssueLeaf(t.Context(), "host.lan", " , 192.168.1.5,,")
	require.NoError(t, err)
	assert.Equal(t, []string{"DNS:host.lan", "IP:192.168.1.5"}, leaf.SANStrings())
}

func TestIssueLeaf_RejectsBeforeInvokingTool(t *testing.T) {
	tests := []struct {
		name   string
		domain string
		ips    string
		want   error
	}{
		{"reserved", storage.CAName, "", pki.ErrReservedName},
		{"bad ip", "example.com", "10.0.0.1,not-an-ip", pki.ErrInvalidIP},
		{"path escape", "../etc", "", storage.ErrInvalidName},
		{"empty", "", "", storage.ErrInvalidName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tool := &fakeTool{}
			a, _ := newAuthority(t, tool)
			_, err := a.Bootstrap(t.Context())
			require.NoError(t, err)

			_, err = a.IssueLeaf(t.Context(), tt.domain, tt.ips)
			assert.ErrorIs(t, err, tt.want)
			assert.Len(t, tool.Calls(), 2, "only the bootstrap calls are expected")
		})
	}
}

func TestIssueLeaf_FailureReportsArtifacts(t *testing.T) {
	tool := &fakeTool{}
	a, store := newAuthority(t, tool)
	_, err := a.Bootstrap(t.Context())
	require.NoError(t, err)

	tool.failSign = true
	tool.writeBeforeFail = true
	_, err = a.IssueLeaf(t.Context(), "broken.example", "")
	require.Error(t, err)

	var issueErr *pki.IssueError
	require.True(t, errors.As(err, &issueErr))
	assert.Equal(t, "broken.example", issueErr.Domain)
	paths := store.IssuedPaths("broken.example")
	assert.ElementsMatch(t, []string{paths.Key, paths.Request}, issueErr.Artifacts)
	assert.ErrorIs(t, err, toolexec.ErrInvocation)

	// Artifacts are left in place for the operator.
	assert.FileExists(t, paths.Key)
}

func TestWithSettings_ZeroFieldsKeepDefaults(t *testing.T) {
	a := pki.New(storage.New(t.TempDir()), &fakeTool{}, pki.WithSettings(pki.Settings{ValidityDays: 30}))
	s := a.Settings()
	assert.Equal(t, 30, s.ValidityDays)
	assert.Equal(t, pki.DefaultSettings().KeyBits, s.KeyBits)
	assert.Equal(t, pki.DefaultSettings().CommonName, s.CommonName)
}

func TestParseIPList(t *testing.T) {
	ips, err := pki.ParseIPList("")
	require.NoError(t, err)
	assert.Empty(t, ips)

	ips, err = pki.ParseIPList("::1, 10.1.2.3")
	require.NoError(t, err)
	require.Len(t, ips, 2)
	assert.Equal(t, "::1", ips[0].String())

	_, err = pki.ParseIPList("10.0.0.300")
	assert.ErrorIs(t, err, pki.ErrInvalidIP)
}

func TestExtensionConfig(t *testing.T) {
	conf := pki.ExtensionConfig([]pki.SAN{
		{Type: pki.SANDNS, Value: "example.com"},
		{Type: pki.SANIP, Value: "10.0.0.1"},
		{Type: pki.SANIP, Value: "10.0.0.2"},
	})
	assert.Contains(t, conf, "subjectAltName=@alt_names\n")
	assert.Contains(t, conf, "[alt_names]\nDNS.1=example.com\nIP.1=10.0.0.1\nIP.2=10.0.0.2\n")
}

func TestOpenSSL_Arguments(t *testing.T) {
	rec := toolexectest.New()
	var conf string
	rec.On("openssl x509", toolexectest.Response{Hook: func(args []string) {
		for i, a := range args {
			if a == "-extfile" {
				data, err := os.ReadFile(args[i+1])
				require.NoError(t, err)
				conf = string(data)
			}
		}
	}})
	tool := pki.NewOpenSSL(rec, pki.WithTempDir(t.TempDir()))

	require.NoError(t, tool.GenerateKey(t.Context(), "/c/a.key", 2048))
	require.NoError(t, tool.SelfSign(t.Context(), "/c/SSLinker.key", "/c/SSLinker.crt", "SSLinker CA", 7300))
	require.NoError(t, tool.SignRequest(t.Context(), pki.SignRequest{
		KeyPath:     "/c/a.key",
		RequestPath: "/c/a.csr",
		CertPath:    "/c/a.crt",
		CAKeyPath:   "/c/SSLinker.key",
		CACertPath:  "/c/SSLinker.crt",
		CommonName:  "a",
		Days:        7300,
		SANs:        []pki.SAN{{Type: pki.SANDNS, Value: "a"}},
	}))

	calls := rec.Calls()
	require.Len(t, calls, 4)
	assert.Equal(t, []string{"genrsa", "-out", "/c/a.key", "2048"}, calls[0].Args)
	assert.Equal(t, []string{"req", "-x509", "-new", "-key", "/c/SSLinker.key", "-sha256", "-days", "7300", "-out", "/c/SSLinker.crt", "-subj", "/CN=SSLinker CA"}, calls[1].Args)
	assert.Equal(t, "req", calls[2].Args[0])
	assert.Equal(t, "x509", calls[3].Args[0])
	assert.Contains(t, calls[3].Args, "-CAcreateserial")
	assert.Contains(t, conf, "DNS.1=a")

	// The extension config is removed once signing finishes.
	for i, a := range calls[3].Args {
		if a == "-extfile" {
			assert.NoFileExists(t, calls[3].Args[i+1])
		}
	}
}

func TestOpenSSL_FailurePropagates(t *testing.T) {
	rec := toolexectest.New()
	rec.On("openssl req", toolexectest.Response{ExitCode: 1, Output: "unable to load key"})
	tool := pki.NewOpenSSL(rec, pki.WithTempDir(t.TempDir()))

	err := tool.SignRequest(t.Context(), pki.SignRequest{KeyPath: "k", RequestPath: "r", CertPath: "c"})
	var execErr *toolexec.Error
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, 1, execErr.ExitCode)
	assert.Len(t, rec.Calls(), 1, "x509 must not run after req fails")
}

func TestNative_IssuesVerifiableLeaf(t *testing.T) {
	if testing.Short() {
		t.Skip("generates RSA keys")
	}
	store := storage.New(t.TempDir())
	a := pki.New(store, pki.NewNative(), pki.WithSettings(pki.Settings{KeyBits: 2048, LeafKeyBits: 2048}))

	_, err := a.Bootstrap(t.Context())
	require.NoError(t, err)
	_, err = a.IssueLeaf(t.Context(), "native.example", "10.0.0.1")
	require.NoError(t, err)

	verifyLeaf(t, store, "native.example", "10.0.0.1")
}

func TestOpenSSL_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("invokes openssl")
	}
	if _, err := exec.LookPath("openssl"); err != nil {
		t.Skip("openssl not installed")
	}
	store := storage.New(t.TempDir())
	tool := pki.NewOpenSSL(toolexec.NewExecRunner(0), pki.WithTempDir(t.TempDir()))
	a := pki.New(store, tool, pki.WithSettings(pki.Settings{KeyBits: 2048}))

	_, err := a.Bootstrap(t.Context())
	require.NoError(t, err)
	_, err = a.IssueLeaf(t.Context(), "openssl.example", "10.0.0.7")
	require.NoError(t, err)

	verifyLeaf(t, store, "openssl.example", "10.0.0.7")
}

func verifyLeaf(t *testing.T, store *storage.Store, domain, ip string) {
	t.Helper()
	ca := readCert(t, store.CAPaths().Cert)
	leaf := readCert(t, store.IssuedPaths(domain).Cert)

	assert.True(t, ca.IsCA)
	assert.Equal(t, "SSLinker CA", ca.Subject.CommonName)
	assert.Equal(t, domain, leaf.Subject.CommonName)
	assert.Equal(t, []string{domain}, leaf.DNSNames)
	require.Len(t, leaf.IPAddresses, 1)
	assert.Equal(t, ip, leaf.IPAddresses[0].String())

	pool := x509.NewCertPool()
	pool.AddCert(ca)
	_, err := leaf.Verify(x509.VerifyOptions{
		DNSName:   domain,
		Roots:     pool,
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	})
	assert.NoError(t, err)
	assert.NoFileExists(t, store.IssuedPaths(domain).Request)
}

func readCert(t *testing.T, path string) *x509.Certificate {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	block, _ := pem.Decode(data)
	require.NotNil(t, block)
	require.True(t, strings.HasSuffix(block.Type, "CERTIFICATE"))
	cert, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err)
	return cert
}
