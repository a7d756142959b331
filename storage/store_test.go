package storage_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"io/fs"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/sslinker/storage"
)

func newTestStore(t *testing.T) (*storage.Store, string) {
	t.Helper()
	root := t.TempDir()
	s := storage.New(root)
	require.NoError(t, s.Init())
	return s, root
}

// testCertPEM returns a self-signed PEM certificate for cn.
func testCertPEM(t *testing.T, cn string, isCA bool) []byte {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(42),
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		DNSNames:              []string{strings.ReplaceAll(cn, " ", "-")},
		IPAddresses:           []net.IP{net.ParseIP("10.0.0.1")},
		BasicConstraintsValid: true,
		IsCA:                  isCA,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, key.Public(), key)
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o600))
}

func TestList_CAFirstThenSorted(t *testing.T) {
	s, root := newTestStore(t)

	// Insert in an order that would sort the CA last.
	writeFile(t, filepath.Join(root, "zeta.example.crt"), testCertPEM(t, "zeta.example", false))
	writeFile(t, filepath.Join(root, "zeta.example.key"), []byte("key"))
	writeFile(t, filepath.Join(root, "alpha.example.crt"), testCertPEM(t, "alpha.example", false))
	writeFile(t, filepath.Join(root, "alpha.example.key"), []byte("key"))
	writeFile(t, filepath.Join(root, "SSLinker.crt"), testCertPEM(t, "SSLinker CA", true))
	writeFile(t, filepath.Join(root, "SSLinker.key"), []byte("key"))
	writeFile(t, filepath.Join(root, storage.UploadsDir, "beta.pem"), testCertPEM(t, "beta", false))
	writeFile(t, filepath.Join(root, storage.UploadsDir, "beta.key"), []byte("key"))

	certs, err := s.List()
	require.NoError(t, err)
	require.Len(t, certs, 4)

	assert.Equal(t, storage.KindCA, certs[0].Kind)
	assert.Equal(t, storage.CAName, certs[0].Domain)

	var names []string
	for _, c := range certs[1:] {
		names = append(names, c.Domain)
	}
	assert.Equal(t, []string{"alpha.example", "beta", "zeta.example"}, names)

	beta := certs[2]
	assert.Equal(t, storage.KindUploaded, beta.Kind)
	assert.Equal(t, "beta.pem", beta.CertFile)
	assert.Equal(t, "beta.key", beta.KeyFile)

	require.NotNil(t, certs[0].Info)
	assert.True(t, certs[0].Info.IsCA)
	assert.Equal(t, "CN=SSLinker CA", certs[0].Info.Subject)
	require.NotNil(t, certs[1].Info)
	assert.Equal(t, []string{"alpha.example"}, certs[1].Info.DNSNames)
	assert.Equal(t, []string{"10.0.0.1"}, certs[1].Info.IPAddresses)
	assert.Equal(t, storage.StatusActive, certs[1].Info.Status)
}

func TestList_SurfacesMissingKey(t *testing.T) {
	s, root := newTestStore(t)
	writeFile(t, filepath.Join(root, "lonely.example.crt"), []byte("not a real cert"))

	certs, err := s.List()
	require.NoError(t, err)
	require.Len(t, certs, 1)
	assert.Equal(t, "lonely.example", certs[0].Domain)
	assert.False(t, certs[0].Complete())
	assert.Empty(t, certs[0].KeyPath)
	assert.Nil(t, certs[0].Info)
}

func TestList_EmptyAndMissingRoot(t *testing.T) {
	s := storage.New(filepath.Join(t.TempDir(), "does-not-exist"))
	certs, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, certs)
}

func TestCAPresent_RequiresBothHalves(t *testing.T) {
	s, root := newTestStore(t)
	assert.False(t, s.CAPresent())

	writeFile(t, filepath.Join(root, "SSLinker.key"), []byte("key"))
	assert.False(t, s.CAPresent(), "a lone key is not a CA")

	writeFile(t, filepath.Join(root, "SSLinker.crt"), []byte("crt"))
	assert.True(t, s.CAPresent())
}

func TestUpload(t *testing.T) {
	s, root := newTestStore(t)
	certPEM := testCertPEM(t, "svc.internal", false)

	c, err := s.Upload(storage.UploadRequest{
		CertFilename: "fullchain.pem",
		Cert:         certPEM,
		KeyFilename:  "privkey.key",
		Key:          []byte("key-bytes"),
	})
	require.NoError(t, err)
	assert.Equal(t, "fullchain", c.Domain)
	assert.Equal(t, storage.KindUploaded, c.Kind)
	require.NotNil(t, c.Info)

	data, err := os.ReadFile(filepath.Join(root, storage.UploadsDir, "fullchain.pem"))
	require.NoError(t, err)
	assert.Equal(t, certPEM, data)
	data, err = os.ReadFile(filepath.Join(root, storage.UploadsDir, "fullchain.key"))
	require.NoError(t, err)
	assert.Equal(t, "key-bytes", string(data))
}

func TestUpload_DisplayNameOverride(t *testing.T) {
	s, root := newTestStore(t)

	c, err := s.Upload(storage.UploadRequest{
		CertFilename: "cert.cer",
		Cert:         []byte("c"),
		KeyFilename:  "cert.key",
		Key:          []byte("k"),
		Name:         "  office-nas  ",
	})
	require.NoError(t, err)
	assert.Equal(t, "office-nas", c.Name)
	assert.FileExists(t, filepath.Join(root, storage.UploadsDir, "office-nas.cer"))
	assert.FileExists(t, filepath.Join(root, storage.UploadsDir, "office-nas.key"))
}

func TestUpload_RejectsInvalidTypesBeforeWriting(t *testing.T) {
	tests := []struct {
		name     string
		certName string
		keyName  string
	}{
		{"cert txt", "cert.txt", "cert.key"},
		{"no extension", "cert", "cert.key"},
		{"key pem", "cert.crt", "cert.pem"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, root := newTestStore(t)
			_, err := s.Upload(storage.UploadRequest{
				CertFilename: tt.certName,
				Cert:         []byte("c"),
				KeyFilename:  tt.keyName,
				Key:          []byte("k"),
			})
			assert.ErrorIs(t, err, storage.ErrInvalidFileType)

			entries, err := os.ReadDir(filepath.Join(root, storage.UploadsDir))
			require.NoError(t, err)
			assert.Empty(t, entries, "no partial artifacts")
		})
	}
}

func TestUpload_RejectsUnsafeName(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Upload(storage.UploadRequest{
		CertFilename: "cert.crt",
		KeyFilename:  "cert.key",
		Name:         "../escape",
	})
	assert.ErrorIs(t, err, storage.ErrInvalidName)
}

func TestDownload(t *testing.T) {
	s, root := newTestStore(t)
	writeFile(t, filepath.Join(root, "example.com.crt"), []byte("root-crt"))
	writeFile(t, filepath.Join(root, "example.com.key"), []byte("root-key"))
	writeFile(t, filepath.Join(root, storage.UploadsDir, "nas.cer"), []byte("nas-cer"))

	f, err := s.Download("example.com", storage.FileCert)
	require.NoError(t, err)
	assert.Equal(t, "root-crt", string(f.Data))
	assert.Equal(t, "example.com.crt", f.Name)

	f, err = s.Download("example.com", storage.FileKey)
	require.NoError(t, err)
	assert.Equal(t, "root-key", string(f.Data))

	f, err = s.Download("nas", storage.FileCert)
	require.NoError(t, err)
	assert.Equal(t, "nas-cer", string(f.Data))

	_, err = s.Download("nas", storage.FileKey)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = s.Download("example.com", storage.FileKind("pfx"))
	assert.ErrorIs(t, err, storage.ErrInvalidKind)

	_, err = s.Download("../etc/passwd", storage.FileCert)
	assert.ErrorIs(t, err, storage.ErrInvalidName)
}

func TestDelete_NotFoundOnEmptyStore(t *testing.T) {
	s, _ := newTestStore(t)

	report, err := s.Delete("missing-domain")
	assert.Nil(t, report)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.NotErrorIs(t, err, storage.ErrPartial)
}

func TestDelete_BothNamespaces(t *testing.T) {
	s, root := newTestStore(t)
	writeFile(t, filepath.Join(root, "example.com.crt"), []byte("c"))
	writeFile(t, filepath.Join(root, "example.com.key"), []byte("k"))
	writeFile(t, filepath.Join(root, storage.UploadsDir, "example.com.pem"), []byte("p"))
	writeFile(t, filepath.Join(root, storage.UploadsDir, "example.com.key"), []byte("k"))
	writeFile(t, filepath.Join(root, "other.com.crt"), []byte("c"))

	report, err := s.Delete("example.com")
	require.NoError(t, err)
	assert.Len(t, report.Removed, 4)
	assert.False(t, report.Partial())
	assert.Contains(t, report.Message(), "removed:")

	assert.NoFileExists(t, filepath.Join(root, "example.com.crt"))
	assert.NoFileExists(t, filepath.Join(root, storage.UploadsDir, "example.com.pem"))
	assert.FileExists(t, filepath.Join(root, "other.com.crt"))
}

func TestDelete_PartialSuccess(t *testing.T) {
	s, root := newTestStore(t)
	crt := filepath.Join(root, "example.com.crt")
	key := filepath.Join(root, "example.com.key")
	writeFile(t, crt, []byte("c"))
	writeFile(t, key, []byte("k"))

	storage.SetRemoveFunc(s, func(path string) error {
		if strings.HasSuffix(path, ".key") {
			return &fs.PathError{Op: "remove", Path: path, Err: fs.ErrPermission}
		}
		return os.Remove(path)
	})

	report, err := s.Delete("example.com")
	require.NoError(t, err, "at least one file removed counts as success")
	assert.Equal(t, []string{crt}, report.Removed)
	require.True(t, report.Partial())
	require.Len(t, report.Failures, 1)
	assert.ErrorIs(t, report.Failures[0], storage.ErrStorage)
	assert.ErrorIs(t, report.Failures[0], fs.ErrPermission)
	assert.Contains(t, report.Message(), key)
	assert.FileExists(t, key)
}

func TestDelete_AllRemovalsFail(t *testing.T) {
	s, root := newTestStore(t)
	writeFile(t, filepath.Join(root, "example.com.crt"), []byte("c"))
	storage.SetRemoveFunc(s, func(path string) error {
		return &fs.PathError{Op: "remove", Path: path, Err: fs.ErrPermission}
	})

	report, err := s.Delete("example.com")
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrStorage)
	assert.NotErrorIs(t, err, storage.ErrNotFound)
	require.NotNil(t, report)
	assert.Empty(t, report.Removed)
}

func TestDelete_StatFailureIsNotAbsence(t *testing.T) {
	s, root := newTestStore(t)
	crt := filepath.Join(root, "example.com.crt")
	key := filepath.Join(root, "example.com.key")
	writeFile(t, crt, []byte("c"))
	writeFile(t, key, []byte("k"))
	storage.SetLstatFunc(s, func(path string) (fs.FileInfo, error) {
		if path == crt || path == key {
			return nil, &fs.PathError{Op: "lstat", Path: path, Err: fs.ErrPermission}
		}
		return os.Lstat(path)
	})

	report, err := s.Delete("example.com")
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrStorage)
	assert.NotErrorIs(t, err, storage.ErrNotFound)
	require.NotNil(t, report)
	assert.Empty(t, report.Removed)
	require.Len(t, report.Failures, 2)
	assert.ErrorIs(t, report.Failures[0], fs.ErrPermission)
	assert.FileExists(t, crt)
}

func TestDelete_StatFailureAlongsideRemoval(t *testing.T) {
	s, root := newTestStore(t)
	crt := filepath.Join(root, "example.com.crt")
	key := filepath.Join(root, "example.com.key")
	writeFile(t, crt, []byte("c"))
	writeFile(t, key, []byte("k"))
	storage.SetLstatFunc(s, func(path string) (fs.FileInfo, error) {
		if path == key {
			return nil, &fs.PathError{Op: "lstat", Path: path, Err: fs.ErrPermission}
		}
		return os.Lstat(path)
	})

	report, err := s.Delete("example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{crt}, report.Removed)
	require.True(t, report.Partial())
	assert.Contains(t, report.Message(), key)
}

// Extensions are matched exactly, so every listed certificate can be
// downloaded and deleted under the domain the listing reports.
func TestList_AgreesWithDeleteAndDownload(t *testing.T) {
	s, root := newTestStore(t)
	writeFile(t, filepath.Join(root, "Bar.CRT"), []byte("c"))
	writeFile(t, filepath.Join(root, storage.UploadsDir, "foo.PEM"), []byte("p"))
	writeFile(t, filepath.Join(root, "app.lan.crt"), []byte("c"))
	writeFile(t, filepath.Join(root, storage.UploadsDir, "nas.pem"), []byte("p"))

	certs, err := s.List()
	require.NoError(t, err)
	var domains []string
	for _, c := range certs {
		domains = append(domains, c.Domain)
	}
	assert.Equal(t, []string{"app.lan", "nas"}, domains)

	for _, c := range certs {
		f, err := s.Download(c.Domain, storage.FileCert)
		require.NoError(t, err, c.Domain)
		assert.Equal(t, c.CertPath, f.Path)

		report, err := s.Delete(c.Domain)
		require.NoError(t, err, c.Domain)
		assert.Equal(t, []string{c.CertPath}, report.Removed)
	}

	certs, err = s.List()
	require.NoError(t, err)
	assert.Empty(t, certs)
}

func TestUpload_LowercasesExtension(t *testing.T) {
	s, _ := newTestStore(t)

	c, err := s.Upload(storage.UploadRequest{
		CertFilename: "Router.PEM",
		Cert:         []byte("p"),
		KeyFilename:  "Router.KEY",
		Key:          []byte("k"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Router.pem", c.CertFile)

	certs, err := s.List()
	require.NoError(t, err)
	require.Len(t, certs, 1)
	assert.Equal(t, "Router", certs[0].Domain)
	assert.Equal(t, "Router.key", certs[0].KeyFile)

	report, err := s.Delete("Router")
	require.NoError(t, err)
	assert.Len(t, report.Removed, 2)
}

func TestClearAll_RootOnly(t *testing.T) {
	s, root := newTestStore(t)
	for _, name := range []string{"SSLinker.crt", "SSLinker.key", "SSLinker.srl", "a.com.crt", "a.com.key", "b.com.csr", "notes.txt"} {
		writeFile(t, filepath.Join(root, name), []byte("x"))
	}
	uploaded := filepath.Join(root, storage.UploadsDir, "up.pem")
	writeFile(t, uploaded, []byte("x"))

	report, err := s.ClearAll()
	require.NoError(t, err)
	assert.Len(t, report.Removed, 6)
	assert.FileExists(t, filepath.Join(root, "notes.txt"))
	assert.FileExists(t, uploaded, "uploads are not cleared")
	assert.False(t, s.CAPresent())
}

func TestClearAll_PartialFailure(t *testing.T) {
	s, root := newTestStore(t)
	writeFile(t, filepath.Join(root, "a.com.crt"), []byte("x"))
	writeFile(t, filepath.Join(root, "a.com.key"), []byte("x"))
	storage.SetRemoveFunc(s, func(path string) error {
		if strings.HasSuffix(path, ".key") {
			return fs.ErrPermission
		}
		return os.Remove(path)
	})

	report, err := s.ClearAll()
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrPartial)

	var pf *storage.PartialFailure
	require.True(t, errors.As(err, &pf))
	assert.Len(t, pf.Succeeded, 1)
	assert.Len(t, pf.Messages(), 1)
	assert.Len(t, report.Removed, 1)
}

func TestValidateName(t *testing.T) {
	for _, ok := range []string{"example.com", "*.example.com", "my host", "SSLinker"} {
		assert.NoError(t, storage.ValidateName(ok), ok)
	}
	for _, bad := range []string{"", ".", "..", "a/b", `a\b`, " padded", "tab\there"} {
		assert.ErrorIs(t, storage.ValidateName(bad), storage.ErrInvalidName, bad)
	}
}

func TestAddressFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config", "local.txt")
	f := storage.NewAddressFile(path)

	addr, err := f.Read()
	require.NoError(t, err)
	assert.Empty(t, addr)

	stored, err := f.Write("  192.168.1.100 \n")
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.100", stored)

	addr, err = f.Read()
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.100", addr)
}
