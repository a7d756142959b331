package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmcleod/sslinker/internal/util"
)

// UploadRequest carries user-supplied certificate material.
type UploadRequest struct {
	CertFilename string
	Cert         []byte
	KeyFilename  string
	Key          []byte
	// Name overrides the stored base name. Defaults to the certificate
	// file name without its extension.
	Name string
}

// Upload validates the file names and writes both files into the uploads
// namespace. Nothing is written when validation fails. A failure between
// the two writes leaves the certificate on disk; uploading again repairs it.
func (s *Store) Upload(req UploadRequest) (*Certificate, error) {
	certName := filepath.Base(req.CertFilename)
	ext := strings.ToLower(filepath.Ext(certName))
	if !allowedCertExt(ext) {
		return nil, fmt.Errorf("%w: certificate %q must end in .crt, .pem or .cer", ErrInvalidFileType, req.CertFilename)
	}
	if !strings.HasSuffix(strings.ToLower(req.KeyFilename), keyExt) {
		return nil, fmt.Errorf("%w: private key %q must end in .key", ErrInvalidFileType, req.KeyFilename)
	}

	base := req.BaseName()
	if err := ValidateName(base); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(s.uploads, 0o755); err != nil {
		return nil, &StorageError{Op: "mkdir", Path: s.uploads, Err: err}
	}

	certPath := filepath.Join(s.uploads, base+ext)
	keyPath := filepath.Join(s.uploads, base+keyExt)
	if err := os.WriteFile(certPath, req.Cert, 0o644); err != nil {
		return nil, &StorageError{Op: "write", Path: certPath, Err: err}
	}
	if err := os.WriteFile(keyPath, req.Key, 0o600); err != nil {
		return nil, &StorageError{Op: "write", Path: keyPath, Err: err}
	}
	s.logger.Info("certificate uploaded", "name", base, "cert", certPath)

	c := &Certificate{
		Domain:   base,
		Name:     base,
		Kind:     KindUploaded,
		CertFile: base + ext,
		KeyFile:  base + keyExt,
		CertPath: certPath,
		KeyPath:  keyPath,
	}
	if info, err := ParseCertificate(req.Cert); err == nil {
		c.Info = info
	}
	return c, nil
}

// BaseName returns the name the upload is stored under.
func (req UploadRequest) BaseName() string {
	if base := util.NormalizeName(req.Name); base != "" {
		return base
	}
	certName := filepath.Base(req.CertFilename)
	return strings.TrimSuffix(certName, filepath.Ext(certName))
}

func allowedCertExt(ext string) bool {
	for _, allowed := range uploadCertExts {
		if ext == allowed {
			return true
		}
	}
	return false
}
