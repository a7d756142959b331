package storage

import (
	"os"
	"path/filepath"
	"sort"
)

// Certificate is one listed certificate. KeyFile and KeyPath are empty when
// the certificate has no same-named key.
type Certificate struct {
	Domain   string    `json:"domain"`
	Name     string    `json:"name"`
	Kind     Kind      `json:"type"`
	CertFile string    `json:"crt"`
	KeyFile  string    `json:"key,omitempty"`
	CertPath string    `json:"cert_path"`
	KeyPath  string    `json:"key_path,omitempty"`
	Info     *CertInfo `json:"info,omitempty"`
}

// Complete reports whether both the certificate and its key are present.
func (c Certificate) Complete() bool {
	return c.KeyFile != ""
}

// List returns every certificate in the root and uploads namespaces: the CA
// first, the rest ordered by domain. Files removed while the scan runs are
// skipped.
func (s *Store) List() ([]Certificate, error) {
	var certs []Certificate

	root, err := s.scan(s.root, []string{certExt}, func(base string) Kind {
		if base == CAName {
			return KindCA
		}
		return KindIssued
	})
	if err != nil {
		return nil, err
	}
	certs = append(certs, root...)

	uploaded, err := s.scan(s.uploads, uploadCertExts, func(string) Kind { return KindUploaded })
	if err != nil {
		return nil, err
	}
	certs = append(certs, uploaded...)

	sort.SliceStable(certs, func(i, j int) bool {
		a, b := certs[i], certs[j]
		if (a.Kind == KindCA) != (b.Kind == KindCA) {
			return a.Kind == KindCA
		}
		if a.Domain != b.Domain {
			return a.Domain < b.Domain
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.CertFile < b.CertFile
	})
	return certs, nil
}

func (s *Store) scan(dir string, exts []string, kindOf func(base string) Kind) ([]Certificate, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if isNotExist(err) {
			return nil, nil
		}
		return nil, &StorageError{Op: "list", Path: dir, Err: err}
	}

	var certs []Certificate
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		base, ok := hasAnySuffix(entry.Name(), exts)
		if !ok || base == "" {
			continue
		}
		certPath := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(certPath)
		if err != nil {
			if isNotExist(err) {
				continue
			}
			s.logger.Warn("unreadable certificate", "path", certPath, "error", err)
		}

		c := Certificate{
			Domain:   base,
			Name:     base,
			Kind:     kindOf(base),
			CertFile: entry.Name(),
			CertPath: certPath,
		}
		keyPath := filepath.Join(dir, base+keyExt)
		if fileExists(keyPath) {
			c.KeyFile = base + keyExt
			c.KeyPath = keyPath
		}
		if data != nil {
			if info, err := ParseCertificate(data); err == nil {
				c.Info = info
			} else {
				s.logger.Debug("certificate not parseable", "path", certPath, "error", err)
			}
		}
		certs = append(certs, c)
	}
	return certs, nil
}
