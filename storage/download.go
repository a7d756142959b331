package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// File is a downloaded certificate or key.
type File struct {
	Name string
	Path string
	Data []byte
}

// Download returns the certificate or key stored for domain, looking in the
// root namespace before the uploads namespace.
func (s *Store) Download(domain string, kind FileKind) (*File, error) {
	if err := ValidateName(domain); err != nil {
		return nil, err
	}

	var candidates []string
	switch kind {
	case FileCert:
		candidates = append(candidates, filepath.Join(s.root, domain+certExt))
		for _, ext := range uploadCertExts {
			candidates = append(candidates, filepath.Join(s.uploads, domain+ext))
		}
	case FileKey:
		candidates = []string{
			filepath.Join(s.root, domain+keyExt),
			filepath.Join(s.uploads, domain+keyExt),
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			if isNotExist(err) {
				continue
			}
			return nil, &StorageError{Op: "read", Path: path, Err: err}
		}
		return &File{Name: filepath.Base(path), Path: path, Data: data}, nil
	}
	return nil, fmt.Errorf("%s %s: %w", domain, kind, ErrNotFound)
}
