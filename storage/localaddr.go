package storage

import (
	"os"
	"path/filepath"
	"strings"
)

// AddressFile persists the single local-address setting as a trimmed text
// file. The value is not validated beyond trimming whitespace.
type AddressFile struct {
	path string
}

// NewAddressFile returns an AddressFile stored at path.
func NewAddressFile(path string) *AddressFile {
	return &AddressFile{path: path}
}

// Path returns the backing file path.
func (f *AddressFile) Path() string { return f.path }

// Read returns the stored address, or "" when none has been saved.
func (f *AddressFile) Read() (string, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if isNotExist(err) {
			return "", nil
		}
		return "", &StorageError{Op: "read", Path: f.path, Err: err}
	}
	return strings.TrimSpace(string(data)), nil
}

// Write stores addr after trimming it and returns the stored value.
func (f *AddressFile) Write(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return "", &StorageError{Op: "mkdir", Path: filepath.Dir(f.path), Err: err}
	}
	if err := os.WriteFile(f.path, []byte(addr), 0o644); err != nil {
		return "", &StorageError{Op: "write", Path: f.path, Err: err}
	}
	return addr, nil
}
