// Package storage is the filesystem-backed registry of certificate material.
//
// Three logical namespaces share one root directory:
//
//	<root>/SSLinker.{key,crt}        the CA identity
//	<root>/<domain>.{key,crt}        leaf certificates issued by the CA
//	<root>/uploads/<name>.{crt|pem|cer,key}  certificates supplied by users
//
// The Store owns every file in those namespaces. It performs no locking of
// its own; callers serialise mutations per domain (see package lifecycle).
package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const (
	// CAName is the base name of the CA key and certificate.
	CAName = "SSLinker"

	// UploadsDir is the subdirectory of the root holding uploaded certificates.
	UploadsDir = "uploads"

	certExt    = ".crt"
	keyExt     = ".key"
	requestExt = ".csr"
	serialExt  = ".srl"
)

// uploadCertExts is the allow-list for uploaded certificate files.
var uploadCertExts = []string{".crt", ".pem", ".cer"}

// deleteExts are removed from both namespaces by Delete.
var deleteExts = []string{".crt", ".key", ".pem", ".cer"}

// clearExts are removed from the root namespace by ClearAll.
var clearExts = []string{".crt", ".key", ".csr", ".srl"}

// Kind is the provenance of a listed certificate.
type Kind string

const (
	KindCA       Kind = "ca"
	KindIssued   Kind = "issued"
	KindUploaded Kind = "uploaded"
)

// FileKind selects which half of a certificate pair to download.
type FileKind string

const (
	FileCert FileKind = "cert"
	FileKey  FileKind = "key"
)

// Pair holds the on-disk paths of a certificate, its key and its transient
// signing request.
type Pair struct {
	Key     string
	Cert    string
	Request string
}

// Store is a filesystem-backed certificate registry.
type Store struct {
	root    string
	uploads string
	logger  *slog.Logger

	// remove and lstat are os.Remove and os.Lstat; tests replace them to
	// inject failures.
	remove func(string) error
	lstat  func(string) (fs.FileInfo, error)
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger.With("component", "storage")
	}
}

// New returns a Store rooted at root. The directories are created lazily by
// Init or by the first write.
func New(root string, opts ...Option) *Store {
	s := &Store{
		root:    root,
		uploads: filepath.Join(root, UploadsDir),
		logger:  slog.Default().With("component", "storage"),
		remove:  os.Remove,
		lstat:   os.Lstat,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init creates the root and uploads directories.
func (s *Store) Init() error {
	if err := os.MkdirAll(s.uploads, 0o755); err != nil {
		return &StorageError{Op: "mkdir", Path: s.uploads, Err: err}
	}
	return nil
}

// Root returns the root directory.
func (s *Store) Root() string { return s.root }

// CAPaths returns the CA key and certificate paths.
func (s *Store) CAPaths() Pair {
	return s.IssuedPaths(CAName)
}

// IssuedPaths returns the paths used for a certificate in the root namespace.
func (s *Store) IssuedPaths(domain string) Pair {
	return Pair{
		Key:     filepath.Join(s.root, domain+keyExt),
		Cert:    filepath.Join(s.root, domain+certExt),
		Request: filepath.Join(s.root, domain+requestExt),
	}
}

// CAPresent reports whether both halves of the CA pair exist. A lone key or
// certificate counts as absent.
func (s *Store) CAPresent() bool {
	p := s.CAPaths()
	return fileExists(p.Key) && fileExists(p.Cert)
}

// Existing returns the subset of paths that currently exist on disk.
func Existing(paths ...string) []string {
	var out []string
	for _, p := range paths {
		if p != "" && fileExists(p) {
			out = append(out, p)
		}
	}
	return out
}

// ValidateName checks that name can be used as a file base name inside a
// namespace directory without escaping it.
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty name", ErrInvalidName)
	case name == "." || name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case strings.TrimSpace(name) != name:
		return fmt.Errorf("%w: %q has surrounding whitespace", ErrInvalidName, name)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidName, name)
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("%w: %q contains a control character", ErrInvalidName, name)
		}
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

// hasAnySuffix matches extensions exactly. Upload lowercases the extension
// it stores, and Delete and Download only look for lowercase names, so a
// file like Bar.CRT is not part of the registry.
func hasAnySuffix(name string, exts []string) (string, bool) {
	for _, ext := range exts {
		if strings.HasSuffix(name, ext) {
			return name[:len(name)-len(ext)], true
		}
	}
	return "", false
}
