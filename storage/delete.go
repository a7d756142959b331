package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"
)

// DeleteReport lists what Delete removed and what it could not remove.
type DeleteReport struct {
	Domain   string
	Removed  []string
	Failures []error
}

// Partial reports whether some files could not be removed.
func (r *DeleteReport) Partial() bool {
	return len(r.Failures) > 0
}

// Message is a human-readable summary.
func (r *DeleteReport) Message() string {
	var b strings.Builder
	if len(r.Removed) > 0 {
		b.WriteString("removed: " + joinPaths(r.Removed))
	}
	if len(r.Failures) > 0 {
		if b.Len() > 0 {
			b.WriteString("; ")
		}
		b.WriteString("failed: " + strings.Join(errorStrings(r.Failures), "; "))
	}
	return b.String()
}

// Delete removes every .crt, .key, .pem and .cer file named after domain in
// both namespaces. Removing at least one file counts as success even when
// others fail; the failures are listed in the report. ErrNotFound is returned
// only when no file existed.
func (s *Store) Delete(domain string) (*DeleteReport, error) {
	if err := ValidateName(domain); err != nil {
		return nil, err
	}

	report := &DeleteReport{Domain: domain}
	var errs error
	for _, dir := range []string{s.root, s.uploads} {
		for _, ext := range deleteExts {
			path := filepath.Join(dir, domain+ext)
			if _, err := s.lstat(path); err != nil {
				if isNotExist(err) {
					continue
				}
				serr := &StorageError{Op: "stat", Path: path, Err: err}
				report.Failures = append(report.Failures, serr)
				errs = multierr.Append(errs, serr)
				s.logger.Warn("failed to stat certificate file", "path", path, "error", err)
				continue
			}
			if err := s.remove(path); err != nil {
				if isNotExist(err) {
					continue
				}
				serr := &StorageError{Op: "delete", Path: path, Err: err}
				report.Failures = append(report.Failures, serr)
				errs = multierr.Append(errs, serr)
				s.logger.Warn("failed to remove certificate file", "path", path, "error", err)
				continue
			}
			report.Removed = append(report.Removed, path)
			s.logger.Debug("removed certificate file", "path", path)
		}
	}

	switch {
	case len(report.Removed) > 0:
		return report, nil
	case errs != nil:
		return report, &StorageError{Op: "delete", Path: domain, Err: errs}
	default:
		return nil, fmt.Errorf("%s: %w", domain, ErrNotFound)
	}
}

// ClearReport lists the files removed by ClearAll.
type ClearReport struct {
	Removed []string `json:"removed"`
}

// ClearAll removes every .crt, .key, .csr and .srl file in the root
// namespace, including the CA. The uploads namespace is left untouched.
// Per-file failures are returned as a *PartialFailure, or a *StorageError
// when nothing could be removed.
func (s *Store) ClearAll() (*ClearReport, error) {
	report := &ClearReport{}
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if isNotExist(err) {
			return report, nil
		}
		return nil, &StorageError{Op: "list", Path: s.root, Err: err}
	}

	var errs error
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := hasAnySuffix(entry.Name(), clearExts); !ok {
			continue
		}
		path := filepath.Join(s.root, entry.Name())
		if err := s.remove(path); err != nil {
			if isNotExist(err) {
				continue
			}
			errs = multierr.Append(errs, &StorageError{Op: "delete", Path: path, Err: err})
			continue
		}
		report.Removed = append(report.Removed, path)
	}
	s.logger.Info("certificate store cleared", "removed", len(report.Removed))

	if errs == nil {
		return report, nil
	}
	if len(report.Removed) == 0 {
		return report, &StorageError{Op: "clear", Path: s.root, Err: errs}
	}
	return report, &PartialFailure{Op: "clear", Succeeded: report.Removed, Failures: multierr.Errors(errs)}
}
