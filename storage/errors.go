package storage

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

var (
	// ErrNotFound is returned when no file exists for the requested domain.
	ErrNotFound = errors.New("certificate not found")

	// ErrInvalidFileType is returned when an uploaded file name is outside
	// the extension allow-list.
	ErrInvalidFileType = errors.New("invalid file type")

	// ErrInvalidName is returned for names that are not filesystem-safe.
	ErrInvalidName = errors.New("invalid certificate name")

	// ErrInvalidKind is returned when a download asks for neither the
	// certificate nor the key.
	ErrInvalidKind = errors.New("invalid file kind")

	// ErrStorage matches every *StorageError via errors.Is.
	ErrStorage = errors.New("storage failure")

	// ErrPartial matches every *PartialFailure via errors.Is.
	ErrPartial = errors.New("partial failure")
)

// StorageError is a filesystem failure other than absence, such as a
// permission error.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// PartialFailure reports an aggregate operation that succeeded for some
// targets and failed for others.
type PartialFailure struct {
	Op        string
	Succeeded []string
	Failures  []error
}

func (e *PartialFailure) Error() string {
	return fmt.Sprintf("%s: %d succeeded, %d failed: %v",
		e.Op, len(e.Succeeded), len(e.Failures), multierr.Combine(e.Failures...))
}

func (e *PartialFailure) Unwrap() []error { return e.Failures }

func (e *PartialFailure) Is(target error) bool { return target == ErrPartial }

// Messages returns one line per failure.
func (e *PartialFailure) Messages() []string {
	return errorStrings(e.Failures)
}

func errorStrings(errs []error) []string {
	out := make([]string, 0, len(errs))
	for _, err := range errs {
		out = append(out, err.Error())
	}
	return out
}

func joinPaths(paths []string) string {
	return strings.Join(paths, ", ")
}
