package storage

import "io/fs"

// SetRemoveFunc replaces the file removal function so tests can inject
// permission failures regardless of the user running the tests.
func SetRemoveFunc(s *Store, fn func(string) error) {
	s.remove = fn
}

// SetLstatFunc replaces the stat function used by Delete.
func SetLstatFunc(s *Store, fn func(string) (fs.FileInfo, error)) {
	s.lstat = fn
}
