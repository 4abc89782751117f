// Package destination holds the administrator-selected upload root and the
// small filesystem queries the admin UI uses to pick one.
package destination

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ErrUnset is returned by Store.Get before any destination has been set.
var ErrUnset = errors.New("destination path not set")

// ConfigurationError reports a destination root that cannot accept uploads.
type ConfigurationError struct {
	Path string
	Err  error
}

func (e *ConfigurationError) Error() string {
	if e.Path == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("destination %q: %v", e.Path, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Store is the process-wide destination root. Handlers receive it by
// reference; Set is an admin operation, Get is read by every upload.
type Store struct {
	mu   sync.RWMutex
	root string
}

func NewStore() *Store { return &Store{} }

// Set validates that path is an existing directory and makes it the current root.
func (s *Store) Set(path string) error {
	if strings.TrimSpace(path) == "" {
		return &ConfigurationError{Err: errors.New("empty path")}
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return &ConfigurationError{Path: path, Err: err}
	}
	if err := Check(abs); err != nil {
		return err
	}
	s.mu.Lock()
	s.root = abs
	s.mu.Unlock()
	return nil
}

// Get returns the current root or ErrUnset.
func (s *Store) Get() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.root == "" {
		return "", ErrUnset
	}
	return s.root, nil
}

// Check reports a ConfigurationError unless root is an existing directory.
// The root may be removed externally after Set, so uploads re-check it.
func Check(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return &ConfigurationError{Path: root, Err: err}
	}
	if !info.IsDir() {
		return &ConfigurationError{Path: root, Err: errors.New("not a directory")}
	}
	return nil
}

// EnsureDir creates path and any missing parents. Existing directories are left alone.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("mkdir %q: %w", path, err)
	}
	return nil
}

// ListFolders returns the sorted names of base's immediate subdirectories.
// A missing or empty base yields an empty list, not an error.
func ListFolders(base string) ([]string, error) {
	folders := []string{}
	if base == "" {
		return folders, nil
	}
	entries, err := os.ReadDir(base)
	if err != nil {
		if os.IsNotExist(err) {
			return folders, nil
		}
		return nil, err
	}
	for _, e := range entries {
		if e.IsDir() {
			folders = append(folders, e.Name())
		}
	}
	sort.Strings(folders)
	return folders, nil
}

// CreateFolder creates base/name. name may contain separators but must stay inside base.
func CreateFolder(base, name string) (string, error) {
	if base == "" || strings.TrimSpace(name) == "" {
		return "", errors.New("base and name are required")
	}
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || filepath.VolumeName(clean) != "" {
		return "", fmt.Errorf("folder name %q must be relative", name)
	}
	full := filepath.Join(base, clean)
	rel, err := filepath.Rel(filepath.Clean(base), full)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("folder name %q escapes %q", name, base)
	}
	if err := EnsureDir(full); err != nil {
		return "", err
	}
	return full, nil
}
