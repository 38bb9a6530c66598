// Package host adapts the local editor installation behind the
// collaborator interfaces the snapshot package defines: its settings
// store, its package directory, and its configuration directory.
package host

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// ConfDir provides thread-safe filesystem operations rooted at the
// editor's configuration directory. All writes are serialized by an
// exclusive lock; reads take a shared lock to avoid reading partial
// writes.
type ConfDir struct {
	root string
	mu   sync.RWMutex
}

// NewConfDir creates a ConfDir rooted at the given directory. The
// directory must be an absolute path (resolved at config load time).
func NewConfDir(root string) *ConfDir {
	return &ConfDir{root: root}
}

// Root returns the root directory.
func (d *ConfDir) Root() string {
	return d.root
}

// ReadFile reads a file by relative path.
func (d *ConfDir) ReadFile(rel string) ([]byte, error) {
	abs, err := d.resolve(rel)
	if err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	return os.ReadFile(abs)
}

// WriteFile writes content to a file by relative path, creating parent
// directories as needed.
func (d *ConfDir) WriteFile(rel string, data []byte) error {
	abs, err := d.resolve(rel)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(abs), dirPerm); err != nil {
		return fmt.Errorf("creating directory for %s: %w", rel, err)
	}

	if err := os.WriteFile(abs, data, filePerm); err != nil {
		return fmt.Errorf("writing %s: %w", rel, err)
	}

	return nil
}

// DeleteFile removes a file by relative path. Returns nil if the file
// does not exist.
func (d *ConfDir) DeleteFile(rel string) error {
	abs, err := d.resolve(rel)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	err = os.Remove(abs)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %s: %w", rel, err)
	}

	return nil
}

// Glob expands recursive glob patterns against the directory, including
// dotfiles, returning relative paths of regular files that match at
// least one pattern and none of the ignore patterns. Results are unique
// and in filesystem walk order.
func (d *ConfDir) Glob(patterns, ignores []string) ([]string, error) {
	if len(patterns) == 0 {
		return nil, nil
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	seen := make(map[string]struct{})

	var out []string

	for _, pattern := range patterns {
		matches, err := doublestar.Glob(os.DirFS(d.root), pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("expanding glob %q: %w", pattern, err)
		}

		for _, rel := range matches {
			if _, dup := seen[rel]; dup {
				continue
			}

			seen[rel] = struct{}{}

			ignored, err := matchAny(ignores, rel)
			if err != nil {
				return nil, err
			}

			if !ignored {
				out = append(out, rel)
			}
		}
	}

	return out, nil
}

func matchAny(patterns []string, rel string) (bool, error) {
	for _, pattern := range patterns {
		ok, err := doublestar.Match(pattern, rel)
		if err != nil {
			return false, fmt.Errorf("matching glob %q: %w", pattern, err)
		}

		if ok {
			return true, nil
		}
	}

	return false, nil
}

// Abs resolves a relative path to its absolute filesystem path,
// rejecting path traversal.
func (d *ConfDir) Abs(rel string) (string, error) {
	return d.resolve(rel)
}

// resolve converts a relative path to an absolute path within the
// directory, rejecting path traversal attempts.
func (d *ConfDir) resolve(rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("empty path")
	}

	abs := filepath.Join(d.root, rel)
	if !strings.HasPrefix(abs, d.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("path traversal blocked: %q resolves outside config dir", rel)
	}

	return abs, nil
}
