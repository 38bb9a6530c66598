package host

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/confsync/confsync/internal/snapshot"
)

// changeDebounce batches rapid settings-file writes into one change
// callback.
const changeDebounce = 500 * time.Millisecond

// ConfigStore is a file-backed settings store: one JSON document keyed
// by scope selector, the global scope under "*". It implements
// snapshot.ConfigStore.
type ConfigStore struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

// NewConfigStore creates a store over the main settings file inside the
// editor's configuration directory.
func NewConfigStore(dir *ConfDir, logger *slog.Logger) (*ConfigStore, error) {
	path, err := dir.Abs(snapshot.MainConfigFile)
	if err != nil {
		return nil, err
	}

	return &ConfigStore{path: path, logger: logger}, nil
}

// load reads the full scope-keyed settings document. A missing file is
// an empty document.
func (s *ConfigStore) load() (map[string]map[string]any, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]map[string]any{}, nil
		}

		return nil, fmt.Errorf("reading settings file: %w", err)
	}

	var doc map[string]map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing settings file: %w", err)
	}

	if doc == nil {
		doc = map[string]map[string]any{}
	}

	return doc, nil
}

func (s *ConfigStore) save(doc map[string]map[string]any) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("serializing settings file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), dirPerm); err != nil {
		return fmt.Errorf("creating settings directory: %w", err)
	}

	if err := os.WriteFile(s.path, append(data, '\n'), filePerm); err != nil {
		return fmt.Errorf("writing settings file: %w", err)
	}

	return nil
}

// Tree returns a deep copy of the global-scope settings tree.
func (s *ConfigStore) Tree() (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}

	global := doc[snapshot.GlobalScope]
	if global == nil {
		return map[string]any{}, nil
	}

	return copyTree(global), nil
}

// ScopedOverrides returns deep copies of every non-global scoped tree.
func (s *ConfigStore) ScopedOverrides() (map[string]map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}

	out := make(map[string]map[string]any)

	for sel, tree := range doc {
		if sel == snapshot.GlobalScope {
			continue
		}

		out[sel] = copyTree(tree)
	}

	return out, nil
}

// Get returns the current value at the key path in the global scope, or
// nil if the path is unset or the file is unreadable.
func (s *ConfigStore) Get(keyPath string) any {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		s.logger.Warn("reading settings for lookup", slog.String("error", err.Error()))
		return nil
	}

	global := doc[snapshot.GlobalScope]
	if global == nil {
		return nil
	}

	node, ok := snapshot.FromJSON(global).Lookup(keyPath)
	if !ok {
		return nil
	}

	return node.Interface()
}

// Set writes a value at the key path within the given scope.
func (s *ConfigStore) Set(keyPath string, value any, scope string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}

	tree := doc[scope]
	if tree == nil {
		tree = map[string]any{}
		doc[scope] = tree
	}

	root := snapshot.FromJSON(tree)
	root.Put(keyPath, snapshot.FromJSON(value))

	updated, ok := root.Interface().(map[string]any)
	if !ok {
		return fmt.Errorf("settings scope %q is not an object", scope)
	}

	doc[scope] = updated

	return s.save(doc)
}

// Unset removes the key path from the global scope.
func (s *ConfigStore) Unset(keyPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}

	global := doc[snapshot.GlobalScope]
	if global == nil {
		return nil
	}

	root := snapshot.FromJSON(global)
	root.Delete(keyPath)

	updated, ok := root.Interface().(map[string]any)
	if !ok {
		return fmt.Errorf("global settings scope is not an object")
	}

	doc[snapshot.GlobalScope] = updated

	return s.save(doc)
}

// OnDidChange watches the settings file and invokes fn after each change
// settles. It blocks until the context is cancelled. Rapid consecutive
// writes collapse into one callback.
func (s *ConfigStore) OnDidChange(ctx context.Context, fn func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory, not the file: editors replace the settings
	// file on save, which would drop a file-level watch.
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("watching settings directory: %w", err)
	}

	s.logger.Info("settings watcher started", slog.String("file", s.path))

	var pending time.Time

	ticker := time.NewTicker(changeDebounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("fsnotify events channel closed unexpectedly")
			}

			if event.Name != s.path {
				continue
			}

			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) || event.Has(fsnotify.Rename) {
				pending = time.Now()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("fsnotify errors channel closed unexpectedly")
			}

			s.logger.Warn("settings watcher error", slog.String("error", err.Error()))

		case <-ticker.C:
			if pending.IsZero() || time.Since(pending) < changeDebounce {
				continue
			}

			pending = time.Time{}

			fn()
		}
	}
}

func copyTree(tree map[string]any) map[string]any {
	out := make(map[string]any, len(tree))

	for k, v := range tree {
		if child, ok := v.(map[string]any); ok {
			out[k] = copyTree(child)
			continue
		}

		out[k] = v
	}

	return out
}
