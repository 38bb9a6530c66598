// Package snapshot builds and classifies normalized captures of an
// editor's configuration state: the scoped settings tree, the installed
// package set, and the synced user files. A Snapshot is built fresh for
// each operation and never mutated after construction.
package snapshot

import (
	"context"
	"sort"
)

// GlobalScope is the scope selector for unscoped settings.
const GlobalScope = "*"

// Value is one node of a settings tree. Internal nodes carry a non-nil
// Children map; leaves carry a string, number, bool, or array in Leaf.
// Arrays are always leaves and are never descended into.
type Value struct {
	Children map[string]Value
	Leaf     any
}

// IsMap reports whether the node is an internal node.
func (v Value) IsMap() bool {
	return v.Children != nil
}

// FromJSON normalizes a decoded JSON value into a Value tree.
func FromJSON(raw any) Value {
	m, ok := raw.(map[string]any)
	if !ok {
		return Value{Leaf: raw}
	}

	children := make(map[string]Value, len(m))
	for k, child := range m {
		children[k] = FromJSON(child)
	}

	return Value{Children: children}
}

// Interface converts the tree back into plain decoded-JSON shapes for
// serialization.
func (v Value) Interface() any {
	if !v.IsMap() {
		return v.Leaf
	}

	m := make(map[string]any, len(v.Children))
	for k, child := range v.Children {
		m[k] = child.Interface()
	}

	return m
}

// Keys returns the node's child keys in sorted order. Nil for leaves.
func (v Value) Keys() []string {
	if !v.IsMap() {
		return nil
	}

	keys := make([]string, 0, len(v.Children))
	for k := range v.Children {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// Lookup walks the dot-joined key path and returns the node there.
func (v Value) Lookup(keyPath string) (Value, bool) {
	node := v
	for _, seg := range splitKeyPath(keyPath) {
		if !node.IsMap() {
			return Value{}, false
		}

		child, ok := node.Children[seg]
		if !ok {
			return Value{}, false
		}

		node = child
	}

	return node, true
}

// Put sets the node at the dot-joined key path, creating intermediate
// maps as needed. No-op on a leaf root.
func (v Value) Put(keyPath string, val Value) {
	segs := splitKeyPath(keyPath)
	if len(segs) == 0 {
		return
	}

	node := v

	for _, seg := range segs[:len(segs)-1] {
		if !node.IsMap() {
			return
		}

		child, ok := node.Children[seg]
		if !ok || !child.IsMap() {
			child = Value{Children: make(map[string]Value)}
			node.Children[seg] = child
		}

		node = child
	}

	if node.IsMap() {
		node.Children[segs[len(segs)-1]] = val
	}
}

// Delete removes the node at the dot-joined key path, if present.
func (v Value) Delete(keyPath string) {
	segs := splitKeyPath(keyPath)
	if len(segs) == 0 {
		return
	}

	node := v

	for _, seg := range segs[:len(segs)-1] {
		if !node.IsMap() {
			return
		}

		child, ok := node.Children[seg]
		if !ok {
			return
		}

		node = child
	}

	if node.IsMap() {
		delete(node.Children, segs[len(segs)-1])
	}
}

func splitKeyPath(keyPath string) []string {
	var segs []string

	start := 0

	for i := 0; i < len(keyPath); i++ {
		if keyPath[i] == '.' {
			if i > start {
				segs = append(segs, keyPath[start:i])
			}

			start = i + 1
		}
	}

	if start < len(keyPath) {
		segs = append(segs, keyPath[start:])
	}

	return segs
}

// Package describes one installed editor package. Name is the external
// identity. An empty InstallSource means the package was installed from
// the registry; a non-empty one names an alternate install mechanism, and
// its presence participates in equivalence checks.
type Package struct {
	Name          string `json:"name"`
	Version       string `json:"version"`
	Theme         bool   `json:"theme,omitempty"`
	InstallSource string `json:"installSource,omitempty"`
}

// File is one synced user file: its absolute path on the local machine
// and its full text content.
type File struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Snapshot is a normalized capture of configuration state, local or
// remote. A nil category map means the category was not captured (its
// sync toggle is off); absence and emptiness are distinct and drive
// different diff branches.
type Snapshot struct {
	Settings map[string]Value   // scope selector -> settings tree
	Packages map[string]Package // package name -> descriptor
	Files    map[string]File    // sanitized file name -> file
}

// FileNames returns the snapshot's file keys in sorted order, for
// deterministic serialization and diffing.
func (s *Snapshot) FileNames() []string {
	names := make([]string, 0, len(s.Files))
	for name := range s.Files {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Scopes returns the snapshot's settings scope selectors in sorted order.
func (s *Snapshot) Scopes() []string {
	scopes := make([]string, 0, len(s.Settings))
	for sel := range s.Settings {
		scopes = append(scopes, sel)
	}

	sort.Strings(scopes)

	return scopes
}

// ConfigStore is the host configuration store collaborator: the editor's
// scoped settings tree with typed get/set/unset by dot-joined key path.
type ConfigStore interface {
	// Tree returns a deep copy of the global-scope settings tree.
	Tree() (map[string]any, error)

	// ScopedOverrides returns deep copies of every non-global scoped
	// settings tree, keyed by scope selector.
	ScopedOverrides() (map[string]map[string]any, error)

	// Get returns the current value at the key path in the global scope,
	// or nil if unset.
	Get(keyPath string) any

	// Set writes a value at the key path within the given scope.
	Set(keyPath string, value any, scope string) error

	// Unset removes the key path from the global scope.
	Unset(keyPath string) error
}

// PackageManager is the host extension manager collaborator.
type PackageManager interface {
	// InstalledNames enumerates installed package names.
	InstalledNames() ([]string, error)

	// ResolvePath resolves a package name to its real install path.
	ResolvePath(name string) (string, error)

	// Metadata reads the descriptor for the package at an install path.
	Metadata(path string) (Package, error)

	// IsBundled reports whether the named package ships with the editor.
	IsBundled(name string) bool

	// Install installs the described package.
	Install(ctx context.Context, pkg Package) error

	// Uninstall removes the described package.
	Uninstall(ctx context.Context, pkg Package) error
}

// ConfDir is the filesystem collaborator rooted at the editor's
// configuration directory.
type ConfDir interface {
	// ReadFile reads a file by path relative to the config directory.
	ReadFile(rel string) ([]byte, error)

	// WriteFile writes a file by relative path, creating parents.
	WriteFile(rel string, data []byte) error

	// DeleteFile removes a file by relative path. Missing files are fine.
	DeleteFile(rel string) error

	// Glob expands patterns against the config directory, recursive and
	// including dotfiles, returning relative paths of matching files
	// (never directories) that match none of the ignore patterns.
	Glob(patterns, ignores []string) ([]string, error)

	// Abs resolves a relative path to its absolute filesystem path.
	Abs(rel string) (string, error)
}
