// Package diffengine computes the three-way change classification
// between a local configuration snapshot and a backup snapshot. The
// backup is the target state: added means present only in the backup,
// deleted means present only locally, and updated means present on both
// sides with differing content.
package diffengine

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/confsync/confsync/internal/snapshot"
)

// patchContextLines is the number of unchanged lines shown around each
// hunk of a file patch.
const patchContextLines = 2

// LiveConfig reads current global-scope values from the running
// configuration store, so updated settings can report the value in
// effect at diff time rather than the one captured when the snapshot
// was built. Scoped overrides have no live surface; their updates fall
// back to the snapshot value.
type LiveConfig interface {
	Get(keyPath string) any
}

// SettingChange is one classified settings entry. KeyPath is dot-joined
// and carries the scope selector as its leading segment for non-global
// scopes. OldValue is populated for updates only: read live for the
// global scope, taken from the local snapshot otherwise.
type SettingChange struct {
	KeyPath  string
	Value    any
	OldValue any
}

// SettingsDiff classifies flattened settings entries.
type SettingsDiff struct {
	Added   []SettingChange
	Updated []SettingChange
	Deleted []SettingChange
}

func (d *SettingsDiff) empty() bool {
	return d == nil || len(d.Added)+len(d.Updated)+len(d.Deleted) == 0
}

// PackageUpdate pairs the two descriptors of a package present on both
// sides with differing content.
type PackageUpdate struct {
	Backup snapshot.Package
	Local  snapshot.Package
}

// PackagesDiff classifies packages by name.
type PackagesDiff struct {
	Added   map[string]snapshot.Package
	Updated map[string]PackageUpdate
	Deleted map[string]snapshot.Package
}

func (d *PackagesDiff) empty() bool {
	return d == nil || len(d.Added)+len(d.Updated)+len(d.Deleted) == 0
}

// FileUpdate pairs the two versions of a file present on both sides with
// differing content, plus a unified patch from the local version to the
// backup version.
type FileUpdate struct {
	Backup snapshot.File
	Local  snapshot.File
	Patch  string
}

// FilesDiff classifies files by sanitized name. Buckets are created
// lazily, so an untouched bucket stays nil.
type FilesDiff struct {
	Added   map[string]snapshot.File
	Updated map[string]FileUpdate
	Deleted map[string]snapshot.File
}

func (d *FilesDiff) empty() bool {
	return d == nil || len(d.Added)+len(d.Updated)+len(d.Deleted) == 0
}

// Result is the full classified difference between two snapshots. A nil
// category means the category was absent from both snapshots; a non-nil
// category with no entries means both sides carried it and it matched.
// Empty treats the two the same.
type Result struct {
	Settings *SettingsDiff
	Packages *PackagesDiff
	Files    *FilesDiff
}

// Empty reports whether the two snapshots were equivalent.
func (r *Result) Empty() bool {
	return r.Settings.empty() && r.Packages.empty() && r.Files.empty()
}

// Diff classifies the changes that restoring backup over local would
// make. live may be nil, in which case updated settings fall back to the
// snapshot value for OldValue.
func Diff(local, backup *snapshot.Snapshot, live LiveConfig) (*Result, error) {
	res := &Result{
		Packages: diffPackages(local.Packages, backup.Packages),
	}

	settings, err := diffSettings(local.Settings, backup.Settings, live)
	if err != nil {
		return nil, err
	}

	res.Settings = settings

	files, err := diffFiles(local.Files, backup.Files)
	if err != nil {
		return nil, err
	}

	res.Files = files

	return res, nil
}

func diffSettings(local, backup map[string]snapshot.Value, live LiveConfig) (*SettingsDiff, error) {
	if local == nil && backup == nil {
		return nil, nil
	}

	d := &SettingsDiff{}

	for _, sel := range scopeUnion(local, backup) {
		prefix := ""
		if sel != snapshot.GlobalScope {
			prefix = sel
		}

		isGlobal := sel == snapshot.GlobalScope

		localTree, inLocal := local[sel]
		backupTree, inBackup := backup[sel]

		switch {
		case !inLocal:
			flatten(backupTree, prefix, func(keyPath string, v snapshot.Value) {
				d.Added = append(d.Added, SettingChange{KeyPath: keyPath, Value: v.Interface()})
			})
		case !inBackup:
			flatten(localTree, prefix, func(keyPath string, v snapshot.Value) {
				d.Deleted = append(d.Deleted, SettingChange{KeyPath: keyPath, Value: v.Interface()})
			})
		default:
			walkSettings(d, localTree, backupTree, prefix, isGlobal, live)
		}
	}

	return d, nil
}

// scopeUnion returns every scope selector present on either side, in
// sorted order.
func scopeUnion(local, backup map[string]snapshot.Value) []string {
	seen := make(map[string]struct{}, len(local)+len(backup))

	for sel := range local {
		seen[sel] = struct{}{}
	}

	for sel := range backup {
		seen[sel] = struct{}{}
	}

	scopes := make([]string, 0, len(seen))
	for sel := range seen {
		scopes = append(scopes, sel)
	}

	sort.Strings(scopes)

	return scopes
}

// walkSettings descends both trees in lockstep, classifying at the level
// where the shapes or leaf values diverge.
func walkSettings(d *SettingsDiff, local, backup snapshot.Value, prefix string, isGlobal bool, live LiveConfig) {
	for _, key := range backup.Keys() {
		keyPath := joinKeyPath(prefix, key)
		backupChild := backup.Children[key]

		localChild, ok := local.Children[key]
		if !ok {
			flatten(backupChild, keyPath, func(kp string, v snapshot.Value) {
				d.Added = append(d.Added, SettingChange{KeyPath: kp, Value: v.Interface()})
			})

			continue
		}

		if localChild.IsMap() && backupChild.IsMap() {
			walkSettings(d, localChild, backupChild, keyPath, isGlobal, live)
			continue
		}

		localValue := localChild.Interface()
		backupValue := backupChild.Interface()

		if reflect.DeepEqual(localValue, backupValue) {
			continue
		}

		old := localValue
		if isGlobal && live != nil {
			old = live.Get(keyPath)
		}

		d.Updated = append(d.Updated, SettingChange{
			KeyPath:  keyPath,
			Value:    backupValue,
			OldValue: old,
		})
	}

	for _, key := range local.Keys() {
		if _, ok := backup.Children[key]; ok {
			continue
		}

		flatten(local.Children[key], joinKeyPath(prefix, key), func(kp string, v snapshot.Value) {
			d.Deleted = append(d.Deleted, SettingChange{KeyPath: kp, Value: v.Interface()})
		})
	}
}

// flatten visits every leaf under node in sorted key order, reporting
// dot-joined key paths rooted at prefix.
func flatten(node snapshot.Value, prefix string, visit func(keyPath string, v snapshot.Value)) {
	if !node.IsMap() {
		visit(prefix, node)
		return
	}

	for _, key := range node.Keys() {
		flatten(node.Children[key], joinKeyPath(prefix, key), visit)
	}
}

func joinKeyPath(prefix, key string) string {
	if prefix == "" {
		return key
	}

	return prefix + "." + key
}

func diffPackages(local, backup map[string]snapshot.Package) *PackagesDiff {
	if local == nil && backup == nil {
		return nil
	}

	d := &PackagesDiff{
		Added:   make(map[string]snapshot.Package),
		Updated: make(map[string]PackageUpdate),
		Deleted: make(map[string]snapshot.Package),
	}

	for name, backupPkg := range backup {
		localPkg, ok := local[name]
		if !ok {
			d.Added[name] = backupPkg
			continue
		}

		if !packagesEquivalent(localPkg, backupPkg) {
			d.Updated[name] = PackageUpdate{Backup: backupPkg, Local: localPkg}
		}
	}

	for name, localPkg := range local {
		if _, ok := backup[name]; !ok {
			d.Deleted[name] = localPkg
		}
	}

	return d
}

// packagesEquivalent compares two descriptors for the same name. A
// mismatch in whether an install source is recorded is itself a
// difference, even at the same version.
func packagesEquivalent(a, b snapshot.Package) bool {
	if (a.InstallSource == "") != (b.InstallSource == "") {
		return false
	}

	return a.Version == b.Version && a.Theme == b.Theme && a.InstallSource == b.InstallSource
}

func diffFiles(local, backup map[string]snapshot.File) (*FilesDiff, error) {
	if local == nil && backup == nil {
		return nil, nil
	}

	d := &FilesDiff{}

	for name, backupFile := range backup {
		localFile, ok := local[name]
		if !ok {
			if d.Added == nil {
				d.Added = make(map[string]snapshot.File)
			}

			d.Added[name] = backupFile

			continue
		}

		if localFile.Content == backupFile.Content {
			continue
		}

		patch, err := unifiedPatch(name, localFile.Content, backupFile.Content)
		if err != nil {
			return nil, err
		}

		if d.Updated == nil {
			d.Updated = make(map[string]FileUpdate)
		}

		d.Updated[name] = FileUpdate{Backup: backupFile, Local: localFile, Patch: patch}
	}

	for name, localFile := range local {
		if _, ok := backup[name]; ok {
			continue
		}

		if d.Deleted == nil {
			d.Deleted = make(map[string]snapshot.File)
		}

		d.Deleted[name] = localFile
	}

	return d, nil
}

// unifiedPatch renders the local-to-backup change for one file as a
// unified diff.
func unifiedPatch(name, localContent, backupContent string) (string, error) {
	patch, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(localContent),
		B:        difflib.SplitLines(backupContent),
		FromFile: "local/" + name,
		ToFile:   "backup/" + name,
		Context:  patchContextLines,
	})
	if err != nil {
		return "", fmt.Errorf("rendering patch for %s: %w", name, err)
	}

	return patch, nil
}
