package snapshot

import (
	"fmt"
	"log/slog"

	"github.com/confsync/confsync/internal/config"
)

// DefaultBlacklist lists the reserved key paths never transferred in
// either direction: the access credential, the backup identifier, and the
// last-backup bookkeeping markers. The user-configured blacklist is
// unioned with these.
var DefaultBlacklist = []string{
	"confsync.personalAccessToken",
	"confsync.gistId",
	"confsync.lastBackupHash",
	"confsync.lastBackupTime",
}

// Blacklist returns the full blacklisted key-path set for a profile.
func Blacklist(cfg *config.Config) []string {
	out := make([]string, 0, len(DefaultBlacklist)+len(cfg.BlacklistedKeys))
	out = append(out, DefaultBlacklist...)

	seen := make(map[string]struct{}, len(DefaultBlacklist))
	for _, k := range DefaultBlacklist {
		seen[k] = struct{}{}
	}

	for _, k := range cfg.BlacklistedKeys {
		if _, dup := seen[k]; dup {
			continue
		}

		seen[k] = struct{}{}
		out = append(out, k)
	}

	return out
}

// SensitiveFileError reports that the extra-files list names the editor's
// main settings file. The caller surfaces it as a warning; no snapshot is
// produced.
type SensitiveFileError struct {
	Name string
}

func (e *SensitiveFileError) Error() string {
	return fmt.Sprintf("refusing to back up sensitive file %s; it may contain credentials", e.Name)
}

// Builder constructs local snapshots from the host collaborators.
type Builder struct {
	cfg      *config.Config
	store    ConfigStore
	packages PackageManager
	dir      ConfDir
	logger   *slog.Logger
}

// NewBuilder creates a builder over the given collaborators.
func NewBuilder(cfg *config.Config, store ConfigStore, packages PackageManager, dir ConfDir, logger *slog.Logger) *Builder {
	return &Builder{
		cfg:      cfg,
		store:    store,
		packages: packages,
		dir:      dir,
		logger:   logger,
	}
}

// BuildLocal captures the local machine's configuration state for every
// enabled category. Returns a SensitiveFileError (and no snapshot) when
// the extra-files list names the main settings file and warnings are on.
func (b *Builder) BuildLocal() (*Snapshot, error) {
	snap := &Snapshot{}

	if b.cfg.SyncSettings {
		settings, err := b.captureSettings()
		if err != nil {
			return nil, err
		}

		snap.Settings = settings
	}

	if b.cfg.SyncPackages || b.cfg.SyncThemes {
		packages, err := b.capturePackages()
		if err != nil {
			return nil, err
		}

		snap.Packages = packages
	}

	files, err := b.captureFiles()
	if err != nil {
		return nil, err
	}

	// An empty files map becomes absent, never empty.
	if len(files) > 0 {
		snap.Files = files
	}

	return snap, nil
}

// captureSettings deep-clones the full scoped settings tree and strips
// every blacklisted key path from each scope.
func (b *Builder) captureSettings() (map[string]Value, error) {
	global, err := b.store.Tree()
	if err != nil {
		return nil, fmt.Errorf("reading settings tree: %w", err)
	}

	scoped, err := b.store.ScopedOverrides()
	if err != nil {
		return nil, fmt.Errorf("reading scoped settings: %w", err)
	}

	settings := make(map[string]Value, len(scoped)+1)
	settings[GlobalScope] = FromJSON(global)

	for sel, tree := range scoped {
		settings[sel] = FromJSON(tree)
	}

	blacklist := Blacklist(b.cfg)
	for _, tree := range settings {
		for _, keyPath := range blacklist {
			tree.Delete(keyPath)
		}
	}

	return settings, nil
}

// capturePackages enumerates installed packages, collapsing distinct
// names that resolve to the same real install path and filtering by the
// enabled categories. Name-to-metadata correlation failures are logged
// and skipped rather than aborting the snapshot.
func (b *Builder) capturePackages() (map[string]Package, error) {
	names, err := b.packages.InstalledNames()
	if err != nil {
		return nil, fmt.Errorf("enumerating packages: %w", err)
	}

	byPath := make(map[string]struct{}, len(names))
	out := make(map[string]Package, len(names))

	for _, name := range names {
		path, err := b.packages.ResolvePath(name)
		if err != nil {
			b.logger.Warn("skipping package, unresolvable path",
				slog.String("package", name),
				slog.String("error", err.Error()),
			)

			continue
		}

		if _, dup := byPath[path]; dup {
			b.logger.Debug("skipping package, duplicate install path",
				slog.String("package", name),
				slog.String("path", path),
			)

			continue
		}

		meta, err := b.packages.Metadata(path)
		if err != nil {
			b.logger.Warn("skipping package, unreadable metadata",
				slog.String("package", name),
				slog.String("error", err.Error()),
			)

			continue
		}

		byPath[path] = struct{}{}

		if meta.Theme && !b.cfg.SyncThemes {
			continue
		}

		if !meta.Theme && !b.cfg.SyncPackages {
			continue
		}

		if b.cfg.OnlyCommunityPackages && b.packages.IsBundled(meta.Name) {
			continue
		}

		out[meta.Name] = meta
	}

	return out, nil
}

// captureFiles gathers the enabled well-known files, the literal extra
// files, and the glob-matched extras.
func (b *Builder) captureFiles() (map[string]File, error) {
	files := make(map[string]File)

	for _, wk := range wellKnownFiles {
		if !wk.enabled(b.cfg) {
			continue
		}

		if err := b.addWellKnown(files, wk); err != nil {
			return nil, err
		}
	}

	for _, rel := range b.cfg.ExtraFiles {
		if err := b.addExtra(files, rel); err != nil {
			return nil, err
		}
	}

	matches, err := b.dir.Glob(b.cfg.ExtraFilesGlob, b.cfg.IgnoreFilesGlob)
	if err != nil {
		return nil, fmt.Errorf("expanding extra file globs: %w", err)
	}

	for _, rel := range matches {
		if err := b.addExtra(files, rel); err != nil {
			return nil, err
		}
	}

	return files, nil
}

// addWellKnown reads a well-known file under its current name, falling
// back to the legacy name. When neither is readable the primary name
// round-trips as a placeholder comment, unless removing unfamiliar files,
// in which case absence is authoritative and the file is omitted.
func (b *Builder) addWellKnown(files map[string]File, wk wellKnownFile) error {
	for _, rel := range []string{wk.primary, wk.legacy} {
		data, err := b.dir.ReadFile(rel)
		if err != nil {
			continue
		}

		abs, err := b.dir.Abs(rel)
		if err != nil {
			return err
		}

		files[SanitizeName(rel)] = File{Path: abs, Content: string(data)}

		return nil
	}

	if b.cfg.RemoveUnfamiliarFiles {
		b.logger.Debug("omitting missing file", slog.String("file", wk.primary))
		return nil
	}

	abs, err := b.dir.Abs(wk.primary)
	if err != nil {
		return err
	}

	files[SanitizeName(wk.primary)] = File{Path: abs, Content: placeholder(wk.primary)}

	return nil
}

// addExtra applies the extra-file logic to a literal name or glob match.
func (b *Builder) addExtra(files map[string]File, rel string) error {
	if rel == MainConfigFile && b.cfg.WarnSensitiveFiles {
		return &SensitiveFileError{Name: rel}
	}

	abs, err := b.dir.Abs(rel)
	if err != nil {
		return err
	}

	data, err := b.dir.ReadFile(rel)
	if err != nil {
		if b.cfg.RemoveUnfamiliarFiles {
			b.logger.Debug("omitting missing extra file", slog.String("file", rel))
			return nil
		}

		files[SanitizeName(rel)] = File{Path: abs, Content: placeholder(rel)}

		return nil
	}

	files[SanitizeName(rel)] = File{Path: abs, Content: string(data)}

	return nil
}
