package snapshot

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/tidwall/gjson"

	"github.com/confsync/confsync/internal/config"
)

// ParseError reports malformed JSON in a structured backup blob. It
// aborts classification entirely: no partial snapshot is produced and the
// enclosing restore or comparison must stop.
type ParseError struct {
	Blob string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing backup blob %s: %v", e.Blob, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Classify maps each named text blob from a backup to its semantic slot
// and assembles the remote snapshot: the settings slot, the packages slot
// (mapping or legacy array form), the aliased well-known file slots, and
// extra files matched by name or glob. Unrecognized blobs are logged and
// skipped. isBundled may be nil, disabling the community-only filter.
func Classify(blobs map[string]string, cfg *config.Config, dir ConfDir, isBundled func(string) bool, logger *slog.Logger) (*Snapshot, error) {
	snap := &Snapshot{}
	files := make(map[string]File)

	names := make([]string, 0, len(blobs))
	for name := range blobs {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		content := blobs[name]

		switch name {
		case SettingsBlob:
			if !cfg.SyncSettings {
				continue
			}

			settings, err := parseSettings(content)
			if err != nil {
				return nil, &ParseError{Blob: name, Err: err}
			}

			snap.Settings = settings

		case PackagesBlob:
			if !cfg.SyncPackages && !cfg.SyncThemes {
				continue
			}

			packages, err := parsePackages(content)
			if err != nil {
				return nil, &ParseError{Blob: name, Err: err}
			}

			snap.Packages = filterPackages(packages, cfg, isBundled)

		default:
			if wk, ok := wellKnownByName(name); ok {
				if !wk.enabled(cfg) {
					continue
				}

				if err := addBlobFile(files, name, content, dir); err != nil {
					return nil, err
				}

				continue
			}

			include, err := extraBlobIncluded(name, cfg)
			if err != nil {
				return nil, err
			}

			if !include {
				logger.Debug("skipping unrecognized backup blob", slog.String("blob", name))
				continue
			}

			if err := addBlobFile(files, name, content, dir); err != nil {
				return nil, err
			}
		}
	}

	if len(files) > 0 {
		snap.Files = files
	}

	return snap, nil
}

// parseSettings decodes the scope-keyed settings blob into Value trees.
func parseSettings(content string) (map[string]Value, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, err
	}

	settings := make(map[string]Value, len(raw))
	for sel, tree := range raw {
		settings[sel] = FromJSON(tree)
	}

	return settings, nil
}

// parsePackages decodes the packages blob. Current backups store a
// mapping by name; legacy ones store an array of descriptors with a name
// field. Both normalize to the mapping form.
func parsePackages(content string) (map[string]Package, error) {
	if gjson.Parse(content).IsArray() {
		var list []Package
		if err := json.Unmarshal([]byte(content), &list); err != nil {
			return nil, err
		}

		out := make(map[string]Package, len(list))
		for _, pkg := range list {
			out[pkg.Name] = pkg
		}

		return out, nil
	}

	var out map[string]Package
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return nil, err
	}

	// Descriptors keyed by name may omit the redundant name field.
	for name, pkg := range out {
		if pkg.Name == "" {
			pkg.Name = name
			out[name] = pkg
		}
	}

	return out, nil
}

// filterPackages applies the enabled-category and community-only filters
// to a parsed package mapping.
func filterPackages(packages map[string]Package, cfg *config.Config, isBundled func(string) bool) map[string]Package {
	out := make(map[string]Package, len(packages))

	for name, pkg := range packages {
		if pkg.Theme && !cfg.SyncThemes {
			continue
		}

		if !pkg.Theme && !cfg.SyncPackages {
			continue
		}

		if cfg.OnlyCommunityPackages && isBundled != nil && isBundled(name) {
			continue
		}

		out[name] = pkg
	}

	return out
}

// wellKnownByName matches a blob name against the current or legacy name
// of each well-known file slot.
func wellKnownByName(name string) (wellKnownFile, bool) {
	for _, wk := range wellKnownFiles {
		if name == wk.primary || name == wk.legacy {
			return wk, true
		}
	}

	return wellKnownFile{}, false
}

// extraBlobIncluded reports whether an unrecognized blob name, restored
// to a relative path, is covered by the extra-file configuration.
func extraBlobIncluded(name string, cfg *config.Config) (bool, error) {
	rel := RestoreName(name)

	for _, extra := range cfg.ExtraFiles {
		if rel == extra {
			return true, nil
		}
	}

	matched := false

	for _, pattern := range cfg.ExtraFilesGlob {
		ok, err := doublestar.Match(pattern, rel)
		if err != nil {
			return false, fmt.Errorf("matching glob %q: %w", pattern, err)
		}

		if ok {
			matched = true
			break
		}
	}

	if !matched {
		return false, nil
	}

	for _, pattern := range cfg.IgnoreFilesGlob {
		ok, err := doublestar.Match(pattern, rel)
		if err != nil {
			return false, fmt.Errorf("matching ignore glob %q: %w", pattern, err)
		}

		if ok {
			return false, nil
		}
	}

	return true, nil
}

func addBlobFile(files map[string]File, name, content string, dir ConfDir) error {
	abs, err := dir.Abs(RestoreName(name))
	if err != nil {
		return err
	}

	files[name] = File{Path: abs, Content: content}

	return nil
}
