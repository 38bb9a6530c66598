package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/confsync/confsync/internal/batch"
	"github.com/confsync/confsync/internal/diffengine"
	"github.com/confsync/confsync/internal/snapshot"
)

// Restore applies the latest backup to the local machine: settings are
// written by scope, missing and outdated packages are installed with
// bounded concurrency, and backed-up files are written into the
// configuration directory. Package failures are reported but never stop
// the rest of the restore.
func (s *Syncer) Restore(ctx context.Context) error {
	g, err := s.fetchBackup(ctx)
	if err != nil {
		return err
	}

	backup, err := s.remoteSnapshot(g)
	if err != nil {
		return err
	}

	local, err := s.localSnapshot()
	if err != nil {
		return err
	}

	res, err := diffengine.Diff(local, backup, s.store)
	if err != nil {
		return err
	}

	latest, err := g.LatestRevision()
	if err != nil {
		return err
	}

	if res.Empty() {
		if err := s.st.SetLastBackupTime(latest.CommittedAt); err != nil {
			return fmt.Errorf("recording backup revision: %w", err)
		}

		s.notify.Success("latest backup is already applied")

		return nil
	}

	if err := s.restoreFiles(res.Files); err != nil {
		return err
	}

	if backup.Settings != nil {
		if err := s.restoreSettings(backup.Settings); err != nil {
			return err
		}
	}

	s.restorePackages(ctx, res.Packages)

	if err := s.st.SetLastBackupTime(latest.CommittedAt); err != nil {
		return fmt.Errorf("recording backup revision: %w", err)
	}

	s.notify.Success("settings restored from backup")

	return nil
}

// restoreSettings writes every leaf of the backup settings into the
// store, scope by scope. Blacklisted key paths are re-seeded from the
// live configuration first, so a backup produced before a key was
// blacklisted can never overwrite the local value.
func (s *Syncer) restoreSettings(settings map[string]snapshot.Value) error {
	for sel, tree := range settings {
		if !tree.IsMap() {
			continue
		}

		if sel == snapshot.GlobalScope {
			s.reseedBlacklist(tree)
		}

		var firstErr error

		walkLeaves(tree, "", func(keyPath string, leaf snapshot.Value) {
			if err := s.store.Set(keyPath, leaf.Interface(), sel); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("applying setting %s: %w", keyPath, err)
			}
		})

		if firstErr != nil {
			return firstErr
		}
	}

	return nil
}

// reseedBlacklist replaces blacklisted key paths in the backup tree with
// the live local values, or removes them when unset locally.
func (s *Syncer) reseedBlacklist(tree snapshot.Value) {
	for _, keyPath := range snapshot.Blacklist(s.cfg) {
		if live := s.store.Get(keyPath); live != nil {
			tree.Put(keyPath, snapshot.FromJSON(live))
			continue
		}

		tree.Delete(keyPath)
	}
}

func walkLeaves(node snapshot.Value, prefix string, visit func(keyPath string, leaf snapshot.Value)) {
	if !node.IsMap() {
		visit(prefix, node)
		return
	}

	for _, key := range node.Keys() {
		keyPath := key
		if prefix != "" {
			keyPath = prefix + "." + key
		}

		walkLeaves(node.Children[key], keyPath, visit)
	}
}

// restorePackages installs added and updated packages and, when removing
// obsolete packages is enabled, uninstalls packages absent from the
// backup.
func (s *Syncer) restorePackages(ctx context.Context, d *diffengine.PackagesDiff) {
	if d == nil {
		return
	}

	var items []batch.Item

	for name, pkg := range d.Added {
		items = append(items, installItem(s.packages, name, pkg))
	}

	for name, upd := range d.Updated {
		items = append(items, installItem(s.packages, name, upd.Backup))
	}

	if s.cfg.RemoveObsoletePackages {
		for name, pkg := range d.Deleted {
			items = append(items, batch.Func{
				ItemName: "uninstall " + name,
				Do: func(ctx context.Context) error {
					return s.packages.Uninstall(ctx, pkg)
				},
			})
		}
	}

	if len(items) == 0 {
		return
	}

	summary, errs := batch.Run(ctx, items, 0, &logReporter{logger: s.logger})

	if len(summary.Failed) > 0 {
		for name, err := range errs {
			s.logger.Warn("package operation failed",
				slog.String("item", name),
				slog.String("error", err.Error()),
			)
		}

		s.notify.Warn("some package operations failed: " + strings.Join(summary.Failed, ", "))
	}
}

func installItem(pm snapshot.PackageManager, name string, pkg snapshot.Package) batch.Item {
	return batch.Func{
		ItemName: "install " + name,
		Do: func(ctx context.Context) error {
			return pm.Install(ctx, pkg)
		},
	}
}

// restoreFiles removes local files absent from the backup when removing
// unfamiliar files is enabled, then writes every added and updated file.
func (s *Syncer) restoreFiles(d *diffengine.FilesDiff) error {
	if d == nil {
		return nil
	}

	if s.cfg.RemoveUnfamiliarFiles {
		for name := range d.Deleted {
			rel := snapshot.RestoreName(name)

			if err := s.dir.DeleteFile(rel); err != nil {
				return fmt.Errorf("removing %s: %w", rel, err)
			}

			s.logger.Info("removed unfamiliar file", slog.String("file", rel))
		}
	}

	write := func(name string, file snapshot.File) error {
		rel := snapshot.RestoreName(name)

		if err := s.dir.WriteFile(rel, []byte(file.Content)); err != nil {
			return fmt.Errorf("writing %s: %w", rel, err)
		}

		return nil
	}

	for name, file := range d.Added {
		if err := write(name, file); err != nil {
			return err
		}
	}

	for name, upd := range d.Updated {
		if err := write(name, upd.Backup); err != nil {
			return err
		}
	}

	return nil
}

// logReporter reports batch progress through the structured logger.
type logReporter struct {
	logger *slog.Logger
}

func (r *logReporter) ItemStarted(name string) {
	r.logger.Debug("starting", slog.String("item", name))
}

func (r *logReporter) ItemFinished(name string, err error) {
	if err != nil {
		r.logger.Debug("failed", slog.String("item", name), slog.String("error", err.Error()))
		return
	}

	r.logger.Debug("finished", slog.String("item", name))
}

func (r *logReporter) BatchFinished(succeeded, failed []string) {
	r.logger.Info("package operations complete",
		slog.Int("succeeded", len(succeeded)),
		slog.Int("failed", len(failed)),
	)
}
