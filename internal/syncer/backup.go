package syncer

import (
	"context"
	"fmt"

	"github.com/confsync/confsync/internal/diffengine"
	"github.com/confsync/confsync/internal/gist"
)

// Backup uploads the local state to the backup gist. When removing
// unfamiliar files, remote blobs the classifier recognizes but that are
// absent locally are deleted from the gist; unrecognized blobs and
// toggled-off categories are left untouched. A backup whose content
// signature matches the previous upload is skipped.
func (s *Syncer) Backup(ctx context.Context) error {
	if err := s.requireToken(); err != nil {
		return err
	}

	id, err := s.gistID()
	if err != nil {
		return err
	}

	local, err := s.localSnapshot()
	if err != nil {
		return err
	}

	blobs, err := local.Blobs()
	if err != nil {
		return err
	}

	hash := contentHash(blobs)
	if hash == s.st.LastBackupHash() {
		s.notify.Info("nothing changed since the last backup")
		return nil
	}

	files := make(map[string]*gist.File, len(blobs))
	for name, content := range blobs {
		files[name] = &gist.File{Content: content}
	}

	if s.cfg.RemoveUnfamiliarFiles {
		current, err := s.remote.Get(ctx, id)
		if err != nil {
			return translateRemote(err, id)
		}

		remote, err := s.remoteSnapshot(current)
		if err != nil {
			return err
		}

		res, err := diffengine.Diff(local, remote, s.store)
		if err != nil {
			return err
		}

		// Backup-only files get a nil entry, which marshals as null and
		// deletes the remote blob. Blobs the classifier skipped never
		// reach the diff, so they stay on the gist.
		if res.Files != nil {
			for name := range res.Files.Added {
				files[name] = nil
			}
		}
	}

	updated, err := s.remote.Update(ctx, id, s.cfg.GistDescription, files)
	if err != nil {
		return translateRemote(err, id)
	}

	if latest, err := updated.LatestRevision(); err == nil {
		if err := s.st.SetLastBackupTime(latest.CommittedAt); err != nil {
			return fmt.Errorf("recording backup revision: %w", err)
		}
	}

	if err := s.st.SetLastBackupHash(hash); err != nil {
		return fmt.Errorf("recording backup signature: %w", err)
	}

	s.notify.Success("settings backed up to gist " + id)

	return nil
}

// CreateBackup creates a fresh secret backup gist from the local state
// and binds this machine to it.
func (s *Syncer) CreateBackup(ctx context.Context) (*gist.Gist, error) {
	if err := s.requireToken(); err != nil {
		return nil, err
	}

	local, err := s.localSnapshot()
	if err != nil {
		return nil, err
	}

	blobs, err := local.Blobs()
	if err != nil {
		return nil, err
	}

	files := make(map[string]*gist.File, len(blobs))
	for name, content := range blobs {
		files[name] = &gist.File{Content: content}
	}

	g, err := s.remote.Create(ctx, s.cfg.GistDescription, false, files)
	if err != nil {
		return nil, translateRemote(err, "")
	}

	if err := s.st.SetGistID(g.ID); err != nil {
		return nil, fmt.Errorf("recording gist ID: %w", err)
	}

	if err := s.st.SetLastBackupHash(contentHash(blobs)); err != nil {
		return nil, fmt.Errorf("recording backup signature: %w", err)
	}

	if latest, err := g.LatestRevision(); err == nil {
		if err := s.st.SetLastBackupTime(latest.CommittedAt); err != nil {
			return nil, fmt.Errorf("recording backup revision: %w", err)
		}
	}

	s.notify.Success("created backup gist " + g.ID)

	return g, nil
}

// Fork copies another user's backup gist into the authenticated account
// and binds this machine to the copy.
func (s *Syncer) Fork(ctx context.Context, id string) (*gist.Gist, error) {
	if err := s.requireToken(); err != nil {
		return nil, err
	}

	g, err := s.remote.Fork(ctx, id)
	if err != nil {
		return nil, translateRemote(err, id)
	}

	if err := s.st.SetGistID(g.ID); err != nil {
		return nil, fmt.Errorf("recording gist ID: %w", err)
	}

	s.notify.Success("forked backup gist " + id + " as " + g.ID)

	return g, nil
}

// DeleteBackup removes the backup gist and clears the machine binding.
func (s *Syncer) DeleteBackup(ctx context.Context) error {
	if err := s.requireToken(); err != nil {
		return err
	}

	id, err := s.gistID()
	if err != nil {
		return err
	}

	if err := s.remote.Delete(ctx, id); err != nil {
		return translateRemote(err, id)
	}

	if err := s.st.SetGistID(""); err != nil {
		return fmt.Errorf("clearing gist ID: %w", err)
	}

	if err := s.st.SetLastBackupHash(""); err != nil {
		return fmt.Errorf("clearing backup signature: %w", err)
	}

	s.notify.Success("deleted backup gist " + id)

	return nil
}
