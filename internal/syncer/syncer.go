// Package syncer orchestrates the sync operations: comparing, backing
// up, restoring, and managing the backup gist lifecycle.
package syncer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sort"

	"github.com/confsync/confsync/internal/config"
	"github.com/confsync/confsync/internal/gist"
	"github.com/confsync/confsync/internal/host"
	"github.com/confsync/confsync/internal/snapshot"
	"github.com/confsync/confsync/internal/state"
)

// RemoteStore is the backup gist surface the syncer depends on.
// Extracted for testability.
type RemoteStore interface {
	Create(ctx context.Context, description string, public bool, files map[string]*gist.File) (*gist.Gist, error)
	Get(ctx context.Context, id string) (*gist.Gist, error)
	Update(ctx context.Context, id, description string, files map[string]*gist.File) (*gist.Gist, error)
	Delete(ctx context.Context, id string) error
	Fork(ctx context.Context, id string) (*gist.Gist, error)
}

// Syncer runs the sync operations over the host collaborators, the
// remote store, and the persistent machine state.
type Syncer struct {
	cfg      *config.Config
	store    snapshot.ConfigStore
	packages snapshot.PackageManager
	dir      snapshot.ConfDir
	remote   RemoteStore
	st       *state.State
	notify   host.Notifier
	logger   *slog.Logger

	builder *snapshot.Builder
}

// New creates a Syncer.
func New(cfg *config.Config, store snapshot.ConfigStore, packages snapshot.PackageManager, dir snapshot.ConfDir, remote RemoteStore, st *state.State, notify host.Notifier, logger *slog.Logger) *Syncer {
	return &Syncer{
		cfg:      cfg,
		store:    store,
		packages: packages,
		dir:      dir,
		remote:   remote,
		st:       st,
		notify:   notify,
		logger:   logger,
		builder:  snapshot.NewBuilder(cfg, store, packages, dir, logger),
	}
}

// gistID resolves the backup gist ID from configuration, falling back to
// the persisted machine state.
func (s *Syncer) gistID() (string, error) {
	if s.cfg.GistID != "" {
		return s.cfg.GistID, nil
	}

	if id := s.st.GistID(); id != "" {
		return id, nil
	}

	return "", ErrMissingGistID
}

// requireToken checks that a personal access token is configured.
func (s *Syncer) requireToken() error {
	if s.cfg.PersonalAccessToken == "" {
		return ErrMissingToken
	}

	return nil
}

// fetchBackup resolves the gist ID, fetches the backup gist, and
// translates transport errors into guidance.
func (s *Syncer) fetchBackup(ctx context.Context) (*gist.Gist, error) {
	if err := s.requireToken(); err != nil {
		return nil, err
	}

	id, err := s.gistID()
	if err != nil {
		return nil, err
	}

	g, err := s.remote.Get(ctx, id)
	if err != nil {
		return nil, translateRemote(err, id)
	}

	return g, nil
}

// localSnapshot builds the local snapshot.
func (s *Syncer) localSnapshot() (*snapshot.Snapshot, error) {
	return s.builder.BuildLocal()
}

// remoteSnapshot classifies a fetched gist into a snapshot.
func (s *Syncer) remoteSnapshot(g *gist.Gist) (*snapshot.Snapshot, error) {
	blobs, err := g.Blobs()
	if err != nil {
		return nil, err
	}

	return snapshot.Classify(blobs, s.cfg, s.dir, s.packages.IsBundled, s.logger)
}

// contentHash computes a stable signature over a blob set, used to skip
// backups whose content matches the previous one.
func contentHash(blobs map[string]string) string {
	names := make([]string, 0, len(blobs))
	for name := range blobs {
		names = append(names, name)
	}

	sort.Strings(names)

	h := sha256.New()

	for _, name := range names {
		h.Write([]byte(name))
		h.Write([]byte{0})
		h.Write([]byte(blobs[name]))
		h.Write([]byte{0})
	}

	return hex.EncodeToString(h.Sum(nil))
}
