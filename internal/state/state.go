// Package state persists per-machine sync bookkeeping: the bound gist
// ID, the last-restored revision timestamp, and the content signature of
// the last backup.
package state

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	// stateDirPerm is the permission mode for the state directory (~/.confsync/).
	stateDirPerm = fs.FileMode(0o700)

	// stateFilePerm is the permission mode for the state database file.
	stateFilePerm = fs.FileMode(0o600)

	// stateOpenTimeout is the maximum time to wait for the bolt database lock.
	stateOpenTimeout = 5 * time.Second
)

var (
	appBucket         = []byte("app")
	gistIDKey         = []byte("gist_id")
	lastBackupTimeKey = []byte("last_backup_time")
	lastBackupHashKey = []byte("last_backup_hash")
)

// State wraps a bbolt database for all persistent application state.
type State struct {
	db *bolt.DB
}

// Load opens the state database at ~/.confsync/state.db, creating it if
// it does not exist. The app bucket is created on open.
func Load() (*State, error) {
	return LoadAt(dbPath())
}

// LoadAt opens a state database at the given path, creating it if it
// does not exist. Useful for tests that need an isolated database.
func LoadAt(path string) (*State, error) {
	if err := os.MkdirAll(filepath.Dir(path), stateDirPerm); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := bolt.Open(path, stateFilePerm, &bolt.Options{Timeout: stateOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(appBucket)

		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing state db: %w", err)
	}

	return &State{db: db}, nil
}

// Close closes the database.
func (s *State) Close() error {
	return s.db.Close()
}

// GistID returns the bound backup gist ID, or empty string.
func (s *State) GistID() string {
	return s.getString(gistIDKey)
}

// SetGistID persists the bound backup gist ID.
func (s *State) SetGistID(id string) error {
	return s.putString(gistIDKey, id)
}

// LastBackupTime returns the committed-at timestamp of the revision this
// machine last restored or produced. Zero time if never synced.
func (s *State) LastBackupTime() time.Time {
	v := s.getString(lastBackupTimeKey)
	if v == "" {
		return time.Time{}
	}

	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}
	}

	return t
}

// SetLastBackupTime persists the revision timestamp.
func (s *State) SetLastBackupTime(t time.Time) error {
	return s.putString(lastBackupTimeKey, t.UTC().Format(time.RFC3339))
}

// LastBackupHash returns the content signature of the last backup this
// machine produced, or empty string.
func (s *State) LastBackupHash() string {
	return s.getString(lastBackupHashKey)
}

// SetLastBackupHash persists the backup content signature.
func (s *State) SetLastBackupHash(hash string) error {
	return s.putString(lastBackupHashKey, hash)
}

func (s *State) getString(key []byte) string {
	var out string

	_ = s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(appBucket).Get(key)
		if v != nil {
			out = string(v)
		}

		return nil
	})

	return out
}

func (s *State) putString(key []byte, value string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(appBucket).Put(key, []byte(value))
	})
}

func dbPath() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		// Fail loudly rather than silently writing to the current directory
		// where the database might end up inside a source-controlled tree.
		fmt.Fprintf(os.Stderr, "fatal: cannot determine home directory: %v\n", err)
		os.Exit(1)
	}

	return filepath.Join(dir, ".confsync", "state.db")
}
