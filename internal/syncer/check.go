package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/confsync/confsync/internal/diffengine"
)

// CheckForUpdate compares the local state against the backup and returns
// the classified difference. When the backup's latest revision matches
// the timestamp this machine recorded, the comparison short-circuits
// without building a snapshot. silent suppresses the up-to-date
// notification only; differences are always reported.
func (s *Syncer) CheckForUpdate(ctx context.Context, silent bool) (*diffengine.Result, error) {
	g, err := s.fetchBackup(ctx)
	if err != nil {
		return nil, err
	}

	latest, err := g.LatestRevision()
	if err != nil {
		return nil, err
	}

	if last := s.st.LastBackupTime(); !last.IsZero() && latest.CommittedAt.Equal(last) {
		if !silent {
			s.notify.Success("latest backup is already applied")
		}

		return &diffengine.Result{}, nil
	}

	backup, err := s.remoteSnapshot(g)
	if err != nil {
		return nil, err
	}

	local, err := s.localSnapshot()
	if err != nil {
		return nil, err
	}

	res, err := diffengine.Diff(local, backup, s.store)
	if err != nil {
		return nil, err
	}

	if res.Empty() {
		// Contents match even though the revision moved. Record the new
		// revision so future checks short-circuit.
		if err := s.st.SetLastBackupTime(latest.CommittedAt); err != nil {
			return nil, fmt.Errorf("recording backup revision: %w", err)
		}

		if !silent {
			s.notify.Success("latest backup is already applied")
		}

		return res, nil
	}

	s.notify.Info("your settings differ from the backup last modified " +
		latest.CommittedAt.Format(time.RFC1123))

	return res, nil
}
