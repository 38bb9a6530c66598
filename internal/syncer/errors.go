package syncer

import (
	"errors"
	"fmt"

	"github.com/confsync/confsync/internal/gist"
)

// Configuration errors surfaced with setup guidance by the CLI.
var (
	ErrMissingToken  = errors.New("no personal access token configured")
	ErrMissingGistID = errors.New("no backup gist ID configured")
)

// translateRemote rewrites transport errors into actionable guidance.
// Not-found means the configured gist ID is wrong or invisible to the
// token; unauthorized means the token itself was rejected.
func translateRemote(err error, gistID string) error {
	switch {
	case errors.Is(err, gist.ErrNotFound):
		return fmt.Errorf("backup gist %s not found, check the gist ID: %w", gistID, err)
	case errors.Is(err, gist.ErrBadCredential):
		return fmt.Errorf("personal access token rejected, check the token and its gist scope: %w", err)
	default:
		return err
	}
}
