package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/confsync/confsync/internal/syncer"
)

var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)

		// Configuration errors get setup guidance and a distinct exit
		// code so wrappers can tell "not set up" from "failed".
		switch {
		case errors.Is(err, syncer.ErrMissingToken):
			fmt.Fprintln(os.Stderr, "set GITHUB_TOKEN to a personal access token with the gist scope")
			os.Exit(2)
		case errors.Is(err, syncer.ErrMissingGistID):
			fmt.Fprintln(os.Stderr, "set GIST_ID to your backup gist, or run 'confsync create' to make one")
			os.Exit(2)
		}

		os.Exit(1)
	}
}
