package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/confsync/confsync/internal/config"
	"github.com/confsync/confsync/internal/gist"
	"github.com/confsync/confsync/internal/host"
	"github.com/confsync/confsync/internal/logging"
	"github.com/confsync/confsync/internal/state"
	"github.com/confsync/confsync/internal/syncer"
)

const httpTimeout = 30 * time.Second

// app holds the wired collaborators shared by all subcommands.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	st     *state.State
	store  *host.ConfigStore
	sync   *syncer.Syncer
}

// newApp loads configuration and wires the syncer and its
// collaborators.
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment)

	st, err := state.Load()
	if err != nil {
		return nil, err
	}

	dir := host.NewConfDir(cfg.EditorHome)

	store, err := host.NewConfigStore(dir, logger)
	if err != nil {
		st.Close()
		return nil, err
	}

	packages := host.NewPackageManager(cfg)

	client := gist.NewClient(cfg.PersonalAccessToken, &http.Client{Timeout: httpTimeout})

	notify := &host.LogNotifier{Logger: logger}

	return &app{
		cfg:    cfg,
		logger: logger,
		st:     st,
		store:  store,
		sync:   syncer.New(cfg, store, packages, dir, client, st, notify, logger),
	}, nil
}

func (a *app) close() {
	if err := a.st.Close(); err != nil {
		a.logger.Warn("closing state db", slog.String("error", err.Error()))
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "confsync",
		Short:         "Sync editor settings, packages, and user files through a gist",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newBackupCmd(),
		newRestoreCmd(),
		newCheckCmd(),
		newCreateCmd(),
		newForkCmd(),
		newDeleteCmd(),
	)

	return root
}
