package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/confsync/confsync/internal/diffengine"
)

func newBackupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Upload the local settings, packages, and files to the backup gist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			return a.sync.Backup(cmd.Context())
		},
	}
}

func newRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore",
		Short: "Apply the latest backup to the local machine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			return a.sync.Restore(cmd.Context())
		},
	}
}

func newCheckCmd() *cobra.Command {
	var (
		silent bool
		watch  bool
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Compare the local state against the latest backup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			check := func() error {
				res, err := a.sync.CheckForUpdate(cmd.Context(), silent)
				if err != nil {
					return err
				}

				printDiff(cmd, res)

				return nil
			}

			if err := check(); err != nil {
				return err
			}

			if !watch {
				return nil
			}

			// Re-check whenever the settings file changes, until
			// interrupted.
			return a.store.OnDidChange(cmd.Context(), func() {
				if err := check(); err != nil {
					a.logger.Warn("check failed", "error", err.Error())
				}
			})
		},
	}

	cmd.Flags().BoolVar(&silent, "silent", false, "suppress the up-to-date message")
	cmd.Flags().BoolVar(&watch, "watch", false, "keep running and re-check on settings changes")

	return cmd
}

func newCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Create a fresh backup gist from the local state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			g, err := a.sync.CreateBackup(cmd.Context())
			if err != nil {
				return err
			}

			cmd.Println(g.HTMLURL)

			return nil
		},
	}
}

func newForkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fork <gist-id>",
		Short: "Fork someone else's backup gist into your account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			g, err := a.sync.Fork(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			cmd.Println(g.ID)

			return nil
		},
	}
}

func newDeleteCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete the backup gist and forget it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return fmt.Errorf("deleting the backup gist is irreversible, re-run with --yes to confirm")
			}

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			return a.sync.DeleteBackup(cmd.Context())
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")

	return cmd
}

// printDiff renders a classified difference on the command's stdout.
func printDiff(cmd *cobra.Command, res *diffengine.Result) {
	if res.Empty() {
		return
	}

	if d := res.Settings; d != nil {
		printSettings(cmd, "added", d.Added)
		printSettings(cmd, "updated", d.Updated)
		printSettings(cmd, "deleted", d.Deleted)
	}

	if d := res.Packages; d != nil {
		for _, name := range sortedKeys(d.Added) {
			pkg := d.Added[name]
			cmd.Printf("package added:   %s@%s\n", name, pkg.Version)
		}

		for _, name := range sortedKeys(d.Updated) {
			upd := d.Updated[name]
			cmd.Printf("package updated: %s %s -> %s\n", name, upd.Local.Version, upd.Backup.Version)
		}

		for _, name := range sortedKeys(d.Deleted) {
			pkg := d.Deleted[name]
			cmd.Printf("package deleted: %s@%s\n", name, pkg.Version)
		}
	}

	if d := res.Files; d != nil {
		for _, name := range sortedKeys(d.Added) {
			cmd.Printf("file added:   %s\n", name)
		}

		for _, name := range sortedKeys(d.Updated) {
			cmd.Printf("file updated: %s\n%s", name, d.Updated[name].Patch)
		}

		for _, name := range sortedKeys(d.Deleted) {
			cmd.Printf("file deleted: %s\n", name)
		}
	}
}

func printSettings(cmd *cobra.Command, label string, changes []diffengine.SettingChange) {
	for _, ch := range changes {
		if label == "updated" {
			cmd.Printf("setting %s: %s = %v (was %v)\n", label, ch.KeyPath, ch.Value, ch.OldValue)
			continue
		}

		cmd.Printf("setting %s: %s = %v\n", label, ch.KeyPath, ch.Value)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
