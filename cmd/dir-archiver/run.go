package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raoulx24/dir-archiver/internal/snapshot"
	"github.com/raoulx24/dir-archiver/internal/worker"
)

func newBackupCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Archive and upload the configured directories, then rotate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.worker.Backup(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "snapshot %s: %d archive(s) uploaded\n", res.Snapshot.ID, len(res.Artifacts))
			if res.RotationErr != nil {
				fmt.Fprintf(out, "rotation skipped: %v\n", res.RotationErr)
				return nil
			}
			fmt.Fprintf(out, "rotation: kept %d, deleted %d, failed %d\n",
				len(res.Rotation.Plan.Keep), len(res.Rotation.Deleted), len(res.Rotation.Failed))
			return nil
		},
	}
}

func newRestoreCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restore",
		Short: "Restore the configured directories from the selected snapshot",
		Long: `Restore downloads the snapshot given by --stamp, or the most recent
hourly, daily, weekly or monthly snapshot when no stamp is given, and
extracts every configured directory in place.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.worker.Restore(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if errors.Is(res.Reason, worker.ErrNoSnapshot) {
				fmt.Fprintln(out, "nothing to restore: no snapshot found")
				return nil
			}
			fmt.Fprintf(out, "restored %d director(ies) from %s\n", len(res.Restored), res.Snapshot.ID)
			return nil
		},
	}
}

func newRotateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rotate",
		Short: "Delete snapshots outside the retention policy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.worker.Rotate(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, s := range res.Deleted {
				fmt.Fprintf(out, "deleted  %s\n", s.ID)
			}
			for _, s := range res.Failed {
				fmt.Fprintf(out, "failed   %s\n", s.ID)
			}
			fmt.Fprintf(out, "kept %d, deleted %d, failed %d\n", len(res.Plan.Keep), len(res.Deleted), len(res.Failed))
			return nil
		},
	}
}

func newPlanCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Show which snapshots a rotation would keep and delete",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			plan, err := a.worker.Plan(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printSnapshots(cmd, "keep", plan.Keep)
			printSnapshots(cmd, "delete", plan.Delete)
			fmt.Fprintf(out, "policy %s: keep %d, delete %d\n", a.engine.Policy(), len(plan.Keep), len(plan.Delete))
			return nil
		},
	}
}

func printSnapshots(cmd *cobra.Command, verb string, ss []snapshot.Snapshot) {
	for _, s := range ss {
		fmt.Fprintf(cmd.OutOrStdout(), "%-7s %s\n", verb, s.ID)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "dir-archiver %s\n", version)
		},
	}
}
