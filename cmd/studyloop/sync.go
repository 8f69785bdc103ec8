package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	syncpkg "github.com/kwlin/studyloop/internal/sync"
	"github.com/kwlin/studyloop/internal/sync/trigger"
)

func newSyncCommand(a *app) *cobra.Command {
	var incremental bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run a sync pass now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if incremental {
				result, err := a.orch.PerformIncrementalSync(cmd.Context())
				if err != nil {
					return err
				}
				reportResult(cmd, result)
				return nil
			}

			result, err := a.orch.PerformSync(cmd.Context())
			if err != nil {
				return err
			}
			reportResult(cmd, result)
			if result.Outcome == syncpkg.OutcomeCompleted {
				fmt.Fprintf(out, "  %d succeeded, %d failed, %d abandoned\n",
					result.Succeeded, result.Failed, result.Abandoned)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&incremental, "incremental", false, "send only topics modified since the last incremental sync")
	return cmd
}

func reportResult(cmd *cobra.Command, result *syncpkg.Result) {
	out := cmd.OutOrStdout()
	switch result.Outcome {
	case syncpkg.OutcomeCompleted:
		if result.BackupUploaded {
			fmt.Fprintln(out, "Sync completed, backup uploaded.")
		} else {
			fmt.Fprintln(out, "Sync completed, nothing changed since the last backup.")
		}
	case syncpkg.OutcomeSkipped:
		fmt.Fprintf(out, "Sync skipped: %s\n", result.SkipReason)
	case syncpkg.OutcomeAlreadyRunning:
		fmt.Fprintln(out, "A sync pass is already running.")
	case syncpkg.OutcomeFailed:
		fmt.Fprintln(out, "Sync failed; queued operations will be retried.")
	}
}

func newStatusCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show sync status and queue depth",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			status, err := a.repo.ReadSyncStatus()
			if err != nil {
				return err
			}
			pending, err := a.repo.QueueSize()
			if err != nil {
				return err
			}
			topics, err := a.repo.CountTopics()
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "Topics:              %d\n", topics)
			fmt.Fprintf(out, "Pending operations:  %d\n", pending)
			fmt.Fprintf(out, "Last sync attempt:   %s\n", formatUnix(status.LastSyncAttemptAt))
			fmt.Fprintf(out, "Last successful sync: %s\n", formatUnix(status.LastSuccessfulSyncAt))
			if status.IsSyncing {
				fmt.Fprintln(out, "A sync pass is in progress.")
			}
			if ok, reason := a.orch.ShouldSync(cmd.Context()); !ok {
				fmt.Fprintf(out, "Sync currently blocked: %s\n", reason)
			}
			return nil
		},
	}
}

func formatUnix(sec int64) string {
	if sec == 0 {
		return "never"
	}
	return time.Unix(sec, 0).Format(time.RFC3339)
}

func newWatchCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run the background sync loop until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runner := trigger.NewRunner(a.orch, a.repo, a.log, trigger.Options{
				Interval:         a.cfg.SyncInterval(),
				ResumeStaleAfter: a.cfg.ResumeStaleAfter(),
			})
			runner.Start(cmd.Context())
			defer runner.Stop()

			// A stale process start counts as a resume.
			runner.OnForeground()

			fmt.Fprintln(cmd.OutOrStdout(), "Watching for sync triggers. Ctrl-C to stop.")
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			select {
			case <-sigCh:
			case <-cmd.Context().Done():
			}
			return nil
		},
	}
}
