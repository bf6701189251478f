package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/lorastudio/internal/logger"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the background run poller",
	Long: `Polls for queued training runs and drives each one to ready or failed.

Runs until interrupted. With --once a single cycle is executed and its
result printed. Several workers may share one data directory; each queued
run is claimed by exactly one of them.`,
	Args: cobra.NoArgs,
	RunE: runWorker,
}

var workerHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent poller cycles",
	Args:  cobra.NoArgs,
	RunE:  runWorkerHistory,
}

var inboxCmd = &cobra.Command{
	Use:   "inbox",
	Short: "Watch the inbox directory and ingest new files",
	Long: `Ingests files already in the configured inbox directory, then watches it
for new or rewritten files until interrupted. The inbox, tenant and project
are set in the [inbox] section of the config file.`,
	Args: cobra.NoArgs,
	RunE: runInbox,
}

var (
	workerOnce   bool
	historyLimit int
)

func init() {
	workerCmd.Flags().BoolVar(&workerOnce, "once", false, "Run a single poll cycle and exit")
	workerHistoryCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of cycles to show")

	workerCmd.AddCommand(workerHistoryCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(inboxCmd)
}

func runWorker(cmd *cobra.Command, _ []string) error {
	if runPoller == nil {
		return errors.New("run poller not configured")
	}
	ctx := cmd.Context()

	if workerOnce {
		cycle := runPoller.RunOnce(ctx)
		if !cycle.Success {
			return fmt.Errorf("poll cycle failed: %s", cycle.Error)
		}
		cmd.Printf("Processed %d runs in %s.\n", cycle.Processed(), cycle.Duration())
		for _, id := range cycle.RunIDs {
			cmd.Printf("  %s\n", id)
		}
		return nil
	}

	cmd.Println("Worker started. Press Ctrl+C to stop.")
	err := runPoller.Start(ctx)
	if stopErr := runPoller.Stop(); stopErr != nil {
		logger.Warn("worker stop", "error", stopErr)
	}
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("worker failed: %w", err)
	}
	cmd.Println("Worker stopped.")
	return nil
}

func runWorkerHistory(cmd *cobra.Command, _ []string) error {
	if runPoller == nil {
		return errors.New("run poller not configured")
	}

	cycles, err := runPoller.History(cmd.Context(), historyLimit)
	if err != nil {
		return fmt.Errorf("failed to get history: %w", err)
	}

	if len(cycles) == 0 {
		cmd.Println("No poller history.")
		return nil
	}

	for i := range cycles {
		c := &cycles[i]
		status := "ok"
		if !c.Success {
			status = "failed: " + c.Error
		}
		cmd.Printf("  %s  runs=%d  failed=%d  %s  %s\n",
			c.StartedAt.Format("2006-01-02 15:04:05"), c.Processed(), c.RunsFailed, c.Duration(), status)
		if len(c.RunIDs) > 0 {
			cmd.Printf("    %s\n", strings.Join(c.RunIDs, ", "))
		}
	}
	return nil
}

func runInbox(cmd *cobra.Command, _ []string) error {
	if inboxWatcher == nil {
		return errors.New("inbox not enabled; set [inbox] enabled, dir, tenant and project in the config file")
	}

	cmd.Println("Watching inbox. Press Ctrl+C to stop.")
	if err := inboxWatcher.Run(cmd.Context()); err != nil {
		return fmt.Errorf("inbox failed: %w", err)
	}
	cmd.Println("Inbox stopped.")
	return nil
}
