package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/custodia-labs/lorastudio/internal/core/domain"
	"github.com/custodia-labs/lorastudio/internal/core/ports/driving"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Manage training runs",
	Long: `Create, inspect, cancel and retry LoRA training runs.

A run moves through queued, preflight, staging, training, evaluating and
packaging to ready. Failed and cancelled runs can be retried.`,
}

var runEstimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Estimate VRAM for a training config",
	Args:  cobra.NoArgs,
	RunE:  runEstimate,
}

var runCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Queue a training run",
	Long: `Queues a training run for a dataset version and approved base model.

The run is admitted only when the client confirms rights to the data, the
tenant is under its monthly run quota and the VRAM estimate fits.`,
	Args: cobra.NoArgs,
	RunE: runCreate,
}

var runListCmd = &cobra.Command{
	Use:   "list",
	Short: "List training runs",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var runGetCmd = &cobra.Command{
	Use:   "get [run-id]",
	Short: "Show run info",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

var runEventsCmd = &cobra.Command{
	Use:   "events [run-id]",
	Short: "Show a run's transition log",
	Args:  cobra.ExactArgs(1),
	RunE:  runEvents,
}

var runCancelCmd = &cobra.Command{
	Use:   "cancel [run-id]",
	Short: "Cancel a run",
	Long:  `Cancels a run that has not finished. A run in progress stops at its next stage boundary.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runCancel,
}

var runRetryCmd = &cobra.Command{
	Use:   "retry [run-id]",
	Short: "Re-queue a failed or cancelled run",
	Args:  cobra.ExactArgs(1),
	RunE:  runRetry,
}

var runProcessCmd = &cobra.Command{
	Use:   "process",
	Short: "Claim and drive the oldest queued run",
	Args:  cobra.NoArgs,
	RunE:  runProcess,
}

var (
	estimateModel  string
	estimateConfig = domain.DefaultTrainingConfig()

	createDataset       string
	createModel         string
	createRequestedBy   string
	createConfirmRights bool
	createConfig        = domain.DefaultTrainingConfig()
)

func init() {
	runEstimateCmd.Flags().StringVar(&estimateModel, "model", "", "Base model ID")
	addTrainingFlags(runEstimateCmd.Flags(), &estimateConfig)

	runCreateCmd.Flags().StringVar(&createDataset, "dataset", "", "Dataset version ID")
	runCreateCmd.Flags().StringVar(&createModel, "model", "", "Base model ID")
	runCreateCmd.Flags().StringVar(&createRequestedBy, "requested-by", "", "Requesting user ID")
	runCreateCmd.Flags().BoolVar(&createConfirmRights, "confirm-data-rights", false,
		"Confirm the client has rights to train on the data")
	addTrainingFlags(runCreateCmd.Flags(), &createConfig)

	runCmd.AddCommand(runEstimateCmd)
	runCmd.AddCommand(runCreateCmd)
	runCmd.AddCommand(runListCmd)
	runCmd.AddCommand(runGetCmd)
	runCmd.AddCommand(runEventsCmd)
	runCmd.AddCommand(runCancelCmd)
	runCmd.AddCommand(runRetryCmd)
	runCmd.AddCommand(runProcessCmd)
	rootCmd.AddCommand(runCmd)
}

func addTrainingFlags(flags *pflag.FlagSet, cfg *domain.TrainingConfig) {
	flags.IntVar(&cfg.LoRARank, "rank", cfg.LoRARank, "LoRA rank")
	flags.IntVar(&cfg.LoRAAlpha, "alpha", cfg.LoRAAlpha, "LoRA alpha")
	flags.Float64Var(&cfg.LoRADropout, "dropout", cfg.LoRADropout, "LoRA dropout")
	flags.IntVar(&cfg.SequenceLength, "seq-len", cfg.SequenceLength, "Sequence length")
	flags.IntVar(&cfg.PerDeviceBatchSize, "batch-size", cfg.PerDeviceBatchSize, "Per-device batch size")
	flags.IntVar(&cfg.GradientAccumulationSteps, "grad-accum", cfg.GradientAccumulationSteps,
		"Gradient accumulation steps")
	flags.StringVar(&cfg.Precision, "precision", cfg.Precision, "Precision (bf16, fp16, fp32)")
	flags.IntVar(&cfg.Epochs, "epochs", cfg.Epochs, "Training epochs")
	flags.IntVar(&cfg.MaxSteps, "max-steps", cfg.MaxSteps, "Maximum steps (0 means epochs decide)")
	flags.IntVar(&cfg.SaveEverySteps, "save-every", cfg.SaveEverySteps, "Checkpoint interval in steps")
	flags.BoolVar(&cfg.Use4Bit, "4bit", cfg.Use4Bit, "Load the base model in 4-bit")
}

func runEstimate(cmd *cobra.Command, _ []string) error {
	if runOrchestrator == nil {
		return errors.New("run orchestrator not configured")
	}
	if estimateModel == "" {
		return domain.NewValidationError("model", "--model is required")
	}

	est := runOrchestrator.EstimateVRAM(estimateConfig, estimateModel)

	cmd.Printf("VRAM estimate for %s\n\n", est.BaseModelID)
	cmd.Printf("  Estimated:  %.2f GB\n", est.EstimatedGB)
	cmd.Printf("  Safe limit: %.2f GB\n", est.SafeLimitGB)
	cmd.Printf("  Will fit:   %s\n", yesNo(est.WillFit))
	cmd.Printf("\n%s\n", est.Recommendation)
	return nil
}

func runCreate(cmd *cobra.Command, _ []string) error {
	if runOrchestrator == nil {
		return errors.New("run orchestrator not configured")
	}
	tenant, project, err := scope()
	if err != nil {
		return err
	}

	run, err := runOrchestrator.CreateRun(cmd.Context(), driving.CreateRunRequest{
		TenantID:            tenant,
		ProjectID:           project,
		DatasetVersionID:    createDataset,
		BaseModelID:         createModel,
		RequestedBy:         createRequestedBy,
		Config:              createConfig,
		DataRightsConfirmed: createConfirmRights,
	})
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	cmd.Printf("Run %s queued.\n\n", run.ID)
	printRun(cmd, run)
	return nil
}

func runList(cmd *cobra.Command, _ []string) error {
	if runOrchestrator == nil {
		return errors.New("run orchestrator not configured")
	}
	tenant, project, err := scope()
	if err != nil {
		return err
	}

	runs, err := runOrchestrator.ListRuns(cmd.Context(), tenant, project)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if len(runs) == 0 {
		cmd.Println("No training runs found.")
		return nil
	}

	for i := range runs {
		r := &runs[i]
		cmd.Printf("  %s  %-11s %3.0f%%  %s\n", r.ID, r.State, r.Progress*100, r.BaseModelID)
	}
	cmd.Printf("\nTotal: %d runs\n", len(runs))
	return nil
}

func runGet(cmd *cobra.Command, args []string) error {
	if runOrchestrator == nil {
		return errors.New("run orchestrator not configured")
	}
	tenant, project, err := scope()
	if err != nil {
		return err
	}

	run, err := runOrchestrator.GetRun(cmd.Context(), tenant, project, args[0])
	if err != nil {
		return fmt.Errorf("failed to get run: %w", err)
	}

	printRun(cmd, run)
	return nil
}

func runEvents(cmd *cobra.Command, args []string) error {
	if runOrchestrator == nil {
		return errors.New("run orchestrator not configured")
	}
	tenant, project, err := scope()
	if err != nil {
		return err
	}

	events, err := runOrchestrator.ListEvents(cmd.Context(), tenant, project, args[0])
	if err != nil {
		return fmt.Errorf("failed to list events: %w", err)
	}

	cmd.Printf("Events for run %s:\n\n", args[0])
	for i := range events {
		e := &events[i]
		from := string(e.FromState)
		if from == "" {
			from = "-"
		}
		cmd.Printf("  %s  %-11s -> %-11s %s\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"), from, e.ToState, e.Message)
	}
	return nil
}

func runCancel(cmd *cobra.Command, args []string) error {
	if runOrchestrator == nil {
		return errors.New("run orchestrator not configured")
	}
	tenant, project, err := scope()
	if err != nil {
		return err
	}

	run, err := runOrchestrator.CancelRun(cmd.Context(), tenant, project, args[0])
	if err != nil {
		return fmt.Errorf("failed to cancel run: %w", err)
	}

	cmd.Printf("Run %s %s.\n", run.ID, run.State)
	return nil
}

func runRetry(cmd *cobra.Command, args []string) error {
	if runOrchestrator == nil {
		return errors.New("run orchestrator not configured")
	}
	tenant, project, err := scope()
	if err != nil {
		return err
	}

	run, err := runOrchestrator.RetryRun(cmd.Context(), tenant, project, args[0])
	if err != nil {
		return fmt.Errorf("failed to retry run: %w", err)
	}

	cmd.Printf("Run %s %s.\n", run.ID, run.State)
	return nil
}

func runProcess(cmd *cobra.Command, _ []string) error {
	if runOrchestrator == nil {
		return errors.New("run orchestrator not configured")
	}

	run, err := runOrchestrator.ProcessNextQueuedRun(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to process run: %w", err)
	}
	if run == nil {
		cmd.Println("No queued runs.")
		return nil
	}

	cmd.Printf("Processed run %s.\n\n", run.ID)
	printRun(cmd, run)
	return nil
}

func printRun(cmd *cobra.Command, run *domain.TrainingRun) {
	cmd.Printf("Run: %s\n\n", run.ID)
	cmd.Printf("  State:     %s (%s)\n", run.State, run.StateMessage)
	cmd.Printf("  Progress:  %.0f%%\n", run.Progress*100)
	cmd.Printf("  Dataset:   %s\n", run.DatasetVersionID)
	cmd.Printf("  Model:     %s\n", run.BaseModelID)
	cmd.Printf("  VRAM:      %.2f GB\n", run.VRAMEstimateGB)
	if run.RequestedBy != "" {
		cmd.Printf("  Requested: %s\n", run.RequestedBy)
	}
	if run.AdapterPath != "" {
		cmd.Printf("  Adapter:   %s\n", run.AdapterPath)
	}
	if run.PackagePath != "" {
		cmd.Printf("  Package:   %s\n", run.PackagePath)
	}
	if run.EvalReportID != "" {
		cmd.Printf("  Report:    %s\n", run.EvalReportID)
	}
	if run.ErrorMessage != "" {
		cmd.Printf("  Error:     %s\n", run.ErrorMessage)
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
