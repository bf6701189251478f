package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/lorastudio/internal/core/domain"
)

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Inspect evaluation reports",
}

var evalShowCmd = &cobra.Command{
	Use:   "show [run-id]",
	Short: "Show the latest evaluation report for a run",
	Args:  cobra.ExactArgs(1),
	RunE:  runEvalShow,
}

var evalShowFailures bool

func init() {
	evalShowCmd.Flags().BoolVar(&evalShowFailures, "failures", false, "Print failure examples")

	evalCmd.AddCommand(evalShowCmd)
	rootCmd.AddCommand(evalCmd)
}

func runEvalShow(cmd *cobra.Command, args []string) error {
	if evaluationService == nil {
		return errors.New("evaluation service not configured")
	}
	tenant, project, err := scope()
	if err != nil {
		return err
	}

	reports, err := evaluationService.ReportsForRun(cmd.Context(), tenant, project, args[0])
	if err != nil {
		return fmt.Errorf("failed to get reports: %w", err)
	}
	if len(reports) == 0 {
		return domain.NewNotFoundError("evaluation report", args[0])
	}

	printReport(cmd, &reports[0])
	return nil
}

func printReport(cmd *cobra.Command, r *domain.EvaluationReport) {
	m := r.Metrics
	verdict := "NO-GO"
	if r.GoNoGo {
		verdict = "GO"
	}

	cmd.Printf("Evaluation: %s (run %s)\n\n", r.ID, r.RunID)
	cmd.Printf("  Verdict:     %s\n", verdict)
	cmd.Printf("  Predictor:   %s\n", r.Predictor)
	cmd.Printf("  Gold rows:   %d\n", m.GoldExamples)
	cmd.Println()
	cmd.Printf("  Exact match:          %.4f\n", m.ExactMatch)
	cmd.Printf("  Fuzzy match:          %.4f\n", m.FuzzyMatch)
	cmd.Printf("  Semantic similarity:  %.4f\n", m.SemanticSimilarity)
	cmd.Printf("  Refusal precision:    %.4f\n", m.RefusalPrecision)
	cmd.Printf("  Refusal recall:       %.4f\n", m.RefusalRecall)
	cmd.Printf("  Unsupported claims:   %.4f\n", m.UnsupportedClaimRate)
	cmd.Printf("  Latency:              %d ms\n", m.LatencyMS)
	cmd.Printf("  Tokens per second:    %.2f\n", m.TokensPerSecond)
	if m.RegressionDelta != nil {
		cmd.Printf("  Regression delta:     %+.4f\n", *m.RegressionDelta)
	}
	if r.ReportPath != "" {
		cmd.Printf("\n  Report file: %s\n", r.ReportPath)
	}

	if !evalShowFailures {
		if len(r.Failures) > 0 {
			cmd.Printf("\n%d failures (use --failures to list)\n", len(r.Failures))
		}
		return
	}
	for i, f := range r.Failures {
		cmd.Printf("\n  [%d] %s\n", i+1, f.Notes)
		cmd.Printf("      Prompt:   %s\n", f.Prompt)
		cmd.Printf("      Expected: %s\n", f.Expected)
		cmd.Printf("      Answer:   %s\n", f.Answer)
	}
}
