package cli

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/lorastudio/internal/core/domain"
	"github.com/custodia-labs/lorastudio/internal/core/ports/driving"
)

var datasetCmd = &cobra.Command{
	Use:   "dataset",
	Short: "Build and inspect dataset versions",
}

var datasetBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build a dataset version",
	Long: `Synthesizes instruction examples from the project's eligible documents,
scores them and splits them into train, validation, test and gold files.

Eligible documents are those with status ready or needs_review. Use --doc
to restrict the build to specific documents.`,
	Args: cobra.NoArgs,
	RunE: runDatasetBuild,
}

var datasetListCmd = &cobra.Command{
	Use:   "list",
	Short: "List dataset versions",
	Args:  cobra.NoArgs,
	RunE:  runDatasetList,
}

var datasetGetCmd = &cobra.Command{
	Use:   "get [dataset-id]",
	Short: "Show dataset version info",
	Args:  cobra.ExactArgs(1),
	RunE:  runDatasetGet,
}

var (
	datasetName   string
	datasetDocIDs []string
)

func init() {
	datasetBuildCmd.Flags().StringVarP(&datasetName, "name", "n", "", "Dataset version name")
	datasetBuildCmd.Flags().StringSliceVar(&datasetDocIDs, "doc", nil, "Document IDs to build from (repeatable)")

	datasetCmd.AddCommand(datasetBuildCmd)
	datasetCmd.AddCommand(datasetListCmd)
	datasetCmd.AddCommand(datasetGetCmd)
	rootCmd.AddCommand(datasetCmd)
}

func runDatasetBuild(cmd *cobra.Command, _ []string) error {
	if datasetService == nil {
		return errors.New("dataset service not configured")
	}
	tenant, project, err := scope()
	if err != nil {
		return err
	}

	ds, err := datasetService.Build(cmd.Context(), driving.BuildDatasetRequest{
		TenantID:    tenant,
		ProjectID:   project,
		Name:        datasetName,
		DocumentIDs: datasetDocIDs,
	})
	if ds != nil && ds.Status == domain.DatasetFailed {
		printDataset(cmd, ds)
	}
	if err != nil {
		return fmt.Errorf("failed to build dataset: %w", err)
	}

	cmd.Println("Dataset built.")
	cmd.Println()
	printDataset(cmd, ds)
	return nil
}

func runDatasetList(cmd *cobra.Command, _ []string) error {
	if datasetService == nil {
		return errors.New("dataset service not configured")
	}
	tenant, project, err := scope()
	if err != nil {
		return err
	}

	datasets, err := datasetService.ListDatasets(cmd.Context(), tenant, project)
	if err != nil {
		return fmt.Errorf("failed to list datasets: %w", err)
	}

	if len(datasets) == 0 {
		cmd.Println("No dataset versions found.")
		return nil
	}

	for i := range datasets {
		ds := &datasets[i]
		cmd.Printf("  %s  %-20s %-12s quality=%d examples=%d\n",
			ds.ID, ds.Name, ds.Status, ds.QualityScore, ds.Stats.TotalExamples)
	}
	cmd.Printf("\nTotal: %d dataset versions\n", len(datasets))
	return nil
}

func runDatasetGet(cmd *cobra.Command, args []string) error {
	if datasetService == nil {
		return errors.New("dataset service not configured")
	}
	tenant, project, err := scope()
	if err != nil {
		return err
	}

	ds, err := datasetService.GetDataset(cmd.Context(), tenant, project, args[0])
	if err != nil {
		return fmt.Errorf("failed to get dataset: %w", err)
	}

	printDataset(cmd, ds)
	return nil
}

func printDataset(cmd *cobra.Command, ds *domain.DatasetVersion) {
	cmd.Printf("Dataset: %s\n\n", ds.ID)
	cmd.Printf("  Name:      %s\n", ds.Name)
	cmd.Printf("  Status:    %s\n", ds.Status)
	cmd.Printf("  Quality:   %d\n", ds.QualityScore)
	cmd.Printf("  Documents: %d\n", len(ds.SourceDocumentIDs))

	s := ds.Stats
	if s.Error != "" {
		cmd.Printf("  Error:     %s\n", s.Error)
		return
	}
	cmd.Printf("  Examples:  %d (train %d, val %d, test %d, gold %d, review %d)\n",
		s.TotalExamples, s.TrainExamples, s.ValExamples, s.TestExamples, s.GoldExamples, s.ReviewExamples)
	cmd.Printf("  Mean example score: %d\n", s.MeanExampleScore)

	if len(s.TaskMix) > 0 {
		tasks := make([]string, 0, len(s.TaskMix))
		for task := range s.TaskMix {
			tasks = append(tasks, task)
		}
		sort.Strings(tasks)
		cmd.Println("\n  Task mix:")
		for _, task := range tasks {
			cmd.Printf("    %s: %d\n", task, s.TaskMix[task])
		}
	}
}
