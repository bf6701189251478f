package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/lorastudio/internal/core/domain"
	"github.com/custodia-labs/lorastudio/internal/core/ports/driving"
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Manage deployment packages",
}

var deployCreateCmd = &cobra.Command{
	Use:   "create [run-id]",
	Short: "Activate a ready run's package",
	Long: `Activates the deployment package of a ready run. The project's
previously active package is archived.`,
	Args: cobra.ExactArgs(1),
	RunE: runDeployCreate,
}

var deployActiveCmd = &cobra.Command{
	Use:   "active",
	Short: "Show the active deployment",
	Args:  cobra.NoArgs,
	RunE:  runDeployActive,
}

var deployListCmd = &cobra.Command{
	Use:   "list",
	Short: "List deployment packages",
	Args:  cobra.NoArgs,
	RunE:  runDeployList,
}

var (
	deployVersion  string
	deployEndpoint string
)

func init() {
	deployCreateCmd.Flags().StringVar(&deployVersion, "version", "", "Version label")
	deployCreateCmd.Flags().StringVar(&deployEndpoint, "endpoint", "", "Serving endpoint URL")

	deployCmd.AddCommand(deployCreateCmd)
	deployCmd.AddCommand(deployActiveCmd)
	deployCmd.AddCommand(deployListCmd)
	rootCmd.AddCommand(deployCmd)
}

func runDeployCreate(cmd *cobra.Command, args []string) error {
	if deploymentService == nil {
		return errors.New("deployment service not configured")
	}
	tenant, project, err := scope()
	if err != nil {
		return err
	}

	pkg, err := deploymentService.CreateDeployment(cmd.Context(), driving.CreateDeploymentRequest{
		TenantID:    tenant,
		ProjectID:   project,
		RunID:       args[0],
		Version:     deployVersion,
		EndpointURL: deployEndpoint,
	})
	if err != nil {
		return fmt.Errorf("failed to create deployment: %w", err)
	}

	cmd.Printf("Deployment %s is active.\n\n", pkg.Version)
	printDeployment(cmd, pkg)
	return nil
}

func runDeployActive(cmd *cobra.Command, _ []string) error {
	if deploymentService == nil {
		return errors.New("deployment service not configured")
	}
	tenant, project, err := scope()
	if err != nil {
		return err
	}

	pkg, err := deploymentService.ActiveDeployment(cmd.Context(), tenant, project)
	if err != nil {
		return fmt.Errorf("failed to get active deployment: %w", err)
	}
	if pkg == nil {
		cmd.Println("No active deployment.")
		return nil
	}

	printDeployment(cmd, pkg)
	return nil
}

func runDeployList(cmd *cobra.Command, _ []string) error {
	if deploymentService == nil {
		return errors.New("deployment service not configured")
	}
	tenant, project, err := scope()
	if err != nil {
		return err
	}

	pkgs, err := deploymentService.ListDeployments(cmd.Context(), tenant, project)
	if err != nil {
		return fmt.Errorf("failed to list deployments: %w", err)
	}

	if len(pkgs) == 0 {
		cmd.Println("No deployments found.")
		return nil
	}

	for i := range pkgs {
		p := &pkgs[i]
		cmd.Printf("  %s  %-10s %-9s run=%s\n", p.ID, p.Version, p.Status, p.RunID)
	}
	cmd.Printf("\nTotal: %d deployments\n", len(pkgs))
	return nil
}

func printDeployment(cmd *cobra.Command, pkg *domain.DeploymentPackage) {
	cmd.Printf("Deployment: %s\n\n", pkg.ID)
	cmd.Printf("  Version:  %s\n", pkg.Version)
	cmd.Printf("  Status:   %s\n", pkg.Status)
	cmd.Printf("  Run:      %s\n", pkg.RunID)
	cmd.Printf("  Package:  %s\n", pkg.PackagePath)
	if pkg.EndpointURL != "" {
		cmd.Printf("  Endpoint: %s\n", pkg.EndpointURL)
	}
}
