// Package cli implements the lorastudio command tree on cobra.
//
// Commands talk to core services through the driving ports held in
// package-level variables. The composition root installs a Bootstrap
// that builds them from configuration on first use.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/lorastudio/internal/core/domain"
	"github.com/custodia-labs/lorastudio/internal/core/ports/driving"
	"github.com/custodia-labs/lorastudio/internal/logger"
)

// version is set at build time via ldflags or SetVersion.
var version = "dev"

// Global flags.
var (
	configPath string
	dataDir    string
	verbose    bool
	logMode    string
	tenantID   string
	projectID  string
)

// Services wired by the bootstrap.
var (
	ingestionService  driving.IngestionService
	datasetService    driving.DatasetService
	runOrchestrator   driving.RunOrchestrator
	evaluationService driving.EvaluationService
	deploymentService driving.DeploymentService
	runPoller         driving.RunPoller
	inboxWatcher      InboxWatcher
)

// InboxWatcher is the watched-directory ingester.
type InboxWatcher interface {
	Run(ctx context.Context) error
}

// Services is the set of wired core services handed to the CLI.
type Services struct {
	Ingestion  driving.IngestionService
	Datasets   driving.DatasetService
	Runs       driving.RunOrchestrator
	Evaluation driving.EvaluationService
	Deployment driving.DeploymentService
	Poller     driving.RunPoller

	// Inbox is nil unless the inbox is enabled in configuration.
	Inbox InboxWatcher

	// Close releases stores and flushes telemetry.
	Close func() error
}

// Options carries the global flag values into the bootstrap.
type Options struct {
	ConfigPath string
	DataDir    string
}

// Bootstrap builds the services for one invocation.
type Bootstrap func(ctx context.Context, opts Options) (*Services, error)

var (
	bootstrap Bootstrap
	closer    func() error
)

// skipServices marks commands that never need the services.
const skipServices = "skip-services"

var rootCmd = &cobra.Command{
	Use:   "lorastudio",
	Short: "Document-to-LoRA fine-tuning pipeline",
	Long: `lorastudio turns uploaded business documents into quality-scored
instruction datasets, trains LoRA adapters against approved base models,
evaluates them against a held-out gold set and packages them for deployment.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: prepare,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "Config file (default ~/.lorastudio/config.toml)")
	flags.StringVar(&dataDir, "data-dir", "", "Data directory override")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	flags.StringVar(&logMode, "log-mode", "development", "Log format: development or production")
	flags.StringVar(&tenantID, "tenant", "", "Tenant identifier")
	flags.StringVar(&projectID, "project", "", "Project identifier")
}

// SetVersion sets the reported version.
func SetVersion(v string) {
	version = v
}

// SetBootstrap installs the service factory used by commands.
func SetBootstrap(b Bootstrap) {
	bootstrap = b
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	shutdown()
	logger.Sync()

	if err != nil {
		rootCmd.PrintErrln("Error:", err)
		return exitCode(err)
	}
	return 0
}

// exitCode maps the error taxonomy onto process exit codes.
func exitCode(err error) int {
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return 2
	case domain.KindQuota:
		return 3
	case domain.KindInvalidTransition:
		return 4
	case domain.KindExternalProcess:
		return 5
	case domain.KindNotFound:
		return 6
	default:
		return 1
	}
}

func prepare(cmd *cobra.Command, _ []string) error {
	logger.Init(logMode, verbose)

	if cmd.Annotations[skipServices] == "true" {
		return nil
	}
	// Already wired, e.g. by tests or an earlier command.
	if ingestionService != nil || bootstrap == nil {
		return nil
	}

	svc, err := bootstrap(cmd.Context(), Options{ConfigPath: configPath, DataDir: dataDir})
	if err != nil {
		return err
	}
	setServices(svc)
	closer = svc.Close
	return nil
}

func setServices(svc *Services) {
	ingestionService = svc.Ingestion
	datasetService = svc.Datasets
	runOrchestrator = svc.Runs
	evaluationService = svc.Evaluation
	deploymentService = svc.Deployment
	runPoller = svc.Poller
	inboxWatcher = svc.Inbox
}

func shutdown() {
	if closer == nil {
		return
	}
	if err := closer(); err != nil {
		logger.Warn("shutdown failed", "error", err)
	}
	closer = nil
}

// scope returns the tenant and project flags, both required.
func scope() (string, string, error) {
	if tenantID == "" || projectID == "" {
		return "", "", domain.NewValidationError("scope", "--tenant and --project are required")
	}
	return tenantID, projectID, nil
}
