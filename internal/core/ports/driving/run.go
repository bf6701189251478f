package driving

import (
	"context"

	"github.com/custodia-labs/lorastudio/internal/core/domain"
)

// RunOrchestrator owns the training run state machine.
type RunOrchestrator interface {
	// EstimateVRAM applies the admission-control heuristic.
	EstimateVRAM(cfg domain.TrainingConfig, baseModelID string) domain.VRAMEstimate

	// CreateRun validates a request and queues a run.
	CreateRun(ctx context.Context, req CreateRunRequest) (*domain.TrainingRun, error)

	// ClaimNextQueuedRun moves the oldest queued run to PREFLIGHT.
	// Returns nil and no error when nothing was claimed.
	ClaimNextQueuedRun(ctx context.Context) (*domain.TrainingRun, error)

	// ProcessClaimedRun drives a claimed run to READY or FAILED.
	// Stage failures are recorded on the run, not returned.
	ProcessClaimedRun(ctx context.Context, run *domain.TrainingRun) (*domain.TrainingRun, error)

	// ProcessNextQueuedRun claims and drives one run.
	// Returns nil and no error when nothing was queued.
	ProcessNextQueuedRun(ctx context.Context) (*domain.TrainingRun, error)

	// CancelRun cancels a non-terminal run.
	CancelRun(ctx context.Context, tenantID, projectID, runID string) (*domain.TrainingRun, error)

	// RetryRun re-queues a FAILED or CANCELLED run.
	RetryRun(ctx context.Context, tenantID, projectID, runID string) (*domain.TrainingRun, error)

	// GetRun retrieves a run within a project.
	GetRun(ctx context.Context, tenantID, projectID, runID string) (*domain.TrainingRun, error)

	// ListRuns returns the project's runs.
	ListRuns(ctx context.Context, tenantID, projectID string) ([]domain.TrainingRun, error)

	// ListEvents returns a run's transition log.
	ListEvents(ctx context.Context, tenantID, projectID, runID string) ([]domain.RunEvent, error)
}

// CreateRunRequest describes a training run to queue.
type CreateRunRequest struct {
	TenantID         string
	ProjectID        string
	DatasetVersionID string
	BaseModelID      string
	RequestedBy      string
	Config           domain.TrainingConfig

	// DataRightsConfirmed must be true: the client confirms rights to train on the data.
	DataRightsConfirmed bool
}
