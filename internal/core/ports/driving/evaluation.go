package driving

import (
	"context"

	"github.com/custodia-labs/lorastudio/internal/core/domain"
)

// EvaluationService scores runs against their dataset's gold set.
type EvaluationService interface {
	// Evaluate scores run against ds and stores a report.
	Evaluate(ctx context.Context, run *domain.TrainingRun, ds *domain.DatasetVersion) (*domain.EvaluationReport, error)

	// GetReport retrieves a report within a project.
	GetReport(ctx context.Context, tenantID, projectID, id string) (*domain.EvaluationReport, error)

	// ReportsForRun returns every report produced for a run, newest first.
	ReportsForRun(ctx context.Context, tenantID, projectID, runID string) ([]domain.EvaluationReport, error)
}
