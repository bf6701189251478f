package driven

import (
	"context"

	"github.com/custodia-labs/lorastudio/internal/core/domain"
)

// EvaluationStore persists immutable evaluation reports.
type EvaluationStore interface {
	// SaveReport stores a new report.
	SaveReport(ctx context.Context, report *domain.EvaluationReport) error

	// GetReport retrieves a report by ID.
	// Returns a NotFoundError if it does not exist.
	GetReport(ctx context.Context, id string) (*domain.EvaluationReport, error)

	// LatestForProject returns the most recent project report whose run
	// is not excludeRunID. Returns nil and no error if there is none.
	LatestForProject(ctx context.Context, tenantID, projectID, excludeRunID string) (*domain.EvaluationReport, error)

	// ListReportsForRun returns every report produced for a run, newest first.
	ListReportsForRun(ctx context.Context, runID string) ([]domain.EvaluationReport, error)
}
