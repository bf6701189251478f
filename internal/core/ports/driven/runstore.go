package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/lorastudio/internal/core/domain"
)

// RunStore persists training runs.
// Stores must make CompareAndSetState atomic across processes sharing
// the same backing store; it is the only claim primitive.
type RunStore interface {
	// SaveRun inserts a run or updates its non-state fields. State and
	// state message of an existing run change only through CompareAndSetState.
	SaveRun(ctx context.Context, run *domain.TrainingRun) error

	// GetRun retrieves a run by ID.
	// Returns a NotFoundError if it does not exist.
	GetRun(ctx context.Context, id string) (*domain.TrainingRun, error)

	// ListRuns returns the project's runs, newest first.
	ListRuns(ctx context.Context, tenantID, projectID string) ([]domain.TrainingRun, error)

	// OldestQueued returns the queued run with the earliest creation time
	// across all projects. Returns nil and no error if none is queued.
	OldestQueued(ctx context.Context) (*domain.TrainingRun, error)

	// CompareAndSetState moves run id from `from` to `to` only if it is
	// still in `from`. Reports whether this caller performed the update.
	CompareAndSetState(ctx context.Context, id string, from, to domain.RunState, message string, at time.Time) (bool, error)

	// CountCreatedSince counts a tenant's runs created at or after since.
	CountCreatedSince(ctx context.Context, tenantID string, since time.Time) (int64, error)
}

// RunEventStore is the append-only run transition log.
type RunEventStore interface {
	// AppendEvent records one transition.
	AppendEvent(ctx context.Context, event *domain.RunEvent) error

	// ListEvents returns a run's events in the order they were appended.
	ListEvents(ctx context.Context, runID string) ([]domain.RunEvent, error)
}
