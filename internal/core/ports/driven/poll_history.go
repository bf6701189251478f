package driven

import (
	"context"

	"github.com/custodia-labs/lorastudio/internal/core/domain"
)

// PollHistoryStore keeps a bounded log of poller cycles.
type PollHistoryStore interface {
	// RecordCycle appends one cycle.
	RecordCycle(ctx context.Context, cycle *domain.PollCycle) error

	// RecentCycles returns a poller's cycles, most recent first.
	// A limit of zero or less returns all of them.
	RecentCycles(ctx context.Context, poller string, limit int) ([]domain.PollCycle, error)

	// PruneCycles keeps the newest keep cycles of each poller.
	PruneCycles(ctx context.Context, keep int) error
}
