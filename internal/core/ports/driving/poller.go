package driving

import (
	"context"

	"github.com/custodia-labs/lorastudio/internal/core/domain"
)

// RunPoller drives queued runs in the background.
type RunPoller interface {
	// Start runs poll cycles until the context is cancelled or Stop is called.
	Start(ctx context.Context) error

	// Stop signals the loop and waits for an in-flight cycle, bounded
	// by the configured stop timeout. A Stop issued before Start makes
	// that Start return immediately.
	Stop() error

	// RunOnce executes a single cycle synchronously.
	RunOnce(ctx context.Context) domain.PollCycle

	// History returns recent cycles, most recent first.
	History(ctx context.Context, limit int) ([]domain.PollCycle, error)
}
