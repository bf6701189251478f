package domain

import "time"

// DefaultPoller names the background run poller in cycle history.
const DefaultPoller = "run-poller"

// PollCycle is one pass of a poller over the run queue.
type PollCycle struct {
	Poller    string
	StartedAt time.Time
	EndedAt   time.Time

	// Success is false only when the cycle itself broke, e.g. the store
	// was unreachable. A run ending FAILED is counted in RunsFailed.
	Success bool
	Error   string

	// RunIDs lists the runs driven in this cycle, in claim order.
	RunIDs     []string
	RunsFailed int
}

// Duration returns how long the cycle took.
func (c PollCycle) Duration() time.Duration {
	return c.EndedAt.Sub(c.StartedAt)
}

// Processed returns the number of runs driven.
func (c PollCycle) Processed() int {
	return len(c.RunIDs)
}
