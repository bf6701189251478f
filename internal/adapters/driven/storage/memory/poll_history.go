package memory

import (
	"context"
	"sync"

	"github.com/custodia-labs/lorastudio/internal/core/domain"
	"github.com/custodia-labs/lorastudio/internal/core/ports/driven"
)

var _ driven.PollHistoryStore = (*PollHistoryStore)(nil)

// PollHistoryStore is an in-memory implementation of driven.PollHistoryStore.
type PollHistoryStore struct {
	mu     sync.RWMutex
	cycles map[string][]domain.PollCycle // oldest first
}

// NewPollHistoryStore creates an empty history.
func NewPollHistoryStore() *PollHistoryStore {
	return &PollHistoryStore{cycles: make(map[string][]domain.PollCycle)}
}

// RecordCycle appends a copy of cycle.
func (s *PollHistoryStore) RecordCycle(_ context.Context, cycle *domain.PollCycle) error {
	if cycle == nil {
		return domain.ErrInvalidInput
	}
	c := *cycle
	c.RunIDs = append([]string(nil), cycle.RunIDs...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycles[c.Poller] = append(s.cycles[c.Poller], c)
	return nil
}

// RecentCycles returns cycles newest first.
func (s *PollHistoryStore) RecentCycles(_ context.Context, poller string, limit int) ([]domain.PollCycle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.cycles[poller]
	n := len(all)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.PollCycle, 0, n)
	for i := len(all) - 1; len(out) < n; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

// PruneCycles drops all but the newest keep cycles per poller.
func (s *PollHistoryStore) PruneCycles(_ context.Context, keep int) error {
	if keep < 0 {
		keep = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for poller, all := range s.cycles {
		if len(all) > keep {
			s.cycles[poller] = append([]domain.PollCycle(nil), all[len(all)-keep:]...)
		}
	}
	return nil
}
