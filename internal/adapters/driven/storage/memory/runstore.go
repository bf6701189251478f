package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/lorastudio/internal/core/domain"
	"github.com/custodia-labs/lorastudio/internal/core/ports/driven"
)

// Ensure RunStore and RunEventStore implement the interfaces.
var (
	_ driven.RunStore      = (*RunStore)(nil)
	_ driven.RunEventStore = (*RunEventStore)(nil)
)

// RunStore is an in-memory implementation of driven.RunStore.
// The store mutex makes CompareAndSetState atomic within the process.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]domain.TrainingRun
}

// NewRunStore creates a new in-memory run store.
func NewRunStore() *RunStore {
	return &RunStore{
		runs: make(map[string]domain.TrainingRun),
	}
}

// SaveRun inserts a run or updates its non-state fields.
func (s *RunStore) SaveRun(_ context.Context, run *domain.TrainingRun) error {
	if run == nil {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	saved := *run
	if existing, ok := s.runs[run.ID]; ok {
		saved.State = existing.State
		saved.StateMessage = existing.StateMessage
	}
	s.runs[run.ID] = saved
	return nil
}

// GetRun retrieves a run by ID.
func (s *RunStore) GetRun(_ context.Context, id string) (*domain.TrainingRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, domain.NewNotFoundError("training run", id)
	}
	return &run, nil
}

// ListRuns returns the project's runs, newest first.
func (s *RunStore) ListRuns(_ context.Context, tenantID, projectID string) ([]domain.TrainingRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []domain.TrainingRun
	for _, run := range s.runs {
		if run.TenantID == tenantID && run.ProjectID == projectID {
			result = append(result, run)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// OldestQueued returns the earliest created queued run.
func (s *RunStore) OldestQueued(_ context.Context) (*domain.TrainingRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var oldest *domain.TrainingRun
	for _, run := range s.runs {
		if run.State != domain.RunQueued {
			continue
		}
		if oldest == nil || run.CreatedAt.Before(oldest.CreatedAt) {
			r := run
			oldest = &r
		}
	}
	return oldest, nil
}

// CompareAndSetState moves a run from `from` to `to` if it is still in `from`.
func (s *RunStore) CompareAndSetState(
	_ context.Context, id string, from, to domain.RunState, message string, at time.Time,
) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok || run.State != from {
		return false, nil
	}
	run.State = to
	run.StateMessage = message
	run.UpdatedAt = at
	s.runs[id] = run
	return true, nil
}

// CountCreatedSince counts a tenant's runs created at or after since.
func (s *RunStore) CountCreatedSince(_ context.Context, tenantID string, since time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, run := range s.runs {
		if run.TenantID == tenantID && !run.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

// RunEventStore is an in-memory append-only event log.
type RunEventStore struct {
	mu     sync.RWMutex
	events map[string][]domain.RunEvent
}

// NewRunEventStore creates a new in-memory event store.
func NewRunEventStore() *RunEventStore {
	return &RunEventStore{
		events: make(map[string][]domain.RunEvent),
	}
}

// AppendEvent records one transition.
func (s *RunEventStore) AppendEvent(_ context.Context, event *domain.RunEvent) error {
	if event == nil {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.RunID] = append(s.events[event.RunID], *event)
	return nil
}

// ListEvents returns a run's events in append order.
func (s *RunEventStore) ListEvents(_ context.Context, runID string) ([]domain.RunEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := s.events[runID]
	result := make([]domain.RunEvent, len(events))
	copy(result, events)
	return result, nil
}
