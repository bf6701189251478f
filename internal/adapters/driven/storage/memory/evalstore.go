package memory

import (
	"context"
	"sync"

	"github.com/custodia-labs/lorastudio/internal/core/domain"
	"github.com/custodia-labs/lorastudio/internal/core/ports/driven"
)

// Ensure EvaluationStore implements the interface.
var _ driven.EvaluationStore = (*EvaluationStore)(nil)

// EvaluationStore is an in-memory implementation of driven.EvaluationStore.
// Reports are kept in insertion order.
type EvaluationStore struct {
	mu      sync.RWMutex
	reports []domain.EvaluationReport
}

// NewEvaluationStore creates a new in-memory evaluation store.
func NewEvaluationStore() *EvaluationStore {
	return &EvaluationStore{}
}

// SaveReport stores a new report.
func (s *EvaluationStore) SaveReport(_ context.Context, report *domain.EvaluationReport) error {
	if report == nil {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, *report)
	return nil
}

// GetReport retrieves a report by ID.
func (s *EvaluationStore) GetReport(_ context.Context, id string) (*domain.EvaluationReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.reports {
		if s.reports[i].ID == id {
			r := s.reports[i]
			return &r, nil
		}
	}
	return nil, domain.NewNotFoundError("evaluation report", id)
}

// LatestForProject returns the newest project report for another run.
func (s *EvaluationStore) LatestForProject(
	_ context.Context, tenantID, projectID, excludeRunID string,
) (*domain.EvaluationReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.reports) - 1; i >= 0; i-- {
		r := s.reports[i]
		if r.TenantID == tenantID && r.ProjectID == projectID && r.RunID != excludeRunID {
			return &r, nil
		}
	}
	return nil, nil
}

// ListReportsForRun returns a run's reports, newest first.
func (s *EvaluationStore) ListReportsForRun(_ context.Context, runID string) ([]domain.EvaluationReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []domain.EvaluationReport
	for i := len(s.reports) - 1; i >= 0; i-- {
		if s.reports[i].RunID == runID {
			result = append(result, s.reports[i])
		}
	}
	return result, nil
}
