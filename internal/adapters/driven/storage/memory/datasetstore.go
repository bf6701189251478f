package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/lorastudio/internal/core/domain"
	"github.com/custodia-labs/lorastudio/internal/core/ports/driven"
)

// Ensure DatasetStore implements the interface.
var _ driven.DatasetStore = (*DatasetStore)(nil)

// DatasetStore is an in-memory implementation of driven.DatasetStore.
type DatasetStore struct {
	mu       sync.RWMutex
	datasets map[string]domain.DatasetVersion
}

// NewDatasetStore creates a new in-memory dataset store.
func NewDatasetStore() *DatasetStore {
	return &DatasetStore{
		datasets: make(map[string]domain.DatasetVersion),
	}
}

// SaveDataset stores or updates a dataset version.
func (s *DatasetStore) SaveDataset(_ context.Context, ds *domain.DatasetVersion) error {
	if ds == nil {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.datasets[ds.ID] = *ds
	return nil
}

// GetDataset retrieves a dataset version within a project.
func (s *DatasetStore) GetDataset(_ context.Context, tenantID, projectID, id string) (*domain.DatasetVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ds, ok := s.datasets[id]
	if !ok || ds.TenantID != tenantID || ds.ProjectID != projectID {
		return nil, domain.NewNotFoundError("dataset", id)
	}
	return &ds, nil
}

// ListDatasets returns the project's dataset versions, newest first.
func (s *DatasetStore) ListDatasets(_ context.Context, tenantID, projectID string) ([]domain.DatasetVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []domain.DatasetVersion
	for _, ds := range s.datasets {
		if ds.TenantID == tenantID && ds.ProjectID == projectID {
			result = append(result, ds)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}
