package memory

import (
	"context"
	"sync"

	"github.com/custodia-labs/lorastudio/internal/core/domain"
	"github.com/custodia-labs/lorastudio/internal/core/ports/driven"
)

// Ensure DeploymentStore implements the interface.
var _ driven.DeploymentStore = (*DeploymentStore)(nil)

// DeploymentStore is an in-memory implementation of driven.DeploymentStore.
type DeploymentStore struct {
	mu       sync.RWMutex
	packages []domain.DeploymentPackage
}

// NewDeploymentStore creates a new in-memory deployment store.
func NewDeploymentStore() *DeploymentStore {
	return &DeploymentStore{}
}

// Activate archives the project's ACTIVE packages and stores pkg as ACTIVE.
func (s *DeploymentStore) Activate(_ context.Context, pkg *domain.DeploymentPackage) error {
	if pkg == nil {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.packages {
		p := &s.packages[i]
		if p.TenantID == pkg.TenantID && p.ProjectID == pkg.ProjectID && p.Status == domain.DeploymentActive {
			p.Status = domain.DeploymentArchived
		}
	}
	stored := *pkg
	stored.Status = domain.DeploymentActive
	s.packages = append(s.packages, stored)
	pkg.Status = domain.DeploymentActive
	return nil
}

// ActiveDeployment returns the project's ACTIVE package.
func (s *DeploymentStore) ActiveDeployment(_ context.Context, tenantID, projectID string) (*domain.DeploymentPackage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.packages {
		p := s.packages[i]
		if p.TenantID == tenantID && p.ProjectID == projectID && p.Status == domain.DeploymentActive {
			return &p, nil
		}
	}
	return nil, nil
}

// ListDeployments returns the project's packages, newest first.
func (s *DeploymentStore) ListDeployments(_ context.Context, tenantID, projectID string) ([]domain.DeploymentPackage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []domain.DeploymentPackage
	for i := len(s.packages) - 1; i >= 0; i-- {
		p := s.packages[i]
		if p.TenantID == tenantID && p.ProjectID == projectID {
			result = append(result, p)
		}
	}
	return result, nil
}
