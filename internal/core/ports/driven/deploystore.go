package driven

import (
	"context"

	"github.com/custodia-labs/lorastudio/internal/core/domain"
)

// DeploymentStore persists deployment packages.
type DeploymentStore interface {
	// Activate archives every ACTIVE package of pkg's project and stores
	// pkg as ACTIVE, as one atomic operation.
	Activate(ctx context.Context, pkg *domain.DeploymentPackage) error

	// ActiveDeployment returns the project's ACTIVE package.
	// Returns nil and no error if there is none.
	ActiveDeployment(ctx context.Context, tenantID, projectID string) (*domain.DeploymentPackage, error)

	// ListDeployments returns the project's packages, newest first.
	ListDeployments(ctx context.Context, tenantID, projectID string) ([]domain.DeploymentPackage, error)
}
