package driving

import (
	"context"

	"github.com/custodia-labs/lorastudio/internal/core/domain"
)

// DeploymentService promotes READY runs to the project's active deployment.
type DeploymentService interface {
	// CreateDeployment activates the run's package, archiving the previous one.
	CreateDeployment(ctx context.Context, req CreateDeploymentRequest) (*domain.DeploymentPackage, error)

	// ActiveDeployment returns the project's ACTIVE package, or nil.
	ActiveDeployment(ctx context.Context, tenantID, projectID string) (*domain.DeploymentPackage, error)

	// ListDeployments returns the project's packages.
	ListDeployments(ctx context.Context, tenantID, projectID string) ([]domain.DeploymentPackage, error)
}

// CreateDeploymentRequest names the run to deploy.
type CreateDeploymentRequest struct {
	TenantID    string
	ProjectID   string
	RunID       string
	Version     string
	EndpointURL string
}
