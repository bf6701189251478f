package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/lorastudio/internal/core/domain"
	"github.com/custodia-labs/lorastudio/internal/core/ports/driven"
	"github.com/custodia-labs/lorastudio/internal/core/ports/driving"
	"github.com/custodia-labs/lorastudio/internal/logger"
)

// Ensure DeploymentService implements the interface.
var _ driving.DeploymentService = (*DeploymentService)(nil)

// DeploymentService promotes READY runs to the project's active deployment.
type DeploymentService struct {
	runs        driven.RunStore
	deployments driven.DeploymentStore
	now         func() time.Time
}

// NewDeploymentService creates a new deployment service.
func NewDeploymentService(runs driven.RunStore, deployments driven.DeploymentStore) *DeploymentService {
	return &DeploymentService{
		runs:        runs,
		deployments: deployments,
		now:         time.Now,
	}
}

// CreateDeployment activates the run's package and archives the previous one.
func (s *DeploymentService) CreateDeployment(
	ctx context.Context,
	req driving.CreateDeploymentRequest,
) (*domain.DeploymentPackage, error) {
	if req.Version == "" {
		return nil, domain.NewValidationError("version", "must not be empty")
	}
	run, err := s.runs.GetRun(ctx, req.RunID)
	if err != nil {
		return nil, err
	}
	if run.TenantID != req.TenantID || run.ProjectID != req.ProjectID {
		return nil, domain.NewNotFoundError("training run", req.RunID)
	}
	if run.State != domain.RunReady || run.PackagePath == "" {
		return nil, domain.NewValidationError("run_id", "training run is not deployable")
	}

	pkg := &domain.DeploymentPackage{
		ID:          uuid.New().String(),
		TenantID:    req.TenantID,
		ProjectID:   req.ProjectID,
		RunID:       run.ID,
		Version:     req.Version,
		Status:      domain.DeploymentActive,
		PackagePath: run.PackagePath,
		EndpointURL: req.EndpointURL,
		CreatedAt:   s.now(),
	}
	if err := s.deployments.Activate(ctx, pkg); err != nil {
		return nil, fmt.Errorf("activate deployment: %w", err)
	}

	logger.Info("deployment activated", "deployment_id", pkg.ID, "run_id", run.ID, "version", pkg.Version)
	return pkg, nil
}

// ActiveDeployment returns the project's ACTIVE package, or nil.
func (s *DeploymentService) ActiveDeployment(ctx context.Context, tenantID, projectID string) (*domain.DeploymentPackage, error) {
	return s.deployments.ActiveDeployment(ctx, tenantID, projectID)
}

// ListDeployments returns the project's packages.
func (s *DeploymentService) ListDeployments(ctx context.Context, tenantID, projectID string) ([]domain.DeploymentPackage, error) {
	return s.deployments.ListDeployments(ctx, tenantID, projectID)
}
