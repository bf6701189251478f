package driving

import (
	"context"

	"github.com/custodia-labs/lorastudio/internal/core/domain"
)

// DatasetService synthesizes dataset versions from documents.
type DatasetService interface {
	// Build synthesizes, scores and splits a new dataset version.
	Build(ctx context.Context, req BuildDatasetRequest) (*domain.DatasetVersion, error)

	// GetDataset retrieves a dataset version within a project.
	GetDataset(ctx context.Context, tenantID, projectID, id string) (*domain.DatasetVersion, error)

	// ListDatasets returns the project's dataset versions.
	ListDatasets(ctx context.Context, tenantID, projectID string) ([]domain.DatasetVersion, error)
}

// BuildDatasetRequest selects the documents to build from.
type BuildDatasetRequest struct {
	TenantID  string
	ProjectID string
	Name      string

	// DocumentIDs restricts the build to these documents. Empty means
	// every eligible document in the project.
	DocumentIDs []string
}
