package driven

import (
	"context"

	"github.com/custodia-labs/lorastudio/internal/core/domain"
)

// DatasetStore persists dataset versions.
type DatasetStore interface {
	// SaveDataset stores or updates a dataset version.
	SaveDataset(ctx context.Context, ds *domain.DatasetVersion) error

	// GetDataset retrieves a dataset version within a project.
	// Returns a NotFoundError if it does not exist.
	GetDataset(ctx context.Context, tenantID, projectID, id string) (*domain.DatasetVersion, error)

	// ListDatasets returns the project's dataset versions, newest first.
	ListDatasets(ctx context.Context, tenantID, projectID string) ([]domain.DatasetVersion, error)
}
