package driven

import (
	"context"

	"github.com/custodia-labs/lorastudio/internal/core/domain"
)

// DocumentStore persists ingested documents.
// Documents are written once; only their status changes afterwards.
type DocumentStore interface {
	// SaveDocument stores or updates a document.
	SaveDocument(ctx context.Context, doc *domain.Document) error

	// GetDocument retrieves a document by ID within a project.
	// Returns a NotFoundError if it does not exist.
	GetDocument(ctx context.Context, tenantID, projectID, id string) (*domain.Document, error)

	// FindByHash returns the first document in the project with the given
	// content hash. Returns nil and no error if there is none.
	FindByHash(ctx context.Context, tenantID, projectID, hash string) (*domain.Document, error)

	// ListDocuments returns project documents matching filter, oldest first.
	ListDocuments(ctx context.Context, tenantID, projectID string, filter domain.DocumentFilter) ([]domain.Document, error)

	// Usage returns the document count and total raw bytes for a tenant.
	Usage(ctx context.Context, tenantID string) (count, bytes int64, err error)
}
