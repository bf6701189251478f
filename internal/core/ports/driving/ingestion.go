package driving

import (
	"context"
	"encoding/json"

	"github.com/custodia-labs/lorastudio/internal/core/domain"
)

// IngestionService turns raw uploads into scored, deduplicated documents.
type IngestionService interface {
	// Ingest extracts, scores and stores one upload.
	Ingest(ctx context.Context, req IngestRequest) (*domain.Document, error)

	// GetDocument retrieves a document by ID within a project.
	GetDocument(ctx context.Context, tenantID, projectID, id string) (*domain.Document, error)

	// ListDocuments returns project documents matching filter.
	ListDocuments(ctx context.Context, tenantID, projectID string, filter domain.DocumentFilter) ([]domain.Document, error)
}

// IngestRequest is one upload.
type IngestRequest struct {
	TenantID  string
	ProjectID string

	// Filename is the original client filename; only its base is kept.
	Filename string

	// Content is the decoded file body.
	Content []byte

	// Metadata must be a JSON object when present.
	Metadata json.RawMessage
}
