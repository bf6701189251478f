package memory

import (
	"context"
	"sync"

	"github.com/custodia-labs/lorastudio/internal/core/domain"
	"github.com/custodia-labs/lorastudio/internal/core/ports/driven"
)

// Ensure DocumentStore implements the interface.
var _ driven.DocumentStore = (*DocumentStore)(nil)

// DocumentStore is an in-memory implementation of driven.DocumentStore.
// Listing preserves insertion order.
type DocumentStore struct {
	mu        sync.RWMutex
	documents map[string]domain.Document
	order     []string
}

// NewDocumentStore creates a new in-memory document store.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		documents: make(map[string]domain.Document),
	}
}

// SaveDocument stores or updates a document.
func (s *DocumentStore) SaveDocument(_ context.Context, doc *domain.Document) error {
	if doc == nil {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[doc.ID]; !ok {
		s.order = append(s.order, doc.ID)
	}
	s.documents[doc.ID] = *doc
	return nil
}

// GetDocument retrieves a document by ID within a project.
func (s *DocumentStore) GetDocument(_ context.Context, tenantID, projectID, id string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[id]
	if !ok || doc.TenantID != tenantID || doc.ProjectID != projectID {
		return nil, domain.NewNotFoundError("document", id)
	}
	return &doc, nil
}

// FindByHash returns the first project document with the content hash.
func (s *DocumentStore) FindByHash(_ context.Context, tenantID, projectID, hash string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.order {
		doc := s.documents[id]
		if doc.TenantID == tenantID && doc.ProjectID == projectID && doc.ContentHash == hash {
			return &doc, nil
		}
	}
	return nil, nil
}

// ListDocuments returns project documents matching filter, oldest first.
func (s *DocumentStore) ListDocuments(
	_ context.Context, tenantID, projectID string, filter domain.DocumentFilter,
) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []domain.Document
	for _, id := range s.order {
		doc := s.documents[id]
		if doc.TenantID != tenantID || doc.ProjectID != projectID {
			continue
		}
		if filter.Matches(&doc) {
			result = append(result, doc)
		}
	}
	return result, nil
}

// Usage returns the tenant's document count and raw bytes.
func (s *DocumentStore) Usage(_ context.Context, tenantID string) (count, bytes int64, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, doc := range s.documents {
		if doc.TenantID == tenantID {
			count++
			bytes += doc.SizeBytes
		}
	}
	return count, bytes, nil
}
