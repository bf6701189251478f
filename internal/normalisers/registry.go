package normalisers

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/lorastudio/internal/core/domain"
	"github.com/custodia-labs/lorastudio/internal/core/ports/driven"
	"github.com/custodia-labs/lorastudio/internal/normalisers/csv"
	"github.com/custodia-labs/lorastudio/internal/normalisers/docx"
	"github.com/custodia-labs/lorastudio/internal/normalisers/html"
	"github.com/custodia-labs/lorastudio/internal/normalisers/pdf"
	"github.com/custodia-labs/lorastudio/internal/normalisers/plaintext"
)

// Ensure Registry implements the interface.
var _ driven.NormaliserRegistry = (*Registry)(nil)

// Registry dispatches uploads to the highest priority normaliser for
// their file type.
type Registry struct {
	mu          sync.RWMutex
	normalisers []driven.Normaliser
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// DefaultRegistry returns a registry with every built-in normaliser.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(plaintext.New())
	r.Register(html.New())
	r.Register(csv.New())
	r.Register(docx.New())
	r.Register(pdf.New())
	return r
}

// Register adds a normaliser to the registry.
func (r *Registry) Register(normaliser driven.Normaliser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.normalisers = append(r.normalisers, normaliser)
	sort.SliceStable(r.normalisers, func(i, j int) bool {
		return r.normalisers[i].Priority() > r.normalisers[j].Priority()
	})
}

// Normalise extracts text with the best matching normaliser.
func (r *Registry) Normalise(ctx context.Context, raw *domain.RawFile) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}
	n := r.find(raw.FileType)
	if n == nil {
		return nil, domain.NewValidationError("file", "no extractor for file type "+string(raw.FileType))
	}
	return n.Normalise(ctx, raw)
}

// SupportedFileTypes returns all file types that can be normalised.
func (r *Registry) SupportedFileTypes() []domain.FileType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[domain.FileType]bool)
	var out []domain.FileType
	for _, n := range r.normalisers {
		for _, ft := range n.SupportedFileTypes() {
			if !seen[ft] {
				seen[ft] = true
				out = append(out, ft)
			}
		}
	}
	return out
}

func (r *Registry) find(ft domain.FileType) driven.Normaliser {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, n := range r.normalisers {
		for _, supported := range n.SupportedFileTypes() {
			if supported == ft {
				return n
			}
		}
	}
	return nil
}
