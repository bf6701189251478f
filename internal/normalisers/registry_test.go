package normalisers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/lorastudio/internal/core/domain"
	"github.com/custodia-labs/lorastudio/internal/core/ports/driven"
)

type stubNormaliser struct {
	types    []domain.FileType
	priority int
	text     string
}

func (s *stubNormaliser) SupportedFileTypes() []domain.FileType { return s.types }
func (s *stubNormaliser) Priority() int                         { return s.priority }
func (s *stubNormaliser) Normalise(_ context.Context, _ *domain.RawFile) (*driven.NormaliseResult, error) {
	return &driven.NormaliseResult{Text: s.text}, nil
}

func TestRegistry_PicksHighestPriority(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubNormaliser{types: []domain.FileType{domain.FileTypeText}, priority: 5, text: "fallback"})
	r.Register(&stubNormaliser{types: []domain.FileType{domain.FileTypeText}, priority: 60, text: "preferred"})

	result, err := r.Normalise(context.Background(), &domain.RawFile{FileType: domain.FileTypeText})
	require.NoError(t, err)
	assert.Equal(t, "preferred", result.Text)
}

func TestRegistry_UnknownType(t *testing.T) {
	r := NewRegistry()

	_, err := r.Normalise(context.Background(), &domain.RawFile{FileType: domain.FileTypePDF})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = r.Normalise(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestDefaultRegistry_CoversAllTypes(t *testing.T) {
	r := DefaultRegistry()
	assert.ElementsMatch(t, []domain.FileType{
		domain.FileTypeText, domain.FileTypeMarkdown, domain.FileTypeHTML,
		domain.FileTypeCSV, domain.FileTypeDOCX, domain.FileTypePDF,
	}, r.SupportedFileTypes())
}
