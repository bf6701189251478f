// Package plaintext provides the fallback Normaliser for text and markdown uploads.
package plaintext

import (
	"context"
	"strings"

	"github.com/custodia-labs/lorastudio/internal/core/domain"
	"github.com/custodia-labs/lorastudio/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles plain text and markdown documents.
// Markdown is kept verbatim so heading markers survive for segmentation.
type Normaliser struct{}

// New creates a new plain text normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedFileTypes returns the file types this normaliser handles.
func (n *Normaliser) SupportedFileTypes() []domain.FileType {
	return []domain.FileType{domain.FileTypeText, domain.FileTypeMarkdown}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 5 // Fallback normaliser
}

// Normalise decodes the upload as UTF-8, dropping invalid sequences.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawFile) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	return &driven.NormaliseResult{
		Text:       Decode(raw.Content),
		Extraction: domain.Extraction{OCRUsed: false, OCRConfidence: 1.0},
	}, nil
}

// Decode converts bytes to a string, silently dropping invalid UTF-8.
func Decode(content []byte) string {
	return strings.ToValidUTF8(string(content), "")
}
