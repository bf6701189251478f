// Package csv provides a Normaliser for comma-separated uploads.
// Each row becomes one line with cells joined by " | ".
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"github.com/custodia-labs/lorastudio/internal/core/domain"
	"github.com/custodia-labs/lorastudio/internal/core/ports/driven"
	"github.com/custodia-labs/lorastudio/internal/normalisers/plaintext"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles CSV documents.
type Normaliser struct{}

// New creates a new CSV normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedFileTypes returns the file types this normaliser handles.
func (n *Normaliser) SupportedFileTypes() []domain.FileType {
	return []domain.FileType{domain.FileTypeCSV}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50
}

// Normalise joins the cells of every row.
// Rows of differing width are accepted.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawFile) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	reader := csv.NewReader(strings.NewReader(plaintext.Decode(raw.Content)))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var lines []string
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, domain.NewValidationError("file", "malformed csv: "+err.Error())
		}
		lines = append(lines, strings.Join(row, " | "))
	}

	return &driven.NormaliseResult{
		Text:       strings.Join(lines, "\n"),
		Extraction: domain.Extraction{OCRUsed: false, OCRConfidence: 1.0},
	}, nil
}
