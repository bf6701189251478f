package driven

import (
	"context"

	"github.com/custodia-labs/lorastudio/internal/core/domain"
)

// Normaliser extracts text from one or more upload formats.
type Normaliser interface {
	// SupportedFileTypes returns the file types this normaliser handles.
	SupportedFileTypes() []domain.FileType

	// Priority returns the selection priority (higher = preferred).
	// Format-specific normalisers should return 50-89.
	// Fallback normalisers should return 1-9.
	Priority() int

	// Normalise extracts text from a raw upload.
	Normalise(ctx context.Context, raw *domain.RawFile) (*NormaliseResult, error)
}

// NormaliseResult contains the output of extraction.
// The text is not yet whitespace-normalized or segmented.
type NormaliseResult struct {
	// Text is the extracted text.
	Text string

	// Extraction records how the text was obtained.
	Extraction domain.Extraction
}

// NormaliserRegistry selects the appropriate normaliser for an upload.
type NormaliserRegistry interface {
	// Normalise extracts text using the highest priority normaliser
	// registered for the upload's file type.
	Normalise(ctx context.Context, raw *domain.RawFile) (*NormaliseResult, error)

	// Register adds a normaliser to the registry.
	Register(normaliser Normaliser)

	// SupportedFileTypes returns all file types that can be normalised.
	SupportedFileTypes() []domain.FileType
}
