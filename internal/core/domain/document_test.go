package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectFileType(t *testing.T) {
	tests := []struct {
		filename string
		expected FileType
	}{
		{"policy.pdf", FileTypePDF},
		{"POLICY.PDF", FileTypePDF},
		{"handbook.docx", FileTypeDOCX},
		{"notes.txt", FileTypeText},
		{"readme.md", FileTypeMarkdown},
		{"page.html", FileTypeHTML},
		{"page.htm", FileTypeHTML},
		{"table.csv", FileTypeCSV},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			ft, err := DetectFileType(tt.filename)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, ft)
		})
	}
}

func TestDetectFileType_Unsupported(t *testing.T) {
	for _, name := range []string{"image.png", "archive.zip", "noext"} {
		_, err := DetectFileType(name)
		assert.ErrorIs(t, err, ErrValidation, name)
	}
}

func TestDocumentStatus_Trainable(t *testing.T) {
	assert.True(t, DocumentReady.Trainable())
	assert.True(t, DocumentNeedsReview.Trainable())
	assert.False(t, DocumentRedactionRequired.Trainable())
	assert.False(t, DocumentRejected.Trainable())
	assert.False(t, DocumentStatus("bogus").Valid())
}

func TestDocumentFilter_Matches(t *testing.T) {
	doc := &Document{ID: "doc-1", Status: DocumentReady}

	assert.True(t, DocumentFilter{}.Matches(doc))
	assert.True(t, DocumentFilter{Statuses: []DocumentStatus{DocumentReady}}.Matches(doc))
	assert.False(t, DocumentFilter{Statuses: []DocumentStatus{DocumentRejected}}.Matches(doc))
	assert.True(t, DocumentFilter{IDs: []string{"doc-2", "doc-1"}}.Matches(doc))
	assert.False(t, DocumentFilter{IDs: []string{"doc-2"}}.Matches(doc))
}
