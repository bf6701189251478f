package pdf

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/lorastudio/internal/core/domain"
	"github.com/custodia-labs/lorastudio/internal/core/ports/driven"
)

// mockRunner is a test double for CommandRunner.
type mockRunner struct {
	output []byte
	err    error
	name   string
	args   []string
}

func (m *mockRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	m.name = name
	m.args = args
	return m.output, m.err
}

func pdfFile() *domain.RawFile {
	return &domain.RawFile{
		Filename: "policy.pdf",
		FileType: domain.FileTypePDF,
		Content:  []byte("%PDF-1.4 fake pdf content"),
	}
}

func TestInterfaceCompliance(t *testing.T) {
	var _ driven.Normaliser = (*Normaliser)(nil)
	assert.Equal(t, []domain.FileType{domain.FileTypePDF}, New().SupportedFileTypes())
	assert.Equal(t, 50, New().Priority())
}

func TestNormalise_NilDocument(t *testing.T) {
	result, err := New().Normalise(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Nil(t, result)
}

func TestNormalise_TextLayer(t *testing.T) {
	runner := &mockRunner{output: []byte("Page one text\fPage two text\f")}
	n := NewWithRunner(runner)

	result, err := n.Normalise(context.Background(), pdfFile())
	require.NoError(t, err)

	assert.Equal(t, "pdftotext", runner.name)
	assert.Equal(t, "-", runner.args[len(runner.args)-1])
	assert.Equal(t, "Page one text\nPage two text", result.Text)
	assert.False(t, result.Extraction.OCRUsed)
	assert.Equal(t, 0.95, result.Extraction.OCRConfidence)
}

func TestNormalise_NoTextLayer(t *testing.T) {
	n := NewWithRunner(&mockRunner{output: []byte("\f\f  \n")})

	result, err := n.Normalise(context.Background(), pdfFile())
	require.NoError(t, err)
	assert.Empty(t, result.Text)
	assert.True(t, result.Extraction.OCRUsed)
	assert.Equal(t, 0.2, result.Extraction.OCRConfidence)
}

func TestNormalise_ToolMissing(t *testing.T) {
	n := NewWithRunner(&mockRunner{err: ErrPDFToolNotFound})

	_, err := n.Normalise(context.Background(), pdfFile())
	assert.ErrorIs(t, err, ErrPDFToolNotFound)
}

func TestNormalise_ToolFailure(t *testing.T) {
	n := NewWithRunner(&mockRunner{err: errors.New("exit status 1")})

	_, err := n.Normalise(context.Background(), pdfFile())
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestInstallInstructions(t *testing.T) {
	instructions := InstallInstructions()
	assert.Contains(t, instructions, "pdftotext")
	assert.Contains(t, instructions, "brew install poppler")
	assert.Contains(t, instructions, "apt install poppler-utils")
}

func TestErrPDFToolNotFound(t *testing.T) {
	assert.Contains(t, ErrPDFToolNotFound.Error(), "pdftotext")
}

// Integration test - only runs if pdftotext is available.
func TestNormalise_Integration(t *testing.T) {
	if err := CheckAvailable(); err != nil {
		t.Skip("pdftotext not available, skipping integration test")
	}
	t.Skip("integration test requires sample PDF file")
}
