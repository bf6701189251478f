package domain

import (
	"path/filepath"
	"strings"
	"time"
)

// DocumentStatus is the ingestion verdict for a document.
type DocumentStatus string

// Document statuses.
const (
	DocumentReady             DocumentStatus = "ready"
	DocumentNeedsReview       DocumentStatus = "needs_review"
	DocumentRedactionRequired DocumentStatus = "redaction_required"
	DocumentRejected          DocumentStatus = "rejected"
)

// Valid reports whether s is a known status.
func (s DocumentStatus) Valid() bool {
	switch s {
	case DocumentReady, DocumentNeedsReview, DocumentRedactionRequired, DocumentRejected:
		return true
	}
	return false
}

// Trainable reports whether documents in this status feed dataset builds.
func (s DocumentStatus) Trainable() bool {
	return s == DocumentReady || s == DocumentNeedsReview
}

// FileType is a supported upload format.
type FileType string

// Supported file types.
const (
	FileTypePDF      FileType = "pdf"
	FileTypeDOCX     FileType = "docx"
	FileTypeText     FileType = "txt"
	FileTypeMarkdown FileType = "markdown"
	FileTypeHTML     FileType = "html"
	FileTypeCSV      FileType = "csv"
)

// extensionTypes is the fixed upload allow-list.
var extensionTypes = map[string]FileType{
	".pdf":  FileTypePDF,
	".docx": FileTypeDOCX,
	".txt":  FileTypeText,
	".md":   FileTypeMarkdown,
	".html": FileTypeHTML,
	".htm":  FileTypeHTML,
	".csv":  FileTypeCSV,
}

// DetectFileType maps a filename extension onto a FileType.
func DetectFileType(filename string) (FileType, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	ft, ok := extensionTypes[ext]
	if !ok {
		return "", NewValidationError("filename", "unsupported file type: "+ext)
	}
	return ft, nil
}

// Document is an uploaded file after extraction, scoring and deduplication.
// Documents are created once and only their status changes afterwards.
type Document struct {
	// ID is the unique identifier for the document.
	ID string

	// TenantID and ProjectID scope the document.
	TenantID  string
	ProjectID string

	// Filename is the sanitised upload name.
	Filename string

	// FileType is the detected upload format.
	FileType FileType

	// StoragePath locates the raw uploaded bytes.
	StoragePath string

	// NormalizedPath locates the normalized text artifact.
	NormalizedPath string

	// SizeBytes is the size of the raw upload.
	SizeBytes int64

	// ContentHash is the hex SHA-256 of the normalized text.
	ContentHash string

	// NearDuplicateOf references the existing document this one duplicates.
	// Empty when there is none.
	NearDuplicateOf string

	// QualityScore is the 0-100 ingestion quality score.
	QualityScore int

	// PIIHits lists detected personal data previews.
	PIIHits []PIIHit

	// Metadata is the caller-supplied metadata object.
	Metadata map[string]any

	// Status is the ingestion verdict.
	Status DocumentStatus

	// CreatedAt is when the document was ingested.
	CreatedAt time.Time
}

// PIIHit is one detected personal data match.
type PIIHit struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Section is a titled run of content lines.
type Section struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Extraction describes how text was obtained from the raw bytes.
type Extraction struct {
	OCRUsed       bool    `json:"ocr_used"`
	OCRConfidence float64 `json:"ocr_confidence"`
}

// NormalizedArtifact is the persisted normalized form of a document.
type NormalizedArtifact struct {
	Filename   string         `json:"filename"`
	Text       string         `json:"text"`
	Sections   []Section      `json:"sections"`
	Metadata   map[string]any `json:"metadata"`
	Extraction Extraction     `json:"extraction"`
}

// RawFile is an upload before extraction.
type RawFile struct {
	Filename string
	FileType FileType
	Content  []byte
}

// DocumentFilter narrows document listings.
type DocumentFilter struct {
	// Statuses restricts results to these statuses. Empty means all.
	Statuses []DocumentStatus

	// IDs restricts results to these document ids. Empty means all.
	IDs []string
}

// Matches reports whether doc passes the filter.
func (f DocumentFilter) Matches(doc *Document) bool {
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if doc.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(f.IDs) > 0 {
		for _, id := range f.IDs {
			if doc.ID == id {
				return true
			}
		}
		return false
	}
	return true
}
