package driven

import (
	"github.com/custodia-labs/lorastudio/internal/core/domain"
)

// ArtifactStore maps tenant/project scoped identifiers onto a durable
// file tree and reads and writes the pipeline's file formats.
type ArtifactStore interface {
	// WriteRaw stores uploaded bytes under a unique name and returns the path.
	WriteRaw(tenantID, projectID, filename string, data []byte) (string, error)

	// WriteNormalized stores the normalized artifact keyed by content hash.
	WriteNormalized(tenantID, projectID, hash string, artifact *domain.NormalizedArtifact) (string, error)

	// ReadNormalized loads a normalized artifact.
	ReadNormalized(path string) (*domain.NormalizedArtifact, error)

	// DatasetDir returns (and creates) the directory for a dataset version.
	DatasetDir(tenantID, projectID, datasetID string) (string, error)

	// RunDir returns (and creates) the directory for a training run.
	RunDir(tenantID, projectID, runID string) (string, error)

	// WriteExamples writes rows as line-delimited JSON.
	WriteExamples(path string, rows []domain.Example) error

	// ReadExamples reads a line-delimited JSON example file.
	// A missing file yields no rows.
	ReadExamples(path string) ([]domain.Example, error)

	// WriteJSON writes v as indented JSON, creating parent directories.
	WriteJSON(path string, v any) error

	// HashFiles returns the hex SHA-256 over the contents of paths in order.
	HashFiles(paths ...string) (string, error)
}
