package driven

import (
	"context"

	"github.com/custodia-labs/lorastudio/internal/core/domain"
)

// TrainingEngine produces checkpoint and adapter artifacts for a run.
// Implementations may block for as long as training takes.
type TrainingEngine interface {
	// Train runs training into req.OutputDir.
	// Failures of an external process are ExternalProcessErrors.
	Train(ctx context.Context, req domain.TrainingRequest) (*domain.TrainingArtifacts, error)

	// Name identifies the backend.
	Name() string
}

// Packager bundles an adapter directory into a deployable archive.
type Packager interface {
	// Package copies adapterDir into a fresh bundle under targetDir,
	// writes the manifest and inference policy and returns the archive path.
	Package(ctx context.Context, targetDir, adapterDir string, manifest domain.RunManifest) (string, error)
}
