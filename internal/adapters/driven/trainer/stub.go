package trainer

import (
	"context"
	"os"
	"path/filepath"

	"github.com/custodia-labs/lorastudio/internal/core/domain"
	"github.com/custodia-labs/lorastudio/internal/core/ports/driven"
)

// Ensure Stub implements the interface.
var _ driven.TrainingEngine = (*Stub)(nil)

const stubCheckpointStep = 100

// Stub is the deterministic stand-in backend.
type Stub struct{}

// NewStub creates the stand-in backend.
func NewStub() *Stub {
	return &Stub{}
}

// Name identifies the backend.
func (s *Stub) Name() string {
	return string(domain.TrainerStub)
}

type stubCheckpoint struct {
	BaseModelID    string                `json:"base_model_id"`
	DatasetPaths   domain.DatasetPaths   `json:"dataset_paths"`
	Config         domain.TrainingConfig `json:"config"`
	CheckpointStep int                   `json:"checkpoint_step"`
	Backend        string                `json:"backend"`
}

// Train writes a fixed checkpoint and adapter pair.
func (s *Stub) Train(ctx context.Context, req domain.TrainingRequest) (*domain.TrainingArtifacts, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	adapterDir, checkpointDir, err := prepareDirs(req.OutputDir, "step-100")
	if err != nil {
		return nil, err
	}

	if err := writeJSON(filepath.Join(checkpointDir, "checkpoint.json"), stubCheckpoint{
		BaseModelID:    req.BaseModelID,
		DatasetPaths:   req.DatasetPaths,
		Config:         req.Config,
		CheckpointStep: stubCheckpointStep,
		Backend:        s.Name(),
	}); err != nil {
		return nil, err
	}
	if err := writeJSON(filepath.Join(adapterDir, AdapterConfigFile), adapterConfig{
		BaseModel: req.BaseModelID,
		LoRA:      req.Config,
	}); err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(adapterDir, AdapterWeightsFile), []byte("mock-adapter-weights"), 0o644); err != nil {
		return nil, err
	}

	return &domain.TrainingArtifacts{
		CheckpointPath: checkpointDir,
		AdapterPath:    adapterDir,
	}, nil
}
