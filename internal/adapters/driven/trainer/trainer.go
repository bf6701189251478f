package trainer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/custodia-labs/lorastudio/internal/core/domain"
	"github.com/custodia-labs/lorastudio/internal/core/ports/driven"
)

// Artifact file names.
const (
	AdapterDirName     = "adapter"
	AdapterConfigFile  = "adapter_config.json"
	AdapterWeightsFile = "adapter_model.safetensors"
)

// New returns the backend selected by settings.
func New(settings domain.TrainingSettings) (driven.TrainingEngine, error) {
	switch settings.Backend {
	case domain.TrainerStub:
		return NewStub(), nil
	case domain.TrainerCommand:
		return NewCommand(settings.CommandTemplate)
	default:
		return nil, fmt.Errorf("%w: trainer backend %q", domain.ErrUnsupportedType, settings.Backend)
	}
}

// adapterConfig is written beside the adapter weights.
type adapterConfig struct {
	BaseModel string                `json:"base_model"`
	LoRA      domain.TrainingConfig `json:"lora"`
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// prepareDirs creates the adapter and checkpoint directories.
func prepareDirs(outputDir, checkpointName string) (adapterDir, checkpointDir string, err error) {
	adapterDir = filepath.Join(outputDir, AdapterDirName)
	checkpointDir = filepath.Join(outputDir, "checkpoints", checkpointName)
	for _, dir := range []string{adapterDir, checkpointDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", "", fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return adapterDir, checkpointDir, nil
}
