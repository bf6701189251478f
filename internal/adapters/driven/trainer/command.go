package trainer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/custodia-labs/lorastudio/internal/core/domain"
	"github.com/custodia-labs/lorastudio/internal/core/ports/driven"
	"github.com/custodia-labs/lorastudio/internal/logger"
)

// Ensure Command implements the interface.
var _ driven.TrainingEngine = (*Command)(nil)

// outputTailChars bounds the captured stdout/stderr in the result file.
const outputTailChars = 4000

// Command runs an external trainer through the shell.
type Command struct {
	template string
	shell    string
}

// NewCommand creates a command backend for template.
// Placeholders: {output_dir} {adapter_dir} {checkpoint_dir} {train_path}
// {val_path} {test_path} {base_model_id}.
func NewCommand(template string) (*Command, error) {
	if strings.TrimSpace(template) == "" {
		return nil, domain.NewValidationError("training.command_template", "required when backend is command")
	}
	return &Command{template: template, shell: "sh"}, nil
}

// Name identifies the backend.
func (c *Command) Name() string {
	return string(domain.TrainerCommand)
}

type commandResult struct {
	Command    string `json:"command"`
	ReturnCode int    `json:"return_code"`
	StdoutTail string `json:"stdout_tail"`
	StderrTail string `json:"stderr_tail"`
}

// Train renders and runs the command with the output directory as its
// working directory, then checks for the adapter weights.
func (c *Command) Train(ctx context.Context, req domain.TrainingRequest) (*domain.TrainingArtifacts, error) {
	adapterDir, checkpointDir, err := prepareDirs(req.OutputDir, "external")
	if err != nil {
		return nil, err
	}

	rendered := strings.NewReplacer(
		"{output_dir}", req.OutputDir,
		"{adapter_dir}", adapterDir,
		"{checkpoint_dir}", checkpointDir,
		"{train_path}", req.DatasetPaths.Train,
		"{val_path}", req.DatasetPaths.Val,
		"{test_path}", req.DatasetPaths.Test,
		"{base_model_id}", req.BaseModelID,
	).Replace(c.template)

	configJSON, err := json.Marshal(req.Config)
	if err != nil {
		return nil, fmt.Errorf("encoding training config: %w", err)
	}

	cmd := exec.CommandContext(ctx, c.shell, "-c", rendered)
	cmd.Dir = req.OutputDir
	cmd.Env = append(os.Environ(),
		"LORA_BASE_MODEL_ID="+req.BaseModelID,
		"LORA_TRAIN_PATH="+req.DatasetPaths.Train,
		"LORA_VAL_PATH="+req.DatasetPaths.Val,
		"LORA_TEST_PATH="+req.DatasetPaths.Test,
		"LORA_CONFIG_JSON="+string(configJSON),
		"LORA_ADAPTER_DIR="+adapterDir,
		"LORA_CHECKPOINT_DIR="+checkpointDir,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Debug("running external trainer", "command", rendered, "dir", req.OutputDir)
	runErr := cmd.Run()

	code := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			code = exitErr.ExitCode()
		} else {
			code = -1
		}
	}

	if err := writeJSON(filepath.Join(req.OutputDir, "trainer_command_result.json"), commandResult{
		Command:    rendered,
		ReturnCode: code,
		StdoutTail: tail(stdout.String(), outputTailChars),
		StderrTail: tail(stderr.String(), outputTailChars),
	}); err != nil {
		return nil, err
	}

	if runErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		reason := strings.TrimSpace(tail(stderr.String(), 200))
		if reason == "" {
			reason = runErr.Error()
		}
		return nil, &domain.ExternalProcessError{Command: rendered, ExitCode: code, Reason: reason}
	}

	if _, err := os.Stat(filepath.Join(adapterDir, AdapterWeightsFile)); err != nil {
		return nil, &domain.ExternalProcessError{
			Command: rendered,
			Reason:  "trainer did not produce " + AdapterWeightsFile,
		}
	}

	configPath := filepath.Join(adapterDir, AdapterConfigFile)
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		if err := writeJSON(configPath, adapterConfig{BaseModel: req.BaseModelID, LoRA: req.Config}); err != nil {
			return nil, err
		}
	}

	return &domain.TrainingArtifacts{
		CheckpointPath: checkpointDir,
		AdapterPath:    adapterDir,
	}, nil
}

// tail returns the last n bytes of s.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
