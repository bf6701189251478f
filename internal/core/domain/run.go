package domain

import (
	"fmt"
	"time"
)

// RunState is a training run lifecycle state.
type RunState string

// Run states.
const (
	RunQueued     RunState = "queued"
	RunPreflight  RunState = "preflight"
	RunStaging    RunState = "staging"
	RunTraining   RunState = "training"
	RunEvaluating RunState = "evaluating"
	RunPackaging  RunState = "packaging"
	RunReady      RunState = "ready"
	RunFailed     RunState = "failed"
	RunCancelled  RunState = "cancelled"
)

// allowedTransitions is the run state machine. Stages may only advance
// one step; FAILED and CANCELLED re-enter through QUEUED.
var allowedTransitions = map[RunState][]RunState{
	RunQueued:     {RunPreflight, RunCancelled},
	RunPreflight:  {RunStaging, RunFailed, RunCancelled},
	RunStaging:    {RunTraining, RunFailed, RunCancelled},
	RunTraining:   {RunEvaluating, RunFailed, RunCancelled},
	RunEvaluating: {RunPackaging, RunFailed, RunCancelled},
	RunPackaging:  {RunReady, RunFailed, RunCancelled},
	RunReady:      {},
	RunFailed:     {RunQueued},
	RunCancelled:  {RunQueued},
}

// CanTransition reports whether from -> to is in the transition table.
func CanTransition(from, to RunState) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known state.
func (s RunState) Valid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

// Terminal reports whether s is READY, FAILED or CANCELLED.
func (s RunState) Terminal() bool {
	return s == RunReady || s == RunFailed || s == RunCancelled
}

// Retryable reports whether a run in s may re-enter QUEUED.
func (s RunState) Retryable() bool {
	return s == RunFailed || s == RunCancelled
}

// TrainingRun is a fine-tuning job. Only the run orchestrator mutates it.
type TrainingRun struct {
	// ID is the unique identifier for the run.
	ID string

	// TenantID and ProjectID scope the run.
	TenantID  string
	ProjectID string

	// DatasetVersionID is the dataset the run trains on.
	DatasetVersionID string

	// RequestedBy identifies the caller that created the run.
	RequestedBy string

	// BaseModelID is the registry id of the frozen base model.
	BaseModelID string

	// Config is the adapter training configuration.
	Config TrainingConfig

	// State is the current lifecycle state.
	State RunState

	// StateMessage describes the latest transition.
	StateMessage string

	// Progress is a monotonic fraction in [0,1].
	Progress float64

	// VRAMEstimateGB is the admission-control estimate.
	VRAMEstimateGB float64

	// Artifact locations, empty until produced.
	CheckpointPath string
	AdapterPath    string
	PackagePath    string

	// EvalReportID references the evaluation report, empty until evaluated.
	EvalReportID string

	// ErrorMessage is set when the run fails.
	ErrorMessage string

	// CreatedAt is when the run was queued first.
	CreatedAt time.Time

	// UpdatedAt is the last mutation time.
	UpdatedAt time.Time
}

// RunEvent is an append-only record of one state transition.
type RunEvent struct {
	// ID is the unique identifier for the event.
	ID string

	// RunID links to the run.
	RunID string

	// TenantID and ProjectID scope the event.
	TenantID  string
	ProjectID string

	// FromState is empty for the initial QUEUED event.
	FromState RunState

	// ToState is the state entered.
	ToState RunState

	// Message is the transition description.
	Message string

	// Details carries optional context such as a failure reason.
	Details map[string]string

	// CreatedAt is the transition time.
	CreatedAt time.Time
}

// TrainingConfig is the adapter training configuration.
type TrainingConfig struct {
	LoRARank                  int     `json:"lora_rank"`
	LoRAAlpha                 int     `json:"lora_alpha"`
	LoRADropout               float64 `json:"lora_dropout"`
	SequenceLength            int     `json:"sequence_length"`
	PerDeviceBatchSize        int     `json:"per_device_batch_size"`
	GradientAccumulationSteps int     `json:"gradient_accumulation_steps"`
	Precision                 string  `json:"precision"`
	Epochs                    int     `json:"epochs"`
	MaxSteps                  int     `json:"max_steps"`
	SaveEverySteps            int     `json:"save_every_steps"`
	Use4Bit                   bool    `json:"use_4bit"`
}

// DefaultTrainingConfig returns the QLoRA defaults sized for an 8GB card.
func DefaultTrainingConfig() TrainingConfig {
	return TrainingConfig{
		LoRARank:                  16,
		LoRAAlpha:                 32,
		LoRADropout:               0.05,
		SequenceLength:            1024,
		PerDeviceBatchSize:        1,
		GradientAccumulationSteps: 8,
		Precision:                 "bf16",
		Epochs:                    3,
		MaxSteps:                  0,
		SaveEverySteps:            100,
		Use4Bit:                   true,
	}
}

// EffectiveBatchSize is the per-device batch times accumulation steps.
func (c TrainingConfig) EffectiveBatchSize() int {
	steps := c.GradientAccumulationSteps
	if steps < 1 {
		steps = 1
	}
	return c.PerDeviceBatchSize * steps
}

// Validate checks every field against its bounds.
func (c TrainingConfig) Validate() error {
	ints := []struct {
		name     string
		val      int
		min, max int
	}{
		{"lora_rank", c.LoRARank, 4, 256},
		{"lora_alpha", c.LoRAAlpha, 8, 512},
		{"sequence_length", c.SequenceLength, 256, 8192},
		{"per_device_batch_size", c.PerDeviceBatchSize, 1, 64},
		{"gradient_accumulation_steps", c.GradientAccumulationSteps, 1, 1024},
		{"epochs", c.Epochs, 1, 30},
		{"max_steps", c.MaxSteps, 0, 200000},
		{"save_every_steps", c.SaveEverySteps, 10, 50000},
	}
	for _, f := range ints {
		if f.val < f.min || f.val > f.max {
			return NewValidationError(f.name, fmt.Sprintf("must be between %d and %d", f.min, f.max))
		}
	}
	if c.LoRADropout < 0 || c.LoRADropout > 0.6 {
		return NewValidationError("lora_dropout", "must be between 0 and 0.6")
	}
	if c.Precision == "" {
		return NewValidationError("precision", "must not be empty")
	}
	return nil
}

// VRAMEstimate is the admission-control verdict for a configuration.
type VRAMEstimate struct {
	BaseModelID    string  `json:"base_model_id"`
	EstimatedGB    float64 `json:"estimated_gb"`
	SafeLimitGB    float64 `json:"safe_limit_gb"`
	WillFit        bool    `json:"will_fit"`
	Recommendation string  `json:"recommendation"`
}

// TrainingRequest is the input handed to a training backend.
type TrainingRequest struct {
	OutputDir    string
	BaseModelID  string
	DatasetPaths DatasetPaths
	Config       TrainingConfig
}

// TrainingArtifacts locates the outputs of a training backend.
type TrainingArtifacts struct {
	CheckpointPath string
	AdapterPath    string
}

// RunManifest identifies the lineage of a deployment bundle.
type RunManifest struct {
	RunID            string `json:"run_id"`
	DatasetVersionID string `json:"dataset_version_id"`
	BaseModelID      string `json:"base_model_id"`
	EvalReportID     string `json:"eval_report_id"`
}

// RunSnapshot is the staging record of what a run trains on.
type RunSnapshot struct {
	DatasetVersionID string         `json:"dataset_version_id"`
	DatasetHash      string         `json:"dataset_hash"`
	BaseModelID      string         `json:"base_model_id"`
	Config           TrainingConfig `json:"config"`
}
