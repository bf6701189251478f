package domain

import (
	"fmt"
	"time"
)

const unknownDescription = "Unknown"

// StorageBackend selects the repository implementation.
type StorageBackend string

// Available storage backends.
const (
	// StorageSQLite persists to a SQLite database in the data directory.
	StorageSQLite StorageBackend = "sqlite"

	// StorageMemory keeps everything in process memory.
	StorageMemory StorageBackend = "memory"
)

// IsValid returns true if the storage backend is recognised.
func (b StorageBackend) IsValid() bool {
	return b == StorageSQLite || b == StorageMemory
}

// TrainerBackend selects the training execution backend.
type TrainerBackend string

// Available trainer backends.
const (
	// TrainerStub writes a fixed checkpoint/adapter pair.
	TrainerStub TrainerBackend = "stub"

	// TrainerCommand runs an external trainer command.
	TrainerCommand TrainerBackend = "command"
)

// IsValid returns true if the trainer backend is recognised.
func (b TrainerBackend) IsValid() bool {
	return b == TrainerStub || b == TrainerCommand
}

// Description returns a human-readable description of the backend.
func (b TrainerBackend) Description() string {
	switch b {
	case TrainerStub:
		return "Deterministic stand-in (no GPU)"
	case TrainerCommand:
		return "External trainer command"
	default:
		return unknownDescription
	}
}

// PredictorBackend selects how evaluation obtains candidate answers.
type PredictorBackend string

// Available predictor backends.
const (
	// PredictorReference derives answers from the expected output.
	PredictorReference PredictorBackend = "reference"

	// PredictorOllama asks a local Ollama model.
	PredictorOllama PredictorBackend = "ollama"
)

// IsValid returns true if the predictor backend is recognised.
func (b PredictorBackend) IsValid() bool {
	return b == PredictorReference || b == PredictorOllama
}

// Config is the process configuration value object. It is built once
// at start-up and passed to every component constructor.
type Config struct {
	Storage    StorageConfig
	Ingest     IngestConfig
	Dataset    DatasetConfig
	Training   TrainingSettings
	Evaluation EvaluationSettings
	Worker     WorkerConfig
	Inbox      InboxConfig
	Plans      PlanConfig
	Telemetry  TelemetryConfig

	// Models is the approved base model registry.
	Models map[string]BaseModel
}

// StorageConfig locates persistent state.
type StorageConfig struct {
	// DataDir holds the database and the artifact tree.
	DataDir string

	// Backend selects the repository implementation.
	Backend StorageBackend
}

// DatasetConfig controls example synthesis.
type DatasetConfig struct {
	// ChunkWords is the maximum words per synthesized passage.
	ChunkWords int

	// ChunkOverlap is the number of words repeated between passages.
	ChunkOverlap int
}

// IngestConfig holds document acceptance knobs.
type IngestConfig struct {
	// DocQualityThreshold is the minimum quality for READY (0-100).
	DocQualityThreshold int

	// NearDuplicateThreshold is the cosine similarity verdict cut-off.
	NearDuplicateThreshold float64

	// MaxUploadMB caps decoded upload size.
	MaxUploadMB int

	// MaxMetadataBytes caps the serialized metadata object.
	MaxMetadataBytes int
}

// MaxUploadBytes returns the upload cap in bytes.
func (c IngestConfig) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) * 1024 * 1024
}

// TrainingSettings holds admission control and backend selection.
type TrainingSettings struct {
	// MaxGPUVRAMGB is the memory of the target card.
	MaxGPUVRAMGB float64

	// VRAMSafetyFactor scales MaxGPUVRAMGB to the admission limit.
	VRAMSafetyFactor float64

	// Backend selects the execution backend.
	Backend TrainerBackend

	// CommandTemplate is the external trainer command line.
	CommandTemplate string
}

// SafeLimitGB is the admission limit.
func (c TrainingSettings) SafeLimitGB() float64 {
	return c.MaxGPUVRAMGB * c.VRAMSafetyFactor
}

// EvaluationSettings selects the prediction backend.
type EvaluationSettings struct {
	Predictor     PredictorBackend
	OllamaBaseURL string
	OllamaModel   string
	OllamaTimeout time.Duration
}

// WorkerConfig holds background poller settings.
type WorkerConfig struct {
	// Enabled is the master switch for the poller.
	Enabled bool

	// PollInterval is the sleep between cycles.
	PollInterval time.Duration

	// MaxRunsPerCycle bounds the runs driven per wake-up.
	MaxRunsPerCycle int

	// StopTimeout bounds the wait for an in-flight cycle at shutdown.
	StopTimeout time.Duration

	// HistoryKeep is how many cycle results are retained.
	HistoryKeep int
}

// InboxConfig holds the watched-directory ingestion settings.
type InboxConfig struct {
	Enabled       bool
	Dir           string
	TenantID      string
	ProjectID     string
	RatePerSecond float64
	Burst         int
}

// PlanConfig assigns plan tiers to tenants.
type PlanConfig struct {
	DefaultTier PlanTier
	Tenants     map[string]PlanTier
}

// TierFor returns the configured tier for tenantID.
func (c PlanConfig) TierFor(tenantID string) PlanTier {
	if tier, ok := c.Tenants[tenantID]; ok {
		return tier
	}
	return c.DefaultTier
}

// TelemetryConfig controls tracing and metric output.
type TelemetryConfig struct {
	ServiceName string
	TraceStdout bool
	// MetricsStdout exports the pipeline counters to stdout every MetricsInterval.
	MetricsStdout   bool
	MetricsInterval time.Duration
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() Config {
	return Config{
		Storage: StorageConfig{
			Backend: StorageSQLite,
		},
		Ingest: IngestConfig{
			DocQualityThreshold:    65,
			NearDuplicateThreshold: 0.9,
			MaxUploadMB:            50,
			MaxMetadataBytes:       32000,
		},
		Training: TrainingSettings{
			MaxGPUVRAMGB:     8.0,
			VRAMSafetyFactor: 0.85,
			Backend:          TrainerStub,
		},
		Evaluation: EvaluationSettings{
			Predictor:     PredictorReference,
			OllamaBaseURL: "http://localhost:11434",
			OllamaModel:   "llama3.1:8b",
			OllamaTimeout: 45 * time.Second,
		},
		Worker: WorkerConfig{
			Enabled:         true,
			PollInterval:    2 * time.Second,
			MaxRunsPerCycle: 3,
			StopTimeout:     5 * time.Second,
			HistoryKeep:     200,
		},
		Inbox: InboxConfig{
			RatePerSecond: 2,
			Burst:         4,
		},
		Plans: PlanConfig{
			DefaultTier: PlanStarter,
			Tenants:     map[string]PlanTier{},
		},
		Dataset: DatasetConfig{
			ChunkWords: 220,
		},
		Telemetry: TelemetryConfig{
			ServiceName:     "lorastudio",
			MetricsInterval: time.Minute,
		},
		Models: DefaultModelRegistry(),
	}
}

// Validate checks the configuration for out-of-range values.
func (c Config) Validate() error {
	if !c.Storage.Backend.IsValid() {
		return NewValidationError("storage.backend", fmt.Sprintf("unknown backend %q", c.Storage.Backend))
	}
	if c.Ingest.DocQualityThreshold < 0 || c.Ingest.DocQualityThreshold > 100 {
		return NewValidationError("ingest.doc_quality_threshold", "must be between 0 and 100")
	}
	if c.Ingest.NearDuplicateThreshold <= 0 || c.Ingest.NearDuplicateThreshold > 1 {
		return NewValidationError("ingest.near_duplicate_threshold", "ratio must be between 0 and 1")
	}
	if c.Ingest.MaxUploadMB <= 0 {
		return NewValidationError("ingest.max_upload_mb", "must be positive")
	}
	if c.Ingest.MaxMetadataBytes <= 0 {
		return NewValidationError("ingest.max_metadata_bytes", "must be positive")
	}
	if c.Training.MaxGPUVRAMGB <= 0 {
		return NewValidationError("training.max_gpu_vram_gb", "must be positive")
	}
	if c.Training.VRAMSafetyFactor <= 0 || c.Training.VRAMSafetyFactor > 1 {
		return NewValidationError("training.vram_safety_factor", "ratio must be between 0 and 1")
	}
	if !c.Training.Backend.IsValid() {
		return NewValidationError("training.backend", fmt.Sprintf("unknown backend %q", c.Training.Backend))
	}
	if c.Training.Backend == TrainerCommand && c.Training.CommandTemplate == "" {
		return NewValidationError("training.command_template", "required when backend is command")
	}
	if !c.Evaluation.Predictor.IsValid() {
		return NewValidationError("evaluation.predictor", fmt.Sprintf("unknown predictor %q", c.Evaluation.Predictor))
	}
	if c.Dataset.ChunkWords <= 0 {
		return NewValidationError("dataset.chunk_words", "must be positive")
	}
	if c.Dataset.ChunkOverlap < 0 || c.Dataset.ChunkOverlap >= c.Dataset.ChunkWords {
		return NewValidationError("dataset.chunk_overlap", "must be non-negative and below chunk_words")
	}
	if c.Worker.PollInterval <= 0 {
		return NewValidationError("worker.poll_interval", "must be positive")
	}
	if c.Telemetry.MetricsInterval <= 0 {
		return NewValidationError("telemetry.metrics_interval", "must be positive")
	}
	if c.Worker.MaxRunsPerCycle <= 0 {
		return NewValidationError("worker.max_runs_per_cycle", "must be positive")
	}
	if _, ok := LimitsFor(c.Plans.DefaultTier); !ok {
		return NewValidationError("plans.default_tier", fmt.Sprintf("unknown tier %q", c.Plans.DefaultTier))
	}
	for tenant, tier := range c.Plans.Tenants {
		if _, ok := LimitsFor(tier); !ok {
			return NewValidationError("plans.tenants."+tenant, fmt.Sprintf("unknown tier %q", tier))
		}
	}
	if c.Inbox.Enabled && (c.Inbox.Dir == "" || c.Inbox.TenantID == "" || c.Inbox.ProjectID == "") {
		return NewValidationError("inbox", "dir, tenant and project are required when enabled")
	}
	return nil
}
