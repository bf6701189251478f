package file

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/custodia-labs/lorastudio/internal/core/domain"
)

// Environment overrides applied after the file is decoded.
const (
	EnvDataDir         = "LORASTUDIO_DATA_DIR"
	EnvTrainerBackend  = "LORASTUDIO_TRAINER_BACKEND"
	EnvTrainerCommand  = "LORASTUDIO_TRAINER_COMMAND"
	defaultConfigName  = "config.toml"
	defaultHomeDirName = ".lorastudio"
)

// fileConfig mirrors the TOML layout. Durations are strings.
type fileConfig struct {
	Storage    storageSection    `toml:"storage"`
	Ingest     ingestSection     `toml:"ingest"`
	Dataset    datasetSection    `toml:"dataset"`
	Training   trainingSection   `toml:"training"`
	Evaluation evaluationSection `toml:"evaluation"`
	Worker     workerSection     `toml:"worker"`
	Inbox      inboxSection      `toml:"inbox"`
	Plans      plansSection      `toml:"plans"`
	Telemetry  telemetrySection  `toml:"telemetry"`
	Models     []modelEntry      `toml:"models"`
}

type storageSection struct {
	DataDir string `toml:"data_dir"`
	Backend string `toml:"backend"`
}

type datasetSection struct {
	ChunkWords   int `toml:"chunk_words"`
	ChunkOverlap int `toml:"chunk_overlap"`
}

type ingestSection struct {
	DocQualityThreshold    int     `toml:"doc_quality_threshold"`
	NearDuplicateThreshold float64 `toml:"near_duplicate_threshold"`
	MaxUploadMB            int     `toml:"max_upload_mb"`
	MaxMetadataBytes       int     `toml:"max_metadata_bytes"`
}

type trainingSection struct {
	MaxGPUVRAMGB     float64 `toml:"max_gpu_vram_gb"`
	VRAMSafetyFactor float64 `toml:"vram_safety_factor"`
	Backend          string  `toml:"backend"`
	CommandTemplate  string  `toml:"command_template"`
}

type evaluationSection struct {
	Predictor     string `toml:"predictor"`
	OllamaBaseURL string `toml:"ollama_base_url"`
	OllamaModel   string `toml:"ollama_model"`
	OllamaTimeout string `toml:"ollama_timeout"`
}

type workerSection struct {
	Enabled         bool   `toml:"enabled"`
	PollInterval    string `toml:"poll_interval"`
	MaxRunsPerCycle int    `toml:"max_runs_per_cycle"`
	StopTimeout     string `toml:"stop_timeout"`
	HistoryKeep     int    `toml:"history_keep"`
}

type inboxSection struct {
	Enabled       bool    `toml:"enabled"`
	Dir           string  `toml:"dir"`
	Tenant        string  `toml:"tenant"`
	Project       string  `toml:"project"`
	RatePerSecond float64 `toml:"rate_per_second"`
	Burst         int     `toml:"burst"`
}

type plansSection struct {
	DefaultTier string            `toml:"default_tier"`
	Tenants     map[string]string `toml:"tenants"`
}

type telemetrySection struct {
	ServiceName     string `toml:"service_name"`
	TraceStdout     bool   `toml:"trace_stdout"`
	MetricsStdout   bool   `toml:"metrics_stdout"`
	MetricsInterval string `toml:"metrics_interval"`
}

type modelEntry struct {
	ID          string `toml:"id"`
	License     string `toml:"license"`
	VRAMTier    string `toml:"vram_tier"`
	IntendedUse string `toml:"intended_use"`
	Approved    bool   `toml:"approved"`
}

// DefaultPath returns ~/.lorastudio/config.toml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, defaultHomeDirName, defaultConfigName), nil
}

// Load reads the configuration at path. A missing file yields the
// defaults. Keys absent from the file keep their default values.
// Environment overrides are applied last and the result is validated.
func Load(path string) (domain.Config, error) {
	fc := toFile(domain.DefaultConfig())

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return domain.Config{}, fmt.Errorf("reading config %s: %w", path, err)
		default:
			dec := toml.NewDecoder(bytes.NewReader(data))
			dec.DisallowUnknownFields()
			if err := dec.Decode(&fc); err != nil {
				return domain.Config{}, domain.NewValidationError("config", fmt.Sprintf("parsing %s: %v", path, err))
			}
		}
	}

	applyEnv(&fc)

	cfg, err := fc.toDomain()
	if err != nil {
		return domain.Config{}, err
	}
	if cfg.Storage.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return domain.Config{}, fmt.Errorf("getting home directory: %w", err)
		}
		cfg.Storage.DataDir = filepath.Join(home, defaultHomeDirName, "data")
	}
	if err := cfg.Validate(); err != nil {
		return domain.Config{}, err
	}
	return cfg, nil
}

// applyEnv overlays the supported environment variables.
func applyEnv(fc *fileConfig) {
	if v := os.Getenv(EnvDataDir); v != "" {
		fc.Storage.DataDir = v
	}
	if v := os.Getenv(EnvTrainerBackend); v != "" {
		fc.Training.Backend = v
	}
	if v := os.Getenv(EnvTrainerCommand); v != "" {
		fc.Training.CommandTemplate = v
	}
}

// toFile converts a domain config into its file form.
func toFile(cfg domain.Config) fileConfig {
	tenants := make(map[string]string, len(cfg.Plans.Tenants))
	for tenant, tier := range cfg.Plans.Tenants {
		tenants[tenant] = string(tier)
	}
	return fileConfig{
		Storage: storageSection{
			DataDir: cfg.Storage.DataDir,
			Backend: string(cfg.Storage.Backend),
		},
		Ingest: ingestSection{
			DocQualityThreshold:    cfg.Ingest.DocQualityThreshold,
			NearDuplicateThreshold: cfg.Ingest.NearDuplicateThreshold,
			MaxUploadMB:            cfg.Ingest.MaxUploadMB,
			MaxMetadataBytes:       cfg.Ingest.MaxMetadataBytes,
		},
		Dataset: datasetSection{
			ChunkWords:   cfg.Dataset.ChunkWords,
			ChunkOverlap: cfg.Dataset.ChunkOverlap,
		},
		Training: trainingSection{
			MaxGPUVRAMGB:     cfg.Training.MaxGPUVRAMGB,
			VRAMSafetyFactor: cfg.Training.VRAMSafetyFactor,
			Backend:          string(cfg.Training.Backend),
			CommandTemplate:  cfg.Training.CommandTemplate,
		},
		Evaluation: evaluationSection{
			Predictor:     string(cfg.Evaluation.Predictor),
			OllamaBaseURL: cfg.Evaluation.OllamaBaseURL,
			OllamaModel:   cfg.Evaluation.OllamaModel,
			OllamaTimeout: cfg.Evaluation.OllamaTimeout.String(),
		},
		Worker: workerSection{
			Enabled:         cfg.Worker.Enabled,
			PollInterval:    cfg.Worker.PollInterval.String(),
			MaxRunsPerCycle: cfg.Worker.MaxRunsPerCycle,
			StopTimeout:     cfg.Worker.StopTimeout.String(),
			HistoryKeep:     cfg.Worker.HistoryKeep,
		},
		Inbox: inboxSection{
			Enabled:       cfg.Inbox.Enabled,
			Dir:           cfg.Inbox.Dir,
			Tenant:        cfg.Inbox.TenantID,
			Project:       cfg.Inbox.ProjectID,
			RatePerSecond: cfg.Inbox.RatePerSecond,
			Burst:         cfg.Inbox.Burst,
		},
		Plans: plansSection{
			DefaultTier: string(cfg.Plans.DefaultTier),
			Tenants:     tenants,
		},
		Telemetry: telemetrySection{
			ServiceName:     cfg.Telemetry.ServiceName,
			TraceStdout:     cfg.Telemetry.TraceStdout,
			MetricsStdout:   cfg.Telemetry.MetricsStdout,
			MetricsInterval: cfg.Telemetry.MetricsInterval.String(),
		},
	}
}

// toDomain converts the decoded file into the config value object.
func (fc fileConfig) toDomain() (domain.Config, error) {
	cfg := domain.DefaultConfig()

	ollamaTimeout, err := parseDuration("evaluation.ollama_timeout", fc.Evaluation.OllamaTimeout)
	if err != nil {
		return domain.Config{}, err
	}
	pollInterval, err := parseDuration("worker.poll_interval", fc.Worker.PollInterval)
	if err != nil {
		return domain.Config{}, err
	}
	stopTimeout, err := parseDuration("worker.stop_timeout", fc.Worker.StopTimeout)
	if err != nil {
		return domain.Config{}, err
	}
	metricsInterval, err := parseDuration("telemetry.metrics_interval", fc.Telemetry.MetricsInterval)
	if err != nil {
		return domain.Config{}, err
	}

	cfg.Storage = domain.StorageConfig{
		DataDir: fc.Storage.DataDir,
		Backend: domain.StorageBackend(fc.Storage.Backend),
	}
	cfg.Ingest = domain.IngestConfig{
		DocQualityThreshold:    fc.Ingest.DocQualityThreshold,
		NearDuplicateThreshold: fc.Ingest.NearDuplicateThreshold,
		MaxUploadMB:            fc.Ingest.MaxUploadMB,
		MaxMetadataBytes:       fc.Ingest.MaxMetadataBytes,
	}
	cfg.Dataset = domain.DatasetConfig{
		ChunkWords:   fc.Dataset.ChunkWords,
		ChunkOverlap: fc.Dataset.ChunkOverlap,
	}
	cfg.Training = domain.TrainingSettings{
		MaxGPUVRAMGB:     fc.Training.MaxGPUVRAMGB,
		VRAMSafetyFactor: fc.Training.VRAMSafetyFactor,
		Backend:          domain.TrainerBackend(fc.Training.Backend),
		CommandTemplate:  fc.Training.CommandTemplate,
	}
	cfg.Evaluation = domain.EvaluationSettings{
		Predictor:     domain.PredictorBackend(fc.Evaluation.Predictor),
		OllamaBaseURL: fc.Evaluation.OllamaBaseURL,
		OllamaModel:   fc.Evaluation.OllamaModel,
		OllamaTimeout: ollamaTimeout,
	}
	cfg.Worker = domain.WorkerConfig{
		Enabled:         fc.Worker.Enabled,
		PollInterval:    pollInterval,
		MaxRunsPerCycle: fc.Worker.MaxRunsPerCycle,
		StopTimeout:     stopTimeout,
		HistoryKeep:     fc.Worker.HistoryKeep,
	}
	cfg.Inbox = domain.InboxConfig{
		Enabled:       fc.Inbox.Enabled,
		Dir:           fc.Inbox.Dir,
		TenantID:      fc.Inbox.Tenant,
		ProjectID:     fc.Inbox.Project,
		RatePerSecond: fc.Inbox.RatePerSecond,
		Burst:         fc.Inbox.Burst,
	}
	cfg.Plans = domain.PlanConfig{
		DefaultTier: domain.PlanTier(fc.Plans.DefaultTier),
		Tenants:     make(map[string]domain.PlanTier, len(fc.Plans.Tenants)),
	}
	for tenant, tier := range fc.Plans.Tenants {
		cfg.Plans.Tenants[tenant] = domain.PlanTier(tier)
	}
	cfg.Telemetry = domain.TelemetryConfig{
		ServiceName:     fc.Telemetry.ServiceName,
		TraceStdout:     fc.Telemetry.TraceStdout,
		MetricsStdout:   fc.Telemetry.MetricsStdout,
		MetricsInterval: metricsInterval,
	}

	for i, m := range fc.Models {
		if m.ID == "" {
			return domain.Config{}, domain.NewValidationError(fmt.Sprintf("models[%d].id", i), "must not be empty")
		}
		cfg.Models[m.ID] = domain.BaseModel{
			ID:          m.ID,
			License:     m.License,
			VRAMTier:    m.VRAMTier,
			IntendedUse: m.IntendedUse,
			Approved:    m.Approved,
		}
	}

	return cfg, nil
}

func parseDuration(key, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, domain.NewValidationError(key, fmt.Sprintf("invalid duration %q", value))
	}
	return d, nil
}
