package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 65, cfg.Ingest.DocQualityThreshold)
	assert.Equal(t, int64(50*1024*1024), cfg.Ingest.MaxUploadBytes())
	assert.InDelta(t, 6.8, cfg.Training.SafeLimitGB(), 1e-9)
	assert.Len(t, cfg.Models, 3)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"storage backend", func(c *Config) { c.Storage.Backend = "redis" }, "storage.backend"},
		{"quality threshold", func(c *Config) { c.Ingest.DocQualityThreshold = 120 }, "ingest.doc_quality_threshold"},
		{"near duplicate", func(c *Config) { c.Ingest.NearDuplicateThreshold = 1.5 }, "ingest.near_duplicate_threshold"},
		{"upload cap", func(c *Config) { c.Ingest.MaxUploadMB = 0 }, "ingest.max_upload_mb"},
		{"vram", func(c *Config) { c.Training.MaxGPUVRAMGB = 0 }, "training.max_gpu_vram_gb"},
		{"safety factor", func(c *Config) { c.Training.VRAMSafetyFactor = 0 }, "training.vram_safety_factor"},
		{"command template", func(c *Config) { c.Training.Backend = TrainerCommand }, "training.command_template"},
		{"predictor", func(c *Config) { c.Evaluation.Predictor = "gpt" }, "evaluation.predictor"},
		{"chunk words", func(c *Config) { c.Dataset.ChunkWords = 0 }, "dataset.chunk_words"},
		{"chunk overlap", func(c *Config) { c.Dataset.ChunkOverlap = 220 }, "dataset.chunk_overlap"},
		{"metrics interval", func(c *Config) { c.Telemetry.MetricsInterval = 0 }, "telemetry.metrics_interval"},
		{"poll interval", func(c *Config) { c.Worker.PollInterval = 0 }, "worker.poll_interval"},
		{"plan tier", func(c *Config) { c.Plans.DefaultTier = "free" }, "plans.default_tier"},
		{"tenant tier", func(c *Config) { c.Plans.Tenants = map[string]PlanTier{"acme": "gold"} }, "plans.tenants.acme"},
		{"inbox", func(c *Config) { c.Inbox.Enabled = true }, "inbox"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			var ve *ValidationError
			require.ErrorAs(t, cfg.Validate(), &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestPlanConfig_TierFor(t *testing.T) {
	plans := PlanConfig{DefaultTier: PlanStarter, Tenants: map[string]PlanTier{"acme": PlanPro}}
	assert.Equal(t, PlanPro, plans.TierFor("acme"))
	assert.Equal(t, PlanStarter, plans.TierFor("other"))

	limits, ok := LimitsFor(PlanPro)
	require.True(t, ok)
	assert.Equal(t, int64(200), limits.MaxTrainingRunsMonthly)

	_, ok = LimitsFor("free")
	assert.False(t, ok)
}

func TestTrainerBackend_Description(t *testing.T) {
	assert.True(t, TrainerStub.IsValid())
	assert.NotEqual(t, unknownDescription, TrainerCommand.Description())
	assert.Equal(t, unknownDescription, TrainerBackend("x").Description())
}
