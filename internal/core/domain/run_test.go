package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to RunState
		allowed  bool
	}{
		{RunQueued, RunPreflight, true},
		{RunQueued, RunCancelled, true},
		{RunQueued, RunFailed, false},
		{RunQueued, RunStaging, false},
		{RunPreflight, RunStaging, true},
		{RunPreflight, RunFailed, true},
		{RunStaging, RunTraining, true},
		{RunTraining, RunEvaluating, true},
		{RunTraining, RunPackaging, false},
		{RunEvaluating, RunPackaging, true},
		{RunPackaging, RunReady, true},
		{RunReady, RunQueued, false},
		{RunReady, RunFailed, false},
		{RunFailed, RunQueued, true},
		{RunCancelled, RunQueued, true},
		{RunCancelled, RunPreflight, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, CanTransition(tt.from, tt.to))
		})
	}
}

func TestRunState_Predicates(t *testing.T) {
	assert.True(t, RunReady.Terminal())
	assert.True(t, RunFailed.Terminal())
	assert.True(t, RunCancelled.Terminal())
	assert.False(t, RunTraining.Terminal())

	assert.True(t, RunFailed.Retryable())
	assert.False(t, RunReady.Retryable())

	assert.True(t, RunPackaging.Valid())
	assert.False(t, RunState("paused").Valid())
}

func TestTrainingConfig_Defaults(t *testing.T) {
	cfg := DefaultTrainingConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 8, cfg.EffectiveBatchSize())
}

func TestTrainingConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *TrainingConfig)
		field  string
	}{
		{"rank too small", func(c *TrainingConfig) { c.LoRARank = 2 }, "lora_rank"},
		{"rank too large", func(c *TrainingConfig) { c.LoRARank = 512 }, "lora_rank"},
		{"sequence too short", func(c *TrainingConfig) { c.SequenceLength = 128 }, "sequence_length"},
		{"dropout too large", func(c *TrainingConfig) { c.LoRADropout = 0.7 }, "lora_dropout"},
		{"zero epochs", func(c *TrainingConfig) { c.Epochs = 0 }, "epochs"},
		{"save interval", func(c *TrainingConfig) { c.SaveEverySteps = 5 }, "save_every_steps"},
		{"empty precision", func(c *TrainingConfig) { c.Precision = "" }, "precision"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultTrainingConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)

			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestEvaluationMetrics_Passes(t *testing.T) {
	delta := func(v float64) *float64 { return &v }
	passing := func() EvaluationMetrics {
		return EvaluationMetrics{
			ExactMatch:           0.7,
			SemanticSimilarity:   0.8,
			UnsupportedClaimRate: 0.1,
			RefusalRecall:        0.9,
		}
	}

	tests := []struct {
		name   string
		mutate func(m *EvaluationMetrics)
		want   bool
	}{
		{"all above thresholds", func(_ *EvaluationMetrics) {}, true},
		{"exact match at threshold", func(m *EvaluationMetrics) { m.ExactMatch = 0.6 }, true},
		{"exact match below threshold", func(m *EvaluationMetrics) { m.ExactMatch = 0.5999 }, false},
		{"semantic at threshold", func(m *EvaluationMetrics) { m.SemanticSimilarity = 0.72 }, true},
		{"semantic below threshold", func(m *EvaluationMetrics) { m.SemanticSimilarity = 0.7199 }, false},
		{"unsupported claims at threshold", func(m *EvaluationMetrics) { m.UnsupportedClaimRate = 0.12 }, true},
		{"unsupported claims above threshold", func(m *EvaluationMetrics) { m.UnsupportedClaimRate = 0.13 }, false},
		{"refusal recall at threshold", func(m *EvaluationMetrics) { m.RefusalRecall = 0.8 }, true},
		{"refusal recall below threshold", func(m *EvaluationMetrics) { m.RefusalRecall = 0.7999 }, false},
		{"no prior report", func(m *EvaluationMetrics) { m.RegressionDelta = nil }, true},
		{"small regression", func(m *EvaluationMetrics) { m.RegressionDelta = delta(-0.01) }, true},
		{"regression at threshold", func(m *EvaluationMetrics) { m.RegressionDelta = delta(-0.05) }, true},
		{"regression past threshold", func(m *EvaluationMetrics) { m.RegressionDelta = delta(-0.0501) }, false},
		{"large regression", func(m *EvaluationMetrics) { m.RegressionDelta = delta(-0.2) }, false},
		{"every metric at threshold", func(m *EvaluationMetrics) {
			m.ExactMatch = 0.6
			m.SemanticSimilarity = 0.72
			m.UnsupportedClaimRate = 0.12
			m.RefusalRecall = 0.8
			m.RegressionDelta = delta(-0.05)
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := passing()
			tt.mutate(&m)
			assert.Equal(t, tt.want, m.Passes())
		})
	}
}
