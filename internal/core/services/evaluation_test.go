package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/lorastudio/internal/adapters/driven/predictor/reference"
	"github.com/custodia-labs/lorastudio/internal/core/domain"
)

func evalRun(id string) *domain.TrainingRun {
	return &domain.TrainingRun{ID: id, TenantID: testTenant, ProjectID: testProject}
}

func TestEvaluate_ReferencePredictor(t *testing.T) {
	env := newTestEnv(t)
	ds := env.buildDataset(t)

	report, err := env.evaluator.Evaluate(context.Background(), evalRun("run-1"), ds)
	require.NoError(t, err)

	m := report.Metrics
	assert.Equal(t, 4, m.GoldExamples)
	assert.Equal(t, 0.5, m.ExactMatch)
	assert.Equal(t, 1.0, m.RefusalRecall)
	assert.Equal(t, 0.6667, m.RefusalPrecision)
	assert.Equal(t, 0.5, m.UnsupportedClaimRate)
	assert.Nil(t, m.RegressionDelta)
	assert.False(t, report.GoNoGo)
	assert.Equal(t, string(domain.PredictorReference), report.Predictor)
	assert.Len(t, report.Failures, 2)
	for _, f := range report.Failures {
		assert.Equal(t, reference.Refusal, f.Answer)
	}

	assert.Equal(t, filepath.Join(filepath.Dir(ds.GoldPath), ReportFile), report.ReportPath)
	data, err := os.ReadFile(report.ReportPath)
	require.NoError(t, err)
	var onDisk reportFile
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Equal(t, m.ExactMatch, onDisk.Metrics.ExactMatch)
	assert.Len(t, onDisk.Failures, 2)

	reports, err := env.evaluator.ReportsForRun(context.Background(), testTenant, testProject, "run-1")
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, report.ID, reports[0].ID)
}

func TestEvaluate_RegressionDelta(t *testing.T) {
	env := newTestEnv(t)
	ds := env.buildDataset(t)

	first, err := env.evaluator.Evaluate(context.Background(), evalRun("run-1"), ds)
	require.NoError(t, err)
	assert.Nil(t, first.Metrics.RegressionDelta)

	// Re-evaluating the same run does not compare against itself.
	again, err := env.evaluator.Evaluate(context.Background(), evalRun("run-1"), ds)
	require.NoError(t, err)
	assert.Nil(t, again.Metrics.RegressionDelta)

	second, err := env.evaluator.Evaluate(context.Background(), evalRun("run-2"), ds)
	require.NoError(t, err)
	require.NotNil(t, second.Metrics.RegressionDelta)
	assert.InDelta(t, 0, *second.Metrics.RegressionDelta, 1e-4)
}

func TestEvaluate_PredictionErrors(t *testing.T) {
	env := newTestEnv(t)
	ds := env.buildDataset(t)
	engine := NewEvaluationEngine(env.reports, env.store, &mockPredictor{err: errors.New("model offline")})

	report, err := engine.Evaluate(context.Background(), evalRun("run-1"), ds)
	require.NoError(t, err)

	assert.Equal(t, 0.0, report.Metrics.ExactMatch)
	assert.Equal(t, 0.0, report.Metrics.RefusalRecall)
	assert.Equal(t, 0.0, report.Metrics.UnsupportedClaimRate)
	assert.False(t, report.GoNoGo)
	require.Len(t, report.Failures, 4)
	for _, f := range report.Failures {
		assert.Equal(t, notePredictionError, f.Notes)
		assert.Empty(t, f.Answer)
	}
}

func TestEvaluate_FailuresCapped(t *testing.T) {
	env := newTestEnv(t)
	dir := t.TempDir()
	rows := make([]domain.Example, 25)
	for i := range rows {
		rows[i] = domain.Example{
			Instruction: fmt.Sprintf("question %d", i),
			Output:      "refunds are issued within thirty days",
		}
	}
	goldPath := filepath.Join(dir, GoldFile)
	require.NoError(t, env.store.WriteExamples(goldPath, rows))

	engine := NewEvaluationEngine(env.reports, env.store, &mockPredictor{answer: "gift cards never expire"})
	report, err := engine.Evaluate(context.Background(), evalRun("run-1"), &domain.DatasetVersion{GoldPath: goldPath})
	require.NoError(t, err)

	assert.Equal(t, 25, report.Metrics.GoldExamples)
	assert.Equal(t, 1.0, report.Metrics.UnsupportedClaimRate)
	assert.Len(t, report.Failures, domain.MaxReportFailureExamples)
}

func TestEvaluate_FallsBackToTestRows(t *testing.T) {
	env := newTestEnv(t)
	dir := t.TempDir()
	testPath := filepath.Join(dir, TestFile)
	expected := "refunds are issued within thirty days"
	require.NoError(t, env.store.WriteExamples(testPath, []domain.Example{{Instruction: "q", Output: expected}}))

	engine := NewEvaluationEngine(env.reports, env.store, &mockPredictor{answer: expected})
	run := evalRun("run-1")
	run.AdapterPath = filepath.Join(dir, "adapter")
	report, err := engine.Evaluate(context.Background(), run, &domain.DatasetVersion{
		GoldPath: filepath.Join(dir, GoldFile),
		TestPath: testPath,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Metrics.GoldExamples)
	assert.Equal(t, 1.0, report.Metrics.ExactMatch)
	assert.Equal(t, 1.0, report.Metrics.SemanticSimilarity)
	assert.Equal(t, 1.0, report.Metrics.FuzzyMatch)
	assert.Empty(t, report.Failures)
	assert.NotNil(t, report.Failures)
	assert.Equal(t, filepath.Join(run.AdapterPath, ReportFile), report.ReportPath)
}

func TestEvaluate_NoRows(t *testing.T) {
	env := newTestEnv(t)

	report, err := env.evaluator.Evaluate(context.Background(), evalRun("run-1"), &domain.DatasetVersion{})

	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Nil(t, report)
}

func TestGetReport_Scoped(t *testing.T) {
	env := newTestEnv(t)
	ds := env.buildDataset(t)
	report, err := env.evaluator.Evaluate(context.Background(), evalRun("run-1"), ds)
	require.NoError(t, err)

	got, err := env.evaluator.GetReport(context.Background(), testTenant, testProject, report.ID)
	require.NoError(t, err)
	assert.Equal(t, report.ID, got.ID)

	_, err = env.evaluator.GetReport(context.Background(), "other", testProject, report.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	reports, err := env.evaluator.ReportsForRun(context.Background(), "other", testProject, "run-1")
	require.NoError(t, err)
	assert.Empty(t, reports)
}

func TestSummarize_VerdictUsesUnroundedScores(t *testing.T) {
	const rows = 25000
	tally := func(exact int, semantic float64) *rowTally {
		return &rowTally{exact: exact, semantic: semantic * rows, tp: 10}
	}
	prior := &domain.EvaluationReport{Metrics: domain.EvaluationMetrics{SemanticSimilarity: 0.8}}

	tests := []struct {
		name         string
		tally        *rowTally
		previous     *domain.EvaluationReport
		wantExact    float64
		wantSemantic float64
		wantDelta    *float64
		wantPass     bool
	}{
		{
			name:         "exact match at threshold",
			tally:        tally(15000, 0.8),
			wantExact:    0.6,
			wantSemantic: 0.8,
			wantPass:     true,
		},
		{
			name:         "exact match rounds up to threshold",
			tally:        tally(14999, 0.8),
			wantExact:    0.6,
			wantSemantic: 0.8,
			wantPass:     false,
		},
		{
			name:         "regression rounds to threshold",
			tally:        tally(15000, 0.74996),
			previous:     prior,
			wantExact:    0.6,
			wantSemantic: 0.75,
			wantDelta:    func() *float64 { v := -0.05; return &v }(),
			wantPass:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, pass := summarize(tt.tally, rows, 1, tt.previous)
			assert.Equal(t, tt.wantPass, pass)
			assert.Equal(t, tt.wantExact, m.ExactMatch)
			assert.Equal(t, tt.wantSemantic, m.SemanticSimilarity)
			assert.Equal(t, 1.0, m.RefusalRecall)
			assert.Equal(t, tt.wantDelta, m.RegressionDelta)
			assert.Equal(t, rows, m.GoldExamples)
		})
	}
}
