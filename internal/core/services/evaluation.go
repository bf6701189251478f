package services

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/lorastudio/internal/core/domain"
	"github.com/custodia-labs/lorastudio/internal/core/ports/driven"
	"github.com/custodia-labs/lorastudio/internal/core/ports/driving"
	"github.com/custodia-labs/lorastudio/internal/logger"
)

// Ensure EvaluationEngine implements the interface.
var _ driving.EvaluationService = (*EvaluationEngine)(nil)

// ReportFile is the evaluation report written beside the adapter.
const ReportFile = "eval_report.json"

// Failure notes.
const (
	noteLowSimilarity   = "low_similarity"
	noteUnsupported     = "unsupported_claim"
	notePredictionError = "prediction_error"
)

// reportFile is the on-disk evaluation report.
type reportFile struct {
	Metrics  domain.EvaluationMetrics `json:"metrics"`
	Failures []domain.FailureExample  `json:"failures"`
}

// EvaluationEngine scores a run's predictions against the dataset gold set.
type EvaluationEngine struct {
	reports   driven.EvaluationStore
	artifacts driven.ArtifactStore
	predictor driven.Predictor
	now       func() time.Time
}

// NewEvaluationEngine creates a new evaluation engine.
func NewEvaluationEngine(
	reports driven.EvaluationStore,
	artifacts driven.ArtifactStore,
	predictor driven.Predictor,
) *EvaluationEngine {
	return &EvaluationEngine{
		reports:   reports,
		artifacts: artifacts,
		predictor: predictor,
		now:       time.Now,
	}
}

// rowTally accumulates per-row results.
type rowTally struct {
	exact, unsupported int
	fuzzy, semantic    float64
	tp, fp, fn         int
	expectedTokens     int
	failures           []domain.FailureExample
}

// summarize aggregates the tally into report metrics. The verdict is taken
// on the unrounded scores; the returned metrics are rounded for the report.
func summarize(t *rowTally, rows int, seconds float64, previous *domain.EvaluationReport) (domain.EvaluationMetrics, bool) {
	n := float64(rows)
	if seconds < 1e-6 {
		seconds = 1e-6
	}

	raw := domain.EvaluationMetrics{
		ExactMatch:           float64(t.exact) / n,
		FuzzyMatch:           t.fuzzy / n,
		SemanticSimilarity:   t.semantic / n,
		RefusalPrecision:     float64(t.tp) / float64(max(t.tp+t.fp, 1)),
		RefusalRecall:        float64(t.tp) / float64(max(t.tp+t.fn, 1)),
		UnsupportedClaimRate: float64(t.unsupported) / n,
		LatencyMS:            int64(seconds / n * 1000),
		TokensPerSecond:      float64(t.expectedTokens) / seconds,
		GoldExamples:         rows,
	}
	if previous != nil {
		delta := raw.SemanticSimilarity - previous.Metrics.SemanticSimilarity
		raw.RegressionDelta = &delta
	}
	goNoGo := raw.Passes()

	rounded := raw
	rounded.ExactMatch = round(raw.ExactMatch, 4)
	rounded.FuzzyMatch = round(raw.FuzzyMatch, 4)
	rounded.SemanticSimilarity = round(raw.SemanticSimilarity, 4)
	rounded.RefusalPrecision = round(raw.RefusalPrecision, 4)
	rounded.RefusalRecall = round(raw.RefusalRecall, 4)
	rounded.UnsupportedClaimRate = round(raw.UnsupportedClaimRate, 4)
	rounded.TokensPerSecond = round(raw.TokensPerSecond, 2)
	if raw.RegressionDelta != nil {
		delta := round(*raw.RegressionDelta, 4)
		rounded.RegressionDelta = &delta
	}
	return rounded, goNoGo
}

// Evaluate scores run against the gold rows of ds (or its test rows when
// the gold file is empty) and stores an immutable report.
func (e *EvaluationEngine) Evaluate(
	ctx context.Context,
	run *domain.TrainingRun,
	ds *domain.DatasetVersion,
) (*domain.EvaluationReport, error) {
	started := time.Now()

	rows, err := e.artifacts.ReadExamples(ds.GoldPath)
	if err != nil {
		return nil, fmt.Errorf("read gold rows: %w", err)
	}
	if len(rows) == 0 {
		rows, err = e.artifacts.ReadExamples(ds.TestPath)
		if err != nil {
			return nil, fmt.Errorf("read test rows: %w", err)
		}
	}
	if len(rows) == 0 {
		return nil, domain.NewValidationError("dataset", "no evaluation rows available")
	}

	var t rowTally
	for i := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e.scoreRow(ctx, rows[i], &t)
	}

	duration := time.Since(started).Seconds()

	previous, err := e.reports.LatestForProject(ctx, run.TenantID, run.ProjectID, run.ID)
	if err != nil {
		return nil, fmt.Errorf("load previous report: %w", err)
	}
	metrics, goNoGo := summarize(&t, len(rows), duration, previous)

	failures := t.failures
	if len(failures) > domain.MaxReportFailureExamples {
		failures = failures[:domain.MaxReportFailureExamples]
	}
	if failures == nil {
		failures = []domain.FailureExample{}
	}

	dir := run.AdapterPath
	if dir == "" {
		dir = filepath.Dir(ds.GoldPath)
	}
	reportPath := filepath.Join(dir, ReportFile)
	if err := e.artifacts.WriteJSON(reportPath, reportFile{Metrics: metrics, Failures: failures}); err != nil {
		return nil, fmt.Errorf("write report: %w", err)
	}

	report := &domain.EvaluationReport{
		ID:         uuid.New().String(),
		TenantID:   run.TenantID,
		ProjectID:  run.ProjectID,
		RunID:      run.ID,
		Predictor:  e.predictor.Name(),
		Metrics:    metrics,
		GoNoGo:     goNoGo,
		Failures:   failures,
		ReportPath: reportPath,
		CreatedAt:  e.now(),
	}
	if err := e.reports.SaveReport(ctx, report); err != nil {
		return nil, fmt.Errorf("save report: %w", err)
	}

	logger.Info("run evaluated",
		"run_id", run.ID,
		"report_id", report.ID,
		"predictor", report.Predictor,
		"go_no_go", report.GoNoGo,
		"semantic", metrics.SemanticSimilarity,
	)
	return report, nil
}

// scoreRow adds one row to the tally. A prediction error scores the row
// as an empty answer and keeps it as a failure example.
func (e *EvaluationEngine) scoreRow(ctx context.Context, row domain.Example, t *rowTally) {
	expected := row.Output
	t.expectedTokens += len(strings.Fields(expected))

	predicted, err := e.predictor.Predict(ctx, row)
	if err != nil {
		logger.Warn("prediction failed", "predictor", e.predictor.Name(), "error", err)
		predicted = ""
	}
	predictedRefusal := isRefusal(predicted)

	if strings.TrimSpace(predicted) == strings.TrimSpace(expected) {
		t.exact++
	}
	t.fuzzy += fuzzyRatio(expected, predicted)
	semantic := semanticSimilarity(expected, predicted)
	t.semantic += semantic

	switch {
	case row.ExpectedRefusal && predictedRefusal:
		t.tp++
	case !row.ExpectedRefusal && predictedRefusal:
		t.fp++
	case row.ExpectedRefusal && !predictedRefusal:
		t.fn++
	}

	unsupported := unsupportedClaim(expected, predicted, domain.UnsupportedClaimTokenRate)
	if unsupported {
		t.unsupported++
	}

	var note string
	switch {
	case err != nil:
		note = notePredictionError
	case semantic < domain.FailureSemanticThreshold:
		note = noteLowSimilarity
	case unsupported:
		note = noteUnsupported
	default:
		return
	}
	t.failures = append(t.failures, domain.FailureExample{
		Prompt:   row.Instruction,
		Answer:   predicted,
		Expected: expected,
		Notes:    note,
	})
}

// GetReport retrieves a report within a project.
func (e *EvaluationEngine) GetReport(ctx context.Context, tenantID, projectID, id string) (*domain.EvaluationReport, error) {
	report, err := e.reports.GetReport(ctx, id)
	if err != nil {
		return nil, err
	}
	if report.TenantID != tenantID || report.ProjectID != projectID {
		return nil, domain.NewNotFoundError("evaluation report", id)
	}
	return report, nil
}

// ReportsForRun returns every report produced for a run within a project.
func (e *EvaluationEngine) ReportsForRun(
	ctx context.Context,
	tenantID, projectID, runID string,
) ([]domain.EvaluationReport, error) {
	all, err := e.reports.ListReportsForRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	reports := make([]domain.EvaluationReport, 0, len(all))
	for i := range all {
		if all[i].TenantID == tenantID && all[i].ProjectID == projectID {
			reports = append(reports, all[i])
		}
	}
	return reports, nil
}
