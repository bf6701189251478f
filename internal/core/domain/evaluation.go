package domain

import "time"

// Go/no-go thresholds.
const (
	GateMinExactMatch         = 0.6
	GateMinSemantic           = 0.72
	GateMaxUnsupportedClaims  = 0.12
	GateMinRefusalRecall      = 0.8
	GateMinRegressionDelta    = -0.05
	MaxReportFailureExamples  = 20
	FailureSemanticThreshold  = 0.65
	UnsupportedClaimTokenRate = 0.4
)

// EvaluationReport is the immutable result of evaluating one run attempt.
type EvaluationReport struct {
	// ID is the unique identifier for the report.
	ID string

	// TenantID and ProjectID scope the report.
	TenantID  string
	ProjectID string

	// RunID is the evaluated training run.
	RunID string

	// Predictor names the prediction backend that produced the answers.
	Predictor string

	// Metrics holds the aggregate scores.
	Metrics EvaluationMetrics

	// GoNoGo is the release verdict.
	GoNoGo bool

	// Failures lists at most MaxReportFailureExamples weak rows.
	Failures []FailureExample

	// ReportPath locates the report file.
	ReportPath string

	// CreatedAt is when the report was written.
	CreatedAt time.Time
}

// EvaluationMetrics are the aggregate evaluation scores.
// RegressionDelta is nil when the project has no prior report.
type EvaluationMetrics struct {
	ExactMatch           float64  `json:"exact_match"`
	FuzzyMatch           float64  `json:"fuzzy_match"`
	SemanticSimilarity   float64  `json:"semantic_similarity"`
	RefusalPrecision     float64  `json:"refusal_precision"`
	RefusalRecall        float64  `json:"refusal_recall"`
	UnsupportedClaimRate float64  `json:"unsupported_claim_rate"`
	LatencyMS            int64    `json:"latency_ms"`
	TokensPerSecond      float64  `json:"tokens_per_second"`
	RegressionDelta      *float64 `json:"regression_delta"`
	GoldExamples         int      `json:"gold_examples"`
}

// Passes applies the go/no-go gate.
func (m EvaluationMetrics) Passes() bool {
	return m.ExactMatch >= GateMinExactMatch &&
		m.SemanticSimilarity >= GateMinSemantic &&
		m.UnsupportedClaimRate <= GateMaxUnsupportedClaims &&
		m.RefusalRecall >= GateMinRefusalRecall &&
		(m.RegressionDelta == nil || *m.RegressionDelta >= GateMinRegressionDelta)
}

// FailureExample is a retained weak evaluation row.
type FailureExample struct {
	Prompt   string `json:"prompt"`
	Answer   string `json:"answer"`
	Expected string `json:"expected"`
	Notes    string `json:"notes"`
}
