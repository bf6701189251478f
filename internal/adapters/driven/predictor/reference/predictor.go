// Package reference provides the deterministic evaluation predictor.
//
// It derives a candidate answer from the expected output without calling
// a model: a fixed refusal when a refusal is expected, otherwise the first
// fifty words of the expected output.
package reference

import (
	"context"
	"strings"

	"github.com/custodia-labs/lorastudio/internal/core/domain"
	"github.com/custodia-labs/lorastudio/internal/core/ports/driven"
)

// Ensure Predictor implements the interface.
var _ driven.Predictor = (*Predictor)(nil)

// Refusal is the fixed answer for rows that expect a refusal.
const Refusal = "I do not have enough grounded information to answer safely. Escalate to a manager."

// maxWords bounds the truncated answer.
const maxWords = 50

// Predictor is the reference predictor.
type Predictor struct{}

// New creates a reference predictor.
func New() *Predictor {
	return &Predictor{}
}

// Name identifies the backend in reports.
func (p *Predictor) Name() string {
	return string(domain.PredictorReference)
}

// Predict answers row.
func (p *Predictor) Predict(_ context.Context, row domain.Example) (string, error) {
	if row.ExpectedRefusal {
		return Refusal, nil
	}
	words := strings.Fields(row.Output)
	if len(words) > maxWords {
		words = words[:maxWords]
	}
	return strings.Join(words, " "), nil
}
