package driven

import (
	"context"

	"github.com/custodia-labs/lorastudio/internal/core/domain"
)

// Predictor produces the candidate answer scored during evaluation.
type Predictor interface {
	// Predict answers one evaluation row.
	Predict(ctx context.Context, row domain.Example) (string, error)

	// Name identifies the backend in evaluation reports.
	Name() string
}

// Prompt names.
const (
	// PromptEvalSystem is the system prompt sent with every evaluation row.
	PromptEvalSystem = "eval_system"

	// PromptEvalUser is the text/template rendering one row as the user
	// message. It sees the row's Instruction, Input and TaskType.
	PromptEvalUser = "eval_user"
)

// PromptStore loads prompt templates used by model-backed predictors.
type PromptStore interface {
	// Load returns the prompt template for name.
	Load(name string) (string, error)
}
