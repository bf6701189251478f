// Package ollama provides an evaluation predictor backed by a local Ollama model.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/template"
	"time"

	"github.com/custodia-labs/lorastudio/internal/core/domain"
	"github.com/custodia-labs/lorastudio/internal/core/ports/driven"
)

// Ensure Predictor implements the interface.
var _ driven.Predictor = (*Predictor)(nil)

// Default configuration values.
const (
	DefaultBaseURL = "http://localhost:11434"
	DefaultModel   = "llama3.1:8b"
	DefaultTimeout = 45 * time.Second
)

// Config holds configuration for the Ollama predictor.
type Config struct {
	// BaseURL is the Ollama API base URL (default: http://localhost:11434).
	BaseURL string

	// Model is the chat model to use.
	Model string

	// Timeout is the per-request timeout.
	Timeout time.Duration
}

// Predictor answers evaluation rows through /api/chat.
type Predictor struct {
	client      *http.Client
	baseURL     string
	model       string
	promptStore driven.PromptStore
}

// chatRequest is the Ollama /api/chat request format.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  *options      `json:"options,omitempty"`
}

// options holds generation parameters.
type options struct {
	Temperature float64 `json:"temperature"`
}

// chatMessage is the Ollama chat message format.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse is the Ollama /api/chat response format.
type chatResponse struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
}

// New creates an Ollama predictor. promptStore may be nil, in which case
// no system prompt is sent.
func New(cfg Config, promptStore driven.PromptStore) *Predictor {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Predictor{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		model:       cfg.Model,
		promptStore: promptStore,
	}
}

// Name identifies the backend in reports.
func (p *Predictor) Name() string {
	return string(domain.PredictorOllama) + ":" + p.model
}

// defaultUserTemplate is used when no prompt store is configured.
const defaultUserTemplate = "{{.Instruction}}{{if .Input}}\n\n{{.Input}}{{end}}"

// promptRow is the data a user template sees.
type promptRow struct {
	Instruction string
	Input       string
	TaskType    string
}

// Predict sends the row, rendered through the user template, after the
// system prompt.
func (p *Predictor) Predict(ctx context.Context, row domain.Example) (string, error) {
	var messages []chatMessage
	userTemplate := defaultUserTemplate
	if p.promptStore != nil {
		system, err := p.promptStore.Load(driven.PromptEvalSystem)
		if err != nil {
			return "", fmt.Errorf("load system prompt: %w", err)
		}
		messages = append(messages, chatMessage{Role: "system", Content: system})

		if userTemplate, err = p.promptStore.Load(driven.PromptEvalUser); err != nil {
			return "", fmt.Errorf("load user prompt: %w", err)
		}
	}

	content, err := renderUser(userTemplate, row)
	if err != nil {
		return "", err
	}
	messages = append(messages, chatMessage{Role: "user", Content: content})

	jsonBody, err := json.Marshal(chatRequest{
		Model:    p.model,
		Messages: messages,
		Stream:   false,
		Options:  &options{Temperature: 0},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		p.baseURL+"/api/chat",
		bytes.NewReader(jsonBody),
	)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", fmt.Errorf("ollama error (status %d): failed to read response", resp.StatusCode)
		}
		return "", fmt.Errorf("ollama error (status %d): %s", resp.StatusCode, string(body))
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	return strings.TrimSpace(chatResp.Message.Content), nil
}

func renderUser(text string, row domain.Example) (string, error) {
	tmpl, err := template.New(driven.PromptEvalUser).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse user prompt: %w", err)
	}
	var b strings.Builder
	err = tmpl.Execute(&b, promptRow{
		Instruction: row.Instruction,
		Input:       strings.TrimSpace(row.Input),
		TaskType:    string(row.TaskType),
	})
	if err != nil {
		return "", fmt.Errorf("render user prompt: %w", err)
	}
	return b.String(), nil
}
