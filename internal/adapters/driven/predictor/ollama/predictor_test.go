package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/lorastudio/internal/core/domain"
	"github.com/custodia-labs/lorastudio/internal/core/ports/driven"
)

// mockPromptStore is a hand-written driven.PromptStore.
type mockPromptStore struct {
	prompts map[string]string
	err     error
}

func (m *mockPromptStore) Load(name string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	p, ok := m.prompts[name]
	if !ok {
		return "", errors.New("no prompt " + name)
	}
	return p, nil
}

func newPromptStore(system, user string) *mockPromptStore {
	return &mockPromptStore{prompts: map[string]string{
		driven.PromptEvalSystem: system,
		driven.PromptEvalUser:   user,
	}}
}

func TestNew_Defaults(t *testing.T) {
	p := New(Config{}, nil)
	assert.Equal(t, DefaultBaseURL, p.baseURL)
	assert.Equal(t, DefaultModel, p.model)
	assert.Equal(t, DefaultTimeout, p.client.Timeout)
	assert.Equal(t, "ollama:"+DefaultModel, p.Name())
}

func TestPredictor_Predict(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatResponse{
			Message: chatMessage{Role: "assistant", Content: "  Submit the form.\n"},
			Done:    true,
		})
	}))
	defer server.Close()

	p := New(Config{BaseURL: server.URL + "/", Model: "policy"}, newPromptStore("Be grounded.", defaultUserTemplate))
	answer, err := p.Predict(context.Background(), domain.Example{
		Instruction: "How do I request leave?",
		Input:       "Context: HR handbook",
	})
	require.NoError(t, err)
	assert.Equal(t, "Submit the form.", answer)

	assert.Equal(t, "policy", got.Model)
	assert.False(t, got.Stream)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "Be grounded.", got.Messages[0].Content)
	assert.Equal(t, "How do I request leave?\n\nContext: HR handbook", got.Messages[1].Content)
}

func TestPredictor_Predict_NoPromptStore(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(chatResponse{Message: chatMessage{Content: "ok"}})
	}))
	defer server.Close()

	_, err := New(Config{BaseURL: server.URL}, nil).Predict(context.Background(), domain.Example{Instruction: "Q"})
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "Q", got.Messages[0].Content)
}

func TestPredictor_Predict_CustomUserTemplate(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(chatResponse{Message: chatMessage{Content: "ok"}})
	}))
	defer server.Close()

	store := newPromptStore("sys", "[{{.TaskType}}] {{.Instruction}}")
	_, err := New(Config{BaseURL: server.URL}, store).Predict(context.Background(), domain.Example{
		Instruction: "Can I share payroll data?",
		Input:       "ignored",
		TaskType:    domain.TaskRefusalEscalation,
	})
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "[refusal_escalation] Can I share payroll data?", got.Messages[1].Content)
}

func TestPredictor_Predict_Errors(t *testing.T) {
	t.Run("server error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not found", http.StatusNotFound)
		}))
		defer server.Close()

		_, err := New(Config{BaseURL: server.URL}, nil).Predict(context.Background(), domain.Example{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 404")
		assert.Contains(t, err.Error(), "model not found")
	})

	t.Run("bad json", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("{"))
		}))
		defer server.Close()

		_, err := New(Config{BaseURL: server.URL}, nil).Predict(context.Background(), domain.Example{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "decode response")
	})

	t.Run("prompt store failure", func(t *testing.T) {
		p := New(Config{BaseURL: "http://127.0.0.1:1"}, &mockPromptStore{err: errors.New("disk")})
		_, err := p.Predict(context.Background(), domain.Example{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "system prompt")
	})

	t.Run("bad user template", func(t *testing.T) {
		p := New(Config{BaseURL: "http://127.0.0.1:1"}, newPromptStore("sys", "{{.Missing}}"))
		_, err := p.Predict(context.Background(), domain.Example{Instruction: "Q"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "render user prompt")
	})

	t.Run("cancelled context", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		defer server.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := New(Config{BaseURL: server.URL}, nil).Predict(ctx, domain.Example{})
		assert.ErrorIs(t, err, context.Canceled)
	})
}
