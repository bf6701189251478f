package file

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/lorastudio/internal/core/ports/driven"
)

var _ driven.PromptStore = (*PromptStore)(nil)

// defaultPrompts are written to the prompt directory the first time they
// are requested, so operators can edit them in place.
var defaultPrompts = map[string]string{
	driven.PromptEvalSystem: `You answer questions about internal company policy.
Answer only with facts stated in the policy material you were trained on.
If the request asks for personal data, or the required facts are missing, refuse briefly and say the request should be escalated to the designated owner.
Keep answers short and in plain language.`,
	driven.PromptEvalUser: `{{.Instruction}}{{if .Input}}

{{.Input}}{{end}}`,
}

// PromptStore serves prompt templates from <dir>/<name>.txt. A file is
// re-read whenever its size or modification time changes.
type PromptStore struct {
	dir string

	mu    sync.Mutex
	cache map[string]promptFile
}

type promptFile struct {
	size    int64
	modTime time.Time
	text    string
}

// NewPromptStore creates a prompt store rooted at dir.
// If dir is empty, defaults to ~/.lorastudio/prompts/.
func NewPromptStore(dir string) (*PromptStore, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		dir = filepath.Join(home, defaultHomeDirName, "prompts")
	}
	return &PromptStore{dir: dir, cache: make(map[string]promptFile)}, nil
}

// Dir returns the prompt directory path.
func (s *PromptStore) Dir() string {
	return s.dir
}

// Load returns the prompt named name. A missing or blank file falls back
// to the built-in default; unknown names without a file are an error.
func (s *PromptStore) Load(name string) (string, error) {
	path := filepath.Join(s.dir, name+".txt")
	def, hasDefault := defaultPrompts[name]

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		if !hasDefault {
			return "", fmt.Errorf("load prompt %q: %w", name, fs.ErrNotExist)
		}
		s.writeDefault(path, def)
		return def, nil
	}
	if err != nil {
		if hasDefault {
			return def, nil
		}
		return "", fmt.Errorf("load prompt %q: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if cached, ok := s.cache[name]; ok && cached.size == info.Size() && cached.modTime.Equal(info.ModTime()) {
		return cached.text, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if hasDefault {
			return def, nil
		}
		return "", fmt.Errorf("load prompt %q: %w", name, err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		if !hasDefault {
			return "", fmt.Errorf("load prompt %q: empty file", name)
		}
		text = def
	}

	s.cache[name] = promptFile{size: info.Size(), modTime: info.ModTime(), text: text}
	return text, nil
}

// writeDefault seeds a default prompt file without overwriting one that
// appeared concurrently. Errors are ignored.
func (s *PromptStore) writeDefault(path, content string) {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = f.WriteString(content)
}
