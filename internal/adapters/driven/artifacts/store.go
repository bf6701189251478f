// Package artifacts provides the filesystem ArtifactStore.
//
// Layout under the root directory:
//
//	<tenant>/<project>/raw/<16 hex>_<filename>
//	<tenant>/<project>/normalized/<sha256>.json
//	<tenant>/<project>/datasets/<dataset id>/*.jsonl
//	<tenant>/<project>/runs/<run id>/...
package artifacts

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/custodia-labs/lorastudio/internal/core/domain"
	"github.com/custodia-labs/lorastudio/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.ArtifactStore = (*Store)(nil)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

var segmentPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// Store is a filesystem-backed artifact tree.
type Store struct {
	root string
}

// New creates a store rooted at root. The directory is created lazily.
func New(root string) *Store {
	return &Store{root: root}
}

// Root returns the root directory.
func (s *Store) Root() string {
	return s.root
}

// projectDir resolves and creates a tenant/project subdirectory.
func (s *Store) projectDir(tenantID, projectID string, parts ...string) (string, error) {
	for _, seg := range append([]string{tenantID, projectID}, parts...) {
		if !segmentPattern.MatchString(seg) || seg == "." || seg == ".." {
			return "", domain.NewValidationError("path", fmt.Sprintf("invalid path segment %q", seg))
		}
	}
	dir := filepath.Join(append([]string{s.root, tenantID, projectID}, parts...)...)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return "", fmt.Errorf("creating %s: %w", dir, err)
	}
	return dir, nil
}

// WriteRaw stores uploaded bytes under a unique name.
func (s *Store) WriteRaw(tenantID, projectID, filename string, data []byte) (string, error) {
	dir, err := s.projectDir(tenantID, projectID, "raw")
	if err != nil {
		return "", err
	}
	prefix := strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	path := filepath.Join(dir, prefix+"_"+filepath.Base(filename))
	if err := os.WriteFile(path, data, filePerm); err != nil {
		return "", fmt.Errorf("writing raw file: %w", err)
	}
	return path, nil
}

// WriteNormalized stores the normalized artifact keyed by content hash.
func (s *Store) WriteNormalized(tenantID, projectID, hash string, artifact *domain.NormalizedArtifact) (string, error) {
	dir, err := s.projectDir(tenantID, projectID, "normalized")
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, hash+".json")
	if err := s.WriteJSON(path, artifact); err != nil {
		return "", err
	}
	return path, nil
}

// ReadNormalized loads a normalized artifact.
func (s *Store) ReadNormalized(path string) (*domain.NormalizedArtifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading normalized artifact: %w", err)
	}
	var artifact domain.NormalizedArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("decoding normalized artifact %s: %w", path, err)
	}
	return &artifact, nil
}

// DatasetDir returns the directory for a dataset version.
func (s *Store) DatasetDir(tenantID, projectID, datasetID string) (string, error) {
	return s.projectDir(tenantID, projectID, "datasets", datasetID)
}

// RunDir returns the directory for a training run.
func (s *Store) RunDir(tenantID, projectID, runID string) (string, error) {
	return s.projectDir(tenantID, projectID, "runs", runID)
}

// WriteExamples writes rows as line-delimited JSON.
func (s *Store) WriteExamples(path string, rows []domain.Example) error {
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i := range rows {
		if err := enc.Encode(&rows[i]); err != nil {
			return fmt.Errorf("encoding example %d: %w", i, err)
		}
	}
	if err := os.WriteFile(path, buf.Bytes(), filePerm); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// ReadExamples reads a line-delimited JSON example file.
func (s *Store) ReadExamples(path string) ([]domain.Example, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var rows []domain.Example
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var row domain.Example
		if err := json.Unmarshal([]byte(line), &row); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", path, err)
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return rows, nil
}

// WriteJSON writes v as indented JSON.
func (s *Store) WriteJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, filePerm); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// HashFiles returns the hex SHA-256 over the contents of paths in order.
// Missing files contribute nothing.
func (s *Store) HashFiles(paths ...string) (string, error) {
	h := sha256.New()
	for _, p := range paths {
		if p == "" {
			continue
		}
		f, err := os.Open(p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("opening %s: %w", p, err)
		}
		_, err = io.Copy(h, f)
		f.Close()
		if err != nil {
			return "", fmt.Errorf("hashing %s: %w", p, err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
