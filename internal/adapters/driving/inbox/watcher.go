// Package inbox ingests files dropped into a watched directory.
package inbox

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/lorastudio/internal/core/domain"
	"github.com/custodia-labs/lorastudio/internal/core/ports/driving"
	"github.com/custodia-labs/lorastudio/internal/logger"
)

// Watcher feeds new and rewritten inbox files into the ingestion pipeline
// for a single tenant/project.
type Watcher struct {
	config    domain.InboxConfig
	ingestion driving.IngestionService
	limiter   *rate.Limiter

	mu sync.Mutex
	// ingested maps a path to the digest of the content last submitted.
	ingested map[string][32]byte
}

// New creates a watcher. Ingestion throughput is bounded by the
// configured rate and burst.
func New(config domain.InboxConfig, ingestion driving.IngestionService) *Watcher {
	limit := rate.Inf
	if config.RatePerSecond > 0 {
		limit = rate.Limit(config.RatePerSecond)
	}
	burst := config.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Watcher{
		config:    config,
		ingestion: ingestion,
		limiter:   rate.NewLimiter(limit, burst),
		ingested:  make(map[string][32]byte),
	}
}

// Run ingests files already present in the inbox, then watches it until
// ctx is cancelled. This method blocks.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.config.Dir, 0o755); err != nil {
		return fmt.Errorf("create inbox dir: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.config.Dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.config.Dir, err)
	}

	if _, err := w.Scan(ctx); err != nil {
		return err
	}

	logger.Info("inbox watching", "dir", w.config.Dir, "tenant", w.config.TenantID, "project", w.config.ProjectID)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if _, err := w.HandleEvent(ctx, event); err != nil && ctx.Err() == nil {
				logger.Warn("inbox ingest failed", "file", event.Name, "error", err)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("inbox watcher error", "error", err)
		}
	}
}

// Scan ingests every eligible file currently in the inbox and returns the
// number submitted. Per-file failures are logged and skipped.
func (w *Watcher) Scan(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(w.config.Dir)
	if err != nil {
		return 0, fmt.Errorf("read inbox: %w", err)
	}

	count := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(w.config.Dir, entry.Name())
		if !eligible(path) {
			continue
		}
		doc, err := w.ingest(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				return count, ctx.Err()
			}
			logger.Warn("inbox ingest failed", "file", path, "error", err)
			continue
		}
		if doc != nil {
			count++
		}
	}
	return count, nil
}

// HandleEvent ingests the file behind a create or write event.
// It returns nil when the event was ignored.
func (w *Watcher) HandleEvent(ctx context.Context, event fsnotify.Event) (*domain.Document, error) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return nil, nil
	}
	if !eligible(event.Name) {
		return nil, nil
	}
	info, err := os.Stat(event.Name)
	if err != nil || info.IsDir() {
		return nil, nil
	}
	return w.ingest(ctx, event.Name)
}

func (w *Watcher) ingest(ctx context.Context, path string) (*domain.Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	// Editors often create an empty file before writing it.
	if len(content) == 0 {
		return nil, nil
	}

	digest := sha256.Sum256(content)
	w.mu.Lock()
	prev, seen := w.ingested[path]
	w.mu.Unlock()
	if seen && prev == digest {
		return nil, nil
	}

	if err := w.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	doc, err := w.ingestion.Ingest(ctx, driving.IngestRequest{
		TenantID:  w.config.TenantID,
		ProjectID: w.config.ProjectID,
		Filename:  filepath.Base(path),
		Content:   content,
	})
	if err != nil {
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			w.remember(path, digest)
		}
		return nil, err
	}

	w.remember(path, digest)
	logger.Info("inbox ingested", "file", filepath.Base(path), "document", doc.ID, "status", doc.Status)
	return doc, nil
}

func (w *Watcher) remember(path string, digest [32]byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ingested[path] = digest
}

// eligible skips hidden files and types the pipeline cannot extract.
func eligible(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, "~") {
		return false
	}
	_, err := domain.DetectFileType(name)
	return err == nil
}
