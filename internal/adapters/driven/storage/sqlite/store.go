package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/lorastudio/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/lorastudio/internal/core/domain"
	"github.com/custodia-labs/lorastudio/internal/core/ports/driven"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store is a unified SQLite-based storage that provides access to
// all metadata store interfaces through wrapper types.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a new SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.lorastudio/data/lorastudio.db.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".lorastudio", "data")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "lorastudio.db")

	// Pragmas in the DSN apply to every pooled connection.
	db, err := sql.Open("sqlite", dbPath+
		"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// DocumentStore returns a DocumentStore interface backed by this store.
func (s *Store) DocumentStore() driven.DocumentStore {
	return &documentStore{store: s}
}

// DatasetStore returns a DatasetStore interface backed by this store.
func (s *Store) DatasetStore() driven.DatasetStore {
	return &datasetStore{store: s}
}

// RunStore returns a RunStore interface backed by this store.
func (s *Store) RunStore() driven.RunStore {
	return &runStore{store: s}
}

// RunEventStore returns a RunEventStore interface backed by this store.
func (s *Store) RunEventStore() driven.RunEventStore {
	return &runEventStore{store: s}
}

// EvaluationStore returns an EvaluationStore interface backed by this store.
func (s *Store) EvaluationStore() driven.EvaluationStore {
	return &evaluationStore{store: s}
}

// DeploymentStore returns a DeploymentStore interface backed by this store.
func (s *Store) DeploymentStore() driven.DeploymentStore {
	return &deploymentStore{store: s}
}

// PollHistoryStore returns a PollHistoryStore interface backed by this store.
func (s *Store) PollHistoryStore() driven.PollHistoryStore {
	return &pollHistoryStore{store: s}
}

// migrate runs all pending migrations. Each migration records its own
// version in schema_migrations.
func (s *Store) migrate(fsys fs.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// "001_initial.up.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}

		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
	}

	return nil
}

// ==================== Document Store ====================

// documentStore implements driven.DocumentStore.
type documentStore struct {
	store *Store
}

var _ driven.DocumentStore = (*documentStore)(nil)

const documentColumns = `id, tenant_id, project_id, filename, file_type, storage_path, normalized_path,
	size_bytes, content_hash, near_duplicate_of, quality_score, pii_hits, metadata, status, created_at`

// SaveDocument stores or updates a document.
func (s *documentStore) SaveDocument(ctx context.Context, doc *domain.Document) error {
	if doc == nil {
		return domain.ErrInvalidInput
	}

	piiJSON, err := json.Marshal(nonNilPII(doc.PIIHits))
	if err != nil {
		return fmt.Errorf("marshalling pii hits: %w", err)
	}
	metadataJSON, err := json.Marshal(nonNilMap(doc.Metadata))
	if err != nil {
		return fmt.Errorf("marshalling metadata: %w", err)
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			near_duplicate_of = excluded.near_duplicate_of,
			quality_score = excluded.quality_score,
			pii_hits = excluded.pii_hits,
			metadata = excluded.metadata,
			status = excluded.status
	`, doc.ID, doc.TenantID, doc.ProjectID, doc.Filename, string(doc.FileType),
		doc.StoragePath, doc.NormalizedPath, doc.SizeBytes, doc.ContentHash,
		nullString(doc.NearDuplicateOf), doc.QualityScore, string(piiJSON),
		string(metadataJSON), string(doc.Status), formatTime(doc.CreatedAt))

	if err != nil {
		return fmt.Errorf("saving document: %w", err)
	}
	return nil
}

// GetDocument retrieves a document by ID within a project.
func (s *documentStore) GetDocument(ctx context.Context, tenantID, projectID, id string) (*domain.Document, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT `+documentColumns+`
		FROM documents WHERE id = ? AND tenant_id = ? AND project_id = ?
	`, id, tenantID, projectID)

	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("document", id)
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// FindByHash returns the earliest project document with the given hash.
// Returns nil and no error if there is none.
func (s *documentStore) FindByHash(ctx context.Context, tenantID, projectID, hash string) (*domain.Document, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT `+documentColumns+`
		FROM documents
		WHERE tenant_id = ? AND project_id = ? AND content_hash = ?
		ORDER BY created_at, rowid
		LIMIT 1
	`, tenantID, projectID, hash)

	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// ListDocuments returns project documents matching filter, oldest first.
func (s *documentStore) ListDocuments(
	ctx context.Context, tenantID, projectID string, filter domain.DocumentFilter,
) ([]domain.Document, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT `+documentColumns+`
		FROM documents
		WHERE tenant_id = ? AND project_id = ?
		ORDER BY created_at, rowid
	`, tenantID, projectID)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.Document //nolint:prealloc // size unknown from query
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		if filter.Matches(doc) {
			docs = append(docs, *doc)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}

	return docs, nil
}

// Usage returns the document count and total raw bytes for a tenant.
func (s *documentStore) Usage(ctx context.Context, tenantID string) (count, bytes int64, err error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(size_bytes), 0)
		FROM documents WHERE tenant_id = ?
	`, tenantID)
	if err := row.Scan(&count, &bytes); err != nil {
		return 0, 0, fmt.Errorf("querying document usage: %w", err)
	}
	return count, bytes, nil
}

// ==================== Dataset Store ====================

// datasetStore implements driven.DatasetStore.
type datasetStore struct {
	store *Store
}

var _ driven.DatasetStore = (*datasetStore)(nil)

const datasetColumns = `id, tenant_id, project_id, name, source_document_ids, train_path, val_path,
	test_path, gold_path, review_path, stats, quality_score, status, created_at`

// SaveDataset stores or updates a dataset version.
func (s *datasetStore) SaveDataset(ctx context.Context, ds *domain.DatasetVersion) error {
	if ds == nil {
		return domain.ErrInvalidInput
	}

	idsJSON, err := json.Marshal(nonNilStrings(ds.SourceDocumentIDs))
	if err != nil {
		return fmt.Errorf("marshalling source document ids: %w", err)
	}
	statsJSON, err := json.Marshal(ds.Stats)
	if err != nil {
		return fmt.Errorf("marshalling stats: %w", err)
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO dataset_versions (`+datasetColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			source_document_ids = excluded.source_document_ids,
			train_path = excluded.train_path,
			val_path = excluded.val_path,
			test_path = excluded.test_path,
			gold_path = excluded.gold_path,
			review_path = excluded.review_path,
			stats = excluded.stats,
			quality_score = excluded.quality_score,
			status = excluded.status
	`, ds.ID, ds.TenantID, ds.ProjectID, ds.Name, string(idsJSON),
		nullString(ds.TrainPath), nullString(ds.ValPath), nullString(ds.TestPath),
		nullString(ds.GoldPath), nullString(ds.ReviewPath), string(statsJSON),
		ds.QualityScore, string(ds.Status), formatTime(ds.CreatedAt))

	if err != nil {
		return fmt.Errorf("saving dataset version: %w", err)
	}
	return nil
}

// GetDataset retrieves a dataset version within a project.
func (s *datasetStore) GetDataset(ctx context.Context, tenantID, projectID, id string) (*domain.DatasetVersion, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT `+datasetColumns+`
		FROM dataset_versions WHERE id = ? AND tenant_id = ? AND project_id = ?
	`, id, tenantID, projectID)

	ds, err := scanDataset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("dataset version", id)
	}
	if err != nil {
		return nil, err
	}
	return ds, nil
}

// ListDatasets returns the project's dataset versions, newest first.
func (s *datasetStore) ListDatasets(ctx context.Context, tenantID, projectID string) ([]domain.DatasetVersion, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT `+datasetColumns+`
		FROM dataset_versions
		WHERE tenant_id = ? AND project_id = ?
		ORDER BY created_at DESC, rowid DESC
	`, tenantID, projectID)
	if err != nil {
		return nil, fmt.Errorf("querying dataset versions: %w", err)
	}
	defer rows.Close()

	var result []domain.DatasetVersion //nolint:prealloc // size unknown from query
	for rows.Next() {
		ds, err := scanDataset(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ds)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating dataset versions: %w", err)
	}

	return result, nil
}

// ==================== Helper Functions ====================

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanDocument scans a documents row. sql.ErrNoRows is returned unwrapped.
func scanDocument(row scanner) (*domain.Document, error) {
	var doc domain.Document
	var fileType, status, piiJSON, metadataJSON, createdAt string
	var nearDup sql.NullString

	if err := row.Scan(&doc.ID, &doc.TenantID, &doc.ProjectID, &doc.Filename, &fileType,
		&doc.StoragePath, &doc.NormalizedPath, &doc.SizeBytes, &doc.ContentHash, &nearDup,
		&doc.QualityScore, &piiJSON, &metadataJSON, &status, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}

	if err := json.Unmarshal([]byte(piiJSON), &doc.PIIHits); err != nil {
		return nil, fmt.Errorf("unmarshaling pii hits of document %s: %w", doc.ID, err)
	}
	if err := json.Unmarshal([]byte(metadataJSON), &doc.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshaling metadata of document %s: %w", doc.ID, err)
	}

	doc.FileType = domain.FileType(fileType)
	doc.Status = domain.DocumentStatus(status)
	doc.NearDuplicateOf = nearDup.String
	doc.CreatedAt = parseTime(createdAt)

	return &doc, nil
}

// scanDataset scans a dataset_versions row. sql.ErrNoRows is returned unwrapped.
func scanDataset(row scanner) (*domain.DatasetVersion, error) {
	var ds domain.DatasetVersion
	var idsJSON, statsJSON, status, createdAt string
	var trainPath, valPath, testPath, goldPath, reviewPath sql.NullString

	if err := row.Scan(&ds.ID, &ds.TenantID, &ds.ProjectID, &ds.Name, &idsJSON,
		&trainPath, &valPath, &testPath, &goldPath, &reviewPath, &statsJSON,
		&ds.QualityScore, &status, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning dataset version: %w", err)
	}

	if err := json.Unmarshal([]byte(idsJSON), &ds.SourceDocumentIDs); err != nil {
		return nil, fmt.Errorf("unmarshaling source ids of dataset %s: %w", ds.ID, err)
	}
	if err := json.Unmarshal([]byte(statsJSON), &ds.Stats); err != nil {
		return nil, fmt.Errorf("unmarshaling stats of dataset %s: %w", ds.ID, err)
	}

	ds.TrainPath = trainPath.String
	ds.ValPath = valPath.String
	ds.TestPath = testPath.String
	ds.GoldPath = goldPath.String
	ds.ReviewPath = reviewPath.String
	ds.Status = domain.DatasetStatus(status)
	ds.CreatedAt = parseTime(createdAt)

	return &ds, nil
}

// formatTime formats t in UTC with the fixed-width layout.
func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime parses a stored timestamp. Returns zero time on error.
func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// nullString returns nil for empty strings, otherwise the string.
func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// boolToInt converts a bool to 1 (true) or 0 (false).
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nonNilPII(hits []domain.PIIHit) []domain.PIIHit {
	if hits == nil {
		return []domain.PIIHit{}
	}
	return hits
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
