package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/lorastudio/internal/core/domain"
	"github.com/custodia-labs/lorastudio/internal/core/ports/driven"
)

// ==================== Run Store ====================

// runStore implements driven.RunStore.
type runStore struct {
	store *Store
}

var _ driven.RunStore = (*runStore)(nil)

const runColumns = `id, tenant_id, project_id, dataset_version_id, requested_by, base_model_id, config,
	state, state_message, progress, vram_estimate_gb, checkpoint_path, adapter_path, package_path,
	eval_report_id, error_message, created_at, updated_at`

// SaveRun inserts a run or updates its non-state fields.
// An existing row keeps its state and state message.
func (s *runStore) SaveRun(ctx context.Context, run *domain.TrainingRun) error {
	if run == nil {
		return domain.ErrInvalidInput
	}

	configJSON, err := json.Marshal(run.Config)
	if err != nil {
		return fmt.Errorf("marshalling training config: %w", err)
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO training_runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			config = excluded.config,
			progress = excluded.progress,
			vram_estimate_gb = excluded.vram_estimate_gb,
			checkpoint_path = excluded.checkpoint_path,
			adapter_path = excluded.adapter_path,
			package_path = excluded.package_path,
			eval_report_id = excluded.eval_report_id,
			error_message = excluded.error_message,
			updated_at = excluded.updated_at
	`, run.ID, run.TenantID, run.ProjectID, run.DatasetVersionID, run.RequestedBy,
		run.BaseModelID, string(configJSON), string(run.State), run.StateMessage,
		run.Progress, run.VRAMEstimateGB, nullString(run.CheckpointPath),
		nullString(run.AdapterPath), nullString(run.PackagePath),
		nullString(run.EvalReportID), nullString(run.ErrorMessage),
		formatTime(run.CreatedAt), formatTime(run.UpdatedAt))

	if err != nil {
		return fmt.Errorf("saving training run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *runStore) GetRun(ctx context.Context, id string) (*domain.TrainingRun, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT `+runColumns+` FROM training_runs WHERE id = ?
	`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("training run", id)
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns the project's runs, newest first.
func (s *runStore) ListRuns(ctx context.Context, tenantID, projectID string) ([]domain.TrainingRun, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM training_runs
		WHERE tenant_id = ? AND project_id = ?
		ORDER BY created_at DESC, rowid DESC
	`, tenantID, projectID)
	if err != nil {
		return nil, fmt.Errorf("querying training runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.TrainingRun //nolint:prealloc // size unknown from query
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating training runs: %w", err)
	}

	return runs, nil
}

// OldestQueued returns the earliest created queued run.
// Returns nil and no error if none is queued.
func (s *runStore) OldestQueued(ctx context.Context) (*domain.TrainingRun, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT `+runColumns+`
		FROM training_runs
		WHERE state = ?
		ORDER BY created_at, rowid
		LIMIT 1
	`, string(domain.RunQueued))

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// CompareAndSetState moves a run from `from` to `to` if it is still in `from`.
// The conditional UPDATE is the claim: only one caller sees an affected row.
func (s *runStore) CompareAndSetState(
	ctx context.Context, id string, from, to domain.RunState, message string, at time.Time,
) (bool, error) {
	res, err := s.store.db.ExecContext(ctx, `
		UPDATE training_runs
		SET state = ?, state_message = ?, updated_at = ?
		WHERE id = ? AND state = ?
	`, string(to), message, formatTime(at), id, string(from))
	if err != nil {
		return false, fmt.Errorf("updating run state: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading affected rows: %w", err)
	}
	return n == 1, nil
}

// CountCreatedSince counts a tenant's runs created at or after since.
func (s *runStore) CountCreatedSince(ctx context.Context, tenantID string, since time.Time) (int64, error) {
	var n int64
	row := s.store.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM training_runs WHERE tenant_id = ? AND created_at >= ?
	`, tenantID, formatTime(since))
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("counting training runs: %w", err)
	}
	return n, nil
}

// ==================== Run Event Store ====================

// runEventStore implements driven.RunEventStore.
type runEventStore struct {
	store *Store
}

var _ driven.RunEventStore = (*runEventStore)(nil)

// AppendEvent records one transition.
func (s *runEventStore) AppendEvent(ctx context.Context, event *domain.RunEvent) error {
	if event == nil {
		return domain.ErrInvalidInput
	}

	var details interface{}
	if len(event.Details) > 0 {
		b, err := json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("marshalling event details: %w", err)
		}
		details = string(b)
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO run_events (id, run_id, tenant_id, project_id, from_state, to_state, message, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, event.ID, event.RunID, event.TenantID, event.ProjectID,
		nullString(string(event.FromState)), string(event.ToState), event.Message,
		details, formatTime(event.CreatedAt))

	if err != nil {
		return fmt.Errorf("appending run event: %w", err)
	}
	return nil
}

// ListEvents returns a run's events in append order.
func (s *runEventStore) ListEvents(ctx context.Context, runID string) ([]domain.RunEvent, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, run_id, tenant_id, project_id, from_state, to_state, message, details, created_at
		FROM run_events
		WHERE run_id = ?
		ORDER BY created_at, rowid
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying run events: %w", err)
	}
	defer rows.Close()

	var events []domain.RunEvent //nolint:prealloc // size unknown from query
	for rows.Next() {
		var event domain.RunEvent
		var fromState, details sql.NullString
		var toState, createdAt string
		if err := rows.Scan(&event.ID, &event.RunID, &event.TenantID, &event.ProjectID,
			&fromState, &toState, &event.Message, &details, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning run event: %w", err)
		}
		if details.Valid && details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &event.Details); err != nil {
				return nil, fmt.Errorf("unmarshaling details of event %s: %w", event.ID, err)
			}
		}
		event.FromState = domain.RunState(fromState.String)
		event.ToState = domain.RunState(toState)
		event.CreatedAt = parseTime(createdAt)
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating run events: %w", err)
	}

	return events, nil
}

// scanRun scans a training_runs row. sql.ErrNoRows is returned unwrapped.
func scanRun(row scanner) (*domain.TrainingRun, error) {
	var run domain.TrainingRun
	var configJSON, state, createdAt, updatedAt string
	var checkpoint, adapter, pkg, evalReport, errMsg sql.NullString

	if err := row.Scan(&run.ID, &run.TenantID, &run.ProjectID, &run.DatasetVersionID,
		&run.RequestedBy, &run.BaseModelID, &configJSON, &state, &run.StateMessage,
		&run.Progress, &run.VRAMEstimateGB, &checkpoint, &adapter, &pkg,
		&evalReport, &errMsg, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning training run: %w", err)
	}

	if err := json.Unmarshal([]byte(configJSON), &run.Config); err != nil {
		return nil, fmt.Errorf("unmarshaling config of run %s: %w", run.ID, err)
	}

	run.State = domain.RunState(state)
	run.CheckpointPath = checkpoint.String
	run.AdapterPath = adapter.String
	run.PackagePath = pkg.String
	run.EvalReportID = evalReport.String
	run.ErrorMessage = errMsg.String
	run.CreatedAt = parseTime(createdAt)
	run.UpdatedAt = parseTime(updatedAt)

	return &run, nil
}
