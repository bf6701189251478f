package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/custodia-labs/lorastudio/internal/core/domain"
	"github.com/custodia-labs/lorastudio/internal/core/ports/driven"
)

// ==================== Poll History Store ====================

// pollHistoryStore implements driven.PollHistoryStore.
type pollHistoryStore struct {
	store *Store
}

var _ driven.PollHistoryStore = (*pollHistoryStore)(nil)

// RecordCycle appends one cycle. Run ids are stored as a JSON array.
func (s *pollHistoryStore) RecordCycle(ctx context.Context, cycle *domain.PollCycle) error {
	if cycle == nil {
		return domain.ErrInvalidInput
	}

	runIDs, err := json.Marshal(nonNilStrings(cycle.RunIDs))
	if err != nil {
		return fmt.Errorf("marshalling run ids: %w", err)
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO poll_cycles (poller, started_at, ended_at, success, error, run_ids, runs_failed)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, cycle.Poller, formatTime(cycle.StartedAt), formatTime(cycle.EndedAt),
		boolToInt(cycle.Success), nullString(cycle.Error), string(runIDs), cycle.RunsFailed)
	if err != nil {
		return fmt.Errorf("recording poll cycle: %w", err)
	}
	return nil
}

// RecentCycles returns a poller's cycles, newest first.
func (s *pollHistoryStore) RecentCycles(ctx context.Context, poller string, limit int) ([]domain.PollCycle, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT poller, started_at, ended_at, success, COALESCE(error, ''), run_ids, runs_failed
		FROM poll_cycles
		WHERE poller = ?
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, poller, limit)
	if err != nil {
		return nil, fmt.Errorf("querying poll cycles: %w", err)
	}
	defer rows.Close()

	var cycles []domain.PollCycle
	for rows.Next() {
		cycle, err := scanPollCycle(rows)
		if err != nil {
			return nil, err
		}
		cycles = append(cycles, *cycle)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating poll cycles: %w", err)
	}
	return cycles, nil
}

// PruneCycles keeps the newest keep cycles of each poller.
func (s *pollHistoryStore) PruneCycles(ctx context.Context, keep int) error {
	if keep < 0 {
		keep = 0
	}
	_, err := s.store.db.ExecContext(ctx, `
		DELETE FROM poll_cycles
		WHERE id IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (
					PARTITION BY poller ORDER BY started_at DESC, id DESC
				) AS position
				FROM poll_cycles
			) WHERE position > ?
		)
	`, keep)
	if err != nil {
		return fmt.Errorf("pruning poll cycles: %w", err)
	}
	return nil
}

func scanPollCycle(row scanner) (*domain.PollCycle, error) {
	var (
		c                  domain.PollCycle
		startedAt, endedAt string
		success            int
		runIDs             string
	)
	if err := row.Scan(&c.Poller, &startedAt, &endedAt, &success, &c.Error, &runIDs, &c.RunsFailed); err != nil {
		return nil, fmt.Errorf("scanning poll cycle: %w", err)
	}
	if err := json.Unmarshal([]byte(runIDs), &c.RunIDs); err != nil {
		return nil, fmt.Errorf("decoding run ids of poll cycle: %w", err)
	}
	c.StartedAt = parseTime(startedAt)
	c.EndedAt = parseTime(endedAt)
	c.Success = success == 1
	return &c, nil
}
