package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/govbatch/govbatch/internal/core"
)

// BatchRun is the stored header of one executed batch.
type BatchRun struct {
	ID          string        `json:"id"`
	Kind        string        `json:"kind"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
	Elapsed     time.Duration `json:"elapsed"`
	Summary     core.Summary  `json:"summary"`
}

// SaveBatch persists a completed batch run and its per-task outcomes in
// one transaction. Task result bodies are not stored; the audit trail
// records dispositions, not payloads.
func (s *Store) SaveBatch(ctx context.Context, id, kind string, result *core.BatchResult) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("batch run id is required")
	}
	if result == nil {
		return errors.New("batch result is required")
	}

	summaryJSON, err := json.Marshal(result.Summary)
	if err != nil {
		return fmt.Errorf("encode batch summary: %w", err)
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch save: %w", err)
	}
	defer tx.Rollback() // nolint:errcheck // no-op after commit

	_, err = tx.ExecContext(ctx, `
		INSERT INTO batch_runs (
			id, kind, started_at, completed_at, elapsed_ms,
			total, success_count, timed_out_count, cancelled_count, summary_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		id,
		kind,
		result.StartedAt.UTC().Unix(),
		result.CompletedAt.UTC().Unix(),
		result.Elapsed.Milliseconds(),
		result.Summary.Total,
		result.Summary.SuccessCount,
		result.Summary.TimedOutCount,
		result.Summary.CancelledCount,
		string(summaryJSON),
	)
	if err != nil {
		return fmt.Errorf("store batch run: %w", err)
	}

	for position, item := range result.Outcomes {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO batch_tasks (
				run_id, position, task_id, status, kind, message, status_code, attempts, duration_ms
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			id,
			position,
			item.TaskID,
			string(item.Outcome.Status),
			string(item.Outcome.Kind),
			item.Outcome.Message,
			item.Outcome.StatusCode,
			item.Outcome.Attempts,
			item.Outcome.Duration.Milliseconds(),
		)
		if err != nil {
			return fmt.Errorf("store batch task %s: %w", item.TaskID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch save: %w", err)
	}
	return nil
}

// ListBatches returns the most recent batch runs, newest first.
func (s *Store) ListBatches(ctx context.Context, limit int) ([]BatchRun, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, kind, started_at, completed_at, elapsed_ms, summary_json
		FROM batch_runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list batch runs: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	var runs []BatchRun
	for rows.Next() {
		run, err := scanBatchRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list batch runs: %w", err)
	}
	return runs, nil
}

// GetBatch returns one stored run and its per-task outcomes in
// submission order. Returns nil when the run does not exist.
func (s *Store) GetBatch(ctx context.Context, id string) (*BatchRun, []core.TaskOutcome, error) {
	if s == nil || s.DB == nil {
		return nil, nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil, errors.New("batch run id is required")
	}

	row := s.DB.QueryRowContext(ctx, `
		SELECT id, kind, started_at, completed_at, elapsed_ms, summary_json
		FROM batch_runs
		WHERE id = ?
	`, id)

	run, err := scanBatchRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, nil
		}
		return nil, nil, err
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT task_id, status, kind, message, status_code, attempts, duration_ms
		FROM batch_tasks
		WHERE run_id = ?
		ORDER BY position ASC
	`, id)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch batch tasks: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	var outcomes []core.TaskOutcome
	for rows.Next() {
		var (
			taskID     string
			status     string
			kind       sql.NullString
			message    sql.NullString
			statusCode sql.NullInt64
			attempts   int
			durationMS int64
		)
		if err := rows.Scan(&taskID, &status, &kind, &message, &statusCode, &attempts, &durationMS); err != nil {
			return nil, nil, fmt.Errorf("scan batch task: %w", err)
		}
		outcomes = append(outcomes, core.TaskOutcome{
			TaskID: taskID,
			Outcome: core.Outcome{
				Status:     core.OutcomeStatus(status),
				Kind:       core.FailureKind(kind.String),
				Message:    message.String,
				StatusCode: int(statusCode.Int64),
				Attempts:   attempts,
				Duration:   time.Duration(durationMS) * time.Millisecond,
			},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("fetch batch tasks: %w", err)
	}

	return &run, outcomes, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBatchRun(row rowScanner) (BatchRun, error) {
	var (
		run         BatchRun
		startedAt   int64
		completedAt int64
		elapsedMS   int64
		summaryJSON string
	)
	if err := row.Scan(&run.ID, &run.Kind, &startedAt, &completedAt, &elapsedMS, &summaryJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return BatchRun{}, sql.ErrNoRows
		}
		return BatchRun{}, fmt.Errorf("scan batch run: %w", err)
	}

	run.StartedAt = time.Unix(startedAt, 0).UTC()
	run.CompletedAt = time.Unix(completedAt, 0).UTC()
	run.Elapsed = time.Duration(elapsedMS) * time.Millisecond

	if err := json.Unmarshal([]byte(summaryJSON), &run.Summary); err != nil {
		return BatchRun{}, fmt.Errorf("decode batch summary: %w", err)
	}
	return run, nil
}
