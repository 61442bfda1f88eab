package store

import (
	"context"
	"errors"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS batch_runs (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		completed_at INTEGER NOT NULL,
		elapsed_ms INTEGER NOT NULL,
		total INTEGER NOT NULL,
		success_count INTEGER NOT NULL,
		timed_out_count INTEGER NOT NULL,
		cancelled_count INTEGER NOT NULL,
		summary_json TEXT NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_batch_runs_started ON batch_runs(started_at);`,
	`CREATE TABLE IF NOT EXISTS batch_tasks (
		run_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		task_id TEXT NOT NULL,
		status TEXT NOT NULL,
		kind TEXT,
		message TEXT,
		status_code INTEGER,
		attempts INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		PRIMARY KEY (run_id, position)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_batch_tasks_task ON batch_tasks(task_id);`,
	`CREATE TABLE IF NOT EXISTS rate_observations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		category TEXT NOT NULL,
		ceiling INTEGER NOT NULL,
		in_window INTEGER NOT NULL,
		used REAL NOT NULL,
		observed_at INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_rate_observations_category ON rate_observations(category, observed_at);`,
}

// Migrate ensures the required database tables exist.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	for _, stmt := range schemaStatements {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store migration failed: %w", err)
		}
	}

	return nil
}
