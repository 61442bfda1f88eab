package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/govbatch/govbatch/internal/core/engine"
)

// RateObservation is one stored point-in-time window reading.
type RateObservation struct {
	Category   string    `json:"category"`
	Ceiling    int       `json:"ceiling"`
	InWindow   int       `json:"in_window"`
	Used       float64   `json:"used"`
	ObservedAt time.Time `json:"observed_at"`
}

// SaveRateObservations persists one snapshot of every category window.
func (s *Store) SaveRateObservations(ctx context.Context, usages []engine.CategoryUsage, observedAt time.Time) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if len(usages) == 0 {
		return nil
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rate observation save: %w", err)
	}
	defer tx.Rollback() // nolint:errcheck // no-op after commit

	stamp := observedAt.UTC().Unix()
	for _, usage := range usages {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO rate_observations (category, ceiling, in_window, used, observed_at)
			VALUES (?, ?, ?, ?, ?)
		`, usage.Category, usage.Ceiling, usage.InWindow, usage.Used, stamp)
		if err != nil {
			return fmt.Errorf("store rate observation for %s: %w", usage.Category, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rate observation save: %w", err)
	}
	return nil
}

// ListRateObservations returns stored readings, newest first. An empty
// category matches all categories.
func (s *Store) ListRateObservations(ctx context.Context, category string, limit int) ([]RateObservation, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT category, ceiling, in_window, used, observed_at
		FROM rate_observations
	`
	args := []any{}
	if category = strings.TrimSpace(category); category != "" {
		query += " WHERE category = ?"
		args = append(args, category)
	}
	query += " ORDER BY observed_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list rate observations: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	var observations []RateObservation
	for rows.Next() {
		var (
			obs        RateObservation
			observedAt int64
		)
		if err := rows.Scan(&obs.Category, &obs.Ceiling, &obs.InWindow, &obs.Used, &observedAt); err != nil {
			return nil, fmt.Errorf("scan rate observation: %w", err)
		}
		obs.ObservedAt = time.Unix(observedAt, 0).UTC()
		observations = append(observations, obs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list rate observations: %w", err)
	}
	return observations, nil
}

// ResetRateObservations deletes all stored readings and returns how
// many were removed.
func (s *Store) ResetRateObservations(ctx context.Context) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	res, err := s.DB.ExecContext(ctx, `DELETE FROM rate_observations`)
	if err != nil {
		return 0, fmt.Errorf("reset rate observations: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return affected, nil
}
