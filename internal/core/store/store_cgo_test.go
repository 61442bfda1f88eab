//go:build cgo

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/govbatch/govbatch/internal/config"
	"github.com/govbatch/govbatch/internal/core"
	"github.com/govbatch/govbatch/internal/core/engine"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(context.Background(), config.StoreConfig{Driver: "libsql", Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenMemoryStore(t *testing.T) {
	s := newTestStore(t)
	require.Equal(t, "libsql", s.Driver())
}

func TestSaveAndGetBatch(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	started := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
	outcomes := []core.TaskOutcome{
		{TaskID: "00u1", Outcome: core.Outcome{Status: core.StatusSuccess, StatusCode: 200, Attempts: 1, Duration: 150 * time.Millisecond}},
		{TaskID: "00u2", Outcome: core.Outcome{Status: core.StatusFailed, Kind: core.FailureClient, StatusCode: 404, Message: "HTTP 404", Attempts: 1, Duration: 90 * time.Millisecond}},
	}
	result := &core.BatchResult{
		Outcomes:    outcomes,
		Summary:     engine.Summarize(outcomes),
		StartedAt:   started,
		CompletedAt: started.Add(2 * time.Second),
		Elapsed:     2 * time.Second,
	}

	require.NoError(t, s.SaveBatch(ctx, "run-1", "assign", result))

	run, stored, err := s.GetBatch(ctx, "run-1")
	require.NoError(t, err)
	require.NotNil(t, run)
	require.Equal(t, "assign", run.Kind)
	require.Equal(t, started, run.StartedAt)
	require.Equal(t, 2, run.Summary.Total)
	require.Equal(t, 1, run.Summary.SuccessCount)

	require.Len(t, stored, 2)
	require.Equal(t, "00u1", stored[0].TaskID)
	require.Equal(t, core.StatusSuccess, stored[0].Outcome.Status)
	require.Equal(t, "00u2", stored[1].TaskID)
	require.Equal(t, core.FailureClient, stored[1].Outcome.Kind)
	require.Equal(t, 404, stored[1].Outcome.StatusCode)
}

func TestGetBatchMissing(t *testing.T) {
	s := newTestStore(t)

	run, outcomes, err := s.GetBatch(context.Background(), "nope")
	require.NoError(t, err)
	require.Nil(t, run)
	require.Nil(t, outcomes)
}

func TestListBatchesNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	base := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"run-a", "run-b", "run-c"} {
		outcomes := []core.TaskOutcome{{TaskID: "t", Outcome: core.Outcome{Status: core.StatusSuccess, Attempts: 1}}}
		result := &core.BatchResult{
			Outcomes:    outcomes,
			Summary:     engine.Summarize(outcomes),
			StartedAt:   base.Add(time.Duration(i) * time.Minute),
			CompletedAt: base.Add(time.Duration(i)*time.Minute + time.Second),
			Elapsed:     time.Second,
		}
		require.NoError(t, s.SaveBatch(ctx, id, "search", result))
	}

	runs, err := s.ListBatches(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, "run-c", runs[0].ID)
	require.Equal(t, "run-b", runs[1].ID)
}

func TestRateObservations(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	observed := time.Date(2026, 8, 23, 11, 0, 0, 0, time.UTC)
	usages := []engine.CategoryUsage{
		{Category: "/api/v1/users", Ceiling: 600, InWindow: 120, Used: 0.2},
		{Category: "default", Ceiling: 600, InWindow: 6, Used: 0.01},
	}
	require.NoError(t, s.SaveRateObservations(ctx, usages, observed))

	all, err := s.ListRateObservations(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 2)

	filtered, err := s.ListRateObservations(ctx, "/api/v1/users", 10)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	require.Equal(t, 120, filtered[0].InWindow)
	require.Equal(t, observed, filtered[0].ObservedAt)

	removed, err := s.ResetRateObservations(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, removed)

	all, err = s.ListRateObservations(ctx, "", 10)
	require.NoError(t, err)
	require.Empty(t, all)
}
