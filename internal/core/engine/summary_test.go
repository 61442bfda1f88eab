package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/govbatch/govbatch/internal/core"
)

func sampleOutcomes() []core.TaskOutcome {
	return []core.TaskOutcome{
		{TaskID: "a", Outcome: core.Outcome{Status: core.StatusSuccess}},
		{TaskID: "b", Outcome: core.Outcome{Status: core.StatusFailed, Kind: core.FailureRateLimit, Message: "HTTP 429"}},
		{TaskID: "c", Outcome: core.Outcome{Status: core.StatusTimeout, Kind: core.FailureTimeout, Message: "task exceeded 500ms timeout"}},
		{TaskID: "d", Outcome: core.Outcome{Status: core.StatusFailed, Kind: core.FailureClient, Message: "HTTP 404"}},
		{TaskID: "e", Outcome: core.Outcome{Status: core.StatusCancelled, Kind: core.FailureCancelled}},
		{TaskID: "f", Outcome: core.Outcome{Status: core.StatusFailed, Kind: core.FailureRateLimit, Message: "HTTP 429"}},
	}
}

func TestSummarizeCounts(t *testing.T) {
	summary := Summarize(sampleOutcomes())

	require.Equal(t, 6, summary.Total)
	require.Equal(t, 1, summary.SuccessCount)
	require.Equal(t, 1, summary.TimedOutCount)
	require.Equal(t, 1, summary.CancelledCount)
	require.Equal(t, map[core.FailureKind]int{
		core.FailureRateLimit: 2,
		core.FailureClient:    1,
	}, summary.FailedByKind)

	// Every non-successful task is enumerated, in submission order.
	ids := make([]string, 0, len(summary.FailedTasks))
	for _, failure := range summary.FailedTasks {
		ids = append(ids, failure.TaskID)
	}
	require.Equal(t, []string{"b", "c", "d", "e", "f"}, ids)
}

func TestSummarizeIsIdempotent(t *testing.T) {
	outcomes := sampleOutcomes()

	first := Summarize(outcomes)
	second := Summarize(outcomes)
	require.Equal(t, first, second)
}

func TestSummarizeSupportsIncrementalPrefixes(t *testing.T) {
	outcomes := sampleOutcomes()

	partial := Summarize(outcomes[:2])
	require.Equal(t, 2, partial.Total)
	require.Equal(t, 1, partial.SuccessCount)
	require.Len(t, partial.FailedTasks, 1)

	full := Summarize(outcomes)
	require.Equal(t, 6, full.Total)
}

func TestSummarizeEmpty(t *testing.T) {
	summary := Summarize(nil)
	require.Zero(t, summary.Total)
	require.Nil(t, summary.FailedByKind)
	require.Nil(t, summary.FailedTasks)
}
