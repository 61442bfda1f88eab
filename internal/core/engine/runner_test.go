package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/govbatch/govbatch/internal/core"
)

func newTestRunner(t *testing.T, exec Executor) *Runner {
	t.Helper()

	tracker, err := NewTracker(DefaultCategories, DefaultSafetyThreshold)
	require.NoError(t, err)

	return &Runner{
		Throttle: &Throttle{
			Tracker:     tracker,
			Executor:    exec,
			MaxRetries:  1,
			BaseBackoff: time.Millisecond,
		},
	}
}

func makeTasks(n int) []core.Task {
	tasks := make([]core.Task, 0, n)
	for i := 0; i < n; i++ {
		tasks = append(tasks, core.Task{
			ID: fmt.Sprintf("task-%03d", i),
			Op: core.Operation{Method: "GET", Path: fmt.Sprintf("/api/v1/users/00u%03d", i)},
		})
	}
	return tasks
}

func TestRunValidatesJobBeforeStarting(t *testing.T) {
	started := int32(0)
	exec := ExecutorFunc(func(ctx context.Context, op core.Operation, payload []byte) (*core.Response, error) {
		atomic.AddInt32(&started, 1)
		return &core.Response{StatusCode: http.StatusOK}, nil
	})
	runner := newTestRunner(t, exec)

	_, err := runner.Run(context.Background(), core.BatchJob{Tasks: makeTasks(2), Concurrency: 0})
	require.Error(t, err)

	_, err = runner.Run(context.Background(), core.BatchJob{Tasks: nil, Concurrency: 2})
	require.Error(t, err)

	_, err = runner.Run(context.Background(), core.BatchJob{Tasks: []core.Task{{ID: ""}}, Concurrency: 2})
	require.Error(t, err)

	_, err = runner.Run(context.Background(), core.BatchJob{Tasks: makeTasks(2), Concurrency: 2, MaxRetries: -1})
	require.Error(t, err)

	require.Zero(t, atomic.LoadInt32(&started), "no task may start on config errors")
}

func TestRunPreservesSubmissionOrder(t *testing.T) {
	exec := ExecutorFunc(func(ctx context.Context, op core.Operation, payload []byte) (*core.Response, error) {
		// Completion order is deliberately scrambled.
		time.Sleep(time.Duration(len(op.Path)%7) * time.Millisecond)
		return &core.Response{StatusCode: http.StatusOK, Body: json.RawMessage(`{}`)}, nil
	})
	runner := newTestRunner(t, exec)

	tasks := makeTasks(40)
	result, err := runner.Run(context.Background(), core.BatchJob{
		Tasks:          tasks,
		Concurrency:    8,
		PerTaskTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	require.Len(t, result.Outcomes, len(tasks))

	for i, task := range tasks {
		require.Equal(t, task.ID, result.Outcomes[i].TaskID)
		require.Equal(t, core.StatusSuccess, result.Outcomes[i].Outcome.Status)
	}
	require.Equal(t, len(tasks), result.Summary.SuccessCount)
}

func TestRunBoundsConcurrency(t *testing.T) {
	const limit = 4

	var inFlight, peak int32
	exec := ExecutorFunc(func(ctx context.Context, op core.Operation, payload []byte) (*core.Response, error) {
		current := atomic.AddInt32(&inFlight, 1)
		for {
			observed := atomic.LoadInt32(&peak)
			if current <= observed || atomic.CompareAndSwapInt32(&peak, observed, current) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return &core.Response{StatusCode: http.StatusOK}, nil
	})
	runner := newTestRunner(t, exec)

	_, err := runner.Run(context.Background(), core.BatchJob{
		Tasks:          makeTasks(32),
		Concurrency:    limit,
		PerTaskTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	require.LessOrEqual(t, atomic.LoadInt32(&peak), int32(limit))
	require.Positive(t, atomic.LoadInt32(&peak))
}

func TestRunIsolatesTaskFailures(t *testing.T) {
	exec := ExecutorFunc(func(ctx context.Context, op core.Operation, payload []byte) (*core.Response, error) {
		if strings.Contains(op.Path, "00u001") {
			return nil, errors.New("connection refused")
		}
		return &core.Response{StatusCode: http.StatusOK}, nil
	})
	runner := newTestRunner(t, exec)

	result, err := runner.Run(context.Background(), core.BatchJob{
		Tasks:          makeTasks(3),
		Concurrency:    3,
		PerTaskTimeout: 5 * time.Second,
	})
	require.NoError(t, err)

	require.Equal(t, core.StatusSuccess, result.Outcomes[0].Outcome.Status)
	require.Equal(t, core.StatusFailed, result.Outcomes[1].Outcome.Status)
	require.Equal(t, core.FailureTransport, result.Outcomes[1].Outcome.Kind)
	require.Equal(t, core.StatusSuccess, result.Outcomes[2].Outcome.Status)

	require.Equal(t, 2, result.Summary.SuccessCount)
	require.Equal(t, 1, result.Summary.FailedByKind[core.FailureTransport])
	require.Len(t, result.Summary.FailedTasks, 1)
	require.Equal(t, "task-001", result.Summary.FailedTasks[0].TaskID)
}

func TestRunIsolatesExecutorPanics(t *testing.T) {
	exec := ExecutorFunc(func(ctx context.Context, op core.Operation, payload []byte) (*core.Response, error) {
		if strings.Contains(op.Path, "00u000") {
			panic("boom")
		}
		return &core.Response{StatusCode: http.StatusOK}, nil
	})
	runner := newTestRunner(t, exec)

	result, err := runner.Run(context.Background(), core.BatchJob{
		Tasks:          makeTasks(2),
		Concurrency:    2,
		PerTaskTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	require.Equal(t, core.StatusFailed, result.Outcomes[0].Outcome.Status)
	require.Contains(t, result.Outcomes[0].Outcome.Message, "boom")
	require.Equal(t, core.StatusSuccess, result.Outcomes[1].Outcome.Status)
}

func TestRunTimesOutSlowTasksWithoutSerializing(t *testing.T) {
	exec := ExecutorFunc(func(ctx context.Context, op core.Operation, payload []byte) (*core.Response, error) {
		if strings.Contains(op.Path, "00u001") {
			time.Sleep(800 * time.Millisecond)
		} else {
			time.Sleep(20 * time.Millisecond)
		}
		return &core.Response{StatusCode: http.StatusOK}, nil
	})
	runner := newTestRunner(t, exec)

	start := time.Now()
	result, err := runner.Run(context.Background(), core.BatchJob{
		Tasks:          makeTasks(3),
		Concurrency:    3,
		PerTaskTimeout: 200 * time.Millisecond,
	})
	require.NoError(t, err)

	require.Equal(t, core.StatusSuccess, result.Outcomes[0].Outcome.Status)
	require.Equal(t, core.StatusTimeout, result.Outcomes[1].Outcome.Status)
	require.Equal(t, core.StatusSuccess, result.Outcomes[2].Outcome.Status)

	// Wall clock is bounded by the timeout, not the sum of task
	// durations: the three tasks really ran in parallel.
	require.Less(t, time.Since(start), 600*time.Millisecond)
	require.Equal(t, 1, result.Summary.TimedOutCount)
}

func TestRunMarksUnstartedTasksCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var once sync.Once
	release := make(chan struct{})
	exec := ExecutorFunc(func(c context.Context, op core.Operation, payload []byte) (*core.Response, error) {
		once.Do(func() {
			cancel()
			close(release)
		})
		<-release
		return &core.Response{StatusCode: http.StatusOK}, nil
	})
	runner := newTestRunner(t, exec)

	tasks := makeTasks(20)
	result, err := runner.Run(ctx, core.BatchJob{
		Tasks:          tasks,
		Concurrency:    1,
		PerTaskTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	require.Len(t, result.Outcomes, len(tasks))

	// The admitted task ran to completion; tasks never started carry
	// the cancelled outcome.
	require.Equal(t, core.StatusSuccess, result.Outcomes[0].Outcome.Status)
	require.Positive(t, result.Summary.CancelledCount)
	for _, item := range result.Outcomes {
		require.NotEmpty(t, item.TaskID)
		require.NotEmpty(t, item.Outcome.Status)
	}
	require.Equal(t, len(tasks), result.Summary.Total)
}
