package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fulmenhq/gofulmen/logging"

	"github.com/govbatch/govbatch/internal/core"
)

// DefaultPerTaskTimeout bounds how long the runner waits on any single
// task. Purely client-side: it does not imply a server-side abort.
const DefaultPerTaskTimeout = 30 * time.Second

// Runner executes the tasks of a batch in parallel under a bounded
// concurrency gate, isolating per-task failure and preserving
// submission order in the output.
type Runner struct {
	Throttle *Throttle
	Logger   *logging.Logger
}

// Run executes every task of the job to a terminal outcome and returns
// the ordered result. Only configuration errors fail the whole batch,
// and they do so before any task starts. Cancelling ctx is cooperative:
// it stops new tasks from being admitted while tasks already admitted
// run to completion.
func (r *Runner) Run(ctx context.Context, job core.BatchJob) (*core.BatchResult, error) {
	if err := validateJob(job); err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	timeout := job.PerTaskTimeout
	if timeout <= 0 {
		timeout = DefaultPerTaskTimeout
	}

	startedAt := time.Now().UTC()
	outcomes := make([]core.TaskOutcome, len(job.Tasks))

	type indexedTask struct {
		index int
		task  core.Task
	}
	jobs := make(chan indexedTask)

	concurrency := job.Concurrency
	if concurrency > len(job.Tasks) {
		concurrency = len(job.Tasks)
	}

	var wg sync.WaitGroup
	worker := func() {
		defer wg.Done()
		for item := range jobs {
			outcomes[item.index] = core.TaskOutcome{
				TaskID:  item.task.ID,
				Outcome: r.runTask(ctx, item.task, timeout, job.MaxRetries),
			}
			r.logOutcome(item.task, outcomes[item.index].Outcome)
		}
	}

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go worker()
	}

	// Cooperative cancellation is checked before admitting each task;
	// tasks never started are marked cancelled below.
sendLoop:
	for i, task := range job.Tasks {
		select {
		case <-ctx.Done():
			break sendLoop
		case jobs <- indexedTask{index: i, task: task}:
		}
	}
	close(jobs)
	wg.Wait()

	for i, task := range job.Tasks {
		if outcomes[i].TaskID == "" && outcomes[i].Outcome.Status == "" {
			outcomes[i] = core.TaskOutcome{
				TaskID: task.ID,
				Outcome: core.Outcome{
					Status:  core.StatusCancelled,
					Kind:    core.FailureCancelled,
					Message: "batch cancelled before task started",
				},
			}
		}
	}

	completedAt := time.Now().UTC()
	return &core.BatchResult{
		Outcomes:    outcomes,
		Summary:     Summarize(outcomes),
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		Elapsed:     completedAt.Sub(startedAt),
	}, nil
}

// runTask funnels one task through the throttle under the per-task
// timeout. The timeout context is detached from batch cancellation so
// an admitted task runs to completion, and the worker abandons the
// call rather than waiting past the deadline.
func (r *Runner) runTask(ctx context.Context, task core.Task, timeout time.Duration, maxRetries int) core.Outcome {
	taskCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	throttle := r.taskThrottle(maxRetries)

	done := make(chan core.Outcome, 1)
	go func() {
		defer func() {
			// A panicking executor is converted to a failed outcome so
			// it never aborts sibling tasks or the runner.
			if rec := recover(); rec != nil {
				done <- core.Outcome{
					Status:  core.StatusFailed,
					Kind:    core.FailureTransport,
					Message: fmt.Sprintf("executor panic: %v", rec),
				}
			}
		}()
		done <- throttle.Call(taskCtx, task.Op, task.Payload)
	}()

	select {
	case outcome := <-done:
		return outcome
	case <-taskCtx.Done():
		return core.Outcome{
			Status:  core.StatusTimeout,
			Kind:    core.FailureTimeout,
			Message: fmt.Sprintf("task exceeded %s timeout", timeout),
		}
	}
}

// taskThrottle applies the job's retry budget on top of the shared
// throttle configuration.
func (r *Runner) taskThrottle(maxRetries int) *Throttle {
	throttle := *r.Throttle
	if maxRetries > 0 {
		throttle.MaxRetries = maxRetries
	}
	return &throttle
}

func (r *Runner) logOutcome(task core.Task, outcome core.Outcome) {
	if r.Logger == nil {
		return
	}
	fields := []zap.Field{
		zap.String("task_id", task.ID),
		zap.String("status", string(outcome.Status)),
		zap.Int("attempts", outcome.Attempts),
		zap.Duration("duration", outcome.Duration),
	}
	if outcome.Status == core.StatusSuccess {
		r.Logger.Debug("task completed", fields...)
		return
	}
	fields = append(fields, zap.String("kind", string(outcome.Kind)), zap.String("message", outcome.Message))
	r.Logger.Warn("task did not succeed", fields...)
}

func validateJob(job core.BatchJob) error {
	if job.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive, got %d", job.Concurrency)
	}
	if job.MaxRetries < 0 {
		return fmt.Errorf("max retries must be non-negative, got %d", job.MaxRetries)
	}
	if len(job.Tasks) == 0 {
		return errors.New("batch has no tasks")
	}
	for i, task := range job.Tasks {
		if task.ID == "" {
			return fmt.Errorf("task %d has an empty id", i)
		}
	}
	return nil
}
