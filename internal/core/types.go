package core

import (
	"encoding/json"
	"net/http"
	"time"
)

// Operation describes a remote call independent of the concrete API
// resource model: an HTTP method plus a path (query string included).
type Operation struct {
	Method string `json:"method"`
	Path   string `json:"path"`
}

// Task is a single independently schedulable operation within a batch.
// Tasks are immutable once submitted.
type Task struct {
	ID      string          `json:"id"`
	Op      Operation       `json:"op"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response is what an executor hands back from a dispatched call.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       json.RawMessage
}

// OutcomeStatus is the terminal state of a task.
type OutcomeStatus string

const (
	StatusSuccess   OutcomeStatus = "success"
	StatusFailed    OutcomeStatus = "failed"
	StatusTimeout   OutcomeStatus = "timeout"
	StatusCancelled OutcomeStatus = "cancelled"
)

// FailureKind classifies why a task failed.
type FailureKind string

const (
	FailureTransport FailureKind = "transport_error"
	FailureRateLimit FailureKind = "rate_limit_exceeded"
	FailureServer    FailureKind = "server_error"
	FailureClient    FailureKind = "client_error"
	FailureTimeout   FailureKind = "timeout"
	FailureCancelled FailureKind = "cancelled"
)

// Outcome is assigned exactly once per task.
type Outcome struct {
	Status     OutcomeStatus   `json:"status"`
	Kind       FailureKind     `json:"kind,omitempty"`
	Message    string          `json:"message,omitempty"`
	StatusCode int             `json:"status_code,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	Attempts   int             `json:"attempts"`
	Duration   time.Duration   `json:"duration"`
}

// TaskOutcome pairs a task id with its terminal outcome.
type TaskOutcome struct {
	TaskID  string  `json:"task_id"`
	Outcome Outcome `json:"outcome"`
}

// BatchJob is one caller invocation: an ordered task list plus the
// execution policy that governs it.
type BatchJob struct {
	Tasks          []Task        `json:"tasks"`
	Concurrency    int           `json:"concurrency"`
	PerTaskTimeout time.Duration `json:"per_task_timeout"`
	MaxRetries     int           `json:"max_retries"`
}

// BatchResult mirrors the job's task order exactly, independent of
// completion order.
type BatchResult struct {
	Outcomes    []TaskOutcome `json:"outcomes"`
	Summary     Summary       `json:"summary"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
	Elapsed     time.Duration `json:"elapsed"`
}

// TaskFailure identifies one non-successful task in a summary.
type TaskFailure struct {
	TaskID  string      `json:"task_id"`
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message,omitempty"`
}

// Summary is the reduced view of a (possibly in-progress) outcome
// sequence.
type Summary struct {
	Total          int                 `json:"total"`
	SuccessCount   int                 `json:"success_count"`
	TimedOutCount  int                 `json:"timed_out_count"`
	CancelledCount int                 `json:"cancelled_count"`
	FailedByKind   map[FailureKind]int `json:"failed_by_kind,omitempty"`
	FailedTasks    []TaskFailure       `json:"failed_tasks,omitempty"`
}
