package engine

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/fulmenhq/gofulmen/logging"

	"github.com/govbatch/govbatch/internal/core"
)

// Executor is the outbound capability the throttle decorates. It is
// injected, not globally intercepted, so tests can substitute
// deterministic fakes. A non-nil error means the call never produced an
// HTTP response (timeout, connection failure).
type Executor interface {
	Execute(ctx context.Context, op core.Operation, payload []byte) (*core.Response, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, op core.Operation, payload []byte) (*core.Response, error)

func (f ExecutorFunc) Execute(ctx context.Context, op core.Operation, payload []byte) (*core.Response, error) {
	return f(ctx, op, payload)
}

// Backoff defaults, matching the remote API's observed recovery times.
const (
	DefaultBaseBackoff = time.Second
	DefaultMaxBackoff  = time.Minute
	DefaultMaxRetries  = 5

	backoffJitter = 0.20
)

// Throttle wraps individual outbound calls: it consults the tracker,
// inserts pacing delay, executes the call, interprets overload
// responses, and retries with exponential backoff plus jitter.
type Throttle struct {
	Tracker     *Tracker
	Executor    Executor
	MaxRetries  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	Logger      *logging.Logger

	// sleep and jitter are injection points for tests.
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() float64
}

// Call dispatches one operation and normalizes every failure into a
// terminal Outcome. It never returns an error to the caller.
func (t *Throttle) Call(ctx context.Context, op core.Operation, payload []byte) core.Outcome {
	start := time.Now()
	category := t.Tracker.Classify(op.Path)

	var outcome core.Outcome
	maxRetries := t.maxRetries()
	attempts := 0

loop:
	for attempt := 0; ; attempt++ {
		if err := t.pace(ctx, category); err != nil {
			outcome = failure(core.FailureTransport, err.Error(), 0)
			break loop
		}

		attempts++
		resp, err := t.Executor.Execute(ctx, op, payload)
		if err != nil {
			outcome = failure(core.FailureTransport, err.Error(), 0)
			if attempt >= maxRetries || t.backoff(ctx, attempt, 0) != nil {
				break loop
			}
			continue
		}

		code := resp.StatusCode
		switch {
		case code >= 200 && code < 300:
			outcome = core.Outcome{Status: core.StatusSuccess, StatusCode: code, Result: resp.Body}
			break loop
		case code == http.StatusTooManyRequests:
			outcome = failure(core.FailureRateLimit, bodySummary(resp), code)
			if attempt >= maxRetries {
				break loop
			}
			hint := retryAfterHint(resp.Headers, time.Now())
			t.logRetry(op, category, attempt, code, hint)
			if t.backoff(ctx, attempt, hint) != nil {
				break loop
			}
		case code >= 500:
			outcome = failure(core.FailureServer, bodySummary(resp), code)
			if attempt >= maxRetries {
				break loop
			}
			t.logRetry(op, category, attempt, code, 0)
			if t.backoff(ctx, attempt, 0) != nil {
				break loop
			}
		default:
			// Remaining 4xx are non-transient client errors: no retry.
			outcome = failure(core.FailureClient, bodySummary(resp), code)
			break loop
		}
	}

	outcome.Attempts = attempts
	outcome.Duration = time.Since(start)
	return outcome
}

// pace consults the tracker and suspends only the current task for the
// computed delay, then re-checks once to avoid a stampede past the
// threshold. An attempt dispatched after the re-check is force-recorded
// since it will consume real quota.
func (t *Throttle) pace(ctx context.Context, category string) error {
	decision := t.Tracker.RecordAndCheck(category)
	if decision.Wait <= 0 {
		return nil
	}

	if t.Logger != nil {
		t.Logger.Debug("pacing call to stay within rate budget",
			zap.String("category", category),
			zap.Duration("wait", decision.Wait))
	}

	if err := t.doSleep(ctx, decision.Wait); err != nil {
		return err
	}

	decision = t.Tracker.RecordAndCheck(category)
	if decision.Wait > 0 {
		t.Tracker.Record(category)
	}
	return nil
}

// backoff sleeps before the next retry attempt. A positive hint from
// the server wins over the computed exponential delay.
func (t *Throttle) backoff(ctx context.Context, attempt int, hint time.Duration) error {
	delay := hint
	if delay <= 0 {
		base := t.BaseBackoff
		if base <= 0 {
			base = DefaultBaseBackoff
		}
		max := t.MaxBackoff
		if max <= 0 {
			max = DefaultMaxBackoff
		}

		delay = base << uint(attempt)
		spread := 1 + backoffJitter*(2*t.randFloat()-1)
		delay = time.Duration(float64(delay) * spread)
		if delay > max {
			delay = max
		}
	}
	return t.doSleep(ctx, delay)
}

func (t *Throttle) doSleep(ctx context.Context, d time.Duration) error {
	if t.sleep != nil {
		return t.sleep(ctx, d)
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (t *Throttle) randFloat() float64 {
	if t.jitter != nil {
		return t.jitter()
	}
	return rand.Float64() // #nosec G404 -- jitter, not security sensitive
}

func (t *Throttle) maxRetries() int {
	if t.MaxRetries < 0 {
		return 0
	}
	if t.MaxRetries == 0 {
		return DefaultMaxRetries
	}
	return t.MaxRetries
}

func (t *Throttle) logRetry(op core.Operation, category string, attempt, code int, hint time.Duration) {
	if t.Logger == nil {
		return
	}
	t.Logger.Warn("retrying overloaded call",
		zap.String("method", op.Method),
		zap.String("category", category),
		zap.Int("attempt", attempt+1),
		zap.Int("status", code),
		zap.Duration("retry_after", hint))
}

func failure(kind core.FailureKind, message string, code int) core.Outcome {
	return core.Outcome{
		Status:     core.StatusFailed,
		Kind:       kind,
		Message:    message,
		StatusCode: code,
	}
}

func bodySummary(resp *core.Response) string {
	if resp == nil {
		return "no response"
	}
	if len(resp.Body) == 0 {
		return fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	body := string(resp.Body)
	if len(body) > 256 {
		body = body[:256]
	}
	return fmt.Sprintf("HTTP %d: %s", resp.StatusCode, body)
}

// retryAfterHint extracts a server-provided wait from overload response
// headers: Retry-After in seconds or HTTP date, or the rate limit reset
// epoch used by the governance API.
func retryAfterHint(headers http.Header, now time.Time) time.Duration {
	if headers == nil {
		return 0
	}

	if retry := headers.Get("Retry-After"); retry != "" {
		if seconds, err := strconv.Atoi(retry); err == nil && seconds >= 0 {
			return time.Duration(seconds) * time.Second
		}
		if parsed, err := http.ParseTime(retry); err == nil {
			if wait := parsed.Sub(now); wait > 0 {
				return wait
			}
		}
	}

	if reset := headers.Get("X-Rate-Limit-Reset"); reset != "" {
		if epoch, err := strconv.ParseInt(reset, 10, 64); err == nil {
			if wait := time.Unix(epoch, 0).Sub(now); wait > 0 {
				return wait
			}
		}
	}

	return 0
}
