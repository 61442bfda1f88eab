package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/govbatch/govbatch/internal/config"
	"github.com/govbatch/govbatch/internal/core"
	"github.com/govbatch/govbatch/internal/core/engine"
	"github.com/govbatch/govbatch/internal/server/handlers"
)

func newTestServer(t *testing.T, executor engine.Executor) *Server {
	t.Helper()

	tracker := engine.NewDefaultTracker()
	throttle := &engine.Throttle{Tracker: tracker, Executor: executor}
	runner := &engine.Runner{Throttle: throttle}

	return New(config.ServerConfig{Host: "127.0.0.1", Port: 0}, Deps{
		Runner:  runner,
		Tracker: tracker,
		Defaults: config.BatchConfig{
			Concurrency:    4,
			PerTaskTimeout: 5 * time.Second,
		},
	})
}

func okExecutor() engine.Executor {
	return engine.ExecutorFunc(func(ctx context.Context, op core.Operation, payload []byte) (*core.Response, error) {
		return &core.Response{StatusCode: http.StatusOK, Body: json.RawMessage(`{"ok":true}`)}, nil
	})
}

func TestExecuteBatchEndpoint(t *testing.T) {
	srv := newTestServer(t, okExecutor())

	body := `{"tasks":[
		{"id":"t1","op":{"method":"GET","path":"/api/v1/users"}},
		{"id":"t2","op":{"method":"GET","path":"/api/v1/apps"}}
	]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/batches", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp handlers.BatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.RunID)
	require.Len(t, resp.Result.Outcomes, 2)
	require.Equal(t, "t1", resp.Result.Outcomes[0].TaskID)
	require.Equal(t, 2, resp.Result.Summary.SuccessCount)
}

func TestExecuteBatchRejectsBadRequests(t *testing.T) {
	srv := newTestServer(t, okExecutor())

	// Malformed JSON.
	req := httptest.NewRequest(http.MethodPost, "/v1/batches", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// Empty task list fails validation before any task starts.
	req = httptest.NewRequest(http.MethodPost, "/v1/batches", strings.NewReader(`{"tasks":[]}`))
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var envelope struct {
		Error struct {
			Code      string `json:"code"`
			RequestID string `json:"request_id"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.Equal(t, "INVALID_INPUT", envelope.Error.Code)
	require.NotEmpty(t, envelope.Error.RequestID)
}

func TestRateLimitSnapshotEndpoint(t *testing.T) {
	srv := newTestServer(t, okExecutor())

	// Execute a small batch so the users window has recorded calls.
	body := `{"tasks":[{"id":"t1","op":{"method":"GET","path":"/api/v1/users"}}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/batches", strings.NewReader(body))
	srv.Handler().ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodGet, "/v1/rate-limits", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Categories []engine.CategoryUsage `json:"categories"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	byCategory := map[string]engine.CategoryUsage{}
	for _, usage := range resp.Categories {
		byCategory[usage.Category] = usage
	}
	require.Equal(t, 1, byCategory["/api/v1/users"].InWindow)
}

func TestNotFoundEnvelope(t *testing.T) {
	srv := newTestServer(t, okExecutor())

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "NOT_FOUND")
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestHealthAndVersionEndpoints(t *testing.T) {
	srv := newTestServer(t, okExecutor())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "healthy")

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/version", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var version handlers.VersionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &version))
	require.Equal(t, "govbatch", version.App.Name)
}
