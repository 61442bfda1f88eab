package gov

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/govbatch/govbatch/internal/core"
)

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient("", "token")
	require.Error(t, err)

	_, err = NewClient("https://gov.example.com", "")
	require.Error(t, err)

	client, err := NewClient("https://gov.example.com/", "secret")
	require.NoError(t, err)
	require.Equal(t, "https://gov.example.com", client.BaseURL)
}

func TestExecutePassesThroughStatusHeadersBody(t *testing.T) {
	var gotAuth, gotPath, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)

		w.Header().Set("X-Rate-Limit-Remaining", "42")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"errorSummary":"too many requests"}`))
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "secret")
	require.NoError(t, err)

	payload, _ := json.Marshal(map[string]string{"id": "00u1"})
	resp, err := client.Execute(context.Background(), core.Operation{
		Method: http.MethodPost,
		Path:   "/api/v1/apps/0oa1/users",
	}, payload)
	require.NoError(t, err)

	require.Equal(t, "SSWS secret", gotAuth)
	require.Equal(t, "/api/v1/apps/0oa1/users", gotPath)
	require.JSONEq(t, `{"id":"00u1"}`, gotBody)

	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.Equal(t, "42", resp.Headers.Get("X-Rate-Limit-Remaining"))
	require.JSONEq(t, `{"errorSummary":"too many requests"}`, string(resp.Body))
}

func TestExecuteSurfacesTransportErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused from here on

	client, err := NewClient(server.URL, "secret")
	require.NoError(t, err)

	_, err = client.Execute(context.Background(), core.Operation{Method: http.MethodGet, Path: "/api/v1/users"}, nil)
	require.Error(t, err)
}
