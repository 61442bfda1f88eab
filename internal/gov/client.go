// Package gov implements the governance API collaborator: the HTTP
// executor the batch engine dispatches through, plus task builders and
// report shaping for the batch operations the CLI exposes.
package gov

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/govbatch/govbatch/internal/core"
)

// Client executes operations against the governance API. It implements
// engine.Executor: status code, headers, and body pass through
// untouched; only transport-level failures surface as errors.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewClient validates the connection settings and builds a client.
func NewClient(baseURL, token string) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("api base url is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("api token is required")
	}

	return &Client{
		BaseURL:    baseURL,
		Token:      token,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Execute performs one HTTP round trip for the given operation.
func (c *Client) Execute(ctx context.Context, op core.Operation, payload []byte) (*core.Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	var body io.Reader
	if len(payload) > 0 {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, op.Method, c.BaseURL+op.Path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "SSWS "+c.Token)
	req.Header.Set("Accept", "application/json")
	if len(payload) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}

	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	return &core.Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       data,
	}, nil
}
