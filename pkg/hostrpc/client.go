// Copyright 2026 the analyzer authors
//
// SPDX-License-Identifier: Apache-2.0

// Package hostrpc reports analysis completion back to the host (spec.md
// §4.9), replacing the original xmlrpclib call with a JSON POST to the
// same well-known local endpoint, dialed the way this codebase's other
// HTTP sidecar clients are built: a *http.Client with a bounded timeout
// and a small retry budget for transient failures.
package hostrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultBaseURL = "http://127.0.0.1:8000"

// CompleteRequest is the JSON body posted when the analysis finishes.
type CompleteRequest struct {
	Success     bool   `json:"success"`
	Error       string `json:"error,omitempty"`
	ResultsPath string `json:"results_path"`
}

// Client posts the completion report exactly once, from the supervisor's
// outermost completion path (spec.md §4.7, §7).
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the default host endpoint. Used in tests to point
// at an httptest.Server.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithHTTPClient overrides the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMaxRetries overrides the retry budget for transient failures.
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

// NewClient builds a Client pointed at the host's local completion
// endpoint by default.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		maxRetries: 3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete reports the analysis outcome. errString is the failure message
// when success is false, or empty. resultsPath is the analysis root on
// disk, matching the third positional argument the original xmlrpclib
// `complete` call passed.
func (c *Client) Complete(ctx context.Context, success bool, errString, resultsPath string) error {
	body, err := json.Marshal(CompleteRequest{
		Success:     success,
		Error:       errString,
		ResultsPath: resultsPath,
	})
	if err != nil {
		return fmt.Errorf("marshal completion report: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 200 * time.Millisecond):
			}
		}
		if lastErr = c.post(ctx, body); lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("report completion to host after %d attempts: %w", c.maxRetries+1, lastErr)
}

func (c *Client) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/complete", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("host returned status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
