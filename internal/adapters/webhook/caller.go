// Package webhook implements the outbound webhook caller used by
// call_webhook automation actions.
package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/taskweave/taskweave/internal/core"
)

const maxResponseBytes = 1 << 20 // 1 MiB

// Caller posts JSON payloads over HTTP. Network failures map to the
// retryable network error category so automation retries can apply.
type Caller struct {
	client *http.Client
}

// CallerOption configures a Caller.
type CallerOption func(*Caller)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(client *http.Client) CallerOption {
	return func(c *Caller) {
		c.client = client
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) CallerOption {
	return func(c *Caller) {
		c.client.Timeout = d
	}
}

// NewCaller creates a webhook caller with a 30s default timeout.
func NewCaller(opts ...CallerOption) *Caller {
	c := &Caller{client: &http.Client{Timeout: 30 * time.Second}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Post implements core.WebhookCaller.
func (c *Caller) Post(ctx context.Context, url string, headers map[string]string, body []byte) (*core.WebhookResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, core.ErrValidation("WEBHOOK_BAD_REQUEST", fmt.Sprintf("building webhook request: %v", err))
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, core.ErrNetwork(fmt.Sprintf("webhook call failed: %v", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, core.ErrNetwork(fmt.Sprintf("reading webhook response: %v", err))
	}
	return &core.WebhookResponse{StatusCode: resp.StatusCode, Body: respBody}, nil
}
