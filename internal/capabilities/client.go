// Package capabilities implements the adapters that sit between the
// pipeline orchestrator and external providers: the vision service, the
// LLM, the report renderer, blob storage, and the record database. Each
// adapter owns its provider's wire format and classifies failures as
// transient or permanent for the retry policy.
package capabilities

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Client is a JSON-over-HTTP client shared by the remote adapters.
// Failures are classified for the retry policy: network errors, timeouts,
// 429s, and 5xx responses are transient; any other non-2xx response is
// permanent.
type Client struct {
	base  string
	token string
	http  *http.Client
}

// NewClient creates a client for the service rooted at base. The
// per-request deadline comes from the caller's context, so the underlying
// http.Client carries no timeout of its own.
func NewClient(base, token string) *Client {
	return &Client{
		base:  strings.TrimRight(base, "/"),
		token: token,
		http:  &http.Client{},
	}
}

// PostJSON sends body as JSON to path and decodes the JSON response into out.
func (c *Client) PostJSON(ctx context.Context, path string, body, out any) error {
	data, err := c.post(ctx, path, body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return permanentf("decode %s response: %w", path, err)
	}
	return nil
}

// PostRaw sends body as JSON to path and returns the raw response bytes.
func (c *Client) PostRaw(ctx context.Context, path string, body any) ([]byte, error) {
	return c.post(ctx, path, body)
}

func (c *Client) post(ctx context.Context, path string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, permanentf("encode %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(payload))
	if err != nil {
		return nil, permanentf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, transientf("call %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transientf("read %s response: %w", path, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return data, nil
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, transientf("%s returned %d: %s", path, resp.StatusCode, truncate(data))
	}
	return nil, permanentf("%s returned %d: %s", path, resp.StatusCode, truncate(data))
}

func truncate(data []byte) string {
	const max = 256
	if len(data) > max {
		return string(data[:max]) + "..."
	}
	return string(data)
}

func transientf(format string, args ...any) error {
	return transient(fmt.Errorf(format, args...))
}

func permanentf(format string, args ...any) error {
	return permanent(fmt.Errorf(format, args...))
}
