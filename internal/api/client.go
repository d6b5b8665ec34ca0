// Package api is the console's HTTP client for the orchestrator. It
// attaches the operator credential, retries rate-limited calls with a
// capped backoff and surfaces every failure as a typed *Error.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/helixir/review-console/internal/protocol"
)

const (
	// maxRetries bounds the 429 retry loop: up to 2 retries, 3 calls total.
	maxRetries = 2
	// maxRetryWait clamps a server-supplied Retry-After hint.
	maxRetryWait = 10 * time.Second
	// defaultRetryWait is used when the hint is absent or unparsable.
	defaultRetryWait = 1 * time.Second
)

// CredentialSource yields the long-lived bearer credential, or "" when
// the console runs unauthenticated.
type CredentialSource interface {
	Credential() string
}

// CredentialFunc adapts a plain function to CredentialSource.
type CredentialFunc func() string

func (f CredentialFunc) Credential() string { return f() }

// Client issues request/response calls against the orchestrator.
type Client struct {
	baseURL string
	http    *http.Client
	creds   CredentialSource
	log     *slog.Logger

	// sleep is swapped out in tests so the 429 backoff doesn't tick
	// in real time.
	sleep func(ctx context.Context, d time.Duration) error

	mu            sync.Mutex
	authListeners []func(status int)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// NewClient builds a client rooted at baseURL. creds may be nil for
// unauthenticated/dev use.
func NewClient(baseURL string, creds CredentialSource, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		creds:   creds,
		log:     slog.Default(),
		sleep:   sleepCtx,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BaseURL returns the configured orchestrator root.
func (c *Client) BaseURL() string { return c.baseURL }

// Credential returns the current long-lived credential, or "".
func (c *Client) Credential() string {
	if c.creds == nil {
		return ""
	}
	return c.creds.Credential()
}

// OnAuthFailure registers a listener notified once per call that fails
// with 401 or 403, so a single authentication problem can be surfaced
// globally instead of per call site.
func (c *Client) OnAuthFailure(fn func(status int)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authListeners = append(c.authListeners, fn)
}

func (c *Client) notifyAuthFailure(status int) {
	c.mu.Lock()
	listeners := make([]func(int), len(c.authListeners))
	copy(listeners, c.authListeners)
	c.mu.Unlock()
	for _, fn := range listeners {
		fn(status)
	}
}

// Get issues a GET and decodes the response into out (which may be nil).
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// Post issues a POST with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

// Put issues a PUT with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPut, path, body, out)
}

// Patch issues a PATCH with a JSON body.
func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPatch, path, body, out)
}

// Delete issues a DELETE.
func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodDelete, path, nil, out)
}

// StreamToken exchanges the long-lived credential for a short-lived
// token scoped to path. When the exchange endpoint is unavailable the
// long-lived credential is reused directly; callers get a usable token
// either way. This weakens the short-lived-token guarantee and exists
// for compatibility with older orchestrators.
func (c *Client) StreamToken(ctx context.Context, path string) string {
	cred := c.Credential()
	var resp protocol.StreamTokenResponse
	err := c.Post(ctx, "/api/auth/stream-token", protocol.StreamTokenRequest{Path: path}, &resp)
	if err != nil || resp.Token == "" {
		if err != nil {
			c.log.Debug("stream token exchange unavailable, using credential directly", "err", err)
		}
		return cred
	}
	return resp.Token
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	for attempt := 0; ; attempt++ {
		resp, err := c.send(ctx, method, path, payload)
		if err != nil {
			return err
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt < maxRetries {
			wait := retryWait(resp.Header.Get("Retry-After"))
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			c.log.Debug("rate limited, retrying", "path", path, "wait", wait, "attempt", attempt+1)
			if err := c.sleep(ctx, wait); err != nil {
				return err
			}
			continue
		}

		return c.finish(resp, out)
	}
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte) (*http.Response, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.Credential(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

func (c *Client) finish(resp *http.Response, out any) error {
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		c.notifyAuthFailure(resp.StatusCode)
	}

	if resp.StatusCode >= 400 {
		return &Error{Status: resp.StatusCode, Detail: extractDetail(data, resp.Status)}
	}

	if resp.StatusCode == http.StatusNoContent || out == nil || len(data) == 0 {
		return nil
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// extractDetail pulls a human-readable message out of an error body,
// falling back to the HTTP status line.
func extractDetail(data []byte, statusLine string) string {
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(data, &body); err == nil && len(body.Detail) > 0 {
		var s string
		if json.Unmarshal(body.Detail, &s) == nil && s != "" {
			return s
		}
		return string(body.Detail)
	}
	return statusLine
}

func retryWait(header string) time.Duration {
	wait := defaultRetryWait
	if header != "" {
		if secs, err := strconv.Atoi(strings.TrimSpace(header)); err == nil && secs > 0 {
			wait = time.Duration(secs) * time.Second
		}
	}
	if wait > maxRetryWait {
		wait = maxRetryWait
	}
	return wait
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
