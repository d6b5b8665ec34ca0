package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/review-console/internal/logging"
	"github.com/helixir/review-console/internal/protocol"
)

func newTestClient(t *testing.T, handler http.Handler, cred string) (*Client, *[]time.Duration) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	var waits []time.Duration
	c := NewClient(srv.URL, CredentialFunc(func() string { return cred }), WithLogger(logging.NewNop()))
	c.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return c, &waits
}

func TestBearerHeaderAttachedWhenCredentialPresent(t *testing.T) {
	var got string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		w.Write([]byte(`{}`))
	}), "tok-123")

	require.NoError(t, c.Get(context.Background(), "/api/workflows", nil))
	assert.Equal(t, "Bearer tok-123", got)
}

func TestNoAuthHeaderInDevMode(t *testing.T) {
	var present bool
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, present = r.Header["Authorization"]
		w.Write([]byte(`{}`))
	}), "")

	require.NoError(t, c.Get(context.Background(), "/api/workflows", nil))
	assert.False(t, present, "unauthenticated mode must not attach any Authorization header")
}

func TestErrorDetailExtraction(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		detail string
	}{
		{"string detail", `{"detail":"workflow not found"}`, "workflow not found"},
		{"structured detail", `{"detail":{"code":"gone"}}`, `{"code":"gone"}`},
		{"undecodable body", `<html>nope</html>`, "404 Not Found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
				w.Write([]byte(tc.body))
			}), "")

			err := c.Get(context.Background(), "/api/workflows/x", nil)
			var apiErr *Error
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, http.StatusNotFound, apiErr.Status)
			assert.Equal(t, tc.detail, apiErr.Detail)
		})
	}
}

func TestNoContentResolvesToEmptySuccess(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}), "")

	var out protocol.Workflow
	assert.NoError(t, c.Delete(context.Background(), "/api/workflows/x", &out))
}

func TestRateLimitRetryBound(t *testing.T) {
	calls := 0
	c, waits := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"detail":"slow down"}`))
	}), "")

	err := c.Get(context.Background(), "/api/workflows", nil)

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)
	assert.Equal(t, 3, calls, "2 retries means 3 calls total")
	require.Len(t, *waits, 2)
	for _, d := range *waits {
		assert.Equal(t, 10*time.Second, d, "Retry-After hint must be clamped to 10s")
	}
}

func TestRateLimitEventuallySucceeds(t *testing.T) {
	calls := 0
	c, waits := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"workflow_id":"wf-1"}`))
	}), "")

	var out protocol.Workflow
	require.NoError(t, c.Get(context.Background(), "/api/workflows/wf-1", &out))
	assert.Equal(t, "wf-1", out.ID)
	assert.Equal(t, []time.Duration{2 * time.Second}, *waits)
}

func TestRateLimitWithoutHintUsesDefaultWait(t *testing.T) {
	c, waits := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}), "")

	_ = c.Get(context.Background(), "/api/workflows", nil)
	require.Len(t, *waits, 2)
	assert.Equal(t, time.Second, (*waits)[0])
}

func TestAuthFailureBroadcast(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"token expired"}`))
	}), "stale")

	var notified []int
	c.OnAuthFailure(func(status int) { notified = append(notified, status) })
	c.OnAuthFailure(func(status int) { notified = append(notified, status) })

	err := c.Get(context.Background(), "/api/workflows", nil)
	assert.True(t, IsAuthError(err))
	assert.Equal(t, []int{401, 401}, notified, "every listener hears about the failure once")
}

func TestStreamTokenExchange(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/stream-token", r.URL.Path)
		w.Write([]byte(`{"token":"short-lived","expires_in":60}`))
	}), "long-lived")

	assert.Equal(t, "short-lived", c.StreamToken(context.Background(), "/api/chat/stream"))
}

func TestStreamTokenFallsBackToCredential(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}), "long-lived")

	assert.Equal(t, "long-lived", c.StreamToken(context.Background(), "/api/chat/stream"))
}
