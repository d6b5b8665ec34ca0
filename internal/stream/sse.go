package stream

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/helixir/review-console/internal/protocol"
)

// StreamPath is the orchestrator's chat streaming endpoint.
const StreamPath = "/api/chat/stream"

// SSEDialer opens Server-Sent-Events channels against the orchestrator.
type SSEDialer struct {
	BaseURL string
	HTTP    *http.Client
}

// NewSSEDialer builds a dialer rooted at baseURL. The HTTP client has
// no overall timeout: the channel stays open for the whole answer and
// stall detection is left to the transport.
func NewSSEDialer(baseURL string) *SSEDialer {
	return &SSEDialer{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 0},
	}
}

// Dial opens one channel. The request carries the query, optional
// conversation/agent routing and the stream token as query parameters.
func (d *SSEDialer) Dial(ctx context.Context, req Request) (EventStream, error) {
	q := url.Values{}
	q.Set("query", req.Query)
	if req.ConversationID != "" {
		q.Set("conversation_id", req.ConversationID)
	}
	if req.TargetAgent != "" {
		q.Set("target_agent", req.TargetAgent)
	}
	if req.Token != "" {
		q.Set("token", req.Token)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, d.BaseURL+StreamPath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build stream request: %w", err)
	}
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")

	resp, err := d.HTTP.Do(httpReq)
	if err != nil {
		return nil, &Error{Detail: err.Error()}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &Error{Detail: fmt.Sprintf("stream open failed (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))}
	}

	return &sseStream{body: resp.Body, scanner: bufio.NewScanner(resp.Body)}, nil
}

// sseStream parses "event: <name>\ndata: <json>\n\n" frames off an open
// response body.
type sseStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
}

func (s *sseStream) Next() (protocol.Event, error) {
	name := ""
	var data strings.Builder

	for s.scanner.Scan() {
		line := s.scanner.Text()

		// Comment/heartbeat lines keep the connection warm.
		if strings.HasPrefix(line, ":") {
			continue
		}

		if line == "" {
			// Blank line terminates a frame; frames without data are
			// heartbeats and are skipped.
			if name == "" && data.Len() == 0 {
				continue
			}
			if name == "" {
				name = "message"
			}
			return protocol.DecodeEvent(name, []byte(data.String()))
		}

		if v, ok := strings.CutPrefix(line, "event:"); ok {
			name = strings.TrimSpace(v)
			continue
		}
		if v, ok := strings.CutPrefix(line, "data:"); ok {
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(v, " "))
		}
	}

	if err := s.scanner.Err(); err != nil {
		return protocol.Event{}, err
	}
	// A frame cut off mid-stream is indistinguishable from a clean
	// close at this layer; the session decides whether it was expected.
	return protocol.Event{}, io.EOF
}

func (s *sseStream) Close() error {
	return s.body.Close()
}

// staticToken is a TokenSource for the unauthenticated/dev case where
// no exchange endpoint exists.
type staticToken string

func (t staticToken) StreamToken(_ context.Context, _ string) string { return string(t) }

// StaticToken wraps a fixed credential as a TokenSource.
func StaticToken(tok string) TokenSource { return staticToken(tok) }
