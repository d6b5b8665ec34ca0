// Package stream implements the console side of the orchestrator's
// server-push channel: one SSE connection per interaction, a small
// typed event vocabulary, and an explicit per-session state machine
// that accumulates token fragments into a final answer.
package stream

import (
	"context"
	"errors"

	"github.com/helixir/review-console/internal/protocol"
)

// Phase is the session state machine. Done and Error are terminal for
// one invocation; a new Execute always starts over from Classifying.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseClassifying
	PhaseRetrieving
	PhaseStreaming
	PhaseDone
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseClassifying:
		return "classifying"
	case PhaseRetrieving:
		return "retrieving"
	case PhaseStreaming:
		return "streaming"
	case PhaseDone:
		return "done"
	case PhaseError:
		return "error"
	}
	return "unknown"
}

func (p Phase) terminal() bool { return p == PhaseDone || p == PhaseError }

// Error is a failed stream: either a server-pushed error event or an
// unexpected disconnect normalized into one.
type Error struct {
	Detail string
}

func (e *Error) Error() string { return "stream error: " + e.Detail }

// lostConnectionDetail is substituted when the channel dies without a
// terminal event or the server's error payload is not decodable.
const lostConnectionDetail = "connection lost"

// ErrEmptyQuery is returned before any network activity when the query
// is blank.
var ErrEmptyQuery = errors.New("query must not be empty")

// ErrSuperseded is returned to a caller whose channel was closed by a
// newer Execute or a Reset before it finished.
var ErrSuperseded = errors.New("session superseded")

// Request carries everything needed to open one channel.
type Request struct {
	Query          string
	ConversationID string
	TargetAgent    string
	Token          string
}

// EventStream is one open server-push channel. Next returns io.EOF
// when the server closes the connection.
type EventStream interface {
	Next() (protocol.Event, error)
	Close() error
}

// Dialer opens event streams. The production implementation speaks SSE
// over HTTP; tests substitute scripted streams.
type Dialer interface {
	Dial(ctx context.Context, req Request) (EventStream, error)
}

// TokenSource resolves a stream credential for a path. *api.Client
// satisfies this.
type TokenSource interface {
	StreamToken(ctx context.Context, path string) string
}

// Update is pushed to the session observer on every meaningful event.
type Update struct {
	Phase   Phase
	Token   string            // answer fragment, set for token events
	Sources []protocol.Source // set when evidence arrives
	Err     error             // set when the session fails
}
