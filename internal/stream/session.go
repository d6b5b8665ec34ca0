package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/helixir/review-console/internal/protocol"
)

// Session drives one interaction at a time against the streaming
// endpoint. It holds at most one open channel: a new Execute or a
// Reset always closes the previous channel first, so two answers can
// never interleave into one transcript.
type Session struct {
	dial   Dialer
	tokens TokenSource

	mu         sync.Mutex
	phase      Phase
	answer     strings.Builder
	sources    []protocol.Source
	lastErr    error
	current    EventStream
	generation uint64
	notify     func(Update)
}

// Options tune one Execute call.
type Options struct {
	// ConversationID threads multi-turn context on the server side.
	ConversationID string
	// TargetAgent pins the session to one agent. When set, the
	// classification event is informational only and does not gate
	// the phase transitions.
	TargetAgent string
}

// Result is the final transcript of one completed interaction.
type Result struct {
	Answer         string
	Sources        []protocol.Source
	ConversationID string
	Meta           map[string]any
}

// NewSession builds a session. tokens may be nil when streaming
// unauthenticated.
func NewSession(dial Dialer, tokens TokenSource) *Session {
	return &Session{dial: dial, tokens: tokens}
}

// Notify registers the observer called on phase changes, token
// fragments and evidence arrival. Intended for a single UI consumer.
func (s *Session) Notify(fn func(Update)) {
	s.mu.Lock()
	s.notify = fn
	s.mu.Unlock()
}

// Phase returns the current state machine phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Answer returns the text accumulated so far.
func (s *Session) Answer() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answer.String()
}

// Sources returns the evidence recorded so far.
func (s *Session) Sources() []protocol.Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]protocol.Source, len(s.sources))
	copy(out, s.sources)
	return out
}

// Err returns the error that terminated the last invocation, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Execute opens a channel for query and consumes it to completion.
// Any previously open channel is closed first. The returned Result is
// only produced after the channel has closed.
func (s *Session) Execute(ctx context.Context, query string, opts Options) (*Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	s.mu.Lock()
	s.closeCurrentLocked()
	s.generation++
	gen := s.generation
	s.phase = PhaseClassifying
	s.answer.Reset()
	s.sources = nil
	s.lastErr = nil
	s.mu.Unlock()
	s.emit(Update{Phase: PhaseClassifying})

	token := ""
	if s.tokens != nil {
		token = s.tokens.StreamToken(ctx, StreamPath)
	}

	es, err := s.dial.Dial(ctx, Request{
		Query:          query,
		ConversationID: opts.ConversationID,
		TargetAgent:    opts.TargetAgent,
		Token:          token,
	})
	if err != nil {
		return nil, s.fail(gen, normalize(err))
	}

	s.mu.Lock()
	if gen != s.generation {
		// A newer Execute or a Reset won the race while dialing.
		s.mu.Unlock()
		es.Close()
		return nil, ErrSuperseded
	}
	s.current = es
	s.mu.Unlock()

	return s.consume(gen, es, opts)
}

// Reset closes any open channel and returns the session to its initial
// idle state. Safe to call at any time.
func (s *Session) Reset() {
	s.mu.Lock()
	s.closeCurrentLocked()
	s.generation++
	s.phase = PhaseIdle
	s.answer.Reset()
	s.sources = nil
	s.lastErr = nil
	s.mu.Unlock()
	s.emit(Update{Phase: PhaseIdle})
}

func (s *Session) consume(gen uint64, es EventStream, opts Options) (*Result, error) {
	for {
		ev, err := es.Next()
		if err != nil {
			if errors.Is(err, io.EOF) && s.stale(gen) {
				return nil, ErrSuperseded
			}
			// The channel died without a terminal event.
			return nil, s.fail(gen, &Error{Detail: lostConnectionDetail})
		}
		if s.stale(gen) {
			es.Close()
			return nil, ErrSuperseded
		}

		switch ev.Name {
		case protocol.EventClassification:
			// A fixed-target session ignores routing; otherwise a
			// simple query moves straight to retrieval.
			if opts.TargetAgent == "" && ev.Classification != nil && ev.Classification.SimpleQuery() {
				s.transition(gen, PhaseRetrieving)
			}

		case protocol.EventMemory:
			var srcs []protocol.Source
			s.mu.Lock()
			if gen == s.generation {
				if ev.Memory != nil {
					s.sources = mergeSources(s.sources, ev.Memory.Sources)
				}
				s.phase = PhaseStreaming
				srcs = append([]protocol.Source(nil), s.sources...)
			}
			s.mu.Unlock()
			s.emit(Update{Phase: PhaseStreaming, Sources: srcs})

		case protocol.EventToken:
			if ev.Token == nil {
				continue
			}
			s.mu.Lock()
			if gen == s.generation {
				s.phase = PhaseStreaming
				s.answer.WriteString(ev.Token.Text)
			}
			s.mu.Unlock()
			s.emit(Update{Phase: PhaseStreaming, Token: ev.Token.Text})

		case protocol.EventDone:
			return s.finish(gen, es, ev.Done, opts)

		case protocol.EventError:
			detail := lostConnectionDetail
			if ev.Error != nil && ev.Error.Detail != "" {
				detail = ev.Error.Detail
			}
			es.Close()
			return nil, s.fail(gen, &Error{Detail: detail})
		}
	}
}

func (s *Session) finish(gen uint64, es EventStream, done *protocol.DoneEvent, opts Options) (*Result, error) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		es.Close()
		return nil, ErrSuperseded
	}
	if done != nil {
		if done.Answer != "" && s.answer.Len() == 0 {
			s.answer.WriteString(done.Answer)
		}
		// Completion sources win over earlier memory sources.
		s.sources = mergeSources(s.sources, done.Sources)
	}
	s.phase = PhaseDone
	if s.current == es {
		s.current = nil
	}
	res := &Result{
		Answer:         s.answer.String(),
		Sources:        append([]protocol.Source(nil), s.sources...),
		ConversationID: opts.ConversationID,
	}
	if done != nil {
		res.Meta = done.Meta
		if done.ConversationID != "" {
			res.ConversationID = done.ConversationID
		}
	}
	s.mu.Unlock()

	es.Close()
	s.emit(Update{Phase: PhaseDone})
	return res, nil
}

// fail records err and moves to the error phase unless the invocation
// was superseded in the meantime.
func (s *Session) fail(gen uint64, err error) error {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return ErrSuperseded
	}
	if !s.phase.terminal() {
		s.phase = PhaseError
		s.lastErr = err
	}
	s.closeCurrentLocked()
	s.mu.Unlock()
	s.emit(Update{Phase: PhaseError, Err: err})
	return err
}

func (s *Session) transition(gen uint64, p Phase) {
	s.mu.Lock()
	changed := false
	if gen == s.generation && s.phase != p && !s.phase.terminal() {
		s.phase = p
		changed = true
	}
	s.mu.Unlock()
	if changed {
		s.emit(Update{Phase: p})
	}
}

func (s *Session) stale(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen != s.generation
}

func (s *Session) closeCurrentLocked() {
	if s.current != nil {
		// Fire-and-forget: no cancellation signal goes to the server.
		s.current.Close()
		s.current = nil
	}
}

func (s *Session) emit(u Update) {
	s.mu.Lock()
	fn := s.notify
	s.mu.Unlock()
	if fn != nil {
		fn(u)
	}
}

// normalize wraps transport-level dial failures into the stream error
// taxonomy.
func normalize(err error) error {
	var streamErr *Error
	if errors.As(err, &streamErr) {
		return err
	}
	return &Error{Detail: err.Error()}
}

// mergeSources upserts incoming over base, keyed by ID (falling back
// to title), preserving first-seen order.
func mergeSources(base, incoming []protocol.Source) []protocol.Source {
	if len(incoming) == 0 {
		return base
	}
	key := func(s protocol.Source) string {
		if s.ID != "" {
			return "id:" + s.ID
		}
		return "title:" + s.Title
	}
	out := make([]protocol.Source, len(base))
	copy(out, base)
	index := make(map[string]int, len(out))
	for i, s := range out {
		index[key(s)] = i
	}
	for _, s := range incoming {
		if i, ok := index[key(s)]; ok {
			out[i] = s
			continue
		}
		index[key(s)] = len(out)
		out = append(out, s)
	}
	return out
}
