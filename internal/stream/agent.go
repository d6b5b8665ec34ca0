package stream

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/helixir/review-console/internal/protocol"
)

// AgentSession is a Session pinned to one agent for its whole lifetime.
// Routing classification is ignored and every Ask resolves only after
// the channel has closed, so callers can persist the exchange safely.
type AgentSession struct {
	session        *Session
	agentID        string
	conversationID string
}

// NewAgentSession builds a session targeting agentID. A fresh
// conversation id threads the exchanges server-side.
func NewAgentSession(dial Dialer, tokens TokenSource, agentID string) *AgentSession {
	return &AgentSession{
		session:        NewSession(dial, tokens),
		agentID:        agentID,
		conversationID: uuid.NewString(),
	}
}

// AgentID returns the fixed peer this session talks to.
func (a *AgentSession) AgentID() string { return a.agentID }

// ConversationID returns the id threading this session's exchanges.
func (a *AgentSession) ConversationID() string { return a.conversationID }

// Notify forwards to the underlying session observer hook.
func (a *AgentSession) Notify(fn func(Update)) { a.session.Notify(fn) }

// Phase exposes the underlying session phase.
func (a *AgentSession) Phase() Phase { return a.session.Phase() }

// Answer exposes the text accumulated so far.
func (a *AgentSession) Answer() string { return a.session.Answer() }

// Ask streams one question to the agent and returns the final
// transcript. A second Ask while one is in flight closes the first
// channel, which then fails with ErrSuperseded.
func (a *AgentSession) Ask(ctx context.Context, query string) (*Result, error) {
	return a.session.Execute(ctx, query, Options{
		ConversationID: a.conversationID,
		TargetAgent:    a.agentID,
	})
}

// Reset drops any open channel and clears accumulated state.
func (a *AgentSession) Reset() { a.session.Reset() }

// Exchange converts a completed Ask into transcript entries for the
// history store: the operator's question followed by the agent answer.
func Exchange(query string, res *Result, at time.Time) []protocol.Entry {
	return []protocol.Entry{
		{Role: protocol.RoleUser, Text: query, At: at},
		{Role: protocol.RoleAgent, Text: res.Answer, At: at, Sources: res.Sources},
	}
}
