package protocol

import (
	"encoding/json"
	"fmt"
)

// Stream event names as they appear on the SSE channel. Ordering within
// one channel is significant: classification, then memory, then tokens,
// terminated by exactly one done or error.
const (
	EventClassification = "classification"
	EventMemory         = "memory"
	EventToken          = "token"
	EventDone           = "done"
	EventError          = "error"
)

// Event is one decoded stream event. Exactly one payload field is set,
// matching the tag in Name.
type Event struct {
	Name           string
	Classification *ClassificationEvent
	Memory         *MemoryEvent
	Token          *TokenEvent
	Done           *DoneEvent
	Error          *ErrorEvent
}

// ClassificationEvent is the router's verdict on the query.
type ClassificationEvent struct {
	Type  string `json:"type"` // e.g. "simple_query"
	Agent string `json:"agent,omitempty"`
}

// SimpleQuery reports whether the classifier routed this as a direct
// retrieval question rather than a multi-agent task.
func (c ClassificationEvent) SimpleQuery() bool {
	return c.Type == "simple_query"
}

// MemoryEvent carries evidence recalled before generation starts.
type MemoryEvent struct {
	Sources []Source `json:"sources,omitempty"`
}

// TokenEvent is one answer fragment.
type TokenEvent struct {
	Text string `json:"text"`
}

// DoneEvent closes the channel with the full answer and any late sources.
type DoneEvent struct {
	Answer         string         `json:"answer,omitempty"`
	Sources        []Source       `json:"sources,omitempty"`
	ConversationID string         `json:"conversation_id,omitempty"`
	Meta           map[string]any `json:"meta,omitempty"`
}

// ErrorEvent is a server-pushed failure.
type ErrorEvent struct {
	Detail string `json:"detail,omitempty"`
}

// DecodeEvent parses one wire event into its typed payload. Unknown
// names are returned as-is with no payload so callers can skip them.
func DecodeEvent(name string, data []byte) (Event, error) {
	ev := Event{Name: name}
	var err error
	switch name {
	case EventClassification:
		ev.Classification = &ClassificationEvent{}
		err = json.Unmarshal(data, ev.Classification)
	case EventMemory:
		ev.Memory = &MemoryEvent{}
		err = json.Unmarshal(data, ev.Memory)
	case EventToken:
		ev.Token = &TokenEvent{}
		err = json.Unmarshal(data, ev.Token)
	case EventDone:
		ev.Done = &DoneEvent{}
		err = json.Unmarshal(data, ev.Done)
	case EventError:
		// A malformed error payload still means the stream failed;
		// the caller substitutes a generic detail.
		ev.Error = &ErrorEvent{}
		if json.Unmarshal(data, ev.Error) != nil {
			ev.Error.Detail = ""
		}
		return ev, nil
	default:
		return ev, nil
	}
	if err != nil {
		return Event{}, fmt.Errorf("decode %s event: %w", name, err)
	}
	return ev, nil
}
