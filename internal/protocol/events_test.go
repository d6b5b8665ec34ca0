package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEvent(t *testing.T) {
	cases := []struct {
		name  string
		data  string
		check func(t *testing.T, ev Event)
	}{
		{EventClassification, `{"type":"simple_query"}`, func(t *testing.T, ev Event) {
			require.NotNil(t, ev.Classification)
			assert.True(t, ev.Classification.SimpleQuery())
		}},
		{EventMemory, `{"sources":[{"title":"X","year":2020}]}`, func(t *testing.T, ev Event) {
			require.NotNil(t, ev.Memory)
			require.Len(t, ev.Memory.Sources, 1)
			assert.Equal(t, 2020, ev.Memory.Sources[0].Year)
		}},
		{EventToken, `{"text":"frag "}`, func(t *testing.T, ev Event) {
			require.NotNil(t, ev.Token)
			assert.Equal(t, "frag ", ev.Token.Text)
		}},
		{EventDone, `{"answer":"done","conversation_id":"c1"}`, func(t *testing.T, ev Event) {
			require.NotNil(t, ev.Done)
			assert.Equal(t, "done", ev.Done.Answer)
			assert.Equal(t, "c1", ev.Done.ConversationID)
		}},
		{EventError, `{"detail":"boom"}`, func(t *testing.T, ev Event) {
			require.NotNil(t, ev.Error)
			assert.Equal(t, "boom", ev.Error.Detail)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := DecodeEvent(tc.name, []byte(tc.data))
			require.NoError(t, err)
			assert.Equal(t, tc.name, ev.Name)
			tc.check(t, ev)
		})
	}
}

func TestDecodeMalformedErrorEventStillReportsError(t *testing.T) {
	ev, err := DecodeEvent(EventError, []byte("not json at all"))
	require.NoError(t, err)
	require.NotNil(t, ev.Error)
	assert.Empty(t, ev.Error.Detail, "caller substitutes the generic detail")
}

func TestDecodeUnknownEventHasNoPayload(t *testing.T) {
	ev, err := DecodeEvent("heartbeat", []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "heartbeat", ev.Name)
	assert.Nil(t, ev.Token)
}

func TestDecodeMalformedPayloadFails(t *testing.T) {
	_, err := DecodeEvent(EventToken, []byte(`{`))
	assert.Error(t, err)
}

func TestStateSets(t *testing.T) {
	assert.True(t, StatePending.Active())
	assert.True(t, StateRunning.Active())
	assert.False(t, StatePaused.Active())
	assert.False(t, StateWaitingHuman.Active())

	assert.True(t, StateCompleted.Terminal())
	assert.True(t, StateCancelled.Terminal())
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StateOverBudget.Terminal())
}

func TestValidNoteAction(t *testing.T) {
	for _, a := range []NoteAction{NoteFreeText, NoteAddPaper, NoteExcludePaper, NoteModifyQuery, NoteEditText} {
		assert.True(t, ValidNoteAction(a))
	}
	assert.False(t, ValidNoteAction("WHISPER"))
}
