package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/helixir/review-console/internal/protocol"
)

func TestAllowedActionsTable(t *testing.T) {
	cases := []struct {
		state protocol.WorkflowState
		want  []protocol.Action
	}{
		{protocol.StateRunning, []protocol.Action{protocol.ActionPause, protocol.ActionCancel, protocol.ActionInjectNote}},
		{protocol.StatePaused, []protocol.Action{protocol.ActionResume, protocol.ActionCancel, protocol.ActionInjectNote, protocol.ActionRerunStep, protocol.ActionSkipStep}},
		{protocol.StateWaitingHuman, []protocol.Action{protocol.ActionApprove, protocol.ActionCancel, protocol.ActionInjectNote}},
		{protocol.StateWaitingDirection, []protocol.Action{protocol.ActionDirection, protocol.ActionCancel}},
		{protocol.StateOverBudget, []protocol.Action{protocol.ActionTopUpResume, protocol.ActionCancel, protocol.ActionRerunStep, protocol.ActionSkipStep}},
		{protocol.StateFailed, []protocol.Action{protocol.ActionResume, protocol.ActionCancel, protocol.ActionRerunStep, protocol.ActionSkipStep}},
		{protocol.StatePending, []protocol.Action{protocol.ActionCancel}},
		{protocol.StateCompleted, nil},
		{protocol.StateCancelled, nil},
	}
	for _, tc := range cases {
		t.Run(string(tc.state), func(t *testing.T) {
			assert.ElementsMatch(t, tc.want, AllowedActions(tc.state))
		})
	}
}

func TestCanPerform(t *testing.T) {
	assert.True(t, CanPerform(protocol.StateRunning, protocol.ActionPause))
	assert.False(t, CanPerform(protocol.StateRunning, protocol.ActionResume))
	assert.False(t, CanPerform(protocol.StateCompleted, protocol.ActionCancel))
	assert.True(t, CanPerform(protocol.StateWaitingDirection, protocol.ActionDirection))
	assert.False(t, CanPerform(protocol.StateOverBudget, protocol.ActionResume))
	assert.True(t, CanPerform(protocol.StateOverBudget, protocol.ActionTopUpResume))
}
