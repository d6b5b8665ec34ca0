package workflow

import (
	"errors"
	"fmt"

	"github.com/helixir/review-console/internal/protocol"
)

// ValidationError is a client-side precondition failure. It is raised
// before any network call; the server never sees the request.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// ErrBusy is returned when an intervention is requested while another
// one is still in flight. Interventions are never pipelined.
var ErrBusy = errors.New("an intervention is already in flight")

// actionTable is the client-side gating of interventions by workflow
// state. The server re-validates; the console just must not offer an
// illegal action.
var actionTable = map[protocol.WorkflowState][]protocol.Action{
	protocol.StateRunning: {protocol.ActionPause, protocol.ActionCancel, protocol.ActionInjectNote},
	protocol.StatePaused: {protocol.ActionResume, protocol.ActionCancel, protocol.ActionInjectNote,
		protocol.ActionRerunStep, protocol.ActionSkipStep},
	protocol.StateWaitingHuman:     {protocol.ActionApprove, protocol.ActionCancel, protocol.ActionInjectNote},
	protocol.StateWaitingDirection: {protocol.ActionDirection, protocol.ActionCancel},
	protocol.StateOverBudget: {protocol.ActionTopUpResume, protocol.ActionCancel,
		protocol.ActionRerunStep, protocol.ActionSkipStep},
	protocol.StateFailed: {protocol.ActionResume, protocol.ActionCancel,
		protocol.ActionRerunStep, protocol.ActionSkipStep},
	protocol.StatePending: {protocol.ActionCancel},
}

// AllowedActions returns the interventions legal in the given state.
// Completed and cancelled workflows allow none.
func AllowedActions(state protocol.WorkflowState) []protocol.Action {
	actions := actionTable[state]
	out := make([]protocol.Action, len(actions))
	copy(out, actions)
	return out
}

// CanPerform reports whether action is legal in state.
func CanPerform(state protocol.WorkflowState, action protocol.Action) bool {
	for _, a := range actionTable[state] {
		if a == action {
			return true
		}
	}
	return false
}

// checkAction validates an intervention against the current state.
func checkAction(state protocol.WorkflowState, action protocol.Action) error {
	if CanPerform(state, action) {
		return nil
	}
	if state == protocol.StateOverBudget && action == protocol.ActionResume {
		return &ValidationError{Reason: "workflow is over budget; resume requires a budget top-up"}
	}
	return &ValidationError{Reason: fmt.Sprintf("action %q is not available while the workflow is %s", action, state)}
}
