// Package workflow keeps one workflow's status synchronized with the
// orchestrator and decides which interventions the operator may take.
package workflow

import "github.com/helixir/review-console/internal/protocol"

// Status is the projected display/control state of a single step.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusRunning   Status = "running"
	StatusWaiting   Status = "waiting"
	StatusFailed    Status = "failed"
	StatusPending   Status = "pending"
)

// StepStatus projects one step's state from the workflow status
// payload. It is pure and total: every (stepID, workflow) pair maps to
// exactly one status. The current-step rules are evaluated before the
// history rule, so a step that is both in history and current is never
// reported completed.
func StepStatus(stepID string, wf *protocol.Workflow) Status {
	if wf == nil {
		return StatusPending
	}

	if wf.CurrentStep != nil && *wf.CurrentStep == stepID {
		switch wf.State {
		case protocol.StateRunning:
			return StatusRunning
		case protocol.StateWaitingHuman, protocol.StateWaitingDirection,
			protocol.StatePaused, protocol.StateOverBudget:
			return StatusWaiting
		case protocol.StateFailed:
			return StatusFailed
		default:
			return StatusPending
		}
	}

	for _, rec := range wf.StepHistory {
		if rec.StepID == stepID {
			return StatusCompleted
		}
	}

	return StatusPending
}
