package protocol

import "time"

// WorkflowState is the orchestrator-side lifecycle state of a workflow.
// The orchestrator is the only writer; the console only requests
// transitions and re-reads the authoritative copy.
type WorkflowState string

const (
	StatePending          WorkflowState = "PENDING"
	StateRunning          WorkflowState = "RUNNING"
	StatePaused           WorkflowState = "PAUSED"
	StateWaitingHuman     WorkflowState = "WAITING_HUMAN"
	StateWaitingDirection WorkflowState = "WAITING_DIRECTION"
	StateOverBudget       WorkflowState = "OVER_BUDGET"
	StateCompleted        WorkflowState = "COMPLETED"
	StateFailed           WorkflowState = "FAILED"
	StateCancelled        WorkflowState = "CANCELLED"
)

// Active reports whether the workflow is still being driven by the
// orchestrator without operator input. Only active workflows are polled.
func (s WorkflowState) Active() bool {
	return s == StatePending || s == StateRunning
}

// Terminal reports whether the workflow can never transition again.
func (s WorkflowState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Budget carries the run's spend accounting. Remaining only ever
// decreases unless topped up through a resume.
type Budget struct {
	Total     float64 `json:"total"`
	Remaining float64 `json:"remaining"`
}

// StepRecord is one entry of a workflow's step history. Records are
// immutable once appended by the orchestrator.
type StepRecord struct {
	StepID      string         `json:"step_id"`
	AgentID     string         `json:"agent_id,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Result      map[string]any `json:"result,omitempty"`
}

// Workflow is the orchestrator's status payload for one run.
type Workflow struct {
	ID          string         `json:"workflow_id"`
	Template    string         `json:"template"`
	Query       string         `json:"query"`
	State       WorkflowState  `json:"state"`
	CurrentStep *string        `json:"current_step,omitempty"`
	StepHistory []StepRecord   `json:"step_history,omitempty"`
	Budget      Budget         `json:"budget"`
	LoopCounts  map[string]int `json:"loop_counts,omitempty"`
	CreatedAt   *time.Time     `json:"created_at,omitempty"`
}

// Source is a piece of evidence attached to an agent answer.
type Source struct {
	Title string `json:"title"`
	ID    string `json:"id,omitempty"`
	Year  int    `json:"year,omitempty"`
	Kind  string `json:"kind,omitempty"`
}

// Entry is one line of an operator/agent exchange.
type Entry struct {
	Role    string    `json:"role"` // "user" or "agent"
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
	Sources []Source  `json:"sources,omitempty"`
}

const (
	RoleUser  = "user"
	RoleAgent = "agent"
)

// Action is an operator intervention tag. Legality depends on the
// workflow's current state; see the workflow package.
type Action string

const (
	ActionPause       Action = "pause"
	ActionResume      Action = "resume"
	ActionCancel      Action = "cancel"
	ActionApprove     Action = "approve"
	ActionInjectNote  Action = "inject_note"
	ActionDirection   Action = "direction_response"
	ActionTopUpResume Action = "resume_with_budget"
	ActionRerunStep   Action = "rerun"
	ActionSkipStep    Action = "skip"
)

// NoteAction categorizes an injected note.
type NoteAction string

const (
	NoteFreeText     NoteAction = "FREE_TEXT"
	NoteAddPaper     NoteAction = "ADD_PAPER"
	NoteExcludePaper NoteAction = "EXCLUDE_PAPER"
	NoteModifyQuery  NoteAction = "MODIFY_QUERY"
	NoteEditText     NoteAction = "EDIT_TEXT"
)

// ValidNoteAction reports whether a is one of the known note categories.
func ValidNoteAction(a NoteAction) bool {
	switch a {
	case NoteFreeText, NoteAddPaper, NoteExcludePaper, NoteModifyQuery, NoteEditText:
		return true
	}
	return false
}

// CreateWorkflowRequest is the launch payload.
type CreateWorkflowRequest struct {
	Template string   `json:"template" yaml:"template"`
	Query    string   `json:"query" yaml:"query"`
	Budget   *float64 `json:"budget,omitempty" yaml:"budget,omitempty"`
}

// InterveneRequest is the body of the generic intervention endpoint.
type InterveneRequest struct {
	Action     Action     `json:"action"`
	Note       string     `json:"note,omitempty"`
	NoteAction NoteAction `json:"note_action,omitempty"`
}

// ResumeRequest optionally tops up the budget while resuming.
type ResumeRequest struct {
	BudgetTopup *float64 `json:"budget_topup,omitempty"`
}

// DirectionRequest answers a direction check.
type DirectionRequest struct {
	Response string `json:"response"`
}

// StreamTokenRequest asks for a short-lived token scoped to one path.
type StreamTokenRequest struct {
	Path string `json:"path"`
}

// StreamTokenResponse carries the token and its validity window in seconds.
type StreamTokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}
