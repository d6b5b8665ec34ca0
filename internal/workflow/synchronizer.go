package workflow

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/helixir/review-console/internal/protocol"
)

// DefaultPollInterval is how often an active workflow is re-fetched.
const DefaultPollInterval = 3 * time.Second

// Orchestrator is the slice of the transport client the synchronizer
// needs. *api.Client satisfies it; tests substitute fakes.
type Orchestrator interface {
	GetWorkflow(ctx context.Context, id string) (*protocol.Workflow, error)
	Intervene(ctx context.Context, id string, req protocol.InterveneRequest) error
	ResumeWorkflow(ctx context.Context, id string, topup *float64) error
	RespondDirection(ctx context.Context, id, response string) error
	RerunStep(ctx context.Context, id, stepID string) error
	SkipStep(ctx context.Context, id, stepID string) error
}

// Synchronizer keeps one selected workflow's status current and
// mediates interventions. While the workflow is active (PENDING or
// RUNNING) it polls on a fixed interval; the ticker is torn down on
// every exit path: state change, reselection and Deselect. Every
// intervention, whether it succeeds or fails, is followed by a re-fetch
// of the authoritative status.
type Synchronizer struct {
	client   Orchestrator
	interval time.Duration
	log      *slog.Logger

	mu       sync.Mutex
	id       string
	wf       *protocol.Workflow
	stopPoll chan struct{}
	busy     bool
	onUpdate func(*protocol.Workflow)
}

// SyncOption configures a Synchronizer.
type SyncOption func(*Synchronizer)

// WithPollInterval overrides the 3s default (tests use a short one).
func WithPollInterval(d time.Duration) SyncOption {
	return func(s *Synchronizer) { s.interval = d }
}

// WithSyncLogger sets the synchronizer logger.
func WithSyncLogger(l *slog.Logger) SyncOption {
	return func(s *Synchronizer) { s.log = l }
}

// NewSynchronizer builds a synchronizer with nothing selected.
func NewSynchronizer(client Orchestrator, opts ...SyncOption) *Synchronizer {
	s := &Synchronizer{
		client:   client,
		interval: DefaultPollInterval,
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// OnUpdate registers the callback invoked with every fresh status copy.
func (s *Synchronizer) OnUpdate(fn func(*protocol.Workflow)) {
	s.mu.Lock()
	s.onUpdate = fn
	s.mu.Unlock()
}

// Workflow returns the last synchronized status, or nil.
func (s *Synchronizer) Workflow() *protocol.Workflow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wf
}

// Selected returns the selected workflow id, or "".
func (s *Synchronizer) Selected() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// AllowedActions returns the interventions legal right now.
func (s *Synchronizer) AllowedActions() []protocol.Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wf == nil {
		return nil
	}
	return AllowedActions(s.wf.State)
}

// Select fetches the workflow once and starts polling if it is active.
// Any previous selection is torn down first.
func (s *Synchronizer) Select(ctx context.Context, id string) (*protocol.Workflow, error) {
	s.Deselect()

	wf, err := s.client.GetWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.id = id
	s.wf = wf
	if wf.State.Active() {
		s.startPollLocked()
	}
	fn := s.onUpdate
	s.mu.Unlock()

	if fn != nil {
		fn(wf)
	}
	return wf, nil
}

// Deselect stops polling and drops the local copy.
func (s *Synchronizer) Deselect() {
	s.mu.Lock()
	s.stopPollLocked()
	s.id = ""
	s.wf = nil
	s.mu.Unlock()
}

// Refresh re-fetches the authoritative status for the current
// selection and restarts polling if the state re-entered the active
// set (e.g. after a resume).
func (s *Synchronizer) Refresh(ctx context.Context) error {
	s.mu.Lock()
	id := s.id
	s.mu.Unlock()
	if id == "" {
		return nil
	}

	wf, err := s.client.GetWorkflow(ctx, id)
	if err != nil {
		return err
	}
	s.store(id, wf)
	return nil
}

// Pause suspends a running workflow.
func (s *Synchronizer) Pause(ctx context.Context) error {
	return s.intervene(ctx, protocol.ActionPause, protocol.InterveneRequest{Action: protocol.ActionPause})
}

// Resume continues a paused or failed workflow. Over-budget workflows
// are rejected client-side: they need ResumeWithBudget.
func (s *Synchronizer) Resume(ctx context.Context) error {
	return s.run(ctx, protocol.ActionResume, func(ctx context.Context, id string) error {
		return s.client.ResumeWorkflow(ctx, id, nil)
	})
}

// ResumeWithBudget tops up the budget and resumes an over-budget run.
func (s *Synchronizer) ResumeWithBudget(ctx context.Context, amount float64) error {
	if amount <= 0 {
		return &ValidationError{Reason: "budget top-up must be positive"}
	}
	return s.run(ctx, protocol.ActionTopUpResume, func(ctx context.Context, id string) error {
		return s.client.ResumeWorkflow(ctx, id, &amount)
	})
}

// Cancel aborts the workflow.
func (s *Synchronizer) Cancel(ctx context.Context) error {
	return s.intervene(ctx, protocol.ActionCancel, protocol.InterveneRequest{Action: protocol.ActionCancel})
}

// Approve clears a human checkpoint and resumes execution.
func (s *Synchronizer) Approve(ctx context.Context) error {
	return s.intervene(ctx, protocol.ActionApprove, protocol.InterveneRequest{Action: protocol.ActionApprove})
}

// InjectNote attaches operator guidance to the run. The text must be
// non-empty and the category must come from the closed set.
func (s *Synchronizer) InjectNote(ctx context.Context, text string, action protocol.NoteAction) error {
	if strings.TrimSpace(text) == "" {
		return &ValidationError{Reason: "note text must not be empty"}
	}
	if !protocol.ValidNoteAction(action) {
		return &ValidationError{Reason: "unknown note category: " + string(action)}
	}
	return s.intervene(ctx, protocol.ActionInjectNote, protocol.InterveneRequest{
		Action:     protocol.ActionInjectNote,
		Note:       text,
		NoteAction: action,
	})
}

// RespondDirection answers a direction check with steering text.
func (s *Synchronizer) RespondDirection(ctx context.Context, response string) error {
	if strings.TrimSpace(response) == "" {
		return &ValidationError{Reason: "direction response must not be empty"}
	}
	return s.run(ctx, protocol.ActionDirection, func(ctx context.Context, id string) error {
		return s.client.RespondDirection(ctx, id, response)
	})
}

// RerunStep re-queues one step; only offered while the workflow is
// paused, failed or over budget.
func (s *Synchronizer) RerunStep(ctx context.Context, stepID string) error {
	if stepID == "" {
		return &ValidationError{Reason: "step id must not be empty"}
	}
	return s.run(ctx, protocol.ActionRerunStep, func(ctx context.Context, id string) error {
		return s.client.RerunStep(ctx, id, stepID)
	})
}

// SkipStep marks one step as skipped under the same gating as RerunStep.
func (s *Synchronizer) SkipStep(ctx context.Context, stepID string) error {
	if stepID == "" {
		return &ValidationError{Reason: "step id must not be empty"}
	}
	return s.run(ctx, protocol.ActionSkipStep, func(ctx context.Context, id string) error {
		return s.client.SkipStep(ctx, id, stepID)
	})
}

func (s *Synchronizer) intervene(ctx context.Context, action protocol.Action, req protocol.InterveneRequest) error {
	return s.run(ctx, action, func(ctx context.Context, id string) error {
		return s.client.Intervene(ctx, id, req)
	})
}

// run executes one intervention end to end: gate on the current state,
// reject overlap, call the orchestrator, then re-fetch regardless of
// the call's outcome. The server, not the optimistic local guess, is
// the source of truth.
func (s *Synchronizer) run(ctx context.Context, action protocol.Action, call func(ctx context.Context, id string) error) error {
	s.mu.Lock()
	if s.id == "" || s.wf == nil {
		s.mu.Unlock()
		return &ValidationError{Reason: "no workflow selected"}
	}
	if s.busy {
		s.mu.Unlock()
		return ErrBusy
	}
	if err := checkAction(s.wf.State, action); err != nil {
		s.mu.Unlock()
		return err
	}
	s.busy = true
	id := s.id
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
	}()

	callErr := call(ctx, id)
	if err := s.Refresh(ctx); err != nil && callErr == nil {
		s.log.Warn("status refresh after intervention failed", "workflow", id, "err", err)
	}
	return callErr
}

// store replaces the local copy if id is still selected and reports
// the update. Returns false when polling should stop.
func (s *Synchronizer) store(id string, wf *protocol.Workflow) bool {
	s.mu.Lock()
	if s.id != id {
		s.mu.Unlock()
		return false
	}
	s.wf = wf
	if wf.State.Active() {
		s.startPollLocked()
	} else {
		s.stopPollLocked()
	}
	fn := s.onUpdate
	s.mu.Unlock()

	if fn != nil {
		fn(wf)
	}
	return wf.State.Active()
}

// startPollLocked starts the ticker goroutine if one is not running.
// Caller holds s.mu.
func (s *Synchronizer) startPollLocked() {
	if s.stopPoll != nil {
		return
	}
	stop := make(chan struct{})
	s.stopPoll = stop
	go s.poll(s.id, stop)
}

// stopPollLocked tears the ticker down. Caller holds s.mu.
func (s *Synchronizer) stopPollLocked() {
	if s.stopPoll != nil {
		close(s.stopPoll)
		s.stopPoll = nil
	}
}

func (s *Synchronizer) poll(id string, stop chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.interval*2)
			wf, err := s.client.GetWorkflow(ctx, id)
			cancel()
			if err != nil {
				// Transient fetch failures keep the poll alive; the
				// next tick retries.
				s.log.Warn("workflow poll failed", "workflow", id, "err", err)
				continue
			}
			if !s.store(id, wf) {
				return
			}
		}
	}
}
