package workflow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/review-console/internal/logging"
	"github.com/helixir/review-console/internal/protocol"
)

// fakeOrchestrator scripts status fetches and records intervention calls.
type fakeOrchestrator struct {
	mu       sync.Mutex
	statuses []*protocol.Workflow // consumed one per fetch; last one repeats
	fetches  int
	calls    []string
	topups   []*float64
	block    chan struct{} // when set, interventions park here
}

func (f *fakeOrchestrator) GetWorkflow(_ context.Context, id string) (*protocol.Workflow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	wf := f.statuses[0]
	if len(f.statuses) > 1 {
		f.statuses = f.statuses[1:]
	}
	cp := *wf
	return &cp, nil
}

func (f *fakeOrchestrator) record(name string) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
}

func (f *fakeOrchestrator) Intervene(_ context.Context, _ string, req protocol.InterveneRequest) error {
	f.record(string(req.Action))
	return nil
}

func (f *fakeOrchestrator) ResumeWorkflow(_ context.Context, _ string, topup *float64) error {
	f.mu.Lock()
	f.topups = append(f.topups, topup)
	f.mu.Unlock()
	f.record("resume")
	return nil
}

func (f *fakeOrchestrator) RespondDirection(_ context.Context, _, _ string) error {
	f.record("direction")
	return nil
}

func (f *fakeOrchestrator) RerunStep(_ context.Context, _, stepID string) error {
	f.record("rerun:" + stepID)
	return nil
}

func (f *fakeOrchestrator) SkipStep(_ context.Context, _, stepID string) error {
	f.record("skip:" + stepID)
	return nil
}

func (f *fakeOrchestrator) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func (f *fakeOrchestrator) callNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func status(state protocol.WorkflowState) *protocol.Workflow {
	return &protocol.Workflow{ID: "wf-1", State: state}
}

func newTestSync(f *fakeOrchestrator) *Synchronizer {
	return NewSynchronizer(f,
		WithPollInterval(10*time.Millisecond),
		WithSyncLogger(logging.NewNop()))
}

func TestSelectStartsPollingWhileActive(t *testing.T) {
	f := &fakeOrchestrator{statuses: []*protocol.Workflow{
		status(protocol.StateRunning),
		status(protocol.StateRunning),
		status(protocol.StateRunning),
	}}
	s := newTestSync(f)
	defer s.Deselect()

	_, err := s.Select(context.Background(), "wf-1")
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return f.fetchCount() >= 3 },
		time.Second, 5*time.Millisecond, "an active workflow keeps being re-fetched")
}

func TestPollingStopsOnTerminalState(t *testing.T) {
	f := &fakeOrchestrator{statuses: []*protocol.Workflow{
		status(protocol.StateRunning),
		status(protocol.StateRunning),
		status(protocol.StateCompleted),
	}}
	s := newTestSync(f)
	defer s.Deselect()

	var states []protocol.WorkflowState
	var mu sync.Mutex
	s.OnUpdate(func(wf *protocol.Workflow) {
		mu.Lock()
		states = append(states, wf.State)
		mu.Unlock()
	})

	_, err := s.Select(context.Background(), "wf-1")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(states) > 0 && states[len(states)-1] == protocol.StateCompleted
	}, time.Second, 5*time.Millisecond)

	settled := f.fetchCount()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, settled, f.fetchCount(), "no fetch may happen after leaving the active set")
}

func TestNonActiveSelectionNeverPolls(t *testing.T) {
	f := &fakeOrchestrator{statuses: []*protocol.Workflow{status(protocol.StatePaused)}}
	s := newTestSync(f)

	_, err := s.Select(context.Background(), "wf-1")
	require.NoError(t, err)

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, f.fetchCount())
}

func TestDeselectStopsPolling(t *testing.T) {
	f := &fakeOrchestrator{statuses: []*protocol.Workflow{status(protocol.StateRunning)}}
	s := newTestSync(f)

	_, err := s.Select(context.Background(), "wf-1")
	require.NoError(t, err)
	s.Deselect()

	settled := f.fetchCount()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, settled, f.fetchCount())
	assert.Nil(t, s.Workflow())
}

func TestInterventionAlwaysRefetches(t *testing.T) {
	f := &fakeOrchestrator{statuses: []*protocol.Workflow{
		status(protocol.StateRunning),
		status(protocol.StatePaused),
	}}
	// A long interval keeps the poller from consuming the scripted
	// statuses before the intervention does.
	s := NewSynchronizer(f, WithPollInterval(time.Hour), WithSyncLogger(logging.NewNop()))
	defer s.Deselect()

	_, err := s.Select(context.Background(), "wf-1")
	require.NoError(t, err)
	before := f.fetchCount()

	require.NoError(t, s.Pause(context.Background()))

	assert.Equal(t, []string{"pause"}, f.callNames())
	assert.Greater(t, f.fetchCount(), before, "the server copy, not the local guess, is the source of truth")
	assert.Equal(t, protocol.StatePaused, s.Workflow().State)
}

func TestResumeOverBudgetRejectedClientSide(t *testing.T) {
	f := &fakeOrchestrator{statuses: []*protocol.Workflow{status(protocol.StateOverBudget)}}
	s := newTestSync(f)

	_, err := s.Select(context.Background(), "wf-1")
	require.NoError(t, err)

	err = s.Resume(context.Background())

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Reason, "top-up")
	assert.Empty(t, f.callNames(), "illegal actions never reach the network")
}

func TestResumeWithBudgetDispatches(t *testing.T) {
	f := &fakeOrchestrator{statuses: []*protocol.Workflow{status(protocol.StateOverBudget)}}
	s := newTestSync(f)

	_, err := s.Select(context.Background(), "wf-1")
	require.NoError(t, err)

	require.NoError(t, s.ResumeWithBudget(context.Background(), 1.0))

	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.topups, 1)
	require.NotNil(t, f.topups[0])
	assert.Equal(t, 1.0, *f.topups[0])
}

func TestInjectNoteValidation(t *testing.T) {
	f := &fakeOrchestrator{statuses: []*protocol.Workflow{status(protocol.StateRunning)}}
	s := newTestSync(f)
	defer s.Deselect()

	_, err := s.Select(context.Background(), "wf-1")
	require.NoError(t, err)

	var vErr *ValidationError
	require.ErrorAs(t, s.InjectNote(context.Background(), "  ", protocol.NoteFreeText), &vErr)
	require.ErrorAs(t, s.InjectNote(context.Background(), "drop PMID 123", "SHOUT"), &vErr)
	assert.Empty(t, f.callNames())

	require.NoError(t, s.InjectNote(context.Background(), "drop PMID 123", protocol.NoteExcludePaper))
	assert.Equal(t, []string{"inject_note"}, f.callNames())
}

func TestStepInterventionsGatedByWorkflowState(t *testing.T) {
	f := &fakeOrchestrator{statuses: []*protocol.Workflow{status(protocol.StateRunning)}}
	s := newTestSync(f)
	defer s.Deselect()

	_, err := s.Select(context.Background(), "wf-1")
	require.NoError(t, err)

	var vErr *ValidationError
	require.ErrorAs(t, s.RerunStep(context.Background(), "SEARCH"), &vErr,
		"rerun is only offered in paused/failed/over-budget states")
	assert.Empty(t, f.callNames())
}

func TestConcurrentInterventionsRejected(t *testing.T) {
	block := make(chan struct{})
	f := &fakeOrchestrator{
		statuses: []*protocol.Workflow{status(protocol.StatePaused)},
		block:    block,
	}
	s := newTestSync(f)

	_, err := s.Select(context.Background(), "wf-1")
	require.NoError(t, err)

	first := make(chan error, 1)
	go func() { first <- s.Resume(context.Background()) }()

	require.Eventually(t, func() bool { return len(f.callNames()) == 1 },
		time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, s.Cancel(context.Background()), ErrBusy)

	close(block)
	require.NoError(t, <-first)
}

func TestNoSelectionRejectsInterventions(t *testing.T) {
	s := newTestSync(&fakeOrchestrator{statuses: []*protocol.Workflow{status(protocol.StateRunning)}})

	var vErr *ValidationError
	assert.ErrorAs(t, s.Pause(context.Background()), &vErr)
}
