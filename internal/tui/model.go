// Package tui is the operator console: a workflow list, a detail view
// with step states and gated intervention keys, and a chat panel that
// streams agent answers token by token. All decisions live in the api,
// stream, workflow and history packages; this is rendering and wiring.
package tui

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/helixir/review-console/internal/api"
	"github.com/helixir/review-console/internal/appctx"
	"github.com/helixir/review-console/internal/history"
	"github.com/helixir/review-console/internal/protocol"
	"github.com/helixir/review-console/internal/stream"
	"github.com/helixir/review-console/internal/workflow"
)

type view int

const (
	viewList view = iota
	viewDetail
	viewChat
)

// inputMode says what the textarea submission means right now.
type inputMode int

const (
	inputNone inputMode = iota
	inputChat
	inputNote
	inputDirection
	inputBudget
)

var noteCategories = []protocol.NoteAction{
	protocol.NoteFreeText,
	protocol.NoteAddPaper,
	protocol.NoteExcludePaper,
	protocol.NoteModifyQuery,
	protocol.NoteEditText,
}

// -- Messages --

type workflowsMsg struct {
	workflows []protocol.Workflow
	err       error
}

type syncUpdateMsg struct{ wf *protocol.Workflow }

type selectedMsg struct {
	wf  *protocol.Workflow
	err error
}

type streamUpdateMsg struct{ update stream.Update }

type chatDoneMsg struct {
	query string
	res   *stream.Result
	err   error
}

type actionDoneMsg struct {
	action protocol.Action
	err    error
}

type authFailedMsg struct{ status int }

// Model is the bubbletea model for the whole console.
type Model struct {
	client *api.Client
	sync   *workflow.Synchronizer
	hist   *history.Store
	app    *appctx.Context
	dialer stream.Dialer
	log    *slog.Logger

	// msgCh bridges callbacks (synchronizer updates, stream events,
	// auth failures) into the bubbletea loop.
	msgCh chan tea.Msg

	width  int
	height int

	view      view
	spinner   spinner.Model
	viewport  viewport.Model
	textarea  textarea.Model
	inputMode inputMode
	noteIdx   int

	workflows []protocol.Workflow
	cursor    int
	loading   bool

	wf         *protocol.Workflow
	stepCursor int
	actionBusy bool

	chat      *stream.AgentSession
	chatPeer  string
	entries   []protocol.Entry
	streaming strings.Builder
	chatBusy  bool

	// markdown renderer for finished agent answers, rebuilt on resize
	renderer      *glamour.TermRenderer
	rendererWidth int

	inlineErr   string
	authWarning string
}

// New wires the console model. The auth-failure signal and the
// synchronizer updates are funneled through msgCh so the single
// bubbletea loop stays the only writer of model state.
func New(client *api.Client, sync *workflow.Synchronizer, hist *history.Store, app *appctx.Context, dialer stream.Dialer, log *slog.Logger) *Model {
	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = selectedStyle

	ta := textarea.New()
	ta.SetHeight(1)
	ta.ShowLineNumbers = false
	ta.CharLimit = 2000

	vp := viewport.New(80, 20)

	m := &Model{
		client:   client,
		sync:     sync,
		hist:     hist,
		app:      app,
		dialer:   dialer,
		log:      log,
		msgCh:    make(chan tea.Msg, 64),
		spinner:  sp,
		viewport: vp,
		textarea: ta,
		view:     viewList,
		loading:  true,
	}

	client.OnAuthFailure(func(status int) {
		m.push(authFailedMsg{status: status})
	})
	sync.OnUpdate(func(wf *protocol.Workflow) {
		m.push(syncUpdateMsg{wf: wf})
	})

	return m
}

// push delivers a callback-originated message without ever blocking
// the caller; the console would rather drop a repaint than deadlock a
// network goroutine.
func (m *Model) push(msg tea.Msg) {
	select {
	case m.msgCh <- msg:
	default:
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listen(), m.loadWorkflows())
}

// listen forwards one bridged message into the update loop.
func (m *Model) listen() tea.Cmd {
	return func() tea.Msg { return <-m.msgCh }
}

// -- Commands --

func (m *Model) loadWorkflows() tea.Cmd {
	client := m.client
	return func() tea.Msg {
		ctx, cancel := reqContext()
		defer cancel()
		wfs, err := client.ListWorkflows(ctx)
		return workflowsMsg{workflows: wfs, err: err}
	}
}

func (m *Model) selectWorkflow(id string) tea.Cmd {
	sync := m.sync
	return func() tea.Msg {
		ctx, cancel := reqContext()
		defer cancel()
		wf, err := sync.Select(ctx, id)
		return selectedMsg{wf: wf, err: err}
	}
}

// runAction executes one intervention off the UI goroutine.
func (m *Model) runAction(action protocol.Action, fn func() error) tea.Cmd {
	return func() tea.Msg {
		return actionDoneMsg{action: action, err: fn()}
	}
}

func (m *Model) askAgent(query string) tea.Cmd {
	chat := m.chat
	return func() tea.Msg {
		ctx, cancel := streamContext()
		defer cancel()
		res, err := chat.Ask(ctx, query)
		return chatDoneMsg{query: query, res: res, err: err}
	}
}

func reqContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 15*time.Second)
}

func streamContext() (context.Context, context.CancelFunc) {
	// Streams live as long as the answer takes; rely on the server
	// closing the channel rather than a client-side deadline.
	return context.WithTimeout(context.Background(), 10*time.Minute)
}
