package tui

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/helixir/review-console/internal/protocol"
	"github.com/helixir/review-console/internal/stream"
	"github.com/helixir/review-console/internal/workflow"
)

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width - 4
		m.viewport.Height = msg.Height - 10
		m.textarea.SetWidth(msg.Width - 6)
		if m.view == viewChat {
			m.renderChat()
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case workflowsMsg:
		m.loading = false
		if msg.err != nil {
			m.inlineErr = msg.err.Error()
			return m, nil
		}
		m.inlineErr = ""
		m.workflows = msg.workflows
		if m.cursor >= len(m.workflows) {
			m.cursor = 0
		}
		return m, nil

	case selectedMsg:
		m.loading = false
		if msg.err != nil {
			m.inlineErr = msg.err.Error()
			return m, nil
		}
		m.inlineErr = ""
		m.wf = msg.wf
		m.stepCursor = 0
		m.view = viewDetail
		m.app.SelectWorkflow(msg.wf.ID)
		return m, nil

	case syncUpdateMsg:
		if m.wf != nil && msg.wf.ID == m.wf.ID {
			m.wf = msg.wf
		}
		return m, m.listen()

	case authFailedMsg:
		m.authWarning = "authentication failed — check your credential (revctl auth)"
		return m, m.listen()

	case streamUpdateMsg:
		if msg.update.Token != "" {
			m.streaming.WriteString(msg.update.Token)
		}
		if m.view == viewChat {
			m.renderChat()
		}
		return m, m.listen()

	case chatDoneMsg:
		m.chatBusy = false
		m.streaming.Reset()
		if msg.err != nil {
			if !errors.Is(msg.err, stream.ErrSuperseded) {
				m.inlineErr = msg.err.Error()
			}
			m.renderChat()
			return m, nil
		}
		m.inlineErr = ""
		agentEntry := protocol.Entry{
			Role:    protocol.RoleAgent,
			Text:    msg.res.Answer,
			At:      time.Now().UTC(),
			Sources: msg.res.Sources,
		}
		m.entries = append(m.entries, agentEntry)
		// Persist only now: the channel is confirmed closed.
		if err := m.hist.Append(m.chatPeer, stream.Exchange(msg.query, msg.res, time.Now().UTC())...); err != nil {
			m.log.Warn("persist transcript failed", "peer", m.chatPeer, "err", err)
		}
		m.renderChat()
		return m, nil

	case actionDoneMsg:
		m.actionBusy = false
		if msg.err != nil {
			m.inlineErr = msg.err.Error()
			return m, nil
		}
		m.inlineErr = ""
		// The note field is only cleared after a successful call.
		if msg.action == protocol.ActionInjectNote || msg.action == protocol.ActionDirection ||
			msg.action == protocol.ActionTopUpResume {
			m.textarea.Reset()
			m.leaveInput()
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		m.teardown()
		return m, tea.Quit
	}

	if m.inputMode != inputNone {
		return m.handleInputKey(msg)
	}

	switch m.view {
	case viewList:
		return m.handleListKey(msg)
	case viewDetail:
		return m.handleDetailKey(msg)
	case viewChat:
		// Chat without focused input only happens transiently.
		return m, nil
	}
	return m, nil
}

func (m *Model) handleListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		m.teardown()
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.workflows)-1 {
			m.cursor++
		}
	case "r":
		m.loading = true
		return m, m.loadWorkflows()
	case "enter":
		if len(m.workflows) == 0 {
			return m, nil
		}
		m.loading = true
		return m, m.selectWorkflow(m.workflows[m.cursor].ID)
	}
	return m, nil
}

func (m *Model) handleDetailKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	steps := displaySteps(m.wf)

	switch msg.String() {
	case "q", "esc":
		m.sync.Deselect()
		m.app.SelectWorkflow("")
		m.wf = nil
		m.view = viewList
		m.inlineErr = ""
		m.loading = true
		return m, m.loadWorkflows()

	case "up", "k":
		if m.stepCursor > 0 {
			m.stepCursor--
		}
	case "down", "j":
		if m.stepCursor < len(steps)-1 {
			m.stepCursor++
		}

	case "p":
		return m.dispatch(protocol.ActionPause, func() error {
			ctx, cancel := reqContext()
			defer cancel()
			return m.sync.Pause(ctx)
		})
	case "r":
		return m.dispatch(protocol.ActionResume, func() error {
			ctx, cancel := reqContext()
			defer cancel()
			return m.sync.Resume(ctx)
		})
	case "c":
		return m.dispatch(protocol.ActionCancel, func() error {
			ctx, cancel := reqContext()
			defer cancel()
			return m.sync.Cancel(ctx)
		})
	case "a":
		return m.dispatch(protocol.ActionApprove, func() error {
			ctx, cancel := reqContext()
			defer cancel()
			return m.sync.Approve(ctx)
		})
	case "R":
		if len(steps) == 0 {
			return m, nil
		}
		stepID := steps[m.stepCursor].StepID
		return m.dispatch(protocol.ActionRerunStep, func() error {
			ctx, cancel := reqContext()
			defer cancel()
			return m.sync.RerunStep(ctx, stepID)
		})
	case "s":
		if len(steps) == 0 {
			return m, nil
		}
		stepID := steps[m.stepCursor].StepID
		return m.dispatch(protocol.ActionSkipStep, func() error {
			ctx, cancel := reqContext()
			defer cancel()
			return m.sync.SkipStep(ctx, stepID)
		})

	case "n":
		m.enterInput(inputNote, "note for the run…")
	case "d":
		m.enterInput(inputDirection, "steering direction…")
	case "b":
		m.enterInput(inputBudget, "budget top-up amount…")

	case "t", "enter":
		peer := "assistant"
		if len(steps) > 0 && steps[m.stepCursor].AgentID != "" {
			peer = steps[m.stepCursor].AgentID
		}
		m.openChat(peer)
	}
	return m, nil
}

func (m *Model) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		if m.inputMode == inputChat {
			m.closeChat()
			return m, nil
		}
		m.textarea.Reset()
		m.leaveInput()
		return m, nil

	case tea.KeyTab:
		if m.inputMode == inputNote {
			m.noteIdx = (m.noteIdx + 1) % len(noteCategories)
			return m, nil
		}

	case tea.KeyCtrlL:
		if m.inputMode == inputChat {
			if err := m.hist.Clear(m.chatPeer); err != nil {
				m.inlineErr = err.Error()
				return m, nil
			}
			m.entries = nil
			m.renderChat()
			return m, nil
		}

	case tea.KeyEnter:
		return m.submitInput()
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	return m, cmd
}

func (m *Model) submitInput() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.textarea.Value())

	switch m.inputMode {
	case inputChat:
		if text == "" || m.chatBusy {
			return m, nil
		}
		m.chatBusy = true
		m.inlineErr = ""
		m.streaming.Reset()
		m.entries = append(m.entries, protocol.Entry{
			Role: protocol.RoleUser,
			Text: text,
			At:   time.Now().UTC(),
		})
		m.textarea.Reset()
		m.renderChat()
		return m, m.askAgent(text)

	case inputNote:
		category := noteCategories[m.noteIdx]
		return m.dispatch(protocol.ActionInjectNote, func() error {
			ctx, cancel := reqContext()
			defer cancel()
			return m.sync.InjectNote(ctx, text, category)
		})

	case inputDirection:
		return m.dispatch(protocol.ActionDirection, func() error {
			ctx, cancel := reqContext()
			defer cancel()
			return m.sync.RespondDirection(ctx, text)
		})

	case inputBudget:
		amount, err := strconv.ParseFloat(text, 64)
		if err != nil {
			m.inlineErr = "budget top-up must be a number"
			return m, nil
		}
		return m.dispatch(protocol.ActionTopUpResume, func() error {
			ctx, cancel := reqContext()
			defer cancel()
			return m.sync.ResumeWithBudget(ctx, amount)
		})
	}
	return m, nil
}

// dispatch gates an intervention on the synchronized state before it
// leaves the UI, then runs it off the update loop. Controls stay
// disabled (actionBusy) until the authoritative re-fetch lands.
func (m *Model) dispatch(action protocol.Action, fn func() error) (tea.Model, tea.Cmd) {
	if m.actionBusy || m.wf == nil {
		return m, nil
	}
	if !workflow.CanPerform(m.wf.State, action) {
		m.inlineErr = string(action) + " is not available in state " + string(m.wf.State)
		return m, nil
	}
	m.actionBusy = true
	m.inlineErr = ""
	return m, m.runAction(action, fn)
}

func (m *Model) enterInput(mode inputMode, placeholder string) {
	m.inputMode = mode
	m.textarea.Placeholder = placeholder
	m.textarea.Reset()
	m.textarea.Focus()
}

func (m *Model) leaveInput() {
	m.inputMode = inputNone
	m.textarea.Blur()
}

func (m *Model) openChat(peer string) {
	m.app.SelectPeer(peer)
	// Switching peers swaps transcripts; nothing is merged.
	m.chatPeer = peer
	m.entries = m.hist.Load(peer)
	m.chat = stream.NewAgentSession(m.dialer, m.client, peer)
	m.chat.Notify(func(u stream.Update) {
		m.push(streamUpdateMsg{update: u})
	})
	m.view = viewChat
	m.inlineErr = ""
	m.enterInput(inputChat, "ask "+peer+"…")
	m.renderChat()
}

func (m *Model) closeChat() {
	if m.chat != nil {
		m.chat.Reset()
		m.chat = nil
	}
	m.app.SelectPeer("")
	m.chatPeer = ""
	m.entries = nil
	m.streaming.Reset()
	m.chatBusy = false
	m.leaveInput()
	m.view = viewDetail
	m.inlineErr = ""
}

func (m *Model) teardown() {
	if m.chat != nil {
		m.chat.Reset()
	}
	m.sync.Deselect()
}

// displaySteps is the ordered step list for the detail view: the
// history in execution order plus the current step if it is not in the
// history yet.
func displaySteps(wf *protocol.Workflow) []protocol.StepRecord {
	if wf == nil {
		return nil
	}
	steps := make([]protocol.StepRecord, 0, len(wf.StepHistory)+1)
	steps = append(steps, wf.StepHistory...)
	if wf.CurrentStep != nil {
		seen := false
		for _, s := range steps {
			if s.StepID == *wf.CurrentStep {
				seen = true
				break
			}
		}
		if !seen {
			steps = append(steps, protocol.StepRecord{StepID: *wf.CurrentStep})
		}
	}
	return steps
}
