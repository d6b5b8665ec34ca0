package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/helixir/review-console/internal/protocol"
	"github.com/helixir/review-console/internal/workflow"
)

func (m *Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("revctl") + dimStyle.Render("  literature review console") + "\n")
	if m.authWarning != "" {
		b.WriteString(warnStyle.Render("⚠ "+m.authWarning) + "\n")
	}
	b.WriteString("\n")

	switch m.view {
	case viewList:
		b.WriteString(m.viewListBody())
	case viewDetail:
		b.WriteString(m.viewDetailBody())
	case viewChat:
		b.WriteString(m.viewChatBody())
	}

	if m.inlineErr != "" {
		b.WriteString("\n" + errorStyle.Render("✗ "+m.inlineErr) + "\n")
	}
	return b.String()
}

func (m *Model) viewListBody() string {
	var b strings.Builder

	if m.loading {
		return m.spinner.View() + " loading workflows…\n"
	}
	if len(m.workflows) == 0 {
		b.WriteString(dimStyle.Render("no workflows — launch one with `revctl workflows create`") + "\n")
		b.WriteString("\n" + dimStyle.Render("r refresh · q quit") + "\n")
		return b.String()
	}

	for i, wf := range m.workflows {
		cursor := "  "
		line := fmt.Sprintf("%-12s %-18s %s  %s",
			shortID(wf.ID), wf.Template, stateBadge(wf.State), truncate(wf.Query, 48))
		if i == m.cursor {
			cursor = selectedStyle.Render("❯ ")
			line = selectedStyle.Render(fmt.Sprintf("%-12s %-18s ", shortID(wf.ID), wf.Template)) +
				stateBadge(wf.State) + "  " + truncate(wf.Query, 48)
		}
		b.WriteString(cursor + line + "\n")
	}

	b.WriteString("\n" + dimStyle.Render("↑/↓ move · enter open · r refresh · q quit") + "\n")
	return b.String()
}

func (m *Model) viewDetailBody() string {
	if m.wf == nil {
		return m.spinner.View() + " loading…\n"
	}
	wf := m.wf
	var b strings.Builder

	head := fmt.Sprintf("%s  %s\n%s\nbudget %.2f / %.2f remaining",
		titleStyle.Render(shortID(wf.ID)), stateBadge(wf.State),
		truncate(wf.Query, 72),
		wf.Budget.Remaining, wf.Budget.Total)
	if len(wf.LoopCounts) > 0 {
		loops := make([]string, 0, len(wf.LoopCounts))
		for step, n := range wf.LoopCounts {
			loops = append(loops, fmt.Sprintf("%s×%d", step, n))
		}
		head += "\nloops " + strings.Join(loops, " ")
	}
	b.WriteString(headerStyle.Render(head) + "\n\n")

	steps := displaySteps(wf)
	if len(steps) == 0 {
		b.WriteString(dimStyle.Render("no steps yet") + "\n")
	}
	for i, step := range steps {
		status := workflow.StepStatus(step.StepID, wf)
		glyph := stepGlyphs[string(status)]
		style := stepStyles[string(status)]
		cursor := "  "
		if i == m.stepCursor {
			cursor = selectedStyle.Render("❯ ")
		}
		line := style.Render(glyph + " " + step.StepID)
		if step.AgentID != "" {
			line += dimStyle.Render("  " + step.AgentID)
		}
		b.WriteString(cursor + line + "\n")
	}

	b.WriteString("\n" + m.actionHints() + "\n")

	if m.inputMode == inputNote || m.inputMode == inputDirection || m.inputMode == inputBudget {
		b.WriteString("\n" + m.inputBox())
	}
	return b.String()
}

func (m *Model) viewChatBody() string {
	var b strings.Builder

	b.WriteString(headerStyle.Render(titleStyle.Render(m.chatPeer)+dimStyle.Render("  "+shortIDPtr(m.wf))) + "\n")
	b.WriteString(m.viewport.View() + "\n")
	if m.chatBusy {
		b.WriteString(m.spinner.View() + dimStyle.Render(" "+phaseLabel(m)) + "\n")
	}
	b.WriteString(inputBoxStyle.Render(m.textarea.View()) + "\n")
	b.WriteString(dimStyle.Render("enter send · ctrl+l clear transcript · esc back") + "\n")
	return b.String()
}

// renderChat rebuilds the viewport content from the persisted entries
// plus whatever is streaming right now, and pins the view to the tail.
func (m *Model) renderChat() {
	var b strings.Builder
	for _, e := range m.entries {
		switch e.Role {
		case protocol.RoleUser:
			b.WriteString(userStyle.Render("you  ") + e.Text + "\n")
		default:
			b.WriteString(agentStyle.Render(m.chatPeer) + "\n" + m.renderMarkdown(e.Text))
			for _, src := range e.Sources {
				b.WriteString(dimStyle.Render("     • "+sourceLine(src)) + "\n")
			}
		}
		b.WriteString("\n")
	}
	if m.streaming.Len() > 0 {
		b.WriteString(agentStyle.Render(m.chatPeer+"  ") + m.streaming.String() + "\n")
	}
	m.viewport.SetContent(lipgloss.NewStyle().Width(m.viewport.Width).Render(b.String()))
	m.viewport.GotoBottom()
}

// actionHints lists only the interventions legal in the current state,
// so the footer doubles as the legality table.
func (m *Model) actionHints() string {
	if m.actionBusy {
		return m.spinner.View() + dimStyle.Render(" applying…")
	}
	labels := map[protocol.Action]string{
		protocol.ActionPause:       "p pause",
		protocol.ActionResume:      "r resume",
		protocol.ActionCancel:      "c cancel",
		protocol.ActionApprove:     "a approve",
		protocol.ActionInjectNote:  "n note",
		protocol.ActionDirection:   "d direction",
		protocol.ActionTopUpResume: "b top-up",
		protocol.ActionRerunStep:   "R rerun step",
		protocol.ActionSkipStep:    "s skip step",
	}
	hints := make([]string, 0, 10)
	for _, a := range workflow.AllowedActions(m.wf.State) {
		if label, ok := labels[a]; ok {
			hints = append(hints, label)
		}
	}
	hints = append(hints, "t chat", "esc back")
	return dimStyle.Render(strings.Join(hints, " · "))
}

func (m *Model) inputBox() string {
	header := ""
	switch m.inputMode {
	case inputNote:
		cats := make([]string, len(noteCategories))
		for i, c := range noteCategories {
			cats[i] = string(c)
			if i == m.noteIdx {
				cats[i] = selectedStyle.Render("[" + string(c) + "]")
			}
		}
		header = dimStyle.Render("tab category: ") + strings.Join(cats, " ") + "\n"
	case inputDirection:
		header = dimStyle.Render("direction response") + "\n"
	case inputBudget:
		header = dimStyle.Render("budget top-up") + "\n"
	}
	return header + inputBoxStyle.Render(m.textarea.View()) + "\n" +
		dimStyle.Render("enter submit · esc cancel")
}

// renderMarkdown pretty-prints a finished agent answer. The in-flight
// streaming buffer stays raw; only completed entries go through glamour.
func (m *Model) renderMarkdown(text string) string {
	width := m.viewport.Width
	if width <= 0 {
		width = 80
	}
	if m.renderer == nil || m.rendererWidth != width {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return text + "\n"
		}
		m.renderer = r
		m.rendererWidth = width
	}
	out, err := m.renderer.Render(text)
	if err != nil {
		return text + "\n"
	}
	return out
}

func stateBadge(s protocol.WorkflowState) string {
	if style, ok := stateStyles[string(s)]; ok {
		return style.Render(string(s))
	}
	return string(s)
}

func phaseLabel(m *Model) string {
	if m.chat == nil {
		return "working"
	}
	switch m.chat.Phase().String() {
	case "classifying":
		return "classifying"
	case "retrieving":
		return "retrieving sources"
	case "streaming":
		return "answering"
	}
	return "working"
}

func sourceLine(s protocol.Source) string {
	line := s.Title
	if s.Year > 0 {
		line = fmt.Sprintf("%s (%d)", line, s.Year)
	}
	return line
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func shortIDPtr(wf *protocol.Workflow) string {
	if wf == nil {
		return ""
	}
	return shortID(wf.ID)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
