package tui

import "github.com/charmbracelet/lipgloss"

// Colors
var (
	accent    = lipgloss.Color("#DA702C")
	mutedGray = lipgloss.Color("245")
	cyan      = lipgloss.Color("86")
	red       = lipgloss.Color("196")
	green     = lipgloss.Color("#2E8B57")
	yellow    = lipgloss.Color("#F1C40F")
)

// Step glyphs, one per projected status.
var stepGlyphs = map[string]string{
	"completed": "✓",
	"running":   "▸",
	"waiting":   "◆",
	"failed":    "✗",
	"pending":   "○",
}

var (
	titleStyle = lipgloss.NewStyle().Foreground(accent).Bold(true)

	headerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(0, 1)

	selectedStyle = lipgloss.NewStyle().Foreground(accent).Bold(true)
	dimStyle      = lipgloss.NewStyle().Foreground(mutedGray)
	errorStyle    = lipgloss.NewStyle().Foreground(red)
	warnStyle     = lipgloss.NewStyle().Foreground(yellow).Bold(true)

	userStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF"))
	agentStyle = lipgloss.NewStyle().Foreground(accent)

	stepStyles = map[string]lipgloss.Style{
		"completed": lipgloss.NewStyle().Foreground(green),
		"running":   lipgloss.NewStyle().Foreground(accent),
		"waiting":   lipgloss.NewStyle().Foreground(yellow),
		"failed":    lipgloss.NewStyle().Foreground(red),
		"pending":   lipgloss.NewStyle().Foreground(mutedGray),
	}

	stateStyles = map[string]lipgloss.Style{
		"RUNNING":           lipgloss.NewStyle().Foreground(accent).Bold(true),
		"PENDING":           lipgloss.NewStyle().Foreground(mutedGray),
		"PAUSED":            lipgloss.NewStyle().Foreground(yellow),
		"WAITING_HUMAN":     lipgloss.NewStyle().Foreground(yellow).Bold(true),
		"WAITING_DIRECTION": lipgloss.NewStyle().Foreground(cyan).Bold(true),
		"OVER_BUDGET":       lipgloss.NewStyle().Foreground(red).Bold(true),
		"COMPLETED":         lipgloss.NewStyle().Foreground(green),
		"FAILED":            lipgloss.NewStyle().Foreground(red),
		"CANCELLED":         lipgloss.NewStyle().Foreground(mutedGray),
	}

	inputBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(0, 1)
)
