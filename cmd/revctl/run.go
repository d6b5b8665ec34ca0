package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/helixir/review-console/internal/appctx"
	"github.com/helixir/review-console/internal/config"
	"github.com/helixir/review-console/internal/history"
	"github.com/helixir/review-console/internal/stream"
	"github.com/helixir/review-console/internal/tui"
	"github.com/helixir/review-console/internal/workflow"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Open the interactive console",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !isatty.IsTerminal(os.Stdout.Fd()) {
			return fmt.Errorf("run needs a terminal; use the workflows/chat subcommands for scripting")
		}
		lipgloss.SetColorProfile(termenv.ColorProfile())

		a, err := newApp()
		if err != nil {
			return err
		}

		hist, err := history.Open(config.HistoryPath(), a.log)
		if err != nil {
			return fmt.Errorf("open history store: %w", err)
		}
		defer hist.Close()

		sync := workflow.NewSynchronizer(a.client, workflow.WithSyncLogger(a.log))
		dialer := stream.NewSSEDialer(a.client.BaseURL())

		model := tui.New(a.client, sync, hist, appctx.New(), dialer, a.log)
		p := tea.NewProgram(model, tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("console: %w", err)
		}
		return nil
	},
}
