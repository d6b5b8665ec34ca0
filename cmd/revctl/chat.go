package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/helixir/review-console/internal/config"
	"github.com/helixir/review-console/internal/history"
	"github.com/helixir/review-console/internal/stream"
)

var chatAgentFlag string

var chatCmd = &cobra.Command{
	Use:   "chat <question...>",
	Short: "Ask an agent one question, streamed to the terminal",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")

		a, err := newApp()
		if err != nil {
			return err
		}

		hist, err := history.Open(config.HistoryPath(), a.log)
		if err != nil {
			return fmt.Errorf("open history store: %w", err)
		}
		defer hist.Close()

		dialer := stream.NewSSEDialer(a.client.BaseURL())
		peer := chatAgentFlag
		session := stream.NewAgentSession(dialer, a.client, peer)
		session.Notify(func(u stream.Update) {
			if u.Token != "" {
				fmt.Print(u.Token)
			}
		})

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		res, err := session.Ask(ctx, query)
		if err != nil {
			fmt.Println()
			return err
		}
		fmt.Println()

		// Tokens were echoed raw as they arrived; on a terminal,
		// re-render the full answer as markdown once it is complete.
		if isatty.IsTerminal(os.Stdout.Fd()) {
			renderer, rerr := glamour.NewTermRenderer(
				glamour.WithAutoStyle(),
				glamour.WithWordWrap(100),
			)
			if rerr == nil {
				if out, rerr := renderer.Render(res.Answer); rerr == nil {
					fmt.Println(strings.Repeat("─", 50))
					fmt.Print(out)
				}
			}
		}

		if len(res.Sources) > 0 {
			fmt.Println("sources:")
			for _, s := range res.Sources {
				if s.Year > 0 {
					fmt.Printf("  • %s (%d)\n", s.Title, s.Year)
				} else {
					fmt.Printf("  • %s\n", s.Title)
				}
			}
		}

		if err := hist.Append(peer, stream.Exchange(query, res, time.Now().UTC())...); err != nil {
			a.log.Warn("persist transcript failed", "peer", peer, "err", err)
		}
		return nil
	},
}

func init() {
	chatCmd.Flags().StringVarP(&chatAgentFlag, "agent", "a", "assistant", "agent to address")
}
