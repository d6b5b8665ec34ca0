package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/helixir/review-console/internal/api"
	"github.com/helixir/review-console/internal/config"
	"github.com/helixir/review-console/internal/logging"
)

var serverFlag string

var rootCmd = &cobra.Command{
	Use:           "revctl",
	Short:         "Operator console for the literature review orchestrator",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverFlag, "server", "s", "", "orchestrator base URL (overrides config and REVCTL_SERVER_URL)")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(workflowsCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(versionCmd)
}

// app is the shared bootstrap for every subcommand: settings store,
// logger and the orchestrator client.
type app struct {
	cfg    *config.Store
	client *api.Client
	log    *slog.Logger
}

func newApp() (*app, error) {
	log := logging.New()

	cfg, err := config.NewStore(config.Dir())
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	base := cfg.ServerURL()
	if serverFlag != "" {
		base = serverFlag
	}

	client := api.NewClient(base, cfg, api.WithLogger(log))
	return &app{cfg: cfg, client: client, log: log}, nil
}
