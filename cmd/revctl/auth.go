package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/helixir/review-console/internal/config"
)

var authCmd = &cobra.Command{
	Use:   "auth <token>",
	Short: "Store the API token in the settings file",
	Long: "Stores the long-lived API token in ~/.revctl/settings.json.\n" +
		"The REVCTL_API_TOKEN environment variable, when set, always wins.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.NewStore(config.Dir())
		if err != nil {
			return fmt.Errorf("load settings: %w", err)
		}
		if err := cfg.Update(func(s *config.Settings) {
			s.APIToken = args[0]
		}); err != nil {
			return fmt.Errorf("save settings: %w", err)
		}
		fmt.Println("token saved")
		return nil
	},
}
