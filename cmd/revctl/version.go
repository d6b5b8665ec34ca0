package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the revctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("revctl %s (%s/%s)\n", version, runtime.GOOS, runtime.GOARCH)
	},
}
