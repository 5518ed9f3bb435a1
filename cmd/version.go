package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joescharf/be/internal/store"
)

// Set from main.go via Execute.
var (
	buildVersion = "dev"
	buildCommit  = "none"
	buildDate    = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return versionRun()
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func versionRun() error {
	fmt.Fprintf(ui.Out, "be %s (commit %s, built %s)\n", buildVersion, buildCommit, buildDate)
	fmt.Fprintf(ui.Out, "  storage format: %s\n", store.FormatVersion)
	return nil
}
