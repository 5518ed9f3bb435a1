package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joescharf/be/internal/store"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a bug directory in the current project",
	Long: `Create the bug directory (default ./.be) with stock severities and
statuses, and stage it with the project's version control.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return initRun()
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func initRun() error {
	root, err := bugdirPath()
	if err != nil {
		return err
	}
	adapter, err := openVCS(root)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would create bug directory %s (%s backend)", root, adapter.Name())
		return nil
	}

	if _, err := store.Init(context.Background(), root, adapter, repoOptions()...); err != nil {
		return fmt.Errorf("init bug directory: %w", err)
	}
	ui.Success("Created bug directory %s (%s backend)", root, adapter.Name())
	return nil
}
