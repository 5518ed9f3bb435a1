package cmd

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joescharf/be/internal/entity"
	"github.com/joescharf/be/internal/models"
	"github.com/joescharf/be/internal/output"
	"github.com/joescharf/be/internal/store"
)

var commitCmd = &cobra.Command{
	Use:   "commit <message>",
	Short: "Commit staged bug directory changes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return commitRun(args[0])
	},
}

var diffCmd = &cobra.Command{
	Use:   "diff [revision]",
	Short: "Show bug changes since a revision",
	Long:  "Compare the working copy with <revision> (default HEAD) and list added, removed and modified bugs.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rev := ""
		if len(args) > 0 {
			rev = args[0]
		}
		return diffRun(rev)
	},
}

func init() {
	rootCmd.AddCommand(commitCmd)
	rootCmd.AddCommand(diffCmd)
}

// dirtyChecker is implemented by backends that can tell whether a path
// has uncommitted changes.
type dirtyChecker interface {
	IsDirty(ctx context.Context, path string) (bool, error)
}

func commitRun(message string) error {
	r, err := getRepo()
	if err != nil {
		return err
	}
	if strings.TrimSpace(message) == "" {
		return fmt.Errorf("commit message is empty")
	}

	ctx := context.Background()
	if !dryRun {
		if err := r.StageConflicts(ctx); err != nil {
			return err
		}
	}
	if dc, ok := r.VCS().(dirtyChecker); ok {
		dirty, err := dc.IsDirty(ctx, r.Root())
		if err != nil {
			return err
		}
		if !dirty {
			ui.Info("No bug directory changes to commit.")
			return nil
		}
	}

	if dryRun {
		ui.DryRunMsg("Would commit with %s: %s", r.VCS().Name(), message)
		return nil
	}

	rev, err := r.VCS().Commit(ctx, message)
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	if rev == "" {
		ui.Warning("The %s backend keeps no history; nothing was committed", r.VCS().Name())
		return nil
	}
	ui.Success("Committed %s", output.Cyan(rev))
	return nil
}

func diffRun(rev string) error {
	ctx := context.Background()
	r, d, err := loadAll(ctx)
	if err != nil {
		return err
	}

	changes, err := r.Changes(ctx, d, rev)
	if err != nil {
		return fmt.Errorf("diff: %w", err)
	}
	if len(changes) == 0 {
		ui.Info("No bug changes.")
		return nil
	}

	cat, _ := store.NewCatalog(d)
	for _, c := range changes {
		b := c.New
		if b == nil {
			b = c.Old
		}
		name, summary := c.UUID, ""
		if b != nil {
			summary = b.Summary
		}
		if c.New != nil {
			name = cat.ShortID(c.UUID)
		}
		fmt.Fprintf(ui.Out, "%s %s  %s\n", changeMark(c.Kind), output.Cyan(name), summary)
		for _, f := range c.Fields {
			fmt.Fprintf(ui.Out, "    %s: %s -> %s\n", f, fieldValue(c.Old, f), fieldValue(c.New, f))
		}
		for _, id := range slices.Sorted(maps.Keys(c.Comments)) {
			fmt.Fprintf(ui.Out, "    comment %s %s\n", id, c.Comments[id])
		}
	}
	return nil
}

// fieldValue renders one bug field for diff output.
func fieldValue(b *models.Bug, name string) string {
	f, ok := entity.BugSchema.Lookup(name)
	if !ok || b == nil {
		return ""
	}
	return strings.Join(f.Value(b), ", ")
}

func changeMark(kind string) string {
	switch kind {
	case store.ChangeAdded:
		return output.Green("+")
	case store.ChangeRemoved:
		return output.Red("-")
	default:
		return output.Yellow("~")
	}
}
