package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joescharf/be/internal/merge"
	"github.com/joescharf/be/internal/output"
	"github.com/joescharf/be/internal/store"
)

var (
	reconcileBase string
	resolveTake   string
)

var mergeCmd = &cobra.Command{
	Use:   "merge <into-bug> <from-bug>",
	Short: "Merge a duplicate bug into another",
	Long: `Copy the comment thread of <from-bug> into <into-bug> under a
"Merged from" comment and close <from-bug> with a "Merged into" comment.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return mergeRun(args[0], args[1])
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile <local> <remote>",
	Short: "Merge bug changes from another revision into the working copy",
	Long: `Merge every bug directory file changed between the base revision and
<remote> into the working copy, field by field. Use "" for <local> to read
the local side from the working copy. Without --base the nearest common
ancestor of <local> (or HEAD) and <remote> is used. Conflicting fields keep
the local value and are recorded; list them with 'be conflicts'.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reconcileRun(args[0], args[1])
	},
}

var mergeDriverCmd = &cobra.Command{
	Use:   "merge-driver <base> <local> <remote> <path>",
	Short: "Git merge driver for bug directory files",
	Long: `Merge one bug directory file for git. Configure it with

  git config merge.be.driver "be merge-driver %O %A %B %P"
  echo ".be/** merge=be" >> .gitattributes

The merged content is written to <local>. The exit status is non-zero
when conflicts were recorded. Git holds its index while the driver runs,
so conflict records are left unstaged; 'be conflicts' and 'be commit'
stage them.`,
	Args: cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		return mergeDriverRun(args[0], args[1], args[2], args[3])
	},
}

var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "List unresolved merge conflicts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return conflictsRun()
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <conflict-id>",
	Short: "Resolve a recorded conflict by taking one side",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return resolveRun(args[0])
	},
}

func init() {
	reconcileCmd.Flags().StringVar(&reconcileBase, "base", "", "Base revision (default: merge base)")
	resolveCmd.Flags().StringVar(&resolveTake, "take", "", "Side to keep: local or remote (required)")
	_ = resolveCmd.MarkFlagRequired("take")

	rootCmd.AddCommand(mergeCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(mergeDriverCmd)
	rootCmd.AddCommand(conflictsCmd)
	rootCmd.AddCommand(resolveCmd)
}

func mergeRun(intoRef, fromRef string) error {
	ctx := context.Background()
	r, d, err := loadAll(ctx)
	if err != nil {
		return err
	}
	into, cat, err := findBug(d, intoRef)
	if err != nil {
		return err
	}
	from, _, err := findBug(d, fromRef)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would merge %s into %s (%d comments)", bugName(cat, from), bugName(cat, into), len(from.Comments))
		return nil
	}

	copies, err := r.MergeBugs(ctx, d, into, from)
	if err != nil {
		return saved(fmt.Errorf("merge bugs: %w", err))
	}
	ui.Success("Merged %s into %s (%d comments copied)", bugName(cat, from), bugName(cat, into), len(copies))
	return nil
}

func reconcileRun(local, remote string) error {
	ctx := context.Background()
	r, err := getRepo()
	if err != nil {
		return err
	}
	d, err := r.LoadBugdir(ctx)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would reconcile %s into the working copy", remote)
		return nil
	}

	res, err := r.Reconcile(ctx, d, reconcileBase, local, remote)
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}
	ui.VerboseLog("Merge base: %s", res.Base)
	for _, p := range res.Merged {
		ui.VerboseLog("Merged %s", p)
	}
	for _, p := range res.Removed {
		ui.VerboseLog("Removed %s", p)
	}
	for _, e := range res.Errors {
		ui.Warning("%v", e)
	}
	if len(res.Conflicts) > 0 {
		printConflicts(res.Conflicts)
		return fmt.Errorf("%d unresolved conflict(s) recorded; see 'be conflicts'", len(res.Conflicts))
	}
	if len(res.Errors) > 0 {
		return fmt.Errorf("%d file(s) could not be merged and were left as is", len(res.Errors))
	}
	ui.Success("Reconciled %d file(s), removed %d", len(res.Merged), len(res.Removed))
	return nil
}

// readDriverFile reads one merge driver input. An empty file means the
// path did not exist on that side.
func readDriverFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	return data, nil
}

func mergeDriverRun(basePath, localPath, remotePath, target string) error {
	ctx := context.Background()
	r, err := getRepo()
	if err != nil {
		return err
	}
	d, err := r.LoadBugdir(ctx)
	if err != nil {
		return err
	}

	sides := make([][]byte, 3)
	for i, p := range []string{basePath, localPath, remotePath} {
		if sides[i], err = readDriverFile(p); err != nil {
			return fmt.Errorf("read merge input: %w", err)
		}
	}

	abs := target
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(r.VCS().Root(), target)
	}
	rel, err := filepath.Rel(r.Root(), abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("%s is outside the bug directory %s", target, r.Root())
	}

	out, mergeErr := r.MergeDriver(ctx, d, rel, sides[0], sides[1], sides[2])
	var ce *merge.ConflictError
	if mergeErr != nil && !errors.As(mergeErr, &ce) {
		return fmt.Errorf("merge %s: %w", target, mergeErr)
	}
	if err := os.WriteFile(localPath, out, 0644); err != nil {
		return fmt.Errorf("write merge result: %w", err)
	}
	return saved(mergeErr)
}

func printConflicts(records []*store.ConflictRecord) {
	table := ui.Table([]string{"ID", "Bug", "Entity", "Field", "Local", "Remote"})
	for _, c := range records {
		bug := c.Bug
		if bug == "" {
			bug = "(bugdir)"
		}
		_ = table.Append([]string{
			output.Cyan(c.ID),
			bug,
			c.Entity,
			c.Field,
			conflictValue(c.Local),
			conflictValue(c.Remote),
		})
	}
	_ = table.Render()
}

// conflictValue shortens a conflicting value for table display.
func conflictValue(v []string) string {
	if v == nil {
		return "(unset)"
	}
	s := strings.Join(v, ", ")
	if first, _, ok := strings.Cut(s, "\n"); ok {
		s = first + " ..."
	}
	if len(s) > 40 {
		s = s[:37] + "..."
	}
	return s
}

func conflictsRun() error {
	r, err := getRepo()
	if err != nil {
		return err
	}
	if !dryRun {
		if err := r.StageConflicts(context.Background()); err != nil {
			return err
		}
	}
	records, err := r.ListConflicts()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		ui.Info("No unresolved conflicts.")
		return nil
	}
	printConflicts(records)
	return nil
}

func resolveRun(id string) error {
	if resolveTake != store.TakeLocal && resolveTake != store.TakeRemote {
		return fmt.Errorf("--take must be %s or %s", store.TakeLocal, store.TakeRemote)
	}
	ctx := context.Background()
	r, d, err := loadAll(ctx)
	if err != nil {
		return err
	}

	if dryRun {
		rec, err := r.LoadConflict(id)
		if err != nil {
			return err
		}
		ui.DryRunMsg("Would set %s of %s %s to the %s value", rec.Field, rec.Entity, rec.EntityID, resolveTake)
		return nil
	}

	rec, err := r.Resolve(ctx, d, id, resolveTake)
	if err != nil {
		return saved(fmt.Errorf("resolve %s: %w", id, err))
	}
	ui.Success("Resolved %s: %s of %s %s takes the %s value", rec.ID, rec.Field, rec.Entity, rec.EntityID, resolveTake)
	return nil
}
