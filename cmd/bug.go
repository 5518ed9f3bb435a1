package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joescharf/be/internal/identity"
	"github.com/joescharf/be/internal/models"
	"github.com/joescharf/be/internal/output"
	"github.com/joescharf/be/internal/schema"
	"github.com/joescharf/be/internal/store"
	"github.com/joescharf/be/internal/thread"
)

var (
	newSeverity string
	newAssigned string
	newReporter string
	newGuess    bool

	listStatus   []string
	listSeverity []string
	listAssigned string
	listAll      bool
)

var newCmd = &cobra.Command{
	Use:   "new <summary>",
	Short: "Create a bug",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return newRun(args[0])
	},
}

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List bugs",
	Long: `List bugs, oldest first. Only active bugs are shown unless --all or
--status is given.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listRun()
	},
}

var showCmd = &cobra.Command{
	Use:   "show <bug-id>",
	Short: "Show a bug and its comment thread",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return showRun(args[0])
	},
}

var removeCmd = &cobra.Command{
	Use:     "remove <bug-id>",
	Aliases: []string{"rm"},
	Short:   "Remove a bug and its comments",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return removeRun(args[0])
	},
}

var severityCmd = &cobra.Command{
	Use:   "severity <level> <bug-id>",
	Short: "Set a bug's severity",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setFieldRun("severity", args[0], args[1])
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <status> <bug-id>",
	Short: "Set a bug's status",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setFieldRun("status", args[0], args[1])
	},
}

func init() {
	newCmd.Flags().StringVar(&newSeverity, "severity", "", "Initial severity")
	newCmd.Flags().StringVar(&newAssigned, "assigned", "", "Assignee")
	newCmd.Flags().StringVar(&newReporter, "reporter", "", "Reporter (default: the current user)")
	newCmd.Flags().BoolVar(&newGuess, "guess-severity", false, "Infer the severity from the summary when --severity is not given")

	listCmd.Flags().StringSliceVar(&listStatus, "status", nil, "Filter by status (repeatable)")
	listCmd.Flags().StringSliceVar(&listSeverity, "severity", nil, "Filter by severity (repeatable)")
	listCmd.Flags().StringVar(&listAssigned, "assigned", "", "Filter by assignee")
	listCmd.Flags().BoolVarP(&listAll, "all", "a", false, "Include inactive bugs")

	rootCmd.AddCommand(newCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(severityCmd)
	rootCmd.AddCommand(statusCmd)
}

func newRun(summary string) error {
	ctx := context.Background()
	r, d, err := loadAll(ctx)
	if err != nil {
		return err
	}

	severity := newSeverity
	if severity == "" && newGuess {
		severity = guessSeverity(summary, schema.Names(d.Sets().Severities))
		if severity != "" {
			ui.VerboseLog("Guessed severity %s", severity)
		}
	}

	if dryRun {
		ui.DryRunMsg("Would create bug: %s", summary)
		return nil
	}

	b, err := r.NewBug(ctx, d, summary)
	if err != nil {
		return fmt.Errorf("create bug: %w", err)
	}
	for _, f := range []struct{ name, value string }{
		{"severity", severity},
		{"assigned", newAssigned},
		{"reporter", newReporter},
	} {
		if f.value == "" {
			continue
		}
		if err := r.SetField(ctx, d, b, f.name, f.value); err != nil {
			return saved(fmt.Errorf("set %s: %w", f.name, err))
		}
	}

	cat, _ := store.NewCatalog(d)
	ui.Success("Created bug %s: %s", bugName(cat, b), summary)
	return nil
}

func listFilter() store.BugFilter {
	f := store.BugFilter{
		Status:   listStatus,
		Severity: listSeverity,
		Assigned: listAssigned,
	}
	if !listAll && len(listStatus) == 0 {
		active := true
		f.Active = &active
	}
	return f
}

func listRun() error {
	ctx := context.Background()
	r, err := getRepo()
	if err != nil {
		return err
	}

	rows, err := listRows(ctx, r, listFilter())
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		ui.Info("No bugs found.")
		return nil
	}

	reg := identity.NewRegistry()
	for _, row := range rows {
		_ = reg.RegisterUUID(row.UUID)
	}

	table := ui.Table([]string{"ID", "Status", "Severity", "Summary", "Assigned", "Comments"})
	for _, row := range rows {
		_ = table.Append([]string{
			reg.ShortID(row.UUID, 3),
			output.StatusColor(row.Status, row.Active),
			output.SeverityColor(row.Severity),
			row.Summary,
			row.Assigned,
			strconv.Itoa(row.Comments),
		})
	}
	_ = table.Render()
	return nil
}

// listRows answers from the index when it was synced at the current
// revision, otherwise it loads the bugdir and refreshes the index.
func listRows(ctx context.Context, r *store.Repo, filter store.BugFilter) ([]store.IndexedBug, error) {
	ix := r.Index()
	if ix != nil {
		fresh, err := indexFresh(ctx, r, ix)
		if err != nil {
			return nil, err
		}
		if fresh {
			ui.VerboseLog("Listing from index")
			return ix.ListBugs(ctx, filter)
		}
	}

	_, d, err := loadAll(ctx)
	if err != nil {
		return nil, err
	}
	if ix != nil {
		if err := ix.Sync(ctx, d); err != nil {
			ui.Warning("Index sync failed: %v", err)
		}
	}
	var rows []store.IndexedBug
	for _, b := range d.SortedBugs() {
		row := store.Summarize(b, d.SetsFor(b))
		if filter.Match(row) {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// indexFresh reports whether the index was synced at the current revision
// and the bug directory has no uncommitted changes since.
func indexFresh(ctx context.Context, r *store.Repo, ix *store.Index) (bool, error) {
	cur, err := r.VCS().CurrentRevision(ctx)
	if err != nil {
		return false, err
	}
	rev, err := ix.Revision(ctx)
	if err != nil {
		return false, err
	}
	if cur == "" || cur != rev {
		return false, nil
	}
	dc, ok := r.VCS().(dirtyChecker)
	if !ok {
		return true, nil
	}
	dirty, err := dc.IsDirty(ctx, r.Root())
	return !dirty, err
}

func showRun(ref string) error {
	ctx := context.Background()
	_, d, err := loadAll(ctx)
	if err != nil {
		return err
	}
	b, cat, err := findBug(d, ref)
	if err != nil {
		return err
	}
	sets := d.SetsFor(b)

	fmt.Fprintf(ui.Out, "%s  %s\n", bugName(cat, b), b.Summary)
	fmt.Fprintf(ui.Out, "  Status:     %s\n", output.StatusColor(b.Status, sets.IsActive(b.Status)))
	fmt.Fprintf(ui.Out, "  Severity:   %s\n", output.SeverityColor(b.Severity))
	if b.Assigned != "" {
		fmt.Fprintf(ui.Out, "  Assigned:   %s\n", b.Assigned)
	}
	if b.Reporter != "" {
		fmt.Fprintf(ui.Out, "  Reporter:   %s\n", b.Reporter)
	}
	if b.Creator != "" && b.Creator != b.Reporter {
		fmt.Fprintf(ui.Out, "  Creator:    %s\n", b.Creator)
	}
	fmt.Fprintf(ui.Out, "  Created:    %s\n", schema.FormatTime(b.Time))
	if len(b.ExtraStrings) > 0 {
		fmt.Fprintf(ui.Out, "  Extra:      %s\n", strings.Join(b.ExtraStrings, ", "))
	}
	fmt.Fprintf(ui.Out, "  Full ID:    %s\n", b.UUID)

	tree, err := thread.BuildBug(b)
	if err != nil {
		return err
	}
	if tree.Len() == 0 {
		return nil
	}
	reg := identity.NewRegistry()
	for id := range b.Comments {
		_ = reg.RegisterUUID(id)
	}
	fmt.Fprintln(ui.Out)
	return tree.Walk(func(c *models.Comment, depth int) error {
		printComment(reg, c, depth)
		return nil
	})
}

func printComment(reg *identity.Registry, c *models.Comment, depth int) {
	indent := strings.Repeat("  ", depth+1)
	header := fmt.Sprintf("--- %s", output.Cyan(reg.ShortID(c.UUID, 3)))
	if c.AltID != "" {
		header += fmt.Sprintf(" (%s)", c.AltID)
	}
	if c.Author != "" {
		header += " " + c.Author
	}
	header += ", " + schema.FormatTime(c.Date)
	fmt.Fprintf(ui.Out, "%s%s\n", indent, header)

	if !strings.HasPrefix(c.ContentType, "text/") {
		fmt.Fprintf(ui.Out, "%s[%s, %d bytes]\n", indent, c.ContentType, len(c.Body))
		return
	}
	for _, line := range strings.Split(strings.TrimRight(string(c.Body), "\n"), "\n") {
		fmt.Fprintf(ui.Out, "%s%s\n", indent, line)
	}
}

func removeRun(ref string) error {
	ctx := context.Background()
	r, d, err := loadAll(ctx)
	if err != nil {
		return err
	}
	b, cat, err := findBug(d, ref)
	if err != nil {
		return err
	}
	name := bugName(cat, b)

	if dryRun {
		ui.DryRunMsg("Would remove bug %s: %s", name, b.Summary)
		return nil
	}

	if err := r.RemoveBug(ctx, d, b.UUID); err != nil {
		return fmt.Errorf("remove bug: %w", err)
	}
	ui.Success("Removed bug %s: %s", name, b.Summary)
	return nil
}

func setFieldRun(field, value, ref string) error {
	ctx := context.Background()
	r, d, err := loadAll(ctx)
	if err != nil {
		return err
	}
	b, cat, err := findBug(d, ref)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would set %s of %s to %s", field, bugName(cat, b), value)
		return nil
	}

	if err := r.SetField(ctx, d, b, field, value); err != nil {
		return saved(fmt.Errorf("set %s: %w", field, err))
	}
	ui.Success("Set %s of %s to %s", field, bugName(cat, b), value)
	return nil
}
