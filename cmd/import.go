package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/joescharf/be/internal/importer"
	"github.com/joescharf/be/internal/output"
	"github.com/joescharf/be/internal/store"
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import bugs from a YAML export",
	Long: `Import bugs from a YAML document of the form

  bugs:
    - id: JIRA-12
      summary: Crash on start
      description: Steps to reproduce...
      severity: serious
      comments:
        - id: JIRA-C1
          author: John
          body: Seen it too.

Foreign ids are kept as comment alt-ids, so records imported before are
skipped on a second import.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return importRun(args[0])
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func importRun(file string) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("open import file: %w", err)
	}
	defer f.Close()

	doc, err := importer.Parse(f)
	if err != nil {
		return err
	}
	if len(doc.Bugs) == 0 {
		ui.Info("No bugs found in %s.", file)
		return nil
	}

	ctx := context.Background()
	r, d, err := loadAll(ctx)
	if err != nil {
		return err
	}
	cat, _ := store.NewCatalog(d)

	res := importer.Convert(doc, d.Sets(), importer.Options{Known: cat.HasAltID})
	for _, id := range res.Skipped {
		ui.VerboseLog("Skipping %s: already imported", id)
	}
	for _, e := range res.Errors {
		ui.Warning("%v", e)
	}
	if len(res.Bugs) == 0 {
		ui.Info("Nothing to import (%d skipped, %d failed).", len(res.Skipped), len(res.Errors))
		return nil
	}

	// Preview table
	table := ui.Table([]string{"#", "Summary", "Severity", "Status", "Comments"})
	for i, b := range res.Bugs {
		_ = table.Append([]string{
			fmt.Sprintf("%d", i+1),
			b.Summary,
			b.Severity,
			b.Status,
			fmt.Sprintf("%d", len(b.Comments)),
		})
	}
	_ = table.Render()

	if dryRun {
		ui.DryRunMsg("Would import %d bugs", len(res.Bugs))
		return nil
	}

	imported := 0
	for _, b := range res.Bugs {
		if err := r.ImportBug(ctx, d, b); err != nil {
			ui.Error("Import %s: %v", b.Summary, err)
			continue
		}
		_ = cat.RegisterBug(b.UUID)
		imported++
	}
	ui.Success("Imported %s bugs (%d skipped, %d failed)",
		output.Cyan(fmt.Sprintf("%d", imported)), len(res.Skipped), len(res.Errors)+len(res.Bugs)-imported)
	return nil
}
