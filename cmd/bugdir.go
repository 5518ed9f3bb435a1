package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/joescharf/be/internal/merge"
	"github.com/joescharf/be/internal/models"
	"github.com/joescharf/be/internal/output"
	"github.com/joescharf/be/internal/store"
)

// loadAll opens the repo and loads every bug. Entities that fail to load
// are reported as warnings and left out.
func loadAll(ctx context.Context) (*store.Repo, *models.Bugdir, error) {
	r, err := getRepo()
	if err != nil {
		return nil, nil, err
	}
	d, report, err := r.Load(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load bug directory: %w", err)
	}
	for _, e := range report.Errors {
		ui.Warning("%v", e)
	}
	return r, d, nil
}

// findBug resolves a uuid, uuid prefix or alt-id to a loaded bug.
func findBug(d *models.Bugdir, ref string) (*models.Bug, *store.Catalog, error) {
	cat, _ := store.NewCatalog(d)
	id, err := cat.ResolveBug(ref)
	if err != nil {
		return nil, nil, fmt.Errorf("bug %q: %w", ref, err)
	}
	return d.Bugs[id], cat, nil
}

// saved turns a write error into CLI output. Conflicts leave the local
// values in place, so they are listed and reported as one error.
func saved(err error) error {
	var ce *merge.ConflictError
	if !errors.As(err, &ce) {
		return err
	}
	for _, c := range ce.Conflicts {
		ui.Warning("Conflict: %s", c)
	}
	return fmt.Errorf("%d unresolved conflict(s) recorded; see 'be conflicts'", len(ce.Conflicts))
}

// bugName is the short id shown to users.
func bugName(cat *store.Catalog, b *models.Bug) string {
	return output.Cyan(cat.ShortID(b.UUID))
}
