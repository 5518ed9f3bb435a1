package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/joescharf/be/internal/entity"
	"github.com/joescharf/be/internal/models"
	"github.com/joescharf/be/internal/vcs"
)

// Change kinds reported by Changes.
const (
	ChangeAdded    = "added"
	ChangeRemoved  = "removed"
	ChangeModified = "modified"
)

// BugChange describes how one bug differs between a revision and the
// working copy. Old is nil for added bugs and New is nil for removed ones.
type BugChange struct {
	UUID     string
	Kind     string
	Old      *models.Bug
	New      *models.Bug
	Fields   []string
	Comments map[string]string
}

// Changes compares the bugdir at rev with the working copy in d. Bugs that
// fail to decode on either side are reported as modified with no fields.
func (r *Repo) Changes(ctx context.Context, d *models.Bugdir, rev vcs.Revision) ([]BugChange, error) {
	paths, err := r.vcs.Diff(ctx, rev, "")
	if err != nil {
		return nil, err
	}
	byBug := make(map[string]*BugChange)
	var order []string
	touch := func(id string) *BugChange {
		c, ok := byBug[id]
		if !ok {
			c = &BugChange{UUID: id, Kind: ChangeModified, Comments: make(map[string]string)}
			byBug[id] = c
			order = append(order, id)
		}
		return c
	}
	for _, p := range paths {
		abs := filepath.Join(r.vcs.Root(), filepath.FromSlash(p))
		rel, err := filepath.Rel(r.root, abs)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		kind, bug, comment := Classify(rel)
		switch kind {
		case KindBug:
			touch(bug)
		case KindComment:
			old, err := r.readAt(ctx, rev, abs)
			if err != nil {
				return nil, err
			}
			cur, err := r.readAt(ctx, "", abs)
			if err != nil {
				return nil, err
			}
			c := touch(bug)
			switch {
			case old == nil:
				c.Comments[comment] = ChangeAdded
			case cur == nil:
				c.Comments[comment] = ChangeRemoved
			default:
				c.Comments[comment] = ChangeModified
			}
		}
	}

	out := make([]BugChange, 0, len(order))
	for _, id := range order {
		c := byBug[id]
		path := r.bugSettings(id)
		oldData, err := r.readAt(ctx, rev, path)
		if err != nil {
			return nil, err
		}
		if oldData != nil {
			c.Old, _ = decodeBug(id, oldData, d.Sets())
		}
		c.New = d.Bugs[id]
		if oldData == nil {
			c.Kind = ChangeAdded
		} else if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			c.Kind = ChangeRemoved
		}
		if c.Old != nil && c.New != nil {
			c.Fields = changedFields(c.Old, c.New)
		}
		out = append(out, *c)
	}
	slices.SortFunc(out, func(a, b BugChange) int { return strings.Compare(a.UUID, b.UUID) })
	return out, nil
}

func changedFields(a, b *models.Bug) []string {
	var names []string
	for _, f := range entity.BugSchema.Fields() {
		if !slices.Equal(f.Value(a), f.Value(b)) {
			names = append(names, f.Name)
		}
	}
	return names
}
