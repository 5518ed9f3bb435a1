package store

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"

	"github.com/joescharf/be/internal/entity"
	"github.com/joescharf/be/internal/identity"
	"github.com/joescharf/be/internal/merge"
	"github.com/joescharf/be/internal/models"
	"github.com/joescharf/be/internal/schema"
	"github.com/joescharf/be/internal/thread"
)

// NewBug creates, saves and returns a bug with the default severity and
// status. The creator and reporter are the repo user.
func (r *Repo) NewBug(ctx context.Context, d *models.Bugdir, summary string) (*models.Bug, error) {
	b := models.NewBug(identity.NewUUID(), r.now())
	b.Summary = summary
	b.MarkExplicit("summary")
	if user := r.User(ctx); user != "" {
		b.Creator, b.Reporter = user, user
		b.MarkExplicit("creator", "reporter")
	}
	b.Revision = r.revision(ctx)
	if err := r.SaveBug(ctx, d, b); err != nil {
		return nil, err
	}
	return b, nil
}

// ImportBug saves a bug built outside the repo, such as by the importer.
// The uuid must not already exist.
func (r *Repo) ImportBug(ctx context.Context, d *models.Bugdir, b *models.Bug) error {
	if err := identity.Validate(b.UUID); err != nil {
		return err
	}
	if r.bugExists(b.UUID) {
		return &identity.DuplicateIDError{Kind: "uuid", ID: b.UUID, Existing: b.UUID, New: b.UUID}
	}
	b.Revision = r.revision(ctx)
	return r.SaveBug(ctx, d, b)
}

// CommentOptions carries the optional attributes of a new comment.
type CommentOptions struct {
	// Parent is the uuid replied to. Empty means a top-level comment.
	Parent      string
	Author      string
	ContentType string
	AltID       string
}

// AddComment appends a comment to b and saves the bug.
func (r *Repo) AddComment(ctx context.Context, d *models.Bugdir, b *models.Bug, body []byte, opts CommentOptions) (*models.Comment, error) {
	if opts.Parent != "" && opts.Parent != schema.CommentRootID {
		if _, ok := b.Comments[opts.Parent]; !ok {
			return nil, fmt.Errorf("reply to comment %s in bug %s: %w", opts.Parent, b.UUID, ErrNotFound)
		}
	}
	c := models.NewComment(identity.NewUUID(), opts.Parent, r.now())
	c.Author = opts.Author
	if c.Author == "" {
		c.Author = r.User(ctx)
	}
	if c.Author != "" {
		c.MarkExplicit("Author")
	}
	if opts.ContentType != "" {
		c.ContentType = opts.ContentType
		c.MarkExplicit("Content-type")
	}
	if opts.AltID != "" {
		c.AltID = opts.AltID
		c.MarkExplicit("Alt-Id")
	}
	if len(body) > 0 {
		c.Body = slices.Clone(body)
	}
	if err := checkComment(c); err != nil {
		return nil, err
	}
	b.AddComment(c)
	if err := r.SaveBug(ctx, d, b); err != nil {
		delete(b.Comments, c.UUID)
		return nil, err
	}
	return c, nil
}

func checkComment(c *models.Comment) error {
	return entity.Check(entity.CommentSchema, c.UUID, c, &c.Meta, schema.AllowedSets{})
}

// SetField assigns one bug field by its on-disk name, marks it explicit and
// saves the bug. The value is validated against the resolved allowed sets.
func (r *Repo) SetField(ctx context.Context, d *models.Bugdir, b *models.Bug, name, value string) error {
	f, ok := entity.BugSchema.Lookup(name)
	if !ok {
		return &schema.Error{Entity: "bug", ID: b.UUID, Field: name, Err: errors.New("unknown field")}
	}
	if f.Policy == schema.Identity {
		return &schema.Error{Entity: "bug", ID: b.UUID, Field: name, Value: value, Err: errors.New("field is immutable")}
	}
	old, wasExplicit := f.Get(b), b.IsExplicit(name)
	if err := f.Set(b, []string{value}); err != nil {
		return &schema.Error{Entity: "bug", ID: b.UUID, Field: name, Value: value, Err: err}
	}
	b.MarkExplicit(name)
	if err := r.SaveBug(ctx, d, b); err != nil {
		var ce *merge.ConflictError
		if !errors.As(err, &ce) {
			_ = f.Set(b, old)
			if !wasExplicit {
				b.ClearExplicit(name)
			}
		}
		return err
	}
	return nil
}

// SaveBug writes b and its comments. When the VCS has moved since b was
// loaded, the bug is reloaded and merged with b against the snapshot taken
// at load. Conflicting fields are persisted as conflict records, the
// provisional merge is written, and a *merge.ConflictError is returned.
func (r *Repo) SaveBug(ctx context.Context, d *models.Bugdir, b *models.Bug) error {
	if err := identity.Validate(b.UUID); err != nil {
		return err
	}
	if err := r.checkAltIDs(ctx, d, b); err != nil {
		return err
	}
	cur, err := r.vcs.CurrentRevision(ctx)
	if err != nil {
		return err
	}
	var conflict error
	if cur != b.Revision {
		merged, err := r.mergeStale(d, b)
		var ce *merge.ConflictError
		switch {
		case errors.As(err, &ce):
			if _, rerr := r.recordConflicts(ctx, b.UUID, ce.Conflicts, true); rerr != nil {
				return rerr
			}
			conflict = err
		case err != nil:
			return err
		}
		*b = *merged
	}
	if err := entity.CheckBug(b, d.Sets()); err != nil {
		return err
	}
	if _, err := thread.BuildBug(b); err != nil {
		return err
	}
	if err := r.writeBug(ctx, b); err != nil {
		return err
	}
	b.Revision = r.revision(ctx)
	b.Snapshot()
	if d.Bugs == nil {
		d.Bugs = make(map[string]*models.Bug)
	}
	d.Bugs[b.UUID] = b
	if r.index != nil {
		if err := r.index.UpsertBug(ctx, b, d.SetsFor(b)); err != nil {
			return err
		}
	}
	return conflict
}

// checkAltIDs fails with a *identity.DuplicateIDError when a comment of b
// that is new, or whose alt-id changed since load, claims an alt-id some
// other comment in the bugdir already carries. Bugs not loaded into d are
// checked through the index.
func (r *Repo) checkAltIDs(ctx context.Context, d *models.Bugdir, b *models.Bug) error {
	var before map[string]*models.Comment
	if p := b.Pristine(); p != nil {
		before = p.Comments
	}
	changed := make(map[string]bool)
	for id, c := range b.Comments {
		if old, ok := before[id]; c.AltID != "" && (!ok || old.AltID != c.AltID) {
			changed[id] = true
		}
	}
	if len(changed) == 0 {
		return nil
	}

	others := &models.Bugdir{Bugs: maps.Clone(d.Bugs)}
	delete(others.Bugs, b.UUID)
	cat, _ := NewCatalog(others)
	ids := slices.Sorted(maps.Keys(b.Comments))
	for _, id := range ids {
		if !changed[id] {
			_ = cat.RegisterComment(b.UUID, b.Comments[id])
		}
	}
	for _, id := range ids {
		if !changed[id] {
			continue
		}
		c := b.Comments[id]
		if err := cat.RegisterComment(b.UUID, c); err != nil {
			return fmt.Errorf("save comment %s in bug %s: %w", id, b.UUID, err)
		}
		if r.index == nil {
			continue
		}
		bug, owner, err := r.index.LookupAltID(ctx, c.AltID)
		switch {
		case errors.Is(err, ErrNotFound):
		case err != nil:
			return err
		case bug != b.UUID && d.Bugs[bug] == nil && r.bugExists(bug):
			return fmt.Errorf("save comment %s in bug %s: %w", id, b.UUID,
				&identity.DuplicateIDError{Kind: "alt-id", ID: c.AltID, Existing: owner, New: id})
		}
	}
	return nil
}

func (r *Repo) bugExists(id string) bool {
	_, err := os.Stat(r.bugSettings(id))
	return err == nil
}

// mergeStale reloads b from disk and merges. A bug that no longer exists on
// disk is written as is.
func (r *Repo) mergeStale(d *models.Bugdir, b *models.Bug) (*models.Bug, error) {
	fresh, err := r.loadBug(d, b.UUID, &LoadReport{})
	if errors.Is(err, ErrNotFound) {
		return b, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reload bug %s: %w", b.UUID, err)
	}
	return merge.Bug(b.Pristine(), b, fresh)
}

func (r *Repo) writeBug(ctx context.Context, b *models.Bug) error {
	if _, err := writeIfChanged(r.bugSettings(b.UUID), formatBlock(entity.SaveBug(b))); err != nil {
		return err
	}
	for _, id := range slices.Sorted(maps.Keys(b.Comments)) {
		if err := identity.Validate(id); err != nil {
			return err
		}
		c := b.Comments[id]
		if err := checkComment(c); err != nil {
			return err
		}
		if _, err := writeIfChanged(r.commentPath(b.UUID, id), entity.SaveComment(c)); err != nil {
			return err
		}
	}
	return r.stage(ctx, r.bugDir(b.UUID))
}

// SaveBugdir writes the bugdir settings, merging with the on-disk copy when
// the VCS has moved since load.
func (r *Repo) SaveBugdir(ctx context.Context, d *models.Bugdir) error {
	cur, err := r.vcs.CurrentRevision(ctx)
	if err != nil {
		return err
	}
	var conflict error
	if cur != d.Revision {
		fresh, err := r.readBugdir()
		if err != nil {
			return fmt.Errorf("reload bugdir settings: %w", err)
		}
		merged, err := merge.Bugdir(d.Pristine(), d, fresh)
		var ce *merge.ConflictError
		switch {
		case errors.As(err, &ce):
			if _, rerr := r.recordConflicts(ctx, "", ce.Conflicts, true); rerr != nil {
				return rerr
			}
			conflict = err
		case err != nil:
			return err
		}
		bugs := d.Bugs
		*d = *merged
		d.Bugs = bugs
	}
	if err := entity.Check(entity.BugdirSchema, settingsFile, d, &d.Meta, d.Sets()); err != nil {
		return err
	}
	for _, levels := range [][]schema.Level{d.Severities, d.ActiveStatus, d.InactiveStatus} {
		if err := schema.CheckLevels(levels); err != nil {
			return &schema.Error{Entity: "bugdir", ID: settingsFile, Err: err}
		}
	}
	if err := schema.CheckDisjoint(d.ActiveStatus, d.InactiveStatus); err != nil {
		return &schema.Error{Entity: "bugdir", ID: settingsFile, Field: "inactive_status", Err: err}
	}
	if _, err := writeIfChanged(r.path(settingsFile), formatBlock(entity.SaveBugdir(d))); err != nil {
		return err
	}
	if err := r.stage(ctx, r.path(settingsFile)); err != nil {
		return err
	}
	d.Revision = r.revision(ctx)
	d.Snapshot()
	return conflict
}

// RemoveBug deletes a bug directory and stages the removal.
func (r *Repo) RemoveBug(ctx context.Context, d *models.Bugdir, id string) error {
	if err := identity.Validate(id); err != nil {
		return err
	}
	if _, err := os.Stat(r.bugSettings(id)); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove bug %s: %w", id, ErrNotFound)
	}
	if err := os.RemoveAll(r.bugDir(id)); err != nil {
		return fmt.Errorf("remove bug %s: %w", id, err)
	}
	if err := r.stage(ctx, r.bugDir(id)); err != nil {
		return err
	}
	delete(d.Bugs, id)
	if r.index != nil {
		return r.index.DeleteBug(ctx, id)
	}
	return nil
}

// MergeBugs folds from into into with merge.Duplicate and saves both.
// It returns the map from old comment uuids to their copies.
func (r *Repo) MergeBugs(ctx context.Context, d *models.Bugdir, into, from *models.Bug) (map[string]string, error) {
	cat, _ := NewCatalog(d)
	copies, err := merge.Duplicate(into, from, merge.DuplicateOptions{
		Author:       r.User(ctx),
		Now:          r.now(),
		NewID:        identity.NewUUID,
		IntoName:     cat.ShortID(into.UUID),
		FromName:     cat.ShortID(from.UUID),
		ClosedStatus: closedStatus(d.SetsFor(from)),
	})
	if err != nil {
		return nil, err
	}
	if err := r.SaveBug(ctx, d, into); err != nil {
		return nil, err
	}
	if err := r.SaveBug(ctx, d, from); err != nil {
		return nil, err
	}
	return copies, nil
}

// closedStatus picks "closed" when allowed, else the first inactive status.
func closedStatus(sets schema.AllowedSets) string {
	names := schema.Names(sets.InactiveStatus)
	if len(names) == 0 || slices.Contains(names, "closed") {
		return "closed"
	}
	return names[0]
}
