package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/be/internal/entity"
	"github.com/joescharf/be/internal/merge"
	"github.com/joescharf/be/internal/models"
	"github.com/joescharf/be/internal/schema"
	"github.com/joescharf/be/internal/textblock"
)

// Conflict record keys.
const (
	keyBug     = "bug"
	keyEntity  = "entity"
	keyID      = "id"
	keyField   = "field"
	keyBase    = "base"
	keyLocal   = "local"
	keyRemote  = "remote"
	keyCreated = "created"
)

// Sides of a conflict a resolution can take.
const (
	TakeLocal  = "local"
	TakeRemote = "remote"
)

// ConflictRecord is one unresolved field persisted under conflicts/. Bug is
// empty for bugdir settings conflicts.
type ConflictRecord struct {
	ID       string
	Bug      string
	Entity   string
	EntityID string
	Field    string
	Base     []string
	Local    []string
	Remote   []string
	Created  time.Time
}

func (c *ConflictRecord) block() textblock.Block {
	var blk textblock.Block
	if c.Bug != "" {
		blk.Add(keyBug, c.Bug)
	}
	blk.Add(keyEntity, c.Entity)
	blk.Add(keyID, c.EntityID)
	blk.Add(keyField, c.Field)
	for _, side := range []struct {
		key  string
		vals []string
	}{{keyBase, c.Base}, {keyLocal, c.Local}, {keyRemote, c.Remote}} {
		for _, v := range side.vals {
			blk.Add(side.key, v)
		}
	}
	blk.Add(keyCreated, schema.FormatTime(c.Created))
	return blk
}

func parseConflict(id string, data []byte) (*ConflictRecord, error) {
	blk, err := entity.ParseBlock("conflict", id, data)
	if err != nil {
		return nil, err
	}
	c := &ConflictRecord{
		ID:     id,
		Base:   blk.All(keyBase),
		Local:  blk.All(keyLocal),
		Remote: blk.All(keyRemote),
	}
	c.Bug, _ = blk.Get(keyBug)
	c.Entity, _ = blk.Get(keyEntity)
	c.EntityID, _ = blk.Get(keyID)
	c.Field, _ = blk.Get(keyField)
	if c.Entity == "" || c.Field == "" {
		return nil, &schema.Error{Entity: "conflict", ID: id, Err: errors.New("missing entity or field")}
	}
	if s, ok := blk.Get(keyCreated); ok {
		t, err := schema.ParseTime(s)
		if err != nil {
			return nil, &schema.Error{Entity: "conflict", ID: id, Field: keyCreated, Value: s, Err: err}
		}
		c.Created = t
	}
	return c, nil
}

// newULID returns a time-ordered id for a conflict record.
func (r *Repo) newULID() string {
	return ulid.MustNew(ulid.Timestamp(r.now()), r.entropy).String()
}

// recordConflicts persists one record per conflict, staging each one when
// stage is set.
func (r *Repo) recordConflicts(ctx context.Context, bug string, conflicts []merge.Conflict, stage bool) ([]*ConflictRecord, error) {
	records := make([]*ConflictRecord, 0, len(conflicts))
	for _, c := range conflicts {
		rec := &ConflictRecord{
			ID:       r.newULID(),
			Bug:      bug,
			Entity:   c.Entity,
			EntityID: c.ID,
			Field:    c.Field,
			Base:     c.Base,
			Local:    c.Local,
			Remote:   c.Remote,
			Created:  r.now(),
		}
		path := r.conflictPath(rec.ID)
		if err := writeFile(path, formatBlock(rec.block())); err != nil {
			return nil, err
		}
		if stage {
			if err := r.stage(ctx, path); err != nil {
				return nil, err
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// StageConflicts stages the conflicts directory. Records written by the
// merge driver are left unstaged while the VCS holds its index lock.
func (r *Repo) StageConflicts(ctx context.Context) error {
	dir := r.path(conflictsDir)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return r.stage(ctx, dir)
}

// ListConflicts returns every persisted conflict record, oldest first.
func (r *Repo) ListConflicts() ([]*ConflictRecord, error) {
	entries, err := os.ReadDir(r.path(conflictsDir))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list conflicts: %w", err)
	}
	var records []*ConflictRecord
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		rec, err := r.LoadConflict(e.Name())
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	slices.SortFunc(records, func(a, b *ConflictRecord) int { return strings.Compare(a.ID, b.ID) })
	return records, nil
}

// LoadConflict reads one record. id may be a unique prefix.
func (r *Repo) LoadConflict(id string) (*ConflictRecord, error) {
	full, err := r.resolveConflictID(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(r.conflictPath(full))
	if err != nil {
		return nil, fmt.Errorf("read conflict %s: %w", full, err)
	}
	return parseConflict(full, data)
}

func (r *Repo) resolveConflictID(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) {
		return "", fmt.Errorf("conflict %q: %w", id, ErrNotFound)
	}
	if _, err := os.Stat(r.conflictPath(id)); err == nil {
		return id, nil
	}
	entries, err := os.ReadDir(r.path(conflictsDir))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("list conflicts: %w", err)
	}
	var matches []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), strings.ToUpper(id)) {
			matches = append(matches, e.Name())
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("conflict %s: %w", id, ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("conflict %s is ambiguous (%d matches)", id, len(matches))
	}
}

// Resolve settles a conflict record by taking the local or remote value,
// saving the entity and deleting the record.
func (r *Repo) Resolve(ctx context.Context, d *models.Bugdir, id, take string) (*ConflictRecord, error) {
	rec, err := r.LoadConflict(id)
	if err != nil {
		return nil, err
	}
	var val []string
	switch take {
	case TakeLocal:
		val = rec.Local
	case TakeRemote:
		val = rec.Remote
	default:
		return nil, fmt.Errorf("resolve conflict %s: take must be %q or %q, got %q", rec.ID, TakeLocal, TakeRemote, take)
	}

	switch rec.Entity {
	case "bugdir":
		if err := apply(entity.BugdirSchema, d, &d.Meta, rec, val); err != nil {
			return nil, err
		}
		if err := r.SaveBugdir(ctx, d); err != nil {
			return nil, err
		}
	case "bug", "comment":
		b, _, err := r.LoadBug(ctx, d, rec.Bug)
		if err != nil {
			return nil, err
		}
		if rec.Entity == "bug" {
			err = apply(entity.BugSchema, b, &b.Meta, rec, val)
		} else {
			err = applyComment(b, rec, val)
		}
		if err != nil {
			return nil, err
		}
		if err := r.SaveBug(ctx, d, b); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("resolve conflict %s: unknown entity %q", rec.ID, rec.Entity)
	}

	path := r.conflictPath(rec.ID)
	if err := os.Remove(path); err != nil {
		return nil, fmt.Errorf("remove conflict %s: %w", rec.ID, err)
	}
	if err := r.stage(ctx, path); err != nil {
		return nil, err
	}
	return rec, nil
}

func apply[T any](d schema.Descriptor[T], t *T, m *models.Meta, rec *ConflictRecord, val []string) error {
	f, ok := d.Lookup(rec.Field)
	if !ok {
		return &schema.Error{Entity: rec.Entity, ID: rec.EntityID, Field: rec.Field, Err: errors.New("unknown field")}
	}
	if err := f.Set(t, slices.Clone(val)); err != nil {
		return &schema.Error{Entity: rec.Entity, ID: rec.EntityID, Field: rec.Field, Err: err}
	}
	if val == nil {
		m.ClearExplicit(rec.Field)
	} else {
		m.MarkExplicit(rec.Field)
	}
	return nil
}

func applyComment(b *models.Bug, rec *ConflictRecord, val []string) error {
	c, ok := b.Comments[rec.EntityID]
	if !ok {
		return fmt.Errorf("comment %s in bug %s: %w", rec.EntityID, b.UUID, ErrNotFound)
	}
	if rec.Field != "body" {
		return apply(entity.CommentSchema, c, &c.Meta, rec, val)
	}
	c.Body = nil
	if len(val) > 0 && val[0] != "" {
		c.Body = []byte(val[0])
	}
	return nil
}
