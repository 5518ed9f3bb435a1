// Package entity converts bugdirs, bugs and comments to and from text blocks
// using their schema descriptors.
package entity

import (
	"errors"
	"slices"

	"github.com/joescharf/be/internal/models"
	"github.com/joescharf/be/internal/schema"
	"github.com/joescharf/be/internal/textblock"
)

var errRepeated = errors.New("field may appear only once")

// Decode fills t from blk. Defaults are applied first, every known key read
// from blk is marked explicit, unknown entries land in m.Unknown, and each
// explicit field is checked against the sets returned by sets.
func Decode[T any](d schema.Descriptor[T], id string, blk textblock.Block, t *T, m *models.Meta, sets func(*T) schema.AllowedSets) error {
	if err := d.ApplyDefaults(t); err != nil {
		return &schema.Error{Entity: d.Entity(), ID: id, Err: err}
	}
	for _, e := range blk {
		if _, ok := d.Lookup(e.Key); !ok {
			m.Unknown = append(m.Unknown, e)
		}
	}
	for _, key := range blk.Keys() {
		f, ok := d.Lookup(key)
		if !ok {
			continue
		}
		vals := blk.All(key)
		if !f.Multi && len(vals) > 1 {
			return &schema.Error{Entity: d.Entity(), ID: id, Field: key, Value: vals[1], Err: errRepeated}
		}
		if err := f.Set(t, vals); err != nil {
			return &schema.Error{Entity: d.Entity(), ID: id, Field: key, Value: vals[0], Err: err}
		}
		m.MarkExplicit(key)
	}
	return Check(d, id, t, m, sets(t))
}

// Check runs the validator of every explicit field.
func Check[T any](d schema.Descriptor[T], id string, t *T, m *models.Meta, sets schema.AllowedSets) error {
	for _, f := range d.Fields() {
		if f.Check == nil || !m.IsExplicit(f.Name) {
			continue
		}
		v := f.Value(t)
		if err := f.Check(v, sets); err != nil {
			return &schema.Error{Entity: d.Entity(), ID: id, Field: f.Name, Value: firstOf(v), Err: err}
		}
	}
	return nil
}

// Encode writes the explicit and non-default fields of t in descriptor order,
// followed by the unknown entries preserved from load.
func Encode[T any](d schema.Descriptor[T], t *T, m *models.Meta) textblock.Block {
	var blk textblock.Block
	for _, f := range d.Fields() {
		if !m.IsExplicit(f.Name) && f.IsDefault(t) {
			continue
		}
		v := f.Get(t)
		switch {
		case v == nil && f.Multi:
		case v == nil:
			blk.Add(f.Name, "")
		case f.Multi:
			for _, s := range v {
				blk.Add(f.Name, s)
			}
		default:
			blk.Add(f.Name, v[0])
		}
	}
	return append(blk, m.Unknown...)
}

// LoadBugdir decodes the bugdir settings block.
func LoadBugdir(blk textblock.Block) (*models.Bugdir, error) {
	d := &models.Bugdir{Bugs: make(map[string]*models.Bug)}
	if err := Decode(BugdirSchema, "settings", blk, d, &d.Meta, func(d *models.Bugdir) schema.AllowedSets { return d.Sets() }); err != nil {
		return nil, err
	}
	if err := schema.CheckDisjoint(d.ActiveStatus, d.InactiveStatus); err != nil {
		return nil, &schema.Error{Entity: "bugdir", ID: "settings", Field: "inactive_status", Err: err}
	}
	return d, nil
}

// SaveBugdir encodes the bugdir settings block.
func SaveBugdir(d *models.Bugdir) textblock.Block {
	return Encode(BugdirSchema, d, &d.Meta)
}

// LoadBug decodes a bug settings block. dir supplies the inherited allowed
// sets.
func LoadBug(id string, blk textblock.Block, dir schema.AllowedSets) (*models.Bug, error) {
	b := &models.Bug{UUID: id, Comments: make(map[string]*models.Comment)}
	resolve := func(b *models.Bug) schema.AllowedSets { return schema.Resolve(dir, b.Overrides()) }
	if err := Decode(BugSchema, id, blk, b, &b.Meta, resolve); err != nil {
		return nil, err
	}
	sets := resolve(b)
	if err := schema.CheckDisjoint(sets.ActiveStatus, sets.InactiveStatus); err != nil {
		return nil, &schema.Error{Entity: "bug", ID: id, Field: "inactive_status", Err: err}
	}
	return b, nil
}

// CheckBug validates b against the resolved sets, as a save would require.
func CheckBug(b *models.Bug, dir schema.AllowedSets) error {
	return Check(BugSchema, b.UUID, b, &b.Meta, schema.Resolve(dir, b.Overrides()))
}

// SaveBug encodes a bug settings block. Comments are stored separately.
func SaveBug(b *models.Bug) textblock.Block {
	return Encode(BugSchema, b, &b.Meta)
}

// LoadComment decodes a comment file: header block, blank line, body.
func LoadComment(id string, data []byte) (*models.Comment, error) {
	header, body := textblock.SplitBody(data)
	blk, err := textblock.Parse(header)
	if err != nil {
		return nil, &schema.Error{Entity: "comment", ID: id, Err: err}
	}
	c := &models.Comment{UUID: id}
	if len(body) > 0 {
		c.Body = slices.Clone(body)
	}
	if err := Decode(CommentSchema, id, blk, c, &c.Meta, func(*models.Comment) schema.AllowedSets { return schema.AllowedSets{} }); err != nil {
		return nil, err
	}
	return c, nil
}

// SaveComment encodes a comment file.
func SaveComment(c *models.Comment) []byte {
	return textblock.JoinBody(Encode(CommentSchema, c, &c.Meta), c.Body)
}

// ParseBlock wraps textblock.Parse, reporting failures as schema errors.
func ParseBlock(entity, id string, data []byte) (textblock.Block, error) {
	blk, err := textblock.Parse(data)
	if err != nil {
		return nil, &schema.Error{Entity: entity, ID: id, Err: err}
	}
	return blk, nil
}

func firstOf(v []string) string {
	if len(v) == 0 {
		return ""
	}
	return v[0]
}
