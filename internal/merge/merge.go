// Package merge reconciles two independently edited copies of the same
// bugdir, bug or comment against their common ancestor. It performs no I/O.
package merge

import (
	"fmt"
	"slices"
	"strings"

	"github.com/joescharf/be/internal/entity"
	"github.com/joescharf/be/internal/models"
	"github.com/joescharf/be/internal/schema"
	"github.com/joescharf/be/internal/textblock"
)

// Conflict is one field both sides changed to different values.
type Conflict struct {
	Entity string
	ID     string
	Field  string
	Base   []string
	Local  []string
	Remote []string
}

func (c Conflict) String() string {
	return fmt.Sprintf("%s %s %s: local %s, remote %s", c.Entity, c.ID, c.Field, show(c.Local), show(c.Remote))
}

// ConflictError carries every unresolved field of a merge. The entity
// returned alongside it holds the local value for each conflicting field and
// must not be treated as resolved.
type ConflictError struct {
	Conflicts []Conflict
}

func (e *ConflictError) Error() string {
	parts := make([]string, len(e.Conflicts))
	for i, c := range e.Conflicts {
		parts[i] = c.String()
	}
	return "merge conflict: " + strings.Join(parts, "; ")
}

// IntegrityError reports an identity field that differs between the sides.
// Nothing is merged.
type IntegrityError struct {
	Entity string
	ID     string
	Field  string
	Local  []string
	Remote []string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity error: %s %s field %s differs (local %s, remote %s)",
		e.Entity, e.ID, e.Field, show(e.Local), show(e.Remote))
}

func show(v []string) string {
	if v == nil {
		return "<unset>"
	}
	quoted := make([]string, len(v))
	for i, s := range v {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return strings.Join(quoted, ", ")
}

// side bundles one snapshot with its metadata so base may be absent.
type side[T any] struct {
	v *T
	m *models.Meta
}

func (s side[T]) value(f schema.Field[T]) []string {
	if s.v == nil {
		return nil
	}
	return f.Value(s.v)
}

func (s side[T]) explicit(name string) bool {
	return s.m != nil && s.m.IsExplicit(name)
}

// fields merges every descriptor field into out, which starts as a copy of
// local.
func fields[T any](d schema.Descriptor[T], id string, base, local, remote side[T], out *T, om *models.Meta) ([]Conflict, error) {
	var conflicts []Conflict
	for _, f := range d.Fields() {
		b, l, r := base.value(f), local.value(f), remote.value(f)
		lx, rx := local.explicit(f.Name), remote.explicit(f.Name)

		var (
			val      []string
			explicit bool
		)
		switch f.Policy {
		case schema.Identity:
			if !slices.Equal(l, r) {
				return nil, &IntegrityError{Entity: d.Entity(), ID: id, Field: f.Name, Local: l, Remote: r}
			}
			val, explicit = l, lx || rx
		case schema.Sequence:
			val, explicit = Sequence(b, l, r), lx || rx
		default:
			switch {
			case slices.Equal(l, r):
				val, explicit = l, lx || rx
			case base.v != nil && slices.Equal(b, l):
				val, explicit = r, rx
			case base.v != nil && slices.Equal(b, r):
				val, explicit = l, lx
			default:
				conflicts = append(conflicts, Conflict{Entity: d.Entity(), ID: id, Field: f.Name, Base: b, Local: l, Remote: r})
				val, explicit = l, lx
			}
		}
		if err := f.Set(out, slices.Clone(val)); err != nil {
			return nil, fmt.Errorf("set merged %s %s: %w", d.Entity(), f.Name, err)
		}
		if explicit {
			om.MarkExplicit(f.Name)
		} else {
			om.ClearExplicit(f.Name)
		}
	}
	om.Unknown = unknown(base.m, local.m, remote.m)
	return conflicts, nil
}

// unknown merges pass-through entries with the sequence rule, treating each
// key/value pair as one element.
func unknown(base, local, remote *models.Meta) []textblock.Entry {
	enc := func(m *models.Meta) []string {
		if m == nil {
			return nil
		}
		out := make([]string, len(m.Unknown))
		for i, e := range m.Unknown {
			out[i] = e.Key + "\x00" + e.Value
		}
		return out
	}
	merged := Sequence(enc(base), enc(local), enc(remote))
	if len(merged) == 0 {
		return nil
	}
	entries := make([]textblock.Entry, len(merged))
	for i, s := range merged {
		k, v, _ := strings.Cut(s, "\x00")
		entries[i] = textblock.Entry{Key: k, Value: v}
	}
	return entries
}

func result[T any](merged *T, conflicts []Conflict) (*T, error) {
	if len(conflicts) > 0 {
		return merged, &ConflictError{Conflicts: conflicts}
	}
	return merged, nil
}

// Comment merges one comment. base may be nil when the comment did not
// exist in the ancestor.
func Comment(base, local, remote *models.Comment) (*models.Comment, error) {
	if local.UUID != remote.UUID {
		return nil, &IntegrityError{Entity: "comment", ID: local.UUID, Field: "uuid", Local: []string{local.UUID}, Remote: []string{remote.UUID}}
	}
	out := local.Clone()
	conflicts, err := commentFields(base, local, remote, out)
	if err != nil {
		return nil, err
	}
	return result(out, conflicts)
}

func commentFields(base, local, remote, out *models.Comment) ([]Conflict, error) {
	bs := side[models.Comment]{}
	if base != nil {
		bs = side[models.Comment]{base, &base.Meta}
	}
	conflicts, err := fields(entity.CommentSchema, local.UUID, bs,
		side[models.Comment]{local, &local.Meta}, side[models.Comment]{remote, &remote.Meta}, out, &out.Meta)
	if err != nil {
		return nil, err
	}
	// The body is not a block field but is mutable content.
	switch {
	case slices.Equal(local.Body, remote.Body):
	case base != nil && slices.Equal(base.Body, local.Body):
		out.Body = slices.Clone(remote.Body)
	case base != nil && slices.Equal(base.Body, remote.Body):
	default:
		var b []string
		if base != nil {
			b = []string{string(base.Body)}
		}
		conflicts = append(conflicts, Conflict{Entity: "comment", ID: local.UUID, Field: "body",
			Base: b, Local: []string{string(local.Body)}, Remote: []string{string(remote.Body)}})
	}
	return conflicts, nil
}

// Bug merges one bug, including its comment table. Comments are unioned by
// uuid and shared uuids are merged field by field.
func Bug(base, local, remote *models.Bug) (*models.Bug, error) {
	if local.UUID != remote.UUID {
		return nil, &IntegrityError{Entity: "bug", ID: local.UUID, Field: "uuid", Local: []string{local.UUID}, Remote: []string{remote.UUID}}
	}
	out := local.Clone()
	bs := side[models.Bug]{}
	if base != nil {
		bs = side[models.Bug]{base, &base.Meta}
	}
	conflicts, err := fields(entity.BugSchema, local.UUID, bs,
		side[models.Bug]{local, &local.Meta}, side[models.Bug]{remote, &remote.Meta}, out, &out.Meta)
	if err != nil {
		return nil, err
	}

	out.Comments = make(map[string]*models.Comment, len(local.Comments)+len(remote.Comments))
	for _, id := range commentIDs(local, remote) {
		l, r := local.Comments[id], remote.Comments[id]
		switch {
		case l == nil:
			out.Comments[id] = r.Clone()
		case r == nil:
			out.Comments[id] = l.Clone()
		default:
			var bc *models.Comment
			if base != nil {
				bc = base.Comments[id]
			}
			c := l.Clone()
			cc, err := commentFields(bc, l, r, c)
			if err != nil {
				return nil, err
			}
			conflicts = append(conflicts, cc...)
			out.Comments[id] = c
		}
	}
	return result(out, conflicts)
}

func commentIDs(local, remote *models.Bug) []string {
	ids := make([]string, 0, len(local.Comments)+len(remote.Comments))
	for id := range local.Comments {
		ids = append(ids, id)
	}
	for id := range remote.Comments {
		if _, ok := local.Comments[id]; !ok {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// Bugdir merges the bugdir settings. Level sets compare as whole lists.
// The bug table is taken from local; bugs are merged one by one with Bug.
func Bugdir(base, local, remote *models.Bugdir) (*models.Bugdir, error) {
	out := local.Clone()
	out.Bugs = local.Bugs
	bs := side[models.Bugdir]{}
	if base != nil {
		bs = side[models.Bugdir]{base, &base.Meta}
	}
	conflicts, err := fields(entity.BugdirSchema, "settings", bs,
		side[models.Bugdir]{local, &local.Meta}, side[models.Bugdir]{remote, &remote.Meta}, out, &out.Meta)
	if err != nil {
		return nil, err
	}
	return result(out, conflicts)
}
