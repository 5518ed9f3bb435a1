// Package schema describes the persisted fields of each entity type.
//
// A Descriptor is built once per type and handed to every load, save and
// merge call. It carries no mutable state.
package schema

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// TimeFormat is the fixed RFC 2822 layout used for "time" and "Date" fields.
const TimeFormat = "Mon, 02 Jan 2006 15:04:05 -0700"

// CommentRootID is the reserved id of a bug's synthetic comment root. It is
// the nil UUID, which the generator never produces, and is never written as
// a comment file.
const CommentRootID = "00000000-0000-0000-0000-000000000000"

// Policy controls how a field is reconciled during a merge.
type Policy int

const (
	// Scalar fields take whichever side changed; both changing is a conflict.
	Scalar Policy = iota
	// Identity fields must match on both sides.
	Identity
	// Sequence fields union the entries each side added.
	Sequence
)

func (p Policy) String() string {
	switch p {
	case Identity:
		return "identity"
	case Sequence:
		return "sequence"
	default:
		return "scalar"
	}
}

// Level is one allowed severity or status label.
type Level struct {
	Name        string
	Description string
}

// String renders the on-disk "name: description" form.
func (l Level) String() string {
	if l.Description == "" {
		return l.Name
	}
	return l.Name + ": " + l.Description
}

// ParseLevel reverses Level.String.
func ParseLevel(s string) Level {
	name, desc, _ := strings.Cut(s, ":")
	return Level{Name: strings.TrimSpace(name), Description: strings.TrimPrefix(desc, " ")}
}

// Names returns the labels of levels in order.
func Names(levels []Level) []string {
	names := make([]string, len(levels))
	for i, l := range levels {
		names[i] = l.Name
	}
	return names
}

// AllowedSets holds the severity and status labels an entity may use.
// A nil set means "not set here".
type AllowedSets struct {
	Severities     []Level
	ActiveStatus   []Level
	InactiveStatus []Level
}

// Resolve walks the inheritance chain: each set in override wins when set,
// otherwise the parent's set applies.
func Resolve(parent, override AllowedSets) AllowedSets {
	out := parent
	if override.Severities != nil {
		out.Severities = override.Severities
	}
	if override.ActiveStatus != nil {
		out.ActiveStatus = override.ActiveStatus
	}
	if override.InactiveStatus != nil {
		out.InactiveStatus = override.InactiveStatus
	}
	return out
}

// Statuses returns active then inactive status levels.
func (s AllowedSets) Statuses() []Level {
	return slices.Concat(s.ActiveStatus, s.InactiveStatus)
}

// IsActive reports whether status belongs to the active set.
func (s AllowedSets) IsActive(status string) bool {
	return slices.Contains(Names(s.ActiveStatus), status)
}

// Field describes one persisted attribute of T.
type Field[T any] struct {
	// Name is the on-disk key.
	Name   string
	Policy Policy
	// Multi fields are written as one entry per value.
	Multi bool
	// Default is the effective value when the field is absent. Nil means
	// the field has no default.
	Default []string
	// Get returns the current value, or nil when unset.
	Get func(*T) []string
	// Set parses and assigns values.
	Set func(*T, []string) error
	// Check validates a value against the resolved allowed sets.
	Check func(v []string, sets AllowedSets) error
}

// Descriptor is the immutable field table for one entity type.
type Descriptor[T any] struct {
	entity string
	fields []Field[T]
	index  map[string]int
}

// NewDescriptor builds a descriptor. Duplicate or unwritable names panic,
// since descriptors are assembled from constant tables at init time.
func NewDescriptor[T any](entity string, fields ...Field[T]) Descriptor[T] {
	d := Descriptor[T]{entity: entity, fields: slices.Clone(fields), index: make(map[string]int, len(fields))}
	for i, f := range d.fields {
		if f.Name == "" || strings.ContainsAny(f.Name, ": \n") {
			panic(fmt.Sprintf("schema: %s field %q is not a valid key", entity, f.Name))
		}
		if _, dup := d.index[f.Name]; dup {
			panic(fmt.Sprintf("schema: %s field %q declared twice", entity, f.Name))
		}
		if f.Get == nil || f.Set == nil {
			panic(fmt.Sprintf("schema: %s field %q needs Get and Set", entity, f.Name))
		}
		d.index[f.Name] = i
	}
	return d
}

// Entity names the described type, e.g. "bug".
func (d Descriptor[T]) Entity() string { return d.entity }

// Fields returns the fields in on-disk order.
func (d Descriptor[T]) Fields() []Field[T] { return slices.Clone(d.fields) }

// Lookup finds a field by on-disk key.
func (d Descriptor[T]) Lookup(name string) (Field[T], bool) {
	i, ok := d.index[name]
	if !ok {
		return Field[T]{}, false
	}
	return d.fields[i], true
}

// ApplyDefaults assigns every field's default value.
func (d Descriptor[T]) ApplyDefaults(t *T) error {
	for _, f := range d.fields {
		if f.Default == nil {
			continue
		}
		if err := f.Set(t, slices.Clone(f.Default)); err != nil {
			return fmt.Errorf("default for %s %s: %w", d.entity, f.Name, err)
		}
	}
	return nil
}

// Value returns the field's effective value: its current value, or the
// default when unset.
func (f Field[T]) Value(t *T) []string {
	if v := f.Get(t); v != nil {
		return v
	}
	return f.Default
}

// IsDefault reports whether the current value equals the default.
func (f Field[T]) IsDefault(t *T) bool {
	return slices.Equal(f.Get(t), f.Default)
}

// FormatTime renders t in TimeFormat, or "" for the zero time.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(TimeFormat)
}

// ParseTime parses TimeFormat. An empty string yields the zero time.
func ParseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(TimeFormat, s)
}
