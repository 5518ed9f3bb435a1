package models

import (
	"slices"
	"time"

	"github.com/joescharf/be/internal/schema"
)

// Bug is one tracked issue.
type Bug struct {
	Meta

	UUID         string
	Summary      string
	Severity     string
	Status       string
	Assigned     string
	Creator      string
	Reporter     string
	Time         time.Time
	ExtraStrings []string

	// Optional bug-level overrides of the bugdir's allowed sets.
	// Nil means inherited.
	Severities     []schema.Level
	ActiveStatus   []schema.Level
	InactiveStatus []schema.Level

	// Comments is the flat comment table keyed by uuid.
	Comments map[string]*Comment

	pristine *Bug
}

// NewBug returns a bug stamped with its creation time. The time is marked
// explicit so it is always persisted.
func NewBug(id string, now time.Time) *Bug {
	b := &Bug{
		UUID:     id,
		Severity: DefaultSeverity,
		Status:   DefaultStatus,
		Time:     now.Truncate(time.Second),
		Comments: make(map[string]*Comment),
	}
	b.MarkExplicit("time")
	return b
}

// Overrides returns the bug-level allowed sets that are set.
func (b *Bug) Overrides() schema.AllowedSets {
	return schema.AllowedSets{
		Severities:     b.Severities,
		ActiveStatus:   b.ActiveStatus,
		InactiveStatus: b.InactiveStatus,
	}
}

// AddComment attaches c to the comment table.
func (b *Bug) AddComment(c *Comment) {
	if b.Comments == nil {
		b.Comments = make(map[string]*Comment)
	}
	b.Comments[c.UUID] = c
}

// Clone deep-copies b, including comments.
func (b *Bug) Clone() *Bug {
	out := &Bug{
		Meta:           b.Meta.clone(),
		UUID:           b.UUID,
		Summary:        b.Summary,
		Severity:       b.Severity,
		Status:         b.Status,
		Assigned:       b.Assigned,
		Creator:        b.Creator,
		Reporter:       b.Reporter,
		Time:           b.Time,
		ExtraStrings:   slices.Clone(b.ExtraStrings),
		Severities:     slices.Clone(b.Severities),
		ActiveStatus:   slices.Clone(b.ActiveStatus),
		InactiveStatus: slices.Clone(b.InactiveStatus),
		Comments:       make(map[string]*Comment, len(b.Comments)),
	}
	for id, c := range b.Comments {
		out.Comments[id] = c.Clone()
	}
	return out
}

// Snapshot records the current state as the merge base for a later save.
func (b *Bug) Snapshot() { b.pristine = b.Clone() }

// Pristine returns the state at the last Snapshot, or nil.
func (b *Bug) Pristine() *Bug { return b.pristine }
