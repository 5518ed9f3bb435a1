package models

import (
	"slices"

	"github.com/joescharf/be/internal/schema"
)

// DefaultSeverity and DefaultStatus apply to bugs that never set them.
const (
	DefaultSeverity = "minor"
	DefaultStatus   = "open"
)

// DefaultSeverities returns the stock severity set, least severe first.
func DefaultSeverities() []schema.Level {
	return []schema.Level{
		{Name: "target", Description: "The issue is a target or milestone, not a bug."},
		{Name: "wishlist", Description: "A feature that could improve usefulness, but not a bug."},
		{Name: "minor", Description: "The standard bug level."},
		{Name: "serious", Description: "A bug that should be fixed."},
		{Name: "critical", Description: "A bug that must be fixed before the next release."},
		{Name: "fatal", Description: "A bug that makes the package unusable."},
	}
}

// DefaultActiveStatus returns the stock statuses of bugs still being worked.
func DefaultActiveStatus() []schema.Level {
	return []schema.Level{
		{Name: "unconfirmed", Description: "A possible bug which lacks independent confirmation."},
		{Name: "open", Description: "A working bug that has not been assigned to a developer."},
		{Name: "assigned", Description: "A working bug that has been assigned to a developer."},
		{Name: "test", Description: "The code has been adjusted, but the fix is still being tested."},
	}
}

// DefaultInactiveStatus returns the stock statuses of finished bugs.
func DefaultInactiveStatus() []schema.Level {
	return []schema.Level{
		{Name: "closed", Description: "The bug is no longer relevant."},
		{Name: "fixed", Description: "The bug should no longer occur."},
		{Name: "wontfix", Description: "It's not a bug, it's a feature."},
	}
}

// Bugdir is the root of one project's bug collection.
type Bugdir struct {
	Meta

	Target         string
	Severities     []schema.Level
	ActiveStatus   []schema.Level
	InactiveStatus []schema.Level
	ExtraStrings   []string

	Bugs map[string]*Bug

	pristine *Bugdir
}

// NewBugdir returns a bugdir carrying the stock level sets.
func NewBugdir() *Bugdir {
	return &Bugdir{
		Severities:     DefaultSeverities(),
		ActiveStatus:   DefaultActiveStatus(),
		InactiveStatus: DefaultInactiveStatus(),
		Bugs:           make(map[string]*Bug),
	}
}

// Sets returns the bugdir-level allowed sets.
func (d *Bugdir) Sets() schema.AllowedSets {
	return schema.AllowedSets{
		Severities:     d.Severities,
		ActiveStatus:   d.ActiveStatus,
		InactiveStatus: d.InactiveStatus,
	}
}

// SetsFor resolves the allowed sets that govern b.
func (d *Bugdir) SetsFor(b *Bug) schema.AllowedSets {
	return schema.Resolve(d.Sets(), b.Overrides())
}

// SortedBugs returns the bugs ordered by creation time, then uuid.
func (d *Bugdir) SortedBugs() []*Bug {
	bugs := make([]*Bug, 0, len(d.Bugs))
	for _, b := range d.Bugs {
		bugs = append(bugs, b)
	}
	slices.SortFunc(bugs, func(a, b *Bug) int {
		if c := a.Time.Compare(b.Time); c != 0 {
			return c
		}
		if a.UUID < b.UUID {
			return -1
		}
		if a.UUID > b.UUID {
			return 1
		}
		return 0
	})
	return bugs
}

// Clone copies the settings of d. Bugs are not copied.
func (d *Bugdir) Clone() *Bugdir {
	return &Bugdir{
		Meta:           d.Meta.clone(),
		Target:         d.Target,
		Severities:     slices.Clone(d.Severities),
		ActiveStatus:   slices.Clone(d.ActiveStatus),
		InactiveStatus: slices.Clone(d.InactiveStatus),
		ExtraStrings:   slices.Clone(d.ExtraStrings),
		Bugs:           make(map[string]*Bug),
	}
}

// Snapshot records the current settings as the merge base for a later save.
func (d *Bugdir) Snapshot() { d.pristine = d.Clone() }

// Pristine returns the settings as they were at the last Snapshot.
func (d *Bugdir) Pristine() *Bugdir { return d.pristine }
