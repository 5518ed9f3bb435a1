package merge

import (
	"fmt"
	"time"

	"github.com/joescharf/be/internal/models"
	"github.com/joescharf/be/internal/thread"
)

// DuplicateOptions supplies what Duplicate cannot derive without I/O.
type DuplicateOptions struct {
	Author string
	Now    time.Time
	NewID  func() string
	// IntoName and FromName are the user-facing bug names used in the
	// "Merged from" and "Merged into" notes.
	IntoName string
	FromName string
	// ClosedStatus is assigned to the source bug. Defaults to "closed".
	ClosedStatus string
}

// Duplicate folds bug from into bug into. A "Merged from" comment is added
// to into and from's whole comment tree is copied beneath it with fresh
// uuids. A copy takes over the source comment's alt-id, or gets the old uuid
// as its alt-id when the source had none. from receives a "Merged into"
// comment and is closed. The returned map takes old comment uuids to their
// copies.
func Duplicate(into, from *models.Bug, opts DuplicateOptions) (map[string]string, error) {
	if into.UUID == from.UUID {
		return nil, fmt.Errorf("merge bug %s into itself", into.UUID)
	}
	tree, err := thread.BuildBug(from)
	if err != nil {
		return nil, err
	}
	if opts.ClosedStatus == "" {
		opts.ClosedStatus = "closed"
	}

	note := newNote(opts, fmt.Sprintf("Merged from bug #%s#", opts.FromName))
	into.AddComment(note)

	copies := make(map[string]string, tree.Len())
	for _, old := range tree.Descendants(thread.Root) {
		copies[old] = opts.NewID()
	}
	for old, id := range copies {
		src := tree.Comment(old)
		c := src.Clone()
		c.UUID = id
		if c.AltID == "" {
			c.AltID = old
			c.MarkExplicit("Alt-Id")
		} else {
			// An alt-id names one comment per bugdir, so it moves to the copy.
			src.AltID = ""
			src.ClearExplicit("Alt-Id")
		}
		if p := tree.Parent(old); p == thread.Root {
			c.InReplyTo = note.UUID
		} else {
			c.InReplyTo = copies[p]
		}
		c.MarkExplicit("In-reply-to")
		into.AddComment(c)
	}

	from.AddComment(newNote(opts, fmt.Sprintf("Merged into bug #%s#", opts.IntoName)))
	from.Status = opts.ClosedStatus
	from.MarkExplicit("status")
	return copies, nil
}

func newNote(opts DuplicateOptions, body string) *models.Comment {
	c := models.NewComment(opts.NewID(), "", opts.Now)
	c.Author = opts.Author
	c.Body = []byte(body + "\n")
	c.MarkExplicit("Author")
	return c
}
