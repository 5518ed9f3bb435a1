package models

import (
	"bytes"
	"slices"
	"time"

	"github.com/joescharf/be/internal/schema"
)

// DefaultContentType applies to comments that do not declare one.
const DefaultContentType = "text/plain"

// Comment is one node of a bug's discussion.
type Comment struct {
	Meta

	UUID         string
	AltID        string
	Author       string
	InReplyTo    string
	ContentType  string
	Date         time.Time
	Body         []byte
	ExtraStrings []string
}

// NewComment returns a comment replying to parent, or to the bug's comment
// root when parent is empty.
func NewComment(id, parent string, now time.Time) *Comment {
	if parent == "" {
		parent = schema.CommentRootID
	}
	c := &Comment{
		UUID:        id,
		InReplyTo:   parent,
		ContentType: DefaultContentType,
		Date:        now.Truncate(time.Second),
	}
	c.MarkExplicit("In-reply-to", "Date")
	return c
}

// IsTopLevel reports whether the comment hangs directly off the root.
func (c *Comment) IsTopLevel() bool {
	return c.InReplyTo == "" || c.InReplyTo == schema.CommentRootID
}

// Clone deep-copies c.
func (c *Comment) Clone() *Comment {
	return &Comment{
		Meta:         c.Meta.clone(),
		UUID:         c.UUID,
		AltID:        c.AltID,
		Author:       c.Author,
		InReplyTo:    c.InReplyTo,
		ContentType:  c.ContentType,
		Date:         c.Date,
		Body:         bytes.Clone(c.Body),
		ExtraStrings: slices.Clone(c.ExtraStrings),
	}
}
