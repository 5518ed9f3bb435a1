package entity

import (
	"time"

	"github.com/joescharf/be/internal/models"
	"github.com/joescharf/be/internal/schema"
)

// BugdirSchema describes the bugdir settings block.
var BugdirSchema = schema.NewDescriptor("bugdir",
	schema.String("target", func(d *models.Bugdir) *string { return &d.Target }, ""),
	schema.Levels("severities", func(d *models.Bugdir) *[]schema.Level { return &d.Severities }, models.DefaultSeverities),
	schema.Levels("active_status", func(d *models.Bugdir) *[]schema.Level { return &d.ActiveStatus }, models.DefaultActiveStatus),
	schema.Levels("inactive_status", func(d *models.Bugdir) *[]schema.Level { return &d.InactiveStatus }, models.DefaultInactiveStatus),
	schema.Strings("extra_strings", func(d *models.Bugdir) *[]string { return &d.ExtraStrings }),
)

// BugSchema describes a bug settings block.
var BugSchema = schema.NewDescriptor("bug",
	schema.String("summary", func(b *models.Bug) *string { return &b.Summary }, ""),
	withCheck(schema.String("severity", func(b *models.Bug) *string { return &b.Severity }, models.DefaultSeverity),
		schema.MemberOf("severity", func(s schema.AllowedSets) []schema.Level { return s.Severities })),
	withCheck(schema.String("status", func(b *models.Bug) *string { return &b.Status }, models.DefaultStatus),
		schema.MemberOf("status", schema.AllowedSets.Statuses)),
	schema.String("assigned", func(b *models.Bug) *string { return &b.Assigned }, ""),
	schema.String("creator", func(b *models.Bug) *string { return &b.Creator }, ""),
	schema.String("reporter", func(b *models.Bug) *string { return &b.Reporter }, ""),
	schema.Time("time", schema.Identity, func(b *models.Bug) *time.Time { return &b.Time }),
	schema.Strings("extra_strings", func(b *models.Bug) *[]string { return &b.ExtraStrings }),
	schema.Levels("severities", func(b *models.Bug) *[]schema.Level { return &b.Severities }, nil),
	schema.Levels("active_status", func(b *models.Bug) *[]schema.Level { return &b.ActiveStatus }, nil),
	schema.Levels("inactive_status", func(b *models.Bug) *[]schema.Level { return &b.InactiveStatus }, nil),
)

// CommentSchema describes the header block of a comment file.
var CommentSchema = schema.NewDescriptor("comment",
	schema.String("Alt-Id", func(c *models.Comment) *string { return &c.AltID }, ""),
	schema.String("Author", func(c *models.Comment) *string { return &c.Author }, ""),
	identity(schema.String("In-reply-to", func(c *models.Comment) *string { return &c.InReplyTo }, schema.CommentRootID)),
	withCheck(schema.String("Content-type", func(c *models.Comment) *string { return &c.ContentType }, models.DefaultContentType),
		schema.ContentType),
	schema.Time("Date", schema.Identity, func(c *models.Comment) *time.Time { return &c.Date }),
	schema.Strings("extra_strings", func(c *models.Comment) *[]string { return &c.ExtraStrings }),
)

func withCheck[T any](f schema.Field[T], check func([]string, schema.AllowedSets) error) schema.Field[T] {
	f.Check = check
	return f
}

func identity[T any](f schema.Field[T]) schema.Field[T] {
	f.Policy = schema.Identity
	return f
}
