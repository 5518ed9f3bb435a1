package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/be/internal/models"
	"github.com/joescharf/be/internal/schema"
	"github.com/joescharf/be/internal/textblock"
)

var testTime = time.Date(2024, 3, 5, 10, 11, 12, 0, time.UTC)

func parse(t *testing.T, s string) textblock.Block {
	t.Helper()
	blk, err := textblock.Parse([]byte(s))
	require.NoError(t, err)
	return blk
}

func threeSeverities() schema.AllowedSets {
	return schema.AllowedSets{
		Severities:     []schema.Level{{Name: "minor"}, {Name: "serious"}, {Name: "critical"}},
		ActiveStatus:   models.DefaultActiveStatus(),
		InactiveStatus: models.DefaultInactiveStatus(),
	}
}

func TestLoadBugdir_Defaults(t *testing.T) {
	d, err := LoadBugdir(nil)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultSeverities(), d.Severities)
	assert.Equal(t, models.DefaultActiveStatus(), d.ActiveStatus)
	assert.Empty(t, SaveBugdir(d))
}

func TestBugdir_RoundTrip(t *testing.T) {
	d := models.NewBugdir()
	d.Target = "1.0"
	d.Severities = threeSeverities().Severities
	d.ExtraStrings = []string{"x", "y", "x"}

	blk := SaveBugdir(d)
	assert.Equal(t, []string{"minor", "serious", "critical"}, blk.All("severities"))

	got, err := LoadBugdir(parse(t, string(textblock.Format(blk))))
	require.NoError(t, err)
	assert.Equal(t, d.Target, got.Target)
	assert.Equal(t, d.Severities, got.Severities)
	assert.Equal(t, d.ActiveStatus, got.ActiveStatus)
	assert.Equal(t, d.ExtraStrings, got.ExtraStrings)
	assert.Equal(t, blk, SaveBugdir(got))
}

func TestLoadBugdir_OverlappingStatus(t *testing.T) {
	_, err := LoadBugdir(parse(t, "active_status: open\ninactive_status: open\n"))
	var se *schema.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "inactive_status", se.Field)
}

func TestLoadBugdir_EmptySet(t *testing.T) {
	_, err := LoadBugdir(parse(t, "severities:\n"))
	var se *schema.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "severities", se.Field)
}

func TestBug_CreateScenario(t *testing.T) {
	sets := threeSeverities()
	b := models.NewBug("b1", testTime)
	b.Severity = "serious"
	b.MarkExplicit("severity")
	require.NoError(t, CheckBug(b, sets))

	assert.True(t, b.IsExplicit("time"))
	blk := SaveBug(b)
	v, ok := blk.Get("time")
	require.True(t, ok)
	assert.Equal(t, "Tue, 05 Mar 2024 10:11:12 +0000", v)

	got, err := LoadBug("b1", blk, sets)
	require.NoError(t, err)
	assert.Equal(t, "serious", got.Severity)
	assert.Equal(t, models.DefaultStatus, got.Status)
	assert.True(t, got.Time.Equal(testTime))
	assert.True(t, got.IsExplicit("severity"))
	assert.False(t, got.IsExplicit("status"))
	assert.Equal(t, blk, SaveBug(got))
}

func TestBug_RoundTrip(t *testing.T) {
	b := models.NewBug("b2", testTime)
	b.Summary = "Crash on start"
	b.Status = "fixed"
	b.Creator = "Jane <jane@example.com>"
	b.Reporter = "John"
	b.ExtraStrings = []string{"BLOCKS:abc", "TAG:ui"}
	b.MarkExplicit("summary", "status", "creator", "reporter", "assigned")

	blk := SaveBug(b)
	got, err := LoadBug("b2", blk, models.NewBugdir().Sets())
	require.NoError(t, err)
	assert.Equal(t, b.Summary, got.Summary)
	assert.Equal(t, b.Status, got.Status)
	assert.Equal(t, b.Assigned, got.Assigned)
	assert.Equal(t, b.ExtraStrings, got.ExtraStrings)
	assert.True(t, got.IsExplicit("assigned"))
	assert.Equal(t, blk, SaveBug(got))
}

func TestLoadBug_SeverityInheritance(t *testing.T) {
	dir := threeSeverities()

	_, err := LoadBug("b", parse(t, "severity: wishlist\n"), dir)
	var se *schema.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "severity", se.Field)
	assert.Equal(t, "wishlist", se.Value)

	b, err := LoadBug("b", parse(t, "severity: wishlist\nseverities: wishlist\nseverities: minor\n"), dir)
	require.NoError(t, err)
	assert.Equal(t, "wishlist", b.Severity)
	assert.Equal(t, []string{"wishlist", "minor"}, schema.Names(b.Severities))
}

func TestLoadBug_BadTime(t *testing.T) {
	_, err := LoadBug("b", parse(t, "time: yesterday\n"), models.NewBugdir().Sets())
	var se *schema.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "time", se.Field)
	assert.Equal(t, "yesterday", se.Value)
}

func TestLoadBug_RepeatedScalar(t *testing.T) {
	_, err := LoadBug("b", parse(t, "status: open\nstatus: fixed\n"), models.NewBugdir().Sets())
	var se *schema.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "status", se.Field)
}

func TestLoadBug_UnknownFieldsPreserved(t *testing.T) {
	in := "summary: x\nfuture-field: keep me\nstatus: open\nother: a\nother: b\n"
	b, err := LoadBug("b", parse(t, in), models.NewBugdir().Sets())
	require.NoError(t, err)
	assert.Equal(t, []textblock.Entry{
		{Key: "future-field", Value: "keep me"},
		{Key: "other", Value: "a"},
		{Key: "other", Value: "b"},
	}, b.Unknown)

	out := string(textblock.Format(SaveBug(b)))
	assert.Equal(t, "summary: x\nstatus: open\nfuture-field: keep me\nother: a\nother: b\n", out)
}

func TestComment_RoundTrip(t *testing.T) {
	c := models.NewComment("c1", "", testTime)
	c.Author = "Jane"
	c.AltID = "ext-7"
	c.Body = []byte("Line one.\n\nLine three.\n")
	c.ExtraStrings = []string{"x"}
	c.MarkExplicit("Author", "Alt-Id")

	data := SaveComment(c)
	got, err := LoadComment("c1", data)
	require.NoError(t, err)
	assert.Equal(t, c.Author, got.Author)
	assert.Equal(t, c.AltID, got.AltID)
	assert.Equal(t, schema.CommentRootID, got.InReplyTo)
	assert.Equal(t, models.DefaultContentType, got.ContentType)
	assert.True(t, got.Date.Equal(c.Date))
	assert.Equal(t, c.Body, got.Body)
	assert.Equal(t, c.ExtraStrings, got.ExtraStrings)
	assert.Equal(t, data, SaveComment(got))
}

func TestComment_FieldOrder(t *testing.T) {
	c := models.NewComment("c1", "parent", testTime)
	c.Author = "Jane"
	c.ContentType = "text/x-rst"
	blk := Encode(CommentSchema, c, &c.Meta)
	assert.Equal(t, []string{"Author", "In-reply-to", "Content-type", "Date"}, blk.Keys())
}

func TestLoadComment_Errors(t *testing.T) {
	_, err := LoadComment("c", []byte("Content-type: not a type\n\nbody"))
	var se *schema.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "Content-type", se.Field)

	_, err = LoadComment("c", []byte("Date: 2024-03-05\n\nbody"))
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "Date", se.Field)

	_, err = LoadComment("c", []byte("garbage line\n\nbody"))
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "c", se.ID)
}

func TestLoadComment_NoBody(t *testing.T) {
	c, err := LoadComment("c", []byte("Author: x\n"))
	require.NoError(t, err)
	assert.Nil(t, c.Body)
	assert.Equal(t, schema.CommentRootID, c.InReplyTo)
	assert.False(t, c.IsExplicit("In-reply-to"))
}

func TestParseBlock(t *testing.T) {
	_, err := ParseBlock("bug", "b", []byte("nope\n"))
	var se *schema.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "bug", se.Entity)
}
