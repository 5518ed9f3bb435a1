package importer

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/be/internal/identity"
	"github.com/joescharf/be/internal/models"
	"github.com/joescharf/be/internal/schema"
	"github.com/joescharf/be/internal/thread"
)

const sample = `bugs:
  - id: JIRA-12
    summary: Crash on start
    description: |
      Steps to reproduce...
    severity: serious
    reporter: Jane
    created: 2023-11-02T09:30:00Z
    extra_strings: ["component:core"]
    comments:
      - id: JIRA-C1
        author: John
        date: Fri, 03 Nov 2023 10:00:00 +0000
        body: Seen it too.
      - id: JIRA-C2
        reply_to: JIRA-C1
        content_type: text/markdown
        body: "*Same* here"
  - id: JIRA-13
    summary: Typo in help
`

func counter() func() string {
	n := 0
	return func() string { n++; return fmt.Sprintf("id-%02d", n) }
}

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestParseAndConvert(t *testing.T) {
	f, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)
	require.Len(t, f.Bugs, 2)

	res := Convert(f, models.NewBugdir().Sets(), Options{
		Now:   func() time.Time { return fixedNow },
		NewID: counter(),
	})
	require.Empty(t, res.Errors)
	require.Len(t, res.Bugs, 2)

	b := res.Bugs[0]
	assert.Equal(t, "Crash on start", b.Summary)
	assert.Equal(t, "serious", b.Severity)
	assert.Equal(t, models.DefaultStatus, b.Status)
	assert.True(t, b.Time.Equal(time.Date(2023, 11, 2, 9, 30, 0, 0, time.UTC)), "created maps to time")
	assert.True(t, b.IsExplicit("time"))
	assert.True(t, b.IsExplicit("severity"))
	assert.False(t, b.IsExplicit("status"))
	assert.Equal(t, []string{"component:core"}, b.ExtraStrings)
	require.Len(t, b.Comments, 3)

	tree, err := thread.BuildBug(b)
	require.NoError(t, err)
	roots := tree.Children(thread.Root)
	require.Len(t, roots, 2)
	desc := tree.Comment(roots[0])
	assert.Equal(t, "JIRA-12", desc.AltID)
	assert.Equal(t, "Jane", desc.Author)
	assert.Equal(t, "Steps to reproduce...\n", string(desc.Body))

	c1 := tree.Comment(roots[1])
	assert.Equal(t, "JIRA-C1", c1.AltID)
	assert.Equal(t, "John", c1.Author)
	kids := tree.Children(c1.UUID)
	require.Len(t, kids, 1)
	c2 := tree.Comment(kids[0])
	assert.Equal(t, "text/markdown", c2.ContentType)
	assert.True(t, c2.Date.Equal(b.Time), "missing date falls back to creation")

	second := res.Bugs[1]
	assert.True(t, second.Time.Equal(fixedNow))
	assert.Len(t, second.Comments, 1)
}

func TestConvert_SkipsKnown(t *testing.T) {
	f, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)
	f.Bugs = append(f.Bugs, f.Bugs[1])

	res := Convert(f, models.NewBugdir().Sets(), Options{
		NewID: counter(),
		Known: func(id string) bool { return id == "JIRA-12" },
	})
	assert.Equal(t, []string{"JIRA-12", "JIRA-13"}, res.Skipped)
	require.Len(t, res.Bugs, 1)
	assert.Equal(t, "Typo in help", res.Bugs[0].Summary)
}

func TestConvert_RecordErrors(t *testing.T) {
	f := &File{Bugs: []Record{
		{ID: "A", Summary: "bad severity", Severity: "apocalyptic"},
		{ID: "B", Summary: "bad date", Created: "last tuesday"},
		{ID: "C", Summary: "bad reply", Comments: []CommentRecord{{ID: "c", ReplyTo: "nowhere"}}},
		{ID: "D", Summary: "fine"},
	}}
	res := Convert(f, models.NewBugdir().Sets(), Options{NewID: counter()})
	require.Len(t, res.Errors, 3)
	require.Len(t, res.Bugs, 1)

	var re *RecordError
	require.ErrorAs(t, res.Errors[0], &re)
	assert.Equal(t, "A", re.ID)
	var se *schema.Error
	require.ErrorAs(t, res.Errors[0], &se)
	assert.Equal(t, "severity", se.Field)

	require.ErrorAs(t, res.Errors[1], &se)
	assert.Equal(t, "created", se.Field)
}

func TestConvert_DuplicateAltIDAcrossRecords(t *testing.T) {
	f := &File{Bugs: []Record{
		{ID: "A", Summary: "first", Comments: []CommentRecord{{ID: "X-1"}}},
		{ID: "B", Summary: "same comment id", Comments: []CommentRecord{{ID: "X-1"}}},
		{ID: "X-1", Summary: "record id taken by a comment"},
		{ID: "C", Summary: "comment id already in the bugdir", Comments: []CommentRecord{{ID: "OLD-1"}}},
		{ID: "D", Summary: "fine", Comments: []CommentRecord{{ID: "X-2"}}},
	}}
	res := Convert(f, models.NewBugdir().Sets(), Options{
		NewID: counter(),
		Known: func(id string) bool { return id == "OLD-1" },
	})
	require.Len(t, res.Bugs, 2)
	assert.Equal(t, "first", res.Bugs[0].Summary)
	assert.Equal(t, "fine", res.Bugs[1].Summary)
	require.Len(t, res.Errors, 3)

	for i, want := range []string{"B", "X-1", "C"} {
		var re *RecordError
		require.ErrorAs(t, res.Errors[i], &re)
		assert.Equal(t, want, re.ID)
		var dup *identity.DuplicateIDError
		assert.ErrorAs(t, res.Errors[i], &dup)
	}
}

func TestParse_Strict(t *testing.T) {
	_, err := Parse(strings.NewReader("bugs:\n  - id: X\n    summary: s\n    priority: high\n"))
	assert.ErrorContains(t, err, "priority")

	_, err = Parse(strings.NewReader("bugs:\n  - id: X\n"))
	assert.ErrorContains(t, err, "Summary")

	_, err = Parse(strings.NewReader("bugs:\n  - id: X\n    summary: s\n    comments:\n      - id: c\n        content_type: not a type\n"))
	assert.Error(t, err)

	f, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, f.Bugs)
}
