package thread

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/be/internal/models"
)

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func comment(id, parent string, minute int) *models.Comment {
	return models.NewComment(id, parent, base.Add(time.Duration(minute)*time.Minute))
}

func table(cs ...*models.Comment) map[string]*models.Comment {
	m := make(map[string]*models.Comment, len(cs))
	for _, c := range cs {
		m[c.UUID] = c
	}
	return m
}

type node struct {
	ID    string
	Depth int
}

func walk(t *testing.T, tr *Tree) []node {
	t.Helper()
	var out []node
	require.NoError(t, tr.Walk(func(c *models.Comment, depth int) error {
		out = append(out, node{c.UUID, depth})
		return nil
	}))
	return out
}

func TestBuild_Chain(t *testing.T) {
	tr, err := Build(table(comment("c1", Root, 1), comment("c2", "c1", 2)))
	require.NoError(t, err)

	assert.Equal(t, []string{"c1"}, tr.Children(Root))
	assert.Equal(t, []string{"c2"}, tr.Children("c1"))
	assert.Equal(t, "c1", tr.Parent("c2"))
	assert.Equal(t, []string{"c1", "c2"}, tr.Path("c2"))
	assert.Equal(t, []node{{"c1", 0}, {"c2", 1}}, walk(t, tr))
	assert.Equal(t, 2, tr.Len())
	assert.Empty(t, tr.Orphans)
}

func TestBuild_OrderByDateThenUUID(t *testing.T) {
	tr, err := Build(table(
		comment("b", Root, 5),
		comment("a", Root, 5),
		comment("z", Root, 1),
		comment("r2", "z", 9),
		comment("r1", "z", 3),
	))
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "a", "b"}, tr.Children(Root))
	assert.Equal(t, []string{"r1", "r2"}, tr.Children("z"))
	assert.Equal(t, []string{"z", "r1", "r2", "a", "b"}, tr.Descendants(Root))
}

func TestBuild_Deterministic(t *testing.T) {
	in := table(
		comment("a", Root, 1), comment("b", Root, 1), comment("c", "a", 2),
		comment("d", "a", 2), comment("e", "missing", 0), comment("f", "", 3),
	)
	first, err := Build(in)
	require.NoError(t, err)
	for range 20 {
		again, err := Build(in)
		require.NoError(t, err)
		assert.Equal(t, walk(t, first), walk(t, again))
	}
}

func TestBuild_Orphans(t *testing.T) {
	tr, err := Build(table(comment("a", "gone", 1), comment("b", "", 2)))
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, tr.Orphans)
	assert.Equal(t, Root, tr.Parent("a"))
	assert.Equal(t, []string{"a", "b"}, tr.Children(Root))
}

func TestBuild_EveryCommentReachesRootOnce(t *testing.T) {
	in := table(
		comment("1", Root, 1), comment("2", "1", 2), comment("3", "2", 3),
		comment("4", "1", 4), comment("5", Root, 5), comment("6", "5", 6),
	)
	tr, err := Build(in)
	require.NoError(t, err)

	seen := make(map[string]int)
	for _, n := range walk(t, tr) {
		seen[n.ID]++
		assert.Equal(t, len(tr.Path(n.ID))-1, n.Depth)
	}
	assert.Len(t, seen, len(in))
	for id, n := range seen {
		assert.Equal(t, 1, n, id)
	}
}

func TestBuild_Cycle(t *testing.T) {
	tests := []struct {
		name string
		in   map[string]*models.Comment
		bad  []string
	}{
		{"self", table(comment("a", "a", 1), comment("ok", Root, 1)), []string{"a"}},
		{"pair", table(comment("a", "b", 1), comment("b", "a", 2)), []string{"a", "b"}},
		{"tail into cycle", table(comment("a", "b", 1), comment("b", "a", 2), comment("c", "a", 3)), []string{"a", "b", "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.in)
			var le *LinkError
			require.ErrorAs(t, err, &le)
			assert.Equal(t, tt.bad, le.Comments)
		})
	}
}

func TestBuildBug_TagsLinkError(t *testing.T) {
	b := models.NewBug("bug-1", base)
	b.AddComment(comment("a", "b", 1))
	b.AddComment(comment("b", "a", 1))
	_, err := BuildBug(b)
	var le *LinkError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "bug-1", le.Bug)
	assert.Contains(t, err.Error(), "bug-1")
}

func TestBuild_Empty(t *testing.T) {
	tr, err := Build(nil)
	require.NoError(t, err)
	assert.Zero(t, tr.Len())
	assert.Empty(t, walk(t, tr))
}
