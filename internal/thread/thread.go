// Package thread rebuilds a bug's comment tree from flat in-reply-to links.
package thread

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/joescharf/be/internal/models"
	"github.com/joescharf/be/internal/schema"
)

// Root is the id of the synthetic node every top-level comment hangs from.
const Root = schema.CommentRootID

// LinkError reports comments whose reply chain never reaches the root.
type LinkError struct {
	Bug      string
	Comments []string
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("bug %s: comment reply chain does not reach the root (cycle through %s)",
		e.Bug, strings.Join(e.Comments, ", "))
}

// Tree is a built comment tree. Nodes are held by uuid; parent and child
// links are looked up on demand.
type Tree struct {
	comments map[string]*models.Comment
	parent   map[string]string
	children map[string][]string

	// Orphans lists comments whose In-reply-to names a comment that does not
	// exist in the bug. They are attached to the root.
	Orphans []string
}

// Build indexes comments by uuid and links each one under its parent.
// Comments replying to the root marker, to nothing, or to an unknown uuid
// attach under the root. A reply chain that fails to reach the root within
// len(comments) hops is a cycle and yields a *LinkError.
func Build(comments map[string]*models.Comment) (*Tree, error) {
	t := &Tree{
		comments: comments,
		parent:   make(map[string]string, len(comments)),
		children: make(map[string][]string),
	}
	for id, c := range comments {
		p := c.InReplyTo
		switch {
		case p == "" || p == Root:
			p = Root
		case comments[p] == nil:
			t.Orphans = append(t.Orphans, id)
			p = Root
		}
		t.parent[id] = p
	}
	slices.Sort(t.Orphans)

	if bad := t.unreachable(); len(bad) > 0 {
		return nil, &LinkError{Comments: bad}
	}

	for id, p := range t.parent {
		t.children[p] = append(t.children[p], id)
	}
	for _, kids := range t.children {
		slices.SortFunc(kids, t.compare)
	}
	return t, nil
}

// BuildBug builds the tree for b, tagging any LinkError with the bug uuid.
func BuildBug(b *models.Bug) (*Tree, error) {
	t, err := Build(b.Comments)
	var le *LinkError
	if errors.As(err, &le) {
		le.Bug = b.UUID
	}
	return t, err
}

func (t *Tree) unreachable() []string {
	limit := len(t.parent)
	ok := make(map[string]bool, limit)
	var bad []string
	for id := range t.parent {
		cur, hops := id, 0
		var path []string
		for cur != Root && !ok[cur] {
			if hops > limit {
				break
			}
			path = append(path, cur)
			cur = t.parent[cur]
			hops++
		}
		if cur == Root || ok[cur] {
			for _, p := range path {
				ok[p] = true
			}
			continue
		}
		bad = append(bad, id)
	}
	slices.Sort(bad)
	return bad
}

func (t *Tree) compare(a, b string) int {
	if c := t.comments[a].Date.Compare(t.comments[b].Date); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}

// Len returns the number of comments in the tree, excluding the root.
func (t *Tree) Len() int { return len(t.parent) }

// Comment returns the comment with id, or nil.
func (t *Tree) Comment(id string) *models.Comment { return t.comments[id] }

// Parent returns the resolved parent id of a comment: a comment uuid or Root.
func (t *Tree) Parent(id string) string { return t.parent[id] }

// Children returns the ordered child ids of id. Use Root for top-level
// comments.
func (t *Tree) Children(id string) []string {
	return slices.Clone(t.children[id])
}

// Path returns the ids from the first top-level ancestor down to id.
func (t *Tree) Path(id string) []string {
	var path []string
	for cur := id; cur != Root && cur != ""; cur = t.parent[cur] {
		path = append(path, cur)
	}
	slices.Reverse(path)
	return path
}

// Walk visits comments depth first in child order. Top-level comments have
// depth 0. Returning an error stops the walk.
func (t *Tree) Walk(fn func(c *models.Comment, depth int) error) error {
	return t.walk(Root, 0, fn)
}

func (t *Tree) walk(id string, depth int, fn func(*models.Comment, int) error) error {
	for _, kid := range t.children[id] {
		if err := fn(t.comments[kid], depth); err != nil {
			return err
		}
		if err := t.walk(kid, depth+1, fn); err != nil {
			return err
		}
	}
	return nil
}

// Descendants returns every id below id in walk order.
func (t *Tree) Descendants(id string) []string {
	var out []string
	var visit func(string)
	visit = func(p string) {
		for _, kid := range t.children[p] {
			out = append(out, kid)
			visit(kid)
		}
	}
	visit(id)
	return out
}
