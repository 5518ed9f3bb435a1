package vcs

import (
	"context"
	"errors"
	"os"
	"os/user"
	"path/filepath"
)

var errNoHistory = errors.New("no version control: only the working copy is available")

// None is the fallback backend for a bugdir outside version control.
// Nothing is staged or committed and the revision is always empty, so
// revision stamps never go stale.
type None struct {
	root string
}

// NewNone returns a None adapter rooted at root.
func NewNone(root string) *None {
	return &None{root: root}
}

func (n *None) Name() string { return "none" }
func (n *None) Root() string { return n.root }

func (n *None) Stage(context.Context, string) error   { return nil }
func (n *None) Unstage(context.Context, string) error { return nil }

func (n *None) Commit(context.Context, string) (Revision, error) { return "", nil }

func (n *None) CurrentRevision(context.Context) (Revision, error) { return "", nil }

func (n *None) Diff(context.Context, Revision, Revision) ([]string, error) { return nil, nil }

func (n *None) Ancestors(context.Context, Revision) ([]Revision, error) { return nil, nil }

func (n *None) ReadFile(_ context.Context, rev Revision, path string) ([]byte, error) {
	if rev != "" {
		return nil, &BackendError{Op: "read", Args: []string{rev, path}, Err: errNoHistory}
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(n.root, path)
	}
	return os.ReadFile(path)
}

// UserID returns the login name of the current user.
func (n *None) UserID(context.Context) (string, error) {
	u, err := user.Current()
	if err != nil {
		return "", &BackendError{Op: "user", Err: err}
	}
	if u.Name != "" {
		return u.Name, nil
	}
	return u.Username, nil
}
