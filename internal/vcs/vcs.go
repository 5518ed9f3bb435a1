// Package vcs is the narrow contract between the bug store and whatever
// version control system holds it.
package vcs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Revision identifies one committed state. The empty revision means the
// working copy.
type Revision = string

// Adapter is implemented once per backend. Paths are absolute or relative
// to Root.
type Adapter interface {
	Name() string
	Root() string
	Stage(ctx context.Context, path string) error
	Unstage(ctx context.Context, path string) error
	Commit(ctx context.Context, message string) (Revision, error)
	CurrentRevision(ctx context.Context) (Revision, error)
	// Diff lists paths that differ between a and b. An empty b means the
	// working copy.
	Diff(ctx context.Context, a, b Revision) ([]string, error)
	// Ancestors lists the revisions reachable from rev, nearest first,
	// excluding rev itself.
	Ancestors(ctx context.Context, rev Revision) ([]Revision, error)
	// ReadFile returns the contents of path at rev. A path missing at rev
	// yields an error wrapping os.ErrNotExist.
	ReadFile(ctx context.Context, rev Revision, path string) ([]byte, error)
	UserID(ctx context.Context) (string, error)
}

// BackendError wraps a failed backend operation. It is never retried.
type BackendError struct {
	Op     string
	Args   []string
	Stderr string
	Err    error
}

func (e *BackendError) Error() string {
	cmd := strings.TrimSpace(e.Op + " " + strings.Join(e.Args, " "))
	if e.Stderr != "" {
		return fmt.Sprintf("%s: %s", cmd, e.Stderr)
	}
	return fmt.Sprintf("%s: %v", cmd, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// MergeBase returns the nearest revision that is both x or an ancestor of x
// and y or an ancestor of y. It returns "" when the histories are unrelated.
func MergeBase(ctx context.Context, a Adapter, x, y Revision) (Revision, error) {
	ax, err := a.Ancestors(ctx, x)
	if err != nil {
		return "", err
	}
	inX := make(map[Revision]bool, len(ax)+1)
	inX[x] = true
	for _, r := range ax {
		inX[r] = true
	}
	if inX[y] {
		return y, nil
	}
	ay, err := a.Ancestors(ctx, y)
	if err != nil {
		return "", err
	}
	for _, r := range ay {
		if inX[r] {
			return r, nil
		}
	}
	return "", nil
}

// Open returns the adapter for mode ("auto", "git" or "none") rooted at dir.
// Auto picks git when dir or one of its parents holds a .git entry.
func Open(mode, dir string) (Adapter, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", dir, err)
	}
	switch mode {
	case "none":
		return NewNone(abs), nil
	case "git":
		root, ok := findUp(abs, ".git")
		if !ok {
			return nil, fmt.Errorf("no git repository at or above %s", abs)
		}
		return NewGit(root), nil
	case "", "auto":
		if root, ok := findUp(abs, ".git"); ok {
			return NewGit(root), nil
		}
		return NewNone(abs), nil
	default:
		return nil, fmt.Errorf("unknown vcs %q (want auto, git or none)", mode)
	}
}

func findUp(dir, name string) (string, bool) {
	for {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

func relTo(root, path string) (string, error) {
	if !filepath.IsAbs(path) {
		return filepath.ToSlash(filepath.Clean(path)), nil
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside %s", path, root)
	}
	return filepath.ToSlash(rel), nil
}
