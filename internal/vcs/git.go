package vcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

// Git drives the git command line against one working tree.
type Git struct {
	root string
}

// NewGit returns a Git adapter for the working tree at root.
func NewGit(root string) *Git {
	return &Git{root: root}
}

func (g *Git) run(ctx context.Context, args ...string) ([]byte, error) {
	fullArgs := append([]string{"-C", g.root}, args...)
	cmd := exec.CommandContext(ctx, "git", fullArgs...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, &BackendError{Op: "git", Args: args, Stderr: strings.TrimSpace(stderr.String()), Err: err}
	}
	return out, nil
}

func (g *Git) gitCmd(ctx context.Context, args ...string) (string, error) {
	out, err := g.run(ctx, args...)
	return strings.TrimSpace(string(out)), err
}

func (g *Git) Name() string { return "git" }
func (g *Git) Root() string { return g.root }

// Stage adds path, including deletions beneath it, to the index. A path
// that no longer exists is dropped from the index, and one that was never
// tracked is a no-op.
func (g *Git) Stage(ctx context.Context, path string) error {
	rel, err := relTo(g.root, path)
	if err != nil {
		return err
	}
	if _, err := os.Lstat(filepath.Join(g.root, filepath.FromSlash(rel))); errors.Is(err, os.ErrNotExist) {
		_, err = g.gitCmd(ctx, "rm", "-r", "-q", "--cached", "--ignore-unmatch", "--", rel)
		return err
	}
	_, err = g.gitCmd(ctx, "add", "-A", "--", rel)
	return err
}

// Unstage drops path from the index, leaving the working copy untouched.
func (g *Git) Unstage(ctx context.Context, path string) error {
	rel, err := relTo(g.root, path)
	if err != nil {
		return err
	}
	head, err := g.CurrentRevision(ctx)
	if err != nil {
		return err
	}
	if head == "" {
		_, err = g.gitCmd(ctx, "rm", "-r", "-q", "--cached", "--ignore-unmatch", "--", rel)
		return err
	}
	_, err = g.gitCmd(ctx, "reset", "-q", "HEAD", "--", rel)
	return err
}

// Commit records the index and returns the new HEAD.
func (g *Git) Commit(ctx context.Context, message string) (Revision, error) {
	if _, err := g.gitCmd(ctx, "commit", "-q", "-m", message); err != nil {
		return "", err
	}
	return g.CurrentRevision(ctx)
}

// CurrentRevision returns HEAD, or "" before the first commit.
func (g *Git) CurrentRevision(ctx context.Context) (Revision, error) {
	out, err := g.gitCmd(ctx, "rev-parse", "--verify", "--quiet", "HEAD")
	if err != nil {
		var be *BackendError
		var exitErr *exec.ExitError
		if errors.As(err, &be) && errors.As(be.Err, &exitErr) && exitErr.ExitCode() == 1 {
			return "", nil
		}
		return "", err
	}
	return out, nil
}

// Diff parses `git diff` output with go-diff and returns the touched paths,
// sorted and relative to Root. An empty a means HEAD.
func (g *Git) Diff(ctx context.Context, a, b Revision) ([]string, error) {
	if a == "" {
		a = "HEAD"
	}
	args := []string{"diff", "--no-color", "--no-ext-diff", "--no-renames", "--text", a}
	if b != "" {
		args = append(args, b)
	}
	out, err := g.run(ctx, args...)
	if err != nil {
		return nil, err
	}
	return ChangedPaths(out)
}

// ChangedPaths extracts the file names from a unified multi-file diff.
func ChangedPaths(patch []byte) ([]string, error) {
	files, err := diff.NewMultiFileDiffReader(bytes.NewReader(patch)).ReadAllFiles()
	if err != nil {
		return nil, fmt.Errorf("parse diff: %w", err)
	}
	seen := make(map[string]bool)
	var paths []string
	for _, fd := range files {
		for _, name := range []string{fd.OrigName, fd.NewName} {
			p := stripDiffPrefix(name)
			if p == "" || seen[p] {
				continue
			}
			seen[p] = true
			paths = append(paths, p)
		}
	}
	slices.Sort(paths)
	return paths, nil
}

func stripDiffPrefix(name string) string {
	if name == "/dev/null" || name == "" {
		return ""
	}
	for _, prefix := range []string{"a/", "b/"} {
		if strings.HasPrefix(name, prefix) {
			return name[len(prefix):]
		}
	}
	return name
}

// Ancestors walks history from rev in topological order, nearest first.
func (g *Git) Ancestors(ctx context.Context, rev Revision) ([]Revision, error) {
	if rev == "" {
		return nil, nil
	}
	out, err := g.gitCmd(ctx, "rev-list", "--topo-order", rev)
	if err != nil {
		return nil, err
	}
	revs := strings.Fields(out)
	if len(revs) > 0 {
		revs = revs[1:]
	}
	return revs, nil
}

// ReadFile reads path from the working copy when rev is empty, otherwise
// from the tree of rev.
func (g *Git) ReadFile(ctx context.Context, rev Revision, path string) ([]byte, error) {
	rel, err := relTo(g.root, path)
	if err != nil {
		return nil, err
	}
	if rev == "" {
		return os.ReadFile(filepath.Join(g.root, filepath.FromSlash(rel)))
	}
	listed, err := g.gitCmd(ctx, "ls-tree", "--name-only", rev, "--", rel)
	if err != nil {
		return nil, err
	}
	if listed == "" {
		return nil, fmt.Errorf("read %s at %s: %w", rel, rev, os.ErrNotExist)
	}
	return g.run(ctx, "show", rev+":"+rel)
}

// UserID returns "Name <email>" from the git configuration.
func (g *Git) UserID(ctx context.Context) (string, error) {
	name, _ := g.gitCmd(ctx, "config", "user.name")
	email, _ := g.gitCmd(ctx, "config", "user.email")
	switch {
	case name != "" && email != "":
		return fmt.Sprintf("%s <%s>", name, email), nil
	case name != "":
		return name, nil
	case email != "":
		return email, nil
	}
	return NewNone(g.root).UserID(ctx)
}

// IsDirty reports whether the working tree under path has uncommitted changes.
func (g *Git) IsDirty(ctx context.Context, path string) (bool, error) {
	rel, err := relTo(g.root, path)
	if err != nil {
		return false, err
	}
	out, err := g.gitCmd(ctx, "status", "--porcelain", "--", rel)
	if err != nil {
		return false, err
	}
	return out != "", nil
}
