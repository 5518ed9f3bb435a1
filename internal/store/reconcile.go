package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/joescharf/be/internal/entity"
	"github.com/joescharf/be/internal/merge"
	"github.com/joescharf/be/internal/models"
	"github.com/joescharf/be/internal/schema"
	"github.com/joescharf/be/internal/vcs"
)

// FileKind tells which entity a bugdir file holds.
type FileKind int

const (
	KindOther FileKind = iota
	KindBugdir
	KindBug
	KindComment
)

func (k FileKind) String() string {
	switch k {
	case KindBugdir:
		return "bugdir"
	case KindBug:
		return "bug"
	case KindComment:
		return "comment"
	default:
		return "other"
	}
}

// Classify maps a path relative to the bugdir root to its entity kind, the
// owning bug and the comment id.
func Classify(rel string) (kind FileKind, bug, comment string) {
	parts := strings.Split(filepath.ToSlash(filepath.Clean(rel)), "/")
	switch {
	case len(parts) == 1 && parts[0] == settingsFile:
		return KindBugdir, "", ""
	case len(parts) == 2 && parts[1] == settingsFile && parts[0] != conflictsDir:
		return KindBug, parts[0], ""
	case len(parts) == 3 && parts[1] == commentsDir && parts[0] != conflictsDir:
		return KindComment, parts[0], parts[2]
	}
	return KindOther, "", ""
}

// MergeFile merges three versions of one bugdir file. A nil version means
// the file is absent on that side. The result is nil when the file should
// be removed. Conflicts come back as *merge.ConflictError alongside the
// provisional result. dir supplies the allowed sets bug files are decoded
// against.
func MergeFile(kind FileKind, bug, comment string, base, local, remote []byte, dir schema.AllowedSets) ([]byte, error) {
	switch {
	case bytes.Equal(local, remote) && (local == nil) == (remote == nil):
		return local, nil
	case local == nil && base == nil:
		return remote, nil
	case remote == nil && base == nil:
		return local, nil
	case local == nil:
		// Deleted locally. Keep a remote edit rather than lose it.
		if bytes.Equal(base, remote) {
			return nil, nil
		}
		return remote, nil
	case remote == nil:
		if bytes.Equal(base, local) {
			return nil, nil
		}
		return local, nil
	case base != nil && bytes.Equal(base, local):
		return remote, nil
	case base != nil && bytes.Equal(base, remote):
		return local, nil
	}

	switch kind {
	case KindBugdir:
		var b *models.Bugdir
		if base != nil {
			var err error
			if b, err = decodeBugdir(base); err != nil {
				return nil, err
			}
		}
		l, err := decodeBugdir(local)
		if err != nil {
			return nil, err
		}
		r, err := decodeBugdir(remote)
		if err != nil {
			return nil, err
		}
		out, err := merge.Bugdir(b, l, r)
		if out == nil {
			return nil, err
		}
		return formatBlock(entity.SaveBugdir(out)), err
	case KindBug:
		var b *models.Bug
		if base != nil {
			var err error
			if b, err = decodeBug(bug, base, dir); err != nil {
				return nil, err
			}
		}
		l, err := decodeBug(bug, local, dir)
		if err != nil {
			return nil, err
		}
		r, err := decodeBug(bug, remote, dir)
		if err != nil {
			return nil, err
		}
		out, err := merge.Bug(b, l, r)
		if out == nil {
			return nil, err
		}
		return formatBlock(entity.SaveBug(out)), err
	case KindComment:
		var b *models.Comment
		if base != nil {
			var err error
			if b, err = entity.LoadComment(comment, base); err != nil {
				return nil, err
			}
		}
		l, err := entity.LoadComment(comment, local)
		if err != nil {
			return nil, err
		}
		r, err := entity.LoadComment(comment, remote)
		if err != nil {
			return nil, err
		}
		out, err := merge.Comment(b, l, r)
		if out == nil {
			return nil, err
		}
		return entity.SaveComment(out), err
	}
	return nil, fmt.Errorf("merge %s file: both sides changed", kind)
}

func decodeBugdir(data []byte) (*models.Bugdir, error) {
	blk, err := entity.ParseBlock("bugdir", settingsFile, data)
	if err != nil {
		return nil, err
	}
	return entity.LoadBugdir(blk)
}

func decodeBug(id string, data []byte, dir schema.AllowedSets) (*models.Bug, error) {
	blk, err := entity.ParseBlock("bug", id, data)
	if err != nil {
		return nil, err
	}
	return entity.LoadBug(id, blk, dir)
}

// MergeDriver merges one file the way a VCS merge driver is asked to: rel
// is the path relative to the bugdir root and base, local and remote are
// the three versions. Conflicts are persisted as records and returned as
// *merge.ConflictError with the provisional content. The VCS runs the driver
// while it holds its index, so records are not staged here; see
// StageConflicts.
func (r *Repo) MergeDriver(ctx context.Context, d *models.Bugdir, rel string, base, local, remote []byte) ([]byte, error) {
	kind, bug, comment := Classify(rel)
	out, err := MergeFile(kind, bug, comment, base, local, remote, d.Sets())
	var ce *merge.ConflictError
	if errors.As(err, &ce) {
		if _, rerr := r.recordConflicts(ctx, bug, ce.Conflicts, false); rerr != nil {
			return nil, rerr
		}
	}
	if r.index != nil {
		if ierr := r.index.Invalidate(ctx); ierr != nil {
			return nil, ierr
		}
	}
	return out, err
}

// ReconcileResult summarizes a revision-level reconcile.
type ReconcileResult struct {
	Base      vcs.Revision
	Merged    []string
	Removed   []string
	Conflicts []*ConflictRecord
	// Errors holds files that could not be merged. They are left untouched.
	Errors []error
}

// Reconcile merges every bugdir file changed between base and remote into
// the working copy, reading the local side from local (the working copy
// when empty). An empty base is computed with vcs.MergeBase. A file that
// fails to decode or merge is reported in Errors and skipped, and field
// conflicts are recorded; the reconcile goes on with the other files.
// VCS and write failures abort it. The index is marked stale afterwards.
func (r *Repo) Reconcile(ctx context.Context, d *models.Bugdir, base, local, remote vcs.Revision) (*ReconcileResult, error) {
	if remote == "" {
		return nil, errors.New("reconcile: remote revision is required")
	}
	if base == "" {
		head := local
		if head == "" {
			head = r.revision(ctx)
		}
		var err error
		if base, err = vcs.MergeBase(ctx, r.vcs, head, remote); err != nil {
			return nil, err
		}
	}
	changed, err := r.vcs.Diff(ctx, base, remote)
	if err != nil {
		return nil, err
	}

	res := &ReconcileResult{Base: base}
	type file struct {
		rel, abs string
		kind     FileKind
	}
	var files []file
	for _, p := range changed {
		abs := filepath.Join(r.vcs.Root(), filepath.FromSlash(p))
		rel, err := filepath.Rel(r.root, abs)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		if rel == indexFile {
			continue
		}
		kind, _, _ := Classify(rel)
		files = append(files, file{rel: rel, abs: abs, kind: kind})
	}
	// Settings first so bugs decode against the merged allowed sets.
	slices.SortStableFunc(files, func(a, b file) int {
		return boolToInt(a.kind != KindBugdir) - boolToInt(b.kind != KindBugdir)
	})

	sets := d.Sets()
	for _, f := range files {
		var bv []byte
		if base != "" {
			if bv, err = r.readAt(ctx, base, f.abs); err != nil {
				return nil, err
			}
		}
		lv, err := r.readAt(ctx, local, f.abs)
		if err != nil {
			return nil, err
		}
		rv, err := r.readAt(ctx, remote, f.abs)
		if err != nil {
			return nil, err
		}
		kind, bug, comment := Classify(f.rel)
		out, err := MergeFile(kind, bug, comment, bv, lv, rv, sets)
		var ce *merge.ConflictError
		switch {
		case errors.As(err, &ce):
			recs, rerr := r.recordConflicts(ctx, bug, ce.Conflicts, true)
			if rerr != nil {
				return nil, rerr
			}
			res.Conflicts = append(res.Conflicts, recs...)
		case err != nil:
			res.Errors = append(res.Errors, fmt.Errorf("reconcile %s: %w", f.rel, err))
			continue
		}

		if out == nil {
			if err := os.Remove(f.abs); err != nil && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("remove %s: %w", f.rel, err)
			}
			res.Removed = append(res.Removed, f.rel)
		} else {
			if _, err := writeIfChanged(f.abs, out); err != nil {
				return nil, err
			}
			res.Merged = append(res.Merged, f.rel)
		}
		if err := r.stage(ctx, f.abs); err != nil {
			return nil, err
		}
		if kind == KindBugdir && out != nil {
			if md, err := decodeBugdir(out); err == nil {
				sets = md.Sets()
			}
		}
	}
	if r.index != nil {
		if err := r.index.Invalidate(ctx); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (r *Repo) readAt(ctx context.Context, rev vcs.Revision, path string) ([]byte, error) {
	data, err := r.vcs.ReadFile(ctx, rev, path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}
