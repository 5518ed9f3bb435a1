// Package store keeps a bug directory on disk: one settings block for the
// bugdir, one directory per bug, one file per comment. Entities are stamped
// with the VCS revision seen at load and reconciled before a stale write.
package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/be/internal/entity"
	"github.com/joescharf/be/internal/models"
	"github.com/joescharf/be/internal/thread"
	"github.com/joescharf/be/internal/vcs"
)

const (
	// DefaultDir is the bugdir directory name inside a project.
	DefaultDir = ".be"
	// FormatVersion is written to the version file on init.
	FormatVersion = "1"

	settingsFile  = "settings"
	versionFile   = "version"
	ignoreFile    = ".gitignore"
	commentsDir   = "comments"
	conflictsDir  = "conflicts"
	indexFile     = "index.db"
	filePerms     = 0o644
	dirPerms      = 0o755
	shortIDLength = 3
)

// ErrNotFound is returned when a bug, comment or conflict record is missing.
var ErrNotFound = errors.New("not found")

// Repo is one bug directory bound to a VCS adapter.
type Repo struct {
	root  string
	vcs   vcs.Adapter
	index *Index
	now   func() time.Time
	user  string

	entropy io.Reader
}

// Option configures a Repo.
type Option func(*Repo)

// WithIndex attaches a SQLite index cache that is refreshed on every write.
func WithIndex(ix *Index) Option { return func(r *Repo) { r.index = ix } }

// WithClock overrides the time source used for new entities.
func WithClock(now func() time.Time) Option { return func(r *Repo) { r.now = now } }

// WithUser sets the identity recorded as creator and author. When empty the
// VCS user id is used.
func WithUser(user string) Option { return func(r *Repo) { r.user = user } }

func newRepo(root string, adapter vcs.Adapter, opts []Option) *Repo {
	r := &Repo{root: root, vcs: adapter, now: time.Now}
	r.entropy = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
	for _, o := range opts {
		o(r)
	}
	return r
}

// Init creates a bugdir at root with the stock settings and stages it.
func Init(ctx context.Context, root string, adapter vcs.Adapter, opts ...Option) (*Repo, error) {
	if _, err := os.Stat(filepath.Join(root, versionFile)); err == nil {
		return nil, fmt.Errorf("bugdir already initialized at %s", root)
	}
	if err := os.MkdirAll(root, dirPerms); err != nil {
		return nil, fmt.Errorf("create bugdir: %w", err)
	}
	r := newRepo(root, adapter, opts)
	if err := writeFile(r.path(versionFile), []byte(FormatVersion+"\n")); err != nil {
		return nil, err
	}
	d := models.NewBugdir()
	if err := writeFile(r.path(settingsFile), formatBlock(entity.SaveBugdir(d))); err != nil {
		return nil, err
	}
	// The index and its SQLite side files stay out of version control.
	if err := writeFile(r.path(ignoreFile), []byte(indexFile+"*\n")); err != nil {
		return nil, err
	}
	if err := r.stage(ctx, r.path(versionFile), r.path(settingsFile), r.path(ignoreFile)); err != nil {
		return nil, err
	}
	return r, nil
}

// Open binds to an existing bugdir at root.
func Open(root string, adapter vcs.Adapter, opts ...Option) (*Repo, error) {
	data, err := os.ReadFile(filepath.Join(root, versionFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("no bugdir at %s (run `be init`): %w", root, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read bugdir version: %w", err)
	}
	if v := strings.TrimSpace(string(data)); v != FormatVersion {
		return nil, fmt.Errorf("unsupported bugdir format %q (want %q)", v, FormatVersion)
	}
	return newRepo(root, adapter, opts), nil
}

// Root returns the bugdir directory.
func (r *Repo) Root() string { return r.root }

// VCS returns the adapter.
func (r *Repo) VCS() vcs.Adapter { return r.vcs }

// Index returns the attached index cache, or nil.
func (r *Repo) Index() *Index { return r.index }

// IndexPath returns the default index location inside the bugdir.
func IndexPath(root string) string { return filepath.Join(root, indexFile) }

// User returns the identity recorded on new entities.
func (r *Repo) User(ctx context.Context) string {
	if r.user != "" {
		return r.user
	}
	id, err := r.vcs.UserID(ctx)
	if err != nil {
		return ""
	}
	return id
}

func (r *Repo) path(elem ...string) string {
	return filepath.Join(append([]string{r.root}, elem...)...)
}

func (r *Repo) bugDir(id string) string           { return r.path(id) }
func (r *Repo) bugSettings(id string) string      { return r.path(id, settingsFile) }
func (r *Repo) commentDir(bug string) string      { return r.path(bug, commentsDir) }
func (r *Repo) commentPath(bug, id string) string { return r.path(bug, commentsDir, id) }
func (r *Repo) conflictPath(id string) string     { return r.path(conflictsDir, id) }

func (r *Repo) revision(ctx context.Context) string {
	rev, _ := r.vcs.CurrentRevision(ctx)
	return rev
}

func (r *Repo) stage(ctx context.Context, paths ...string) error {
	for _, p := range paths {
		if err := r.vcs.Stage(ctx, p); err != nil {
			return fmt.Errorf("stage %s: %w", p, err)
		}
	}
	return nil
}

// LoadReport collects per-entity failures from a load. One entity's failure
// never stops its siblings from loading.
type LoadReport struct {
	Errors []error
}

func (r *LoadReport) add(err error) {
	if err != nil {
		r.Errors = append(r.Errors, err)
	}
}

// OK reports whether every entity loaded.
func (r *LoadReport) OK() bool { return r == nil || len(r.Errors) == 0 }

// Err joins the collected errors, or returns nil.
func (r *LoadReport) Err() error {
	if r == nil {
		return nil
	}
	return errors.Join(r.Errors...)
}

// LoadBugdir reads the bugdir settings only.
func (r *Repo) LoadBugdir(ctx context.Context) (*models.Bugdir, error) {
	rev, err := r.vcs.CurrentRevision(ctx)
	if err != nil {
		return nil, err
	}
	d, err := r.readBugdir()
	if err != nil {
		return nil, err
	}
	d.Revision = rev
	d.Snapshot()
	return d, nil
}

func (r *Repo) readBugdir() (*models.Bugdir, error) {
	data, err := os.ReadFile(r.path(settingsFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read bugdir settings: %w", err)
	}
	blk, err := entity.ParseBlock("bugdir", settingsFile, data)
	if err != nil {
		return nil, err
	}
	return entity.LoadBugdir(blk)
}

// Load reads the bugdir with every bug and comment. Failures of single bugs
// or comments are collected in the report; only an unreadable bugdir
// settings block is returned as an error.
func (r *Repo) Load(ctx context.Context) (*models.Bugdir, *LoadReport, error) {
	d, err := r.LoadBugdir(ctx)
	if err != nil {
		return nil, nil, err
	}
	report := &LoadReport{}
	ids, err := r.BugIDs()
	if err != nil {
		return nil, nil, err
	}
	for _, id := range ids {
		b, err := r.loadBug(d, id, report)
		if err != nil {
			report.add(err)
			continue
		}
		if _, err := thread.BuildBug(b); err != nil {
			report.add(err)
		}
		d.Bugs[id] = b
	}
	_, errs := NewCatalog(d)
	for _, err := range errs {
		report.add(err)
	}
	return d, report, nil
}

// BugIDs lists the bug directories, sorted.
func (r *Repo) BugIDs() ([]string, error) {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		return nil, fmt.Errorf("list bugs: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if !e.IsDir() || e.Name() == conflictsDir || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		ids = append(ids, e.Name())
	}
	slices.Sort(ids)
	return ids, nil
}

// LoadBug reads one bug with its comments. Malformed comments are skipped
// and reported.
func (r *Repo) LoadBug(ctx context.Context, d *models.Bugdir, id string) (*models.Bug, *LoadReport, error) {
	report := &LoadReport{}
	b, err := r.loadBug(d, id, report)
	if err != nil {
		return nil, nil, err
	}
	b.Revision = r.revision(ctx)
	b.Snapshot()
	return b, report, nil
}

func (r *Repo) loadBug(d *models.Bugdir, id string, report *LoadReport) (*models.Bug, error) {
	data, err := os.ReadFile(r.bugSettings(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("bug %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read bug %s: %w", id, err)
	}
	blk, err := entity.ParseBlock("bug", id, data)
	if err != nil {
		return nil, err
	}
	b, err := entity.LoadBug(id, blk, d.Sets())
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(r.commentDir(id))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("list comments of %s: %w", id, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		raw, err := os.ReadFile(r.commentPath(id, e.Name()))
		if err != nil {
			report.add(fmt.Errorf("read comment %s/%s: %w", id, e.Name(), err))
			continue
		}
		c, err := entity.LoadComment(e.Name(), raw)
		if err != nil {
			report.add(err)
			continue
		}
		b.AddComment(c)
	}
	b.Revision = d.Revision
	b.Snapshot()
	return b, nil
}
