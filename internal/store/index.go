package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/joescharf/be/internal/models"
	"github.com/joescharf/be/internal/schema"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Index is a disposable SQLite cache of bug summaries and alt-ids. The
// files under the bugdir stay authoritative; the index is rebuilt by Sync.
type Index struct {
	db *sql.DB
}

// IndexedBug is one row of the bugs table.
type IndexedBug struct {
	UUID     string
	Summary  string
	Severity string
	Status   string
	Active   bool
	Assigned string
	Creator  string
	Reporter string
	Time     time.Time
	Comments int
}

// Summarize builds the index row for b.
func Summarize(b *models.Bug, sets schema.AllowedSets) IndexedBug {
	return IndexedBug{
		UUID:     b.UUID,
		Summary:  b.Summary,
		Severity: b.Severity,
		Status:   b.Status,
		Active:   sets.IsActive(b.Status),
		Assigned: b.Assigned,
		Creator:  b.Creator,
		Reporter: b.Reporter,
		Time:     b.Time,
		Comments: len(b.Comments),
	}
}

// BugFilter narrows ListBugs. Zero values match everything.
type BugFilter struct {
	Status   []string
	Severity []string
	Assigned string
	Active   *bool
}

// Match applies f to one row in memory.
func (f BugFilter) Match(b IndexedBug) bool {
	if len(f.Status) > 0 && !slices.Contains(f.Status, b.Status) {
		return false
	}
	if len(f.Severity) > 0 && !slices.Contains(f.Severity, b.Severity) {
		return false
	}
	if f.Assigned != "" && f.Assigned != b.Assigned {
		return false
	}
	if f.Active != nil && *f.Active != b.Active {
		return false
	}
	return true
}

// NewIndex opens (or creates) the index database at dbPath.
func NewIndex(dbPath string) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), dirPerms); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	// SQLite only supports one concurrent writer.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", strings.ToLower(pragma), err)
		}
	}

	return &Index{db: db}, nil
}

// boolToInt converts a bool to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Migrate runs all embedded SQL migration files in order.
func (ix *Index) Migrate(ctx context.Context) error {
	_, err := ix.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		var count int
		err := ix.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := ix.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := ix.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (ix *Index) Close() error {
	return ix.db.Close()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertBug(ctx context.Context, tx execer, b *models.Bug, sets schema.AllowedSets) error {
	row := Summarize(b, sets)
	_, err := tx.ExecContext(ctx,
		`INSERT INTO bugs (uuid, summary, severity, status, active, assigned, creator, reporter, created_at, comments)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(uuid) DO UPDATE SET summary=excluded.summary, severity=excluded.severity, status=excluded.status,
			active=excluded.active, assigned=excluded.assigned, creator=excluded.creator, reporter=excluded.reporter,
			created_at=excluded.created_at, comments=excluded.comments`,
		row.UUID, row.Summary, row.Severity, row.Status, boolToInt(row.Active), row.Assigned, row.Creator, row.Reporter,
		row.Time.Unix(), row.Comments,
	)
	if err != nil {
		return fmt.Errorf("index bug %s: %w", b.UUID, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM alt_ids WHERE bug_uuid = ?", b.UUID); err != nil {
		return fmt.Errorf("clear alt ids of %s: %w", b.UUID, err)
	}
	for _, id := range slices.Sorted(maps.Keys(b.Comments)) {
		c := b.Comments[id]
		if c.AltID == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT OR REPLACE INTO alt_ids (alt_id, bug_uuid, comment_uuid) VALUES (?, ?, ?)",
			c.AltID, b.UUID, c.UUID,
		); err != nil {
			return fmt.Errorf("index alt id %s: %w", c.AltID, err)
		}
	}
	return nil
}

// UpsertBug writes one bug row and its comments' alt-ids.
func (ix *Index) UpsertBug(ctx context.Context, b *models.Bug, sets schema.AllowedSets) error {
	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := upsertBug(ctx, tx, b, sets); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// DeleteBug drops a bug row and its alt-ids.
func (ix *Index) DeleteBug(ctx context.Context, id string) error {
	if _, err := ix.db.ExecContext(ctx, "DELETE FROM alt_ids WHERE bug_uuid = ?", id); err != nil {
		return fmt.Errorf("unindex alt ids of %s: %w", id, err)
	}
	if _, err := ix.db.ExecContext(ctx, "DELETE FROM bugs WHERE uuid = ?", id); err != nil {
		return fmt.Errorf("unindex bug %s: %w", id, err)
	}
	return nil
}

// Sync replaces the whole index with the bugs of d and stamps it with
// d.Revision.
func (ix *Index) Sync(ctx context.Context, d *models.Bugdir) error {
	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM alt_ids"); err != nil {
		return fmt.Errorf("clear alt ids: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM bugs"); err != nil {
		return fmt.Errorf("clear bugs: %w", err)
	}
	for _, b := range d.SortedBugs() {
		if err := upsertBug(ctx, tx, b, d.SetsFor(b)); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO meta (key, value) VALUES ('revision', ?) ON CONFLICT(key) DO UPDATE SET value=excluded.value",
		d.Revision,
	); err != nil {
		return fmt.Errorf("stamp index revision: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Revision returns the revision stamped by the last Sync, or "".
func (ix *Index) Revision(ctx context.Context) (string, error) {
	var rev string
	err := ix.db.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = 'revision'").Scan(&rev)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read index revision: %w", err)
	}
	return rev, nil
}

// Invalidate drops the revision stamp so the next list rebuilds the index.
func (ix *Index) Invalidate(ctx context.Context) error {
	if _, err := ix.db.ExecContext(ctx, "DELETE FROM meta WHERE key = 'revision'"); err != nil {
		return fmt.Errorf("invalidate index: %w", err)
	}
	return nil
}

// ListBugs queries the bugs table, oldest first.
func (ix *Index) ListBugs(ctx context.Context, filter BugFilter) ([]IndexedBug, error) {
	query := `SELECT uuid, summary, severity, status, active, assigned, creator, reporter, created_at, comments FROM bugs`
	var conditions []string
	var args []any

	if len(filter.Status) > 0 {
		conditions = append(conditions, "status IN ("+placeholders(len(filter.Status))+")")
		for _, s := range filter.Status {
			args = append(args, s)
		}
	}
	if len(filter.Severity) > 0 {
		conditions = append(conditions, "severity IN ("+placeholders(len(filter.Severity))+")")
		for _, s := range filter.Severity {
			args = append(args, s)
		}
	}
	if filter.Assigned != "" {
		conditions = append(conditions, "assigned = ?")
		args = append(args, filter.Assigned)
	}
	if filter.Active != nil {
		conditions = append(conditions, "active = ?")
		args = append(args, boolToInt(*filter.Active))
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at, uuid"

	rows, err := ix.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list bugs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var bugs []IndexedBug
	for rows.Next() {
		var b IndexedBug
		var active int
		var created int64
		if err := rows.Scan(&b.UUID, &b.Summary, &b.Severity, &b.Status, &active,
			&b.Assigned, &b.Creator, &b.Reporter, &created, &b.Comments); err != nil {
			return nil, fmt.Errorf("scan bug: %w", err)
		}
		b.Active = active != 0
		b.Time = time.Unix(created, 0).UTC()
		bugs = append(bugs, b)
	}
	return bugs, rows.Err()
}

// LookupAltID returns the bug and comment carrying altID.
func (ix *Index) LookupAltID(ctx context.Context, altID string) (bug, comment string, err error) {
	err = ix.db.QueryRowContext(ctx, "SELECT bug_uuid, comment_uuid FROM alt_ids WHERE alt_id = ?", altID).Scan(&bug, &comment)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", fmt.Errorf("alt id %s: %w", altID, ErrNotFound)
	}
	if err != nil {
		return "", "", fmt.Errorf("lookup alt id %s: %w", altID, err)
	}
	return bug, comment, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
