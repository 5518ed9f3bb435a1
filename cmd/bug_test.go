package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/be/internal/models"
	"github.com/joescharf/be/internal/store"
)

// bugEnv prepares an isolated no-VCS bug directory and returns the
// buffer that captures standard output.
func bugEnv(t *testing.T) *bytes.Buffer {
	t.Helper()
	testEnv(t)
	project := t.TempDir()
	bugDir = filepath.Join(project, store.DefaultDir)
	viper.Set("vcs", "none")
	viper.Set("user", "Jane <jane@example.com>")
	viper.Set("index.path", filepath.Join(t.TempDir(), "index.db"))

	newSeverity, newAssigned, newReporter, newGuess = "", "", "", false
	listStatus, listSeverity, listAssigned, listAll = nil, nil, "", false
	commentFile, commentReplyTo, commentAuthor, commentContentType, commentAltID = "", "", "", "", ""
	reconcileBase, resolveTake = "", ""
	t.Cleanup(func() {
		_ = closeRepo()
		bugDir = ""
	})

	require.NoError(t, initRun())
	out := ui.Out.(*bytes.Buffer)
	out.Reset()
	return out
}

// onlyBug returns the single bug in the directory.
func onlyBug(t *testing.T) *models.Bug {
	t.Helper()
	r, err := getRepo()
	require.NoError(t, err)
	d, _, err := r.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, d.Bugs, 1)
	for _, b := range d.Bugs {
		return b
	}
	return nil
}

func TestInit_Twice(t *testing.T) {
	bugEnv(t)
	assert.Error(t, initRun())
}

func TestBugWorkflow(t *testing.T) {
	out := bugEnv(t)

	newSeverity = "serious"
	require.NoError(t, newRun("Crash on start"))
	assert.Contains(t, out.String(), "Created bug")
	b := onlyBug(t)
	assert.Equal(t, "serious", b.Severity)
	assert.Equal(t, "Jane <jane@example.com>", b.Reporter)

	out.Reset()
	require.NoError(t, listRun())
	assert.Contains(t, out.String(), "Crash on start")
	assert.Contains(t, out.String(), "serious")

	out.Reset()
	require.NoError(t, commentRun(b.UUID[:6], "Seen on arm64 too"))
	require.NoError(t, showRun(b.UUID))
	assert.Contains(t, out.String(), "Seen on arm64 too")
	assert.Contains(t, out.String(), "Jane <jane@example.com>")

	require.NoError(t, setFieldRun("status", "fixed", b.UUID))
	out.Reset()
	require.NoError(t, listRun())
	assert.Contains(t, out.String(), "No bugs found.", "fixed bugs are inactive")

	listAll = true
	out.Reset()
	require.NoError(t, listRun())
	assert.Contains(t, out.String(), "Crash on start")

	assert.Error(t, setFieldRun("status", "bogus", b.UUID))
	assert.Equal(t, "fixed", onlyBug(t).Status)

	require.NoError(t, removeRun(b.UUID))
	_, err := os.Stat(filepath.Join(bugDir, b.UUID))
	assert.True(t, os.IsNotExist(err))
}

func TestNew_GuessSeverity(t *testing.T) {
	bugEnv(t)
	newGuess = true
	require.NoError(t, newRun("Crash when opening settings"))
	assert.Equal(t, "critical", onlyBug(t).Severity)
}

func TestList_Filters(t *testing.T) {
	out := bugEnv(t)
	newSeverity = "minor"
	require.NoError(t, newRun("Typo in help"))
	newSeverity, newAssigned = "critical", "bob"
	require.NoError(t, newRun("Data loss"))

	listSeverity = []string{"critical"}
	out.Reset()
	require.NoError(t, listRun())
	assert.Contains(t, out.String(), "Data loss")
	assert.NotContains(t, out.String(), "Typo in help")

	listSeverity, listAssigned = nil, "nobody"
	out.Reset()
	require.NoError(t, listRun())
	assert.Contains(t, out.String(), "No bugs found.")
}

func TestComment_ReplyAndFile(t *testing.T) {
	bugEnv(t)
	require.NoError(t, newRun("Crash"))
	b := onlyBug(t)

	commentAltID = "ext-1"
	require.NoError(t, commentRun(b.UUID, "first"))
	commentAltID, commentReplyTo = "", "ext-1"
	require.NoError(t, commentRun(b.UUID, "second"))

	path := filepath.Join(t.TempDir(), "trace.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"frames": [1, 2, 3]}`), 0644))
	commentReplyTo, commentFile = "", path
	require.NoError(t, commentRun(b.UUID, ""))

	b = onlyBug(t)
	require.Len(t, b.Comments, 3)
	var first, second, file *models.Comment
	for _, c := range b.Comments {
		switch strings.TrimSpace(string(c.Body)) {
		case "first":
			first = c
		case "second":
			second = c
		default:
			file = c
		}
	}
	require.NotNil(t, first)
	require.NotNil(t, second)
	require.NotNil(t, file)
	assert.Equal(t, first.UUID, second.InReplyTo)
	assert.Equal(t, "application/json", file.ContentType)

	commentFile = path
	assert.Error(t, commentRun(b.UUID, "both"), "body and --file are exclusive")
}

func TestComment_DuplicateAltID(t *testing.T) {
	bugEnv(t)
	require.NoError(t, newRun("Crash"))
	require.NoError(t, newRun("Hang"))
	r, err := getRepo()
	require.NoError(t, err)
	d, _, err := r.Load(context.Background())
	require.NoError(t, err)
	bugs := d.SortedBugs()
	require.Len(t, bugs, 2)

	commentAltID = "ext-1"
	require.NoError(t, commentRun(bugs[0].UUID, "first"))
	assert.ErrorContains(t, commentRun(bugs[1].UUID, "second"), "duplicate alt-id")

	d, report, err := r.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, report.OK(), "%v", report.Err())
	assert.Empty(t, d.Bugs[bugs[1].UUID].Comments)
}

func TestMerge_Duplicate(t *testing.T) {
	out := bugEnv(t)
	require.NoError(t, newRun("Crash"))
	require.NoError(t, newRun("Crash again"))

	r, err := getRepo()
	require.NoError(t, err)
	d, _, err := r.Load(context.Background())
	require.NoError(t, err)
	bugs := d.SortedBugs()
	require.Len(t, bugs, 2)
	require.NoError(t, commentRun(bugs[1].UUID, "details"))

	out.Reset()
	require.NoError(t, mergeRun(bugs[0].UUID, bugs[1].UUID))
	assert.Contains(t, out.String(), "Merged")

	d, _, err = r.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "closed", d.Bugs[bugs[1].UUID].Status)
	assert.Len(t, d.Bugs[bugs[0].UUID].Comments, 2, "merge note and copied comment")
}

func TestConflicts_Empty(t *testing.T) {
	out := bugEnv(t)
	require.NoError(t, conflictsRun())
	assert.Contains(t, out.String(), "No unresolved conflicts.")

	resolveTake = "mine"
	assert.ErrorContains(t, resolveRun("01ABC"), "--take")
}

func TestImport(t *testing.T) {
	out := bugEnv(t)
	path := filepath.Join(t.TempDir(), "export.yaml")
	doc := `bugs:
  - id: GH-1
    summary: Imported crash
    severity: serious
    comments:
      - id: GH-1-c1
        author: John
        body: Me too
  - id: GH-2
    summary: Imported typo
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	require.NoError(t, importRun(path))
	assert.Contains(t, out.String(), "Imported")

	r, err := getRepo()
	require.NoError(t, err)
	d, _, err := r.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, d.Bugs, 2)

	b, _, err := findBug(d, "GH-1")
	require.NoError(t, err)
	assert.Equal(t, "Imported crash", b.Summary)
	assert.Len(t, b.Comments, 2)

	require.NoError(t, importRun(path))
	d, _, err = r.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, d.Bugs, 2, "second import skips known records")
}

func TestCommit_NoHistory(t *testing.T) {
	bugEnv(t)
	require.NoError(t, commitRun("nothing to record"))
	assert.Contains(t, ui.ErrOut.(*bytes.Buffer).String(), "keeps no history")
	assert.Error(t, commitRun("  "))
}

func TestDryRun_NewWritesNothing(t *testing.T) {
	bugEnv(t)
	dryRun = true
	ui.DryRun = true
	t.Cleanup(func() { dryRun = false })

	require.NoError(t, newRun("Never saved"))
	r, err := getRepo()
	require.NoError(t, err)
	ids, err := r.BugIDs()
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestReadDriverFile(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty")
	require.NoError(t, os.WriteFile(empty, nil, 0644))
	data, err := readDriverFile(empty)
	require.NoError(t, err)
	assert.Nil(t, data, "empty input means absent")

	full := filepath.Join(dir, "full")
	require.NoError(t, os.WriteFile(full, []byte("x"), 0644))
	data, err = readDriverFile(full)
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), data)
}

func TestConflictValue(t *testing.T) {
	assert.Equal(t, "(unset)", conflictValue(nil))
	assert.Equal(t, "a, b", conflictValue([]string{"a", "b"}))
	assert.Equal(t, "line one ...", conflictValue([]string{"line one\nline two"}))
	assert.Len(t, conflictValue([]string{strings.Repeat("x", 80)}), 40)
}
