// Package importer converts bug records exported from another tracker into
// bugdir entities. The foreign ids are kept as comment alt-ids so a second
// import of the same file is recognized.
package importer

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/joescharf/be/internal/entity"
	"github.com/joescharf/be/internal/identity"
	"github.com/joescharf/be/internal/models"
	"github.com/joescharf/be/internal/schema"
)

// File is the top level of an import document.
type File struct {
	Bugs []Record `yaml:"bugs" validate:"dive"`
}

// Record is one foreign bug.
type Record struct {
	ID           string          `yaml:"id" validate:"required"`
	Summary      string          `yaml:"summary" validate:"required"`
	Description  string          `yaml:"description"`
	Severity     string          `yaml:"severity"`
	Status       string          `yaml:"status"`
	Assigned     string          `yaml:"assigned"`
	Reporter     string          `yaml:"reporter"`
	Creator      string          `yaml:"creator"`
	Created      string          `yaml:"created"`
	ExtraStrings []string        `yaml:"extra_strings"`
	Comments     []CommentRecord `yaml:"comments" validate:"dive"`
}

// CommentRecord is one foreign comment. ReplyTo names another comment of
// the same record by its foreign id.
type CommentRecord struct {
	ID          string `yaml:"id" validate:"required"`
	Author      string `yaml:"author"`
	Date        string `yaml:"date"`
	ContentType string `yaml:"content_type" validate:"omitempty,mediatype"`
	ReplyTo     string `yaml:"reply_to"`
	Body        string `yaml:"body"`
}

// Parse decodes an import document strictly: unknown keys are errors.
func Parse(r io.Reader) (*File, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read import: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var f File
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode import: %w", err)
	}
	if err := schema.Struct(&f); err != nil {
		return nil, fmt.Errorf("validate import: %w", err)
	}
	return &f, nil
}

// Options supplies ids and time for converted entities.
type Options struct {
	Now   func() time.Time
	NewID func() string
	// Known reports whether a foreign id was already imported.
	Known func(altID string) bool
}

// RecordError ties a conversion failure to its foreign id.
type RecordError struct {
	ID  string
	Err error
}

func (e *RecordError) Error() string { return fmt.Sprintf("record %s: %v", e.ID, e.Err) }
func (e *RecordError) Unwrap() error { return e.Err }

// Result lists converted bugs, skipped foreign ids and per-record failures.
type Result struct {
	Bugs    []*models.Bug
	Skipped []string
	Errors  []error
}

// Convert turns every record into a bug validated against dir. A failing
// record is reported and the rest are still converted.
func Convert(f *File, dir schema.AllowedSets, opts Options) *Result {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = identity.NewUUID
	}
	res := &Result{}
	seen := make(map[string]bool)
	claimed := make(map[string]string)
	for _, rec := range f.Bugs {
		if seen[rec.ID] || (opts.Known != nil && opts.Known(rec.ID)) {
			res.Skipped = append(res.Skipped, rec.ID)
			continue
		}
		seen[rec.ID] = true
		b, err := convert(rec, dir, opts)
		if err == nil {
			err = claim(claimed, rec, opts.Known)
		}
		if err != nil {
			res.Errors = append(res.Errors, &RecordError{ID: rec.ID, Err: err})
			continue
		}
		res.Bugs = append(res.Bugs, b)
	}
	return res
}

func convert(rec Record, dir schema.AllowedSets, opts Options) (*models.Bug, error) {
	created := opts.Now()
	if rec.Created != "" {
		t, err := parseTime(rec.Created)
		if err != nil {
			return nil, &schema.Error{Entity: "bug", ID: rec.ID, Field: "created", Value: rec.Created, Err: err}
		}
		created = t
	}
	b := models.NewBug(opts.NewID(), created)
	set := func(name string, dst *string, v string) {
		if v != "" {
			*dst = v
			b.MarkExplicit(name)
		}
	}
	set("summary", &b.Summary, rec.Summary)
	set("severity", &b.Severity, rec.Severity)
	set("status", &b.Status, rec.Status)
	set("assigned", &b.Assigned, rec.Assigned)
	set("reporter", &b.Reporter, rec.Reporter)
	set("creator", &b.Creator, rec.Creator)
	if len(rec.ExtraStrings) > 0 {
		b.ExtraStrings = rec.ExtraStrings
		b.MarkExplicit("extra_strings")
	}
	if err := entity.CheckBug(b, dir); err != nil {
		return nil, err
	}

	// The description comment carries the bug's foreign id.
	desc := models.NewComment(opts.NewID(), "", created)
	desc.AltID = rec.ID
	desc.Author = firstNonEmpty(rec.Reporter, rec.Creator)
	desc.MarkExplicit("Alt-Id")
	if desc.Author != "" {
		desc.MarkExplicit("Author")
	}
	if rec.Description != "" {
		desc.Body = []byte(rec.Description)
	}
	b.AddComment(desc)

	ids := make(map[string]string, len(rec.Comments))
	for _, cr := range rec.Comments {
		if _, dup := ids[cr.ID]; dup || cr.ID == rec.ID {
			return nil, &identity.DuplicateIDError{Kind: "alt-id", ID: cr.ID, Existing: rec.ID, New: cr.ID}
		}
		ids[cr.ID] = opts.NewID()
	}
	for _, cr := range rec.Comments {
		date := created
		if cr.Date != "" {
			t, err := parseTime(cr.Date)
			if err != nil {
				return nil, &schema.Error{Entity: "comment", ID: cr.ID, Field: "date", Value: cr.Date, Err: err}
			}
			date = t
		}
		parent := ""
		if cr.ReplyTo != "" {
			p, ok := ids[cr.ReplyTo]
			if !ok {
				return nil, fmt.Errorf("comment %s replies to unknown comment %s", cr.ID, cr.ReplyTo)
			}
			parent = p
		}
		c := models.NewComment(ids[cr.ID], parent, date)
		c.AltID = cr.ID
		c.MarkExplicit("Alt-Id")
		if cr.Author != "" {
			c.Author = cr.Author
			c.MarkExplicit("Author")
		}
		if cr.ContentType != "" {
			c.ContentType = cr.ContentType
			c.MarkExplicit("Content-type")
		}
		if cr.Body != "" {
			c.Body = []byte(cr.Body)
		}
		b.AddComment(c)
	}
	return b, nil
}

// claim binds every foreign id of rec to it. An id already bound to another
// record of the file, or carried by a comment already in the bugdir, fails.
func claim(claimed map[string]string, rec Record, known func(string) bool) error {
	ids := []string{rec.ID}
	for _, cr := range rec.Comments {
		ids = append(ids, cr.ID)
	}
	for i, id := range ids {
		if owner, ok := claimed[id]; ok {
			return &identity.DuplicateIDError{Kind: "alt-id", ID: id, Existing: owner, New: rec.ID}
		}
		if i > 0 && known != nil && known(id) {
			return &identity.DuplicateIDError{Kind: "alt-id", ID: id, Existing: "bugdir", New: rec.ID}
		}
	}
	for _, id := range ids {
		claimed[id] = rec.ID
	}
	return nil
}

// parseTime accepts RFC 3339 as well as the bugdir time format.
func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return schema.ParseTime(s)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
