// Package identity generates entity ids and keeps the per-bugdir index of
// uuids and alt-ids.
package identity

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/joescharf/be/internal/schema"
)

var (
	// ErrNotFound means no uuid, alt-id or prefix matched.
	ErrNotFound = errors.New("not found")
	// ErrAmbiguous means a prefix matched more than one uuid.
	ErrAmbiguous = errors.New("ambiguous id")
)

// reserved names cannot be used as ids because they collide with files in
// the bugdir layout.
var reserved = []string{"settings", "comments", "conflicts", "version", "index.db", schema.CommentRootID}

// NewUUID returns a random version 4 UUID.
func NewUUID() string {
	return uuid.NewString()
}

// Validate checks that id can name an entity directory or file.
func Validate(id string) error {
	switch {
	case id == "":
		return errors.New("id must not be empty")
	case strings.ContainsAny(id, "/\\\n\r\t ") || id == "." || id == "..":
		return fmt.Errorf("id %q contains path or whitespace characters", id)
	case slices.Contains(reserved, id):
		return fmt.Errorf("id %q is reserved", id)
	}
	return nil
}

// DuplicateIDError reports a uuid registered twice, or an alt-id already
// bound to a different uuid.
type DuplicateIDError struct {
	Kind     string
	ID       string
	Existing string
	New      string
}

func (e *DuplicateIDError) Error() string {
	if e.Kind == "uuid" {
		return fmt.Sprintf("duplicate uuid %s", e.ID)
	}
	return fmt.Sprintf("duplicate %s %q: already maps to %s, not %s", e.Kind, e.ID, e.Existing, e.New)
}

// Registry indexes the uuids and alt-ids of one scope.
type Registry struct {
	uuids map[string]bool
	alt   map[string]string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{uuids: make(map[string]bool), alt: make(map[string]string)}
}

// RegisterUUID adds id, failing if it is already present.
func (r *Registry) RegisterUUID(id string) error {
	if err := Validate(id); err != nil {
		return err
	}
	if r.uuids[id] {
		return &DuplicateIDError{Kind: "uuid", ID: id, Existing: id, New: id}
	}
	r.uuids[id] = true
	return nil
}

// RegisterAltID binds altID to target. Binding the same pair twice is a
// no-op; binding altID to a different uuid fails.
func (r *Registry) RegisterAltID(altID, target string) error {
	if altID == "" {
		return nil
	}
	if existing, ok := r.alt[altID]; ok && existing != target {
		return &DuplicateIDError{Kind: "alt-id", ID: altID, Existing: existing, New: target}
	}
	r.alt[altID] = target
	return nil
}

// Resolve maps a user-supplied id to a uuid: an exact uuid first, then an
// alt-id, then a unique uuid prefix.
func (r *Registry) Resolve(id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("resolve %q: %w", id, ErrNotFound)
	}
	if r.uuids[id] {
		return id, nil
	}
	if target, ok := r.alt[id]; ok {
		return target, nil
	}
	var matches []string
	for u := range r.uuids {
		if strings.HasPrefix(u, id) {
			matches = append(matches, u)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("resolve %q: %w", id, ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		slices.Sort(matches)
		return "", fmt.Errorf("resolve %q matches %s: %w", id, strings.Join(matches, ", "), ErrAmbiguous)
	}
}

// ShortID returns the shortest prefix of id, at least minLen characters long,
// that no other registered uuid shares.
func (r *Registry) ShortID(id string, minLen int) string {
	for n := minLen; n < len(id); n++ {
		prefix := id[:n]
		unique := true
		for u := range r.uuids {
			if u != id && strings.HasPrefix(u, prefix) {
				unique = false
				break
			}
		}
		if unique {
			return prefix
		}
	}
	return id
}
