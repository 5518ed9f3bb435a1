package store

import (
	"errors"
	"fmt"
	"slices"

	"github.com/joescharf/be/internal/identity"
	"github.com/joescharf/be/internal/models"
)

// Catalog indexes a loaded bugdir's ids: bug uuids, and comment alt-ids,
// which are unique across the whole bugdir.
type Catalog struct {
	bugs  *identity.Registry
	alt   *identity.Registry
	owner map[string]string
}

// NewCatalog registers every bug and comment of d. Collisions are returned
// as *identity.DuplicateIDError values and the offending alt-id is skipped.
func NewCatalog(d *models.Bugdir) (*Catalog, []error) {
	c := &Catalog{
		bugs:  identity.NewRegistry(),
		alt:   identity.NewRegistry(),
		owner: make(map[string]string),
	}
	var errs []error
	for _, b := range d.SortedBugs() {
		if err := c.bugs.RegisterUUID(b.UUID); err != nil {
			errs = append(errs, err)
			continue
		}
		ids := make([]string, 0, len(b.Comments))
		for id := range b.Comments {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		for _, id := range ids {
			cm := b.Comments[id]
			c.owner[id] = b.UUID
			if err := c.alt.RegisterAltID(cm.AltID, id); err != nil {
				errs = append(errs, fmt.Errorf("bug %s comment %s: %w", b.UUID, id, err))
			}
		}
	}
	return c, errs
}

// RegisterBug adds a newly created bug.
func (c *Catalog) RegisterBug(id string) error { return c.bugs.RegisterUUID(id) }

// RegisterComment adds a newly created comment and its alt-id.
func (c *Catalog) RegisterComment(bug string, cm *models.Comment) error {
	if err := c.alt.RegisterAltID(cm.AltID, cm.UUID); err != nil {
		return err
	}
	c.owner[cm.UUID] = bug
	return nil
}

// ResolveBug maps a uuid, unique uuid prefix, or comment alt-id to a bug
// uuid. An alt-id resolves to the bug that owns the comment.
func (c *Catalog) ResolveBug(id string) (string, error) {
	bug, err := c.bugs.Resolve(id)
	if err == nil {
		return bug, nil
	}
	if !errors.Is(err, identity.ErrNotFound) {
		return "", err
	}
	if cm, aerr := c.alt.Resolve(id); aerr == nil {
		if owner, ok := c.owner[cm]; ok {
			return owner, nil
		}
	}
	return "", fmt.Errorf("bug %s: %w", id, ErrNotFound)
}

// ResolveComment maps a comment uuid, prefix within b, or alt-id to a
// comment uuid of b.
func (c *Catalog) ResolveComment(b *models.Bug, id string) (string, error) {
	if _, ok := b.Comments[id]; ok {
		return id, nil
	}
	if cm, err := c.alt.Resolve(id); err == nil && c.owner[cm] == b.UUID {
		return cm, nil
	}
	local := identity.NewRegistry()
	for cid := range b.Comments {
		_ = local.RegisterUUID(cid)
	}
	cm, err := local.Resolve(id)
	if errors.Is(err, identity.ErrNotFound) {
		return "", fmt.Errorf("comment %s in bug %s: %w", id, b.UUID, ErrNotFound)
	}
	return cm, err
}

// ShortID returns the shortest unambiguous prefix of a bug uuid.
func (c *Catalog) ShortID(id string) string {
	return c.bugs.ShortID(id, shortIDLength)
}

// HasAltID reports whether some comment already carries the alt-id.
func (c *Catalog) HasAltID(id string) bool {
	_, err := c.alt.Resolve(id)
	return err == nil
}
