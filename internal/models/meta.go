package models

import (
	"maps"
	"slices"

	"github.com/joescharf/be/internal/textblock"
)

// Meta is the persistence bookkeeping shared by every entity.
type Meta struct {
	// Unknown holds fields found on load that no descriptor declares. They
	// are written back verbatim after the known fields.
	Unknown []textblock.Entry
	// Revision is the VCS revision observed when the entity was loaded.
	Revision string

	explicit map[string]bool
}

// MarkExplicit records fields as explicitly set.
func (m *Meta) MarkExplicit(names ...string) {
	if m.explicit == nil {
		m.explicit = make(map[string]bool, len(names))
	}
	for _, n := range names {
		m.explicit[n] = true
	}
}

// ClearExplicit forgets the explicit flag on a field.
func (m *Meta) ClearExplicit(name string) {
	delete(m.explicit, name)
}

// IsExplicit reports whether name was explicitly set.
func (m *Meta) IsExplicit(name string) bool {
	return m.explicit[name]
}

func (m Meta) clone() Meta {
	return Meta{
		Unknown:  slices.Clone(m.Unknown),
		Revision: m.Revision,
		explicit: maps.Clone(m.explicit),
	}
}
