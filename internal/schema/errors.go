package schema

import "fmt"

// Error reports a field that failed to parse or validate. It is fatal to
// loading one entity only.
type Error struct {
	Entity string
	ID     string
	Field  string
	Value  string
	Err    error
}

func (e *Error) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid %s %s: %v", e.Entity, e.ID, e.Err)
	}
	return fmt.Sprintf("invalid %s %s: field %q value %q: %v", e.Entity, e.ID, e.Field, e.Value, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
