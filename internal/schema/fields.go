package schema

import (
	"fmt"
	"slices"
	"time"
)

// String declares a single-valued text field. An empty string reads as unset.
func String[T any](name string, ptr func(*T) *string, def string) Field[T] {
	f := Field[T]{
		Name:   name,
		Policy: Scalar,
		Get: func(t *T) []string {
			if s := *ptr(t); s != "" {
				return []string{s}
			}
			return nil
		},
		Set: func(t *T, v []string) error {
			*ptr(t) = first(v)
			return nil
		},
	}
	if def != "" {
		f.Default = []string{def}
	}
	return f
}

// Strings declares a repeated, order-preserving sequence field.
func Strings[T any](name string, ptr func(*T) *[]string) Field[T] {
	return Field[T]{
		Name:   name,
		Policy: Sequence,
		Multi:  true,
		Get: func(t *T) []string {
			if s := *ptr(t); len(s) > 0 {
				return slices.Clone(s)
			}
			return nil
		},
		Set: func(t *T, v []string) error {
			*ptr(t) = slices.Clone(v)
			return nil
		},
	}
}

// Time declares a timestamp field stored in TimeFormat.
func Time[T any](name string, policy Policy, ptr func(*T) *time.Time) Field[T] {
	return Field[T]{
		Name:   name,
		Policy: policy,
		Get: func(t *T) []string {
			if s := FormatTime(*ptr(t)); s != "" {
				return []string{s}
			}
			return nil
		},
		Set: func(t *T, v []string) error {
			ts, err := ParseTime(first(v))
			if err != nil {
				return fmt.Errorf("expected %q layout", TimeFormat)
			}
			*ptr(t) = ts
			return nil
		},
	}
}

// Levels declares a repeated "name: description" field. def may be nil.
func Levels[T any](name string, ptr func(*T) *[]Level, def func() []Level) Field[T] {
	f := Field[T]{
		Name:   name,
		Policy: Scalar,
		Multi:  true,
		Get: func(t *T) []string {
			levels := *ptr(t)
			if levels == nil {
				return nil
			}
			out := make([]string, len(levels))
			for i, l := range levels {
				out[i] = l.String()
			}
			return out
		},
		Set: func(t *T, v []string) error {
			if v == nil {
				*ptr(t) = nil
				return nil
			}
			levels := make([]Level, len(v))
			for i, s := range v {
				levels[i] = ParseLevel(s)
			}
			*ptr(t) = levels
			return nil
		},
		Check: func(v []string, _ AllowedSets) error {
			levels := make([]Level, len(v))
			for i, s := range v {
				levels[i] = ParseLevel(s)
			}
			return CheckLevels(levels)
		},
	}
	if def != nil {
		for _, l := range def() {
			f.Default = append(f.Default, l.String())
		}
	}
	return f
}

func first(v []string) string {
	if len(v) == 0 {
		return ""
	}
	return v[0]
}
