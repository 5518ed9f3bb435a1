package schema

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name   string
	Kind   string
	When   time.Time
	Tags   []string
	Levels []Level
}

func sampleLevels() []Level {
	return []Level{{Name: "low", Description: "Low."}, {Name: "high", Description: "High."}}
}

func newSampleDescriptor() Descriptor[sample] {
	return NewDescriptor("sample",
		String("name", func(s *sample) *string { return &s.Name }, ""),
		String("kind", func(s *sample) *string { return &s.Kind }, "plain"),
		Time("when", Identity, func(s *sample) *time.Time { return &s.When }),
		Strings("tags", func(s *sample) *[]string { return &s.Tags }),
		Levels("levels", func(s *sample) *[]Level { return &s.Levels }, sampleLevels),
	)
}

func TestDescriptor_Lookup(t *testing.T) {
	d := newSampleDescriptor()
	assert.Equal(t, "sample", d.Entity())
	assert.Len(t, d.Fields(), 5)

	f, ok := d.Lookup("tags")
	require.True(t, ok)
	assert.Equal(t, Sequence, f.Policy)
	assert.True(t, f.Multi)

	_, ok = d.Lookup("nope")
	assert.False(t, ok)
}

func TestDescriptor_PanicsOnDuplicate(t *testing.T) {
	assert.Panics(t, func() {
		NewDescriptor("x",
			String("a", func(s *sample) *string { return &s.Name }, ""),
			String("a", func(s *sample) *string { return &s.Kind }, ""),
		)
	})
	assert.Panics(t, func() {
		NewDescriptor("x", String("bad key", func(s *sample) *string { return &s.Name }, ""))
	})
}

func TestApplyDefaults(t *testing.T) {
	d := newSampleDescriptor()
	var s sample
	require.NoError(t, d.ApplyDefaults(&s))
	assert.Equal(t, "plain", s.Kind)
	assert.Equal(t, sampleLevels(), s.Levels)
	assert.Empty(t, s.Name)

	kind, _ := d.Lookup("kind")
	assert.True(t, kind.IsDefault(&s))
	s.Kind = "fancy"
	assert.False(t, kind.IsDefault(&s))
}

func TestField_Value(t *testing.T) {
	d := newSampleDescriptor()
	kind, _ := d.Lookup("kind")
	var s sample
	assert.Equal(t, []string{"plain"}, kind.Value(&s))
	s.Kind = "x"
	assert.Equal(t, []string{"x"}, kind.Value(&s))
}

func TestTimeField(t *testing.T) {
	d := newSampleDescriptor()
	f, _ := d.Lookup("when")
	var s sample
	assert.Nil(t, f.Get(&s))

	require.NoError(t, f.Set(&s, []string{"Tue, 05 Mar 2024 10:11:12 +0000"}))
	assert.Equal(t, 2024, s.When.Year())
	assert.Equal(t, []string{"Tue, 05 Mar 2024 10:11:12 +0000"}, f.Get(&s))

	err := f.Set(&s, []string{"2024-03-05"})
	assert.Error(t, err)
}

func TestLevelsField(t *testing.T) {
	d := newSampleDescriptor()
	f, _ := d.Lookup("levels")
	var s sample
	require.NoError(t, f.Set(&s, []string{"a: first", "b"}))
	assert.Equal(t, []Level{{Name: "a", Description: "first"}, {Name: "b"}}, s.Levels)
	assert.Equal(t, []string{"a: first", "b"}, f.Get(&s))

	assert.NoError(t, f.Check([]string{"a: x", "b: y"}, AllowedSets{}))
	assert.Error(t, f.Check([]string{"a", "a"}, AllowedSets{}))
	assert.Error(t, f.Check(nil, AllowedSets{}))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, Level{Name: "minor", Description: "The standard bug level."}, ParseLevel("minor: The standard bug level."))
	assert.Equal(t, Level{Name: "x"}, ParseLevel("x"))
	assert.Equal(t, "x", Level{Name: "x"}.String())
}

func TestResolve(t *testing.T) {
	parent := AllowedSets{
		Severities:     []Level{{Name: "minor"}},
		ActiveStatus:   []Level{{Name: "open"}},
		InactiveStatus: []Level{{Name: "closed"}},
	}
	got := Resolve(parent, AllowedSets{})
	assert.Equal(t, parent, got)

	override := AllowedSets{Severities: []Level{{Name: "blocker"}}}
	got = Resolve(parent, override)
	assert.Equal(t, []string{"blocker"}, Names(got.Severities))
	assert.Equal(t, []string{"open"}, Names(got.ActiveStatus))
	assert.Equal(t, []string{"open", "closed"}, Names(got.Statuses()))
	assert.True(t, got.IsActive("open"))
	assert.False(t, got.IsActive("closed"))
}

func TestMemberOf(t *testing.T) {
	check := MemberOf("severity", func(s AllowedSets) []Level { return s.Severities })
	sets := AllowedSets{Severities: []Level{{Name: "minor"}, {Name: "serious"}}}
	assert.NoError(t, check([]string{"serious"}, sets))
	err := check([]string{"fatal"}, sets)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "minor, serious")
}

func TestCheckLabel(t *testing.T) {
	assert.NoError(t, CheckLabel("wontfix"))
	assert.Error(t, CheckLabel(""))
	assert.Error(t, CheckLabel("has space"))
	assert.Error(t, CheckLabel("has:colon"))
	assert.Error(t, CheckLabel("café"))
}

func TestCheckContentType(t *testing.T) {
	assert.NoError(t, CheckContentType("text/plain"))
	assert.NoError(t, CheckContentType("text/plain; charset=utf-8"))
	assert.Error(t, CheckContentType(""))
	assert.Error(t, CheckContentType("not a type"))
}

func TestCheckDisjoint(t *testing.T) {
	assert.NoError(t, CheckDisjoint([]Level{{Name: "open"}}, []Level{{Name: "closed"}}))
	assert.Error(t, CheckDisjoint([]Level{{Name: "open"}}, []Level{{Name: "open"}}))
}

func TestStruct(t *testing.T) {
	type rec struct {
		ID string `validate:"required"`
	}
	assert.NoError(t, Struct(rec{ID: "x"}))
	assert.Error(t, Struct(rec{}))
}

func TestError(t *testing.T) {
	inner := errors.New("boom")
	err := &Error{Entity: "bug", ID: "abc", Field: "time", Value: "junk", Err: inner}
	assert.Contains(t, err.Error(), `field "time"`)
	assert.ErrorIs(t, err, inner)

	err = &Error{Entity: "bug", ID: "abc", Err: inner}
	assert.Equal(t, "invalid bug abc: boom", err.Error())
}
