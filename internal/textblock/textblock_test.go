package textblock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	data := "severity: minor\nstatus: open\nextra_strings: a\nextra_strings: b\n"
	blk, err := Parse([]byte(data))
	require.NoError(t, err)

	v, ok := blk.Get("severity")
	assert.True(t, ok)
	assert.Equal(t, "minor", v)
	assert.Equal(t, []string{"a", "b"}, blk.All("extra_strings"))
	assert.Equal(t, []string{"severity", "status", "extra_strings"}, blk.Keys())

	_, ok = blk.Get("missing")
	assert.False(t, ok)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
		line int
	}{
		{"no colon", "severity minor\n", 1},
		{"empty key", ": value\n", 1},
		{"leading continuation", " orphan\n", 1},
		{"second line", "a: 1\nbroken\n", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			require.Error(t, err)
			var pe *ParseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.line, pe.Line)
		})
	}
}

func TestRoundTrip(t *testing.T) {
	blk := Block{
		{Key: "summary", Value: "Crash on start"},
		{Key: "assigned", Value: ""},
		{Key: "severities", Value: "minor: The standard bug level."},
		{Key: "severities", Value: "serious: A bug that could be fixed."},
		{Key: "target", Value: "line one\n\nline three"},
		{Key: "padded", Value: "  two leading spaces"},
		{Key: "empty-first", Value: "\nsecond"},
	}
	got, err := Parse(Format(blk))
	require.NoError(t, err)
	assert.Equal(t, blk, got)
}

func TestRoundTrip_CRLFValue(t *testing.T) {
	blk := Block{
		{Key: "local", Value: "first line\r\nsecond line\r\n"},
		{Key: "field", Value: "Body"},
	}
	got, err := Parse(Format(blk))
	require.NoError(t, err)
	assert.Equal(t, blk, got)
}

func TestParse_CRLFFile(t *testing.T) {
	blk, err := Parse([]byte("summary: Crash\r\ntarget: one\r\n two\r\n\r\nstatus: open\r\n"))
	require.NoError(t, err)
	assert.Equal(t, Block{
		{Key: "summary", Value: "Crash"},
		{Key: "target", Value: "one\ntwo"},
		{Key: "status", Value: "open"},
	}, blk)
}

func TestFormat(t *testing.T) {
	blk := Block{
		{Key: "Author", Value: "Jane <jane@example.com>"},
		{Key: "Alt-Id", Value: ""},
		{Key: "note", Value: "a\nb"},
		{Key: "bad:key", Value: "skipped"},
	}
	assert.Equal(t, "Author: Jane <jane@example.com>\nAlt-Id:\nnote: a\n b\n", string(Format(blk)))
}

func TestSplitAndJoinBody(t *testing.T) {
	header := Block{{Key: "Author", Value: "jane"}, {Key: "Content-type", Value: "text/plain"}}
	body := []byte("first paragraph\n\nsecond paragraph\n")

	data := JoinBody(header, body)
	h, b := SplitBody(data)
	assert.Equal(t, body, b)

	parsed, err := Parse(h)
	require.NoError(t, err)
	assert.Equal(t, header, parsed)
}

func TestSplitBody_Edges(t *testing.T) {
	h, b := SplitBody([]byte("a: 1\n"))
	assert.Equal(t, "a: 1\n", string(h))
	assert.Nil(t, b)

	h, b = SplitBody([]byte("\nbody only"))
	assert.Empty(t, h)
	assert.Equal(t, "body only", string(b))

	h, b = SplitBody(JoinBody(Block{{Key: "a", Value: "1"}}, nil))
	assert.Equal(t, "a: 1\n", string(h))
	assert.Empty(t, b)
}

func TestValidKey(t *testing.T) {
	assert.True(t, ValidKey("In-reply-to"))
	assert.False(t, ValidKey(""))
	assert.False(t, ValidKey("a:b"))
	assert.False(t, ValidKey(" lead"))
	assert.False(t, ValidKey("multi\nline"))
}

func TestAdd(t *testing.T) {
	var blk Block
	blk.Add("a", "1")
	blk.Add("a", "2")
	assert.Equal(t, []string{"1", "2"}, blk.All("a"))
}
