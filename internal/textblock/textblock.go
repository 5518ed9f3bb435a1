// Package textblock reads and writes the flat key-value blocks used for
// every settings and comment file under the bug directory.
package textblock

import (
	"bytes"
	"fmt"
	"strings"
)

// Entry is one key-value pair. Values may span several lines.
type Entry struct {
	Key   string
	Value string
}

// Block is an ordered list of entries. A key may repeat to encode a sequence.
type Block []Entry

// ParseError reports malformed input with a 1-based line number.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

// Get returns the value of the first entry with key.
func (b Block) Get(key string) (string, bool) {
	for _, e := range b {
		if e.Key == key {
			return e.Value, true
		}
	}
	return "", false
}

// All returns every value stored under key, in order.
func (b Block) All(key string) []string {
	var vals []string
	for _, e := range b {
		if e.Key == key {
			vals = append(vals, e.Value)
		}
	}
	return vals
}

// Keys returns the distinct keys in first-seen order.
func (b Block) Keys() []string {
	seen := make(map[string]bool, len(b))
	var keys []string
	for _, e := range b {
		if !seen[e.Key] {
			seen[e.Key] = true
			keys = append(keys, e.Key)
		}
	}
	return keys
}

// Add appends an entry.
func (b *Block) Add(key, value string) {
	*b = append(*b, Entry{Key: key, Value: value})
}

// ValidKey reports whether key can be written without ambiguity.
func ValidKey(key string) bool {
	if key == "" || strings.ContainsAny(key, ":\n\r") {
		return false
	}
	return key[0] != ' ' && key[0] != '\t'
}

// Parse decodes a block. Blank lines between entries are ignored. A file
// whose every line ends in CRLF is read as LF; otherwise a CR is kept as
// part of the value.
func Parse(data []byte) (Block, error) {
	var blk Block
	text := string(data)
	if n := strings.Count(text, "\n"); n > 0 && strings.Count(text, "\r\n") == n {
		text = strings.ReplaceAll(text, "\r\n", "\n")
	}
	lines := strings.Split(text, "\n")
	// A trailing newline yields one empty final element.
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	for i, line := range lines {
		if line == "" || line == "\r" {
			continue
		}
		if line[0] == ' ' {
			if len(blk) == 0 {
				return nil, &ParseError{Line: i + 1, Msg: "continuation line before any key"}
			}
			blk[len(blk)-1].Value += "\n" + line[1:]
			continue
		}
		idx := strings.IndexByte(line, ':')
		if idx <= 0 {
			return nil, &ParseError{Line: i + 1, Msg: fmt.Sprintf("expected \"key: value\", got %q", line)}
		}
		val := line[idx+1:]
		val = strings.TrimPrefix(val, " ")
		blk = append(blk, Entry{Key: line[:idx], Value: val})
	}
	return blk, nil
}

// Format encodes a block. Keys that fail ValidKey are skipped.
func Format(b Block) []byte {
	var buf bytes.Buffer
	for _, e := range b {
		if !ValidKey(e.Key) {
			continue
		}
		lines := strings.Split(e.Value, "\n")
		buf.WriteString(e.Key)
		buf.WriteByte(':')
		if lines[0] != "" {
			buf.WriteByte(' ')
			buf.WriteString(lines[0])
		}
		buf.WriteByte('\n')
		for _, l := range lines[1:] {
			buf.WriteByte(' ')
			buf.WriteString(l)
			buf.WriteByte('\n')
		}
	}
	return buf.Bytes()
}

// SplitBody separates a header block from a raw body at the first blank line.
// Data with no blank line is all header.
func SplitBody(data []byte) (header, body []byte) {
	if len(data) > 0 && data[0] == '\n' {
		return nil, data[1:]
	}
	idx := bytes.Index(data, []byte("\n\n"))
	if idx < 0 {
		return data, nil
	}
	return data[:idx+1], data[idx+2:]
}

// JoinBody writes a header block, one blank line, then body.
func JoinBody(header Block, body []byte) []byte {
	out := Format(header)
	out = append(out, '\n')
	return append(out, body...)
}
