package domain

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	m "strata.dev/pkg/strata/internal/model"
)

// DefaultContextLines is the number of unchanged lines kept around each change.
const DefaultContextLines = 3

// LineDiffer computes line-level hunks between two file contents.
type LineDiffer interface {
	// Diff returns the hunks turning old into updated; none when they are equal.
	Diff(rel m.RelFile, old, updated []byte) m.FilePatch
	// ContextLines returns the configured context size.
	ContextLines() int
}

type lineDiffer struct {
	context int
}

// NewLineDiffer creates a LineDiffer keeping context unchanged lines around
// each change. A negative context selects DefaultContextLines.
func NewLineDiffer(context int) LineDiffer {
	if context < 0 {
		context = DefaultContextLines
	}

	return &lineDiffer{context: context}
}

func (d *lineDiffer) ContextLines() int {
	return d.context
}

// Diff anchors on unambiguous lines: blank lines never start a match and, for
// long files, very frequent lines are ignored as anchors too.
func (d *lineDiffer) Diff(rel m.RelFile, old, updated []byte) m.FilePatch {
	a := splitLines(old)
	b := splitLines(updated)

	matcher := difflib.NewMatcherWithJunk(a, b, true, isBlankLine)

	fp := m.FilePatch{Path: rel}

	for _, group := range matcher.GetGroupedOpCodes(d.context) {
		fp.Hunks = append(fp.Hunks, hunkFromGroup(group, a, b))
	}

	return fp
}

func hunkFromGroup(group []difflib.OpCode, a, b []string) m.Hunk {
	first, last := group[0], group[len(group)-1]

	h := m.Hunk{
		OldStart: first.I1,
		OldLen:   last.I2 - first.I1,
		NewStart: first.J1,
		NewLen:   last.J2 - first.J1,
	}

	for _, op := range group {
		switch op.Tag {
		case 'e':
			h.Lines = appendLines(h.Lines, m.OpContext, a[op.I1:op.I2])
		case 'd':
			h.Lines = appendLines(h.Lines, m.OpDelete, a[op.I1:op.I2])
		case 'i':
			h.Lines = appendLines(h.Lines, m.OpInsert, b[op.J1:op.J2])
		case 'r':
			h.Lines = appendLines(h.Lines, m.OpDelete, a[op.I1:op.I2])
			h.Lines = appendLines(h.Lines, m.OpInsert, b[op.J1:op.J2])
		}
	}

	return h
}

func appendLines(lines []m.Line, op m.LineOp, keys []string) []m.Line {
	for _, key := range keys {
		lines = append(lines, lineFromKey(op, key))
	}

	return lines
}

func lineFromKey(op m.LineOp, key string) m.Line {
	text, found := strings.CutSuffix(key, "\n")

	return m.Line{Op: op, Text: text, NoEOL: !found}
}

func isBlankLine(key string) bool {
	return strings.TrimSpace(key) == ""
}

// splitLines splits data into lines that keep their terminating newline; the
// last element lacks it when the data does not end with one.
func splitLines(data []byte) []string {
	if len(data) == 0 {
		return nil
	}

	s := string(data)
	lines := make([]string, 0, strings.Count(s, "\n")+1)

	for len(s) > 0 {
		i := strings.IndexByte(s, '\n')
		if i < 0 {
			lines = append(lines, s)
			break
		}

		lines = append(lines, s[:i+1])
		s = s[i+1:]
	}

	return lines
}

// joinLines is the inverse of splitLines. A line without a newline that is
// no longer last gets one, so lines never run together.
func joinLines(lines []string) []byte {
	size := len(lines)
	for _, l := range lines {
		size += len(l)
	}

	var b strings.Builder

	b.Grow(size)

	for i, l := range lines {
		b.WriteString(l)

		if i < len(lines)-1 && !strings.HasSuffix(l, "\n") {
			b.WriteByte('\n')
		}
	}

	return []byte(b.String())
}
