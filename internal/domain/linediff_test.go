package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	m "strata.dev/pkg/strata/internal/model"
)

func letters(s string) string {
	var b strings.Builder
	for _, r := range s {
		b.WriteRune(r)
		b.WriteByte('\n')
	}

	return b.String()
}

func TestLineDiffer_Diff(t *testing.T) {
	differ := NewLineDiffer(-1)
	assert.Equal(t, DefaultContextLines, differ.ContextLines())

	fp := differ.Diff("A.txt", []byte("1\n2\n3\n"), []byte("1\n2\n4\n"))

	require.Len(t, fp.Hunks, 1)
	assert.Equal(t, m.RelFile("A.txt"), fp.Path)

	h := fp.Hunks[0]
	assert.Equal(t, 0, h.OldStart)
	assert.Equal(t, 3, h.OldLen)
	assert.Equal(t, 0, h.NewStart)
	assert.Equal(t, 3, h.NewLen)
	assert.Equal(t, []m.Line{
		{Op: m.OpContext, Text: "1"},
		{Op: m.OpContext, Text: "2"},
		{Op: m.OpDelete, Text: "3"},
		{Op: m.OpInsert, Text: "4"},
	}, h.Lines)
	assert.Equal(t, 0, h.TrailingContext())
}

func TestLineDiffer_IdenticalHasNoHunks(t *testing.T) {
	differ := NewLineDiffer(3)

	for _, content := range []string{"", "one\n", "no newline", letters("abcdefghij")} {
		fp := differ.Diff("f.txt", []byte(content), []byte(content))
		assert.Empty(t, fp.Hunks, "content %q", content)
	}
}

func TestLineDiffer_ContextTrimming(t *testing.T) {
	differ := NewLineDiffer(3)

	old := letters("abcdefghijklmnopqrst")
	updated := strings.Replace(strings.Replace(old, "b\n", "B\n", 1), "s\n", "S\n", 1)

	fp := differ.Diff("f.txt", []byte(old), []byte(updated))
	require.Len(t, fp.Hunks, 2)

	assert.Equal(t, 0, fp.Hunks[0].OldStart)
	assert.Equal(t, 5, fp.Hunks[0].OldLen)
	assert.Equal(t, 3, fp.Hunks[0].TrailingContext())

	assert.Equal(t, 15, fp.Hunks[1].OldStart)
	assert.Equal(t, 5, fp.Hunks[1].OldLen)
	assert.Equal(t, 1, fp.Hunks[1].TrailingContext())
}

func TestLineDiffer_NoTrailingNewline(t *testing.T) {
	differ := NewLineDiffer(3)

	fp := differ.Diff("f.txt", []byte("a\nb"), []byte("a\nb\n"))
	require.Len(t, fp.Hunks, 1)

	assert.Equal(t, []m.Line{
		{Op: m.OpContext, Text: "a"},
		{Op: m.OpDelete, Text: "b", NoEOL: true},
		{Op: m.OpInsert, Text: "b"},
	}, fp.Hunks[0].Lines)
}

func TestSplitJoinLines(t *testing.T) {
	tests := []struct {
		name string
		data string
		want []string
	}{
		{name: "empty", data: "", want: nil},
		{name: "terminated", data: "a\nb\n", want: []string{"a\n", "b\n"}},
		{name: "unterminated", data: "a\nb", want: []string{"a\n", "b"}},
		{name: "crlf", data: "a\r\nb\r\n", want: []string{"a\r\n", "b\r\n"}},
		{name: "blank lines", data: "\n\n", want: []string{"\n", "\n"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitLines([]byte(tt.data))
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.data, string(joinLines(got)))
		})
	}

	assert.Equal(t, "a\nb\n", string(joinLines([]string{"a", "b\n"})))
}
