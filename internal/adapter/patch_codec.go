package adapter

import (
	"bytes"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	m "strata.dev/pkg/strata/internal/model"
)

const (
	// PatchSuffix is appended to the relative path of a diffed file.
	PatchSuffix = ".patch"
	// RemovedListName is the sidecar listing files deleted relative to the parent.
	RemovedListName = "removed_files.list"
)

// ErrUnencodable is returned when a hunk cannot be represented in unified diff form.
var ErrUnencodable = errors.New("hunk cannot be encoded as a unified diff")

// PatchCodec reads and writes the persisted patch-set artifacts.
type PatchCodec interface {
	// EncodePatch renders a file patch as a unified diff.
	EncodePatch(fp m.FilePatch) ([]byte, error)

	// DecodePatch parses a unified diff produced by EncodePatch.
	DecodePatch(rel m.RelFile, data []byte) (m.FilePatch, error)

	// EncodeRemoved renders the removed-file list, sorted.
	EncodeRemoved(paths []m.RelFile) []byte

	// DecodeRemoved parses a removed-file list.
	DecodeRemoved(data []byte) ([]m.RelFile, error)
}

// UnifiedPatchCodec implements PatchCodec with sourcegraph/go-diff.
type UnifiedPatchCodec struct{}

// NewUnifiedPatchCodec constructs a UnifiedPatchCodec.
func NewUnifiedPatchCodec() *UnifiedPatchCodec {
	return &UnifiedPatchCodec{}
}

// EncodePatch renders fp with `a/` and `b/` file headers and no timestamps.
func (c *UnifiedPatchCodec) EncodePatch(fp m.FilePatch) ([]byte, error) {
	fd := &diff.FileDiff{
		OrigName: "a/" + string(fp.Path),
		NewName:  "b/" + string(fp.Path),
		Hunks:    make([]*diff.Hunk, 0, len(fp.Hunks)),
	}

	for i, h := range fp.Hunks {
		hunk, err := encodeHunk(h)
		if err != nil {
			return nil, fmt.Errorf("%s hunk %d: %w", fp.Path, i+1, err)
		}

		fd.Hunks = append(fd.Hunks, hunk)
	}

	out, err := diff.PrintFileDiff(fd)
	if err != nil {
		return nil, fmt.Errorf("print %s: %w", fp.Path, err)
	}

	return out, nil
}

func encodeHunk(h m.Hunk) (*diff.Hunk, error) {
	lines := orderForParser(h.Lines)

	var body bytes.Buffer

	var origNoNewlineAt int32

	for i, l := range lines {
		body.WriteByte(byte(l.Op))
		body.WriteString(l.Text)

		// The parser drops one trailing CR per line.
		if strings.HasSuffix(l.Text, "\r") {
			body.WriteByte('\r')
		}

		switch {
		case !l.NoEOL:
			body.WriteByte('\n')
		case l.Op == m.OpDelete:
			body.WriteByte('\n')
			origNoNewlineAt = int32(body.Len())
		case i != len(lines)-1:
			return nil, ErrUnencodable
		}
	}

	return &diff.Hunk{
		OrigStartLine:   headerStart(h.OldStart, h.OldLen),
		OrigLines:       int32(h.OldLen),
		OrigNoNewlineAt: origNoNewlineAt,
		NewStartLine:    headerStart(h.NewStart, h.NewLen),
		NewLines:        int32(h.NewLen),
		Body:            body.Bytes(),
	}, nil
}

// orderForParser moves insertions ahead of deletions inside a change run when
// a deleted line followed by an inserted line would read as a file header.
func orderForParser(lines []m.Line) []m.Line {
	out := make([]m.Line, 0, len(lines))

	for i := 0; i < len(lines); {
		if lines[i].Op == m.OpContext {
			out = append(out, lines[i])
			i++

			continue
		}

		j := i
		for j < len(lines) && lines[j].Op != m.OpContext {
			j++
		}

		var dels, ins []m.Line

		for _, l := range lines[i:j] {
			if l.Op == m.OpDelete {
				dels = append(dels, l)
			} else {
				ins = append(ins, l)
			}
		}

		if len(dels) > 0 && len(ins) > 0 &&
			strings.HasPrefix(dels[len(dels)-1].Text, "--") && strings.HasPrefix(ins[0].Text, "++") {
			out = append(out, ins...)
			out = append(out, dels...)
		} else {
			out = append(out, dels...)
			out = append(out, ins...)
		}

		i = j
	}

	return out
}

func headerStart(start, length int) int32 {
	if length == 0 {
		return int32(start)
	}

	return int32(start + 1)
}

func indexStart(start, length int32) int {
	if length == 0 {
		return int(start)
	}

	return int(start - 1)
}

// DecodePatch parses data and validates the hunk line counts.
func (c *UnifiedPatchCodec) DecodePatch(rel m.RelFile, data []byte) (m.FilePatch, error) {
	fd, err := diff.ParseFileDiff(data)
	if err != nil {
		return m.FilePatch{}, fmt.Errorf("parse %s: %w", rel, err)
	}

	fp := m.FilePatch{Path: rel, Hunks: make([]m.Hunk, 0, len(fd.Hunks))}

	for i, hunk := range fd.Hunks {
		h, err := decodeHunk(hunk)
		if err != nil {
			return m.FilePatch{}, fmt.Errorf("%s hunk %d: %w", rel, i+1, err)
		}

		fp.Hunks = append(fp.Hunks, h)
	}

	return fp, nil
}

func decodeHunk(hunk *diff.Hunk) (m.Hunk, error) {
	h := m.Hunk{
		OldStart: indexStart(hunk.OrigStartLine, hunk.OrigLines),
		OldLen:   int(hunk.OrigLines),
		NewStart: indexStart(hunk.NewStartLine, hunk.NewLines),
		NewLen:   int(hunk.NewLines),
	}

	body := hunk.Body
	offset := 0
	oldCount, newCount := 0, 0

	for offset < len(body) {
		end := bytes.IndexByte(body[offset:], '\n')

		var seg []byte

		noEOL := false

		if end < 0 {
			seg = body[offset:]
			offset = len(body)
			noEOL = true
		} else {
			seg = body[offset : offset+end]
			offset += end + 1
		}

		if len(seg) == 0 {
			return m.Hunk{}, fmt.Errorf("empty hunk line")
		}

		op := m.LineOp(seg[0])
		if op == m.OpDelete && hunk.OrigNoNewlineAt > 0 && int32(offset) == hunk.OrigNoNewlineAt {
			noEOL = true
		}

		switch op {
		case m.OpContext:
			oldCount++
			newCount++
		case m.OpDelete:
			oldCount++
		case m.OpInsert:
			newCount++
		default:
			return m.Hunk{}, fmt.Errorf("unexpected line prefix %q", seg[0])
		}

		h.Lines = append(h.Lines, m.Line{Op: op, Text: string(seg[1:]), NoEOL: noEOL})
	}

	if oldCount != h.OldLen || newCount != h.NewLen {
		return m.Hunk{}, fmt.Errorf("header declares %d/%d lines, body has %d/%d",
			h.OldLen, h.NewLen, oldCount, newCount)
	}

	return h, nil
}

// EncodeRemoved writes one path per line in sorted order.
func (c *UnifiedPatchCodec) EncodeRemoved(paths []m.RelFile) []byte {
	sorted := make([]string, 0, len(paths))
	for _, p := range paths {
		sorted = append(sorted, string(p))
	}

	sort.Strings(sorted)

	var buf bytes.Buffer

	for _, p := range sorted {
		buf.WriteString(p)
		buf.WriteByte('\n')
	}

	return buf.Bytes()
}

// DecodeRemoved reads a removed-file list, ignoring blank lines.
func (c *UnifiedPatchCodec) DecodeRemoved(data []byte) ([]m.RelFile, error) {
	var out []m.RelFile

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		// Lists written on Windows use backslashes.
		line = strings.ReplaceAll(line, "\\", "/")

		if err := validateRelPath(line); err != nil {
			return nil, err
		}

		out = append(out, m.RelFile(line))
	}

	return out, nil
}

func validateRelPath(rel string) error {
	cleaned := path.Clean(rel)

	if cleaned == "." || path.IsAbs(cleaned) {
		return fmt.Errorf("invalid relative path %q", rel)
	}

	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return fmt.Errorf("invalid path: path traversal not allowed in %q", rel)
	}

	return nil
}
