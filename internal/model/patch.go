package model

// LineOp is the role of a line inside a hunk.
type LineOp byte

// Hunk line roles.
const (
	OpContext LineOp = ' '
	OpDelete  LineOp = '-'
	OpInsert  LineOp = '+'
)

// Line is a single hunk line. Text excludes the line terminator; NoEOL marks
// the final line of a file that has no trailing newline.
type Line struct {
	Op    LineOp
	Text  string
	NoEOL bool
}

// Key returns the line as it appears in the file, terminator included.
func (l Line) Key() string {
	if l.NoEOL {
		return l.Text
	}

	return l.Text + "\n"
}

// Hunk is a contiguous change region. OldStart and NewStart are 0-based line
// indices.
type Hunk struct {
	OldStart int
	OldLen   int
	NewStart int
	NewLen   int
	Lines    []Line
}

// OldLines returns the context and deleted lines in file form.
func (h Hunk) OldLines() []string {
	out := make([]string, 0, h.OldLen)

	for _, l := range h.Lines {
		if l.Op != OpInsert {
			out = append(out, l.Key())
		}
	}

	return out
}

// NewLines returns the context and inserted lines in file form.
func (h Hunk) NewLines() []string {
	out := make([]string, 0, h.NewLen)

	for _, l := range h.Lines {
		if l.Op != OpDelete {
			out = append(out, l.Key())
		}
	}

	return out
}

// TrailingContext counts the context lines after the last change.
func (h Hunk) TrailingContext() int {
	n := 0

	for i := len(h.Lines) - 1; i >= 0; i-- {
		if h.Lines[i].Op != OpContext {
			break
		}

		n++
	}

	return n
}

// FilePatch is the decoded content of one patch file.
type FilePatch struct {
	Path  RelFile
	Hunks []Hunk
}

// Mode is how a hunk was located in the baseline, ordered by severity.
type Mode int

// Available Mode values.
const (
	ModeExact Mode = iota
	ModeOffset
	ModeFuzzy
)

func (m Mode) String() string {
	switch m {
	case ModeExact:
		return "exact"
	case ModeOffset:
		return "offset"
	case ModeFuzzy:
		return "fuzzy"
	default:
		return "unknown"
	}
}

// HunkResult records how one hunk was applied.
type HunkResult struct {
	Index         int
	Mode          Mode
	Success       bool
	FuzzyQuality  float64
	OffsetWarning bool
	Location      int
}

// FileApplyResult is the outcome of reconstructing one file from its patch.
type FileApplyResult struct {
	Path          RelFile
	PatchFile     Path
	Mode          Mode
	Success       bool
	FuzzyQuality  float64
	OffsetWarning bool
	Message       string
	Hunks         []HunkResult
}

// Clean reports whether every hunk applied exactly.
func (r FileApplyResult) Clean() bool {
	return r.Success && r.Mode == ModeExact && !r.OffsetWarning
}
