package domain

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	m "strata.dev/pkg/strata/internal/model"
)

// DefaultFuzzyThreshold is the lowest similarity accepted for a fuzzy hunk.
const DefaultFuzzyThreshold = 0.5

// HunkApplier re-applies the hunks of a file patch to a baseline that may
// have drifted since the patch was made.
type HunkApplier interface {
	// Apply returns the patched content and the per-hunk outcome. Rejected
	// hunks are skipped; the content reflects every hunk that applied.
	Apply(baseline []byte, fp m.FilePatch) ([]byte, m.FileApplyResult)
}

type hunkApplier struct {
	threshold    float64
	contextLines int
}

// NewHunkApplier creates a HunkApplier. threshold is the minimum fuzzy
// similarity in [0,1]; contextLines must match the value patches were
// produced with and identifies hunks anchored to end of file.
func NewHunkApplier(threshold float64, contextLines int) HunkApplier {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultFuzzyThreshold
	}

	if contextLines < 0 {
		contextLines = DefaultContextLines
	}

	return &hunkApplier{threshold: threshold, contextLines: contextLines}
}

type placement struct {
	pos      int
	consumed int
	out      []string
	result   m.HunkResult
}

func (a *hunkApplier) Apply(baseline []byte, fp m.FilePatch) ([]byte, m.FileApplyResult) {
	buf := splitLines(baseline)

	result := m.FileApplyResult{
		Path:         fp.Path,
		Mode:         m.ModeExact,
		Success:      true,
		FuzzyQuality: 1,
		Hunks:        make([]m.HunkResult, 0, len(fp.Hunks)),
	}

	delta, floor := 0, 0

	var rejected []string

	for i, h := range fp.Hunks {
		pl, ok := a.place(buf, h, h.OldStart+delta, floor)
		pl.result.Index = i

		result.Hunks = append(result.Hunks, pl.result)

		if !ok {
			result.Success = false
			result.FuzzyQuality = min(result.FuzzyQuality, pl.result.FuzzyQuality)
			rejected = append(rejected, fmt.Sprintf("%d", i+1))

			continue
		}

		next := make([]string, 0, len(buf)-pl.consumed+len(pl.out))
		next = append(next, buf[:pl.pos]...)
		next = append(next, pl.out...)
		next = append(next, buf[pl.pos+pl.consumed:]...)
		buf = next

		delta = pl.pos + len(pl.out) - (h.OldStart + h.OldLen)
		floor = pl.pos + len(pl.out)

		result.Mode = max(result.Mode, pl.result.Mode)
		result.FuzzyQuality = min(result.FuzzyQuality, pl.result.FuzzyQuality)
		result.OffsetWarning = result.OffsetWarning || pl.result.OffsetWarning
	}

	if len(rejected) > 0 {
		result.Message = fmt.Sprintf("rejected hunk(s) %s of %d", strings.Join(rejected, ", "), len(fp.Hunks))
	}

	return joinLines(buf), result
}

// place locates h in buf trying the exact, offset and fuzzy tiers in turn.
func (a *hunkApplier) place(buf []string, h m.Hunk, expected, floor int) (placement, bool) {
	old := h.OldLines()
	expected = min(max(expected, floor), len(buf))
	eofAnchored := h.TrailingContext() < a.contextLines

	if matchesAt(buf, old, expected) && (!eofAnchored || expected+len(old) == len(buf)) {
		return placement{
			pos:      expected,
			consumed: len(old),
			out:      h.NewLines(),
			result:   m.HunkResult{Mode: m.ModeExact, Success: true, FuzzyQuality: 1, Location: expected},
		}, true
	}

	if pos, ok := closestMatch(buf, old, expected, floor); ok {
		return placement{
			pos:      pos,
			consumed: len(old),
			out:      h.NewLines(),
			result: m.HunkResult{
				Mode: m.ModeOffset, Success: true, FuzzyQuality: 1, OffsetWarning: true, Location: pos,
			},
		}, true
	}

	return a.placeFuzzy(buf, h, old, expected, floor)
}

func matchesAt(buf, old []string, pos int) bool {
	if pos < 0 || pos+len(old) > len(buf) {
		return false
	}

	for i, line := range old {
		if buf[pos+i] != line {
			return false
		}
	}

	return true
}

// closestMatch finds the exact occurrence of old nearest to expected at or
// after floor. Ties go to the earlier position.
func closestMatch(buf, old []string, expected, floor int) (int, bool) {
	best, found := 0, false

	for pos := floor; pos+len(old) <= len(buf); pos++ {
		if !matchesAt(buf, old, pos) {
			continue
		}

		if !found || abs(pos-expected) < abs(best-expected) {
			best, found = pos, true
		}

		if pos > expected {
			break
		}
	}

	return best, found
}

// placeFuzzy scores every window of len(old) lines by 2*M/T, M being the
// matched line count and T the total line count of both sides.
func (a *hunkApplier) placeFuzzy(buf []string, h m.Hunk, old []string, expected, floor int) (placement, bool) {
	failed := placement{result: m.HunkResult{Mode: m.ModeFuzzy, Success: false, Location: -1}}

	if len(old) == 0 || floor >= len(buf) {
		return failed, false
	}

	matcher := difflib.NewMatcherWithJunk(nil, old, false, nil)

	bestPos, bestScore := -1, 0.0
	last := max(floor, len(buf)-len(old))

	for pos := floor; pos <= last; pos++ {
		window := buf[pos:min(pos+len(old), len(buf))]
		matcher.SetSeq1(window)

		if matcher.QuickRatio() < max(bestScore, a.threshold) {
			continue
		}

		score := matcher.Ratio()

		switch {
		case score > bestScore:
			bestPos, bestScore = pos, score
		case score == bestScore && bestPos >= 0 && abs(pos-expected) < abs(bestPos-expected):
			bestPos = pos
		}
	}

	if bestPos < 0 || bestScore < a.threshold {
		failed.result.FuzzyQuality = bestScore
		return failed, false
	}

	window := buf[bestPos:min(bestPos+len(old), len(buf))]
	matcher.SetSeq1(window)

	return placement{
		pos:      bestPos,
		consumed: len(window),
		out:      alignHunk(h, window, matcher.GetMatchingBlocks()),
		result: m.HunkResult{
			Mode: m.ModeFuzzy, Success: true, FuzzyQuality: bestScore, Location: bestPos,
		},
	}, true
}

// alignHunk rewrites window with the hunk's changes. Matched context keeps
// the baseline text, matched deletions are dropped and insertions are placed
// in hunk order. An unmatched old line stands in for the next unmatched
// window line, which is kept; window lines left over are kept too.
func alignHunk(h m.Hunk, window []string, blocks []difflib.Match) []string {
	oldLen := 0
	for _, l := range h.Lines {
		if l.Op != m.OpInsert {
			oldLen++
		}
	}

	oldToWin := make([]int, oldLen)
	for i := range oldToWin {
		oldToWin[i] = -1
	}

	for _, b := range blocks {
		for k := 0; k < b.Size; k++ {
			oldToWin[b.B+k] = b.A + k
		}
	}

	// limit[i] is the window index of the first matched old line at or after i.
	limit := make([]int, oldLen+1)
	limit[oldLen] = len(window)

	for i := oldLen - 1; i >= 0; i-- {
		limit[i] = limit[i+1]
		if oldToWin[i] >= 0 {
			limit[i] = oldToWin[i]
		}
	}

	out := make([]string, 0, len(window)+h.NewLen)
	next, oldIdx := 0, 0

	for _, l := range h.Lines {
		if l.Op == m.OpInsert {
			out = append(out, l.Key())
			continue
		}

		w := oldToWin[oldIdx]
		lim := limit[oldIdx]
		oldIdx++

		if w < 0 {
			if next < lim {
				out = append(out, window[next])
				next++
			}

			continue
		}

		out = append(out, window[next:w]...)
		if l.Op == m.OpContext {
			out = append(out, window[w])
		}

		next = w + 1
	}

	return append(out, window[next:]...)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}

	return n
}
