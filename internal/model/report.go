package model

// PatchStats aggregates hunk outcomes of a patch run. File-level errors count
// as one failure each.
type PatchStats struct {
	Exact    int
	Offset   int
	Fuzzy    int
	Warnings int
	Failures int
}

// Add merges other into s.
func (s *PatchStats) Add(other PatchStats) {
	s.Exact += other.Exact
	s.Offset += other.Offset
	s.Fuzzy += other.Fuzzy
	s.Warnings += other.Warnings
	s.Failures += other.Failures
}

// DiffReport summarizes one diff run.
type DiffReport struct {
	Node      string
	Patched   []RelFile
	Copied    []RelFile
	Unchanged int
	Removed   []RelFile
	Stale     int
}

// PatchReport summarizes one patch run. Results holds only files that did
// not apply cleanly.
type PatchReport struct {
	Node    string
	Stats   PatchStats
	Results []FileApplyResult
	Patched int
	Copied  int
	Deleted int
}

// Failed reports whether any hunk or file failed.
func (r PatchReport) Failed() bool {
	return r.Stats.Failures > 0
}
