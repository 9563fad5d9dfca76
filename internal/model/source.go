package model

import (
	"path"
	"path/filepath"
	"strings"
)

// Path represents a file system path.
type Path string

// String returns the path as a plain string.
func (p Path) String() string {
	return string(p)
}

// Join appends slash-separated relative elements to p using the OS separator.
func (p Path) Join(rel ...string) Path {
	parts := make([]string, 0, len(rel)+1)
	parts = append(parts, string(p))

	for _, r := range rel {
		parts = append(parts, filepath.FromSlash(r))
	}

	return Path(filepath.Join(parts...))
}

// Dir returns the parent directory of p.
func (p Path) Dir() Path {
	return Path(filepath.Dir(string(p)))
}

// IsAbs reports whether p is absolute.
func (p Path) IsAbs() bool {
	return filepath.IsAbs(string(p))
}

// Resolve makes p absolute relative to base unless it already is.
func (p Path) Resolve(base Path) Path {
	if p.IsAbs() {
		return Path(filepath.Clean(string(p)))
	}

	return Path(filepath.Join(string(base), filepath.FromSlash(string(p))))
}

// RelFile is a slash-separated path relative to a tree root.
type RelFile string

// String returns the relative path as a plain string.
func (r RelFile) String() string {
	return string(r)
}

// HasSuffix reports whether the relative path ends with suffix.
func (r RelFile) HasSuffix(suffix string) bool {
	return strings.HasSuffix(string(r), suffix)
}

// TrimSuffix strips suffix from the relative path when present.
func (r RelFile) TrimSuffix(suffix string) RelFile {
	return RelFile(strings.TrimSuffix(string(r), suffix))
}

// Base returns the last element of the relative path.
func (r RelFile) Base() string {
	return path.Base(string(r))
}

// TreeFile is a file discovered under a tree root.
type TreeFile struct {
	Abs Path
	Rel RelFile
}
