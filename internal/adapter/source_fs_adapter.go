// Package adapter contains filesystem, codec and external-tool adapters for strata.
package adapter

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	m "strata.dev/pkg/strata/internal/model"
)

// vcsDirs are version-control metadata directories excluded from tree scans.
var vcsDirs = map[string]struct{}{
	".git": {},
	".hg":  {},
	".svn": {},
}

// IsVCSDir reports whether name is a version-control metadata directory.
func IsVCSDir(name string) bool {
	_, ok := vcsDirs[name]
	return ok
}

// SourceFSAdapter abstracts the filesystem bookkeeping used by the diff and
// patch engines so the domain layer never touches `os` directly.
//
//nolint:interfacebloat // The reconciler surface is a single cohesive concern.
type SourceFSAdapter interface {
	// ListFiles returns every regular file under root in lexical order. When
	// skipVCS is true version-control metadata directories are not entered.
	ListFiles(root m.Path, skipVCS bool) ([]m.TreeFile, error)

	// ReadFile loads a file from disk and returns its contents.
	ReadFile(path m.Path) ([]byte, error)

	// IsDir reports whether path exists and is a directory.
	IsDir(path m.Path) bool

	// IsFile reports whether path exists and is a regular file.
	IsFile(path m.Path) bool

	// FileMode returns the permission bits of path.
	FileMode(path m.Path) (os.FileMode, error)

	// CopyFile copies src to dst, creating parent directories and keeping the
	// source permissions.
	CopyFile(src, dst m.Path) error

	// CopyDir recursively copies a directory tree, optionally skipping VCS dirs.
	CopyDir(src, dst m.Path, skipVCS bool) error

	// WriteFile atomically replaces path with content, creating parents.
	WriteFile(path m.Path, content []byte, perm os.FileMode) error

	// DeleteFile removes a file; a missing file is not an error.
	DeleteFile(path m.Path) error

	// DeleteEmptyDirs removes directories left empty under root, bottom-up.
	// The root itself is kept. It returns the number of removed directories.
	DeleteEmptyDirs(root m.Path) (int, error)

	// MkdirAll creates a directory and its parents.
	MkdirAll(path m.Path) error

	// RemoveAll removes a directory and all its contents.
	RemoveAll(path m.Path) error

	// ClearDir empties a directory while keeping VCS metadata directories.
	ClearDir(path m.Path) error

	// RelPath returns the slash-separated path of target relative to base.
	RelPath(base, target m.Path) (m.RelFile, error)
}

// LocalSourceFSAdapter is the os-backed SourceFSAdapter.
type LocalSourceFSAdapter struct{}

// NewLocalSourceFSAdapter constructs a LocalSourceFSAdapter instance ready to
// be wired into the engines.
func NewLocalSourceFSAdapter() *LocalSourceFSAdapter {
	return &LocalSourceFSAdapter{}
}

// ListFiles walks root and collects regular files.
func (a *LocalSourceFSAdapter) ListFiles(root m.Path, skipVCS bool) ([]m.TreeFile, error) {
	rootStr := string(root)

	var files []m.TreeFile

	err := filepath.WalkDir(rootStr, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if skipVCS && path != rootStr && IsVCSDir(d.Name()) {
				return filepath.SkipDir
			}

			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := a.RelPath(root, m.Path(path))
		if err != nil {
			return err
		}

		files = append(files, m.TreeFile{Abs: m.Path(path), Rel: rel})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list files under %s: %w", root, err)
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Rel < files[j].Rel
	})

	return files, nil
}

// ReadFile loads file contents from disk.
func (a *LocalSourceFSAdapter) ReadFile(path m.Path) ([]byte, error) {
	// #nosec G304 - paths come from tree enumeration, not user input
	return os.ReadFile(string(path))
}

// IsDir reports whether path is an existing directory.
func (a *LocalSourceFSAdapter) IsDir(path m.Path) bool {
	info, err := os.Stat(string(path))
	return err == nil && info.IsDir()
}

// IsFile reports whether path is an existing regular file.
func (a *LocalSourceFSAdapter) IsFile(path m.Path) bool {
	info, err := os.Stat(string(path))
	return err == nil && info.Mode().IsRegular()
}

// FileMode returns the permission bits of path.
func (a *LocalSourceFSAdapter) FileMode(path m.Path) (os.FileMode, error) {
	info, err := os.Stat(string(path))
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}

	return info.Mode().Perm(), nil
}

// CopyFile copies a single file.
func (a *LocalSourceFSAdapter) CopyFile(src, dst m.Path) error {
	info, err := os.Stat(string(src))
	if err != nil {
		return err
	}

	return a.copyFile(string(src), string(dst), info.Mode().Perm())
}

// CopyDir recursively copies a directory tree.
func (a *LocalSourceFSAdapter) CopyDir(src, dst m.Path, skipVCS bool) error {
	return filepath.Walk(string(src), func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(string(src), path)
		if err != nil {
			return err
		}

		if info.IsDir() && skipVCS && relPath != "." && IsVCSDir(info.Name()) {
			return filepath.SkipDir
		}

		targetPath := filepath.Join(string(dst), relPath)

		if info.IsDir() {
			return os.MkdirAll(targetPath, 0o750)
		}

		if !info.Mode().IsRegular() {
			return nil
		}

		return a.copyFile(path, targetPath, info.Mode().Perm())
	})
}

// copyFile copies a single file.
func (a *LocalSourceFSAdapter) copyFile(src, dst string, mode os.FileMode) error {
	// #nosec G304 - src is an enumerated tree file, not user input
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}

	defer func() { _ = sourceFile.Close() }()

	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return err
	}

	// #nosec G304 - dst is an internal destination path, not user input
	destFile, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		_ = destFile.Close()
		return err
	}

	if err := destFile.Close(); err != nil {
		return err
	}

	return os.Chmod(dst, mode)
}

// WriteFile writes content through a temp file and rename.
func (a *LocalSourceFSAdapter) WriteFile(path m.Path, content []byte, perm os.FileMode) error {
	dir := filepath.Dir(string(path))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".strata-tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	tmpPath := tmpFile.Name()

	defer func() {
		if tmpFile != nil {
			_ = tmpFile.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(content); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("set permissions: %w", err)
	}

	if err := os.Rename(tmpPath, string(path)); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	tmpFile = nil

	return nil
}

// DeleteFile removes path if it exists.
func (a *LocalSourceFSAdapter) DeleteFile(path m.Path) error {
	err := os.Remove(string(path))
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	return err
}

// DeleteEmptyDirs prunes empty directories below root.
func (a *LocalSourceFSAdapter) DeleteEmptyDirs(root m.Path) (int, error) {
	if !a.IsDir(root) {
		return 0, nil
	}

	removed := 0

	_, err := a.pruneDir(string(root), true, &removed)

	return removed, err
}

// pruneDir reports whether dir is empty after pruning its children. VCS
// metadata directories are never entered and count as content.
func (a *LocalSourceFSAdapter) pruneDir(dir string, isRoot bool, removed *int) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, err
	}

	empty := true

	for _, entry := range entries {
		if !entry.IsDir() || IsVCSDir(entry.Name()) {
			empty = false
			continue
		}

		childEmpty, err := a.pruneDir(filepath.Join(dir, entry.Name()), false, removed)
		if err != nil {
			return false, err
		}

		if !childEmpty {
			empty = false
		}
	}

	if !empty || isRoot {
		return empty, nil
	}

	if err := os.Remove(dir); err != nil {
		return false, err
	}

	*removed++

	return true, nil
}

// MkdirAll creates path and its parents.
func (a *LocalSourceFSAdapter) MkdirAll(path m.Path) error {
	return os.MkdirAll(string(path), 0o750)
}

// RemoveAll removes a directory and all its contents.
func (a *LocalSourceFSAdapter) RemoveAll(path m.Path) error {
	return os.RemoveAll(string(path))
}

// ClearDir removes every entry of path except VCS metadata directories.
func (a *LocalSourceFSAdapter) ClearDir(path m.Path) error {
	entries, err := os.ReadDir(string(path))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() && IsVCSDir(entry.Name()) {
			continue
		}

		if err := os.RemoveAll(filepath.Join(string(path), entry.Name())); err != nil {
			return err
		}
	}

	return nil
}

// RelPath returns the relative path from base to target.
func (a *LocalSourceFSAdapter) RelPath(base, target m.Path) (m.RelFile, error) {
	rel, err := filepath.Rel(string(base), string(target))
	if err != nil {
		return "", err
	}

	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside %s", target, base)
	}

	return m.RelFile(filepath.ToSlash(rel)), nil
}
