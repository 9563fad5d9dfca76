package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"strata.dev/pkg/strata/internal/adapter"
	m "strata.dev/pkg/strata/internal/model"
)

// DefaultDiffExtensions lists the path suffixes that are stored as line
// patches. Other changed files are only captured when they are new.
var DefaultDiffExtensions = []string{
	".cs", ".csproj", ".ico", ".resx", ".png", "App.config", ".json", ".targets", ".txt", ".bat", ".sh",
}

// DiffArgs names the trees of one diff run. Node is only used for logging.
type DiffArgs struct {
	Node     string
	Baseline m.Path
	Target   m.Path
	PatchDir m.Path
}

// Differ turns the difference between a baseline and a target tree into a
// patch directory.
type Differ interface {
	Diff(ctx context.Context, args DiffArgs) (m.DiffReport, error)
}

type differ struct {
	fsAdapter  adapter.SourceFSAdapter
	codec      adapter.PatchCodec
	lines      LineDiffer
	scheduler  Scheduler
	extensions []string
}

// NewDiffer creates a Differ. An empty extensions list selects
// DefaultDiffExtensions.
func NewDiffer(
	fsAdapter adapter.SourceFSAdapter,
	codec adapter.PatchCodec,
	lines LineDiffer,
	scheduler Scheduler,
	extensions []string,
) Differ {
	if len(extensions) == 0 {
		extensions = DefaultDiffExtensions
	}

	return &differ{
		fsAdapter:  fsAdapter,
		codec:      codec,
		lines:      lines,
		scheduler:  scheduler,
		extensions: extensions,
	}
}

type diffTracker struct {
	mu     sync.Mutex
	report m.DiffReport
}

func (t *diffTracker) patched(rel m.RelFile) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.report.Patched = append(t.report.Patched, rel)
}

func (t *diffTracker) copied(rel m.RelFile) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.report.Copied = append(t.report.Copied, rel)
}

func (t *diffTracker) unchanged() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.report.Unchanged++
}

func (d *differ) Diff(ctx context.Context, args DiffArgs) (m.DiffReport, error) {
	log := slog.With("run", uuid.NewString(), "node", args.Node)

	if !d.fsAdapter.IsDir(args.Baseline) {
		return m.DiffReport{}, &MissingSourceError{Role: "baseline", Path: args.Baseline}
	}

	if !d.fsAdapter.IsDir(args.Target) {
		return m.DiffReport{}, &MissingSourceError{Role: "target", Path: args.Target}
	}

	if err := d.fsAdapter.MkdirAll(args.PatchDir); err != nil {
		log.Error("failed to create patch directory", "path", args.PatchDir, "error", err)
		return m.DiffReport{}, fmt.Errorf("create patch directory: %w", err)
	}

	targetFiles, err := d.fsAdapter.ListFiles(args.Target, true)
	if err != nil {
		log.Error("failed to list target", "path", args.Target, "error", err)
		return m.DiffReport{}, fmt.Errorf("list target: %w", err)
	}

	log.Info("diffing", "baseline", args.Baseline, "target", args.Target, "patches", args.PatchDir, "files", len(targetFiles))

	tracker := &diffTracker{report: m.DiffReport{Node: args.Node}}
	tasks := make([]Task, 0, len(targetFiles))

	for _, tf := range targetFiles {
		tasks = append(tasks, func(_ context.Context) error {
			return d.diffFile(args, tf, tracker)
		})
	}

	batchErr := d.scheduler.Run(ctx, tasks)
	if batchErr != nil {
		log.Error("some files could not be diffed", "error", batchErr)
	}

	targetSet := make(map[m.RelFile]bool, len(targetFiles))
	for _, tf := range targetFiles {
		targetSet[tf.Rel] = true
	}

	stale, err := d.removeStale(args.PatchDir, targetSet)
	if err != nil {
		log.Error("failed to remove stale patches", "error", err)
		return tracker.report, errors.Join(batchErr, err)
	}

	removed, err := d.writeRemoved(args, targetSet)
	if err != nil {
		log.Error("failed to write removed file list", "error", err)
		return tracker.report, errors.Join(batchErr, err)
	}

	report := tracker.report
	report.Stale = stale
	report.Removed = removed
	slices.Sort(report.Patched)
	slices.Sort(report.Copied)

	log.Info("diff finished",
		"patched", len(report.Patched),
		"copied", len(report.Copied),
		"unchanged", report.Unchanged,
		"removed", len(report.Removed),
		"stale", report.Stale,
	)

	if batchErr != nil {
		return report, fmt.Errorf("diff %s: %w", args.Node, batchErr)
	}

	return report, nil
}

// diffFile owns PatchDir/rel and PatchDir/rel.patch; no other task touches them.
func (d *differ) diffFile(args DiffArgs, tf m.TreeFile, tracker *diffTracker) error {
	rel := tf.Rel
	if rel.HasSuffix(adapter.PatchSuffix) || rel == adapter.RemovedListName {
		return fmt.Errorf("%w: %s", ErrUnsupportedPath, rel)
	}

	copyPath := args.PatchDir.Join(rel.String())
	patchPath := args.PatchDir.Join(rel.String() + adapter.PatchSuffix)
	basePath := args.Baseline.Join(rel.String())

	if !d.fsAdapter.IsFile(basePath) {
		if err := d.copyWhole(tf, copyPath, patchPath); err != nil {
			return err
		}

		tracker.copied(rel)

		return nil
	}

	if !d.isDiffable(rel) {
		tracker.unchanged()
		return d.deleteArtifacts(copyPath, patchPath)
	}

	old, err := d.fsAdapter.ReadFile(basePath)
	if err != nil {
		return fmt.Errorf("read baseline %s: %w", rel, err)
	}

	updated, err := d.fsAdapter.ReadFile(tf.Abs)
	if err != nil {
		return fmt.Errorf("read target %s: %w", rel, err)
	}

	fp := d.lines.Diff(rel, old, updated)
	if len(fp.Hunks) == 0 {
		tracker.unchanged()
		return d.deleteArtifacts(copyPath, patchPath)
	}

	data, err := d.codec.EncodePatch(fp)
	if errors.Is(err, adapter.ErrUnencodable) {
		slog.Warn("patch not representable, storing whole file", "path", rel, "error", err)

		if err := d.copyWhole(tf, copyPath, patchPath); err != nil {
			return err
		}

		tracker.copied(rel)

		return nil
	}

	if err != nil {
		return fmt.Errorf("encode patch %s: %w", rel, err)
	}

	if err := d.fsAdapter.WriteFile(patchPath, data, 0o600); err != nil {
		return fmt.Errorf("write patch %s: %w", rel, err)
	}

	if err := d.fsAdapter.DeleteFile(copyPath); err != nil {
		return fmt.Errorf("delete stale copy %s: %w", rel, err)
	}

	tracker.patched(rel)

	return nil
}

func (d *differ) copyWhole(tf m.TreeFile, copyPath, patchPath m.Path) error {
	if err := d.fsAdapter.CopyFile(tf.Abs, copyPath); err != nil {
		return fmt.Errorf("copy %s: %w", tf.Rel, err)
	}

	if err := d.fsAdapter.DeleteFile(patchPath); err != nil {
		return fmt.Errorf("delete stale patch %s: %w", tf.Rel, err)
	}

	return nil
}

func (d *differ) deleteArtifacts(paths ...m.Path) error {
	for _, p := range paths {
		if err := d.fsAdapter.DeleteFile(p); err != nil {
			return fmt.Errorf("delete stale artifact %s: %w", p, err)
		}
	}

	return nil
}

func (d *differ) isDiffable(rel m.RelFile) bool {
	return slices.ContainsFunc(d.extensions, func(ext string) bool {
		return strings.HasSuffix(rel.String(), ext)
	})
}

// removeStale deletes patch-dir files whose target no longer exists and
// prunes the directories that became empty.
func (d *differ) removeStale(patchDir m.Path, targetSet map[m.RelFile]bool) (int, error) {
	files, err := d.fsAdapter.ListFiles(patchDir, true)
	if err != nil {
		return 0, fmt.Errorf("list patch directory: %w", err)
	}

	stale := 0

	for _, pf := range files {
		if pf.Rel == adapter.RemovedListName {
			continue
		}

		if targetSet[pf.Rel.TrimSuffix(adapter.PatchSuffix)] {
			continue
		}

		if err := d.fsAdapter.DeleteFile(pf.Abs); err != nil {
			return stale, fmt.Errorf("delete stale %s: %w", pf.Rel, err)
		}

		stale++
	}

	if _, err := d.fsAdapter.DeleteEmptyDirs(patchDir); err != nil {
		return stale, fmt.Errorf("prune patch directory: %w", err)
	}

	return stale, nil
}

// writeRemoved records the baseline files the target dropped.
func (d *differ) writeRemoved(args DiffArgs, targetSet map[m.RelFile]bool) ([]m.RelFile, error) {
	baseFiles, err := d.fsAdapter.ListFiles(args.Baseline, true)
	if err != nil {
		return nil, fmt.Errorf("list baseline: %w", err)
	}

	var removed []m.RelFile

	for _, bf := range baseFiles {
		if !targetSet[bf.Rel] {
			removed = append(removed, bf.Rel)
		}
	}

	listPath := args.PatchDir.Join(adapter.RemovedListName)

	if len(removed) == 0 {
		return nil, d.fsAdapter.DeleteFile(listPath)
	}

	if err := d.fsAdapter.WriteFile(listPath, d.codec.EncodeRemoved(removed), 0o600); err != nil {
		return nil, fmt.Errorf("write %s: %w", adapter.RemovedListName, err)
	}

	return removed, nil
}
