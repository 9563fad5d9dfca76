package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"strata.dev/pkg/strata/internal/adapter"
	m "strata.dev/pkg/strata/internal/model"
)

// PatchArgs names the trees of one patch run. Node is only used for logging.
type PatchArgs struct {
	Node        string
	Baseline    m.Path
	PatchDir    m.Path
	Destination m.Path
}

// Patcher rebuilds a destination tree from a baseline tree and a patch
// directory.
type Patcher interface {
	Patch(ctx context.Context, args PatchArgs) (m.PatchReport, error)
}

type patcher struct {
	fsAdapter    adapter.SourceFSAdapter
	codec        adapter.PatchCodec
	applier      HunkApplier
	scheduler    Scheduler
	writePartial bool
}

// NewPatcher creates a Patcher. With writePartial set, files whose patch
// only partly applied are written with the hunks that did apply.
func NewPatcher(
	fsAdapter adapter.SourceFSAdapter,
	codec adapter.PatchCodec,
	applier HunkApplier,
	scheduler Scheduler,
	writePartial bool,
) Patcher {
	return &patcher{
		fsAdapter:    fsAdapter,
		codec:        codec,
		applier:      applier,
		scheduler:    scheduler,
		writePartial: writePartial,
	}
}

// patchRun is the state shared by the tasks of one Patch call.
type patchRun struct {
	accountedMu sync.Mutex
	accounted   map[m.RelFile]bool

	exact, offset, fuzzy, warnings, failures atomic.Int64
	patched, copied                          atomic.Int64

	resultsMu sync.Mutex
	results   []m.FileApplyResult
}

func (r *patchRun) account(rel m.RelFile) {
	r.accountedMu.Lock()
	defer r.accountedMu.Unlock()

	r.accounted[rel] = true
}

func (r *patchRun) isAccounted(rel m.RelFile) bool {
	r.accountedMu.Lock()
	defer r.accountedMu.Unlock()

	return r.accounted[rel]
}

func (r *patchRun) record(res m.FileApplyResult) {
	r.resultsMu.Lock()
	defer r.resultsMu.Unlock()

	r.results = append(r.results, res)
}

func (r *patchRun) count(res m.FileApplyResult) {
	for _, h := range res.Hunks {
		if !h.Success {
			r.failures.Add(1)
			continue
		}

		switch h.Mode {
		case m.ModeExact:
			r.exact.Add(1)
		case m.ModeOffset:
			r.offset.Add(1)
		case m.ModeFuzzy:
			r.fuzzy.Add(1)
		}

		if h.OffsetWarning {
			r.warnings.Add(1)
		}
	}
}

func (r *patchRun) fail(rel m.RelFile, patchFile m.Path, msg string) {
	r.failures.Add(1)
	r.record(m.FileApplyResult{Path: rel, PatchFile: patchFile, Success: false, Message: msg})
}

// report fills base with the counters and sorted results gathered so far.
func (r *patchRun) report(base m.PatchReport) m.PatchReport {
	r.resultsMu.Lock()
	results := append([]m.FileApplyResult(nil), r.results...)
	r.resultsMu.Unlock()

	sort.Slice(results, func(i, j int) bool {
		return results[i].Path < results[j].Path
	})

	base.Stats = r.stats()
	base.Results = results
	base.Patched = int(r.patched.Load())
	base.Copied = int(r.copied.Load())

	return base
}

func (r *patchRun) stats() m.PatchStats {
	return m.PatchStats{
		Exact:    int(r.exact.Load()),
		Offset:   int(r.offset.Load()),
		Fuzzy:    int(r.fuzzy.Load()),
		Warnings: int(r.warnings.Load()),
		Failures: int(r.failures.Load()),
	}
}

func (p *patcher) Patch(ctx context.Context, args PatchArgs) (m.PatchReport, error) {
	log := slog.With("run", uuid.NewString(), "node", args.Node)

	if !p.fsAdapter.IsDir(args.Baseline) {
		return m.PatchReport{}, &MissingSourceError{Role: "baseline", Path: args.Baseline}
	}

	var patchFiles []m.TreeFile

	if p.fsAdapter.IsDir(args.PatchDir) {
		files, err := p.fsAdapter.ListFiles(args.PatchDir, true)
		if err != nil {
			log.Error("failed to list patch directory", "path", args.PatchDir, "error", err)
			return m.PatchReport{}, fmt.Errorf("list patch directory: %w", err)
		}

		patchFiles = files
	} else {
		log.Warn("patch directory missing, treating it as empty", "path", args.PatchDir)
	}

	if err := p.fsAdapter.MkdirAll(args.Destination); err != nil {
		log.Error("failed to create destination", "path", args.Destination, "error", err)
		return m.PatchReport{}, fmt.Errorf("create destination: %w", err)
	}

	noCopy, err := p.readRemoved(args.PatchDir)
	if err != nil {
		log.Error("failed to read removed file list", "error", err)
		return m.PatchReport{}, err
	}

	run := &patchRun{accounted: make(map[m.RelFile]bool)}

	var patchTasks, overrideTasks, baseTasks []Task

	for _, pf := range patchFiles {
		switch {
		case pf.Rel == adapter.RemovedListName:
			continue
		case pf.Rel.HasSuffix(adapter.PatchSuffix):
			rel := pf.Rel.TrimSuffix(adapter.PatchSuffix)
			noCopy[rel] = true

			patchTasks = append(patchTasks, func(_ context.Context) error {
				p.patchFile(args, pf, rel, run)
				return nil
			})
		default:
			noCopy[pf.Rel] = true

			overrideTasks = append(overrideTasks, func(_ context.Context) error {
				return p.copyInto(args.Destination, pf, run)
			})
		}
	}

	baseFiles, err := p.fsAdapter.ListFiles(args.Baseline, true)
	if err != nil {
		log.Error("failed to list baseline", "path", args.Baseline, "error", err)
		return m.PatchReport{}, fmt.Errorf("list baseline: %w", err)
	}

	for _, bf := range baseFiles {
		if noCopy[bf.Rel] {
			continue
		}

		baseTasks = append(baseTasks, func(_ context.Context) error {
			return p.copyInto(args.Destination, bf, run)
		})
	}

	log.Info("patching",
		"baseline", args.Baseline,
		"patches", args.PatchDir,
		"destination", args.Destination,
		"patch_files", len(patchTasks),
		"overrides", len(overrideTasks),
		"copies", len(baseTasks),
	)

	var batchErrs []error

	for _, batch := range [][]Task{patchTasks, overrideTasks, baseTasks} {
		if err := p.scheduler.Run(ctx, batch); err != nil {
			batchErrs = append(batchErrs, err)
		}
	}

	report := m.PatchReport{Node: args.Node}

	if err := ctx.Err(); err != nil {
		return run.report(report), fmt.Errorf("patch %s: %w", args.Node, err)
	}

	deleted, cleanErr := p.removeUnaccounted(args.Destination, run)
	if cleanErr != nil {
		log.Error("failed to clean destination", "error", cleanErr)
		batchErrs = append(batchErrs, cleanErr)
	}

	report.Deleted = deleted
	report = run.report(report)

	log.Info("patch finished",
		"exact", report.Stats.Exact,
		"offset", report.Stats.Offset,
		"fuzzy", report.Stats.Fuzzy,
		"warnings", report.Stats.Warnings,
		"failures", report.Stats.Failures,
		"deleted", report.Deleted,
	)

	if len(batchErrs) > 0 {
		err := errors.Join(batchErrs...)
		log.Error("failed to build destination", "error", err)

		return report, fmt.Errorf("patch %s: %w", args.Node, err)
	}

	return report, nil
}

func (p *patcher) readRemoved(patchDir m.Path) (map[m.RelFile]bool, error) {
	noCopy := make(map[m.RelFile]bool)

	listPath := patchDir.Join(adapter.RemovedListName)
	if !p.fsAdapter.IsFile(listPath) {
		return noCopy, nil
	}

	data, err := p.fsAdapter.ReadFile(listPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", adapter.RemovedListName, err)
	}

	removed, err := p.codec.DecodeRemoved(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", adapter.RemovedListName, err)
	}

	for _, rel := range removed {
		noCopy[rel] = true
	}

	return noCopy, nil
}

// patchFile reconstructs one file. Failures are recorded on run and never
// returned, so one bad patch does not affect its siblings.
func (p *patcher) patchFile(args PatchArgs, pf m.TreeFile, rel m.RelFile, run *patchRun) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("patch panicked", "path", rel, "panic", r, "stack", string(debug.Stack()))
			run.fail(rel, pf.Abs, fmt.Sprintf("panic: %v", r))
		}
	}()

	data, err := p.fsAdapter.ReadFile(pf.Abs)
	if err != nil {
		run.fail(rel, pf.Abs, fmt.Sprintf("read patch: %v", err))
		return
	}

	fp, err := p.codec.DecodePatch(rel, data)
	if err != nil {
		run.fail(rel, pf.Abs, fmt.Sprintf("parse patch: %v", err))
		return
	}

	basePath := args.Baseline.Join(rel.String())
	if !p.fsAdapter.IsFile(basePath) {
		run.fail(rel, pf.Abs, "baseline file does not exist")
		return
	}

	baseline, err := p.fsAdapter.ReadFile(basePath)
	if err != nil {
		run.fail(rel, pf.Abs, fmt.Sprintf("read baseline: %v", err))
		return
	}

	mode, err := p.fsAdapter.FileMode(basePath)
	if err != nil {
		run.fail(rel, pf.Abs, err.Error())
		return
	}

	out, res := p.applier.Apply(baseline, fp)
	res.PatchFile = pf.Abs

	run.count(res)

	switch {
	case res.Success || p.writePartial:
		if err := p.fsAdapter.WriteFile(args.Destination.Join(rel.String()), out, mode); err != nil {
			run.failures.Add(1)

			res.Success = false
			res.Message = fmt.Sprintf("write: %v", err)
		} else {
			run.account(rel)
			run.patched.Add(1)
		}
	default:
		slog.Warn("not writing partially patched file", "path", rel)
	}

	if !res.Clean() {
		run.record(res)
	}
}

func (p *patcher) copyInto(dest m.Path, tf m.TreeFile, run *patchRun) error {
	if err := p.fsAdapter.CopyFile(tf.Abs, dest.Join(tf.Rel.String())); err != nil {
		run.fail(tf.Rel, "", fmt.Sprintf("copy failed: %v", err))
		return fmt.Errorf("copy %s: %w", tf.Rel, err)
	}

	run.account(tf.Rel)
	run.copied.Add(1)

	return nil
}

// removeUnaccounted deletes destination files no batch produced and prunes
// empty directories.
func (p *patcher) removeUnaccounted(dest m.Path, run *patchRun) (int, error) {
	files, err := p.fsAdapter.ListFiles(dest, true)
	if err != nil {
		return 0, fmt.Errorf("list destination: %w", err)
	}

	deleted := 0

	for _, df := range files {
		if run.isAccounted(df.Rel) {
			continue
		}

		if err := p.fsAdapter.DeleteFile(df.Abs); err != nil {
			return deleted, fmt.Errorf("delete stale %s: %w", df.Rel, err)
		}

		deleted++
	}

	if _, err := p.fsAdapter.DeleteEmptyDirs(dest); err != nil {
		return deleted, fmt.Errorf("prune destination: %w", err)
	}

	return deleted, nil
}
