package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"strata.dev/pkg/strata/internal/adapter"
	"strata.dev/pkg/strata/internal/controller"
	m "strata.dev/pkg/strata/internal/model"
)

const fileListSuffix = ".filelist.txt"

// Layout locates the per-node working trees.
type Layout struct {
	Downloads  m.Path
	Cloned     m.Path
	Decompiled m.Path
}

// DefaultLayout returns the layout used when nothing is configured.
func DefaultLayout() Layout {
	return Layout{Downloads: "downloads", Cloned: "cloned", Decompiled: "decompiled"}
}

// DownloadDir is where a depot is installed.
func (l Layout) DownloadDir(d m.DepotData) m.Path {
	return l.Downloads.Join(strconv.Itoa(d.AppID), strconv.Itoa(d.DepotID))
}

// FileList is the downloader file filter written next to a depot's download.
func (l Layout) FileList(d m.DepotData) m.Path {
	return l.Downloads.Join(strconv.Itoa(d.AppID), strconv.Itoa(d.DepotID)+fileListSuffix)
}

// ClonedDir is the decompiler input copy of a depot node.
func (l Layout) ClonedDir(name string) m.Path {
	return l.Cloned.Join(name)
}

// DecompiledDir is the materialized tree of a node.
func (l Layout) DecompiledDir(name string) m.Path {
	return l.Decompiled.Join(name)
}

// Selection picks the nodes an operation runs on. A non-empty Name selects
// that node, preceded by its ancestors when WithAncestors is set. Otherwise
// every node of Kind is selected, or every node when Kind is empty.
type Selection struct {
	Kind          m.Kind
	Name          string
	WithAncestors bool
}

// WorkflowArgs holds the arguments shared by every workflow operation.
type WorkflowArgs struct {
	Description m.Path
	Layout      Layout
	Selection   Selection
	Parallel    int
}

// InstallArgs contains the arguments for downloading depots.
type InstallArgs struct {
	WorkflowArgs
	Username string
	Password string
	Exclude  string
}

// DecompileArgs contains the arguments for decompiling depots.
type DecompileArgs struct {
	WorkflowArgs
}

// DiffNodesArgs contains the arguments for diffing nodes against their parents.
type DiffNodesArgs struct {
	WorkflowArgs
	ContextLines int
	Extensions   []string
}

// PatchNodesArgs contains the arguments for rebuilding nodes from their parents.
type PatchNodesArgs struct {
	WorkflowArgs
	ContextLines   int
	FuzzyThreshold float64
	WritePartial   bool
	FailOnReject   bool
}

// Workflow runs the per-node operations over a workspace forest.
type Workflow interface {
	Nodes(ctx context.Context, args WorkflowArgs) error
	Install(ctx context.Context, args InstallArgs) error
	Decompile(ctx context.Context, args DecompileArgs) error
	Diff(ctx context.Context, args DiffNodesArgs) error
	Patch(ctx context.Context, args PatchNodesArgs) error
}

type workflow struct {
	adapter.SourceFSAdapter
	controller.UI

	codec      adapter.PatchCodec
	reader     adapter.DescriptionReader
	decompiler adapter.DecompilerAdapter
	downloader adapter.DownloadAdapter
}

// NewWorkflow creates a new Workflow instance with the provided dependencies.
func NewWorkflow(
	fsAdapter adapter.SourceFSAdapter,
	codec adapter.PatchCodec,
	reader adapter.DescriptionReader,
	decompiler adapter.DecompilerAdapter,
	downloader adapter.DownloadAdapter,
	ui controller.UI,
) Workflow {
	return &workflow{
		SourceFSAdapter: fsAdapter,
		UI:              ui,
		codec:           codec,
		reader:          reader,
		decompiler:      decompiler,
		downloader:      downloader,
	}
}

// nodeStep performs one operation on one node. Returning errSkipped marks
// the node as skipped rather than failed.
type nodeStep func(ctx context.Context, forest *Forest, node m.Node) error

// errSkipped marks a node the operation does not apply to.
type errSkipped struct {
	reason string
}

func (e errSkipped) Error() string {
	return e.reason
}

func (w *workflow) load(args WorkflowArgs) (*Forest, []m.Node, error) {
	forest, err := LoadForest(w.reader, args.Description)
	if err != nil {
		slog.Error("failed to load node graph", "path", args.Description, "error", err)
		return nil, nil, fmt.Errorf("load %s: %w", args.Description, err)
	}

	nodes, err := forest.Select(args.Selection)
	if err != nil {
		slog.Error("failed to select nodes", "name", args.Selection.Name, "error", err)
		return nil, nil, err
	}

	return forest, nodes, nil
}

// eachNode runs step on every node in order. A node error is reported and
// the remaining nodes still run; errors are returned joined.
func (w *workflow) eachNode(ctx context.Context, forest *Forest, nodes []m.Node, step nodeStep) error {
	var errs []error

	for _, node := range nodes {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		baseline := ""
		if parent, ok := forest.Parent(node); ok {
			baseline = parent.Name
		}

		w.DisplayNodeStarted(ctx, node, baseline)

		err := step(ctx, forest, node)

		var skipped errSkipped

		switch {
		case err == nil:
		case errors.As(err, &skipped):
			w.DisplayNodeSkipped(ctx, node, skipped.reason)
		default:
			slog.Error("node failed", "node", node.Name, "error", err)
			w.DisplayNodeFailed(ctx, node, err)
			errs = append(errs, fmt.Errorf("%s: %w", node.Name, err))
		}
	}

	return errors.Join(errs...)
}

func (w *workflow) start(ctx context.Context, mode controller.StartMode) error {
	if err := w.Start(ctx, controller.WithMode(mode)); err != nil {
		slog.Error("Failed to start workflow UI", "error", err)
		return err
	}

	return nil
}

func (w *workflow) finish(ctx context.Context) {
	w.Wait(ctx)
	w.Close(ctx)
}

func (w *workflow) Nodes(ctx context.Context, args WorkflowArgs) error {
	forest, nodes, err := w.load(args)
	if err != nil {
		return err
	}

	if err := w.start(ctx, controller.ModeNodes); err != nil {
		return err
	}
	defer w.finish(ctx)

	rows := make([]controller.NodeRow, 0, len(nodes))

	for _, node := range nodes {
		row := controller.NodeRow{Name: node.Name, Kind: node.Kind, PatchDir: node.PatchDir}

		if parent, ok := forest.Parent(node); ok {
			row.Parent = parent.Name
		}

		if node.Depot != nil {
			row.Depot = fmt.Sprintf("%d/%d", node.Depot.AppID, node.Depot.DepotID)
		}

		rows = append(rows, row)
	}

	if err := w.DisplayNodes(ctx, rows); err != nil {
		slog.Error("Failed to display nodes", "error", err)
		return fmt.Errorf("display: %w", err)
	}

	return nil
}

func (w *workflow) Install(ctx context.Context, args InstallArgs) error {
	forest, nodes, err := w.load(args.WorkflowArgs)
	if err != nil {
		return err
	}

	if err := w.start(ctx, controller.ModeInstall); err != nil {
		return err
	}
	defer w.finish(ctx)

	installed := make(map[[2]int]bool)

	return w.eachNode(ctx, forest, nodes, func(ctx context.Context, _ *Forest, node m.Node) error {
		if node.Kind != m.KindDepot || node.Depot == nil {
			return errSkipped{reason: "not a depot"}
		}

		key := [2]int{node.Depot.AppID, node.Depot.DepotID}
		if installed[key] {
			return errSkipped{reason: fmt.Sprintf("depot %d/%d already installed", key[0], key[1])}
		}

		installed[key] = true

		return w.install(ctx, args, *node.Depot)
	})
}

func (w *workflow) install(ctx context.Context, args InstallArgs, depot m.DepotData) error {
	dir := args.Layout.DownloadDir(depot)
	fileList := args.Layout.FileList(depot)

	if err := w.WriteFile(fileList, []byte("regex:"+args.Exclude), 0o600); err != nil {
		return fmt.Errorf("write file list: %w", err)
	}

	if err := w.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove previous download %s: %w", dir, err)
	}

	slog.Info("downloading depot", "app", depot.AppID, "depot", depot.DepotID, "dir", dir)

	err := w.downloader.Download(ctx, adapter.DownloadRequest{
		AppID:    depot.AppID,
		DepotID:  depot.DepotID,
		Username: args.Username,
		Password: args.Password,
		FileList: fileList,
		Dir:      dir,
	})
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}

	return nil
}

func (w *workflow) Decompile(ctx context.Context, args DecompileArgs) error {
	forest, nodes, err := w.load(args.WorkflowArgs)
	if err != nil {
		return err
	}

	if err := w.start(ctx, controller.ModeDecompile); err != nil {
		return err
	}
	defer w.finish(ctx)

	return w.eachNode(ctx, forest, nodes, func(ctx context.Context, _ *Forest, node m.Node) error {
		if node.Kind != m.KindDepot || node.Depot == nil {
			return errSkipped{reason: "not a depot"}
		}

		return w.decompile(ctx, args.Layout, node)
	})
}

func (w *workflow) decompile(ctx context.Context, layout Layout, node m.Node) error {
	download := layout.DownloadDir(*node.Depot)
	if !w.IsDir(download) {
		return &MissingSourceError{Role: "download", Path: download}
	}

	cloned := layout.ClonedDir(node.Name)
	if err := w.RemoveAll(cloned); err != nil {
		return fmt.Errorf("remove %s: %w", cloned, err)
	}

	if err := w.CopyDir(download, cloned, true); err != nil {
		return fmt.Errorf("clone %s: %w", download, err)
	}

	entry := cloned.Join(node.Depot.PathToExecutable)
	if !w.IsFile(entry) {
		return &MissingSourceError{Role: "entry binary", Path: entry}
	}

	out := layout.DecompiledDir(node.Name)
	if err := w.ClearDir(out); err != nil {
		return fmt.Errorf("clear %s: %w", out, err)
	}

	if err := w.MkdirAll(out); err != nil {
		return fmt.Errorf("create %s: %w", out, err)
	}

	slog.Info("decompiling", "node", node.Name, "entry", entry, "out", out)

	if err := w.decompiler.Decompile(ctx, entry, out); err != nil {
		return fmt.Errorf("decompile: %w", err)
	}

	return nil
}

func (w *workflow) Diff(ctx context.Context, args DiffNodesArgs) error {
	forest, nodes, err := w.load(args.WorkflowArgs)
	if err != nil {
		return err
	}

	if err := w.start(ctx, controller.ModeDiff); err != nil {
		return err
	}
	defer w.finish(ctx)

	differ := NewDiffer(
		w.SourceFSAdapter,
		w.codec,
		NewLineDiffer(args.ContextLines),
		NewScheduler(args.Parallel),
		args.Extensions,
	)

	return w.eachNode(ctx, forest, nodes, func(ctx context.Context, forest *Forest, node m.Node) error {
		parent, ok := forest.Parent(node)
		if !ok {
			// A root's patch set is empty by definition.
			if err := w.MkdirAll(node.PatchDir); err != nil {
				return fmt.Errorf("create patch directory: %w", err)
			}

			return errSkipped{reason: "root node"}
		}

		report, err := differ.Diff(ctx, DiffArgs{
			Node:     node.Name,
			Baseline: args.Layout.DecompiledDir(parent.Name),
			Target:   args.Layout.DecompiledDir(node.Name),
			PatchDir: node.PatchDir,
		})

		if report.Node != "" {
			w.DisplayDiffReport(ctx, report)
		}

		return err
	})
}

func (w *workflow) Patch(ctx context.Context, args PatchNodesArgs) error {
	forest, nodes, err := w.load(args.WorkflowArgs)
	if err != nil {
		return err
	}

	if err := w.start(ctx, controller.ModePatch); err != nil {
		return err
	}
	defer w.finish(ctx)

	patcher := NewPatcher(
		w.SourceFSAdapter,
		w.codec,
		NewHunkApplier(args.FuzzyThreshold, args.ContextLines),
		NewScheduler(args.Parallel),
		args.WritePartial,
	)

	var (
		stats   m.PatchStats
		results []m.FileApplyResult
	)

	err = w.eachNode(ctx, forest, nodes, func(ctx context.Context, forest *Forest, node m.Node) error {
		parent, ok := forest.Parent(node)
		if !ok {
			return errSkipped{reason: "root node"}
		}

		report, err := patcher.Patch(ctx, PatchArgs{
			Node:        node.Name,
			Baseline:    args.Layout.DecompiledDir(parent.Name),
			PatchDir:    node.PatchDir,
			Destination: args.Layout.DecompiledDir(node.Name),
		})

		if report.Node != "" {
			w.DisplayPatchReport(ctx, report)

			stats.Add(report.Stats)
			results = append(results, report.Results...)
		}

		return err
	})

	w.DisplayPatchSummary(ctx, stats, results)

	if err != nil {
		return err
	}

	if args.FailOnReject && stats.Failures > 0 {
		return fmt.Errorf("%w: %d failures", ErrRejectedHunks, stats.Failures)
	}

	return nil
}
