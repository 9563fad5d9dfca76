// Package controller renders strata results on the terminal.
package controller

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	m "strata.dev/pkg/strata/internal/model"
)

// StartMode defines the mode of operation for the UI.
type StartMode int

// Available StartMode values.
const (
	ModeNodes StartMode = iota
	ModeInstall
	ModeDecompile
	ModeDiff
	ModePatch
)

func (s StartMode) String() string {
	switch s {
	case ModeNodes:
		return "nodes"
	case ModeInstall:
		return "install"
	case ModeDecompile:
		return "decompile"
	case ModeDiff:
		return "diff"
	case ModePatch:
		return "patch"
	default:
		return "unknown"
	}
}

// StartOption is a functional option for Start method.
type StartOption func(*StartConfig)

// StartConfig holds configuration for starting the UI.
type StartConfig struct {
	mode StartMode
}

// WithMode sets the operation the UI reports on.
func WithMode(mode StartMode) StartOption {
	return func(c *StartConfig) {
		c.mode = mode
	}
}

func newStartConfig(options []StartOption) StartConfig {
	var cfg StartConfig
	for _, opt := range options {
		opt(&cfg)
	}

	return cfg
}

// NodeRow is the display form of one workspace node.
type NodeRow struct {
	Name     string
	Kind     m.Kind
	Parent   string
	Depot    string
	PatchDir m.Path
}

// UI defines how workflow progress and results are shown.
// Implementations can use different output methods (simple text, TUI, etc).
type UI interface {
	Start(ctx context.Context, options ...StartOption) error
	Close(ctx context.Context)
	Wait(ctx context.Context) // Wait for UI to finish (user closes it)
	DisplayNodes(ctx context.Context, rows []NodeRow) error
	DisplayNodeStarted(ctx context.Context, node m.Node, baseline string)
	DisplayNodeSkipped(ctx context.Context, node m.Node, reason string)
	DisplayNodeFailed(ctx context.Context, node m.Node, err error)
	DisplayDiffReport(ctx context.Context, report m.DiffReport)
	DisplayPatchReport(ctx context.Context, report m.PatchReport)
	DisplayPatchSummary(ctx context.Context, stats m.PatchStats, results []m.FileApplyResult)
}

// NewUI picks the TUI for terminals and the SimpleUI otherwise.
func NewUI(cmd *cobra.Command, isTTY bool) UI {
	if isTTY {
		return NewTUI(cmd.OutOrStdout())
	}

	return NewSimpleUI(cmd)
}

// IsTTY reports whether f is attached to a terminal.
func IsTTY(f *os.File) bool {
	return f != nil && term.IsTerminal(int(f.Fd()))
}
