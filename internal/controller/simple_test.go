package controller

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	m "strata.dev/pkg/strata/internal/model"
)

func newBufferedSimpleUI() (*SimpleUI, *bytes.Buffer) {
	var out bytes.Buffer

	cmd := &cobra.Command{}
	cmd.SetOut(&out)

	return NewSimpleUI(cmd), &out
}

func TestSimpleUI_DisplayNodes(t *testing.T) {
	ui, out := newBufferedSimpleUI()

	err := ui.DisplayNodes(context.Background(), []NodeRow{
		{Name: "Game", Kind: m.KindDepot, Depot: "100/101", PatchDir: "patches/game"},
		{Name: "Mod", Kind: m.KindMod, Parent: "Game", PatchDir: "patches/mod"},
	})
	require.NoError(t, err)

	got := out.String()
	assert.Contains(t, got, "NAME")
	assert.Contains(t, got, "Game")
	assert.Contains(t, got, "100/101")
	assert.Contains(t, got, "patches/mod")
	assert.Contains(t, got, "TOTAL NODES 2")
}

func TestSimpleUI_NodeLifecycle(t *testing.T) {
	ctx := context.Background()
	ui, out := newBufferedSimpleUI()

	require.NoError(t, ui.Start(ctx, WithMode(ModeDiff)))

	node := m.Node{Name: "Mod"}
	ui.DisplayNodeStarted(ctx, node, "Game")
	ui.DisplayNodeSkipped(ctx, m.Node{Name: "Game"}, "root node")
	ui.DisplayNodeFailed(ctx, node, errors.New("boom"))
	ui.DisplayDiffReport(ctx, m.DiffReport{Patched: []m.RelFile{"a"}, Copied: []m.RelFile{"b", "c"}, Unchanged: 4})
	ui.Wait(ctx)
	ui.Close(ctx)

	got := out.String()
	assert.Contains(t, got, "diff Mod (from Game)")
	assert.Contains(t, got, "diff Game skipped: root node")
	assert.Contains(t, got, "diff Mod failed: boom")
	assert.Contains(t, got, "1 patched, 2 copied, 0 removed, 4 unchanged, 0 stale")
}

func TestSimpleUI_DisplayPatchSummary(t *testing.T) {
	tests := []struct {
		name    string
		stats   m.PatchStats
		results []m.FileApplyResult
		want    []string
		notWant []string
	}{
		{
			name:    "clean",
			stats:   m.PatchStats{Exact: 3},
			want:    []string{"Patching stats:", "0 errors", "0 warnings", "0 fuzzy patches"},
			notWant: []string{"Errors occurred", "PATCH"},
		},
		{
			name:  "failures and fuzz",
			stats: m.PatchStats{Fuzzy: 1, Failures: 1, Warnings: 1},
			results: []m.FileApplyResult{
				{Path: "a.cs", PatchFile: "patches/a.cs.patch", Success: false, Message: "rejected hunk(s) 1 of 1"},
				{Path: "b.cs", PatchFile: "patches/b.cs.patch", Success: true, Mode: m.ModeFuzzy, FuzzyQuality: 0.75},
			},
			want: []string{
				"Errors occurred during patching",
				"1 errors",
				"1 fuzzy patches",
				"patches/a.cs.patch",
				"rejected hunk(s) 1 of 1",
				"fuzzy patched with quality of 75.00%",
				"1 FAILED",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ui, out := newBufferedSimpleUI()

			ui.DisplayPatchSummary(context.Background(), tt.stats, tt.results)

			got := out.String()
			for _, want := range tt.want {
				assert.Contains(t, got, want)
			}

			for _, notWant := range tt.notWant {
				assert.NotContains(t, got, notWant)
			}
		})
	}
}

func TestSimpleUI_CancelledContextPrintsNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ui, out := newBufferedSimpleUI()

	require.ErrorIs(t, ui.Start(ctx), context.Canceled)
	ui.DisplayPatchReport(ctx, m.PatchReport{})
	ui.DisplayPatchSummary(ctx, m.PatchStats{}, nil)

	assert.Empty(t, out.String())
}

func TestResultDetails(t *testing.T) {
	tests := []struct {
		name string
		res  m.FileApplyResult
		want string
	}{
		{name: "message wins", res: m.FileApplyResult{Message: "write: denied", Mode: m.ModeFuzzy}, want: "write: denied"},
		{name: "fuzzy", res: m.FileApplyResult{Success: true, Mode: m.ModeFuzzy, FuzzyQuality: 0.5}, want: "fuzzy patched with quality of 50.00%"},
		{name: "offset", res: m.FileApplyResult{Success: true, Mode: m.ModeOffset, OffsetWarning: true}, want: "applied at an offset"},
		{name: "exact", res: m.FileApplyResult{Success: true}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resultDetails(tt.res))
		})
	}
}

func TestQualityLabel(t *testing.T) {
	tests := []struct {
		name string
		res  m.FileApplyResult
		want string
	}{
		{name: "failed", res: m.FileApplyResult{Success: false, FuzzyQuality: 1}, want: "-"},
		{name: "fuzzy", res: m.FileApplyResult{Success: true, Mode: m.ModeFuzzy, FuzzyQuality: 0.75}, want: "75.00%"},
		{name: "exact", res: m.FileApplyResult{Success: true, FuzzyQuality: 1}, want: "100.00%"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, qualityLabel(tt.res))
		})
	}
}
