package controller

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	m "strata.dev/pkg/strata/internal/model"
)

var (
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	fuzzyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	plainStyle = lipgloss.NewStyle()
)

// SimpleUI implements UI using cobra Command's output stream.
type SimpleUI struct {
	cmd  *cobra.Command
	out  io.Writer
	mode StartMode
}

// NewSimpleUI creates a new SimpleUI.
func NewSimpleUI(cmd *cobra.Command) *SimpleUI {
	return &SimpleUI{cmd: cmd}
}

// Start initializes the UI.
func (s *SimpleUI) Start(ctx context.Context, options ...StartOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mode = newStartConfig(options).mode

	return nil
}

// Close finalizes the UI.
func (s *SimpleUI) Close(ctx context.Context) {
	if err := ctx.Err(); err != nil {
		return
	}
}

// Wait blocks until the UI is closed (no-op for SimpleUI).
func (s *SimpleUI) Wait(ctx context.Context) {
	if err := ctx.Err(); err != nil {
		return
	}
}

// DisplayNodes prints the forest as a table.
func (s *SimpleUI) DisplayNodes(ctx context.Context, rows []NodeRow) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.printf("%s", renderNodesTable(rows))

	return nil
}

func renderNodesTable(rows []NodeRow) string {
	var tableBuffer bytes.Buffer

	table := tablewriter.NewWriter(&tableBuffer)
	table.SetHeader([]string{"Name", "Kind", "Parent", "Depot", "Patch dir"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetColumnAlignment([]int{
		tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_CENTER,
		tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_CENTER,
		tablewriter.ALIGN_LEFT,
	})

	depots := 0

	for _, row := range rows {
		parent := row.Parent
		if parent == "" {
			parent = "-"
		}

		depot := row.Depot
		if depot == "" {
			depot = "-"
		} else {
			depots++
		}

		table.Append([]string{row.Name, string(row.Kind), parent, depot, string(row.PatchDir)})
	}

	table.SetFooter([]string{
		fmt.Sprintf("Total nodes %d", len(rows)),
		fmt.Sprintf("%d depot(s)", depots),
		"", "", "",
	})

	table.Render()

	return tableBuffer.String()
}

// DisplayNodeStarted announces work on a node.
func (s *SimpleUI) DisplayNodeStarted(ctx context.Context, node m.Node, baseline string) {
	if err := ctx.Err(); err != nil {
		return
	}

	if baseline == "" {
		s.printf("%s %s\n", s.mode, node.Name)
		return
	}

	s.printf("%s %s (from %s)\n", s.mode, node.Name, baseline)
}

// DisplayNodeSkipped reports a node the operation does not apply to.
func (s *SimpleUI) DisplayNodeSkipped(ctx context.Context, node m.Node, reason string) {
	if err := ctx.Err(); err != nil {
		return
	}

	s.printf("%s %s skipped: %s\n", s.mode, node.Name, reason)
}

// DisplayNodeFailed reports a node-level error.
func (s *SimpleUI) DisplayNodeFailed(ctx context.Context, node m.Node, err error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return
	}

	s.printf("%s\n", errorStyle.Render(fmt.Sprintf("%s %s failed: %v", s.mode, node.Name, err)))
}

// DisplayDiffReport summarizes one diff run.
func (s *SimpleUI) DisplayDiffReport(ctx context.Context, report m.DiffReport) {
	if err := ctx.Err(); err != nil {
		return
	}

	s.printf("  %d patched, %d copied, %d removed, %d unchanged, %d stale\n",
		len(report.Patched), len(report.Copied), len(report.Removed), report.Unchanged, report.Stale)
}

// DisplayPatchReport summarizes one patch run.
func (s *SimpleUI) DisplayPatchReport(ctx context.Context, report m.PatchReport) {
	if err := ctx.Err(); err != nil {
		return
	}

	s.printf("  %d patched, %d copied, %d deleted; hunks: %d exact, %d offset, %d fuzzy, %d failed\n",
		report.Patched, report.Copied, report.Deleted,
		report.Stats.Exact, report.Stats.Offset, report.Stats.Fuzzy, report.Stats.Failures)
}

// DisplayPatchSummary prints the colored totals followed by every file that
// did not apply cleanly.
func (s *SimpleUI) DisplayPatchSummary(ctx context.Context, stats m.PatchStats, results []m.FileApplyResult) {
	if err := ctx.Err(); err != nil {
		return
	}

	if stats.Failures > 0 {
		s.printf("%s\n", errorStyle.Render("Errors occurred during patching"))
	}

	s.printf("Patching stats: %s, %s, %s\n",
		styleIf(stats.Failures > 0, errorStyle).Render(fmt.Sprintf("%d errors", stats.Failures)),
		styleIf(stats.Warnings > 0, errorStyle).Render(fmt.Sprintf("%d warnings", stats.Warnings)),
		styleIf(stats.Fuzzy > 0, fuzzyStyle).Render(fmt.Sprintf("%d fuzzy patches", stats.Fuzzy)),
	)

	if len(results) == 0 {
		return
	}

	s.printf("\n%s", renderResultsTable(results))
}

func styleIf(cond bool, style lipgloss.Style) lipgloss.Style {
	if cond {
		return style
	}

	return plainStyle
}

func renderResultsTable(results []m.FileApplyResult) string {
	var tableBuffer bytes.Buffer

	table := tablewriter.NewWriter(&tableBuffer)
	table.SetHeader([]string{"Patch", "Result", "Quality", "Details"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetAutoWrapText(false)
	table.SetColumnAlignment([]int{
		tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_CENTER,
		tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_LEFT,
	})

	failed := 0

	for _, res := range results {
		if !res.Success {
			failed++
		}

		table.Append([]string{patchLabel(res), resultLabel(res), qualityLabel(res), resultDetails(res)})
	}

	table.SetFooter([]string{fmt.Sprintf("Files %d", len(results)), fmt.Sprintf("%d failed", failed), "", ""})
	table.Render()

	return tableBuffer.String()
}

func patchLabel(res m.FileApplyResult) string {
	if res.PatchFile != "" {
		return string(res.PatchFile)
	}

	return string(res.Path)
}

func qualityLabel(res m.FileApplyResult) string {
	if !res.Success {
		return "-"
	}

	return fmt.Sprintf("%.2f%%", res.FuzzyQuality*100)
}

func resultLabel(res m.FileApplyResult) string {
	if !res.Success {
		return "failed"
	}

	return res.Mode.String()
}

func resultDetails(res m.FileApplyResult) string {
	switch {
	case res.Message != "":
		return res.Message
	case res.Mode == m.ModeFuzzy:
		return fmt.Sprintf("fuzzy patched with quality of %.2f%%", res.FuzzyQuality*100)
	case res.OffsetWarning:
		return "applied at an offset"
	default:
		return ""
	}
}

func (s *SimpleUI) printf(format string, args ...interface{}) {
	out := s.out
	if out == nil {
		out = s.cmd.OutOrStdout()
	}

	_, _ = fmt.Fprintf(out, format, args...)
}
