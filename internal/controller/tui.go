package controller

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	m "strata.dev/pkg/strata/internal/model"
)

const (
	pagerHeaderHeight = 2
	pagerFooterHeight = 2
)

var (
	pagerTitleStyle = lipgloss.NewStyle().Bold(true)
	pagerHelpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// TUI implements UI for terminals. Output is collected while the workflow
// runs and shown at Wait, inside a pager when it does not fit the screen.
type TUI struct {
	output io.Writer

	mu     sync.Mutex
	buffer bytes.Buffer
	inner  *SimpleUI
	mode   StartMode
}

// NewTUI creates a new TUI.
func NewTUI(output io.Writer) *TUI {
	t := &TUI{output: output}
	t.inner = &SimpleUI{out: &t.buffer}

	return t
}

// Start initializes the UI.
func (p *TUI) Start(ctx context.Context, options ...StartOption) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.buffer.Reset()
	p.mode = newStartConfig(options).mode

	return p.inner.Start(ctx, options...)
}

// Close finalizes the UI.
func (p *TUI) Close(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.inner.Close(ctx)
}

// Wait shows the collected output and returns once the user is done with it.
func (p *TUI) Wait(ctx context.Context) {
	if err := ctx.Err(); err != nil {
		return
	}

	p.mu.Lock()
	content := p.buffer.String()
	p.buffer.Reset()
	p.mu.Unlock()

	if content == "" {
		return
	}

	model := newPagerModel(fmt.Sprintf("strata %s", p.mode), content)

	if f, ok := p.output.(*os.File); ok {
		width, height, err := term.GetSize(int(f.Fd()))
		if err == nil {
			model = model.resize(width, height)
		}
	}

	if !model.needsPagination() {
		_, _ = fmt.Fprint(p.output, content)
		return
	}

	program := tea.NewProgram(model, tea.WithOutput(p.output), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil {
		_, _ = fmt.Fprint(p.output, content)
	}
}

// DisplayNodes renders the forest table.
func (p *TUI) DisplayNodes(ctx context.Context, rows []NodeRow) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.inner.DisplayNodes(ctx, rows)
}

// DisplayNodeStarted announces work on a node.
func (p *TUI) DisplayNodeStarted(ctx context.Context, node m.Node, baseline string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.inner.DisplayNodeStarted(ctx, node, baseline)
}

// DisplayNodeSkipped reports a node the operation does not apply to.
func (p *TUI) DisplayNodeSkipped(ctx context.Context, node m.Node, reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.inner.DisplayNodeSkipped(ctx, node, reason)
}

// DisplayNodeFailed reports a node-level error.
func (p *TUI) DisplayNodeFailed(ctx context.Context, node m.Node, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.inner.DisplayNodeFailed(ctx, node, err)
}

// DisplayDiffReport summarizes one diff run.
func (p *TUI) DisplayDiffReport(ctx context.Context, report m.DiffReport) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.inner.DisplayDiffReport(ctx, report)
}

// DisplayPatchReport summarizes one patch run.
func (p *TUI) DisplayPatchReport(ctx context.Context, report m.PatchReport) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.inner.DisplayPatchReport(ctx, report)
}

// DisplayPatchSummary renders the patch totals and the unclean files.
func (p *TUI) DisplayPatchSummary(ctx context.Context, stats m.PatchStats, results []m.FileApplyResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.inner.DisplayPatchSummary(ctx, stats, results)
}

// pagerModel is a scrollable view over finished output.
type pagerModel struct {
	title    string
	lines    int
	content  string
	viewport viewport.Model
	ready    bool
	width    int
	height   int
}

func newPagerModel(title, content string) pagerModel {
	return pagerModel{
		title:   title,
		content: content,
		lines:   strings.Count(strings.TrimSuffix(content, "\n"), "\n") + 1,
	}
}

func (pm pagerModel) resize(width, height int) pagerModel {
	pm.width = width
	pm.height = height

	viewportHeight := height - pagerHeaderHeight - pagerFooterHeight
	if viewportHeight < 1 {
		viewportHeight = 1
	}

	if !pm.ready {
		pm.viewport = viewport.New(width, viewportHeight)
		pm.viewport.YPosition = pagerHeaderHeight
		pm.viewport.SetContent(pm.content)
		pm.ready = true

		return pm
	}

	pm.viewport.Width = width
	pm.viewport.Height = viewportHeight

	return pm
}

// needsPagination reports whether the content is taller than the terminal.
// An unknown height never paginates.
func (pm pagerModel) needsPagination() bool {
	if pm.height <= 0 {
		return false
	}

	return pm.lines > pm.height
}

func (pm pagerModel) Init() tea.Cmd {
	return nil
}

func (pm pagerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return pm.resize(msg.Width, msg.Height), nil
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc", "q":
			return pm, tea.Quit
		case "g", "home":
			pm.viewport.GotoTop()
			return pm, nil
		case "G", "end":
			pm.viewport.GotoBottom()
			return pm, nil
		}
	}

	var cmd tea.Cmd

	pm.viewport, cmd = pm.viewport.Update(msg)

	return pm, cmd
}

func (pm pagerModel) View() string {
	if !pm.ready {
		return pm.content
	}

	var b strings.Builder

	b.WriteString(pagerTitleStyle.Render(pm.title))
	b.WriteString("\n\n")
	b.WriteString(pm.viewport.View())
	b.WriteString("\n")
	b.WriteString(pagerHelpStyle.Render(fmt.Sprintf("%3.f%%  ↑/↓ scroll, g/G top/bottom, q quit", pm.viewport.ScrollPercent()*100)))

	return b.String()
}
