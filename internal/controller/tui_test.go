package controller

import (
	"bytes"
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	m "strata.dev/pkg/strata/internal/model"
)

func TestTUI_WaitPrintsBufferedOutput(t *testing.T) {
	ctx := context.Background()

	var out bytes.Buffer

	ui := NewTUI(&out)
	require.NoError(t, ui.Start(ctx, WithMode(ModePatch)))

	ui.DisplayNodeStarted(ctx, m.Node{Name: "Mod"}, "Game")
	ui.DisplayPatchSummary(ctx, m.PatchStats{Exact: 1}, nil)

	assert.Empty(t, out.String(), "output is held until Wait")

	ui.Wait(ctx)
	ui.Close(ctx)

	got := out.String()
	assert.Contains(t, got, "patch Mod (from Game)")
	assert.Contains(t, got, "0 errors")
}

func TestTUI_StartResetsBuffer(t *testing.T) {
	ctx := context.Background()

	var out bytes.Buffer

	ui := NewTUI(&out)
	require.NoError(t, ui.Start(ctx, WithMode(ModeDiff)))
	ui.DisplayNodeSkipped(ctx, m.Node{Name: "Old"}, "root node")

	require.NoError(t, ui.Start(ctx, WithMode(ModeDiff)))
	ui.DisplayNodeSkipped(ctx, m.Node{Name: "New"}, "root node")
	ui.Wait(ctx)

	assert.NotContains(t, out.String(), "Old")
	assert.Contains(t, out.String(), "New")
}

func TestPagerModel_NeedsPagination(t *testing.T) {
	content := strings.Repeat("line\n", 30)

	tests := []struct {
		name   string
		height int
		want   bool
	}{
		{name: "unknown size", height: 0, want: false},
		{name: "fits", height: 40, want: false},
		{name: "too tall", height: 10, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := newPagerModel("strata patch", content)
			if tt.height > 0 {
				model = model.resize(80, tt.height)
			}

			assert.Equal(t, tt.want, model.needsPagination())
		})
	}
}

func TestPagerModel_Update(t *testing.T) {
	model := newPagerModel("strata patch", strings.Repeat("line\n", 50)).resize(80, 12)
	assert.Equal(t, 8, model.viewport.Height)

	updated, _ := model.Update(tea.WindowSizeMsg{Width: 100, Height: 20})
	pm := updated.(pagerModel)
	assert.Equal(t, 100, pm.viewport.Width)
	assert.Equal(t, 16, pm.viewport.Height)

	updated, _ = pm.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'G'}})
	pm = updated.(pagerModel)
	assert.True(t, pm.viewport.AtBottom())

	updated, _ = pm.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'g'}})
	pm = updated.(pagerModel)
	assert.True(t, pm.viewport.AtTop())

	_, cmd := pm.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())

	assert.Contains(t, pm.View(), "strata patch")
}
