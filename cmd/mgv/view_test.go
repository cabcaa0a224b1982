package main

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"

	"github.com/daviddao/megagrid/internal/chain"
	"github.com/daviddao/megagrid/internal/engine"
	"github.com/daviddao/megagrid/internal/grid"
	"github.com/daviddao/megagrid/internal/surface"
)

var testTarget = chain.Network{
	ChainID: 6342,
	Name:    "MegaETH Testnet",
	RPCURLs: []string{"https://carrot.megaeth.com/rpc"},
}

// testModel creates a uiModel on an 8x8 grid with no backend behind it.
func testModel() uiModel {
	return testModelFor(context.Background(), chain.Backend{})
}

// testModelFor starts an engine on b whose subscriptions live as long as ctx.
func testModelFor(ctx context.Context, b chain.Backend) uiModel {
	canvas := surface.NewCanvas()
	eng := engine.New(b, canvas, testTarget,
		engine.WithDefaultDimension(8),
		engine.WithLogger(slog.New(slog.DiscardHandler)),
	)
	eng.Start(ctx)
	m := newModel(ctx, eng, canvas, 2)
	m.width = 80
	m.height = 24
	m.help.Width = 80
	return m
}

func press(t *testing.T, m uiModel, k string) (uiModel, tea.Cmd) {
	t.Helper()
	var msg tea.KeyMsg
	switch k {
	case "up":
		msg = tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		msg = tea.KeyMsg{Type: tea.KeyDown}
	case "left":
		msg = tea.KeyMsg{Type: tea.KeyLeft}
	case "right":
		msg = tea.KeyMsg{Type: tea.KeyRight}
	case " ":
		msg = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune(" ")}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
	}
	updated, cmd := m.Update(msg)
	return updated.(uiModel), cmd
}

func TestViewLoading(t *testing.T) {
	m := testModel()
	m.width = 0 // triggers "Loading..." state

	out := m.View()
	if out != "Loading..." {
		t.Errorf("expected 'Loading...' when width=0, got %q", out)
	}
}

func TestViewFullRender(t *testing.T) {
	m := testModel()
	out := ansi.Strip(m.View())
	lines := strings.Split(out, "\n")
	if len(lines) != m.height {
		t.Fatalf("expected %d lines, got %d", m.height, len(lines))
	}
	if !strings.Contains(lines[0], "megagrid") || !strings.Contains(lines[0], "8x8") {
		t.Errorf("title bar missing name or size: %q", lines[0])
	}
	// Eight grid rows of eight cells, two columns each.
	for i := 1; i <= 8; i++ {
		if w := ansi.StringWidth(lines[i]); w != 16 {
			t.Errorf("grid row %d width = %d, want 16", i, w)
		}
	}
	if !strings.Contains(lines[len(lines)-1], "grid 8x8") {
		t.Errorf("status bar should show the start status, got %q", lines[len(lines)-1])
	}
}

func TestViewMarksHighlight(t *testing.T) {
	m := testModel()
	m, _ = press(t, m, "right")
	m, _ = press(t, m, "down")

	lines := strings.Split(ansi.Strip(m.View()), "\n")
	row := lines[2]
	if strings.Index(row, "▒▒") != len("  ") {
		t.Errorf("highlight should sit at column 2 of row 1, got %q", row)
	}
}

func TestRenderTitleBarCounts(t *testing.T) {
	m := testModel()
	m, _ = press(t, m, " ")
	m, _ = press(t, m, "right")
	m, _ = press(t, m, " ")

	title := ansi.Strip(m.renderTitleBar())
	if !strings.Contains(title, "2 pending") {
		t.Errorf("title should count pending cells: %q", title)
	}
	if !strings.Contains(title, "wallet disconnected") {
		t.Errorf("title should show wallet state: %q", title)
	}
}

func TestRenderStatusBarMode(t *testing.T) {
	m := testModel()
	if s := ansi.Strip(m.renderStatusBar()); !strings.Contains(s, "random") {
		t.Errorf("status bar should show random mode: %q", s)
	}
	m, _ = press(t, m, "c")
	s := ansi.Strip(m.renderStatusBar())
	if !strings.Contains(s, "picker "+palette[1].Hex()) {
		t.Errorf("status bar should show picker color: %q", s)
	}
}

func TestViewportFollowsCursor(t *testing.T) {
	m := testModel()
	m.width = 8 // four cells across
	m.height = 6
	for i := 0; i < 7; i++ {
		m, _ = press(t, m, "right")
	}
	ox, oy, cols, rows := m.viewport()
	if cols != 4 || rows != 4 {
		t.Errorf("viewport = %dx%d, want 4x4", cols, rows)
	}
	if ox != 4 || oy != 0 {
		t.Errorf("origin = (%d,%d), want (4,0)", ox, oy)
	}
	x, y, ok := m.cellAt(6, 1)
	if !ok || x != 7 || y != 0 {
		t.Errorf("cellAt(6,1) = (%d,%d,%v), want (7,0,true)", x, y, ok)
	}
}

func TestCellAtRejectsChrome(t *testing.T) {
	m := testModel()
	if _, _, ok := m.cellAt(0, 0); ok {
		t.Error("title bar row should not map to a cell")
	}
	if _, _, ok := m.cellAt(40, 1); ok {
		t.Error("columns past the grid should not map to a cell")
	}
	if _, _, ok := m.cellAt(0, 9); ok {
		t.Error("rows past the grid should not map to a cell")
	}
}

func TestContrast(t *testing.T) {
	if contrast(0xffffff) != 0x000000 {
		t.Error("white should get black text")
	}
	if contrast(0x000000) != 0xffffff {
		t.Error("black should get white text")
	}
	if contrast(grid.Checker(0, 0)) != 0xffffff {
		t.Error("checkerboard should get white text")
	}
}

func TestTruncateLines(t *testing.T) {
	got := truncateLines("abcdef\nab", 3)
	if got != "abc\nab" {
		t.Errorf("truncateLines = %q", got)
	}
	if truncateLines("abc", 0) != "abc" {
		t.Error("width 0 should leave content alone")
	}
}
