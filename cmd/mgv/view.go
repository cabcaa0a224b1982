package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/dustin/go-humanize"

	"github.com/daviddao/megagrid/internal/grid"
)

// --- Styles ---

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			Background(lipgloss.Color("#1E1E2E")).
			Padding(0, 1)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6C7086"))

	modeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#89B4FA")).
			Bold(true)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#CDD6F4")).
			Background(lipgloss.Color("#1E1E2E"))
)

// chromeRows is the title bar plus the status bar.
const chromeRows = 2

// --- Layout ---

// viewport returns the visible grid window: its top-left cell and how many
// cells fit across and down. The window follows the cursor.
func (m uiModel) viewport() (ox, oy, cols, rows int) {
	n := int(m.eng.Dim())
	cols = min(n, max(1, m.width/m.cellWidth))
	rows = min(n, max(1, m.height-chromeRows))
	ox = min(max(0, m.curX-cols/2), n-cols)
	oy = min(max(0, m.curY-rows/2), n-rows)
	return ox, oy, cols, rows
}

// cellAt maps a terminal position to a grid cell.
func (m uiModel) cellAt(sx, sy int) (x, y int, ok bool) {
	if m.width == 0 {
		return 0, 0, false
	}
	ox, oy, cols, rows := m.viewport()
	row := sy - 1
	col := sx / m.cellWidth
	if sx < 0 || row < 0 || row >= rows || col >= cols {
		return 0, 0, false
	}
	x, y = ox+col, oy+row
	return x, y, m.eng.Dim().Contains(x, y)
}

// --- View rendering ---

func (m uiModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(m.renderTitleBar())
	b.WriteRune('\n')

	content := truncateLines(m.renderGrid(), m.width)
	b.WriteString(content)

	// Pad to fill screen.
	rendered := strings.Count(b.String(), "\n")
	for rendered < m.height-1 {
		b.WriteRune('\n')
		rendered++
	}

	if m.showHelp {
		b.WriteString(m.help.View(keys))
	} else {
		b.WriteString(m.renderStatusBar())
	}
	return b.String()
}

func (m uiModel) renderTitleBar() string {
	n := int(m.eng.Dim())
	title := titleStyle.Render("megagrid")
	stats := dimStyle.Render(fmt.Sprintf(
		"%dx%d | %s pending | wallet %s",
		n, n,
		humanize.Comma(int64(len(m.eng.Pending()))),
		m.eng.WalletState(),
	))
	gap := strings.Repeat(" ", max(0, m.width-lipgloss.Width(title)-lipgloss.Width(stats)-2))
	return title + gap + stats
}

func (m uiModel) renderGrid() string {
	ox, oy, cols, rows := m.viewport()
	hx, hy, hasHL := m.canvas.Highlight()
	styles := make(map[grid.Color]lipgloss.Style)
	blank := strings.Repeat(" ", m.cellWidth)
	mark := strings.Repeat("▒", m.cellWidth)

	var b strings.Builder
	for y := oy; y < oy+rows; y++ {
		for x := ox; x < ox+cols; x++ {
			c := m.canvas.At(x, y)
			st, ok := styles[c]
			if !ok {
				st = lipgloss.NewStyle().
					Background(lipgloss.Color(c.Hex())).
					Foreground(lipgloss.Color(contrast(c).Hex()))
				styles[c] = st
			}
			if hasHL && x == hx && y == hy {
				b.WriteString(st.Render(mark))
			} else {
				b.WriteString(st.Render(blank))
			}
		}
		if y < oy+rows-1 {
			b.WriteRune('\n')
		}
	}
	return b.String()
}

func (m uiModel) renderStatusBar() string {
	left := " " + m.eng.Status()
	if m.connecting {
		left += " | connecting…"
	}
	mode := m.mode.String()
	if m.mode == modePicker {
		mode += " " + m.color.Hex()
	}
	right := fmt.Sprintf("%s  (%d,%d) ", modeStyle.Render(mode), m.curX, m.curY)
	gap := strings.Repeat(" ", max(0, m.width-lipgloss.Width(left)-lipgloss.Width(right)))
	return statusBarStyle.Render(left + gap + right)
}

// contrast picks black or white, whichever reads better on c.
func contrast(c grid.Color) grid.Color {
	r, g, b := c.RGB()
	if int(r)*299+int(g)*587+int(b)*114 > 128*1000 {
		return 0x000000
	}
	return 0xffffff
}

// --- Helpers ---

// truncateLines truncates each line in content to at most width visible
// characters, preserving ANSI escape codes. This prevents terminal line
// wrapping when the window is resized narrower.
func truncateLines(content string, width int) string {
	if width <= 0 {
		return content
	}
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		if lipgloss.Width(line) > width {
			lines[i] = ansi.Truncate(line, width, "")
		}
	}
	return strings.Join(lines, "\n")
}
