package main

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/daviddao/megagrid/internal/chain"
	"github.com/daviddao/megagrid/internal/datasource"
	"github.com/daviddao/megagrid/internal/engine"
	"github.com/daviddao/megagrid/internal/grid"
	"github.com/daviddao/megagrid/internal/surface"
	"github.com/daviddao/megagrid/internal/wallet"
)

// runTUI connects to the backend and runs the interactive grid until the
// user quits.
func (a *app) runTUI(ctx context.Context) error {
	log, closeLog, err := openLog(a.cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	stopTracing, err := startTracing(a.cfg)
	if err != nil {
		return err
	}
	defer stopTracing(context.Background())
	defer serveMetrics(a.cfg.MetricsAddr, log)()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	b, err := datasource.Open(ctx, a.cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	canvas := surface.NewCanvas()
	eng := engine.New(b, canvas, a.cfg.Network(),
		engine.WithLogger(log),
		engine.WithDefaultDimension(a.cfg.DefaultDimension),
	)
	sub := eng.Start(ctx)

	m := newModel(ctx, eng, canvas, a.cfg.CellWidth)
	if a.cfg.Color != "" {
		c, err := grid.ParseHex(a.cfg.Color)
		if err != nil {
			return err
		}
		m.color = c
		m.mode = modePicker
	}

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseAllMotion())

	// Feed confirmed events into the TUI.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case d := <-sub.Singles():
				p.Send(singlesMsg(d))
			case d := <-sub.Batches():
				p.Send(batchesMsg(d))
			}
		}
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}

// --- Messages ---

type singlesMsg []chain.SingleColored

type batchesMsg []chain.BatchColored

type flushDoneMsg struct {
	sub engine.Submission
	ref string
	err error
}

type connectDoneMsg struct {
	res wallet.Result
}

// --- Key bindings ---

type keyMap struct {
	Up      key.Binding
	Down    key.Binding
	Left    key.Binding
	Right   key.Binding
	Paint   key.Binding
	Mode    key.Binding
	Next    key.Binding
	Flush   key.Binding
	Connect key.Binding
	Help    key.Binding
	Quit    key.Binding
}

var keys = keyMap{
	Up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("k/up", "up")),
	Down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("j/down", "down")),
	Left:    key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("h/left", "left")),
	Right:   key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("l/right", "right")),
	Paint:   key.NewBinding(key.WithKeys(" ", "enter"), key.WithHelp("space", "paint")),
	Mode:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "random/picker")),
	Next:    key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "next color")),
	Flush:   key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "send pending")),
	Connect: key.NewBinding(key.WithKeys("w"), key.WithHelp("w", "connect wallet")),
	Help:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
	Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Paint, k.Mode, k.Flush, k.Connect, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Left, k.Right},
		{k.Paint, k.Mode, k.Next},
		{k.Flush, k.Connect, k.Help, k.Quit},
	}
}

// --- Color modes ---

type colorMode int

const (
	modeRandom colorMode = iota
	modePicker
)

func (c colorMode) String() string {
	if c == modePicker {
		return "picker"
	}
	return "random"
}

// palette is what the picker cycles through with the next-color key.
var palette = []grid.Color{
	0xe63946, 0xf4a261, 0xe9c46a, 0x2a9d8f, 0x457b9d, 0x1d3557, 0x9b5de5, 0xf1faee, 0x000000,
}

// --- Model ---

type uiModel struct {
	ctx    context.Context
	eng    *engine.Engine
	canvas *surface.Canvas

	cellWidth int
	curX      int
	curY      int
	mode      colorMode
	color     grid.Color
	paletteAt int
	rng       *rand.Rand

	flushing   bool
	connecting bool

	width  int
	height int

	help     help.Model
	showHelp bool
}

func newModel(ctx context.Context, eng *engine.Engine, canvas *surface.Canvas, cellWidth int) uiModel {
	m := uiModel{
		ctx:       ctx,
		eng:       eng,
		canvas:    canvas,
		cellWidth: clampCellWidth(cellWidth),
		mode:      modeRandom,
		color:     palette[0],
		rng:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		help:      help.New(),
	}
	eng.Highlight(0, 0)
	return m
}

func (m uiModel) Init() tea.Cmd {
	return nil
}

func (m uiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Up):
			m.moveCursor(0, -1)
		case key.Matches(msg, keys.Down):
			m.moveCursor(0, 1)
		case key.Matches(msg, keys.Left):
			m.moveCursor(-1, 0)
		case key.Matches(msg, keys.Right):
			m.moveCursor(1, 0)
		case key.Matches(msg, keys.Paint):
			m.paintAt(m.curX, m.curY)
		case key.Matches(msg, keys.Mode):
			if m.mode == modeRandom {
				m.mode = modePicker
			} else {
				m.mode = modeRandom
			}
		case key.Matches(msg, keys.Next):
			m.paletteAt = (m.paletteAt + 1) % len(palette)
			m.color = palette[m.paletteAt]
			m.mode = modePicker
		case key.Matches(msg, keys.Flush):
			cmd := m.startFlush()
			return m, cmd
		case key.Matches(msg, keys.Connect):
			cmd := m.startConnect()
			return m, cmd
		case key.Matches(msg, keys.Help):
			m.showHelp = !m.showHelp
		}

	case tea.MouseMsg:
		x, y, ok := m.cellAt(msg.X, msg.Y)
		if !ok {
			return m, nil
		}
		if m.eng.Highlight(x, y) {
			m.curX, m.curY = x, y
		}
		if msg.Action == tea.MouseActionPress && msg.Button == tea.MouseButtonLeft {
			m.paintAt(x, y)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

	case singlesMsg:
		m.eng.ApplySingle(msg)

	case batchesMsg:
		m.eng.ApplyBatch(msg)

	case flushDoneMsg:
		m.flushing = false
		m.eng.FinishFlush(msg.sub, msg.ref, msg.err)

	case connectDoneMsg:
		m.connecting = false
		m.eng.Adopt(msg.res)
	}

	return m, nil
}

func (m *uiModel) moveCursor(dx, dy int) {
	x, y := m.curX+dx, m.curY+dy
	if m.eng.Highlight(x, y) {
		m.curX, m.curY = x, y
	}
}

func (m *uiModel) paintAt(x, y int) {
	c := m.color
	if m.mode == modeRandom {
		c = grid.Random(m.rng)
	}
	// EditAt reports off-grid cells; there is nothing to paint then.
	_ = m.eng.EditAt(x, y, int64(c))
}

// startFlush snapshots the pending cells and submits them off the update
// loop. A second flush while one is in flight is ignored.
func (m *uiModel) startFlush() tea.Cmd {
	if m.flushing {
		return nil
	}
	s, err := m.eng.PrepareFlush()
	if err != nil {
		return nil
	}
	m.flushing = true
	ctx := m.ctx
	return func() tea.Msg {
		ref, err := s.Submit(ctx)
		return flushDoneMsg{sub: s, ref: ref, err: err}
	}
}

// startConnect runs wallet negotiation off the update loop.
func (m *uiModel) startConnect() tea.Cmd {
	if m.connecting {
		return nil
	}
	m.connecting = true
	n := m.eng.Negotiator()
	ctx := m.ctx
	return func() tea.Msg {
		return connectDoneMsg{res: n.Negotiate(ctx)}
	}
}
