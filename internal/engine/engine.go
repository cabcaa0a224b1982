// Package engine reconciles speculative local edits with confirmed remote
// events into one rendered grid.
//
// An Engine is driven from a single goroutine: local edits, event
// application, and the bookkeeping halves of flush and connect all mutate
// engine state without locks. Only the remote calls (Submission.Submit and
// wallet negotiation) may run elsewhere; their results come back through
// FinishFlush and Adopt on the owning goroutine.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/daviddao/megagrid/internal/buffer"
	"github.com/daviddao/megagrid/internal/chain"
	"github.com/daviddao/megagrid/internal/grid"
	"github.com/daviddao/megagrid/internal/subscriber"
	"github.com/daviddao/megagrid/internal/wallet"
)

// ErrOutOfRange rejects edits addressed off the grid.
var ErrOutOfRange = errors.New("cell out of range")

// Surface is the render target. The engine paints it imperatively and never
// reads it back.
type Surface interface {
	Init(width, height int)
	PaintCell(x, y int, c grid.Color)
	ClearOverlay()
	DrawHighlight(x, y int)
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the diagnostic logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithDefaultDimension sets the grid size used when the remote read fails.
func WithDefaultDimension(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.fallback = grid.Dim(n)
		}
	}
}

// WithTracer overrides the tracer used for connect and flush spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// Engine owns the optimistic buffer and every paint of the surface.
type Engine struct {
	backend    chain.Backend
	surface    Surface
	negotiator *wallet.Negotiator
	log        *slog.Logger
	tracer     trace.Tracer
	fallback   grid.Dim

	dim     grid.Dim
	buf     *buffer.Buffer
	sub     *subscriber.Subscription
	session chain.Session
	wallet  wallet.State
	status  string
}

// New builds an engine for backend that paints surface and negotiates
// writes on target.
func New(backend chain.Backend, surface Surface, target chain.Network, opts ...Option) *Engine {
	e := &Engine{
		backend:  backend,
		surface:  surface,
		log:      slog.Default(),
		tracer:   otel.Tracer("github.com/daviddao/megagrid/internal/engine"),
		fallback: grid.DefaultDimension,
		buf:      buffer.New(),
		wallet:   wallet.Disconnected,
	}
	for _, o := range opts {
		o(e)
	}
	e.dim = e.fallback
	e.negotiator = wallet.NewNegotiator(backend.Provider, target, e.log)
	return e
}

// Start reads the grid size, paints the placeholder checkerboard and opens
// both event subscriptions. The subscriptions live as long as ctx. Nothing
// here is fatal: a failed size read falls back to the default dimension.
func (e *Engine) Start(ctx context.Context) *subscriber.Subscription {
	e.dim = e.readDimension(ctx)
	n := int(e.dim)
	e.surface.Init(n, n)
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			e.surface.PaintCell(x, y, grid.Checker(x, y))
		}
	}
	e.sub = subscriber.Start(ctx, e.backend.Feed, e.log)
	e.setStatus(fmt.Sprintf("grid %dx%d", n, n))
	return e.sub
}

func (e *Engine) readDimension(ctx context.Context) grid.Dim {
	if e.backend.Reader == nil {
		e.log.Warn("no grid reader; using default dimension", "n", int(e.fallback))
		return e.fallback
	}
	n, err := e.backend.Reader.GridDimension(ctx)
	if err != nil || n <= 0 {
		e.log.Warn("grid size read failed; using default", "n", int(e.fallback), "got", n, "err", err)
		return e.fallback
	}
	return grid.Dim(n)
}

// Dim returns the grid size of the session.
func (e *Engine) Dim() grid.Dim { return e.dim }

// Subscription returns the event streams opened by Start.
func (e *Engine) Subscription() *subscriber.Subscription { return e.sub }

// Status is the single user-facing status line.
func (e *Engine) Status() string { return e.status }

func (e *Engine) setStatus(s string) { e.status = s }

// Pending returns the unconfirmed local edits in insertion order.
func (e *Engine) Pending() []buffer.Entry { return e.buf.Entries() }

// LocalEdit records color as the pending color of id and paints it.
func (e *Engine) LocalEdit(id int, color int64) error {
	if !e.dim.Valid(id) {
		return fmt.Errorf("%w: id %d on %dx%d grid", ErrOutOfRange, id, e.dim, e.dim)
	}
	c := grid.Normalize(color)
	e.buf.Put(id, c)
	e.surface.PaintCell(e.dim.X(id), e.dim.Y(id), c)
	localEdits.Inc()
	pendingCells.Set(float64(e.buf.Len()))
	return nil
}

// EditAt is LocalEdit addressed by pointer coordinates.
func (e *Engine) EditAt(x, y int, color int64) error {
	if !e.dim.Contains(x, y) {
		return fmt.Errorf("%w: (%d,%d)", ErrOutOfRange, x, y)
	}
	return e.LocalEdit(e.dim.ID(x, y), color)
}

// Highlight moves the hover marker to (x, y). Coordinates off the grid are
// ignored and reported as false.
func (e *Engine) Highlight(x, y int) bool {
	if !e.dim.Contains(x, y) {
		return false
	}
	e.surface.ClearOverlay()
	e.surface.DrawHighlight(x, y)
	return true
}

// ApplySingle paints one delivery of single-cell confirmations in order.
// Pending local edits are left in the buffer.
func (e *Engine) ApplySingle(events []chain.SingleColored) {
	for _, ev := range events {
		e.paintConfirmed(ev.ID, ev.Color, "single")
	}
}

// ApplyBatch paints one delivery of batch confirmations, each in index
// order. Misaligned batches are dropped.
func (e *Engine) ApplyBatch(events []chain.BatchColored) {
	for _, ev := range events {
		if err := ev.Validate(); err != nil {
			e.log.Warn("dropping malformed batch event", "err", err)
			continue
		}
		for i, id := range ev.IDs {
			e.paintConfirmed(id, ev.Colors[i], "batch")
		}
	}
}

func (e *Engine) paintConfirmed(id int, c grid.Color, kind string) {
	if !e.dim.Valid(id) {
		e.log.Warn("confirmed event off grid", "id", id, "kind", kind)
		return
	}
	e.surface.PaintCell(e.dim.X(id), e.dim.Y(id), grid.Normalize(int64(c)))
	confirmedCells.WithLabelValues(kind).Inc()
}

// Op is work scheduled onto the goroutine running Run.
type Op func(*Engine)

// Run drains both subscriptions and ops until ctx ends. Each delivery is
// applied as a whole before the next message is taken; which channel wins
// when several are ready is unspecified.
func (e *Engine) Run(ctx context.Context, ops <-chan Op) error {
	if e.sub == nil {
		return errors.New("engine not started")
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d := <-e.sub.Singles():
			e.ApplySingle(d)
		case d := <-e.sub.Batches():
			e.ApplyBatch(d)
		case op, ok := <-ops:
			if !ok {
				ops = nil
				continue
			}
			op(e)
		}
	}
}
