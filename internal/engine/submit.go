package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/daviddao/megagrid/internal/chain"
	"github.com/daviddao/megagrid/internal/grid"
	"github.com/daviddao/megagrid/internal/wallet"
)

var (
	// ErrNoChanges is returned by PrepareFlush when the buffer is empty.
	ErrNoChanges = errors.New("no changes")
	// ErrNotConnected is returned by PrepareFlush when no write session is bound.
	ErrNotConnected = errors.New("connect wallet first")
)

// FlushStatus is how a flush ended.
type FlushStatus int

const (
	FlushNoChanges FlushStatus = iota
	FlushSubmitted
	FlushFailed
)

func (s FlushStatus) String() string {
	switch s {
	case FlushNoChanges:
		return "no-changes"
	case FlushSubmitted:
		return "submitted"
	case FlushFailed:
		return "failed"
	}
	return "?"
}

// FlushResult describes one flush attempt.
type FlushResult struct {
	Status FlushStatus
	Cells  int
	Ref    string // transaction reference on success
	Err    error
}

// Submission is a snapshot of the buffer bound to the session that will
// carry it. IDs and Colors are index-aligned in buffer insertion order.
type Submission struct {
	IDs     []int
	Colors  []grid.Color
	session chain.Session
	e       *Engine
}

// PrepareFlush snapshots the buffer for submission. It returns ErrNoChanges
// for an empty buffer and ErrNotConnected without a session; neither
// touches the remote. Every outcome decided here is counted in flushTotal.
func (e *Engine) PrepareFlush() (Submission, error) {
	if e.buf.Len() == 0 {
		e.setStatus(ErrNoChanges.Error())
		flushTotal.WithLabelValues(FlushNoChanges.String()).Inc()
		return Submission{}, ErrNoChanges
	}
	if e.session == nil {
		e.setStatus(ErrNotConnected.Error())
		flushTotal.WithLabelValues(FlushFailed.String()).Inc()
		return Submission{}, ErrNotConnected
	}
	ids, colors := e.buf.Snapshot()
	e.setStatus(fmt.Sprintf("sending %s cells…", humanize.Comma(int64(len(ids)))))
	return Submission{IDs: ids, Colors: colors, session: e.session, e: e}, nil
}

// Submit performs the single batched write. It touches no engine state and
// may run off the owning goroutine.
func (s Submission) Submit(ctx context.Context) (string, error) {
	ctx, span := s.e.tracer.Start(ctx, "engine.flush.submit")
	defer span.End()
	span.SetAttributes(attribute.Int("cells", len(s.IDs)))

	ref, err := s.session.SubmitBatch(ctx, s.IDs, s.Colors)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submit failed")
		return "", fmt.Errorf("submit batch of %d: %w", len(s.IDs), err)
	}
	return ref, nil
}

// FinishFlush records the outcome of s. On success the whole live buffer is
// cleared, including edits made while the submission was in flight. On
// failure the buffer is left as is for a manual retry.
func (e *Engine) FinishFlush(s Submission, ref string, err error) FlushResult {
	if err != nil {
		e.log.Error("flush failed", "cells", len(s.IDs), "err", err)
		e.setStatus("tx failed")
		flushTotal.WithLabelValues(FlushFailed.String()).Inc()
		return FlushResult{Status: FlushFailed, Cells: len(s.IDs), Err: err}
	}
	if late := e.buf.Len() - len(s.IDs); late > 0 {
		e.log.Warn("clearing edits made during submission", "cells", late)
	}
	e.buf.Clear()
	pendingCells.Set(0)
	e.log.Info("flush submitted", "cells", len(s.IDs), "ref", ref)
	e.setStatus("tx: " + shortRef(ref))
	flushTotal.WithLabelValues(FlushSubmitted.String()).Inc()
	flushCells.Observe(float64(len(s.IDs)))
	return FlushResult{Status: FlushSubmitted, Cells: len(s.IDs), Ref: ref}
}

// Flush snapshots, submits and records in one blocking call. Each call is
// exactly one attempt.
func (e *Engine) Flush(ctx context.Context) FlushResult {
	ctx, span := e.tracer.Start(ctx, "engine.flush")
	defer span.End()

	s, err := e.PrepareFlush()
	switch {
	case errors.Is(err, ErrNoChanges):
		return FlushResult{Status: FlushNoChanges}
	case err != nil:
		return FlushResult{Status: FlushFailed, Err: err}
	}
	ref, err := s.Submit(ctx)
	return e.FinishFlush(s, ref, err)
}

// Connect negotiates the write session and adopts the result.
func (e *Engine) Connect(ctx context.Context) wallet.Result {
	ctx, span := e.tracer.Start(ctx, "engine.connect")
	defer span.End()

	e.wallet = wallet.NegotiatingChain
	res := e.negotiator.Negotiate(ctx)
	span.SetAttributes(attribute.String("state", res.State.String()))
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.State.String())
	}
	e.Adopt(res)
	return res
}

// Negotiator exposes the wallet negotiator so callers can run Negotiate off
// the owning goroutine and hand the result to Adopt.
func (e *Engine) Negotiator() *wallet.Negotiator { return e.negotiator }

// Adopt installs the outcome of a negotiation. A failed attempt leaves any
// previously bound session in place, and the wallet stays Connected with it.
func (e *Engine) Adopt(res wallet.Result) {
	negotiations.WithLabelValues(res.State.String()).Inc()
	e.setStatus(res.Notice(e.negotiator.Target()))
	switch {
	case res.State == wallet.Connected:
		e.wallet = wallet.Connected
		e.session = res.Session
	case e.session != nil:
		e.log.Info("reconnect failed; keeping bound session", "state", res.State.String())
		e.wallet = wallet.Connected
	default:
		e.wallet = res.State
	}
}

// Session returns the bound write session, or nil.
func (e *Engine) Session() chain.Session { return e.session }

// WalletState is the state of the latest negotiation.
func (e *Engine) WalletState() wallet.State { return e.wallet }

func shortRef(ref string) string {
	if len(ref) <= 10 {
		return ref
	}
	return ref[:10] + "…"
}
