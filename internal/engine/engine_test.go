package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daviddao/megagrid/internal/buffer"
	"github.com/daviddao/megagrid/internal/chain"
	"github.com/daviddao/megagrid/internal/grid"
	"github.com/daviddao/megagrid/internal/wallet"
)

type paint struct {
	X, Y  int
	Color grid.Color
}

type recorder struct {
	w, h      int
	paints    []paint
	overlays  int
	highlight [2]int
}

func (r *recorder) Init(w, h int) { r.w, r.h = w, h }
func (r *recorder) PaintCell(x, y int, c grid.Color) { r.paints = append(r.paints, paint{x, y, c}) }
func (r *recorder) ClearOverlay() { r.overlays++ }
func (r *recorder) DrawHighlight(x, y int) { r.highlight = [2]int{x, y} }

type fakeReader struct {
	n   int
	err error
}

func (f fakeReader) GridDimension(context.Context) (int, error) { return f.n, f.err }
func (f fakeReader) CellColor(context.Context, int) (grid.Color, error) {
	return 0, nil
}

type fakeFeed struct {
	singles chan<- []chain.SingleColored
	batches chan<- []chain.BatchColored
}

func (f *fakeFeed) WatchSingle(_ context.Context, sink chan<- []chain.SingleColored) error {
	f.singles = sink
	return nil
}

func (f *fakeFeed) WatchBatch(_ context.Context, sink chan<- []chain.BatchColored) error {
	f.batches = sink
	return nil
}

type submitCall struct {
	IDs    []int
	Colors []grid.Color
}

type fakeSession struct {
	calls []submitCall
	err   error
}

func (s *fakeSession) Account() string { return "0xabc" }
func (s *fakeSession) ChainID() uint64 { return 6342 }
func (s *fakeSession) SubmitBatch(_ context.Context, ids []int, colors []grid.Color) (string, error) {
	s.calls = append(s.calls, submitCall{IDs: ids, Colors: colors})
	if s.err != nil {
		return "", s.err
	}
	return "0xdeadbeefcafe0001", nil
}

type fakeProvider struct {
	session *fakeSession
	current uint64
	calls   []string
}

func (p *fakeProvider) CurrentNetwork(context.Context) (uint64, error) {
	p.calls = append(p.calls, "chainId")
	return p.current, nil
}
func (p *fakeProvider) SwitchNetwork(context.Context, uint64) error {
	p.calls = append(p.calls, "switch")
	return chain.ErrUnsupported
}
func (p *fakeProvider) AddNetwork(context.Context, chain.Network) error {
	p.calls = append(p.calls, "add")
	return chain.ErrRejected
}
func (p *fakeProvider) RequestAccounts(context.Context) ([]string, error) {
	p.calls = append(p.calls, "accounts")
	return []string{"0xabc"}, nil
}
func (p *fakeProvider) BindSession(uint64, string) (chain.Session, error) {
	return p.session, nil
}

var target = chain.Network{ChainID: 6342, Name: "MegaETH Testnet"}

func newEngine(t *testing.T, n int) (*Engine, *recorder, *fakeFeed) {
	t.Helper()
	rec := &recorder{}
	feed := &fakeFeed{}
	e := New(chain.Backend{Reader: fakeReader{n: n}, Feed: feed}, rec, target)
	e.Start(context.Background())
	rec.paints = nil
	return e, rec, feed
}

func connect(e *Engine, s *fakeSession) {
	e.Adopt(wallet.Result{State: wallet.Connected, Address: "0xabc", Session: s})
}

func TestStartPaintsCheckerboard(t *testing.T) {
	rec := &recorder{}
	e := New(chain.Backend{Reader: fakeReader{n: 4}}, rec, target)
	e.Start(context.Background())

	assert.Equal(t, grid.Dim(4), e.Dim())
	assert.Equal(t, 4, rec.w)
	assert.Equal(t, 4, rec.h)
	require.Len(t, rec.paints, 16)
	for _, p := range rec.paints {
		assert.Equal(t, grid.Checker(p.X, p.Y), p.Color)
	}
	assert.Equal(t, grid.CheckerLight, rec.paints[0].Color)
	assert.Equal(t, grid.CheckerDark, rec.paints[1].Color)
}

func TestStartFallsBackToDefaultDimension(t *testing.T) {
	rec := &recorder{}
	e := New(chain.Backend{Reader: fakeReader{err: errors.New("rpc down")}}, rec, target)
	e.Start(context.Background())
	assert.Equal(t, grid.Dim(grid.DefaultDimension), e.Dim())
	assert.Equal(t, grid.DefaultDimension, rec.w)

	rec = &recorder{}
	e = New(chain.Backend{Reader: fakeReader{err: errors.New("rpc down")}}, rec, target, WithDefaultDimension(8))
	e.Start(context.Background())
	assert.Equal(t, grid.Dim(8), e.Dim())
	assert.Len(t, rec.paints, 64)
}

func TestLocalEditOverwrites(t *testing.T) {
	e, rec, _ := newEngine(t, 128)

	require.NoError(t, e.LocalEdit(5, 0x112233))
	require.NoError(t, e.LocalEdit(5, 0x445566))

	assert.Equal(t, []buffer.Entry{{ID: 5, Color: 0x445566}}, e.Pending())
	assert.Equal(t, []paint{{5, 0, 0x112233}, {5, 0, 0x445566}}, rec.paints)
}

func TestLocalEditNormalizesColor(t *testing.T) {
	e, rec, _ := newEngine(t, 16)

	require.NoError(t, e.LocalEdit(17, 0x7F00FF00FF))
	assert.Equal(t, []buffer.Entry{{ID: 17, Color: 0x00FF00FF & 0xFFFFFF}}, e.Pending())
	assert.Equal(t, paint{1, 1, 0xFF00FF}, rec.paints[0])
}

func TestLocalEditRejectsOffGrid(t *testing.T) {
	e, rec, _ := newEngine(t, 4)

	assert.ErrorIs(t, e.LocalEdit(16, 1), ErrOutOfRange)
	assert.ErrorIs(t, e.LocalEdit(-1, 1), ErrOutOfRange)
	assert.ErrorIs(t, e.EditAt(4, 0, 1), ErrOutOfRange)
	assert.Empty(t, e.Pending())
	assert.Empty(t, rec.paints)

	require.NoError(t, e.EditAt(3, 2, 0xABCDEF))
	assert.Equal(t, []buffer.Entry{{ID: 11, Color: 0xABCDEF}}, e.Pending())
}

func TestHighlight(t *testing.T) {
	e, rec, _ := newEngine(t, 4)

	assert.True(t, e.Highlight(2, 3))
	assert.Equal(t, [2]int{2, 3}, rec.highlight)
	assert.Equal(t, 1, rec.overlays)

	assert.False(t, e.Highlight(4, 0))
	assert.Equal(t, 1, rec.overlays)
}

func TestFlushEmptyBuffer(t *testing.T) {
	e, _, _ := newEngine(t, 128)
	s := &fakeSession{}
	connect(e, s)

	res := e.Flush(context.Background())
	assert.Equal(t, FlushNoChanges, res.Status)
	assert.Empty(t, s.calls)
	assert.Equal(t, "no changes", e.Status())
}

func TestFlushEmptyBufferWithoutSession(t *testing.T) {
	e, _, _ := newEngine(t, 128)
	res := e.Flush(context.Background())
	assert.Equal(t, FlushNoChanges, res.Status)
}

func TestFlushWithoutSession(t *testing.T) {
	e, _, _ := newEngine(t, 128)
	require.NoError(t, e.LocalEdit(1, 1))

	res := e.Flush(context.Background())
	assert.Equal(t, FlushFailed, res.Status)
	assert.ErrorIs(t, res.Err, ErrNotConnected)
	assert.Len(t, e.Pending(), 1)
	assert.Equal(t, "connect wallet first", e.Status())
}

func TestFlushSuccessClearsBuffer(t *testing.T) {
	e, _, _ := newEngine(t, 128)
	s := &fakeSession{}
	connect(e, s)
	require.NoError(t, e.LocalEdit(1, 0xAABBCC))
	require.NoError(t, e.LocalEdit(2, 0x001122))

	res := e.Flush(context.Background())

	require.Equal(t, FlushSubmitted, res.Status)
	assert.Equal(t, 2, res.Cells)
	assert.Equal(t, "0xdeadbeefcafe0001", res.Ref)
	require.Len(t, s.calls, 1)
	assert.Equal(t, []int{1, 2}, s.calls[0].IDs)
	assert.Equal(t, []grid.Color{0xAABBCC, 0x001122}, s.calls[0].Colors)
	assert.Empty(t, e.Pending())
	assert.Equal(t, "tx: 0xdeadbeef…", e.Status())
}

func TestFlushFailureKeepsBuffer(t *testing.T) {
	e, _, _ := newEngine(t, 128)
	s := &fakeSession{err: errors.New("user denied transaction")}
	connect(e, s)
	require.NoError(t, e.LocalEdit(1, 0xAABBCC))
	require.NoError(t, e.LocalEdit(2, 0x001122))
	before := e.Pending()

	res := e.Flush(context.Background())

	assert.Equal(t, FlushFailed, res.Status)
	assert.Error(t, res.Err)
	assert.Equal(t, before, e.Pending())
	assert.Equal(t, "tx failed", e.Status())

	// Manual retry is one more attempt.
	s.err = nil
	res = e.Flush(context.Background())
	assert.Equal(t, FlushSubmitted, res.Status)
	assert.Len(t, s.calls, 2)
	assert.Empty(t, e.Pending())
}

func TestFlushClearsEditsMadeInFlight(t *testing.T) {
	e, _, _ := newEngine(t, 128)
	s := &fakeSession{}
	connect(e, s)
	require.NoError(t, e.LocalEdit(1, 0xAABBCC))

	sub, err := e.PrepareFlush()
	require.NoError(t, err)
	require.NoError(t, e.LocalEdit(9, 0x123456)) // lands while the write is pending
	ref, err := sub.Submit(context.Background())
	res := e.FinishFlush(sub, ref, err)

	assert.Equal(t, FlushSubmitted, res.Status)
	assert.Equal(t, []int{1}, s.calls[0].IDs)
	assert.Empty(t, e.Pending(), "success clears the whole live buffer")
}

func TestApplySingle(t *testing.T) {
	e, rec, _ := newEngine(t, 128)
	require.NoError(t, e.LocalEdit(7, 0x010101))
	rec.paints = nil

	e.ApplySingle([]chain.SingleColored{{ID: 7, Color: 0xFF00FF}})

	assert.Equal(t, []paint{{7, 0, 0xFF00FF}}, rec.paints)
	assert.Equal(t, []buffer.Entry{{ID: 7, Color: 0x010101}}, e.Pending(), "confirmation does not clear pending edits")
}

func TestApplyBatchIndexOrder(t *testing.T) {
	e, rec, _ := newEngine(t, 128)

	e.ApplyBatch([]chain.BatchColored{{IDs: []int{3, 4}, Colors: []grid.Color{0x000000, 0xFFFFFF}}})

	assert.Equal(t, []paint{{3, 0, 0x000000}, {4, 0, 0xFFFFFF}}, rec.paints)
}

func TestApplyBatchDropsMalformedAndOffGrid(t *testing.T) {
	e, rec, _ := newEngine(t, 4)

	e.ApplyBatch([]chain.BatchColored{
		{IDs: []int{1, 2}, Colors: []grid.Color{1}},
		{IDs: []int{99, 5}, Colors: []grid.Color{1, 2}},
	})

	assert.Equal(t, []paint{{1, 1, 2}}, rec.paints)
}

func TestRepeatedConfirmationRepaints(t *testing.T) {
	e, rec, _ := newEngine(t, 8)
	ev := []chain.SingleColored{{ID: 3, Color: 0x123456}}
	e.ApplySingle(ev)
	e.ApplySingle(ev)
	assert.Equal(t, []paint{{3, 0, 0x123456}, {3, 0, 0x123456}}, rec.paints)
}

func TestConnectChainFailure(t *testing.T) {
	s := &fakeSession{}
	p := &fakeProvider{session: s, current: 1}
	rec := &recorder{}
	e := New(chain.Backend{Reader: fakeReader{n: 4}, Provider: p}, rec, target)
	e.Start(context.Background())
	require.NoError(t, e.LocalEdit(1, 1))
	paints := len(rec.paints)

	res := e.Connect(context.Background())

	assert.Equal(t, wallet.ChainFailed, res.State)
	assert.Equal(t, []string{"chainId", "switch", "add"}, p.calls)
	assert.Nil(t, e.Session())
	assert.Equal(t, wallet.ChainFailed, e.WalletState())
	assert.Len(t, e.Pending(), 1, "buffer untouched")
	assert.Len(t, rec.paints, paints, "rendering untouched")
	assert.Contains(t, e.Status(), "manually")
}

func TestConnectBindsSession(t *testing.T) {
	s := &fakeSession{}
	p := &fakeProvider{session: s, current: target.ChainID}
	e := New(chain.Backend{Reader: fakeReader{n: 4}, Provider: p}, &recorder{}, target)
	e.Start(context.Background())

	res := e.Connect(context.Background())

	assert.Equal(t, wallet.Connected, res.State)
	assert.Equal(t, []string{"chainId", "accounts"}, p.calls)
	assert.Same(t, s, e.Session())
	assert.Equal(t, "connected: 0xabc", e.Status())
}

func TestReconnectFailureKeepsSession(t *testing.T) {
	s := &fakeSession{}
	p := &fakeProvider{session: &fakeSession{}, current: 1}
	e := New(chain.Backend{Reader: fakeReader{n: 4}, Provider: p}, &recorder{}, target)
	e.Start(context.Background())
	connect(e, s)

	res := e.Connect(context.Background())

	assert.Equal(t, wallet.ChainFailed, res.State)
	assert.Same(t, s, e.Session())
	assert.Equal(t, wallet.Connected, e.WalletState())
	assert.Contains(t, e.Status(), "manually")
}

func TestPrepareFlushCountsOutcomes(t *testing.T) {
	noChanges := flushTotal.WithLabelValues(FlushNoChanges.String())
	failed := flushTotal.WithLabelValues(FlushFailed.String())
	e, _, _ := newEngine(t, 8)

	before := testutil.ToFloat64(noChanges)
	_, err := e.PrepareFlush()
	assert.ErrorIs(t, err, ErrNoChanges)
	assert.Equal(t, before+1, testutil.ToFloat64(noChanges))

	require.NoError(t, e.LocalEdit(1, 1))
	before = testutil.ToFloat64(failed)
	_, err = e.PrepareFlush()
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Equal(t, before+1, testutil.ToFloat64(failed))

	before = testutil.ToFloat64(noChanges)
	e2, _, _ := newEngine(t, 8)
	assert.Equal(t, FlushNoChanges, e2.Flush(context.Background()).Status)
	assert.Equal(t, before+1, testutil.ToFloat64(noChanges), "Flush counts once")
}

func TestConnectNoWallet(t *testing.T) {
	e := New(chain.Backend{Reader: fakeReader{n: 4}}, &recorder{}, target)
	e.Start(context.Background())
	require.NoError(t, e.LocalEdit(2, 2))

	res := e.Connect(context.Background())
	assert.ErrorIs(t, res.Err, chain.ErrNoWallet)
	assert.Equal(t, "no wallet found", e.Status())
	assert.Len(t, e.Pending(), 1)
}

func TestRunDrainsSubscriptions(t *testing.T) {
	e, rec, feed := newEngine(t, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ops := make(chan Op)
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx, ops) }()

	feed.singles <- []chain.SingleColored{{ID: 1, Color: 0x111111}}
	feed.batches <- []chain.BatchColored{{IDs: []int{2, 3}, Colors: []grid.Color{0x222222, 0x333333}}}

	var count int
	for count < 3 {
		got := make(chan int)
		ops <- func(e *Engine) { got <- len(rec.paints) }
		count = <-got
		if count < 3 {
			time.Sleep(5 * time.Millisecond)
		}
	}

	edited := make(chan error)
	ops <- func(e *Engine) { edited <- e.LocalEdit(4, 0x444444) }
	require.NoError(t, <-edited)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Len(t, rec.paints, 4)
	assert.Equal(t, []buffer.Entry{{ID: 4, Color: 0x444444}}, e.Pending())
}

func TestRunRequiresStart(t *testing.T) {
	e := New(chain.Backend{}, &recorder{}, target)
	assert.Error(t, e.Run(context.Background(), nil))
}

func TestFlushStatusString(t *testing.T) {
	assert.Equal(t, "no-changes", FlushNoChanges.String())
	assert.Equal(t, "submitted", FlushSubmitted.String())
	assert.Equal(t, "failed", FlushFailed.String())
}
