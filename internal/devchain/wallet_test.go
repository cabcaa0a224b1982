package devchain

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daviddao/megagrid/internal/chain"
	"github.com/daviddao/megagrid/internal/grid"
	"github.com/daviddao/megagrid/internal/wallet"
)

const acct = "0x5eaf00d000000000000000000000000000000001"

var testnet = chain.Network{
	ChainID: 6342,
	Name:    "MegaETH Testnet",
	RPCURLs: []string{"https://rpc.example"},
}

func TestWalletSwitchUnknownChainIsUnsupported(t *testing.T) {
	w := NewWallet(nil, WalletConfig{ChainID: 1, Accounts: []string{acct}})
	err := w.SwitchNetwork(context.Background(), 6342)
	assert.ErrorIs(t, err, chain.ErrUnsupported)
	assert.Equal(t, wallet.Unsupported, wallet.OutcomeOf(err))
}

func TestWalletAddThenSwitch(t *testing.T) {
	ctx := context.Background()
	w := NewWallet(nil, WalletConfig{ChainID: 1, Accounts: []string{acct}})

	require.NoError(t, w.AddNetwork(ctx, testnet))
	cur, _ := w.CurrentNetwork(ctx)
	assert.Equal(t, uint64(6342), cur)

	require.NoError(t, w.SwitchNetwork(ctx, 1))
	require.NoError(t, w.SwitchNetwork(ctx, 6342))
}

func TestWalletRejects(t *testing.T) {
	ctx := context.Background()
	w := NewWallet(nil, WalletConfig{
		ChainID:     1,
		KnownChains: []uint64{6342},
		Reject:      []string{ReqSwitch, ReqAccounts},
	})
	assert.ErrorIs(t, w.SwitchNetwork(ctx, 6342), chain.ErrRejected)
	_, err := w.RequestAccounts(ctx)
	assert.ErrorIs(t, err, chain.ErrRejected)
	assert.ErrorIs(t, w.AddNetwork(ctx, chain.Network{ChainID: 9}), chain.ErrRejected, "descriptor without name or rpc")
}

func TestNegotiateAgainstDevWallet(t *testing.T) {
	s := newTestStore(t, 8)
	w := NewWallet(s, WalletConfig{ChainID: 1, Accounts: []string{acct}})

	res := wallet.NewNegotiator(w, testnet, nil).Negotiate(context.Background())
	require.NoError(t, res.Err)
	assert.Equal(t, wallet.Connected, res.State)
	assert.Equal(t, []string{wallet.StepChainID, wallet.StepSwitch, wallet.StepAdd, wallet.StepAccounts}, res.Requests())

	ref, err := res.Session.SubmitBatch(context.Background(), []int{1, 2}, []grid.Color{0xAABBCC, 0x001122})
	require.NoError(t, err)
	assert.Len(t, ref, 34)

	c, err := s.CellColor(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, grid.Color(0xAABBCC), c)
}

func TestSessionFailsAfterChainChange(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, 8)
	w := NewWallet(s, WalletConfig{ChainID: 6342, KnownChains: []uint64{1}, Accounts: []string{acct}})
	sess, err := w.BindSession(6342, acct)
	require.NoError(t, err)

	require.NoError(t, w.SwitchNetwork(ctx, 1))
	_, err = sess.SubmitBatch(ctx, []int{1}, []grid.Color{1})
	assert.Error(t, err)
	n, _ := s.CountEvents(ctx)
	assert.Zero(t, n)
}

func TestSessionSendRejected(t *testing.T) {
	s := newTestStore(t, 8)
	w := NewWallet(s, WalletConfig{ChainID: 6342, Accounts: []string{acct}, Reject: []string{ReqSend}})
	sess, _ := w.BindSession(6342, acct)
	_, err := sess.SubmitBatch(context.Background(), []int{1}, []grid.Color{1})
	assert.True(t, errors.Is(err, chain.ErrRejected))
}

func TestBindSessionNeedsAccount(t *testing.T) {
	w := NewWallet(nil, WalletConfig{ChainID: 1})
	_, err := w.BindSession(1, "")
	assert.Error(t, err)
}
