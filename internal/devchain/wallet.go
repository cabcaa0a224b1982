package devchain

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/daviddao/megagrid/internal/chain"
	"github.com/daviddao/megagrid/internal/grid"
)

// Request names a simulated user can be told to reject.
const (
	ReqSwitch   = "wallet_switchEthereumChain"
	ReqAdd      = "wallet_addEthereumChain"
	ReqAccounts = "eth_requestAccounts"
	ReqSend     = "eth_sendTransaction"
)

// WalletConfig seeds a simulated wallet.
type WalletConfig struct {
	ChainID     uint64
	KnownChains []uint64
	Accounts    []string
	Reject      []string
}

// Wallet is a simulated wallet backed by a devnet store. It is safe for
// concurrent use; requests answer immediately.
type Wallet struct {
	store *Store

	mu       sync.Mutex
	current  uint64
	known    map[uint64]chain.Network
	accounts []string
	reject   map[string]bool
}

// NewWallet returns a wallet on cfg.ChainID that knows cfg.KnownChains.
func NewWallet(store *Store, cfg WalletConfig) *Wallet {
	w := &Wallet{
		store:    store,
		current:  cfg.ChainID,
		known:    make(map[uint64]chain.Network),
		accounts: slices.Clone(cfg.Accounts),
		reject:   make(map[string]bool),
	}
	w.known[cfg.ChainID] = chain.Network{ChainID: cfg.ChainID}
	for _, id := range cfg.KnownChains {
		w.known[id] = chain.Network{ChainID: id}
	}
	for _, r := range cfg.Reject {
		w.reject[r] = true
	}
	return w
}

func (w *Wallet) declined(req string) error {
	if w.reject[req] {
		return fmt.Errorf("%s: user rejected the request: %w", req, chain.ErrRejected)
	}
	return nil
}

// CurrentNetwork returns the wallet's active chain id.
func (w *Wallet) CurrentNetwork(context.Context) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current, nil
}

// SwitchNetwork moves the wallet to a chain it already knows.
func (w *Wallet) SwitchNetwork(_ context.Context, chainID uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.declined(ReqSwitch); err != nil {
		return err
	}
	if _, ok := w.known[chainID]; !ok {
		return fmt.Errorf("unrecognized chain id %d: %w", chainID, chain.ErrUnsupported)
	}
	w.current = chainID
	return nil
}

// AddNetwork registers n and switches to it.
func (w *Wallet) AddNetwork(_ context.Context, n chain.Network) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.declined(ReqAdd); err != nil {
		return err
	}
	if n.ChainID == 0 || n.Name == "" || len(n.RPCURLs) == 0 {
		return fmt.Errorf("invalid network descriptor for chain %d: %w", n.ChainID, chain.ErrRejected)
	}
	w.known[n.ChainID] = n
	w.current = n.ChainID
	return nil
}

// RequestAccounts returns the wallet's accounts, first one active.
func (w *Wallet) RequestAccounts(context.Context) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.declined(ReqAccounts); err != nil {
		return nil, err
	}
	return slices.Clone(w.accounts), nil
}

// BindSession returns a session that writes to the devnet as account.
func (w *Wallet) BindSession(chainID uint64, account string) (chain.Session, error) {
	if account == "" {
		return nil, errors.New("empty account")
	}
	return &Session{wallet: w, chainID: chainID, account: account}, nil
}

// Session writes batches to the devnet store through its wallet.
type Session struct {
	wallet  *Wallet
	chainID uint64
	account string
}

func (s *Session) Account() string { return s.account }
func (s *Session) ChainID() uint64 { return s.chainID }

// SubmitBatch appends one batch event. It fails when the wallet has moved
// to another chain since the session was bound.
func (s *Session) SubmitBatch(ctx context.Context, ids []int, colors []grid.Color) (string, error) {
	s.wallet.mu.Lock()
	current := s.wallet.current
	err := s.wallet.declined(ReqSend)
	s.wallet.mu.Unlock()
	if err != nil {
		return "", err
	}
	if current != s.chainID {
		return "", fmt.Errorf("wallet on chain %d, session bound to %d", current, s.chainID)
	}
	batchID, err := s.wallet.store.ColorCells(ctx, s.account, ids, colors)
	if err != nil {
		return "", err
	}
	return "0x" + strings.ReplaceAll(batchID, "-", ""), nil
}
