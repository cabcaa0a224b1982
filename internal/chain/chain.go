// Package chain describes the remote grid resource the client talks to:
// an append-only event log with asynchronous reads, two event streams and
// batched writes, reached through a wallet that owns the write session.
//
// Implementations live in internal/devchain (local SQLite log) and
// internal/ethchain (EVM contract).
package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/daviddao/megagrid/internal/grid"
)

var (
	// ErrRejected reports that the wallet user declined a request.
	ErrRejected = errors.New("request rejected")
	// ErrUnsupported reports that the wallet cannot serve a request,
	// for example switching to a network it has never seen.
	ErrUnsupported = errors.New("request unsupported")
	// ErrNoWallet reports that no wallet provider is available.
	ErrNoWallet = errors.New("no wallet found")
)

// SingleColored confirms one cell.
type SingleColored struct {
	ID    int        `json:"id"`
	Color grid.Color `json:"color"`
}

// BatchColored confirms several cells. IDs and Colors are index-aligned.
type BatchColored struct {
	IDs    []int        `json:"ids"`
	Colors []grid.Color `json:"colors"`
}

// Validate checks that the two sequences line up.
func (b BatchColored) Validate() error {
	if len(b.IDs) != len(b.Colors) {
		return fmt.Errorf("batch has %d ids and %d colors", len(b.IDs), len(b.Colors))
	}
	return nil
}

// Reader is the read surface of the remote grid.
type Reader interface {
	GridDimension(ctx context.Context) (int, error)
	CellColor(ctx context.Context, id int) (grid.Color, error)
}

// Feed opens event subscriptions. Each Watch call returns once the
// subscription is set up; deliveries are posted on sink, one ordered batch
// per send, until ctx is done.
type Feed interface {
	WatchSingle(ctx context.Context, sink chan<- []SingleColored) error
	WatchBatch(ctx context.Context, sink chan<- []BatchColored) error
}

// Currency is the native unit metadata of a network.
type Currency struct {
	Name     string `yaml:"name" json:"name"`
	Symbol   string `yaml:"symbol" json:"symbol"`
	Decimals int    `yaml:"decimals" json:"decimals"`
}

// Network is the descriptor handed to a wallet when adding a network.
type Network struct {
	ChainID      uint64
	Name         string
	Currency     Currency
	RPCURLs      []string
	ExplorerURLs []string
}

// Provider is the wallet. Requests may block until the user answers a
// prompt; failures wrap ErrRejected or ErrUnsupported when the wallet says
// so.
type Provider interface {
	CurrentNetwork(ctx context.Context) (uint64, error)
	SwitchNetwork(ctx context.Context, chainID uint64) error
	AddNetwork(ctx context.Context, n Network) error
	RequestAccounts(ctx context.Context) ([]string, error)
	BindSession(chainID uint64, account string) (Session, error)
}

// Session is a write-capable binding of an account to a network.
type Session interface {
	Account() string
	ChainID() uint64
	// SubmitBatch sends one batched write and returns its reference
	// (a transaction hash or equivalent).
	SubmitBatch(ctx context.Context, ids []int, colors []grid.Color) (string, error)
}

// Backend bundles what a client needs from one remote grid.
type Backend struct {
	Reader   Reader
	Feed     Feed
	Provider Provider // nil when no wallet is configured
	Close    func() error
}
