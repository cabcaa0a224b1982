// Package ethchain connects the client to the grid contract on an EVM
// network: contract reads over HTTP, log subscriptions over websocket, and
// a wallet reached through EIP-1193 JSON-RPC methods.
package ethchain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/daviddao/megagrid/internal/chain"
	"github.com/daviddao/megagrid/internal/grid"
)

// GridABI is the interface of the grid contract.
const GridABI = `[
 {"inputs":[],"name":"GRID_SIZE","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
 {"inputs":[{"internalType":"uint256","name":"id","type":"uint256"}],"name":"colorOf","outputs":[{"internalType":"uint32","name":"","type":"uint32"}],"stateMutability":"view","type":"function"},
 {"inputs":[{"internalType":"uint256","name":"id","type":"uint256"},{"internalType":"uint32","name":"rgb","type":"uint32"}],"name":"colorPixel","outputs":[],"stateMutability":"nonpayable","type":"function"},
 {"inputs":[{"internalType":"uint256[]","name":"ids","type":"uint256[]"},{"internalType":"uint32[]","name":"rgbs","type":"uint32[]"}],"name":"colorPixels","outputs":[],"stateMutability":"nonpayable","type":"function"},
 {"anonymous":false,"inputs":[{"indexed":true,"internalType":"uint256","name":"id","type":"uint256"},{"indexed":false,"internalType":"uint32","name":"rgb","type":"uint32"}],"name":"PixelColored","type":"event"},
 {"anonymous":false,"inputs":[{"indexed":false,"internalType":"uint256[]","name":"ids","type":"uint256[]"},{"indexed":false,"internalType":"uint32[]","name":"rgbs","type":"uint32[]"}],"name":"PixelsColored","type":"event"}
]`

// Contract event names.
const (
	EventSingle = "PixelColored"
	EventBatch  = "PixelsColored"
)

// errNoReadSession is returned by the Watch methods without a websocket
// endpoint.
var errNoReadSession = errors.New("no subscription endpoint")

var parsedABI = mustParseABI()

func mustParseABI() abi.ABI {
	a, err := abi.JSON(strings.NewReader(GridABI))
	if err != nil {
		panic(fmt.Sprintf("grid abi: %v", err))
	}
	return a
}

type pixelColored struct {
	Id  *big.Int
	Rgb uint32
}

type pixelsColored struct {
	Ids  []*big.Int
	Rgbs []uint32
}

// Contract reads and watches the grid contract.
type Contract struct {
	address common.Address
	reader  *bind.BoundContract
	watcher *bind.BoundContract
	clients []*ethclient.Client
	log     *slog.Logger
}

// Dial connects to rpcURL for reads and, when wsURL is set, to wsURL for
// subscriptions. A failed websocket dial is logged and leaves the contract
// without subscriptions.
func Dial(ctx context.Context, rpcURL, wsURL, address string, log *slog.Logger) (*Contract, error) {
	if log == nil {
		log = slog.Default()
	}
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("contract address %q is not a hex address", address)
	}
	addr := common.HexToAddress(address)
	rc, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	c := &Contract{
		address: addr,
		reader:  bind.NewBoundContract(addr, parsedABI, rc, rc, rc),
		clients: []*ethclient.Client{rc},
		log:     log,
	}
	if wsURL != "" {
		wc, err := ethclient.DialContext(ctx, wsURL)
		if err != nil {
			log.Warn("websocket dial failed; no live events", "url", wsURL, "err", err)
		} else {
			c.watcher = bind.NewBoundContract(addr, parsedABI, wc, wc, wc)
			c.clients = append(c.clients, wc)
		}
	}
	return c, nil
}

// Address returns the contract address.
func (c *Contract) Address() common.Address { return c.address }

// Close closes the underlying clients.
func (c *Contract) Close() error {
	for _, cl := range c.clients {
		cl.Close()
	}
	return nil
}

// GridDimension calls GRID_SIZE.
func (c *Contract) GridDimension(ctx context.Context) (int, error) {
	var out []interface{}
	if err := c.reader.Call(&bind.CallOpts{Context: ctx}, &out, "GRID_SIZE"); err != nil {
		return 0, fmt.Errorf("GRID_SIZE: %w", err)
	}
	n, ok := out[0].(*big.Int)
	if !ok || !n.IsInt64() || n.Int64() > 1<<16 {
		return 0, fmt.Errorf("GRID_SIZE: unusable value %v", out[0])
	}
	return int(n.Int64()), nil
}

// CellColor calls colorOf(id).
func (c *Contract) CellColor(ctx context.Context, id int) (grid.Color, error) {
	var out []interface{}
	if err := c.reader.Call(&bind.CallOpts{Context: ctx}, &out, "colorOf", big.NewInt(int64(id))); err != nil {
		return 0, fmt.Errorf("colorOf(%d): %w", id, err)
	}
	v, ok := out[0].(uint32)
	if !ok {
		return 0, fmt.Errorf("colorOf(%d): unexpected %T", id, out[0])
	}
	return grid.Normalize(int64(v)), nil
}

// WatchSingle subscribes to PixelColored.
func (c *Contract) WatchSingle(ctx context.Context, sink chan<- []chain.SingleColored) error {
	return c.watch(ctx, EventSingle, func(logs []types.Log) bool {
		out := make([]chain.SingleColored, 0, len(logs))
		for _, l := range logs {
			ev, err := decodeSingle(c.watcher, l)
			if err != nil {
				c.log.Warn("undecodable log", "event", EventSingle, "tx", l.TxHash, "err", err)
				continue
			}
			out = append(out, ev)
		}
		return deliver(ctx, sink, out)
	})
}

// WatchBatch subscribes to PixelsColored.
func (c *Contract) WatchBatch(ctx context.Context, sink chan<- []chain.BatchColored) error {
	return c.watch(ctx, EventBatch, func(logs []types.Log) bool {
		out := make([]chain.BatchColored, 0, len(logs))
		for _, l := range logs {
			ev, err := decodeBatch(c.watcher, l)
			if err != nil {
				c.log.Warn("undecodable log", "event", EventBatch, "tx", l.TxHash, "err", err)
				continue
			}
			out = append(out, ev)
		}
		return deliver(ctx, sink, out)
	})
}

func deliver[T any](ctx context.Context, sink chan<- []T, v []T) bool {
	if len(v) == 0 {
		return true
	}
	select {
	case sink <- v:
		return true
	case <-ctx.Done():
		return false
	}
}

// watch forwards logs of one event. Logs already queued when one arrives
// are coalesced into the same delivery.
func (c *Contract) watch(ctx context.Context, event string, handle func([]types.Log) bool) error {
	if c.watcher == nil {
		return errNoReadSession
	}
	logs, sub, err := c.watcher.WatchLogs(&bind.WatchOpts{Context: ctx}, event)
	if err != nil {
		return fmt.Errorf("watch %s: %w", event, err)
	}
	go func() {
		defer sub.Unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-sub.Err():
				if err != nil {
					c.log.Error("subscription ended", "event", event, "err", err)
				}
				return
			case l := <-logs:
				batch := []types.Log{l}
			drain:
				for {
					select {
					case more := <-logs:
						batch = append(batch, more)
					default:
						break drain
					}
				}
				if !handle(batch) {
					return
				}
			}
		}
	}()
	return nil
}

func decodeSingle(bc *bind.BoundContract, l types.Log) (chain.SingleColored, error) {
	var ev pixelColored
	if err := bc.UnpackLog(&ev, EventSingle, l); err != nil {
		return chain.SingleColored{}, err
	}
	if ev.Id == nil || !ev.Id.IsInt64() {
		return chain.SingleColored{}, fmt.Errorf("id %v out of range", ev.Id)
	}
	return chain.SingleColored{ID: int(ev.Id.Int64()), Color: grid.Normalize(int64(ev.Rgb))}, nil
}

func decodeBatch(bc *bind.BoundContract, l types.Log) (chain.BatchColored, error) {
	var ev pixelsColored
	if err := bc.UnpackLog(&ev, EventBatch, l); err != nil {
		return chain.BatchColored{}, err
	}
	out := chain.BatchColored{
		IDs:    make([]int, len(ev.Ids)),
		Colors: make([]grid.Color, len(ev.Rgbs)),
	}
	for i, id := range ev.Ids {
		if !id.IsInt64() {
			return chain.BatchColored{}, fmt.Errorf("id %v out of range", id)
		}
		out.IDs[i] = int(id.Int64())
	}
	for i, rgb := range ev.Rgbs {
		out.Colors[i] = grid.Normalize(int64(rgb))
	}
	return out, out.Validate()
}

// packColorPixels encodes a colorPixels call.
func packColorPixels(ids []int, colors []grid.Color) ([]byte, error) {
	if err := (chain.BatchColored{IDs: ids, Colors: colors}).Validate(); err != nil {
		return nil, err
	}
	bigIDs := make([]*big.Int, len(ids))
	for i, id := range ids {
		bigIDs[i] = big.NewInt(int64(id))
	}
	rgbs := make([]uint32, len(colors))
	for i, c := range colors {
		rgbs[i] = uint32(grid.Normalize(int64(c)))
	}
	return parsedABI.Pack("colorPixels", bigIDs, rgbs)
}
