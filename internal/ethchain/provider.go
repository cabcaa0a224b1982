package ethchain

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/daviddao/megagrid/internal/chain"
	"github.com/daviddao/megagrid/internal/grid"
)

// EIP-1193 / EIP-3085 / EIP-3326 error codes.
const (
	codeUserRejected   = 4001
	codeUnrecognized   = 4902
	codeMethodNotFound = -32601
)

// Provider speaks the wallet JSON-RPC methods to an external signer.
type Provider struct {
	client   *rpc.Client
	contract common.Address
}

// DialWallet connects to a wallet endpoint.
func DialWallet(ctx context.Context, url string, contract common.Address) (*Provider, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial wallet %s: %w", url, err)
	}
	return NewProvider(c, contract), nil
}

// NewProvider wraps an existing RPC client.
func NewProvider(c *rpc.Client, contract common.Address) *Provider {
	return &Provider{client: c, contract: contract}
}

// Close closes the wallet connection.
func (p *Provider) Close() { p.client.Close() }

// classify tags wallet errors with the chain sentinels.
func classify(method string, err error) error {
	if err == nil {
		return nil
	}
	var rerr rpc.Error
	if errors.As(err, &rerr) {
		switch rerr.ErrorCode() {
		case codeUserRejected:
			return fmt.Errorf("%s: %w: %w", method, chain.ErrRejected, err)
		case codeUnrecognized, codeMethodNotFound:
			return fmt.Errorf("%s: %w: %w", method, chain.ErrUnsupported, err)
		}
	}
	return fmt.Errorf("%s: %w", method, err)
}

func (p *Provider) call(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	return classify(method, p.client.CallContext(ctx, result, method, args...))
}

// CurrentNetwork calls eth_chainId.
func (p *Provider) CurrentNetwork(ctx context.Context) (uint64, error) {
	var id hexutil.Uint64
	if err := p.call(ctx, &id, "eth_chainId"); err != nil {
		return 0, err
	}
	return uint64(id), nil
}

type switchParams struct {
	ChainID string `json:"chainId"`
}

// SwitchNetwork calls wallet_switchEthereumChain.
func (p *Provider) SwitchNetwork(ctx context.Context, chainID uint64) error {
	return p.call(ctx, nil, "wallet_switchEthereumChain", switchParams{ChainID: hexutil.EncodeUint64(chainID)})
}

type nativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

type addParams struct {
	ChainID           string         `json:"chainId"`
	ChainName         string         `json:"chainName"`
	NativeCurrency    nativeCurrency `json:"nativeCurrency"`
	RPCURLs           []string       `json:"rpcUrls"`
	BlockExplorerURLs []string       `json:"blockExplorerUrls"`
}

func addParamsOf(n chain.Network) addParams {
	explorers := n.ExplorerURLs
	if explorers == nil {
		explorers = []string{}
	}
	return addParams{
		ChainID:   hexutil.EncodeUint64(n.ChainID),
		ChainName: n.Name,
		NativeCurrency: nativeCurrency{
			Name:     n.Currency.Name,
			Symbol:   n.Currency.Symbol,
			Decimals: n.Currency.Decimals,
		},
		RPCURLs:           n.RPCURLs,
		BlockExplorerURLs: explorers,
	}
}

// AddNetwork calls wallet_addEthereumChain.
func (p *Provider) AddNetwork(ctx context.Context, n chain.Network) error {
	return p.call(ctx, nil, "wallet_addEthereumChain", addParamsOf(n))
}

// RequestAccounts calls eth_requestAccounts.
func (p *Provider) RequestAccounts(ctx context.Context) ([]string, error) {
	var accts []common.Address
	if err := p.call(ctx, &accts, "eth_requestAccounts"); err != nil {
		return nil, err
	}
	out := make([]string, len(accts))
	for i, a := range accts {
		out[i] = a.Hex()
	}
	return out, nil
}

// BindSession returns a session sending colorPixels transactions from
// account on chainID.
func (p *Provider) BindSession(chainID uint64, account string) (chain.Session, error) {
	if !common.IsHexAddress(account) {
		return nil, fmt.Errorf("account %q is not a hex address", account)
	}
	return &Session{
		provider: p,
		chainID:  chainID,
		from:     common.HexToAddress(account),
	}, nil
}

// Session submits batches through the wallet with eth_sendTransaction.
type Session struct {
	provider *Provider
	chainID  uint64
	from     common.Address
}

func (s *Session) Account() string { return s.from.Hex() }
func (s *Session) ChainID() uint64 { return s.chainID }

type sendParams struct {
	From    common.Address `json:"from"`
	To      common.Address `json:"to"`
	Data    hexutil.Bytes  `json:"data"`
	ChainID hexutil.Uint64 `json:"chainId"`
}

// SubmitBatch sends colorPixels(ids, colors) and returns the transaction
// hash. Confirmation is not awaited.
func (s *Session) SubmitBatch(ctx context.Context, ids []int, colors []grid.Color) (string, error) {
	data, err := packColorPixels(ids, colors)
	if err != nil {
		return "", fmt.Errorf("encode colorPixels: %w", err)
	}
	var hash common.Hash
	err = s.provider.call(ctx, &hash, "eth_sendTransaction", sendParams{
		From:    s.from,
		To:      s.provider.contract,
		Data:    data,
		ChainID: hexutil.Uint64(s.chainID),
	})
	if err != nil {
		return "", err
	}
	return hash.Hex(), nil
}
