// Package wallet negotiates the write session: it makes sure the wallet is
// on the target network (switch, then add) and asks for an account.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/daviddao/megagrid/internal/chain"
)

var (
	// ErrChainUnavailable means both switching to and adding the target
	// network failed. The user has to switch by hand.
	ErrChainUnavailable = errors.New("target network unavailable in wallet")
	// ErrNoAccounts means the wallet granted access but returned no account.
	ErrNoAccounts = errors.New("wallet returned no accounts")
)

// Request names recorded in Result.Steps.
const (
	StepChainID  = "eth_chainId"
	StepSwitch   = "wallet_switchEthereumChain"
	StepAdd      = "wallet_addEthereumChain"
	StepAccounts = "eth_requestAccounts"
)

// Step is one wallet request and how it ended.
type Step struct {
	Request string
	Outcome Outcome
	Err     error
}

// Result is the end of one negotiation attempt.
type Result struct {
	State   State
	Address string
	Session chain.Session
	Steps   []Step
	// Path lists every state entered, starting after Disconnected.
	Path []State
	Err  error
}

// Requests returns the request names in the order they were issued.
func (r Result) Requests() []string {
	out := make([]string, len(r.Steps))
	for i, s := range r.Steps {
		out[i] = s.Request
	}
	return out
}

// Negotiator runs the connect state machine against one provider.
type Negotiator struct {
	provider chain.Provider
	target   chain.Network
	log      *slog.Logger
}

// NewNegotiator returns a negotiator for target. provider may be nil, in
// which case every attempt fails with chain.ErrNoWallet.
func NewNegotiator(provider chain.Provider, target chain.Network, log *slog.Logger) *Negotiator {
	if log == nil {
		log = slog.Default()
	}
	return &Negotiator{provider: provider, target: target, log: log}
}

// Target returns the network the negotiator aims for.
func (n *Negotiator) Target() chain.Network { return n.target }

// Negotiate runs one attempt. It never retries; wallet prompts may block
// until the user answers or ctx ends.
func (n *Negotiator) Negotiate(ctx context.Context) Result {
	var res Result
	enter := func(s State) {
		res.State = s
		res.Path = append(res.Path, s)
		n.log.Info("wallet negotiation", "state", s.String(), "chain_id", n.target.ChainID)
	}
	fail := func(s State, err error) Result {
		enter(s)
		res.Err = err
		n.log.Warn("wallet negotiation failed", "state", s.String(), "err", err)
		return res
	}
	record := func(req string, err error) Outcome {
		o := OutcomeOf(err)
		res.Steps = append(res.Steps, Step{Request: req, Outcome: o, Err: err})
		return o
	}

	if n.provider == nil {
		return fail(ConnectionFailed, chain.ErrNoWallet)
	}

	enter(NegotiatingChain)
	current, err := n.provider.CurrentNetwork(ctx)
	if record(StepChainID, err) != Succeeded {
		return fail(ConnectionFailed, fmt.Errorf("query network: %w", err))
	}

	if current != n.target.ChainID {
		if o := record(StepSwitch, n.provider.SwitchNetwork(ctx, n.target.ChainID)); o != Succeeded {
			n.log.Info("switch network failed, adding", "outcome", o.String(), "from", current)
			if err := n.provider.AddNetwork(ctx, n.target); record(StepAdd, err) != Succeeded {
				return fail(ChainFailed, fmt.Errorf("%w: %w", ErrChainUnavailable, err))
			}
		}
	}
	enter(ChainReady)

	enter(RequestingAccounts)
	accounts, err := n.provider.RequestAccounts(ctx)
	if record(StepAccounts, err) != Succeeded {
		return fail(ConnectionFailed, fmt.Errorf("request accounts: %w", err))
	}
	if len(accounts) == 0 {
		return fail(ConnectionFailed, ErrNoAccounts)
	}

	session, err := n.provider.BindSession(n.target.ChainID, accounts[0])
	if err != nil {
		return fail(ConnectionFailed, fmt.Errorf("bind session: %w", err))
	}
	res.Address = accounts[0]
	res.Session = session
	enter(Connected)
	return res
}

// Notice is the one-line status text for r.
func (r Result) Notice(target chain.Network) string {
	switch r.State {
	case Connected:
		return "connected: " + ShortAddress(r.Address)
	case ChainFailed:
		return fmt.Sprintf("please switch to %s manually in your wallet", target.Name)
	case ConnectionFailed:
		if errors.Is(r.Err, chain.ErrNoWallet) {
			return "no wallet found"
		}
		return "wallet connection failed"
	}
	return r.State.String()
}

// ShortAddress abbreviates a 0x address as 0x1234…abcd.
func ShortAddress(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}
