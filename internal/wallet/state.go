package wallet

import (
	"errors"

	"github.com/daviddao/megagrid/internal/chain"
)

// State is a position in the connect state machine:
//
//	Disconnected -> NegotiatingChain -> ChainReady | ChainFailed
//	ChainReady -> RequestingAccounts -> Connected | ConnectionFailed
type State int

const (
	Disconnected State = iota
	NegotiatingChain
	ChainReady
	ChainFailed
	RequestingAccounts
	Connected
	ConnectionFailed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case NegotiatingChain:
		return "negotiating-chain"
	case ChainReady:
		return "chain-ready"
	case ChainFailed:
		return "chain-failed"
	case RequestingAccounts:
		return "requesting-accounts"
	case Connected:
		return "connected"
	case ConnectionFailed:
		return "connection-failed"
	}
	return "?"
}

// Terminal reports whether a negotiation attempt stops in s.
func (s State) Terminal() bool {
	return s == Connected || s == ChainFailed || s == ConnectionFailed
}

// Outcome is the result of one wallet request.
type Outcome int

const (
	Succeeded Outcome = iota
	Rejected
	Unsupported
)

func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "succeeded"
	case Rejected:
		return "rejected"
	case Unsupported:
		return "unsupported"
	}
	return "?"
}

// OutcomeOf classifies a wallet error. Errors the wallet did not tag as
// unsupported count as rejections.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return Succeeded
	case errors.Is(err, chain.ErrUnsupported):
		return Unsupported
	default:
		return Rejected
	}
}
