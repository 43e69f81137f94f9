// Package wallet is the boundary with the host wallet/network environment:
// account access, active network identity, chain switching, and the two
// change notifications (accounts-changed, chain-changed).
package wallet

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
)

var (
	// ErrUnavailable: no wallet host (no key material) is present.
	ErrUnavailable = errors.New("wallet unavailable")
	// ErrRejected: the user declined the account-access request.
	ErrRejected = errors.New("wallet access rejected by user")
	// ErrUnknownChain: switch target was never registered; callers should
	// register it with AddChain first, then retry the switch.
	ErrUnknownChain = errors.New("chain not registered with wallet")
)

// ChainParams describes a network for registration with the host.
type ChainParams struct {
	ChainID        *big.Int
	Name           string
	CurrencyName   string
	CurrencySymbol string
	Decimals       uint8
	RPCURLs        []string
	ExplorerURLs   []string
}

// Provider is the host wallet surface this client consumes. Implementations
// must deliver change notifications until the returned subscription is
// unsubscribed.
type Provider interface {
	// RequestAccounts asks the host for account access.
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	// ChainID reports the active network identity.
	ChainID(ctx context.Context) (*big.Int, error)
	// SwitchChain asks the host to activate the given chain. Fails with
	// ErrUnknownChain if it was never registered.
	SwitchChain(ctx context.Context, chainID *big.Int) error
	// AddChain registers a network with the host.
	AddChain(ctx context.Context, params ChainParams) error
	// TransactOpts yields signing opts for the active account on chainID.
	TransactOpts(chainID *big.Int) (*bind.TransactOpts, error)
	// RPCURL is the active endpoint the ledger client should dial.
	RPCURL() string

	SubscribeAccountsChanged(ch chan<- []common.Address) event.Subscription
	SubscribeChainChanged(ch chan<- *big.Int) event.Subscription
}
