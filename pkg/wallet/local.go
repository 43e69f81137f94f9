package wallet

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/event"
	"go.uber.org/zap"

	"github.com/hyunjk/orderflow/pkg/crypto"
)

// Local is a key-backed Provider for headless use: one signer plays the
// role of the unlocked wallet account, and a chain registry plays the role
// of the host's known-networks list. The active network identity is still
// read from the RPC endpoint, not assumed from config.
type Local struct {
	log    *zap.SugaredLogger
	signer *crypto.Signer

	mu     sync.Mutex
	chains map[uint64]ChainParams
	active ChainParams
	eth    *ethclient.Client // lazily dialed for the active endpoint

	accountsFeed event.Feed
	chainFeed    event.Feed
	scope        event.SubscriptionScope
}

var _ Provider = (*Local)(nil)

// NewLocal builds a provider with one registered chain, already active.
// signer may be nil, in which case RequestAccounts fails with
// ErrUnavailable (the "wallet not installed" case).
func NewLocal(signer *crypto.Signer, initial ChainParams, log *zap.SugaredLogger) *Local {
	w := &Local{
		log:    log,
		signer: signer,
		chains: make(map[uint64]ChainParams),
		active: initial,
	}
	w.chains[initial.ChainID.Uint64()] = initial
	return w
}

func (w *Local) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	if w.signer == nil {
		return nil, ErrUnavailable
	}
	return []common.Address{w.signer.Address()}, nil
}

func (w *Local) ChainID(ctx context.Context) (*big.Int, error) {
	eth, err := w.client(ctx)
	if err != nil {
		return nil, err
	}
	return eth.ChainID(ctx)
}

func (w *Local) SwitchChain(ctx context.Context, chainID *big.Int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	params, ok := w.chains[chainID.Uint64()]
	if !ok {
		return fmt.Errorf("chain %v: %w", chainID, ErrUnknownChain)
	}
	if w.active.ChainID.Cmp(chainID) == 0 {
		return nil
	}

	w.active = params
	if w.eth != nil {
		w.eth.Close()
		w.eth = nil
	}
	w.log.Infow("chain_switched", "chain_id", chainID.String(), "name", params.Name)
	w.chainFeed.Send(new(big.Int).Set(chainID))
	return nil
}

func (w *Local) AddChain(ctx context.Context, params ChainParams) error {
	if params.ChainID == nil || len(params.RPCURLs) == 0 {
		return fmt.Errorf("chain registration requires a chain id and at least one rpc url")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.chains[params.ChainID.Uint64()] = params
	w.log.Infow("chain_registered", "chain_id", params.ChainID.String(), "name", params.Name)
	return nil
}

func (w *Local) TransactOpts(chainID *big.Int) (*bind.TransactOpts, error) {
	if w.signer == nil {
		return nil, ErrUnavailable
	}
	return w.signer.TransactOpts(chainID)
}

func (w *Local) RPCURL() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active.RPCURLs[0]
}

func (w *Local) SubscribeAccountsChanged(ch chan<- []common.Address) event.Subscription {
	return w.scope.Track(w.accountsFeed.Subscribe(ch))
}

func (w *Local) SubscribeChainChanged(ch chan<- *big.Int) event.Subscription {
	return w.scope.Track(w.chainFeed.Subscribe(ch))
}

// Close tears down all change subscriptions and the RPC connection.
func (w *Local) Close() {
	w.scope.Close()
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.eth != nil {
		w.eth.Close()
		w.eth = nil
	}
}

func (w *Local) client(ctx context.Context) (*ethclient.Client, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.eth != nil {
		return w.eth, nil
	}
	eth, err := ethclient.DialContext(ctx, w.active.RPCURLs[0])
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", w.active.RPCURLs[0], err)
	}
	w.eth = eth
	return eth, nil
}
