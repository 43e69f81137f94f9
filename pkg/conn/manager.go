package conn

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/hyunjk/orderflow/pkg/ledger"
	"github.com/hyunjk/orderflow/pkg/wallet"
)

// OpenFunc builds a ledger client for a verified account/chain pair.
type OpenFunc func(ctx context.Context, account common.Address, chainID *big.Int) (ledger.API, error)

type ManagerConfig struct {
	Wallet wallet.Provider
	Open   OpenFunc
	// Chain is the one expected network; connecting against any other chain
	// fails with NetworkMismatchError.
	Chain wallet.ChainParams
	// Timeout bounds one whole connect attempt.
	Timeout time.Duration
	Log     *zap.SugaredLogger
}

// Manager owns the single active session. Connect attempts are
// single-flight: concurrent calls while one is pending share its result
// rather than starting a second wallet request.
type Manager struct {
	log     *zap.SugaredLogger
	wallet  wallet.Provider
	open    OpenFunc
	chain   wallet.ChainParams
	timeout time.Duration

	sf singleflight.Group

	mu      sync.Mutex
	session *Session

	subs []event.Subscription
	quit chan struct{}
	wg   sync.WaitGroup
}

func NewManager(cfg ManagerConfig) *Manager {
	m := &Manager{
		log:     cfg.Log,
		wallet:  cfg.Wallet,
		open:    cfg.Open,
		chain:   cfg.Chain,
		timeout: cfg.Timeout,
		quit:    make(chan struct{}),
	}
	if m.timeout <= 0 {
		m.timeout = 10 * time.Second
	}

	accountsCh := make(chan []common.Address, 4)
	chainCh := make(chan *big.Int, 4)
	m.subs = append(m.subs,
		m.wallet.SubscribeAccountsChanged(accountsCh),
		m.wallet.SubscribeChainChanged(chainCh),
	)

	m.wg.Add(1)
	go m.watch(accountsCh, chainCh)
	return m
}

// Connect establishes a session: account access, network identity check,
// ledger reachability probe, publish. Exactly one attempt runs at a time.
func (m *Manager) Connect(ctx context.Context) (*Session, error) {
	v, err, _ := m.sf.Do("connect", func() (interface{}, error) {
		return m.connect(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

func (m *Manager) connect(ctx context.Context) (*Session, error) {
	if s := m.Session(); s != nil && s.Active() {
		return s, nil
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	accounts, err := m.wallet.RequestAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("request accounts: %w", err)
	}
	if len(accounts) == 0 {
		return nil, fmt.Errorf("no accounts available: %w", wallet.ErrRejected)
	}
	account := accounts[0]

	got, err := m.wallet.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: read chain id: %v", ErrLedgerUnreachable, err)
	}
	if got.Cmp(m.chain.ChainID) != 0 {
		m.log.Warnw("network_mismatch", "expected", m.chain.ChainID.String(), "got", got.String())
		return nil, &NetworkMismatchError{Want: new(big.Int).Set(m.chain.ChainID), Got: got}
	}

	lc, err := m.open(ctx, account, got)
	if err != nil {
		return nil, fmt.Errorf("%w: open ledger client: %v", ErrLedgerUnreachable, err)
	}

	// Cheap read proves the contract is deployed and the endpoint answers.
	if _, err := lc.OrderCount(ctx); err != nil {
		lc.Close()
		return nil, fmt.Errorf("%w: order count probe: %v", ErrLedgerUnreachable, err)
	}

	s := NewSession(account, got, lc)
	m.mu.Lock()
	m.session = s
	m.mu.Unlock()

	m.log.Infow("session_connected",
		"account", account.Hex(),
		"chain_id", got.String(),
		"chain_name", m.chain.Name)
	return s, nil
}

// Session returns the current session, or nil when disconnected.
func (m *Manager) Session() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// Disconnect tears down the current session unconditionally. Idempotent.
func (m *Manager) Disconnect() {
	m.teardown("disconnect")
}

// SwitchNetwork asks the wallet to activate the expected chain, registering
// it first when the host does not know it yet.
func (m *Manager) SwitchNetwork(ctx context.Context) error {
	err := m.wallet.SwitchChain(ctx, m.chain.ChainID)
	if errors.Is(err, wallet.ErrUnknownChain) {
		if err := m.wallet.AddChain(ctx, m.chain); err != nil {
			return fmt.Errorf("register chain: %w", err)
		}
		err = m.wallet.SwitchChain(ctx, m.chain.ChainID)
	}
	return err
}

// Close stops change watching and drops the session.
func (m *Manager) Close() {
	close(m.quit)
	for _, sub := range m.subs {
		sub.Unsubscribe()
	}
	m.wg.Wait()
	m.Disconnect()
}

func (m *Manager) watch(accountsCh chan []common.Address, chainCh chan *big.Int) {
	defer m.wg.Done()
	for {
		select {
		case <-m.quit:
			return
		case accounts := <-accountsCh:
			m.log.Infow("accounts_changed", "count", len(accounts))
			m.teardown("accounts_changed")
		case id := <-chainCh:
			// The host environment is stale after a chain switch; the next
			// connect must be explicit, never a silent reconnect.
			m.log.Infow("chain_changed", "chain_id", id.String())
			m.teardown("chain_changed")
		}
	}
}

func (m *Manager) teardown(reason string) {
	m.mu.Lock()
	s := m.session
	m.session = nil
	m.mu.Unlock()

	if s == nil {
		return
	}
	s.Close()
	m.log.Infow("session_closed", "reason", reason, "account", s.Account.Hex())
}
