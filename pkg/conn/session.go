package conn

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hyunjk/orderflow/pkg/ledger"
)

// Session is one established ledger connection: the active account, the
// verified chain, and the client bound to both. It is created by a
// successful connect and dies on disconnect, account change, or chain
// change; a dead session is never revived.
type Session struct {
	Account common.Address
	ChainID *big.Int
	Ledger  ledger.API

	done chan struct{}
	once sync.Once
}

func NewSession(account common.Address, chainID *big.Int, lc ledger.API) *Session {
	return &Session{
		Account: account,
		ChainID: chainID,
		Ledger:  lc,
		done:    make(chan struct{}),
	}
}

// Done is closed when the session is torn down. Workers tied to the session
// select on it to stop.
func (s *Session) Done() <-chan struct{} { return s.done }

// Active reports whether the session is still the live one. Refresh results
// computed against a session that has since died must be discarded.
func (s *Session) Active() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Close tears the session down and releases the ledger client. Idempotent.
func (s *Session) Close() {
	s.once.Do(func() {
		close(s.done)
		s.Ledger.Close()
	})
}
