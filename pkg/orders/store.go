// Package orders holds the local view of ledger-resident orders: the
// snapshot store, the sync engine that keeps it fresh, and the dispatcher
// that gates locally-initiated transitions.
package orders

import (
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hyunjk/orderflow/pkg/ledger"
)

// Store is the authoritative local cache of order snapshots. It has exactly
// one writer (the sync engine) and many readers; contents are replaced
// wholesale per refresh cycle, so readers always see either the complete
// old set or the complete new set, never a torn mix.
type Store struct {
	mu     sync.RWMutex
	orders map[uint64]ledger.Order
	count  uint64
}

func NewStore() *Store {
	return &Store{orders: make(map[uint64]ledger.Order)}
}

// Replace atomically publishes a full refresh result. The store takes
// ownership of the map; the caller must not touch it afterwards.
func (s *Store) Replace(orders map[uint64]ledger.Order, count uint64) {
	s.mu.Lock()
	s.orders = orders
	s.count = count
	s.mu.Unlock()
}

func (s *Store) Get(id uint64) (ledger.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ord, ok := s.orders[id]
	return ord, ok
}

// Count is the last-known ledger order count, which can exceed the number
// of cached orders when individual reads failed.
func (s *Store) Count() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// All returns every cached order, ascending by id.
func (s *Store) All() []ledger.Order {
	s.mu.RLock()
	out := make([]ledger.Order, 0, len(s.orders))
	for _, ord := range s.orders {
		out = append(out, ord)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ByBuyer returns the orders where account is the buyer.
func (s *Store) ByBuyer(account common.Address) []ledger.Order {
	return s.filter(func(o ledger.Order) bool { return o.Buyer == account })
}

// ByMerchant returns the orders where account is the merchant.
func (s *Store) ByMerchant(account common.Address) []ledger.Order {
	return s.filter(func(o ledger.Order) bool { return o.Merchant == account })
}

func (s *Store) ByStatus(status ledger.Status) []ledger.Order {
	return s.filter(func(o ledger.Order) bool { return o.Status == status })
}

func (s *Store) filter(keep func(ledger.Order) bool) []ledger.Order {
	s.mu.RLock()
	var out []ledger.Order
	for _, ord := range s.orders {
		if keep(ord) {
			out = append(out, ord)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
