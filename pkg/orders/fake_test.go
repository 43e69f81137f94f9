package orders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"

	"github.com/hyunjk/orderflow/pkg/ledger"
)

// fakeLedger is an in-memory ledger.API double. Reads can be blocked (to
// hold a refresh in flight) or failed per order id.
type fakeLedger struct {
	mu          sync.Mutex
	orders      map[uint64]ledger.Order
	failIDs     map[uint64]bool
	countErr    error
	countCalls  int
	getCalls    int
	transitions []ledger.TransitionKind
	creates     int
	waitErr     error
	watchErr    error
	watching    int

	// block, when non-nil, stalls OrderCount until a token is sent.
	block chan struct{}
	// getBlock, when non-nil, stalls GetOrder until a token is sent.
	getBlock chan struct{}
	push     chan ledger.Event
}

func newFakeLedger(orders ...ledger.Order) *fakeLedger {
	f := &fakeLedger{
		orders:  make(map[uint64]ledger.Order),
		failIDs: make(map[uint64]bool),
		push:    make(chan ledger.Event, 16),
	}
	for _, ord := range orders {
		f.orders[ord.ID] = ord
	}
	return f
}

func (f *fakeLedger) OrderCount(ctx context.Context) (uint64, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.countCalls++
	if f.countErr != nil {
		return 0, f.countErr
	}
	return uint64(len(f.orders)), nil
}

func (f *fakeLedger) GetOrder(ctx context.Context, id uint64) (ledger.Order, error) {
	if f.getBlock != nil {
		<-f.getBlock
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.failIDs[id] {
		return ledger.Order{}, errors.New("read failed")
	}
	ord, ok := f.orders[id]
	if !ok {
		return ledger.Order{}, fmt.Errorf("order %d: %w", id, ledger.ErrNotFound)
	}
	return ord, nil
}

func (f *fakeLedger) CreateOrder(ctx context.Context, merchant common.Address, typ ledger.OrderType, paymentRef string, amount uint64) (ledger.TxHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	id := uint64(len(f.orders) + 1)
	f.orders[id] = ledger.Order{
		ID: id, Buyer: buyerAddr, Merchant: merchant,
		Type: typ, PaymentRef: paymentRef, Amount: amount, Status: ledger.Created,
	}
	return &fakeHandle{err: f.waitErr}, nil
}

func (f *fakeLedger) Transition(ctx context.Context, kind ledger.TransitionKind, id uint64) (ledger.TxHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transitions = append(f.transitions, kind)
	if ord, ok := f.orders[id]; ok && f.waitErr == nil {
		switch kind {
		case ledger.BuyerMarkPaid, ledger.MerchantMarkPaid:
			ord.Status = ledger.CounterpartyPaid
		case ledger.MerchantMarkReceived:
			ord.Status = ledger.Completed
		}
		f.orders[id] = ord
	}
	return &fakeHandle{err: f.waitErr}, nil
}

func (f *fakeLedger) WatchEvents(ctx context.Context, sink chan<- ledger.Event) (event.Subscription, error) {
	if f.watchErr != nil {
		return nil, f.watchErr
	}
	f.mu.Lock()
	f.watching++
	f.mu.Unlock()
	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer func() {
			f.mu.Lock()
			f.watching--
			f.mu.Unlock()
		}()
		for {
			select {
			case ev := <-f.push:
				select {
				case sink <- ev:
				case <-quit:
					return nil
				}
			case <-quit:
				return nil
			}
		}
	}), nil
}

func (f *fakeLedger) Close() {}

func (f *fakeLedger) emit(ev ledger.Event) { f.push <- ev }

func (f *fakeLedger) setStatus(id uint64, st ledger.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ord := f.orders[id]
	ord.Status = st
	f.orders[id] = ord
}

func (f *fakeLedger) stats() (countCalls, getCalls int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.countCalls, f.getCalls
}

func (f *fakeLedger) transitionCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.transitions)
}

func (f *fakeLedger) watchers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.watching
}

type fakeHandle struct {
	err error
}

func (h *fakeHandle) Hash() common.Hash { return common.Hash{} }

func (h *fakeHandle) Wait(ctx context.Context) error { return h.err }

type fakeRefresher struct {
	mu    sync.Mutex
	kicks int
}

func (r *fakeRefresher) Kick() {
	r.mu.Lock()
	r.kicks++
	r.mu.Unlock()
}

func (r *fakeRefresher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.kicks
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}
