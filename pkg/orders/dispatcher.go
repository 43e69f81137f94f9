package orders

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/hyunjk/orderflow/pkg/conn"
	"github.com/hyunjk/orderflow/pkg/ledger"
)

// Refresher is the dispatcher's view of the sync engine.
type Refresher interface {
	Kick()
}

// Dispatcher validates requested transitions against the cached order state
// before forwarding them to the ledger. After a submitted transaction
// settles (or fails), it kicks one refresh so the cache reflects either the
// new status or the unchanged one.
type Dispatcher struct {
	log     *zap.SugaredLogger
	session *conn.Session
	store   *Store
	refresh Refresher
}

func NewDispatcher(session *conn.Session, store *Store, refresh Refresher, log *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{
		log:     log,
		session: session,
		store:   store,
		refresh: refresh,
	}
}

// Transition submits a status transition for order id, gated locally by
// role and order state. Gate failures return InvalidTransitionError without
// any ledger round trip.
func (d *Dispatcher) Transition(ctx context.Context, kind ledger.TransitionKind, id uint64) error {
	ord, ok := d.store.Get(id)
	if !ok {
		return fmt.Errorf("order %d: %w", id, ledger.ErrNotFound)
	}
	if err := validate(ord, kind, d.session.Account); err != nil {
		d.log.Infow("transition_rejected_locally",
			"order_id", id, "kind", kind.String(), "caller", d.session.Account.Hex())
		return err
	}

	handle, err := d.session.Ledger.Transition(ctx, kind, id)
	if err != nil {
		return err
	}
	defer d.refresh.Kick()

	if err := handle.Wait(ctx); err != nil {
		d.log.Warnw("transition_failed", "order_id", id, "kind", kind.String(), "err", err)
		return err
	}
	d.log.Infow("transition_confirmed", "order_id", id, "kind", kind.String(), "tx", handle.Hash().Hex())
	return nil
}

// Create submits a new order and waits for it to settle, then kicks a
// refresh. The ledger assigns the id; it becomes visible on the next
// refresh (either the kicked one or the OrderCreated push).
func (d *Dispatcher) Create(ctx context.Context, merchant common.Address, typ ledger.OrderType, paymentRef string, amount uint64) error {
	if merchant == (common.Address{}) {
		return fmt.Errorf("merchant address required")
	}

	handle, err := d.session.Ledger.CreateOrder(ctx, merchant, typ, paymentRef, amount)
	if err != nil {
		return err
	}
	defer d.refresh.Kick()

	if err := handle.Wait(ctx); err != nil {
		d.log.Warnw("create_failed", "merchant", merchant.Hex(), "err", err)
		return err
	}
	d.log.Infow("create_confirmed", "merchant", merchant.Hex(), "type", typ.String(), "amount", amount, "tx", handle.Hash().Hex())
	return nil
}
