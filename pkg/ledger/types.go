package ledger

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
)

// OrderType mirrors the contract enum: 0 = Buy, 1 = Sell.
type OrderType uint8

const (
	Buy OrderType = iota
	Sell
)

func (t OrderType) String() string {
	switch t {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return fmt.Sprintf("ordertype(%d)", uint8(t))
	}
}

// Status mirrors the contract enum. Completed is terminal.
type Status uint8

const (
	Created Status = iota
	CounterpartyPaid
	Completed
)

func (s Status) String() string {
	switch s {
	case Created:
		return "created"
	case CounterpartyPaid:
		return "counterparty_paid"
	case Completed:
		return "completed"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// TransitionKind names the contract's status-transition methods.
type TransitionKind uint8

const (
	BuyerMarkPaid TransitionKind = iota
	MerchantMarkReceived
	MerchantMarkPaid
)

func (k TransitionKind) String() string {
	switch k {
	case BuyerMarkPaid:
		return "buyer_mark_paid"
	case MerchantMarkReceived:
		return "merchant_mark_received"
	case MerchantMarkPaid:
		return "merchant_mark_paid"
	default:
		return fmt.Sprintf("transition(%d)", uint8(k))
	}
}

// method maps a transition to its contract method name.
func (k TransitionKind) method() (string, bool) {
	switch k {
	case BuyerMarkPaid:
		return "buyerMarkPaid", true
	case MerchantMarkReceived:
		return "merchantMarkReceived", true
	case MerchantMarkPaid:
		return "merchantMarkPaid", true
	default:
		return "", false
	}
}

// Order is one trade record as read from the contract. Snapshots are value
// copies, replaced wholesale on refresh and never mutated field by field.
type Order struct {
	ID         uint64
	Buyer      common.Address
	Merchant   common.Address
	Type       OrderType
	PaymentRef string
	Amount     uint64
	Status     Status
}

// EventKind classifies the two contract notifications.
type EventKind uint8

const (
	EvOrderCreated EventKind = iota
	EvOrderStatusChanged
)

func (k EventKind) String() string {
	if k == EvOrderCreated {
		return "order_created"
	}
	return "order_status_changed"
}

// Event is a decoded contract notification. The payload is informational
// only: consumers re-read authoritative state rather than trusting it.
type Event struct {
	Kind     EventKind
	OrderID  uint64
	Buyer    common.Address
	Merchant common.Address
	Type     OrderType
	Amount   uint64
	// Status carries newStatus for EvOrderStatusChanged, Created otherwise.
	Status Status
	// PaymentRef is set for EvOrderCreated only.
	PaymentRef string
}

// TxHandle is a pending ledger write awaiting finalization.
type TxHandle interface {
	Hash() common.Hash
	// Wait blocks until the ledger finalizes the transaction. Returns
	// ErrTxRejected if it was mined but reverted, ErrTxTimeout if ctx
	// expires first.
	Wait(ctx context.Context) error
}

// Reader covers the two contract reads.
type Reader interface {
	OrderCount(ctx context.Context) (uint64, error)
	GetOrder(ctx context.Context, id uint64) (Order, error)
}

// Writer covers the two contract writes. Neither retries internally.
type Writer interface {
	CreateOrder(ctx context.Context, merchant common.Address, typ OrderType, paymentRef string, amount uint64) (TxHandle, error)
	Transition(ctx context.Context, kind TransitionKind, id uint64) (TxHandle, error)
}

// Watcher delivers contract notifications into sink until the subscription
// is unsubscribed or ctx is done.
type Watcher interface {
	WatchEvents(ctx context.Context, sink chan<- Event) (event.Subscription, error)
}

// API is the full client surface against one deployed contract.
type API interface {
	Reader
	Writer
	Watcher
	Close()
}
