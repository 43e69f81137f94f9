package orders

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hyunjk/orderflow/pkg/ledger"
)

// Role is the caller's position relative to an order.
type Role uint8

const (
	RoleBuyer Role = iota
	RoleMerchant
)

func (r Role) String() string {
	if r == RoleBuyer {
		return "buyer"
	}
	return "merchant"
}

type rule struct {
	orderType ledger.OrderType
	from      ledger.Status
	role      Role
	to        ledger.Status
}

// transitionRules mirrors the contract's transition table so that doomed
// requests are refused before spending a transaction. Sell orders have no
// client step out of CounterpartyPaid: the contract owns whatever
// completes them, and the engine observes it through refresh.
var transitionRules = map[ledger.TransitionKind]rule{
	ledger.BuyerMarkPaid:        {ledger.Buy, ledger.Created, RoleBuyer, ledger.CounterpartyPaid},
	ledger.MerchantMarkReceived: {ledger.Buy, ledger.CounterpartyPaid, RoleMerchant, ledger.Completed},
	ledger.MerchantMarkPaid:     {ledger.Sell, ledger.Created, RoleMerchant, ledger.CounterpartyPaid},
}

// InvalidTransitionError is the local gate's rejection: the ledger was
// never contacted.
type InvalidTransitionError struct {
	OrderID uint64
	Kind    ledger.TransitionKind
	Role    Role          // role the transition requires
	Type    ledger.OrderType
	Status  ledger.Status // order's current status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s for order %d: requires %s on a %s/%s order, order is %s/%s",
		e.Kind, e.OrderID, e.Role,
		transitionRules[e.Kind].orderType, transitionRules[e.Kind].from,
		e.Type, e.Status)
}

// validate checks a requested transition against the order's current
// {type, status} and the caller's role.
func validate(ord ledger.Order, kind ledger.TransitionKind, caller common.Address) error {
	r, ok := transitionRules[kind]
	reject := &InvalidTransitionError{
		OrderID: ord.ID,
		Kind:    kind,
		Role:    r.role,
		Type:    ord.Type,
		Status:  ord.Status,
	}
	if !ok || ord.Type != r.orderType || ord.Status != r.from {
		return reject
	}

	var allowed common.Address
	switch r.role {
	case RoleBuyer:
		allowed = ord.Buyer
	case RoleMerchant:
		allowed = ord.Merchant
	}
	if caller != allowed {
		return reject
	}
	return nil
}
