package api

import (
	"fmt"

	"github.com/hyunjk/orderflow/pkg/ledger"
)

type OrderInfo struct {
	ID         uint64 `json:"id"`
	Buyer      string `json:"buyer"`
	Merchant   string `json:"merchant"`
	OrderType  string `json:"orderType"`
	PaymentRef string `json:"paymentRef"`
	Amount     uint64 `json:"amount"`
	Status     string `json:"status"`
}

func toOrderInfo(o ledger.Order) OrderInfo {
	return OrderInfo{
		ID:         o.ID,
		Buyer:      o.Buyer.Hex(),
		Merchant:   o.Merchant.Hex(),
		OrderType:  o.Type.String(),
		PaymentRef: o.PaymentRef,
		Amount:     o.Amount,
		Status:     o.Status.String(),
	}
}

func toOrderInfos(orders []ledger.Order) []OrderInfo {
	out := make([]OrderInfo, len(orders))
	for i, o := range orders {
		out[i] = toOrderInfo(o)
	}
	return out
}

// SnapshotMessage is broadcast over the websocket after every published
// refresh.
type SnapshotMessage struct {
	Channel string      `json:"channel"`
	Count   uint64      `json:"count"`
	Orders  []OrderInfo `json:"orders"`
}

type CreateOrderRequest struct {
	Merchant   string `json:"merchant"`
	OrderType  string `json:"orderType"`
	PaymentRef string `json:"paymentRef"`
	Amount     uint64 `json:"amount"`
}

type TransitionRequest struct {
	Action string `json:"action"`
}

type SessionInfo struct {
	Connected bool   `json:"connected"`
	Account   string `json:"account,omitempty"`
	ChainID   string `json:"chainId,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func parseOrderType(s string) (ledger.OrderType, error) {
	switch s {
	case "buy":
		return ledger.Buy, nil
	case "sell":
		return ledger.Sell, nil
	default:
		return 0, fmt.Errorf("unknown order type %q", s)
	}
}

func parseAction(s string) (ledger.TransitionKind, error) {
	switch s {
	case "buyerMarkPaid":
		return ledger.BuyerMarkPaid, nil
	case "merchantMarkReceived":
		return ledger.MerchantMarkReceived, nil
	case "merchantMarkPaid":
		return ledger.MerchantMarkPaid, nil
	default:
		return 0, fmt.Errorf("unknown action %q", s)
	}
}

func parseStatus(s string) (ledger.Status, error) {
	switch s {
	case "created":
		return ledger.Created, nil
	case "counterparty_paid":
		return ledger.CounterpartyPaid, nil
	case "completed":
		return ledger.Completed, nil
	default:
		return 0, fmt.Errorf("unknown status %q", s)
	}
}
