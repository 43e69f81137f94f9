package ledger

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
)

type orderCreatedLog struct {
	OrderId   *big.Int
	Buyer     common.Address
	Merchant  common.Address
	OrderType uint8
	Amount    *big.Int
	UpiId     string
}

type orderStatusChangedLog struct {
	OrderId   *big.Int
	Buyer     common.Address
	Merchant  common.Address
	OrderType uint8
	Amount    *big.Int
	NewStatus uint8
}

// WatchEvents subscribes to OrderCreated and OrderStatusChanged logs and
// delivers decoded events into sink. One subscription covers both; tearing
// it down stops both underlying log filters.
func (c *Client) WatchEvents(ctx context.Context, sink chan<- Event) (event.Subscription, error) {
	opts := &bind.WatchOpts{Context: ctx}

	created, createdSub, err := c.contract.WatchLogs(opts, "OrderCreated")
	if err != nil {
		return nil, err
	}
	changed, changedSub, err := c.contract.WatchLogs(opts, "OrderStatusChanged")
	if err != nil {
		createdSub.Unsubscribe()
		return nil, err
	}

	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer createdSub.Unsubscribe()
		defer changedSub.Unsubscribe()
		for {
			select {
			case lg := <-created:
				ev, err := c.decodeCreated(lg)
				if err != nil {
					c.log.Warnw("event_decode_failed", "event", "OrderCreated", "err", err)
					continue
				}
				select {
				case sink <- ev:
				case <-quit:
					return nil
				}
			case lg := <-changed:
				ev, err := c.decodeStatusChanged(lg)
				if err != nil {
					c.log.Warnw("event_decode_failed", "event", "OrderStatusChanged", "err", err)
					continue
				}
				select {
				case sink <- ev:
				case <-quit:
					return nil
				}
			case err := <-createdSub.Err():
				return err
			case err := <-changedSub.Err():
				return err
			case <-quit:
				return nil
			}
		}
	}), nil
}

func (c *Client) decodeCreated(lg types.Log) (Event, error) {
	var out orderCreatedLog
	if err := c.contract.UnpackLog(&out, "OrderCreated", lg); err != nil {
		return Event{}, err
	}
	return Event{
		Kind:       EvOrderCreated,
		OrderID:    out.OrderId.Uint64(),
		Buyer:      out.Buyer,
		Merchant:   out.Merchant,
		Type:       OrderType(out.OrderType),
		Amount:     out.Amount.Uint64(),
		Status:     Created,
		PaymentRef: out.UpiId,
	}, nil
}

func (c *Client) decodeStatusChanged(lg types.Log) (Event, error) {
	var out orderStatusChangedLog
	if err := c.contract.UnpackLog(&out, "OrderStatusChanged", lg); err != nil {
		return Event{}, err
	}
	return Event{
		Kind:     EvOrderStatusChanged,
		OrderID:  out.OrderId.Uint64(),
		Buyer:    out.Buyer,
		Merchant: out.Merchant,
		Type:     OrderType(out.OrderType),
		Amount:   out.Amount.Uint64(),
		Status:   Status(out.NewStatus),
	}, nil
}
