package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// Client is a thin wrapper over one deployed order-flow contract: each
// method is a single round trip. Caching and retry policy live with the
// callers, not here.
type Client struct {
	log      *zap.SugaredLogger
	eth      *ethclient.Client
	contract *bind.BoundContract
	auth     *bind.TransactOpts
	addr     common.Address

	// confirmTimeout bounds TxHandle.Wait when the caller's context has no
	// deadline of its own.
	confirmTimeout time.Duration
}

var _ API = (*Client)(nil)

// Dial connects to an RPC endpoint and binds the contract at addr. auth
// signs all writes; reads need no key.
func Dial(ctx context.Context, rpcURL string, addr common.Address, auth *bind.TransactOpts, confirmTimeout time.Duration, log *zap.SugaredLogger) (*Client, error) {
	cabi, err := contractABI()
	if err != nil {
		return nil, fmt.Errorf("parse contract abi: %w", err)
	}

	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}

	return &Client{
		log:            log,
		eth:            eth,
		contract:       bind.NewBoundContract(addr, cabi, eth, eth, eth),
		auth:           auth,
		addr:           addr,
		confirmTimeout: confirmTimeout,
	}, nil
}

func (c *Client) Close() { c.eth.Close() }

// Address returns the bound contract address.
func (c *Client) Address() common.Address { return c.addr }

func (c *Client) OrderCount(ctx context.Context) (uint64, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "orderCount"); err != nil {
		return 0, fmt.Errorf("orderCount: %w", err)
	}
	count, ok := out[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("orderCount: unexpected result type %T", out[0])
	}
	return count.Uint64(), nil
}

func (c *Client) GetOrder(ctx context.Context, id uint64) (Order, error) {
	var out []interface{}
	err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getOrder", new(big.Int).SetUint64(id))
	if err != nil {
		if isRevert(err) {
			return Order{}, fmt.Errorf("order %d: %w", id, ErrNotFound)
		}
		return Order{}, fmt.Errorf("getOrder %d: %w", id, err)
	}

	ord := Order{
		ID:         id,
		Buyer:      out[0].(common.Address),
		Merchant:   out[1].(common.Address),
		Type:       OrderType(out[2].(uint8)),
		PaymentRef: out[3].(string),
		Amount:     out[4].(*big.Int).Uint64(),
		Status:     Status(out[5].(uint8)),
	}
	if ord.Buyer == (common.Address{}) {
		return Order{}, fmt.Errorf("order %d: %w", id, ErrNotFound)
	}
	return ord, nil
}

func (c *Client) CreateOrder(ctx context.Context, merchant common.Address, typ OrderType, paymentRef string, amount uint64) (TxHandle, error) {
	tx, err := c.transact(ctx, "createOrder", merchant, uint8(typ), paymentRef, new(big.Int).SetUint64(amount))
	if err != nil {
		return nil, fmt.Errorf("createOrder: %w", err)
	}
	c.log.Infow("create_order_submitted", "tx", tx.Hash().Hex(), "merchant", merchant.Hex(), "type", typ.String(), "amount", amount)
	return c.handle(tx), nil
}

func (c *Client) Transition(ctx context.Context, kind TransitionKind, id uint64) (TxHandle, error) {
	method, ok := kind.method()
	if !ok {
		return nil, fmt.Errorf("unknown transition kind %d", kind)
	}
	tx, err := c.transact(ctx, method, new(big.Int).SetUint64(id))
	if err != nil {
		return nil, fmt.Errorf("%s(%d): %w", method, id, err)
	}
	c.log.Infow("transition_submitted", "tx", tx.Hash().Hex(), "kind", kind.String(), "order_id", id)
	return c.handle(tx), nil
}

func (c *Client) transact(ctx context.Context, method string, args ...interface{}) (*types.Transaction, error) {
	opts := *c.auth
	opts.Context = ctx
	return c.contract.Transact(&opts, method, args...)
}

func (c *Client) handle(tx *types.Transaction) TxHandle {
	return &txHandle{tx: tx, backend: c.eth, timeout: c.confirmTimeout}
}

// isRevert reports whether an eth_call error is a contract-side revert as
// opposed to a transport failure.
func isRevert(err error) bool {
	return strings.Contains(err.Error(), "execution reverted")
}

type txHandle struct {
	tx      *types.Transaction
	backend bind.DeployBackend
	timeout time.Duration
}

func (h *txHandle) Hash() common.Hash { return h.tx.Hash() }

func (h *txHandle) Wait(ctx context.Context) error {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	receipt, err := bind.WaitMined(ctx, h.backend, h.tx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("tx %s: %w", h.tx.Hash().Hex(), ErrTxTimeout)
		}
		return fmt.Errorf("tx %s: %w", h.tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("tx %s: %w", h.tx.Hash().Hex(), ErrTxRejected)
	}
	return nil
}
