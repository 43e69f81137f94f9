package conn

import (
	"errors"
	"fmt"
	"math/big"
)

// ErrLedgerUnreachable: the contract probe (or the RPC dial behind it)
// failed within the connect timeout.
var ErrLedgerUnreachable = errors.New("ledger unreachable")

// NetworkMismatchError is terminal for the connect attempt: the caller must
// not retry automatically, it is surfaced for explicit user action such as
// a network switch.
type NetworkMismatchError struct {
	Want *big.Int
	Got  *big.Int
}

func (e *NetworkMismatchError) Error() string {
	return fmt.Sprintf("network mismatch: expected chain %v, got %v", e.Want, e.Got)
}
