package ledger

import "errors"

var (
	// ErrNotFound: single-order read for an id the contract does not have.
	ErrNotFound = errors.New("order not found")
	// ErrTxRejected: transaction was mined but reverted.
	ErrTxRejected = errors.New("transaction rejected")
	// ErrTxTimeout: confirmation wait gave up before the ledger finalized.
	ErrTxTimeout = errors.New("transaction confirmation timed out")
)
