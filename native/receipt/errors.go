package receipt

import "errors"

var (
	// ErrOutputNotConfigured indicates the forwarding destination was never
	// set. It should not occur after genesis initialisation.
	ErrOutputNotConfigured = errors.New("receipt: output address not configured")
	// ErrUnauthorizedPayer is returned when a payer other than the one that
	// made a receipt's first payment attempts to pay into it.
	ErrUnauthorizedPayer = errors.New("receipt: unauthorized payer")
	// ErrMissingPayment is returned when a native deposit carries no funds.
	ErrMissingPayment = errors.New("receipt: missing payment")
	// ErrUnexpectedFunds is returned when native funds accompany a
	// contract-token deposit.
	ErrUnexpectedFunds = errors.New("receipt: unexpected native funds")
	ErrInvalidToken    = errors.New("receipt: invalid token")
	ErrInvalidDenom    = errors.New("receipt: invalid denom")
	ErrInvalidReceipt  = errors.New("receipt: id required")
	ErrInvalidAmount   = errors.New("receipt: amount must be positive")
	// ErrAmountOverflow is returned when an amount does not fit the 128-bit
	// range the ledger stores.
	ErrAmountOverflow = errors.New("receipt: amount exceeds 128 bits")
)
