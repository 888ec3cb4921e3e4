package escrow

import "errors"

// Operation errors. Every failure leaves the record and all balances
// untouched; callers match with errors.Is.
var (
	// ErrNotFound is returned when no record exists for the identifier.
	ErrNotFound = errors.New("escrow: record not found")
	// ErrDuplicateEscrow is returned when creating with an identifier that
	// is already in use.
	ErrDuplicateEscrow = errors.New("escrow: identifier already in use")
	// ErrInvalidAmount is returned when creating with a non-positive amount.
	ErrInvalidAmount = errors.New("escrow: amount must be positive")
	// ErrInsufficientFunds is returned when the buyer's account cannot
	// supply the deposit.
	ErrInsufficientFunds = errors.New("escrow: insufficient funds")
	// ErrUnauthorized is returned when the caller does not hold the role an
	// operation requires.
	ErrUnauthorized = errors.New("escrow: caller not permitted")
	// ErrInvalidState is returned when the record's current status does not
	// permit the operation.
	ErrInvalidState = errors.New("escrow: operation not allowed in current status")
	// ErrConfirmationExpired is returned when the buyer confirms receipt
	// after the confirmation window; only auto-release can settle then.
	ErrConfirmationExpired = errors.New("escrow: confirmation window elapsed")
	// ErrAutoReleaseNotReached is returned when auto-release runs while the
	// confirmation window is still open.
	ErrAutoReleaseNotReached = errors.New("escrow: confirmation window still open")
)
