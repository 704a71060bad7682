package ledger

import "errors"

// Service errors. Every failure is scoped to the single requested
// operation and leaves persisted state unchanged.
var (
	ErrValidation             = errors.New("validation failed")
	ErrOfferUnavailable       = errors.New("rate offer unavailable")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrConcurrentModification = errors.New("transaction was modified concurrently")
	ErrTransactionNotFound    = errors.New("transaction not found")
	ErrNotParticipant         = errors.New("user is not a party to this transaction")
	ErrEscrowFunding          = errors.New("escrow funding failed")
)
