package models

import "errors"

// Ledger business-rule violations. All are reported synchronously to the
// caller; a failed operation leaves balance and log untouched.
var (
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrSelfTransfer        = errors.New("cannot transfer to self")
)
