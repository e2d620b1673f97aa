package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/rattadan/cacmin-bot-sub002/models"
	"github.com/rattadan/cacmin-bot-sub002/money"
)

// Sentinel errors for the expected business-rule failures. Callers
// branch on kind with errors.Is / errors.As; the struct variants carry
// the details.
var (
	ErrNotFound            = errors.New("not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrLockConflict        = errors.New("another transaction is in progress")
	ErrVerificationFailed  = errors.New("verification failed")
	ErrInconsistentState   = errors.New("ledger and chain disagree")
)

// InsufficientBalanceError reports a debit that exceeds the available balance.
type InsufficientBalanceError struct {
	UserID int64
	Have   money.Amount
	Need   money.Amount
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for user %d: have %s, need %s", e.UserID, e.Have, e.Need)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// LockConflictError reports an acquisition attempt against a user who
// already holds an unexpired lock. RetryIn tells the caller how long
// until the existing lock times out.
type LockConflictError struct {
	UserID   int64
	LockType models.LockType
	RetryIn  time.Duration
}

func (e *LockConflictError) Error() string {
	return fmt.Sprintf("user %d already has an active %s lock, try again in %s",
		e.UserID, e.LockType, e.RetryIn.Round(time.Second))
}

func (e *LockConflictError) Unwrap() error { return ErrLockConflict }

// VerificationError reports a chain-side validation failure: missing
// transaction, failed status, wrong destination, or amount mismatch.
type VerificationError struct {
	TxHash string
	Reason string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("verification failed for tx %s: %s", e.TxHash, e.Reason)
}

func (e *VerificationError) Unwrap() error { return ErrVerificationFailed }

// InconsistentStateError reports the dangerous case where the internal
// ledger was updated but the chain transaction did not verify. It is
// surfaced for manual operator review and never auto-corrected.
type InconsistentStateError struct {
	UserID int64
	TxHash string
	Detail string
}

func (e *InconsistentStateError) Error() string {
	return fmt.Sprintf("inconsistent state for user %d (tx %s): %s", e.UserID, e.TxHash, e.Detail)
}

func (e *InconsistentStateError) Unwrap() error { return ErrInconsistentState }
