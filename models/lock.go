package models

import (
	"time"

	"github.com/rattadan/cacmin-bot-sub002/money"
)

// LockType represents the financial operation a lock protects
type LockType string

const (
	LockTypeWithdrawal LockType = "withdrawal"
	LockTypeDeposit    LockType = "deposit"
	LockTypeTransfer   LockType = "transfer"
)

// LockStatus represents the lock verification state machine:
// pending -> processing -> verifying -> {completed | failed}
type LockStatus string

const (
	LockStatusPending    LockStatus = "pending"
	LockStatusProcessing LockStatus = "processing"
	LockStatusVerifying  LockStatus = "verifying"
	LockStatusCompleted  LockStatus = "completed"
	LockStatusFailed     LockStatus = "failed"
)

// lockTransitions enumerates the legal status transitions so the
// verification path stays exhaustive.
var lockTransitions = map[LockStatus][]LockStatus{
	LockStatusPending:    {LockStatusProcessing, LockStatusVerifying, LockStatusCompleted, LockStatusFailed},
	LockStatusProcessing: {LockStatusVerifying, LockStatusCompleted, LockStatusFailed},
	LockStatusVerifying:  {LockStatusCompleted, LockStatusFailed},
	LockStatusCompleted:  {},
	LockStatusFailed:     {},
}

// CanTransitionTo reports whether moving from s to next is legal.
func (s LockStatus) CanTransitionTo(next LockStatus) bool {
	for _, allowed := range lockTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status ends the lock lifecycle.
func (s LockStatus) IsTerminal() bool {
	return s == LockStatusCompleted || s == LockStatusFailed
}

// TransactionLock is a per-user mutual-exclusion record in the shared
// store. At most one active lock exists per user at any time.
type TransactionLock struct {
	UserID        int64          `db:"user_id"`
	LockType      LockType       `db:"lock_type"`
	Amount        money.Amount   `db:"amount"`
	TxHash        *string        `db:"tx_hash"`
	TargetAddress *string        `db:"target_address"`
	LockedAt      time.Time      `db:"locked_at"`
	Status        LockStatus     `db:"status"`
	Metadata      map[string]any `db:"metadata"`
}

// ExpiresAt returns the moment the lock's type-specific timeout elapses.
func (l *TransactionLock) ExpiresAt(timeout time.Duration) time.Time {
	return l.LockedAt.Add(timeout)
}

// IsExpired reports whether the lock has outlived its timeout.
func (l *TransactionLock) IsExpired(timeout time.Duration, now time.Time) bool {
	return now.After(l.ExpiresAt(timeout))
}

// WithdrawalVerification is the three-way check required before a
// withdrawal lock may be released: chain success, amount match, and a
// matching journal row.
type WithdrawalVerification struct {
	Verified      bool
	ChainSuccess  bool
	AmountMatches bool
	LedgerMatches bool
	Reason        string
	OnChainAmount money.Amount
}
