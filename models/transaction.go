package models

import (
	"time"

	"github.com/rattadan/cacmin-bot-sub002/money"
)

// TransactionType represents the type of journal entry
type TransactionType string

const (
	TransactionTypeDeposit    TransactionType = "deposit"
	TransactionTypeWithdrawal TransactionType = "withdrawal"
	TransactionTypeTransfer   TransactionType = "transfer"
	TransactionTypeFine       TransactionType = "fine"
	TransactionTypeBail       TransactionType = "bail"
	TransactionTypeGiveaway   TransactionType = "giveaway"
	TransactionTypeRefund     TransactionType = "refund"
	TransactionTypeGambling   TransactionType = "gambling"
)

// TransactionStatus represents the settlement status of a journal entry
type TransactionStatus string

const (
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// Transaction is one append-only journal row. Every balance mutation
// has exactly one corresponding row; rows are never updated or deleted.
type Transaction struct {
	ID           int64             `db:"id"`
	Type         TransactionType   `db:"type"`
	FromUserID   *int64            `db:"from_user_id"`
	ToUserID     *int64            `db:"to_user_id"`
	Amount       money.Amount      `db:"amount"`
	BalanceAfter money.Amount      `db:"balance_after"`
	TxHash       *string           `db:"tx_hash"`
	Status       TransactionStatus `db:"status"`
	Description  string            `db:"description"`
	Metadata     map[string]any    `db:"metadata"`
	CreatedAt    time.Time         `db:"created_at"`
}

// LedgerResult is the outcome of a successful credit or debit.
type LedgerResult struct {
	Transaction *Transaction
	NewBalance  money.Amount
}

// TransferResult is the outcome of a successful transfer.
type TransferResult struct {
	Amount         money.Amount
	FromUserID     int64
	ToUserID       int64
	NewFromBalance money.Amount
	NewToBalance   money.Amount
}

// ReconcileResult compares the summed internal ledger against the
// on-chain treasury balance. Mismatches are reported, never corrected.
type ReconcileResult struct {
	Matched        bool
	OnChainBalance money.Amount
	InternalTotal  money.Amount
	CheckedAt      time.Time
}
