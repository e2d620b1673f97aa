package models

import (
	"time"

	"github.com/rattadan/cacmin-bot-sub002/money"
)

// ProcessedDeposit is the idempotency guard for on-chain deposits.
// A given tx hash produces at most one successful credit.
type ProcessedDeposit struct {
	TxHash      string       `db:"tx_hash"`
	UserID      int64        `db:"user_id"`
	Amount      money.Amount `db:"amount"`
	Sender      string       `db:"sender"`
	Memo        string       `db:"memo"`
	Processed   bool         `db:"processed"`
	ProcessedAt time.Time    `db:"processed_at"`
}

// DepositResult is the outcome of crediting a verified deposit.
type DepositResult struct {
	Duplicate  bool
	Credited   money.Amount
	UserID     int64
	Unclaimed  bool
	NewBalance money.Amount
	TxHash     string
}

// DepositVerification is the result of validating an on-chain
// transaction hash against the custodial address.
type DepositVerification struct {
	Valid     bool
	Reason    string
	Amount    money.Amount
	Sender    string
	Memo      string
	UserID    int64
	Unclaimed bool
}
