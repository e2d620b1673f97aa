package models

import (
	"time"

	"github.com/rattadan/cacmin-bot-sub002/money"
)

// Reserved system participant IDs. Real chat-platform user IDs are
// always positive, so the system accounts live in negative space.
const (
	// TreasuryAccountID holds operator-controlled funds (fines, fees).
	TreasuryAccountID int64 = -1

	// UnclaimedAccountID pools deposits whose memo could not be matched
	// to a user. Funds are moved out by an explicit admin claim.
	UnclaimedAccountID int64 = -2
)

// Balance represents one participant's custodial balance. Rows are
// created lazily on first credit; a missing row means zero.
type Balance struct {
	UserID    int64        `db:"user_id"`
	Balance   money.Amount `db:"balance"`
	CreatedAt time.Time    `db:"created_at"`
	UpdatedAt time.Time    `db:"updated_at"`
}

// IsSystemAccount reports whether the ID is a reserved system participant.
func IsSystemAccount(userID int64) bool {
	return userID < 0
}
