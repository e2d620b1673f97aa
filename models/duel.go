package models

import (
	"time"

	"github.com/rattadan/cacmin-bot-sub002/money"
)

// DuelStatus represents the state of a duel
type DuelStatus string

const (
	DuelStatusPending   DuelStatus = "pending"
	DuelStatusAccepted  DuelStatus = "accepted"
	DuelStatusCompleted DuelStatus = "completed"
	DuelStatusCancelled DuelStatus = "cancelled"
	DuelStatusRejected  DuelStatus = "rejected"
	DuelStatusExpired   DuelStatus = "expired"
)

// Duel represents a two-party, all-or-nothing wager. A user may have at
// most one pending outgoing and one pending incoming duel at a time.
type Duel struct {
	ID                     int64        `db:"id"`
	ChallengerID           int64        `db:"challenger_id"`
	OpponentID             int64        `db:"opponent_id"`
	WagerAmount            money.Amount `db:"wager_amount"`
	LoserConsequence       *string      `db:"loser_consequence"`
	ConsequenceDurationSec *int64       `db:"consequence_duration_sec"`
	Status                 DuelStatus   `db:"status"`
	WinnerID               *int64       `db:"winner_id"`
	LoserID                *int64       `db:"loser_id"`
	ChatID                 int64        `db:"chat_id"`
	CreatedAt              time.Time    `db:"created_at"`
	ExpiresAt              time.Time    `db:"expires_at"`
	ResolvedAt             *time.Time   `db:"resolved_at"`
}

// IsParticipant checks if a user is involved in the duel
func (d *Duel) IsParticipant(userID int64) bool {
	return d.ChallengerID == userID || d.OpponentID == userID
}

// CanBeAccepted checks if the duel can be accepted by the given user
func (d *Duel) CanBeAccepted(userID int64) bool {
	return d.Status == DuelStatusPending && d.OpponentID == userID
}

// CanBeCancelled checks if the duel can be cancelled by the given user
func (d *Duel) CanBeCancelled(userID int64) bool {
	return d.Status == DuelStatusPending && d.ChallengerID == userID
}

// CanBeRejected checks if the duel can be rejected by the given user
func (d *Duel) CanBeRejected(userID int64) bool {
	return d.Status == DuelStatusPending && d.OpponentID == userID
}

// IsExpired reports whether the pending duel has outlived its window.
func (d *Duel) IsExpired(now time.Time) bool {
	return d.Status == DuelStatusPending && now.After(d.ExpiresAt)
}

// DuelResult is the outcome of an executed duel.
type DuelResult struct {
	Duel           *Duel
	WinnerID       int64
	LoserID        int64
	ChallengerRoll uint64
	OpponentRoll   uint64
	AmountWon      money.Amount
}
