package models

import (
	"time"
)

// AuditAction identifies an administrative operation on the ledger
type AuditAction string

const (
	AuditActionForceRelease         AuditAction = "force_release"
	AuditActionResolveInconsistency AuditAction = "resolve_inconsistency"
	AuditActionClaimDeposit         AuditAction = "claim_deposit"
)

// AuditEntry records a security-relevant administrative operation.
// Nothing in the ledger core clears an inconsistency implicitly; every
// manual intervention leaves one of these rows behind.
type AuditEntry struct {
	ID        string         `db:"id"`
	Action    AuditAction    `db:"action"`
	Actor     string         `db:"actor"`
	UserID    *int64         `db:"user_id"`
	Details   map[string]any `db:"details"`
	CreatedAt time.Time      `db:"created_at"`
}
