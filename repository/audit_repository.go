package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/rattadan/cacmin-bot-sub002/database"
	"github.com/rattadan/cacmin-bot-sub002/models"
)

// AuditRepository implements the service.AuditRepository interface
type AuditRepository struct {
	q queryable
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *database.DB) *AuditRepository {
	return &AuditRepository{q: db.Pool}
}

// newAuditRepositoryWithTx creates a new audit repository with a transaction
func newAuditRepositoryWithTx(tx queryable) *AuditRepository {
	return &AuditRepository{q: tx}
}

// Record persists an administrative audit entry, assigning its ID.
func (r *AuditRepository) Record(ctx context.Context, entry *models.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	detailsJSON, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal audit details: %w", err)
	}

	query := `
		INSERT INTO audit_log (id, action, actor, user_id, details)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`

	err = r.q.QueryRow(ctx, query,
		entry.ID,
		entry.Action,
		entry.Actor,
		entry.UserID,
		detailsJSON,
	).Scan(&entry.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}

	return nil
}
