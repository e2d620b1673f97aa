package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rattadan/cacmin-bot-sub002/database"
	"github.com/rattadan/cacmin-bot-sub002/models"
	"github.com/rattadan/cacmin-bot-sub002/money"
)

// LockRepository implements the service.LockRepository interface.
// Mutual exclusion rides on the user_id primary key: TryInsert is an
// atomic test-and-set, never a separate existence check plus insert.
type LockRepository struct {
	q queryable
}

// NewLockRepository creates a new lock repository
func NewLockRepository(db *database.DB) *LockRepository {
	return &LockRepository{q: db.Pool}
}

// newLockRepositoryWithTx creates a new lock repository with a transaction
func newLockRepositoryWithTx(tx queryable) *LockRepository {
	return &LockRepository{q: tx}
}

// TryInsert attempts to create the lock row. Returns false when the
// user already holds a lock; the conflicting row is left untouched.
func (r *LockRepository) TryInsert(ctx context.Context, lock *models.TransactionLock) (bool, error) {
	metadataJSON, err := json.Marshal(lock.Metadata)
	if err != nil {
		return false, fmt.Errorf("failed to marshal lock metadata: %w", err)
	}

	query := `
		INSERT INTO transaction_locks (user_id, lock_type, amount, tx_hash, target_address, status, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO NOTHING
		RETURNING locked_at
	`

	err = r.q.QueryRow(ctx, query,
		lock.UserID,
		lock.LockType,
		lock.Amount.Micro(),
		lock.TxHash,
		lock.TargetAddress,
		lock.Status,
		metadataJSON,
	).Scan(&lock.LockedAt)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert lock for user %d: %w", lock.UserID, err)
	}

	return true, nil
}

// Get retrieves the lock for a user, nil if none exists
func (r *LockRepository) Get(ctx context.Context, userID int64) (*models.TransactionLock, error) {
	query := `
		SELECT user_id, lock_type, amount, tx_hash, target_address, locked_at, status, metadata
		FROM transaction_locks
		WHERE user_id = $1
	`

	rows, err := r.q.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get lock for user %d: %w", userID, err)
	}
	defer rows.Close()

	locks, err := scanLocks(rows)
	if err != nil {
		return nil, err
	}
	if len(locks) == 0 {
		return nil, nil
	}
	return locks[0], nil
}

// Delete removes a user's lock. Returns false if no row existed.
func (r *LockRepository) Delete(ctx context.Context, userID int64) (bool, error) {
	result, err := r.q.Exec(ctx, `DELETE FROM transaction_locks WHERE user_id = $1`, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete lock for user %d: %w", userID, err)
	}
	return result.RowsAffected() > 0, nil
}

// DeleteIfLockedAt removes a user's lock only if it is still the row
// observed at lockedAt. Used to take over an expired lock without
// racing a newer acquisition.
func (r *LockRepository) DeleteIfLockedAt(ctx context.Context, userID int64, lockedAt time.Time) (bool, error) {
	result, err := r.q.Exec(ctx,
		`DELETE FROM transaction_locks WHERE user_id = $1 AND locked_at = $2`,
		userID, lockedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete expired lock for user %d: %w", userID, err)
	}
	return result.RowsAffected() > 0, nil
}

// AttachTxHash records the broadcast hash and moves the lock to
// processing in one statement.
func (r *LockRepository) AttachTxHash(ctx context.Context, userID int64, txHash string) error {
	query := `
		UPDATE transaction_locks
		SET tx_hash = $2, status = $3
		WHERE user_id = $1 AND status = $4
	`

	result, err := r.q.Exec(ctx, query, userID, txHash, models.LockStatusProcessing, models.LockStatusPending)
	if err != nil {
		return fmt.Errorf("failed to attach tx hash for user %d: %w", userID, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("no pending lock found for user %d", userID)
	}

	return nil
}

// UpdateStatus transitions a lock's status, enforcing the state machine.
func (r *LockRepository) UpdateStatus(ctx context.Context, userID int64, from, to models.LockStatus) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("illegal lock transition %s -> %s for user %d", from, to, userID)
	}

	query := `
		UPDATE transaction_locks
		SET status = $3
		WHERE user_id = $1 AND status = $2
	`

	result, err := r.q.Exec(ctx, query, userID, from, to)
	if err != nil {
		return fmt.Errorf("failed to update lock status for user %d: %w", userID, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("no lock in status %s found for user %d", from, userID)
	}

	return nil
}

// GetExpired returns every lock past its type-specific timeout.
func (r *LockRepository) GetExpired(ctx context.Context, withdrawalTimeout, depositTimeout, transferTimeout time.Duration) ([]*models.TransactionLock, error) {
	query := `
		SELECT user_id, lock_type, amount, tx_hash, target_address, locked_at, status, metadata
		FROM transaction_locks
		WHERE locked_at < NOW() - (CASE lock_type
			WHEN 'withdrawal' THEN make_interval(secs => $1)
			WHEN 'deposit' THEN make_interval(secs => $2)
			ELSE make_interval(secs => $3)
		END)
		ORDER BY locked_at
	`

	rows, err := r.q.Query(ctx, query,
		withdrawalTimeout.Seconds(),
		depositTimeout.Seconds(),
		transferTimeout.Seconds(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get expired locks: %w", err)
	}
	defer rows.Close()

	return scanLocks(rows)
}

func scanLocks(rows pgx.Rows) ([]*models.TransactionLock, error) {
	var locks []*models.TransactionLock
	for rows.Next() {
		var lock models.TransactionLock
		var amountMicro int64
		var metadataJSON []byte

		err := rows.Scan(
			&lock.UserID,
			&lock.LockType,
			&amountMicro,
			&lock.TxHash,
			&lock.TargetAddress,
			&lock.LockedAt,
			&lock.Status,
			&metadataJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lock: %w", err)
		}

		lock.Amount = money.FromMicro(amountMicro)
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &lock.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal lock metadata: %w", err)
			}
		}

		locks = append(locks, &lock)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate locks: %w", err)
	}

	return locks, nil
}
