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

// TransactionRepository implements the service.TransactionRepository
// interface. The journal is append-only: there is no update or delete.
type TransactionRepository struct {
	q queryable
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *database.DB) *TransactionRepository {
	return &TransactionRepository{q: db.Pool}
}

// newTransactionRepositoryWithTx creates a new transaction repository with a transaction
func newTransactionRepositoryWithTx(tx queryable) *TransactionRepository {
	return &TransactionRepository{q: tx}
}

// Record appends a journal row and fills in its ID and timestamp.
func (r *TransactionRepository) Record(ctx context.Context, txn *models.Transaction) error {
	metadataJSON, err := json.Marshal(txn.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal transaction metadata: %w", err)
	}

	query := `
		INSERT INTO transactions
		(type, from_user_id, to_user_id, amount, balance_after, tx_hash, status, description, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`

	err = r.q.QueryRow(ctx, query,
		txn.Type,
		txn.FromUserID,
		txn.ToUserID,
		txn.Amount.Micro(),
		txn.BalanceAfter.Micro(),
		txn.TxHash,
		txn.Status,
		txn.Description,
		metadataJSON,
	).Scan(&txn.ID, &txn.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to record transaction: %w", err)
	}

	return nil
}

// GetByUser returns journal rows involving a user, most recent first
func (r *TransactionRepository) GetByUser(ctx context.Context, userID int64, limit int) ([]*models.Transaction, error) {
	query := `
		SELECT id, type, from_user_id, to_user_id, amount, balance_after,
		       tx_hash, status, description, metadata, created_at
		FROM transactions
		WHERE from_user_id = $1 OR to_user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.q.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions for user %d: %w", userID, err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// FindRecentWithdrawal looks for a completed withdrawal journal row for
// the user with the exact amount inside the given time window. Used by
// the dual verification step before a withdrawal lock is released.
func (r *TransactionRepository) FindRecentWithdrawal(ctx context.Context, userID int64, amount money.Amount, since time.Time) (*models.Transaction, error) {
	query := `
		SELECT id, type, from_user_id, to_user_id, amount, balance_after,
		       tx_hash, status, description, metadata, created_at
		FROM transactions
		WHERE from_user_id = $1
		  AND type = $2
		  AND amount = $3
		  AND status = $4
		  AND created_at >= $5
		ORDER BY created_at DESC
		LIMIT 1
	`

	rows, err := r.q.Query(ctx, query, userID, models.TransactionTypeWithdrawal, amount.Micro(), models.TransactionStatusCompleted, since)
	if err != nil {
		return nil, fmt.Errorf("failed to find recent withdrawal for user %d: %w", userID, err)
	}
	defer rows.Close()

	txns, err := scanTransactions(rows)
	if err != nil {
		return nil, err
	}
	if len(txns) == 0 {
		return nil, nil
	}
	return txns[0], nil
}

// GetByTxHash returns the journal row carrying the given on-chain hash
func (r *TransactionRepository) GetByTxHash(ctx context.Context, txHash string) (*models.Transaction, error) {
	query := `
		SELECT id, type, from_user_id, to_user_id, amount, balance_after,
		       tx_hash, status, description, metadata, created_at
		FROM transactions
		WHERE tx_hash = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	rows, err := r.q.Query(ctx, query, txHash)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction by hash %s: %w", txHash, err)
	}
	defer rows.Close()

	txns, err := scanTransactions(rows)
	if err != nil {
		return nil, err
	}
	if len(txns) == 0 {
		return nil, nil
	}
	return txns[0], nil
}

func scanTransactions(rows pgx.Rows) ([]*models.Transaction, error) {
	var txns []*models.Transaction
	for rows.Next() {
		var txn models.Transaction
		var amountMicro, balanceAfterMicro int64
		var metadataJSON []byte

		err := rows.Scan(
			&txn.ID,
			&txn.Type,
			&txn.FromUserID,
			&txn.ToUserID,
			&amountMicro,
			&balanceAfterMicro,
			&txn.TxHash,
			&txn.Status,
			&txn.Description,
			&metadataJSON,
			&txn.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}

		txn.Amount = money.FromMicro(amountMicro)
		txn.BalanceAfter = money.FromMicro(balanceAfterMicro)

		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &txn.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal transaction metadata: %w", err)
			}
		}

		txns = append(txns, &txn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}

	return txns, nil
}
