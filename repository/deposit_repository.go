package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/rattadan/cacmin-bot-sub002/database"
	"github.com/rattadan/cacmin-bot-sub002/models"
	"github.com/rattadan/cacmin-bot-sub002/money"
)

// ProcessedDepositRepository implements the
// service.ProcessedDepositRepository interface
type ProcessedDepositRepository struct {
	q queryable
}

// NewProcessedDepositRepository creates a new processed deposit repository
func NewProcessedDepositRepository(db *database.DB) *ProcessedDepositRepository {
	return &ProcessedDepositRepository{q: db.Pool}
}

// newProcessedDepositRepositoryWithTx creates a new processed deposit repository with a transaction
func newProcessedDepositRepositoryWithTx(tx queryable) *ProcessedDepositRepository {
	return &ProcessedDepositRepository{q: tx}
}

// GetByTxHash retrieves a processed deposit record by hash, nil if none
func (r *ProcessedDepositRepository) GetByTxHash(ctx context.Context, txHash string) (*models.ProcessedDeposit, error) {
	query := `
		SELECT tx_hash, user_id, amount, sender, memo, processed, processed_at
		FROM processed_deposits
		WHERE tx_hash = $1
	`

	var dep models.ProcessedDeposit
	var amountMicro int64
	err := r.q.QueryRow(ctx, query, txHash).Scan(
		&dep.TxHash,
		&dep.UserID,
		&amountMicro,
		&dep.Sender,
		&dep.Memo,
		&dep.Processed,
		&dep.ProcessedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get processed deposit %s: %w", txHash, err)
	}

	dep.Amount = money.FromMicro(amountMicro)
	return &dep, nil
}

// TryMarkProcessed claims a tx hash for processing in one atomic
// statement. It returns true exactly once per hash: the unique primary
// key is the idempotency guard, so two concurrent callers cannot both
// win even across processes.
func (r *ProcessedDepositRepository) TryMarkProcessed(ctx context.Context, dep *models.ProcessedDeposit) (bool, error) {
	query := `
		INSERT INTO processed_deposits (tx_hash, user_id, amount, sender, memo, processed, processed_at)
		VALUES ($1, $2, $3, $4, $5, TRUE, NOW())
		ON CONFLICT (tx_hash) DO UPDATE
		SET processed = TRUE, processed_at = NOW()
		WHERE processed_deposits.processed = FALSE
		RETURNING processed_at
	`

	err := r.q.QueryRow(ctx, query,
		dep.TxHash,
		dep.UserID,
		dep.Amount.Micro(),
		dep.Sender,
		dep.Memo,
	).Scan(&dep.ProcessedAt)
	if err == pgx.ErrNoRows {
		// Already processed by an earlier call.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to mark deposit %s processed: %w", dep.TxHash, err)
	}

	dep.Processed = true
	return true, nil
}
