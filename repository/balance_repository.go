package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/rattadan/cacmin-bot-sub002/database"
	"github.com/rattadan/cacmin-bot-sub002/models"
	"github.com/rattadan/cacmin-bot-sub002/money"
	"github.com/rattadan/cacmin-bot-sub002/service"
)

// BalanceRepository implements the service.BalanceRepository interface
type BalanceRepository struct {
	q queryable
}

// NewBalanceRepository creates a new balance repository
func NewBalanceRepository(db *database.DB) *BalanceRepository {
	return &BalanceRepository{q: db.Pool}
}

// newBalanceRepositoryWithTx creates a new balance repository with a transaction
func newBalanceRepositoryWithTx(tx queryable) *BalanceRepository {
	return &BalanceRepository{q: tx}
}

// GetBalance returns a user's balance, or zero if no row exists.
// Balances are implicit-zero until the first transaction.
func (r *BalanceRepository) GetBalance(ctx context.Context, userID int64) (money.Amount, error) {
	query := `SELECT balance FROM balances WHERE user_id = $1`

	var micro int64
	err := r.q.QueryRow(ctx, query, userID).Scan(&micro)
	if err == pgx.ErrNoRows {
		return money.Zero, nil
	}
	if err != nil {
		return money.Zero, fmt.Errorf("failed to get balance for user %d: %w", userID, err)
	}

	return money.FromMicro(micro), nil
}

// AddBalance credits a user's balance atomically, creating the row on
// first credit, and returns the resulting balance.
func (r *BalanceRepository) AddBalance(ctx context.Context, userID int64, amount money.Amount) (money.Amount, error) {
	if !amount.IsPositive() {
		return money.Zero, fmt.Errorf("credit amount must be positive")
	}

	query := `
		INSERT INTO balances (user_id, balance)
		VALUES ($1, $2)
		ON CONFLICT (user_id)
		DO UPDATE SET balance = balances.balance + EXCLUDED.balance, updated_at = NOW()
		RETURNING balance
	`

	var micro int64
	err := r.q.QueryRow(ctx, query, userID, amount.Micro()).Scan(&micro)
	if err != nil {
		return money.Zero, fmt.Errorf("failed to add balance for user %d: %w", userID, err)
	}

	return money.FromMicro(micro), nil
}

// DeductBalance debits a user's balance atomically, failing with
// InsufficientBalance if the row is missing or the balance is too low.
// Returns the resulting balance.
func (r *BalanceRepository) DeductBalance(ctx context.Context, userID int64, amount money.Amount) (money.Amount, error) {
	if !amount.IsPositive() {
		return money.Zero, fmt.Errorf("debit amount must be positive")
	}

	query := `
		UPDATE balances
		SET balance = balance - $2, updated_at = NOW()
		WHERE user_id = $1 AND balance >= $2
		RETURNING balance
	`

	var micro int64
	err := r.q.QueryRow(ctx, query, userID, amount.Micro()).Scan(&micro)
	if err == pgx.ErrNoRows {
		have, gerr := r.GetBalance(ctx, userID)
		if gerr != nil {
			return money.Zero, fmt.Errorf("failed to check balance: %w", gerr)
		}
		return money.Zero, &service.InsufficientBalanceError{UserID: userID, Have: have, Need: amount}
	}
	if err != nil {
		return money.Zero, fmt.Errorf("failed to deduct balance for user %d: %w", userID, err)
	}

	return money.FromMicro(micro), nil
}

// SumAll returns the total of every internal balance, system accounts
// included. Used by reconciliation.
func (r *BalanceRepository) SumAll(ctx context.Context) (money.Amount, error) {
	query := `SELECT COALESCE(SUM(balance), 0) FROM balances`

	var micro int64
	if err := r.q.QueryRow(ctx, query).Scan(&micro); err != nil {
		return money.Zero, fmt.Errorf("failed to sum balances: %w", err)
	}

	return money.FromMicro(micro), nil
}

// GetAll returns all balance rows, largest first
func (r *BalanceRepository) GetAll(ctx context.Context) ([]*models.Balance, error) {
	query := `
		SELECT user_id, balance, created_at, updated_at
		FROM balances
		ORDER BY balance DESC
	`

	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get all balances: %w", err)
	}
	defer rows.Close()

	var balances []*models.Balance
	for rows.Next() {
		var b models.Balance
		var micro int64
		if err := rows.Scan(&b.UserID, &micro, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}
		b.Balance = money.FromMicro(micro)
		balances = append(balances, &b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate balances: %w", err)
	}

	return balances, nil
}
