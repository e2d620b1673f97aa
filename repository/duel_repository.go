package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/rattadan/cacmin-bot-sub002/database"
	"github.com/rattadan/cacmin-bot-sub002/models"
	"github.com/rattadan/cacmin-bot-sub002/money"
)

// DuelRepository implements the service.DuelRepository interface
type DuelRepository struct {
	q queryable
}

// NewDuelRepository creates a new duel repository
func NewDuelRepository(db *database.DB) *DuelRepository {
	return &DuelRepository{q: db.Pool}
}

// newDuelRepositoryWithTx creates a new duel repository with a transaction
func newDuelRepositoryWithTx(tx queryable) *DuelRepository {
	return &DuelRepository{q: tx}
}

const duelColumns = `
	id, challenger_id, opponent_id, wager_amount, loser_consequence,
	consequence_duration_sec, status, winner_id, loser_id, chat_id,
	created_at, expires_at, resolved_at
`

// Create inserts a new pending duel. The partial unique indexes on
// (challenger_id) and (opponent_id) enforce the one-pending-per-user
// rule at the store level.
func (r *DuelRepository) Create(ctx context.Context, duel *models.Duel) error {
	query := `
		INSERT INTO duels (challenger_id, opponent_id, wager_amount, loser_consequence,
		                   consequence_duration_sec, status, chat_id, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`

	err := r.q.QueryRow(ctx, query,
		duel.ChallengerID,
		duel.OpponentID,
		duel.WagerAmount.Micro(),
		duel.LoserConsequence,
		duel.ConsequenceDurationSec,
		duel.Status,
		duel.ChatID,
		duel.ExpiresAt,
	).Scan(&duel.ID, &duel.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create duel: %w", err)
	}

	return nil
}

// GetByID retrieves a duel by its ID, nil if not found
func (r *DuelRepository) GetByID(ctx context.Context, id int64) (*models.Duel, error) {
	query := `SELECT ` + duelColumns + ` FROM duels WHERE id = $1`

	rows, err := r.q.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get duel %d: %w", id, err)
	}
	defer rows.Close()

	duels, err := scanDuels(rows)
	if err != nil {
		return nil, err
	}
	if len(duels) == 0 {
		return nil, nil
	}
	return duels[0], nil
}

// GetPendingByChallenger returns the user's pending outgoing duel, nil if none
func (r *DuelRepository) GetPendingByChallenger(ctx context.Context, userID int64) (*models.Duel, error) {
	return r.getPendingBy(ctx, "challenger_id", userID)
}

// GetPendingByOpponent returns the user's pending incoming duel, nil if none
func (r *DuelRepository) GetPendingByOpponent(ctx context.Context, userID int64) (*models.Duel, error) {
	return r.getPendingBy(ctx, "opponent_id", userID)
}

func (r *DuelRepository) getPendingBy(ctx context.Context, column string, userID int64) (*models.Duel, error) {
	query := `SELECT ` + duelColumns + ` FROM duels WHERE ` + column + ` = $1 AND status = $2`

	rows, err := r.q.Query(ctx, query, userID, models.DuelStatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending duel for user %d: %w", userID, err)
	}
	defer rows.Close()

	duels, err := scanDuels(rows)
	if err != nil {
		return nil, err
	}
	if len(duels) == 0 {
		return nil, nil
	}
	return duels[0], nil
}

// Update persists the duel's status and resolution fields
func (r *DuelRepository) Update(ctx context.Context, duel *models.Duel) error {
	query := `
		UPDATE duels
		SET status = $2, winner_id = $3, loser_id = $4, resolved_at = $5
		WHERE id = $1
	`

	result, err := r.q.Exec(ctx, query,
		duel.ID,
		duel.Status,
		duel.WinnerID,
		duel.LoserID,
		duel.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update duel %d: %w", duel.ID, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("duel %d not found", duel.ID)
	}

	return nil
}

// ExpirePending marks every pending duel past its expiry as expired and
// returns the number of rows affected.
func (r *DuelRepository) ExpirePending(ctx context.Context) (int64, error) {
	query := `
		UPDATE duels
		SET status = $1
		WHERE status = $2 AND expires_at < NOW()
	`

	result, err := r.q.Exec(ctx, query, models.DuelStatusExpired, models.DuelStatusPending)
	if err != nil {
		return 0, fmt.Errorf("failed to expire pending duels: %w", err)
	}

	return result.RowsAffected(), nil
}

func scanDuels(rows pgx.Rows) ([]*models.Duel, error) {
	var duels []*models.Duel
	for rows.Next() {
		var duel models.Duel
		var wagerMicro int64

		err := rows.Scan(
			&duel.ID,
			&duel.ChallengerID,
			&duel.OpponentID,
			&wagerMicro,
			&duel.LoserConsequence,
			&duel.ConsequenceDurationSec,
			&duel.Status,
			&duel.WinnerID,
			&duel.LoserID,
			&duel.ChatID,
			&duel.CreatedAt,
			&duel.ExpiresAt,
			&duel.ResolvedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan duel: %w", err)
		}

		duel.WagerAmount = money.FromMicro(wagerMicro)
		duels = append(duels, &duel)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate duels: %w", err)
	}

	return duels, nil
}
