package service

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/rattadan/cacmin-bot-sub002/events"
	"github.com/rattadan/cacmin-bot-sub002/models"
	"github.com/rattadan/cacmin-bot-sub002/money"
)

// DuelConfig carries the wager bounds and the acceptance window.
type DuelConfig struct {
	MinWager money.Amount
	MaxWager money.Amount
	Expiry   time.Duration
}

// DefaultDuelConfig returns the standard duel parameters
func DefaultDuelConfig() DuelConfig {
	return DuelConfig{
		MinWager: money.MustParse("1"),
		MaxWager: money.MustParse("10000"),
		Expiry:   5 * time.Minute,
	}
}

// CryptoRoll draws one roll from crypto/rand. Rolls only need to be
// uniformly random and comparable, not reproducible.
func CryptoRoll() uint64 {
	var buf [8]byte
	if _, err := crand.Read(buf[:]); err != nil {
		// crypto/rand never fails on supported platforms
		panic(fmt.Sprintf("failed to read random bytes: %v", err))
	}
	return binary.BigEndian.Uint64(buf[:])
}

type duelService struct {
	uowFactory UnitOfWorkFactory
	ledger     LedgerService
	locks      LockService
	config     DuelConfig
}

// NewDuelService creates a new duel service
func NewDuelService(uowFactory UnitOfWorkFactory, ledger LedgerService, locks LockService, config DuelConfig) DuelService {
	return &duelService{
		uowFactory: uowFactory,
		ledger:     ledger,
		locks:      locks,
		config:     config,
	}
}

func (s *duelService) Create(ctx context.Context, challengerID, opponentID int64, wager money.Amount, chatID int64, loserConsequence *string, consequenceDurationSec *int64) (*models.Duel, error) {
	if challengerID == opponentID {
		return nil, fmt.Errorf("cannot challenge yourself to a duel")
	}
	if !wager.GTE(s.config.MinWager) || wager.GT(s.config.MaxWager) {
		return nil, fmt.Errorf("wager must be between %s and %s", s.config.MinWager, s.config.MaxWager)
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	outgoing, err := uow.DuelRepository().GetPendingByChallenger(ctx, challengerID)
	if err != nil {
		return nil, err
	}
	if outgoing != nil {
		return nil, fmt.Errorf("user %d already has a pending outgoing duel", challengerID)
	}

	incoming, err := uow.DuelRepository().GetPendingByOpponent(ctx, opponentID)
	if err != nil {
		return nil, err
	}
	if incoming != nil {
		return nil, fmt.Errorf("user %d already has a pending incoming duel", opponentID)
	}

	balance, err := uow.BalanceRepository().GetBalance(ctx, challengerID)
	if err != nil {
		return nil, err
	}
	if !balance.GTE(wager) {
		return nil, &InsufficientBalanceError{UserID: challengerID, Have: balance, Need: wager}
	}

	duel := &models.Duel{
		ChallengerID:           challengerID,
		OpponentID:             opponentID,
		WagerAmount:            wager,
		LoserConsequence:       loserConsequence,
		ConsequenceDurationSec: consequenceDurationSec,
		Status:                 models.DuelStatusPending,
		ChatID:                 chatID,
		ExpiresAt:              time.Now().Add(s.config.Expiry),
	}
	if err := uow.DuelRepository().Create(ctx, duel); err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"duelID":       duel.ID,
		"challengerID": challengerID,
		"opponentID":   opponentID,
		"wager":        wager.String(),
	}).Info("Duel created")

	return duel, nil
}

func (s *duelService) Cancel(ctx context.Context, duelID, requesterID int64) error {
	return s.closePending(ctx, duelID, requesterID, models.DuelStatusCancelled)
}

func (s *duelService) Reject(ctx context.Context, duelID, requesterID int64) error {
	return s.closePending(ctx, duelID, requesterID, models.DuelStatusRejected)
}

func (s *duelService) closePending(ctx context.Context, duelID, requesterID int64, status models.DuelStatus) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	duel, err := uow.DuelRepository().GetByID(ctx, duelID)
	if err != nil {
		return err
	}
	if duel == nil {
		return fmt.Errorf("duel %d: %w", duelID, ErrNotFound)
	}

	switch status {
	case models.DuelStatusCancelled:
		if !duel.CanBeCancelled(requesterID) {
			return fmt.Errorf("duel %d cannot be cancelled by user %d", duelID, requesterID)
		}
	case models.DuelStatusRejected:
		if !duel.CanBeRejected(requesterID) {
			return fmt.Errorf("duel %d cannot be rejected by user %d", duelID, requesterID)
		}
	default:
		return fmt.Errorf("unexpected closing status %s", status)
	}

	now := time.Now()
	duel.Status = status
	duel.ResolvedAt = &now
	if err := uow.DuelRepository().Update(ctx, duel); err != nil {
		return err
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"duelID":      duelID,
		"requesterID": requesterID,
		"status":      status,
	}).Info("Pending duel closed")

	return nil
}

func (s *duelService) AcceptAndExecute(ctx context.Context, duelID, opponentID int64, roll RollFunc) (*models.DuelResult, error) {
	if roll == nil {
		roll = CryptoRoll
	}

	duel, err := s.validateAcceptance(ctx, duelID, opponentID)
	if err != nil {
		return nil, err
	}

	locks, err := s.locks.AcquirePair(ctx, duel.ChallengerID, duel.OpponentID, duel.WagerAmount)
	if err != nil {
		return nil, err
	}
	// Both locks come off on every exit path; a failed settlement must
	// never leave an account frozen.
	defer func() {
		for _, l := range locks {
			if rerr := s.locks.Release(ctx, l.UserID, nil, true); rerr != nil {
				log.WithError(rerr).WithField("userID", l.UserID).Error("Failed to release duel lock")
			}
		}
	}()

	challengerRoll := roll()
	opponentRoll := roll()

	// Higher roll wins; the challenger takes ties.
	winnerID, loserID := duel.ChallengerID, duel.OpponentID
	if opponentRoll > challengerRoll {
		winnerID, loserID = duel.OpponentID, duel.ChallengerID
	}

	result, err := s.settle(ctx, duel, winnerID, loserID, challengerRoll, opponentRoll)
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"duelID":         duel.ID,
		"winnerID":       winnerID,
		"loserID":        loserID,
		"challengerRoll": challengerRoll,
		"opponentRoll":   opponentRoll,
		"wager":          duel.WagerAmount.String(),
	}).Info("Duel resolved")

	return result, nil
}

// validateAcceptance re-checks both balances at acceptance time. The
// challenger's balance may have dropped since creation; in that case the
// duel is cancelled rather than left pending forever.
func (s *duelService) validateAcceptance(ctx context.Context, duelID, opponentID int64) (*models.Duel, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	duel, err := uow.DuelRepository().GetByID(ctx, duelID)
	if err != nil {
		return nil, err
	}
	if duel == nil {
		return nil, fmt.Errorf("duel %d: %w", duelID, ErrNotFound)
	}
	if !duel.CanBeAccepted(opponentID) {
		return nil, fmt.Errorf("duel %d cannot be accepted by user %d", duelID, opponentID)
	}
	if duel.IsExpired(time.Now()) {
		return nil, fmt.Errorf("duel %d has expired", duelID)
	}

	opponentBalance, err := uow.BalanceRepository().GetBalance(ctx, duel.OpponentID)
	if err != nil {
		return nil, err
	}
	if !opponentBalance.GTE(duel.WagerAmount) {
		return nil, &InsufficientBalanceError{UserID: duel.OpponentID, Have: opponentBalance, Need: duel.WagerAmount}
	}

	challengerBalance, err := uow.BalanceRepository().GetBalance(ctx, duel.ChallengerID)
	if err != nil {
		return nil, err
	}
	if !challengerBalance.GTE(duel.WagerAmount) {
		now := time.Now()
		duel.Status = models.DuelStatusCancelled
		duel.ResolvedAt = &now
		if uerr := uow.DuelRepository().Update(ctx, duel); uerr != nil {
			return nil, uerr
		}
		if cerr := uow.Commit(); cerr != nil {
			return nil, fmt.Errorf("failed to commit transaction: %w", cerr)
		}
		return nil, fmt.Errorf("duel %d cancelled: %w", duelID,
			&InsufficientBalanceError{UserID: duel.ChallengerID, Have: challengerBalance, Need: duel.WagerAmount})
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return duel, nil
}

// settle moves the wager and completes the duel in one atomic unit.
func (s *duelService) settle(ctx context.Context, duel *models.Duel, winnerID, loserID int64, challengerRoll, opponentRoll uint64) (*models.DuelResult, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	description := fmt.Sprintf("Duel %d wager", duel.ID)
	if _, err := transferInUnitOfWork(ctx, uow, loserID, winnerID, duel.WagerAmount, models.TransactionTypeGambling, description, map[string]any{"duel_id": duel.ID}); err != nil {
		return nil, err
	}

	now := time.Now()
	duel.Status = models.DuelStatusCompleted
	duel.WinnerID = &winnerID
	duel.LoserID = &loserID
	duel.ResolvedAt = &now
	if err := uow.DuelRepository().Update(ctx, duel); err != nil {
		return nil, err
	}

	uow.EventBus().Publish(events.DuelResolvedEvent{
		DuelID:   duel.ID,
		WinnerID: winnerID,
		LoserID:  loserID,
		Amount:   duel.WagerAmount,
	})

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &models.DuelResult{
		Duel:           duel,
		WinnerID:       winnerID,
		LoserID:        loserID,
		ChallengerRoll: challengerRoll,
		OpponentRoll:   opponentRoll,
		AmountWon:      duel.WagerAmount,
	}, nil
}

func (s *duelService) CleanExpired(ctx context.Context) (int64, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	count, err := uow.DuelRepository().ExpirePending(ctx)
	if err != nil {
		return 0, err
	}

	if err := uow.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	if count > 0 {
		log.WithField("count", count).Info("Expired pending duels")
	}
	return count, nil
}
