package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/rattadan/cacmin-bot-sub002/chain"
	"github.com/rattadan/cacmin-bot-sub002/events"
	"github.com/rattadan/cacmin-bot-sub002/models"
	"github.com/rattadan/cacmin-bot-sub002/money"
)

// LockTimeouts holds the type-specific lock lifetimes, reflecting the
// expected external-confirmation latency of each operation.
type LockTimeouts struct {
	Withdrawal time.Duration
	Deposit    time.Duration
	Transfer   time.Duration
}

// DefaultLockTimeouts returns the standard lock lifetimes
func DefaultLockTimeouts() LockTimeouts {
	return LockTimeouts{
		Withdrawal: 120 * time.Second,
		Deposit:    300 * time.Second,
		Transfer:   30 * time.Second,
	}
}

// For returns the timeout for a lock type
func (t LockTimeouts) For(lockType models.LockType) time.Duration {
	switch lockType {
	case models.LockTypeWithdrawal:
		return t.Withdrawal
	case models.LockTypeDeposit:
		return t.Deposit
	default:
		return t.Transfer
	}
}

// verificationWindow bounds how far back the journal is searched for a
// withdrawal entry during dual verification.
const verificationWindow = 10 * time.Minute

type lockService struct {
	uowFactory       UnitOfWorkFactory
	chainClient      ChainClient
	custodialAddress string
	timeouts         LockTimeouts
}

// NewLockService creates a new transaction lock service
func NewLockService(uowFactory UnitOfWorkFactory, chainClient ChainClient, custodialAddress string, timeouts LockTimeouts) LockService {
	return &lockService{
		uowFactory:       uowFactory,
		chainClient:      chainClient,
		custodialAddress: custodialAddress,
		timeouts:         timeouts,
	}
}

func (s *lockService) Acquire(ctx context.Context, userID int64, lockType models.LockType, amount money.Amount, metadata map[string]any) (*models.TransactionLock, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	lock, err := s.acquireInUnitOfWork(ctx, uow, userID, lockType, amount, metadata)
	if err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return lock, nil
}

// acquireInUnitOfWork performs the atomic test-and-set. The insert hits
// the user_id primary key, so two concurrent attempts cannot both
// succeed; there is no separate existence check.
func (s *lockService) acquireInUnitOfWork(ctx context.Context, uow UnitOfWork, userID int64, lockType models.LockType, amount money.Amount, metadata map[string]any) (*models.TransactionLock, error) {
	lock := &models.TransactionLock{
		UserID:   userID,
		LockType: lockType,
		Amount:   amount,
		Status:   models.LockStatusPending,
		Metadata: metadata,
	}

	acquired, err := uow.LockRepository().TryInsert(ctx, lock)
	if err != nil {
		return nil, err
	}
	if acquired {
		return lock, nil
	}

	existing, err := uow.LockRepository().Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		// The conflicting lock vanished between the insert and the read;
		// one retry is enough since the PK still serializes us.
		acquired, err = uow.LockRepository().TryInsert(ctx, lock)
		if err != nil {
			return nil, err
		}
		if acquired {
			return lock, nil
		}
		return nil, &LockConflictError{UserID: userID, LockType: lockType, RetryIn: s.timeouts.For(lockType)}
	}

	timeout := s.timeouts.For(existing.LockType)
	now := time.Now()
	if existing.IsExpired(timeout, now) {
		// Take over the expired lock, but only the exact row we observed.
		removed, err := uow.LockRepository().DeleteIfLockedAt(ctx, userID, existing.LockedAt)
		if err != nil {
			return nil, err
		}
		if removed {
			if existing.LockType == models.LockTypeWithdrawal && !existing.Status.IsTerminal() {
				log.WithFields(log.Fields{
					"userID":   userID,
					"txHash":   existing.TxHash,
					"status":   existing.Status,
					"lockedAt": existing.LockedAt,
				}).Warn("Expired unverified withdrawal lock replaced, flagged for manual review")
			}
			acquired, err = uow.LockRepository().TryInsert(ctx, lock)
			if err != nil {
				return nil, err
			}
			if acquired {
				return lock, nil
			}
		}
		return nil, &LockConflictError{UserID: userID, LockType: lockType, RetryIn: s.timeouts.For(lockType)}
	}

	return nil, &LockConflictError{
		UserID:   userID,
		LockType: existing.LockType,
		RetryIn:  time.Until(existing.ExpiresAt(timeout)),
	}
}

func (s *lockService) AcquirePair(ctx context.Context, userA, userB int64, amount money.Amount) ([]*models.TransactionLock, error) {
	if userA == userB {
		return nil, fmt.Errorf("cannot acquire a lock pair for a single user")
	}

	// Lock in ascending user order so concurrent pair acquisitions
	// cannot deadlock each other.
	first, second := userA, userB
	if first > second {
		first, second = second, first
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	// Both inserts live in one transaction: if the second conflicts, the
	// rollback removes the first, so no partial pairing is ever visible.
	firstLock, err := s.acquireInUnitOfWork(ctx, uow, first, models.LockTypeTransfer, amount, nil)
	if err != nil {
		return nil, err
	}
	secondLock, err := s.acquireInUnitOfWork(ctx, uow, second, models.LockTypeTransfer, amount, nil)
	if err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	if firstLock.UserID == userA {
		return []*models.TransactionLock{firstLock, secondLock}, nil
	}
	return []*models.TransactionLock{secondLock, firstLock}, nil
}

func (s *lockService) AttachTxHash(ctx context.Context, userID int64, txHash string) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if err := uow.LockRepository().AttachTxHash(ctx, userID, txHash); err != nil {
		return err
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *lockService) VerifyWithdrawalCompletion(ctx context.Context, userID int64, txHash string, expectedAmount money.Amount) (*models.WithdrawalVerification, error) {
	result := &models.WithdrawalVerification{}

	tx, err := s.chainClient.FetchTransaction(ctx, txHash)
	if errors.Is(err, chain.ErrTxNotFound) {
		result.Reason = "transaction not found on chain"
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transaction %s: %w", txHash, err)
	}

	result.ChainSuccess = tx.Status == chain.StatusSuccess
	if !result.ChainSuccess {
		result.Reason = fmt.Sprintf("chain status is %s", tx.Status)
	}

	// Sum every transfer leaving the custodial address; comparison is
	// exact at micro-unit resolution.
	sent := money.Zero
	for _, transfer := range tx.Transfers {
		if transfer.From == s.custodialAddress {
			sent = sent.Add(transfer.Amount)
		}
	}
	result.OnChainAmount = sent
	result.AmountMatches = sent.Equal(expectedAmount)
	if result.ChainSuccess && !result.AmountMatches {
		result.Reason = fmt.Sprintf("on-chain amount %s does not match expected %s", sent, expectedAmount)
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	journalRow, err := uow.TransactionRepository().FindRecentWithdrawal(ctx, userID, expectedAmount, time.Now().Add(-verificationWindow))
	if err != nil {
		return nil, err
	}
	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	result.LedgerMatches = journalRow != nil
	if result.ChainSuccess && result.AmountMatches && !result.LedgerMatches {
		result.Reason = "no matching withdrawal journal entry in the recent window"
	}

	result.Verified = result.ChainSuccess && result.AmountMatches && result.LedgerMatches
	return result, nil
}

func (s *lockService) Release(ctx context.Context, userID int64, txHash *string, force bool) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	lock, err := uow.LockRepository().Get(ctx, userID)
	if err != nil {
		return err
	}
	if lock == nil {
		return fmt.Errorf("lock for user %d: %w", userID, ErrNotFound)
	}

	if lock.LockType == models.LockTypeWithdrawal && !force {
		if err := s.checkWithdrawalReleasable(ctx, uow, lock, txHash); err != nil {
			return err
		}
	}

	if _, err := uow.LockRepository().Delete(ctx, userID); err != nil {
		return err
	}

	uow.EventBus().Publish(events.LockReleasedEvent{
		UserID:   userID,
		LockType: lock.LockType,
		Forced:   force,
	})

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// checkWithdrawalReleasable enforces the two-phase unlock: a withdrawal
// lock only opens on verified completion, timeout, or force.
func (s *lockService) checkWithdrawalReleasable(ctx context.Context, uow UnitOfWork, lock *models.TransactionLock, txHash *string) error {
	if lock.IsExpired(s.timeouts.Withdrawal, time.Now()) {
		return nil
	}

	hash := txHash
	if hash == nil {
		hash = lock.TxHash
	}
	if hash == nil {
		return &VerificationError{Reason: "no tx hash attached to withdrawal lock"}
	}

	verification, err := s.VerifyWithdrawalCompletion(ctx, lock.UserID, *hash, lock.Amount)
	if err != nil {
		return err
	}
	if verification.Verified {
		return nil
	}

	if verification.LedgerMatches && !verification.ChainSuccess {
		// The ledger says the withdrawal happened but the chain does
		// not. This is never repaired automatically; flag the lock and
		// surface it for an operator.
		if uerr := uow.LockRepository().UpdateStatus(ctx, lock.UserID, lock.Status, models.LockStatusFailed); uerr != nil {
			log.WithError(uerr).Warn("Failed to flag inconsistent withdrawal lock")
		}
		if aerr := uow.AuditRepository().Record(ctx, &models.AuditEntry{
			Action: models.AuditActionResolveInconsistency,
			Actor:  "system",
			UserID: &lock.UserID,
			Details: map[string]any{
				"tx_hash":  *hash,
				"expected": lock.Amount.String(),
				"reason":   verification.Reason,
				"flagged":  true,
			},
		}); aerr != nil {
			log.WithError(aerr).Warn("Failed to record inconsistency audit entry")
		}

		uow.EventBus().Publish(events.InconsistentStateEvent{
			UserID:         lock.UserID,
			TxHash:         *hash,
			ExpectedAmount: lock.Amount,
			Detail:         verification.Reason,
		})

		log.WithFields(log.Fields{
			"userID": lock.UserID,
			"txHash": *hash,
			"reason": verification.Reason,
		}).Error("Ledger updated but chain transaction did not verify, manual review required")

		inconsistent := &InconsistentStateError{
			UserID: lock.UserID,
			TxHash: *hash,
			Detail: verification.Reason,
		}
		// Commit the flag even though the release is refused.
		if cerr := uow.Commit(); cerr != nil {
			return fmt.Errorf("failed to commit inconsistency flag: %w", cerr)
		}
		return inconsistent
	}

	return &VerificationError{TxHash: *hash, Reason: verification.Reason}
}

func (s *lockService) ForceRelease(ctx context.Context, userID int64, reason, actor string) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	lock, err := uow.LockRepository().Get(ctx, userID)
	if err != nil {
		return err
	}
	if lock == nil {
		return fmt.Errorf("lock for user %d: %w", userID, ErrNotFound)
	}

	if _, err := uow.LockRepository().Delete(ctx, userID); err != nil {
		return err
	}

	if err := uow.AuditRepository().Record(ctx, &models.AuditEntry{
		Action: models.AuditActionForceRelease,
		Actor:  actor,
		UserID: &userID,
		Details: map[string]any{
			"reason":    reason,
			"lock_type": string(lock.LockType),
			"amount":    lock.Amount.String(),
			"tx_hash":   lock.TxHash,
		},
	}); err != nil {
		return err
	}

	uow.EventBus().Publish(events.LockReleasedEvent{
		UserID:   userID,
		LockType: lock.LockType,
		Forced:   true,
	})

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"userID": userID,
		"actor":  actor,
		"reason": reason,
	}).Warn("Transaction lock force-released")

	return nil
}

func (s *lockService) ResolveInconsistency(ctx context.Context, userID int64, actor, note string) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	lock, err := uow.LockRepository().Get(ctx, userID)
	if err != nil {
		return err
	}
	if lock == nil {
		return fmt.Errorf("flagged lock for user %d: %w", userID, ErrNotFound)
	}
	if lock.Status != models.LockStatusFailed {
		return fmt.Errorf("lock for user %d is %s, not flagged as inconsistent", userID, lock.Status)
	}

	if _, err := uow.LockRepository().Delete(ctx, userID); err != nil {
		return err
	}

	if err := uow.AuditRepository().Record(ctx, &models.AuditEntry{
		Action: models.AuditActionResolveInconsistency,
		Actor:  actor,
		UserID: &userID,
		Details: map[string]any{
			"note":    note,
			"tx_hash": lock.TxHash,
			"amount":  lock.Amount.String(),
		},
	}); err != nil {
		return err
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"userID": userID,
		"actor":  actor,
		"note":   note,
	}).Warn("Inconsistent withdrawal lock resolved by administrator")

	return nil
}

func (s *lockService) SweepExpired(ctx context.Context) (int, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	expired, err := uow.LockRepository().GetExpired(ctx, s.timeouts.Withdrawal, s.timeouts.Deposit, s.timeouts.Transfer)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, lock := range expired {
		if lock.LockType == models.LockTypeWithdrawal && !lock.Status.IsTerminal() {
			// Never drop an unverifiable withdrawal silently.
			log.WithFields(log.Fields{
				"userID":   lock.UserID,
				"txHash":   lock.TxHash,
				"amount":   lock.Amount.String(),
				"status":   lock.Status,
				"lockedAt": lock.LockedAt,
			}).Warn("Expired unverified withdrawal lock removed, flagged for manual review")

			uow.EventBus().Publish(events.InconsistentStateEvent{
				UserID:         lock.UserID,
				TxHash:         stringOrEmpty(lock.TxHash),
				ExpectedAmount: lock.Amount,
				Detail:         "withdrawal lock expired before verification",
			})
		}

		ok, err := uow.LockRepository().DeleteIfLockedAt(ctx, lock.UserID, lock.LockedAt)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}

	if err := uow.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	if removed > 0 {
		log.WithField("count", removed).Info("Expired transaction locks swept")
	}
	return removed, nil
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
