package service

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/rattadan/cacmin-bot-sub002/events"
	"github.com/rattadan/cacmin-bot-sub002/models"
	"github.com/rattadan/cacmin-bot-sub002/money"
)

type ledgerService struct {
	uowFactory       UnitOfWorkFactory
	chainClient      ChainClient
	custodialAddress string
}

// NewLedgerService creates a new ledger service
func NewLedgerService(uowFactory UnitOfWorkFactory, chainClient ChainClient, custodialAddress string) LedgerService {
	return &ledgerService{
		uowFactory:       uowFactory,
		chainClient:      chainClient,
		custodialAddress: custodialAddress,
	}
}

func (s *ledgerService) GetBalance(ctx context.Context, userID int64) (money.Amount, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return money.Zero, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	balance, err := uow.BalanceRepository().GetBalance(ctx, userID)
	if err != nil {
		return money.Zero, err
	}

	if err := uow.Commit(); err != nil {
		return money.Zero, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return balance, nil
}

func (s *ledgerService) Credit(ctx context.Context, userID int64, amount money.Amount, txType models.TransactionType, description string, txHash *string) (*models.LedgerResult, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("credit amount must be positive")
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback() // No-op if already committed

	result, err := creditInUnitOfWork(ctx, uow, userID, amount, txType, description, txHash, nil)
	if err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return result, nil
}

func (s *ledgerService) Debit(ctx context.Context, userID int64, amount money.Amount, txType models.TransactionType, description string) (*models.LedgerResult, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("debit amount must be positive")
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	newBalance, err := uow.BalanceRepository().DeductBalance(ctx, userID, amount)
	if err != nil {
		return nil, err
	}

	txn := &models.Transaction{
		Type:         txType,
		FromUserID:   &userID,
		Amount:       amount,
		BalanceAfter: newBalance,
		Status:       models.TransactionStatusCompleted,
		Description:  description,
	}
	if err := uow.TransactionRepository().Record(ctx, txn); err != nil {
		return nil, err
	}

	uow.EventBus().Publish(events.BalanceChangeEvent{
		UserID:          userID,
		NewBalance:      newBalance,
		ChangeAmount:    amount,
		TransactionType: txType,
	})

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &models.LedgerResult{Transaction: txn, NewBalance: newBalance}, nil
}

func (s *ledgerService) Transfer(ctx context.Context, fromUserID, toUserID int64, amount money.Amount, description string) (*models.TransferResult, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	result, err := transferInUnitOfWork(ctx, uow, fromUserID, toUserID, amount, models.TransactionTypeTransfer, description, nil)
	if err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return result, nil
}

func (s *ledgerService) ProcessDeposit(ctx context.Context, userID int64, amount money.Amount, txHash, sender, memo, description string) (*models.DepositResult, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("deposit amount must be positive")
	}
	if txHash == "" {
		return nil, fmt.Errorf("deposit tx hash cannot be empty")
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	// The unique tx_hash claim and the credit commit or roll back
	// together, so a crash between them cannot strand the hash.
	dep := &models.ProcessedDeposit{
		TxHash: txHash,
		UserID: userID,
		Amount: amount,
		Sender: sender,
		Memo:   memo,
	}
	won, err := uow.ProcessedDepositRepository().TryMarkProcessed(ctx, dep)
	if err != nil {
		return nil, err
	}
	if !won {
		// Retries are idempotent: the duplicate is a no-op, not an error.
		log.WithFields(log.Fields{
			"txHash": txHash,
			"userID": userID,
		}).Info("Deposit already processed, skipping")
		return &models.DepositResult{Duplicate: true, UserID: userID, TxHash: txHash}, nil
	}

	unclaimed := userID == models.UnclaimedAccountID
	result, err := creditInUnitOfWork(ctx, uow, userID, amount, models.TransactionTypeDeposit, description, &txHash, map[string]any{
		"sender": sender,
		"memo":   memo,
	})
	if err != nil {
		return nil, err
	}

	uow.EventBus().Publish(events.DepositCreditedEvent{
		UserID:    userID,
		Amount:    amount,
		TxHash:    txHash,
		Unclaimed: unclaimed,
	})

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &models.DepositResult{
		Credited:   amount,
		UserID:     userID,
		Unclaimed:  unclaimed,
		NewBalance: result.NewBalance,
		TxHash:     txHash,
	}, nil
}

func (s *ledgerService) GetUserTransactions(ctx context.Context, userID int64, limit int) ([]*models.Transaction, error) {
	if limit <= 0 {
		limit = 10
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	txns, err := uow.TransactionRepository().GetByUser(ctx, userID, limit)
	if err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return txns, nil
}

func (s *ledgerService) Reconcile(ctx context.Context) (*models.ReconcileResult, error) {
	onChain, err := s.chainClient.GetAddressBalance(ctx, s.custodialAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to get on-chain balance: %w", err)
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	internal, err := uow.BalanceRepository().SumAll(ctx)
	if err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	result := &models.ReconcileResult{
		Matched:        internal.Equal(onChain),
		OnChainBalance: onChain,
		InternalTotal:  internal,
		CheckedAt:      time.Now(),
	}

	if !result.Matched {
		log.WithFields(log.Fields{
			"onChainBalance": onChain.String(),
			"internalTotal":  internal.String(),
		}).Error("Reconciliation mismatch between ledger and chain")
	}

	return result, nil
}

func (s *ledgerService) ClaimUnclaimedDeposit(ctx context.Context, txHash string, targetUserID int64, actor string) (*models.TransferResult, error) {
	if models.IsSystemAccount(targetUserID) {
		return nil, fmt.Errorf("cannot claim a deposit for a system account")
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	dep, err := uow.ProcessedDepositRepository().GetByTxHash(ctx, txHash)
	if err != nil {
		return nil, err
	}
	if dep == nil || !dep.Processed {
		return nil, fmt.Errorf("deposit %s: %w", txHash, ErrNotFound)
	}
	if dep.UserID != models.UnclaimedAccountID {
		return nil, fmt.Errorf("deposit %s was not credited to the unclaimed pool", txHash)
	}

	// The original deposit journal entry stays untouched; the claim is a
	// fresh transfer out of the unclaimed pool.
	result, err := transferInUnitOfWork(ctx, uow, models.UnclaimedAccountID, targetUserID, dep.Amount,
		models.TransactionTypeTransfer, fmt.Sprintf("claim of unclaimed deposit %s", txHash), map[string]any{
			"claimed_tx_hash": txHash,
			"claimed_by":      actor,
		})
	if err != nil {
		return nil, err
	}

	if err := uow.AuditRepository().Record(ctx, &models.AuditEntry{
		Action: models.AuditActionClaimDeposit,
		Actor:  actor,
		UserID: &targetUserID,
		Details: map[string]any{
			"tx_hash": txHash,
			"amount":  dep.Amount.String(),
		},
	}); err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"txHash":       txHash,
		"targetUserID": targetUserID,
		"actor":        actor,
		"amount":       dep.Amount.String(),
	}).Warn("Unclaimed deposit reassigned by administrator")

	return result, nil
}

// creditInUnitOfWork performs the balance increment and journal append
// inside an already-started unit of work.
func creditInUnitOfWork(ctx context.Context, uow UnitOfWork, userID int64, amount money.Amount, txType models.TransactionType, description string, txHash *string, metadata map[string]any) (*models.LedgerResult, error) {
	newBalance, err := uow.BalanceRepository().AddBalance(ctx, userID, amount)
	if err != nil {
		return nil, err
	}

	txn := &models.Transaction{
		Type:         txType,
		ToUserID:     &userID,
		Amount:       amount,
		BalanceAfter: newBalance,
		TxHash:       txHash,
		Status:       models.TransactionStatusCompleted,
		Description:  description,
		Metadata:     metadata,
	}
	if err := uow.TransactionRepository().Record(ctx, txn); err != nil {
		return nil, err
	}

	uow.EventBus().Publish(events.BalanceChangeEvent{
		UserID:          userID,
		NewBalance:      newBalance,
		ChangeAmount:    amount,
		TransactionType: txType,
	})

	return &models.LedgerResult{Transaction: txn, NewBalance: newBalance}, nil
}

// transferInUnitOfWork composes one debit and one credit and records a
// single journal row. Total balance across participants is unchanged.
func transferInUnitOfWork(ctx context.Context, uow UnitOfWork, fromUserID, toUserID int64, amount money.Amount, txType models.TransactionType, description string, metadata map[string]any) (*models.TransferResult, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("transfer amount must be positive")
	}
	if fromUserID == toUserID {
		return nil, fmt.Errorf("cannot transfer to yourself")
	}

	newFromBalance, err := uow.BalanceRepository().DeductBalance(ctx, fromUserID, amount)
	if err != nil {
		return nil, err
	}

	newToBalance, err := uow.BalanceRepository().AddBalance(ctx, toUserID, amount)
	if err != nil {
		return nil, err
	}

	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["recipient_balance_after"] = newToBalance.Micro()

	txn := &models.Transaction{
		Type:         txType,
		FromUserID:   &fromUserID,
		ToUserID:     &toUserID,
		Amount:       amount,
		BalanceAfter: newFromBalance,
		Status:       models.TransactionStatusCompleted,
		Description:  description,
		Metadata:     metadata,
	}
	if err := uow.TransactionRepository().Record(ctx, txn); err != nil {
		return nil, err
	}

	uow.EventBus().Publish(events.BalanceChangeEvent{
		UserID:          fromUserID,
		NewBalance:      newFromBalance,
		ChangeAmount:    amount,
		TransactionType: txType,
	})
	uow.EventBus().Publish(events.BalanceChangeEvent{
		UserID:          toUserID,
		NewBalance:      newToBalance,
		ChangeAmount:    amount,
		TransactionType: txType,
	})

	return &models.TransferResult{
		Amount:         amount,
		FromUserID:     fromUserID,
		ToUserID:       toUserID,
		NewFromBalance: newFromBalance,
		NewToBalance:   newToBalance,
	}, nil
}
