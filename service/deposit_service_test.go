package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/rattadan/cacmin-bot-sub002/chain"
	"github.com/rattadan/cacmin-bot-sub002/models"
	"github.com/rattadan/cacmin-bot-sub002/money"
)

// MockLedgerService is a mock implementation of LedgerService
type MockLedgerService struct {
	mock.Mock
}

func (m *MockLedgerService) GetBalance(ctx context.Context, userID int64) (money.Amount, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(money.Amount), args.Error(1)
}

func (m *MockLedgerService) Credit(ctx context.Context, userID int64, amount money.Amount, txType models.TransactionType, description string, txHash *string) (*models.LedgerResult, error) {
	args := m.Called(ctx, userID, amount, txType, description, txHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.LedgerResult), args.Error(1)
}

func (m *MockLedgerService) Debit(ctx context.Context, userID int64, amount money.Amount, txType models.TransactionType, description string) (*models.LedgerResult, error) {
	args := m.Called(ctx, userID, amount, txType, description)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.LedgerResult), args.Error(1)
}

func (m *MockLedgerService) Transfer(ctx context.Context, fromUserID, toUserID int64, amount money.Amount, description string) (*models.TransferResult, error) {
	args := m.Called(ctx, fromUserID, toUserID, amount, description)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TransferResult), args.Error(1)
}

func (m *MockLedgerService) ProcessDeposit(ctx context.Context, userID int64, amount money.Amount, txHash, sender, memo, description string) (*models.DepositResult, error) {
	args := m.Called(ctx, userID, amount, txHash, sender, memo, description)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DepositResult), args.Error(1)
}

func (m *MockLedgerService) GetUserTransactions(ctx context.Context, userID int64, limit int) ([]*models.Transaction, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Transaction), args.Error(1)
}

func (m *MockLedgerService) Reconcile(ctx context.Context) (*models.ReconcileResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ReconcileResult), args.Error(1)
}

func (m *MockLedgerService) ClaimUnclaimedDeposit(ctx context.Context, txHash string, targetUserID int64, actor string) (*models.TransferResult, error) {
	args := m.Called(ctx, txHash, targetUserID, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TransferResult), args.Error(1)
}

func TestDepositService_VerifyDeposit_ValidMemo(t *testing.T) {
	ctx := context.Background()
	chainClient := new(MockChainClient)
	service := NewDepositService(chainClient, nil)

	chainClient.On("FetchTransaction", ctx, "HASH1").Return(&chain.Transaction{
		Hash:   "HASH1",
		Status: chain.StatusSuccess,
		Transfers: []chain.Transfer{
			{From: "chain1sender", To: "chain1custodial", Amount: money.MustParse("4")},
			{From: "chain1sender", To: "chain1custodial", Amount: money.MustParse("6.123456")},
			{From: "chain1sender", To: "chain1other", Amount: money.MustParse("99")},
		},
		Memo: "42",
	}, nil)

	result, err := service.VerifyDeposit(ctx, "HASH1", "chain1custodial", 42)

	assert.NoError(t, err)
	assert.True(t, result.Valid)
	assert.False(t, result.Unclaimed)
	assert.Equal(t, int64(42), result.UserID)
	// Only the transfers to the custodial address are counted.
	assert.True(t, result.Amount.Equal(money.MustParse("10.123456")))
	assert.Equal(t, "chain1sender", result.Sender)
}

func TestDepositService_VerifyDeposit_BadMemoRoutesToUnclaimed(t *testing.T) {
	ctx := context.Background()
	chainClient := new(MockChainClient)
	service := NewDepositService(chainClient, nil)

	chainClient.On("FetchTransaction", ctx, "HASH1").Return(&chain.Transaction{
		Hash:   "HASH1",
		Status: chain.StatusSuccess,
		Transfers: []chain.Transfer{
			{From: "chain1sender", To: "chain1custodial", Amount: money.MustParse("10")},
		},
		Memo: "not-a-user-id",
	}, nil)

	result, err := service.VerifyDeposit(ctx, "HASH1", "chain1custodial", 42)

	assert.NoError(t, err)
	assert.True(t, result.Valid)
	assert.True(t, result.Unclaimed)
	assert.Equal(t, models.UnclaimedAccountID, result.UserID)
}

func TestDepositService_VerifyDeposit_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("not found", func(t *testing.T) {
		chainClient := new(MockChainClient)
		service := NewDepositService(chainClient, nil)
		chainClient.On("FetchTransaction", ctx, "HASH1").Return(nil, chain.ErrTxNotFound)

		result, err := service.VerifyDeposit(ctx, "HASH1", "chain1custodial", 42)

		assert.NoError(t, err)
		assert.False(t, result.Valid)
	})

	t.Run("failed status", func(t *testing.T) {
		chainClient := new(MockChainClient)
		service := NewDepositService(chainClient, nil)
		chainClient.On("FetchTransaction", ctx, "HASH1").Return(&chain.Transaction{
			Hash:   "HASH1",
			Status: chain.StatusFailed,
		}, nil)

		result, err := service.VerifyDeposit(ctx, "HASH1", "chain1custodial", 42)

		assert.NoError(t, err)
		assert.False(t, result.Valid)
	})

	t.Run("wrong destination", func(t *testing.T) {
		chainClient := new(MockChainClient)
		service := NewDepositService(chainClient, nil)
		chainClient.On("FetchTransaction", ctx, "HASH1").Return(&chain.Transaction{
			Hash:   "HASH1",
			Status: chain.StatusSuccess,
			Transfers: []chain.Transfer{
				{From: "chain1sender", To: "chain1other", Amount: money.MustParse("10")},
			},
			Memo: "42",
		}, nil)

		result, err := service.VerifyDeposit(ctx, "HASH1", "chain1custodial", 42)

		assert.NoError(t, err)
		assert.False(t, result.Valid)
	})
}

func TestDepositService_ProcessDeposit_CreditsUser(t *testing.T) {
	ctx := context.Background()
	chainClient := new(MockChainClient)
	ledger := new(MockLedgerService)
	service := NewDepositService(chainClient, ledger)

	amount := money.MustParse("10.123456")
	chainClient.On("FetchTransaction", ctx, "HASH1").Return(&chain.Transaction{
		Hash:   "HASH1",
		Status: chain.StatusSuccess,
		Transfers: []chain.Transfer{
			{From: "chain1sender", To: "chain1custodial", Amount: amount},
		},
		Memo: "42",
	}, nil)
	ledger.On("ProcessDeposit", ctx, int64(42), amount, "HASH1", "chain1sender", "42", mock.Anything).Return(&models.DepositResult{
		Credited:   amount,
		UserID:     42,
		NewBalance: amount,
		TxHash:     "HASH1",
	}, nil)

	result, err := service.ProcessDeposit(ctx, "HASH1", "chain1custodial", 42)

	assert.NoError(t, err)
	assert.False(t, result.Unclaimed)
	assert.True(t, result.Credited.Equal(amount))
	ledger.AssertExpectations(t)
}

func TestDepositService_ProcessDeposit_InvalidFailsTyped(t *testing.T) {
	ctx := context.Background()
	chainClient := new(MockChainClient)
	ledger := new(MockLedgerService)
	service := NewDepositService(chainClient, ledger)

	chainClient.On("FetchTransaction", ctx, "HASH1").Return(nil, chain.ErrTxNotFound)

	_, err := service.ProcessDeposit(ctx, "HASH1", "chain1custodial", 42)

	var verr *VerificationError
	assert.True(t, errors.As(err, &verr))
	ledger.AssertNotCalled(t, "ProcessDeposit", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
