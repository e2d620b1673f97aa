package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/rattadan/cacmin-bot-sub002/models"
	"github.com/rattadan/cacmin-bot-sub002/money"
)

// MockLockService is a mock implementation of LockService
type MockLockService struct {
	mock.Mock
}

func (m *MockLockService) Acquire(ctx context.Context, userID int64, lockType models.LockType, amount money.Amount, metadata map[string]any) (*models.TransactionLock, error) {
	args := m.Called(ctx, userID, lockType, amount, metadata)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TransactionLock), args.Error(1)
}

func (m *MockLockService) AcquirePair(ctx context.Context, userA, userB int64, amount money.Amount) ([]*models.TransactionLock, error) {
	args := m.Called(ctx, userA, userB, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.TransactionLock), args.Error(1)
}

func (m *MockLockService) AttachTxHash(ctx context.Context, userID int64, txHash string) error {
	args := m.Called(ctx, userID, txHash)
	return args.Error(0)
}

func (m *MockLockService) VerifyWithdrawalCompletion(ctx context.Context, userID int64, txHash string, expectedAmount money.Amount) (*models.WithdrawalVerification, error) {
	args := m.Called(ctx, userID, txHash, expectedAmount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WithdrawalVerification), args.Error(1)
}

func (m *MockLockService) Release(ctx context.Context, userID int64, txHash *string, force bool) error {
	args := m.Called(ctx, userID, txHash, force)
	return args.Error(0)
}

func (m *MockLockService) ForceRelease(ctx context.Context, userID int64, reason, actor string) error {
	args := m.Called(ctx, userID, reason, actor)
	return args.Error(0)
}

func (m *MockLockService) ResolveInconsistency(ctx context.Context, userID int64, actor, note string) error {
	args := m.Called(ctx, userID, actor, note)
	return args.Error(0)
}

func (m *MockLockService) SweepExpired(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type duelMocks struct {
	factory     *MockUnitOfWorkFactory
	uow         *MockUnitOfWork
	balanceRepo *MockBalanceRepository
	txnRepo     *MockTransactionRepository
	duelRepo    *MockDuelRepository
	eventBus    *MockEventPublisher
	locks       *MockLockService
}

func newDuelMocks() *duelMocks {
	m := &duelMocks{
		factory:     new(MockUnitOfWorkFactory),
		uow:         new(MockUnitOfWork),
		balanceRepo: new(MockBalanceRepository),
		txnRepo:     new(MockTransactionRepository),
		duelRepo:    new(MockDuelRepository),
		eventBus:    new(MockEventPublisher),
		locks:       new(MockLockService),
	}
	m.uow.SetRepositories(m.balanceRepo, m.txnRepo, nil, nil, m.duelRepo, nil, m.eventBus)
	m.factory.On("Create").Return(m.uow)
	m.uow.On("Begin", mock.Anything).Return(nil)
	m.uow.On("Commit").Return(nil)
	m.uow.On("Rollback").Return(nil)
	return m
}

func (m *duelMocks) service() DuelService {
	return NewDuelService(m.factory, nil, m.locks, DefaultDuelConfig())
}

func pendingDuel(id, challengerID, opponentID int64, wager money.Amount) *models.Duel {
	return &models.Duel{
		ID:           id,
		ChallengerID: challengerID,
		OpponentID:   opponentID,
		WagerAmount:  wager,
		Status:       models.DuelStatusPending,
		ChatID:       -100,
		CreatedAt:    time.Now(),
		ExpiresAt:    time.Now().Add(5 * time.Minute),
	}
}

// fixedRolls returns a RollFunc that replays the given values in order.
func fixedRolls(values ...uint64) RollFunc {
	i := 0
	return func() uint64 {
		v := values[i]
		i++
		return v
	}
}

func TestDuelService_Create(t *testing.T) {
	ctx := context.Background()
	m := newDuelMocks()
	wager := money.MustParse("10")

	m.duelRepo.On("GetPendingByChallenger", ctx, int64(1)).Return(nil, nil)
	m.duelRepo.On("GetPendingByOpponent", ctx, int64(2)).Return(nil, nil)
	m.balanceRepo.On("GetBalance", ctx, int64(1)).Return(money.MustParse("50"), nil)
	m.duelRepo.On("Create", ctx, mock.MatchedBy(func(d *models.Duel) bool {
		return d.ChallengerID == 1 && d.OpponentID == 2 && d.WagerAmount.Equal(wager) && d.Status == models.DuelStatusPending
	})).Return(nil)

	duel, err := m.service().Create(ctx, 1, 2, wager, -100, nil, nil)

	assert.NoError(t, err)
	assert.Equal(t, models.DuelStatusPending, duel.Status)
	m.duelRepo.AssertExpectations(t)
}

func TestDuelService_Create_Rejections(t *testing.T) {
	ctx := context.Background()
	wager := money.MustParse("10")

	t.Run("self duel", func(t *testing.T) {
		m := newDuelMocks()
		_, err := m.service().Create(ctx, 1, 1, wager, -100, nil, nil)
		assert.Error(t, err)
	})

	t.Run("wager out of bounds", func(t *testing.T) {
		m := newDuelMocks()
		_, err := m.service().Create(ctx, 1, 2, money.MustParse("0.5"), -100, nil, nil)
		assert.Error(t, err)
		_, err = m.service().Create(ctx, 1, 2, money.MustParse("10001"), -100, nil, nil)
		assert.Error(t, err)
	})

	t.Run("pending outgoing duel", func(t *testing.T) {
		m := newDuelMocks()
		m.duelRepo.On("GetPendingByChallenger", ctx, int64(1)).Return(pendingDuel(5, 1, 3, wager), nil)
		_, err := m.service().Create(ctx, 1, 2, wager, -100, nil, nil)
		assert.Error(t, err)
	})

	t.Run("insufficient challenger balance", func(t *testing.T) {
		m := newDuelMocks()
		m.duelRepo.On("GetPendingByChallenger", ctx, int64(1)).Return(nil, nil)
		m.duelRepo.On("GetPendingByOpponent", ctx, int64(2)).Return(nil, nil)
		m.balanceRepo.On("GetBalance", ctx, int64(1)).Return(money.MustParse("5"), nil)

		_, err := m.service().Create(ctx, 1, 2, wager, -100, nil, nil)

		var insufficient *InsufficientBalanceError
		assert.True(t, errors.As(err, &insufficient))
		m.duelRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})
}

func TestDuelService_Cancel_OnlyChallenger(t *testing.T) {
	ctx := context.Background()
	m := newDuelMocks()

	m.duelRepo.On("GetByID", ctx, int64(5)).Return(pendingDuel(5, 1, 2, money.MustParse("10")), nil)

	// The opponent may not cancel.
	err := m.service().Cancel(ctx, 5, 2)
	assert.Error(t, err)
	m.duelRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestDuelService_AcceptAndExecute_ChallengerWins(t *testing.T) {
	ctx := context.Background()
	m := newDuelMocks()
	wager := money.MustParse("10")
	duel := pendingDuel(5, 1, 2, wager)

	m.duelRepo.On("GetByID", ctx, int64(5)).Return(duel, nil)
	m.balanceRepo.On("GetBalance", ctx, int64(2)).Return(money.MustParse("20"), nil)
	m.balanceRepo.On("GetBalance", ctx, int64(1)).Return(money.MustParse("30"), nil)
	m.locks.On("AcquirePair", ctx, int64(1), int64(2), wager).Return([]*models.TransactionLock{
		{UserID: 1, LockType: models.LockTypeTransfer},
		{UserID: 2, LockType: models.LockTypeTransfer},
	}, nil)
	m.locks.On("Release", ctx, int64(1), (*string)(nil), true).Return(nil)
	m.locks.On("Release", ctx, int64(2), (*string)(nil), true).Return(nil)
	// Wager moves loser -> winner.
	m.balanceRepo.On("DeductBalance", ctx, int64(2), wager).Return(money.MustParse("10"), nil)
	m.balanceRepo.On("AddBalance", ctx, int64(1), wager).Return(money.MustParse("40"), nil)
	m.txnRepo.On("Record", ctx, mock.MatchedBy(func(txn *models.Transaction) bool {
		return txn.Type == models.TransactionTypeGambling && *txn.FromUserID == 2 && *txn.ToUserID == 1
	})).Return(nil)
	m.duelRepo.On("Update", ctx, mock.MatchedBy(func(d *models.Duel) bool {
		return d.Status == models.DuelStatusCompleted && *d.WinnerID == 1 && *d.LoserID == 2
	})).Return(nil)
	m.eventBus.On("Publish", mock.Anything).Return()

	result, err := m.service().AcceptAndExecute(ctx, 5, 2, fixedRolls(500000000, 300000000))

	assert.NoError(t, err)
	assert.Equal(t, int64(1), result.WinnerID)
	assert.Equal(t, int64(2), result.LoserID)
	assert.True(t, result.AmountWon.Equal(wager))

	// Both locks come off even on the happy path.
	m.locks.AssertCalled(t, "Release", ctx, int64(1), (*string)(nil), true)
	m.locks.AssertCalled(t, "Release", ctx, int64(2), (*string)(nil), true)
	m.duelRepo.AssertExpectations(t)
}

func TestDuelService_AcceptAndExecute_TieAwardsChallenger(t *testing.T) {
	ctx := context.Background()
	m := newDuelMocks()
	wager := money.MustParse("10")
	duel := pendingDuel(5, 1, 2, wager)

	m.duelRepo.On("GetByID", ctx, int64(5)).Return(duel, nil)
	m.balanceRepo.On("GetBalance", ctx, mock.Anything).Return(money.MustParse("20"), nil)
	m.locks.On("AcquirePair", ctx, int64(1), int64(2), wager).Return([]*models.TransactionLock{
		{UserID: 1}, {UserID: 2},
	}, nil)
	m.locks.On("Release", ctx, mock.Anything, (*string)(nil), true).Return(nil)
	m.balanceRepo.On("DeductBalance", ctx, int64(2), wager).Return(money.MustParse("10"), nil)
	m.balanceRepo.On("AddBalance", ctx, int64(1), wager).Return(money.MustParse("30"), nil)
	m.txnRepo.On("Record", ctx, mock.Anything).Return(nil)
	m.duelRepo.On("Update", ctx, mock.Anything).Return(nil)
	m.eventBus.On("Publish", mock.Anything).Return()

	result, err := m.service().AcceptAndExecute(ctx, 5, 2, fixedRolls(777, 777))

	assert.NoError(t, err)
	assert.Equal(t, int64(1), result.WinnerID)
}

func TestDuelService_AcceptAndExecute_ChallengerShortfallCancels(t *testing.T) {
	ctx := context.Background()
	m := newDuelMocks()
	wager := money.MustParse("10")
	duel := pendingDuel(5, 1, 2, wager)

	m.duelRepo.On("GetByID", ctx, int64(5)).Return(duel, nil)
	m.balanceRepo.On("GetBalance", ctx, int64(2)).Return(money.MustParse("20"), nil)
	// The challenger spent their balance since creating the duel.
	m.balanceRepo.On("GetBalance", ctx, int64(1)).Return(money.MustParse("2"), nil)
	m.duelRepo.On("Update", ctx, mock.MatchedBy(func(d *models.Duel) bool {
		return d.Status == models.DuelStatusCancelled
	})).Return(nil)

	_, err := m.service().AcceptAndExecute(ctx, 5, 2, fixedRolls(1, 2))

	var insufficient *InsufficientBalanceError
	assert.True(t, errors.As(err, &insufficient))
	assert.Equal(t, int64(1), insufficient.UserID)
	m.locks.AssertNotCalled(t, "AcquirePair", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	m.duelRepo.AssertExpectations(t)
}

func TestDuelService_AcceptAndExecute_LocksReleasedOnSettleFailure(t *testing.T) {
	ctx := context.Background()
	m := newDuelMocks()
	wager := money.MustParse("10")
	duel := pendingDuel(5, 1, 2, wager)

	m.duelRepo.On("GetByID", ctx, int64(5)).Return(duel, nil)
	m.balanceRepo.On("GetBalance", ctx, mock.Anything).Return(money.MustParse("20"), nil)
	m.locks.On("AcquirePair", ctx, int64(1), int64(2), wager).Return([]*models.TransactionLock{
		{UserID: 1}, {UserID: 2},
	}, nil)
	m.locks.On("Release", ctx, mock.Anything, (*string)(nil), true).Return(nil)
	m.balanceRepo.On("DeductBalance", ctx, int64(2), wager).Return(money.Zero, errors.New("connection reset"))

	_, err := m.service().AcceptAndExecute(ctx, 5, 2, fixedRolls(2, 1))

	assert.Error(t, err)
	m.locks.AssertCalled(t, "Release", ctx, int64(1), (*string)(nil), true)
	m.locks.AssertCalled(t, "Release", ctx, int64(2), (*string)(nil), true)
}

func TestDuelService_CleanExpired(t *testing.T) {
	ctx := context.Background()
	m := newDuelMocks()

	m.duelRepo.On("ExpirePending", ctx).Return(int64(3), nil)

	count, err := m.service().CleanExpired(ctx)

	assert.NoError(t, err)
	assert.Equal(t, int64(3), count)
}
