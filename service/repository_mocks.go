package service

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/rattadan/cacmin-bot-sub002/chain"
	"github.com/rattadan/cacmin-bot-sub002/events"
	"github.com/rattadan/cacmin-bot-sub002/models"
	"github.com/rattadan/cacmin-bot-sub002/money"
)

// MockBalanceRepository is a mock implementation of BalanceRepository
type MockBalanceRepository struct {
	mock.Mock
}

func (m *MockBalanceRepository) GetBalance(ctx context.Context, userID int64) (money.Amount, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(money.Amount), args.Error(1)
}

func (m *MockBalanceRepository) AddBalance(ctx context.Context, userID int64, amount money.Amount) (money.Amount, error) {
	args := m.Called(ctx, userID, amount)
	return args.Get(0).(money.Amount), args.Error(1)
}

func (m *MockBalanceRepository) DeductBalance(ctx context.Context, userID int64, amount money.Amount) (money.Amount, error) {
	args := m.Called(ctx, userID, amount)
	return args.Get(0).(money.Amount), args.Error(1)
}

func (m *MockBalanceRepository) SumAll(ctx context.Context) (money.Amount, error) {
	args := m.Called(ctx)
	return args.Get(0).(money.Amount), args.Error(1)
}

func (m *MockBalanceRepository) GetAll(ctx context.Context) ([]*models.Balance, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Balance), args.Error(1)
}

// MockTransactionRepository is a mock implementation of TransactionRepository
type MockTransactionRepository struct {
	mock.Mock
}

func (m *MockTransactionRepository) Record(ctx context.Context, txn *models.Transaction) error {
	args := m.Called(ctx, txn)
	return args.Error(0)
}

func (m *MockTransactionRepository) GetByUser(ctx context.Context, userID int64, limit int) ([]*models.Transaction, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) FindRecentWithdrawal(ctx context.Context, userID int64, amount money.Amount, since time.Time) (*models.Transaction, error) {
	args := m.Called(ctx, userID, amount, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) GetByTxHash(ctx context.Context, txHash string) (*models.Transaction, error) {
	args := m.Called(ctx, txHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}

// MockProcessedDepositRepository is a mock implementation of ProcessedDepositRepository
type MockProcessedDepositRepository struct {
	mock.Mock
}

func (m *MockProcessedDepositRepository) GetByTxHash(ctx context.Context, txHash string) (*models.ProcessedDeposit, error) {
	args := m.Called(ctx, txHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ProcessedDeposit), args.Error(1)
}

func (m *MockProcessedDepositRepository) TryMarkProcessed(ctx context.Context, dep *models.ProcessedDeposit) (bool, error) {
	args := m.Called(ctx, dep)
	return args.Bool(0), args.Error(1)
}

// MockLockRepository is a mock implementation of LockRepository
type MockLockRepository struct {
	mock.Mock
}

func (m *MockLockRepository) TryInsert(ctx context.Context, lock *models.TransactionLock) (bool, error) {
	args := m.Called(ctx, lock)
	return args.Bool(0), args.Error(1)
}

func (m *MockLockRepository) Get(ctx context.Context, userID int64) (*models.TransactionLock, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TransactionLock), args.Error(1)
}

func (m *MockLockRepository) Delete(ctx context.Context, userID int64) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockLockRepository) DeleteIfLockedAt(ctx context.Context, userID int64, lockedAt time.Time) (bool, error) {
	args := m.Called(ctx, userID, lockedAt)
	return args.Bool(0), args.Error(1)
}

func (m *MockLockRepository) AttachTxHash(ctx context.Context, userID int64, txHash string) error {
	args := m.Called(ctx, userID, txHash)
	return args.Error(0)
}

func (m *MockLockRepository) UpdateStatus(ctx context.Context, userID int64, from, to models.LockStatus) error {
	args := m.Called(ctx, userID, from, to)
	return args.Error(0)
}

func (m *MockLockRepository) GetExpired(ctx context.Context, withdrawalTimeout, depositTimeout, transferTimeout time.Duration) ([]*models.TransactionLock, error) {
	args := m.Called(ctx, withdrawalTimeout, depositTimeout, transferTimeout)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.TransactionLock), args.Error(1)
}

// MockDuelRepository is a mock implementation of DuelRepository
type MockDuelRepository struct {
	mock.Mock
}

func (m *MockDuelRepository) Create(ctx context.Context, duel *models.Duel) error {
	args := m.Called(ctx, duel)
	return args.Error(0)
}

func (m *MockDuelRepository) GetByID(ctx context.Context, id int64) (*models.Duel, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Duel), args.Error(1)
}

func (m *MockDuelRepository) GetPendingByChallenger(ctx context.Context, userID int64) (*models.Duel, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Duel), args.Error(1)
}

func (m *MockDuelRepository) GetPendingByOpponent(ctx context.Context, userID int64) (*models.Duel, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Duel), args.Error(1)
}

func (m *MockDuelRepository) Update(ctx context.Context, duel *models.Duel) error {
	args := m.Called(ctx, duel)
	return args.Error(0)
}

func (m *MockDuelRepository) ExpirePending(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// MockAuditRepository is a mock implementation of AuditRepository
type MockAuditRepository struct {
	mock.Mock
}

func (m *MockAuditRepository) Record(ctx context.Context, entry *models.AuditEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

// MockChainClient is a mock implementation of ChainClient
type MockChainClient struct {
	mock.Mock
}

func (m *MockChainClient) FetchTransaction(ctx context.Context, txHash string) (*chain.Transaction, error) {
	args := m.Called(ctx, txHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*chain.Transaction), args.Error(1)
}

func (m *MockChainClient) GetAddressBalance(ctx context.Context, address string) (money.Amount, error) {
	args := m.Called(ctx, address)
	return args.Get(0).(money.Amount), args.Error(1)
}

// MockEventPublisher is a mock implementation of EventPublisher for testing
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(event events.Event) {
	m.Called(event)
}

// MockUnitOfWork is a mock implementation of UnitOfWork. The getters
// return the repositories set via SetRepositories rather than going
// through expectations.
type MockUnitOfWork struct {
	mock.Mock

	balanceRepo BalanceRepository
	txnRepo     TransactionRepository
	depositRepo ProcessedDepositRepository
	lockRepo    LockRepository
	duelRepo    DuelRepository
	auditRepo   AuditRepository
	eventBus    EventPublisher
}

// SetRepositories wires the mock repositories into the unit of work
func (m *MockUnitOfWork) SetRepositories(
	balanceRepo BalanceRepository,
	txnRepo TransactionRepository,
	depositRepo ProcessedDepositRepository,
	lockRepo LockRepository,
	duelRepo DuelRepository,
	auditRepo AuditRepository,
	eventBus EventPublisher,
) {
	m.balanceRepo = balanceRepo
	m.txnRepo = txnRepo
	m.depositRepo = depositRepo
	m.lockRepo = lockRepo
	m.duelRepo = duelRepo
	m.auditRepo = auditRepo
	m.eventBus = eventBus
}

func (m *MockUnitOfWork) Begin(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockUnitOfWork) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) BalanceRepository() BalanceRepository { return m.balanceRepo }

func (m *MockUnitOfWork) TransactionRepository() TransactionRepository { return m.txnRepo }

func (m *MockUnitOfWork) ProcessedDepositRepository() ProcessedDepositRepository {
	return m.depositRepo
}

func (m *MockUnitOfWork) LockRepository() LockRepository { return m.lockRepo }

func (m *MockUnitOfWork) DuelRepository() DuelRepository { return m.duelRepo }

func (m *MockUnitOfWork) AuditRepository() AuditRepository { return m.auditRepo }

func (m *MockUnitOfWork) EventBus() EventPublisher { return m.eventBus }

// MockUnitOfWorkFactory is a mock implementation of UnitOfWorkFactory
type MockUnitOfWorkFactory struct {
	mock.Mock
}

func (m *MockUnitOfWorkFactory) Create() UnitOfWork {
	return m.Called().Get(0).(UnitOfWork)
}
