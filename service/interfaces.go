package service

import (
	"context"
	"time"

	"github.com/rattadan/cacmin-bot-sub002/chain"
	"github.com/rattadan/cacmin-bot-sub002/events"
	"github.com/rattadan/cacmin-bot-sub002/models"
	"github.com/rattadan/cacmin-bot-sub002/money"
)

// BalanceRepository defines the interface for balance data access
type BalanceRepository interface {
	// GetBalance returns a user's balance, zero if no row exists
	GetBalance(ctx context.Context, userID int64) (money.Amount, error)

	// AddBalance credits a balance atomically, creating the row on first
	// credit, and returns the resulting balance
	AddBalance(ctx context.Context, userID int64, amount money.Amount) (money.Amount, error)

	// DeductBalance debits a balance atomically, failing with
	// InsufficientBalanceError if the balance is too low
	DeductBalance(ctx context.Context, userID int64, amount money.Amount) (money.Amount, error)

	// SumAll returns the total of every internal balance
	SumAll(ctx context.Context) (money.Amount, error)

	// GetAll returns all balance rows
	GetAll(ctx context.Context) ([]*models.Balance, error)
}

// TransactionRepository defines the interface for the append-only journal
type TransactionRepository interface {
	// Record appends a journal row
	Record(ctx context.Context, txn *models.Transaction) error

	// GetByUser returns journal rows involving a user, most recent first
	GetByUser(ctx context.Context, userID int64, limit int) ([]*models.Transaction, error)

	// FindRecentWithdrawal looks for a completed withdrawal row matching
	// the amount within the time window
	FindRecentWithdrawal(ctx context.Context, userID int64, amount money.Amount, since time.Time) (*models.Transaction, error)

	// GetByTxHash returns the journal row carrying the given chain hash
	GetByTxHash(ctx context.Context, txHash string) (*models.Transaction, error)
}

// ProcessedDepositRepository defines the interface for deposit idempotency records
type ProcessedDepositRepository interface {
	// GetByTxHash retrieves a processed deposit record, nil if none
	GetByTxHash(ctx context.Context, txHash string) (*models.ProcessedDeposit, error)

	// TryMarkProcessed claims a tx hash atomically; true exactly once per hash
	TryMarkProcessed(ctx context.Context, dep *models.ProcessedDeposit) (bool, error)
}

// LockRepository defines the interface for transaction lock data access
type LockRepository interface {
	// TryInsert attempts the atomic test-and-set; false on conflict
	TryInsert(ctx context.Context, lock *models.TransactionLock) (bool, error)

	// Get retrieves the lock for a user, nil if none
	Get(ctx context.Context, userID int64) (*models.TransactionLock, error)

	// Delete removes a user's lock; false if no row existed
	Delete(ctx context.Context, userID int64) (bool, error)

	// DeleteIfLockedAt removes the lock only if it is still the observed row
	DeleteIfLockedAt(ctx context.Context, userID int64, lockedAt time.Time) (bool, error)

	// AttachTxHash records the broadcast hash and moves the lock to processing
	AttachTxHash(ctx context.Context, userID int64, txHash string) error

	// UpdateStatus transitions the lock status, enforcing the state machine
	UpdateStatus(ctx context.Context, userID int64, from, to models.LockStatus) error

	// GetExpired returns every lock past its type-specific timeout
	GetExpired(ctx context.Context, withdrawalTimeout, depositTimeout, transferTimeout time.Duration) ([]*models.TransactionLock, error)
}

// DuelRepository defines the interface for duel data access
type DuelRepository interface {
	// Create inserts a new pending duel
	Create(ctx context.Context, duel *models.Duel) error

	// GetByID retrieves a duel, nil if not found
	GetByID(ctx context.Context, id int64) (*models.Duel, error)

	// GetPendingByChallenger returns the user's pending outgoing duel, nil if none
	GetPendingByChallenger(ctx context.Context, userID int64) (*models.Duel, error)

	// GetPendingByOpponent returns the user's pending incoming duel, nil if none
	GetPendingByOpponent(ctx context.Context, userID int64) (*models.Duel, error)

	// Update persists the duel's status and resolution fields
	Update(ctx context.Context, duel *models.Duel) error

	// ExpirePending marks pending duels past their expiry as expired
	ExpirePending(ctx context.Context) (int64, error)
}

// AuditRepository defines the interface for the administrative audit log
type AuditRepository interface {
	// Record persists an audit entry
	Record(ctx context.Context, entry *models.AuditEntry) error
}

// ChainClient defines the read-only view of the blockchain RPC. The
// endpoint is untrusted; every result must be re-validated.
type ChainClient interface {
	// FetchTransaction retrieves a transaction by hash
	FetchTransaction(ctx context.Context, txHash string) (*chain.Transaction, error)

	// GetAddressBalance retrieves the current balance of an address
	GetAddressBalance(ctx context.Context, address string) (money.Amount, error)
}

// LedgerService defines the interface for balance and journal operations
type LedgerService interface {
	// GetBalance returns a user's balance, zero if never credited
	GetBalance(ctx context.Context, userID int64) (money.Amount, error)

	// Credit atomically increments a balance and appends a journal row
	Credit(ctx context.Context, userID int64, amount money.Amount, txType models.TransactionType, description string, txHash *string) (*models.LedgerResult, error)

	// Debit atomically decrements a balance and appends a journal row
	Debit(ctx context.Context, userID int64, amount money.Amount, txType models.TransactionType, description string) (*models.LedgerResult, error)

	// Transfer moves an amount between two users as one atomic unit
	Transfer(ctx context.Context, fromUserID, toUserID int64, amount money.Amount, description string) (*models.TransferResult, error)

	// ProcessDeposit credits a verified on-chain deposit exactly once per hash
	ProcessDeposit(ctx context.Context, userID int64, amount money.Amount, txHash, sender, memo, description string) (*models.DepositResult, error)

	// GetUserTransactions returns a user's journal rows, most recent first
	GetUserTransactions(ctx context.Context, userID int64, limit int) ([]*models.Transaction, error)

	// Reconcile compares the summed internal ledger against the on-chain
	// custodial balance; mismatches are reported, never corrected
	Reconcile(ctx context.Context) (*models.ReconcileResult, error)

	// ClaimUnclaimedDeposit reassigns a memo-less deposit from the
	// unclaimed pool to a user via a new transfer journal entry; audited
	ClaimUnclaimedDeposit(ctx context.Context, txHash string, targetUserID int64, actor string) (*models.TransferResult, error)
}

// LockService defines the interface for per-user transaction locks
type LockService interface {
	// Acquire takes the user's lock, failing fast with LockConflictError
	Acquire(ctx context.Context, userID int64, lockType models.LockType, amount money.Amount, metadata map[string]any) (*models.TransactionLock, error)

	// AcquirePair locks both participants or neither
	AcquirePair(ctx context.Context, userA, userB int64, amount money.Amount) ([]*models.TransactionLock, error)

	// AttachTxHash records the broadcast hash for a withdrawal lock
	AttachTxHash(ctx context.Context, userID int64, txHash string) error

	// VerifyWithdrawalCompletion runs the three-way check: chain success,
	// amount match, and a matching journal row
	VerifyWithdrawalCompletion(ctx context.Context, userID int64, txHash string, expectedAmount money.Amount) (*models.WithdrawalVerification, error)

	// Release removes the lock; withdrawal locks require verification,
	// timeout, or force
	Release(ctx context.Context, userID int64, txHash *string, force bool) error

	// ForceRelease is the audited administrative escape hatch
	ForceRelease(ctx context.Context, userID int64, reason, actor string) error

	// ResolveInconsistency clears a flagged withdrawal lock; audited
	ResolveInconsistency(ctx context.Context, userID int64, actor, note string) error

	// SweepExpired removes expired locks, flagging unverified withdrawals
	// for manual review first; returns the number removed
	SweepExpired(ctx context.Context) (int, error)
}

// DepositService defines the interface for on-chain deposit verification
type DepositService interface {
	// VerifyDeposit validates a tx hash against the custodial address and
	// the expected beneficiary
	VerifyDeposit(ctx context.Context, txHash, expectedAddress string, expectedUserID int64) (*models.DepositVerification, error)

	// ProcessDeposit verifies and credits a deposit; invalid memos route
	// the credit to the unclaimed pool instead of rejecting it
	ProcessDeposit(ctx context.Context, txHash, expectedAddress string, expectedUserID int64) (*models.DepositResult, error)
}

// RollFunc generates one verifiable duel roll
type RollFunc func() uint64

// DuelService defines the interface for two-party wagers
type DuelService interface {
	// Create proposes a duel from challenger to opponent
	Create(ctx context.Context, challengerID, opponentID int64, wager money.Amount, chatID int64, loserConsequence *string, consequenceDurationSec *int64) (*models.Duel, error)

	// Cancel withdraws a pending duel; challenger only
	Cancel(ctx context.Context, duelID, requesterID int64) error

	// Reject declines a pending duel; opponent only
	Reject(ctx context.Context, duelID, requesterID int64) error

	// AcceptAndExecute re-validates both balances, locks both
	// participants, rolls, and settles; ties go to the challenger
	AcceptAndExecute(ctx context.Context, duelID, opponentID int64, roll RollFunc) (*models.DuelResult, error)

	// CleanExpired marks pending duels past their window as expired
	CleanExpired(ctx context.Context) (int64, error)
}

// EventPublisher defines the interface for publishing events
type EventPublisher interface {
	Publish(event events.Event)
}

// UnitOfWork defines the interface for transactional repository operations
type UnitOfWork interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) error

	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Repository getters
	BalanceRepository() BalanceRepository
	TransactionRepository() TransactionRepository
	ProcessedDepositRepository() ProcessedDepositRepository
	LockRepository() LockRepository
	DuelRepository() DuelRepository
	AuditRepository() AuditRepository
	EventBus() EventPublisher
}

// UnitOfWorkFactory defines the interface for creating UnitOfWork instances
type UnitOfWorkFactory interface {
	// Create creates a new UnitOfWork instance
	Create() UnitOfWork
}
