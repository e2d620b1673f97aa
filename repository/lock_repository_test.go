package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rattadan/cacmin-bot-sub002/models"
	"github.com/rattadan/cacmin-bot-sub002/money"
	"github.com/rattadan/cacmin-bot-sub002/repository/testutil"
)

func TestLockRepository_TryInsert(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	repo := NewLockRepository(testDB.DB)
	ctx := context.Background()

	t.Run("first insert wins", func(t *testing.T) {
		lock := testutil.CreateTestLock(1, models.LockTypeWithdrawal)
		acquired, err := repo.TryInsert(ctx, lock)
		require.NoError(t, err)
		assert.True(t, acquired)
		assert.False(t, lock.LockedAt.IsZero())
	})

	t.Run("second insert for same user loses", func(t *testing.T) {
		first := testutil.CreateTestLock(2, models.LockTypeWithdrawal)
		acquired, err := repo.TryInsert(ctx, first)
		require.NoError(t, err)
		require.True(t, acquired)

		second := testutil.CreateTestLock(2, models.LockTypeTransfer)
		acquired, err = repo.TryInsert(ctx, second)
		require.NoError(t, err)
		assert.False(t, acquired)

		// The original lock is untouched.
		existing, err := repo.Get(ctx, 2)
		require.NoError(t, err)
		require.NotNil(t, existing)
		assert.Equal(t, models.LockTypeWithdrawal, existing.LockType)
	})

	t.Run("different users do not conflict", func(t *testing.T) {
		a := testutil.CreateTestLock(3, models.LockTypeTransfer)
		b := testutil.CreateTestLock(4, models.LockTypeTransfer)

		acquired, err := repo.TryInsert(ctx, a)
		require.NoError(t, err)
		assert.True(t, acquired)
		acquired, err = repo.TryInsert(ctx, b)
		require.NoError(t, err)
		assert.True(t, acquired)
	})
}

func TestLockRepository_DeleteIfLockedAt(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	repo := NewLockRepository(testDB.DB)
	ctx := context.Background()

	lock := testutil.CreateTestLock(1, models.LockTypeTransfer)
	acquired, err := repo.TryInsert(ctx, lock)
	require.NoError(t, err)
	require.True(t, acquired)

	t.Run("stale timestamp removes nothing", func(t *testing.T) {
		removed, err := repo.DeleteIfLockedAt(ctx, 1, lock.LockedAt.Add(-time.Second))
		require.NoError(t, err)
		assert.False(t, removed)
	})

	t.Run("matching timestamp removes the row", func(t *testing.T) {
		removed, err := repo.DeleteIfLockedAt(ctx, 1, lock.LockedAt)
		require.NoError(t, err)
		assert.True(t, removed)

		existing, err := repo.Get(ctx, 1)
		require.NoError(t, err)
		assert.Nil(t, existing)
	})
}

func TestLockRepository_StatusTransitions(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	repo := NewLockRepository(testDB.DB)
	ctx := context.Background()

	lock := testutil.CreateTestLock(1, models.LockTypeWithdrawal)
	acquired, err := repo.TryInsert(ctx, lock)
	require.NoError(t, err)
	require.True(t, acquired)

	t.Run("attach tx hash moves pending to processing", func(t *testing.T) {
		err := repo.AttachTxHash(ctx, 1, "HASH1")
		require.NoError(t, err)

		updated, err := repo.Get(ctx, 1)
		require.NoError(t, err)
		require.NotNil(t, updated)
		assert.Equal(t, models.LockStatusProcessing, updated.Status)
		require.NotNil(t, updated.TxHash)
		assert.Equal(t, "HASH1", *updated.TxHash)
	})

	t.Run("attach again fails without a pending lock", func(t *testing.T) {
		err := repo.AttachTxHash(ctx, 1, "HASH2")
		assert.Error(t, err)
	})

	t.Run("legal transition applies", func(t *testing.T) {
		err := repo.UpdateStatus(ctx, 1, models.LockStatusProcessing, models.LockStatusVerifying)
		require.NoError(t, err)
	})

	t.Run("illegal transition is rejected before touching the row", func(t *testing.T) {
		err := repo.UpdateStatus(ctx, 1, models.LockStatusVerifying, models.LockStatusPending)
		assert.Error(t, err)
	})
}

func TestLockRepository_GetExpired(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	repo := NewLockRepository(testDB.DB)
	ctx := context.Background()

	fresh := testutil.CreateTestLock(1, models.LockTypeWithdrawal)
	acquired, err := repo.TryInsert(ctx, fresh)
	require.NoError(t, err)
	require.True(t, acquired)

	stale := &models.TransactionLock{
		UserID:   2,
		LockType: models.LockTypeTransfer,
		Amount:   money.MustParse("5"),
		Status:   models.LockStatusPending,
	}
	acquired, err = repo.TryInsert(ctx, stale)
	require.NoError(t, err)
	require.True(t, acquired)

	// Age the second lock past the transfer timeout.
	_, err = testDB.DB.Pool.Exec(ctx,
		`UPDATE transaction_locks SET locked_at = NOW() - INTERVAL '1 minute' WHERE user_id = 2`)
	require.NoError(t, err)

	expired, err := repo.GetExpired(ctx, 120*time.Second, 300*time.Second, 30*time.Second)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, int64(2), expired[0].UserID)
}
