package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rattadan/cacmin-bot-sub002/models"
	"github.com/rattadan/cacmin-bot-sub002/money"
	"github.com/rattadan/cacmin-bot-sub002/repository/testutil"
	"github.com/rattadan/cacmin-bot-sub002/service"
)

func TestBalanceRepository_AddAndGet(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	repo := NewBalanceRepository(testDB.DB)
	ctx := context.Background()

	t.Run("unknown user has zero balance", func(t *testing.T) {
		balance, err := repo.GetBalance(ctx, 999)
		require.NoError(t, err)
		assert.True(t, balance.IsZero())
	})

	t.Run("first credit creates the row", func(t *testing.T) {
		newBalance, err := repo.AddBalance(ctx, 1, money.MustParse("10.123456"))
		require.NoError(t, err)
		assert.True(t, newBalance.Equal(money.MustParse("10.123456")))

		balance, err := repo.GetBalance(ctx, 1)
		require.NoError(t, err)
		assert.True(t, balance.Equal(money.MustParse("10.123456")))
	})

	t.Run("credits accumulate exactly", func(t *testing.T) {
		_, err := repo.AddBalance(ctx, 2, money.MustParse("0.1"))
		require.NoError(t, err)
		newBalance, err := repo.AddBalance(ctx, 2, money.MustParse("0.2"))
		require.NoError(t, err)
		assert.True(t, newBalance.Equal(money.MustParse("0.3")))
	})

	t.Run("system accounts live in negative id space", func(t *testing.T) {
		newBalance, err := repo.AddBalance(ctx, models.UnclaimedAccountID, money.MustParse("7"))
		require.NoError(t, err)
		assert.True(t, newBalance.Equal(money.MustParse("7")))
	})
}

func TestBalanceRepository_DeductBalance(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	repo := NewBalanceRepository(testDB.DB)
	ctx := context.Background()

	t.Run("deduct within balance", func(t *testing.T) {
		_, err := repo.AddBalance(ctx, 1, money.MustParse("10"))
		require.NoError(t, err)

		newBalance, err := repo.DeductBalance(ctx, 1, money.MustParse("5.5"))
		require.NoError(t, err)
		assert.True(t, newBalance.Equal(money.MustParse("4.5")))
	})

	t.Run("deduct beyond balance fails typed", func(t *testing.T) {
		_, err := repo.AddBalance(ctx, 2, money.MustParse("3"))
		require.NoError(t, err)

		_, err = repo.DeductBalance(ctx, 2, money.MustParse("100"))
		var insufficient *service.InsufficientBalanceError
		require.True(t, errors.As(err, &insufficient))
		assert.Equal(t, int64(2), insufficient.UserID)
		assert.True(t, insufficient.Have.Equal(money.MustParse("3")))

		// Balance untouched after the refused deduction.
		balance, err := repo.GetBalance(ctx, 2)
		require.NoError(t, err)
		assert.True(t, balance.Equal(money.MustParse("3")))
	})

	t.Run("deduct from missing row fails typed", func(t *testing.T) {
		_, err := repo.DeductBalance(ctx, 999, money.MustParse("1"))
		var insufficient *service.InsufficientBalanceError
		require.True(t, errors.As(err, &insufficient))
		assert.True(t, insufficient.Have.IsZero())
	})

	t.Run("deduct to exactly zero", func(t *testing.T) {
		_, err := repo.AddBalance(ctx, 3, money.MustParse("2.5"))
		require.NoError(t, err)

		newBalance, err := repo.DeductBalance(ctx, 3, money.MustParse("2.5"))
		require.NoError(t, err)
		assert.True(t, newBalance.IsZero())
	})
}

func TestBalanceRepository_SumAll(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	repo := NewBalanceRepository(testDB.DB)
	ctx := context.Background()

	total, err := repo.SumAll(ctx)
	require.NoError(t, err)
	assert.True(t, total.IsZero())

	_, err = repo.AddBalance(ctx, 1, money.MustParse("10.5"))
	require.NoError(t, err)
	_, err = repo.AddBalance(ctx, 2, money.MustParse("0.000001"))
	require.NoError(t, err)
	_, err = repo.AddBalance(ctx, models.TreasuryAccountID, money.MustParse("100"))
	require.NoError(t, err)

	total, err = repo.SumAll(ctx)
	require.NoError(t, err)
	assert.True(t, total.Equal(money.MustParse("110.500001")))
}
