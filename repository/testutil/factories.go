package testutil

import (
	"time"

	"github.com/rattadan/cacmin-bot-sub002/models"
	"github.com/rattadan/cacmin-bot-sub002/money"
)

// CreateTestLock creates a transaction lock with default values
func CreateTestLock(userID int64, lockType models.LockType) *models.TransactionLock {
	return &models.TransactionLock{
		UserID:   userID,
		LockType: lockType,
		Amount:   money.MustParse("5"),
		Status:   models.LockStatusPending,
		Metadata: map[string]any{
			"test": true,
		},
	}
}

// CreateTestDeposit creates a processed deposit record with default values
func CreateTestDeposit(txHash string, userID int64) *models.ProcessedDeposit {
	return &models.ProcessedDeposit{
		TxHash: txHash,
		UserID: userID,
		Amount: money.MustParse("10.123456"),
		Sender: "chain1sender",
		Memo:   "42",
	}
}

// CreateTestDuel creates a pending duel with default values
func CreateTestDuel(challengerID, opponentID int64, wager money.Amount) *models.Duel {
	return &models.Duel{
		ChallengerID: challengerID,
		OpponentID:   opponentID,
		WagerAmount:  wager,
		Status:       models.DuelStatusPending,
		ChatID:       -1001,
		ExpiresAt:    time.Now().Add(5 * time.Minute),
	}
}

// CreateTestTransaction creates a completed journal row with default values
func CreateTestTransaction(txType models.TransactionType, userID int64, amount money.Amount) *models.Transaction {
	return &models.Transaction{
		Type:         txType,
		FromUserID:   &userID,
		Amount:       amount,
		BalanceAfter: money.Zero,
		Status:       models.TransactionStatusCompleted,
		Description:  "test transaction",
	}
}
