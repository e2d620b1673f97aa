package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/rattadan/cacmin-bot-sub002/chain"
	"github.com/rattadan/cacmin-bot-sub002/models"
	"github.com/rattadan/cacmin-bot-sub002/money"
)

type depositService struct {
	chainClient ChainClient
	ledger      LedgerService
}

// NewDepositService creates a new deposit verification service
func NewDepositService(chainClient ChainClient, ledger LedgerService) DepositService {
	return &depositService{
		chainClient: chainClient,
		ledger:      ledger,
	}
}

func (s *depositService) VerifyDeposit(ctx context.Context, txHash, expectedAddress string, expectedUserID int64) (*models.DepositVerification, error) {
	result := &models.DepositVerification{UserID: expectedUserID}

	tx, err := s.chainClient.FetchTransaction(ctx, txHash)
	if errors.Is(err, chain.ErrTxNotFound) {
		result.Reason = "transaction not found on chain"
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transaction %s: %w", txHash, err)
	}

	if tx.Status != chain.StatusSuccess {
		result.Reason = fmt.Sprintf("chain status is %s", tx.Status)
		return result, nil
	}

	// Sum every transfer that lands on the custodial address; a single
	// on-chain tx may split the deposit across multiple transfers. The
	// first matching transfer names the sender for the journal.
	received := money.Zero
	for _, transfer := range tx.Transfers {
		if transfer.To == expectedAddress {
			received = received.Add(transfer.Amount)
			if result.Sender == "" {
				result.Sender = transfer.From
			}
		}
	}
	if !received.IsPositive() {
		result.Reason = fmt.Sprintf("no transfer to custodial address %s", expectedAddress)
		return result, nil
	}
	result.Amount = received
	result.Memo = tx.Memo

	// The memo is the sole linkage to an internal user. Anything that is
	// not the exact decimal user ID routes the funds to the unclaimed
	// pool rather than rejecting real money.
	memo := strings.TrimSpace(tx.Memo)
	memoUserID, parseErr := strconv.ParseInt(memo, 10, 64)
	if parseErr != nil || memoUserID != expectedUserID {
		result.Valid = true
		result.Unclaimed = true
		result.UserID = models.UnclaimedAccountID
		result.Reason = fmt.Sprintf("memo %q does not identify user %d", tx.Memo, expectedUserID)
		return result, nil
	}

	result.Valid = true
	result.UserID = expectedUserID
	return result, nil
}

func (s *depositService) ProcessDeposit(ctx context.Context, txHash, expectedAddress string, expectedUserID int64) (*models.DepositResult, error) {
	verification, err := s.VerifyDeposit(ctx, txHash, expectedAddress, expectedUserID)
	if err != nil {
		return nil, err
	}
	if !verification.Valid {
		return nil, &VerificationError{TxHash: txHash, Reason: verification.Reason}
	}

	description := fmt.Sprintf("On-chain deposit %s", txHash)
	if verification.Unclaimed {
		description = fmt.Sprintf("Unclaimed on-chain deposit %s (memo %q)", txHash, verification.Memo)
		log.WithFields(log.Fields{
			"txHash": txHash,
			"memo":   verification.Memo,
			"amount": verification.Amount.String(),
		}).Warn("Deposit memo did not identify a user, crediting unclaimed pool")
	}

	result, err := s.ledger.ProcessDeposit(ctx, verification.UserID, verification.Amount, txHash, verification.Sender, verification.Memo, description)
	if err != nil {
		return nil, err
	}
	result.Unclaimed = verification.Unclaimed
	return result, nil
}
