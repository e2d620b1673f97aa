package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/rattadan/cacmin-bot-sub002/money"
)

// ErrTxNotFound indicates the node does not know the transaction hash.
var ErrTxNotFound = errors.New("transaction not found on chain")

// TransactionStatus is the node-reported outcome of a transaction
type TransactionStatus string

const (
	StatusSuccess TransactionStatus = "success"
	StatusFailed  TransactionStatus = "failed"
	StatusPending TransactionStatus = "pending"
)

// Transfer is a single token movement inside a chain transaction
type Transfer struct {
	From   string
	To     string
	Amount money.Amount
}

// Transaction is the validated view of an on-chain transaction. The
// memo is the sole linkage between a transfer and an internal user.
type Transaction struct {
	Hash      string
	Status    TransactionStatus
	Transfers []Transfer
	Memo      string
}

// Client queries the chain RPC endpoint. The endpoint is treated as
// untrusted and slow: every call is rate limited and bounded by the
// HTTP client timeout, and callers must re-validate the results.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a rate-limited chain RPC client
func NewClient(baseURL string, requestsPerSecond float64, burst int) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

type transferResponse struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type transactionResponse struct {
	Hash      string             `json:"hash"`
	Status    string             `json:"status"`
	Memo      string             `json:"memo"`
	Transfers []transferResponse `json:"transfers"`
}

type balanceResponse struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

// FetchTransaction retrieves a transaction by hash.
func (c *Client) FetchTransaction(ctx context.Context, txHash string) (*Transaction, error) {
	var resp transactionResponse
	if err := c.get(ctx, "/txs/"+url.PathEscape(txHash), &resp); err != nil {
		return nil, err
	}

	tx := &Transaction{
		Hash:   resp.Hash,
		Status: parseStatus(resp.Status),
		Memo:   resp.Memo,
	}
	for _, t := range resp.Transfers {
		amount, err := parseChainAmount(t.Amount)
		if err != nil {
			return nil, fmt.Errorf("failed to parse transfer amount %q in tx %s: %w", t.Amount, txHash, err)
		}
		tx.Transfers = append(tx.Transfers, Transfer{
			From:   t.From,
			To:     t.To,
			Amount: amount,
		})
	}

	return tx, nil
}

// GetAddressBalance retrieves the current balance of an address.
func (c *Client) GetAddressBalance(ctx context.Context, address string) (money.Amount, error) {
	var resp balanceResponse
	if err := c.get(ctx, "/balances/"+url.PathEscape(address), &resp); err != nil {
		return money.Zero, err
	}

	balance, err := parseChainAmount(resp.Balance)
	if err != nil {
		return money.Zero, fmt.Errorf("failed to parse balance %q for address %s: %w", resp.Balance, address, err)
	}
	return balance, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait aborted: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build chain RPC request: %w", err)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("chain RPC request failed: %w", err)
	}
	defer resp.Body.Close()

	log.WithFields(log.Fields{
		"path":     path,
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	}).Debug("Chain RPC call completed")

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrTxNotFound
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("chain RPC returned status %d for %s", resp.StatusCode, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode chain RPC response: %w", err)
	}
	return nil
}

func parseStatus(s string) TransactionStatus {
	switch TransactionStatus(s) {
	case StatusSuccess, StatusFailed, StatusPending:
		return TransactionStatus(s)
	default:
		// Unknown node statuses are never treated as success.
		return StatusFailed
	}
}

// parseChainAmount accepts zero, unlike user input parsing.
func parseChainAmount(s string) (money.Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return money.Zero, fmt.Errorf("%w: %q", money.ErrPrecision, s)
	}
	return money.FromDecimal(d)
}
