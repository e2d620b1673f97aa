package chain

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rattadan/cacmin-bot-sub002/money"
)

func TestClient_FetchTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("success with transfers and memo", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/txs/HASH1", r.URL.Path)
			w.Write([]byte(`{
				"hash": "HASH1",
				"status": "success",
				"memo": "42",
				"transfers": [
					{"from": "chain1sender", "to": "chain1custodial", "amount": "10.123456"}
				]
			}`))
		}))
		defer server.Close()

		client := NewClient(server.URL, 100, 1)
		tx, err := client.FetchTransaction(ctx, "HASH1")

		require.NoError(t, err)
		assert.Equal(t, StatusSuccess, tx.Status)
		assert.Equal(t, "42", tx.Memo)
		require.Len(t, tx.Transfers, 1)
		assert.True(t, tx.Transfers[0].Amount.Equal(money.MustParse("10.123456")))
	})

	t.Run("404 maps to ErrTxNotFound", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		client := NewClient(server.URL, 100, 1)
		_, err := client.FetchTransaction(ctx, "NOPE")

		assert.ErrorIs(t, err, ErrTxNotFound)
	})

	t.Run("unknown status is never success", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"hash": "HASH1", "status": "whatever", "transfers": []}`))
		}))
		defer server.Close()

		client := NewClient(server.URL, 100, 1)
		tx, err := client.FetchTransaction(ctx, "HASH1")

		require.NoError(t, err)
		assert.Equal(t, StatusFailed, tx.Status)
	})

	t.Run("over-precise transfer amount is rejected", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{
				"hash": "HASH1",
				"status": "success",
				"transfers": [{"from": "a", "to": "b", "amount": "0.0000001"}]
			}`))
		}))
		defer server.Close()

		client := NewClient(server.URL, 100, 1)
		_, err := client.FetchTransaction(ctx, "HASH1")

		assert.ErrorIs(t, err, money.ErrPrecision)
	})
}

func TestClient_GetAddressBalance(t *testing.T) {
	ctx := context.Background()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/balances/chain1custodial", r.URL.Path)
		w.Write([]byte(`{"address": "chain1custodial", "balance": "12345.678901"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 100, 1)
	balance, err := client.GetAddressBalance(ctx, "chain1custodial")

	require.NoError(t, err)
	assert.True(t, balance.Equal(money.MustParse("12345.678901")))
}
