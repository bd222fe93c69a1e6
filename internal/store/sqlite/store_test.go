package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/economy-ledger/internal/economy"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

// credit posts a single-entry deposit directly through the Tx surface.
func credit(t *testing.T, store *Store, owner, amount int64) *economy.Transaction {
	t.Helper()
	var txn *economy.Transaction
	err := store.Atomic(context.Background(), func(ctx context.Context, tx economy.Tx) error {
		acct, err := tx.LockAccount(ctx, economy.AccountKey{OwnerID: owner, Currency: "USD"})
		if err != nil {
			return err
		}
		txn = &economy.Transaction{
			Reference:     uuid.NewString(),
			Kind:          economy.KindDeposit,
			Amount:        amount,
			Currency:      "USD",
			DestAccountID: &acct.ID,
			CreatedAt:     time.Now().UTC(),
		}
		if err := tx.AppendTransaction(ctx, txn); err != nil {
			return err
		}
		if err := tx.SetBalance(ctx, acct.ID, acct.Balance+amount); err != nil {
			return err
		}
		return tx.AppendEntry(ctx, &economy.LedgerEntry{
			AccountID:     acct.ID,
			TransactionID: txn.ID,
			Delta:         amount,
			BalanceAfter:  acct.Balance + amount,
			CreatedAt:     txn.CreatedAt,
		})
	})
	require.NoError(t, err)
	return txn
}

func TestMigrateIsIdempotent(t *testing.T) {
	store := setupTestStore(t)
	assert.NoError(t, store.Migrate(context.Background()))
}

func TestLockAccountCreatesOnce(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	key := economy.AccountKey{OwnerID: 7, Currency: "USD"}

	var first, second int64
	err := store.Atomic(ctx, func(ctx context.Context, tx economy.Tx) error {
		a, err := tx.LockAccount(ctx, key)
		if err != nil {
			return err
		}
		first = a.ID
		b, err := tx.LockAccount(ctx, key)
		if err != nil {
			return err
		}
		second = b.ID
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, first, second)

	acct, err := store.FindAccount(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(0), acct.Balance)
}

func TestLockExistingAccountNotFound(t *testing.T) {
	store := setupTestStore(t)
	err := store.Atomic(context.Background(), func(ctx context.Context, tx economy.Tx) error {
		_, err := tx.LockExistingAccount(ctx, economy.AccountKey{OwnerID: 1, Currency: "USD"})
		return err
	})
	assert.ErrorIs(t, err, economy.ErrNotFound)
}

func TestAtomicRollsBackOnError(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	err := store.Atomic(ctx, func(ctx context.Context, tx economy.Tx) error {
		if _, err := tx.LockAccount(ctx, economy.AccountKey{OwnerID: 1, Currency: "USD"}); err != nil {
			return err
		}
		return economy.ErrInsufficientFunds
	})
	assert.ErrorIs(t, err, economy.ErrInsufficientFunds)

	_, err = store.FindAccount(ctx, economy.AccountKey{OwnerID: 1, Currency: "USD"})
	assert.ErrorIs(t, err, economy.ErrNotFound)
}

func TestAtomicRejectsCancelledContext(t *testing.T) {
	store := setupTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := store.Atomic(ctx, func(ctx context.Context, tx economy.Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestBalanceCannotGoNegative(t *testing.T) {
	store := setupTestStore(t)
	err := store.Atomic(context.Background(), func(ctx context.Context, tx economy.Tx) error {
		acct, err := tx.LockAccount(ctx, economy.AccountKey{OwnerID: 1, Currency: "USD"})
		if err != nil {
			return err
		}
		return tx.SetBalance(ctx, acct.ID, -1)
	})
	assert.Error(t, err)
}

func TestHistoryIsAppendOnly(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	txn := credit(t, store, 1, 500)

	_, err := store.DB().ExecContext(ctx, `UPDATE transactions SET amount = 1 WHERE id = ?`, txn.ID)
	assert.ErrorContains(t, err, "append-only")

	_, err = store.DB().ExecContext(ctx, `DELETE FROM ledger_entries WHERE transaction_id = ?`, txn.ID)
	assert.ErrorContains(t, err, "append-only")

	_, err = store.DB().ExecContext(ctx, `DELETE FROM accounts`)
	assert.ErrorContains(t, err, "never deleted")

	got, err := store.GetTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), got.Amount)
	assert.Nil(t, got.SrcAccountID)
	require.NotNil(t, got.DestAccountID)
}

func TestListTransactionsNewestFirst(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	first := credit(t, store, 1, 100)
	second := credit(t, store, 1, 200)
	credit(t, store, 2, 300)

	txs, err := store.ListTransactions(ctx, 1, economy.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, second.ID, txs[0].ID)
	assert.Equal(t, first.ID, txs[1].ID)

	txs, err = store.ListTransactions(ctx, 1, economy.TransactionFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, first.ID, txs[0].ID)

	txs, err = store.ListTransactions(ctx, 1, economy.TransactionFilter{Kind: economy.KindTransfer})
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestExchangeRateUpsert(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutExchangeRate(ctx, &economy.ExchangeRate{
		Base: "USD", Target: "EUR", Rate: decimal.RequireFromString("0.5"), UpdatedAt: now(),
	}))
	require.NoError(t, store.PutExchangeRate(ctx, &economy.ExchangeRate{
		Base: "USD", Target: "EUR", Rate: decimal.RequireFromString("0.92"), UpdatedAt: now(),
	}))

	r, err := store.GetExchangeRate(ctx, "USD", "EUR")
	require.NoError(t, err)
	assert.True(t, r.Rate.Equal(decimal.RequireFromString("0.92")))

	_, err = store.GetExchangeRate(ctx, "EUR", "USD")
	assert.ErrorIs(t, err, economy.ErrNotFound)

	rates, err := store.ListExchangeRates(ctx)
	require.NoError(t, err)
	assert.Len(t, rates, 1)

	fine := decimal.RequireFromString("184467440737.000000000123")
	require.NoError(t, store.PutExchangeRate(ctx, &economy.ExchangeRate{
		Base: "USD", Target: "DUST", Rate: fine, UpdatedAt: now(),
	}))
	r, err = store.GetExchangeRate(ctx, "USD", "DUST")
	require.NoError(t, err)
	assert.True(t, r.Rate.Equal(fine), "got %s", r.Rate)
}

func TestLoanRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	loan := &economy.Loan{
		OwnerID:      3,
		Currency:     "USD",
		Principal:    1000,
		Balance:      1000,
		InterestRate: decimal.RequireFromString("0.05"),
		TermDays:     30,
		Status:       economy.LoanActive,
		CreatedAt:    now(),
	}
	err := store.Atomic(ctx, func(ctx context.Context, tx economy.Tx) error {
		if err := tx.InsertLoan(ctx, loan); err != nil {
			return err
		}
		return tx.UpdateLoan(ctx, loan.ID, 0, economy.LoanRepaid)
	})
	require.NoError(t, err)

	got, err := store.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, economy.LoanRepaid, got.Status)
	assert.Equal(t, int64(0), got.Balance)
	assert.True(t, got.InterestRate.Equal(loan.InterestRate))

	err = store.Atomic(ctx, func(ctx context.Context, tx economy.Tx) error {
		return tx.UpdateLoan(ctx, 999, 0, economy.LoanRepaid)
	})
	assert.ErrorIs(t, err, economy.ErrNotFound)
}
