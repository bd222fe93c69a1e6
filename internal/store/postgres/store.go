// Package postgres implements economy.Store on PostgreSQL. Atomic units run
// at READ COMMITTED and take row locks (SELECT ... FOR UPDATE) on every
// account they touch; the engine acquires them in ascending (owner,
// currency) order so concurrent transfers cannot deadlock.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/example/economy-ledger/internal/economy"
)

// Store is an economy.Store backed by a pgx connection pool.
type Store struct {
	Pool *pgxpool.Pool
}

var _ economy.Store = (*Store)(nil)

// NewStore wraps pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{Pool: pool}
}

// Connect creates a pool for databaseURL and verifies it.
func Connect(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return NewStore(pool), nil
}

// Migrate applies the schema inside one transaction.
func (s *Store) Migrate(ctx context.Context) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin migration: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, m := range migrations {
		if _, err := tx.Exec(ctx, m); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

// Close closes the pool.
func (s *Store) Close() error {
	s.Pool.Close()
	return nil
}

// Atomic runs fn in a READ COMMITTED transaction. Once begun, the unit is
// detached from ctx cancellation and always ends in commit or rollback.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx economy.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx = context.WithoutCancel(ctx)

	pgTx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return classify(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer pgTx.Rollback(ctx)

	if err := fn(ctx, &tx{tx: pgTx}); err != nil {
		return classify(err)
	}
	if err := pgTx.Commit(ctx); err != nil {
		return classify(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

func (s *Store) FindAccount(ctx context.Context, key economy.AccountKey) (*economy.Account, error) {
	return scanAccount(s.Pool.QueryRow(ctx, selectAccount+` WHERE owner_id = $1 AND currency = $2`, key.OwnerID, key.Currency))
}

func (s *Store) ListAccounts(ctx context.Context, currency string) ([]economy.Account, error) {
	rows, err := s.Pool.Query(ctx, selectAccount+` WHERE currency = $1 ORDER BY id`, currency)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	return collect(rows, scanAccount)
}

func (s *Store) GetTransaction(ctx context.Context, id int64) (*economy.Transaction, error) {
	return scanTransaction(s.Pool.QueryRow(ctx, selectTransaction+` WHERE id = $1`, id))
}

func (s *Store) ListTransactions(ctx context.Context, ownerID int64, filter economy.TransactionFilter) ([]economy.Transaction, error) {
	var b strings.Builder
	b.WriteString(selectTransaction)
	b.WriteString(` WHERE (src_account_id IN (SELECT id FROM accounts WHERE owner_id = $1)
		OR dest_account_id IN (SELECT id FROM accounts WHERE owner_id = $1))`)
	args := []interface{}{ownerID}
	argCount := 2

	if filter.Currency != "" {
		fmt.Fprintf(&b, " AND currency = $%d", argCount)
		args = append(args, filter.Currency)
		argCount++
	}
	if filter.Kind != "" {
		fmt.Fprintf(&b, " AND kind = $%d", argCount)
		args = append(args, string(filter.Kind))
		argCount++
	}
	b.WriteString(" ORDER BY id DESC")
	if filter.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT $%d", argCount)
		args = append(args, filter.Limit)
		argCount++
	}
	if filter.Offset > 0 {
		fmt.Fprintf(&b, " OFFSET $%d", argCount)
		args = append(args, filter.Offset)
	}

	rows, err := s.Pool.Query(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	return collect(rows, scanTransaction)
}

func (s *Store) ListEntries(ctx context.Context, accountID int64) ([]economy.LedgerEntry, error) {
	rows, err := s.Pool.Query(ctx, selectEntry+` WHERE account_id = $1 ORDER BY id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	return collect(rows, scanEntry)
}

func (s *Store) ListEntriesByTransaction(ctx context.Context, transactionID int64) ([]economy.LedgerEntry, error) {
	rows, err := s.Pool.Query(ctx, selectEntry+` WHERE transaction_id = $1 ORDER BY id`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	return collect(rows, scanEntry)
}

func (s *Store) GetExchangeRate(ctx context.Context, base, target string) (*economy.ExchangeRate, error) {
	return scanRate(s.Pool.QueryRow(ctx, selectRate+` WHERE base_currency = $1 AND target_currency = $2`, base, target))
}

func (s *Store) PutExchangeRate(ctx context.Context, r *economy.ExchangeRate) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO exchange_rates (base_currency, target_currency, rate, updated_at)
		VALUES ($1, $2, CAST($3::text AS NUMERIC), $4)
		ON CONFLICT (base_currency, target_currency)
		DO UPDATE SET rate = EXCLUDED.rate, updated_at = EXCLUDED.updated_at
	`, r.Base, r.Target, r.Rate.String(), r.UpdatedAt)
	if err != nil {
		return classify(fmt.Errorf("failed to upsert exchange rate: %w", err))
	}
	return nil
}

func (s *Store) ListExchangeRates(ctx context.Context) ([]economy.ExchangeRate, error) {
	rows, err := s.Pool.Query(ctx, selectRate+` ORDER BY base_currency, target_currency`)
	if err != nil {
		return nil, fmt.Errorf("failed to query exchange rates: %w", err)
	}
	return collect(rows, scanRate)
}

func (s *Store) GetLoan(ctx context.Context, id int64) (*economy.Loan, error) {
	return scanLoan(s.Pool.QueryRow(ctx, selectLoan+` WHERE id = $1`, id))
}

func (s *Store) ListLoans(ctx context.Context, ownerID int64) ([]economy.Loan, error) {
	rows, err := s.Pool.Query(ctx, selectLoan+` WHERE owner_id = $1 ORDER BY id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query loans: %w", err)
	}
	return collect(rows, scanLoan)
}

func (s *Store) GetInterestAccount(ctx context.Context, id int64) (*economy.InterestAccount, error) {
	return scanInterestAccount(s.Pool.QueryRow(ctx, selectInterestAccount+` WHERE id = $1`, id))
}

func (s *Store) ListInterestAccounts(ctx context.Context) ([]economy.InterestAccount, error) {
	rows, err := s.Pool.Query(ctx, selectInterestAccount+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query interest accounts: %w", err)
	}
	return collect(rows, scanInterestAccount)
}

const (
	selectAccount         = `SELECT id, owner_id, currency, balance, created_at FROM accounts`
	selectTransaction     = `SELECT id, reference::text, kind, amount, currency, src_account_id, dest_account_id, created_at FROM transactions`
	selectEntry           = `SELECT id, account_id, transaction_id, delta, balance_after, created_at FROM ledger_entries`
	selectRate            = `SELECT base_currency, target_currency, rate::text, updated_at FROM exchange_rates`
	selectLoan            = `SELECT id, owner_id, currency, principal, balance, interest_rate::text, term_days, status, created_at FROM loans`
	selectInterestAccount = `SELECT id, owner_id, balance, interest_rate::text, currency, created_at FROM interest_accounts`
)

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (*T, error)) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

func scanAccount(row pgx.Row) (*economy.Account, error) {
	var a economy.Account
	if err := row.Scan(&a.ID, &a.OwnerID, &a.Currency, &a.Balance, &a.CreatedAt); err != nil {
		return nil, notFound(err, "scan account")
	}
	return &a, nil
}

func scanTransaction(row pgx.Row) (*economy.Transaction, error) {
	var t economy.Transaction
	var kind string
	if err := row.Scan(&t.ID, &t.Reference, &kind, &t.Amount, &t.Currency, &t.SrcAccountID, &t.DestAccountID, &t.CreatedAt); err != nil {
		return nil, notFound(err, "scan transaction")
	}
	t.Kind = economy.Kind(kind)
	return &t, nil
}

func scanEntry(row pgx.Row) (*economy.LedgerEntry, error) {
	var e economy.LedgerEntry
	if err := row.Scan(&e.ID, &e.AccountID, &e.TransactionID, &e.Delta, &e.BalanceAfter, &e.CreatedAt); err != nil {
		return nil, notFound(err, "scan ledger entry")
	}
	return &e, nil
}

func scanRate(row pgx.Row) (*economy.ExchangeRate, error) {
	var r economy.ExchangeRate
	var rate string
	if err := row.Scan(&r.Base, &r.Target, &rate, &r.UpdatedAt); err != nil {
		return nil, notFound(err, "scan exchange rate")
	}
	d, err := decimal.NewFromString(rate)
	if err != nil {
		return nil, fmt.Errorf("parse exchange rate %q: %w", rate, err)
	}
	r.Rate = d
	return &r, nil
}

func scanLoan(row pgx.Row) (*economy.Loan, error) {
	var l economy.Loan
	var rate, status string
	if err := row.Scan(&l.ID, &l.OwnerID, &l.Currency, &l.Principal, &l.Balance, &rate, &l.TermDays, &status, &l.CreatedAt); err != nil {
		return nil, notFound(err, "scan loan")
	}
	d, err := decimal.NewFromString(rate)
	if err != nil {
		return nil, fmt.Errorf("parse loan rate %q: %w", rate, err)
	}
	l.InterestRate = d
	l.Status = economy.LoanStatus(status)
	return &l, nil
}

func scanInterestAccount(row pgx.Row) (*economy.InterestAccount, error) {
	var a economy.InterestAccount
	var rate string
	if err := row.Scan(&a.ID, &a.OwnerID, &a.Balance, &rate, &a.Currency, &a.CreatedAt); err != nil {
		return nil, notFound(err, "scan interest account")
	}
	d, err := decimal.NewFromString(rate)
	if err != nil {
		return nil, fmt.Errorf("parse interest rate %q: %w", rate, err)
	}
	a.InterestRate = d
	return &a, nil
}

func notFound(err error, op string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return economy.ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

// classify marks serialization failures, deadlocks and lock timeouts as
// economy.ErrConflict so callers can decide to retry.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return fmt.Errorf("%w: %w", economy.ErrConflict, err)
		}
	}
	return err
}
