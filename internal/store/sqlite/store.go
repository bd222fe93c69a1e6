// Package sqlite implements economy.Store on SQLite. Writers are serialised
// with BEGIN IMMEDIATE over a single pooled connection, so an atomic unit
// holds the database exclusively until it commits or rolls back.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/example/economy-ledger/internal/economy"
)

// Store is an economy.Store backed by a SQLite database.
type Store struct {
	db *sql.DB
}

var _ economy.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path. Use ":memory:" for a
// private in-memory database.
func Open(path string) (*Store, error) {
	dsn := "file:" + path
	if path == ":memory:" {
		dsn = "file::memory:"
	}
	dsn += "?_txlock=immediate&_busy_timeout=5000&_foreign_keys=on"

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	return New(db), nil
}

// New wraps an already-open database.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates the schema.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Atomic runs fn inside an IMMEDIATE transaction. Once begun, the unit is
// detached from ctx cancellation and always ends in commit or rollback.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx economy.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx = context.WithoutCancel(ctx)

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("begin transaction: %w", err))
	}
	defer sqlTx.Rollback()

	if err := fn(ctx, &tx{tx: sqlTx}); err != nil {
		return classify(err)
	}
	if err := sqlTx.Commit(); err != nil {
		return classify(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

func (s *Store) FindAccount(ctx context.Context, key economy.AccountKey) (*economy.Account, error) {
	row := s.db.QueryRowContext(ctx, selectAccount+` WHERE owner_id = ? AND currency = ?`, key.OwnerID, key.Currency)
	return scanAccount(row)
}

func (s *Store) ListAccounts(ctx context.Context, currency string) ([]economy.Account, error) {
	rows, err := s.db.QueryContext(ctx, selectAccount+` WHERE currency = ? ORDER BY id`, currency)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []economy.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

func (s *Store) GetTransaction(ctx context.Context, id int64) (*economy.Transaction, error) {
	row := s.db.QueryRowContext(ctx, selectTransaction+` WHERE id = ?`, id)
	return scanTransaction(row)
}

func (s *Store) ListTransactions(ctx context.Context, ownerID int64, filter economy.TransactionFilter) ([]economy.Transaction, error) {
	var b strings.Builder
	b.WriteString(selectTransaction)
	b.WriteString(` WHERE (src_account_id IN (SELECT id FROM accounts WHERE owner_id = ?)
		OR dest_account_id IN (SELECT id FROM accounts WHERE owner_id = ?))`)
	args := []interface{}{ownerID, ownerID}

	if filter.Currency != "" {
		b.WriteString(` AND currency = ?`)
		args = append(args, filter.Currency)
	}
	if filter.Kind != "" {
		b.WriteString(` AND kind = ?`)
		args = append(args, string(filter.Kind))
	}
	b.WriteString(` ORDER BY id DESC LIMIT ? OFFSET ?`)
	limit := -1
	if filter.Limit > 0 {
		limit = filter.Limit
	}
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var txs []economy.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *t)
	}
	return txs, rows.Err()
}

func (s *Store) ListEntries(ctx context.Context, accountID int64) ([]economy.LedgerEntry, error) {
	return s.queryEntries(ctx, selectEntry+` WHERE account_id = ? ORDER BY id`, accountID)
}

func (s *Store) ListEntriesByTransaction(ctx context.Context, transactionID int64) ([]economy.LedgerEntry, error) {
	return s.queryEntries(ctx, selectEntry+` WHERE transaction_id = ? ORDER BY id`, transactionID)
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...interface{}) ([]economy.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []economy.LedgerEntry
	for rows.Next() {
		var e economy.LedgerEntry
		if err := rows.Scan(&e.ID, &e.AccountID, &e.TransactionID, &e.Delta, &e.BalanceAfter, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) GetExchangeRate(ctx context.Context, base, target string) (*economy.ExchangeRate, error) {
	row := s.db.QueryRowContext(ctx, selectRate+` WHERE base_currency = ? AND target_currency = ?`, base, target)
	return scanRate(row)
}

func (s *Store) PutExchangeRate(ctx context.Context, r *economy.ExchangeRate) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO exchange_rates (base_currency, target_currency, rate, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (base_currency, target_currency)
		DO UPDATE SET rate = excluded.rate, updated_at = excluded.updated_at
	`, r.Base, r.Target, r.Rate.String(), r.UpdatedAt)
	if err != nil {
		return classify(fmt.Errorf("upsert exchange rate: %w", err))
	}
	return nil
}

func (s *Store) ListExchangeRates(ctx context.Context) ([]economy.ExchangeRate, error) {
	rows, err := s.db.QueryContext(ctx, selectRate+` ORDER BY base_currency, target_currency`)
	if err != nil {
		return nil, fmt.Errorf("query exchange rates: %w", err)
	}
	defer rows.Close()

	var rates []economy.ExchangeRate
	for rows.Next() {
		r, err := scanRate(rows)
		if err != nil {
			return nil, err
		}
		rates = append(rates, *r)
	}
	return rates, rows.Err()
}

func (s *Store) GetLoan(ctx context.Context, id int64) (*economy.Loan, error) {
	return scanLoan(s.db.QueryRowContext(ctx, selectLoan+` WHERE id = ?`, id))
}

func (s *Store) ListLoans(ctx context.Context, ownerID int64) ([]economy.Loan, error) {
	rows, err := s.db.QueryContext(ctx, selectLoan+` WHERE owner_id = ? ORDER BY id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query loans: %w", err)
	}
	defer rows.Close()

	var loans []economy.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, *l)
	}
	return loans, rows.Err()
}

func (s *Store) GetInterestAccount(ctx context.Context, id int64) (*economy.InterestAccount, error) {
	return scanInterestAccount(s.db.QueryRowContext(ctx, selectInterestAccount+` WHERE id = ?`, id))
}

func (s *Store) ListInterestAccounts(ctx context.Context) ([]economy.InterestAccount, error) {
	rows, err := s.db.QueryContext(ctx, selectInterestAccount+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query interest accounts: %w", err)
	}
	defer rows.Close()

	var accounts []economy.InterestAccount
	for rows.Next() {
		a, err := scanInterestAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

const (
	selectAccount         = `SELECT id, owner_id, currency, balance, created_at FROM accounts`
	selectTransaction     = `SELECT id, reference, kind, amount, currency, src_account_id, dest_account_id, created_at FROM transactions`
	selectEntry           = `SELECT id, account_id, transaction_id, delta, balance_after, created_at FROM ledger_entries`
	selectRate            = `SELECT base_currency, target_currency, rate, updated_at FROM exchange_rates`
	selectLoan            = `SELECT id, owner_id, currency, principal, balance, interest_rate, term_days, status, created_at FROM loans`
	selectInterestAccount = `SELECT id, owner_id, balance, interest_rate, currency, created_at FROM interest_accounts`
)

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAccount(row scanner) (*economy.Account, error) {
	var a economy.Account
	if err := row.Scan(&a.ID, &a.OwnerID, &a.Currency, &a.Balance, &a.CreatedAt); err != nil {
		return nil, notFound(err, "scan account")
	}
	return &a, nil
}

func scanTransaction(row scanner) (*economy.Transaction, error) {
	var t economy.Transaction
	var kind string
	var src, dest sql.NullInt64
	if err := row.Scan(&t.ID, &t.Reference, &kind, &t.Amount, &t.Currency, &src, &dest, &t.CreatedAt); err != nil {
		return nil, notFound(err, "scan transaction")
	}
	t.Kind = economy.Kind(kind)
	if src.Valid {
		t.SrcAccountID = &src.Int64
	}
	if dest.Valid {
		t.DestAccountID = &dest.Int64
	}
	return &t, nil
}

func scanRate(row scanner) (*economy.ExchangeRate, error) {
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

func scanLoan(row scanner) (*economy.Loan, error) {
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

func scanInterestAccount(row scanner) (*economy.InterestAccount, error) {
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
	if errors.Is(err, sql.ErrNoRows) {
		return economy.ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

// classify marks SQLite contention errors as economy.ErrConflict.
func classify(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		if sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked {
			return fmt.Errorf("%w: %w", economy.ErrConflict, err)
		}
	}
	return err
}

func now() time.Time {
	return time.Now().UTC()
}
