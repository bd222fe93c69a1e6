package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/example/economy-ledger/internal/economy"
)

// tx is the write scope of one Atomic unit. The IMMEDIATE transaction
// already holds the write lock, so plain SELECTs read stable rows.
type tx struct {
	tx *sql.Tx
}

func (t *tx) LockAccount(ctx context.Context, key economy.AccountKey) (*economy.Account, error) {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO accounts (owner_id, currency, balance, created_at)
		VALUES (?, ?, 0, ?)
		ON CONFLICT (owner_id, currency) DO NOTHING
	`, key.OwnerID, key.Currency, now())
	if err != nil {
		return nil, fmt.Errorf("ensure account: %w", err)
	}
	return t.LockExistingAccount(ctx, key)
}

func (t *tx) LockExistingAccount(ctx context.Context, key economy.AccountKey) (*economy.Account, error) {
	row := t.tx.QueryRowContext(ctx, selectAccount+` WHERE owner_id = ? AND currency = ?`, key.OwnerID, key.Currency)
	return scanAccount(row)
}

func (t *tx) SetBalance(ctx context.Context, accountID, balance int64) error {
	return t.exec(ctx, "update balance", `UPDATE accounts SET balance = ? WHERE id = ?`, balance, accountID)
}

func (t *tx) AppendTransaction(ctx context.Context, txn *economy.Transaction) error {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO transactions (reference, kind, amount, currency, src_account_id, dest_account_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, txn.Reference, string(txn.Kind), txn.Amount, txn.Currency, txn.SrcAccountID, txn.DestAccountID, txn.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	txn.ID, err = res.LastInsertId()
	return err
}

func (t *tx) AppendEntry(ctx context.Context, e *economy.LedgerEntry) error {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (account_id, transaction_id, delta, balance_after, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, e.AccountID, e.TransactionID, e.Delta, e.BalanceAfter, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	e.ID, err = res.LastInsertId()
	return err
}

func (t *tx) InsertLoan(ctx context.Context, l *economy.Loan) error {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO loans (owner_id, currency, principal, balance, interest_rate, term_days, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, l.OwnerID, l.Currency, l.Principal, l.Balance, l.InterestRate.String(), l.TermDays, string(l.Status), l.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert loan: %w", err)
	}
	l.ID, err = res.LastInsertId()
	return err
}

func (t *tx) LockLoan(ctx context.Context, id int64) (*economy.Loan, error) {
	return scanLoan(t.tx.QueryRowContext(ctx, selectLoan+` WHERE id = ?`, id))
}

func (t *tx) UpdateLoan(ctx context.Context, id, balance int64, status economy.LoanStatus) error {
	return t.exec(ctx, "update loan", `UPDATE loans SET balance = ?, status = ? WHERE id = ?`, balance, string(status), id)
}

func (t *tx) InsertInterestAccount(ctx context.Context, a *economy.InterestAccount) error {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO interest_accounts (owner_id, balance, interest_rate, currency, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, a.OwnerID, a.Balance, a.InterestRate.String(), a.Currency, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert interest account: %w", err)
	}
	a.ID, err = res.LastInsertId()
	return err
}

func (t *tx) LockInterestAccount(ctx context.Context, id int64) (*economy.InterestAccount, error) {
	return scanInterestAccount(t.tx.QueryRowContext(ctx, selectInterestAccount+` WHERE id = ?`, id))
}

func (t *tx) SetInterestBalance(ctx context.Context, id, balance int64) error {
	return t.exec(ctx, "update interest account", `UPDATE interest_accounts SET balance = ? WHERE id = ?`, balance, id)
}

// exec runs a single-row UPDATE and fails unless exactly one row changed.
func (t *tx) exec(ctx context.Context, op, query string, args ...interface{}) error {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n != 1 {
		return fmt.Errorf("%s: %w", op, economy.ErrNotFound)
	}
	return nil
}
