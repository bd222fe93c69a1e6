package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/example/economy-ledger/internal/economy"
)

type tx struct {
	tx pgx.Tx
}

// LockAccount inserts the account if absent, then locks its row. A
// concurrent creator blocks on the unique index until the other unit ends.
func (t *tx) LockAccount(ctx context.Context, key economy.AccountKey) (*economy.Account, error) {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO accounts (owner_id, currency, balance)
		VALUES ($1, $2, 0)
		ON CONFLICT (owner_id, currency) DO NOTHING
	`, key.OwnerID, key.Currency)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure account: %w", err)
	}
	return t.LockExistingAccount(ctx, key)
}

func (t *tx) LockExistingAccount(ctx context.Context, key economy.AccountKey) (*economy.Account, error) {
	row := t.tx.QueryRow(ctx, selectAccount+` WHERE owner_id = $1 AND currency = $2 FOR UPDATE`, key.OwnerID, key.Currency)
	return scanAccount(row)
}

func (t *tx) SetBalance(ctx context.Context, accountID, balance int64) error {
	return t.exec(ctx, "update balance", `UPDATE accounts SET balance = $1 WHERE id = $2`, balance, accountID)
}

func (t *tx) AppendTransaction(ctx context.Context, txn *economy.Transaction) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO transactions (reference, kind, amount, currency, src_account_id, dest_account_id, created_at)
		VALUES ($1::text::uuid, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, txn.Reference, string(txn.Kind), txn.Amount, txn.Currency, txn.SrcAccountID, txn.DestAccountID, txn.CreatedAt).Scan(&txn.ID)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

func (t *tx) AppendEntry(ctx context.Context, e *economy.LedgerEntry) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO ledger_entries (account_id, transaction_id, delta, balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, e.AccountID, e.TransactionID, e.Delta, e.BalanceAfter, e.CreatedAt).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}
	return nil
}

func (t *tx) InsertLoan(ctx context.Context, l *economy.Loan) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO loans (owner_id, currency, principal, balance, interest_rate, term_days, status, created_at)
		VALUES ($1, $2, $3, $4, CAST($5::text AS NUMERIC), $6, $7, $8)
		RETURNING id
	`, l.OwnerID, l.Currency, l.Principal, l.Balance, l.InterestRate.String(), l.TermDays, string(l.Status), l.CreatedAt).Scan(&l.ID)
	if err != nil {
		return fmt.Errorf("failed to insert loan: %w", err)
	}
	return nil
}

func (t *tx) LockLoan(ctx context.Context, id int64) (*economy.Loan, error) {
	return scanLoan(t.tx.QueryRow(ctx, selectLoan+` WHERE id = $1 FOR UPDATE`, id))
}

func (t *tx) UpdateLoan(ctx context.Context, id, balance int64, status economy.LoanStatus) error {
	return t.exec(ctx, "update loan", `UPDATE loans SET balance = $1, status = $2 WHERE id = $3`, balance, string(status), id)
}

func (t *tx) InsertInterestAccount(ctx context.Context, a *economy.InterestAccount) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO interest_accounts (owner_id, balance, interest_rate, currency, created_at)
		VALUES ($1, $2, CAST($3::text AS NUMERIC), $4, $5)
		RETURNING id
	`, a.OwnerID, a.Balance, a.InterestRate.String(), a.Currency, a.CreatedAt).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("failed to insert interest account: %w", err)
	}
	return nil
}

func (t *tx) LockInterestAccount(ctx context.Context, id int64) (*economy.InterestAccount, error) {
	return scanInterestAccount(t.tx.QueryRow(ctx, selectInterestAccount+` WHERE id = $1 FOR UPDATE`, id))
}

func (t *tx) SetInterestBalance(ctx context.Context, id, balance int64) error {
	return t.exec(ctx, "update interest account", `UPDATE interest_accounts SET balance = $1 WHERE id = $2`, balance, id)
}

func (t *tx) exec(ctx context.Context, op, query string, args ...interface{}) error {
	tag, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("failed to %s: %w", op, economy.ErrNotFound)
	}
	return nil
}
