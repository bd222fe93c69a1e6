package economy

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// CreateLoan records a loan liability and deposits the principal, untaxed,
// into the owner's default-currency account. It returns the loan id.
func (e *Engine) CreateLoan(ctx context.Context, ownerID, principal int64, interestRate decimal.Decimal, termDays int) (int64, error) {
	if principal <= 0 {
		return 0, fmt.Errorf("%w: loan principal must be positive, got %d", ErrInvalidParameters, principal)
	}
	if !interestRate.IsPositive() {
		return 0, fmt.Errorf("%w: loan interest rate must be positive, got %s", ErrInvalidParameters, interestRate)
	}
	if termDays <= 0 {
		return 0, fmt.Errorf("%w: loan term must be positive, got %d days", ErrInvalidParameters, termDays)
	}

	currency := e.defaultCurrency
	loan := &Loan{
		OwnerID:      ownerID,
		Currency:     currency,
		Principal:    principal,
		Balance:      principal,
		InterestRate: interestRate,
		TermDays:     termDays,
		Status:       LoanActive,
	}

	ev := Event{OwnerID: ownerID}
	err := e.store.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		acct, err := tx.LockAccount(ctx, AccountKey{OwnerID: ownerID, Currency: currency})
		if err != nil {
			return err
		}
		t := &Transaction{Kind: KindLoan, Amount: principal, Currency: currency, DestAccountID: &acct.ID}
		entries, err := e.post(ctx, tx, t, move{acct, principal})
		if err != nil {
			return err
		}
		loan.CreatedAt = t.CreatedAt
		if err := tx.InsertLoan(ctx, loan); err != nil {
			return fmt.Errorf("insert loan: %w", err)
		}
		ev.Transaction, ev.Entries = *t, entries
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("create loan: %w", err)
	}

	e.logger.Info("loan created", "loan_id", loan.ID, "owner_id", ownerID, "principal", principal, "term_days", termDays)
	e.afterCommit(ctx, ev)
	return loan.ID, nil
}

// RepayLoan debits up to amount from the borrower towards the outstanding
// balance and returns what remains. A loan reaching zero becomes repaid.
func (e *Engine) RepayLoan(ctx context.Context, loanID, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: repayment must be positive, got %d", ErrInvalidParameters, amount)
	}

	var remaining int64
	var ev Event
	err := e.store.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		loan, err := tx.LockLoan(ctx, loanID)
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: unknown loan %d", ErrInvalidParameters, loanID)
		}
		if err != nil {
			return err
		}
		if loan.Status == LoanRepaid {
			return fmt.Errorf("%w: loan %d is already repaid", ErrInvalidParameters, loanID)
		}

		pay := min(amount, loan.Balance)
		acct, err := e.lockFunded(ctx, tx, AccountKey{OwnerID: loan.OwnerID, Currency: loan.Currency}, pay)
		if err != nil {
			return err
		}
		t := &Transaction{Kind: KindLoan, Amount: pay, Currency: loan.Currency, SrcAccountID: &acct.ID}
		entries, err := e.post(ctx, tx, t, move{acct, -pay})
		if err != nil {
			return err
		}

		remaining = loan.Balance - pay
		status := LoanActive
		if remaining == 0 {
			status = LoanRepaid
		}
		if err := tx.UpdateLoan(ctx, loan.ID, remaining, status); err != nil {
			return fmt.Errorf("update loan: %w", err)
		}
		ev = Event{OwnerID: loan.OwnerID, Transaction: *t, Entries: entries}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("repay loan: %w", err)
	}

	e.afterCommit(ctx, ev)
	return remaining, nil
}

// GetLoan returns the loan with id or ErrNotFound.
func (e *Engine) GetLoan(ctx context.Context, id int64) (*Loan, error) {
	return e.store.GetLoan(ctx, id)
}

// ListLoans returns the owner's loans, oldest first.
func (e *Engine) ListLoans(ctx context.Context, ownerID int64) ([]Loan, error) {
	return e.store.ListLoans(ctx, ownerID)
}
