package economy

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// OpenInterestAccount creates an empty interest-bearing savings account.
func (e *Engine) OpenInterestAccount(ctx context.Context, ownerID int64, interestRate decimal.Decimal, currency string) (*InterestAccount, error) {
	currency, err := e.currency(currency)
	if err != nil {
		return nil, err
	}
	if !interestRate.IsPositive() {
		return nil, fmt.Errorf("%w: interest rate must be positive, got %s", ErrInvalidParameters, interestRate)
	}

	ia := &InterestAccount{
		OwnerID:      ownerID,
		InterestRate: interestRate,
		Currency:     currency,
		CreatedAt:    e.now(),
	}
	err = e.store.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		return tx.InsertInterestAccount(ctx, ia)
	})
	if err != nil {
		return nil, fmt.Errorf("open interest account: %w", err)
	}
	return ia, nil
}

// DepositSavings moves amount from the owner's main account into the
// interest account and returns the new savings balance.
func (e *Engine) DepositSavings(ctx context.Context, interestAccountID, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: savings deposit must be positive, got %d", ErrInvalidParameters, amount)
	}

	var savings int64
	var ev Event
	err := e.store.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		ia, err := e.lockInterestAccount(ctx, tx, interestAccountID)
		if err != nil {
			return err
		}
		acct, err := e.lockFunded(ctx, tx, AccountKey{OwnerID: ia.OwnerID, Currency: ia.Currency}, amount)
		if err != nil {
			return err
		}
		t := &Transaction{Kind: KindWithdrawal, Amount: amount, Currency: ia.Currency, SrcAccountID: &acct.ID}
		entries, err := e.post(ctx, tx, t, move{acct, -amount})
		if err != nil {
			return err
		}
		savings, err = addMinor(ia.Balance, amount)
		if err != nil {
			return err
		}
		if err := tx.SetInterestBalance(ctx, ia.ID, savings); err != nil {
			return fmt.Errorf("update interest account: %w", err)
		}
		ev = Event{OwnerID: ia.OwnerID, Transaction: *t, Entries: entries}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("deposit savings: %w", err)
	}

	e.afterCommit(ctx, ev)
	return savings, nil
}

// CalculateDailyInterest accrues floor(balance * rate) on the interest
// account and pays the same amount into the owner's main account. Nothing
// is persisted when the interest rounds down to zero.
func (e *Engine) CalculateDailyInterest(ctx context.Context, interestAccountID int64) (int64, error) {
	var interest int64
	var ev Event
	err := e.store.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		ia, err := e.lockInterestAccount(ctx, tx, interestAccountID)
		if err != nil {
			return err
		}
		interest, err = floorMul(ia.Balance, ia.InterestRate)
		if err != nil {
			return err
		}
		if interest <= 0 {
			interest = 0
			return nil
		}

		accrued, err := addMinor(ia.Balance, interest)
		if err != nil {
			return err
		}
		if err := tx.SetInterestBalance(ctx, ia.ID, accrued); err != nil {
			return fmt.Errorf("update interest account: %w", err)
		}
		acct, err := tx.LockAccount(ctx, AccountKey{OwnerID: ia.OwnerID, Currency: ia.Currency})
		if err != nil {
			return err
		}
		t := &Transaction{Kind: KindInterest, Amount: interest, Currency: ia.Currency, DestAccountID: &acct.ID}
		entries, err := e.post(ctx, tx, t, move{acct, interest})
		if err != nil {
			return err
		}
		ev = Event{OwnerID: ia.OwnerID, Transaction: *t, Entries: entries}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("calculate daily interest: %w", err)
	}

	if interest > 0 {
		e.afterCommit(ctx, ev)
	}
	return interest, nil
}

// AccrueDailyInterest runs CalculateDailyInterest for every interest account,
// each in its own atomic unit. One failing account does not stop the sweep.
func (e *Engine) AccrueDailyInterest(ctx context.Context) (*InterestRun, error) {
	accounts, err := e.store.ListInterestAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list interest accounts: %w", err)
	}

	run := &InterestRun{
		StartedAt:     e.now(),
		TotalInterest: make(map[string]int64),
		Failed:        make(map[int64]error),
	}
	for _, ia := range accounts {
		if err := ctx.Err(); err != nil {
			return run, err
		}
		run.Accounts++
		interest, err := e.CalculateDailyInterest(ctx, ia.ID)
		if err != nil {
			run.Failed[ia.ID] = err
			e.logger.Error("interest accrual failed", "interest_account_id", ia.ID, "error", err)
			continue
		}
		if interest > 0 {
			run.Credited++
			run.TotalInterest[ia.Currency] += interest
		}
	}

	e.logger.Info("interest run finished",
		"accounts", run.Accounts,
		"credited", run.Credited,
		"failed", len(run.Failed),
	)
	return run, nil
}

// GetInterestAccount returns the interest account with id or ErrNotFound.
func (e *Engine) GetInterestAccount(ctx context.Context, id int64) (*InterestAccount, error) {
	return e.store.GetInterestAccount(ctx, id)
}

func (e *Engine) lockInterestAccount(ctx context.Context, tx Tx, id int64) (*InterestAccount, error) {
	ia, err := tx.LockInterestAccount(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: unknown interest account %d", ErrInvalidParameters, id)
	}
	return ia, err
}
