package economy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var currencyPattern = regexp.MustCompile(`^[A-Z][A-Z0-9]{1,9}$`)

// Engine is the only component that mutates balances. Every operation reads
// the affected accounts, validates, applies the change and records one
// Transaction plus its LedgerEntries inside a single Store.Atomic unit.
type Engine struct {
	store  Store
	params ParamsProvider
	hooks  []Hook
	logger *slog.Logger
	now    func() time.Time

	defaultCurrency   string
	realMoneyCurrency string
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithHooks appends post-commit hooks. They run in registration order.
func WithHooks(hooks ...Hook) Option {
	return func(e *Engine) {
		e.hooks = append(e.hooks, hooks...)
	}
}

// WithDefaultCurrency sets the currency used when callers pass "".
func WithDefaultCurrency(code string) Option {
	return func(e *Engine) {
		e.defaultCurrency = strings.ToUpper(code)
	}
}

// WithRealMoneyCurrency sets the base currency of verified real-money charges
// credited through CreditPurchase.
func WithRealMoneyCurrency(code string) Option {
	return func(e *Engine) {
		e.realMoneyCurrency = strings.ToUpper(code)
	}
}

// WithClock overrides the time source used for created_at stamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New creates an engine over store, reading economic parameters from params.
func New(store Store, params ParamsProvider, opts ...Option) *Engine {
	e := &Engine{
		store:             store,
		params:            params,
		logger:            slog.Default(),
		now:               func() time.Time { return time.Now().UTC() },
		defaultCurrency:   DefaultCurrency,
		realMoneyCurrency: DefaultCurrency,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Deposit credits money entering the economy from outside. The configured
// tax rate is withheld and credited nowhere; the net amount is returned.
func (e *Engine) Deposit(ctx context.Context, ownerID, amount int64, currency string) (int64, error) {
	currency, err := e.currency(currency)
	if err != nil {
		return 0, err
	}
	if amount <= 0 {
		return 0, fmt.Errorf("%w: deposit amount must be positive, got %d", ErrInvalidParameters, amount)
	}

	params, err := e.currentParams(ctx)
	if err != nil {
		return 0, err
	}
	tax, err := floorMul(amount, params.TaxRate)
	if err != nil {
		return 0, err
	}
	net := amount - tax
	if net <= 0 {
		e.logger.Info("deposit fully taxed", "owner_id", ownerID, "amount", amount, "tax", tax)
		return 0, nil
	}

	ev := Event{OwnerID: ownerID}
	err = e.store.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		acct, err := tx.LockAccount(ctx, AccountKey{OwnerID: ownerID, Currency: currency})
		if err != nil {
			return err
		}
		t := &Transaction{Kind: KindDeposit, Amount: net, Currency: currency, DestAccountID: &acct.ID}
		entries, err := e.post(ctx, tx, t, move{acct, net})
		if err != nil {
			return err
		}
		ev.Transaction, ev.Entries = *t, entries
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("deposit: %w", err)
	}

	e.logger.Debug("deposit committed", "owner_id", ownerID, "currency", currency, "net", net, "tax", tax)
	e.afterCommit(ctx, ev)
	return net, nil
}

// Withdraw removes money from the economy and returns the new balance.
// It fails with ErrInsufficientFunds when the account is absent or short.
func (e *Engine) Withdraw(ctx context.Context, ownerID, amount int64, currency string) (int64, error) {
	return e.debit(ctx, KindWithdrawal, ownerID, amount, currency)
}

// Purchase debits an in-game purchase (merchandise, tickets, rent) and
// returns the new balance. Same rules as Withdraw.
func (e *Engine) Purchase(ctx context.Context, ownerID, amount int64, currency string) (int64, error) {
	return e.debit(ctx, KindPurchase, ownerID, amount, currency)
}

func (e *Engine) debit(ctx context.Context, kind Kind, ownerID, amount int64, currency string) (int64, error) {
	currency, err := e.currency(currency)
	if err != nil {
		return 0, err
	}
	if amount <= 0 {
		return 0, fmt.Errorf("%w: %s amount must be positive, got %d", ErrInvalidParameters, kind, amount)
	}

	var balance int64
	ev := Event{OwnerID: ownerID}
	err = e.store.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		acct, err := e.lockFunded(ctx, tx, AccountKey{OwnerID: ownerID, Currency: currency}, amount)
		if err != nil {
			return err
		}
		t := &Transaction{Kind: kind, Amount: amount, Currency: currency, SrcAccountID: &acct.ID}
		entries, err := e.post(ctx, tx, t, move{acct, -amount})
		if err != nil {
			return err
		}
		balance = acct.Balance
		ev.Transaction, ev.Entries = *t, entries
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", kind, err)
	}

	e.afterCommit(ctx, ev)
	return balance, nil
}

// Transfer moves amount between two owners as one transfer transaction with
// two ledger entries. Neither side is taxed. Hooks run after commit.
func (e *Engine) Transfer(ctx context.Context, fromOwner, toOwner, amount int64, currency string) (*Transaction, error) {
	currency, err := e.currency(currency)
	if err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: transfer amount must be positive, got %d", ErrInvalidParameters, amount)
	}
	if fromOwner == toOwner {
		return nil, fmt.Errorf("%w: cannot transfer to the same owner", ErrInvalidParameters)
	}

	fromKey := AccountKey{OwnerID: fromOwner, Currency: currency}
	toKey := AccountKey{OwnerID: toOwner, Currency: currency}

	ev := Event{OwnerID: fromOwner, CounterpartyID: toOwner}
	err = e.store.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		var src, dst *Account
		var err error
		if fromKey.Less(toKey) {
			if src, err = e.lockFunded(ctx, tx, fromKey, amount); err != nil {
				return err
			}
			if dst, err = tx.LockAccount(ctx, toKey); err != nil {
				return err
			}
		} else {
			if dst, err = tx.LockAccount(ctx, toKey); err != nil {
				return err
			}
			if src, err = e.lockFunded(ctx, tx, fromKey, amount); err != nil {
				return err
			}
		}

		t := &Transaction{
			Kind:          KindTransfer,
			Amount:        amount,
			Currency:      currency,
			SrcAccountID:  &src.ID,
			DestAccountID: &dst.ID,
		}
		entries, err := e.post(ctx, tx, t, move{src, -amount}, move{dst, amount})
		if err != nil {
			return err
		}
		ev.Transaction, ev.Entries = *t, entries
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("transfer: %w", err)
	}

	e.afterCommit(ctx, ev)
	return &ev.Transaction, nil
}

// Earn credits in-game income (royalty, gig or recording revenue). The
// configured payout rate is applied; earnings are not taxed.
func (e *Engine) Earn(ctx context.Context, ownerID int64, kind Kind, amount int64, currency string) (int64, error) {
	switch kind {
	case KindRoyalty, KindGig, KindRecording:
	default:
		return 0, fmt.Errorf("%w: %q is not an earnings kind", ErrInvalidParameters, kind)
	}
	currency, err := e.currency(currency)
	if err != nil {
		return 0, err
	}
	if amount <= 0 {
		return 0, fmt.Errorf("%w: %s amount must be positive, got %d", ErrInvalidParameters, kind, amount)
	}

	params, err := e.currentParams(ctx)
	if err != nil {
		return 0, err
	}
	credited, err := floorMul(amount, params.PayoutRate)
	if err != nil {
		return 0, err
	}
	if credited <= 0 {
		return 0, nil
	}

	if err := e.credit(ctx, kind, ownerID, credited, currency); err != nil {
		return 0, fmt.Errorf("%s: %w", kind, err)
	}
	return credited, nil
}

// credit adds amount to the owner's account as a single-entry transaction of kind.
func (e *Engine) credit(ctx context.Context, kind Kind, ownerID, amount int64, currency string) error {
	ev := Event{OwnerID: ownerID}
	err := e.store.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		acct, err := tx.LockAccount(ctx, AccountKey{OwnerID: ownerID, Currency: currency})
		if err != nil {
			return err
		}
		t := &Transaction{Kind: kind, Amount: amount, Currency: currency, DestAccountID: &acct.ID}
		entries, err := e.post(ctx, tx, t, move{acct, amount})
		if err != nil {
			return err
		}
		ev.Transaction, ev.Entries = *t, entries
		return nil
	})
	if err != nil {
		return err
	}
	e.afterCommit(ctx, ev)
	return nil
}

// GetBalance returns the balance of (owner, currency), or 0 when no account exists.
func (e *Engine) GetBalance(ctx context.Context, ownerID int64, currency string) (int64, error) {
	acct, err := e.GetAccount(ctx, ownerID, currency)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return acct.Balance, nil
}

// GetAccount returns the account for (owner, currency) or ErrNotFound.
func (e *Engine) GetAccount(ctx context.Context, ownerID int64, currency string) (*Account, error) {
	currency, err := e.currency(currency)
	if err != nil {
		return nil, err
	}
	return e.store.FindAccount(ctx, AccountKey{OwnerID: ownerID, Currency: currency})
}

// ListTransactions returns transactions touching any of the owner's
// accounts, most recent first.
func (e *Engine) ListTransactions(ctx context.Context, ownerID int64, filter TransactionFilter) ([]Transaction, error) {
	if filter.Currency != "" {
		c, err := e.currency(filter.Currency)
		if err != nil {
			return nil, err
		}
		filter.Currency = c
	}
	if filter.Kind != "" && !filter.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown transaction kind %q", ErrInvalidParameters, filter.Kind)
	}
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, fmt.Errorf("%w: negative limit or offset", ErrInvalidParameters)
	}
	return e.store.ListTransactions(ctx, ownerID, filter)
}

// ListEntries returns the ledger entries of (owner, currency) in creation order.
func (e *Engine) ListEntries(ctx context.Context, ownerID int64, currency string) ([]LedgerEntry, error) {
	acct, err := e.GetAccount(ctx, ownerID, currency)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e.store.ListEntries(ctx, acct.ID)
}

// MoneySupply returns the sum of all account balances in currency.
func (e *Engine) MoneySupply(ctx context.Context, currency string) (int64, error) {
	currency, err := e.currency(currency)
	if err != nil {
		return 0, err
	}
	accounts, err := e.store.ListAccounts(ctx, currency)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, a := range accounts {
		total += a.Balance
	}
	return total, nil
}

type move struct {
	account *Account
	delta   int64
}

// post appends t and one ledger entry per move, updating each account's
// balance immediately before writing its entry.
func (e *Engine) post(ctx context.Context, tx Tx, t *Transaction, moves ...move) ([]LedgerEntry, error) {
	t.Reference = uuid.NewString()
	t.CreatedAt = e.now()
	if err := tx.AppendTransaction(ctx, t); err != nil {
		return nil, fmt.Errorf("append transaction: %w", err)
	}

	entries := make([]LedgerEntry, 0, len(moves))
	for _, m := range moves {
		balance, err := addMinor(m.account.Balance, m.delta)
		if err != nil {
			return nil, fmt.Errorf("account %d: %w", m.account.ID, err)
		}
		if balance < 0 {
			return nil, fmt.Errorf("%w: account %d would fall to %d", ErrInsufficientFunds, m.account.ID, balance)
		}
		if err := tx.SetBalance(ctx, m.account.ID, balance); err != nil {
			return nil, fmt.Errorf("update balance: %w", err)
		}
		entry := LedgerEntry{
			AccountID:     m.account.ID,
			TransactionID: t.ID,
			Delta:         m.delta,
			BalanceAfter:  balance,
			CreatedAt:     t.CreatedAt,
		}
		if err := tx.AppendEntry(ctx, &entry); err != nil {
			return nil, fmt.Errorf("append ledger entry: %w", err)
		}
		m.account.Balance = balance
		entries = append(entries, entry)
	}
	return entries, nil
}

// lockFunded locks an existing account holding at least amount.
func (e *Engine) lockFunded(ctx context.Context, tx Tx, key AccountKey, amount int64) (*Account, error) {
	acct, err := tx.LockExistingAccount(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: owner %d has no %s account", ErrInsufficientFunds, key.OwnerID, key.Currency)
	}
	if err != nil {
		return nil, err
	}
	if acct.Balance < amount {
		return nil, fmt.Errorf("%w: owner %d has %d %s, needs %d",
			ErrInsufficientFunds, key.OwnerID, acct.Balance, key.Currency, amount)
	}
	return acct, nil
}

func (e *Engine) currentParams(ctx context.Context) (Params, error) {
	params, err := e.params.Get(ctx)
	if err != nil {
		return Params{}, fmt.Errorf("load economic parameters: %w", err)
	}
	if err := params.Validate(); err != nil {
		return Params{}, fmt.Errorf("economic parameters: %w", err)
	}
	return params, nil
}

// currency normalises code, substituting the default for "".
func (e *Engine) currency(code string) (string, error) {
	if code == "" {
		return e.defaultCurrency, nil
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	if !currencyPattern.MatchString(code) {
		return "", fmt.Errorf("%w: malformed currency code %q", ErrInvalidParameters, code)
	}
	return code, nil
}
