package economy

import (
	"context"
)

// Store is the durable state behind the engine: accounts, the transaction
// log, ledger entries, loans, interest accounts and exchange rates.
//
// Read methods may be called freely. Every mutation of accounts, transactions,
// ledger entries, loans or interest accounts happens through Atomic.
type Store interface {
	// Atomic runs fn as one indivisible unit. Accounts locked through the Tx
	// stay exclusively held until fn returns; the unit commits when fn
	// returns nil and rolls back otherwise.
	Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	FindAccount(ctx context.Context, key AccountKey) (*Account, error)
	ListAccounts(ctx context.Context, currency string) ([]Account, error)

	GetTransaction(ctx context.Context, id int64) (*Transaction, error)
	ListTransactions(ctx context.Context, ownerID int64, filter TransactionFilter) ([]Transaction, error)
	ListEntries(ctx context.Context, accountID int64) ([]LedgerEntry, error)
	ListEntriesByTransaction(ctx context.Context, transactionID int64) ([]LedgerEntry, error)

	GetExchangeRate(ctx context.Context, base, target string) (*ExchangeRate, error)
	PutExchangeRate(ctx context.Context, rate *ExchangeRate) error
	ListExchangeRates(ctx context.Context) ([]ExchangeRate, error)

	GetLoan(ctx context.Context, id int64) (*Loan, error)
	ListLoans(ctx context.Context, ownerID int64) ([]Loan, error)
	GetInterestAccount(ctx context.Context, id int64) (*InterestAccount, error)
	ListInterestAccounts(ctx context.Context) ([]InterestAccount, error)

	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Tx is the write scope handed to Store.Atomic callbacks.
type Tx interface {
	// LockAccount returns the account for key, creating a zero-balance row
	// when absent, and holds it until the unit ends.
	LockAccount(ctx context.Context, key AccountKey) (*Account, error)
	// LockExistingAccount is LockAccount without creation; it returns
	// ErrNotFound when the account does not exist.
	LockExistingAccount(ctx context.Context, key AccountKey) (*Account, error)
	SetBalance(ctx context.Context, accountID, balance int64) error

	// AppendTransaction inserts t and fills in its ID.
	AppendTransaction(ctx context.Context, t *Transaction) error
	// AppendEntry inserts e and fills in its ID.
	AppendEntry(ctx context.Context, e *LedgerEntry) error

	InsertLoan(ctx context.Context, l *Loan) error
	LockLoan(ctx context.Context, id int64) (*Loan, error)
	UpdateLoan(ctx context.Context, id, balance int64, status LoanStatus) error

	InsertInterestAccount(ctx context.Context, a *InterestAccount) error
	LockInterestAccount(ctx context.Context, id int64) (*InterestAccount, error)
	SetInterestBalance(ctx context.Context, id, balance int64) error
}
