package economy

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is used when an operation is called with an empty currency code.
const DefaultCurrency = "USD"

// Kind classifies a money movement.
type Kind string

const (
	KindDeposit    Kind = "deposit"
	KindWithdrawal Kind = "withdrawal"
	KindTransfer   Kind = "transfer"
	KindLoan       Kind = "loan"
	KindInterest   Kind = "interest"
	KindPurchase   Kind = "purchase"
	KindRoyalty    Kind = "royalty"
	KindGig        Kind = "gig"
	KindRecording  Kind = "recording"
)

// Valid reports whether k is one of the known transaction kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindDeposit, KindWithdrawal, KindTransfer, KindLoan, KindInterest,
		KindPurchase, KindRoyalty, KindGig, KindRecording:
		return true
	}
	return false
}

// AccountKey identifies an account by its owner and currency.
type AccountKey struct {
	OwnerID  int64
	Currency string
}

// Less orders keys by owner, then currency. Multi-account units lock in this order.
func (k AccountKey) Less(o AccountKey) bool {
	if k.OwnerID != o.OwnerID {
		return k.OwnerID < o.OwnerID
	}
	return k.Currency < o.Currency
}

// Account is a single currency balance owned by a user or band.
type Account struct {
	ID        int64     `json:"id"`
	OwnerID   int64     `json:"owner_id"`
	Currency  string    `json:"currency"`
	Balance   int64     `json:"balance_minor"`
	CreatedAt time.Time `json:"created_at"`
}

// Transaction is an immutable record of one money movement.
// SrcAccountID is set when money leaves an account, DestAccountID when it arrives.
type Transaction struct {
	ID            int64     `json:"id"`
	Reference     string    `json:"reference"`
	Kind          Kind      `json:"kind"`
	Amount        int64     `json:"amount_minor"`
	Currency      string    `json:"currency"`
	SrcAccountID  *int64    `json:"src_account_id,omitempty"`
	DestAccountID *int64    `json:"dest_account_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// LedgerEntry ties exactly one balance change to one account and one transaction.
type LedgerEntry struct {
	ID            int64     `json:"id"`
	AccountID     int64     `json:"account_id"`
	TransactionID int64     `json:"transaction_id"`
	Delta         int64     `json:"delta_minor"`
	BalanceAfter  int64     `json:"balance_after_minor"`
	CreatedAt     time.Time `json:"created_at"`
}

// LoanStatus is the lifecycle state of a loan.
type LoanStatus string

const (
	LoanActive LoanStatus = "active"
	LoanRepaid LoanStatus = "repaid"
)

// Loan records borrowed principal and what remains outstanding.
type Loan struct {
	ID           int64           `json:"id"`
	OwnerID      int64           `json:"owner_id"`
	Currency     string          `json:"currency"`
	Principal    int64           `json:"principal_minor"`
	Balance      int64           `json:"balance_minor"`
	InterestRate decimal.Decimal `json:"interest_rate"`
	TermDays     int             `json:"term_days"`
	Status       LoanStatus      `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
}

// InterestAccount is an interest-bearing savings balance.
type InterestAccount struct {
	ID           int64           `json:"id"`
	OwnerID      int64           `json:"owner_id"`
	Balance      int64           `json:"balance_minor"`
	InterestRate decimal.Decimal `json:"interest_rate"`
	Currency     string          `json:"currency"`
	CreatedAt    time.Time       `json:"created_at"`
}

// ExchangeRate converts Base into Target. There is no implicit inverse.
type ExchangeRate struct {
	Base      string          `json:"base_currency"`
	Target    string          `json:"target_currency"`
	Rate      decimal.Decimal `json:"rate"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// TransactionFilter narrows ListTransactions.
type TransactionFilter struct {
	Currency string
	Kind     Kind
	Limit    int
	Offset   int
}

// InterestRun summarises one AccrueDailyInterest sweep.
type InterestRun struct {
	StartedAt     time.Time        `json:"started_at"`
	Accounts      int              `json:"accounts"`
	Credited      int              `json:"credited"`
	TotalInterest map[string]int64 `json:"total_interest"`
	Failed        map[int64]error  `json:"-"`
}
