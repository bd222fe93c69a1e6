package sqlite

// schema is applied by Migrate. Statements are idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		owner_id INTEGER NOT NULL,
		currency TEXT NOT NULL,
		balance INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
		created_at TIMESTAMP NOT NULL,
		UNIQUE (owner_id, currency)
	)`,

	`CREATE TABLE IF NOT EXISTS transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		reference TEXT NOT NULL UNIQUE,
		kind TEXT NOT NULL CHECK (kind IN ('deposit', 'withdrawal', 'transfer', 'loan', 'interest', 'purchase', 'royalty', 'gig', 'recording')),
		amount INTEGER NOT NULL CHECK (amount >= 0),
		currency TEXT NOT NULL,
		src_account_id INTEGER REFERENCES accounts(id),
		dest_account_id INTEGER REFERENCES accounts(id),
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_src ON transactions(src_account_id)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_dest ON transactions(dest_account_id)`,

	`CREATE TABLE IF NOT EXISTS ledger_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id INTEGER NOT NULL REFERENCES accounts(id),
		transaction_id INTEGER NOT NULL REFERENCES transactions(id),
		delta INTEGER NOT NULL,
		balance_after INTEGER NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_entries_account ON ledger_entries(account_id, id)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_entries_transaction ON ledger_entries(transaction_id)`,

	`CREATE TABLE IF NOT EXISTS loans (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		owner_id INTEGER NOT NULL,
		currency TEXT NOT NULL,
		principal INTEGER NOT NULL CHECK (principal > 0),
		balance INTEGER NOT NULL CHECK (balance >= 0),
		interest_rate TEXT NOT NULL,
		term_days INTEGER NOT NULL CHECK (term_days > 0),
		status TEXT NOT NULL CHECK (status IN ('active', 'repaid')),
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_loans_owner ON loans(owner_id)`,

	`CREATE TABLE IF NOT EXISTS interest_accounts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		owner_id INTEGER NOT NULL,
		balance INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
		interest_rate TEXT NOT NULL,
		currency TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS exchange_rates (
		base_currency TEXT NOT NULL,
		target_currency TEXT NOT NULL,
		rate TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (base_currency, target_currency)
	)`,

	`CREATE TRIGGER IF NOT EXISTS transactions_no_update BEFORE UPDATE ON transactions
	BEGIN SELECT RAISE(ABORT, 'transactions are append-only'); END`,
	`CREATE TRIGGER IF NOT EXISTS transactions_no_delete BEFORE DELETE ON transactions
	BEGIN SELECT RAISE(ABORT, 'transactions are append-only'); END`,
	`CREATE TRIGGER IF NOT EXISTS ledger_entries_no_update BEFORE UPDATE ON ledger_entries
	BEGIN SELECT RAISE(ABORT, 'ledger entries are append-only'); END`,
	`CREATE TRIGGER IF NOT EXISTS ledger_entries_no_delete BEFORE DELETE ON ledger_entries
	BEGIN SELECT RAISE(ABORT, 'ledger entries are append-only'); END`,
	`CREATE TRIGGER IF NOT EXISTS accounts_no_delete BEFORE DELETE ON accounts
	BEGIN SELECT RAISE(ABORT, 'accounts are never deleted'); END`,
}
