package postgres

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id BIGSERIAL PRIMARY KEY,
		owner_id BIGINT NOT NULL,
		currency TEXT NOT NULL,
		balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (owner_id, currency)
	);`,

	`CREATE TABLE IF NOT EXISTS transactions (
		id BIGSERIAL PRIMARY KEY,
		reference UUID NOT NULL UNIQUE,
		kind TEXT NOT NULL CHECK (kind IN ('deposit', 'withdrawal', 'transfer', 'loan', 'interest', 'purchase', 'royalty', 'gig', 'recording')),
		amount BIGINT NOT NULL CHECK (amount >= 0),
		currency TEXT NOT NULL,
		src_account_id BIGINT REFERENCES accounts(id) ON DELETE RESTRICT,
		dest_account_id BIGINT REFERENCES accounts(id) ON DELETE RESTRICT,
		created_at TIMESTAMPTZ NOT NULL,
		CHECK (kind <> 'transfer' OR (src_account_id IS NOT NULL AND dest_account_id IS NOT NULL))
	);`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_src ON transactions(src_account_id);`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_dest ON transactions(dest_account_id);`,

	`CREATE TABLE IF NOT EXISTS ledger_entries (
		id BIGSERIAL PRIMARY KEY,
		account_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE RESTRICT,
		transaction_id BIGINT NOT NULL REFERENCES transactions(id) ON DELETE RESTRICT,
		delta BIGINT NOT NULL,
		balance_after BIGINT NOT NULL CHECK (balance_after >= 0),
		created_at TIMESTAMPTZ NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_entries_account ON ledger_entries(account_id, id);`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_entries_transaction ON ledger_entries(transaction_id);`,

	`CREATE TABLE IF NOT EXISTS loans (
		id BIGSERIAL PRIMARY KEY,
		owner_id BIGINT NOT NULL,
		currency TEXT NOT NULL,
		principal BIGINT NOT NULL CHECK (principal > 0),
		balance BIGINT NOT NULL CHECK (balance >= 0),
		interest_rate NUMERIC NOT NULL CHECK (interest_rate > 0),
		term_days INTEGER NOT NULL CHECK (term_days > 0),
		status TEXT NOT NULL CHECK (status IN ('active', 'repaid')),
		created_at TIMESTAMPTZ NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_loans_owner ON loans(owner_id);`,

	`CREATE TABLE IF NOT EXISTS interest_accounts (
		id BIGSERIAL PRIMARY KEY,
		owner_id BIGINT NOT NULL,
		balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
		interest_rate NUMERIC NOT NULL CHECK (interest_rate > 0),
		currency TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);`,

	`CREATE TABLE IF NOT EXISTS exchange_rates (
		base_currency TEXT NOT NULL,
		target_currency TEXT NOT NULL,
		rate NUMERIC NOT NULL CHECK (rate > 0),
		updated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (base_currency, target_currency)
	);`,
	`ALTER TABLE loans ALTER COLUMN interest_rate TYPE NUMERIC;`,
	`ALTER TABLE interest_accounts ALTER COLUMN interest_rate TYPE NUMERIC;`,
	`ALTER TABLE exchange_rates ALTER COLUMN rate TYPE NUMERIC;`,

	`CREATE OR REPLACE FUNCTION reject_history_change() RETURNS trigger AS $$
	BEGIN
		RAISE EXCEPTION '% is append-only', TG_TABLE_NAME;
	END;
	$$ LANGUAGE plpgsql;`,
	`DROP TRIGGER IF EXISTS transactions_append_only ON transactions;`,
	`CREATE TRIGGER transactions_append_only BEFORE UPDATE OR DELETE ON transactions
		FOR EACH ROW EXECUTE FUNCTION reject_history_change();`,
	`DROP TRIGGER IF EXISTS ledger_entries_append_only ON ledger_entries;`,
	`CREATE TRIGGER ledger_entries_append_only BEFORE UPDATE OR DELETE ON ledger_entries
		FOR EACH ROW EXECUTE FUNCTION reject_history_change();`,
	`DROP TRIGGER IF EXISTS accounts_no_delete ON accounts;`,
	`CREATE TRIGGER accounts_no_delete BEFORE DELETE ON accounts
		FOR EACH ROW EXECUTE FUNCTION reject_history_change();`,
}
