package db

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

func Connect(url string) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// Migrate creates the schema. Runs once at process start, before the server
// accepts requests.
func Migrate(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			subject_id TEXT PRIMARY KEY,
			plan TEXT NOT NULL,
			trial_started_at TIMESTAMPTZ,
			trial_expires_at TIMESTAMPTZ,
			subscription_started_at TIMESTAMPTZ,
			subscription_expires_at TIMESTAMPTZ,
			max_cards INT NOT NULL DEFAULT 1,
			allowed_templates TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			last_login_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS credit_accounts (
			subject_id TEXT PRIMARY KEY,
			balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
			total_earned BIGINT NOT NULL DEFAULT 0,
			total_spent BIGINT NOT NULL DEFAULT 0,
			last_used_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS credit_transactions (
			id TEXT PRIMARY KEY,
			seq BIGSERIAL,
			subject_id TEXT NOT NULL,
			type TEXT NOT NULL,
			amount BIGINT NOT NULL,
			balance_after BIGINT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			plan_index INT,
			transfer_amount BIGINT,
			transfer_ref TEXT NOT NULL DEFAULT '',
			admin_note TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			confirmed_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_credit_transactions_subject
			ON credit_transactions (subject_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_credit_transactions_status
			ON credit_transactions (status)`,
		`CREATE TABLE IF NOT EXISTS cards (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			slug TEXT UNIQUE NOT NULL,
			display_name TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			company TEXT NOT NULL DEFAULT '',
			template_id TEXT NOT NULL,
			links JSONB NOT NULL DEFAULT '{}',
			published BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cards_owner ON cards (owner_id)`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
