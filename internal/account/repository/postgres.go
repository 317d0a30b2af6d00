package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"meishi/internal/account"
)

type PostgresAccountRepository struct {
	db *sql.DB
}

func NewPostgresAccountRepository(db *sql.DB) *PostgresAccountRepository {
	return &PostgresAccountRepository{db: db}
}

const accountColumns = `subject_id, plan, trial_started_at, trial_expires_at,
	subscription_started_at, subscription_expires_at, max_cards,
	allowed_templates, created_at, updated_at, last_login_at`

func (r *PostgresAccountRepository) GetBySubject(ctx context.Context, subjectID string) (*account.Account, error) {
	a := &account.Account{}
	var templates string

	err := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE subject_id = $1`,
		subjectID).Scan(
		&a.SubjectID,
		&a.Plan,
		&a.TrialStartedAt,
		&a.TrialExpiresAt,
		&a.SubscriptionStartedAt,
		&a.SubscriptionExpiresAt,
		&a.MaxCards,
		&templates,
		&a.CreatedAt,
		&a.UpdatedAt,
		&a.LastLoginAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	a.AllowedTemplates = splitTemplates(templates)
	return a, nil
}

// Create inserts the account if it does not exist yet. Returns false when a
// concurrent request created it first.
func (r *PostgresAccountRepository) Create(ctx context.Context, a *account.Account) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (subject_id, plan, trial_started_at, trial_expires_at,
			max_cards, allowed_templates, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		 ON CONFLICT (subject_id) DO NOTHING`,
		a.SubjectID, a.Plan, a.TrialStartedAt, a.TrialExpiresAt,
		a.MaxCards, strings.Join(a.AllowedTemplates, ","), a.CreatedAt)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *PostgresAccountRepository) UpdatePlan(ctx context.Context, subjectID string, plan account.Plan, start, expires time.Time, maxCards int, templates []string, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE accounts
		 SET plan = $1, subscription_started_at = $2, subscription_expires_at = $3,
		     max_cards = $4, allowed_templates = $5, updated_at = $6
		 WHERE subject_id = $7`,
		plan, start, expires, maxCards, strings.Join(templates, ","), now, subjectID)
	return err
}

func (r *PostgresAccountRepository) TouchLastLogin(ctx context.Context, subjectID string, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET last_login_at = $1, updated_at = $1 WHERE subject_id = $2`,
		now, subjectID)
	return err
}

func splitTemplates(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
