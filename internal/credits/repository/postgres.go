package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"meishi/internal/credits"

	"github.com/google/uuid"
)

// PostgresCreditsRepository выполняет каждую мутацию леджера одной
// транзакцией с блокировкой строки аккаунта (SELECT ... FOR UPDATE), поэтому
// конкурентные запросы не теряют обновления и BalanceAfter всегда считается
// под блокировкой.
type PostgresCreditsRepository struct {
	db *sql.DB
}

func NewPostgresCreditsRepository(db *sql.DB) *PostgresCreditsRepository {
	return &PostgresCreditsRepository{db: db}
}

func (r *PostgresCreditsRepository) GetOrCreate(ctx context.Context, subjectID string, bonus int64, now time.Time) (*credits.CreditAccount, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO credit_accounts (subject_id, balance, total_earned, total_spent, created_at, updated_at)
		 VALUES ($1, $2, $2, 0, $3, $3)
		 ON CONFLICT (subject_id) DO NOTHING`,
		subjectID, bonus, now)
	if err != nil {
		return nil, false, err
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}

	// Бонус за регистрацию пишет только победитель гонки — ровно один раз
	if inserted == 1 {
		if err := insertTransaction(ctx, tx, &credits.Transaction{
			ID:           uuid.NewString(),
			SubjectID:    subjectID,
			Type:         credits.TypeSignupBonus,
			Amount:       bonus,
			BalanceAfter: bonus,
			Description:  "signup bonus",
			Status:       credits.StatusCompleted,
			CreatedAt:    now,
		}); err != nil {
			return nil, false, err
		}
	}

	acct, err := scanAccount(tx.QueryRowContext(ctx,
		`SELECT subject_id, balance, total_earned, total_spent, last_used_at, created_at, updated_at
		 FROM credit_accounts WHERE subject_id = $1`, subjectID))
	if err != nil {
		return nil, false, err
	}

	return acct, inserted == 1, tx.Commit()
}

func (r *PostgresCreditsRepository) Get(ctx context.Context, subjectID string) (*credits.CreditAccount, error) {
	acct, err := scanAccount(r.db.QueryRowContext(ctx,
		`SELECT subject_id, balance, total_earned, total_spent, last_used_at, created_at, updated_at
		 FROM credit_accounts WHERE subject_id = $1`, subjectID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return acct, err
}

func (r *PostgresCreditsRepository) Consume(ctx context.Context, subjectID string, amount int64, description string, now time.Time) (*credits.Transaction, error) {
	var out *credits.Transaction
	err := r.withAccountLock(ctx, subjectID, func(tx *sql.Tx, acct *credits.CreditAccount) error {
		if acct.Balance < amount {
			return credits.ErrInsufficientBalance
		}

		newBalance := acct.Balance - amount
		_, err := tx.ExecContext(ctx,
			`UPDATE credit_accounts
			 SET balance = $1, total_spent = total_spent + $2, last_used_at = $3, updated_at = $3
			 WHERE subject_id = $4`,
			newBalance, amount, now, subjectID)
		if err != nil {
			return err
		}

		out = &credits.Transaction{
			ID:           uuid.NewString(),
			SubjectID:    subjectID,
			Type:         credits.TypeAIGeneration,
			Amount:       -amount,
			BalanceAfter: newBalance,
			Description:  description,
			Status:       credits.StatusCompleted,
			CreatedAt:    now,
		}
		return insertTransaction(ctx, tx, out)
	})
	return out, err
}

func (r *PostgresCreditsRepository) Credit(ctx context.Context, subjectID string, amount int64, typ credits.TransactionType, note string, now time.Time) (*credits.Transaction, error) {
	var out *credits.Transaction
	err := r.withAccountLock(ctx, subjectID, func(tx *sql.Tx, acct *credits.CreditAccount) error {
		newBalance := acct.Balance + amount
		_, err := tx.ExecContext(ctx,
			`UPDATE credit_accounts
			 SET balance = $1, total_earned = total_earned + $2, updated_at = $3
			 WHERE subject_id = $4`,
			newBalance, amount, now, subjectID)
		if err != nil {
			return err
		}

		out = &credits.Transaction{
			ID:           uuid.NewString(),
			SubjectID:    subjectID,
			Type:         typ,
			Amount:       amount,
			BalanceAfter: newBalance,
			AdminNote:    note,
			Status:       credits.StatusCompleted,
			CreatedAt:    now,
		}
		return insertTransaction(ctx, tx, out)
	})
	return out, err
}

// AppendPending записывает top-up запрос; баланс не меняется.
func (r *PostgresCreditsRepository) AppendPending(ctx context.Context, t *credits.Transaction) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := insertTransaction(ctx, tx, t); err != nil {
		return err
	}
	return tx.Commit()
}

// ConfirmPending переводит pending top-up в completed и зачисляет баллы.
// Повторное подтверждение того же id отвергается: строка уже не pending.
func (r *PostgresCreditsRepository) ConfirmPending(ctx context.Context, id, note string, now time.Time) (*credits.Transaction, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	t := &credits.Transaction{}
	err = tx.QueryRowContext(ctx,
		`SELECT id, seq, subject_id, type, amount, balance_after, description,
		        plan_index, transfer_amount, transfer_ref, admin_note, status, created_at, confirmed_at
		 FROM credit_transactions
		 WHERE id = $1 AND status = $2 AND type = $3
		 FOR UPDATE`,
		id, credits.StatusPending, credits.TypeTopupPending).Scan(
		&t.ID, &t.Seq, &t.SubjectID, &t.Type, &t.Amount, &t.BalanceAfter, &t.Description,
		&t.PlanIndex, &t.TransferAmount, &t.TransferRef, &t.AdminNote, &t.Status, &t.CreatedAt, &t.ConfirmedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, credits.ErrTransactionNotFound
		}
		return nil, err
	}

	var newBalance int64
	err = tx.QueryRowContext(ctx,
		`UPDATE credit_accounts
		 SET balance = balance + $1, total_earned = total_earned + $1, updated_at = $2
		 WHERE subject_id = $3
		 RETURNING balance`,
		t.Amount, now, t.SubjectID).Scan(&newBalance)
	if err != nil {
		return nil, err
	}

	t.Type = credits.TypeTopupConfirmed
	t.Status = credits.StatusCompleted
	t.BalanceAfter = newBalance
	t.AdminNote = note
	t.ConfirmedAt = &now

	_, err = tx.ExecContext(ctx,
		`UPDATE credit_transactions
		 SET type = $1, status = $2, balance_after = $3, admin_note = $4, confirmed_at = $5
		 WHERE id = $6`,
		t.Type, t.Status, t.BalanceAfter, t.AdminNote, now, id)
	if err != nil {
		return nil, err
	}

	return t, tx.Commit()
}

func (r *PostgresCreditsRepository) ListPending(ctx context.Context) ([]*credits.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, seq, subject_id, type, amount, balance_after, description,
		        plan_index, transfer_amount, transfer_ref, admin_note, status, created_at, confirmed_at
		 FROM credit_transactions
		 WHERE status = $1
		 ORDER BY seq ASC`,
		credits.StatusPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTransactions(rows)
}

func (r *PostgresCreditsRepository) History(ctx context.Context, subjectID string, limit int) ([]*credits.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, seq, subject_id, type, amount, balance_after, description,
		        plan_index, transfer_amount, transfer_ref, admin_note, status, created_at, confirmed_at
		 FROM credit_transactions
		 WHERE subject_id = $1
		 ORDER BY seq DESC
		 LIMIT $2`,
		subjectID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTransactions(rows)
}

// withAccountLock выполняет fn под блокировкой строки кредитного аккаунта.
func (r *PostgresCreditsRepository) withAccountLock(ctx context.Context, subjectID string, fn func(tx *sql.Tx, acct *credits.CreditAccount) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	acct, err := scanAccount(tx.QueryRowContext(ctx,
		`SELECT subject_id, balance, total_earned, total_spent, last_used_at, created_at, updated_at
		 FROM credit_accounts WHERE subject_id = $1 FOR UPDATE`, subjectID))
	if err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("credit account %s does not exist", subjectID)
		}
		return err
	}

	if err := fn(tx, acct); err != nil {
		return err
	}
	return tx.Commit()
}

func insertTransaction(ctx context.Context, tx *sql.Tx, t *credits.Transaction) error {
	return tx.QueryRowContext(ctx,
		`INSERT INTO credit_transactions
		 (id, subject_id, type, amount, balance_after, description,
		  plan_index, transfer_amount, transfer_ref, admin_note, status, created_at, confirmed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING seq`,
		t.ID, t.SubjectID, t.Type, t.Amount, t.BalanceAfter, t.Description,
		t.PlanIndex, t.TransferAmount, t.TransferRef, t.AdminNote, t.Status, t.CreatedAt, t.ConfirmedAt).
		Scan(&t.Seq)
}

func scanAccount(row *sql.Row) (*credits.CreditAccount, error) {
	a := &credits.CreditAccount{}
	err := row.Scan(&a.SubjectID, &a.Balance, &a.TotalEarned, &a.TotalSpent, &a.LastUsedAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func scanTransactions(rows *sql.Rows) ([]*credits.Transaction, error) {
	var out []*credits.Transaction
	for rows.Next() {
		t := &credits.Transaction{}
		err := rows.Scan(&t.ID, &t.Seq, &t.SubjectID, &t.Type, &t.Amount, &t.BalanceAfter, &t.Description,
			&t.PlanIndex, &t.TransferAmount, &t.TransferRef, &t.AdminNote, &t.Status, &t.CreatedAt, &t.ConfirmedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
