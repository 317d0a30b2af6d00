package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"meishi/internal/credits"
	"meishi/pkg/filedb"

	"github.com/google/uuid"
)

const (
	accountsCollection     = "credit_accounts"
	transactionsCollection = "credit_transactions"
	metaCollection         = "meta"
	seqKey                 = "credit_tx_seq"
)

// FileCreditsRepository хранит леджер во встроенном файловом сторе. Мутации
// атомарны только в пределах одного процесса (мьютекс стора); для нескольких
// инстансов использовать postgres-бэкенд.
type FileCreditsRepository struct {
	store *filedb.Store
}

func NewFileCreditsRepository(store *filedb.Store) *FileCreditsRepository {
	return &FileCreditsRepository{store: store}
}

func (r *FileCreditsRepository) GetOrCreate(ctx context.Context, subjectID string, bonus int64, now time.Time) (*credits.CreditAccount, bool, error) {
	var acct credits.CreditAccount
	created := false

	err := r.store.Update(func(tx *filedb.Tx) error {
		found, err := tx.Get(accountsCollection, subjectID, &acct)
		if err != nil {
			return err
		}
		if found {
			return nil
		}

		created = true
		acct = credits.CreditAccount{
			SubjectID:   subjectID,
			Balance:     bonus,
			TotalEarned: bonus,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.Put(accountsCollection, subjectID, &acct); err != nil {
			return err
		}

		return appendTransaction(tx, &credits.Transaction{
			ID:           uuid.NewString(),
			SubjectID:    subjectID,
			Type:         credits.TypeSignupBonus,
			Amount:       bonus,
			BalanceAfter: bonus,
			Description:  "signup bonus",
			Status:       credits.StatusCompleted,
			CreatedAt:    now,
		})
	})
	if err != nil {
		return nil, false, err
	}
	return &acct, created, nil
}

func (r *FileCreditsRepository) Get(_ context.Context, subjectID string) (*credits.CreditAccount, error) {
	var acct credits.CreditAccount
	var found bool
	err := r.store.View(func(tx *filedb.Tx) error {
		var err error
		found, err = tx.Get(accountsCollection, subjectID, &acct)
		return err
	})
	if err != nil || !found {
		return nil, err
	}
	return &acct, nil
}

func (r *FileCreditsRepository) Consume(_ context.Context, subjectID string, amount int64, description string, now time.Time) (*credits.Transaction, error) {
	var out *credits.Transaction
	err := r.store.Update(func(tx *filedb.Tx) error {
		acct, err := getAccount(tx, subjectID)
		if err != nil {
			return err
		}
		if acct.Balance < amount {
			// Отказ без побочных эффектов
			return credits.ErrInsufficientBalance
		}

		acct.Balance -= amount
		acct.TotalSpent += amount
		acct.LastUsedAt = &now
		acct.UpdatedAt = now
		if err := tx.Put(accountsCollection, subjectID, acct); err != nil {
			return err
		}

		out = &credits.Transaction{
			ID:           uuid.NewString(),
			SubjectID:    subjectID,
			Type:         credits.TypeAIGeneration,
			Amount:       -amount,
			BalanceAfter: acct.Balance,
			Description:  description,
			Status:       credits.StatusCompleted,
			CreatedAt:    now,
		}
		return appendTransaction(tx, out)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *FileCreditsRepository) Credit(_ context.Context, subjectID string, amount int64, typ credits.TransactionType, note string, now time.Time) (*credits.Transaction, error) {
	var out *credits.Transaction
	err := r.store.Update(func(tx *filedb.Tx) error {
		acct, err := getAccount(tx, subjectID)
		if err != nil {
			return err
		}

		acct.Balance += amount
		acct.TotalEarned += amount
		acct.UpdatedAt = now
		if err := tx.Put(accountsCollection, subjectID, acct); err != nil {
			return err
		}

		out = &credits.Transaction{
			ID:           uuid.NewString(),
			SubjectID:    subjectID,
			Type:         typ,
			Amount:       amount,
			BalanceAfter: acct.Balance,
			AdminNote:    note,
			Status:       credits.StatusCompleted,
			CreatedAt:    now,
		}
		return appendTransaction(tx, out)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *FileCreditsRepository) AppendPending(_ context.Context, t *credits.Transaction) error {
	return r.store.Update(func(tx *filedb.Tx) error {
		return appendTransaction(tx, t)
	})
}

func (r *FileCreditsRepository) ConfirmPending(_ context.Context, id, note string, now time.Time) (*credits.Transaction, error) {
	var out credits.Transaction
	err := r.store.Update(func(tx *filedb.Tx) error {
		found, err := tx.Get(transactionsCollection, id, &out)
		if err != nil {
			return err
		}
		// Second confirmation of the same id must not double-credit
		if !found || out.Status != credits.StatusPending || out.Type != credits.TypeTopupPending {
			return credits.ErrTransactionNotFound
		}

		acct, err := getAccount(tx, out.SubjectID)
		if err != nil {
			return err
		}

		acct.Balance += out.Amount
		acct.TotalEarned += out.Amount
		acct.UpdatedAt = now
		if err := tx.Put(accountsCollection, acct.SubjectID, acct); err != nil {
			return err
		}

		out.Type = credits.TypeTopupConfirmed
		out.Status = credits.StatusCompleted
		out.BalanceAfter = acct.Balance
		out.AdminNote = note
		out.ConfirmedAt = &now
		return tx.Put(transactionsCollection, id, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *FileCreditsRepository) ListPending(_ context.Context) ([]*credits.Transaction, error) {
	var out []*credits.Transaction
	err := r.store.View(func(tx *filedb.Tx) error {
		all, err := decodeTransactions(tx.All(transactionsCollection))
		if err != nil {
			return err
		}
		for _, t := range all {
			if t.Status == credits.StatusPending {
				out = append(out, t)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
		return nil
	})
	return out, err
}

func (r *FileCreditsRepository) History(_ context.Context, subjectID string, limit int) ([]*credits.Transaction, error) {
	var out []*credits.Transaction
	err := r.store.View(func(tx *filedb.Tx) error {
		all, err := decodeTransactions(tx.All(transactionsCollection))
		if err != nil {
			return err
		}
		for _, t := range all {
			if t.SubjectID == subjectID {
				out = append(out, t)
			}
		}
		// Свежие первыми
		sort.Slice(out, func(i, j int) bool { return out[i].Seq > out[j].Seq })
		if limit > 0 && len(out) > limit {
			out = out[:limit]
		}
		return nil
	})
	return out, err
}

func getAccount(tx *filedb.Tx, subjectID string) (*credits.CreditAccount, error) {
	var acct credits.CreditAccount
	found, err := tx.Get(accountsCollection, subjectID, &acct)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("credit account %s does not exist", subjectID)
	}
	return &acct, nil
}

// appendTransaction присваивает следующий seq и пишет запись.
func appendTransaction(tx *filedb.Tx, t *credits.Transaction) error {
	var seq int64
	if _, err := tx.Get(metaCollection, seqKey, &seq); err != nil {
		return err
	}
	seq++
	if err := tx.Put(metaCollection, seqKey, seq); err != nil {
		return err
	}
	t.Seq = seq
	return tx.Put(transactionsCollection, t.ID, t)
}

func decodeTransactions(raw []json.RawMessage) ([]*credits.Transaction, error) {
	out := make([]*credits.Transaction, 0, len(raw))
	for _, doc := range raw {
		t := &credits.Transaction{}
		if err := json.Unmarshal(doc, t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
