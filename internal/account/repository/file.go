package repository

import (
	"context"
	"time"

	"meishi/internal/account"
	"meishi/pkg/filedb"
)

const accountsCollection = "accounts"

// FileAccountRepository хранит аккаунты во встроенном файловом сторе.
// Только для одиночного инстанса.
type FileAccountRepository struct {
	store *filedb.Store
}

func NewFileAccountRepository(store *filedb.Store) *FileAccountRepository {
	return &FileAccountRepository{store: store}
}

func (r *FileAccountRepository) GetBySubject(_ context.Context, subjectID string) (*account.Account, error) {
	var a account.Account
	var found bool

	err := r.store.View(func(tx *filedb.Tx) error {
		var err error
		found, err = tx.Get(accountsCollection, subjectID, &a)
		return err
	})
	if err != nil || !found {
		return nil, err
	}
	return &a, nil
}

func (r *FileAccountRepository) Create(_ context.Context, a *account.Account) (bool, error) {
	created := false
	err := r.store.Update(func(tx *filedb.Tx) error {
		var existing account.Account
		found, err := tx.Get(accountsCollection, a.SubjectID, &existing)
		if err != nil {
			return err
		}
		if found {
			return nil
		}
		created = true
		return tx.Put(accountsCollection, a.SubjectID, a)
	})
	return created, err
}

func (r *FileAccountRepository) UpdatePlan(_ context.Context, subjectID string, plan account.Plan, start, expires time.Time, maxCards int, templates []string, now time.Time) error {
	return r.store.Update(func(tx *filedb.Tx) error {
		var a account.Account
		found, err := tx.Get(accountsCollection, subjectID, &a)
		if err != nil {
			return err
		}
		if !found {
			return nil
		}
		a.Plan = plan
		a.SubscriptionStartedAt = &start
		a.SubscriptionExpiresAt = &expires
		a.MaxCards = maxCards
		a.AllowedTemplates = templates
		a.UpdatedAt = now
		return tx.Put(accountsCollection, subjectID, &a)
	})
}

func (r *FileAccountRepository) TouchLastLogin(_ context.Context, subjectID string, now time.Time) error {
	return r.store.Update(func(tx *filedb.Tx) error {
		var a account.Account
		found, err := tx.Get(accountsCollection, subjectID, &a)
		if err != nil {
			return err
		}
		if !found {
			return nil
		}
		a.LastLoginAt = &now
		a.UpdatedAt = now
		return tx.Put(accountsCollection, subjectID, &a)
	})
}
