package repository

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"meishi/internal/card"
	"meishi/pkg/filedb"
)

const cardsCollection = "cards"

// FileCardRepository хранит карточки в общем файловом сторе. Квота
// атомарна только внутри одного процесса: проверка количества и вставка
// идут под мьютексом стора, межпроцессной блокировки нет.
type FileCardRepository struct {
	store *filedb.Store
}

func NewFileCardRepository(store *filedb.Store) *FileCardRepository {
	return &FileCardRepository{store: store}
}

func (r *FileCardRepository) CreateWithLimit(ctx context.Context, c *card.Card, limit int) (bool, int, error) {
	created := false
	count := 0
	err := r.store.Update(func(tx *filedb.Tx) error {
		count = countByOwner(tx, c.OwnerID)
		if count >= limit {
			return nil
		}
		created = true
		return tx.Put(cardsCollection, c.ID, c)
	})
	if err != nil {
		return false, 0, err
	}
	return created, count, nil
}

func (r *FileCardRepository) Get(ctx context.Context, id string) (*card.Card, error) {
	var c card.Card
	found := false
	err := r.store.View(func(tx *filedb.Tx) error {
		ok, err := tx.Get(cardsCollection, id, &c)
		found = ok
		return err
	})
	if err != nil || !found {
		return nil, err
	}
	return &c, nil
}

func (r *FileCardRepository) GetBySlug(ctx context.Context, slug string) (*card.Card, error) {
	var match *card.Card
	err := r.store.View(func(tx *filedb.Tx) error {
		for _, raw := range tx.All(cardsCollection) {
			var c card.Card
			if err := json.Unmarshal(raw, &c); err != nil {
				return err
			}
			if c.Slug == slug {
				match = &c
				return nil
			}
		}
		return nil
	})
	return match, err
}

func (r *FileCardRepository) ListByOwner(ctx context.Context, ownerID string) ([]*card.Card, error) {
	var cards []*card.Card
	err := r.store.View(func(tx *filedb.Tx) error {
		for _, raw := range tx.All(cardsCollection) {
			var c card.Card
			if err := json.Unmarshal(raw, &c); err != nil {
				return err
			}
			if c.OwnerID == ownerID {
				cards = append(cards, &c)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(cards, func(i, j int) bool { return cards[i].CreatedAt.Before(cards[j].CreatedAt) })
	return cards, nil
}

func (r *FileCardRepository) CountByOwner(ctx context.Context, ownerID string) (int, error) {
	count := 0
	err := r.store.View(func(tx *filedb.Tx) error {
		count = countByOwner(tx, ownerID)
		return nil
	})
	return count, err
}

func (r *FileCardRepository) Update(ctx context.Context, c *card.Card, now time.Time) error {
	c.UpdatedAt = now
	return r.store.Update(func(tx *filedb.Tx) error {
		return tx.Put(cardsCollection, c.ID, c)
	})
}

func (r *FileCardRepository) Delete(ctx context.Context, id string) error {
	return r.store.Update(func(tx *filedb.Tx) error {
		tx.Delete(cardsCollection, id)
		return nil
	})
}

func countByOwner(tx *filedb.Tx, ownerID string) int {
	count := 0
	for _, raw := range tx.All(cardsCollection) {
		var c card.Card
		if err := json.Unmarshal(raw, &c); err != nil {
			continue
		}
		if c.OwnerID == ownerID {
			count++
		}
	}
	return count
}
