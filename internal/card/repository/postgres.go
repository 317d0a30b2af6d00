package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"meishi/internal/card"
)

type PostgresCardRepository struct {
	db *sql.DB
}

func NewPostgresCardRepository(db *sql.DB) *PostgresCardRepository {
	return &PostgresCardRepository{db: db}
}

const cardColumns = `id, owner_id, slug, display_name, title, company, template_id, links, published, created_at, updated_at`

// CreateWithLimit вставляет карточку, только если у владельца ещё есть квота.
// Строка владельца в accounts блокируется FOR UPDATE, так что две параллельные
// вставки сериализуются и лимит не пробивается.
func (r *PostgresCardRepository) CreateWithLimit(ctx context.Context, c *card.Card, limit int) (bool, int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var subjectID string
	err = tx.QueryRowContext(ctx,
		`SELECT subject_id FROM accounts WHERE subject_id = $1 FOR UPDATE`,
		c.OwnerID,
	).Scan(&subjectID)
	if err != nil {
		return false, 0, fmt.Errorf("lock owner account: %w", err)
	}

	links, err := json.Marshal(c.Links)
	if err != nil {
		return false, 0, fmt.Errorf("marshal links: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO cards (id, owner_id, slug, display_name, title, company, template_id, links, published, created_at, updated_at)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10
		WHERE (SELECT COUNT(*) FROM cards WHERE owner_id = $2) < $11`,
		c.ID, c.OwnerID, c.Slug, c.DisplayName, c.Title, c.Company,
		c.TemplateID, links, c.Published, c.CreatedAt, limit,
	)
	if err != nil {
		// Гонка двух запросов за один slug решается уникальным индексом
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return false, 0, card.ErrDuplicateSlug
		}
		return false, 0, fmt.Errorf("insert card: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, 0, err
	}
	if affected == 0 {
		var count int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM cards WHERE owner_id = $1`, c.OwnerID,
		).Scan(&count); err != nil {
			return false, 0, err
		}
		if err := tx.Commit(); err != nil {
			return false, 0, err
		}
		return false, count, nil
	}

	if err := tx.Commit(); err != nil {
		return false, 0, fmt.Errorf("commit tx: %w", err)
	}
	return true, 0, nil
}

func (r *PostgresCardRepository) Get(ctx context.Context, id string) (*card.Card, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+cardColumns+` FROM cards WHERE id = $1`, id)
	return scanCard(row)
}

func (r *PostgresCardRepository) GetBySlug(ctx context.Context, slug string) (*card.Card, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+cardColumns+` FROM cards WHERE slug = $1`, slug)
	return scanCard(row)
}

func (r *PostgresCardRepository) ListByOwner(ctx context.Context, ownerID string) ([]*card.Card, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+cardColumns+` FROM cards WHERE owner_id = $1 ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cards []*card.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

func (r *PostgresCardRepository) CountByOwner(ctx context.Context, ownerID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM cards WHERE owner_id = $1`, ownerID).Scan(&count)
	return count, err
}

func (r *PostgresCardRepository) Update(ctx context.Context, c *card.Card, now time.Time) error {
	links, err := json.Marshal(c.Links)
	if err != nil {
		return fmt.Errorf("marshal links: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		UPDATE cards
		SET slug = $2, display_name = $3, title = $4, company = $5,
		    template_id = $6, links = $7, published = $8, updated_at = $9
		WHERE id = $1`,
		c.ID, c.Slug, c.DisplayName, c.Title, c.Company, c.TemplateID, links, c.Published, now,
	)
	return err
}

func (r *PostgresCardRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM cards WHERE id = $1`, id)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCard(row rowScanner) (*card.Card, error) {
	var c card.Card
	var links []byte
	err := row.Scan(&c.ID, &c.OwnerID, &c.Slug, &c.DisplayName, &c.Title,
		&c.Company, &c.TemplateID, &links, &c.Published, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(links) > 0 {
		if err := json.Unmarshal(links, &c.Links); err != nil {
			return nil, fmt.Errorf("unmarshal links: %w", err)
		}
	}
	return &c, nil
}
