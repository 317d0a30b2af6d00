package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"meishi/internal/card"
	"meishi/internal/entitlement"
	"meishi/internal/metrics"
)

var (
	ErrCardNotFound       = errors.New("card not found")
	ErrForbidden          = errors.New("forbidden")
	ErrSlugTaken          = errors.New("slug already taken")
	ErrTemplateNotAllowed = errors.New("template not allowed on current plan")
	ErrPlanExpired        = errors.New("subscription expired")
)

// QuotaError возвращается, когда у владельца исчерпан лимит карточек.
type QuotaError struct {
	CurrentCount int
	Limit        int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("max cards reached: %d of %d", e.CurrentCount, e.Limit)
}

type CardRepository interface {
	CreateWithLimit(ctx context.Context, c *card.Card, limit int) (bool, int, error)
	Get(ctx context.Context, id string) (*card.Card, error)
	GetBySlug(ctx context.Context, slug string) (*card.Card, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*card.Card, error)
	CountByOwner(ctx context.Context, ownerID string) (int, error)
	Update(ctx context.Context, c *card.Card, now time.Time) error
	Delete(ctx context.Context, id string) error
}

// PermissionsResolver отдаёт текущие права субъекта.
type PermissionsResolver interface {
	Permissions(ctx context.Context, subjectID string, now time.Time) (entitlement.Permissions, error)
}

type Service struct {
	repo        CardRepository
	permissions PermissionsResolver
}

func NewService(repo CardRepository, permissions PermissionsResolver) *Service {
	return &Service{repo: repo, permissions: permissions}
}

// Create проверяет права и квоту и создаёт карточку. Квота навязывается
// в репозитории атомарно, поэтому параллельные запросы не пробивают лимит.
func (s *Service) Create(ctx context.Context, ownerID string, draft card.Draft, now time.Time) (*card.Card, error) {
	perms, err := s.permissions.Permissions(ctx, ownerID, now)
	if err != nil {
		return nil, err
	}
	if !perms.CanCreateNew {
		return nil, ErrPlanExpired
	}
	if !perms.CanUseTemplate(draft.TemplateID) {
		return nil, ErrTemplateNotAllowed
	}

	if existing, err := s.repo.GetBySlug(ctx, draft.Slug); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, ErrSlugTaken
	}

	c := &card.Card{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Slug:        draft.Slug,
		DisplayName: draft.DisplayName,
		Title:       draft.Title,
		Company:     draft.Company,
		TemplateID:  draft.TemplateID,
		Links:       draft.Links,
		Published:   draft.Published,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	created, count, err := s.repo.CreateWithLimit(ctx, c, perms.MaxCards)
	if err != nil {
		if errors.Is(err, card.ErrDuplicateSlug) {
			return nil, ErrSlugTaken
		}
		return nil, err
	}
	if !created {
		metrics.CardQuotaRejected.Inc()
		return nil, &QuotaError{CurrentCount: count, Limit: perms.MaxCards}
	}

	metrics.CardsCreatedTotal.Inc()
	return c, nil
}

func (s *Service) List(ctx context.Context, ownerID string) ([]*card.Card, error) {
	return s.repo.ListByOwner(ctx, ownerID)
}

func (s *Service) Get(ctx context.Context, ownerID, id string) (*card.Card, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrCardNotFound
	}
	if c.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	return c, nil
}

func (s *Service) Update(ctx context.Context, ownerID, id string, draft card.Draft, now time.Time) (*card.Card, error) {
	c, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	perms, err := s.permissions.Permissions(ctx, ownerID, now)
	if err != nil {
		return nil, err
	}
	if !perms.CanEdit {
		return nil, ErrPlanExpired
	}
	if draft.TemplateID != c.TemplateID && !perms.CanUseTemplate(draft.TemplateID) {
		return nil, ErrTemplateNotAllowed
	}

	if draft.Slug != c.Slug {
		if existing, err := s.repo.GetBySlug(ctx, draft.Slug); err != nil {
			return nil, err
		} else if existing != nil {
			return nil, ErrSlugTaken
		}
	}

	c.Slug = draft.Slug
	c.DisplayName = draft.DisplayName
	c.Title = draft.Title
	c.Company = draft.Company
	c.TemplateID = draft.TemplateID
	c.Links = draft.Links
	c.Published = draft.Published
	c.UpdatedAt = now

	if err := s.repo.Update(ctx, c, now); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	if _, err := s.Get(ctx, ownerID, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}
