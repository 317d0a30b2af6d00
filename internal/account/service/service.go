package service

import (
	"context"
	"errors"
	"time"

	"meishi/internal/account"
	"meishi/internal/entitlement"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrInvalidPlan     = errors.New("invalid plan")
)

type AccountRepository interface {
	GetBySubject(ctx context.Context, subjectID string) (*account.Account, error)
	Create(ctx context.Context, a *account.Account) (bool, error)
	UpdatePlan(ctx context.Context, subjectID string, plan account.Plan, start, expires time.Time, maxCards int, templates []string, now time.Time) error
	TouchLastLogin(ctx context.Context, subjectID string, now time.Time) error
}

type AccountService struct {
	repo AccountRepository
}

func NewAccountService(repo AccountRepository) *AccountService {
	return &AccountService{repo: repo}
}

// GetOrCreate returns the account for a subject, creating a fresh trial
// account on first contact. Safe to call concurrently: the repository insert
// is conditional, and losers of the race re-read the winner's row.
func (s *AccountService) GetOrCreate(ctx context.Context, subjectID string, now time.Time) (*account.Account, error) {
	a, err := s.repo.GetBySubject(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	if a != nil {
		return a, nil
	}

	fresh := account.NewTrial(subjectID, now)
	created, err := s.repo.Create(ctx, fresh)
	if err != nil {
		return nil, err
	}
	if created {
		return fresh, nil
	}

	// Проиграли гонку — читаем созданный параллельным запросом аккаунт
	return s.repo.GetBySubject(ctx, subjectID)
}

// Permissions resolves entitlements for a subject at the given time. A missing
// account yields the signed-out permission set, not an error.
func (s *AccountService) Permissions(ctx context.Context, subjectID string, now time.Time) (entitlement.Permissions, error) {
	a, err := s.repo.GetBySubject(ctx, subjectID)
	if err != nil {
		return entitlement.Permissions{}, err
	}
	return entitlement.Resolve(a, now), nil
}

// Upgrade moves an account to a paid plan for the given number of months.
// Это единственная операция, меняющая план после создания.
func (s *AccountService) Upgrade(ctx context.Context, subjectID string, plan account.Plan, months int, now time.Time) (*account.Account, error) {
	if plan != account.PlanPro && plan != account.PlanEnterprise {
		return nil, ErrInvalidPlan
	}
	if months <= 0 {
		months = 1
	}

	a, err := s.repo.GetBySubject(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ErrAccountNotFound
	}

	expires := now.AddDate(0, months, 0)
	limits := account.LimitsFor(plan)
	if err := s.repo.UpdatePlan(ctx, subjectID, plan, now, expires, limits.MaxCards, limits.Templates, now); err != nil {
		return nil, err
	}

	return s.repo.GetBySubject(ctx, subjectID)
}

func (s *AccountService) TouchLastLogin(ctx context.Context, subjectID string, now time.Time) error {
	return s.repo.TouchLastLogin(ctx, subjectID, now)
}
