package service

import (
	"context"
	"errors"
	"time"

	"meishi/internal/credits"
	"meishi/internal/metrics"

	"github.com/google/uuid"
)

var ErrInvalidAmount = errors.New("amount must be positive")

type CreditsRepository interface {
	GetOrCreate(ctx context.Context, subjectID string, bonus int64, now time.Time) (*credits.CreditAccount, bool, error)
	Get(ctx context.Context, subjectID string) (*credits.CreditAccount, error)
	Consume(ctx context.Context, subjectID string, amount int64, description string, now time.Time) (*credits.Transaction, error)
	Credit(ctx context.Context, subjectID string, amount int64, typ credits.TransactionType, note string, now time.Time) (*credits.Transaction, error)
	AppendPending(ctx context.Context, t *credits.Transaction) error
	ConfirmPending(ctx context.Context, id, note string, now time.Time) (*credits.Transaction, error)
	ListPending(ctx context.Context) ([]*credits.Transaction, error)
	History(ctx context.Context, subjectID string, limit int) ([]*credits.Transaction, error)
}

type Service struct {
	repo CreditsRepository
}

func NewService(repo CreditsRepository) *Service {
	return &Service{repo: repo}
}

// GetOrCreate returns the subject's credit account, creating it with the
// signup bonus on first contact. At most one bonus per subject, ever.
func (s *Service) GetOrCreate(ctx context.Context, subjectID string, now time.Time) (*credits.CreditAccount, error) {
	acct, _, err := s.repo.GetOrCreate(ctx, subjectID, credits.FreeCredits, now)
	return acct, err
}

// Consume списывает баллы за платную операцию. При нехватке баланса состояние
// не меняется.
func (s *Service) Consume(ctx context.Context, subjectID string, amount int64, description string, now time.Time) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if _, err := s.GetOrCreate(ctx, subjectID, now); err != nil {
		return 0, err
	}

	t, err := s.repo.Consume(ctx, subjectID, amount, description, now)
	if err != nil {
		if errors.Is(err, credits.ErrInsufficientBalance) {
			metrics.CreditsConsumeRejected.Inc()
		}
		return 0, err
	}

	metrics.CreditsConsumedTotal.Add(float64(amount))
	return t.BalanceAfter, nil
}

// CreateTopupRequest validates the plan index and appends a pending
// transaction. The balance is untouched until an operator confirms.
func (s *Service) CreateTopupRequest(ctx context.Context, subjectID string, planIndex int, last5Digits string, now time.Time) (*credits.Transaction, error) {
	plan, ok := credits.TopupPlanAt(planIndex)
	if !ok {
		return nil, credits.ErrInvalidPlan
	}

	acct, err := s.GetOrCreate(ctx, subjectID, now)
	if err != nil {
		return nil, err
	}

	idx := planIndex
	price := plan.Price
	t := &credits.Transaction{
		ID:             uuid.NewString(),
		SubjectID:      subjectID,
		Type:           credits.TypeTopupPending,
		Amount:         plan.TotalPoints(),
		BalanceAfter:   acct.Balance, // pending не двигает баланс
		Description:    "top-up: " + plan.Label,
		PlanIndex:      &idx,
		TransferAmount: &price,
		TransferRef:    last5Digits,
		Status:         credits.StatusPending,
		CreatedAt:      now,
	}

	if err := s.repo.AppendPending(ctx, t); err != nil {
		return nil, err
	}

	metrics.TopupsRequestedTotal.Inc()
	return t, nil
}

// ConfirmTopup is invoked by an operator after checking the bank transfer.
// Only a pending transaction can be confirmed; a second call for the same id
// returns ErrTransactionNotFound instead of double-crediting.
func (s *Service) ConfirmTopup(ctx context.Context, transactionID, note string, now time.Time) (*credits.Transaction, error) {
	t, err := s.repo.ConfirmPending(ctx, transactionID, note, now)
	if err != nil {
		return nil, err
	}
	metrics.TopupsConfirmedTotal.Inc()
	return t, nil
}

// Grant — безусловное ручное зачисление оператором.
func (s *Service) Grant(ctx context.Context, subjectID string, amount int64, note string, now time.Time) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if _, err := s.GetOrCreate(ctx, subjectID, now); err != nil {
		return 0, err
	}

	t, err := s.repo.Credit(ctx, subjectID, amount, credits.TypeAdminGrant, note, now)
	if err != nil {
		return 0, err
	}
	return t.BalanceAfter, nil
}

// Refund возвращает баллы после неудачной платной операции.
func (s *Service) Refund(ctx context.Context, subjectID string, amount int64, note string, now time.Time) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	t, err := s.repo.Credit(ctx, subjectID, amount, credits.TypeRefund, note, now)
	if err != nil {
		return 0, err
	}
	return t.BalanceAfter, nil
}

func (s *Service) ListPending(ctx context.Context) ([]*credits.Transaction, error) {
	return s.repo.ListPending(ctx)
}

func (s *Service) History(ctx context.Context, subjectID string, limit int) ([]*credits.Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.History(ctx, subjectID, limit)
}

func (s *Service) Balance(ctx context.Context, subjectID string, now time.Time) (*credits.CreditAccount, error) {
	return s.GetOrCreate(ctx, subjectID, now)
}
