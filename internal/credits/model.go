package credits

import (
	"errors"
	"time"
)

// FreeCredits — бонус при регистрации кредитного аккаунта.
const FreeCredits = 30

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrTransactionNotFound = errors.New("transaction not found or not pending")
	ErrInvalidPlan         = errors.New("invalid top-up plan")
)

type TransactionType string

const (
	TypeSignupBonus    TransactionType = "signup_bonus"
	TypeAIGeneration   TransactionType = "ai_generation"
	TypeTopupPending   TransactionType = "topup_pending"
	TypeTopupConfirmed TransactionType = "topup_confirmed"
	TypeAdminGrant     TransactionType = "admin_grant"
	TypeRefund         TransactionType = "refund"
)

type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusCancelled TransactionStatus = "cancelled"
)

// CreditAccount держит деривируемые агрегаты леджера.
// Инвариант: Balance == TotalEarned - TotalSpent, Balance >= 0.
type CreditAccount struct {
	SubjectID   string     `json:"subject_id"`
	Balance     int64      `json:"balance"`
	TotalEarned int64      `json:"total_earned"`
	TotalSpent  int64      `json:"total_spent"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Transaction — append-only запись леджера. После status=completed запись не
// меняется; pending переводится в completed ровно один раз.
type Transaction struct {
	ID           string            `json:"id"`
	Seq          int64             `json:"seq"`
	SubjectID    string            `json:"subject_id"`
	Type         TransactionType   `json:"type"`
	Amount       int64             `json:"amount"` // отрицательный для списаний
	BalanceAfter int64             `json:"balance_after"`
	Description  string            `json:"description,omitempty"`

	// Метаданные top-up запроса
	PlanIndex      *int   `json:"plan_index,omitempty"`
	TransferAmount *int64 `json:"transfer_amount,omitempty"`
	TransferRef    string `json:"transfer_ref,omitempty"` // последние 5 цифр перевода

	AdminNote   string            `json:"admin_note,omitempty"`
	Status      TransactionStatus `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
	ConfirmedAt *time.Time        `json:"confirmed_at,omitempty"`
}

// TopupPlan — фиксированный тарифный план пополнения (банковский перевод,
// подтверждается оператором вручную).
type TopupPlan struct {
	Points      int64  `json:"points"`
	Price       int64  `json:"price"` // йены
	BonusPoints int64  `json:"bonus_points"`
	Label       string `json:"label"`
}

func (p TopupPlan) TotalPoints() int64 {
	return p.Points + p.BonusPoints
}

var TopupPlans = []TopupPlan{
	{Points: 100, Price: 980, BonusPoints: 0, Label: "Light"},
	{Points: 300, Price: 2480, BonusPoints: 30, Label: "Standard"},
	{Points: 1000, Price: 7800, BonusPoints: 200, Label: "Business"},
}

// TopupPlanAt validates a plan index against the fixed list.
func TopupPlanAt(i int) (TopupPlan, bool) {
	if i < 0 || i >= len(TopupPlans) {
		return TopupPlan{}, false
	}
	return TopupPlans[i], true
}
