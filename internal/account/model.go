package account

import "time"

type Plan string

const (
	PlanTrial      Plan = "trial"
	PlanFree       Plan = "free"
	PlanPro        Plan = "pro"
	PlanEnterprise Plan = "enterprise"
)

// TrialDuration — длительность пробного периода для новых аккаунтов.
const TrialDuration = 7 * 24 * time.Hour

type Account struct {
	SubjectID             string     `json:"subject_id"`
	Plan                  Plan       `json:"plan"`
	TrialStartedAt        *time.Time `json:"trial_started_at,omitempty"`
	TrialExpiresAt        *time.Time `json:"trial_expires_at,omitempty"`
	SubscriptionStartedAt *time.Time `json:"subscription_started_at,omitempty"`
	SubscriptionExpiresAt *time.Time `json:"subscription_expires_at,omitempty"`
	MaxCards              int        `json:"max_cards"`
	AllowedTemplates      []string   `json:"allowed_templates"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
	LastLoginAt           *time.Time `json:"last_login_at,omitempty"`
}

// PlanLimits — лимиты и доступные шаблоны по тарифам.
type PlanLimits struct {
	MaxCards  int
	Templates []string
}

var planLimits = map[Plan]PlanLimits{
	PlanTrial:      {MaxCards: 3, Templates: []string{"standard", "minimal", "classic"}},
	PlanPro:        {MaxCards: 10, Templates: []string{"standard", "minimal", "classic", "gradient", "premium"}},
	PlanEnterprise: {MaxCards: 100, Templates: []string{"standard", "minimal", "classic", "gradient", "premium", "corporate"}},
}

// LimitsFor returns the limits for a plan. Unknown plans (including lapsed
// "free") get a zero quota.
func LimitsFor(p Plan) PlanLimits {
	if l, ok := planLimits[p]; ok {
		return l
	}
	return PlanLimits{}
}

// NewTrial makes the account record created on first authenticated contact.
func NewTrial(subjectID string, now time.Time) *Account {
	expires := now.Add(TrialDuration)
	limits := LimitsFor(PlanTrial)
	return &Account{
		SubjectID:        subjectID,
		Plan:             PlanTrial,
		TrialStartedAt:   &now,
		TrialExpiresAt:   &expires,
		MaxCards:         limits.MaxCards,
		AllowedTemplates: limits.Templates,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}
