// Package entitlement derives the permission set for an account at a point in
// time. Resolution is pure: no storage access, no side effects, recomputed on
// every read.
package entitlement

import (
	"fmt"
	"time"

	"meishi/internal/account"
)

type Status string

const (
	StatusNone    Status = "none"
	StatusTrial   Status = "trial"
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
)

// unboundedDays используется, когда у платного плана не задан срок окончания.
const unboundedDays = 999

type Permissions struct {
	CanEdit          bool         `json:"can_edit"`
	CanCreateNew     bool         `json:"can_create_new"`
	CanViewAnalytics bool         `json:"can_view_analytics"`
	MaxCards         int          `json:"max_cards"`
	Plan             account.Plan `json:"plan,omitempty"`
	Status           Status       `json:"status"`
	Message          string       `json:"message,omitempty"`
	DaysRemaining    *int         `json:"days_remaining,omitempty"`

	allowedTemplates map[string]bool
}

// CanUseTemplate reports whether the template id is available to the account.
func (p Permissions) CanUseTemplate(id string) bool {
	return p.allowedTemplates[id]
}

// Resolve computes permissions from the persisted account record and "now".
func Resolve(a *account.Account, now time.Time) Permissions {
	if a == nil {
		return Permissions{
			Status:  StatusNone,
			Message: "Sign in to create and edit cards.",
		}
	}

	switch a.Plan {
	case account.PlanTrial:
		return resolveTrial(a, now)
	case account.PlanPro, account.PlanEnterprise:
		return resolveSubscription(a, now)
	default:
		// Триал закончился, апгрейда не было
		return Permissions{
			Status: StatusExpired,
			Plan:   a.Plan,
		}
	}
}

func resolveTrial(a *account.Account, now time.Time) Permissions {
	if a.TrialExpiresAt != nil && now.After(*a.TrialExpiresAt) {
		zero := 0
		return Permissions{
			Status:        StatusExpired,
			Plan:          a.Plan,
			DaysRemaining: &zero,
			Message:       fmt.Sprintf("Your trial expired %s. Upgrade to keep editing.", daysAgo(now.Sub(*a.TrialExpiresAt))),
		}
	}

	days := unboundedDays
	if a.TrialExpiresAt != nil {
		days = ceilDays(a.TrialExpiresAt.Sub(now))
	}

	p := Permissions{
		CanEdit:          true,
		CanCreateNew:     true,
		CanViewAnalytics: true,
		MaxCards:         a.MaxCards,
		Plan:             a.Plan,
		Status:           StatusTrial,
		DaysRemaining:    &days,
		allowedTemplates: templateSet(a.AllowedTemplates),
	}
	if days <= 1 {
		p.Message = "Your trial ends today. Upgrade to keep your cards editable."
	}
	return p
}

func resolveSubscription(a *account.Account, now time.Time) Permissions {
	if a.SubscriptionExpiresAt != nil && now.After(*a.SubscriptionExpiresAt) {
		zero := 0
		return Permissions{
			// Просмотр аналитики остаётся после окончания подписки
			CanViewAnalytics: true,
			Status:           StatusExpired,
			Plan:             a.Plan,
			DaysRemaining:    &zero,
			Message:          "Your subscription has expired. Renew to keep editing; analytics stays available.",
		}
	}

	days := unboundedDays
	if a.SubscriptionExpiresAt != nil {
		days = ceilDays(a.SubscriptionExpiresAt.Sub(now))
	}

	p := Permissions{
		CanEdit:          true,
		CanCreateNew:     true,
		CanViewAnalytics: true,
		MaxCards:         a.MaxCards,
		Plan:             a.Plan,
		Status:           StatusActive,
		DaysRemaining:    &days,
		allowedTemplates: templateSet(a.AllowedTemplates),
	}
	if days <= 7 {
		p.Message = fmt.Sprintf("Your subscription expires in %d day(s).", days)
	}
	return p
}

// ceilDays rounds a remaining duration up to whole days, so any remaining
// fraction of a day still reads as "1 day left", never "0".
func ceilDays(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	days := int(d / (24 * time.Hour))
	if d%(24*time.Hour) != 0 {
		days++
	}
	return days
}

func daysAgo(d time.Duration) string {
	days := int(d / (24 * time.Hour))
	if days == 0 {
		return "today"
	}
	if days == 1 {
		return "1 day ago"
	}
	return fmt.Sprintf("%d days ago", days)
}

func templateSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
