package entitlement

import (
	"testing"
	"time"

	"meishi/internal/account"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func trialAccount(expires time.Time) *account.Account {
	a := account.NewTrial("U1", now.Add(-24*time.Hour))
	a.TrialExpiresAt = &expires
	return a
}

func paidAccount(plan account.Plan, expires *time.Time) *account.Account {
	limits := account.LimitsFor(plan)
	return &account.Account{
		SubjectID:             "U1",
		Plan:                  plan,
		SubscriptionExpiresAt: expires,
		MaxCards:              limits.MaxCards,
		AllowedTemplates:      limits.Templates,
	}
}

func TestResolveNilAccount(t *testing.T) {
	p := Resolve(nil, now)

	if p.Status != StatusNone {
		t.Errorf("status = %q, want none", p.Status)
	}
	if p.CanEdit || p.CanCreateNew || p.CanViewAnalytics {
		t.Error("nil account must have no rights")
	}
	if p.CanUseTemplate("standard") {
		t.Error("nil account must not use templates")
	}
	if p.Message == "" {
		t.Error("nil account should get a sign-in message")
	}
}

func TestResolveTrialExpiredOneSecondAgo(t *testing.T) {
	p := Resolve(trialAccount(now.Add(-time.Second)), now)

	if p.Status != StatusExpired {
		t.Errorf("status = %q, want expired", p.Status)
	}
	if p.CanEdit {
		t.Error("expired trial must not edit")
	}
	if p.CanCreateNew || p.CanViewAnalytics {
		t.Error("expired trial must have no create/analytics rights")
	}
	if p.DaysRemaining == nil || *p.DaysRemaining != 0 {
		t.Errorf("daysRemaining = %v, want 0", p.DaysRemaining)
	}
	if p.Message == "" {
		t.Error("expired trial should carry an expiry message")
	}
}

func TestResolveTrialTwoDaysLeft(t *testing.T) {
	p := Resolve(trialAccount(now.Add(48*time.Hour)), now)

	if p.Status != StatusTrial {
		t.Errorf("status = %q, want trial", p.Status)
	}
	if !p.CanEdit || !p.CanCreateNew || !p.CanViewAnalytics {
		t.Error("active trial must have full rights")
	}
	if p.DaysRemaining == nil || *p.DaysRemaining != 2 {
		t.Errorf("daysRemaining = %v, want 2", p.DaysRemaining)
	}
	if p.Message != "" {
		t.Errorf("no urgency message expected at 2 days, got %q", p.Message)
	}
	if !p.CanUseTemplate("standard") {
		t.Error("trial should allow the standard template")
	}
	if p.CanUseTemplate("premium") {
		t.Error("trial must not allow the premium template")
	}
}

func TestResolveTrialFractionOfDayRoundsUp(t *testing.T) {
	p := Resolve(trialAccount(now.Add(90*time.Minute)), now)

	if p.DaysRemaining == nil || *p.DaysRemaining != 1 {
		t.Errorf("daysRemaining = %v, want 1 (ceiling)", p.DaysRemaining)
	}
	if p.Message == "" {
		t.Error("last trial day should carry a message")
	}
}

func TestResolveProThreeDaysLeft(t *testing.T) {
	expires := now.Add(72 * time.Hour)
	p := Resolve(paidAccount(account.PlanPro, &expires), now)

	if p.Status != StatusActive {
		t.Errorf("status = %q, want active", p.Status)
	}
	if p.DaysRemaining == nil || *p.DaysRemaining != 3 {
		t.Errorf("daysRemaining = %v, want 3", p.DaysRemaining)
	}
	if p.Message == "" {
		t.Error("message expected inside the 7-day window")
	}
	if !p.CanUseTemplate("premium") {
		t.Error("pro should allow the premium template")
	}
}

func TestResolveProExpiredKeepsAnalytics(t *testing.T) {
	expires := now.Add(-time.Hour)
	p := Resolve(paidAccount(account.PlanPro, &expires), now)

	if p.Status != StatusExpired {
		t.Errorf("status = %q, want expired", p.Status)
	}
	if p.CanEdit || p.CanCreateNew {
		t.Error("expired subscription must not edit or create")
	}
	if !p.CanViewAnalytics {
		t.Error("expired subscription keeps read-only analytics")
	}
	if p.CanUseTemplate("standard") {
		t.Error("expired subscription must not use templates")
	}
}

func TestResolveEnterpriseWithoutExpiryIsUnbounded(t *testing.T) {
	p := Resolve(paidAccount(account.PlanEnterprise, nil), now)

	if p.Status != StatusActive {
		t.Errorf("status = %q, want active", p.Status)
	}
	if p.DaysRemaining == nil || *p.DaysRemaining != 999 {
		t.Errorf("daysRemaining = %v, want 999", p.DaysRemaining)
	}
	if p.Message != "" {
		t.Errorf("no message expected for unbounded subscription, got %q", p.Message)
	}
}

func TestResolveLapsedFreePlan(t *testing.T) {
	a := &account.Account{SubjectID: "U1", Plan: account.PlanFree, MaxCards: 3}
	p := Resolve(a, now)

	if p.Status != StatusExpired {
		t.Errorf("status = %q, want expired", p.Status)
	}
	if p.MaxCards != 0 {
		t.Errorf("maxCards = %d, want 0 for a lapsed plan", p.MaxCards)
	}
	if p.CanEdit || p.CanCreateNew || p.CanViewAnalytics {
		t.Error("lapsed plan must have no rights")
	}
}

func TestResolveIsDeterministic(t *testing.T) {
	a := trialAccount(now.Add(48 * time.Hour))
	first := Resolve(a, now)
	for i := 0; i < 5; i++ {
		p := Resolve(a, now)
		if p.Status != first.Status || *p.DaysRemaining != *first.DaysRemaining {
			t.Fatal("Resolve must be deterministic for the same inputs")
		}
	}
}
