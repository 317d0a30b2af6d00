package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"meishi/internal/account"
	"meishi/internal/account/repository"
	"meishi/internal/entitlement"
	"meishi/pkg/filedb"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) *AccountService {
	t.Helper()
	store, err := filedb.Open(filepath.Join(t.TempDir(), "store.json"))
	if err != nil {
		t.Fatalf("filedb.Open: %v", err)
	}
	return NewAccountService(repository.NewFileAccountRepository(store))
}

func TestGetOrCreateStartsTrial(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	a, err := s.GetOrCreate(ctx, "U1", now)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if a.Plan != account.PlanTrial {
		t.Errorf("plan = %s, want trial", a.Plan)
	}
	if a.TrialExpiresAt == nil || !a.TrialExpiresAt.Equal(now.Add(account.TrialDuration)) {
		t.Errorf("trial expiry = %v, want %v", a.TrialExpiresAt, now.Add(account.TrialDuration))
	}
	if a.MaxCards != 3 {
		t.Errorf("max cards = %d, want 3", a.MaxCards)
	}

	// Повторный вызов не заводит новый триал
	later := now.Add(48 * time.Hour)
	again, err := s.GetOrCreate(ctx, "U1", later)
	if err != nil {
		t.Fatalf("GetOrCreate again: %v", err)
	}
	if !again.TrialExpiresAt.Equal(*a.TrialExpiresAt) {
		t.Errorf("trial expiry moved: %v -> %v", a.TrialExpiresAt, again.TrialExpiresAt)
	}
}

func TestGetOrCreateConcurrent(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	accounts := make([]*account.Account, 8)
	for i := range accounts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, err := s.GetOrCreate(ctx, "U1", now)
			if err != nil {
				t.Errorf("GetOrCreate: %v", err)
				return
			}
			accounts[i] = a
		}(i)
	}
	wg.Wait()

	for i, a := range accounts {
		if a == nil || a.SubjectID != "U1" {
			t.Fatalf("accounts[%d] = %+v", i, a)
		}
	}
}

func TestPermissionsForUnknownSubject(t *testing.T) {
	s := newTestService(t)

	perms, err := s.Permissions(context.Background(), "ghost", now)
	if err != nil {
		t.Fatalf("Permissions: %v", err)
	}
	if perms.Status != entitlement.StatusNone || perms.CanEdit || perms.CanCreateNew {
		t.Errorf("unexpected permissions for unknown subject: %+v", perms)
	}
}

func TestUpgradeToProExtendsRights(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	if _, err := s.GetOrCreate(ctx, "U1", now); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	a, err := s.Upgrade(ctx, "U1", account.PlanPro, 3, now)
	if err != nil {
		t.Fatalf("Upgrade: %v", err)
	}
	if a.Plan != account.PlanPro || a.MaxCards != 10 {
		t.Errorf("upgraded account = %s/%d, want pro/10", a.Plan, a.MaxCards)
	}
	if a.SubscriptionExpiresAt == nil || !a.SubscriptionExpiresAt.Equal(now.AddDate(0, 3, 0)) {
		t.Errorf("subscription expiry = %v, want %v", a.SubscriptionExpiresAt, now.AddDate(0, 3, 0))
	}

	perms, _ := s.Permissions(ctx, "U1", now)
	if perms.Status != entitlement.StatusActive || !perms.CanUseTemplate("premium") {
		t.Errorf("post-upgrade permissions: %+v", perms)
	}
}

func TestUpgradeValidation(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	if _, err := s.Upgrade(ctx, "U1", account.PlanTrial, 1, now); !errors.Is(err, ErrInvalidPlan) {
		t.Errorf("upgrade to trial err = %v, want ErrInvalidPlan", err)
	}
	if _, err := s.Upgrade(ctx, "ghost", account.PlanPro, 1, now); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("upgrade unknown err = %v, want ErrAccountNotFound", err)
	}
}

func TestTouchLastLogin(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	if _, err := s.GetOrCreate(ctx, "U1", now); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	later := now.Add(time.Hour)
	if err := s.TouchLastLogin(ctx, "U1", later); err != nil {
		t.Fatalf("TouchLastLogin: %v", err)
	}

	a, _ := s.GetOrCreate(ctx, "U1", later)
	if a.LastLoginAt == nil || !a.LastLoginAt.Equal(later) {
		t.Errorf("last login = %v, want %v", a.LastLoginAt, later)
	}
}
