package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"meishi/internal/credits"
	"meishi/internal/credits/repository"
	"meishi/pkg/filedb"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newService(t *testing.T) *Service {
	t.Helper()
	store, err := filedb.Open(filepath.Join(t.TempDir(), "store.json"))
	if err != nil {
		t.Fatalf("filedb.Open: %v", err)
	}
	return NewService(repository.NewFileCreditsRepository(store))
}

// checkReconciled проверяет главный инвариант леджера.
func checkReconciled(t *testing.T, s *Service, subjectID string) {
	t.Helper()
	ctx := context.Background()

	acct, err := s.Balance(ctx, subjectID, now)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if acct.Balance != acct.TotalEarned-acct.TotalSpent {
		t.Fatalf("balance %d != earned %d - spent %d", acct.Balance, acct.TotalEarned, acct.TotalSpent)
	}

	history, err := s.History(ctx, subjectID, 1)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) == 0 {
		t.Fatal("history is empty")
	}
	latest := history[0]
	if latest.Status == credits.StatusCompleted && latest.BalanceAfter != acct.Balance {
		t.Fatalf("latest balanceAfter %d != balance %d", latest.BalanceAfter, acct.Balance)
	}
}

func TestLedgerReconciliation(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	const sub = "U_reconcile"

	if _, err := s.GetOrCreate(ctx, sub, now); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	checkReconciled(t, s, sub)

	if _, err := s.Consume(ctx, sub, 10, "ai profile", now); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	checkReconciled(t, s, sub)

	if _, err := s.Grant(ctx, sub, 50, "compensation", now); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	checkReconciled(t, s, sub)

	req, err := s.CreateTopupRequest(ctx, sub, 1, "12345", now)
	if err != nil {
		t.Fatalf("CreateTopupRequest: %v", err)
	}
	if _, err := s.ConfirmTopup(ctx, req.ID, "transfer checked", now); err != nil {
		t.Fatalf("ConfirmTopup: %v", err)
	}
	checkReconciled(t, s, sub)

	if _, err := s.Consume(ctx, sub, 25, "ai profile", now); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	checkReconciled(t, s, sub)

	acct, _ := s.Balance(ctx, sub, now)
	want := int64(credits.FreeCredits) - 10 + 50 + credits.TopupPlans[1].TotalPoints() - 25
	if acct.Balance != want {
		t.Errorf("balance = %d, want %d", acct.Balance, want)
	}
}

func TestConsumeInsufficientBalance(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	const sub = "U_poor"

	before, err := s.GetOrCreate(ctx, sub, now)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	_, err = s.Consume(ctx, sub, before.Balance+1, "too much", now)
	if !errors.Is(err, credits.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}

	// Отказ не должен менять состояние
	after, _ := s.Balance(ctx, sub, now)
	if after.Balance != before.Balance || after.TotalSpent != before.TotalSpent {
		t.Errorf("rejected consume mutated state: %+v -> %+v", before, after)
	}

	history, _ := s.History(ctx, sub, 10)
	if len(history) != 1 { // только signup bonus
		t.Errorf("history length = %d, want 1", len(history))
	}
}

func TestConsumeExactBalance(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	const sub = "U_exact"

	acct, _ := s.GetOrCreate(ctx, sub, now)
	balance, err := s.Consume(ctx, sub, acct.Balance, "all in", now)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if balance != 0 {
		t.Errorf("balance = %d, want 0", balance)
	}
}

func TestTopupPendingDoesNotMoveBalance(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	const sub = "U_topup"

	before, _ := s.GetOrCreate(ctx, sub, now)

	req, err := s.CreateTopupRequest(ctx, sub, 0, "98765", now)
	if err != nil {
		t.Fatalf("CreateTopupRequest: %v", err)
	}
	if req.Status != credits.StatusPending || req.Type != credits.TypeTopupPending {
		t.Errorf("request = %s/%s, want pending/topup_pending", req.Status, req.Type)
	}
	if req.Amount != credits.TopupPlans[0].TotalPoints() {
		t.Errorf("amount = %d, want %d", req.Amount, credits.TopupPlans[0].TotalPoints())
	}

	mid, _ := s.Balance(ctx, sub, now)
	if mid.Balance != before.Balance {
		t.Errorf("pending top-up moved balance: %d -> %d", before.Balance, mid.Balance)
	}

	confirmed, err := s.ConfirmTopup(ctx, req.ID, "ok", now)
	if err != nil {
		t.Fatalf("ConfirmTopup: %v", err)
	}
	if confirmed.Type != credits.TypeTopupConfirmed || confirmed.Status != credits.StatusCompleted {
		t.Errorf("confirmed = %s/%s", confirmed.Type, confirmed.Status)
	}

	after, _ := s.Balance(ctx, sub, now)
	if after.Balance != before.Balance+req.Amount {
		t.Errorf("balance = %d, want %d", after.Balance, before.Balance+req.Amount)
	}

	pending, _ := s.ListPending(ctx)
	if len(pending) != 0 {
		t.Errorf("pending queue length = %d, want 0", len(pending))
	}
}

func TestConfirmTopupTwiceRejected(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	const sub = "U_double"

	_, _ = s.GetOrCreate(ctx, sub, now)
	req, _ := s.CreateTopupRequest(ctx, sub, 0, "11111", now)

	if _, err := s.ConfirmTopup(ctx, req.ID, "first", now); err != nil {
		t.Fatalf("first confirm: %v", err)
	}
	balance, _ := s.Balance(ctx, sub, now)

	_, err := s.ConfirmTopup(ctx, req.ID, "second", now)
	if !errors.Is(err, credits.ErrTransactionNotFound) {
		t.Fatalf("second confirm err = %v, want ErrTransactionNotFound", err)
	}

	after, _ := s.Balance(ctx, sub, now)
	if after.Balance != balance.Balance {
		t.Errorf("double confirm credited twice: %d -> %d", balance.Balance, after.Balance)
	}
}

func TestConfirmUnknownTransaction(t *testing.T) {
	s := newService(t)
	_, err := s.ConfirmTopup(context.Background(), "no-such-id", "note", now)
	if !errors.Is(err, credits.ErrTransactionNotFound) {
		t.Fatalf("err = %v, want ErrTransactionNotFound", err)
	}
}

func TestTopupInvalidPlan(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	const sub = "U_plan99"

	_, _ = s.GetOrCreate(ctx, sub, now)

	_, err := s.CreateTopupRequest(ctx, sub, 99, "12345", now)
	if !errors.Is(err, credits.ErrInvalidPlan) {
		t.Fatalf("err = %v, want ErrInvalidPlan", err)
	}

	history, _ := s.History(ctx, sub, 10)
	if len(history) != 1 { // только signup bonus
		t.Errorf("invalid plan appended a transaction: history = %d entries", len(history))
	}
}

func TestSignupBonusIdempotentUnderConcurrency(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	const sub = "U_concurrent"

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.GetOrCreate(ctx, sub, now); err != nil {
				t.Errorf("GetOrCreate: %v", err)
			}
		}()
	}
	wg.Wait()

	acct, err := s.Balance(ctx, sub, now)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if acct.Balance != credits.FreeCredits {
		t.Errorf("balance = %d, want %d", acct.Balance, int64(credits.FreeCredits))
	}

	history, _ := s.History(ctx, sub, 100)
	bonuses := 0
	for _, tr := range history {
		if tr.Type == credits.TypeSignupBonus {
			bonuses++
		}
	}
	if bonuses != 1 {
		t.Errorf("signup bonuses = %d, want exactly 1", bonuses)
	}
}

func TestGrantAlwaysSucceeds(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	// Субъект, который ещё ни разу не заходил
	balance, err := s.Grant(ctx, "U_never_seen", 100, "promo", now)
	if err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if balance != credits.FreeCredits+100 {
		t.Errorf("balance = %d, want %d", balance, int64(credits.FreeCredits)+100)
	}
}

func TestHistoryMostRecentFirst(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	const sub = "U_history"

	_, _ = s.GetOrCreate(ctx, sub, now)
	_, _ = s.Consume(ctx, sub, 5, "first", now.Add(time.Minute))
	_, _ = s.Consume(ctx, sub, 7, "second", now.Add(2*time.Minute))

	history, err := s.History(ctx, sub, 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("history length = %d, want 3", len(history))
	}
	if history[0].Description != "second" || history[1].Description != "first" {
		t.Errorf("history not most-recent-first: %q, %q", history[0].Description, history[1].Description)
	}
	if history[2].Type != credits.TypeSignupBonus {
		t.Errorf("oldest entry = %s, want signup_bonus", history[2].Type)
	}
}
