package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"meishi/internal/credits"
	"meishi/internal/credits/service"
	"meishi/pkg/middleware"
)

type Handler struct {
	CreditsService *service.Service
}

func NewCreditsHandler(cs *service.Service) *Handler {
	return &Handler{CreditsService: cs}
}

// GetBalance — GET /api/credits. Баланс плюс последние транзакции.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	subjectID := middleware.SubjectFromContext(r.Context())
	if subjectID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}

	acct, err := h.CreditsService.GetOrCreate(r.Context(), subjectID, time.Now())
	if err != nil {
		http.Error(w, "failed to load credits", http.StatusInternalServerError)
		return
	}
	history, err := h.CreditsService.History(r.Context(), subjectID, limit)
	if err != nil {
		http.Error(w, "failed to load history", http.StatusInternalServerError)
		return
	}

	resp := map[string]interface{}{
		"balance":      acct.Balance,
		"total_earned": acct.TotalEarned,
		"total_spent":  acct.TotalSpent,
		"transactions": history,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (h *Handler) Consume(w http.ResponseWriter, r *http.Request) {
	subjectID := middleware.SubjectFromContext(r.Context())
	if subjectID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Amount      int64  `json:"amount"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	balance, err := h.CreditsService.Consume(r.Context(), subjectID, req.Amount, req.Description, time.Now())
	if err != nil {
		switch {
		case errors.Is(err, credits.ErrInsufficientBalance):
			writeJSONError(w, http.StatusPaymentRequired, "insufficient_balance")
		case errors.Is(err, service.ErrInvalidAmount):
			writeJSONError(w, http.StatusBadRequest, "invalid_amount")
		default:
			http.Error(w, "failed to consume credits", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int64{"balance": balance})
}

// CreateTopup — POST /api/credits/topup. Заявка на пополнение банковским переводом.
func (h *Handler) CreateTopup(w http.ResponseWriter, r *http.Request) {
	subjectID := middleware.SubjectFromContext(r.Context())
	if subjectID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		PlanIndex   int    `json:"plan_index"`
		Last5Digits string `json:"last5_digits"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	t, err := h.CreditsService.CreateTopupRequest(r.Context(), subjectID, req.PlanIndex, req.Last5Digits, time.Now())
	if err != nil {
		if errors.Is(err, credits.ErrInvalidPlan) {
			writeJSONError(w, http.StatusBadRequest, "invalid_plan")
			return
		}
		http.Error(w, "failed to create top-up request", http.StatusInternalServerError)
		return
	}

	plan, _ := credits.TopupPlanAt(req.PlanIndex)
	resp := map[string]interface{}{
		"transaction_id": t.ID,
		"plan":           plan.Label,
		"amount":         t.Amount,
		"price_yen":      plan.Price,
		"message":        "Top-up request accepted. Wait for confirmation.",
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(resp)
}

// ListPlans — GET /api/credits/plans, публичный прайс-лист.
func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	type planView struct {
		Index       int    `json:"index"`
		Label       string `json:"label"`
		Points      int64  `json:"points"`
		BonusPoints int64  `json:"bonus_points"`
		Total       int64  `json:"total_points"`
		PriceYen    int64  `json:"price_yen"`
	}
	plans := make([]planView, 0, len(credits.TopupPlans))
	for i, p := range credits.TopupPlans {
		plans = append(plans, planView{
			Index:       i,
			Label:       p.Label,
			Points:      p.Points,
			BonusPoints: p.BonusPoints,
			Total:       p.TotalPoints(),
			PriceYen:    p.Price,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"plans": plans})
}

// ListPendingTopups — GET /admin/topups/pending (оператор).
func (h *Handler) ListPendingTopups(w http.ResponseWriter, r *http.Request) {
	pending, err := h.CreditsService.ListPending(r.Context())
	if err != nil {
		http.Error(w, "failed to list pending top-ups", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"pending": pending})
}

// ConfirmTopup — POST /admin/topups/{id}/confirm (оператор).
func (h *Handler) ConfirmTopup(w http.ResponseWriter, r *http.Request) {
	transactionID := chi.URLParam(r, "id")

	var req struct {
		Note string `json:"note"`
	}
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}

	t, err := h.CreditsService.ConfirmTopup(r.Context(), transactionID, req.Note, time.Now())
	if err != nil {
		if errors.Is(err, credits.ErrTransactionNotFound) {
			writeJSONError(w, http.StatusNotFound, "transaction_not_found")
			return
		}
		http.Error(w, "failed to confirm top-up", http.StatusInternalServerError)
		return
	}

	resp := map[string]interface{}{
		"transaction_id": t.ID,
		"subject_id":     t.SubjectID,
		"amount":         t.Amount,
		"balance_after":  t.BalanceAfter,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// Grant — POST /admin/credits/grant (оператор).
func (h *Handler) Grant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SubjectID string `json:"subject_id"`
		Amount    int64  `json:"amount"`
		Note      string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.SubjectID == "" {
		writeJSONError(w, http.StatusBadRequest, "subject_id required")
		return
	}

	balance, err := h.CreditsService.Grant(r.Context(), req.SubjectID, req.Amount, req.Note, time.Now())
	if err != nil {
		if errors.Is(err, service.ErrInvalidAmount) {
			writeJSONError(w, http.StatusBadRequest, "invalid_amount")
			return
		}
		http.Error(w, "failed to grant credits", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int64{"balance": balance})
}

func writeJSONError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": code})
}
