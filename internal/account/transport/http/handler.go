package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"meishi/internal/account"
	"meishi/internal/account/service"
	creditsservice "meishi/internal/credits/service"
	"meishi/internal/identity"
	"meishi/pkg/middleware"
	"meishi/pkg/token"
)

type Handler struct {
	AccountService *service.AccountService
	CreditsService *creditsservice.Service
	Verifier       identity.Verifier
	Issuer         *token.Issuer
}

func NewAccountHandler(as *service.AccountService, cs *creditsservice.Service, verifier identity.Verifier, issuer *token.Issuer) *Handler {
	return &Handler{
		AccountService: as,
		CreditsService: cs,
		Verifier:       verifier,
		Issuer:         issuer,
	}
}

// Login — POST /auth/login. Проверяет id-токен внешнего провайдера,
// заводит аккаунт и кредитный счёт при первом входе и выдаёт сессию.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDToken string `json:"id_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.IDToken == "" {
		http.Error(w, "id_token required", http.StatusBadRequest)
		return
	}

	subjectID, err := h.Verifier.Verify(r.Context(), req.IDToken)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidIdentity) {
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		http.Error(w, "identity provider unavailable", http.StatusBadGateway)
		return
	}

	now := time.Now()
	a, err := h.AccountService.GetOrCreate(r.Context(), subjectID, now)
	if err != nil {
		http.Error(w, "failed to load account", http.StatusInternalServerError)
		return
	}
	if _, err := h.CreditsService.GetOrCreate(r.Context(), subjectID, now); err != nil {
		http.Error(w, "failed to load credits", http.StatusInternalServerError)
		return
	}
	if err := h.AccountService.TouchLastLogin(r.Context(), subjectID, now); err != nil {
		http.Error(w, "failed to update account", http.StatusInternalServerError)
		return
	}

	session, err := h.Issuer.Issue(subjectID, now)
	if err != nil {
		http.Error(w, "token error", http.StatusInternalServerError)
		return
	}

	resp := map[string]interface{}{
		"subject_id": subjectID,
		"plan":       a.Plan,
		"token":      session,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// Permissions — GET /api/permissions. Права пересчитываются на каждый запрос.
func (h *Handler) Permissions(w http.ResponseWriter, r *http.Request) {
	subjectID := middleware.SubjectFromContext(r.Context())
	if subjectID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	perms, err := h.AccountService.Permissions(r.Context(), subjectID, time.Now())
	if err != nil {
		http.Error(w, "failed to resolve permissions", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(perms)
}

// Upgrade — POST /admin/accounts/{subjectID}/upgrade (оператор).
func (h *Handler) Upgrade(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "subjectID")

	var req struct {
		Plan   string `json:"plan"`
		Months int    `json:"months"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Months <= 0 {
		req.Months = 1
	}

	a, err := h.AccountService.Upgrade(r.Context(), subjectID, account.Plan(req.Plan), req.Months, time.Now())
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidPlan):
			http.Error(w, "invalid plan", http.StatusBadRequest)
		case errors.Is(err, service.ErrAccountNotFound):
			http.Error(w, "account not found", http.StatusNotFound)
		default:
			http.Error(w, "failed to upgrade account", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(a)
}
