package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"meishi/internal/aigen"
	"meishi/internal/credits"
	"meishi/pkg/middleware"
)

type Handler struct {
	AIService *aigen.Service
}

func NewAIHandler(s *aigen.Service) *Handler {
	return &Handler{AIService: s}
}

// Generate — POST /api/ai/generate. Платная операция, списывает баллы.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	subjectID := middleware.SubjectFromContext(r.Context())
	if subjectID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Prompt string `json:"prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	text, balance, err := h.AIService.GenerateProfile(r.Context(), subjectID, req.Prompt, time.Now())
	if err != nil {
		switch {
		case errors.Is(err, credits.ErrInsufficientBalance):
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusPaymentRequired)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"error":   "insufficient_balance",
				"message": "Not enough points. Top up to keep using AI generation.",
				"cost":    h.AIService.Cost(),
			})
		case errors.Is(err, aigen.ErrEmptyPrompt):
			http.Error(w, "prompt required", http.StatusBadRequest)
		default:
			http.Error(w, "generation failed", http.StatusBadGateway)
		}
		return
	}

	resp := map[string]interface{}{
		"text":    text,
		"balance": balance,
		"cost":    h.AIService.Cost(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
