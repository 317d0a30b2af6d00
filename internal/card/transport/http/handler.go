package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"meishi/internal/card"
	"meishi/internal/card/service"
	"meishi/pkg/middleware"
)

var validate = validator.New()

type Handler struct {
	CardService *service.Service
}

func NewCardHandler(cs *service.Service) *Handler {
	return &Handler{CardService: cs}
}

// Create — POST /api/cards.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	subjectID := middleware.SubjectFromContext(r.Context())
	if subjectID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var draft card.Draft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		http.Error(w, "invalid JSON format: "+err.Error(), http.StatusBadRequest)
		return
	}
	if msg, ok := validateDraft(draft); !ok {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	c, err := h.CardService.Create(r.Context(), subjectID, draft, time.Now())
	if err != nil {
		h.writeCardError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(c)
}

// List — GET /api/cards.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	subjectID := middleware.SubjectFromContext(r.Context())
	if subjectID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	cards, err := h.CardService.List(r.Context(), subjectID)
	if err != nil {
		http.Error(w, "failed to list cards", http.StatusInternalServerError)
		return
	}
	if cards == nil {
		cards = []*card.Card{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"cards": cards})
}

// Get — GET /api/cards/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	subjectID := middleware.SubjectFromContext(r.Context())
	if subjectID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	c, err := h.CardService.Get(r.Context(), subjectID, chi.URLParam(r, "id"))
	if err != nil {
		h.writeCardError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(c)
}

// Update — PUT /api/cards/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	subjectID := middleware.SubjectFromContext(r.Context())
	if subjectID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var draft card.Draft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		http.Error(w, "invalid JSON format: "+err.Error(), http.StatusBadRequest)
		return
	}
	if msg, ok := validateDraft(draft); !ok {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	c, err := h.CardService.Update(r.Context(), subjectID, chi.URLParam(r, "id"), draft, time.Now())
	if err != nil {
		h.writeCardError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(c)
}

// Delete — DELETE /api/cards/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	subjectID := middleware.SubjectFromContext(r.Context())
	if subjectID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.CardService.Delete(r.Context(), subjectID, chi.URLParam(r, "id")); err != nil {
		h.writeCardError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeCardError(w http.ResponseWriter, err error) {
	var qe *service.QuotaError
	switch {
	case errors.As(err, &qe):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error":        "max_cards_reached",
			"currentCount": qe.CurrentCount,
			"limit":        qe.Limit,
		})
	case errors.Is(err, service.ErrPlanExpired):
		writeError(w, http.StatusForbidden, "subscription_expired")
	case errors.Is(err, service.ErrTemplateNotAllowed):
		writeError(w, http.StatusForbidden, "template_not_allowed")
	case errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, service.ErrCardNotFound):
		writeError(w, http.StatusNotFound, "card_not_found")
	case errors.Is(err, service.ErrSlugTaken):
		writeError(w, http.StatusConflict, "slug_taken")
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func validateDraft(d card.Draft) (string, bool) {
	if err := validate.Struct(d); err != nil {
		errMessages := make([]string, 0)
		for _, err := range err.(validator.ValidationErrors) {
			field := strings.ToLower(strings.ReplaceAll(err.Field(), "_", " "))
			if err.Tag() == "required" {
				errMessages = append(errMessages, field+" is required")
			} else {
				errMessages = append(errMessages, field+" is invalid")
			}
		}
		return strings.Join(errMessages, "; "), false
	}
	return "", true
}

func writeError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": code})
}
