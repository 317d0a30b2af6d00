package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"meishi/internal/account"
	"meishi/internal/card/repository"
	"meishi/internal/card/service"
	"meishi/internal/entitlement"
	"meishi/pkg/filedb"
	"meishi/pkg/middleware"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type trialResolver struct{}

func (trialResolver) Permissions(ctx context.Context, subjectID string, at time.Time) (entitlement.Permissions, error) {
	return entitlement.Resolve(account.NewTrial(subjectID, at), at), nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	store, err := filedb.Open(filepath.Join(t.TempDir(), "store.json"))
	if err != nil {
		t.Fatalf("filedb.Open: %v", err)
	}
	h := NewCardHandler(service.NewService(repository.NewFileCardRepository(store), trialResolver{}))

	r := chi.NewRouter()
	r.Post("/api/cards", h.Create)
	r.Get("/api/cards", h.List)
	r.Get("/api/cards/{id}", h.Get)
	r.Put("/api/cards/{id}", h.Update)
	r.Delete("/api/cards/{id}", h.Delete)
	return r
}

func doJSON(t *testing.T, router http.Handler, method, path, subjectID, body string) *httptest.ResponseRecorder {
	t.Helper()
	var buf *bytes.Buffer
	if body == "" {
		buf = bytes.NewBuffer(nil)
	} else {
		buf = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, buf)
	if subjectID != "" {
		req = req.WithContext(context.WithValue(req.Context(), middleware.SubjectKey, subjectID))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func cardBody(slug string) string {
	return fmt.Sprintf(`{"slug": %q, "display_name": "Hanako Yamada", "template_id": "standard"}`, slug)
}

func TestCreateCardReturns201(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/cards", "U1", cardBody("hanako"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		ID   string `json:"id"`
		Slug string `json:"slug"`
	}
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.ID == "" || resp.Slug != "hanako" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestCreateCardQuotaReturns403(t *testing.T) {
	router := newTestRouter(t)

	for i := 0; i < 3; i++ {
		rec := doJSON(t, router, http.MethodPost, "/api/cards", "U1", cardBody(fmt.Sprintf("card%d", i)))
		if rec.Code != http.StatusCreated {
			t.Fatalf("create %d status = %d", i, rec.Code)
		}
	}

	rec := doJSON(t, router, http.MethodPost, "/api/cards", "U1", cardBody("onemore"))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	var resp struct {
		Error        string `json:"error"`
		CurrentCount int    `json:"currentCount"`
	}
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Error != "max_cards_reached" || resp.CurrentCount != 3 {
		t.Errorf("response = %+v, want max_cards_reached/3", resp)
	}
}

func TestCreateCardValidation(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/cards", "U1", `{"display_name": "No Slug"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestCreateCardUnauthorized(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/cards", "", cardBody("hanako"))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestForeignCardReturns403(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/cards", "U1", cardBody("hanako"))
	var created struct {
		ID string `json:"id"`
	}
	json.NewDecoder(rec.Body).Decode(&created)

	rec = doJSON(t, router, http.MethodGet, "/api/cards/"+created.ID, "U2", "")
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestDeleteCardReturns204(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/cards", "U1", cardBody("hanako"))
	var created struct {
		ID string `json:"id"`
	}
	json.NewDecoder(rec.Body).Decode(&created)

	rec = doJSON(t, router, http.MethodDelete, "/api/cards/"+created.ID, "U1", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/cards/"+created.ID, "U1", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status after delete = %d, want 404", rec.Code)
	}
}
