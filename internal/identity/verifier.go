package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrInvalidIdentity — внешний провайдер не признал предъявленный токен.
var ErrInvalidIdentity = errors.New("identity token rejected")

// Verifier проверяет id-токен внешнего провайдера и возвращает
// стабильный subject id. Сами логины и пароли живут у провайдера.
type Verifier interface {
	Verify(ctx context.Context, idToken string) (string, error)
}

// HTTPVerifier отправляет токен на verify-эндпоинт провайдера.
type HTTPVerifier struct {
	URL    string
	Client *http.Client
}

func NewHTTPVerifier(url string) *HTTPVerifier {
	return &HTTPVerifier{
		URL:    url,
		Client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (v *HTTPVerifier) Verify(ctx context.Context, idToken string) (string, error) {
	body, err := json.Marshal(map[string]string{"id_token": idToken})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.URL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("identity provider unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", ErrInvalidIdentity
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("identity provider returned %d", resp.StatusCode)
	}

	var out struct {
		SubjectID string `json:"subject_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode verify response: %w", err)
	}
	if out.SubjectID == "" {
		return "", ErrInvalidIdentity
	}
	return out.SubjectID, nil
}
