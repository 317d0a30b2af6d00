// pkg/middleware/auth.go
package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"strings"

	"meishi/pkg/hash"
	"meishi/pkg/token"
)

type contextKey string

// SubjectKey хранит subject id проверенного пользователя в контексте запроса.
const SubjectKey contextKey = "subjectID"

// SubjectFromContext returns the verified subject id, or "" when the request
// did not pass SessionAuth.
func SubjectFromContext(ctx context.Context) string {
	s, _ := ctx.Value(SubjectKey).(string)
	return s
}

// SessionAuth проверяет сессионный токен. Ни один доменный обработчик не
// выполняется без валидного результата Verify.
func SessionAuth(issuer *token.Issuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			subjectID, _, err := issuer.Verify(strings.TrimPrefix(authHeader, "Bearer "))
			if err != nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), SubjectKey, subjectID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminBasicAuth защищает операторские маршруты. Пароль сверяется с
// bcrypt-хэшем из конфигурации; при пустом хэше доступ закрыт полностью.
func AdminBasicAuth(username, passwordHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("WWW-Authenticate", `Basic realm="operator"`)

			if username == "" || passwordHash == "" {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}

			user, pass, ok := parseBasicAuth(r)
			if !ok {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			if !constantTimeCompare(user, username) || !hash.CheckPassword(passwordHash, pass) {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// BasicAuth закрывает /metrics простой парой логин/пароль.
func BasicAuth(username, password string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("WWW-Authenticate", `Basic realm="metrics"`)

			user, pass, ok := parseBasicAuth(r)
			if !ok {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			if !constantTimeCompare(user, username) || !constantTimeCompare(pass, password) {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func parseBasicAuth(r *http.Request) (user, pass string, ok bool) {
	auth := r.Header.Get("Authorization")
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || parts[0] != "Basic" {
		return "", "", false
	}

	payload, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", "", false
	}

	pair := strings.SplitN(string(payload), ":", 2)
	if len(pair) != 2 {
		return "", "", false
	}
	return pair[0], pair[1], true
}

// constantTimeCompare сравнивает строки за константное время
func constantTimeCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
