package token

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestIssueVerifyRoundtrip(t *testing.T) {
	issuer := NewIssuer("test-secret")
	issuedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tok, err := issuer.Issue("U1234abcd", issuedAt)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	sub, iat, err := issuer.Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if sub != "U1234abcd" {
		t.Errorf("subject = %q, want U1234abcd", sub)
	}
	if !iat.Equal(issuedAt) {
		t.Errorf("issuedAt = %v, want %v", iat, issuedAt)
	}
}

func TestVerifyRejectsTamperedSignature(t *testing.T) {
	issuer := NewIssuer("test-secret")
	tok, _ := issuer.Issue("U1", time.Now())

	parts := strings.Split(tok, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape: %q", tok)
	}
	// Подменяем подпись
	prefix := "AAAA"
	if strings.HasPrefix(parts[2], prefix) {
		prefix = "BBBB"
	}
	tampered := parts[0] + "." + parts[1] + "." + prefix + parts[2][4:]

	if _, _, err := issuer.Verify(tampered); err == nil {
		t.Error("tampered token accepted")
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	tok, _ := NewIssuer("secret-a").Issue("U1", time.Now())
	if _, _, err := NewIssuer("secret-b").Verify(tok); err == nil {
		t.Error("token signed with another secret accepted")
	}
}

func TestVerifyRejectsNoneAlgorithm(t *testing.T) {
	claims := jwt.MapClaims{
		"sub": "U1",
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
	tok, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}

	if _, _, err := NewIssuer("test-secret").Verify(tok); err == nil {
		t.Error("alg=none token accepted")
	}
}

func TestVerifyRejectsMissingSubject(t *testing.T) {
	secret := []byte("test-secret")
	claims := jwt.MapClaims{
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, _, err := NewIssuer("test-secret").Verify(tok); err == nil {
		t.Error("token without sub accepted")
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	secret := []byte("test-secret")
	claims := jwt.MapClaims{
		"sub": "U1",
		"iat": time.Now().Add(-2 * time.Hour).Unix(),
		"exp": time.Now().Add(-time.Hour).Unix(),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, _, err := NewIssuer("test-secret").Verify(tok); err == nil {
		t.Error("expired token accepted")
	}
}
