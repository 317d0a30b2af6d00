// Package token issues and verifies session tokens for already-authenticated
// subjects. A token is an HS256 JWT; the HMAC check inside the library is
// constant-time. Nothing downstream runs without a valid Verify result.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const sessionTTL = 30 * 24 * time.Hour

var (
	ErrInvalidToken = errors.New("invalid token")
)

type Issuer struct {
	secret []byte
	parser *jwt.Parser
}

func NewIssuer(secret string) *Issuer {
	return &Issuer{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
			jwt.WithExpirationRequired(),
		),
	}
}

// Issue creates a session token for the given subject id.
func (i *Issuer) Issue(subjectID string, issuedAt time.Time) (string, error) {
	claims := jwt.MapClaims{
		"sub": subjectID,
		"iat": issuedAt.Unix(),
		"exp": issuedAt.Add(sessionTTL).Unix(),
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(i.secret)
}

// Verify parses a session token and returns the subject id and issue time.
// Rejects bad signatures, non-HMAC algorithms and structurally broken claims.
func (i *Issuer) Verify(tokenString string) (string, time.Time, error) {
	t, err := i.parser.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	})
	if err != nil || !t.Valid {
		return "", time.Time{}, ErrInvalidToken
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return "", time.Time{}, ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", time.Time{}, ErrInvalidToken
	}

	iatFloat, ok := claims["iat"].(float64)
	if !ok {
		return "", time.Time{}, ErrInvalidToken
	}

	return sub, time.Unix(int64(iatFloat), 0), nil
}
