// Package auth issues and verifies identity tokens. A token only says which
// of the two people is calling; there are no roles or permissions.
package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"tandem/internal/domain"
)

const issuer = "tandem"

var (
	ErrNoSecret     = errors.New("jwt secret not configured")
	ErrInvalidToken = errors.New("invalid token")
)

type claims struct {
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token whose subject is the person. A zero ttl
// issues a token without expiry.
func IssueToken(secret string, person domain.Person, ttl time.Duration, now time.Time) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", ErrNoSecret
	}
	if !person.Valid() {
		return "", domain.Validation("person", "invalid person "+string(person))
	}
	c := claims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:   issuer,
		Subject:  string(person),
		IssuedAt: jwt.NewNumericDate(now),
	}}
	if ttl > 0 {
		c.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
}

// ParseToken verifies the signature and expiry and returns the subject.
func ParseToken(secret, token string) (domain.Person, error) {
	if strings.TrimSpace(secret) == "" {
		return "", ErrNoSecret
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
	)
	c := &claims{}
	parsed, err := parser.ParseWithClaims(token, c, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return "", errors.Join(ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return "", ErrInvalidToken
	}
	person, err := domain.ParsePerson(c.Subject)
	if err != nil {
		return "", errors.Join(ErrInvalidToken, err)
	}
	return person, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}
