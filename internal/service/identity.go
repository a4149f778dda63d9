package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken is returned for missing, malformed, expired or wrongly signed tokens.
var ErrInvalidToken = errors.New("invalid or expired token")

// CandidateClaims are the JWT claims issued by the identity provider. The
// subject is the candidate id.
type CandidateClaims struct {
	jwt.RegisteredClaims
	Name string `json:"name,omitempty"`
}

// IdentityVerifier resolves a bearer token to the authenticated candidate.
type IdentityVerifier interface {
	Verify(tokenStr string) (*CandidateClaims, error)
}

// TokenVerifier validates HS256 candidate tokens.
type TokenVerifier struct {
	secret []byte
}

// NewTokenVerifier creates a TokenVerifier for the shared secret.
func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

// Verify parses a token and returns its claims.
func (v *TokenVerifier) Verify(tokenStr string) (*CandidateClaims, error) {
	claims := &CandidateClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Issue signs a token for a candidate. The engine never issues tokens in
// production; this serves local tooling and tests.
func (v *TokenVerifier) Issue(candidateID, name string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := CandidateClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   candidateID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Name: name,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
