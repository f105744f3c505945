package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"
)

// DefaultSessionTTL is the lifetime of first-party session tokens.
const DefaultSessionTTL = 2 * time.Hour

// SessionClaims is the payload of first-party HS256 session tokens.
type SessionClaims struct {
	ID   string `json:"id"`
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// SessionTokens issues and verifies HS256 session tokens carrying the user id and role.
type SessionTokens struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewSessionTokens builds a session token codec for the shared secret.
func NewSessionTokens(secret, issuer string) (*SessionTokens, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: session secret is required")
	}
	return &SessionTokens{secret: []byte(secret), issuer: strings.TrimSpace(issuer), now: time.Now}, nil
}

// Issue signs a session token for the user valid for ttl.
func (s *SessionTokens) Issue(userID, role string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", errors.New("auth: session user id is required")
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	now := s.now()
	claims := SessionClaims{
		ID:   userID,
		Role: normaliseRole(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify implements Verifier. Tokens not signed with HS256 are left to other verifiers.
func (s *SessionTokens) Verify(_ context.Context, token string) (*Identity, error) {
	if s == nil {
		return nil, ErrTokenUnrecognised
	}
	unverified, _, err := jwt.NewParser().ParseUnverified(token, &SessionClaims{})
	if err != nil || unverified.Method.Alg() != jwt.SigningMethodHS256.Alg() {
		return nil, ErrTokenUnrecognised
	}

	claims := &SessionClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if _, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if s.issuer != "" && !claims.VerifyIssuer(s.issuer, true) {
		return nil, fmt.Errorf("%w: issuer mismatch", ErrTokenInvalid)
	}
	if strings.TrimSpace(claims.ID) == "" {
		return nil, fmt.Errorf("%w: missing user id", ErrTokenInvalid)
	}

	identity := &Identity{UID: claims.ID, Provider: "session"}
	if role := normaliseRole(claims.Role); role != "" {
		identity.Roles = []string{role}
	}
	return identity, nil
}
