package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/tiffinbox/api/internal/platform/httpx"
)

const defaultVerifyTimeout = 5 * time.Second

var (
	// ErrTokenExpired signals an expired bearer token.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrTokenInvalid signals a bearer token that failed verification.
	ErrTokenInvalid = errors.New("auth: token invalid")
	// ErrTokenUnrecognised is returned by a Verifier for tokens it does not issue, letting the
	// next verifier try.
	ErrTokenUnrecognised = errors.New("auth: token not recognised")
)

// Verifier turns a bearer token into an Identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// Authenticator verifies bearer tokens against an ordered list of verifiers.
type Authenticator struct {
	verifiers []Verifier
	timeout   time.Duration
}

// Option customises Authenticator behaviour.
type Option func(*Authenticator)

// WithVerificationTimeout bounds each verification attempt.
func WithVerificationTimeout(d time.Duration) Option {
	return func(a *Authenticator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// NewAuthenticator builds an Authenticator. Nil verifiers are skipped.
func NewAuthenticator(verifiers []Verifier, opts ...Option) *Authenticator {
	a := &Authenticator{timeout: defaultVerifyTimeout}
	for _, v := range verifiers {
		if v != nil {
			a.verifiers = append(a.verifiers, v)
		}
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Authenticate verifies token with the first verifier that recognises it.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (*Identity, error) {
	if a == nil || len(a.verifiers) == 0 {
		return nil, ErrTokenInvalid
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	for _, verifier := range a.verifiers {
		identity, err := verifier.Verify(ctx, token)
		if errors.Is(err, ErrTokenUnrecognised) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if len(identity.Roles) == 0 {
			identity.Roles = []string{RoleUser}
		}
		return identity, nil
	}
	return nil, ErrTokenInvalid
}

// RequireAuth rejects requests without a valid bearer token. When roles are given the identity
// must hold at least one of them.
func (a *Authenticator) RequireAuth(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				respondAuthError(ctx, w, http.StatusUnauthorized, "unauthenticated", "authorization header missing or invalid")
				return
			}

			identity, err := a.Authenticate(ctx, token)
			switch {
			case errors.Is(err, ErrTokenExpired):
				respondAuthError(ctx, w, http.StatusUnauthorized, "token_expired", "token expired")
				return
			case err != nil:
				respondAuthError(ctx, w, http.StatusUnauthorized, "invalid_token", "token verification failed")
				return
			}

			if len(roles) > 0 && !identity.HasAnyRole(roles...) {
				respondAuthError(ctx, w, http.StatusForbidden, "insufficient_role", "identity does not have required role")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, identity)))
		})
	}
}

// RequireOperator admits operators and admins only.
func (a *Authenticator) RequireOperator() func(http.Handler) http.Handler {
	return a.RequireAuth(RoleOperator, RoleAdmin)
}

func extractBearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func respondAuthError(ctx context.Context, w http.ResponseWriter, status int, code, message string) {
	httpx.WriteError(ctx, w, httpx.NewError(code, message, status))
}
