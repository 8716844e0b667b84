package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/core/domain"
	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/ports"
)

type principalKey struct{}

// PrincipalFrom returns the identity attached by the JWT middleware.
func PrincipalFrom(ctx context.Context) (*domain.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*domain.Principal)
	return p, ok
}

type Middleware struct {
	auth ports.AuthService
}

func NewMiddleware(auth ports.AuthService) *Middleware {
	return &Middleware{auth: auth}
}

// RequireJWT rejects requests without a valid bearer access token.
func (m *Middleware) RequireJWT(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "Authorization header required")
			return
		}

		p, err := m.auth.ValidateAccessToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, p)))
	})
}

// OptionalJWT attaches the principal when a token is sent. A token that is
// sent but invalid is rejected so the client can refresh it instead of
// silently acting as anonymous.
func (m *Middleware) OptionalJWT(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		p, err := m.auth.ValidateAccessToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, p)))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}
