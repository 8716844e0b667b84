package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/core/services"
)

func TestJWTMiddleware(t *testing.T) {
	issuer := services.NewTokenIssuer("testservlet", 5*time.Minute, time.Hour)
	mw := NewMiddleware(services.NewAuthService(nil, issuer))

	access, err := issuer.Access(42, "alice")
	require.NoError(t, err)
	refresh, err := issuer.Refresh(42, "alice")
	require.NoError(t, err)

	tests := []struct {
		name         string
		header       string
		wantRequired int
		wantOptional int
		wantUserID   int64
	}{
		{
			name:         "No Header",
			wantRequired: http.StatusUnauthorized,
			wantOptional: http.StatusOK,
		},
		{
			name:         "Invalid Token",
			header:       "Bearer invalid",
			wantRequired: http.StatusUnauthorized,
			wantOptional: http.StatusUnauthorized,
		},
		{
			name:         "Refresh Token As Bearer",
			header:       "Bearer " + refresh.Value,
			wantRequired: http.StatusUnauthorized,
			wantOptional: http.StatusUnauthorized,
		},
		{
			name:         "Wrong Scheme",
			header:       "Basic " + access.Value,
			wantRequired: http.StatusUnauthorized,
			wantOptional: http.StatusOK,
		},
		{
			name:         "Valid Token",
			header:       "Bearer " + access.Value,
			wantRequired: http.StatusOK,
			wantOptional: http.StatusOK,
			wantUserID:   42,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotUserID int64
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if p, ok := PrincipalFrom(r.Context()); ok {
					gotUserID = p.UserID
				}
				w.WriteHeader(http.StatusOK)
			})

			for _, c := range []struct {
				handler http.Handler
				want    int
			}{
				{mw.RequireJWT(next), tt.wantRequired},
				{mw.OptionalJWT(next), tt.wantOptional},
			} {
				gotUserID = 0
				req := httptest.NewRequest(http.MethodGet, "/api/urls", nil)
				if tt.header != "" {
					req.Header.Set("Authorization", tt.header)
				}
				rr := httptest.NewRecorder()
				c.handler.ServeHTTP(rr, req)

				assert.Equal(t, c.want, rr.Code)
				if c.want == http.StatusOK {
					assert.Equal(t, tt.wantUserID, gotUserID)
				}
			}
		})
	}
}
