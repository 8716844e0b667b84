package handler

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/adapters/middleware"
	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/config"
	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/ports"
)

// NewRouter creates and configures the backend router
func NewRouter(cfg *config.Config, links ports.LinkService, auth ports.AuthService, log zerolog.Logger) http.Handler {
	h := NewHTTPHandler(links, cfg.BaseURL)
	authHandler := NewAuthHandler(auth, links)
	mw := NewMiddleware(auth)

	mux := http.NewServeMux()

	// Public Routes
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "ok"})
	})
	mux.HandleFunc("GET /{code}", h.Redirect)
	mux.HandleFunc("GET /api/urls/{code}", h.Get)
	mux.HandleFunc("POST /api/auth/register", authHandler.Register)
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.HandleFunc("POST /api/auth/refresh", authHandler.Refresh)

	// Identity aware routes
	mux.Handle("POST /api/shorten", mw.OptionalJWT(http.HandlerFunc(h.Create)))
	mux.Handle("POST /api/links", mw.OptionalJWT(http.HandlerFunc(h.Create)))
	mux.Handle("GET /api/urls", mw.OptionalJWT(http.HandlerFunc(h.List)))

	// Protected Routes
	mux.Handle("POST /api/auth/claim-links", mw.RequireJWT(http.HandlerFunc(authHandler.ClaimLinks)))

	return middleware.Chain(mux,
		middleware.RequestID(),
		middleware.Logging(log),
		middleware.Recover(),
	)
}
