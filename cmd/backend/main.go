package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/adapters/handler"
	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/adapters/repository/sqlite"
	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/config"
	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/core/services"
	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/logger"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg).With().Str("service", "backend").Logger()

	// Initialize Repository
	repo, err := sqlite.NewSQLiteRepository(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer repo.Close()

	// Initialize Services
	links := services.NewLinkService(repo)
	tokens := services.NewTokenIssuer(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	auth := services.NewAuthService(repo, tokens)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.NewRouter(cfg, links, auth, log),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("backend starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("shutdown failed")
	}
	log.Info().Msg("backend stopped")
}
