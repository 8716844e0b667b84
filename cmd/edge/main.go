package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/adapters/edge"
	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/config"
	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/logger"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg).With().Str("service", "edge").Logger()

	proxy, err := edge.NewProxyGateway(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid backend configuration")
	}
	resolver := edge.NewRedirectResolver(cfg, nil, log)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      edge.NewRouter(resolver, proxy, log),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: cfg.UpstreamTimeout + 5*time.Second,
	}

	go func() {
		log.Info().
			Str("port", cfg.Port).
			Str("backend", cfg.BackendURL).
			Str("lookup_mode", cfg.LookupMode).
			Msg("edge starting")
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
	log.Info().Msg("edge stopped")
}
