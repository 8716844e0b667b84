package handler

import (
	"net/http"

	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/adapters/edge"
	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/config"
	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/logger"
)

var mux http.Handler

func init() {
	cfg := config.Load()
	log := logger.New(cfg).With().Str("service", "edge").Logger()

	proxy, err := edge.NewProxyGateway(cfg, log)
	if err != nil {
		panic(err)
	}
	mux = edge.NewRouter(edge.NewRedirectResolver(cfg, nil, log), proxy, log)
}

// Handler is the entrypoint for Vercel
func Handler(w http.ResponseWriter, r *http.Request) {
	mux.ServeHTTP(w, r)
}
