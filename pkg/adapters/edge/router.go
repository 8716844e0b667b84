package edge

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/adapters/middleware"
)

// NewRouter wires the resolver and the proxy behind the shared middleware.
func NewRouter(resolver *RedirectResolver, proxy *ProxyGateway, log zerolog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "ok"})
	})
	mux.Handle("GET /{code}", resolver)
	mux.Handle("/api/", proxy)

	return middleware.Chain(mux,
		middleware.RequestID(),
		middleware.Logging(log),
		middleware.Recover(),
	)
}
