package edge

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/adapters/middleware"
	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/config"
)

const badGatewayBody = `{"error":"Failed to connect to backend"}`

// ProxyGateway forwards /api/ traffic to the backend unchanged apart from
// the Host header. Backend replies pass through as is, except that a
// missing Content-Type becomes application/json. Go writes the canonical
// reason phrase for each status code, so a custom status text from the
// backend is not reproduced.
type ProxyGateway struct {
	proxy *httputil.ReverseProxy
}

func NewProxyGateway(cfg *config.Config, log zerolog.Logger) (*ProxyGateway, error) {
	target, err := url.Parse(cfg.BackendURL)
	if err != nil {
		return nil, fmt.Errorf("invalid backend url: %w", err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid backend url: %q", cfg.BackendURL)
	}

	log = log.With().Str("component", "proxy").Logger()

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = cfg.UpstreamTimeout

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.Transport = transport

	originalDirector := proxy.Director
	proxy.Director = func(req *http.Request) {
		originalDirector(req)
		// The inbound Host names the edge; the backend gets its own.
		req.Host = target.Host
		req.Header.Del("Host")
	}

	proxy.ModifyResponse = func(resp *http.Response) error {
		if resp.Header.Get("Content-Type") == "" {
			resp.Header.Set("Content-Type", "application/json")
		}
		return nil
	}

	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", r.Header.Get(middleware.HeaderRequestID)).
			Msg("backend unreachable")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(badGatewayBody))
	}

	return &ProxyGateway{proxy: proxy}, nil
}

func (p *ProxyGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.proxy.ServeHTTP(w, r)
}
