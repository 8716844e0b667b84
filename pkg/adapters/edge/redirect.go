// Package edge is the public face of the shortener: it resolves short codes
// into redirects and forwards API traffic to the backend.
package edge

import (
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/adapters/middleware"
	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/config"
)

// maxLookupBody caps how much of a lookup reply is read.
const maxLookupBody = 1 << 20

type RedirectResolver struct {
	backendURL string
	mode       string
	reserved   []string
	client     *http.Client
	log        zerolog.Logger
}

// NewRedirectResolver never follows redirects itself: the backend's
// Location is what gets handed to the browser.
func NewRedirectResolver(cfg *config.Config, client *http.Client, log zerolog.Logger) *RedirectResolver {
	c := &http.Client{Timeout: cfg.UpstreamTimeout}
	if client != nil {
		copied := *client
		c = &copied
	}
	c.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	return &RedirectResolver{
		backendURL: cfg.BackendURL,
		mode:       cfg.LookupMode,
		reserved:   cfg.ReservedPrefixes,
		client:     c,
		log:        log.With().Str("component", "redirect").Logger(),
	}
}

func (rr *RedirectResolver) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if code == "" {
		code = strings.TrimPrefix(r.URL.Path, "/")
	}

	if rr.isReserved(code) {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, rr.lookupURL(code), nil)
	if err != nil {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	forwardVisitor(req, r)

	resp, err := rr.client.Do(req)
	if err != nil {
		rr.log.Error().Err(err).
			Str("code", code).
			Str("request_id", r.Header.Get(middleware.HeaderRequestID)).
			Msg("redirect lookup failed")
		http.Error(w, "Failed to redirect", http.StatusInternalServerError)
		return
	}
	defer resp.Body.Close()

	if target := rr.target(resp); target != "" {
		w.Header().Set("Location", target)
		w.WriteHeader(http.StatusTemporaryRedirect)
		return
	}

	http.Error(w, "Short URL not found", http.StatusNotFound)
}

// isReserved reports whether code belongs to a framework or static path.
func (rr *RedirectResolver) isReserved(code string) bool {
	if code == "" || strings.Contains(code, ".") {
		return true
	}
	for _, prefix := range rr.reserved {
		if prefix != "" && strings.HasPrefix(code, prefix) {
			return true
		}
	}
	return false
}

func (rr *RedirectResolver) lookupURL(code string) string {
	if rr.mode == config.LookupModeJSON {
		return rr.backendURL + "/api/urls/" + url.PathEscape(code)
	}
	return rr.backendURL + "/" + url.PathEscape(code)
}

// target extracts the destination from either a backend redirect or a
// lookup reply. An empty result means the code did not resolve.
func (rr *RedirectResolver) target(resp *http.Response) string {
	switch resp.StatusCode {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return resp.Header.Get("Location")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ""
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxLookupBody))
	if err != nil {
		return ""
	}
	original := gjson.GetBytes(body, "original_url").String()
	u, err := url.Parse(original)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ""
	}
	return original
}

// forwardVisitor passes the details the backend records per click.
func forwardVisitor(out, in *http.Request) {
	if ua := in.UserAgent(); ua != "" {
		out.Header.Set("User-Agent", ua)
	}
	if ref := in.Referer(); ref != "" {
		out.Header.Set("Referer", ref)
	}

	clientIP, _, err := net.SplitHostPort(in.RemoteAddr)
	if err != nil {
		clientIP = in.RemoteAddr
	}
	if prior := in.Header.Get("X-Forwarded-For"); prior != "" {
		clientIP = prior + ", " + clientIP
	}
	if clientIP != "" {
		out.Header.Set("X-Forwarded-For", clientIP)
	}
}
