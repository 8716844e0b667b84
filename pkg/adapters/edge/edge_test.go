package edge

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/config"
)

func testConfig(backendURL, mode string) *config.Config {
	return &config.Config{
		BackendURL:       backendURL,
		LookupMode:       mode,
		ReservedPrefixes: []string{"_next", "api"},
		UpstreamTimeout:  5 * time.Second,
	}
}

func newEdge(t *testing.T, backend http.Handler, mode string) (http.Handler, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		backend.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	cfg := testConfig(srv.URL, mode)
	proxy, err := NewProxyGateway(cfg, zerolog.Nop())
	require.NoError(t, err)
	return NewRouter(NewRedirectResolver(cfg, nil, zerolog.Nop()), proxy, zerolog.Nop()), &hits
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestRedirect_ReservedPathsNeverReachBackend(t *testing.T) {
	h, hits := newEdge(t, http.NotFoundHandler(), config.LookupModeRedirect)

	for _, path := range []string{
		"/_next",
		"/_nextdata",
		"/api",
		"/apiary",
		"/favicon.ico",
		"/abc.def",
		"/_next/static/foo.js",
	} {
		t.Run(path, func(t *testing.T) {
			rr := get(h, path)
			assert.Equal(t, http.StatusNotFound, rr.Code)
		})
	}
	assert.Zero(t, hits.Load())
}

func TestRedirect_BackendRedirectsBecome307(t *testing.T) {
	for _, status := range []int{
		http.StatusMovedPermanently,
		http.StatusFound,
		http.StatusTemporaryRedirect,
		http.StatusPermanentRedirect,
	} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			h, _ := newEdge(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/xyz123", r.URL.Path)
				w.Header().Set("Location", "https://example.com")
				w.WriteHeader(status)
			}), config.LookupModeRedirect)

			rr := get(h, "/xyz123")
			assert.Equal(t, http.StatusTemporaryRedirect, rr.Code)
			assert.Equal(t, "https://example.com", rr.Header().Get("Location"))
		})
	}
}

func TestRedirect_Unresolved(t *testing.T) {
	tests := []struct {
		name    string
		backend http.HandlerFunc
	}{
		{
			name: "backend 404",
			backend: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
				w.Write([]byte(`{"error":"Short URL not found"}`))
			},
		},
		{
			name: "redirect without location",
			backend: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusMovedPermanently)
			},
		},
		{
			name: "backend 500",
			backend: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newEdge(t, tt.backend, config.LookupModeRedirect)
			rr := get(h, "/abc12345")
			assert.Equal(t, http.StatusNotFound, rr.Code)
			assert.Equal(t, "Short URL not found\n", rr.Body.String())
		})
	}
}

func TestRedirect_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	resolver := NewRedirectResolver(testConfig(srv.URL, config.LookupModeRedirect), nil, zerolog.Nop())
	rr := httptest.NewRecorder()
	resolver.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/abc12345", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "Failed to redirect\n", rr.Body.String())
}

func TestRedirect_LookupMode(t *testing.T) {
	backend := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/urls/good":
			w.Write([]byte(`{"short_code":"good","original_url":"https://example.com/page?q=1"}`))
		case "/api/urls/script":
			w.Write([]byte(`{"short_code":"script","original_url":"javascript:alert(1)"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	h, _ := newEdge(t, backend, config.LookupModeJSON)

	rr := get(h, "/good")
	assert.Equal(t, http.StatusTemporaryRedirect, rr.Code)
	assert.Equal(t, "https://example.com/page?q=1", rr.Header().Get("Location"))

	assert.Equal(t, http.StatusNotFound, get(h, "/script").Code)
	assert.Equal(t, http.StatusNotFound, get(h, "/missing").Code)
}

func TestRedirect_ForwardsVisitorDetails(t *testing.T) {
	h, _ := newEdge(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.UserAgent())
		assert.Equal(t, "https://ref.example", r.Referer())
		assert.Equal(t, "192.0.2.1", r.Header.Get("X-Forwarded-For"))
		w.Header().Set("Location", "https://example.com")
		w.WriteHeader(http.StatusMovedPermanently)
	}), config.LookupModeRedirect)

	req := httptest.NewRequest(http.MethodGet, "/abc12345", nil)
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Set("Referer", "https://ref.example")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusTemporaryRedirect, rr.Code)
}

func TestProxy_ForwardsRequestUnchanged(t *testing.T) {
	var backendHost string
	h, _ := newEdge(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		backendHost = r.Host
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/shorten", r.URL.Path)
		assert.Equal(t, "anon-1", r.URL.Query().Get("anonymous_id"))
		assert.Equal(t, "Bearer a1", r.Header.Get("Authorization"))
		assert.Equal(t, "yes", r.Header.Get("X-Custom"))
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"url":"https://example.com"}`, string(body))

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"short_code":"abc12345"}`))
	}), config.LookupModeRedirect)

	req := httptest.NewRequest(http.MethodPost, "http://edge.example/api/shorten?anonymous_id=anon-1", strings.NewReader(`{"url":"https://example.com"}`))
	req.Header.Set("Authorization", "Bearer a1")
	req.Header.Set("X-Custom", "yes")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "application/json; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.Equal(t, `{"short_code":"abc12345"}`, rr.Body.String())
	assert.NotEqual(t, "edge.example", backendHost)
}

func TestProxy_MirrorsErrorsAndDefaultsContentType(t *testing.T) {
	h, _ := newEdge(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header()["Content-Type"] = nil
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"Invalid token"}`))
	}), config.LookupModeRedirect)

	rr := get(h, "/api/urls")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Equal(t, `{"error":"Invalid token"}`, rr.Body.String())
}

func TestProxy_BackendDown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	proxy, err := NewProxyGateway(testConfig(srv.URL, config.LookupModeRedirect), zerolog.Nop())
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	proxy.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/urls", nil))

	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.JSONEq(t, `{"error":"Failed to connect to backend"}`, rr.Body.String())
}

func TestNewProxyGateway_RejectsBadURL(t *testing.T) {
	_, err := NewProxyGateway(testConfig("not a url", config.LookupModeRedirect), zerolog.Nop())
	assert.Error(t, err)
}

func TestHealthz(t *testing.T) {
	h, hits := newEdge(t, http.NotFoundHandler(), config.LookupModeRedirect)
	rr := get(h, "/healthz")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"message":"ok"}`, rr.Body.String())
	assert.Zero(t, hits.Load())
}
