package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/adapters/tokenstore/memory"
	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/core/domain"
	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/core/session"
)

type stubAuthAPI struct {
	refreshCalls atomic.Int32
	refreshErr   error
}

func (s *stubAuthAPI) Login(context.Context, string, string) (*domain.AuthResult, error) {
	return &domain.AuthResult{
		User:      domain.User{ID: 1, Username: "alice", Email: "alice@example.com"},
		TokenPair: domain.TokenPair{AccessToken: "a1", RefreshToken: "r1"},
	}, nil
}

func (s *stubAuthAPI) Register(context.Context, string, string, string) (*domain.AuthResult, error) {
	return nil, errors.New("not used")
}

func (s *stubAuthAPI) Refresh(_ context.Context, refreshToken string) (*domain.TokenPair, error) {
	s.refreshCalls.Add(1)
	if s.refreshErr != nil {
		return nil, s.refreshErr
	}
	return &domain.TokenPair{AccessToken: "a2", RefreshToken: "r2"}, nil
}

func (s *stubAuthAPI) ClaimLinks(context.Context, string, string) error { return nil }

type fixture struct {
	api    *stubAuthAPI
	mgr    *session.Manager
	store  *memory.Store
	client *http.Client
}

func newFixture(t *testing.T, loggedIn bool) *fixture {
	t.Helper()
	store := memory.New()
	api := &stubAuthAPI{}
	mgr := session.NewManager(store, session.NewAnonymousTracker(store), api, zerolog.Nop(), session.Options{})
	if loggedIn {
		_, err := mgr.Login(context.Background(), "alice@example.com", "secret1")
		require.NoError(t, err)
	}
	return &fixture{
		api:    api,
		mgr:    mgr,
		store:  store,
		client: &http.Client{Transport: New(mgr, nil)},
	}
}

// acceptOnly answers 200 for the given bearer token and 401 otherwise.
func acceptOnly(token string, hits *atomic.Int32, bodies *[]string, mu *sync.Mutex) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if bodies != nil {
			b, _ := io.ReadAll(r.Body)
			mu.Lock()
			*bodies = append(*bodies, string(b))
			mu.Unlock()
		}
		if r.Header.Get("Authorization") != "Bearer "+token {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"Invalid token"}`))
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}
}

func TestTransport_AttachesBearer(t *testing.T) {
	f := newFixture(t, true)
	var hits atomic.Int32
	srv := httptest.NewServer(acceptOnly("a1", &hits, nil, nil))
	defer srv.Close()

	resp, err := f.client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, hits.Load())
	assert.Zero(t, f.api.refreshCalls.Load())
}

func TestTransport_NoSessionSendsNoHeader(t *testing.T) {
	f := newFixture(t, false)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	resp, err := f.client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Zero(t, f.api.refreshCalls.Load())
}

func TestTransport_RefreshesAndReplaysBody(t *testing.T) {
	f := newFixture(t, true)
	var hits atomic.Int32
	var mu sync.Mutex
	var bodies []string
	srv := httptest.NewServer(acceptOnly("a2", &hits, &bodies, &mu))
	defer srv.Close()

	resp, err := f.client.Post(srv.URL, "application/json", strings.NewReader(`{"url":"https://example.com"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 2, hits.Load())
	assert.EqualValues(t, 1, f.api.refreshCalls.Load())
	assert.Equal(t, []string{`{"url":"https://example.com"}`, `{"url":"https://example.com"}`}, bodies)

	refresh, _ := f.store.Get(context.Background(), session.KeyRefreshToken)
	assert.Equal(t, "r2", refresh)
}

func TestTransport_RetriesAtMostOnce(t *testing.T) {
	f := newFixture(t, true)
	var hits atomic.Int32
	srv := httptest.NewServer(acceptOnly("never", &hits, nil, nil))
	defer srv.Close()

	resp, err := f.client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "second response is returned as is")
	assert.EqualValues(t, 2, hits.Load())
	assert.EqualValues(t, 1, f.api.refreshCalls.Load())
}

func TestTransport_RefreshFailureReturnsOriginalResponse(t *testing.T) {
	f := newFixture(t, true)
	f.api.refreshErr = &domain.BackendError{Status: http.StatusUnauthorized, Message: "Invalid refresh token"}
	var hits atomic.Int32
	srv := httptest.NewServer(acceptOnly("a2", &hits, nil, nil))
	defer srv.Close()

	resp, err := f.client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Invalid token"}`, string(body))
	assert.EqualValues(t, 1, hits.Load())
	assert.Equal(t, session.StateAnonymous, f.mgr.State())
}

func TestTransport_ConcurrentRejectionsShareOneRefresh(t *testing.T) {
	f := newFixture(t, true)
	var hits atomic.Int32
	srv := httptest.NewServer(acceptOnly("a2", &hits, nil, nil))
	defer srv.Close()

	const calls = 16
	var wg sync.WaitGroup
	statuses := make([]int, calls)
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := f.client.Get(srv.URL)
			if !assert.NoError(t, err) {
				return
			}
			statuses[i] = resp.StatusCode
			resp.Body.Close()
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, f.api.refreshCalls.Load())
	for _, status := range statuses {
		assert.Equal(t, http.StatusOK, status)
	}
}

func TestTransport_ProactiveRefresh(t *testing.T) {
	f := newFixture(t, true)
	f.store.Delete(context.Background(), session.KeyAccessToken)

	var hits atomic.Int32
	srv := httptest.NewServer(acceptOnly("a2", &hits, nil, nil))
	defer srv.Close()

	resp, err := f.client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, hits.Load(), "no rejected round trip")
	assert.EqualValues(t, 1, f.api.refreshCalls.Load())
}
