package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/adapters/backendclient"
	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/adapters/edge"
	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/adapters/handler"
	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/adapters/repository/sqlite"
	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/adapters/tokenstore/memory"
	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/adapters/transport"
	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/config"
	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/core/session"
	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/core/services"
)

// newStack starts a backend and an edge in front of it and returns the edge.
func newStack(t *testing.T) *httptest.Server {
	t.Helper()

	repo, err := sqlite.NewSQLiteRepository("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	tokens := services.NewTokenIssuer("e2e-secret", 15*time.Minute, time.Hour)
	backend := httptest.NewServer(handler.NewRouter(
		&config.Config{BaseURL: "http://short.test"},
		services.NewLinkService(repo),
		services.NewAuthService(repo, tokens),
		zerolog.Nop(),
	))
	t.Cleanup(backend.Close)

	cfg := &config.Config{
		BackendURL:       backend.URL,
		LookupMode:       config.LookupModeRedirect,
		ReservedPrefixes: []string{"_next", "api"},
		UpstreamTimeout:  5 * time.Second,
	}
	proxy, err := edge.NewProxyGateway(cfg, zerolog.Nop())
	require.NoError(t, err)

	server := httptest.NewServer(edge.NewRouter(edge.NewRedirectResolver(cfg, nil, zerolog.Nop()), proxy, zerolog.Nop()))
	t.Cleanup(server.Close)
	return server
}

func TestEdge_FullStack(t *testing.T) {
	ctx := context.Background()
	server := newStack(t)

	store := memory.New()
	anon := session.NewAnonymousTracker(store)
	authAPI := backendclient.New(server.URL, server.Client())
	mgr := session.NewManager(store, anon, authAPI, zerolog.Nop(), session.Options{})
	require.Equal(t, session.StateAnonymous, mgr.Init(ctx))

	authed := &http.Client{Transport: transport.New(mgr, server.Client().Transport)}
	links := session.NewLinks(backendclient.New(server.URL, authed), mgr, anon)

	// Anonymous shorten through the proxy
	created, err := links.Shorten(ctx, "https://example.com/landing")
	require.NoError(t, err)
	anonymousID, ok := anon.Get(ctx)
	require.True(t, ok)
	assert.Equal(t, created.AnonymousID, anonymousID)

	// Short link resolved at the edge
	browser := server.Client()
	browser.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	resp, err := browser.Get(server.URL + "/" + created.ShortCode)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)
	assert.Equal(t, "https://example.com/landing", resp.Header.Get("Location"))

	resp, err = browser.Get(server.URL + "/missing1")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Signing up claims the anonymous link
	user, err := mgr.Register(ctx, "alice", "alice@example.com", "secret1", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, session.StateAuthenticated, mgr.State())
	_, ok = anon.Get(ctx)
	assert.False(t, ok, "identity cleared after a successful claim")

	list, err := links.List(ctx)
	require.NoError(t, err)
	require.Len(t, list.URLs, 1)
	assert.Equal(t, created.ShortCode, list.URLs[0].ShortCode)
	assert.Equal(t, int64(1), list.URLs[0].Clicks)

	// A lost access token is replaced from the refresh token
	before, _ := store.Get(ctx, session.KeyRefreshToken)
	store.Delete(ctx, session.KeyAccessToken)

	list, err = links.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list.URLs, 1)
	after, _ := store.Get(ctx, session.KeyRefreshToken)
	assert.NotEqual(t, before, after, "refresh token rotated")

	// Logout drops back to anonymous, which has nothing to list
	mgr.Logout(ctx)
	assert.Equal(t, session.StateAnonymous, mgr.State())
	list, err = links.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list.URLs)
}
