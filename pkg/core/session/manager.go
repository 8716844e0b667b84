// Package session owns the client side of authentication: which identity the
// client currently acts as, the tokens that prove it, and how they are
// rotated.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/core/domain"
	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/ports"
)

type State int

const (
	StateAnonymous State = iota
	StateAuthenticating
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "anonymous"
	}
}

type Options struct {
	// AccessTokenTTL is used when the access token carries no exp claim.
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// Manager is the only writer of session material to the TokenStore.
// It is safe for concurrent use.
type Manager struct {
	store ports.TokenStore
	anon  *AnonymousTracker
	api   ports.AuthAPI
	log   zerolog.Logger

	accessTTL  time.Duration
	refreshTTL time.Duration

	flight singleflight.Group

	mu    sync.RWMutex
	state State
}

func NewManager(store ports.TokenStore, anon *AnonymousTracker, api ports.AuthAPI, log zerolog.Logger, opts Options) *Manager {
	if opts.AccessTokenTTL <= 0 {
		opts.AccessTokenTTL = 15 * time.Minute
	}
	if opts.RefreshTokenTTL <= 0 {
		opts.RefreshTokenTTL = 7 * 24 * time.Hour
	}
	return &Manager{
		store:      store,
		anon:       anon,
		api:        api,
		log:        log.With().Str("component", "session").Logger(),
		accessTTL:  opts.AccessTokenTTL,
		refreshTTL: opts.RefreshTokenTTL,
	}
}

// Init restores the state from whatever the TokenStore still holds.
func (m *Manager) Init(ctx context.Context) State {
	if _, ok := m.Session(ctx); ok {
		m.setState(StateAuthenticated)
		return StateAuthenticated
	}

	// Tokens without a complete session are unusable; drop them all.
	m.Logout(ctx)
	return StateAnonymous
}

func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// Session returns the persisted session. The access token may be empty when
// it has expired but the refresh token is still valid.
func (m *Manager) Session(ctx context.Context) (domain.Session, bool) {
	refresh, ok := m.store.Get(ctx, KeyRefreshToken)
	if !ok {
		return domain.Session{}, false
	}
	raw, ok := m.store.Get(ctx, KeyCachedUser)
	if !ok {
		return domain.Session{}, false
	}
	var user domain.User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		m.log.Warn().Err(err).Msg("cached user is unreadable")
		return domain.Session{}, false
	}

	access, _ := m.store.Get(ctx, KeyAccessToken)
	return domain.Session{
		UserID:       user.ID,
		Username:     user.Username,
		Email:        user.Email,
		AccessToken:  access,
		RefreshToken: refresh,
	}, true
}

func (m *Manager) Login(ctx context.Context, email, password string) (*domain.User, error) {
	prev := m.beginAuthenticating()

	res, err := m.api.Login(ctx, email, password)
	if err != nil {
		m.setState(prev)
		return nil, authFailure("login", err, domain.ErrInvalidCredentials)
	}
	return m.establish(ctx, res), nil
}

// Register checks the password rules locally before contacting the backend.
func (m *Manager) Register(ctx context.Context, username, email, password, confirmPassword string) (*domain.User, error) {
	if password != confirmPassword {
		return nil, domain.ErrPasswordMismatch
	}
	if len(password) < domain.MinPasswordLength {
		return nil, domain.ErrWeakPassword
	}

	prev := m.beginAuthenticating()

	res, err := m.api.Register(ctx, username, email, password)
	if err != nil {
		m.setState(prev)
		return nil, authFailure("register", err, domain.ErrRegistrationRejected)
	}
	return m.establish(ctx, res), nil
}

// Logout forgets the credentials but keeps the anonymous identity.
func (m *Manager) Logout(ctx context.Context) {
	m.store.Delete(ctx, KeyAccessToken)
	m.store.Delete(ctx, KeyRefreshToken)
	m.store.Delete(ctx, KeyCachedUser)
	m.setState(StateAnonymous)
}

// Token returns the current access token, if one is stored.
func (m *Manager) Token(ctx context.Context) (*oauth2.Token, bool) {
	access, ok := m.store.Get(ctx, KeyAccessToken)
	if !ok || access == "" {
		return nil, false
	}
	return &oauth2.Token{
		AccessToken: access,
		TokenType:   "Bearer",
		Expiry:      tokenExpiry(access),
	}, true
}

// CanRefresh reports whether a refresh token is available.
func (m *Manager) CanRefresh(ctx context.Context) bool {
	_, ok := m.store.Get(ctx, KeyRefreshToken)
	return ok
}

// Refresh returns an access token newer than stale. Concurrent callers share
// a single exchange with the backend; a caller whose stale token was already
// replaced gets the current token without any exchange. When the backend
// rejects the refresh token the session is logged out and ErrSessionExpired
// is returned to every waiter.
func (m *Manager) Refresh(ctx context.Context, stale string) (*oauth2.Token, error) {
	ch := m.flight.DoChan("refresh", func() (interface{}, error) {
		return m.rotate(context.WithoutCancel(ctx), stale)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*oauth2.Token), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Manager) rotate(ctx context.Context, stale string) (*oauth2.Token, error) {
	if tok, ok := m.Token(ctx); ok && tok.AccessToken != stale {
		return tok, nil
	}

	refresh, ok := m.store.Get(ctx, KeyRefreshToken)
	if !ok {
		m.Logout(ctx)
		return nil, domain.ErrSessionExpired
	}

	pair, err := m.api.Refresh(ctx, refresh)
	if err == nil && (pair.AccessToken == "" || pair.RefreshToken == "") {
		err = errors.New("refresh reply is missing a token")
	}
	if err != nil {
		m.log.Warn().Err(err).Msg("refresh failed, logging out")
		m.Logout(ctx)
		return nil, fmt.Errorf("%w: %v", domain.ErrSessionExpired, err)
	}

	m.storeTokens(ctx, *pair)
	m.log.Debug().Msg("tokens rotated")
	return &oauth2.Token{
		AccessToken: pair.AccessToken,
		TokenType:   "Bearer",
		Expiry:      tokenExpiry(pair.AccessToken),
	}, nil
}

func (m *Manager) beginAuthenticating() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.state
	m.state = StateAuthenticating
	return prev
}

func (m *Manager) establish(ctx context.Context, res *domain.AuthResult) *domain.User {
	user := res.User
	if raw, err := json.Marshal(user); err == nil {
		m.store.Set(ctx, KeyCachedUser, string(raw), m.refreshTTL)
	}
	m.storeTokens(ctx, res.TokenPair)
	m.setState(StateAuthenticated)
	m.log.Info().Int64("user_id", user.ID).Str("username", user.Username).Msg("signed in")

	m.claimMerge(ctx, res.AccessToken)
	return &user
}

// storeTokens writes the refresh token before the access token so that a
// reader never sees an access token without its refresh token.
func (m *Manager) storeTokens(ctx context.Context, pair domain.TokenPair) {
	m.store.Set(ctx, KeyRefreshToken, pair.RefreshToken, m.refreshTTL)
	m.store.Set(ctx, KeyAccessToken, pair.AccessToken, m.accessTokenTTL(pair.AccessToken))
}

// claimMerge moves links owned by the anonymous identity to the signed-in
// user. Failures are logged and the identity is kept so a later login can
// retry; they never reach the caller of Login/Register.
func (m *Manager) claimMerge(ctx context.Context, accessToken string) {
	anonymousID, ok := m.anon.Get(ctx)
	if !ok {
		return
	}

	if err := m.api.ClaimLinks(ctx, accessToken, anonymousID); err != nil {
		m.log.Warn().
			Err(fmt.Errorf("%w: %v", domain.ErrClaimMergeFailed, err)).
			Str("anonymous_id", anonymousID).
			Msg("anonymous links not claimed")
		return
	}

	m.anon.Clear(ctx)
	m.log.Info().Str("anonymous_id", anonymousID).Msg("anonymous links claimed")
}

func (m *Manager) accessTokenTTL(token string) time.Duration {
	exp := tokenExpiry(token)
	if exp.IsZero() {
		return m.accessTTL
	}
	if ttl := time.Until(exp); ttl > 0 {
		return ttl
	}
	// Already expired: keep it just long enough to be rejected and refreshed.
	return time.Second
}

// tokenExpiry reads the exp claim without verifying the signature; the
// client has no key and only uses it for bookkeeping.
func tokenExpiry(token string) time.Time {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil || claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}

// authFailure keeps transport failures and backend outages distinguishable
// from rejections. Only a 4xx reply counts as a rejection of kind.
func authFailure(op string, err error, kind error) error {
	var backendErr *domain.BackendError
	if errors.As(err, &backendErr) {
		if backendErr.Status >= http.StatusInternalServerError {
			kind = domain.ErrUpstreamUnavailable
		}
		return &domain.AuthError{Err: kind, Message: backendErr.Message}
	}
	return fmt.Errorf("%s: %w", op, err)
}
