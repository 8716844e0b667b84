package session

import (
	"context"

	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/ports"
)

// Keys under which credential material lives in the TokenStore.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyCachedUser   = "cached_user"
	KeyAnonymousID  = "anonymous_id"
)

// AnonymousTracker remembers the backend-issued identity that owns links
// created before login. It never allocates ids itself.
type AnonymousTracker struct {
	store ports.TokenStore
}

func NewAnonymousTracker(store ports.TokenStore) *AnonymousTracker {
	return &AnonymousTracker{store: store}
}

func (t *AnonymousTracker) Get(ctx context.Context) (string, bool) {
	id, ok := t.store.Get(ctx, KeyAnonymousID)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// Assign persists an id without expiry.
func (t *AnonymousTracker) Assign(ctx context.Context, id string) {
	if id == "" {
		return
	}
	t.store.Set(ctx, KeyAnonymousID, id, 0)
}

func (t *AnonymousTracker) Clear(ctx context.Context) {
	t.store.Delete(ctx, KeyAnonymousID)
}
