package session

import (
	"context"

	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/core/domain"
	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/ports"
)

// Links creates and lists links as whichever identity the client holds.
type Links struct {
	api  ports.LinkAPI
	mgr  *Manager
	anon *AnonymousTracker
}

func NewLinks(api ports.LinkAPI, mgr *Manager, anon *AnonymousTracker) *Links {
	return &Links{api: api, mgr: mgr, anon: anon}
}

// Shorten sends the anonymous identity only when not signed in, and adopts
// the identity the backend assigns if the client has none yet.
func (l *Links) Shorten(ctx context.Context, originalURL string) (*domain.ShortenResult, error) {
	anonymousID := ""
	if !l.signedIn(ctx) {
		anonymousID, _ = l.anon.Get(ctx)
	}

	res, err := l.api.Shorten(ctx, originalURL, anonymousID)
	if err != nil {
		return nil, err
	}

	if res.AnonymousID != "" {
		if _, ok := l.anon.Get(ctx); !ok {
			l.anon.Assign(ctx, res.AnonymousID)
		}
	}
	return res, nil
}

// List returns the caller's links. An anonymous client that never created a
// link has none and the backend is not asked.
func (l *Links) List(ctx context.Context) (*domain.LinkList, error) {
	if l.signedIn(ctx) {
		return l.api.ListLinks(ctx, "")
	}

	anonymousID, ok := l.anon.Get(ctx)
	if !ok {
		return &domain.LinkList{URLs: []domain.Link{}}, nil
	}
	return l.api.ListLinks(ctx, anonymousID)
}

func (l *Links) Get(ctx context.Context, code string) (*domain.Link, error) {
	return l.api.GetLink(ctx, code)
}

func (l *Links) signedIn(ctx context.Context) bool {
	_, ok := l.mgr.Session(ctx)
	return ok
}
