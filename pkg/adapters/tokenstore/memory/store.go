// Package memory is a process-local TokenStore. It does not survive a
// restart; use it for tests and short-lived tools.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/ports"
)

type entry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

type Store struct {
	entries sync.Map
	now     func() time.Time
}

func New() *Store {
	return &Store{now: time.Now}
}

func (s *Store) Get(_ context.Context, key string) (string, bool) {
	val, ok := s.entries.Load(key)
	if !ok {
		return "", false
	}

	e := val.(entry)
	if !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt) {
		s.entries.CompareAndDelete(key, e)
		return "", false
	}
	return e.value, true
}

func (s *Store) Set(_ context.Context, key, value string, ttl time.Duration) {
	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.entries.Store(key, e)
}

func (s *Store) Delete(_ context.Context, key string) {
	s.entries.Delete(key)
}

var _ ports.TokenStore = (*Store)(nil)
