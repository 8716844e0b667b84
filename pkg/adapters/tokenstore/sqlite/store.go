// Package sqlite is the durable TokenStore. Entries live in a local SQLite
// file (or a Turso database) so a session survives a restart of the client.
//
// Every value is sealed as an HS256 JWT bound to its key, so edits to the
// file outside this package read back as absent instead of as credentials.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	_ "github.com/tursodatabase/libsql-client-go/libsql" // Turso driver
	_ "modernc.org/sqlite"                               // Local SQLite driver

	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/ports"
)

type sealedClaims struct {
	Key   string `json:"k"`
	Value string `json:"v"`
	jwt.RegisteredClaims
}

type Store struct {
	db     *sql.DB
	secret []byte
	log    zerolog.Logger
	now    func() time.Time
}

func New(dbURL, secret string, log zerolog.Logger) (*Store, error) {
	if secret == "" {
		return nil, errors.New("token store secret is required")
	}

	driverName := "sqlite"
	if strings.Contains(dbURL, "libsql://") || strings.Contains(dbURL, "wss://") {
		driverName = "libsql"
	}

	db, err := sql.Open(driverName, dbURL)
	if err != nil {
		return nil, err
	}
	// Writes are rare and small; one connection avoids SQLITE_BUSY between goroutines.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS session_entries (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		expires_at INTEGER
	);`); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{
		db:     db,
		secret: []byte(secret),
		log:    log.With().Str("component", "tokenstore").Logger(),
		now:    time.Now,
	}
	s.purgeExpired(context.Background())
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, key string) (string, bool) {
	var sealed string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM session_entries WHERE key = ? AND (expires_at IS NULL OR expires_at > ?)`,
		key, s.now().UnixMilli(),
	).Scan(&sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false
	}
	if err != nil {
		s.log.Error().Err(err).Str("key", key).Msg("read failed")
		return "", false
	}

	value, err := s.unseal(key, sealed)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("discarding entry that failed verification")
		return "", false
	}
	return value, true
}

func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) {
	var expiresAt sql.NullInt64
	var exp time.Time
	if ttl > 0 {
		exp = s.now().Add(ttl)
		expiresAt = sql.NullInt64{Int64: exp.UnixMilli(), Valid: true}
	}

	sealed, err := s.seal(key, value, exp)
	if err != nil {
		s.log.Error().Err(err).Str("key", key).Msg("seal failed")
		return
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO session_entries (key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, sealed, expiresAt,
	)
	if err != nil {
		s.log.Error().Err(err).Str("key", key).Msg("write failed")
		return
	}
	s.purgeExpired(ctx)
}

func (s *Store) Delete(ctx context.Context, key string) {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session_entries WHERE key = ?`, key); err != nil {
		s.log.Error().Err(err).Str("key", key).Msg("delete failed")
	}
}

func (s *Store) purgeExpired(ctx context.Context) {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM session_entries WHERE expires_at IS NOT NULL AND expires_at <= ?`, s.now().UnixMilli())
	if err != nil {
		s.log.Warn().Err(err).Msg("purge failed")
	}
}

func (s *Store) seal(key, value string, expiresAt time.Time) (string, error) {
	claims := sealedClaims{
		Key:   key,
		Value: value,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(s.now()),
		},
	}
	if !expiresAt.IsZero() {
		claims.ExpiresAt = jwt.NewNumericDate(expiresAt)
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *Store) unseal(key, sealed string) (string, error) {
	claims := &sealedClaims{}
	_, err := jwt.ParseWithClaims(sealed, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return "", err
	}
	if claims.Key != key {
		return "", errors.New("entry bound to a different key")
	}
	return claims.Value, nil
}

var _ ports.TokenStore = (*Store)(nil)
