package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "github.com/tursodatabase/libsql-client-go/libsql" // Turso driver
	_ "modernc.org/sqlite"                               // Local SQLite driver

	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/core/domain"
	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/ports"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbURL string) (*SQLiteRepository, error) {
	driverName := "sqlite"
	if strings.Contains(dbURL, "libsql://") || strings.Contains(dbURL, "wss://") {
		driverName = "libsql"
	}

	db, err := sql.Open(driverName, dbURL)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	if err := migrate(db); err != nil {
		return nil, err
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func migrate(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS links (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER,
		anonymous_id TEXT,
		original_url TEXT NOT NULL,
		short_code TEXT NOT NULL UNIQUE,
		clicks INTEGER DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(user_id) REFERENCES users(id)
	);
	CREATE INDEX IF NOT EXISTS idx_links_short_code ON links(short_code);
	CREATE INDEX IF NOT EXISTS idx_links_user_id ON links(user_id);
	CREATE INDEX IF NOT EXISTS idx_links_anonymous_id ON links(anonymous_id);

	CREATE TABLE IF NOT EXISTS visits (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		link_id INTEGER NOT NULL,
		referer TEXT,
		user_agent TEXT,
		ip_hash TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(link_id) REFERENCES links(id)
	);
	CREATE INDEX IF NOT EXISTS idx_visits_link_id ON visits(link_id);

	CREATE TABLE IF NOT EXISTS refresh_tokens (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		expires_at INTEGER NOT NULL,
		revoked_at INTEGER,
		FOREIGN KEY(user_id) REFERENCES users(id)
	);
	`
	_, err := db.Exec(query)
	return err
}

const linkColumns = `id, user_id, anonymous_id, original_url, short_code, clicks, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLink(row rowScanner) (*domain.Link, error) {
	var l domain.Link
	var userID sql.NullInt64
	var anonymousID sql.NullString
	if err := row.Scan(&l.ID, &userID, &anonymousID, &l.OriginalURL, &l.ShortCode, &l.Clicks, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}
	if userID.Valid {
		l.UserID = &userID.Int64
	}
	if anonymousID.Valid {
		l.AnonymousID = &anonymousID.String
	}
	return &l, nil
}

func (r *SQLiteRepository) queryLinks(ctx context.Context, query string, args ...any) ([]domain.Link, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	links := []domain.Link{}
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, *l)
	}
	return links, rows.Err()
}

func (r *SQLiteRepository) Create(ctx context.Context, link *domain.Link) error {
	query := `INSERT INTO links (user_id, anonymous_id, original_url, short_code, clicks, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?)`

	res, err := r.db.ExecContext(ctx, query,
		nullInt64(link.UserID), nullString(link.AnonymousID),
		link.OriginalURL, link.ShortCode, link.Clicks, link.CreatedAt, link.UpdatedAt,
	)
	if err != nil {
		return err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	link.ID = id
	return nil
}

// GetByShortCode returns nil, nil when the code is unknown.
func (r *SQLiteRepository) GetByShortCode(ctx context.Context, code string) (*domain.Link, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+linkColumns+` FROM links WHERE short_code = ?`, code)
	link, err := scanLink(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return link, err
}

func (r *SQLiteRepository) List(ctx context.Context) ([]domain.Link, error) {
	return r.queryLinks(ctx, `SELECT `+linkColumns+` FROM links ORDER BY created_at DESC, id DESC`)
}

func (r *SQLiteRepository) ListByUserID(ctx context.Context, userID int64) ([]domain.Link, error) {
	return r.queryLinks(ctx, `SELECT `+linkColumns+` FROM links WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
}

func (r *SQLiteRepository) ListByAnonymousID(ctx context.Context, anonymousID string) ([]domain.Link, error) {
	return r.queryLinks(ctx, `SELECT `+linkColumns+` FROM links WHERE anonymous_id = ? AND user_id IS NULL ORDER BY created_at DESC, id DESC`, anonymousID)
}

// ClaimAnonymous hands every unowned link of anonymousID to userID.
func (r *SQLiteRepository) ClaimAnonymous(ctx context.Context, userID int64, anonymousID string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE links SET user_id = ?, anonymous_id = NULL, updated_at = ? WHERE anonymous_id = ? AND user_id IS NULL`,
		userID, time.Now(), anonymousID,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *SQLiteRepository) RecordVisit(ctx context.Context, visit *domain.Visit) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	queryVisit := `INSERT INTO visits (link_id, referer, user_agent, ip_hash, created_at) VALUES (?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, queryVisit, visit.LinkID, visit.Referer, visit.UserAgent, visit.IPHash, visit.CreatedAt.Format("2006-01-02 15:04:05"))
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `UPDATE links SET clicks = clicks + 1 WHERE id = ?`, visit.LinkID)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// Dump returns every link for export, oldest first.
func (r *SQLiteRepository) Dump(ctx context.Context) ([]domain.Link, error) {
	return r.queryLinks(ctx, `SELECT `+linkColumns+` FROM links ORDER BY id`)
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil || *v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

var _ ports.LinkRepository = (*SQLiteRepository)(nil)
