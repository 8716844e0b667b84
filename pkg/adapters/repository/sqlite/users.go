package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/core/domain"
	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/ports"
)

const accountColumns = `id, username, email, password_hash, created_at, updated_at`

func scanAccount(row rowScanner) (*domain.Account, error) {
	var a domain.Account
	err := row.Scan(&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *SQLiteRepository) CreateUser(ctx context.Context, account *domain.Account) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (username, email, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		account.Username, account.Email, account.PasswordHash, account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		return err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	account.ID = id
	return nil
}

// GetUserByEmail returns nil, nil when no account matches.
func (r *SQLiteRepository) GetUserByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return scanAccount(r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM users WHERE email = ?`, email))
}

func (r *SQLiteRepository) GetUserByID(ctx context.Context, id int64) (*domain.Account, error) {
	return scanAccount(r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM users WHERE id = ?`, id))
}

func (r *SQLiteRepository) UserExists(ctx context.Context, username, email string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE username = ? OR email = ?`, username, email,
	).Scan(&count)
	return count > 0, err
}

func (r *SQLiteRepository) SaveRefreshToken(ctx context.Context, token *domain.RefreshToken) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (id, user_id, expires_at) VALUES (?, ?, ?)`,
		token.ID, token.UserID, token.ExpiresAt.Unix(),
	)
	return err
}

// ConsumeRefreshToken revokes the token in a single statement so two
// concurrent exchanges of the same token cannot both succeed.
func (r *SQLiteRepository) ConsumeRefreshToken(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL AND expires_at > ?`,
		at.Unix(), id, at.Unix(),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

var _ ports.UserRepository = (*SQLiteRepository)(nil)
