package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/diagnosis/pillatuvisa-backoffice/internal/domain"
	"github.com/diagnosis/pillatuvisa-backoffice/pkg/database"
)

const queryTimeout = 3 * time.Second

type UsersRepo struct{ db database.DBTX }

func NewUsersRepo(db database.DBTX) *UsersRepo { return &UsersRepo{db: db} }

const userColumns = `id, username, COALESCE(email, ''), password_hash, role,
       COALESCE(reset_token_hash, ''), reset_expires_at, created_at, updated_at`

func scanUser(row *sql.Row) (*domain.User, error) {
	var (
		u     domain.User
		reset sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role,
		&u.ResetTokenHash, &reset, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if reset.Valid {
		t := reset.Time
		u.ResetExpiresAt = &t
	}
	return &u, nil
}

// FindByIdentifier matches username or email case-insensitively; a username
// match wins.
func (r *UsersRepo) FindByIdentifier(ctx context.Context, identifier string) (*domain.User, error) {
	const q = `SELECT ` + userColumns + `
FROM users
WHERE lower(username) = lower($1) OR lower(email) = lower($1)
ORDER BY (lower(username) = lower($1)) DESC, id
LIMIT 1`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return scanUser(r.db.QueryRowContext(ctx, q, identifier))
}

func (r *UsersRepo) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1) LIMIT 1`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return scanUser(r.db.QueryRowContext(ctx, q, email))
}

func (r *UsersRepo) FindByResetToken(ctx context.Context, tokenHash string) (*domain.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE reset_token_hash = $1 LIMIT 1`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return scanUser(r.db.QueryRowContext(ctx, q, tokenHash))
}

func (r *UsersRepo) UpgradeHash(ctx context.Context, userID int64, hash string) error {
	const q = `UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	_, err := r.db.ExecContext(ctx, q, userID, hash)
	return err
}

// SetResetToken replaces any outstanding token.
func (r *UsersRepo) SetResetToken(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) error {
	const q = `UPDATE users SET reset_token_hash = $2, reset_expires_at = $3, updated_at = now() WHERE id = $1`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	_, err := r.db.ExecContext(ctx, q, userID, tokenHash, expiresAt)
	return err
}

func (r *UsersRepo) ClearResetToken(ctx context.Context, userID int64) error {
	const q = `UPDATE users SET reset_token_hash = NULL, reset_expires_at = NULL, updated_at = now() WHERE id = $1`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	_, err := r.db.ExecContext(ctx, q, userID)
	return err
}

// CompleteReset swaps the hash and clears the token in one statement. It
// reports false when the token was already consumed.
func (r *UsersRepo) CompleteReset(ctx context.Context, userID int64, tokenHash, newHash string) (bool, error) {
	const q = `
UPDATE users
SET password_hash = $3, reset_token_hash = NULL, reset_expires_at = NULL, updated_at = now()
WHERE id = $1 AND reset_token_hash = $2`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	res, err := r.db.ExecContext(ctx, q, userID, tokenHash, newHash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// EnsureUser inserts u unless a user with the same username or email exists.
func (r *UsersRepo) EnsureUser(ctx context.Context, u domain.User) (bool, error) {
	const q = `
INSERT INTO users (username, email, password_hash, role)
VALUES ($1, NULLIF($2, ''), $3, $4)
ON CONFLICT DO NOTHING
RETURNING id`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	var id int64
	err := r.db.QueryRowContext(ctx, q, u.Username, u.Email, u.PasswordHash, string(u.Role)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
