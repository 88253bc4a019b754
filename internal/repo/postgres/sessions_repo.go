package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/diagnosis/pillatuvisa-backoffice/internal/domain"
	"github.com/diagnosis/pillatuvisa-backoffice/pkg/database"
)

const uniqueViolation = "23505"

type SessionsRepo struct{ db database.DBTX }

func NewSessionsRepo(db database.DBTX) *SessionsRepo { return &SessionsRepo{db: db} }

// Create never overwrites: a duplicate token yields domain.ErrConflict.
func (r *SessionsRepo) Create(ctx context.Context, s domain.Session) error {
	const q = `
INSERT INTO sessions (token, user_id, role, username, expires_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	_, err := r.db.ExecContext(ctx, q, s.Token, s.UserID, string(s.Role), s.Username, s.ExpiresAt, s.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("session token: %w", domain.ErrConflict)
	}
	return err
}

func (r *SessionsRepo) Get(ctx context.Context, token string) (*domain.Session, error) {
	const q = `SELECT token, user_id, role, username, expires_at, created_at FROM sessions WHERE token = $1`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	var s domain.Session
	err := r.db.QueryRowContext(ctx, q, token).Scan(&s.Token, &s.UserID, &s.Role, &s.Username, &s.ExpiresAt, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SessionsRepo) Touch(ctx context.Context, token string, expiresAt time.Time) (bool, error) {
	const q = `UPDATE sessions SET expires_at = $2 WHERE token = $1`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	res, err := r.db.ExecContext(ctx, q, token, expiresAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *SessionsRepo) Delete(ctx context.Context, token string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = $1`, token)
	return err
}

func (r *SessionsRepo) DeleteByUser(ctx context.Context, userID int64) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	return err
}

func (r *SessionsRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
