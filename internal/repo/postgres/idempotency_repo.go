package postgres

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/diagnosis/pillatuvisa-backoffice/pkg/database"
)

// IdempotencyRepo keeps replayable responses when Redis is not configured.
type IdempotencyRepo struct {
	db  database.DBTX
	now func() time.Time
}

func NewIdempotencyRepo(db database.DBTX) *IdempotencyRepo {
	return &IdempotencyRepo{db: db, now: time.Now}
}

// Hash the key so client-chosen values never reach the table verbatim.
func keyHash(key string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(key)))
}

// Get returns "" when the key is unknown or expired.
func (r *IdempotencyRepo) Get(ctx context.Context, key string) (string, error) {
	const q = `SELECT response FROM idempotency_keys WHERE key_hash = $1 AND expires_at > $2`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var resp string
	err := r.db.QueryRowContext(ctx, q, keyHash(key), r.now()).Scan(&resp)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return resp, nil
}

func (r *IdempotencyRepo) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	const q = `
INSERT INTO idempotency_keys (key_hash, response, expires_at)
VALUES ($1, $2, $3)
ON CONFLICT (key_hash) DO UPDATE SET response = EXCLUDED.response, expires_at = EXCLUDED.expires_at`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	_, err := r.db.ExecContext(ctx, q, keyHash(key), value, r.now().Add(ttl))
	return err
}

// CleanupExpired removes expired records.
func (r *IdempotencyRepo) CleanupExpired(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM idempotency_keys WHERE expires_at < $1`, r.now())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
