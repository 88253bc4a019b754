package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/diagnosis/pillatuvisa-backoffice/internal/domain"
)

// SessionStore is the durable authority for sessions.
type SessionStore interface {
	// Create inserts s and returns domain.ErrConflict if the token exists.
	Create(ctx context.Context, s domain.Session) error
	// Get returns nil, nil when the token is unknown.
	Get(ctx context.Context, token string) (*domain.Session, error)
	// Touch sets a new expiry and reports whether the row still exists.
	Touch(ctx context.Context, token string, expiresAt time.Time) (bool, error)
	Delete(ctx context.Context, token string) error
	DeleteByUser(ctx context.Context, userID int64) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type SessionManager struct {
	store SessionStore
	cache *SessionCache
	ttl   time.Duration
	now   func() time.Time
}

func NewSessionManager(store SessionStore, cache *SessionCache, ttl time.Duration) *SessionManager {
	if cache == nil {
		cache = NewSessionCache()
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SessionManager{store: store, cache: cache, ttl: ttl, now: time.Now}
}

// WithClock replaces the time source.
func (m *SessionManager) WithClock(now func() time.Time) *SessionManager {
	m.now = now
	return m
}

func (m *SessionManager) TTL() time.Duration { return m.ttl }

// Create issues a new session. Concurrent logins of one user get independent
// tokens.
func (m *SessionManager) Create(ctx context.Context, userID int64, role domain.Role, username string) (*domain.Session, error) {
	token, err := NewToken()
	if err != nil {
		return nil, err
	}
	now := m.now().Truncate(time.Microsecond)
	s := domain.Session{
		Token:     token,
		UserID:    userID,
		Role:      role,
		Username:  username,
		ExpiresAt: now.Add(m.ttl),
		CreatedAt: now,
	}
	if err := m.store.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}
	m.cache.Put(s)
	return &s, nil
}

// ValidateAndRefresh resolves token to a live session and slides its expiry.
// It returns nil, nil for unknown or expired tokens and an error when the
// store cannot be consulted; callers treat both as unauthenticated.
func (m *SessionManager) ValidateAndRefresh(ctx context.Context, token string) (*domain.Session, error) {
	if token == "" {
		return nil, nil
	}
	now := m.now()

	if s, ok := m.cache.Get(token); ok && !s.Expired(now) {
		return m.refresh(ctx, s, now)
	}

	s, err := m.store.Get(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if s == nil {
		m.cache.Delete(token)
		return nil, nil
	}
	if s.Expired(now) {
		m.cache.Delete(token)
		if err := m.store.Delete(ctx, token); err != nil {
			return nil, fmt.Errorf("revoke expired session: %w", err)
		}
		return nil, nil
	}
	return m.refresh(ctx, *s, now)
}

func (m *SessionManager) refresh(ctx context.Context, s domain.Session, now time.Time) (*domain.Session, error) {
	exp := now.Add(m.ttl).Truncate(time.Microsecond)
	if !exp.After(s.ExpiresAt) {
		exp = s.ExpiresAt.Add(time.Microsecond)
	}

	found, err := m.store.Touch(ctx, s.Token, exp)
	if err != nil {
		return nil, fmt.Errorf("refresh session: %w", err)
	}
	if !found {
		m.cache.Delete(s.Token)
		return nil, nil
	}
	s.ExpiresAt = exp
	m.cache.Put(s)
	return &s, nil
}

// Delete revokes token. Unknown tokens are not an error.
func (m *SessionManager) Delete(ctx context.Context, token string) error {
	m.cache.Delete(token)
	if token == "" {
		return nil
	}
	if err := m.store.Delete(ctx, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// RevokeUser drops every session of userID.
func (m *SessionManager) RevokeUser(ctx context.Context, userID int64) error {
	m.cache.DeleteUser(userID)
	if err := m.store.DeleteByUser(ctx, userID); err != nil {
		return fmt.Errorf("revoke user sessions: %w", err)
	}
	return nil
}

// Sweep removes expired sessions in bulk.
func (m *SessionManager) Sweep(ctx context.Context) (int64, error) {
	now := m.now()
	m.cache.DeleteExpired(now)
	n, err := m.store.DeleteExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}
	return n, nil
}
