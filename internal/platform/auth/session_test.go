package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diagnosis/pillatuvisa-backoffice/internal/domain"
	"github.com/diagnosis/pillatuvisa-backoffice/internal/platform/auth"
	"github.com/diagnosis/pillatuvisa-backoffice/internal/repo/memory"
)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newManager(t *testing.T) (*auth.SessionManager, *memory.Sessions, *auth.SessionCache, *clock) {
	t.Helper()
	store := memory.NewSessions()
	cache := auth.NewSessionCache()
	clk := &clock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	m := auth.NewSessionManager(store, cache, time.Hour).WithClock(clk.Now)
	return m, store, cache, clk
}

func TestCreateSessionPersistsAndCaches(t *testing.T) {
	m, store, cache, clk := newManager(t)
	ctx := context.Background()

	s, err := m.Create(ctx, 1, domain.RoleAdmin, "admin")
	require.NoError(t, err)
	assert.Len(t, s.Token, 64)
	assert.Equal(t, clk.Now().Add(time.Hour), s.ExpiresAt)

	stored, err := store.Get(ctx, s.Token)
	require.NoError(t, err)
	require.NotNil(t, stored)
	_, cached := cache.Get(s.Token)
	assert.True(t, cached)

	other, err := m.Create(ctx, 1, domain.RoleAdmin, "admin")
	require.NoError(t, err)
	assert.NotEqual(t, s.Token, other.Token)
	assert.Equal(t, 2, store.Len())
}

func TestValidateSlidesExpiry(t *testing.T) {
	m, store, _, clk := newManager(t)
	ctx := context.Background()

	s, err := m.Create(ctx, 1, domain.RoleEditor, "eddie")
	require.NoError(t, err)
	before := s.ExpiresAt

	clk.Advance(10 * time.Minute)
	got, err := m.ValidateAndRefresh(ctx, s.Token)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.ExpiresAt.After(before))

	stored, _ := store.Get(ctx, s.Token)
	assert.Equal(t, got.ExpiresAt, stored.ExpiresAt)

	// No clock movement still advances the expiry.
	again, err := m.ValidateAndRefresh(ctx, s.Token)
	require.NoError(t, err)
	assert.True(t, again.ExpiresAt.After(got.ExpiresAt))
}

func TestRegularUseNeverExpires(t *testing.T) {
	m, _, _, clk := newManager(t)
	ctx := context.Background()

	s, err := m.Create(ctx, 1, domain.RoleViewer, "vera")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		clk.Advance(50 * time.Minute)
		got, err := m.ValidateAndRefresh(ctx, s.Token)
		require.NoError(t, err)
		require.NotNil(t, got, "iteration %d", i)
	}
}

func TestExpiredSessionIsRevokedLazily(t *testing.T) {
	m, store, cache, clk := newManager(t)
	ctx := context.Background()

	s, err := m.Create(ctx, 1, domain.RoleViewer, "vera")
	require.NoError(t, err)

	clk.Advance(time.Hour + time.Second)
	got, err := m.ValidateAndRefresh(ctx, s.Token)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, cached := cache.Get(s.Token)
	assert.False(t, cached)
	stored, err := store.Get(ctx, s.Token)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestStorageIsAuthoritativeOverCache(t *testing.T) {
	m, store, cache, _ := newManager(t)
	ctx := context.Background()

	s, err := m.Create(ctx, 1, domain.RoleAdmin, "admin")
	require.NoError(t, err)

	// Revoked by another process: the row is gone but this cache still has it.
	require.NoError(t, store.Delete(ctx, s.Token))
	got, err := m.ValidateAndRefresh(ctx, s.Token)
	require.NoError(t, err)
	assert.Nil(t, got)
	_, cached := cache.Get(s.Token)
	assert.False(t, cached)
}

func TestCacheMissFallsBackToStore(t *testing.T) {
	store := memory.NewSessions()
	clk := &clock{t: time.Now()}
	first := auth.NewSessionManager(store, auth.NewSessionCache(), time.Hour).WithClock(clk.Now)
	s, err := first.Create(context.Background(), 3, domain.RoleEditor, "eddie")
	require.NoError(t, err)

	cache := auth.NewSessionCache()
	second := auth.NewSessionManager(store, cache, time.Hour).WithClock(clk.Now)
	got, err := second.ValidateAndRefresh(context.Background(), s.Token)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(3), got.UserID)
	assert.Equal(t, 1, cache.Len())
}

func TestValidateFailsClosedOnStoreError(t *testing.T) {
	m, store, _, _ := newManager(t)
	ctx := context.Background()

	s, err := m.Create(ctx, 1, domain.RoleAdmin, "admin")
	require.NoError(t, err)

	store.Err = errors.New("db down")
	got, err := m.ValidateAndRefresh(ctx, s.Token)
	assert.Error(t, err)
	assert.Nil(t, got)
}

func TestDeleteIsIdempotent(t *testing.T) {
	m, store, cache, _ := newManager(t)
	ctx := context.Background()

	s, err := m.Create(ctx, 1, domain.RoleAdmin, "admin")
	require.NoError(t, err)

	require.NoError(t, m.Delete(ctx, s.Token))
	require.NoError(t, m.Delete(ctx, s.Token))
	assert.Equal(t, 0, store.Len())
	assert.Equal(t, 0, cache.Len())

	got, err := m.ValidateAndRefresh(ctx, s.Token)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRevokeUserAndSweep(t *testing.T) {
	m, store, _, clk := newManager(t)
	ctx := context.Background()

	a, _ := m.Create(ctx, 1, domain.RoleAdmin, "admin")
	_, _ = m.Create(ctx, 1, domain.RoleAdmin, "admin")
	_, _ = m.Create(ctx, 2, domain.RoleViewer, "vera")

	require.NoError(t, m.RevokeUser(ctx, 1))
	assert.Equal(t, 1, store.Len())
	got, _ := m.ValidateAndRefresh(ctx, a.Token)
	assert.Nil(t, got)

	clk.Advance(2 * time.Hour)
	n, err := m.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 0, store.Len())
}

func TestEmptyTokenIsUnauthenticated(t *testing.T) {
	m, _, _, _ := newManager(t)
	got, err := m.ValidateAndRefresh(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, got)
}
