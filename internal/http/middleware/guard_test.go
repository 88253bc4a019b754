package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diagnosis/pillatuvisa-backoffice/internal/domain"
	"github.com/diagnosis/pillatuvisa-backoffice/internal/http/middleware"
)

// ---------- Mocks ----------

type fakeSessions struct {
	sessions map[string]*domain.Session
	err      error
}

func (f *fakeSessions) ValidateAndRefresh(_ context.Context, token string) (*domain.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.sessions[token], nil
}

type fakeLimiter struct {
	allow bool
	wait  time.Duration
	keys  []string
}

func (f *fakeLimiter) Allow(_ context.Context, key string) (bool, time.Duration) {
	f.keys = append(f.keys, key)
	return f.allow, f.wait
}

// ---------- Helpers ----------

func newGuardRouter(g *middleware.Guard) http.Handler {
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(g.Authenticate)
		r.Get("/recibos", func(w http.ResponseWriter, r *http.Request) {
			s := middleware.SessionFrom(r.Context())
			w.Write([]byte(s.Username))
		})
		r.With(g.Require(domain.RoleAdmin)).Delete("/recibos/{id}", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
	})
	r.With(g.Optional).Get("/recibo/{id}", func(w http.ResponseWriter, r *http.Request) {
		if middleware.SessionFrom(r.Context()) != nil {
			w.Write([]byte("staff"))
			return
		}
		w.Write([]byte("anon"))
	})
	return r
}

func do(h http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// ---------- Tests ----------

func TestGuard_Authenticate(t *testing.T) {
	sessions := &fakeSessions{sessions: map[string]*domain.Session{
		"viewer-token": {Token: "viewer-token", UserID: 2, Role: domain.RoleViewer, Username: "vera"},
	}}
	h := newGuardRouter(middleware.NewGuard(sessions))

	rec := do(h, http.MethodGet, "/recibos", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "UNAUTHORIZED")

	rec = do(h, http.MethodGet, "/recibos", "unknown")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(h, http.MethodGet, "/recibos", "viewer-token")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "vera", rec.Body.String())
}

func TestGuard_MalformedHeader(t *testing.T) {
	sessions := &fakeSessions{sessions: map[string]*domain.Session{
		"tok": {Token: "tok", Role: domain.RoleAdmin},
	}}
	h := newGuardRouter(middleware.NewGuard(sessions))

	req := httptest.NewRequest(http.MethodGet, "/recibos", nil)
	req.Header.Set("Authorization", "Basic tok")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGuard_StoreErrorFailsClosed(t *testing.T) {
	h := newGuardRouter(middleware.NewGuard(&fakeSessions{err: errors.New("db down")}))
	rec := do(h, http.MethodGet, "/recibos", "any")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGuard_Require(t *testing.T) {
	sessions := &fakeSessions{sessions: map[string]*domain.Session{
		"viewer": {Token: "viewer", Role: domain.RoleViewer},
		"admin":  {Token: "admin", Role: domain.RoleAdmin},
	}}
	h := newGuardRouter(middleware.NewGuard(sessions))

	rec := do(h, http.MethodDelete, "/recibos/1", "viewer")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "FORBIDDEN")

	rec = do(h, http.MethodDelete, "/recibos/1", "admin")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestGuard_Optional(t *testing.T) {
	sessions := &fakeSessions{sessions: map[string]*domain.Session{
		"tok": {Token: "tok", Role: domain.RoleViewer},
	}}
	h := newGuardRouter(middleware.NewGuard(sessions))

	assert.Equal(t, "anon", do(h, http.MethodGet, "/recibo/1", "").Body.String())
	assert.Equal(t, "anon", do(h, http.MethodGet, "/recibo/1", "bad").Body.String())
	assert.Equal(t, "staff", do(h, http.MethodGet, "/recibo/1", "tok").Body.String())
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, middleware.BearerToken(req))

	req.Header.Set("Authorization", "bearer  abc ")
	assert.Equal(t, "abc", middleware.BearerToken(req))

	req.Header.Set("Authorization", "Bearer")
	assert.Empty(t, middleware.BearerToken(req))
}

func TestRateLimit(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	lim := &fakeLimiter{allow: true}
	req := httptest.NewRequest(http.MethodPost, "/api/login", nil)
	req.RemoteAddr = "203.0.113.9:5555"
	rec := httptest.NewRecorder()
	middleware.RateLimit(lim)(ok).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"ip:203.0.113.9"}, lim.keys)

	lim = &fakeLimiter{allow: false, wait: 1500 * time.Millisecond}
	rec = httptest.NewRecorder()
	middleware.RateLimit(lim)(ok).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "RATE_LIMIT_EXCEEDED")
}

func TestRateLimit_NilDisables(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })
	rec := httptest.NewRecorder()
	middleware.RateLimit(nil)(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
