package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/diagnosis/pillatuvisa-backoffice/internal/domain"
	"github.com/diagnosis/pillatuvisa-backoffice/internal/http/response"
	"github.com/diagnosis/pillatuvisa-backoffice/pkg/logger"
)

type ctxKey string

const CtxSession ctxKey = "session"

// SessionValidator resolves a bearer token to a live session.
type SessionValidator interface {
	ValidateAndRefresh(ctx context.Context, token string) (*domain.Session, error)
}

// Guard gates routes on a staff session and its role.
type Guard struct {
	Sessions SessionValidator
}

func NewGuard(sessions SessionValidator) *Guard {
	return &Guard{Sessions: sessions}
}

// BearerToken returns the token of an "Authorization: Bearer" header or "".
func BearerToken(r *http.Request) string {
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(authz) < 7 || !strings.EqualFold(authz[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(authz[7:])
}

func (g *Guard) resolve(r *http.Request) (*domain.Session, error) {
	token := BearerToken(r)
	if token == "" {
		return nil, nil
	}
	return g.Sessions.ValidateAndRefresh(r.Context(), token)
}

func withSession(ctx context.Context, s *domain.Session) context.Context {
	ctx = context.WithValue(ctx, CtxSession, s)
	ctx = context.WithValue(ctx, logger.UserIDKey, s.UserID)
	return context.WithValue(ctx, logger.RoleKey, string(s.Role))
}

// Authenticate rejects requests without a live session with 401. Store
// failures are treated the same way.
func (g *Guard) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := g.resolve(r)
		if err != nil {
			logger.ErrorContext(r.Context(), "Session validation failed", "error", err)
		}
		if s == nil {
			response.Unauthorized(w, "No autorizado")
			return
		}
		next.ServeHTTP(w, r.WithContext(withSession(r.Context(), s)))
	})
}

// Optional attaches a live session when one is presented and never rejects.
func (g *Guard) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := g.resolve(r)
		if err != nil {
			logger.WarnContext(r.Context(), "Session validation failed", "error", err)
		}
		if s != nil {
			r = r.WithContext(withSession(r.Context(), s))
		}
		next.ServeHTTP(w, r)
	})
}

// Require allows only the given roles; it must run after Authenticate. With
// no roles any authenticated staff member passes.
func (g *Guard) Require(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s := SessionFrom(r.Context())
			if s == nil {
				response.Unauthorized(w, "No autorizado")
				return
			}
			if !domain.RoleAllowed(s.Role, roles) {
				logger.WarnContext(r.Context(), "Role not allowed", "path", r.URL.Path)
				response.Forbidden(w, "Permisos insuficientes")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func SessionFrom(ctx context.Context) *domain.Session {
	s, _ := ctx.Value(CtxSession).(*domain.Session)
	return s
}
