package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/diagnosis/pillatuvisa-backoffice/internal/domain"
	"github.com/diagnosis/pillatuvisa-backoffice/internal/http/middleware"
	mw "github.com/diagnosis/pillatuvisa-backoffice/pkg/middleware"
)

type RouterDeps struct {
	Guard    *middleware.Guard
	Auth     *AuthHandler
	Receipts *ReceiptHandler
	Leads    *LeadHandler
	AI       *AIHandler

	// nil limiters disable rate limiting
	LoginLimiter  middleware.Limiter
	PublicLimiter middleware.Limiter

	Idempotency    mw.IdempotencyStore
	IdempotencyTTL time.Duration
	CORSOrigins    []string
	Ping           func(ctx context.Context) error
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("backoffice"))
	r.Use(mw.Logging)
	r.Use(chimw.Recoverer)
	r.Use(mw.CORS(d.CORSOrigins))
	r.Use(mw.Health)
	r.Use(mw.Ready(d.Ping))
	r.Use(mw.Metrics)

	// public
	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(d.LoginLimiter))
			d.Auth.PublicRoutes(r)
		})
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(d.PublicLimiter))
			d.Leads.PublicRoutes(r)
		})

		r.Group(func(r chi.Router) {
			r.Use(d.Guard.Authenticate)
			d.Auth.SessionRoutes(r)
			d.Leads.StaffRoutes(r, d.Guard)
		})
	})
	d.Receipts.PublicRoutes(r, d.Guard)

	// staff
	r.Group(func(r chi.Router) {
		r.Use(d.Guard.Authenticate)
		r.Use(mw.Idempotency(d.Idempotency, d.IdempotencyTTL))
		d.Receipts.StaffRoutes(r, d.Guard)
		r.Route("/ai", func(r chi.Router) {
			r.Use(d.Guard.Require(domain.RoleAdmin, domain.RoleEditor))
			d.AI.Routes(r)
		})
	})

	return r
}
