package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/diagnosis/pillatuvisa-backoffice/internal/http/handlers"
	"github.com/diagnosis/pillatuvisa-backoffice/internal/http/middleware"
	"github.com/diagnosis/pillatuvisa-backoffice/internal/platform/assistant"
	"github.com/diagnosis/pillatuvisa-backoffice/internal/platform/auth"
	"github.com/diagnosis/pillatuvisa-backoffice/internal/platform/blob"
	"github.com/diagnosis/pillatuvisa-backoffice/internal/platform/mailer"
	"github.com/diagnosis/pillatuvisa-backoffice/internal/platform/ratelimit"
	"github.com/diagnosis/pillatuvisa-backoffice/internal/platform/redisstore"
	"github.com/diagnosis/pillatuvisa-backoffice/internal/receipts"
	"github.com/diagnosis/pillatuvisa-backoffice/internal/repo/memory"
	"github.com/diagnosis/pillatuvisa-backoffice/internal/repo/postgres"
	"github.com/diagnosis/pillatuvisa-backoffice/internal/service"
	"github.com/diagnosis/pillatuvisa-backoffice/pkg/config"
	"github.com/diagnosis/pillatuvisa-backoffice/pkg/database"
	"github.com/diagnosis/pillatuvisa-backoffice/pkg/events"
	"github.com/diagnosis/pillatuvisa-backoffice/pkg/logger"
	"github.com/diagnosis/pillatuvisa-backoffice/pkg/metrics"
)

const (
	shutdownTimeout = 30 * time.Second
	idempotencyTTL  = 24 * time.Hour
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Error("Backoffice stopped with error", "error", err)
		os.Exit(1)
	}
}

// stores groups the repositories for whichever database backend is configured.
type stores struct {
	users    service.UserRepository
	sessions auth.SessionStore
	receipts receipts.Repo
	leads    service.LeadRepository
	// idempotency is nil for the in-memory backend
	idempotency *postgres.IdempotencyRepo
	ping        func(ctx context.Context) error
	close       func()
}

func openStores(ctx context.Context, cfg config.DatabaseConfig) (*stores, error) {
	if cfg.InMemory() {
		logger.Warn("Using in-memory storage; data is lost on restart")
		return &stores{
			users:    memory.NewUsers(),
			sessions: memory.NewSessions(),
			receipts: memory.NewReceipts(),
			leads:    memory.NewLeads(),
			close:    func() {},
		}, nil
	}

	pool, err := database.Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	db := database.OpenDB(pool)
	if err := database.Migrate(ctx, db); err != nil {
		_ = db.Close()
		pool.Close()
		return nil, err
	}
	return &stores{
		users:    postgres.NewUsersRepo(db),
		sessions: postgres.NewSessionsRepo(db),
		receipts: postgres.NewReceiptsRepo(db),
		leads:    postgres.NewLeadsRepo(db),

		idempotency: postgres.NewIdempotencyRepo(db),
		ping:        db.PingContext,
		close: func() {
			_ = db.Close()
			pool.Close()
		},
	}, nil
}

func openBlobs(ctx context.Context, cfg config.BlobConfig) (blob.Store, error) {
	if cfg.Backend == "s3" {
		return blob.NewS3Store(ctx, cfg)
	}
	return blob.NewFSStore(cfg.Dir)
}

func openBus(cfg config.NATSConfig) events.Publisher {
	if cfg.URL == "" {
		return events.NoopBus{}
	}
	bus, err := events.NewNATSEventBus(cfg.URL)
	if err != nil {
		logger.Warn("NATS unavailable, events disabled", "error", err)
		return events.NoopBus{}
	}
	return bus
}

func run(ctx context.Context, cfg *config.Config) error {
	st, err := openStores(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer st.close()

	blobs, err := openBlobs(ctx, cfg.Blob)
	if err != nil {
		return fmt.Errorf("open receipt storage: %w", err)
	}

	bus := openBus(cfg.NATS)
	defer bus.Close()

	deps := handlers.RouterDeps{
		CORSOrigins:    cfg.Server.CORSOrigins,
		IdempotencyTTL: idempotencyTTL,
		Ping:           st.ping,
	}
	if cfg.Redis.URL != "" {
		rdb, err := redisstore.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rdb.Close()
		deps.LoginLimiter = ratelimit.New(rdb, "login", cfg.Redis.LoginRate, cfg.Redis.LoginBurst)
		deps.PublicLimiter = ratelimit.New(rdb, "public", cfg.Redis.PublicRate, cfg.Redis.PublicBurst)
		deps.Idempotency = redisstore.NewIdempotencyStore(rdb)
	} else if st.idempotency != nil {
		logger.Info("REDIS_URL not set; rate limiting disabled, idempotency kept in Postgres")
		deps.Idempotency = st.idempotency
	} else {
		logger.Info("REDIS_URL not set; rate limiting and idempotency disabled")
	}

	mail := mailer.NewDispatcher(mailer.New(cfg.Email), cfg.Email, cfg.App.Name)
	if !mail.Configured() {
		logger.Warn("Email provider not configured; client emails are disabled")
	}
	ai := assistant.New(cfg.OpenAI)

	sessions := auth.NewSessionManager(st.sessions, auth.NewSessionCache(), cfg.Auth.SessionTTL)
	authSvc := service.NewAuthService(st.users, sessions, mail, bus, cfg)
	receiptSvc := service.NewReceiptService(receipts.NewStore(st.receipts, blobs), mail, bus, cfg)
	leadSvc := service.NewLeadService(st.leads, mail, bus)

	if err := authSvc.EnsureAdmin(ctx); err != nil {
		return err
	}

	deps.Guard = middleware.NewGuard(sessions)
	deps.Auth = handlers.NewAuthHandler(authSvc)
	deps.Receipts = handlers.NewReceiptHandler(receiptSvc)
	deps.Leads = handlers.NewLeadHandler(leadSvc)
	deps.AI = handlers.NewAIHandler(ai)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handlers.NewRouter(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting backoffice", "port", cfg.Server.Port, "email", cfg.Email.Provider, "ai", ai.Configured())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		sweep(gctx, sessions, st.idempotency, cfg.Auth.SessionSweep)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down backoffice...")

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			logger.Error("Backoffice shutdown error", "error", err)
		}
		if err := mail.Wait(sctx); err != nil {
			logger.Warn("Pending emails abandoned", "error", err)
		}
		return nil
	})
	return g.Wait()
}

// sweep periodically drops expired sessions and idempotency records.
func sweep(ctx context.Context, sessions *auth.SessionManager, idem *postgres.IdempotencyRepo, every time.Duration) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := sessions.Sweep(ctx); err != nil {
				logger.Warn("Session sweep failed", "error", err)
			} else if n > 0 {
				metrics.SessionsSwept.Add(float64(n))
				logger.Info("Swept expired sessions", "count", n)
			}
			if idem == nil {
				continue
			}
			if n, err := idem.CleanupExpired(ctx); err != nil {
				logger.Warn("Idempotency cleanup failed", "error", err)
			} else if n > 0 {
				logger.Debug("Removed expired idempotency keys", "count", n)
			}
		}
	}
}
