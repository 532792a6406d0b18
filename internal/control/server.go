package control

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/pressly/goose/v3"
	"golang.org/x/sync/errgroup"

	"github.com/algoease/backend/internal/core/config"
	"github.com/algoease/backend/internal/core/worker"
	"github.com/algoease/backend/internal/health"
	"github.com/algoease/backend/internal/httpapi"
	"github.com/algoease/backend/internal/infra/algorand"
	redisclient "github.com/algoease/backend/internal/infra/redis"
	"github.com/algoease/backend/internal/infra/storage"
	"github.com/algoease/backend/internal/infra/storage/memory"
	"github.com/algoease/backend/internal/infra/storage/postgres"
	"github.com/algoease/backend/internal/reconcile"
)

// Server wires storage, the indexer client, the reconciliation workers and
// the HTTP API into one runnable unit.
type Server struct {
	cfg *config.AppConfig

	db    *postgres.DB
	redis *redisclient.Client

	bounties storage.BountyRepository
	cursors  storage.CursorRepository
	queue    storage.ReconcileQueueRepository

	indexer    *algorand.Client
	reconciler *reconcile.Reconciler
	sweeper    *reconcile.Sweeper
	pruner     *worker.Pruner
	monitor    *health.Monitor

	httpServer *http.Server
	workers    *errgroup.Group
	log        *slog.Logger
}

// NewServer creates a Server with all dependencies initialized.
func NewServer(cfg *config.AppConfig) (*Server, error) {
	s := &Server{
		cfg: cfg,
		log: slog.Default().With("component", "server"),
	}

	// 1. Storage
	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := goose.SetDialect("postgres"); err != nil {
			return nil, err
		}
		if err := goose.Up(db.DB.DB, "migrations"); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}

		s.db = db
		s.bounties = postgres.NewBountyRepo(db)
		s.cursors = postgres.NewCursorRepo(db)
		s.queue = postgres.NewReconcileQueueRepo(db)
		slog.Info("Using PostgreSQL storage")
	} else {
		store := memory.NewStorage()
		s.bounties = memory.NewBountyRepo(store)
		s.cursors = memory.NewCursorRepo(store)
		s.queue = memory.NewReconcileQueueRepo(store)
		slog.Info("Using Memory storage")
	}

	// 2. Redis (optional, multi-instance lock coordination)
	if cfg.Redis.URL != "" {
		rc, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		s.redis = rc
	}

	// 3. Indexer client
	providers := make([]*algorand.Provider, 0, len(cfg.Algorand.Indexers))
	for _, p := range cfg.Algorand.Indexers {
		providers = append(providers,
			algorand.NewProvider(p.Name, p.URL, p.Token, cfg.Algorand.RequestTimeout))
	}
	s.indexer = algorand.NewClient(providers, algorand.DefaultRetryConfig)

	// 4. Workers
	var locks reconcile.Locker
	if s.redis != nil {
		locks = s.redis
	}
	s.reconciler = reconcile.NewReconciler(reconcile.Config{
		ApplicationID: cfg.Algorand.ApplicationID,
		Interval:      cfg.Reconcile.Interval,
		LockTTL:       cfg.Reconcile.LockTTL,
		MaxAttempts:   cfg.Reconcile.MaxAttempts,
		InitialDelay:  cfg.Reconcile.InitialDelay,
		MaxDelay:      cfg.Reconcile.MaxDelay,
	}, s.bounties, s.queue, s.indexer, locks)
	s.sweeper = reconcile.NewSweeper(
		cfg.Algorand.ApplicationID, s.bounties, s.cursors, s.indexer,
		cfg.Reconcile.SweepInterval)
	s.pruner = worker.NewPruner(s.queue, cfg.Reconcile.Retention)

	// 5. Health monitor
	var dbPinger, redisPinger health.Pinger
	if s.db != nil {
		dbPinger = s.db
	} else {
		dbPinger = noopPinger{}
	}
	if s.redis != nil {
		redisPinger = s.redis
	}
	s.monitor = health.NewMonitor(
		cfg.Algorand.ApplicationID, dbPinger, redisPinger, s.indexer,
		s.cursors, s.queue, s.bounties)

	// 6. HTTP API
	handler := httpapi.NewHandler(s.bounties, s.reconciler, s.monitor)
	router := httpapi.NewRouter(handler, httpapi.RouterConfig{
		CORSOrigins: cfg.Server.CORSOrigins,
	})
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s, nil
}

// noopPinger stands in for the database probe in memory mode.
type noopPinger struct{}

func (noopPinger) Health(ctx context.Context) error { return nil }

// Start launches the workers and the HTTP server. It returns immediately;
// cancel ctx to begin shutdown.
func (s *Server) Start(ctx context.Context) error {
	if s.db != nil {
		s.db.StartMetricsCollector(ctx)
	}

	g, ctx := errgroup.WithContext(ctx)
	s.workers = g

	s.log.Info("Starting reconciler", "interval", s.cfg.Reconcile.Interval)
	g.Go(func() error {
		s.reconciler.Start(ctx)
		return nil
	})

	s.log.Info("Starting sweeper", "interval", s.cfg.Reconcile.SweepInterval)
	g.Go(func() error {
		s.sweeper.Start(ctx)
		return nil
	})

	g.Go(func() error {
		s.pruner.Start(ctx)
		return nil
	})

	s.log.Info("Starting HTTP server", "addr", s.httpServer.Addr)
	g.Go(func() error {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("HTTP server failed", "error", err)
			return err
		}
		return nil
	})

	return nil
}

// Stop gracefully shuts down the HTTP server and closes connections.
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info("Stopping server...")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.log.Warn("HTTP shutdown failed", "error", err)
	}

	// Workers exit once the Start context is cancelled.
	if s.workers != nil {
		if err := s.workers.Wait(); err != nil {
			s.log.Warn("Worker exited with error", "error", err)
		}
	}

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.log.Warn("Failed to close Redis", "error", err)
		}
	}

	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Reconciler exposes the reconcile service, for the CLI.
func (s *Server) Reconciler() *reconcile.Reconciler { return s.reconciler }

// Bounties exposes the bounty repository, for the CLI.
func (s *Server) Bounties() storage.BountyRepository { return s.bounties }

// Cursors exposes the cursor repository, for the CLI.
func (s *Server) Cursors() storage.CursorRepository { return s.cursors }
