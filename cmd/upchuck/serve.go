package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	cfhttp "github.com/Strob0t/Upchuck/internal/adapter/http"
	cfnats "github.com/Strob0t/Upchuck/internal/adapter/nats"
	"github.com/Strob0t/Upchuck/internal/adapter/natsagent"
	cfotel "github.com/Strob0t/Upchuck/internal/adapter/otel"
	"github.com/Strob0t/Upchuck/internal/adapter/postgres"
	"github.com/Strob0t/Upchuck/internal/config"
	"github.com/Strob0t/Upchuck/internal/middleware"
	"github.com/Strob0t/Upchuck/internal/port/agentbackend"
	"github.com/Strob0t/Upchuck/internal/port/messagequeue"
	"github.com/Strob0t/Upchuck/internal/resilience"
	"github.com/Strob0t/Upchuck/internal/service"
)

const requestTimeout = 30 * time.Second

var (
	skipMigrations bool
	skipSeed       bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API server, queue workers and background jobs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, cfg)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "do not apply pending migrations on start")
	serveCmd.Flags().BoolVar(&skipSeed, "skip-seed", false, "do not seed agent configurations from config")
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context, cfg *config.Config) error {
	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"workers", cfg.Queue.Workers,
		"max_retry_count", cfg.Queue.MaxRetryCount,
	)

	// --- Telemetry ---
	shutdownOTEL, err := cfotel.Setup(ctx, cfg.OTEL)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTEL(sctx); err != nil {
			slog.Warn("otel shutdown", "error", err)
		}
	}()
	metrics, err := cfotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("otel metrics: %w", err)
	}

	// --- Infrastructure ---
	pool, store, err := openStore(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer pool.Close()

	if !skipMigrations {
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		slog.Info("migrations applied")
	}

	queue, err := cfnats.Connect(ctx, cfg.NATS)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()

	configCache, closeCache, err := buildConfigCache(ctx, cfg.Cache, queue)
	if err != nil {
		return err
	}
	defer closeCache()

	// --- Services ---
	agentSvc := service.NewAgentConfigService(store, configCache, cfg.Cache.L2TTL)
	if !skipSeed {
		created, err := agentSvc.Seed(ctx, cfg.Agents)
		if err != nil {
			return fmt.Errorf("seed agents: %w", err)
		}
		if len(created) > 0 {
			slog.Info("agent configurations seeded", "agent_types", created)
		}
	}

	backends := agentbackend.NewRegistry(natsagent.New(queue.Conn(), cfg.AgentTransport.RequestTimeout))
	guards := resilience.NewSet(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout, cfg.Rate.RequestsPerSecond, cfg.Rate.Burst)
	guards.Ignore(func(err error) bool { return errors.Is(err, context.Canceled) })

	workerSvc := service.NewWorkerService(store, agentSvc, backends, guards, queue, cfg.Queue, cfg.Vault.PristinePath)
	workerSvc.SetMetrics(metrics)
	reviewSvc := service.NewReviewService(store, cfg.Review)
	reviewSvc.SetMetrics(metrics)
	relay := service.NewOutboxRelay(postgres.NewEventStore(pool), queue, cfg.Outbox)
	relay.SetMetrics(metrics)
	intakeSvc := service.NewIntakeService(store, queue, cfg.Vault)
	queueSvc := service.NewQueueService(store, cfg.Queue.MaxRetryCount)

	// --- Subscriptions ---
	stopIntake, err := intakeSvc.Start(ctx)
	if err != nil {
		return fmt.Errorf("intake subscriber: %w", err)
	}
	defer stopIntake()

	stopWake, err := queue.Subscribe(ctx, messagequeue.SubjectQueueItemQueued, workerSvc.HandleItemQueued)
	if err != nil {
		return fmt.Errorf("worker subscriber: %w", err)
	}
	defer stopWake()

	// --- HTTP ---
	handlers := &cfhttp.Handlers{
		Reviews:     reviewSvc,
		Agents:      agentSvc,
		Queue:       queueSvc,
		Stats:       service.NewStatsService(store),
		Extractions: service.NewExtractionService(store),
		Checks:      healthChecks(store, queue),
		BodyLimit:   cfg.Server.BodyLimit,
	}
	router, stopRouter := newRouter(cfg, handlers)
	defer stopRouter()
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// --- Run ---
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return workerSvc.Run(gctx) })
	g.Go(func() error { return relay.Run(gctx) })
	g.Go(func() error { return reviewSvc.RunSweeper(gctx) })
	g.Go(func() error { return queueSvc.RunLeaseSweeper(gctx, cfg.Queue.ProcessingLease) })
	g.Go(func() error {
		slog.Info("starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	err = g.Wait()
	if derr := queue.Drain(); derr != nil {
		slog.Warn("nats drain", "error", derr)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("shutdown complete")
	return nil
}

// newRouter builds the chi router with the middleware stack. The returned
// func stops the rate limiter cleanup.
func newRouter(cfg *config.Config, h *cfhttp.Handlers) (http.Handler, func()) {
	r := chi.NewRouter()
	stop := func() {}

	r.Use(middleware.RequestID)
	r.Use(cfhttp.Logger)
	r.Use(chimw.Recoverer)
	r.Use(cfhttp.SecurityHeaders)
	r.Use(cfhttp.CORS(cfg.Server.CORSOrigin))
	if cfg.Server.RateLimitRPS > 0 {
		limiter := middleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)
		stop = limiter.StartCleanup(time.Minute, 10*time.Minute)
		r.Use(limiter.Handler)
	}
	r.Use(chimw.Timeout(requestTimeout))
	r.Use(cfotel.HTTPMiddleware(cfg.OTEL.ServiceName))

	cfhttp.MountRoutes(r, h)
	return r, stop
}

// healthChecks probes the database and the NATS connection.
func healthChecks(store *postgres.Store, q *cfnats.Queue) []cfhttp.HealthCheck {
	return []cfhttp.HealthCheck{
		{Name: "postgres", Check: store.Ping},
		{Name: "nats", Check: func(context.Context) error {
			if !q.IsConnected() {
				return errors.New("disconnected")
			}
			return nil
		}},
	}
}
