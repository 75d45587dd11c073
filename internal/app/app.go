package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"HustleCollector/internal/api"
	"HustleCollector/internal/config"
	"HustleCollector/internal/domain"
	"HustleCollector/internal/health"
	"HustleCollector/internal/infrastructure/connector"
	"HustleCollector/internal/infrastructure/llm"
	"HustleCollector/internal/infrastructure/scheduler"
	"HustleCollector/internal/infrastructure/storage"
	"HustleCollector/internal/infrastructure/telegram"
	"HustleCollector/internal/logging"
	"HustleCollector/internal/metrics"
	"HustleCollector/internal/ports"
	"HustleCollector/internal/source"
	"HustleCollector/internal/usecase"
)

const sourceHTTPTimeout = 20 * time.Second

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	db        *sql.DB
	metrics   *metrics.Metrics
	cases     *usecase.CaseService
	collector *usecase.Collector
	scheduler *usecase.Scheduler
	checker   *health.Checker
}

// New builds the application: storage, connectors, extractor, collector
// and the services behind the HTTP surface.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	repo, db, err := openRepository(ctx, cfg.Database, baseLogger.With("component", "storage"))
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	registry := buildRegistry(cfg.Sources, baseLogger)
	extractor := llm.NewExtractor(cfg.AI, baseLogger.With("component", "extractor"))

	deps := usecase.CollectorDeps{
		Connectors: registry.All(),
		Extractor:  extractor,
		Repository: repo,
		Metrics:    m,
		Logger:     baseLogger.With("component", "collector"),
		Config:     cfg.Collection,
	}
	if notifier := telegram.NewNotifier(cfg.Notifications.Telegram); notifier != nil {
		deps.Notifier = notifier
	}
	collector := usecase.NewCollector(deps)

	var sched *usecase.Scheduler
	if cfg.Scheduler.Enabled {
		driver := scheduler.NewCronScheduler(cfg.Scheduler.CronExpression, cfg.Scheduler.Location())
		sched = usecase.NewScheduler(driver, collector, baseLogger.With("component", "scheduler"))
	}

	baseLogger.Info("application configured",
		"driver", cfg.Database.Driver,
		"sources", strings.Join(registry.Names(), ","),
		"provider", extractor.CurrentProvider(),
		"scheduler", cfg.Scheduler.Enabled,
	)

	return &Application{
		cfg:       cfg,
		logger:    baseLogger,
		db:        db,
		metrics:   m,
		cases:     usecase.NewCaseService(repo, m, baseLogger.With("component", "cases")),
		collector: collector,
		scheduler: sched,
		checker:   health.NewChecker(repo, extractor, cfg.AI.ProbeTimeout+time.Second),
	}, nil
}

func openRepository(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (ports.CaseRepository, *sql.DB, error) {
	switch strings.ToLower(cfg.Driver) {
	case "memory":
		logger.Warn("using in-memory case store; data is lost on exit")
		return storage.NewMemoryRepository(), nil, nil
	case "postgres", "":
		db, err := storage.OpenPostgres(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		if cfg.MigrateOnStart {
			if err := storage.RunMigrations(db, logger); err != nil {
				_ = db.Close()
				return nil, nil, err
			}
		}
		return storage.NewPostgresRepository(db, cfg.QueryTimeout), db, nil
	default:
		return nil, nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

func buildRegistry(cfg config.SourcesConfig, logger *slog.Logger) *source.Registry {
	client := &http.Client{Timeout: sourceHTTPTimeout}
	registry := source.NewRegistry()
	if cfg.Reddit.Enabled {
		registry.Register(connector.NewRedditConnector(cfg.Reddit, client, logger.With("component", "connector.reddit")))
	}
	if cfg.ProductHunt.Enabled {
		registry.Register(connector.NewProductHuntConnector(cfg.ProductHunt, client, logger.With("component", "connector.producthunt")))
	}
	if cfg.IndieHackers.Enabled {
		registry.Register(connector.NewIndieHackersConnector(cfg.IndieHackers, client, logger.With("component", "connector.indiehackers")))
	}
	return registry
}

// Serve runs the HTTP API and, when enabled, the collection scheduler until
// ctx is cancelled, then shuts both down gracefully.
func (a *Application) Serve(ctx context.Context) error {
	router := api.NewRouter(api.Deps{
		Cases:        a.cases,
		Runs:         a.collector,
		Health:       a.checker,
		Metrics:      a.metrics,
		Logger:       a.logger.With("component", "http"),
		QueryTimeout: a.cfg.Database.QueryTimeout,
	})

	srv := &http.Server{
		Addr:         a.cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
		IdleTimeout:  a.cfg.HTTP.ReadTimeout,
	}

	if a.scheduler != nil {
		if err := a.scheduler.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", "addr", a.cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if a.scheduler != nil {
		if err := a.scheduler.Stop(shutdownCtx); err != nil {
			a.logger.Warn("scheduler stop failed", "error", err)
		}
	}
	if err := a.collector.Close(shutdownCtx); err != nil {
		a.logger.Warn("collector did not stop in time", "error", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	a.logger.Info("server exited gracefully")
	return nil
}

// Collect performs a single synchronous collection run.
func (a *Application) Collect(ctx context.Context, opts usecase.RunOptions) (domain.RunReport, error) {
	return a.collector.Run(ctx, opts)
}

// Backfill fills missing source types.
func (a *Application) Backfill(ctx context.Context) (int, error) {
	return a.cases.BackfillSourceTypes(ctx)
}

// Close releases the database handle.
func (a *Application) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

// Migrate applies (or with down, rolls back one step of) the schema
// without building the rest of the application.
func Migrate(ctx context.Context, cfg config.DatabaseConfig, down bool, logger *slog.Logger) error {
	if strings.EqualFold(cfg.Driver, "memory") {
		return errors.New("migrations need the postgres driver")
	}
	db, err := storage.OpenPostgres(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if down {
		return storage.MigrateDown(db, logger)
	}
	return storage.RunMigrations(db, logger)
}
