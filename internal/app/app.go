// Package app wires the pipeline together and manages its lifecycle.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	goredis "github.com/redis/go-redis/v9"

	"github.com/linkpipe/linkpipe/internal/config"
	"github.com/linkpipe/linkpipe/internal/database"
	"github.com/linkpipe/linkpipe/internal/distribute"
	"github.com/linkpipe/linkpipe/internal/enhance"
	"github.com/linkpipe/linkpipe/internal/ingest"
	"github.com/linkpipe/linkpipe/internal/logger"
	"github.com/linkpipe/linkpipe/internal/metrics"
	"github.com/linkpipe/linkpipe/internal/normalize"
	"github.com/linkpipe/linkpipe/internal/quota"
	"github.com/linkpipe/linkpipe/internal/redis"
	"github.com/linkpipe/linkpipe/internal/resolver"
	"github.com/linkpipe/linkpipe/internal/scheduler"
	"github.com/linkpipe/linkpipe/internal/transport"
)

// App holds the wired pipeline with all its dependencies.
type App struct {
	config      *config.Config
	logger      logger.Logger
	db          *sqlx.DB
	redisClient *goredis.Client
	extractor   *ingest.Extractor
	seenCache   *ingest.SeenCache
	scheduler   *scheduler.Scheduler
	version     string
	configPath  string
}

// Options contains configuration for creating a new App.
type Options struct {
	ConfigPath string
	Version    string
}

// New creates an App with every dependency initialized and verified.
func New(opts Options) (*App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	appLogger, err := logger.NewLogger(cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	appLogger = appLogger.With(
		logger.String("service", "linkpipe"),
		logger.String("version", opts.Version),
	)

	db, err := database.NewPostgresConnection(database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		_ = appLogger.Sync()
		return nil, err
	}

	if migrateErr := database.Migrate(context.Background(), db); migrateErr != nil {
		db.Close()
		_ = appLogger.Sync()
		return nil, fmt.Errorf("apply schema: %w", migrateErr)
	}

	redisClient, err := redis.NewClient(cfg.Redis.URL, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		db.Close()
		_ = appLogger.Sync()
		return nil, err
	}

	links := database.NewLinkRepository(db)
	destinations := database.NewDestinationRepository(db)
	registry := database.NewRegistryRepository(db)
	sendLog := database.NewSendLogRepository(db)

	tracker := metrics.NewRedisTracker(redisClient, appLogger)
	seenCache := ingest.NewSeenCache(redisClient, cfg.Ingest.SeenCacheTTL, appLogger)

	extractor := ingest.NewExtractor(
		links, registry, destinations, seenCache, tracker,
		cfg.Ingest.NoiseDomains, appLogger,
	)

	resolverClient, err := resolver.NewHTTPClient(cfg.Resolver.URL, cfg.Resolver.Timeout, appLogger)
	if err != nil {
		db.Close()
		_ = appLogger.Sync()
		return nil, fmt.Errorf("create resolver client: %w", err)
	}

	var enhancer resolver.Enhancer
	if cfg.Enhancer.Enabled {
		describer, enhanceErr := enhance.NewDescriber(
			cfg.Enhancer.URL, cfg.Enhancer.APIKey, cfg.Enhancer.Model,
			cfg.Enhancer.Timeout, appLogger,
		)
		if enhanceErr != nil {
			db.Close()
			_ = appLogger.Sync()
			return nil, fmt.Errorf("create description enhancer: %w", enhanceErr)
		}
		enhancer = describer
	}

	engine := resolver.NewEngine(resolverClient, enhancer, resolver.Config{
		MaxAttempts:  cfg.Resolver.MaxAttempts,
		SettleDelay:  cfg.Resolver.SettleDelay,
		PollInterval: cfg.Resolver.PollInterval,
		MaxChecks:    cfg.Resolver.MaxChecks,
	}, appLogger)

	sender, err := transport.NewHTTPSender(
		cfg.Transport.URL, cfg.Transport.Token,
		cfg.Transport.Timeout, cfg.Transport.RateLimitRPS, appLogger,
	)
	if err != nil {
		db.Close()
		_ = appLogger.Sync()
		return nil, fmt.Errorf("create transport sender: %w", err)
	}

	quotaManager := quota.NewManager(destinations, appLogger)
	composer := normalize.NewComposer(cfg.Composer.IncludeDescription)

	distributor := distribute.NewDistributor(
		links, sendLog, destinations, quotaManager, sender, composer, tracker,
		distribute.Config{
			ClaimBatchSize: cfg.Scheduler.ClaimBatchSize,
			InterSendPause: cfg.Scheduler.InterSendPause,
		},
		appLogger,
	)

	sched := scheduler.NewScheduler(
		links, engine, distributor, quotaManager, tracker,
		scheduler.Config{
			ProcessInterval:   cfg.Scheduler.ProcessInterval,
			SendInterval:      cfg.Scheduler.SendInterval,
			PendingBatchSize:  cfg.Scheduler.PendingBatchSize,
			InterLinkPause:    cfg.Scheduler.InterLinkPause,
			TemporaryCooldown: cfg.Scheduler.TemporaryCooldown,
			TemporaryMaxAge:   cfg.Scheduler.TemporaryMaxAge,
			PromoteBatchSize:  cfg.Scheduler.PromoteBatchSize,
			StaleClaimAge:     cfg.Scheduler.StaleClaimAge,
		},
		appLogger,
	)

	return &App{
		config:      cfg,
		logger:      appLogger,
		db:          db,
		redisClient: redisClient,
		extractor:   extractor,
		seenCache:   seenCache,
		scheduler:   sched,
		version:     opts.Version,
		configPath:  opts.ConfigPath,
	}, nil
}

// Run starts the scheduler and blocks until the context is canceled or a
// shutdown signal arrives.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.logger.Info("Starting link pipeline",
		logger.String("config_path", a.configPath),
		logger.Bool("debug", a.config.Debug),
	)

	if err := a.scheduler.Start(runCtx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		a.logger.Info("Shutting down gracefully",
			logger.String("signal", sig.String()),
		)
	case <-ctx.Done():
	}

	cancel()
	a.scheduler.Stop()
	a.logger.Info("Service stopped")
	return nil
}

// Extractor exposes the ingestion entry point for the chat-transport
// collaborator.
func (a *App) Extractor() *ingest.Extractor {
	return a.extractor
}

// FlushCache clears the seen-URL cache. Used by the -flush-cache flag.
func (a *App) FlushCache(ctx context.Context) (int64, error) {
	return a.seenCache.Flush(ctx)
}

// Close releases the database and Redis connections.
func (a *App) Close() error {
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("Failed to close Redis client", logger.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("Failed to close database", logger.Error(err))
		}
	}
	return a.logger.Sync()
}

// Logger returns the application logger.
func (a *App) Logger() logger.Logger {
	return a.logger
}
