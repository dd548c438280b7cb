package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/ecojiaflow/ecolojia/internal/config"
	handler "github.com/ecojiaflow/ecolojia/internal/handler/http"
	"github.com/ecojiaflow/ecolojia/internal/repository/postgres"
	"github.com/ecojiaflow/ecolojia/internal/search"
	esengine "github.com/ecojiaflow/ecolojia/internal/search/elasticsearch"
	"github.com/ecojiaflow/ecolojia/internal/search/memory"
	"github.com/ecojiaflow/ecolojia/internal/searchsync"
	"github.com/ecojiaflow/ecolojia/internal/service"
	"github.com/ecojiaflow/ecolojia/migrations"
	"github.com/ecojiaflow/ecolojia/pkg/database"
	"github.com/ecojiaflow/ecolojia/pkg/health"
	pkgkafka "github.com/ecojiaflow/ecolojia/pkg/kafka"
	"github.com/ecojiaflow/ecolojia/pkg/tracing"
)

// ServiceName labels logs, metrics and traces.
const ServiceName = "catalog-service"

// App wires together all dependencies and runs the catalog service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	dispatcher     searchsync.Dispatcher
	producer       *pkgkafka.Producer
	consumer       *pkgkafka.Consumer
	dlq            *pkgkafka.DLQProducer
	redisClient    *redis.Client
	tracerShutdown func(context.Context) error
	httpServer     *http.Server
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}

	shutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:  ServiceName,
		Environment:  cfg.Environment,
		OTLPEndpoint: cfg.OTELEndpoint,
		SampleRate:   cfg.OTELSampleRate,
		Enabled:      cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.tracerShutdown = shutdown

	database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThresholdMs)*time.Millisecond, logger)

	// PostgreSQL is the system of record; startup fails without it.
	pgCfg := cfg.Postgres()
	pool, err := database.NewPostgresPool(ctx, &pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	a.pool = pool
	logger.Info("connected to postgres",
		slog.String("host", cfg.PostgresHost),
		slog.String("database", cfg.PostgresDB),
	)

	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, ServiceName); err != nil {
		logger.Warn("failed to register pool metrics", slog.String("error", err.Error()))
	}

	engine, err := newEngine(ctx, cfg, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	breaker := search.NewBreaker(engine, breakerConfig(cfg), logger)
	indexer := search.NewAdapter(breaker)

	if err := a.initSync(ctx, indexer); err != nil {
		pool.Close()
		return nil, err
	}

	repo := postgres.NewProductRepository(pool)
	catalog := service.NewCatalogService(repo, a.dispatcher, indexer, logger,
		service.WithReindexPageSize(cfg.ReindexPageSize),
	)

	// Health checks. Only the store gates readiness; the index is best effort.
	healthHandler := health.NewHandler()
	healthHandler.Register("postgres", pool.Ping)
	healthHandler.RegisterOptional("search_index", engine.Ping)
	if a.producer != nil {
		healthHandler.RegisterOptional("kafka", a.producer.Ping)
	}
	if a.redisClient != nil {
		healthHandler.RegisterOptional("redis", func(ctx context.Context) error {
			return a.redisClient.Ping(ctx).Err()
		})
	}

	router := handler.NewRouter(catalog, healthHandler, handler.RouterConfig{
		ServiceName:      ServiceName,
		StrictValidation: cfg.StrictValidation,
		RequestTimeout:   cfg.RequestTimeout,
		AdminTimeout:     cfg.AdminRequestTimeout,
		AdminCIDRs:       cfg.AdminAllowedCIDRs,
		PprofCIDRs:       cfg.PprofAllowedCIDRs,
		CORS:             cfg.CORS(),
	}, logger)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      max(cfg.RequestTimeout, cfg.AdminRequestTimeout) + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return a, nil
}

// newEngine builds the configured search engine. The elasticsearch engine
// creates its index on first use.
func newEngine(ctx context.Context, cfg *config.Config, logger *slog.Logger) (search.Engine, error) {
	switch cfg.SearchEngine {
	case config.EngineElasticsearch:
		eng, err := esengine.New(ctx, esengine.Config{
			Addresses: cfg.ElasticsearchURLs,
			Username:  cfg.ElasticsearchUser,
			Password:  cfg.ElasticsearchPassword,
			Index:     cfg.ElasticsearchIndex,
			Refresh:   cfg.ElasticsearchRefresh,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("init elasticsearch engine: %w", err)
		}
		logger.Info("elasticsearch search engine initialized",
			slog.Any("urls", cfg.ElasticsearchURLs),
			slog.String("index", eng.IndexName()),
		)
		return eng, nil
	default:
		logger.Info("in-memory search engine initialized")
		return memory.New(), nil
	}
}

func breakerConfig(cfg *config.Config) search.BreakerConfig {
	bc := search.DefaultBreakerConfig("search-index")
	bc.FailureRatio = cfg.BreakerFailureRatio
	bc.MinRequests = cfg.BreakerMinRequests
	bc.Timeout = cfg.BreakerOpenTimeout
	return bc
}

// initSync builds the dispatcher for the configured sync mode and, for
// kafka, the producer and the in-process consumer that applies the events.
func (a *App) initSync(ctx context.Context, indexer *search.Adapter) error {
	cfg, logger := a.cfg, a.logger

	switch cfg.Mode() {
	case searchsync.ModeInline:
		a.dispatcher = searchsync.NewInline(indexer, cfg.SyncTimeout, logger)
	case searchsync.ModeQueue:
		a.dispatcher = searchsync.NewQueue(indexer, cfg.Queue(), logger)
	case searchsync.ModeKafka:
		producerCfg := pkgkafka.ProducerConfig{Brokers: cfg.KafkaBrokers}
		a.producer = pkgkafka.NewProducer(producerCfg, logger)
		a.dispatcher = searchsync.NewKafka(a.producer, cfg.SyncTimeout, logger)

		store, client := newIdempotencyStore(ctx, cfg, logger)
		a.redisClient = client

		events := searchsync.NewEventHandler(indexer, logger)
		a.dlq = pkgkafka.NewDLQProducer(pkgkafka.NewWriter(producerCfg), logger)
		a.consumer = pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
			Brokers:      cfg.KafkaBrokers,
			GroupID:      cfg.KafkaGroupID,
			Topics:       events.Topics(),
			MaxRetries:   cfg.KafkaMaxRetries,
			RetryBackoff: cfg.KafkaRetryBackoff,
		}, pkgkafka.IdempotentHandler(store, events.Handle, logger), a.dlq, logger)

		logger.Info("kafka sync initialized",
			slog.Any("brokers", cfg.KafkaBrokers),
			slog.Any("topics", events.Topics()),
		)
	default:
		return fmt.Errorf("unsupported sync mode %q", cfg.SyncMode)
	}

	logger.Info("search sync initialized", slog.String("mode", string(cfg.Mode())))
	return nil
}

// newIdempotencyStore prefers Redis so redeliveries are recognized across
// restarts and replicas, and falls back to memory when Redis is down.
func newIdempotencyStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (pkgkafka.IdempotencyStore, *redis.Client) {
	client, err := database.NewRedisClient(ctx, cfg.Redis())
	if err != nil {
		logger.Warn("redis unavailable, using in-memory idempotency store",
			slog.String("addr", cfg.Redis().Addr()),
			slog.String("error", err.Error()),
		)
		return pkgkafka.NewMemoryIdempotencyStore(cfg.IdempotencyTTL), nil
	}
	return pkgkafka.NewRedisIdempotencyStore(client, "catalog:sync:processed:", cfg.IdempotencyTTL), client
}

// Run starts the HTTP server and the Kafka consumer, blocking until the
// context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	if a.consumer != nil {
		go func() {
			if err := a.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("kafka consumer: %w", err)
			}
		}()
	}

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
	}

	return errors.Join(runErr, a.Shutdown())
}

// Shutdown gracefully stops all components. In-flight requests finish
// first, then pending index syncs drain within the same deadline.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if err := a.dispatcher.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("search sync shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.consumer != nil {
		if err := a.consumer.Close(); err != nil {
			a.logger.Error("kafka consumer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.dlq != nil {
		if err := a.dlq.Close(); err != nil {
			a.logger.Error("kafka dlq close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	a.pool.Close()

	if err := a.tracerShutdown(shutdownCtx); err != nil {
		a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
