package app

import (
	"context"
	"time"

	"autoapply/internal/config"
	"autoapply/internal/database"
	dbpostgres "autoapply/internal/database/postgres"
	"autoapply/internal/infrastructure/cache"
	"autoapply/internal/infrastructure/generator"
	"autoapply/internal/infrastructure/mailer"
	"autoapply/internal/infrastructure/resolver"
	"autoapply/internal/metrics"
	"autoapply/internal/pipeline"
	"autoapply/internal/pkg/logging"
	"autoapply/internal/pkg/retry"
	"autoapply/internal/repository"
	"autoapply/internal/source"
	"autoapply/internal/usecase"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Container owns every long-lived dependency shared by the API server and
// the dispatch job.
type Container struct {
	Config   config.Config
	Logger   *logging.Logger
	DB       database.DB
	Redis    *cache.Redis
	Registry *prometheus.Registry
	Metrics  *metrics.Collector

	Listings     *repository.PostgresListingRepository
	Users        *repository.PostgresUserRepository
	Resumes      *repository.PostgresResumeRepository
	Tracked      *repository.PostgresTrackedListingRepository
	Applications *repository.PostgresApplicationRepository

	Limiter        *usecase.RateLimiter
	Guard          *usecase.DuplicateGuard
	ApplicationUC  *usecase.Applications
	TrackedUC      *usecase.TrackedListings
	SettingsUC     *usecase.Settings
	DispatchStatus *usecase.DispatchStatus
	Generator      generator.Client
	Resolver       resolver.Client
}

func NewContainer(cfg config.Config, logger *logging.Logger) (*Container, error) {
	if logger == nil {
		logger = logging.Nop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := dbpostgres.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.NewCollector(reg)

	c := &Container{
		Config:   cfg,
		Logger:   logger,
		DB:       db,
		Redis:    cache.NewRedis(cfg.Redis, logger.With("component", "redis")),
		Registry: reg,
		Metrics:  rec,

		Listings:     repository.NewPostgresListingRepository(db),
		Users:        repository.NewPostgresUserRepository(db),
		Resumes:      repository.NewPostgresResumeRepository(db),
		Tracked:      repository.NewPostgresTrackedListingRepository(db),
		Applications: repository.NewPostgresApplicationRepository(db),

		Generator: generator.NewClient(cfg.Outbound, logger.With("component", "generator")),
		Resolver:  resolver.NewClient(cfg.Outbound, logger.With("component", "resolver")),
	}

	c.Limiter = usecase.NewRateLimiter(c.Users, c.Applications, cfg.Dispatch.DefaultTimezone, rec, logger.With("component", "limiter"))
	c.Guard = usecase.NewDuplicateGuard(c.Applications, cfg.Dispatch.DuplicateWindow)
	c.ApplicationUC = usecase.NewApplicationUsecase(
		c.Applications,
		c.Tracked,
		c.Limiter,
		mailer.NewRelayTransport(cfg.Outbound, logger.With("component", "mailer")),
		retry.New(cfg.Dispatch.MaxRetries, cfg.Outbound.RetryBaseDelay),
		rec,
		logger.With("component", "applications"),
		usecase.ApplicationOptions{
			MaxRetries:       cfg.Dispatch.MaxRetries,
			StuckAfter:       cfg.Dispatch.StuckAfter,
			TransportTimeout: cfg.Outbound.TransportTimeout,
			RequeueDelay:     cfg.Dispatch.RequeueDelay,
		},
	)
	c.TrackedUC = usecase.NewTrackedListingUsecase(c.Tracked)
	c.SettingsUC = usecase.NewSettingsUsecase(c.Users, c.Limiter, c.Redis, cfg.Redis.StatsTTL)
	c.DispatchStatus = usecase.NewDispatchStatusUsecase(c.Listings, db, c.Redis)

	return c, nil
}

func (c *Container) DispatchPipeline() *pipeline.DispatchPipeline {
	return pipeline.NewDispatchPipeline(pipeline.DispatchDeps{
		Listings:     c.Listings,
		Users:        c.Users,
		Resumes:      c.Resumes,
		Tracked:      c.Tracked,
		Applications: c.Applications,
		Sender:       c.ApplicationUC,
		Limiter:      c.Limiter,
		Guard:        c.Guard,
		Generator:    c.Generator,
		Resolver:     c.Resolver,
		Coordinator:  c.Redis,
		Metrics:      c.Metrics,
		Logger:       c.Logger,
	}, c.Config.Dispatch)
}

// IngestPipeline loads the source file and builds one fetcher per target.
func (c *Container) IngestPipeline() (*pipeline.IngestPipeline, error) {
	targets, queries, err := config.LoadSources(c.Config.Sources)
	if err != nil {
		return nil, err
	}
	fetchers := source.Build(targets, c.Logger.With("component", "source"))
	return pipeline.NewIngestPipeline(fetchers, queries, c.Config.Sources.Workers, c.Listings, c.Metrics, c.Logger), nil
}

func (c *Container) Close() error {
	if c == nil {
		return nil
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.DB == nil {
		return nil
	}
	return c.DB.Close()
}
