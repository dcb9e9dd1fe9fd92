package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/odyssey-erp/replenishment/internal/catalog"
	"github.com/odyssey-erp/replenishment/internal/demand"
	"github.com/odyssey-erp/replenishment/internal/erp"
	"github.com/odyssey-erp/replenishment/internal/integration"
	"github.com/odyssey-erp/replenishment/internal/inventory"
	jobmetrics "github.com/odyssey-erp/replenishment/internal/jobs"
	"github.com/odyssey-erp/replenishment/internal/observability"
	"github.com/odyssey-erp/replenishment/internal/periods"
	"github.com/odyssey-erp/replenishment/internal/pipeline"
	"github.com/odyssey-erp/replenishment/internal/platform/cache"
	"github.com/odyssey-erp/replenishment/internal/platform/db"
	"github.com/odyssey-erp/replenishment/internal/procurement"
	"github.com/odyssey-erp/replenishment/internal/procurement/plan"
	"github.com/odyssey-erp/replenishment/internal/runlog"
)

// Runtime holds the connections and services shared by the binaries.
type Runtime struct {
	Config   *Config
	Logger   *zap.Logger
	Pool     *pgxpool.Pool
	Redis    *redis.Client
	Resolver *periods.Resolver
	Metrics  *observability.Metrics
	Runner   *pipeline.Runner
	Sealer   *integration.Sealer
}

// NewRuntime opens Postgres and Redis and wires every stage.
func NewRuntime(ctx context.Context, cfg *Config, logger *zap.Logger) (*Runtime, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	sealer, err := integration.NewSealer(cfg.IntegrationSecret)
	if err != nil {
		return nil, err
	}

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	rt := &Runtime{
		Config:   cfg,
		Logger:   logger,
		Pool:     pool,
		Redis:    redisClient,
		Resolver: periods.NewResolver(cfg.Location(), periods.NewLabeler(cfg.LabelLocale)),
		Metrics:  observability.NewMetrics(),
		Sealer:   sealer,
	}
	rt.Runner = rt.buildRunner()
	return rt, nil
}

func (rt *Runtime) buildRunner() *pipeline.Runner {
	cfg := rt.Config
	credentials := integration.NewResolver(
		integration.NewRepository(rt.Pool),
		cfg.ERPProvider,
		integration.Credentials{BaseURL: cfg.ERPBaseURL, Token: cfg.ERPToken},
		rt.Sealer,
	)
	client := erp.NewClient(erp.Config{
		MovementPath:      cfg.ERPMovementPath,
		PurchaseOrderPath: cfg.ERPPurchaseOrderPath,
		Timeout:           cfg.ERPTimeout,
		RateLimit:         cfg.ERPRateLimit,
		StatusKey:         cfg.POStatusKey,
		StatusValue:       cfg.POStatusValue,
		ExtraStatusKeys:   cfg.POExtraStatusKeys,
		Include:           cfg.POInclude,
		PageSize:          cfg.POPageSize,
		MaxPages:          cfg.POMaxPages,
		Location:          cfg.Location(),
	}, credentials, nil)

	store := catalog.NewStore(rt.Pool, cfg.Location(), cfg.CatalogBatchSize)
	snapshots := inventory.NewRepository(rt.Pool)
	logger := rt.Logger

	services := pipeline.Services{
		Movements: inventory.NewService(snapshots, client, rt.Resolver,
			inventory.ServiceConfig{TargetWarehouse: cfg.TargetWarehouse}, logger.Named("movements")),
		Demand:     demand.NewService(store, snapshots, rt.Resolver, logger.Named("demand")),
		InTransit:  procurement.NewService(procurement.NewRepository(rt.Pool), client, store, logger.Named("in-transit")),
		Quantities: plan.NewQuantityService(store, rt.Resolver, cfg.WarmupDays, logger.Named("quantities")),
		Schedule:   plan.NewScheduler(store, rt.Resolver, cfg.ScheduleHorizon, logger.Named("schedule")),
	}
	return pipeline.NewRunner(services,
		runlog.NewStore(rt.Redis, cfg.RunlogTTL),
		jobmetrics.NewMetrics(rt.Metrics.Registerer()),
		logger,
	)
}

// HealthChecks probes Postgres and Redis.
func (rt *Runtime) HealthChecks() map[string]HealthCheck {
	return map[string]HealthCheck{
		"postgres": func(ctx context.Context) error { return rt.Pool.Ping(ctx) },
		"redis":    func(ctx context.Context) error { return rt.Redis.Ping(ctx).Err() },
	}
}

// Close releases connections.
func (rt *Runtime) Close() {
	if rt == nil {
		return
	}
	if rt.Redis != nil {
		if err := rt.Redis.Close(); err != nil {
			rt.Logger.Warn("redis close", zap.Error(err))
		}
	}
	if rt.Pool != nil {
		rt.Pool.Close()
	}
}
