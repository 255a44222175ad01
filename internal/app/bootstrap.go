package app

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/aluga-erp/aluga/internal/accrual"
	"github.com/aluga-erp/aluga/internal/audit"
	"github.com/aluga-erp/aluga/internal/distribution"
	"github.com/aluga-erp/aluga/internal/observability"
	"github.com/aluga-erp/aluga/internal/ownership"
	"github.com/aluga-erp/aluga/internal/platform/cache"
	"github.com/aluga-erp/aluga/internal/platform/db"
	"github.com/aluga-erp/aluga/internal/settlement"
	"github.com/aluga-erp/aluga/internal/shared"
)

// Infra holds the shared connections of a binary.
type Infra struct {
	Pool  *pgxpool.Pool
	Redis *redis.Client
}

// OpenInfra connects to PostgreSQL and Redis.
func OpenInfra(ctx context.Context, cfg *Config) (*Infra, error) {
	pool, err := db.New(ctx, db.Options{DSN: cfg.PGDSN, MaxConns: cfg.PGMaxConns})
	if err != nil {
		return nil, err
	}
	client, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		pool.Close()
		return nil, err
	}
	return &Infra{Pool: pool, Redis: client}, nil
}

// Close releases the connections.
func (i *Infra) Close(logger *slog.Logger) {
	if i == nil {
		return
	}
	if i.Redis != nil {
		if err := i.Redis.Close(); err != nil && logger != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}
	if i.Pool != nil {
		i.Pool.Close()
	}
}

// Services are the domain services shared by the API, the worker and the CLI.
type Services struct {
	Settlement *settlement.Service
	Ownership  *ownership.Repository
	Resolver   *ownership.Resolver
	Index      *accrual.IndexResolver
	History    *audit.Service
}

// NewServices wires the settlement stack on top of infra.
func NewServices(cfg *Config, infra *Infra, logger *slog.Logger, metrics *observability.Metrics) (*Services, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	ownershipRepo := ownership.NewRepository(infra.Pool)
	resolver := ownership.NewResolver(ownershipRepo, ownershipRepo, logger)

	indexSource := accrual.NewCachedIndexSource(accrual.NewRepository(infra.Pool), infra.Redis, cfg.IndexCacheTTL, logger)
	index := accrual.NewIndexResolver(indexSource, logger)
	index.OnDefault(func(ref accrual.IndexRef, reason string) {
		metrics.ObserveIndexDefault(ref.Name, reason)
	})

	engine := settlement.NewEngine(
		settlement.NewAggregator(accrual.NewCalculator(cfg.AccrualPolicy())),
		distribution.NewEngine(cfg.FeePolicy()),
	)
	locker := shared.NewRedisLocker(infra.Redis, cfg.SettlementLockTTL)

	svc := settlement.NewService(settlement.NewRepository(infra.Pool), resolver, index, engine, locker, logger)
	svc.WithLocation(loc)
	svc.WithAudit(shared.NewAuditLogger(infra.Pool))
	svc.WithIdempotency(shared.NewIdempotencyStore(infra.Pool))
	if metrics != nil {
		svc.WithMetrics(metrics)
	}

	return &Services{
		Settlement: svc,
		Ownership:  ownershipRepo,
		Resolver:   resolver,
		Index:      index,
		History:    audit.NewService(audit.NewRepository(infra.Pool)),
	}, nil
}
