package accrual

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/aluga-erp/aluga/internal/shared"
)

// Repository reads correction index values from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// RawIndex implements IndexSource. Values are stored as text because several
// providers publish them with a comma decimal separator.
func (r *Repository) RawIndex(ctx context.Context, ref IndexRef) (string, error) {
	var raw string
	err := r.pool.QueryRow(ctx, `SELECT raw_value FROM correction_indexes
WHERE index_name = $1 AND month = $2 AND year = $3`, ref.Name, ref.Month, ref.Year).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("accrual: index %s: %w", ref, shared.ErrNotFound)
		}
		return "", err
	}
	return raw, nil
}

// CachedIndexSource caches raw index values in Redis. Index values for a closed
// month never change, so only hits are cached.
type CachedIndexSource struct {
	next   IndexSource
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

// NewCachedIndexSource wraps next with a Redis read-through cache.
func NewCachedIndexSource(next IndexSource, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedIndexSource {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CachedIndexSource{next: next, client: client, ttl: ttl, logger: logger}
}

// RawIndex implements IndexSource.
func (c *CachedIndexSource) RawIndex(ctx context.Context, ref IndexRef) (string, error) {
	key := indexCacheKey(ref)
	if c.client != nil {
		val, err := c.client.Get(ctx, key).Result()
		if err == nil {
			return val, nil
		}
		if !errors.Is(err, redis.Nil) {
			c.log().Warn("index cache read", slog.String("key", key), slog.Any("error", err))
		}
	}
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		raw, err := c.next.RawIndex(ctx, ref)
		if err != nil {
			return "", err
		}
		if c.client != nil {
			if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
				c.log().Warn("index cache write", slog.String("key", key), slog.Any("error", err))
			}
		}
		return raw, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *CachedIndexSource) log() *slog.Logger {
	if c.logger != nil {
		return c.logger
	}
	return slog.Default()
}

func indexCacheKey(ref IndexRef) string {
	return fmt.Sprintf("aluga:index:%s:%04d-%02d", ref.Name, ref.Year, ref.Month)
}
