package app

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/bazaar/internal/domain/cart"
	"github.com/xenking/bazaar/internal/domain/coupon"
	"github.com/xenking/bazaar/internal/domain/order"
	"github.com/xenking/bazaar/internal/domain/product"
	"github.com/xenking/bazaar/internal/fixtures"
	"github.com/xenking/bazaar/internal/storage/memory"
	"github.com/xenking/bazaar/internal/storage/postgres"
	redisstore "github.com/xenking/bazaar/internal/storage/redis"
	"github.com/xenking/bazaar/pkg/health"
)

// couponStore serves both redemption and vendor management.
type couponStore interface {
	coupon.Repository
	coupon.VendorRepository
}

// backend is the set of repositories the services are built from.
type backend struct {
	tx       order.Transactor
	products product.Repository
	coupons  couponStore
	carts    cart.Repository
	orders   order.Repository

	// ping is nil for backends without a remote dependency.
	ping  health.Pinger
	close func()
}

func openStorage(ctx context.Context, lg *zap.Logger, cfg *Config) (*backend, error) {
	switch cfg.Storage {
	case StorageMemory:
		return openMemory(lg), nil
	case StoragePostgres:
		return openPostgres(ctx, cfg)
	default:
		return nil, errors.Errorf("unknown storage backend %q", cfg.Storage)
	}
}

func openPostgres(ctx context.Context, cfg *Config) (*backend, error) {
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.MaxConns)
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "run migrations")
	}
	return &backend{
		tx:       postgres.NewTransactor(pool),
		products: postgres.NewProductRepository(pool),
		coupons:  postgres.NewCouponRepository(pool),
		carts:    postgres.NewCartRepository(pool),
		orders:   postgres.NewOrderRepository(pool),
		ping:     pool,
		close:    pool.Close,
	}, nil
}

// openMemory returns a process-local store preloaded with the demo catalog.
func openMemory(lg *zap.Logger) *backend {
	store := memory.New()
	products := fixtures.Products()
	for _, p := range products {
		store.PutProduct(p)
	}
	coupons := fixtures.Coupons(time.Now())
	for _, c := range coupons {
		store.PutCoupon(c)
	}
	lg.Warn("Using in-memory storage, data is lost on restart",
		zap.Int("products", len(products)),
		zap.Int("coupons", len(coupons)),
	)
	return &backend{
		tx:       store,
		products: store.Products(),
		coupons:  store.Coupons(),
		carts:    store.Carts(),
		orders:   store.Orders(),
		close:    func() {},
	}
}

// newRedisClient accepts either host:port or a redis:// URL.
func newRedisClient(cfg RedisConfig) (*redis.Client, error) {
	if strings.HasPrefix(cfg.Addr, "redis://") || strings.HasPrefix(cfg.Addr, "rediss://") {
		opts, err := redis.ParseURL(cfg.Addr)
		if err != nil {
			return nil, errors.Wrap(err, "parse redis url")
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}), nil
}

// openIdempotency connects the Redis idempotency store. It returns a nil
// store when Redis is not configured.
func openIdempotency(ctx context.Context, cfg RedisConfig) (*redisstore.IdempotencyStore, func(), error) {
	if cfg.Addr == "" {
		return nil, func() {}, nil
	}
	rdb, err := newRedisClient(cfg)
	if err != nil {
		return nil, nil, err
	}
	store := redisstore.NewIdempotencyStore(rdb, cfg.TTL)
	if err := store.Ping(ctx); err != nil {
		_ = rdb.Close()
		return nil, nil, errors.Wrap(err, "ping redis")
	}
	return store, func() { _ = rdb.Close() }, nil
}
