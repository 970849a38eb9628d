// Command seed-db loads the demo catalog into PostgreSQL and prints bearer
// tokens for the demo principals.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/bazaar/internal/domain/auth"
	"github.com/xenking/bazaar/internal/fixtures"
	"github.com/xenking/bazaar/internal/handler"
	"github.com/xenking/bazaar/internal/storage/postgres"
)

func main() {
	var (
		databaseURL string
		jwtSecret   string
		issuer      string
		tokenTTL    time.Duration
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&jwtSecret, "jwt-secret", "", "HMAC secret used to sign demo tokens (or BAZAAR_AUTH_JWT_SECRET env)")
	flag.StringVar(&issuer, "issuer", "bazaar", "issuer claim of demo tokens")
	flag.DurationVar(&tokenTTL, "token-ttl", 24*time.Hour, "lifetime of demo tokens")
	flag.Parse()

	lg, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, "create logger:", err)
		os.Exit(1)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}
	if jwtSecret == "" {
		jwtSecret = os.Getenv("BAZAAR_AUTH_JWT_SECRET")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, databaseURL); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")

	if jwtSecret == "" {
		lg.Info("No JWT secret given, skipping demo tokens")
		return
	}
	if err := printTokens(handler.NewAuthenticator([]byte(jwtSecret), issuer), tokenTTL); err != nil {
		lg.Fatal("Issue tokens", zap.Error(err))
	}
}

func run(ctx context.Context, lg *zap.Logger, databaseURL string) error {
	lg.Info("Connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL, 2)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("Running migrations")
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	products := postgres.NewProductRepository(pool)
	for _, p := range fixtures.Products() {
		if err := products.Upsert(ctx, p); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}
		lg.Info("Upserted product",
			zap.String("id", p.ID),
			zap.String("vendor", p.VendorID),
			zap.Int("stock", p.Stock),
		)
	}

	coupons := fixtures.Coupons(time.Now())
	if err := postgres.NewCouponRepository(pool).UpsertBatch(ctx, coupons); err != nil {
		return errors.Wrap(err, "upsert coupons")
	}
	for _, c := range coupons {
		lg.Info("Upserted coupon",
			zap.String("code", c.Code),
			zap.Int("discount_percent", c.DiscountPercent),
			zap.Int("max_uses", c.MaxUses),
		)
	}
	return nil
}

func printTokens(authn *handler.Authenticator, ttl time.Duration) error {
	for _, p := range []auth.Principal{fixtures.Customer, fixtures.Acme, fixtures.Globex} {
		token, err := authn.Issue(p, ttl)
		if err != nil {
			return errors.Wrapf(err, "issue token for %s", p.ID)
		}
		fmt.Printf("%s (%s): %s\n", p.ID, p.Role, token)
	}
	return nil
}
