// Package app wires configuration, storage, domain services and the HTTP
// server together.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/bazaar/internal/domain/cart"
	"github.com/xenking/bazaar/internal/domain/coupon"
	"github.com/xenking/bazaar/internal/domain/order"
	"github.com/xenking/bazaar/internal/handler"
	redisstore "github.com/xenking/bazaar/internal/storage/redis"
	"github.com/xenking/bazaar/pkg/health"
	"github.com/xenking/bazaar/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage),
	)

	store, err := openStorage(ctx, lg, cfg)
	if err != nil {
		return errors.Wrap(err, "open storage")
	}
	defer store.close()

	idem, closeRedis, err := openIdempotency(ctx, cfg.Redis)
	if err != nil {
		return errors.Wrap(err, "open idempotency store")
	}
	defer closeRedis()

	healthSvc := health.New()
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	if store.ping != nil {
		healthSvc.AddReadinessCheck(cfg.Storage, 5*time.Second, health.PingCheck(store.ping))
	}

	if idem != nil {
		healthSvc.AddReadinessCheck("redis", 2*time.Second, health.PingCheck(idem))
	} else {
		lg.Info("Redis not configured, Idempotency-Key headers are ignored")
	}

	srv, err := newHTTPHandler(ctx, lg, cfg, store, idem, healthSvc, m.MeterProvider(), m.TracerProvider())
	if err != nil {
		return err
	}

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           srv,
	}
	healthSvc.SetReady(true)

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// newHTTPHandler builds the services on store and returns the instrumented
// handler serving the API and the probes. A nil idem disables
// Idempotency-Key handling.
func newHTTPHandler(
	ctx context.Context,
	lg *zap.Logger,
	cfg *Config,
	store *backend,
	idem *redisstore.IdempotencyStore,
	healthSvc *health.Health,
	mp metric.MeterProvider,
	tp trace.TracerProvider,
) (http.Handler, error) {
	var orderOpts []order.Option
	if idem != nil {
		orderOpts = append(orderOpts, order.WithIdempotency(idem))
	}

	// Domain services.
	cartService := cart.NewService(store.carts, store.products)
	orderService := order.NewService(store.tx, store.orders, store.carts, store.products, store.coupons, orderOpts...)
	couponValidator := coupon.NewValidator(store.coupons)
	couponService := coupon.NewService(store.coupons)

	// HTTP handlers.
	authn := handler.NewAuthenticator([]byte(cfg.Auth.JWTSecret), cfg.Auth.Issuer)
	h, err := handler.NewHandler(cartService, orderService, couponValidator, couponService, authn, mp)
	if err != nil {
		return nil, errors.Wrap(err, "create handler")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/", h.Routes())

	api := httpmiddleware.Wrap(mux,
		httpmiddleware.InjectLogger(lg),
		httpmiddleware.RequestID(),
		httpmiddleware.Recovery(),
		httpmiddleware.LogRequests(),
		httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
			Max:    cfg.RateLimit.Max,
			Window: cfg.RateLimit.Window,
		}),
	)
	return otelhttp.NewHandler(api, "bazaar",
		otelhttp.WithTracerProvider(tp),
		otelhttp.WithMeterProvider(mp),
	), nil
}
