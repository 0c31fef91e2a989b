// Package app wires the order API together and runs it.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/franchise-orders/internal/domain/auth"
	"github.com/xenking/franchise-orders/internal/domain/catalog"
	"github.com/xenking/franchise-orders/internal/domain/client"
	"github.com/xenking/franchise-orders/internal/domain/order"
	"github.com/xenking/franchise-orders/internal/handler"
	"github.com/xenking/franchise-orders/internal/storage/postgres"
	"github.com/xenking/franchise-orders/pkg/health"
	"github.com/xenking/franchise-orders/pkg/httpmiddleware"
)

const serviceName = "orders-api"

// Run creates all dependencies, serves HTTP until ctx is cancelled and then
// drains gracefully.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	pool, err := postgres.NewPool(ctx, cfg.Database.Pool())
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := health.New(lg.Named("health"))
	healthSvc.Add(health.Check{
		Name:    "postgres",
		Probe:   health.Readiness,
		Timeout: cfg.Health.DatabaseTimeout,
		Func:    health.DatabaseCheck(pool),
	})
	healthSvc.Add(health.Check{
		Name:  "goroutines",
		Probe: health.Liveness,
		Func:  health.GoroutineCountCheck(cfg.Health.MaxGoroutines),
	})

	orderStore := postgres.NewOrderStore(pool)
	orders, err := order.NewService(order.ServiceDeps{
		Clients:        client.NewResolver(postgres.NewClientRepository(pool)),
		Catalog:        catalog.NewResolver(postgres.NewCatalogRepository(pool)),
		Store:          orderStore,
		Reader:         orderStore,
		Logger:         lg.Named("orders"),
		WriteTimeout:   cfg.Orders.WriteTimeout,
		MeterProvider:  m.MeterProvider(),
		TracerProvider: m.TracerProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create order service")
	}
	authenticator := auth.NewAuthenticator(postgres.NewAPIKeyRepository(pool), []byte(cfg.APIKeyPepper))
	limiter := httpmiddleware.NewLimiter(cfg.RateLimit.Max, cfg.RateLimit.Window)

	router := newRouter(lg, cfg, handler.New(orders, authenticator), healthSvc, limiter)

	root := httpmiddleware.Wrap(router,
		httpmiddleware.Instrument(serviceName, m.TracerProvider(), m.MeterProvider()),
	)
	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      cfg.Orders.WriteTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           root,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return healthSvc.Run(gctx, cfg.Health.Interval)
	})
	g.Go(func() error {
		return limiter.Run(gctx)
	})
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown")
		}
		return nil
	})

	healthSvc.SetReady(true)
	return g.Wait()
}

// newRouter assembles the middleware chain, probes and order routes.
func newRouter(lg *zap.Logger, cfg *Config, h *handler.Handler, hs *health.Health, limiter *httpmiddleware.Limiter) http.Handler {
	r := chi.NewRouter()
	r.Use(
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(lg),
		httpmiddleware.Recovery(),
		cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORS.Origins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
			AllowedHeaders:   []string{"Content-Type", handler.HeaderAPIKey, httpmiddleware.HeaderRequestID},
			ExposedHeaders:   []string{httpmiddleware.HeaderRequestID, "Retry-After"},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.LogRequests(),
	)
	r.Get("/livez", hs.Live)
	r.Get("/readyz", hs.Ready)
	h.Mount(r, httpmiddleware.Throttle(limiter, handler.PrincipalKey(httpmiddleware.ClientIP)))
	return r
}
