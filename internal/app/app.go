// Package app wires the storefront's dependencies together and runs the
// HTTP server.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/baminaj/storefront/internal/api"
	"github.com/baminaj/storefront/internal/domain/order"
	"github.com/baminaj/storefront/internal/domain/pickup"
	"github.com/baminaj/storefront/internal/notify"
	"github.com/baminaj/storefront/internal/payment/flutterwave"
	"github.com/baminaj/storefront/internal/receipt"
	"github.com/baminaj/storefront/internal/storage/postgres"
	"github.com/baminaj/storefront/pkg/health"
	"github.com/baminaj/storefront/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the change feed listener and the HTTP
// server, and handles graceful shutdown. It is the single wiring point for
// the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, pool.Ping)
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)

	// Repositories.
	productRepo := postgres.NewProductRepository(pool)
	cartStore := postgres.NewCartStore(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	apikeyRepo := postgres.NewAPIKeyRepository(pool)

	// Domain services.
	gateway := flutterwave.New(flutterwave.Config{
		BaseURL:   cfg.Flutterwave.BaseURL,
		SecretKey: cfg.Flutterwave.SecretKey,
		Timeout:   cfg.Flutterwave.Timeout,
	})
	checkout := order.NewService(
		order.NewPriceVerifier(productRepo),
		gateway,
		orderRepo,
		cartStore,
		cfg.Currency,
	)

	renderer, err := receipt.NewRenderer(receipt.Config{
		StoreName:      cfg.Store.Name,
		PickupLocation: cfg.Store.PickupLocation,
		Currency:       cfg.Currency,
	})
	if err != nil {
		return errors.Wrap(err, "create receipt renderer")
	}

	// Change feed consumers: live status fan-out and the scan prefilter. The
	// prefilter stays degraded (passing everything through to authoritative
	// reads) until the feed has connected and backfilled the committed ids,
	// and degrades again whenever the feed drops, so an id committed during
	// an outage is never filtered out.
	hub := notify.NewHub()
	prefilter := pickup.NewPrefilter(cfg.Prefilter.ExpectedOrders)

	listener := postgres.NewOrderListener(pool, orderRepo)
	listener.OnChange = func(o order.Order) {
		prefilter.Add(o.ID)
		hub.Publish(o)
	}
	listener.OnSync = func(ids []string) {
		prefilter.Seed(ids)
		lg.Info("Scan prefilter synced", zap.Int("orders", len(ids)))
	}
	listener.OnStateChange = prefilter.SetHealthy

	// HTTP handlers.
	metrics, err := api.NewMetrics(m.MeterProvider().Meter("storefront"))
	if err != nil {
		return errors.Wrap(err, "create metrics")
	}
	h := api.NewHandler(productRepo, cartStore, orderRepo, checkout, hub, prefilter, renderer, metrics)
	sec := api.NewSecurity(apikeyRepo, []byte(cfg.APIKeyPepper))

	// Mux: health endpoints + API routes on one server.
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/", http.StripPrefix("/api", h.Routes(sec)))

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		// Streaming event responses outlive the usual write window, so the
		// server-wide write timeout stays off; slow-client protection comes
		// from the per-request read limits.
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
		Addr:           cfg.Addr,
		Handler: httpmiddleware.Wrap(
			otelhttp.NewHandler(mux, "storefront",
				otelhttp.WithTracerProvider(m.TracerProvider()),
				otelhttp.WithMeterProvider(m.MeterProvider()),
			),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", "api_key"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.LogRequests(),
		),
	}

	g, gctx := errgroup.WithContext(ctx)

	// Change feed listener; the prefilter degrades itself while the feed is
	// down so scans never get probabilistically rejected on stale data.
	g.Go(func() error {
		err := listener.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	g.Go(func() error {
		<-gctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		return nil
	})

	g.Go(func() error {
		healthSvc.SetReady(true)
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})

	return g.Wait()
}
