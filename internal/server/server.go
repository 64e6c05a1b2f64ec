package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/Ashwinipuranik30/VoyAIge/config"
	"github.com/Ashwinipuranik30/VoyAIge/internal/booking"
	"github.com/Ashwinipuranik30/VoyAIge/internal/capability"
	"github.com/Ashwinipuranik30/VoyAIge/internal/negotiation"
	"github.com/Ashwinipuranik30/VoyAIge/internal/pricing"
	"github.com/Ashwinipuranik30/VoyAIge/internal/research"
	"github.com/Ashwinipuranik30/VoyAIge/internal/runtime"
	"github.com/Ashwinipuranik30/VoyAIge/internal/store"
	"github.com/Ashwinipuranik30/VoyAIge/internal/telemetry"
)

// Run boots the negotiation engine API: migrations, storage, collaborator
// clients, the orchestrator and the HTTP surface.
func Run(cfg *config.Config, addr string) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, HTTPError{Error: msg})
		}
	}

	origins := cfg.Server.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie", "Authorization"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	dsn := cfg.Storage.Postgres.DSN()
	if err := Migrate("file://migrations", dsn, "up", 0); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	ctx := context.Background()
	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}

	var rdb *redis.Client
	if cfg.Storage.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Storage.Redis.Addr(),
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis connection failed (%s): %w", cfg.Storage.Redis.Addr(), err)
		}
	}

	tele := telemetry.NewTelemetry(cfg.Telemetry, nil)

	registry, err := capability.NewRegistry(capability.DefaultRoleCards(),
		cfg.Capability.SigningSecret, cfg.Capability.RequiredRoles)
	if err != nil {
		return fmt.Errorf("capability registry: %w", err)
	}

	var quoteCache pricing.QuoteCache = pricing.NewMemoryCache()
	if rdb != nil {
		quoteCache = pricing.NewTieredCache(pricing.NewRedisCache(rdb))
	}

	researchClient := research.NewClient(cfg.Research, tele, nil)
	pricingClient := pricing.NewClient(cfg.Pricing, quoteCache, tele, nil)
	bookingClient := booking.NewClient(cfg.Booking, tele, nil)

	orch, err := negotiation.NewOrchestrator(
		negotiation.Defaults{
			MaxRounds:         cfg.Negotiation.MaxRounds,
			EpsilonCents:      cfg.Negotiation.EpsilonCents,
			MaxTimeSeconds:    int64(cfg.Negotiation.MaxSessionTime.Seconds()),
			ExplorationRounds: cfg.Negotiation.ExplorationRounds,
			MinConfidence:     cfg.Negotiation.MinConfidence,
		},
		negotiation.Options{
			MaxConcurrentSessions: cfg.Negotiation.MaxConcurrentSessions,
			ResearchConcurrency:   cfg.Research.Concurrency,
			PricingConcurrency:    cfg.Pricing.Concurrency,
		},
		registry, researchClient, pricingClient, bookingClient, st, tele, nil)
	if err != nil {
		return fmt.Errorf("orchestrator: %w", err)
	}
	if err := orch.Recover(ctx); err != nil {
		return fmt.Errorf("recovery: %w", err)
	}

	secret, err := runtime.LoadJWTSecret(cfg)
	if err != nil {
		return err
	}

	api := e.Group("/api")
	auth := &AuthHandler{Store: st, Secret: secret}
	auth.Register(api.Group("/auth"))

	sessions := api.Group("/sessions")
	sessions.Use(runtime.EchoAuthMiddleware(secret))
	sh := &SessionsHandler{Store: st, Engine: orch, Cfg: cfg}
	sh.Register(sessions)

	if cfg.Scheduler.Enabled {
		janitor := NewJanitor(st, rdb, cfg.Scheduler, 2*cfg.Negotiation.MaxSessionTime, nil)
		janitor.Start()
		defer janitor.Stop()
	}

	if addr == "" {
		addr = cfg.Server.Address
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}
