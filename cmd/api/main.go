package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"growth_backend/internal/adapters"
	"growth_backend/internal/audience"
	"growth_backend/internal/campaigns"
	"growth_backend/internal/cron"
	"growth_backend/internal/events"
	"growth_backend/internal/handoff"
	apphttp "growth_backend/internal/http"
	"growth_backend/internal/http/router"
	"growth_backend/internal/outreach"
	"growth_backend/internal/usage"
	"growth_backend/platform/config"
	"growth_backend/platform/db"
	"growth_backend/platform/httpkit"
	"growth_backend/platform/logger"
	"growth_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if cfg.MigrationsEnabled {
		if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
			return db.RunMigrations(ctx, cfg)
		}); err != nil {
			log.Error("failed to run database migrations", "error", err)
			panic("failed to run database migrations: " + err.Error())
		}
		log.Info("database migrations complete")
	}

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	// Shared validator instance for dependency injection
	val := validator.New()

	publicLimiter, closeLimiter := initPublicLimiter(ctx, cfg, log)
	if closeLimiter != nil {
		defer closeLimiter()
	}

	channelRouter := adapters.NewChannelRouter(cfg, isDevelopment(cfg.Env), log)

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	campaignRepo := campaigns.New(pool)

	usageModule := usage.NewModule(pool, cfg, val, log)

	outreachModule, err := outreach.NewModule(pool, cfg, adapters.NewOutreachDirectory(campaignRepo), channelRouter, eventBus, val, log)
	if err != nil {
		log.Error("failed to initialize outreach module", "error", err)
		panic("failed to initialize outreach module: " + err.Error())
	}
	outreachModule.SetUsageMeter(adapters.NewUsageMeter(usageModule.Service()))

	audienceModule, err := audience.NewModule(pool, cfg, eventBus, val, log)
	if err != nil {
		log.Error("failed to initialize audience module", "error", err)
		panic("failed to initialize audience module: " + err.Error())
	}
	// Wire promotions into outreach: audience -> campaigns + outreach
	audienceModule.Runner().SetOutreach(adapters.NewAudienceCampaignReader(campaignRepo), outreachModule)
	// Sends and handoffs flow back into the event store
	audienceModule.RegisterHandlers(eventBus)

	handoffModule := handoff.NewModule(pool, campaignRepo, cfg.GetDefaultSequenceKey(), eventBus, val, log)

	cycle := cron.NewSenderCycle(outreachModule.Processor(), audienceModule.Runner(), 0, log)
	cronModule := cron.NewModule(cycle, audienceModule.Rollup(), val)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:        cfg,
		Logger:        log,
		Health:        db.NewPoolAdapter(pool),
		EventBus:      eventBus,
		PublicLimiter: publicLimiter,
		Modules: []apphttp.Module{
			audienceModule,
			outreachModule,
			handoffModule,
			usageModule,
			cronModule,
		},
	}

	engine := router.New(app)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
		eventBus.Wait()
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

// initPublicLimiter shares public rate limits through Redis when configured
// and falls back to per-process buckets otherwise.
func initPublicLimiter(ctx context.Context, cfg config.RateLimitConfig, log *logger.Logger) (httpkit.RateLimiter, func()) {
	limit, window := cfg.GetPublicRateLimit(), cfg.GetPublicRateWindow()
	if limit <= 0 || window <= 0 {
		log.Warn("public rate limiting disabled")
		return nil, nil
	}

	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; using in-process rate limiter")
		return httpkit.NewLocalRateLimiter(limit, window), nil
	}

	opt, err := redis.ParseURL(cfg.GetRedisURL())
	if err != nil {
		log.Error("invalid REDIS_URL; using in-process rate limiter", "error", err)
		return httpkit.NewLocalRateLimiter(limit, window), nil
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("redis unavailable; using in-process rate limiter", "error", err)
		_ = client.Close()
		return httpkit.NewLocalRateLimiter(limit, window), nil
	}

	return httpkit.NewRedisRateLimiter(client, limit, window), func() {
		_ = client.Close()
	}
}

func isDevelopment(env string) bool {
	return strings.EqualFold(env, "development")
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
