package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"growth_backend/internal/adapters"
	"growth_backend/internal/audience"
	"growth_backend/internal/campaigns"
	"growth_backend/internal/cron"
	"growth_backend/internal/events"
	"growth_backend/internal/outreach"
	"growth_backend/internal/scheduler"
	"growth_backend/internal/usage"
	"growth_backend/platform/config"
	"growth_backend/platform/db"
	"growth_backend/platform/logger"
	"growth_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	eventBus := events.NewInMemoryBus(log)
	val := validator.New()

	// Worker-side wiring (no HTTP handlers required).
	campaignRepo := campaigns.New(pool)
	channelRouter := adapters.NewChannelRouter(cfg, strings.EqualFold(cfg.Env, "development"), log)
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
	audienceModule.Runner().SetOutreach(adapters.NewAudienceCampaignReader(campaignRepo), outreachModule)
	audienceModule.RegisterHandlers(eventBus)

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		panic("failed to initialize scheduler client: " + err.Error())
	}
	defer func() { _ = client.Close() }()

	fanOut := getPositiveIntEnv("AUDIENCE_FANOUT_CONCURRENCY", 4)
	cycle := cron.NewSenderCycle(outreachModule.Processor(), audienceModule.Runner(), fanOut, log)

	jobs := scheduler.Jobs{
		Cycle:  cycle,
		Runner: audienceModule.Runner(),
		Rollup: audienceModule.Rollup(),
	}
	if !strings.EqualFold(os.Getenv("AUDIENCE_FANOUT_INLINE"), "true") {
		jobs.Enqueuer = client
	}

	periodic, entries, err := scheduler.NewPeriodic(cfg, log)
	if err != nil {
		log.Error("failed to initialize periodic scheduler", "error", err)
		panic("failed to initialize periodic scheduler: " + err.Error())
	}
	for _, e := range entries {
		log.Info("periodic task registered", "task", e.TaskType, "spec", e.Spec, "entryId", e.EntryID)
	}
	go periodic.Run(ctx)

	worker, err := scheduler.NewWorker(cfg, jobs, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
	shutdown := time.NewTimer(getDurationEnv("EVENT_DRAIN_TIMEOUT", 5*time.Second))
	defer shutdown.Stop()
	drained := make(chan struct{})
	go func() {
		eventBus.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-shutdown.C:
		log.Warn("event handlers still running at shutdown")
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
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

func getPositiveIntEnv(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}

	return parsed
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}

	return parsed
}
