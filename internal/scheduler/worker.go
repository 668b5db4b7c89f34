package scheduler

import (
	"context"
	"fmt"

	audience "growth_backend/internal/audience/service"
	"growth_backend/internal/cron"
	outreach "growth_backend/internal/outreach/service"
	"growth_backend/platform/config"
	"growth_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// Jobs are the services the worker drives.
type Jobs struct {
	Cycle  *cron.SenderCycle
	Runner cron.ActionRunner
	Rollup cron.RollupRunner
	// Enqueuer, when set, turns the post-processing fan-out into queued
	// audience:actions_run tasks instead of running it inline.
	Enqueuer ActionsEnqueuer
}

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	jobs   Jobs
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, jobs Jobs, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
	})

	w := newWorker(jobs, log)
	w.server = server
	return w, nil
}

func newWorker(jobs Jobs, log *logger.Logger) *Worker {
	mux := asynq.NewServeMux()
	w := &Worker{
		mux:  mux,
		jobs: jobs,
		log:  log,
	}

	mux.HandleFunc(TaskOutreachProcessDue, w.handleProcessDue)
	mux.HandleFunc(TaskAudienceActionsRun, w.handleActionsRun)
	mux.HandleFunc(TaskAudienceGlobalRollup, w.handleGlobalRollup)
	return w
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

func (w *Worker) handleProcessDue(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseProcessDuePayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	if w.jobs.Enqueuer == nil {
		res, err := w.jobs.Cycle.Run(ctx, payload.Limit)
		if err != nil {
			return err
		}
		w.log.BatchCompleted(TaskOutreachProcessDue, res.Processed, failedResults(res.Results))
		return nil
	}

	res, err := w.jobs.Cycle.Process(ctx, payload.Limit)
	if err != nil {
		return err
	}
	w.log.BatchCompleted(TaskOutreachProcessDue, res.Processed, failedResults(res.Results))

	for _, scope := range cron.Scopes(res) {
		queued, err := w.jobs.Enqueuer.EnqueueActionsRun(ctx, scope)
		if err != nil {
			w.log.Warn("enqueue audience actions run failed", "tenantId", scope.TenantID, "error", err)
			continue
		}
		if !queued {
			w.log.Debug("audience actions run already queued", "tenantId", scope.TenantID, "campaignId", scope.CampaignID)
		}
	}
	return nil
}

func (w *Worker) handleActionsRun(ctx context.Context, task *asynq.Task) error {
	scope, err := ParseActionsRunPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	summary, err := w.jobs.Runner.Run(ctx, scope.TenantID, audience.RunOptions{CampaignID: scope.CampaignID})
	if err != nil {
		return err
	}
	w.log.Info("audience actions run completed", "tenantId", scope.TenantID, "campaignId", scope.CampaignID, "actionsCreated", summary.ActionsCreated)
	return nil
}

func (w *Worker) handleGlobalRollup(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseGlobalRollupPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	res, err := w.jobs.Rollup.Run(ctx, audience.RollupOptions{WithinDays: payload.WithinDays, Limit: payload.Limit})
	if err != nil {
		return err
	}
	w.log.Info("global rollup completed", "windowDays", res.WindowDays, "scannedActions", res.ScannedActions, "signals", len(res.Signals))
	return nil
}

func failedResults(results []outreach.RunResult) int {
	failed := 0
	for _, r := range results {
		if !r.OK && !r.Skipped {
			failed++
		}
	}
	return failed
}
