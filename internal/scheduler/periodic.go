package scheduler

import (
	"context"
	"fmt"

	"growth_backend/platform/config"
	"growth_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// Periodic enqueues the outreach and rollup tasks on their cron specs.
type Periodic struct {
	scheduler *asynq.Scheduler
	log       *logger.Logger
}

// PeriodicEntry is one registered cron spec.
type PeriodicEntry struct {
	Spec     string
	TaskType string
	EntryID  string
}

func NewPeriodic(cfg config.SchedulerConfig, log *logger.Logger) (*Periodic, []PeriodicEntry, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, nil, err
	}

	sched := asynq.NewScheduler(opt, &asynq.SchedulerOpts{
		PostEnqueueFunc: func(info *asynq.TaskInfo, err error) {
			if err != nil {
				log.Warn("periodic enqueue failed", "error", err)
			}
		},
	})

	processDue, err := NewProcessDueTask(ProcessDuePayload{})
	if err != nil {
		return nil, nil, err
	}
	rollup, err := NewGlobalRollupTask(GlobalRollupPayload{})
	if err != nil {
		return nil, nil, err
	}

	queue := queueName(cfg)
	specs := []struct {
		spec string
		task *asynq.Task
	}{
		{cfg.GetSenderProcessCron(), processDue},
		{cfg.GetGlobalRollupCron(), rollup},
	}

	entries := make([]PeriodicEntry, 0, len(specs))
	for _, e := range specs {
		if e.spec == "" {
			continue
		}
		id, err := sched.Register(e.spec, e.task, asynq.Queue(queue))
		if err != nil {
			return nil, nil, fmt.Errorf("register %s (%q): %w", e.task.Type(), e.spec, err)
		}
		entries = append(entries, PeriodicEntry{Spec: e.spec, TaskType: e.task.Type(), EntryID: id})
	}

	return &Periodic{scheduler: sched, log: log}, entries, nil
}

// Run blocks until ctx is done.
func (p *Periodic) Run(ctx context.Context) {
	if p == nil || p.scheduler == nil {
		return
	}

	if err := p.scheduler.Start(); err != nil {
		p.log.Error("periodic scheduler failed to start", "error", err)
		return
	}
	<-ctx.Done()
	p.scheduler.Shutdown()
}
