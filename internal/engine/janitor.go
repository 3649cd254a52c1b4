package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gocron "github.com/go-co-op/gocron/v2"
)

// StartJanitor schedules the retention sweep for the lifetime of the
// service and returns the scheduler for shutdown. The schedule comes
// from the janitor config: a cron expression when given, a fixed
// interval otherwise.
func (e *Engine) StartJanitor(ctx context.Context) (gocron.Scheduler, error) {
	var def gocron.JobDefinition
	switch {
	case e.cfg.Janitor.Cron != "":
		if err := ParseCron(e.cfg.Janitor.Cron); err != nil {
			return nil, fmt.Errorf("parsing janitor.cron: %w", err)
		}
		def = gocron.CronJob(e.cfg.Janitor.Cron, false)
	default:
		def = gocron.DurationJob(e.cfg.Janitor.Every)
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("initializing gocron scheduler: %w", err)
	}
	_, err = scheduler.NewJob(def, gocron.NewTask(func() {
		e.Sweep(ctx)
	}))
	if err != nil {
		return nil, fmt.Errorf("initializing janitor job: %w", err)
	}

	scheduler.Start()
	slog.InfoContext(ctx, "janitor scheduled",
		"cron", e.cfg.Janitor.Cron, "every", e.cfg.Janitor.Every.String(),
		"retention", e.cfg.Janitor.Retention)
	return scheduler, nil
}

// Sweep deletes every terminal job whose end time is older than the
// retention window, including its credential files and store record.
// One broken job never aborts the sweep.
func (e *Engine) Sweep(ctx context.Context) {
	retention, err := e.cfg.RetentionAge()
	if err != nil {
		slog.ErrorContext(ctx, "janitor misconfigured", "error", err)
		return
	}
	cutoff := time.Now().UTC().Add(-retention)

	var reclaimed int
	for _, job := range e.store.List() {
		if !job.Status.Terminal() || job.EndTime == nil || !job.EndTime.Before(cutoff) {
			continue
		}
		if e.Delete(ctx, job.ID) {
			reclaimed++
		} else {
			slog.WarnContext(ctx, "janitor could not delete job", "job_id", job.ID)
		}
	}
	if reclaimed > 0 {
		slog.InfoContext(ctx, "janitor sweep finished", "reclaimed", reclaimed)
	}
}
