// Package engine orchestrates asynchronous fetch jobs: it registers
// them in the job store, drives the external extraction tool through
// the Runner with one worker goroutine per job, retries transient
// failures and reclaims terminal jobs after a retention window.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mediafetch/fetchd/internal/log"
	"github.com/mediafetch/fetchd/internal/model"
	"github.com/mediafetch/fetchd/internal/netprobe"
	"github.com/mediafetch/fetchd/internal/store"
	"github.com/mediafetch/fetchd/internal/vault"
)

type Engine struct {
	cfg    Config
	store  store.Store
	runner *Runner
	keeper *vault.Keeper
	prober netprobe.Prober

	ctx context.Context
	wg  sync.WaitGroup

	hookMx   sync.Mutex
	onDelete func(id string)
}

// New builds an engine whose workers live until ctx is cancelled.
func New(ctx context.Context, cfg Config, st store.Store, keeper *vault.Keeper, prober netprobe.Prober) *Engine {
	return &Engine{
		cfg:    cfg,
		store:  st,
		runner: NewRunner(cfg.Tool.Grace),
		keeper: keeper,
		prober: prober,
		ctx:    ctx,
	}
}

// OnDelete registers a hook invoked whenever a job record is removed,
// regardless of who removed it (caller or janitor).
func (e *Engine) OnDelete(hook func(id string)) {
	e.hookMx.Lock()
	e.onDelete = hook
	e.hookMx.Unlock()
}

func (e *Engine) notifyDelete(id string) {
	e.hookMx.Lock()
	hook := e.onDelete
	e.hookMx.Unlock()
	if hook != nil {
		hook(id)
	}
}

// Start validates the url, registers the job and launches its worker.
// It returns as soon as the job record exists; progress is observable
// through Status. Credentials, when given, are encrypted to disk before
// the worker starts.
func (e *Engine) Start(ctx context.Context, rawURL, owner string, credentials []byte) (string, error) {
	if err := model.ValidateURL(rawURL); err != nil {
		return "", err
	}

	id := uuid.NewString()
	outputDir := filepath.Join(e.cfg.DownloadsDir, id)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("creating output dir: %w", err)
	}

	job := model.Job{
		ID:        id,
		URL:       rawURL,
		Status:    model.StatusStarting,
		Message:   "Initializing download...",
		StartTime: time.Now().UTC(),
		OutputDir: outputDir,
		OwnerID:   owner,
	}
	if err := e.store.Create(job); err != nil {
		return "", err
	}

	if len(credentials) > 0 {
		if err := e.keeper.Store(id, credentials); err != nil {
			e.store.Delete(id)
			return "", err
		}
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.runJob(e.ctx, id, rawURL)
	}()

	slog.InfoContext(ctx, "job started", "job_id", id, "url", rawURL)
	return id, nil
}

// Status returns a snapshot of one job.
func (e *Engine) Status(id string) (model.Job, error) {
	return e.store.Get(id)
}

// List returns snapshots of all jobs, newest first.
func (e *Engine) List() []model.Job {
	jobs := e.store.List()
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].StartTime.After(jobs[j].StartTime)
	})
	return jobs
}

// Cancel requests cooperative termination of a running job. It is a
// no-op returning false for unknown ids and jobs already in a terminal
// state.
func (e *Engine) Cancel(ctx context.Context, id string) bool {
	job, err := e.store.Get(id)
	if err != nil || job.Status.Terminal() {
		return false
	}

	now := time.Now().UTC()
	cancelled := model.StatusCancelled
	msg := "Download cancelled by user"
	errText := "cancelled by user"
	_ = e.store.Update(id, model.Patch{
		Status:  &cancelled,
		Message: &msg,
		Error:   &errText,
		EndTime: &now,
	})

	if e.runner.Cancel(id) {
		slog.InfoContext(ctx, "job process terminating", "job_id", id)
	}
	return true
}

// Delete removes a job and everything keyed by its id: the process if
// one is still alive, persisted credential material and the record.
func (e *Engine) Delete(ctx context.Context, id string) bool {
	if _, err := e.store.Get(id); err != nil {
		return false
	}

	e.runner.Cancel(id)
	if err := e.keeper.Remove(id); err != nil {
		slog.ErrorContext(ctx, "removing credentials", "job_id", id, "error", err)
	}
	e.store.Delete(id)
	e.notifyDelete(id)
	slog.InfoContext(ctx, "job deleted", "job_id", id)
	return true
}

// ClearHistory deletes every job, terminating any that still run.
func (e *Engine) ClearHistory(ctx context.Context) {
	for _, job := range e.store.List() {
		e.Delete(ctx, job.ID)
	}
}

// Statistics aggregates job counts by state.
func (e *Engine) Statistics() model.Statistics {
	var stats model.Statistics
	for _, job := range e.store.List() {
		stats.Total++
		switch job.Status {
		case model.StatusCompleted:
			stats.Completed++
		case model.StatusFailed:
			stats.Failed++
		case model.StatusStarting, model.StatusDownloading, model.StatusRetrying:
			stats.InProgress++
		}
	}
	return stats
}

// Wait blocks until all job workers have finished. Meant for shutdown,
// after the engine context has been cancelled.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// fail moves the job to failed with an end time. The store drops the
// patch when the job already reached a terminal state, so a cancel
// racing a failing attempt stays cancelled.
func (e *Engine) fail(ctx context.Context, id, message, errText string, retryCount int) {
	now := time.Now().UTC()
	failed := model.StatusFailed
	_ = e.store.Update(id, model.Patch{
		Status:     &failed,
		Message:    &message,
		Error:      &errText,
		RetryCount: &retryCount,
		EndTime:    &now,
	})
	slog.ErrorContext(log.ContextAttrs(ctx, slog.String("job_id", id)),
		"job failed", "message", message, "retry_count", retryCount)
}
