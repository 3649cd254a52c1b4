package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mediafetch/fetchd/internal/log"
	"github.com/mediafetch/fetchd/internal/model"
	"github.com/mediafetch/fetchd/internal/progress"
	"github.com/mediafetch/fetchd/internal/tool"
)

// runJob is the worker driving one job from starting to a terminal
// state. Every failure mode is converted into a status update; a worker
// never takes down other jobs.
func (e *Engine) runJob(ctx context.Context, id, rawURL string) {
	ctx = log.ContextAttrs(ctx, slog.String("job_id", id))

	defer func() {
		if rec := recover(); rec != nil {
			slog.ErrorContext(ctx, "worker panic recovered", "panic", rec)
			e.fail(ctx, id, "Internal error during download", fmt.Sprint(rec), 0)
		}
	}()

	// Credential material never outlives the job's worker.
	defer func() {
		if err := e.keeper.Remove(id); err != nil {
			slog.ErrorContext(ctx, "removing credential files", "error", err)
		}
	}()

	// Preflight runs once: neither missing connectivity nor an
	// unreachable target gets better by retrying.
	if !e.prober.Connectivity(ctx) {
		e.fail(ctx, id, "Network connectivity issue. Please check your internet connection.",
			"network connectivity issue", 0)
		return
	}
	if !e.prober.Reachable(ctx, rawURL) {
		e.fail(ctx, id, fmt.Sprintf("URL %s is not accessible. The site might be down or blocking requests.", rawURL),
			"url not accessible", 0)
		return
	}

	maxRetries := e.cfg.Retry.Max
	var lastErr string

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if e.isCancelled(id) {
			return
		}

		if attempt == 0 {
			downloading := model.StatusDownloading
			msg := "Starting " + e.cfg.Tool.Path + " process..."
			_ = e.store.Update(id, model.Patch{Status: &downloading, Message: &msg})
		} else {
			retrying := model.StatusRetrying
			msg := fmt.Sprintf("Retrying download (attempt %d/%d)...", attempt, maxRetries)
			count := attempt
			_ = e.store.Update(id, model.Patch{Status: &retrying, Message: &msg, RetryCount: &count})
			slog.InfoContext(ctx, "retrying download", "attempt", attempt, "max", maxRetries)

			// Linear backoff, proportional to the attempt number.
			if !sleep(ctx, time.Duration(attempt)*e.cfg.Retry.Delay) {
				return
			}
			if e.isCancelled(id) {
				return
			}
		}

		res := e.attempt(ctx, id)
		if res.Cancelled || e.isCancelled(id) {
			return
		}

		if res.Err != nil {
			switch {
			case errors.Is(res.Err, ErrWallTimeout):
				e.fail(ctx, id, "Download exceeded the maximum allowed time", res.Err.Error(), attempt)
			case errors.Is(res.Err, ErrStallTimeout):
				e.fail(ctx, id, "Download stalled: no output from the extraction tool", res.Err.Error(), attempt)
			default:
				// Process never started or the supervisor broke down.
				e.fail(ctx, id, "Failed to run the extraction tool", res.Err.Error(), attempt)
			}
			return
		}

		if res.ExitCode == 0 {
			e.complete(ctx, id, attempt, res.Stdout)
			return
		}

		errText := strings.Join(res.Stderr, "\n")
		if errText == "" {
			errText = "unknown error occurred"
		}
		if Transient(errText) && attempt < maxRetries {
			slog.WarnContext(ctx, "attempt failed with transient error",
				"attempt", attempt, "exit_code", res.ExitCode)
			lastErr = errText
			continue
		}

		e.fail(ctx, id, fmt.Sprintf("Download failed after %d retries", attempt), errText, attempt)
		return
	}

	// Unreachable in practice: the loop always returns from its last
	// iteration. Kept as a backstop so lastErr is never swallowed.
	e.fail(ctx, id, fmt.Sprintf("Download failed after %d retries", maxRetries), lastErr, maxRetries)
}

// attempt performs one tool invocation, streaming parsed progress into
// the store. Plaintext credentials exist only for its duration.
func (e *Engine) attempt(ctx context.Context, id string) RunResult {
	job, err := e.store.Get(id)
	if err != nil {
		return RunResult{Err: err}
	}

	inv := tool.Invocation{
		Options:   e.cfg.Tool.Options,
		OutputDir: job.OutputDir,
		URL:       job.URL,
	}
	if e.keeper.Has(id) {
		path, cleanup, err := e.keeper.Materialize(id)
		if err != nil {
			return RunResult{Err: fmt.Errorf("preparing credentials: %w", err)}
		}
		defer cleanup()
		inv.CookiesPath = path
	}

	spec := RunSpec{
		Path:         e.cfg.Tool.Path,
		Args:         inv.Args(),
		WallTimeout:  e.cfg.Tool.WallTimeout,
		StallTimeout: e.cfg.Tool.StallTimeout,
	}

	counter := 0
	onLine := func(line string) {
		slog.DebugContext(ctx, "tool output", "line", line)
		var patch model.Patch
		counter, patch = progress.Parse(line, counter)
		if patch.Status != nil {
			_ = e.store.Update(id, patch)
		}
	}

	return e.runner.Run(ctx, id, spec, onLine)
}

func (e *Engine) complete(ctx context.Context, id string, retryCount int, stdout []string) {
	now := time.Now().UTC()
	completed := model.StatusCompleted
	pct := 100
	msg := "Download completed successfully!"
	patch := model.Patch{
		Status:     &completed,
		Progress:   &pct,
		Message:    &msg,
		RetryCount: &retryCount,
		EndTime:    &now,
	}
	if files := progress.Files(stdout); len(files) > 0 {
		count := len(files)
		patch.DownloadedFiles = files
		patch.FilesDownloaded = &count
	}
	_ = e.store.Update(id, patch)
	slog.InfoContext(ctx, "job completed", "files", len(patch.DownloadedFiles), "retry_count", retryCount)
}

func (e *Engine) isCancelled(id string) bool {
	job, err := e.store.Get(id)
	return err == nil && job.Status == model.StatusCancelled
}

// sleep waits for d or until ctx is done, reporting whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
