package engine

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

var (
	ErrRunInProgress = errors.New("run already in progress")
	ErrWallTimeout   = errors.New("wall-clock timeout exceeded")
	ErrStallTimeout  = errors.New("no output within stall timeout")
)

// readerJoinWait bounds how long teardown waits for the pipe readers
// after the process is gone.
const readerJoinWait = 5 * time.Second

// RunSpec describes one external tool invocation.
type RunSpec struct {
	Path         string
	Args         []string
	WallTimeout  time.Duration
	StallTimeout time.Duration
}

// RunResult carries the exit state and all buffered output of one
// attempt, for classification by the retry controller.
type RunResult struct {
	ExitCode  int
	Stdout    []string
	Stderr    []string
	Started   time.Time
	Stopped   time.Time
	Cancelled bool
	Err       error
}

type procHandle struct {
	cancel    context.CancelFunc
	cancelled bool
}

// Runner spawns the external tool and supervises it to completion. It
// owns the process-handle table, guarded by its own lock so a status
// poll on one job never blocks a cancellation of another.
type Runner struct {
	mx    sync.Mutex
	procs map[string]*procHandle
	grace time.Duration
}

func NewRunner(grace time.Duration) *Runner {
	if grace <= 0 {
		grace = 5 * time.Second
	}
	return &Runner{
		procs: make(map[string]*procHandle),
		grace: grace,
	}
}

type outLine struct {
	stderr bool
	text   string
}

// Run spawns the tool with the given argument vector, never through a
// shell. Two readers drain stdout and stderr into a line channel, the
// driving loop forwards each line to onLine and enforces the wall-clock
// and stall ceilings. Teardown runs on every exit path: readers are
// joined with a bounded wait and a still-alive process gets SIGTERM,
// then SIGKILL after the grace period. The handle is removed from the
// table before Run returns.
func (r *Runner) Run(ctx context.Context, id string, spec RunSpec, onLine func(string)) RunResult {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	handle := &procHandle{cancel: cancel}
	r.mx.Lock()
	if _, ok := r.procs[id]; ok {
		r.mx.Unlock()
		return RunResult{Err: ErrRunInProgress}
	}
	r.procs[id] = handle
	r.mx.Unlock()
	defer r.remove(id)

	cmd := exec.CommandContext(ctx, spec.Path, spec.Args...)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = r.grace

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return RunResult{Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return RunResult{Err: err}
	}

	result := RunResult{Started: time.Now().UTC()}
	if err := cmd.Start(); err != nil {
		result.Stopped = time.Now().UTC()
		result.Err = err
		return result
	}

	lines := make(chan outLine, 64)
	var readers errgroup.Group
	readers.Go(func() error {
		scanLines(stdout, false, lines)
		return nil
	})
	readers.Go(func() error {
		scanLines(stderr, true, lines)
		return nil
	})
	go func() {
		_ = readers.Wait()
		close(lines)
	}()

	wall := time.NewTimer(spec.WallTimeout)
	defer wall.Stop()
	stall := time.NewTimer(spec.StallTimeout)
	defer stall.Stop()

	var fatal error
drain:
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				break drain
			}
			resetTimer(stall, spec.StallTimeout)
			if line.stderr {
				result.Stderr = append(result.Stderr, line.text)
			} else {
				result.Stdout = append(result.Stdout, line.text)
			}
			if onLine != nil {
				onLine(line.text)
			}
		case <-wall.C:
			if fatal == nil {
				fatal = ErrWallTimeout
			}
			cancel()
		case <-stall.C:
			if fatal == nil {
				fatal = ErrStallTimeout
			}
			cancel()
		}
	}

	// Pipes are drained, cmd.Wait is safe now. WaitDelay bounds the
	// wait even if process teardown misbehaves.
	waitErr := waitBounded(cmd, readerJoinWait+r.grace)
	result.Stopped = time.Now().UTC()
	result.ExitCode = -1
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}
	result.Err = fatal
	if fatal == nil && waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			result.Err = waitErr
		}
	}

	r.mx.Lock()
	result.Cancelled = handle.cancelled
	r.mx.Unlock()
	return result
}

// Cancel requests termination of the process driving id: graceful
// first, forced after the grace period. Returns false when no process
// handle exists, which makes a second cancel a no-op.
func (r *Runner) Cancel(id string) bool {
	r.mx.Lock()
	handle, ok := r.procs[id]
	if ok {
		handle.cancelled = true
	}
	r.mx.Unlock()
	if !ok {
		return false
	}
	handle.cancel()
	return true
}

// Running reports whether a process handle exists for id.
func (r *Runner) Running(id string) bool {
	r.mx.Lock()
	defer r.mx.Unlock()
	_, ok := r.procs[id]
	return ok
}

func (r *Runner) remove(id string) {
	r.mx.Lock()
	delete(r.procs, id)
	r.mx.Unlock()
}

func scanLines(pipe io.Reader, stderr bool, out chan<- outLine) {
	scanner := bufio.NewScanner(pipe)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		out <- outLine{stderr: stderr, text: scanner.Text()}
	}
	if err := scanner.Err(); err != nil {
		slog.Debug("reading tool output", "stderr", stderr, "error", err)
	}
}

func waitBounded(cmd *exec.Cmd, limit time.Duration) error {
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case err := <-done:
		return err
	case <-time.After(limit):
		_ = cmd.Process.Kill()
		return <-done
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
