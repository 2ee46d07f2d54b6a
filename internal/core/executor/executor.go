// Package executor implements the subprocess executor (C5): a PTY-attached
// child process with idle/hard timeouts, cancellation, and process-group
// teardown. Grounded on the teacher's internal/devops/process Manager
// (Setpgid leadership, SIGTERM-then-grace-then-SIGKILL, PGID-based kill
// target) and creack/pty for the master/slave pair, generalized here from
// named long-running daemons to a single bounded child invocation per
// iteration.
package executor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"

	"hatchet/internal/core/coreerr"
	"hatchet/internal/core/handler"
	"hatchet/internal/core/stream"
)

// DefaultGracePeriod is the wait between SIGTERM and SIGKILL escalation
// during teardown (§4.5 step 5).
const DefaultGracePeriod = 5 * time.Second

// Spec describes the child to launch (§4.5 Inputs).
type Spec struct {
	Program string
	Args    []string
	Dir     string
	Env     []string // additions appended to os.Environ()

	Format  stream.Format
	Verbose bool // routes thinking_delta into extracted text for Format B

	// Stdin, when non-empty, is written to the child's PTY slave right
	// after it starts, followed by an EOT byte, for backends whose
	// DeliveryMode is stdin (§4.10). Positional-arg and flag-with-value
	// delivery instead fold the prompt into Args before Run is called.
	Stdin string

	IdleTimeout time.Duration // 0 = disabled
	HardTimeout time.Duration // 0 = disabled
	GracePeriod time.Duration // 0 = DefaultGracePeriod
}

// Executor runs one child process per Run call under a PTY.
type Executor struct{}

// New returns an Executor.
func New() *Executor { return &Executor{} }

// Run launches spec's child under a PTY, streams its output through the
// parser selected by spec.Format into h, and blocks until the child exits,
// ctx is cancelled, or a timeout fires. It always returns a SessionResult
// and the reason it stopped, and tears down the child's process group
// before returning (§4.5).
func (e *Executor) Run(ctx context.Context, spec Spec, h handler.Handler) (handler.SessionResult, error) {
	grace := spec.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}

	cmd := exec.Command(spec.Program, spec.Args...)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	start := time.Now()
	master, err := pty.Start(cmd)
	if err != nil {
		result := handler.SessionResult{IsError: true, ErrorText: err.Error()}
		return result, coreerr.New(coreerr.SpawnFailed, fmt.Sprintf("spawn %s", spec.Program), err)
	}
	defer master.Close()

	pgid, pgErr := syscall.Getpgid(cmd.Process.Pid)
	if pgErr != nil {
		pgid = cmd.Process.Pid
	}

	if spec.Stdin != "" {
		_, _ = master.Write([]byte(spec.Stdin))
		_, _ = master.Write([]byte{0x04}) // EOT, signals end-of-input on the pty line discipline
	}

	idle := newIdleWatchdog(spec.IdleTimeout)
	defer idle.Stop()

	var hardFired <-chan time.Time
	if spec.HardTimeout > 0 {
		t := time.NewTimer(spec.HardTimeout)
		defer t.Stop()
		hardFired = t.C
	}

	reader := idleResettingReader{r: master, idle: idle}

	parseDone := make(chan error, 1)
	go func() {
		parseDone <- runWithPanicGuard(func() error {
			return dispatchStream(spec.Format, spec.Verbose, reader, h)
		})
	}()

	waitDone := make(chan error, 1)
	go func() { waitDone <- cmd.Wait() }()

	var stopReason coreerr.Kind
	var waitErr error

	select {
	case waitErr = <-waitDone:
		// Normal exit: drain the remaining buffered bytes via parseDone.
		<-parseDone
	case <-idle.Fired():
		stopReason = coreerr.IdleTimeout
		teardown(pgid, cmd.Process.Pid, grace)
		waitErr = <-waitDone
		<-parseDone
	case <-hardFired:
		stopReason = coreerr.HardTimeout
		teardown(pgid, cmd.Process.Pid, grace)
		waitErr = <-waitDone
		<-parseDone
	case <-ctx.Done():
		stopReason = coreerr.Cancelled
		teardown(pgid, cmd.Process.Pid, grace)
		waitErr = <-waitDone
		<-parseDone
	}

	duration := time.Since(start)

	if stopReason != "" {
		result := handler.SessionResult{
			DurationMS: duration.Milliseconds(),
			IsError:    true,
			ErrorText:  string(stopReason),
		}
		return result, coreerr.New(stopReason, fmt.Sprintf("%s after %s", stopReason, duration), nil)
	}

	if waitErr != nil {
		result := handler.SessionResult{
			DurationMS: duration.Milliseconds(),
			IsError:    true,
			ErrorText:  waitErr.Error(),
		}
		return result, coreerr.New(coreerr.NonZeroExit, "child exited non-zero", waitErr)
	}

	if result, ok := resultFromHandler(h); ok {
		if result.DurationMS == 0 {
			result.DurationMS = duration.Milliseconds()
		}
		return result, nil
	}

	return handler.SessionResult{DurationMS: duration.Milliseconds()}, nil
}

// resultFromHandler recovers the synthesized SessionResult from an
// Accumulator, if that is the concrete handler in use (§4.5 step 8).
func resultFromHandler(h handler.Handler) (handler.SessionResult, bool) {
	if acc, ok := h.(*handler.Accumulator); ok {
		return acc.Result()
	}
	return handler.SessionResult{}, false
}

func runWithPanicGuard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = coreerr.New(coreerr.IoError, fmt.Sprintf("panic in stream reader: %v", r), nil)
		}
	}()
	return fn()
}

// idleResettingReader wraps the PTY master so every successful Read resets
// the idle watchdog (§4.5 step 5).
type idleResettingReader struct {
	r    io.Reader
	idle *idleWatchdog
}

func (r idleResettingReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		r.idle.Reset()
	}
	return n, err
}

// idleWatchdog fires once Reset has not been called for the configured
// duration. A non-positive duration disables the watchdog permanently.
type idleWatchdog struct {
	mu       sync.Mutex
	duration time.Duration
	timer    *time.Timer
	fired    chan struct{}
	enabled  bool
	stopped  bool
}

func newIdleWatchdog(d time.Duration) *idleWatchdog {
	w := &idleWatchdog{fired: make(chan struct{}), duration: d}
	if d <= 0 {
		return w
	}
	w.enabled = true
	w.timer = time.AfterFunc(d, w.fire)
	return w
}

func (w *idleWatchdog) fire() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	select {
	case <-w.fired:
	default:
		close(w.fired)
	}
}

func (w *idleWatchdog) Reset() {
	if !w.enabled {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	select {
	case <-w.fired:
		return // already fired; too late to reset
	default:
	}
	w.timer.Reset(w.duration)
}

func (w *idleWatchdog) Fired() <-chan struct{} {
	return w.fired
}

func (w *idleWatchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	if w.enabled && w.timer != nil {
		w.timer.Stop()
	}
}

// dispatchStream routes r through the parser selected by format.
func dispatchStream(format stream.Format, verbose bool, r io.Reader, h handler.Handler) error {
	switch format {
	case stream.FormatSessionSummary:
		return stream.ParseSessionSummary(r, h)
	case stream.FormatPerDelta:
		totals, err := stream.ParsePerDelta(r, h, stream.ParseOptions{Verbose: verbose})
		h.OnComplete(handler.SessionResult{CostUSD: totals.CostUSD, NumTurns: totals.NumTurns})
		return err
	default:
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
		for scanner.Scan() {
			stream.ParseRawText(scanner.Text()+"\n", h)
		}
		h.OnComplete(handler.SessionResult{})
		return scanner.Err()
	}
}

// killProcessGroup sends sig to the negated pgid (the whole group), falling
// back to the bare pid when the process never achieved group leadership.
func killProcessGroup(pgid, pid int, sig syscall.Signal) {
	target := -pgid
	if pgid <= 0 {
		target = pid
	}
	_ = syscall.Kill(target, sig)
}

// teardown implements the shared SIGTERM-grace-SIGKILL sequence used by
// idle timeout, hard timeout, and cancellation (§4.5 steps 5-7), grounded
// on the teacher's Manager.killProcess.
func teardown(pgid, pid int, grace time.Duration) {
	killProcessGroup(pgid, pid, syscall.SIGTERM)
	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if !processAlive(pid) {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	killProcessGroup(pgid, pid, syscall.SIGKILL)
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return syscall.Kill(pid, 0) == nil
}
