// Package signalguard installs the process-group signal handler (C12):
// SIGINT/SIGTERM cancel the run's context once; a second signal escalates
// to an immediate os.Exit(130). Grounded on the teacher's cmd/alex/main.go
// shutdownOnce pattern (sync.Once-guarded single-shot shutdown via a
// signal.Notify channel), extended with terminal-state restore via
// golang.org/x/term.
package signalguard

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"golang.org/x/term"
)

// ExitInterrupted is the exit code reported when an external interrupt
// signal terminates the run (§6 Exit codes).
const ExitInterrupted = 130

// Guard wires os/signal notification to context cancellation.
type Guard struct {
	cancel context.CancelFunc
	once   sync.Once
	sig    chan os.Signal
	fd     int
	state  *term.State
}

// Install returns a child of parent that is cancelled on the first
// SIGINT/SIGTERM, and arranges for a second such signal to restore the
// controlling terminal (if fd refers to one) and exit(130) immediately.
// Pass -1 for fd when the process is not attached to a terminal.
func Install(parent context.Context, fd int) (context.Context, *Guard) {
	ctx, cancel := context.WithCancel(parent)
	g := &Guard{cancel: cancel, sig: make(chan os.Signal, 1), fd: fd}

	if fd >= 0 {
		if term.IsTerminal(fd) {
			if state, err := term.GetState(fd); err == nil {
				g.state = state
			}
		}
	}

	signal.Notify(g.sig, os.Interrupt, syscall.SIGTERM)
	go g.watch()
	return ctx, g
}

func (g *Guard) watch() {
	<-g.sig
	g.once.Do(func() {
		g.cancel()
	})

	// A second signal means the run did not wind down promptly; escalate.
	<-g.sig
	g.restoreTerminal()
	os.Exit(ExitInterrupted)
}

func (g *Guard) restoreTerminal() {
	if g.state != nil {
		_ = term.Restore(g.fd, g.state)
	}
}

// Stop disables further signal notification and restores terminal state.
// Call via defer once the run has wound down on its own.
func (g *Guard) Stop() {
	signal.Stop(g.sig)
	g.restoreTerminal()
}
