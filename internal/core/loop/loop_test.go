package loop

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"hatchet/internal/core/assembler"
	"hatchet/internal/core/backend"
	"hatchet/internal/core/executor"
	"hatchet/internal/core/handler"
	"hatchet/internal/core/hats"
	"hatchet/internal/core/store"
)

// scriptedRunner drives canned handler calls per invocation, in order,
// looping on the last script entry once exhausted.
type scriptedRunner struct {
	calls   int
	scripts []func(h handler.Handler) (handler.SessionResult, error)
}

func (r *scriptedRunner) Run(_ context.Context, _ executor.Spec, h handler.Handler) (handler.SessionResult, error) {
	idx := r.calls
	if idx >= len(r.scripts) {
		idx = len(r.scripts) - 1
	}
	r.calls++
	return r.scripts[idx](h)
}

func newTestDeps(t *testing.T, runner Runner, hatList []hats.Hat) Deps {
	t.Helper()
	dir := t.TempDir()
	log, err := store.NewEventLog(filepath.Join(dir, "events.jsonl"))
	if err != nil {
		t.Fatalf("new event log: %v", err)
	}
	registry := hats.NewRegistry()
	for _, h := range hatList {
		if err := registry.Register(h); err != nil {
			t.Fatalf("register hat %q: %v", h.ID, err)
		}
	}
	return Deps{
		EventLog:  log,
		Hats:      registry,
		Backends:  backend.NewRegistry(),
		Assembler: assembler.New(),
		Runner:    runner,
	}
}

func TestScenarioBootstrapToCompletion(t *testing.T) {
	runner := &scriptedRunner{scripts: []func(handler.Handler) (handler.SessionResult, error){
		func(h handler.Handler) (handler.SessionResult, error) {
			h.OnText("Done.\nLOOP_COMPLETE\n")
			result := handler.SessionResult{DurationMS: 100, CostUSD: 0, IsError: false}
			h.OnComplete(result)
			return result, nil
		},
	}}
	deps := newTestDeps(t, runner, []hats.Hat{{ID: "fallback", Triggers: []string{"*"}, IsCoordinator: true}})

	l := New(Config{MaxIterations: 10, FailThreshold: 3, CompletionMarker: "LOOP_COMPLETE", IterationSleep: time.Millisecond}, deps)
	reason := l.Run(context.Background(), false)

	if reason != ExitCompletion {
		t.Fatalf("expected ExitCompletion, got %v", reason)
	}
	if ExitCode(reason) != 0 {
		t.Fatalf("expected exit code 0, got %d", ExitCode(reason))
	}
	if l.iteration != 1 {
		t.Fatalf("expected exactly one iteration, got %d", l.iteration)
	}
}

func TestScenarioTwoHatHandoff(t *testing.T) {
	runner := &scriptedRunner{scripts: []func(handler.Handler) (handler.SessionResult, error){
		func(h handler.Handler) (handler.SessionResult, error) {
			h.OnText(`<event topic="plan.ready">ok</event>`)
			h.OnComplete(handler.SessionResult{})
			return handler.SessionResult{}, nil
		},
		func(h handler.Handler) (handler.SessionResult, error) {
			h.OnText("LOOP_COMPLETE")
			h.OnComplete(handler.SessionResult{})
			return handler.SessionResult{}, nil
		},
	}}
	deps := newTestDeps(t, runner, []hats.Hat{
		{ID: "planner", Triggers: []string{"task.start"}, Publishes: []string{"plan.ready"}},
		{ID: "builder", Triggers: []string{"plan.ready"}, Publishes: []string{"build.done"}},
		{ID: "coordinator", Triggers: []string{"*"}, IsCoordinator: true},
	})

	l := New(Config{MaxIterations: 10, FailThreshold: 3, BootstrapTopic: "task.start", CompletionMarker: "LOOP_COMPLETE", IterationSleep: time.Millisecond}, deps)
	reason := l.Run(context.Background(), false)

	if reason != ExitCompletion {
		t.Fatalf("expected ExitCompletion, got %v", reason)
	}
	if l.iteration != 2 {
		t.Fatalf("expected two iterations, got %d", l.iteration)
	}
}

func TestScenarioMaxIterationsExhausted(t *testing.T) {
	runner := &scriptedRunner{scripts: []func(handler.Handler) (handler.SessionResult, error){
		func(h handler.Handler) (handler.SessionResult, error) {
			h.OnComplete(handler.SessionResult{})
			return handler.SessionResult{}, nil
		},
	}}
	deps := newTestDeps(t, runner, []hats.Hat{{ID: "fallback", Triggers: []string{"*"}, IsCoordinator: true}})

	l := New(Config{MaxIterations: 3, FailThreshold: 10, IterationSleep: time.Millisecond}, deps)
	reason := l.Run(context.Background(), false)

	if reason != ExitMaxIterations {
		t.Fatalf("expected ExitMaxIterations, got %v", reason)
	}
	if ExitCode(reason) != 2 {
		t.Fatalf("expected exit code 2, got %d", ExitCode(reason))
	}
	if l.iteration != 3 {
		t.Fatalf("expected 3 iterations, got %d", l.iteration)
	}
}

func TestScenarioConsecutiveFailureExit(t *testing.T) {
	runner := &scriptedRunner{scripts: []func(handler.Handler) (handler.SessionResult, error){
		func(h handler.Handler) (handler.SessionResult, error) {
			result := handler.SessionResult{IsError: true, ErrorText: "boom"}
			h.OnComplete(result)
			return result, nil
		},
	}}
	deps := newTestDeps(t, runner, []hats.Hat{{ID: "fallback", Triggers: []string{"*"}, IsCoordinator: true}})

	l := New(Config{MaxIterations: 10, FailThreshold: 3, IterationSleep: time.Millisecond}, deps)
	reason := l.Run(context.Background(), false)

	if reason != ExitTooManyFailures {
		t.Fatalf("expected ExitTooManyFailures, got %v", reason)
	}
	if ExitCode(reason) != 1 {
		t.Fatalf("expected exit code 1, got %d", ExitCode(reason))
	}
	if l.iteration != 3 {
		t.Fatalf("expected 3 iterations before exit, got %d", l.iteration)
	}
}

func TestScenarioIdleTimeoutThenSuccessResetsFailures(t *testing.T) {
	runner := &scriptedRunner{scripts: []func(handler.Handler) (handler.SessionResult, error){
		func(h handler.Handler) (handler.SessionResult, error) {
			h.OnText("starting...")
			result := handler.SessionResult{IsError: true, ErrorText: "IdleTimeout"}
			h.OnComplete(result)
			return result, nil
		},
		func(h handler.Handler) (handler.SessionResult, error) {
			h.OnComplete(handler.SessionResult{})
			return handler.SessionResult{}, nil
		},
	}}
	deps := newTestDeps(t, runner, []hats.Hat{{ID: "fallback", Triggers: []string{"*"}, IsCoordinator: true}})

	l := New(Config{MaxIterations: 10, FailThreshold: 5, IterationSleep: time.Millisecond}, deps)
	_ = l.Run(context.Background(), false)

	if l.consecutiveFailures != 0 {
		t.Fatalf("expected failure counter reset after the later success, got %d", l.consecutiveFailures)
	}
}

func TestScenarioAmbiguousRoutingRejectedAtRegistration(t *testing.T) {
	registry := hats.NewRegistry()
	if err := registry.Register(hats.Hat{ID: "a", Triggers: []string{"build.done"}}); err != nil {
		t.Fatalf("register a: %v", err)
	}
	err := registry.Register(hats.Hat{ID: "b", Triggers: []string{"build.done"}})
	if err == nil {
		t.Fatalf("expected ambiguous routing rejection at registration, loop never starts")
	}
}

func TestScenarioInterruptedByCancellation(t *testing.T) {
	runner := &scriptedRunner{scripts: []func(handler.Handler) (handler.SessionResult, error){
		func(h handler.Handler) (handler.SessionResult, error) {
			h.OnComplete(handler.SessionResult{})
			return handler.SessionResult{}, nil
		},
	}}
	deps := newTestDeps(t, runner, []hats.Hat{{ID: "fallback", Triggers: []string{"*"}, IsCoordinator: true}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l := New(Config{MaxIterations: 10, FailThreshold: 3}, deps)
	reason := l.Run(ctx, false)

	if reason != ExitInterrupted {
		t.Fatalf("expected ExitInterrupted, got %v", reason)
	}
	if ExitCode(reason) != 130 {
		t.Fatalf("expected exit code 130, got %d", ExitCode(reason))
	}
}
