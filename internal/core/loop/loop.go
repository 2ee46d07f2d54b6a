// Package loop implements the main iteration state machine (C9): budget
// checks, hat selection, prompt assembly, executor invocation, the
// completion-marker one-way latch, consecutive-failure accounting, and
// termination reporting, per §4.9. Grounded on the re-architecture
// guidance of §9: the loop is a plain state machine whose only inputs at
// each step are the stores and configuration, with no in-memory state
// surviving past an iteration's boundary except through the stores.
package loop

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/trace"

	"hatchet/internal/core/assembler"
	"hatchet/internal/core/backend"
	"hatchet/internal/core/coreerr"
	"hatchet/internal/core/eventparser"
	"hatchet/internal/core/events"
	"hatchet/internal/core/executor"
	"hatchet/internal/core/handler"
	"hatchet/internal/core/hats"
	"hatchet/internal/core/humangate"
	"hatchet/internal/core/recorder"
	"hatchet/internal/core/store"
	"hatchet/internal/core/telemetry"
)

// ExitReason names why the loop stopped (§4.9, §6).
type ExitReason string

const (
	ExitCompletion      ExitReason = "Completion"
	ExitMaxIterations   ExitReason = "MaxIterations"
	ExitMaxRuntime      ExitReason = "MaxRuntime"
	ExitMaxCost         ExitReason = "MaxCost"
	ExitTooManyFailures ExitReason = "TooManyFailures"
	ExitInterrupted     ExitReason = "Interrupted"
)

// ExitCode maps an ExitReason to the process exit code from §6.
func ExitCode(reason ExitReason) int {
	switch reason {
	case ExitCompletion:
		return 0
	case ExitTooManyFailures:
		return 1
	case ExitMaxIterations, ExitMaxRuntime, ExitMaxCost:
		return 2
	case ExitInterrupted:
		return 130
	default:
		return 1
	}
}

// NullRouteTopic is used as next_event's topic when the prior iteration
// emitted nothing and its hat had no default_publishes: the fallback
// coordinator hat (trigger "*") decides what happens next (§4.9).
const NullRouteTopic = "_meta.idle"

// Runner is the subset of executor.Executor the loop depends on, so tests
// can substitute a fake child process.
type Runner interface {
	Run(ctx context.Context, spec executor.Spec, h handler.Handler) (handler.SessionResult, error)
}

// Config bounds and configures one run (§4.9 Notes, §7).
type Config struct {
	MaxIterations          int
	MaxRuntime             time.Duration
	MaxCostUSD             float64
	FailThreshold          int
	CompletionMarker       string
	BootstrapTopic         string
	IterationSleep         time.Duration // default 2s if zero
	EvidenceDir            string        // "" disables the evidence gate
	DefaultIdleTimeout     time.Duration
	DefaultHardTimeout     time.Duration
	WorkingDirectory       string
}

// Deps bundles the loop's collaborators.
type Deps struct {
	EventLog  *store.EventLog
	Hats      *hats.Registry
	Backends  *backend.Registry
	Assembler *assembler.Assembler
	Runner    Runner

	// Recorder, if set, receives every event the loop appends to EventLog
	// (emitted tag events, _meta.iteration, _meta.terminal) so the audit
	// trail is never just a write-only file nobody populates (§4.13).
	Recorder *recorder.Recorder

	// HumanGate, if set, blocks the loop after an iteration emits
	// humangate.TopicInteract until a humangate.TopicResponse event arrives
	// or the gate's timeout elapses (§4.11). Nil disables the gate: an
	// emitted human.interact is logged like any other event but nothing
	// blocks on it.
	HumanGate *humangate.Gate

	// Telemetry, if set, observes iteration durations, cumulative cost, and
	// failures, and wraps each iteration in an OTel span (C14). Nil
	// disables telemetry entirely; it never affects control flow either way.
	Telemetry *telemetry.Telemetry

	// Observers. Both are optional and never affect control flow.
	OnIteration func(Record)
	OnTerminal  func(TerminalRecord)
}

// Record summarizes one iteration (§4.9 summarize/record_iteration).
type Record struct {
	Iteration    int
	HatID        string
	TriggerTopic string
	Success      bool
	ErrorKind    string
	DurationMS   int64
	CostUSD      float64
	EmittedTopics []string
}

// TerminalRecord is the final `_meta.terminal` entry (§7).
type TerminalRecord struct {
	Reason       ExitReason
	LastTopics   []string
}

// Loop is the iteration state machine. It holds no state beyond what a
// single Run call needs; nothing survives across separate Run invocations
// except what was durably written to Deps.EventLog.
type Loop struct {
	cfg  Config
	deps Deps

	iteration          int
	cumulativeCost     float64
	consecutiveFailures int
	latch              *eventparser.Latch
	startedAt          time.Time
	recentTopics       []string
}

// New returns a Loop ready to Run.
func New(cfg Config, deps Deps) *Loop {
	if cfg.IterationSleep <= 0 {
		cfg.IterationSleep = 2 * time.Second
	}
	if cfg.BootstrapTopic == "" {
		cfg.BootstrapTopic = hats.BootstrapTopic
	}
	if cfg.CompletionMarker == "" {
		cfg.CompletionMarker = "LOOP_COMPLETE"
	}
	return &Loop{
		cfg:   cfg,
		deps:  deps,
		latch: eventparser.NewLatch(cfg.CompletionMarker),
	}
}

// Run executes iterations until a stop condition fires, returning the exit
// reason (§4.9 pseudocode).
func (l *Loop) Run(ctx context.Context, resuming bool) ExitReason {
	l.startedAt = time.Now()

	var nextEvent events.Event
	if resuming {
		nextEvent = events.New(NullRouteTopic, nil, "", 0)
	} else {
		nextEvent = events.New(l.cfg.BootstrapTopic, nil, "", 0)
	}

	for {
		if reason, stop := l.checkStopConditions(ctx); stop {
			l.writeTerminal(reason)
			return reason
		}

		l.iteration++
		hatID := l.deps.Hats.Resolve(nextEvent.Topic)
		hat := l.deps.Hats.Get(hatID)

		prompt := l.assemble(nextEvent, hat)
		spec := l.buildSpec(hat, prompt)

		runCtx := ctx
		var span trace.Span
		if l.deps.Telemetry != nil {
			runCtx, span = l.deps.Telemetry.StartIterationSpan(ctx, l.iteration, hatID)
		}

		acc := handler.NewAccumulator(0)
		result, runErr := l.deps.Runner.Run(runCtx, spec, acc)

		record := Record{
			Iteration:    l.iteration,
			HatID:        hatID,
			TriggerTopic: nextEvent.Topic,
			Success:      runErr == nil && !result.IsError,
			DurationMS:   result.DurationMS,
			CostUSD:      result.CostUSD,
		}
		if runErr != nil {
			record.ErrorKind = string(coreerr.KindOf(runErr))
		}
		l.cumulativeCost += result.CostUSD

		if span != nil {
			span.End()
		}
		if l.deps.Telemetry != nil {
			status := "success"
			if !record.Success {
				status = record.ErrorKind
				if status == "" {
					status = "failure"
				}
			}
			l.deps.Telemetry.ObserveIteration(status, (time.Duration(result.DurationMS) * time.Millisecond).Seconds())
			l.deps.Telemetry.AddCost(result.CostUSD)
			if !record.Success {
				l.deps.Telemetry.RecordFailure(status)
			}
		}

		extracted := acc.ExtractedText()
		tags := eventparser.ExtractTags(extracted)

		if l.evidenceGatePasses() {
			l.latch.Observe(extracted)
		}

		var emitted []events.Event
		awaitingHuman := false
		for _, tag := range tags {
			evt := events.New(tag.Topic, tag.Payload, hatID, l.iteration)
			evt.TargetHat = tag.Target
			emitted = append(emitted, evt)
			record.EmittedTopics = append(record.EmittedTopics, tag.Topic)
			_ = l.deps.EventLog.Append(evt)
			l.publish(evt)
			l.pushRecentTopic(tag.Topic)
			if tag.Topic == humangate.TopicInteract {
				awaitingHuman = true
			}
		}

		l.appendIterationRecord(record)
		if l.deps.OnIteration != nil {
			l.deps.OnIteration(record)
		}

		// Cancelled (user/system SIGINT mid-iteration) is benign per §5/§7
		// and must not look like agent failure: leave the counter alone
		// rather than resetting or incrementing it.
		switch {
		case coreerr.KindOf(runErr) == coreerr.Cancelled:
		case record.Success:
			l.consecutiveFailures = 0
		default:
			l.consecutiveFailures++
		}

		if humanResponse, ok := l.awaitHumanResponse(ctx, awaitingHuman); ok {
			nextEvent = humanResponse
		} else {
			nextEvent = l.selectNextEvent(emitted, hat)
		}

		select {
		case <-ctx.Done():
		case <-time.After(l.cfg.IterationSleep):
		}
	}
}

func (l *Loop) assemble(evt events.Event, hat *hats.Hat) string {
	in := assembler.Input{
		EventTopic:       evt.Topic,
		SourceHat:        evt.SourceHat,
		CompletionMarker: l.cfg.CompletionMarker,
	}
	if payload, ok := evt.Payload.(string); ok {
		in.EventPayload = payload
	}
	if hat != nil {
		in.HatInstructions = hat.Instructions
	}
	return l.deps.Assembler.Assemble(in)
}

func (l *Loop) buildSpec(hat *hats.Hat, prompt string) executor.Spec {
	name := ""
	if hat != nil {
		name = hat.BackendOverride
	}
	var b backend.Backend
	if name != "" {
		if got, err := l.deps.Backends.Get(name); err == nil {
			b = got
		}
	}
	if b.Program == "" {
		if got, err := l.deps.Backends.Autodetect(backend.RunVersionProbe); err == nil {
			b = got
		}
	}

	args := append([]string(nil), b.Args...)
	var stdin string
	switch b.Delivery {
	case backend.DeliveryPositionalArg:
		args = append(args, prompt)
	case backend.DeliveryFlagWithValue:
		args = append(args, b.FlagName, prompt)
	case backend.DeliveryStdin:
		stdin = prompt
	}

	return executor.Spec{
		Program:     b.Program,
		Args:        args,
		Dir:         l.cfg.WorkingDirectory,
		Format:      b.Format,
		Stdin:       stdin,
		IdleTimeout: l.cfg.DefaultIdleTimeout,
		HardTimeout: l.cfg.DefaultHardTimeout,
	}
}

func (l *Loop) evidenceGatePasses() bool {
	if l.cfg.EvidenceDir == "" {
		return true
	}
	entries, err := os.ReadDir(l.cfg.EvidenceDir)
	return err == nil && len(entries) > 0
}

// awaitHumanResponse blocks on l.deps.HumanGate when awaitingHuman is true
// and a gate is configured, returning the human's response event as the
// next iteration's trigger. ok is false when nothing should override the
// normal selectNextEvent path (no gate configured, no interact emitted, or
// the wait timed out unanswered).
func (l *Loop) awaitHumanResponse(ctx context.Context, awaitingHuman bool) (events.Event, bool) {
	if !awaitingHuman || l.deps.HumanGate == nil {
		return events.Event{}, false
	}
	since, _ := l.deps.EventLog.Size()
	outcome := l.deps.HumanGate.Await(ctx, func() *events.Event {
		evts, err := l.deps.EventLog.IterFrom(since)
		if err != nil {
			return nil
		}
		for i := range evts {
			if evts[i].Topic == humangate.TopicResponse {
				return &evts[i]
			}
		}
		return nil
	})
	if outcome.Response == nil {
		return events.Event{}, false
	}
	return *outcome.Response, true
}

func (l *Loop) selectNextEvent(emitted []events.Event, hat *hats.Hat) events.Event {
	if len(emitted) > 0 {
		return emitted[0]
	}
	if hat != nil && hat.DefaultPublishes != "" {
		return events.New(hat.DefaultPublishes, nil, hat.ID, l.iteration)
	}
	return events.New(NullRouteTopic, nil, "", l.iteration)
}

func (l *Loop) checkStopConditions(ctx context.Context) (ExitReason, bool) {
	if ctx.Err() != nil {
		return ExitInterrupted, true
	}
	if l.cfg.MaxIterations > 0 && l.iteration >= l.cfg.MaxIterations {
		return ExitMaxIterations, true
	}
	if l.cfg.MaxRuntime > 0 && time.Since(l.startedAt) >= l.cfg.MaxRuntime {
		return ExitMaxRuntime, true
	}
	if l.cfg.MaxCostUSD > 0 && l.cumulativeCost >= l.cfg.MaxCostUSD {
		return ExitMaxCost, true
	}
	if l.latch.Tripped() {
		return ExitCompletion, true
	}
	if l.cfg.FailThreshold > 0 && l.consecutiveFailures >= l.cfg.FailThreshold {
		return ExitTooManyFailures, true
	}
	return "", false
}

func (l *Loop) appendIterationRecord(r Record) {
	evt := events.New(events.ReservedPrefix+"iteration", r, "", r.Iteration)
	_ = l.deps.EventLog.Append(evt)
	l.publish(evt)
	l.pushRecentTopic(evt.Topic)
}

// publish forwards evt to the recorder observer, if one is configured. It
// never affects control flow or blocks: Recorder.Publish is itself
// non-blocking.
func (l *Loop) publish(evt events.Event) {
	if l.deps.Recorder != nil {
		l.deps.Recorder.Publish(evt)
	}
}

const recentTopicsWindow = 10

func (l *Loop) pushRecentTopic(topic string) {
	l.recentTopics = append(l.recentTopics, topic)
	if len(l.recentTopics) > recentTopicsWindow {
		l.recentTopics = l.recentTopics[len(l.recentTopics)-recentTopicsWindow:]
	}
}

func (l *Loop) writeTerminal(reason ExitReason) {
	record := TerminalRecord{Reason: reason, LastTopics: append([]string(nil), l.recentTopics...)}
	evt := events.New(events.ReservedPrefix+"terminal", record, "", l.iteration)
	_ = l.deps.EventLog.Append(evt)
	l.publish(evt)
	if l.deps.OnTerminal != nil {
		l.deps.OnTerminal(record)
	}
}

// EvidenceDirRequired is a small helper exposed for callers building a
// Config from user-facing configuration that names an evidence directory
// relative to the working directory.
func EvidenceDirRequired(workingDir, evidenceDir string) string {
	if evidenceDir == "" {
		return ""
	}
	if filepath.IsAbs(evidenceDir) {
		return evidenceDir
	}
	return filepath.Join(workingDir, evidenceDir)
}
