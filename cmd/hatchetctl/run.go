package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"hatchet/internal/core/assembler"
	"hatchet/internal/core/backend"
	"hatchet/internal/core/config"
	"hatchet/internal/core/executor"
	"hatchet/internal/core/hats"
	"hatchet/internal/core/humangate"
	"hatchet/internal/core/loop"
	"hatchet/internal/core/recorder"
	"hatchet/internal/core/signalguard"
	"hatchet/internal/core/store"
	"hatchet/internal/core/telemetry"
)

func newRunCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start a fresh run from the bootstrap event.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return executeRun(*configPath, false)
		},
	}
}

func newResumeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume a run from its persisted stores.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return executeRun(*configPath, true)
		},
	}
}

func executeRun(configPath string, resuming bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return &exitCodeError{code: 1, err: err}
	}

	lock, err := executor.Acquire(cfg.WorkingDirectory)
	if err != nil {
		return &exitCodeError{code: 1, err: err}
	}
	defer lock.Release()

	ctx, guard := signalguard.Install(cmdContext(), -1)
	defer guard.Stop()

	registry := hats.NewRegistry()
	for _, h := range cfg.Hats {
		hatDef := hats.Hat{
			ID:              h.ID,
			DisplayName:     h.DisplayName,
			Description:     h.Description,
			Triggers:        h.Triggers,
			Publishes:       h.Publishes,
			Instructions:    h.Instructions,
			BackendOverride: h.BackendOverride,
			MaxActivations:  h.MaxActivations,
			IsCoordinator:   h.IsCoordinator,
		}
		if err := registry.Register(hatDef); err != nil {
			return &exitCodeError{code: 1, err: err}
		}
	}

	eventLog, err := store.NewEventLog(filepath.Join(cfg.WorkingDirectory, "events.jsonl"))
	if err != nil {
		return &exitCodeError{code: 1, err: err}
	}

	rec, err := recorder.New(filepath.Join(cfg.WorkingDirectory, "audit.jsonl"), 1000)
	if err != nil {
		return &exitCodeError{code: 1, err: err}
	}
	defer rec.Close()

	var gate *humangate.Gate
	if cfg.HumanGate.Enabled {
		gate = humangate.New(cfg.HumanGate.Timeout)
	}

	tel := telemetry.New("hatchet")

	l := loop.New(loop.Config{
		MaxIterations:      cfg.Budgets.MaxIterations,
		MaxRuntime:         cfg.Budgets.MaxRuntime,
		MaxCostUSD:         cfg.Budgets.MaxCostUSD,
		FailThreshold:      3,
		CompletionMarker:   cfg.CompletionMarker,
		DefaultIdleTimeout: cfg.IdleTimeout,
		WorkingDirectory:   cfg.WorkingDirectory,
	}, loop.Deps{
		EventLog:  eventLog,
		Hats:      registry,
		Backends:  backend.NewRegistry(),
		Assembler: assembler.New(),
		Runner:    executor.New(),
		Recorder:  rec,
		HumanGate: gate,
		Telemetry: tel,
		OnIteration: func(r loop.Record) {
			fmt.Printf("iteration %d: hat=%s success=%v\n", r.Iteration, r.HatID, r.Success)
		},
	})

	reason := l.Run(ctx, resuming)
	code := loop.ExitCode(reason)
	fmt.Printf("exit reason: %s (code %d)\n", reason, code)
	if code != 0 {
		return &exitCodeError{code: code, err: fmt.Errorf("run stopped: %s", reason)}
	}
	return nil
}
