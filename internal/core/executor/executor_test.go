package executor

import (
	"context"
	"testing"
	"time"

	"hatchet/internal/core/coreerr"
	"hatchet/internal/core/handler"
	"hatchet/internal/core/stream"
)

func TestRunRawTextCapturesOutput(t *testing.T) {
	acc := handler.NewAccumulator(0)
	e := New()
	spec := Spec{
		Program: "/bin/echo",
		Args:    []string{"hello from child"},
		Format:  stream.FormatRawText,
	}
	result, err := e.Run(context.Background(), spec, acc)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %+v", result)
	}
	if got := acc.ExtractedText(); got == "" {
		t.Fatalf("expected non-empty extracted text")
	}
}

func TestRunSpawnFailedForMissingProgram(t *testing.T) {
	acc := handler.NewAccumulator(0)
	e := New()
	spec := Spec{Program: "/definitely/not/a/real/binary-xyz", Format: stream.FormatRawText}
	_, err := e.Run(context.Background(), spec, acc)
	if coreerr.KindOf(err) != coreerr.SpawnFailed {
		t.Fatalf("expected SpawnFailed, got %v", err)
	}
}

func TestRunHardTimeoutKillsChild(t *testing.T) {
	acc := handler.NewAccumulator(0)
	e := New()
	spec := Spec{
		Program:     "/bin/sleep",
		Args:        []string{"30"},
		Format:      stream.FormatRawText,
		HardTimeout: 200 * time.Millisecond,
		GracePeriod: 100 * time.Millisecond,
	}
	start := time.Now()
	_, err := e.Run(context.Background(), spec, acc)
	if coreerr.KindOf(err) != coreerr.HardTimeout {
		t.Fatalf("expected HardTimeout, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("teardown took too long")
	}
}

func TestRunCancellationTearsDownChild(t *testing.T) {
	acc := handler.NewAccumulator(0)
	e := New()
	ctx, cancel := context.WithCancel(context.Background())
	spec := Spec{
		Program:     "/bin/sleep",
		Args:        []string{"30"},
		Format:      stream.FormatRawText,
		GracePeriod: 100 * time.Millisecond,
	}
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()
	_, err := e.Run(ctx, spec, acc)
	if coreerr.KindOf(err) != coreerr.Cancelled {
		t.Fatalf("expected Cancelled, got %v", err)
	}
}
