package handler

import "testing"

func TestAccumulatorTruncatesFromFront(t *testing.T) {
	a := NewAccumulator(5)
	a.OnText("hello")
	a.OnText("world")
	if got := a.ExtractedText(); got != "world" {
		t.Fatalf("expected tail-preserving truncation to %q, got %q", "world", got)
	}
}

func TestAccumulatorUnbounded(t *testing.T) {
	a := NewAccumulator(0)
	a.OnText("hello ")
	a.OnText("world")
	if got := a.ExtractedText(); got != "hello world" {
		t.Fatalf("expected unbounded accumulation, got %q", got)
	}
}

func TestAccumulatorToolNamesDeduped(t *testing.T) {
	a := NewAccumulator(0)
	a.OnToolCall("grep", "1", "{}")
	a.OnToolCall("grep", "2", "{}")
	a.OnToolCall("ls", "3", "{}")
	names := a.ToolNames()
	if len(names) != 2 || names[0] != "grep" || names[1] != "ls" {
		t.Fatalf("unexpected tool names: %+v", names)
	}
}

func TestAccumulatorResultBeforeComplete(t *testing.T) {
	a := NewAccumulator(0)
	if _, ok := a.Result(); ok {
		t.Fatalf("expected no result before OnComplete")
	}
	a.OnComplete(SessionResult{NumTurns: 3})
	result, ok := a.Result()
	if !ok || result.NumTurns != 3 {
		t.Fatalf("unexpected result: %+v ok=%v", result, ok)
	}
}

func TestFanoutDispatchesToAll(t *testing.T) {
	a := NewAccumulator(0)
	b := NewAccumulator(0)
	f := Fanout{Handlers: []Handler{a, b}}
	f.OnText("x")
	f.OnToolCall("tool", "1", "{}")
	f.OnComplete(SessionResult{NumTurns: 1})

	if a.ExtractedText() != "x" || b.ExtractedText() != "x" {
		t.Fatalf("expected both accumulators to receive text")
	}
	ra, _ := a.Result()
	rb, _ := b.Result()
	if ra.NumTurns != 1 || rb.NumTurns != 1 {
		t.Fatalf("expected both accumulators to receive result")
	}
}
