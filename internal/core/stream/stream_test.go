package stream

import (
	"strings"
	"testing"

	"hatchet/internal/core/handler"
)

func TestParseSessionSummaryTextAndToolCalls(t *testing.T) {
	input := strings.Join([]string{
		`{"type":"system","subtype":"init","session_id":"s1"}`,
		`not json at all`,
		`{"type":"assistant","message":{"content":[{"type":"text","text":"hello"},{"type":"tool_use","id":"t1","name":"search","input":{"q":"x"}}]}}`,
		`{"type":"user","message":{"content":[{"type":"tool_result","tool_use_id":"t1","content":"result text","is_error":false}]}}`,
		`{"type":"result","subtype":"success","is_error":false,"duration_ms":1200,"num_turns":2,"total_cost_usd":0.05,"result":"done"}`,
		``,
	}, "\n")

	acc := handler.NewAccumulator(0)
	if err := ParseSessionSummary(strings.NewReader(input), acc); err != nil {
		t.Fatalf("ParseSessionSummary: %v", err)
	}

	if got := acc.ExtractedText(); got != "hello" {
		t.Fatalf("expected extracted text %q, got %q", "hello", got)
	}
	calls := acc.ToolCalls()
	if len(calls) != 1 || calls[0].Name != "search" || calls[0].ID != "t1" {
		t.Fatalf("unexpected tool calls: %+v", calls)
	}
	result, ok := acc.Result()
	if !ok || result.NumTurns != 2 || result.CostUSD != 0.05 {
		t.Fatalf("unexpected result: %+v ok=%v", result, ok)
	}
}

func TestParseSessionSummaryErrorResult(t *testing.T) {
	input := `{"type":"result","subtype":"error_max_turns","is_error":true,"errors":["too many turns"]}` + "\n"
	acc := handler.NewAccumulator(0)
	if err := ParseSessionSummary(strings.NewReader(input), acc); err != nil {
		t.Fatalf("ParseSessionSummary: %v", err)
	}
	result, ok := acc.Result()
	if !ok || !result.IsError || result.ErrorText != "too many turns" {
		t.Fatalf("unexpected result: %+v ok=%v", result, ok)
	}
}

func TestParsePerDeltaTextDeltaAndTools(t *testing.T) {
	input := strings.Join([]string{
		`{"type":"session"}`,
		`{"type":"agent_start"}`,
		`{"type":"message_update","assistantMessageEvent":{"type":"text_delta","text":"foo"}}`,
		`{"type":"message_update","assistantMessageEvent":{"type":"thinking_delta","text":"ignored"}}`,
		`{"type":"tool_execution_start","toolCallId":"c1","toolName":"grep","args":{"pattern":"x"}}`,
		`{"type":"tool_execution_end","toolCallId":"c1","isError":false,"result":{"content":[{"text":"match"}]}}`,
		`garbage{{{`,
		`{"type":"turn_end","message":{"usage":{"cost":{"total":0.02}}}}`,
		``,
	}, "\n")

	acc := handler.NewAccumulator(0)
	totals, err := ParsePerDelta(strings.NewReader(input), acc, ParseOptions{})
	if err != nil {
		t.Fatalf("ParsePerDelta: %v", err)
	}
	if got := acc.ExtractedText(); got != "foo" {
		t.Fatalf("expected only text_delta accumulated, got %q", got)
	}
	calls := acc.ToolCalls()
	if len(calls) != 1 || calls[0].Name != "grep" {
		t.Fatalf("unexpected tool calls: %+v", calls)
	}
	if totals.NumTurns != 1 || totals.CostUSD != 0.02 {
		t.Fatalf("unexpected totals: %+v", totals)
	}
}

func TestParsePerDeltaVerboseThinking(t *testing.T) {
	input := `{"type":"message_update","assistantMessageEvent":{"type":"thinking_delta","text":"pondering"}}` + "\n"
	acc := handler.NewAccumulator(0)
	if _, err := ParsePerDelta(strings.NewReader(input), acc, ParseOptions{Verbose: true}); err != nil {
		t.Fatalf("ParsePerDelta: %v", err)
	}
	if got := acc.ExtractedText(); got != "pondering" {
		t.Fatalf("expected thinking text when verbose, got %q", got)
	}
}

func TestParsePerDeltaToolError(t *testing.T) {
	input := `{"type":"tool_execution_end","toolCallId":"c2","isError":true,"result":{"content":[{"text":"boom"}]}}` + "\n"
	acc := handler.NewAccumulator(0)
	if _, err := ParsePerDelta(strings.NewReader(input), acc, ParseOptions{}); err != nil {
		t.Fatalf("ParsePerDelta: %v", err)
	}
	errs := acc.Errors()
	if len(errs) != 1 || errs[0] != "boom" {
		t.Fatalf("expected tool error surfaced, got %+v", errs)
	}
}

func TestStripANSI(t *testing.T) {
	in := "\x1b[31mred\x1b[0m text"
	if got := StripANSI(in); got != "red text" {
		t.Fatalf("expected stripped text, got %q", got)
	}
}

func TestParseRawText(t *testing.T) {
	acc := handler.NewAccumulator(0)
	ParseRawText("\x1b[1mbold\x1b[0m", acc)
	ParseRawText("", acc)
	if got := acc.ExtractedText(); got != "bold" {
		t.Fatalf("expected 'bold', got %q", got)
	}
}
