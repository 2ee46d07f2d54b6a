package stream

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/kaptinlin/jsonrepair"

	"hatchet/internal/core/handler"
)

// per-delta (Format B) envelope and assistantMessageEvent discriminants
// (§4.4 Format B).
const (
	typeBSession        = "session"
	typeBAgentStart     = "agent_start"
	typeBTurnStart      = "turn_start"
	typeBMessageStart   = "message_start"
	typeBMessageEnd     = "message_end"
	typeBToolExecUpdate = "tool_execution_update"
	typeBMessageUpdate  = "message_update"
	typeBToolExecStart  = "tool_execution_start"
	typeBToolExecEnd    = "tool_execution_end"
	typeBTurnEnd        = "turn_end"
)

const (
	deltaTextDelta = "text_delta"
	deltaThinking  = "thinking_delta"
	deltaError     = "error"
)

type bEnvelope struct {
	Type string `json:"type"`
}

type bMessageUpdate struct {
	AssistantMessageEvent struct {
		Type  string `json:"type"`
		Text  string `json:"text,omitempty"`
		Error string `json:"error,omitempty"`
	} `json:"assistantMessageEvent"`
}

type bToolExecStart struct {
	ToolCallID string          `json:"toolCallId"`
	ToolName   string          `json:"toolName"`
	Args       json.RawMessage `json:"args"`
}

type bToolExecEnd struct {
	ToolCallID string `json:"toolCallId"`
	IsError    bool   `json:"isError"`
	Result     struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	} `json:"result"`
}

type bTurnEnd struct {
	Message struct {
		Usage struct {
			Cost struct {
				Total float64 `json:"total"`
			} `json:"cost"`
		} `json:"usage"`
	} `json:"message"`
}

// ParseOptions controls per-delta dispatch behavior.
type ParseOptions struct {
	// Verbose, when true, routes thinking_delta text into OnText alongside
	// text_delta. Off by default: thinking content is not assistant-visible
	// extracted text.
	Verbose bool
}

// Totals tracks turn_end cost/turn accumulation across the stream. Format B
// has no explicit terminal event, so ParsePerDelta never calls OnComplete
// itself; it returns the accumulated Totals and the executor synthesizes
// OnComplete from them once the stream ends.
type Totals struct {
	CostUSD  float64
	NumTurns int
}

// tryRepair attempts best-effort recovery of a line that failed to parse as
// JSON, covering the boundary case of malformed JSON interleaved with valid
// JSON in a Format B stream (truncated writes, stray trailing commas). A
// repair failure is just another reason to skip the line, never fatal.
func tryRepair(line []byte) ([]byte, bool) {
	repaired, err := jsonrepair.JSONRepair(string(line))
	if err != nil {
		return nil, false
	}
	return []byte(repaired), true
}

// ParsePerDelta reads Format B NDJSON from r and dispatches into h per the
// §4.4/§4.9 mapping: text_delta -> OnText, thinking_delta -> OnText only
// when opts.Verbose, tool_execution_start -> OnToolCall,
// tool_execution_end -> OnToolResult or OnError by isError, turn_end
// accumulates cost/turn totals (returned, not dispatched — the executor
// folds these into the SessionResult it passes to OnComplete on exit).
// Unknown assistantMessageEvent variants and unrecognized top-level types
// are silently dropped; malformed lines are skipped, never fatal.
func ParsePerDelta(r io.Reader, h handler.Handler, opts ParseOptions) (Totals, error) {
	var totals Totals
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxScannerBuffer)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 || line[0] != '{' {
			continue
		}

		var env bEnvelope
		if err := json.Unmarshal(line, &env); err != nil {
			repaired, ok := tryRepair(line)
			if !ok {
				continue
			}
			line = repaired
			if err := json.Unmarshal(line, &env); err != nil {
				continue
			}
		}

		switch env.Type {
		case typeBSession, typeBAgentStart, typeBTurnStart, typeBMessageStart,
			typeBMessageEnd, typeBToolExecUpdate:
			// ignored per §4.4

		case typeBMessageUpdate:
			var mu bMessageUpdate
			if err := json.Unmarshal(line, &mu); err != nil {
				continue
			}
			switch mu.AssistantMessageEvent.Type {
			case deltaTextDelta:
				if mu.AssistantMessageEvent.Text != "" {
					h.OnText(mu.AssistantMessageEvent.Text)
				}
			case deltaThinking:
				if opts.Verbose && mu.AssistantMessageEvent.Text != "" {
					h.OnText(mu.AssistantMessageEvent.Text)
				}
			case deltaError:
				h.OnError(mu.AssistantMessageEvent.Error)
			default:
				// toolcall_start/delta/end, text_start/end, thinking_start/end,
				// done: ignored, these carry no extractable content here.
			}

		case typeBToolExecStart:
			var ts bToolExecStart
			if err := json.Unmarshal(line, &ts); err != nil {
				continue
			}
			h.OnToolCall(ts.ToolName, ts.ToolCallID, string(ts.Args))

		case typeBToolExecEnd:
			var te bToolExecEnd
			if err := json.Unmarshal(line, &te); err != nil {
				continue
			}
			var text string
			for _, c := range te.Result.Content {
				if c.Text != "" {
					if text != "" {
						text += "\n"
					}
					text += c.Text
				}
			}
			if te.IsError {
				h.OnError(text)
			} else {
				h.OnToolResult(te.ToolCallID, text)
			}

		case typeBTurnEnd:
			var end bTurnEnd
			if err := json.Unmarshal(line, &end); err != nil {
				continue
			}
			totals.CostUSD += end.Message.Usage.Cost.Total
			totals.NumTurns++

		default:
			// unrecognized variant: silently dropped per §4.4
		}
	}

	if err := scanner.Err(); err != nil {
		return totals, fmt.Errorf("stream read error: %w", err)
	}
	return totals, nil
}
