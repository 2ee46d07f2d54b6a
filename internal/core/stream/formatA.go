package stream

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"hatchet/internal/core/handler"
)

// maxScannerBuffer bounds a single NDJSON line; long tool results (file
// reads, search output) can otherwise exceed bufio's default.
const maxScannerBuffer = 10 * 1024 * 1024

// session-summary event type discriminants (§4.4 Format A).
const (
	typeSystem    = "system"
	typeAssistant = "assistant"
	typeUser      = "user"
	typeResult    = "result"
)

const resultSubtypeSuccess = "success"

// contentBlock is a polymorphic element of an assistant/user message's
// content array; discriminate on Type.
type contentBlock struct {
	Type string `json:"type"`

	Text string `json:"text,omitempty"`

	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

func (b contentBlock) toolResultText() string {
	if b.Type != "tool_result" || len(b.Content) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(b.Content, &s); err == nil {
		return s
	}
	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(b.Content, &blocks); err == nil {
		var texts []string
		for _, blk := range blocks {
			if blk.Text != "" {
				texts = append(texts, blk.Text)
			}
		}
		return strings.Join(texts, "\n")
	}
	return string(b.Content)
}

type assistantMessage struct {
	Content []contentBlock `json:"content"`
}

type assistantEvent struct {
	Type    string           `json:"type"`
	Message assistantMessage `json:"message"`
}

type userEventMessage struct {
	Content []contentBlock `json:"content"`
}

type userEvent struct {
	Type    string           `json:"type"`
	Message userEventMessage `json:"message"`
}

type resultEvent struct {
	Type         string  `json:"type"`
	Subtype      string  `json:"subtype"`
	IsError      bool    `json:"is_error"`
	DurationMS   int64   `json:"duration_ms"`
	NumTurns     int     `json:"num_turns"`
	TotalCostUSD float64 `json:"total_cost_usd"`
	Result       string  `json:"result,omitempty"`
	Errors       []string `json:"errors,omitempty"`
}

// ParseSessionSummary reads Format A NDJSON (session-summary shaped, the
// claude-code stream-json format) from r and dispatches into h. Returns
// once a result event is read, on a read error, or at EOF (the latter is
// not itself an error: the process exit code is the authority on success,
// per §4.9 — ParseSessionSummary only best-effort extracts text meanwhile).
// Malformed lines and unrecognized types are skipped, never fatal.
func ParseSessionSummary(r io.Reader, h handler.Handler) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxScannerBuffer)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 || line[0] != '{' {
			continue
		}

		var envelope struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(line, &envelope); err != nil {
			continue
		}

		switch envelope.Type {
		case typeAssistant:
			var evt assistantEvent
			if err := json.Unmarshal(line, &evt); err != nil {
				continue
			}
			for _, block := range evt.Message.Content {
				switch block.Type {
				case "text":
					if block.Text != "" {
						h.OnText(block.Text)
					}
				case "tool_use":
					h.OnToolCall(block.Name, block.ID, string(block.Input))
				}
			}

		case typeUser:
			var evt userEvent
			if err := json.Unmarshal(line, &evt); err != nil {
				continue
			}
			for _, block := range evt.Message.Content {
				if block.Type != "tool_result" {
					continue
				}
				text := block.toolResultText()
				if block.IsError {
					h.OnError(text)
				} else {
					h.OnToolResult(block.ToolUseID, text)
				}
			}

		case typeSystem:
			// init / compact_boundary carry no content for the extracted text.

		case typeResult:
			var evt resultEvent
			if err := json.Unmarshal(line, &evt); err != nil {
				return fmt.Errorf("parse result event: %w", err)
			}
			text := evt.Result
			if evt.Subtype != resultSubtypeSuccess {
				text = strings.Join(evt.Errors, "\n")
			}
			h.OnComplete(handler.SessionResult{
				DurationMS: evt.DurationMS,
				CostUSD:    evt.TotalCostUSD,
				NumTurns:   evt.NumTurns,
				IsError:    evt.IsError,
				ErrorText:  text,
			})
			return nil
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream read error: %w", err)
	}
	return nil
}
