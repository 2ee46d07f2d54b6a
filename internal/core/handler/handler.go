// Package handler defines the five-callback stream handler contract (C6)
// and an accumulating implementation that feeds the event parser (C7).
// Grounded on the teacher's cmd/alex/stream_output.go listener/bridge
// pattern (a single dispatch point with a type switch), generalized here
// into an explicit five-method interface per spec.md §4.6.
package handler

import (
	"strings"
	"sync"
)

// SessionResult is the final accumulator produced on process exit (§3).
type SessionResult struct {
	DurationMS int64
	CostUSD    float64
	NumTurns   int
	IsError    bool
	ErrorText  string
}

// ToolCall records one observed tool invocation.
type ToolCall struct {
	ID    string
	Name  string
	Input string
}

// ToolResult records the output (or error) of a tool invocation.
type ToolResult struct {
	ID      string
	Output  string
	IsError bool
}

// Handler is the five-method contract every stream dispatch routine calls
// into (§4.6).
type Handler interface {
	OnText(chunk string)
	OnToolCall(name, id, inputJSON string)
	OnToolResult(id, outputText string)
	OnError(text string)
	OnComplete(result SessionResult)
}

// Accumulator is the concrete Handler used by the executor: it gathers
// extracted text (the sole input to the event parser, §4.7), tool-call and
// tool-result records, and the terminal session result. It is safe for
// concurrent use since the executor's parser/handler task is the only
// writer but callers may read from other goroutines (e.g. the loop probing
// for completion mid-stream in tests).
type Accumulator struct {
	mu sync.Mutex

	text       strings.Builder
	softCap    int // 0 = unbounded
	toolCalls  []ToolCall
	toolResult []ToolResult
	errors     []string
	result     SessionResult
	completed  bool
}

// NewAccumulator returns an Accumulator whose extracted-text buffer is
// truncated from the front (keep tail) once it exceeds softCap bytes. A
// softCap of 0 disables truncation.
func NewAccumulator(softCap int) *Accumulator {
	return &Accumulator{softCap: softCap}
}

func (a *Accumulator) OnText(chunk string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.text.WriteString(chunk)
	a.truncateLocked()
}

func (a *Accumulator) truncateLocked() {
	if a.softCap <= 0 || a.text.Len() <= a.softCap {
		return
	}
	s := a.text.String()
	kept := s[len(s)-a.softCap:]
	a.text.Reset()
	a.text.WriteString(kept)
}

func (a *Accumulator) OnToolCall(name, id, inputJSON string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.toolCalls = append(a.toolCalls, ToolCall{ID: id, Name: name, Input: inputJSON})
}

func (a *Accumulator) OnToolResult(id, outputText string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.toolResult = append(a.toolResult, ToolResult{ID: id, Output: outputText})
}

func (a *Accumulator) OnError(text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.errors = append(a.errors, text)
}

func (a *Accumulator) OnComplete(result SessionResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.result = result
	a.completed = true
}

// ExtractedText returns the (possibly truncated) accumulated text buffer.
func (a *Accumulator) ExtractedText() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.text.String()
}

// ToolCalls returns every observed tool call, in order.
func (a *Accumulator) ToolCalls() []ToolCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]ToolCall(nil), a.toolCalls...)
}

// ToolNames returns the distinct tool names observed, in first-seen order.
func (a *Accumulator) ToolNames() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	seen := make(map[string]bool)
	var names []string
	for _, tc := range a.toolCalls {
		if !seen[tc.Name] {
			seen[tc.Name] = true
			names = append(names, tc.Name)
		}
	}
	return names
}

// Errors returns every error surfaced via OnError.
func (a *Accumulator) Errors() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.errors...)
}

// Result returns the terminal SessionResult and whether OnComplete fired.
func (a *Accumulator) Result() (SessionResult, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.result, a.completed
}

// Fanout composes multiple handlers behind one Handler, dispatching every
// call to each in order. Used to compose the accumulator with the session
// recorder observer (C13) without either needing to know about the other.
type Fanout struct {
	Handlers []Handler
}

func (f Fanout) OnText(chunk string) {
	for _, h := range f.Handlers {
		h.OnText(chunk)
	}
}

func (f Fanout) OnToolCall(name, id, inputJSON string) {
	for _, h := range f.Handlers {
		h.OnToolCall(name, id, inputJSON)
	}
}

func (f Fanout) OnToolResult(id, outputText string) {
	for _, h := range f.Handlers {
		h.OnToolResult(id, outputText)
	}
}

func (f Fanout) OnError(text string) {
	for _, h := range f.Handlers {
		h.OnError(text)
	}
}

func (f Fanout) OnComplete(result SessionResult) {
	for _, h := range f.Handlers {
		h.OnComplete(result)
	}
}
