// Package humangate implements the human-in-the-loop gate (C11): blocking
// the next iteration on a designated response topic until it arrives or a
// timeout elapses, and coalescing out-of-band guidance into the next
// prompt. Grounded on the teacher's context-based wait patterns
// (select over a channel and a timer), generalized to an event-log poll.
package humangate

import (
	"context"
	"time"

	"hatchet/internal/core/events"
)

// Default topics (§4.11, §6 GLOSSARY).
const (
	TopicInteract = "human.interact"
	TopicResponse = "human.response"
	TopicGuidance = "human.guidance"
)

// Gate blocks the loop awaiting a human response event.
type Gate struct {
	timeout time.Duration
}

// New returns a Gate with the given wait timeout. A non-positive timeout
// disables the wait (Await returns the unanswered synthesis immediately).
func New(timeout time.Duration) *Gate {
	return &Gate{timeout: timeout}
}

// Outcome is the result of waiting for a response.
type Outcome struct {
	Response    *events.Event // nil if the wait timed out
	TimedOut    bool
	Unanswered  bool // true when no response arrived and one is synthesized
}

// Await blocks until poll returns a non-nil event whose topic is
// TopicResponse, the gate's timeout elapses, or ctx is cancelled. poll is
// called repeatedly on a short interval; it is expected to check the event
// log tail for a fresh response event and return nil otherwise. On timeout
// or cancellation, an "unanswered" outcome is synthesized so the iteration
// can proceed (§4.11).
func (g *Gate) Await(ctx context.Context, poll func() *events.Event) Outcome {
	if g.timeout <= 0 {
		return Outcome{Unanswered: true, TimedOut: true}
	}

	deadline := time.NewTimer(g.timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return Outcome{Unanswered: true, TimedOut: true}
		case <-deadline.C:
			return Outcome{Unanswered: true, TimedOut: true}
		case <-ticker.C:
			if evt := poll(); evt != nil {
				return Outcome{Response: evt}
			}
		}
	}
}

// CoalesceGuidance collects guidance events (messages arriving outside the
// question-response flow) into a single section for the next prompt,
// preserving arrival order (§4.11).
func CoalesceGuidance(guidance []events.Event) string {
	var out string
	for _, g := range guidance {
		if g.Topic != TopicGuidance {
			continue
		}
		if out != "" {
			out += "\n"
		}
		if s, ok := g.Payload.(string); ok {
			out += s
		}
	}
	return out
}
