// Package events defines the routed Event type and the dotted-topic glob
// matcher used by the hat registry to route events to a persona.
package events

import (
	"strings"
	"time"
)

// ReservedPrefix is claimed by observers (the session recorder) and may
// never be used as an emitted event's topic.
const ReservedPrefix = "_meta."

// Event is a routed message on the bus. Once appended to the event log it
// is immutable.
type Event struct {
	Topic     string      `json:"topic"`
	Payload   interface{} `json:"payload,omitempty"`
	SourceHat string      `json:"source,omitempty"`
	TargetHat string      `json:"target,omitempty"`
	WallTime  time.Time   `json:"ts_wall"`
	MonoTime  int64       `json:"ts_mono"`
	Iteration int         `json:"iteration"`
}

// New builds an Event with the current wall/mono timestamps filled in.
func New(topic string, payload interface{}, sourceHat string, iteration int) Event {
	return Event{
		Topic:     topic,
		Payload:   payload,
		SourceHat: sourceHat,
		WallTime:  time.Now().UTC(),
		MonoTime:  time.Now().UnixNano(),
		Iteration: iteration,
	}
}

// IsReserved reports whether topic falls under the reserved "_meta." prefix.
func IsReserved(topic string) bool {
	return strings.HasPrefix(topic, ReservedPrefix)
}

// Fallback is the lone-"*" pattern that matches every topic.
const Fallback = "*"

// Matches reports whether pattern matches topic per the segment-wise glob
// rules: equal segment counts, "*" matches exactly one segment, and the
// lone "*" pattern matches any topic regardless of segment count.
func Matches(pattern, topic string) bool {
	if pattern == Fallback {
		return true
	}
	pSegs := strings.Split(pattern, ".")
	tSegs := strings.Split(topic, ".")
	if len(pSegs) != len(tSegs) {
		return false
	}
	for i, p := range pSegs {
		if p == "*" {
			continue
		}
		if p != tSegs[i] {
			return false
		}
	}
	return true
}

// Specificity ranks a trigger pattern for the tie-break rules in §4.1:
// literal (no wildcard) patterns outrank any pattern containing "*", and
// among patterns with wildcards, fewer wildcards outrank more. The lone
// fallback pattern always ranks last. Higher is more specific.
//
// Patterns are only ever compared against each other when they match the
// same literal topic, which (by Matches) forces them to share a segment
// count — so ranking reduces to "fewer wildcards wins."
func Specificity(pattern string) int {
	if pattern == Fallback {
		return -(1 << 30)
	}
	wildcards := 0
	for _, s := range strings.Split(pattern, ".") {
		if s == "*" {
			wildcards++
		}
	}
	return -wildcards
}
