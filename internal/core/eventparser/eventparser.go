// Package eventparser extracts embedded event tags and the completion
// marker from an agent's extracted-text buffer (C7). Grounded on the
// teacher's listener/bridge dispatch idiom, adapted from structured JSON
// events to scanning free text with a regular expression.
package eventparser

import (
	"regexp"
	"strings"
)

// tagPattern matches `<event topic="X" [target="Y"]>PAYLOAD</event>`,
// whitespace-tolerant, non-greedy across the payload so consecutive tags in
// the same buffer are extracted individually rather than as one span
// (§4.7.1).
var tagPattern = regexp.MustCompile(`(?s)<event\s+topic="([^"]*)"(?:\s+target="([^"]*)")?\s*>(.*?)</event>`)

// Tag is one embedded event tag recovered from agent text.
type Tag struct {
	Topic   string
	Target  string // "" if absent
	Payload string
}

// ExtractTags returns every embedded event tag in text, in document order.
// Payload content is accepted verbatim; it is not XML-unescaped.
func ExtractTags(text string) []Tag {
	matches := tagPattern.FindAllStringSubmatch(text, -1)
	tags := make([]Tag, 0, len(matches))
	for _, m := range matches {
		tags = append(tags, Tag{Topic: m[1], Target: m[2], Payload: m[3]})
	}
	return tags
}

// markerPrefixes are the markdown/checkbox/bold/status-line decorations
// tolerated before the completion marker literal at line start (§4.7.2).
var markerPrefixes = []string{
	"- [x] ",
	"- [X] ",
	"- ",
	"* ",
	"**",
	"Status: ",
	"status: ",
}

// HasCompletionMarker reports whether marker appears, possibly decorated by
// one of markerPrefixes, at the start of some line in text.
func HasCompletionMarker(text, marker string) bool {
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, marker) {
			return true
		}
		for _, prefix := range markerPrefixes {
			if rest, ok := strings.CutPrefix(trimmed, prefix); ok {
				rest = strings.TrimPrefix(rest, "**") // closing bold before the marker itself
				if strings.HasPrefix(strings.TrimSpace(rest), marker) {
					return true
				}
			}
		}
	}
	return false
}

// Latch tracks the one-way completion state: once Observe sees the marker
// it stays tripped even if later text lacks it, preventing an agent from
// un-setting completion by marker-thrashing (§4.7 Safety).
type Latch struct {
	marker  string
	tripped bool
}

// NewLatch returns a Latch watching for the given completion marker
// literal.
func NewLatch(marker string) *Latch {
	return &Latch{marker: marker}
}

// Observe scans text for the completion marker and trips the latch if
// found. Returns the latch's state after this observation.
func (l *Latch) Observe(text string) bool {
	if l.tripped {
		return true
	}
	if HasCompletionMarker(text, l.marker) {
		l.tripped = true
	}
	return l.tripped
}

// Tripped reports the current latch state without scanning new text.
func (l *Latch) Tripped() bool {
	return l.tripped
}
