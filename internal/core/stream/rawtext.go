package stream

import (
	"regexp"

	"hatchet/internal/core/handler"
)

// ansiPattern matches CSI/OSC escape sequences well enough to strip display
// control codes from agent output before it reaches on_text (§4.5 step 4).
var ansiPattern = regexp.MustCompile(`\x1b(?:\[[0-9;?]*[ -/]*[@-~]|\][^\x07\x1b]*(?:\x07|\x1b\\)|[@-Z\\-_])`)

// StripANSI removes terminal control sequences from s.
func StripANSI(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}

// ParseRawText hands chunk, with ANSI control sequences stripped, to
// h.OnText. Raw-text backends have no structured tool-call or completion
// framing at the stream layer — tool calls and completion are recovered
// entirely by the event parser (C7) scanning the accumulated stripped text.
func ParseRawText(chunk string, h handler.Handler) {
	clean := StripANSI(chunk)
	if clean != "" {
		h.OnText(clean)
	}
}
