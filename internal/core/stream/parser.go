// Package stream implements the stream parsers of C4: Format A
// (session-summary NDJSON), Format B (per-delta NDJSON), and a raw-text
// fallback. Each dispatches into the common five-method handler.Handler
// contract (C6). Grounded on other_examples' schmitthub-clawker NDJSON
// parser (discriminated `type` field, bufio.Scanner line loop, skip rather
// than fail on malformed lines) and picoclaw's discriminated-envelope
// event taxonomy.
package stream

import (
	"fmt"
	"io"

	"hatchet/internal/core/handler"
)

// Format names the three recognized stream shapes (§4.4, §4.10).
type Format string

const (
	FormatSessionSummary Format = "A" // claude-like
	FormatPerDelta       Format = "B" // pi-like
	FormatRawText        Format = "raw"
)

// Parse dispatches r to the parser matching format. Raw text is not a line
// stream in the same sense as A/B; callers that already hold format ==
// FormatRawText should call ParseRawText directly with each output chunk as
// it is read from the PTY rather than routing through Parse.
func Parse(format Format, r io.Reader, h handler.Handler, opts ParseOptions) (Totals, error) {
	switch format {
	case FormatSessionSummary:
		return Totals{}, ParseSessionSummary(r, h)
	case FormatPerDelta:
		return ParsePerDelta(r, h, opts)
	default:
		return Totals{}, fmt.Errorf("stream: unsupported format for line-oriented Parse: %q", format)
	}
}
