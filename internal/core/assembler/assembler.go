// Package assembler composes the per-iteration prompt (C8) from a base
// prompt, guardrails, memory injection, active-hat instructions, and routed
// event context, in the deterministic header-delimited section order of
// §4.8. Grounded on the teacher's template-rendering conventions for
// prompt construction, with memory token budgeting via tiktoken-go.
package assembler

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"hatchet/internal/core/store"
)

// Section header literals, in the fixed order from §4.8. Every assembled
// prompt uses exactly these headers so that traces remain greppable.
const (
	headerBase         = "## BASE PROMPT"
	headerGuardrails   = "## GUARDRAILS"
	headerMemory       = "## MEMORY"
	headerHatInstr     = "## ACTIVE HAT INSTRUCTIONS"
	headerRoutedEvent  = "## ROUTED EVENT"
	headerEventSyntax  = "## EVENT EMISSION"
)

// defaultEncoding is the tiktoken encoding used to estimate memory token
// cost; cl100k_base is the closest stand-in absent a declared model name.
const defaultEncoding = "cl100k_base"

// Input bundles everything the assembler needs for one iteration.
type Input struct {
	BasePrompt      string
	Guardrails      []string
	Memories        []store.MemoryEntry
	MemoryTokenBudget int // 0 = memory section header with no entries

	HatInstructions string // empty if no hat is active

	EventTopic   string
	EventPayload string
	SourceHat    string
	OutstandingTasksSummary string

	CompletionMarker string
}

// Assembler builds prompts deterministically from an Input.
type Assembler struct {
	enc *tiktoken.Tiktoken
}

// New returns an Assembler. If the tiktoken encoding cannot be loaded
// (offline environments with no cached BPE ranks) memory is budgeted by a
// byte-length heuristic instead, logged nowhere since this is a pure
// degradation, not a failure.
func New() *Assembler {
	enc, _ := tiktoken.GetEncoding(defaultEncoding)
	return &Assembler{enc: enc}
}

func (a *Assembler) countTokens(s string) int {
	if a.enc != nil {
		return len(a.enc.Encode(s, nil, nil))
	}
	return len(s) / 4
}

// Assemble renders the full prompt for in, respecting the memory token
// budget by walking memories most-relevant-first (the order store.Search
// / store.List already returned) and skipping any memory that would push
// the total past the budget; later, smaller memories can still fit.
func (a *Assembler) Assemble(in Input) string {
	var b strings.Builder

	b.WriteString(headerBase)
	b.WriteString("\n")
	b.WriteString(in.BasePrompt)
	b.WriteString("\n\n")

	b.WriteString(headerGuardrails)
	b.WriteString("\n")
	for _, g := range in.Guardrails {
		b.WriteString("- ")
		b.WriteString(g)
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString(headerMemory)
	b.WriteString("\n")
	if in.MemoryTokenBudget > 0 {
		spent := 0
		for _, m := range in.Memories {
			cost := a.countTokens(m.Body)
			if spent+cost > in.MemoryTokenBudget {
				continue
			}
			spent += cost
			fmt.Fprintf(&b, "- [%s] %s\n", m.Kind, m.Body)
		}
	}
	b.WriteString("\n")

	b.WriteString(headerHatInstr)
	b.WriteString("\n")
	if in.HatInstructions != "" {
		b.WriteString(in.HatInstructions)
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString(headerRoutedEvent)
	b.WriteString("\n")
	fmt.Fprintf(&b, "topic: %s\n", in.EventTopic)
	fmt.Fprintf(&b, "source: %s\n", in.SourceHat)
	fmt.Fprintf(&b, "payload: %s\n", in.EventPayload)
	if in.OutstandingTasksSummary != "" {
		fmt.Fprintf(&b, "outstanding tasks: %s\n", in.OutstandingTasksSummary)
	}
	b.WriteString("\n")

	b.WriteString(headerEventSyntax)
	b.WriteString("\n")
	b.WriteString(`Emit events with <event topic="kind.action" target="hat_id">payload</event>.` + "\n")
	marker := in.CompletionMarker
	if marker == "" {
		marker = "LOOP_COMPLETE"
	}
	fmt.Fprintf(&b, "Signal completion by writing %s on its own line.\n", marker)

	return b.String()
}
