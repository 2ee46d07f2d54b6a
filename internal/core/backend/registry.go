// Package backend implements the backend registry (C10): named launch
// recipes (program, args, prompt-delivery mode, stream format) and
// PATH-based autodetection. Grounded on the teacher's
// autoEnableExternalAgents (exec.LookPath-gated feature enablement),
// generalized from a fixed codex/claude pair into a priority-ordered list.
package backend

import (
	"os/exec"
	"strings"

	"hatchet/internal/core/coreerr"
	"hatchet/internal/core/stream"
)

// DeliveryMode names how the assembled prompt reaches the child (§4.10).
type DeliveryMode string

const (
	DeliveryPositionalArg DeliveryMode = "positional-argument"
	DeliveryStdin         DeliveryMode = "stdin"
	DeliveryFlagWithValue DeliveryMode = "flag-with-value"
)

// Backend is a named launch recipe.
type Backend struct {
	Name         string
	Program      string
	Args         []string // fixed args, prompt insertion point decided by Delivery
	FlagName     string   // used when Delivery == DeliveryFlagWithValue
	Delivery     DeliveryMode
	Format       stream.Format
	VersionProbe []string // args that make Program print a version and exit 0
}

// lookPath is overridable in tests.
var lookPath = exec.LookPath

// BuiltinBackends are the pre-registered named backends from §4.10:
// "claude-like" (Format A), "pi-like" (Format B), and "text-only" (raw
// text + event-tag scanning only).
func BuiltinBackends() []Backend {
	return []Backend{
		{
			Name:         "claude-like",
			Program:      "claude",
			Args:         []string{"--output-format", "stream-json", "--print"},
			Delivery:     DeliveryPositionalArg,
			Format:       stream.FormatSessionSummary,
			VersionProbe: []string{"--version"},
		},
		{
			Name:         "pi-like",
			Program:      "pi",
			Args:         []string{"--format", "ndjson"},
			Delivery:     DeliveryStdin,
			Format:       stream.FormatPerDelta,
			VersionProbe: []string{"--version"},
		},
		{
			Name:         "text-only",
			Program:      "agent",
			Args:         nil,
			Delivery:     DeliveryStdin,
			Format:       stream.FormatRawText,
			VersionProbe: []string{"--version"},
		},
	}
}

// Registry holds registered backends by name.
type Registry struct {
	backends map[string]Backend
	order    []string // registration order, used as autodetect priority
}

// NewRegistry returns a Registry pre-loaded with BuiltinBackends.
func NewRegistry() *Registry {
	r := &Registry{backends: make(map[string]Backend)}
	for _, b := range BuiltinBackends() {
		r.Register(b)
	}
	return r
}

// Register adds or replaces a named backend.
func (r *Registry) Register(b Backend) {
	if _, exists := r.backends[b.Name]; !exists {
		r.order = append(r.order, b.Name)
	}
	r.backends[b.Name] = b
}

// Get returns the named backend, or ConfigInvalid if unknown.
func (r *Registry) Get(name string) (Backend, error) {
	b, ok := r.backends[name]
	if !ok {
		return Backend{}, coreerr.New(coreerr.ConfigInvalid, "unknown backend: "+name, nil)
	}
	return b, nil
}

// RunVersionProbe executes program with args and succeeds only if it exits
// zero, per §4.10's "responding successfully to a version probe" check.
// This is the real probe Autodetect is given in production; tests
// substitute their own to avoid shelling out.
func RunVersionProbe(program string, args []string) error {
	return exec.Command(program, args...).Run()
}

// Autodetect probes the PATH in registration priority order, returning the
// first backend whose Program both resolves via lookPath and answers its
// version probe successfully (§4.10).
func (r *Registry) Autodetect(runVersionProbe func(program string, args []string) error) (Backend, error) {
	for _, name := range r.order {
		b := r.backends[name]
		if strings.TrimSpace(b.Program) == "" {
			continue
		}
		if _, err := lookPath(b.Program); err != nil {
			continue
		}
		if runVersionProbe != nil {
			if err := runVersionProbe(b.Program, b.VersionProbe); err != nil {
				continue
			}
		}
		return b, nil
	}
	return Backend{}, coreerr.New(coreerr.ConfigInvalid, "no backend found on PATH", nil)
}
