// Package config loads and validates the run configuration (C15
// expansion): backend selection, per-hat overrides, budgets, hat
// definitions, guardrails, completion-marker text, and memory/task
// toggles. Grounded on the teacher's internal/config loader style (a
// typed struct decoded from YAML, validated once at startup, non-zero
// exit on schema violation).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"hatchet/internal/core/coreerr"
)

// HatConfig mirrors hats.Hat in the configuration file's vocabulary, except
// that it has no default_publishes field: hats loaded from a config file
// never auto-emit a default event.
type HatConfig struct {
	ID              string   `yaml:"id"`
	DisplayName     string   `yaml:"display_name"`
	Description     string   `yaml:"description"`
	Triggers        []string `yaml:"triggers"`
	Publishes       []string `yaml:"publishes"`
	Instructions    string   `yaml:"instructions"`
	BackendOverride string   `yaml:"backend_override"`
	MaxActivations  int      `yaml:"max_activations"`
	IsCoordinator   bool     `yaml:"is_coordinator"`
}

// Budgets bounds a run (§4.9).
type Budgets struct {
	MaxIterations int           `yaml:"max_iterations"`
	MaxRuntime    time.Duration `yaml:"max_runtime"`
	MaxCostUSD    float64       `yaml:"max_cost_usd"`
}

// HumanGate configures C11.
type HumanGate struct {
	Enabled bool          `yaml:"enabled"`
	Timeout time.Duration `yaml:"timeout"`
}

// RunConfig is the root configuration object the core validates at startup
// and exits code 1 on schema violation (§6 Collaborator interfaces).
type RunConfig struct {
	Backend          string        `yaml:"backend"` // parsed but not used by hatchetctl run: each hat's backend_override, else autodetect
	WorkingDirectory string        `yaml:"working_directory"`
	Budgets          Budgets       `yaml:"budgets"`
	Guardrails       []string      `yaml:"guardrails"`
	CompletionMarker string        `yaml:"completion_marker"`
	Hats             []HatConfig   `yaml:"hats"`
	HumanGate        HumanGate     `yaml:"human_gate"`
	MemoryEnabled    bool          `yaml:"memory_enabled"`
	TasksEnabled     bool          `yaml:"tasks_enabled"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	Verbose          bool          `yaml:"verbose"`
}

// Load reads and parses a YAML config file at path, then validates it.
func Load(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, coreerr.New(coreerr.ConfigInvalid, "read config file", err)
	}

	var cfg RunConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, coreerr.New(coreerr.ConfigInvalid, "parse config yaml", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate applies the schema checks the core requires before a run
// starts. Hat trigger collisions are caught separately by hats.Registry at
// registration time; Validate only checks structural requirements.
func (c *RunConfig) Validate() error {
	if c.WorkingDirectory == "" {
		return coreerr.New(coreerr.ConfigInvalid, "working_directory is required", nil)
	}
	if c.Budgets.MaxIterations <= 0 {
		return coreerr.New(coreerr.ConfigInvalid, "budgets.max_iterations must be positive", nil)
	}
	if c.CompletionMarker == "" {
		c.CompletionMarker = "LOOP_COMPLETE"
	}

	hasCoordinator := false
	seen := make(map[string]bool)
	for _, h := range c.Hats {
		if h.ID == "" {
			return coreerr.New(coreerr.ConfigInvalid, "hat with empty id", nil)
		}
		if seen[h.ID] {
			return coreerr.New(coreerr.ConfigInvalid, fmt.Sprintf("duplicate hat id %q", h.ID), nil)
		}
		seen[h.ID] = true
		if h.IsCoordinator {
			hasCoordinator = true
		}
	}
	if len(c.Hats) > 0 && !hasCoordinator {
		return coreerr.New(coreerr.ConfigInvalid, "no hat marked is_coordinator", nil)
	}

	return nil
}
