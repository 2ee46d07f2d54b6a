// Package hats implements the hat registry (C3): persona registration,
// uniqueness validation, and topic resolution per the tie-break rules in
// spec.md §4.1/§4.3.
package hats

import (
	"fmt"
	"sort"

	"hatchet/internal/core/coreerr"
	"hatchet/internal/core/events"
)

// BootstrapTopic is the reserved trigger only the coordinator hat may claim.
const BootstrapTopic = "_bootstrap.start"

// Hat is a persona definition (§3).
type Hat struct {
	ID               string
	DisplayName      string
	Description      string
	Triggers         []string
	Publishes        []string
	DefaultPublishes string
	Instructions     string
	BackendOverride  string
	MaxActivations   int // 0 = unlimited
	IsCoordinator    bool
}

// Registry holds registered hats and resolves topics to a single hat.
type Registry struct {
	hats        map[string]*Hat
	activations map[string]int
	byTrigger   map[string][]string // literal trigger -> hat ids (validated to len<=1 post-register)
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		hats:        make(map[string]*Hat),
		activations: make(map[string]int),
		byTrigger:   make(map[string][]string),
	}
}

// Register adds hat, rejecting any literal trigger already claimed by
// another hat and rejecting a non-coordinator hat that claims the reserved
// bootstrap trigger.
func (r *Registry) Register(h Hat) error {
	for _, trig := range h.Triggers {
		if trig == BootstrapTopic && !h.IsCoordinator {
			return coreerr.New(coreerr.ConfigInvalid,
				fmt.Sprintf("hat %q may not claim reserved trigger %q", h.ID, BootstrapTopic), nil)
		}
		if trig == events.Fallback {
			continue // the fallback pattern is never exclusive
		}
		if owners := r.byTrigger[trig]; len(owners) > 0 {
			ids := append(append([]string(nil), owners...), h.ID)
			return coreerr.New(coreerr.AmbiguousRouting,
				fmt.Sprintf("topic %q claimed by multiple hats: %v", trig, ids), nil)
		}
	}

	r.hats[h.ID] = &h
	for _, trig := range h.Triggers {
		if trig != events.Fallback {
			r.byTrigger[trig] = append(r.byTrigger[trig], h.ID)
		}
	}
	return nil
}

// Resolve applies the §4.1 tie-break rules: literal wins over wildcard,
// fewer wildcards win among wildcard patterns, and the fallback hat (one
// whose triggers include the lone "*") is consulted last. Returns the
// hat id, or "" for no match (caller falls back to the coordinator).
// A hat that has exhausted MaxActivations is excluded from resolution.
func (r *Registry) Resolve(topic string) string {
	type candidate struct {
		id          string
		specificity int
	}
	var candidates []candidate
	var fallbackID string

	for id, h := range r.hats {
		if h.MaxActivations > 0 && r.activations[id] >= h.MaxActivations {
			continue
		}
		for _, trig := range h.Triggers {
			if !events.Matches(trig, topic) {
				continue
			}
			if trig == events.Fallback {
				fallbackID = id
				continue
			}
			candidates = append(candidates, candidate{id: id, specificity: events.Specificity(trig)})
		}
	}

	if len(candidates) > 0 {
		sort.Slice(candidates, func(i, j int) bool {
			if candidates[i].specificity != candidates[j].specificity {
				return candidates[i].specificity > candidates[j].specificity
			}
			return candidates[i].id < candidates[j].id
		})
		return candidates[0].id
	}
	return fallbackID
}

// RecordActivation increments the activation counter for hatID, used to
// enforce MaxActivations.
func (r *Registry) RecordActivation(hatID string) {
	r.activations[hatID]++
}

// Get returns the hat with the given id, or nil.
func (r *Registry) Get(id string) *Hat {
	return r.hats[id]
}

// All returns every registered hat, order unspecified.
func (r *Registry) All() []*Hat {
	out := make([]*Hat, 0, len(r.hats))
	for _, h := range r.hats {
		out = append(out, h)
	}
	return out
}
