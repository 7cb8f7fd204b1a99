// Package migration holds the height-gated behavior switches of the chain.
// Every replica resolves the same Registry from genesis, so a behavior can
// only ever change at an agreed height, never per node.
package migration

import (
	"fmt"
	"sort"

	"github.com/mlnlabs/mln/merkle"
)

// Known migration names. The set is closed: genesis may schedule these and
// nothing else.
const (
	// TokenCommands enables the mint/burn/token-update command family.
	TokenCommands = "token-commands"

	// SupplyBackfill recomputes every symbol's recorded total supply from
	// the actual balance sum. One-shot patch.
	SupplyBackfill = "supply-backfill"
)

// PatchFunc is a one-shot state fix run at its activation height, before any
// ordinary command of that height. It must be deterministic and idempotent.
type PatchFunc func(view merkle.StateView, height uint64) error

// known maps every valid migration name to its patch, nil for pure behavior
// toggles.
var known = map[string]PatchFunc{
	TokenCommands:  nil,
	SupplyBackfill: backfillSupply,
}

// Schedule fixes the activation height of one named migration.
type Schedule struct {
	Name   string `yaml:"name"`
	Height uint64 `yaml:"height"`
}

// Registry answers which migrations are active at a given height. It is
// resolved once at startup from genesis and never changes afterwards.
type Registry struct {
	heights map[string]uint64
	patches []Schedule
}

// NewRegistry validates the genesis schedule. Names outside the known set
// and names scheduled twice are configuration errors that must stop startup.
func NewRegistry(schedules []Schedule) (*Registry, error) {
	r := &Registry{heights: make(map[string]uint64, len(schedules))}
	for _, s := range schedules {
		patch, ok := known[s.Name]
		if !ok {
			return nil, fmt.Errorf("unknown migration %q in schedule", s.Name)
		}
		if _, dup := r.heights[s.Name]; dup {
			return nil, fmt.Errorf("migration %q scheduled twice", s.Name)
		}
		r.heights[s.Name] = s.Height
		if patch != nil {
			r.patches = append(r.patches, s)
		}
	}
	sort.Slice(r.patches, func(i, j int) bool {
		if r.patches[i].Height != r.patches[j].Height {
			return r.patches[i].Height < r.patches[j].Height
		}
		return r.patches[i].Name < r.patches[j].Name
	})
	return r, nil
}

// IsActive reports whether name is active at height. Activation is
// monotonic: from its scheduled height on, a migration stays active for the
// rest of the chain history. Unscheduled names are never active.
func (r *Registry) IsActive(name string, height uint64) bool {
	h, ok := r.heights[name]
	return ok && height >= h
}

// ActivationHeight returns the scheduled height for name.
func (r *Registry) ActivationHeight(name string) (uint64, bool) {
	h, ok := r.heights[name]
	return h, ok
}

// Schedules returns the full schedule ordered by height then name, for
// status reporting.
func (r *Registry) Schedules() []Schedule {
	out := make([]Schedule, 0, len(r.heights))
	for name, height := range r.heights {
		out = append(out, Schedule{Name: name, Height: height})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Height != out[j].Height {
			return out[i].Height < out[j].Height
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// duePatches returns the scheduled patches with activation height at or
// below height, in (height, name) order.
func (r *Registry) duePatches(height uint64) []Schedule {
	var due []Schedule
	for _, s := range r.patches {
		if s.Height <= height {
			due = append(due, s)
		}
	}
	return due
}
