// Package studio implements the Studio mixing unit: a main output plus
// aux-A/aux-B auxiliary submixes, each carrying an ordered effect stack
// (spec §4.6 "addStudio/removeStudio"; original_source Submix.hpp).
package studio

import "github.com/opd-ai/amuse-engine/pkg/amuse/effect"

// ID identifies a Studio, resolved through the owning engine so a
// voice's studio reference behaves as a weak reference (spec §9
// "Weak references"): a stale ID silently resolves to nothing.
type ID int32

// Submix is an intermediate mix stage with its own ordered effect stack
// (original_source Submix.hpp).
type Submix struct {
	effects []effect.Effect
}

// AddEffect appends an effect to this submix's stack.
func (s *Submix) AddEffect(e effect.Effect) { s.effects = append(s.effects, e) }

// ClearEffects removes every effect from the stack (original_source
// "Submix::clearEffects").
func (s *Submix) ClearEffects() { s.effects = nil }

// CanApplyEffect reports whether the stack is non-empty (original_source
// "Submix::canApplyEffect").
func (s *Submix) CanApplyEffect() bool { return len(s.effects) != 0 }

// Apply runs every effect in the stack over buf in order.
func (s *Submix) Apply(buf []int16, frameCount, channels int) {
	for _, e := range s.effects {
		e.Apply(buf, frameCount, channels)
	}
}

// Studio is one independent mixing destination (spec §3 "Studio").
type Studio struct {
	ID      ID
	Main    *Submix
	AuxA    *Submix
	AuxB    *Submix
	Default bool // the default studio cannot be removed (spec §4.6)
}

// New creates a Studio with empty main/auxA/auxB submixes.
func New(id ID) *Studio {
	return &Studio{ID: id, Main: &Submix{}, AuxA: &Submix{}, AuxB: &Submix{}}
}
