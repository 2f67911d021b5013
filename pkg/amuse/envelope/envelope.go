// Package envelope implements the per-voice ADSR state machine (spec §4.2).
package envelope

import "github.com/opd-ai/amuse-engine/pkg/amuse/group"

// State is the current phase of an Envelope.
type State int

const (
	Attack State = iota
	Decay
	Sustain
	Release
	Complete
)

// Envelope is the per-sample state tracker for ADSR envelope data (spec
// §4.2). Zero value is not ready to use; call Reset first.
type Envelope struct {
	phase              State
	attackTime         float64
	decayTime          float64
	sustainFactor      float64
	releaseTime        float64
	releaseStartFactor float64
	curTime            float64
	level              float64
}

// Reset initialises the envelope from an ADSR table: times, level=0,
// phase=Attack (spec §4.2).
func (e *Envelope) Reset(adsr group.ADSR) {
	e.phase = Attack
	e.attackTime = float64(adsr.AttackTime)
	e.decayTime = float64(adsr.DecayTime)
	e.sustainFactor = float64(adsr.SustainFactor)
	e.releaseTime = float64(adsr.ReleaseTime)
	e.curTime = 0
	e.level = 0
}

// ResetDLS initialises the envelope from a DLS curve selected by note and
// velocity (spec Glossary "ADSRDLS").
func (e *Envelope) ResetDLS(curve group.ADSRDLSCurve) {
	e.phase = Attack
	e.attackTime = float64(curve.Attack)
	e.decayTime = float64(curve.Decay)
	e.sustainFactor = float64(curve.Sustain)
	e.releaseTime = float64(curve.Release)
	e.curTime = 0
	e.level = 0
}

// KeyOff captures the current level as the release start factor and
// switches to Release regardless of the prior phase (spec §4.2).
func (e *Envelope) KeyOff() {
	if e.phase == Complete {
		return
	}
	e.releaseStartFactor = e.level
	e.phase = Release
	e.curTime = 0
}

// NextSample advances the envelope by one sample period and returns the
// current linear gain in [0,1] (spec §4.2).
func (e *Envelope) NextSample(sampleRate float64) float64 {
	if sampleRate <= 0 {
		return e.level
	}
	dt := 1.0 / sampleRate
	// Summing dt sample by sample leaves curTime a rounding error short of
	// the exact phase time, so phase ends are compared with this tolerance.
	const elapsedEpsilon = 1e-9

	switch e.phase {
	case Attack:
		if e.attackTime <= 0 {
			e.level = 1
			e.phase = Decay
			e.curTime = 0
			return e.level
		}
		e.curTime += dt
		e.level = e.curTime / e.attackTime
		if e.curTime >= e.attackTime-elapsedEpsilon {
			e.level = 1
			e.phase = Decay
			e.curTime = 0
		}
	case Decay:
		if e.decayTime <= 0 {
			e.level = e.sustainFactor
			e.phase = Sustain
			return e.level
		}
		e.curTime += dt
		t := e.curTime / e.decayTime
		if e.curTime >= e.decayTime-elapsedEpsilon {
			e.level = e.sustainFactor
			e.phase = Sustain
			e.curTime = 0
		} else {
			// Linear interpolation from 1 down to sustainFactor.
			e.level = 1 - (1-e.sustainFactor)*t
		}
	case Sustain:
		e.level = e.sustainFactor
	case Release:
		if e.releaseTime <= 0 {
			e.level = 0
			e.phase = Complete
			return e.level
		}
		e.curTime += dt
		t := e.curTime / e.releaseTime
		if e.curTime >= e.releaseTime-elapsedEpsilon {
			e.level = 0
			e.phase = Complete
		} else {
			e.level = e.releaseStartFactor * (1 - t)
		}
	case Complete:
		e.level = 0
	}

	return e.level
}

// IsComplete reports whether the envelope has finished its release phase
// (spec §4.2), observed by the owning voice to transition to Finished.
func (e *Envelope) IsComplete() bool { return e.phase == Complete }

// Phase returns the current envelope phase.
func (e *Envelope) Phase() State { return e.phase }
