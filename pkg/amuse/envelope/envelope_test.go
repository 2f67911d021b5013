package envelope

import (
	"testing"

	"github.com/opd-ai/amuse-engine/pkg/amuse/group"
)

func TestResetStartsInAttack(t *testing.T) {
	var e Envelope
	e.Reset(group.ADSR{AttackTime: 1, DecayTime: 1, SustainFactor: 0.5, ReleaseTime: 1})
	if e.Phase() != Attack {
		t.Errorf("Phase() = %v, want Attack", e.Phase())
	}
}

func TestAttackRampsToOne(t *testing.T) {
	var e Envelope
	e.Reset(group.ADSR{AttackTime: 1, DecayTime: 1, SustainFactor: 0.5, ReleaseTime: 1})
	sampleRate := 10.0
	var last float64
	for i := 0; i < int(sampleRate); i++ {
		last = e.NextSample(sampleRate)
	}
	if last < 0.99 {
		t.Errorf("level after full attack time = %v, want ~1.0", last)
	}
	if e.Phase() != Decay {
		t.Errorf("Phase() after attack completes = %v, want Decay", e.Phase())
	}
}

func TestZeroAttackTimeJumpsToDecay(t *testing.T) {
	var e Envelope
	e.Reset(group.ADSR{AttackTime: 0, DecayTime: 1, SustainFactor: 0.5, ReleaseTime: 1})
	level := e.NextSample(100)
	if level != 1 {
		t.Errorf("level = %v, want 1", level)
	}
	if e.Phase() != Decay {
		t.Errorf("Phase() = %v, want Decay", e.Phase())
	}
}

func TestDecayReachesSustainFactor(t *testing.T) {
	var e Envelope
	e.Reset(group.ADSR{AttackTime: 0, DecayTime: 1, SustainFactor: 0.25, ReleaseTime: 1})
	sampleRate := 10.0
	e.NextSample(sampleRate) // consumes zero-length attack, enters decay
	var last float64
	for i := 0; i < int(sampleRate); i++ {
		last = e.NextSample(sampleRate)
	}
	if last < 0.24 || last > 0.26 {
		t.Errorf("level after full decay = %v, want ~0.25", last)
	}
	if e.Phase() != Sustain {
		t.Errorf("Phase() after decay completes = %v, want Sustain", e.Phase())
	}
}

func TestSustainHoldsLevel(t *testing.T) {
	var e Envelope
	e.Reset(group.ADSR{AttackTime: 0, DecayTime: 0, SustainFactor: 0.6, ReleaseTime: 1})
	e.NextSample(100)
	e.NextSample(100)
	for i := 0; i < 5; i++ {
		level := e.NextSample(100)
		if level != float64(float32(0.6)) {
			t.Errorf("sustain level = %v, want float32(0.6)", level)
		}
	}
	if e.Phase() != Sustain {
		t.Errorf("Phase() = %v, want Sustain", e.Phase())
	}
}

func TestKeyOffFromAnyPhaseEntersRelease(t *testing.T) {
	var e Envelope
	e.Reset(group.ADSR{AttackTime: 10, DecayTime: 1, SustainFactor: 0.5, ReleaseTime: 1})
	e.NextSample(100) // still mid-attack
	e.KeyOff()
	if e.Phase() != Release {
		t.Errorf("Phase() after KeyOff = %v, want Release", e.Phase())
	}
}

func TestKeyOffAfterCompleteIsNoop(t *testing.T) {
	var e Envelope
	e.Reset(group.ADSR{AttackTime: 0, DecayTime: 0, SustainFactor: 0, ReleaseTime: 0})
	e.NextSample(100)
	e.KeyOff()
	for !e.IsComplete() {
		e.NextSample(100)
	}
	e.KeyOff()
	if e.Phase() != Complete {
		t.Errorf("Phase() after KeyOff on completed envelope = %v, want Complete", e.Phase())
	}
}

func TestReleaseReachesCompleteAtZero(t *testing.T) {
	var e Envelope
	e.Reset(group.ADSR{AttackTime: 0, DecayTime: 0, SustainFactor: 1, ReleaseTime: 1})
	e.NextSample(100)
	e.KeyOff()
	sampleRate := 10.0
	var last float64
	for i := 0; i < int(sampleRate)+1; i++ {
		last = e.NextSample(sampleRate)
	}
	if last != 0 {
		t.Errorf("level after full release = %v, want 0", last)
	}
	if !e.IsComplete() {
		t.Error("IsComplete() = false, want true after release finishes")
	}
}

func TestZeroReleaseTimeCompletesImmediately(t *testing.T) {
	var e Envelope
	e.Reset(group.ADSR{AttackTime: 0, DecayTime: 0, SustainFactor: 1, ReleaseTime: 0})
	e.NextSample(100)
	e.KeyOff()
	level := e.NextSample(100)
	if level != 0 {
		t.Errorf("level = %v, want 0", level)
	}
	if !e.IsComplete() {
		t.Error("IsComplete() = false, want true")
	}
}

func TestNonPositiveSampleRateHoldsLevel(t *testing.T) {
	var e Envelope
	e.Reset(group.ADSR{AttackTime: 1, DecayTime: 1, SustainFactor: 0.5, ReleaseTime: 1})
	e.NextSample(100)
	before := e.NextSample(100)
	held := e.NextSample(0)
	if held != before {
		t.Errorf("NextSample(0) = %v, want unchanged level %v", held, before)
	}
}

func TestResetDLS(t *testing.T) {
	var e Envelope
	e.ResetDLS(group.ADSRDLSCurve{Attack: 0, Decay: 0, Sustain: 0.75, Release: 1})
	if e.Phase() != Attack {
		t.Errorf("Phase() = %v, want Attack", e.Phase())
	}
	e.NextSample(100) // zero attack -> decay
	level := e.NextSample(100)
	if level != 0.75 {
		t.Errorf("level = %v, want 0.75", level)
	}
}
