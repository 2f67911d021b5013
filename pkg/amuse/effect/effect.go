// Package effect defines the submix effect-stack contract (spec §6
// "Backend submix" / original_source Submix.hpp "effectStack") plus two
// built-in effects and a WASM-hosted effect adapter for loading
// user-supplied DSP plugins.
package effect

// Effect transforms an interleaved int16 buffer in place. frameCount is
// the number of audio frames (not samples); channels gives the
// interleaving width (spec §6 "applyEffect").
type Effect interface {
	Name() string
	Apply(buf []int16, frameCount, channels int)
}

// Gain scales every sample by a fixed linear factor.
type Gain struct {
	Factor float64
}

func (g Gain) Name() string { return "gain" }

func (g Gain) Apply(buf []int16, frameCount, channels int) {
	n := frameCount * channels
	if n > len(buf) {
		n = len(buf)
	}
	for i := 0; i < n; i++ {
		v := float64(buf[i]) * g.Factor
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		buf[i] = int16(v)
	}
}

// Passthrough performs no transformation; it exists so a Submix can hold
// a non-empty effect stack without audible effect, matching
// Submix::canApplyEffect's "stack size != 0" gate (original_source
// Submix.hpp).
type Passthrough struct{}

func (Passthrough) Name() string                                 { return "passthrough" }
func (Passthrough) Apply(buf []int16, frameCount, channels int) {}
