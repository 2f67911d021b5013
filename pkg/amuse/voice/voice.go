// Package voice implements a single sounding voice: the sound-macro
// bytecode interpreter, its ADSR envelope, pitch/modulation state, and
// sibling-voice lifetime for PLAYMACRO-spawned chains (spec §4.3).
package voice

import (
	"math"

	"github.com/opd-ai/amuse-engine/pkg/amuse/binio"
	"github.com/opd-ai/amuse-engine/pkg/amuse/envelope"
	"github.com/opd-ai/amuse-engine/pkg/amuse/group"
)

// ID is a dense integer unique among live voices (spec §3 "vid").
type ID int32

// State is the lifecycle stage of a Voice (spec §3).
type State int

const (
	Playing State = iota
	KeyOff
	Finished
)

// SiblingSpawner is implemented by the owner (normally the engine) to
// allocate a new peer voice for a PLAYMACRO instruction (spec §4.3
// "Siblings"). It must assign a fresh ID and register the voice the same
// way any other engine-owned voice is registered.
type SiblingSpawner interface {
	SpawnSibling(head *Voice, noteOffset int8, macroID group.ObjectId, stepOffset int) *Voice
}

// MacroMessenger resolves a MIDI controller value for OpCondBranch. Voices
// bound to a sequencer channel get this from the channel's controller
// table; bare sfx voices have none (branch always falls through).
type MacroMessenger interface {
	CtrlValue(ctrl uint8) int8
}

// sampleState tracks the currently playing sample within a voice.
type sampleState struct {
	active      bool
	entry       group.SampleEntry
	pcm         []int16
	frameCursor float64
}

// Voice is a single active sounding entity driving a sound-macro program
// (spec §3 "Voice").
type Voice struct {
	ID       ID
	Group    *group.Group
	ObjectID group.ObjectId
	Emitter  bool

	macro []byte
	pc    int
	wait  float64 // remaining macro-tick wait, in milliseconds
	halt  bool

	Env        envelope.Envelope
	SampleRate float64

	PitchCents     int32
	WheelRangeUp   int8
	WheelRangeDown int8
	PitchWheel     float64 // -1..1
	Modulation     float64 // 0..1
	Pedal          bool

	Volume       float64
	Pan          float64
	SurroundPan  float64
	ReverbSend   float64
	Doppler      float64
	Keygroup     uint8
	LastNote     uint8
	StudioID     int
	HasStudio    bool

	state State

	Next, Prev *Voice // sibling chain; Next/Prev nil when solo
	isHead     bool

	sample      sampleState
	lastMessage int32

	spawner SiblingSpawner
	ctrl    MacroMessenger
}

// New creates a voice bound to group g, ready to load a sound macro.
func New(id ID, g *group.Group, sampleRate float64, spawner SiblingSpawner, ctrl MacroMessenger) *Voice {
	v := &Voice{
		ID:         id,
		Group:      g,
		SampleRate: sampleRate,
		Volume:     1,
		isHead:     true,
		spawner:    spawner,
		ctrl:       ctrl,
	}
	return v
}

// LoadSoundMacro binds the voice to the given macro object and resets the
// interpreter to its start (spec §4.3).
func (v *Voice) LoadSoundMacro(macroID group.ObjectId, stepOffset int) bool {
	payload, ok := v.Group.Pool.SoundMacros[macroID]
	if !ok {
		return false
	}
	v.ObjectID = macroID
	v.macro = payload
	v.pc = stepOffset * InstrSize
	v.wait = 0
	v.halt = false
	return true
}

// State reports the voice's current lifecycle stage (spec §3).
func (v *Voice) State() State {
	if v.state == Finished {
		return Finished
	}
	if v.Env.IsComplete() {
		return Finished
	}
	return v.state
}

// KeyOffVoice signals the voice and every other voice in its sibling chain
// to begin fade-out (spec §4.4). Voices already Finished are left alone.
func (v *Voice) KeyOffVoice() {
	for s := v.head(); s != nil; s = s.Next {
		if s.state == Finished {
			continue
		}
		s.state = KeyOff
		s.Env.KeyOff()
	}
}

// Kill marks the voice for immediate destruction without a release ramp
// (spec §3 "may also be kill()-ed").
func (v *Voice) Kill() {
	v.state = Finished
	v.sample.active = false
}

// Message delivers a numeric message to this voice and, depending on
// target, its siblings (spec §4.3 "Messages and keyOff propagate across
// the sibling chain").
func (v *Voice) Message(val int32, target MessageTarget) {
	head := v.head()
	if target == MsgSelf || target == MsgBoth {
		head.onMessage(val)
	}
	if target == MsgSiblings || target == MsgBoth {
		for s := head.Next; s != nil; s = s.Next {
			s.onMessage(val)
		}
	}
}

// onMessage is the per-voice message hook: macros may branch on delivered
// values via controller-style conditionals. Kept minimal: the value is
// exposed through a pseudo-controller slot read by OpCondBranch with
// ctrl==0xFF.
func (v *Voice) onMessage(val int32) { v.lastMessage = val }

func (v *Voice) head() *Voice {
	h := v
	for h.Prev != nil {
		h = h.Prev
	}
	return h
}

// Destroy tears down the whole sibling chain this voice belongs to, from
// its head onward, atomically within the same call, whichever member it
// is called on
// (spec §3 "A sibling chain is destroyed atomically with its head",
// spec §8 "Sibling-chain atomicity").
func (v *Voice) Destroy() {
	head := v.head()
	for s := head; s != nil; {
		next := s.Next
		s.state = Finished
		s.sample.active = false
		s.Next = nil
		s.Prev = nil
		s = next
	}
}

// Advance drives the sound-macro interpreter by dt seconds of host time,
// executing instructions to completion within the slice except where a
// WAIT instruction blocks it (spec §4.3).
func (v *Voice) Advance(dt float64) {
	if v.state == Finished || v.halt {
		return
	}
	if v.wait > 0 {
		v.wait -= dt * 1000
		if v.wait > 0 {
			return
		}
		v.wait = 0
	}

	for {
		instr, ok := DecodeInstr(v.macro, v.pc)
		if !ok {
			v.halt = true
			return
		}
		v.pc += InstrSize

		switch instr.Op {
		case OpStopSample:
			v.sample.active = false
		case OpStartSample:
			v.execStartSample(instr)
		case OpSetVolume:
			v.Volume = float64(instr.A0) / 1000
		case OpScaleVolume:
			v.Volume = binio.Clampf(0, v.Volume+float64(instr.A0)/1000, 1)
		case OpSetPan:
			v.Pan = float64(instr.A0) / 1000
		case OpSetSurroundPan:
			v.SurroundPan = float64(instr.A0) / 1000
		case OpSetReverbSend:
			v.ReverbSend = float64(instr.A0) / 1000
		case OpSetPitchCents:
			v.PitchCents = int32(instr.A0)
		case OpSetPitchFreq:
			v.PitchCents = hzFineToCents(uint32(instr.A0), uint16(instr.A1))
		case OpSetPitchAdsr:
			if adsr, ok := v.Group.Pool.AsADSR(macroId16(instr.A0), v.Group.Data.Format.Order()); ok {
				v.Env.Reset(adsr)
			}
			v.PitchCents = int32(instr.A1)
		case OpSetPitchWheelRange:
			v.WheelRangeUp = int8(instr.A0)
			v.WheelRangeDown = int8(instr.A1)
		case OpPitchBend:
			v.Modulation = binio.Clampf(0, float64(instr.A0)/1000, 1)
		case OpLoadAdsr:
			if adsr, ok := v.Group.Pool.AsADSR(macroId16(instr.A0), v.Group.Data.Format.Order()); ok {
				v.Env.Reset(adsr)
			}
		case OpSetKeygroup:
			v.Keygroup = uint8(instr.A0)
		case OpSendMessage:
			v.Message(int32(instr.A0), MessageTarget(instr.Flags))
		case OpPlayMacro:
			if v.spawner != nil {
				v.spawner.SpawnSibling(v.head(), int8(instr.A0), macroId16(instr.A1), int(instr.A2))
			}
		case OpWait:
			v.wait = float64(instr.A0)
			return
		case OpCondBranch:
			if v.branchTaken(uint8(instr.A0), int8(instr.A1)) {
				v.pc = int(instr.A2) * InstrSize
			}
		case OpStop:
			v.halt = true
			return
		default:
			v.halt = true
			return
		}
	}
}

func (v *Voice) branchTaken(ctrl uint8, threshold int8) bool {
	if ctrl == 0xFF {
		return int8(v.lastMessage) >= threshold
	}
	if v.ctrl == nil {
		return false
	}
	return v.ctrl.CtrlValue(ctrl) >= threshold
}

func (v *Voice) execStartSample(instr Instr) {
	sfxID := uint16(instr.A0)
	entry, ok := v.Group.SampDir.Entries[sfxID]
	if !ok {
		return
	}
	pcm := decodeSamplePCM(v.Group, entry)
	v.sample = sampleState{active: true, entry: entry, pcm: pcm, frameCursor: float64(instr.A1)}
}

func decodeSamplePCM(g *group.Group, e group.SampleEntry) []int16 {
	data := g.SampleData(e)
	if data == nil {
		return nil
	}
	if e.ADPCM.BytesPerFrame != 0 {
		return group.DecodeADPCM(data, e.ADPCM, int(e.NumSamples))
	}
	// Raw 16-bit PCM, as produced by PC-format groups and synthetic test
	// fixtures (spec §8 scenario 1).
	order := g.Data.Format.Order()
	n := int(e.NumSamples)
	if n*2 > len(data) {
		n = len(data) / 2
	}
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = order.I16(data, i*2)
	}
	return out
}

func hzFineToCents(hz uint32, fine uint16) int32 {
	// 1 cent = 1/1200 octave, relative to a 440Hz reference (spec §4.3
	// "pitch by frequency").
	const refHz = 440.0
	ratio := float64(hz) / refHz
	cents := 1200.0 * math.Log2(ratio)
	return int32(cents) + int32(fine)
}

// pitchRatio returns the current playback speed multiplier implied by
// PitchCents, PitchWheel and Modulation (spec §4.3 "pitch state").
func (v *Voice) pitchRatio() float64 {
	cents := float64(v.PitchCents)
	if v.PitchWheel > 0 {
		cents += v.PitchWheel * float64(v.WheelRangeUp) * 100
	} else if v.PitchWheel < 0 {
		cents += v.PitchWheel * float64(v.WheelRangeDown) * 100
	}
	return math.Pow(2, cents/1200)
}

// SupplyAudio fills out with up to len(out) mono int16 samples from the
// voice's currently triggered sample, applying envelope gain and volume,
// and returns the number of frames written. It does not advance the
// macro interpreter; callers drive that separately via Advance so macro
// timing stays independent of the host's audio buffer size (spec §4.3,
// §5 "supplyAudio pulled by host").
func (v *Voice) SupplyAudio(out []int16) int {
	if v.state == Finished || !v.sample.active || len(v.sample.pcm) == 0 {
		return 0
	}

	ratio := v.pitchRatio()
	gain := v.Env.NextSample(v.SampleRate) * v.Volume
	written := 0

	for written < len(out) {
		idx := int(v.sample.frameCursor)
		if idx >= len(v.sample.pcm) {
			if v.sample.entry.LoopLenSamples > 0 {
				loopStart := int(v.sample.entry.LoopStartSample)
				overshoot := idx - len(v.sample.pcm)
				v.sample.frameCursor = float64(loopStart + overshoot)
				continue
			}
			v.sample.active = false
			break
		}
		raw := float64(v.sample.pcm[idx]) * gain
		out[written] = clampSample(raw)
		written++
		v.sample.frameCursor += ratio
		if v.Env.IsComplete() {
			v.sample.active = false
			break
		}
	}

	return written
}

func clampSample(v float64) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
