// Package backend defines the contract the engine consumes from a host
// audio/MIDI backend (spec §6 "Backend contract (consumed)") and ships
// one concrete implementation on top of ebiten's audio package.
package backend

// AudioChannelSet enumerates the output channel layouts a backend may
// report (spec §6).
type AudioChannelSet int

const (
	Stereo AudioChannelSet = iota
	Quad
	Surround51
	Surround71
)

// SampleFormat is the PCM format a BackendSubmix mixes in (spec §6).
type SampleFormat int

const (
	Int16 SampleFormat = iota
	Int32
	Float
)

// ClientVoice is implemented by the engine-side voice wrapper; the
// backend calls back into it to pull audio (spec §6 "the backend calls
// back into the client voice for preSupplyAudio/supplyAudio").
type ClientVoice interface {
	PreSupplyAudio(dt float64)
	SupplyAudio(frames int, out []int16) int
}

// BackendVoice is the host-owned playback handle for one Voice (spec §6
// "Backend voice").
type BackendVoice interface {
	ResetSampleRate(sampleRate float64)
	ResetChannelLevels()
	SetChannelLevels(submix int, coefs [8]float32, slew float32)
	SetPitchRatio(ratio float64, slew float32)
	Start()
	Stop()
}

// BackendSubmix is the host-owned mixing handle for one Submix (spec §6
// "Backend submix").
type BackendSubmix interface {
	SetSendLevel(submix int, level float32, slew float32)
	SampleRate() float64
	SampleFormat() SampleFormat
}

// MIDIReader is a host-owned raw MIDI input stream (spec §6 "MIDI
// input").
type MIDIReader interface {
	Name() string
	Close() error
}

// VoiceAllocator is the top-level backend contract the engine is
// constructed with (spec §6 "Voice allocator").
type VoiceAllocator interface {
	AllocateVoice(client ClientVoice, sampleRate float64, dynamicPitch bool) BackendVoice
	AllocateSubmix(mainOut bool) BackendSubmix
	AllocateMIDIReader(name string) (MIDIReader, error)
	EnumerateMIDIDevices() []MIDIDevice
	Register5MsCallback(fn func())
	PumpAndMixVoices()
	AvailableChannelSet() AudioChannelSet
}

// MIDIDevice describes one enumerable MIDI input (spec §6
// "enumerateMIDIDevices").
type MIDIDevice struct {
	ID    string
	Label string
}
