// Package sequencer implements a song or sfx-group playback instance:
// 16 MIDI-style channels, each bound to a program that resolves note-on
// events against a keymap or layer list, plus the glue that lets an
// attached song.State drive those channels (spec §4.4).
package sequencer

import (
	"fmt"

	"github.com/opd-ai/amuse-engine/pkg/amuse/binio"
	"github.com/opd-ai/amuse-engine/pkg/amuse/group"
	"github.com/opd-ai/amuse-engine/pkg/amuse/song"
	"github.com/opd-ai/amuse-engine/pkg/amuse/voice"
)

// State is the coarse lifecycle of a Sequencer (spec §3 "SequencerState").
type State int

const (
	Playing State = iota
	Paused
	Dead
)

// VoiceAllocator is implemented by the owning engine: it assigns a fresh
// voice.ID, registers the voice in the engine-wide live-voice table, and
// returns it bound to g (spec §4.6 "Voice allocation"). Sequencers never
// mint IDs themselves so the engine's nextVid bookkeeping stays the
// single source of truth (spec §4.6).
type VoiceAllocator interface {
	AllocVoice(g *group.Group, sampleRate float64, spawner voice.SiblingSpawner, ctrl voice.MacroMessenger) *voice.Voice
}

type channelState struct {
	program    int32 // -1 = unassigned
	ctrl       [128]uint8
	pitchWheel float64
	active     map[uint8][]*voice.Voice // note -> spawned voices (layers may spawn more than one)
}

func newChannelState() channelState {
	return channelState{program: -1, active: make(map[uint8][]*voice.Voice)}
}

// Sequencer is an active song or sfx-group instance (spec §3, §4.4).
type Sequencer struct {
	Group     *group.Group
	GroupID   int
	SongGroup *group.SongGroup
	SFXGroup  *group.SFXGroup
	Allocator VoiceAllocator
	SampleRate float64

	// StudioID/HasStudio bind this sequencer to the studio it was started
	// on (spec §6 "seqPlay(groupId, songId, arrData?, studio)"), resolved
	// as a weak reference the same way a voice's studio binding is: a
	// removed studio kills every sequencer still carrying its ID (spec
	// "Studio removal").
	StudioID  int
	HasStudio bool

	channels [16]channelState
	song     *song.State
	state    State
}

// New creates a Sequencer bound to a song group (16-channel program
// table) within g (spec §3 "Sequencer").
func New(g *group.Group, groupID int, sg *group.SongGroup, alloc VoiceAllocator, sampleRate float64) *Sequencer {
	s := &Sequencer{Group: g, GroupID: groupID, SongGroup: sg, Allocator: alloc, SampleRate: sampleRate, state: Playing}
	for i := range s.channels {
		s.channels[i] = newChannelState()
		if sg != nil {
			s.channels[i].program = sg.ChannelPrograms[i]
		}
	}
	return s
}

// channelMessenger implements voice.MacroMessenger for a specific
// channel, giving a voice's OpCondBranch access to that channel's
// controller table (spec §4.3 "conditional branch on controller value").
type channelMessenger struct {
	seq *Sequencer
	ch  uint8
}

func (m channelMessenger) CtrlValue(ctrl uint8) int8 {
	if int(ctrl) >= 128 {
		return 0
	}
	return int8(m.seq.channels[m.ch].ctrl[ctrl])
}

// SpawnSibling implements voice.SiblingSpawner: a PLAYMACRO instruction
// allocates a peer voice through the engine's allocator and links it
// into head's sibling chain (spec §4.3 "Siblings").
func (s *Sequencer) SpawnSibling(head *voice.Voice, noteOffset int8, macroID group.ObjectId, stepOffset int) *voice.Voice {
	sib := s.Allocator.AllocVoice(s.Group, s.SampleRate, s, s.messengerFor(head))
	if sib == nil {
		return nil
	}
	if !sib.LoadSoundMacro(macroID, stepOffset) {
		sib.Kill()
		return nil
	}
	sib.LastNote = clampNote(int(head.LastNote) + int(noteOffset))

	tail := head
	for tail.Next != nil {
		tail = tail.Next
	}
	tail.Next = sib
	sib.Prev = tail
	return sib
}

// messengerFor locates the channel that owns v so a spawned sibling
// inherits the same controller-table view as its chain head.
func (s *Sequencer) messengerFor(v *voice.Voice) voice.MacroMessenger {
	for i := range s.channels {
		for _, voices := range s.channels[i].active {
			for _, cv := range voices {
				if cv == v {
					return channelMessenger{seq: s, ch: uint8(i)}
				}
			}
		}
	}
	return nil
}

func clampNote(n int) uint8 {
	return uint8(binio.ClampI(0, n, 127))
}

// KeyOn resolves a note-on against the channel's current program
// (keymap, else layer list) and spawns one voice per matching entry
// (spec §4.4 "Key-on resolution order"). A prior voice occupying the
// same (chan, note) slot is killed first.
func (s *Sequencer) KeyOn(midiChan, note, vel uint8) {
	if int(midiChan) >= len(s.channels) {
		return
	}
	ch := &s.channels[midiChan]

	if prior, ok := ch.active[note]; ok {
		for _, v := range prior {
			v.Kill()
		}
		delete(ch.active, note)
	}

	if ch.program < 0 {
		return
	}
	progID := group.ObjectId(uint16(ch.program))

	if km, ok := s.Group.Pool.Keymaps[progID]; ok {
		v := s.spawnVoice(midiChan, km.MacroId, clampNote(int(note)+int(km.Transpose)), vel, float64(km.Pan)/127, float64(km.Volume)/127)
		if v != nil {
			ch.active[note] = append(ch.active[note], v)
		}
		return
	}

	if layers, ok := s.Group.Pool.Layers[progID]; ok {
		for _, layer := range layers {
			if !layer.Covers(note) {
				continue
			}
			v := s.spawnVoice(midiChan, layer.MacroId, clampNote(int(note)+int(layer.Transpose)), vel, float64(layer.Pan)/127, float64(layer.Volume)/127)
			if v != nil {
				ch.active[note] = append(ch.active[note], v)
			}
		}
	}
}

func (s *Sequencer) spawnVoice(midiChan uint8, macroID group.ObjectId, note, vel uint8, pan, volume float64) *voice.Voice {
	ch := &s.channels[midiChan]
	msgr := channelMessenger{seq: s, ch: midiChan}
	v := s.Allocator.AllocVoice(s.Group, s.SampleRate, s, msgr)
	if v == nil {
		return nil
	}
	if !v.LoadSoundMacro(macroID, 0) {
		v.Kill()
		return nil
	}
	v.LastNote = note
	v.Pan = pan
	v.Volume = volume * (float64(vel) / 127)
	v.PitchWheel = ch.pitchWheel
	return v
}

// KeyOff releases every voice occupying (midiChan, note) into its
// envelope release phase (spec §4.4).
func (s *Sequencer) KeyOff(midiChan, note, vel uint8) {
	if int(midiChan) >= len(s.channels) {
		return
	}
	ch := &s.channels[midiChan]
	for _, v := range ch.active[note] {
		v.KeyOffVoice()
	}
	delete(ch.active, note)
}

// SetCtrlValue stores a MIDI controller value for a channel (spec §4.4).
func (s *Sequencer) SetCtrlValue(midiChan, ctrl, val uint8) {
	if int(midiChan) >= len(s.channels) || int(ctrl) >= 128 {
		return
	}
	s.channels[midiChan].ctrl[ctrl] = val
}

// SetChanProgram rebinds a channel's program id (spec §4.4).
func (s *Sequencer) SetChanProgram(midiChan, program uint8) {
	if int(midiChan) >= len(s.channels) {
		return
	}
	s.channels[midiChan].program = int32(program)
}

// SetPitchWheel sets a channel's normalized pitch wheel and propagates it
// to every currently active voice on that channel (spec §4.4).
func (s *Sequencer) SetPitchWheel(midiChan uint8, norm float64) {
	if int(midiChan) >= len(s.channels) {
		return
	}
	ch := &s.channels[midiChan]
	ch.pitchWheel = binio.Clampf(-1, norm, 1)
	for _, voices := range ch.active {
		for _, v := range voices {
			v.PitchWheel = ch.pitchWheel
		}
	}
}

// SetTempo is a no-op sink for song.Sequencer's tempo callback; the
// sequencer itself has no use for raw ticks-per-second beyond what
// song.State already tracks internally.
func (s *Sequencer) SetTempo(ticksPerSecond float64) {}

// AllOff releases (or, if hard, kills) every active voice across every
// channel (spec §4.4).
func (s *Sequencer) AllOff(hard bool) {
	for i := range s.channels {
		ch := &s.channels[i]
		for _, voices := range ch.active {
			for _, v := range voices {
				if hard {
					v.Kill()
				} else {
					v.KeyOffVoice()
				}
			}
		}
		ch.active = make(map[uint8][]*voice.Voice)
	}
}

// AllOffChannel releases (or, if hard, kills) every voice active on a
// single MIDI channel (spec §6 "All Notes Off"/"All Sound Off"), unlike
// AllOff which affects every channel at once.
func (s *Sequencer) AllOffChannel(midiChan uint8, hard bool) {
	if int(midiChan) >= len(s.channels) {
		return
	}
	ch := &s.channels[midiChan]
	for _, voices := range ch.active {
		for _, v := range voices {
			if hard {
				v.Kill()
			} else {
				v.KeyOffVoice()
			}
		}
	}
	ch.active = make(map[uint8][]*voice.Voice)
}

// KillKeygroup stops every active voice tagged with keygroup kg: it kills
// them immediately when now is true and keys them off otherwise. Either
// way the voices are removed from the channel's active-note table
// (spec §4.6 "killKeygroup").
func (s *Sequencer) KillKeygroup(kg uint8, now bool) {
	for i := range s.channels {
		ch := &s.channels[i]
		for note, voices := range ch.active {
			kept := voices[:0]
			for _, v := range voices {
				if v.Keygroup == kg {
					if now {
						v.Kill()
					} else {
						v.KeyOffVoice()
					}
					continue
				}
				kept = append(kept, v)
			}
			if len(kept) == 0 {
				delete(ch.active, note)
			} else {
				ch.active[note] = kept
			}
		}
	}
}

// PlaySong binds a decoded song blob to this sequencer (spec §4.4
// "playSong(bytes)").
func (s *Sequencer) PlaySong(data []byte) error {
	st, err := song.Decode(data)
	if err != nil {
		return fmt.Errorf("sequencer: play song: %w", err)
	}
	s.song = st
	return nil
}

// Advance drives the attached SongState, if any, which dispatches
// keyOn/keyOff/controller/program/tempo calls back into this sequencer
// (spec §4.4 "advance(dt)"). Returns true once the song has stopped;
// sfx-group sequencers with no attached song always report stopped.
func (s *Sequencer) Advance(dt float64) bool {
	if s.song == nil {
		return true
	}
	return s.song.Advance(s, dt)
}

// SendMacroMessage delivers a message to every active voice whose bound
// sound-macro object matches objId (spec §4.6 "sendMacroMessage").
func (s *Sequencer) SendMacroMessage(objID group.ObjectId, val int32) {
	for i := range s.channels {
		ch := &s.channels[i]
		for _, voices := range ch.active {
			for _, v := range voices {
				if v.ObjectID == objID {
					v.Message(val, voice.MsgBoth)
				}
			}
		}
	}
}

// Kill marks this sequencer Dead and kills every active voice without a
// release ramp (spec §3 "SequencerState").
func (s *Sequencer) Kill() {
	s.AllOff(true)
	s.state = Dead
}

// SequencerState reports the coarse lifecycle (spec §3).
func (s *Sequencer) SequencerState() State { return s.state }
