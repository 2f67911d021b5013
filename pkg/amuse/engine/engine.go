// Package engine ties the amuse-engine layers together: it owns every
// loaded group, voice, emitter, sequencer, and studio, and drives them
// from a host-supplied 5ms scheduler tick (spec §4.6).
package engine

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/amuse-engine/pkg/amuse/backend"
	"github.com/opd-ai/amuse-engine/pkg/amuse/group"
	"github.com/opd-ai/amuse-engine/pkg/amuse/midi"
	"github.com/opd-ai/amuse-engine/pkg/amuse/sequencer"
	"github.com/opd-ai/amuse-engine/pkg/amuse/studio"
	"github.com/opd-ai/amuse-engine/pkg/amuse/voice"
	"github.com/opd-ai/amuse-engine/pkg/pool"
)

// AmplitudeMode selects how the engine interprets a stored volume value
// (spec §3 "Engine").
type AmplitudeMode int

const (
	AmplitudeLinear AmplitudeMode = iota
	AmplitudePerCent
)

// sfxLocation resolves an sfx-id to the group and entry that define it
// (original_source Engine.cpp "m_sfxLookup").
type sfxLocation struct {
	grp   *group.Group
	groupID int
	entry group.SFXEntry
}

// Emitter binds a voice to a 3D position for distance-based attenuation
// (spec §6 "addEmitter").
type Emitter struct {
	Voice            *voice.Voice
	Pos, Dir         [3]float64
	MaxDist, Falloff float64
	MinVol, MaxVol   float64
}

// Engine is the top-level owner of every runtime audio entity (spec §3
// "Engine").
type Engine struct {
	backend backend.VoiceAllocator
	log     *logrus.Entry
	midi    midi.Queue
	ampMode AmplitudeMode

	groups   map[*group.Data]*group.Group
	sfxIndex map[uint16]sfxLocation

	voices     map[voice.ID]*voice.Voice
	nextVid    voice.ID
	emitters   map[voice.ID]*Emitter
	sequencers []*sequencer.Sequencer
	studios    []*studio.Studio
	nextStudio studio.ID
	defaultStudio *studio.Studio

	lastTick time.Time
}

// New constructs an Engine bound to a backend and registers its 5ms
// callback (spec §4.6, original_source Engine.cpp constructor).
func New(b backend.VoiceAllocator, ampMode AmplitudeMode, log *logrus.Logger) *Engine {
	if log == nil {
		log = logrus.New()
	}
	e := &Engine{
		backend:  b,
		log:      log.WithField("component", "engine"),
		ampMode:  ampMode,
		groups:   make(map[*group.Data]*group.Group),
		sfxIndex: make(map[uint16]sfxLocation),
		voices:   make(map[voice.ID]*voice.Voice),
		emitters: make(map[voice.ID]*Emitter),
	}
	e.defaultStudio = studio.New(0)
	e.defaultStudio.Default = true
	e.studios = append(e.studios, e.defaultStudio)
	e.nextStudio = 1
	b.Register5MsCallback(func() { e.fiveMsCallback(0.005) })
	return e
}

// AddAudioGroup decodes and registers a group bundle, indexing its sfx
// entries for fxStart/addEmitter lookup (spec §6 "addAudioGroup").
func (e *Engine) AddAudioGroup(d *group.Data) (*group.Group, error) {
	e.RemoveAudioGroup(d)

	g, err := group.Decode(d)
	if err != nil {
		e.log.WithError(err).Warn("failed to decode audio group")
		return nil, fmt.Errorf("engine: add audio group: %w", err)
	}
	e.groups[d] = g

	for groupID, sfxg := range g.Proj.SFXGroups {
		for sfxID, entry := range sfxg.Entries {
			e.sfxIndex[sfxID] = sfxLocation{grp: g, groupID: groupID, entry: entry}
		}
	}
	return g, nil
}

// RemoveAudioGroup tears down every voice/emitter/sequencer owned by d's
// group and drops its sfx index entries (spec §6 "removeAudioGroup").
func (e *Engine) RemoveAudioGroup(d *group.Data) {
	g, ok := e.groups[d]
	if !ok {
		return
	}

	for id, v := range e.voices {
		if v.Group == g {
			v.Destroy()
			delete(e.voices, id)
			delete(e.emitters, id)
		}
	}

	kept := e.sequencers[:0]
	for _, s := range e.sequencers {
		if s.Group == g {
			s.Kill()
			continue
		}
		kept = append(kept, s)
	}
	e.sequencers = kept

	for sfxID, loc := range e.sfxIndex {
		if loc.grp == g {
			delete(e.sfxIndex, sfxID)
		}
	}
	delete(e.groups, d)
}

// AddStudio creates a new Studio with its own aux submixes (spec §6
// "addStudio").
func (e *Engine) AddStudio(mainOut bool) *studio.Studio {
	s := studio.New(e.nextStudio)
	e.nextStudio++
	e.studios = append(e.studios, s)
	return s
}

// RemoveStudio kills every voice/sequencer bound to s, then destroys it.
// The default studio cannot be removed (spec §6 "Studio removal").
func (e *Engine) RemoveStudio(s *studio.Studio) {
	if s == nil || s.Default {
		return
	}
	for _, v := range e.voices {
		if v.HasStudio && studio.ID(v.StudioID) == s.ID {
			v.Kill()
		}
	}
	kept := e.sequencers[:0]
	for _, seq := range e.sequencers {
		if seq.HasStudio && studio.ID(seq.StudioID) == s.ID {
			seq.Kill()
			continue
		}
		kept = append(kept, seq)
	}
	e.sequencers = kept
	for i, other := range e.studios {
		if other == s {
			e.studios = append(e.studios[:i], e.studios[i+1:]...)
			break
		}
	}
}

// AllocVoice implements sequencer.VoiceAllocator: it assigns a fresh
// voice.ID, constructs the voice, and registers it in the engine-wide
// live-voice table (spec §4.6 "Voice allocation").
func (e *Engine) AllocVoice(g *group.Group, sampleRate float64, spawner voice.SiblingSpawner, ctrl voice.MacroMessenger) *voice.Voice {
	id := e.nextVid
	e.nextVid++
	v := voice.New(id, g, sampleRate, spawner, ctrl)
	e.voices[id] = v
	return v
}

// SpawnSibling implements voice.SiblingSpawner for voices created outside
// a sequencer (fxStart/addEmitter chains): PLAYMACRO allocates a fresh
// peer voice with no channel messenger (spec §4.3 "Siblings").
func (e *Engine) SpawnSibling(head *voice.Voice, noteOffset int8, macroID group.ObjectId, stepOffset int) *voice.Voice {
	sib := e.AllocVoice(head.Group, head.SampleRate, e, nil)
	if !sib.LoadSoundMacro(macroID, stepOffset) {
		sib.Kill()
		return nil
	}
	tail := head
	for tail.Next != nil {
		tail = tail.Next
	}
	tail.Next = sib
	sib.Prev = tail
	return sib
}

// FxStart allocates a fixed-32kHz sfx voice for sfxID and starts its
// sound macro (spec §6 "fxStart").
func (e *Engine) FxStart(sfxID uint16, vol, pan float64, s *studio.Studio) *voice.Voice {
	loc, ok := e.sfxIndex[sfxID]
	if !ok {
		return nil
	}

	v := e.AllocVoice(loc.grp, 32000, e, nil)
	if s != nil {
		v.StudioID = int(s.ID)
		v.HasStudio = true
	}

	if !v.LoadSoundMacro(loc.entry.ObjId, 0) {
		e.destroyVoice(v)
		return nil
	}
	v.Volume = vol
	v.Pan = pan
	return v
}

// AddEmitter starts sfxID as a positional voice tracked by an Emitter
// (spec §6 "addEmitter").
func (e *Engine) AddEmitter(pos, dir [3]float64, maxDist, falloff float64, sfxID uint16, minVol, maxVol float64, s *studio.Studio) *Emitter {
	loc, ok := e.sfxIndex[sfxID]
	if !ok {
		return nil
	}

	v := e.AllocVoice(loc.grp, 32000, e, nil)
	if s != nil {
		v.StudioID = int(s.ID)
		v.HasStudio = true
	}
	v.Emitter = true

	if !v.LoadSoundMacro(loc.entry.ObjId, 0) {
		e.destroyVoice(v)
		return nil
	}
	v.Pan = float64(loc.entry.Pan) / 127

	em := &Emitter{Voice: v, Pos: pos, Dir: dir, MaxDist: maxDist, Falloff: falloff, MinVol: minVol, MaxVol: maxVol}
	e.emitters[v.ID] = em
	return em
}

// SeqPlay allocates a Sequencer for groupID (song or sfx group) and
// optionally starts playing an embedded song blob (spec §6 "seqPlay").
func (e *Engine) SeqPlay(g *group.Group, groupID int, songData []byte, s *studio.Studio) *sequencer.Sequencer {
	if sg, ok := g.Proj.SongGroups[groupID]; ok {
		seq := sequencer.New(g, groupID, sg, e, 32000)
		bindSeqStudio(seq, s)
		e.sequencers = append(e.sequencers, seq)
		if songData != nil {
			if err := seq.PlaySong(songData); err != nil {
				e.log.WithError(err).Warn("seqPlay: failed to decode song")
			}
		}
		return seq
	}
	if _, ok := g.Proj.SFXGroups[groupID]; ok {
		seq := sequencer.New(g, groupID, nil, e, 32000)
		bindSeqStudio(seq, s)
		e.sequencers = append(e.sequencers, seq)
		return seq
	}
	return nil
}

func bindSeqStudio(seq *sequencer.Sequencer, s *studio.Studio) {
	if s == nil {
		return
	}
	seq.StudioID = int(s.ID)
	seq.HasStudio = true
}

// FindVoice looks up a voice by ID in the engine's global voice table,
// which also holds the voices sequencers allocate, and returns nil when the
// ID is absent or the voice is Finished (spec §6 "findVoice").
func (e *Engine) FindVoice(id voice.ID) *voice.Voice {
	if v, ok := e.voices[id]; ok && v.State() != voice.Finished {
		return v
	}
	return nil
}

// KillKeygroup stops every voice tagged kg, immediately if now, else via
// keyOff (spec §6 "killKeygroup").
func (e *Engine) KillKeygroup(kg uint8, now bool) {
	for id, v := range e.voices {
		if v.Keygroup != kg {
			continue
		}
		if now {
			e.destroyVoice(v)
			delete(e.voices, id)
			continue
		}
		v.KeyOffVoice()
	}
	for _, seq := range e.sequencers {
		seq.KillKeygroup(kg, now)
	}
}

// SendMacroMessage delivers val to every voice bound to macroID, across
// both bare voices and sequencer-owned ones (spec §6
// "sendMacroMessage").
func (e *Engine) SendMacroMessage(macroID group.ObjectId, val int32) {
	for _, v := range e.voices {
		if v.ObjectID == macroID {
			v.Message(val, voice.MsgBoth)
		}
	}
	for _, seq := range e.sequencers {
		seq.SendMacroMessage(macroID, val)
	}
}

func (e *Engine) destroyVoice(v *voice.Voice) {
	v.Destroy()
}

// fiveMsCallback drains the MIDI queue, dispatches each event to every
// live sequencer, and advances them (spec §4.6 step 1-2, original_source
// Engine::_5MsCallback; MIDI dispatch per
// original_source/lib/BooBackend.cpp's
// noteOn/noteOff/controlChange/programChange/pitchBend/allNotesOff/
// allSoundOff handlers, each of which forwards to every active
// sequencer).
func (e *Engine) fiveMsCallback(dt float64) {
	events := e.midi.Drain(dt*1000 + 1)
	for _, ev := range events {
		for _, seq := range e.sequencers {
			dispatchMIDIEvent(seq, ev)
		}
	}
	for _, seq := range e.sequencers {
		seq.Advance(dt)
	}
}

func dispatchMIDIEvent(seq *sequencer.Sequencer, ev midi.Event) {
	switch ev.Type {
	case midi.NoteOn:
		seq.KeyOn(ev.Channel, ev.Data1, ev.Data2)
	case midi.NoteOff:
		seq.KeyOff(ev.Channel, ev.Data1, ev.Data2)
	case midi.Controller:
		seq.SetCtrlValue(ev.Channel, ev.Data1, ev.Data2)
	case midi.ProgramChange:
		seq.SetChanProgram(ev.Channel, ev.Data1)
	case midi.PitchWheel:
		seq.SetPitchWheel(ev.Channel, ev.PitchWheelNorm())
	case midi.AllNotesOff:
		seq.AllOffChannel(ev.Channel, false)
	case midi.AllSoundOff:
		seq.AllOffChannel(ev.Channel, true)
	}
}

// bringOutYourDead removes emitters whose voice is dead, destroys
// Finished voices (with siblings), and destroys Dead sequencers (spec
// §4.6 "_bringOutYourDead").
func (e *Engine) bringOutYourDead() {
	for id, em := range e.emitters {
		if em.Voice.State() == voice.Finished {
			delete(e.emitters, id)
		}
	}

	dead := pool.GlobalPools.VoiceIDs.Get()
	defer pool.GlobalPools.VoiceIDs.Put(dead)
	for id, v := range e.voices {
		if v.State() == voice.Finished {
			*dead = append(*dead, int32(id))
		}
	}
	for _, id := range *dead {
		v := e.voices[voice.ID(id)]
		v.Destroy()
		delete(e.voices, voice.ID(id))
	}

	kept := e.sequencers[:0]
	for _, seq := range e.sequencers {
		if seq.SequencerState() == sequencer.Dead {
			continue
		}
		kept = append(kept, seq)
	}
	e.sequencers = kept
}

// PumpEngine drives the 5ms scheduler tick from wall-clock elapsed time,
// mixes voices via the backend, reaps dead entities, and recomputes
// nextVid (spec §4.6 steps 1-3). Backends are free to also invoke the
// callback registered in New via Register5MsCallback on their own
// real-time thread for tighter timing (spec §6 "Backend contract"); the
// ebiten backend does not, so PumpEngine's own elapsed-time tracking is
// what actually drives MIDI dispatch and sequencer advance in the
// shipped player.
func (e *Engine) PumpEngine() {
	now := time.Now()
	dt := 0.005
	if !e.lastTick.IsZero() {
		dt = now.Sub(e.lastTick).Seconds()
	}
	e.lastTick = now
	e.fiveMsCallback(dt)

	e.backend.PumpAndMixVoices()
	e.bringOutYourDead()

	var maxVid voice.ID = -1
	for id := range e.voices {
		if id > maxVid {
			maxVid = id
		}
	}
	e.nextVid = maxVid + 1
}

// MIDIQueue exposes the cross-thread MIDI event queue for the host's
// MIDI callback to push into (spec §5).
func (e *Engine) MIDIQueue() *midi.Queue { return &e.midi }

// DefaultStudio returns the engine's always-present default studio.
func (e *Engine) DefaultStudio() *studio.Studio { return e.defaultStudio }

// Voices returns every live voice, in no particular order.
func (e *Engine) Voices() []*voice.Voice {
	out := make([]*voice.Voice, 0, len(e.voices))
	for _, v := range e.voices {
		out = append(out, v)
	}
	return out
}

// Studios returns every active studio, default included.
func (e *Engine) Studios() []*studio.Studio {
	return append([]*studio.Studio(nil), e.studios...)
}
