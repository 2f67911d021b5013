// Package song decodes and schedules the compressed multi-track song
// format (spec §4.5): header, track regions, tempo table, and the
// per-track event stream in both the revised (v1) and legacy/N64 (v0)
// encodings, auto-detected per spec §6.
package song

import (
	"fmt"
	"math"

	"github.com/opd-ai/amuse-engine/pkg/amuse/binio"
)

// Sequencer is the playback sink a song drives: MIDI-shaped channel
// events plus tempo (spec §4.4 "Sequencer" / §4.5 "SongState drives a
// Sequencer").
type Sequencer interface {
	KeyOn(midiChan, note, vel uint8)
	KeyOff(midiChan, note, vel uint8)
	SetCtrlValue(midiChan, ctrl, val uint8)
	SetChanProgram(midiChan, program uint8)
	SetPitchWheel(midiChan uint8, val float64)
	SetTempo(ticksPerSecond float64)
}

// PlayState is the coarse playback status of a State (spec §4.5).
type PlayState int

const (
	Playing PlayState = iota
	Stopped
)

const numTracks = 64
const noNote = math.MinInt32

// header is the fixed 24-byte song header (spec §4.5).
type header struct {
	trackIdxOff   uint32
	regionIdxOff  uint32
	chanMapOff    uint32
	tempoTableOff uint32
	initialTempo  uint32
	unkOff        uint32
}

func decodeHeader(data []byte, order binio.Order) header {
	return header{
		trackIdxOff:   order.U32(data, 0),
		regionIdxOff:  order.U32(data, 4),
		chanMapOff:    order.U32(data, 8),
		tempoTableOff: order.U32(data, 12),
		initialTempo:  order.U32(data, 16),
		unkOff:        order.U32(data, 20),
	}
}

// trackRegion is one entry of a track's region list: a start tick plus
// an index into the region pointer table. A negative regionIndex
// terminates the list (spec §4.5).
type trackRegion struct {
	regionIndex int32
	startTick   uint32
}

func decodeTrackRegion(data []byte, off int, order binio.Order) trackRegion {
	return trackRegion{
		regionIndex: order.I32(data, off),
		startTick:   order.U32(data, off+4),
	}
}

func (r trackRegion) valid() bool { return r.regionIndex >= 0 }

// tempoChange is one entry of the tempo table; m_tick==0xffffffff
// terminates it (spec §4.5).
type tempoChange struct {
	tick  uint32
	tempo uint32
}

func decodeTempoChange(data []byte, off int, order binio.Order) tempoChange {
	return tempoChange{tick: order.U32(data, off), tempo: order.U32(data, off+4)}
}

// trackHeader is the fixed 12-byte header at the start of each region's
// event stream (spec §4.5).
type trackHeader struct {
	kind     uint32
	pitchOff uint32
	modOff   uint32
}

func decodeTrackHeader(data []byte, off int, order binio.Order) trackHeader {
	return trackHeader{
		kind:     order.U32(data, off),
		pitchOff: order.U32(data, off+4),
		modOff:   order.U32(data, off+8),
	}
}

// track holds one MIDI channel's playback cursor through the event
// stream (spec §4.5 "Track").
type track struct {
	midiChan uint8

	regions     []byte // the whole song blob; this track's region list starts at the nextRegion offset it is created with
	curRegion   int    // byte offset within regions of the active trackRegion
	nextRegion  int    // byte offset of the next trackRegion to consider

	data         []byte // cursor into songData for the active region's event stream; nil when exhausted
	pos          int
	pitchData    []byte
	pitchPos     int
	modData      []byte
	modPos       int

	eventWait     int32
	lastPitchTick int32
	lastPitchVal  int32
	lastModTick   int32
	lastModVal    int32
	lastN64Tick   int32

	remNoteLen [128]int32
}

// newTrack mirrors Track::Track: it does not resolve a region yet —
// that happens lazily the first time advanceTrack's region-rollover
// check fires (spec §4.5 "Track::setRegion").
func newTrack(midiChan uint8, regions []byte, startOff int) *track {
	t := &track{midiChan: midiChan, regions: regions, nextRegion: startOff}
	for i := range t.remNoteLen {
		t.remNoteLen[i] = noNote
	}
	return t
}

// State is the decoded, playable representation of a song blob (spec
// §4.5 "SongState").
type State struct {
	data     []byte
	order    binio.Order
	bigEndian bool
	version  int // 1 = revised, 0 = legacy/N64

	hdr         header
	regionIdx   []byte // raw region-pointer table bytes
	tempoPtr    int    // byte offset into data of the next tempoChange; valid only while haveTempo
	haveTempo   bool

	tracks [numTracks]*track

	tempo   int32
	curTick int32
	curDt   float64
	state   PlayState
}

// DetectVersion trial-decodes both the revised (v1) and legacy (v0)
// event encodings against every track's regions and returns whichever
// interpretation ends each checked region at, or at most 4 bytes before,
// its expected end pointer (spec §4.5, §6 "format auto-detection"; spec §8
// "version-detection idempotence"). Byte order is inferred from the first
// header byte: a leading 0 byte (the high byte of a big-endian
// trackIdxOff) signals big-endian GCN/N64 data, and any other leading
// byte is read as little-endian PC data.
func DetectVersion(data []byte) (version int, bigEndian bool, ok bool) {
	bigEndian = data[0] == 0
	order := binio.BigEndian
	if !bigEndian {
		order = binio.LittleEndian
	}
	hdr := decodeHeader(data, order)

	trackIdxAt := func(i int) uint32 { return order.U32(data, int(hdr.trackIdxOff)+i*4) }
	regionPtrAt := func(idx uint32) uint32 { return order.U32(data, int(hdr.regionIdxOff)+int(idx)*4) }

	var maxRegionIdx uint32
	for i := 0; i < numTracks; i++ {
		off := trackIdxAt(i)
		if off == 0 {
			continue
		}
		cur := int(off)
		for {
			r := decodeTrackRegion(data, cur, order)
			if !r.valid() {
				break
			}
			if uint32(r.regionIndex) > maxRegionIdx {
				maxRegionIdx = uint32(r.regionIndex)
			}
			cur += 8
		}
	}

	for v := 1; v >= 0; v-- {
		bad := false
		for i := 0; i < numTracks && !bad; i++ {
			off := trackIdxAt(i)
			if off == 0 {
				continue
			}
			cur := int(off)
			for {
				r := decodeTrackRegion(data, cur, order)
				if !r.valid() {
					break
				}
				cur += 8
				regionIdx := uint32(r.regionIndex)

				dataOff := int(regionPtrAt(regionIdx))
				if regionIdx == maxRegionIdx {
					continue
				}
				expectedEnd := int(regionPtrAt(regionIdx + 1))

				th := decodeTrackHeader(data, dataOff, order)
				p := dataOff + 12
				skippedStream := false

				if th.pitchOff != 0 {
					p = continuousStreamEnd(data, int(th.pitchOff))
					if p >= expectedEnd-4 && p <= expectedEnd {
						skippedStream = true
					}
				}
				if !skippedStream && th.modOff != 0 {
					p = continuousStreamEnd(data, int(th.modOff))
					if p >= expectedEnd-4 && p <= expectedEnd {
						skippedStream = true
					}
				}
				if skippedStream {
					continue
				}

				p = dataOff + 12
				if v == 1 {
					for {
						_, n := binio.DecodeTimeRLE(data[p:])
						p += n
						if order.U16(data, p) == 0xffff {
							p += 2
							break
						} else if data[p]&0x80 != 0 && data[p+1]&0x80 != 0 {
							p += 2
						} else if data[p]&0x80 != 0 {
							p += 2
						} else {
							p += 4
						}
					}
				} else {
					for {
						p += 4
						if order.U16(data, p+2) == 0xffff {
							p += 4
							break
						}
						p += 4
					}
				}

				if p < expectedEnd-4 || p > expectedEnd {
					bad = true
					break
				}
			}
		}
		if bad {
			continue
		}
		return v, bigEndian, true
	}
	return 0, bigEndian, false
}

// continuousStreamEnd walks a continuous pitch/modulation RLE stream
// (alternating delta-tick and signed-value records) starting at pos and
// returns the byte offset just past its terminator (spec §4.5).
func continuousStreamEnd(data []byte, pos int) int {
	p := pos
	for {
		u, n := binio.DecodeRLE(data[p:])
		p += n
		if u == 0xFFFFFFFF {
			break
		}
		_, n2 := binio.DecodeContinuousRLE(data[p:])
		p += n2
	}
	return p
}

// Decode parses a song blob end to end: detects its version/endianness,
// builds the header, channel map, and per-track cursors, and seeds the
// tempo (spec §4.5 "initialize").
func Decode(data []byte) (*State, error) {
	version, bigEndian, ok := DetectVersion(data)
	if !ok {
		return nil, fmt.Errorf("song: could not detect a valid version/endianness")
	}

	order := binio.BigEndian
	if !bigEndian {
		order = binio.LittleEndian
	}

	s := &State{data: data, order: order, bigEndian: bigEndian, version: version}
	s.hdr = decodeHeader(data, order)

	chanMapOff := int(s.hdr.chanMapOff)
	for i := 0; i < numTracks; i++ {
		off := order.U32(data, int(s.hdr.trackIdxOff)+i*4)
		if off == 0 {
			continue
		}
		midiChan := data[chanMapOff+i]
		t := newTrack(midiChan, data, int(off))
		s.tracks[i] = t
	}

	if s.hdr.tempoTableOff != 0 {
		s.haveTempo = true
		s.tempoPtr = int(s.hdr.tempoTableOff)
	}

	s.tempo = int32(s.hdr.initialTempo & 0x7fffffff)
	s.curTick = 0
	s.state = Playing
	return s, nil
}

// setRegion binds t to the region starting at byte offset regionOff
// within t.regions, decoding the region's track header and seeding its
// event-stream cursor (spec §4.5 "Track::setRegion").
func (s *State) setRegion(seq Sequencer, t *track, regionOff int) {
	t.curRegion = regionOff
	r := decodeTrackRegion(t.regions, regionOff, s.order)
	t.nextRegion = regionOff + 8

	dataOff := int(s.order.U32(s.data, int(s.hdr.regionIdxOff)+int(r.regionIndex)*4))
	th := decodeTrackHeader(s.data, dataOff, s.order)
	cur := dataOff + 12

	t.pitchData = nil
	t.modData = nil
	if th.pitchOff != 0 {
		t.pitchData = s.data
		t.pitchPos = int(th.pitchOff)
	}
	if th.modOff != 0 {
		t.modData = s.data
		t.modPos = int(th.modOff)
	}

	t.eventWait = 0
	t.lastPitchTick = s.curTick
	t.lastPitchVal = 0
	t.lastModTick = s.curTick
	t.lastModVal = 0
	seq.SetPitchWheel(t.midiChan, 0)
	seq.SetCtrlValue(t.midiChan, 1, 0)

	if s.version == 1 {
		n, consumed := binio.DecodeTimeRLE(s.data[cur:])
		t.eventWait = int32(n)
		cur += consumed
	} else {
		absTick := s.order.I32(s.data, cur)
		t.eventWait = absTick
		t.lastN64Tick = absTick
		cur += 4
	}

	t.data = s.data
	t.pos = cur
}

func (s *State) advanceRegion(seq Sequencer, t *track) { s.setRegion(seq, t, t.nextRegion) }

// Advance drives the song forward by dt seconds of host time, converting
// elapsed time to ticks via the current tempo (384 subticks per quarter
// note, spec §4.5 "tempo conversion law"), handling any tempo-table
// crossing, and advancing every live track. It returns true once every
// track has reached end-of-stream and the song has stopped.
func (s *State) Advance(seq Sequencer, dt float64) bool {
	if s.state == Stopped {
		return true
	}

	done := false
	s.curDt += dt
	for s.curDt > 0 {
		done = true
		ticksPerSecond := float64(s.tempo) * 384 / 60
		remTicks := int32(math.Ceil(s.curDt * ticksPerSecond))
		if remTicks == 0 {
			break
		}

		if s.haveTempo {
			change := decodeTempoChange(s.data, s.tempoPtr, s.order)
			if change.tick != 0xffffffff {
				if s.curTick+remTicks > int32(change.tick) {
					remTicks = int32(change.tick) - s.curTick
				}
				if remTicks <= 0 {
					s.tempo = int32(change.tempo & 0x7fffffff)
					seq.SetTempo(float64(s.tempo) * 384 / 60)
					s.tempoPtr += 8
					continue
				}
			}
		}

		for _, t := range s.tracks {
			if t == nil {
				continue
			}
			trackDone := s.advanceTrack(seq, t, remTicks)
			done = done && trackDone
		}

		s.curTick += remTicks
		if s.tempo == 0 {
			s.curDt = 0
		} else {
			s.curDt -= float64(remTicks) / ticksPerSecond
		}
	}

	if done {
		s.state = Stopped
	}
	return done
}

// advanceTrack ports Track::advance: region rollover, note-length
// countdown, continuous pitch/modulation playback, and the
// version-specific event-stream walk (spec §4.5).
func (s *State) advanceTrack(seq Sequencer, t *track, ticks int32) bool {
	endTick := s.curTick + ticks

	for {
		nr := decodeTrackRegion(t.regions, t.nextRegion, s.order)
		if !nr.valid() {
			break
		}
		if uint32(endTick) > nr.startTick {
			s.advanceRegion(seq, t)
		} else {
			break
		}
	}

	for note := 0; note < 128; note++ {
		if t.remNoteLen[note] == noNote {
			continue
		}
		t.remNoteLen[note] -= ticks
		if t.remNoteLen[note] <= 0 {
			seq.KeyOff(t.midiChan, uint8(note), 0)
			t.remNoteLen[note] = noNote
		}
	}

	if t.data == nil {
		nr := decodeTrackRegion(t.regions, t.nextRegion, s.order)
		return !nr.valid()
	}

	if t.pitchData != nil {
		pitchTick := s.curTick
		remPitchTicks := ticks
		for pitchTick < endTick {
			u, n := binio.DecodeRLE(t.pitchData[t.pitchPos:])
			if u == 0xFFFFFFFF {
				break
			}
			nextTick := t.lastPitchTick + int32(u)
			if pitchTick+remPitchTicks > nextTick {
				delta, dn := binio.DecodeContinuousRLE(t.pitchData[t.pitchPos+n:])
				t.lastPitchVal += delta
				t.pitchPos += n + dn
				t.lastPitchTick = nextTick
				remPitchTicks -= nextTick - pitchTick
				pitchTick = nextTick
				seq.SetPitchWheel(t.midiChan, binio.Clampf(-1, float64(t.lastPitchVal)/32768, 1))
				continue
			}
			remPitchTicks -= nextTick - pitchTick
			pitchTick = nextTick
		}
	}

	if t.modData != nil {
		modTick := s.curTick
		remModTicks := ticks
		for modTick < endTick {
			u, n := binio.DecodeRLE(t.modData[t.modPos:])
			if u == 0xFFFFFFFF {
				break
			}
			nextTick := t.lastModTick + int32(u)
			if modTick+remModTicks > nextTick {
				delta, dn := binio.DecodeContinuousRLE(t.modData[t.modPos+n:])
				t.lastModVal += delta
				t.modPos += n + dn
				t.lastModTick = nextTick
				remModTicks -= nextTick - modTick
				modTick = nextTick
				seq.SetCtrlValue(t.midiChan, 1, uint8(binio.ClampI(0, int(t.lastModVal)*128/16384, 127)))
				continue
			}
			remModTicks -= nextTick - modTick
			modTick = nextTick
		}
	}

	if s.version == 1 {
		for {
			if t.eventWait != 0 {
				t.eventWait -= ticks
				ticks = 0
				if t.eventWait > 0 {
					return false
				}
			}

			if s.order.U16(t.data, t.pos) == 0xffff {
				t.data = nil
				nr := decodeTrackRegion(t.regions, t.nextRegion, s.order)
				return !nr.valid()
			} else if t.data[t.pos]&0x80 != 0 && t.data[t.pos+1]&0x80 != 0 {
				val := t.data[t.pos] & 0x7f
				ctrl := t.data[t.pos+1] & 0x7f
				seq.SetCtrlValue(t.midiChan, ctrl, val)
				t.pos += 2
			} else if t.data[t.pos]&0x80 != 0 {
				prog := t.data[t.pos] & 0x7f
				seq.SetChanProgram(t.midiChan, prog)
				t.pos += 2
			} else {
				note := t.data[t.pos] & 0x7f
				vel := t.data[t.pos+1] & 0x7f
				length := s.order.U16(t.data, t.pos+2)
				seq.KeyOn(t.midiChan, note, vel)
				t.remNoteLen[note] = int32(length)
				t.pos += 4
			}

			n, consumed := binio.DecodeTimeRLE(t.data[t.pos:])
			t.eventWait += int32(n)
			t.pos += consumed
		}
	}

	for {
		if t.eventWait != 0 {
			t.eventWait -= ticks
			ticks = 0
			if t.eventWait > 0 {
				return false
			}
		}

		if s.order.U16(t.data, t.pos+2) == 0xffff {
			t.data = nil
			nr := decodeTrackRegion(t.regions, t.nextRegion, s.order)
			return !nr.valid()
		}

		if t.data[t.pos+2]&0x80 != 0x80 {
			length := s.order.U16(t.data, t.pos)
			note := t.data[t.pos+2] & 0x7f
			vel := t.data[t.pos+3] & 0x7f
			seq.KeyOn(t.midiChan, note, vel)
			t.remNoteLen[note] = int32(length)
		} else if t.data[t.pos+2]&0x80 != 0 && t.data[t.pos+3]&0x80 != 0 {
			val := t.data[t.pos+2] & 0x7f
			ctrl := t.data[t.pos+3] & 0x7f
			seq.SetCtrlValue(t.midiChan, ctrl, val)
		} else if t.data[t.pos+2]&0x80 != 0 {
			prog := t.data[t.pos+2] & 0x7f
			seq.SetChanProgram(t.midiChan, prog)
		}
		t.pos += 4

		absTick := s.order.I32(t.data, t.pos)
		t.eventWait += absTick - t.lastN64Tick
		t.lastN64Tick = absTick
		t.pos += 4
	}
}

// State reports the coarse playback status.
func (s *State) State() PlayState { return s.state }

// CurTick returns the song's current absolute tick position.
func (s *State) CurTick() int32 { return s.curTick }
