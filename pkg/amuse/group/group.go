// Package group decodes amuse-engine audio group bundles: the project
// descriptor (proj), the DSP/macro object pool (pool), the sample directory
// (sdir), and the raw sample blob (samp). See spec §3 and §4.1.
package group

import (
	"fmt"

	"github.com/opd-ai/amuse-engine/pkg/amuse/binio"
)

// ObjectId is a 16-bit identifier, opaque within a group (spec §3).
type ObjectId uint16

// DataFormat identifies the originating platform of a group bundle, which
// determines byte order and sample offset fixups (spec §6).
type DataFormat int

const (
	GCN DataFormat = iota
	N64
	PC
)

func (f DataFormat) String() string {
	switch f {
	case GCN:
		return "GCN"
	case N64:
		return "N64"
	case PC:
		return "PC"
	default:
		return "unknown"
	}
}

// Order returns the byte order a group of this format uses for its pool,
// sdir, and sample-offset fields.
func (f DataFormat) Order() binio.Order {
	if f == PC {
		return binio.LittleEndian
	}
	return binio.BigEndian
}

// Data is the immutable four-blob bundle a caller owns and the engine only
// references (spec §3 "AudioGroupData"). The caller must keep it alive for
// as long as any Group derived from it is in use.
type Data struct {
	Proj    []byte
	Pool    []byte
	Sdir    []byte
	Samp    []byte
	Format  DataFormat
	AbsOffs uint32 // sample offset fixup, used by N64/PC formats
}

// ADSR is a fixed attack/decay/sustain/release envelope table (spec §4.2).
type ADSR struct {
	AttackTime  float32
	DecayTime   float32
	SustainFactor float32
	ReleaseTime float32
}

// ADSRDLSCurve holds one velocity/note-keyed DLS envelope curve.
type ADSRDLSCurve struct {
	Attack, Decay, Sustain, Release float32
}

// ADSRDLS parameterises an envelope by note and velocity (spec Glossary).
type ADSRDLS struct {
	Curves []ADSRDLSCurve // indexed ad hoc by the voice at load time
}

// Keymap maps a single MIDI note to a macro with transpose/pan/volume
// (spec Glossary "Keymap / Layer").
type Keymap struct {
	MacroId   ObjectId
	Transpose int8
	Pan       int8
	Volume    uint8
}

// LayerMapping is one entry of a layer list: a key range that spawns a
// macro voice when covered (spec §4.4).
type LayerMapping struct {
	MacroId   ObjectId
	KeyLo     uint8
	KeyHi     uint8
	Transpose int8
	Pan       int8
	Volume    uint8
}

func (l LayerMapping) Covers(note uint8) bool { return note >= l.KeyLo && note <= l.KeyHi }

// Pool is the decoded index over a pool blob: pointers into the source
// bytes for sound macros, ADSR tables, keymaps, and layer lists (spec
// §4.1). Payloads stay pinned to the originating Data.Pool slice; nothing
// is copied.
type Pool struct {
	SoundMacros map[ObjectId][]byte
	Tables      map[ObjectId][]byte
	Keymaps     map[ObjectId]*Keymap
	Layers      map[ObjectId][]LayerMapping
}

const poolSentinel = 0xFFFFFFFF

// DecodePool parses the pool blob's four sections (spec §4.1). Each section
// is a list of {uint32 size, ObjectId id, payload} records terminated by a
// 0xFFFFFFFF sentinel.
func DecodePool(data []byte, order binio.Order) (*Pool, error) {
	if len(data) < 16 {
		return nil, fmt.Errorf("group: pool header truncated")
	}
	header := struct{ soundMacros, tables, keymaps, layers uint32 }{
		order.U32(data, 0), order.U32(data, 4), order.U32(data, 8), order.U32(data, 12),
	}

	p := &Pool{
		SoundMacros: make(map[ObjectId][]byte),
		Tables:      make(map[ObjectId][]byte),
		Keymaps:     make(map[ObjectId]*Keymap),
		Layers:      make(map[ObjectId][]LayerMapping),
	}

	if header.soundMacros != 0 {
		cur := int(header.soundMacros)
		for {
			sz := order.U32(data, cur)
			if sz == poolSentinel {
				break
			}
			id := ObjectId(order.U16(data, cur+4))
			p.SoundMacros[id] = data[cur+8 : cur+int(sz)]
			cur += int(sz)
		}
	}

	if header.tables != 0 {
		cur := int(header.tables)
		for {
			sz := order.U32(data, cur)
			if sz == poolSentinel {
				break
			}
			id := ObjectId(order.U16(data, cur+4))
			p.Tables[id] = data[cur+8 : cur+int(sz)]
			cur += int(sz)
		}
	}

	if header.keymaps != 0 {
		cur := int(header.keymaps)
		for {
			sz := order.U32(data, cur)
			if sz == poolSentinel {
				break
			}
			id := ObjectId(order.U16(data, cur+4))
			payload := data[cur+8:]
			p.Keymaps[id] = &Keymap{
				MacroId:   ObjectId(order.U16(payload, 0)),
				Transpose: int8(payload[2]),
				Pan:       int8(payload[3]),
				Volume:    payload[4],
			}
			cur += int(sz)
		}
	}

	if header.layers != 0 {
		cur := int(header.layers)
		for {
			sz := order.U32(data, cur)
			if sz == poolSentinel {
				break
			}
			id := ObjectId(order.U16(data, cur+4))
			count := int(order.U32(data, cur+8))
			entries := make([]LayerMapping, 0, count)
			sub := cur + 12
			for i := 0; i < count; i++ {
				e := sub + i*12
				entries = append(entries, LayerMapping{
					MacroId:   ObjectId(order.U16(data, e)),
					KeyLo:     data[e+2],
					KeyHi:     data[e+3],
					Transpose: int8(data[e+4]),
					Pan:       int8(data[e+5]),
					Volume:    data[e+6],
				})
			}
			p.Layers[id] = entries
			cur += int(sz)
		}
	}

	return p, nil
}

// AsADSR interprets a table entry as a plain ADSR record.
func (p *Pool) AsADSR(id ObjectId, order binio.Order) (ADSR, bool) {
	payload, ok := p.Tables[id]
	if !ok || len(payload) < 16 {
		return ADSR{}, false
	}
	// Times are stored as 32-bit fixed-point seconds*1000; sustain is a
	// direct 0..1 factor scaled by 1000, matching the pool's fixed-width
	// record layout (spec §4.1/§4.2).
	return ADSR{
		AttackTime:    float32(order.U32(payload, 0)) / 1000,
		DecayTime:     float32(order.U32(payload, 4)) / 1000,
		SustainFactor: float32(order.U32(payload, 8)) / 1000,
		ReleaseTime:   float32(order.U32(payload, 12)) / 1000,
	}, true
}

// ADPCMParms carries the per-sample ADPCM decode coefficients (spec §4.1).
type ADPCMParms struct {
	BytesPerFrame uint16
	PS, LPS       uint8
	Hist1, Hist2  int16
	Coefs         [8][2]int16
}

// SampleEntry is one sample directory record (spec §4.1 / §3).
type SampleEntry struct {
	SfxId           uint16
	SampleOff       uint32
	BasePitch       uint8
	SampleRate      uint16
	NumSamples      uint32
	LoopStartSample uint32
	LoopLenSamples  uint32
	ADPCM           ADPCMParms
}

const (
	sdirEntrySize  = 29 // sfxId(2) + sampleOff(4) + unk(4) + pitch(1) + rate(2) + numSamples(4) + loopStart(4) + loopLen(4) + adpcmOff(4)
	adpcmParmsSize = 40 // bytesPerFrame(2) + ps(1) + lps(1) + hist1(2) + hist2(2) + 8*2 coefs(32)
)

// SampleDirectory indexes the sample directory blob by sfx-id (spec §3
// "Sample directory").
type SampleDirectory struct {
	Entries map[uint16]SampleEntry
}

// DecodeSampleDirectory parses a stream of fixed-size Entry records until a
// 0xFFFF sfx-id sentinel or the blob is exhausted (spec §4.1). Each entry
// carries an offset to its ADPCMParms record, decoded eagerly since both
// live in the same immutable blob.
func DecodeSampleDirectory(data []byte, order binio.Order) (*SampleDirectory, error) {
	dir := &SampleDirectory{Entries: make(map[uint16]SampleEntry)}
	cur := 0
	for cur+sdirEntrySize <= len(data) {
		sfxId := order.U16(data, cur)
		if sfxId == 0xFFFF {
			break
		}
		e := SampleEntry{
			SfxId:           sfxId,
			SampleOff:       order.U32(data, cur+2),
			BasePitch:       data[cur+10],
			SampleRate:      order.U16(data, cur+11),
			NumSamples:      order.U32(data, cur+13),
			LoopStartSample: order.U32(data, cur+17),
			LoopLenSamples:  order.U32(data, cur+21),
		}
		adpcmOff := int(order.U32(data, cur+25))
		if adpcmOff > 0 && adpcmOff+adpcmParmsSize <= len(data) {
			e.ADPCM = decodeADPCMParms(data[adpcmOff:], order)
		}
		dir.Entries[sfxId] = e
		cur += sdirEntrySize
	}
	return dir, nil
}

func decodeADPCMParms(data []byte, order binio.Order) ADPCMParms {
	p := ADPCMParms{
		BytesPerFrame: order.U16(data, 0),
		PS:            data[2],
		LPS:           data[3],
		Hist1:         order.I16(data, 4),
		Hist2:         order.I16(data, 6),
	}
	for i := 0; i < 8; i++ {
		p.Coefs[i][0] = order.I16(data, 8+i*4)
		p.Coefs[i][1] = order.I16(data, 8+i*4+2)
	}
	return p
}

// SFXEntry maps an sfx-id to its default playback parameters within an
// SFXGroup (spec §3).
type SFXEntry struct {
	ObjId     ObjectId
	DefaultKey uint8
	DefaultVel uint8
	Pan        int8
}

// SongGroup is a channel->program table plus drum tables (spec §3).
type SongGroup struct {
	ChannelPrograms [16]int32 // -1 = unassigned
	DrumTables      map[uint8]ObjectId
}

// SFXGroup maps sfx-id to playback entry (spec §3).
type SFXGroup struct {
	Entries map[uint16]SFXEntry
}

// Project is the decoded proj blob: group-id -> SongGroup|SFXGroup (spec §3).
type Project struct {
	SongGroups map[int]*SongGroup
	SFXGroups  map[int]*SFXGroup
}

// Group is the derived index built once per Data bundle (spec §3
// "AudioGroup"): project, pool, and sample directory, all referencing
// bytes owned by Data.
type Group struct {
	Data    *Data
	Proj    *Project
	Pool    *Pool
	SampDir *SampleDirectory
}

// Decode builds a Group from a Data bundle, auto-selecting byte order from
// Format (spec §4.1, §6).
func Decode(d *Data) (*Group, error) {
	order := d.Format.Order()

	pool, err := DecodePool(d.Pool, order)
	if err != nil {
		return nil, fmt.Errorf("group: decode pool: %w", err)
	}
	sdir, err := DecodeSampleDirectory(d.Sdir, order)
	if err != nil {
		return nil, fmt.Errorf("group: decode sdir: %w", err)
	}
	proj, err := DecodeProject(d.Proj, order)
	if err != nil {
		return nil, fmt.Errorf("group: decode proj: %w", err)
	}

	return &Group{Data: d, Proj: proj, Pool: pool, SampDir: sdir}, nil
}

// SampleData returns the raw sample bytes for a directory entry, rooted at
// the group's absolute sample offset fixup.
func (g *Group) SampleData(e SampleEntry) []byte {
	off := int(e.SampleOff)
	if g.Data.Format != GCN {
		off += int(g.Data.AbsOffs)
	}
	if off < 0 || off > len(g.Data.Samp) {
		return nil
	}
	return g.Data.Samp[off:]
}
