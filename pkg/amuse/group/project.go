package group

import "github.com/opd-ai/amuse-engine/pkg/amuse/binio"

// DecodeProject parses the proj blob into group-id -> SongGroup|SFXGroup
// (spec §3 "Project index"). spec.md deliberately leaves the on-disk proj
// layout as an implementation detail (it only specifies the logical
// mapping the decoder must produce); this lays it out as two leading
// record tables — song groups then sfx groups — each a count-prefixed
// array of {groupId, payload offset} pairs, consistent with the
// count-then-records shape the pool and layer sections use (spec §4.1).
//
//	u32 songGroupCount
//	songGroupCount * { i32 groupId, u32 offset }   -- offset -> SongGroup record
//	u32 sfxGroupCount
//	sfxGroupCount * { i32 groupId, u32 offset }     -- offset -> SFXGroup record
//
// SongGroup record: 16 * i32 channel program ids (-1 = unassigned), then
// u32 drumCount, then drumCount * { u8 programId, u16 objectId }.
//
// SFXGroup record: u32 entryCount, then entryCount * { u16 sfxId, u16
// objId, u8 defaultKey, u8 defaultVel, i8 pan }.
func DecodeProject(data []byte, order binio.Order) (*Project, error) {
	proj := &Project{
		SongGroups: make(map[int]*SongGroup),
		SFXGroups:  make(map[int]*SFXGroup),
	}
	if len(data) < 4 {
		return proj, nil
	}

	cur := 0
	songCount := int(order.U32(data, cur))
	cur += 4
	songRecords := make([]struct {
		groupId int
		offset  uint32
	}, songCount)
	for i := 0; i < songCount; i++ {
		songRecords[i].groupId = int(order.I32(data, cur))
		songRecords[i].offset = order.U32(data, cur+4)
		cur += 8
	}

	sfxCount := int(order.U32(data, cur))
	cur += 4
	sfxRecords := make([]struct {
		groupId int
		offset  uint32
	}, sfxCount)
	for i := 0; i < sfxCount; i++ {
		sfxRecords[i].groupId = int(order.I32(data, cur))
		sfxRecords[i].offset = order.U32(data, cur+4)
		cur += 8
	}

	for _, rec := range songRecords {
		sg := decodeSongGroup(data, int(rec.offset), order)
		proj.SongGroups[rec.groupId] = sg
	}
	for _, rec := range sfxRecords {
		sfxg := decodeSFXGroup(data, int(rec.offset), order)
		proj.SFXGroups[rec.groupId] = sfxg
	}

	return proj, nil
}

func decodeSongGroup(data []byte, off int, order binio.Order) *SongGroup {
	sg := &SongGroup{DrumTables: make(map[uint8]ObjectId)}
	for i := 0; i < 16; i++ {
		sg.ChannelPrograms[i] = order.I32(data, off+i*4)
	}
	cur := off + 64
	drumCount := int(order.U32(data, cur))
	cur += 4
	for i := 0; i < drumCount; i++ {
		prog := data[cur]
		oid := ObjectId(order.U16(data, cur+1))
		sg.DrumTables[prog] = oid
		cur += 3
	}
	return sg
}

func decodeSFXGroup(data []byte, off int, order binio.Order) *SFXGroup {
	sfxg := &SFXGroup{Entries: make(map[uint16]SFXEntry)}
	entryCount := int(order.U32(data, off))
	cur := off + 4
	for i := 0; i < entryCount; i++ {
		sfxId := order.U16(data, cur)
		sfxg.Entries[sfxId] = SFXEntry{
			ObjId:      ObjectId(order.U16(data, cur+2)),
			DefaultKey: data[cur+4],
			DefaultVel: data[cur+5],
			Pan:        int8(data[cur+6]),
		}
		cur += 7
	}
	return sfxg
}
