// Package binio provides endian-aware primitives for decoding the amuse-engine
// on-disk formats: fixed-width integer readers for both GameCube/N64
// big-endian data and PC native-endian data, plus the three RLE codecs used
// by the song format: DecodeRLE and DecodeContinuousRLE for the
// continuous-controller streams, DecodeTimeRLE for v1 event delta times.
package binio

import "encoding/binary"

// Order selects the byte order used to decode a group's pool/sdir/samp
// chunks. PC groups are native-endian; GCN and N64 groups are big-endian.
type Order struct {
	bo binary.ByteOrder
}

// BigEndian is used for GCN and N64 group data.
var BigEndian = Order{binary.BigEndian}

// LittleEndian is used for PC group data (native on the authoring hosts
// that produced these groups).
var LittleEndian = Order{binary.LittleEndian}

// U16 reads a 16-bit unsigned integer at off.
func (o Order) U16(b []byte, off int) uint16 { return o.bo.Uint16(b[off : off+2]) }

// U32 reads a 32-bit unsigned integer at off.
func (o Order) U32(b []byte, off int) uint32 { return o.bo.Uint32(b[off : off+4]) }

// I32 reads a 32-bit signed integer at off.
func (o Order) I32(b []byte, off int) int32 { return int32(o.U32(b, off)) }

// I16 reads a 16-bit signed integer at off.
func (o Order) I16(b []byte, off int) int16 { return int16(o.U16(b, off)) }

// DecodeRLE decodes the variable-length tick/value encoding used by the
// continuous pitch-wheel and modulation streams (spec §4.5). It returns the
// decoded value and the number of bytes consumed. A return of
// (0xFFFFFFFF, n) signals end-of-stream.
func DecodeRLE(data []byte) (uint32, int) {
	var ret uint32
	pos := 0
	for {
		thisPart := uint32(data[pos] & 0x7f)
		if data[pos]&0x80 != 0 {
			pos++
			thisPart = thisPart*256 + uint32(data[pos])
			if thisPart == 0 {
				pos++
				return 0xFFFFFFFF, pos
			}
		}

		if thisPart == 32767 {
			ret += 32767
			pos++
			continue
		}

		ret += thisPart
		pos++
		break
	}
	return ret, pos
}

// DecodeContinuousRLE decodes an unsigned RLE value and reinterprets it as
// signed: values >= 16384 are folded down by 32767, per spec §4.5 /
// §8 (DecodeContinuousRLE signedness law). Returns the value and bytes
// consumed.
func DecodeContinuousRLE(data []byte) (int32, int) {
	u, n := DecodeRLE(data)
	ret := int32(u)
	if ret >= 16384 {
		ret -= 32767
	}
	return ret, n
}

// DecodeTimeRLE decodes the revised-format (v1) delta-time encoding: a
// stream of big-endian 16-bit words where 0xFFFF means "add 65535 and
// continue"; the 16-bit word that follows each 0xFFFF is skipped. Returns
// the accumulated tick delta and bytes consumed.
func DecodeTimeRLE(data []byte) (uint32, int) {
	var ret uint32
	pos := 0
	for {
		thisPart := BigEndian.U16(data, pos)
		if thisPart == 0xffff {
			ret += 65535
			pos += 4
			continue
		}
		ret += uint32(thisPart)
		pos += 2
		break
	}
	return ret, pos
}

// Clampf clamps v to [lo, hi].
func Clampf(lo, v, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ClampI clamps v to [lo, hi].
func ClampI(lo, v, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
