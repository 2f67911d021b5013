package voice

import "github.com/opd-ai/amuse-engine/pkg/amuse/group"

// Op is one sound-macro instruction opcode (spec §4.3). Each instruction
// is a fixed 8-byte record: {op byte, flags byte, a0 int16, a1 int16,
// a2 int16}, matching the pool decoder's fixed-record convention (spec
// §4.1) and kept simple enough for the interpreter to fetch/decode/execute
// in a tight loop.
type Op uint8

const (
	OpStopSample Op = iota
	OpStartSample
	OpSetVolume
	OpScaleVolume
	OpSetPan
	OpSetSurroundPan
	OpSetReverbSend
	OpSetPitchCents
	OpSetPitchFreq
	OpSetPitchAdsr
	OpSetPitchWheelRange
	OpPitchBend
	OpLoadAdsr
	OpSetKeygroup
	OpSendMessage
	OpPlayMacro
	OpWait
	OpCondBranch
	OpStop
)

// InstrSize is the fixed width of one sound-macro instruction in bytes.
const InstrSize = 8

// MessageTarget selects which voices a SENDMESSAGE instruction reaches.
type MessageTarget uint8

const (
	MsgSelf MessageTarget = iota
	MsgSiblings
	MsgBoth
)

// Instr is a decoded sound-macro instruction.
type Instr struct {
	Op    Op
	Flags uint8
	A0    int16
	A1    int16
	A2    int16
}

// DecodeInstr decodes the instruction at byte offset pc within a macro's
// payload.
func DecodeInstr(macro []byte, pc int) (Instr, bool) {
	if pc+InstrSize > len(macro) {
		return Instr{}, false
	}
	b := macro[pc:]
	return Instr{
		Op:    Op(b[0]),
		Flags: b[1],
		A0:    int16(uint16(b[2])<<8 | uint16(b[3])),
		A1:    int16(uint16(b[4])<<8 | uint16(b[5])),
		A2:    int16(uint16(b[6])<<8 | uint16(b[7])),
	}, true
}

// macroId16 reinterprets a 16-bit operand as an ObjectId.
func macroId16(v int16) group.ObjectId { return group.ObjectId(uint16(v)) }
