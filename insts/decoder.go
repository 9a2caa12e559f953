package insts

import "fmt"

// Op represents an opcode class.
type Op uint8

// Opcode classes.
const (
	OpError Op = iota
	OpLDURB
	OpLDUR
	OpSTURB
	OpSTUR
	OpMOVK
	OpMOVZ
	OpADDImm
	OpADDS
	OpSUBS
	OpMVN
	OpORR
	OpEOR
	OpANDS
	OpLSL
	OpLSR
	OpASR
	OpB
	OpBCond
	OpBL
	OpRET
	OpNOP
	OpHLT
)

var opNames = [...]string{
	OpError:  "ERR",
	OpLDURB:  "LDURB",
	OpLDUR:   "LDUR",
	OpSTURB:  "STURB",
	OpSTUR:   "STUR",
	OpMOVK:   "MOVK",
	OpMOVZ:   "MOVZ",
	OpADDImm: "ADD",
	OpADDS:   "ADDS",
	OpSUBS:   "SUBS",
	OpMVN:    "MVN",
	OpORR:    "ORR",
	OpEOR:    "EOR",
	OpANDS:   "ANDS",
	OpLSL:    "LSL",
	OpLSR:    "LSR",
	OpASR:    "ASR",
	OpB:      "B",
	OpBCond:  "B.cond",
	OpBL:     "BL",
	OpRET:    "RET",
	OpNOP:    "NOP",
	OpHLT:    "HLT",
}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("Op(%d)", uint8(o))
}

// IsLoad reports whether the opcode reads data memory.
func (o Op) IsLoad() bool { return o == OpLDUR || o == OpLDURB }

// IsStore reports whether the opcode writes data memory.
func (o Op) IsStore() bool { return o == OpSTUR || o == OpSTURB }

// IsBranch reports whether the opcode is a PC-relative branch. These are
// the opcodes fetch predicts taken.
func (o Op) IsBranch() bool { return o == OpB || o == OpBL || o == OpBCond }

// Cond represents an ARM64 condition code.
type Cond uint8

// ARM64 condition codes.
const (
	CondEQ Cond = 0b0000 // Equal (Z == 1)
	CondNE Cond = 0b0001 // Not Equal (Z == 0)
	CondCS Cond = 0b0010 // Carry Set / Unsigned higher or same (C == 1)
	CondCC Cond = 0b0011 // Carry Clear / Unsigned lower (C == 0)
	CondMI Cond = 0b0100 // Minus / Negative (N == 1)
	CondPL Cond = 0b0101 // Plus / Positive or zero (N == 0)
	CondVS Cond = 0b0110 // Overflow (V == 1)
	CondVC Cond = 0b0111 // No overflow (V == 0)
	CondHI Cond = 0b1000 // Unsigned higher (C == 1 && Z == 0)
	CondLS Cond = 0b1001 // Unsigned lower or same (C == 0 || Z == 1)
	CondGE Cond = 0b1010 // Signed greater than or equal (N == V)
	CondLT Cond = 0b1011 // Signed less than (N != V)
	CondGT Cond = 0b1100 // Signed greater than (Z == 0 && N == V)
	CondLE Cond = 0b1101 // Signed less than or equal (Z == 1 || N != V)
	CondAL Cond = 0b1110 // Always (unconditional)
	CondNV Cond = 0b1111 // Always (unconditional, reserved)
)

var condNames = [...]string{
	"EQ", "NE", "CS", "CC", "MI", "PL", "VS", "VC",
	"HI", "LS", "GE", "LT", "GT", "LE", "AL", "NV",
}

func (c Cond) String() string {
	return condNames[c&0xF]
}

// Register indices after decode. The architectural index 31 means either
// the zero register or the stack pointer depending on the instruction; the
// decoder resolves it to XZR or SP so later stages never need the context.
const (
	LR  uint8 = 30 // link register written by BL
	XZR uint8 = 31 // zero register: reads 0, writes discarded
	SP  uint8 = 32 // stack pointer
)

// NOPWord is the encoding of NOP. Bubbles carry it as their raw bits.
const NOPWord uint32 = 0xD503201F

// Instruction holds the fields extracted from a raw instruction word.
// Register fields are raw 5-bit architectural indices; mapping 31 to XZR
// or SP is left to the consumer.
type Instruction struct {
	Op   Op
	Word uint32

	Rd uint8 // bits [4:0], also Rt for loads and stores
	Rn uint8 // bits [9:5]
	Rm uint8 // bits [20:16]

	// Imm is the opcode-specific immediate: shift amount for LSL/LSR/ASR,
	// signed 9-bit offset for loads and stores, 16-bit payload for MOVZ/MOVK,
	// and the (possibly shifted) 12-bit immediate for ADD.
	Imm int64

	// Hw is the MOVZ/MOVK left shift in bits (0, 16, 32 or 48).
	Hw uint8

	// BranchOffset is the signed byte offset of B, BL and B.cond.
	BranchOffset int64

	Cond Cond
}

// OpcodeField extracts the 11-bit primary opcode field, bits [31:21].
func OpcodeField(word uint32) uint16 {
	return uint16(Bits(word, 21, 11))
}

// Classify maps a raw instruction word to its opcode class.
func Classify(word uint32) Op {
	field := OpcodeField(word)

	switch {
	case field == 0x1C2:
		return OpLDURB
	case field == 0x7C2:
		return OpLDUR
	case field == 0x1C0:
		return OpSTURB
	case field == 0x7C0:
		return OpSTUR
	case field >= 0x794 && field <= 0x797:
		return OpMOVK
	case field >= 0x694 && field <= 0x697:
		return OpMOVZ
	case field >= 0x488 && field <= 0x48B:
		return OpADDImm
	case field == 0x558:
		return OpADDS
	case field == 0x758:
		return OpSUBS
	case field == 0x551:
		return OpMVN
	case field == 0x550:
		return OpORR
	case field == 0x650:
		return OpEOR
	case field == 0x750:
		return OpANDS
	case field == 0x69A || field == 0x69B:
		return classifyUBFM(word)
	case field == 0x49A || field == 0x49B:
		if Bits(word, 10, 6) == 63 {
			return OpASR
		}
		return OpError
	case field >= 0x0A0 && field <= 0x0BF:
		return OpB
	case field >= 0x2A0 && field <= 0x2A7:
		return OpBCond
	case field >= 0x4A0 && field <= 0x4BF:
		return OpBL
	case field == 0x6B2:
		return OpRET
	case field == 0x6A8:
		return OpNOP
	case field == 0x6A2:
		return OpHLT
	}

	return OpError
}

// classifyUBFM resolves the LSL and LSR aliases of UBFM. Other bitfield
// moves are not supported.
func classifyUBFM(word uint32) Op {
	immr := Bits(word, 16, 6)
	imms := Bits(word, 10, 6)

	switch {
	case imms == 63:
		return OpLSR
	case immr == imms+1:
		return OpLSL
	default:
		return OpError
	}
}

// Decode extracts all fields of a raw instruction word.
func Decode(word uint32) Instruction {
	inst := Instruction{
		Op:   Classify(word),
		Word: word,
		Rd:   uint8(Bits(word, 0, 5)),
		Rn:   uint8(Bits(word, 5, 5)),
		Rm:   uint8(Bits(word, 16, 5)),
	}

	switch inst.Op {
	case OpLSL:
		inst.Imm = int64(63 - Bits(word, 10, 6))
	case OpLSR, OpASR:
		inst.Imm = int64(Bits(word, 16, 6))
	case OpLDUR, OpLDURB, OpSTUR, OpSTURB:
		inst.Imm = SignedBits(word, 12, 9)
	case OpMOVZ, OpMOVK:
		inst.Imm = int64(Bits(word, 5, 16))
		inst.Hw = uint8(Bits(word, 21, 2) << 4)
	case OpADDImm:
		inst.Imm = int64(Bits(word, 10, 12))
		if Bits(word, 22, 1) == 1 {
			inst.Imm <<= 12
		}
	case OpB, OpBL:
		inst.BranchOffset = SignedBits(word, 0, 26) << 2
	case OpBCond:
		inst.BranchOffset = SignedBits(word, 5, 19) << 2
		inst.Cond = Cond(Bits(word, 0, 4))
	}

	return inst
}

// Bits extracts the unsigned field of the given width starting at bit from.
func Bits(word uint32, from, width uint) uint32 {
	return (word >> from) & (1<<width - 1)
}

// SignedBits extracts a field and sign-extends it to 64 bits.
func SignedBits(word uint32, from, width uint) int64 {
	v := uint64(Bits(word, from, width))
	shift := 64 - width
	return int64(v<<shift) >> shift
}
