package emu

import "github.com/sarchlab/legsim/insts"

// ALUOp selects the ALU operation.
type ALUOp uint8

// ALU operations.
const (
	ALUPlus  ALUOp = iota // a + b
	ALUMinus              // a - b
	ALUOrNot              // a | ^b
	ALUOr                 // a | b
	ALUEor                // a ^ b
	ALUAnd                // a & b
	ALUMov                // insert b<<hw into a
	ALULsl                // a << b
	ALULsr                // a >> b (logical)
	ALUAsr                // a >> b (arithmetic)
	ALUPassA              // a
	ALUPassB              // b
)

var aluOpNames = [...]string{
	"PLUS", "MINUS", "OR_NOT", "OR", "EOR", "AND", "MOV",
	"LSL", "LSR", "ASR", "PASS_A", "PASS_B",
}

func (op ALUOp) String() string {
	if int(op) < len(aluOpNames) {
		return aluOpNames[op]
	}
	return "ALU?"
}

// ALU implements the arithmetic and logic operations of the core. It holds
// the register file only to read and update the condition flags.
type ALU struct {
	regFile *RegFile
}

// NewALU creates a new ALU connected to the given register file.
func NewALU(regFile *RegFile) *ALU {
	return &ALU{regFile: regFile}
}

// Compute applies op to a and b. hw is the MOV insertion shift in bits.
// When setCC is true the NZCV flags are updated from the result. The
// returned bool reports whether cond holds on the resulting flags.
func (a *ALU) Compute(
	x, y uint64,
	hw uint8,
	op ALUOp,
	setCC bool,
	cond insts.Cond,
) (uint64, bool) {
	var result uint64

	switch op {
	case ALUPlus:
		result = x + y
		if setCC {
			a.setAddFlags64(x, y, result)
		}
	case ALUMinus:
		result = x - y
		if setCC {
			a.setSubFlags64(x, y, result)
		}
	case ALUOrNot:
		result = x | ^y
	case ALUOr:
		result = x | y
	case ALUEor:
		result = x ^ y
	case ALUAnd:
		result = x & y
		if setCC {
			a.setLogicFlags64(result)
		}
	case ALUMov:
		result = (x &^ (0xFFFF << hw)) | (y << hw)
	case ALULsl:
		result = x << (y & 63)
	case ALULsr:
		result = x >> (y & 63)
	case ALUAsr:
		result = uint64(int64(x) >> (y & 63))
	case ALUPassA:
		result = x
	case ALUPassB:
		result = y
	}

	return result, a.CheckCondition(cond)
}

// setAddFlags64 sets NZCV flags for 64-bit addition.
func (a *ALU) setAddFlags64(op1, op2, result uint64) {
	a.regFile.PSTATE.N = (result >> 63) == 1
	a.regFile.PSTATE.Z = result == 0
	a.regFile.PSTATE.C = result < op1
	op1Sign := op1 >> 63
	op2Sign := op2 >> 63
	resultSign := result >> 63
	a.regFile.PSTATE.V = (op1Sign == op2Sign) && (op1Sign != resultSign)
}

// setSubFlags64 sets NZCV flags for 64-bit subtraction.
func (a *ALU) setSubFlags64(op1, op2, result uint64) {
	a.regFile.PSTATE.N = (result >> 63) == 1
	a.regFile.PSTATE.Z = result == 0

	// C: no borrow
	a.regFile.PSTATE.C = op1 >= op2

	op1Sign := op1 >> 63
	op2Sign := op2 >> 63
	resultSign := result >> 63
	a.regFile.PSTATE.V = (op1Sign != op2Sign) && (op2Sign == resultSign)
}

// setLogicFlags64 sets NZ flags for logic operations (C and V are cleared).
func (a *ALU) setLogicFlags64(result uint64) {
	a.regFile.PSTATE.N = (result >> 63) == 1
	a.regFile.PSTATE.Z = result == 0
	a.regFile.PSTATE.C = false
	a.regFile.PSTATE.V = false
}

// CheckCondition evaluates a condition code against the current flags.
func (a *ALU) CheckCondition(cond insts.Cond) bool {
	pstate := &a.regFile.PSTATE

	switch cond {
	case insts.CondEQ:
		return pstate.Z
	case insts.CondNE:
		return !pstate.Z
	case insts.CondCS:
		return pstate.C
	case insts.CondCC:
		return !pstate.C
	case insts.CondMI:
		return pstate.N
	case insts.CondPL:
		return !pstate.N
	case insts.CondVS:
		return pstate.V
	case insts.CondVC:
		return !pstate.V
	case insts.CondHI:
		return pstate.C && !pstate.Z
	case insts.CondLS:
		return !pstate.C || pstate.Z
	case insts.CondGE:
		return pstate.N == pstate.V
	case insts.CondLT:
		return pstate.N != pstate.V
	case insts.CondGT:
		return !pstate.Z && (pstate.N == pstate.V)
	case insts.CondLE:
		return pstate.Z || (pstate.N != pstate.V)
	default:
		// AL, NV
		return true
	}
}
