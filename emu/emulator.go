package emu

import (
	"errors"
	"fmt"

	"github.com/sarchlab/legsim/insts"
)

// ErrMaxInstructions is returned by Step once the instruction limit is hit.
var ErrMaxInstructions = errors.New("max instructions reached")

// StepResult represents the result of executing a single instruction.
type StepResult struct {
	// Halted is true if the program finished, either through HLT or by
	// returning to the caller sentinel.
	Halted bool

	// Err is set if an error occurred during execution.
	Err error
}

var shiftOps = map[insts.Op]ALUOp{
	insts.OpLSL: ALULsl,
	insts.OpLSR: ALULsr,
	insts.OpASR: ALUAsr,
}

// Emulator executes instructions one at a time with no timing. It serves
// as the architectural reference the pipelined core is checked against.
type Emulator struct {
	regFile *RegFile
	memory  *Memory

	alu *ALU
	lsu *LoadStoreUnit

	returnAddr       uint64
	instructionCount uint64
	maxInstructions  uint64 // 0 means no limit
}

// EmulatorOption is a functional option for configuring the Emulator.
type EmulatorOption func(*Emulator)

// WithMemory makes the emulator operate on an existing memory image.
func WithMemory(m *Memory) EmulatorOption {
	return func(e *Emulator) {
		e.memory = m
	}
}

// WithMaxInstructions sets the maximum number of instructions to execute.
// A value of 0 means no limit.
func WithMaxInstructions(max uint64) EmulatorOption {
	return func(e *Emulator) {
		e.maxInstructions = max
	}
}

// NewEmulator creates a new reference emulator.
func NewEmulator(opts ...EmulatorOption) *Emulator {
	e := &Emulator{
		regFile: &RegFile{},
		memory:  NewMemory(),
	}

	for _, opt := range opts {
		opt(e)
	}

	e.alu = NewALU(e.regFile)
	e.lsu = NewLoadStoreUnit(e.regFile, e.memory)

	return e
}

// RegFile returns the emulator's register file.
func (e *Emulator) RegFile() *RegFile {
	return e.regFile
}

// Memory returns the emulator's memory.
func (e *Emulator) Memory() *Memory {
	return e.memory
}

// InstructionCount returns the number of instructions executed.
func (e *Emulator) InstructionCount() uint64 {
	return e.instructionCount
}

// Reset prepares the registers for a run starting at entry. Returning to
// returnAddr halts the program.
func (e *Emulator) Reset(entry, stackTop, returnAddr uint64) {
	e.regFile.Reset(entry, stackTop, returnAddr)
	e.returnAddr = returnAddr
	e.instructionCount = 0
}

// Step executes a single instruction.
func (e *Emulator) Step() StepResult {
	if e.maxInstructions > 0 && e.instructionCount >= e.maxInstructions {
		return StepResult{Err: ErrMaxInstructions}
	}

	pc := e.regFile.PC
	inst := insts.Decode(e.memory.Read32(pc))
	e.instructionCount++

	next := pc + 4
	rd, rn := inst.Rd, inst.Rn

	switch inst.Op {
	case insts.OpLDUR:
		e.lsu.LDUR(rd, spOr(rn), inst.Imm)
	case insts.OpLDURB:
		e.lsu.LDURB(rd, spOr(rn), inst.Imm)
	case insts.OpSTUR:
		e.lsu.STUR(rd, spOr(rn), inst.Imm)
	case insts.OpSTURB:
		e.lsu.STURB(rd, spOr(rn), inst.Imm)
	case insts.OpMOVZ:
		e.regFile.WriteReg(rd, uint64(inst.Imm)<<inst.Hw)
	case insts.OpMOVK:
		v, _ := e.alu.Compute(e.regFile.ReadReg(rd), uint64(inst.Imm), inst.Hw, ALUMov, false, insts.CondAL)
		e.regFile.WriteReg(rd, v)
	case insts.OpADDImm:
		v, _ := e.alu.Compute(e.regFile.ReadReg(spOr(rn)), uint64(inst.Imm), 0, ALUPlus, false, insts.CondAL)
		e.regFile.WriteReg(spOr(rd), v)
	case insts.OpADDS, insts.OpSUBS, insts.OpANDS, insts.OpORR, insts.OpEOR, insts.OpMVN:
		e.execRRR(inst)
	case insts.OpLSL, insts.OpLSR, insts.OpASR:
		v, _ := e.alu.Compute(e.regFile.ReadReg(rn), uint64(inst.Imm), 0, shiftOps[inst.Op], false, insts.CondAL)
		e.regFile.WriteReg(rd, v)
	case insts.OpB:
		next = uint64(int64(pc) + inst.BranchOffset)
	case insts.OpBL:
		e.regFile.WriteReg(insts.LR, pc+4)
		next = uint64(int64(pc) + inst.BranchOffset)
	case insts.OpBCond:
		if e.alu.CheckCondition(inst.Cond) {
			next = uint64(int64(pc) + inst.BranchOffset)
		}
	case insts.OpRET:
		next = e.regFile.ReadReg(rn)
		if next == e.returnAddr {
			e.regFile.PC = next
			return StepResult{Halted: true}
		}
	case insts.OpNOP:
	case insts.OpHLT:
		return StepResult{Halted: true}
	default:
		return StepResult{Err: fmt.Errorf("unknown instruction 0x%08x at 0x%x", inst.Word, pc)}
	}

	e.regFile.PC = next

	return StepResult{}
}

func (e *Emulator) execRRR(inst insts.Instruction) {
	var (
		op    ALUOp
		setCC bool
	)

	switch inst.Op {
	case insts.OpADDS:
		op, setCC = ALUPlus, true
	case insts.OpSUBS:
		op, setCC = ALUMinus, true
	case insts.OpANDS:
		op, setCC = ALUAnd, true
	case insts.OpORR:
		op = ALUOr
	case insts.OpEOR:
		op = ALUEor
	case insts.OpMVN:
		op = ALUOrNot
	}

	v, _ := e.alu.Compute(
		e.regFile.ReadReg(inst.Rn), e.regFile.ReadReg(inst.Rm), 0, op, setCC, insts.CondAL)
	e.regFile.WriteReg(inst.Rd, v)
}

// Run steps until the program halts or fails.
func (e *Emulator) Run() error {
	for {
		res := e.Step()
		if res.Err != nil {
			return res.Err
		}
		if res.Halted {
			return nil
		}
	}
}

// spOr maps the architectural register 31 to the stack pointer.
func spOr(reg uint8) uint8 {
	if reg == insts.XZR {
		return insts.SP
	}
	return reg
}
