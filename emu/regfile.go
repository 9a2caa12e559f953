// Package emu provides the architectural state of the simulated core: the
// register file, the ALU, a paged byte-addressable memory and a sequential
// reference emulator.
package emu

import "github.com/sarchlab/legsim/insts"

// RegFile represents the ARM64 register file.
// It contains 31 general-purpose registers (X0-X30),
// the stack pointer (SP), and the program counter (PC).
type RegFile struct {
	// X holds general-purpose registers X0-X30.
	X [31]uint64

	// SP is the stack pointer.
	SP uint64

	// PC is the program counter.
	PC uint64

	// PSTATE holds the processor state flags.
	PSTATE PSTATE
}

// PSTATE represents the processor state flags.
type PSTATE struct {
	// N is the negative flag.
	N bool
	// Z is the zero flag.
	Z bool
	// C is the carry flag.
	C bool
	// V is the overflow flag.
	V bool
}

// NZCV packs the flags into the low four bits, N in bit 3.
func (p PSTATE) NZCV() uint8 {
	var v uint8
	if p.N {
		v |= 8
	}
	if p.Z {
		v |= 4
	}
	if p.C {
		v |= 2
	}
	if p.V {
		v |= 1
	}
	return v
}

// ReadReg reads a decoded register index. insts.XZR reads as 0 and
// insts.SP reads the stack pointer.
func (r *RegFile) ReadReg(reg uint8) uint64 {
	switch {
	case reg < insts.XZR:
		return r.X[reg]
	case reg == insts.SP:
		return r.SP
	default:
		return 0
	}
}

// WriteReg writes a decoded register index. Writes to insts.XZR are
// discarded.
func (r *RegFile) WriteReg(reg uint8, value uint64) {
	switch {
	case reg < insts.XZR:
		r.X[reg] = value
	case reg == insts.SP:
		r.SP = value
	}
}

// Reset puts the register file into the state a program starts in: all
// registers cleared, PC at the entry point, SP at the stack top, the link
// register holding the return-to-caller address and only the Z flag set.
func (r *RegFile) Reset(entry, stackTop, returnAddr uint64) {
	*r = RegFile{}
	r.PC = entry
	r.SP = stackTop
	r.X[insts.LR] = returnAddr
	r.PSTATE.Z = true
}
