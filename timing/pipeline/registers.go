// Package pipeline provides the 5-stage pipeline model for cycle-accurate
// timing simulation.
package pipeline

import (
	"github.com/sarchlab/legsim/emu"
	"github.com/sarchlab/legsim/insts"
)

// Stage identifies a pipeline stage and the latch in front of it.
type Stage int

// Pipeline stages in program order.
const (
	StageF Stage = iota
	StageD
	StageX
	StageM
	StageW
	NumStages
)

var stageNames = [NumStages]string{"F", "D", "X", "M", "W"}

func (s Stage) String() string {
	if s >= 0 && s < NumStages {
		return stageNames[s]
	}
	return "?"
}

// StageOrder is the order in which stages are evaluated within a cycle.
// Later stages run first so that decode sees this cycle's results of the
// older instructions and fetch sees this cycle's branch outcome.
var StageOrder = [NumStages]Stage{StageW, StageM, StageX, StageD, StageF}

// XSignals control the execute stage.
type XSignals struct {
	// ValBSel selects the immediate instead of ValB as the second ALU
	// operand.
	ValBSel bool
	// SetCC makes the ALU update the condition flags.
	SetCC bool
}

// MSignals control the memory stage.
type MSignals struct {
	Read  bool
	Write bool
	// Width is the access size in bytes.
	Width int
}

// WSignals control the write-back stage.
type WSignals struct {
	// Enable writes WVal to Dst.
	Enable bool
	// WValSel selects ValMem instead of ValEx as the written value.
	WValSel bool
	// DstSel marks a destination forced to the link register.
	DstSel bool
}

// Instr is the snapshot of one instruction as it moves down the pipeline.
// A bubble has Valid unset.
type Instr struct {
	Valid bool

	PC        uint64
	SeqSuccPC uint64
	PredPC    uint64

	Word uint32
	Op   insts.Op
	Cond insts.Cond

	// Decoded register indices, with 31 resolved to insts.XZR or insts.SP.
	Src1 uint8
	Src2 uint8
	Dst  uint8

	Imm   int64
	Hw    uint8
	ALUOp emu.ALUOp

	ValA   uint64
	ValB   uint64
	ValEx  uint64
	ValMem uint64
	WVal   uint64

	CondHolds bool
	Halt      bool

	// Fault is a guest fault detected before execute (for example a fetch
	// from a special address). It is raised when the instruction executes.
	Fault error

	X XSignals
	M MSignals
	W WSignals
}

// Bubble returns an empty pipeline slot.
func Bubble() Instr {
	return Instr{
		Word: insts.NOPWord,
		Op:   insts.OpNOP,
		Cond: insts.CondAL,
		Src1: insts.XZR,
		Src2: insts.XZR,
		Dst:  insts.XZR,
	}
}

// IsLoad reports whether the slot holds a valid load.
func (i Instr) IsLoad() bool {
	return i.Valid && i.M.Read
}

// Writes reports whether the slot holds a valid instruction that produces
// a register value other than the zero register.
func (i Instr) Writes() bool {
	return i.Valid && i.W.Enable && i.Dst != insts.XZR
}

// Result returns the value the instruction writes back.
func (i Instr) Result() uint64 {
	if i.W.WValSel {
		return i.ValMem
	}
	return i.ValEx
}

// Latch holds the input and output of one stage plus the control flags
// applied when the cycle ends.
type Latch struct {
	In  Instr
	Out Instr

	// Stall keeps In for another cycle.
	Stall bool
	// Bubble replaces In with an empty slot.
	Bubble bool
}
