package pipeline

import (
	"errors"
	"fmt"

	"github.com/sarchlab/legsim/emu"
	"github.com/sarchlab/legsim/insts"
	"github.com/sarchlab/legsim/timing/dmem"
)

// ErrUnknownOpcode is returned when an instruction the core cannot decode
// reaches execute.
var ErrUnknownOpcode = errors.New("unknown opcode")

// FetchStage selects the next PC, reads the instruction word and predicts
// the following PC.
type FetchStage struct {
	port *dmem.Port
}

// NewFetchStage creates a new fetch stage.
func NewFetchStage(port *dmem.Port) *FetchStage {
	return &FetchStage{port: port}
}

// SelectPC picks the address to fetch this cycle. A conditional branch
// that just left execute without being taken redirects to its sequential
// successor. Otherwise a return that just left decode redirects to its
// target. Otherwise the prediction made last cycle stands.
func (s *FetchStage) SelectPC(fIn, xIn, mIn Instr) uint64 {
	if mIn.Valid && mIn.Op == insts.OpBCond && !mIn.CondHolds {
		return mIn.SeqSuccPC
	}

	if xIn.Valid && xIn.Op == insts.OpRET {
		return xIn.ValA
	}

	return fIn.PredPC
}

// Fetch reads and classifies the instruction at pc. Branches are
// predicted taken; everything else falls through.
func (s *FetchStage) Fetch(pc uint64) Instr {
	out := Bubble()
	out.Valid = true
	out.PC = pc
	out.SeqSuccPC = pc + 4
	out.PredPC = pc + 4

	word, err := s.port.Fetch(pc)
	if err != nil {
		out.Word = 0
		out.Op = insts.OpError
		out.Fault = err
		return out
	}

	inst := insts.Decode(word)
	out.Word = word
	out.Op = inst.Op

	if inst.Op.IsBranch() {
		out.PredPC = uint64(int64(pc) + inst.BranchOffset)
	}

	return out
}

// DecodeStage generates control signals and reads operands.
type DecodeStage struct {
	regFile    *emu.RegFile
	hazardUnit *HazardUnit
}

// NewDecodeStage creates a new decode stage.
func NewDecodeStage(regFile *emu.RegFile, hazardUnit *HazardUnit) *DecodeStage {
	return &DecodeStage{
		regFile:    regFile,
		hazardUnit: hazardUnit,
	}
}

// Decode expands a fetched instruction. Operands come from the register
// file unless a newer value is in flight in xOut, mOut or wOut.
func (s *DecodeStage) Decode(in, xOut, mOut, wOut Instr) Instr {
	if !in.Valid || in.Fault != nil {
		return in
	}

	out := in
	inst := insts.Decode(in.Word)

	out.Op = inst.Op
	out.Imm = inst.Imm
	out.Hw = inst.Hw
	out.Cond = insts.CondAL
	out.Src1 = insts.XZR
	out.Src2 = insts.XZR
	out.Dst = insts.XZR
	out.ALUOp = emu.ALUPassA
	out.X = XSignals{}
	out.M = MSignals{}
	out.W = WSignals{}

	rd, rn, rm := inst.Rd, inst.Rn, inst.Rm

	switch inst.Op {
	case insts.OpLDUR, insts.OpLDURB:
		out.Src1 = spOr(rn)
		out.Dst = rd
		out.ALUOp = emu.ALUPlus
		out.X.ValBSel = true
		out.M = MSignals{Read: true, Width: memWidth(inst.Op)}
		out.W = WSignals{Enable: true, WValSel: true}
	case insts.OpSTUR, insts.OpSTURB:
		out.Src1 = spOr(rn)
		out.Src2 = rd
		out.ALUOp = emu.ALUPlus
		out.X.ValBSel = true
		out.M = MSignals{Write: true, Width: memWidth(inst.Op)}
	case insts.OpMOVZ:
		// Src1 stays XZR so the inserted halfword lands in zero.
		out.Dst = rd
		out.ALUOp = emu.ALUMov
		out.X.ValBSel = true
		out.W.Enable = true
	case insts.OpMOVK:
		out.Src1 = rd
		out.Dst = rd
		out.ALUOp = emu.ALUMov
		out.X.ValBSel = true
		out.W.Enable = true
	case insts.OpADDImm:
		out.Src1 = spOr(rn)
		out.Dst = spOr(rd)
		out.ALUOp = emu.ALUPlus
		out.X.ValBSel = true
		out.W.Enable = true
	case insts.OpADDS, insts.OpSUBS, insts.OpANDS:
		out.Src1 = rn
		out.Src2 = rm
		out.Dst = rd
		out.ALUOp = flagOps[inst.Op]
		out.X.SetCC = true
		out.W.Enable = true
	case insts.OpORR, insts.OpEOR, insts.OpMVN:
		out.Src1 = rn
		out.Src2 = rm
		out.Dst = rd
		out.ALUOp = logicOps[inst.Op]
		out.W.Enable = true
	case insts.OpLSL, insts.OpLSR, insts.OpASR:
		out.Src1 = rn
		out.Dst = rd
		out.ALUOp = shiftOps[inst.Op]
		out.X.ValBSel = true
		out.W.Enable = true
	case insts.OpBCond:
		out.Cond = inst.Cond
	case insts.OpBL:
		out.Dst = insts.LR
		out.W = WSignals{Enable: true, DstSel: true}
	case insts.OpRET:
		out.Src1 = rn
	}

	out.ValA = s.readOperand(out.Src1, xOut, mOut, wOut)
	out.ValB = s.readOperand(out.Src2, xOut, mOut, wOut)

	switch inst.Op {
	case insts.OpBL:
		out.ValA = out.SeqSuccPC
	case insts.OpRET:
		out.Halt = out.ValA == dmem.RetFromMainAddr
	case insts.OpHLT:
		out.Halt = true
	}

	return out
}

func (s *DecodeStage) readOperand(reg uint8, xOut, mOut, wOut Instr) uint64 {
	if v, ok := s.hazardUnit.Forward(reg, xOut, mOut, wOut); ok {
		return v
	}
	return s.regFile.ReadReg(reg)
}

var flagOps = map[insts.Op]emu.ALUOp{
	insts.OpADDS: emu.ALUPlus,
	insts.OpSUBS: emu.ALUMinus,
	insts.OpANDS: emu.ALUAnd,
}

var logicOps = map[insts.Op]emu.ALUOp{
	insts.OpORR: emu.ALUOr,
	insts.OpEOR: emu.ALUEor,
	insts.OpMVN: emu.ALUOrNot,
}

var shiftOps = map[insts.Op]emu.ALUOp{
	insts.OpLSL: emu.ALULsl,
	insts.OpLSR: emu.ALULsr,
	insts.OpASR: emu.ALUAsr,
}

func memWidth(op insts.Op) int {
	if op == insts.OpLDURB || op == insts.OpSTURB {
		return 1
	}
	return 8
}

// spOr maps the architectural register 31 to the stack pointer.
func spOr(reg uint8) uint8 {
	if reg == insts.XZR {
		return insts.SP
	}
	return reg
}

// ExecuteStage runs the ALU.
type ExecuteStage struct {
	alu *emu.ALU
}

// NewExecuteStage creates a new execute stage.
func NewExecuteStage(regFile *emu.RegFile) *ExecuteStage {
	return &ExecuteStage{alu: emu.NewALU(regFile)}
}

// Execute computes ValEx and CondHolds. Condition flags are updated in
// place when the instruction sets them.
func (s *ExecuteStage) Execute(in Instr) (Instr, error) {
	if !in.Valid {
		return in, nil
	}

	if in.Fault != nil {
		return in, in.Fault
	}

	if in.Op == insts.OpError {
		return in, fmt.Errorf("%w: 0x%08x at %#x", ErrUnknownOpcode, in.Word, in.PC)
	}

	out := in
	b := in.ValB
	if in.X.ValBSel {
		b = uint64(in.Imm)
	}

	out.ValEx, out.CondHolds = s.alu.Compute(in.ValA, b, in.Hw, in.ALUOp, in.X.SetCC, in.Cond)

	return out, nil
}

// MemoryStage performs loads and stores through the data-memory port.
type MemoryStage struct {
	port *dmem.Port
}

// NewMemoryStage creates a new memory stage.
func NewMemoryStage(port *dmem.Port) *MemoryStage {
	return &MemoryStage{port: port}
}

// Access performs the instruction's memory operation, if any. InFlight
// means the same access must be retried next cycle.
func (s *MemoryStage) Access(in Instr) (Instr, dmem.Status, error) {
	if !in.Valid {
		return in, dmem.Ready, nil
	}

	out := in

	switch {
	case in.M.Read:
		v, st, err := s.port.Read(in.ValEx, in.M.Width)
		if err != nil || st == dmem.InFlight {
			return out, st, err
		}
		out.ValMem = v
	case in.M.Write:
		st, err := s.port.Write(in.ValEx, in.M.Width, in.ValB)
		if err != nil || st == dmem.InFlight {
			return out, st, err
		}
	}

	return out, dmem.Ready, nil
}

// WritebackStage selects the value written to the register file. The
// pipeline commits it once the cycle ends.
type WritebackStage struct{}

// NewWritebackStage creates a new writeback stage.
func NewWritebackStage() *WritebackStage {
	return &WritebackStage{}
}

// Writeback computes WVal.
func (s *WritebackStage) Writeback(in Instr) Instr {
	if !in.Valid {
		return in
	}

	out := in
	out.WVal = in.Result()

	return out
}
