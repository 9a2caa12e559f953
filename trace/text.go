// Package trace provides observers for the per-cycle state of the
// pipeline.
package trace

import (
	"fmt"
	"io"

	"github.com/sarchlab/legsim/insts"
	"github.com/sarchlab/legsim/timing/pipeline"
)

// Debug levels understood by TextTracer.
const (
	LevelSummary = 1
	LevelSignals = 2
)

// TextTracer prints the output of every stage once per cycle. Level 1
// prints one line per stage; level 2 adds the latch flags and the control
// signals.
type TextTracer struct {
	w     io.Writer
	level int
}

// NewTextTracer creates a tracer that writes to w.
func NewTextTracer(w io.Writer, level int) *TextTracer {
	return &TextTracer{w: w, level: level}
}

// TraceCycle prints one cycle.
func (t *TextTracer) TraceCycle(rec pipeline.CycleRecord) {
	fmt.Fprintf(t.w, "Cycle %d", rec.Cycle)
	if rec.Hazard != pipeline.HazardNone {
		fmt.Fprintf(t.w, " [hazard: %s]", rec.Hazard)
	}
	fmt.Fprintln(t.w)

	for s := pipeline.StageF; s < pipeline.NumStages; s++ {
		t.printStage(s, rec.Latches[s])
	}

	if rec.Retired.Valid {
		fmt.Fprintf(t.w, "Retired %s at 0x%X\n", rec.Retired.Op, rec.Retired.PC)
	}
}

func (t *TextTracer) printStage(s pipeline.Stage, l pipeline.Latch) {
	insn := l.Out

	if !insn.Valid {
		fmt.Fprintf(t.w, "%s: bubble\n", s)
	} else {
		t.printSummary(s, insn)
	}

	if t.level < LevelSignals {
		return
	}

	fmt.Fprintf(t.w, "\t[bubble, stall] = [%t, %t]\n", l.Bubble, l.Stall)

	if !insn.Valid {
		return
	}

	switch s {
	case pipeline.StageD:
		t.printX(insn)
		t.printM(insn)
		t.printW(insn)
	case pipeline.StageX:
		t.printX(insn)
	case pipeline.StageM:
		t.printM(insn)
	case pipeline.StageW:
		t.printW(insn)
	}
}

func (t *TextTracer) printSummary(s pipeline.Stage, insn pipeline.Instr) {
	switch s {
	case pipeline.StageF:
		fmt.Fprintf(t.w, "F: %-6s[pc, word, pred_pc] = [0x%X, 0x%08X, 0x%X]\n",
			insn.Op, insn.PC, insn.Word, insn.PredPC)
	case pipeline.StageD:
		fmt.Fprintf(t.w, "D: %-6s[val_a, val_b, imm] = [0x%X, 0x%X, 0x%X], alu_op: %s, cond: %s, dst: %s\n",
			insn.Op, insn.ValA, insn.ValB, uint64(insn.Imm), insn.ALUOp, insn.Cond, regName(insn.Dst))
	case pipeline.StageX:
		fmt.Fprintf(t.w, "X: %-6s[val_ex, a, b, imm, hw] = [0x%X, 0x%X, 0x%X, 0x%X, 0x%X], alu_op: %s, cond_holds: %t\n",
			insn.Op, insn.ValEx, insn.ValA, insn.ValB, uint64(insn.Imm), insn.Hw, insn.ALUOp, insn.CondHolds)
	case pipeline.StageM:
		fmt.Fprintf(t.w, "M: %-6s[val_ex, val_b, val_mem] = [0x%X, 0x%X, 0x%X]\n",
			insn.Op, insn.ValEx, insn.ValB, insn.ValMem)
	case pipeline.StageW:
		fmt.Fprintf(t.w, "W: %-6s[dst, w_val] = [%s, 0x%X]\n",
			insn.Op, regName(insn.Dst), insn.WVal)
	}
}

func (t *TextTracer) printX(insn pipeline.Instr) {
	fmt.Fprintf(t.w, "\tX_sigs: [valb_sel, set_cc] = [%t, %t]\n",
		insn.X.ValBSel, insn.X.SetCC)
}

func (t *TextTracer) printM(insn pipeline.Instr) {
	fmt.Fprintf(t.w, "\tM_sigs: [read, write, width] = [%t, %t, %d]\n",
		insn.M.Read, insn.M.Write, insn.M.Width)
}

func (t *TextTracer) printW(insn pipeline.Instr) {
	fmt.Fprintf(t.w, "\tW_sigs: [dst_sel, wval_sel, enable] = [%t, %t, %t]\n",
		insn.W.DstSel, insn.W.WValSel, insn.W.Enable)
}

func regName(r uint8) string {
	switch {
	case r == insts.XZR:
		return "XZR"
	case r == insts.SP:
		return "SP"
	default:
		return fmt.Sprintf("X%d", r)
	}
}
