package pipeline

import "github.com/sarchlab/legsim/insts"

// HazardKind names the condition that produced a cycle's directives.
type HazardKind int

// Hazard kinds, highest priority first.
const (
	HazardNone HazardKind = iota
	HazardMemStall
	HazardLoadUse
	HazardMispredict
	HazardReturn
)

var hazardNames = [...]string{"none", "mem-stall", "load-use", "mispredict", "return"}

func (k HazardKind) String() string {
	if int(k) < len(hazardNames) {
		return hazardNames[k]
	}
	return "?"
}

// Directives are the stall and bubble flags for every latch.
type Directives struct {
	Kind   HazardKind
	Stall  [NumStages]bool
	Bubble [NumStages]bool
}

// HazardUnit detects hazards and resolves forwarding.
type HazardUnit struct{}

// NewHazardUnit creates a new hazard detection unit.
func NewHazardUnit() *HazardUnit {
	return &HazardUnit{}
}

// Forward returns the newest in-flight value of reg. Sources are this
// cycle's execute, memory and write-back outputs, in that order. The zero
// register is never forwarded.
func (h *HazardUnit) Forward(reg uint8, xOut, mOut, wOut Instr) (uint64, bool) {
	if reg == insts.XZR {
		return 0, false
	}

	// A load in execute has no data yet; the load-use stall covers it.
	if xOut.Writes() && xOut.Dst == reg && !xOut.IsLoad() {
		return xOut.ValEx, true
	}

	if mOut.Writes() && mOut.Dst == reg {
		return mOut.Result(), true
	}

	if wOut.Writes() && wOut.Dst == reg {
		return wOut.WVal, true
	}

	return 0, false
}

// DetectLoadUse reports whether the load entering execute writes a
// register the instruction just decoded reads.
func (h *HazardUnit) DetectLoadUse(xIn, dOut Instr) bool {
	if !xIn.IsLoad() || xIn.Dst == insts.XZR || !dOut.Valid {
		return false
	}

	return xIn.Dst == dOut.Src1 || xIn.Dst == dOut.Src2
}

// DetectMispredict reports whether the conditional branch that executed
// this cycle was not taken. Conditional branches are predicted taken.
func (h *HazardUnit) DetectMispredict(xIn, xOut Instr) bool {
	return xIn.Valid && xIn.Op == insts.OpBCond && !xOut.CondHolds
}

// Classify computes the directives for a cycle. Only the highest priority
// hazard is applied; a lower priority one is seen again on a later cycle.
func (h *HazardUnit) Classify(memStall bool, xIn, xOut, dOut Instr) Directives {
	var d Directives

	switch {
	case memStall:
		d.Kind = HazardMemStall
		d.Stall[StageF] = true
		d.Stall[StageD] = true
		d.Stall[StageX] = true
		d.Stall[StageM] = true
		d.Bubble[StageW] = true
	case h.DetectLoadUse(xIn, dOut):
		d.Kind = HazardLoadUse
		d.Stall[StageF] = true
		d.Stall[StageD] = true
		d.Bubble[StageX] = true
	case h.DetectMispredict(xIn, xOut):
		d.Kind = HazardMispredict
		d.Bubble[StageD] = true
		d.Bubble[StageX] = true
	case dOut.Valid && (dOut.Op == insts.OpRET || dOut.Halt):
		d.Kind = HazardReturn
		d.Bubble[StageD] = true
	}

	return d
}
