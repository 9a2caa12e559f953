package pipeline

import (
	"errors"
	"fmt"

	"github.com/sarchlab/legsim/emu"
	"github.com/sarchlab/legsim/timing/dmem"
)

// ErrStallAndBubble is returned when a latch is told to stall and bubble
// in the same cycle.
var ErrStallAndBubble = errors.New("latch both stalled and bubbled")

// DefaultMaxCycles bounds a run when no limit is configured.
const DefaultMaxCycles = 1_000_000

// Outcome is the state a run ends in.
type Outcome int

// Run outcomes.
const (
	OutcomeRunning Outcome = iota
	OutcomeHalted
	OutcomeGuestFault
	OutcomeRunaway
)

var outcomeNames = [...]string{"running", "halted", "guest-fault", "runaway"}

func (o Outcome) String() string {
	if int(o) < len(outcomeNames) {
		return outcomeNames[o]
	}
	return "?"
}

// Statistics holds pipeline performance statistics.
type Statistics struct {
	// Cycles is the total number of cycles simulated.
	Cycles uint64
	// Instructions is the number of instructions completed (retired).
	Instructions uint64
	// LoadUseStalls is the number of cycles lost to load-use hazards.
	LoadUseStalls uint64
	// MemStalls is the number of cycles spent waiting on a cache miss.
	MemStalls uint64
	// Mispredictions is the number of conditional branches not taken.
	Mispredictions uint64
	// ReturnBubbles is the number of bubbles inserted behind a return or
	// halting instruction.
	ReturnBubbles uint64
	// BranchPredictions is the number of branches fetched and predicted.
	BranchPredictions uint64
}

// CPI returns the cycles per instruction.
func (s Statistics) CPI() float64 {
	if s.Instructions == 0 {
		return 0
	}
	return float64(s.Cycles) / float64(s.Instructions)
}

// CycleRecord is the state of the pipeline at the end of a cycle, before
// the latches advance.
type CycleRecord struct {
	Cycle   uint64
	Latches [NumStages]Latch
	Hazard  HazardKind
	// Retired is the instruction that left write-back this cycle, if any.
	Retired Instr
}

// Tracer observes every simulated cycle.
type Tracer interface {
	TraceCycle(rec CycleRecord)
}

// PipelineOption is a functional option for configuring the Pipeline.
type PipelineOption func(*Pipeline)

// WithMaxCycles sets the cycle budget of Run.
func WithMaxCycles(n uint64) PipelineOption {
	return func(p *Pipeline) {
		p.maxCycles = n
	}
}

// WithTracer attaches a tracer.
func WithTracer(t Tracer) PipelineOption {
	return func(p *Pipeline) {
		p.tracers = append(p.tracers, t)
	}
}

// Pipeline is the in-order 5-stage core.
type Pipeline struct {
	latches [NumStages]Latch
	order   [NumStages]Stage

	fetchStage     *FetchStage
	decodeStage    *DecodeStage
	executeStage   *ExecuteStage
	memoryStage    *MemoryStage
	writebackStage *WritebackStage

	hazardUnit *HazardUnit

	regFile *emu.RegFile
	port    *dmem.Port

	tracers   []Tracer
	maxCycles uint64

	stats   Statistics
	outcome Outcome
	fault   error
}

// NewPipeline creates a pipeline that starts fetching at regFile.PC. The
// register file should already hold the initial machine state.
func NewPipeline(regFile *emu.RegFile, port *dmem.Port, opts ...PipelineOption) *Pipeline {
	hazardUnit := NewHazardUnit()

	p := &Pipeline{
		order:          StageOrder,
		fetchStage:     NewFetchStage(port),
		decodeStage:    NewDecodeStage(regFile, hazardUnit),
		executeStage:   NewExecuteStage(regFile),
		memoryStage:    NewMemoryStage(port),
		writebackStage: NewWritebackStage(),
		hazardUnit:     hazardUnit,
		regFile:        regFile,
		port:           port,
		maxCycles:      DefaultMaxCycles,
	}

	for _, opt := range opts {
		opt(p)
	}

	for s := range p.latches {
		p.latches[s] = Latch{In: Bubble(), Out: Bubble()}
	}
	p.latches[StageF].In.Valid = true
	p.latches[StageF].In.PredPC = regFile.PC

	return p
}

// RegFile returns the architectural register file.
func (p *Pipeline) RegFile() *emu.RegFile {
	return p.regFile
}

// Latch returns a copy of the latch in front of stage s.
func (p *Pipeline) Latch(s Stage) Latch {
	return p.latches[s]
}

// Stats returns pipeline statistics.
func (p *Pipeline) Stats() Statistics {
	return p.stats
}

// Outcome returns how the run ended, or OutcomeRunning.
func (p *Pipeline) Outcome() Outcome {
	return p.outcome
}

// Fault returns the guest fault that ended the run, if any.
func (p *Pipeline) Fault() error {
	return p.fault
}

// Run ticks until the program halts, faults or exhausts the cycle budget.
func (p *Pipeline) Run() (Outcome, error) {
	for p.outcome == OutcomeRunning {
		if p.stats.Cycles >= p.maxCycles {
			p.outcome = OutcomeRunaway
			break
		}

		if err := p.Tick(); err != nil {
			return p.outcome, err
		}
	}

	return p.outcome, nil
}

// RunCycles executes at most n cycles. It returns true while the program
// is still running.
func (p *Pipeline) RunCycles(n uint64) (bool, error) {
	for i := uint64(0); i < n && p.outcome == OutcomeRunning; i++ {
		if err := p.Tick(); err != nil {
			return false, err
		}
	}
	return p.outcome == OutcomeRunning, nil
}

// Tick simulates one cycle.
//
// Stages are evaluated in StageOrder (W, M, X, D, F). Every stage reads its
// latch's In and writes its Out, so the evaluation order only matters for
// the values forwarded to decode and for fetch's redirect sources. After
// all stages ran, the hazard unit stamps the latches, write-back commits
// to the register file, and the latches advance: a stalled latch keeps its
// input, a bubbled latch receives an empty slot, all others take the
// previous stage's output.
func (p *Pipeline) Tick() error {
	if p.outcome != OutcomeRunning {
		return nil
	}

	p.stats.Cycles++

	var (
		memStatus = dmem.Ready
		memErr    error
		exErr     error
		selected  uint64
		nextPC    uint64
	)

	for _, s := range p.order {
		l := &p.latches[s]

		switch s {
		case StageW:
			l.Out = p.writebackStage.Writeback(l.In)
		case StageM:
			l.Out, memStatus, memErr = p.memoryStage.Access(l.In)
		case StageX:
			l.Out, exErr = p.executeStage.Execute(l.In)
		case StageD:
			l.Out = p.decodeStage.Decode(l.In,
				p.latches[StageX].Out, p.latches[StageM].Out, p.latches[StageW].Out)
		case StageF:
			selected, nextPC = p.fetch()
		}
	}

	if memErr != nil {
		return p.fail(memErr)
	}

	dirs := p.hazardUnit.Classify(memStatus == dmem.InFlight,
		p.latches[StageX].In, p.latches[StageX].Out, p.latches[StageD].Out)

	if exErr != nil && !dirs.Stall[StageX] {
		return p.fail(exErr)
	}

	for s := range p.latches {
		p.latches[s].Stall = dirs.Stall[s]
		p.latches[s].Bubble = dirs.Bubble[s]
		if dirs.Stall[s] && dirs.Bubble[s] {
			return fmt.Errorf("%w: stage %s", ErrStallAndBubble, Stage(s))
		}
	}

	p.countHazard(dirs)

	retired := p.commit()

	p.trace(dirs.Kind, retired)

	p.advance(selected, nextPC)

	return nil
}

// fetch runs the fetch stage. It returns the PC fetched this cycle and the
// predicted PC for the next one. While a halting instruction is in flight
// no new instructions enter the pipeline.
func (p *Pipeline) fetch() (uint64, uint64) {
	f := &p.latches[StageF]
	pc := p.fetchStage.SelectPC(f.In, p.latches[StageX].In, p.latches[StageM].In)

	if p.halting() {
		f.Out = Bubble()
		return pc, pc
	}

	f.Out = p.fetchStage.Fetch(pc)

	return pc, f.Out.PredPC
}

func (p *Pipeline) halting() bool {
	d := p.latches[StageD].Out
	if d.Valid && d.Halt {
		return true
	}

	for _, s := range []Stage{StageX, StageM, StageW} {
		in := p.latches[s].In
		if in.Valid && in.Halt {
			return true
		}
	}

	return false
}

func (p *Pipeline) fail(err error) error {
	var fault *dmem.GuestFault
	if errors.As(err, &fault) {
		p.commit()
		p.outcome = OutcomeGuestFault
		p.fault = err
		return nil
	}

	return err
}

func (p *Pipeline) countHazard(dirs Directives) {
	switch dirs.Kind {
	case HazardMemStall:
		p.stats.MemStalls++
	case HazardLoadUse:
		p.stats.LoadUseStalls++
	case HazardMispredict:
		p.stats.Mispredictions++
	case HazardReturn:
		p.stats.ReturnBubbles++
	}

	f := p.latches[StageF].Out
	if !dirs.Stall[StageF] && !dirs.Bubble[StageD] && f.Valid && f.Op.IsBranch() {
		p.stats.BranchPredictions++
	}
}

// commit writes the retiring instruction's result to the register file.
func (p *Pipeline) commit() Instr {
	w := p.latches[StageW].Out
	if !w.Valid {
		return w
	}

	if w.W.Enable {
		p.regFile.WriteReg(w.Dst, w.WVal)
	}

	p.stats.Instructions++

	if w.Halt {
		p.outcome = OutcomeHalted
	}

	return w
}

func (p *Pipeline) trace(kind HazardKind, retired Instr) {
	if len(p.tracers) == 0 {
		return
	}

	rec := CycleRecord{
		Cycle:   p.stats.Cycles,
		Latches: p.latches,
		Hazard:  kind,
		Retired: retired,
	}

	for _, t := range p.tracers {
		t.TraceCycle(rec)
	}
}

func (p *Pipeline) advance(selected, nextPC uint64) {
	for s := StageW; s > StageF; s-- {
		l := &p.latches[s]

		switch {
		case l.Stall:
		case l.Bubble:
			l.In = Bubble()
		default:
			l.In = p.latches[s-1].Out
		}
	}

	f := &p.latches[StageF]
	if f.Stall {
		f.In.PredPC = selected
	} else {
		f.In.PredPC = nextPC
	}

	p.regFile.PC = f.In.PredPC
}
