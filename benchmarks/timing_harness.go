// Package benchmarks provides a timing benchmark harness for the pipelined
// core. Every benchmark is a short hand-assembled program; the harness
// runs it on the core and on the sequential reference emulator and
// reports cycle and hazard counts.
package benchmarks

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sarchlab/legsim/emu"
	"github.com/sarchlab/legsim/timing/config"
	"github.com/sarchlab/legsim/timing/core"
	"github.com/sarchlab/legsim/timing/dmem"
	"github.com/sarchlab/legsim/timing/pipeline"
)

// EntryAddr is where benchmark programs are loaded and started.
const EntryAddr = uint64(0x400000)

// BenchmarkResult holds the timing results for a single benchmark run.
type BenchmarkResult struct {
	// Name identifies the benchmark
	Name string `json:"name"`

	// Description explains what the benchmark measures
	Description string `json:"description"`

	// Outcome is how the run ended: halted, guest-fault or runaway
	Outcome string `json:"outcome"`

	// Error is set when the core could not be built or failed
	Error string `json:"error,omitempty"`

	SimulatedCycles     uint64  `json:"simulated_cycles"`
	InstructionsRetired uint64  `json:"instructions_retired"`
	CPI                 float64 `json:"cpi"`

	LoadUseStalls  uint64 `json:"load_use_stalls"`
	MemStalls      uint64 `json:"mem_stalls"`
	Mispredictions uint64 `json:"mispredictions"`
	ReturnBubbles  uint64 `json:"return_bubbles"`

	// Data cache stats, present when the cache is enabled
	DCacheHits       uint64 `json:"dcache_hits,omitempty"`
	DCacheMisses     uint64 `json:"dcache_misses,omitempty"`
	DCacheWritebacks uint64 `json:"dcache_writebacks,omitempty"`

	// X0 is the final value of X0; ExpectedX0 is what the program computes
	X0         uint64 `json:"x0"`
	ExpectedX0 uint64 `json:"expected_x0"`

	// MatchesReference is true when the registers after the run equal
	// those of the sequential emulator
	MatchesReference bool `json:"matches_reference"`

	// WallTime is the actual time taken to run the simulation
	WallTime time.Duration `json:"wall_time_ns"`
}

// Passed reports whether the benchmark halted with the expected X0 and,
// when checked, agreed with the reference emulator.
func (r BenchmarkResult) Passed(validated bool) bool {
	if r.Error != "" || r.Outcome != pipeline.OutcomeHalted.String() {
		return false
	}
	if r.X0 != r.ExpectedX0 {
		return false
	}
	return !validated || r.MatchesReference
}

// Benchmark defines a single benchmark program.
type Benchmark struct {
	// Name identifies the benchmark
	Name string

	// Description explains what the benchmark measures
	Description string

	// Program is the machine code, one word per instruction
	Program []uint32

	// ExpectedX0 is the value X0 holds when the program halts
	ExpectedX0 uint64
}

// HarnessConfig configures the benchmark harness.
type HarnessConfig struct {
	// Sim is the core configuration every benchmark runs with
	Sim *config.Config

	// Validate runs each benchmark on the reference emulator too
	Validate bool

	// Output is where to write results (default: os.Stdout)
	Output io.Writer
}

// DefaultConfig returns a default harness configuration.
func DefaultConfig() HarnessConfig {
	return HarnessConfig{
		Sim:      config.DefaultConfig(),
		Validate: true,
		Output:   os.Stdout,
	}
}

// Harness runs timing benchmarks and reports results.
type Harness struct {
	config     HarnessConfig
	benchmarks []Benchmark
}

// NewHarness creates a new benchmark harness.
func NewHarness(config HarnessConfig) *Harness {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	if config.Sim == nil {
		config.Sim = DefaultConfig().Sim
	}
	return &Harness{
		config:     config,
		benchmarks: []Benchmark{},
	}
}

// AddBenchmark adds a benchmark to the harness.
func (h *Harness) AddBenchmark(b Benchmark) {
	h.benchmarks = append(h.benchmarks, b)
}

// AddBenchmarks adds multiple benchmarks to the harness.
func (h *Harness) AddBenchmarks(benchmarks []Benchmark) {
	h.benchmarks = append(h.benchmarks, benchmarks...)
}

// RunAll executes all benchmarks and returns results.
func (h *Harness) RunAll() []BenchmarkResult {
	results := make([]BenchmarkResult, 0, len(h.benchmarks))

	for _, bench := range h.benchmarks {
		results = append(results, h.runBenchmark(bench))
	}

	return results
}

func (h *Harness) runBenchmark(bench Benchmark) BenchmarkResult {
	result := BenchmarkResult{
		Name:        bench.Name,
		Description: bench.Description,
		ExpectedX0:  bench.ExpectedX0,
	}

	memory := emu.NewMemory()
	memory.LoadProgram(EntryAddr, BuildProgram(bench.Program...))

	c, err := core.NewCore(h.config.Sim, memory, EntryAddr)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	start := time.Now()
	outcome, err := c.Run()
	result.WallTime = time.Since(start)

	result.Outcome = outcome.String()
	if err != nil {
		result.Error = err.Error()
	}

	stats := c.Stats()
	result.SimulatedCycles = stats.Pipeline.Cycles
	result.InstructionsRetired = stats.Pipeline.Instructions
	result.CPI = stats.Pipeline.CPI()
	result.LoadUseStalls = stats.Pipeline.LoadUseStalls
	result.MemStalls = stats.Pipeline.MemStalls
	result.Mispredictions = stats.Pipeline.Mispredictions
	result.ReturnBubbles = stats.Pipeline.ReturnBubbles

	if stats.CacheEnabled {
		result.DCacheHits = stats.Cache.Hits
		result.DCacheMisses = stats.Cache.Misses
		result.DCacheWritebacks = stats.Memory.Writebacks
	}

	result.X0 = c.RegFile().X[0]

	if h.config.Validate {
		result.MatchesReference = h.matchesReference(bench, c)
	}

	return result
}

// matchesReference replays the benchmark on the sequential emulator and
// compares the architectural state with the core's.
func (h *Harness) matchesReference(bench Benchmark, c *core.Core) bool {
	memory := emu.NewMemory()
	memory.LoadProgram(EntryAddr, BuildProgram(bench.Program...))

	ref := emu.NewEmulator(
		emu.WithMemory(memory),
		emu.WithMaxInstructions(h.config.Sim.MaxCycles),
	)
	ref.Reset(EntryAddr, core.DefaultStackTop, dmem.RetFromMainAddr)

	if err := ref.Run(); err != nil {
		return false
	}

	got, want := c.RegFile(), ref.RegFile()

	return got.X == want.X &&
		got.SP == want.SP &&
		got.PSTATE == want.PSTATE &&
		c.Stats().Pipeline.Instructions == ref.InstructionCount()
}

// PrintResults outputs benchmark results in a human-readable format.
func (h *Harness) PrintResults(results []BenchmarkResult) {
	w := h.config.Output

	_, _ = fmt.Fprintln(w, "=== legsim Timing Benchmark Results ===")
	_, _ = fmt.Fprintln(w, "")

	for _, r := range results {
		_, _ = fmt.Fprintf(w, "Benchmark: %s\n", r.Name)
		_, _ = fmt.Fprintf(w, "  Description: %s\n", r.Description)
		_, _ = fmt.Fprintf(w, "  Outcome: %s\n", r.Outcome)
		if r.Error != "" {
			_, _ = fmt.Fprintf(w, "  Error: %s\n", r.Error)
		}
		_, _ = fmt.Fprintln(w, "  --- Timing ---")
		_, _ = fmt.Fprintf(w, "  Simulated Cycles:     %d\n", r.SimulatedCycles)
		_, _ = fmt.Fprintf(w, "  Instructions Retired: %d\n", r.InstructionsRetired)
		_, _ = fmt.Fprintf(w, "  CPI:                  %.3f\n", r.CPI)
		_, _ = fmt.Fprintf(w, "  Load-Use Stalls:      %d\n", r.LoadUseStalls)
		_, _ = fmt.Fprintf(w, "  Mem Stalls:           %d\n", r.MemStalls)
		_, _ = fmt.Fprintf(w, "  Mispredictions:       %d\n", r.Mispredictions)
		_, _ = fmt.Fprintf(w, "  Return Bubbles:       %d\n", r.ReturnBubbles)

		if r.DCacheHits > 0 || r.DCacheMisses > 0 {
			_, _ = fmt.Fprintln(w, "  --- D-Cache ---")
			_, _ = fmt.Fprintf(w, "  Hits:       %d\n", r.DCacheHits)
			_, _ = fmt.Fprintf(w, "  Misses:     %d\n", r.DCacheMisses)
			_, _ = fmt.Fprintf(w, "  Writebacks: %d\n", r.DCacheWritebacks)
		}

		_, _ = fmt.Fprintln(w, "  --- Result ---")
		_, _ = fmt.Fprintf(w, "  X0: %d (expected %d)\n", r.X0, r.ExpectedX0)
		if h.config.Validate {
			_, _ = fmt.Fprintf(w, "  Matches Reference: %v\n", r.MatchesReference)
		}

		_, _ = fmt.Fprintf(w, "  Wall Time: %v\n", r.WallTime)
		_, _ = fmt.Fprintln(w, "")
	}
}

// PrintCSV outputs benchmark results in CSV format for easy comparison.
func (h *Harness) PrintCSV(results []BenchmarkResult) {
	_, _ = fmt.Fprintln(h.config.Output,
		"name,outcome,cycles,instructions,cpi,load_use_stalls,mem_stalls,mispredictions,return_bubbles,dcache_hits,dcache_misses,dcache_writebacks,x0")

	for _, r := range results {
		_, _ = fmt.Fprintf(h.config.Output, "%s,%s,%d,%d,%.3f,%d,%d,%d,%d,%d,%d,%d,%d\n",
			r.Name,
			r.Outcome,
			r.SimulatedCycles,
			r.InstructionsRetired,
			r.CPI,
			r.LoadUseStalls,
			r.MemStalls,
			r.Mispredictions,
			r.ReturnBubbles,
			r.DCacheHits,
			r.DCacheMisses,
			r.DCacheWritebacks,
			r.X0,
		)
	}
}

// BuildProgram assembles instruction words into a little-endian byte slice.
func BuildProgram(words ...uint32) []byte {
	program := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(program[4*i:], w)
	}
	return program
}

// BenchmarkReport is the complete output format for benchmark results.
type BenchmarkReport struct {
	Metadata ReportMetadata    `json:"metadata"`
	Results  []BenchmarkResult `json:"results"`
	Summary  ReportSummary     `json:"summary"`
}

// ReportMetadata contains information about the benchmark run.
type ReportMetadata struct {
	// Timestamp when the benchmark was run
	Timestamp string `json:"timestamp"`

	// Config is the core configuration used
	Config *config.Config `json:"config"`
}

// ReportSummary contains aggregate statistics across all benchmarks.
type ReportSummary struct {
	TotalBenchmarks   int           `json:"total_benchmarks"`
	Passed            int           `json:"passed"`
	TotalCycles       uint64        `json:"total_cycles"`
	TotalInstructions uint64        `json:"total_instructions"`
	AverageCPI        float64       `json:"average_cpi"`
	TotalWallTime     time.Duration `json:"total_wall_time_ns"`
}

// Summarize aggregates results.
func (h *Harness) Summarize(results []BenchmarkResult) ReportSummary {
	s := ReportSummary{TotalBenchmarks: len(results)}

	for _, r := range results {
		s.TotalCycles += r.SimulatedCycles
		s.TotalInstructions += r.InstructionsRetired
		s.TotalWallTime += r.WallTime
		if r.Passed(h.config.Validate) {
			s.Passed++
		}
	}

	if s.TotalInstructions > 0 {
		s.AverageCPI = float64(s.TotalCycles) / float64(s.TotalInstructions)
	}

	return s
}

// PrintJSON outputs benchmark results in JSON format for automated comparison.
func (h *Harness) PrintJSON(results []BenchmarkResult) error {
	report := BenchmarkReport{
		Metadata: ReportMetadata{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Config:    h.config.Sim,
		},
		Results: results,
		Summary: h.Summarize(results),
	}

	encoder := json.NewEncoder(h.config.Output)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}
