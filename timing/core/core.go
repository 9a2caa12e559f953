// Package core provides the cycle-accurate CPU core model.
// It wires the pipeline to its data-memory port and cache according to a
// run configuration.
package core

import (
	"fmt"

	"github.com/sarchlab/legsim/emu"
	"github.com/sarchlab/legsim/timing/cache"
	"github.com/sarchlab/legsim/timing/config"
	"github.com/sarchlab/legsim/timing/dmem"
	"github.com/sarchlab/legsim/timing/pipeline"
)

// DefaultStackTop is the initial stack pointer, 8 bytes below the start of
// the kernel segment.
const DefaultStackTop = uint64(0x0000_8000_0000_0000 - 8)

// Stats holds performance statistics for the core.
type Stats struct {
	// Pipeline holds cycle, instruction and hazard counts.
	Pipeline pipeline.Statistics
	// Cache holds data cache counts. It is zero when the cache is off.
	Cache cache.Statistics
	// Memory holds data-memory port counts.
	Memory dmem.Statistics
	// CacheEnabled tells whether Cache is meaningful.
	CacheEnabled bool
}

// Core represents a cycle-accurate CPU core model.
// It wraps a 5-stage pipeline and provides a simple interface for simulation.
type Core struct {
	// Pipeline is the underlying 5-stage pipeline.
	Pipeline *pipeline.Pipeline

	config  *config.Config
	regFile *emu.RegFile
	memory  *emu.Memory
	port    *dmem.Port

	flushed bool
}

type options struct {
	stackTop uint64
	console  *dmem.Console
	tracers  []pipeline.Tracer
}

// CoreOption is a functional option for configuring the Core.
type CoreOption func(*options)

// WithStackTop overrides DefaultStackTop.
func WithStackTop(sp uint64) CoreOption {
	return func(o *options) {
		o.stackTop = sp
	}
}

// WithConsole sets the console that serves the character I/O address.
func WithConsole(c *dmem.Console) CoreOption {
	return func(o *options) {
		o.console = c
	}
}

// WithTracer attaches a per-cycle tracer to the pipeline.
func WithTracer(t pipeline.Tracer) CoreOption {
	return func(o *options) {
		o.tracers = append(o.tracers, t)
	}
}

// NewCore creates a core that runs the program already loaded in memory,
// starting at entry. The register file is reset to the program start
// state: PC at entry, SP at the stack top and the link register holding
// the return-to-caller address.
func NewCore(
	cfg *config.Config,
	memory *emu.Memory,
	entry uint64,
	opts ...CoreOption,
) (*Core, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	o := options{stackTop: DefaultStackTop}
	for _, opt := range opts {
		opt(&o)
	}

	regFile := &emu.RegFile{}
	regFile.Reset(entry, o.stackTop, dmem.RetFromMainAddr)

	backing := cache.NewMemoryBacking(memory)

	portOpts := []dmem.PortOption{}
	if cfg.CacheEnabled {
		portOpts = append(portOpts, dmem.WithCache(cache.New(cfg.Cache, backing)))
	}
	if o.console != nil {
		portOpts = append(portOpts, dmem.WithConsole(o.console))
	}
	port := dmem.NewPort(backing, portOpts...)

	pipeOpts := []pipeline.PipelineOption{pipeline.WithMaxCycles(cfg.MaxCycles)}
	for _, t := range o.tracers {
		pipeOpts = append(pipeOpts, pipeline.WithTracer(t))
	}

	return &Core{
		Pipeline: pipeline.NewPipeline(regFile, port, pipeOpts...),
		config:   cfg.Clone(),
		regFile:  regFile,
		memory:   memory,
		port:     port,
	}, nil
}

// Config returns the configuration the core was built with.
func (c *Core) Config() *config.Config {
	return c.config
}

// RegFile returns the architectural register file.
func (c *Core) RegFile() *emu.RegFile {
	return c.regFile
}

// Memory returns the backing memory.
func (c *Core) Memory() *emu.Memory {
	return c.memory
}

// Port returns the data-memory port.
func (c *Core) Port() *dmem.Port {
	return c.port
}

// Tick executes one pipeline cycle.
func (c *Core) Tick() error {
	return c.Pipeline.Tick()
}

// RunCycles executes the core for the specified number of cycles.
// Returns true if still running, false if the run ended.
func (c *Core) RunCycles(cycles uint64) (bool, error) {
	running, err := c.Pipeline.RunCycles(cycles)
	if err == nil && !running {
		c.Flush()
	}
	return running, err
}

// Run executes the core until the program halts, faults or exhausts the
// cycle budget. Dirty cache lines are then written back so that Memory
// holds the final image.
func (c *Core) Run() (pipeline.Outcome, error) {
	outcome, err := c.Pipeline.Run()
	if err != nil {
		return outcome, err
	}

	c.Flush()

	return outcome, nil
}

// Flush writes every dirty cache line back to memory. It only acts once.
func (c *Core) Flush() {
	if c.flushed {
		return
	}
	c.flushed = true
	c.port.Flush()
}

// Outcome returns how the run ended, or pipeline.OutcomeRunning.
func (c *Core) Outcome() pipeline.Outcome {
	return c.Pipeline.Outcome()
}

// Fault returns the guest fault that ended the run, if any.
func (c *Core) Fault() error {
	return c.Pipeline.Fault()
}

// Stats returns performance statistics for the core.
func (c *Core) Stats() Stats {
	s := Stats{
		Pipeline: c.Pipeline.Stats(),
		Memory:   c.port.Stats(),
	}

	if cc := c.port.Cache(); cc != nil {
		s.CacheEnabled = true
		s.Cache = cc.Stats()
	}

	return s
}
