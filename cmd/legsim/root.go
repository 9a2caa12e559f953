package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/sarchlab/legsim/emu"
	"github.com/sarchlab/legsim/loader"
	"github.com/sarchlab/legsim/timing/config"
	"github.com/sarchlab/legsim/timing/core"
	"github.com/sarchlab/legsim/timing/dmem"
	"github.com/sarchlab/legsim/timing/pipeline"
	"github.com/sarchlab/legsim/trace"
)

type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	configPath string
	envFile    string
	saveConfig string
	traceDB    string
	setBits    int
	blockBits  int
	assoc      int
	latency    int
	debug      int
	noCache    bool
	maxCycles  uint64

	prof profiler

	exitCode int
}

func newApp(stdin io.Reader, stdout, stderr io.Writer) *app {
	return &app{stdin: stdin, stdout: stdout, stderr: stderr}
}

func (a *app) rootCmd() *cobra.Command {
	defaults := config.DefaultConfig()

	rootCmd := &cobra.Command{
		Use:   "legsim [flags] <program.elf>",
		Short: "legsim simulates a 5-stage pipelined ARM64 core with a data cache.",
		Long: `legsim loads a statically linked AArch64 ELF program and runs it on a
cycle-accurate in-order pipeline (fetch, decode, execute, memory,
write-back) with forwarding, load-use and misprediction handling, and a
set-associative write-back data cache.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.prof.start()
		},
		RunE: a.run,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "JSON configuration file")
	flags.StringVar(&a.envFile, "env-file", ".env", "dotenv file with LEGSIM_* overrides")
	flags.StringVar(&a.saveConfig, "save-config", "", "write the resolved configuration to this file")
	flags.StringVar(&a.traceDB, "trace-db", "", "record a per-cycle stage trace into <name>.sqlite3")
	flags.IntVarP(&a.setBits, "set-bits", "s", defaults.Cache.SetBits, "number of set index bits")
	flags.IntVarP(&a.blockBits, "block-bits", "b", defaults.Cache.BlockBits, "number of block offset bits")
	flags.IntVarP(&a.assoc, "assoc", "E", defaults.Cache.Associativity, "lines per set")
	flags.IntVarP(&a.latency, "latency", "d", defaults.Cache.Latency, "miss latency in cycles")
	flags.IntVar(&a.debug, "debug", 0, "per-cycle trace: 1 stage summary, 2 control signals")
	flags.BoolVar(&a.noCache, "no-cache", false, "bypass the data cache")
	flags.Uint64Var(&a.maxCycles, "max-cycles", defaults.MaxCycles, "cycle budget before the run is declared runaway")
	flags.StringVar(&a.prof.cpuPath, "cpuprofile", "", "write a CPU profile of the simulator to this file")
	flags.StringVar(&a.prof.memPath, "memprofile", "", "write a heap profile of the simulator to this file")

	rootCmd.AddCommand(a.benchCmd())

	return rootCmd
}

// resolveConfig layers the configuration sources. Only flags given on the
// command line override the file and the environment.
func (a *app) resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()

	if a.configPath != "" {
		var err error
		cfg, err = config.LoadConfig(a.configPath)
		if err != nil {
			return nil, err
		}
	}

	env, err := config.LoadEnv(a.envFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(env); err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("set-bits") {
		cfg.Cache.SetBits = a.setBits
	}
	if flags.Changed("block-bits") {
		cfg.Cache.BlockBits = a.blockBits
	}
	if flags.Changed("assoc") {
		cfg.Cache.Associativity = a.assoc
	}
	if flags.Changed("latency") {
		cfg.Cache.Latency = a.latency
	}
	if flags.Changed("no-cache") {
		cfg.CacheEnabled = !a.noCache
	}
	if flags.Changed("max-cycles") {
		cfg.MaxCycles = a.maxCycles
	}
	if flags.Changed("debug") {
		cfg.DebugLevel = a.debug
	}
	if flags.Changed("trace-db") {
		cfg.TraceDB = a.traceDB
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if a.saveConfig != "" {
		if err := cfg.SaveConfig(a.saveConfig); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func (a *app) run(cmd *cobra.Command, args []string) error {
	cfg, err := a.resolveConfig(cmd)
	if err != nil {
		return err
	}

	programPath := args[0]

	prog, err := loader.Load(programPath)
	if err != nil {
		return fmt.Errorf("failed to load program: %w", err)
	}

	memory := emu.NewMemory()
	prog.LoadInto(memory)

	opts := []core.CoreOption{
		core.WithConsole(dmem.NewConsole(a.stdin, a.stdout)),
	}

	if cfg.DebugLevel > 0 {
		opts = append(opts, core.WithTracer(trace.NewTextTracer(a.stdout, cfg.DebugLevel)))
	}

	var db *trace.SQLiteTracer
	if cfg.TraceDB != "" {
		db, err = trace.NewSQLiteTracer(cfg.TraceDB)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		opts = append(opts, core.WithTracer(db))
	}

	c, err := core.NewCore(cfg, memory, prog.EntryPoint, opts...)
	if err != nil {
		return err
	}

	start := time.Now()
	outcome, err := c.Run()
	elapsed := time.Since(start)
	if err != nil {
		return fmt.Errorf("simulation failed: %w", err)
	}

	stats := c.Stats()

	if db != nil {
		if err := db.Finish(outcome, stats.Pipeline); err != nil {
			return err
		}
	}

	a.printReport(programPath, c, outcome, stats, elapsed)

	switch outcome {
	case pipeline.OutcomeGuestFault:
		fmt.Fprintf(a.stderr, "Guest fault: %v\n", c.Fault())
		a.exitCode = exitGuestFault
	case pipeline.OutcomeRunaway:
		fmt.Fprintf(a.stderr, "Program did not finish within %d cycles\n", cfg.MaxCycles)
		a.exitCode = exitRunaway
	default:
		a.exitCode = exitHalted
	}

	return nil
}

func (a *app) printReport(
	programPath string,
	c *core.Core,
	outcome pipeline.Outcome,
	stats core.Stats,
	elapsed time.Duration,
) {
	w := a.stdout
	p := stats.Pipeline

	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "Program: %s\n", programPath)
	fmt.Fprintf(w, "Outcome: %s\n", outcome)
	fmt.Fprintf(w, "Total Instructions: %d\n", p.Instructions)
	fmt.Fprintf(w, "Total Cycles: %d\n", p.Cycles)
	fmt.Fprintf(w, "CPI: %.2f\n", p.CPI())
	fmt.Fprintf(w, "Simulation time: %v\n", elapsed)
	if secs := elapsed.Seconds(); secs > 0 {
		fmt.Fprintf(w, "Cycles/second: %.0f\n", float64(p.Cycles)/secs)
	}
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "Pipeline Events:\n")
	fmt.Fprintf(w, "  Load-use stalls:    %d\n", p.LoadUseStalls)
	fmt.Fprintf(w, "  Memory stalls:      %d\n", p.MemStalls)
	fmt.Fprintf(w, "  Mispredictions:     %d\n", p.Mispredictions)
	fmt.Fprintf(w, "  Return bubbles:     %d\n", p.ReturnBubbles)
	fmt.Fprintf(w, "  Branch predictions: %d\n", p.BranchPredictions)

	if !stats.CacheEnabled {
		fmt.Fprintf(w, "\nData Cache: disabled\n")
		return
	}

	cc := c.Config().Cache
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "Data Cache: %d sets x %d ways x %d B, latency %d\n",
		cc.NumSets(), cc.Associativity, cc.BlockSize(), cc.Latency)
	fmt.Fprintf(w, "  Hits:            %d\n", stats.Cache.Hits)
	fmt.Fprintf(w, "  Misses:          %d\n", stats.Cache.Misses)
	fmt.Fprintf(w, "  Clean evictions: %d\n", stats.Cache.CleanEvictions)
	fmt.Fprintf(w, "  Dirty evictions: %d\n", stats.Cache.DirtyEvictions)
	fmt.Fprintf(w, "  Writebacks:      %d\n", stats.Memory.Writebacks)
}
