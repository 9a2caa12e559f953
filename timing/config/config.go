// Package config holds the run configuration of the simulator: the data
// cache geometry, the cycle budget and the debug and trace settings.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/sarchlab/legsim/timing/cache"
)

// EnvPrefix is the prefix of every environment variable that overrides a
// configuration field.
const EnvPrefix = "LEGSIM_"

// Config holds the parameters of one simulation run.
type Config struct {
	// Cache is the data cache geometry and miss latency.
	Cache cache.Config `json:"cache"`

	// CacheEnabled routes data accesses through the cache. When false,
	// loads and stores go straight to memory and never stall.
	CacheEnabled bool `json:"cache_enabled"`

	// MaxCycles bounds the run. A program still running afterwards is
	// reported as a runaway. Default: 1,000,000.
	MaxCycles uint64 `json:"max_cycles"`

	// DebugLevel selects the per-cycle trace: 0 none, 1 latch summary,
	// 2 full latch contents.
	DebugLevel int `json:"debug_level"`

	// TraceDB, when not empty, names an SQLite database that receives one
	// row per stage per cycle.
	TraceDB string `json:"trace_db"`
}

// DefaultConfig returns a Config with the default cache and budget.
func DefaultConfig() *Config {
	return &Config{
		Cache:        cache.DefaultConfig(),
		CacheEnabled: true,
		MaxCycles:    1_000_000,
	}
}

// LoadConfig loads a Config from a JSON file. Fields missing from the file
// keep their default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// SaveConfig writes a Config to a JSON file.
func (c *Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks that the configuration describes a runnable machine.
func (c *Config) Validate() error {
	if c.CacheEnabled {
		if err := c.Cache.Validate(); err != nil {
			return fmt.Errorf("cache: %w", err)
		}
	}
	if c.MaxCycles == 0 {
		return fmt.Errorf("max_cycles must be > 0")
	}
	if c.DebugLevel < 0 || c.DebugLevel > 2 {
		return fmt.Errorf("debug_level must be 0, 1 or 2, got %d", c.DebugLevel)
	}
	return nil
}

// Clone returns a deep copy of the Config.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// LoadEnv returns the process environment overlaid on the given dotenv
// files. Variables already set in the process win, as with
// godotenv.Load. Files that do not exist are skipped.
func LoadEnv(paths ...string) (map[string]string, error) {
	env := make(map[string]string)

	for _, path := range paths {
		vars, err := godotenv.Read(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read env file %s: %w", path, err)
		}

		for k, v := range vars {
			if _, ok := env[k]; !ok {
				env[k] = v
			}
		}
	}

	for _, kv := range os.Environ() {
		k, v, _ := strings.Cut(kv, "=")
		env[k] = v
	}

	return env, nil
}

// ApplyEnv overrides fields from LEGSIM_* entries of env. Unknown
// variables are ignored.
func (c *Config) ApplyEnv(env map[string]string) error {
	ints := []struct {
		name string
		dst  *int
	}{
		{"SET_BITS", &c.Cache.SetBits},
		{"BLOCK_BITS", &c.Cache.BlockBits},
		{"ASSOCIATIVITY", &c.Cache.Associativity},
		{"LATENCY", &c.Cache.Latency},
		{"DEBUG_LEVEL", &c.DebugLevel},
	}

	for _, f := range ints {
		v, ok := env[EnvPrefix+f.name]
		if !ok {
			continue
		}

		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, f.name, err)
		}
		*f.dst = n
	}

	if v, ok := env[EnvPrefix+"CACHE_ENABLED"]; ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%sCACHE_ENABLED: %w", EnvPrefix, err)
		}
		c.CacheEnabled = b
	}

	if v, ok := env[EnvPrefix+"MAX_CYCLES"]; ok {
		n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("%sMAX_CYCLES: %w", EnvPrefix, err)
		}
		c.MaxCycles = n
	}

	if v, ok := env[EnvPrefix+"TRACE_DB"]; ok {
		c.TraceDB = v
	}

	return nil
}
