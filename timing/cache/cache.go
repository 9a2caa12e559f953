// Package cache provides a set-associative, write-back, write-allocate data
// cache with LRU replacement built on Akita cache components.
//
// The cache is a passive engine: it answers hit tests, chooses victims and
// installs blocks, but it never talks to memory on its own during an
// access. Miss latency and victim write-back are driven by the memory
// access layer (package dmem), which calls HitTest, Fill and the word
// accessors in that order.
package cache

import (
	"fmt"

	akitacache "github.com/sarchlab/akita/v4/mem/cache"
)

// Config holds cache configuration parameters.
type Config struct {
	// SetBits is s: the cache has 2^s sets.
	SetBits int `json:"set_bits"`
	// BlockBits is b: each line holds 2^b bytes.
	BlockBits int `json:"block_bits"`
	// Associativity is E, the number of lines per set.
	Associativity int `json:"associativity"`
	// Latency is d, the number of cycles a miss stays in flight.
	Latency int `json:"latency"`
}

// DefaultConfig returns a 4 KiB cache: 16 sets, 4 ways, 64-byte lines and a
// four cycle miss.
func DefaultConfig() Config {
	return Config{
		SetBits:       4,
		BlockBits:     6,
		Associativity: 4,
		Latency:       4,
	}
}

// NumSets returns 2^s.
func (c Config) NumSets() int { return 1 << c.SetBits }

// BlockSize returns 2^b.
func (c Config) BlockSize() int { return 1 << c.BlockBits }

// Capacity returns the number of data bytes the cache holds.
func (c Config) Capacity() int { return c.NumSets() * c.Associativity * c.BlockSize() }

// MaxCapacity bounds the data bytes a cache may allocate.
const MaxCapacity = 256 << 20

// MaxAccessWidth is the widest access the memory port issues.
const MaxAccessWidth = 8

// blocksPerSet returns the most lines one access of MaxAccessWidth bytes
// can need in a single set. Consecutive blocks map to consecutive sets.
func (c Config) blocksPerSet() int {
	spanned := (MaxAccessWidth+c.BlockSize()-2)/c.BlockSize() + 1
	return (spanned + c.NumSets() - 1) / c.NumSets()
}

// Validate checks the geometry for values the cache cannot model.
func (c Config) Validate() error {
	if c.SetBits < 0 || c.SetBits > 20 {
		return fmt.Errorf("set_bits must be in [0, 20], got %d", c.SetBits)
	}
	if c.BlockBits < 0 || c.BlockBits > 16 {
		return fmt.Errorf("block_bits must be in [0, 16], got %d", c.BlockBits)
	}
	if c.Associativity < 1 {
		return fmt.Errorf("associativity must be positive, got %d", c.Associativity)
	}
	if c.Latency < 0 {
		return fmt.Errorf("latency must not be negative, got %d", c.Latency)
	}
	if c.Associativity > MaxCapacity>>(c.SetBits+c.BlockBits) {
		return fmt.Errorf("capacity of %d sets x %d ways x %d B exceeds %d bytes",
			c.NumSets(), c.Associativity, c.BlockSize(), MaxCapacity)
	}
	if n := c.blocksPerSet(); n > c.Associativity {
		return fmt.Errorf("an %d-byte access can need %d lines of one set, associativity is %d",
			MaxAccessWidth, n, c.Associativity)
	}
	return nil
}

// Op distinguishes reads from writes for hit tests and fills.
type Op int

// Access kinds.
const (
	Read Op = iota
	Write
)

func (o Op) String() string {
	if o == Write {
		return "write"
	}
	return "read"
}

// Line is a snapshot of one cache line.
type Line struct {
	SetID int
	WayID int
	Valid bool
	Dirty bool
	// Tag holds the address bits above the set index.
	Tag uint64
	// LastAccess is the logical time of the most recent touch.
	LastAccess uint64
	Data       []byte
}

// EvictedLine describes the line a fill displaced.
type EvictedLine struct {
	// Addr is the block address of the displaced line.
	Addr  uint64
	Data  []byte
	Dirty bool
	Valid bool
}

// NeedsWriteback reports whether the displaced line must be written to
// the backing store.
func (e EvictedLine) NeedsWriteback() bool {
	return e.Valid && e.Dirty
}

// Statistics holds cache performance statistics.
type Statistics struct {
	Reads          uint64
	Writes         uint64
	Hits           uint64
	Misses         uint64
	CleanEvictions uint64
	DirtyEvictions uint64
	Writebacks     uint64
}

// Evictions returns the total number of valid lines displaced.
func (s Statistics) Evictions() uint64 {
	return s.CleanEvictions + s.DirtyEvictions
}

// Cache is a set-associative write-back cache. Tags, valid and dirty bits
// and the LRU order live in an Akita directory; data and logical access
// times are kept alongside, indexed by (set, way).
type Cache struct {
	config Config

	directory *akitacache.DirectoryImpl

	// Data storage - indexed by (setID * associativity + wayID)
	dataStore [][]byte
	stamps    []uint64
	clock     uint64

	stats Statistics

	// backing receives dirty lines on Flush.
	backing BackingStore
}

// New creates a new cache with the given configuration. backing may be nil
// when the caller never flushes.
func New(config Config, backing BackingStore) *Cache {
	numSets := config.NumSets()
	totalBlocks := numSets * config.Associativity

	dataStore := make([][]byte, totalBlocks)
	for i := range dataStore {
		dataStore[i] = make([]byte, config.BlockSize())
	}

	return &Cache{
		config: config,
		directory: akitacache.NewDirectory(
			numSets,
			config.Associativity,
			config.BlockSize(),
			akitacache.NewLRUVictimFinder(),
		),
		dataStore: dataStore,
		stamps:    make([]uint64, totalBlocks),
		backing:   backing,
	}
}

// Config returns the cache configuration.
func (c *Cache) Config() Config {
	return c.config
}

// Stats returns cache statistics.
func (c *Cache) Stats() Statistics {
	return c.stats
}

// ResetStats clears cache statistics.
func (c *Cache) ResetStats() {
	c.stats = Statistics{}
}

// BlockAddr returns the address of the first byte of addr's block.
func (c *Cache) BlockAddr(addr uint64) uint64 {
	return addr &^ uint64(c.config.BlockSize()-1)
}

// SetIndex returns the set addr maps to.
func (c *Cache) SetIndex(addr uint64) int {
	return int((addr >> uint(c.config.BlockBits)) & uint64(c.config.NumSets()-1))
}

// TagOf returns the tag bits of addr.
func (c *Cache) TagOf(addr uint64) uint64 {
	return addr >> uint(c.config.BlockBits+c.config.SetBits)
}

// blockIndex computes the index into dataStore for a block.
func (c *Cache) blockIndex(block *akitacache.Block) int {
	return block.SetID*c.config.Associativity + block.WayID
}

func (c *Cache) find(addr uint64) *akitacache.Block {
	block := c.directory.Lookup(0, c.BlockAddr(addr))
	if block == nil || !block.IsValid {
		return nil
	}
	return block
}

func (c *Cache) touch(block *akitacache.Block) {
	c.clock++
	c.stamps[c.blockIndex(block)] = c.clock
	c.directory.Visit(block)
}

func (c *Cache) lineOf(block *akitacache.Block) Line {
	idx := c.blockIndex(block)
	data := make([]byte, len(c.dataStore[idx]))
	copy(data, c.dataStore[idx])

	return Line{
		SetID:      block.SetID,
		WayID:      block.WayID,
		Valid:      block.IsValid,
		Dirty:      block.IsDirty,
		Tag:        c.TagOf(block.Tag),
		LastAccess: c.stamps[idx],
		Data:       data,
	}
}

// Lookup returns the valid line holding addr, if any. It does not change
// any cache state.
func (c *Cache) Lookup(addr uint64) (Line, bool) {
	block := c.find(addr)
	if block == nil {
		return Line{}, false
	}
	return c.lineOf(block), true
}

// Contains reports whether addr is in a valid line. It does not change any
// cache state.
func (c *Cache) Contains(addr uint64) bool {
	return c.find(addr) != nil
}

// HitTest probes the cache for addr and counts the outcome. A hit makes
// the line most recently used and, for writes, marks it dirty. A miss
// leaves every line untouched.
func (c *Cache) HitTest(addr uint64, op Op) bool {
	block := c.find(addr)
	if block == nil {
		c.stats.Misses++
		return false
	}

	c.stats.Hits++
	c.touch(block)
	if op == Write {
		block.IsDirty = true
	}

	return true
}

func (c *Cache) selectVictim(addr uint64) *akitacache.Block {
	victim := c.directory.FindVictim(c.BlockAddr(addr))
	if victim == nil {
		panic(fmt.Sprintf("cache: no victim in set %d", c.SetIndex(addr)))
	}

	if victim.IsValid {
		if victim.IsDirty {
			c.stats.DirtyEvictions++
		} else {
			c.stats.CleanEvictions++
		}
	}

	return victim
}

// SelectVictim returns the line a fill of addr would replace: an invalid
// line when the set has one, otherwise the least recently used line. An
// eviction is counted when the chosen line is valid.
func (c *Cache) SelectVictim(addr uint64) Line {
	return c.lineOf(c.selectVictim(addr))
}

// Fill installs the block containing addr, replacing the victim line, and
// returns a record of what was displaced. A nil block zero-fills the line.
// The new line is dirty when the fill was caused by a write.
func (c *Cache) Fill(addr uint64, op Op, block []byte) EvictedLine {
	victim := c.selectVictim(addr)
	idx := c.blockIndex(victim)
	data := c.dataStore[idx]

	evicted := EvictedLine{
		Addr:  victim.Tag,
		Dirty: victim.IsDirty,
		Valid: victim.IsValid,
	}
	if victim.IsValid {
		evicted.Data = make([]byte, len(data))
		copy(evicted.Data, data)
	}

	if block == nil {
		for i := range data {
			data[i] = 0
		}
	} else {
		copy(data, block)
	}

	// Tag stores the block-aligned address
	victim.Tag = c.BlockAddr(addr)
	victim.IsValid = true
	victim.IsDirty = op == Write
	c.touch(victim)

	return evicted
}

func (c *Cache) residentByte(addr uint64) (*akitacache.Block, []byte, int) {
	block := c.find(addr)
	if block == nil {
		panic(fmt.Sprintf("cache: access to non-resident address %#x", addr))
	}
	offset := int(addr & uint64(c.config.BlockSize()-1))
	return block, c.dataStore[c.blockIndex(block)], offset
}

// Read returns the little-endian value of width bytes at addr. Every byte
// touched must be resident.
func (c *Cache) Read(addr uint64, width int) uint64 {
	c.stats.Reads++

	var v uint64
	for i := 0; i < width; i++ {
		_, data, offset := c.residentByte(addr + uint64(i))
		v |= uint64(data[offset]) << (8 * i)
	}
	return v
}

// Write stores the low width bytes of value at addr, little-endian. Every
// byte touched must be resident.
func (c *Cache) Write(addr uint64, width int, value uint64) {
	c.stats.Writes++

	for i := 0; i < width; i++ {
		block, data, offset := c.residentByte(addr + uint64(i))
		data[offset] = byte(value >> (8 * i))
		block.IsDirty = true
	}
}

// ReadWord reads the 8-byte word at addr.
func (c *Cache) ReadWord(addr uint64) uint64 {
	return c.Read(addr, 8)
}

// WriteWord writes the 8-byte word at addr.
func (c *Cache) WriteWord(addr uint64, value uint64) {
	c.Write(addr, 8, value)
}

// Lines returns a snapshot of every line, ordered by set then way.
func (c *Cache) Lines() []Line {
	lines := make([]Line, 0, len(c.dataStore))
	for _, set := range c.directory.GetSets() {
		for _, block := range set.Blocks {
			lines = append(lines, c.lineOf(block))
		}
	}
	return lines
}

// Flush writes back all dirty blocks and invalidates every line. It
// returns the number of lines written back.
func (c *Cache) Flush() int {
	written := 0
	for _, set := range c.directory.GetSets() {
		for _, block := range set.Blocks {
			if block.IsValid && block.IsDirty && c.backing != nil {
				// Tag stores block-aligned address directly
				c.backing.Write(block.Tag, c.dataStore[c.blockIndex(block)])
				c.stats.Writebacks++
				written++
			}
			block.IsValid = false
			block.IsDirty = false
		}
	}
	return written
}

// Reset invalidates all cache lines without writeback and clears the
// statistics.
func (c *Cache) Reset() {
	c.directory.Reset()
	for i := range c.dataStore {
		for j := range c.dataStore[i] {
			c.dataStore[i][j] = 0
		}
		c.stamps[i] = 0
	}
	c.clock = 0
	c.stats = Statistics{}
}
