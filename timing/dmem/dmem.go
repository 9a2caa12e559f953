// Package dmem provides the data-memory port of the pipeline. It routes
// special addresses to their handlers, models the in-flight state of a
// cache miss, and writes dirty victims back to the backing store.
package dmem

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log"

	"github.com/sarchlab/legsim/timing/cache"
)

// Special addresses that never reach the cache.
const (
	// NullAddr faults on reads. Writes are ignored.
	NullAddr uint64 = 0
	// IOCharAddr is the console port.
	IOCharAddr uint64 = 0xFFFFFFFFFFFFFFFF
	// RetFromMainAddr is loaded into the link register at reset. Returning
	// to it ends the program. Reads yield zero.
	RetFromMainAddr uint64 = IOCharAddr - 4
)

// IsSpecial reports whether addr is one of the special addresses.
func IsSpecial(addr uint64) bool {
	return addr == NullAddr || addr == IOCharAddr || addr == RetFromMainAddr
}

// Status is the outcome of a memory access attempt.
type Status int

// Access statuses.
const (
	// Ready means the access completed this cycle.
	Ready Status = iota
	// InFlight means a miss is being serviced; retry the same access next
	// cycle.
	InFlight
)

func (s Status) String() string {
	if s == InFlight {
		return "in-flight"
	}
	return "ready"
}

// ErrBadWidth is returned for access widths other than 1, 2, 4 or 8.
var ErrBadWidth = errors.New("invalid access width")

// ErrNotResident is returned when the lines of one access cannot all be
// held by the cache at once.
var ErrNotResident = errors.New("access does not fit in the cache")

// GuestFault is an error caused by the simulated program rather than by
// the simulator.
type GuestFault struct {
	Addr   uint64
	Reason string
}

func (f *GuestFault) Error() string {
	return fmt.Sprintf("guest fault at %#x: %s", f.Addr, f.Reason)
}

// Inflight describes the outstanding miss.
type Inflight struct {
	Active bool
	// Addr is the block address being filled.
	Addr uint64
	// Remaining counts the attempts left before the fill completes. It is
	// signed so that latencies of 0 and 1 both complete on the first
	// attempt.
	Remaining int
}

// Statistics holds port statistics.
type Statistics struct {
	// Probes counts per-byte cache hit tests.
	Probes uint64
	// InflightCycles counts attempts that returned InFlight.
	InflightCycles uint64
	// Writebacks counts dirty victims written to the backing store.
	Writebacks uint64
}

// Port is the pipeline's view of data memory.
type Port struct {
	backing cache.BackingStore
	cache   *cache.Cache
	console *Console

	inflight Inflight
	stats    Statistics
}

// PortOption is a functional option for configuring the Port.
type PortOption func(*Port)

// WithCache places a cache in front of the backing store. Without one,
// every access goes straight to the backing store and is always Ready.
func WithCache(c *cache.Cache) PortOption {
	return func(p *Port) {
		p.cache = c
	}
}

// WithConsole sets the console serving IOCharAddr.
func WithConsole(c *Console) PortOption {
	return func(p *Port) {
		p.console = c
	}
}

// NewPort creates a port over the given backing store.
func NewPort(backing cache.BackingStore, opts ...PortOption) *Port {
	p := &Port{backing: backing}

	for _, opt := range opts {
		opt(p)
	}

	if p.console == nil {
		p.console = NewStdConsole()
	}

	return p
}

// Cache returns the cache in front of the backing store, or nil.
func (p *Port) Cache() *cache.Cache {
	return p.cache
}

// Backing returns the backing store.
func (p *Port) Backing() cache.BackingStore {
	return p.backing
}

// Stats returns port statistics.
func (p *Port) Stats() Statistics {
	return p.stats
}

// Inflight returns the outstanding miss, if any.
func (p *Port) Inflight() Inflight {
	return p.inflight
}

// Read loads width bytes from addr.
func (p *Port) Read(addr uint64, width int) (uint64, Status, error) {
	if !validWidth(width) {
		return 0, Ready, fmt.Errorf("read %#x: %w %d", addr, ErrBadWidth, width)
	}

	switch addr {
	case NullAddr:
		return 0, Ready, &GuestFault{Addr: addr, Reason: "read from null address"}
	case IOCharAddr:
		v, err := p.console.Read(width)
		if err != nil {
			return 0, Ready, fmt.Errorf("console read: %w", err)
		}
		return v, Ready, nil
	case RetFromMainAddr:
		return 0, Ready, nil
	}

	if p.cache == nil {
		return readLE(p.backing.Read(addr, width)), Ready, nil
	}

	st, err := p.ensureResident(addr, width, cache.Read)
	if err != nil || st == InFlight {
		return 0, st, err
	}

	return p.cache.Read(addr, width), Ready, nil
}

// Write stores the low width bytes of data at addr.
func (p *Port) Write(addr uint64, width int, data uint64) (Status, error) {
	if !validWidth(width) {
		return Ready, fmt.Errorf("write %#x: %w %d", addr, ErrBadWidth, width)
	}

	switch addr {
	case NullAddr:
		log.Printf("dmem: ignoring %d-byte write of %#x to null address", width, data)
		return Ready, nil
	case IOCharAddr:
		if err := p.console.Write(width, data); err != nil {
			return Ready, fmt.Errorf("console write: %w", err)
		}
		return Ready, nil
	case RetFromMainAddr:
		return Ready, &GuestFault{Addr: addr, Reason: "write to return sentinel"}
	}

	if p.cache == nil {
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, data)
		p.backing.Write(addr, buf[:width])
		return Ready, nil
	}

	st, err := p.ensureResident(addr, width, cache.Write)
	if err != nil || st == InFlight {
		return st, err
	}

	p.cache.Write(addr, width, data)

	return Ready, nil
}

// ensureResident probes every byte of the access. The first missing byte
// starts or continues the miss countdown for its block; the fill happens
// once the countdown expires, after which the remaining bytes are probed.
// A fill that evicts a line filled earlier in the same access is an error.
func (p *Port) ensureResident(addr uint64, width int, op cache.Op) (Status, error) {
	for i := 0; i < width; i++ {
		a := addr + uint64(i)

		p.stats.Probes++
		if p.cache.HitTest(a, op) {
			continue
		}

		block := p.cache.BlockAddr(a)
		if !p.inflight.Active || p.inflight.Addr != block {
			p.inflight = Inflight{
				Active:    true,
				Addr:      block,
				Remaining: p.cache.Config().Latency,
			}
		}

		p.inflight.Remaining--
		if p.inflight.Remaining > 0 {
			p.stats.InflightCycles++
			return InFlight, nil
		}

		p.inflight = Inflight{}
		p.fill(a, block, op)
	}

	for i := 0; i < width; i++ {
		if !p.cache.Contains(addr + uint64(i)) {
			return Ready, fmt.Errorf("%d-byte access at %#x: %w", width, addr, ErrNotResident)
		}
	}

	return Ready, nil
}

func (p *Port) fill(addr, block uint64, op cache.Op) {
	data := p.backing.Read(block, p.cache.Config().BlockSize())

	evicted := p.cache.Fill(addr, op, data)
	if evicted.NeedsWriteback() {
		p.backing.Write(evicted.Addr, evicted.Data)
		p.stats.Writebacks++
	}
}

// Flush writes every dirty cache line back so that the backing store holds
// the final memory image. It returns the number of lines written.
func (p *Port) Flush() int {
	if p.cache == nil {
		return 0
	}
	n := p.cache.Flush()
	p.stats.Writebacks += uint64(n)
	return n
}

// Fetch reads the instruction word at pc straight from the backing store.
func (p *Port) Fetch(pc uint64) (uint32, error) {
	if IsSpecial(pc) {
		return 0, &GuestFault{Addr: pc, Reason: "instruction fetch from special address"}
	}
	return uint32(readLE(p.backing.Read(pc, 4))), nil
}

func validWidth(width int) bool {
	return width == 1 || width == 2 || width == 4 || width == 8
}

func readLE(buf []byte) uint64 {
	var v uint64
	for i, b := range buf {
		v |= uint64(b) << (8 * i)
	}
	return v
}
