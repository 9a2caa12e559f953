// Package loader reads AArch64 ELF executables into simulator memory.
package loader

import (
	"debug/elf"
	"errors"
	"fmt"
	"io"

	"github.com/sarchlab/legsim/emu"
)

// Errors returned for files the simulator cannot run.
var (
	ErrNotELF64   = errors.New("not a 64-bit ELF file")
	ErrNotAArch64 = errors.New("not an ARM64 ELF file")
)

// SegmentFlags holds the R/W/X permissions of a segment.
type SegmentFlags uint32

// Segment permission bits.
const (
	SegmentFlagExecute SegmentFlags = 1 << iota
	SegmentFlagWrite
	SegmentFlagRead
)

// segmentFlagBits pairs each permission with its program header bit.
var segmentFlagBits = []struct {
	seg SegmentFlags
	elf elf.ProgFlag
}{
	{SegmentFlagExecute, elf.PF_X},
	{SegmentFlagWrite, elf.PF_W},
	{SegmentFlagRead, elf.PF_R},
}

func fromProgFlags(pf elf.ProgFlag) SegmentFlags {
	var f SegmentFlags
	for _, b := range segmentFlagBits {
		if pf&b.elf != 0 {
			f |= b.seg
		}
	}
	return f
}

func progFlags(f SegmentFlags) elf.ProgFlag {
	var pf elf.ProgFlag
	for _, b := range segmentFlagBits {
		if f&b.seg != 0 {
			pf |= b.elf
		}
	}
	return pf
}

// Segment is one PT_LOAD region of the image.
type Segment struct {
	// VirtAddr is the first address the segment occupies.
	VirtAddr uint64
	// Data is the part of the segment stored in the file.
	Data []byte
	// MemSize is the size of the region. Bytes past len(Data) are zero.
	MemSize uint64
	Flags   SegmentFlags
}

// Contains reports whether addr falls inside the segment's memory image.
func (s Segment) Contains(addr uint64) bool {
	return addr >= s.VirtAddr && addr-s.VirtAddr < s.MemSize
}

// Program is an executable image: its entry point and loadable segments.
type Program struct {
	EntryPoint uint64
	Segments   []Segment
}

// Load parses an ARM64 ELF binary.
func Load(path string) (*Program, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ELF file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return fromFile(f)
}

// LoadReader parses an ARM64 ELF binary from r.
func LoadReader(r io.ReaderAt) (*Program, error) {
	f, err := elf.NewFile(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ELF file: %w", err)
	}

	return fromFile(f)
}

func fromFile(f *elf.File) (*Program, error) {
	if f.Class != elf.ELFCLASS64 {
		return nil, ErrNotELF64
	}

	if f.Machine != elf.EM_AARCH64 {
		return nil, fmt.Errorf("%w (machine type: %v)", ErrNotAArch64, f.Machine)
	}

	prog := &Program{EntryPoint: f.Entry}

	for _, ph := range f.Progs {
		if ph.Type != elf.PT_LOAD {
			continue
		}

		seg, err := readSegment(ph)
		if err != nil {
			return nil, err
		}
		prog.Segments = append(prog.Segments, seg)
	}

	return prog, nil
}

func readSegment(ph *elf.Prog) (Segment, error) {
	seg := Segment{
		VirtAddr: ph.Vaddr,
		Data:     make([]byte, ph.Filesz),
		MemSize:  ph.Memsz,
		Flags:    fromProgFlags(ph.Flags),
	}

	if _, err := io.ReadFull(ph.Open(), seg.Data); err != nil {
		return Segment{}, fmt.Errorf("segment at %#x: %w", ph.Vaddr, err)
	}

	return seg, nil
}

// LoadInto copies every segment into memory and zero-fills the part of
// each segment not backed by the file.
func (p *Program) LoadInto(memory *emu.Memory) {
	for _, seg := range p.Segments {
		memory.LoadProgram(seg.VirtAddr, seg.Data)

		if seg.MemSize > uint64(len(seg.Data)) {
			bss := make([]byte, seg.MemSize-uint64(len(seg.Data)))
			memory.WriteBytes(seg.VirtAddr+uint64(len(seg.Data)), bss)
		}
	}
}

// Size returns the total memory footprint of the loadable segments.
func (p *Program) Size() uint64 {
	var total uint64
	for _, seg := range p.Segments {
		total += seg.MemSize
	}
	return total
}
