package loader

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"io"
)

const (
	ehdrSize = 64
	phdrSize = 56
)

// WriteTo serializes the program as a little-endian ELF64 AArch64
// executable with one PT_LOAD header per segment. Segment data follows the
// headers in order.
func (p *Program) WriteTo(w io.Writer) (int64, error) {
	buf := &bytes.Buffer{}
	le := binary.LittleEndian

	hdr := elf.Header64{
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(elf.EM_AARCH64),
		Version:   uint32(elf.EV_CURRENT),
		Entry:     p.EntryPoint,
		Phoff:     ehdrSize,
		Ehsize:    ehdrSize,
		Phentsize: phdrSize,
		Phnum:     uint16(len(p.Segments)),
		Shentsize: 64,
	}
	copy(hdr.Ident[:], elf.ELFMAG)
	hdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	hdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	hdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)

	_ = binary.Write(buf, le, hdr)

	offset := uint64(ehdrSize + phdrSize*len(p.Segments))
	for _, seg := range p.Segments {
		ph := elf.Prog64{
			Type:   uint32(elf.PT_LOAD),
			Flags:  uint32(progFlags(seg.Flags)),
			Off:    offset,
			Vaddr:  seg.VirtAddr,
			Paddr:  seg.VirtAddr,
			Filesz: uint64(len(seg.Data)),
			Memsz:  seg.MemSize,
			Align:  0x1000,
		}
		_ = binary.Write(buf, le, ph)
		offset += uint64(len(seg.Data))
	}

	for _, seg := range p.Segments {
		buf.Write(seg.Data)
	}

	return buf.WriteTo(w)
}
