package emu

// LoadStoreUnit implements the unscaled loads and stores of the subset.
type LoadStoreUnit struct {
	regFile *RegFile
	memory  *Memory
}

// NewLoadStoreUnit creates a new LoadStoreUnit connected to the given
// register file and memory.
func NewLoadStoreUnit(regFile *RegFile, memory *Memory) *LoadStoreUnit {
	return &LoadStoreUnit{
		regFile: regFile,
		memory:  memory,
	}
}

func (lsu *LoadStoreUnit) addr(rn uint8, offset int64) uint64 {
	return uint64(int64(lsu.regFile.ReadReg(rn)) + offset)
}

// LDUR performs a 64-bit load: Xt = mem[Xn|SP + offset]
func (lsu *LoadStoreUnit) LDUR(rt, rn uint8, offset int64) {
	lsu.regFile.WriteReg(rt, lsu.memory.Read64(lsu.addr(rn, offset)))
}

// LDURB loads a byte with zero extension: Xt = zero_extend(mem[Xn|SP + offset])
func (lsu *LoadStoreUnit) LDURB(rt, rn uint8, offset int64) {
	lsu.regFile.WriteReg(rt, uint64(lsu.memory.Read8(lsu.addr(rn, offset))))
}

// STUR performs a 64-bit store: mem[Xn|SP + offset] = Xt
func (lsu *LoadStoreUnit) STUR(rt, rn uint8, offset int64) {
	lsu.memory.Write64(lsu.addr(rn, offset), lsu.regFile.ReadReg(rt))
}

// STURB stores the low byte: mem[Xn|SP + offset] = Xt[7:0]
func (lsu *LoadStoreUnit) STURB(rt, rn uint8, offset int64) {
	lsu.memory.Write8(lsu.addr(rn, offset), uint8(lsu.regFile.ReadReg(rt)))
}
