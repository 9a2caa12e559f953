package emu_test

import (
	"encoding/binary"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/legsim/emu"
	"github.com/sarchlab/legsim/insts"
)

const (
	entry    = uint64(0x400000)
	stackTop = uint64(0x7FFFF000)
	retAddr  = uint64(0xFFFFFFFFFFFFFFFB)
)

func program(words ...uint32) []byte {
	buf := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[4*i:], w)
	}
	return buf
}

var _ = Describe("Emulator", func() {
	var e *emu.Emulator

	load := func(words ...uint32) {
		e.Memory().LoadProgram(entry, program(words...))
		e.Reset(entry, stackTop, retAddr)
	}

	BeforeEach(func() {
		e = emu.NewEmulator()
	})

	Describe("Reset", func() {
		It("should establish the initial machine state", func() {
			e.Reset(entry, stackTop, retAddr)

			Expect(e.RegFile().PC).To(Equal(entry))
			Expect(e.RegFile().SP).To(Equal(stackTop))
			Expect(e.RegFile().X[30]).To(Equal(retAddr))
			Expect(e.RegFile().PSTATE.NZCV()).To(Equal(uint8(0b0100)))
		})
	})

	Describe("Step", func() {
		It("should execute ADD immediate with SP as source and destination", func() {
			load(insts.EncodeADDImm(31, 31, 16, false), insts.EncodeHLT())

			Expect(e.Step().Halted).To(BeFalse())
			Expect(e.RegFile().SP).To(Equal(stackTop + 16))
			Expect(e.RegFile().PC).To(Equal(entry + 4))
		})

		It("should build a 64-bit constant with MOVZ and MOVK", func() {
			load(
				insts.EncodeMOVZ(1, 0xBEEF, 0),
				insts.EncodeMOVK(1, 0xDEAD, 1),
				insts.EncodeMOVK(1, 0x1234, 3),
				insts.EncodeHLT(),
			)

			Expect(e.Run()).To(Succeed())
			Expect(e.RegFile().X[1]).To(Equal(uint64(0x12340000DEADBEEF)))
		})

		It("should store and reload through the stack", func() {
			load(
				insts.EncodeMOVZ(2, 77, 0),
				insts.EncodeSTUR(2, 31, -8),
				insts.EncodeLDUR(3, 31, -8),
				insts.EncodeSTURB(2, 31, -16),
				insts.EncodeLDURB(4, 31, -16),
				insts.EncodeHLT(),
			)

			Expect(e.Run()).To(Succeed())
			Expect(e.RegFile().X[3]).To(Equal(uint64(77)))
			Expect(e.RegFile().X[4]).To(Equal(uint64(77)))
			Expect(e.Memory().Read64(stackTop - 8)).To(Equal(uint64(77)))
		})

		It("should loop with SUBS and B.cond", func() {
			// x1 = 5 + 4 + 3 + 2 + 1
			load(
				insts.EncodeMOVZ(0, 5, 0),
				insts.EncodeMOVZ(2, 1, 0),
				insts.EncodeADDS(1, 1, 0),
				insts.EncodeSUBS(0, 0, 2),
				insts.EncodeBCond(insts.CondNE, -8),
				insts.EncodeHLT(),
			)

			Expect(e.Run()).To(Succeed())
			Expect(e.RegFile().X[1]).To(Equal(uint64(15)))
			Expect(e.RegFile().X[0]).To(BeZero())
		})

		It("should call and return through BL and RET", func() {
			load(
				insts.EncodeBL(12),
				insts.EncodeMOVZ(5, 9, 0),
				insts.EncodeHLT(),
				insts.EncodeMOVZ(6, 3, 0),
				insts.EncodeRET(insts.LR),
			)

			Expect(e.Run()).To(Succeed())
			Expect(e.RegFile().X[6]).To(Equal(uint64(3)))
			Expect(e.RegFile().X[5]).To(Equal(uint64(9)))
		})

		It("should halt on return to the caller sentinel", func() {
			load(insts.EncodeRET(insts.LR))

			res := e.Step()

			Expect(res.Halted).To(BeTrue())
			Expect(e.RegFile().PC).To(Equal(retAddr))
		})

		It("should fail on an unknown instruction", func() {
			load(0x00000000)

			Expect(e.Step().Err).To(HaveOccurred())
		})

		It("should stop at the instruction limit", func() {
			e = emu.NewEmulator(emu.WithMaxInstructions(2))
			load(insts.EncodeB(0))

			Expect(e.Run()).To(MatchError(emu.ErrMaxInstructions))
			Expect(e.InstructionCount()).To(Equal(uint64(2)))
		})
	})
})
