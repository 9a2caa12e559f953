package pipeline

import (
	"encoding/binary"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/legsim/emu"
	"github.com/sarchlab/legsim/insts"
	"github.com/sarchlab/legsim/timing/cache"
	"github.com/sarchlab/legsim/timing/dmem"
)

var _ = Describe("Stage evaluation order", func() {
	var (
		regFile *emu.RegFile
		p       *Pipeline
	)

	BeforeEach(func() {
		const entry = 0x400000

		words := []uint32{
			insts.EncodeMOVZ(1, 1, 0),
			insts.EncodeADDImm(2, 1, 1, false),
			insts.EncodeHLT(),
		}
		buf := make([]byte, 4*len(words))
		for i, w := range words {
			binary.LittleEndian.PutUint32(buf[4*i:], w)
		}

		memory := emu.NewMemory()
		memory.LoadProgram(entry, buf)

		regFile = &emu.RegFile{}
		regFile.Reset(entry, 0x7FFF0000, dmem.RetFromMainAddr)

		p = NewPipeline(regFile, dmem.NewPort(cache.NewMemoryBacking(memory)))
	})

	It("should forward the result of the previous instruction", func() {
		outcome, err := p.Run()

		Expect(err).NotTo(HaveOccurred())
		Expect(outcome).To(Equal(OutcomeHalted))
		Expect(regFile.X[2]).To(Equal(uint64(2)))
	})

	It("should read stale operands when stages run front to back", func() {
		p.order = [NumStages]Stage{StageF, StageD, StageX, StageM, StageW}

		outcome, err := p.Run()

		Expect(err).NotTo(HaveOccurred())
		Expect(outcome).To(Equal(OutcomeHalted))
		Expect(regFile.X[2]).To(Equal(uint64(1)))
	})
})
