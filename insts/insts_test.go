package insts_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/legsim/insts"
)

var _ = Describe("Encoders", func() {
	It("should round-trip register operands through Decode", func() {
		inst := insts.Decode(insts.EncodeSUBS(7, 8, 9))

		Expect(inst.Op).To(Equal(insts.OpSUBS))
		Expect(inst.Rd).To(Equal(uint8(7)))
		Expect(inst.Rn).To(Equal(uint8(8)))
		Expect(inst.Rm).To(Equal(uint8(9)))
	})

	It("should match the reference encodings", func() {
		Expect(insts.EncodeADDImm(0, 1, 42, false)).To(Equal(uint32(0x9100A820)))
		Expect(insts.EncodeLDUR(2, 1, -8)).To(Equal(uint32(0xF85F8022)))
		Expect(insts.EncodeSTURB(3, 31, 1)).To(Equal(uint32(0x380013E3)))
		Expect(insts.EncodeMOVZ(5, 0x1234, 1)).To(Equal(uint32(0xD2A24685)))
		Expect(insts.EncodeMOVK(5, 0xBEEF, 3)).To(Equal(uint32(0xF2F7DDE5)))
		Expect(insts.EncodeLSL(1, 2, 4)).To(Equal(uint32(0xD37CEC41)))
		Expect(insts.EncodeLSR(1, 2, 4)).To(Equal(uint32(0xD344FC41)))
		Expect(insts.EncodeASR(1, 2, 4)).To(Equal(uint32(0x9344FC41)))
		Expect(insts.EncodeMVN(3, 4)).To(Equal(uint32(0xAA2403E3)))
		Expect(insts.EncodeB(-8)).To(Equal(uint32(0x17FFFFFE)))
		Expect(insts.EncodeBL(16)).To(Equal(uint32(0x94000004)))
		Expect(insts.EncodeBCond(insts.CondNE, 12)).To(Equal(uint32(0x54000061)))
		Expect(insts.EncodeRET(insts.LR)).To(Equal(uint32(0xD65F03C0)))
	})

	It("should encode every LSL shift as an LSL alias", func() {
		for sh := uint8(1); sh < 64; sh++ {
			inst := insts.Decode(insts.EncodeLSL(0, 1, sh))
			Expect(inst.Op).To(Equal(insts.OpLSL))
			Expect(inst.Imm).To(Equal(int64(sh)))
		}
	})

	It("should name opcodes and conditions", func() {
		Expect(insts.OpBCond.String()).To(Equal("B.cond"))
		Expect(insts.OpError.String()).To(Equal("ERR"))
		Expect(insts.CondGE.String()).To(Equal("GE"))
		Expect(insts.OpLDURB.IsLoad()).To(BeTrue())
		Expect(insts.OpSTUR.IsStore()).To(BeTrue())
		Expect(insts.OpBL.IsBranch()).To(BeTrue())
		Expect(insts.OpRET.IsBranch()).To(BeFalse())
	})
})
