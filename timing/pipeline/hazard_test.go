package pipeline_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/legsim/insts"
	"github.com/sarchlab/legsim/timing/pipeline"
)

func producer(dst uint8, valEx uint64) pipeline.Instr {
	i := pipeline.Bubble()
	i.Valid = true
	i.Dst = dst
	i.ValEx = valEx
	i.W.Enable = true
	return i
}

func load(dst uint8, valMem uint64) pipeline.Instr {
	i := producer(dst, 0)
	i.ValMem = valMem
	i.M.Read = true
	i.W.WValSel = true
	return i
}

func consumer(src1, src2 uint8) pipeline.Instr {
	i := pipeline.Bubble()
	i.Valid = true
	i.Src1 = src1
	i.Src2 = src2
	return i
}

var _ = Describe("HazardUnit", func() {
	var (
		hazardUnit *pipeline.HazardUnit
		none       pipeline.Instr
	)

	BeforeEach(func() {
		hazardUnit = pipeline.NewHazardUnit()
		none = pipeline.Bubble()
	})

	Describe("Forward", func() {
		It("should not forward when nothing writes the register", func() {
			_, ok := hazardUnit.Forward(1, producer(2, 5), none, none)
			Expect(ok).To(BeFalse())
		})

		It("should forward from execute first", func() {
			v, ok := hazardUnit.Forward(1, producer(1, 10), producer(1, 20), producer(1, 30))
			Expect(ok).To(BeTrue())
			Expect(v).To(Equal(uint64(10)))
		})

		It("should forward from memory before write-back", func() {
			v, ok := hazardUnit.Forward(1, none, producer(1, 20), producer(1, 30))
			Expect(ok).To(BeTrue())
			Expect(v).To(Equal(uint64(20)))
		})

		It("should forward from write-back", func() {
			wOut := producer(1, 0)
			wOut.WVal = 30

			v, ok := hazardUnit.Forward(1, none, none, wOut)
			Expect(ok).To(BeTrue())
			Expect(v).To(Equal(uint64(30)))
		})

		It("should forward loaded data from memory", func() {
			v, ok := hazardUnit.Forward(1, none, load(1, 99), none)
			Expect(ok).To(BeTrue())
			Expect(v).To(Equal(uint64(99)))
		})

		It("should skip a load still in execute", func() {
			v, ok := hazardUnit.Forward(1, load(1, 0), producer(1, 20), none)
			Expect(ok).To(BeTrue())
			Expect(v).To(Equal(uint64(20)))
		})

		It("should never forward the zero register", func() {
			_, ok := hazardUnit.Forward(insts.XZR, producer(insts.XZR, 7), none, none)
			Expect(ok).To(BeFalse())
		})

		It("should ignore bubbles", func() {
			x := producer(1, 10)
			x.Valid = false

			_, ok := hazardUnit.Forward(1, x, none, none)
			Expect(ok).To(BeFalse())
		})

		It("should ignore instructions that do not write back", func() {
			x := producer(1, 10)
			x.W.Enable = false

			_, ok := hazardUnit.Forward(1, x, none, none)
			Expect(ok).To(BeFalse())
		})
	})

	Describe("DetectLoadUse", func() {
		It("should detect a use of the loaded register as either source", func() {
			Expect(hazardUnit.DetectLoadUse(load(3, 0), consumer(3, insts.XZR))).To(BeTrue())
			Expect(hazardUnit.DetectLoadUse(load(3, 0), consumer(insts.XZR, 3))).To(BeTrue())
		})

		It("should ignore unrelated registers", func() {
			Expect(hazardUnit.DetectLoadUse(load(3, 0), consumer(4, 5))).To(BeFalse())
		})

		It("should ignore loads into the zero register", func() {
			Expect(hazardUnit.DetectLoadUse(load(insts.XZR, 0), consumer(insts.XZR, insts.XZR))).To(BeFalse())
		})

		It("should ignore non-loads", func() {
			Expect(hazardUnit.DetectLoadUse(producer(3, 0), consumer(3, 3))).To(BeFalse())
		})
	})

	Describe("Classify", func() {
		var bcond, notTaken pipeline.Instr

		BeforeEach(func() {
			bcond = consumer(insts.XZR, insts.XZR)
			bcond.Op = insts.OpBCond
			notTaken = bcond
			notTaken.CondHolds = false
		})

		It("should do nothing without a hazard", func() {
			d := hazardUnit.Classify(false, none, none, none)

			Expect(d.Kind).To(Equal(pipeline.HazardNone))
			Expect(d.Stall).To(Equal([pipeline.NumStages]bool{}))
			Expect(d.Bubble).To(Equal([pipeline.NumStages]bool{}))
		})

		It("should freeze everything but write-back on a memory stall", func() {
			d := hazardUnit.Classify(true, load(3, 0), none, consumer(3, 3))

			Expect(d.Kind).To(Equal(pipeline.HazardMemStall))
			Expect(d.Stall).To(Equal([pipeline.NumStages]bool{true, true, true, true, false}))
			Expect(d.Bubble).To(Equal([pipeline.NumStages]bool{false, false, false, false, true}))
		})

		It("should stall fetch and decode on a load-use hazard", func() {
			d := hazardUnit.Classify(false, load(3, 0), none, consumer(3, 3))

			Expect(d.Kind).To(Equal(pipeline.HazardLoadUse))
			Expect(d.Stall).To(Equal([pipeline.NumStages]bool{true, true, false, false, false}))
			Expect(d.Bubble).To(Equal([pipeline.NumStages]bool{false, false, true, false, false}))
		})

		It("should squash two slots on a misprediction", func() {
			d := hazardUnit.Classify(false, bcond, notTaken, none)

			Expect(d.Kind).To(Equal(pipeline.HazardMispredict))
			Expect(d.Stall).To(Equal([pipeline.NumStages]bool{}))
			Expect(d.Bubble).To(Equal([pipeline.NumStages]bool{false, true, true, false, false}))
		})

		It("should not squash a taken branch", func() {
			taken := bcond
			taken.CondHolds = true

			d := hazardUnit.Classify(false, bcond, taken, none)

			Expect(d.Kind).To(Equal(pipeline.HazardNone))
		})

		It("should bubble behind a return", func() {
			ret := consumer(insts.LR, insts.XZR)
			ret.Op = insts.OpRET

			d := hazardUnit.Classify(false, none, none, ret)

			Expect(d.Kind).To(Equal(pipeline.HazardReturn))
			Expect(d.Bubble).To(Equal([pipeline.NumStages]bool{false, true, false, false, false}))
		})

		It("should bubble behind a halt", func() {
			hlt := consumer(insts.XZR, insts.XZR)
			hlt.Op = insts.OpHLT
			hlt.Halt = true

			Expect(hazardUnit.Classify(false, none, none, hlt).Kind).To(Equal(pipeline.HazardReturn))
		})

		It("should apply only the highest priority hazard", func() {
			ret := consumer(insts.LR, insts.XZR)
			ret.Op = insts.OpRET

			Expect(hazardUnit.Classify(true, bcond, notTaken, ret).Kind).
				To(Equal(pipeline.HazardMemStall))
			Expect(hazardUnit.Classify(false, bcond, notTaken, ret).Kind).
				To(Equal(pipeline.HazardMispredict))
		})
	})

	It("should name hazard kinds", func() {
		Expect(pipeline.HazardLoadUse.String()).To(Equal("load-use"))
		Expect(pipeline.HazardKind(42).String()).To(Equal("?"))
	})
})
