package emu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/legsim/emu"
)

var _ = Describe("Memory", func() {
	var m *emu.Memory

	BeforeEach(func() {
		m = emu.NewMemory()
	})

	It("should read unwritten bytes as zero without allocating", func() {
		Expect(m.Read64(0x1234)).To(BeZero())
		Expect(m.PageCount()).To(BeZero())
	})

	It("should store little-endian values", func() {
		m.Write64(0x1000, 0x0102030405060708)

		Expect(m.Read8(0x1000)).To(Equal(uint8(0x08)))
		Expect(m.Read16(0x1000)).To(Equal(uint16(0x0708)))
		Expect(m.Read32(0x1004)).To(Equal(uint32(0x01020304)))
	})

	It("should handle accesses spanning two pages", func() {
		m.Write64(emu.PageSize-4, 0xAABBCCDDEEFF0011)

		Expect(m.Read64(emu.PageSize - 4)).To(Equal(uint64(0xAABBCCDDEEFF0011)))
		Expect(m.PageCount()).To(Equal(2))
	})

	It("should copy byte ranges", func() {
		m.LoadProgram(0x2000, []byte{1, 2, 3})
		m.Write16(0x2003, 0x0504)

		Expect(m.ReadBytes(0x2000, 5)).To(Equal([]byte{1, 2, 3, 4, 5}))
	})
})
