package cache_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/legsim/emu"
	"github.com/sarchlab/legsim/timing/cache"
)

var _ = Describe("Cache", func() {
	var (
		c       *cache.Cache
		memory  *emu.Memory
		backing *cache.MemoryBacking
	)

	// access mimics the memory access layer: probe, fill on a miss with
	// write-back of a dirty victim, then touch the data.
	access := func(addr uint64, op cache.Op) bool {
		hit := c.HitTest(addr, op)
		if !hit {
			blockAddr := c.BlockAddr(addr)
			ev := c.Fill(addr, op, backing.Read(blockAddr, c.Config().BlockSize()))
			if ev.NeedsWriteback() {
				backing.Write(ev.Addr, ev.Data)
			}
		}
		return hit
	}

	BeforeEach(func() {
		memory = emu.NewMemory()
		backing = cache.NewMemoryBacking(memory)
		// 2 sets, 2 ways, 16-byte lines. Set 0: 0x00, 0x20, 0x40...
		c = cache.New(cache.Config{
			SetBits:       1,
			BlockBits:     4,
			Associativity: 2,
			Latency:       0,
		}, backing)
	})

	Describe("Config", func() {
		It("should derive the geometry", func() {
			cfg := c.Config()

			Expect(cfg.NumSets()).To(Equal(2))
			Expect(cfg.BlockSize()).To(Equal(16))
			Expect(cfg.Capacity()).To(Equal(64))
			Expect(cfg.Validate()).To(Succeed())
		})

		It("should reject impossible geometries", func() {
			Expect(cache.Config{SetBits: 1, BlockBits: 4}.Validate()).To(HaveOccurred())
			Expect(cache.Config{SetBits: -1, Associativity: 1}.Validate()).To(HaveOccurred())
			Expect(cache.Config{Associativity: 1, Latency: -2}.Validate()).To(HaveOccurred())
			Expect(cache.DefaultConfig().Validate()).To(Succeed())
		})

		It("should reject geometries an 8-byte access cannot fit in", func() {
			Expect(cache.Config{SetBits: 0, BlockBits: 3, Associativity: 1}.Validate()).
				To(MatchError(ContainSubstring("associativity is 1")))
			Expect(cache.Config{SetBits: 1, BlockBits: 0, Associativity: 2}.Validate()).To(HaveOccurred())
			Expect(cache.Config{SetBits: 0, BlockBits: 3, Associativity: 2}.Validate()).To(Succeed())
			Expect(cache.Config{SetBits: 1, BlockBits: 3, Associativity: 1}.Validate()).To(Succeed())
			Expect(cache.Config{SetBits: 3, BlockBits: 0, Associativity: 1}.Validate()).To(Succeed())
		})

		It("should reject caches too large to allocate", func() {
			Expect(cache.Config{SetBits: 20, BlockBits: 16, Associativity: 1}.Validate()).
				To(MatchError(ContainSubstring("exceeds")))
			Expect(cache.Config{SetBits: 12, BlockBits: 16, Associativity: 1 << 30}.Validate()).
				To(HaveOccurred())
			Expect(cache.Config{SetBits: 12, BlockBits: 12, Associativity: 16}.Validate()).To(Succeed())
		})

		It("should split addresses into tag, set and offset", func() {
			Expect(c.SetIndex(0x30)).To(Equal(1))
			Expect(c.SetIndex(0x40)).To(Equal(0))
			Expect(c.TagOf(0x47)).To(Equal(uint64(2)))
			Expect(c.BlockAddr(0x47)).To(Equal(uint64(0x40)))
		})
	})

	Describe("HitTest", func() {
		It("should miss on a cold cache without changing any line", func() {
			before := c.Lines()

			Expect(c.HitTest(0x1000, cache.Read)).To(BeFalse())

			Expect(c.Lines()).To(Equal(before))
			Expect(c.Stats().Misses).To(Equal(uint64(1)))
		})

		It("should hit every byte of a filled block", func() {
			c.Fill(0x20, cache.Read, nil)

			for a := uint64(0x20); a < 0x30; a++ {
				Expect(c.HitTest(a, cache.Read)).To(BeTrue())
			}
			Expect(c.HitTest(0x30, cache.Read)).To(BeFalse())
		})

		It("should mark the line dirty on a write hit", func() {
			c.Fill(0x20, cache.Read, nil)
			line, _ := c.Lookup(0x20)
			Expect(line.Dirty).To(BeFalse())

			c.HitTest(0x24, cache.Write)

			line, _ = c.Lookup(0x20)
			Expect(line.Dirty).To(BeTrue())
		})

		It("should keep hits plus misses equal to probes", func() {
			probes := 0
			for _, a := range []uint64{0x00, 0x08, 0x20, 0x40, 0x00, 0x10, 0x18, 0x40} {
				access(a, cache.Read)
				probes++
			}

			stats := c.Stats()
			Expect(stats.Hits + stats.Misses).To(Equal(uint64(probes)))
		})
	})

	Describe("Lookup", func() {
		It("should not refresh recency", func() {
			access(0x00, cache.Read)
			access(0x20, cache.Read)

			_, ok := c.Lookup(0x00)
			Expect(ok).To(BeTrue())

			// 0x00 is still least recently used and gets replaced.
			access(0x40, cache.Read)
			_, ok = c.Lookup(0x00)
			Expect(ok).To(BeFalse())
		})
	})

	Describe("Capacity", func() {
		It("should never hold more than E lines per set", func() {
			for _, a := range []uint64{0x00, 0x20, 0x40, 0x60, 0x80} {
				access(a, cache.Read)
			}

			valid := 0
			for _, l := range c.Lines() {
				if l.Valid && l.SetID == 0 {
					valid++
				}
			}
			Expect(valid).To(Equal(2))
			Expect(c.Stats().CleanEvictions).To(Equal(uint64(3)))
		})
	})

	Describe("LRU replacement", func() {
		It("should evict the least recently used line", func() {
			access(0x00, cache.Read) // A
			access(0x20, cache.Read) // B
			access(0x00, cache.Read) // A again, B is now LRU

			victim := c.SelectVictim(0x40)
			Expect(victim.Tag).To(Equal(c.TagOf(0x20)))

			access(0x40, cache.Read) // C replaces B

			_, okA := c.Lookup(0x00)
			_, okB := c.Lookup(0x20)
			_, okC := c.Lookup(0x40)
			Expect(okA).To(BeTrue())
			Expect(okB).To(BeFalse())
			Expect(okC).To(BeTrue())
		})

		It("should prefer an invalid line without charging an eviction", func() {
			access(0x00, cache.Read)

			victim := c.SelectVictim(0x20)

			Expect(victim.Valid).To(BeFalse())
			Expect(c.Stats().Evictions()).To(BeZero())
		})

		It("should order lines by last access", func() {
			access(0x00, cache.Read)
			access(0x20, cache.Read)

			a, _ := c.Lookup(0x00)
			b, _ := c.Lookup(0x20)
			Expect(a.LastAccess).To(BeNumerically("<", b.LastAccess))
		})
	})

	Describe("Fill", func() {
		It("should report an empty way as an invalid eviction", func() {
			ev := c.Fill(0x00, cache.Read, nil)

			Expect(ev.Valid).To(BeFalse())
			Expect(ev.NeedsWriteback()).To(BeFalse())
		})

		It("should reconstruct the evicted block address", func() {
			c.Fill(0x30, cache.Write, nil)
			c.Fill(0x70, cache.Read, nil)

			ev := c.Fill(0xB0, cache.Read, nil)

			Expect(ev.Valid).To(BeTrue())
			Expect(ev.Dirty).To(BeTrue())
			Expect(ev.Addr).To(Equal(uint64(0x30)))
			Expect(c.Stats().DirtyEvictions).To(Equal(uint64(1)))
		})

		It("should copy the supplied block", func() {
			block := make([]byte, 16)
			block[3] = 0xAB

			c.Fill(0x100, cache.Read, block)

			Expect(c.Read(0x103, 1)).To(Equal(uint64(0xAB)))
		})
	})

	Describe("Write-back", func() {
		It("should write a dirty victim back before replacing it", func() {
			access(0x00, cache.Write)
			c.WriteWord(0x00, 0x1122334455667788)
			access(0x20, cache.Read)

			Expect(memory.Read64(0x00)).To(BeZero())

			access(0x40, cache.Read)

			Expect(memory.Read64(0x00)).To(Equal(uint64(0x1122334455667788)))
		})

		It("should see the written value again after eviction and refill", func() {
			access(0x08, cache.Write)
			c.Write(0x08, 2, 0xBEEF)
			access(0x28, cache.Read)
			access(0x48, cache.Read)
			access(0x08, cache.Read)

			Expect(c.Read(0x08, 2)).To(Equal(uint64(0xBEEF)))
		})

		It("should not write back clean victims", func() {
			memory.Write64(0x00, 7)
			access(0x00, cache.Read)
			access(0x20, cache.Read)
			access(0x40, cache.Read)

			Expect(memory.Read64(0x00)).To(Equal(uint64(7)))
			Expect(c.Stats().CleanEvictions).To(Equal(uint64(1)))
		})
	})

	Describe("Word accessors", func() {
		It("should round-trip every width", func() {
			c.Fill(0x00, cache.Write, nil)

			c.Write(0x00, 1, 0x1FF)
			c.Write(0x02, 2, 0xABCD)
			c.Write(0x04, 4, 0x01020304)
			c.WriteWord(0x08, 0xCAFEBABEDEADBEEF)

			Expect(c.Read(0x00, 1)).To(Equal(uint64(0xFF)))
			Expect(c.Read(0x02, 2)).To(Equal(uint64(0xABCD)))
			Expect(c.Read(0x04, 4)).To(Equal(uint64(0x01020304)))
			Expect(c.ReadWord(0x08)).To(Equal(uint64(0xCAFEBABEDEADBEEF)))
		})

		It("should span two resident lines", func() {
			c.Fill(0x00, cache.Write, nil)
			c.Fill(0x10, cache.Write, nil)

			c.WriteWord(0x0C, 0x0807060504030201)

			Expect(c.ReadWord(0x0C)).To(Equal(uint64(0x0807060504030201)))
			Expect(c.Read(0x10, 1)).To(Equal(uint64(0x05)))
		})

		It("should panic on a non-resident access", func() {
			Expect(func() { c.ReadWord(0x500) }).To(Panic())
		})
	})

	Describe("Flush", func() {
		It("should write back all dirty blocks and invalidate", func() {
			access(0x00, cache.Write)
			c.WriteWord(0x00, 0x11111111)
			access(0x10, cache.Write)
			c.WriteWord(0x10, 0x22222222)

			Expect(memory.Read64(0x00)).To(BeZero())

			Expect(c.Flush()).To(Equal(2))

			Expect(memory.Read64(0x00)).To(Equal(uint64(0x11111111)))
			Expect(memory.Read64(0x10)).To(Equal(uint64(0x22222222)))
			_, ok := c.Lookup(0x00)
			Expect(ok).To(BeFalse())
			Expect(c.Stats().Writebacks).To(Equal(uint64(2)))
		})
	})

	Describe("Reset", func() {
		It("should drop all lines and statistics", func() {
			access(0x00, cache.Write)

			c.Reset()

			_, ok := c.Lookup(0x00)
			Expect(ok).To(BeFalse())
			Expect(c.Stats()).To(Equal(cache.Statistics{}))
		})
	})
})
