package config_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/legsim/timing/cache"
	"github.com/sarchlab/legsim/timing/config"
)

var _ = Describe("Config", func() {
	Describe("Default Config", func() {
		It("should create valid default config", func() {
			c := config.DefaultConfig()

			Expect(c.Validate()).To(Succeed())
			Expect(c.CacheEnabled).To(BeTrue())
			Expect(c.Cache).To(Equal(cache.DefaultConfig()))
			Expect(c.MaxCycles).To(Equal(uint64(1_000_000)))
			Expect(c.DebugLevel).To(BeZero())
		})
	})

	Describe("Validation", func() {
		var c *config.Config

		BeforeEach(func() {
			c = config.DefaultConfig()
		})

		It("should reject a bad cache geometry", func() {
			c.Cache.Associativity = 0
			Expect(c.Validate()).To(MatchError(ContainSubstring("associativity")))
		})

		It("should ignore the cache geometry when the cache is disabled", func() {
			c.Cache.Associativity = 0
			c.CacheEnabled = false
			Expect(c.Validate()).To(Succeed())
		})

		It("should reject a zero cycle budget", func() {
			c.MaxCycles = 0
			Expect(c.Validate()).To(HaveOccurred())
		})

		It("should reject an unknown debug level", func() {
			c.DebugLevel = 3
			Expect(c.Validate()).To(HaveOccurred())
		})
	})

	Describe("Clone", func() {
		It("should create independent copy", func() {
			original := config.DefaultConfig()
			clone := original.Clone()

			clone.Cache.Latency = 100
			clone.TraceDB = "run"

			Expect(original.Cache.Latency).To(Equal(4))
			Expect(original.TraceDB).To(BeEmpty())
			Expect(clone.Cache.Latency).To(Equal(100))
		})
	})

	Describe("File Operations", func() {
		var tempDir string

		BeforeEach(func() {
			var err error
			tempDir, err = os.MkdirTemp("", "config-test")
			Expect(err).NotTo(HaveOccurred())
		})

		AfterEach(func() {
			_ = os.RemoveAll(tempDir)
		})

		It("should save and load config", func() {
			original := config.DefaultConfig()
			original.Cache = cache.Config{SetBits: 2, BlockBits: 5, Associativity: 8, Latency: 10}
			original.DebugLevel = 2

			path := filepath.Join(tempDir, "legsim.json")
			Expect(original.SaveConfig(path)).To(Succeed())

			loaded, err := config.LoadConfig(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(Equal(original))
		})

		It("should keep defaults for missing fields", func() {
			path := filepath.Join(tempDir, "partial.json")
			Expect(os.WriteFile(path, []byte(`{"max_cycles": 50}`), 0644)).To(Succeed())

			loaded, err := config.LoadConfig(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded.MaxCycles).To(Equal(uint64(50)))
			Expect(loaded.Cache).To(Equal(cache.DefaultConfig()))
			Expect(loaded.CacheEnabled).To(BeTrue())
		})

		It("should return error for non-existent file", func() {
			_, err := config.LoadConfig("/nonexistent/path/legsim.json")
			Expect(err).To(HaveOccurred())
		})

		It("should return error for invalid JSON", func() {
			path := filepath.Join(tempDir, "invalid.json")
			err := os.WriteFile(path, []byte("not valid json"), 0644)
			Expect(err).NotTo(HaveOccurred())

			_, err = config.LoadConfig(path)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Environment", func() {
		It("should override fields from LEGSIM variables", func() {
			c := config.DefaultConfig()

			err := c.ApplyEnv(map[string]string{
				"LEGSIM_SET_BITS":      "3",
				"LEGSIM_BLOCK_BITS":    "5",
				"LEGSIM_ASSOCIATIVITY": "2",
				"LEGSIM_LATENCY":       " 7 ",
				"LEGSIM_CACHE_ENABLED": "false",
				"LEGSIM_MAX_CYCLES":    "1234",
				"LEGSIM_DEBUG_LEVEL":   "1",
				"LEGSIM_TRACE_DB":      "trace",
				"HOME":                 "/root",
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(c.Cache).To(Equal(cache.Config{SetBits: 3, BlockBits: 5, Associativity: 2, Latency: 7}))
			Expect(c.CacheEnabled).To(BeFalse())
			Expect(c.MaxCycles).To(Equal(uint64(1234)))
			Expect(c.DebugLevel).To(Equal(1))
			Expect(c.TraceDB).To(Equal("trace"))
		})

		It("should reject malformed numbers", func() {
			c := config.DefaultConfig()

			Expect(c.ApplyEnv(map[string]string{"LEGSIM_LATENCY": "four"})).
				To(MatchError(ContainSubstring("LEGSIM_LATENCY")))
			Expect(c.ApplyEnv(map[string]string{"LEGSIM_MAX_CYCLES": "-1"})).
				To(HaveOccurred())
			Expect(c.ApplyEnv(map[string]string{"LEGSIM_CACHE_ENABLED": "maybe"})).
				To(HaveOccurred())
		})

		It("should read dotenv files under the process environment", func() {
			dir, err := os.MkdirTemp("", "config-env")
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(os.RemoveAll, dir)

			path := filepath.Join(dir, ".env")
			Expect(os.WriteFile(path,
				[]byte("LEGSIM_LATENCY=9\nLEGSIM_TEST_OVERRIDDEN=file\n"), 0644)).To(Succeed())
			GinkgoT().Setenv("LEGSIM_TEST_OVERRIDDEN", "process")

			env, err := config.LoadEnv(filepath.Join(dir, "missing.env"), path)

			Expect(err).NotTo(HaveOccurred())
			Expect(env).To(HaveKeyWithValue("LEGSIM_LATENCY", "9"))
			Expect(env).To(HaveKeyWithValue("LEGSIM_TEST_OVERRIDDEN", "process"))
		})
	})
})
