package benchmarks

import "github.com/sarchlab/legsim/insts"

// GetMicrobenchmarks returns the standard set of microbenchmarks. Each one
// targets a single pipeline or cache behavior and leaves a known value in
// X0.
func GetMicrobenchmarks() []Benchmark {
	return []Benchmark{
		arithmeticIndependent(),
		dependencyChain(),
		loadUseChain(),
		countdownLoop(),
		callReturn(),
		strideWalk(),
		bitManipulation(),
	}
}

// GetCoreBenchmarks returns a minimal set for quick validation: one
// forwarding, one branch and one cache benchmark.
func GetCoreBenchmarks() []Benchmark {
	return []Benchmark{
		dependencyChain(),
		countdownLoop(),
		strideWalk(),
	}
}

// Independent ADDs to five registers. No hazards.
func arithmeticIndependent() Benchmark {
	words := make([]uint32, 0, 21)
	for i := 0; i < 20; i++ {
		r := uint8(i % 5)
		words = append(words, insts.EncodeADDImm(r, r, 1, false))
	}
	words = append(words, insts.EncodeHLT())

	return Benchmark{
		Name:        "arithmetic_independent",
		Description: "20 independent ADDs over 5 registers - measures ideal throughput",
		Program:     words,
		ExpectedX0:  4,
	}
}

// X0 = X0 + 1, twenty times. Every operand is forwarded from execute.
func dependencyChain() Benchmark {
	return Benchmark{
		Name:        "dependency_chain",
		Description: "20 dependent ADDs - every operand comes from the forwarding network",
		Program:     buildDependencyChain(20),
		ExpectedX0:  20,
	}
}

func buildDependencyChain(n int) []uint32 {
	words := make([]uint32, 0, n+1)
	for i := 0; i < n; i++ {
		words = append(words, insts.EncodeADDImm(0, 0, 1, false))
	}
	return append(words, insts.EncodeHLT())
}

// A value stored on the stack is reloaded and consumed right away eight
// times, costing one load-use stall each.
func loadUseChain() Benchmark {
	words := []uint32{
		insts.EncodeMOVZ(1, 5, 0),
		insts.EncodeSTUR(1, insts.XZR, -8),
	}
	for i := 0; i < 8; i++ {
		words = append(words,
			insts.EncodeLDUR(2, insts.XZR, -8),
			insts.EncodeADDS(0, 0, 2),
		)
	}
	words = append(words, insts.EncodeHLT())

	return Benchmark{
		Name:        "load_use_chain",
		Description: "8 loads each consumed by the next instruction - measures load-use stalls",
		Program:     words,
		ExpectedX0:  40,
	}
}

// Ten iterations of a counted loop. The closing branch is mispredicted
// once, on exit.
func countdownLoop() Benchmark {
	return Benchmark{
		Name:        "countdown_loop",
		Description: "10-iteration counted loop - measures taken-branch prediction",
		Program: []uint32{
			insts.EncodeMOVZ(1, 10, 0),
			insts.EncodeMOVZ(2, 1, 0),
			insts.EncodeADDImm(0, 0, 3, false), // loop
			insts.EncodeSUBS(1, 1, 2),
			insts.EncodeBCond(insts.CondNE, -8),
			insts.EncodeHLT(),
		},
		ExpectedX0: 30,
	}
}

// Four calls to a leaf that increments X0.
func callReturn() Benchmark {
	return Benchmark{
		Name:        "call_return",
		Description: "4 BL/RET pairs - measures return bubbles",
		Program: []uint32{
			insts.EncodeBL(20),
			insts.EncodeBL(16),
			insts.EncodeBL(12),
			insts.EncodeBL(8),
			insts.EncodeHLT(),
			insts.EncodeADDImm(0, 0, 1, false), // leaf
			insts.EncodeRET(insts.LR),
		},
		ExpectedX0: 4,
	}
}

// Sixteen store/load pairs one cache block apart, summing 16..1.
func strideWalk() Benchmark {
	return Benchmark{
		Name:        "stride_walk",
		Description: "16 store/load pairs at a 64-byte stride - measures cold misses",
		Program: []uint32{
			insts.EncodeMOVZ(3, 1, 1), // X3 = 0x10000
			insts.EncodeMOVZ(1, 16, 0),
			insts.EncodeMOVZ(2, 1, 0),
			insts.EncodeSTUR(1, 3, 0), // loop
			insts.EncodeLDUR(4, 3, 0),
			insts.EncodeADDS(0, 0, 4),
			insts.EncodeADDImm(3, 3, 64, false),
			insts.EncodeSUBS(1, 1, 2),
			insts.EncodeBCond(insts.CondNE, -20),
			insts.EncodeHLT(),
		},
		ExpectedX0: 136,
	}
}

// A chain through every shift and logical operation that ends back at
// 0xFF.
func bitManipulation() Benchmark {
	return Benchmark{
		Name:        "bit_manipulation",
		Description: "shift and logical operations - exercises every non-arithmetic ALU op",
		Program: []uint32{
			insts.EncodeMOVZ(1, 0xFF, 0),
			insts.EncodeLSL(2, 1, 8),  // 0xFF00
			insts.EncodeORR(3, 1, 2),  // 0xFFFF
			insts.EncodeEOR(4, 3, 1),  // 0xFF00
			insts.EncodeANDS(5, 4, 2), // 0xFF00
			insts.EncodeLSR(6, 5, 4),  // 0x0FF0
			insts.EncodeMVN(7, 6),
			insts.EncodeASR(8, 7, 4),
			insts.EncodeMVN(0, 8),
			insts.EncodeHLT(),
		},
		ExpectedX0: 0xFF,
	}
}
