// Package main provides the entry point for legsim.
// legsim is a cycle-accurate 5-stage pipelined ARM64 core simulator with a
// set-associative write-back data cache.
//
// For the full CLI, use: go run ./cmd/legsim
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("legsim - pipelined ARM64 core simulator")
	fmt.Println("Data cache built on the Akita cache directory")
	fmt.Println("")
	fmt.Println("Usage: legsim [flags] <program.elf>")
	fmt.Println("       legsim bench [flags]")
	fmt.Println("")
	fmt.Println("Flags:")
	fmt.Println("  -s, --set-bits     Number of set index bits")
	fmt.Println("  -b, --block-bits   Number of block offset bits")
	fmt.Println("  -E, --assoc        Lines per set")
	fmt.Println("  -d, --latency      Miss latency in cycles")
	fmt.Println("      --no-cache     Bypass the data cache")
	fmt.Println("      --debug        Per-cycle trace level (1 or 2)")
	fmt.Println("      --config       JSON configuration file")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/legsim --help' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/legsim' instead.")
	}
}
