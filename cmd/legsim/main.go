// Command legsim runs a statically linked AArch64 ELF program on the
// cycle-accurate pipelined core and reports cycle, hazard and cache
// statistics.
//
// Usage:
//
//	legsim [flags] <program.elf>
//	legsim bench [flags]
//
// Configuration is layered: built-in defaults, then the JSON file given by
// --config, then LEGSIM_* variables from the environment and the --env-file
// dotenv file, then flags given on the command line.
//
// Exit codes: 0 halted, 1 simulator error, 2 guest fault, 3 cycle budget
// exhausted.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/tebeka/atexit"
)

// Process exit codes.
const (
	exitHalted     = 0
	exitError      = 1
	exitGuestFault = 2
	exitRunaway    = 3
)

func main() {
	atexit.Exit(execute(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// execute runs the command line args and returns the process exit code.
func execute(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	a := newApp(stdin, stdout, stderr)

	cmd := a.rootCmd()
	cmd.SetArgs(args)
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.Execute()

	if perr := a.prof.stop(); perr != nil {
		fmt.Fprintln(stderr, perr)
		return exitError
	}

	if err != nil {
		return exitError
	}

	return a.exitCode
}
