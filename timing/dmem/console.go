package dmem

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// Console is the character device mapped at IOCharAddr.
//
// Single-byte writes emit the raw character. Wider writes print the value
// as a signed decimal followed by its hexadecimal form, one per line. The
// hexadecimal field is 0x-prefixed and zero-padded to twice the width,
// prefix included. Single-byte reads consume one character; wider reads
// parse one decimal integer.
type Console struct {
	in  *bufio.Reader
	out io.Writer
}

// NewConsole creates a console reading from in and writing to out.
func NewConsole(in io.Reader, out io.Writer) *Console {
	return &Console{in: bufio.NewReader(in), out: out}
}

// NewStdConsole creates a console on the process's standard streams.
func NewStdConsole() *Console {
	return NewConsole(os.Stdin, os.Stdout)
}

// Write emits the low width bytes of value.
func (c *Console) Write(width int, value uint64) error {
	var err error

	switch width {
	case 1:
		_, err = c.out.Write([]byte{byte(value)})
	case 2:
		_, err = fmt.Fprintf(c.out, "%d %s\n", int16(value), prefixedHex(uint64(uint16(value)), 4))
	case 4:
		_, err = fmt.Fprintf(c.out, "%d %s\n", int32(value), prefixedHex(uint64(uint32(value)), 8))
	default:
		_, err = fmt.Fprintf(c.out, "%d %s\n", int64(value), prefixedHex(value, 16))
	}

	return err
}

// prefixedHex formats v as 0x-prefixed hex zero-padded to pad characters,
// the prefix included. Zero has no prefix.
func prefixedHex(v uint64, pad int) string {
	if v == 0 {
		return fmt.Sprintf("%0*d", pad, 0)
	}
	return fmt.Sprintf("0x%0*x", pad-2, v)
}

// Read consumes input for a width-byte load. End of input reads as zero.
func (c *Console) Read(width int) (uint64, error) {
	if width == 1 {
		b, err := c.in.ReadByte()
		if err == io.EOF {
			return 0, nil
		}
		return uint64(b), err
	}

	var v int64
	_, err := fmt.Fscan(c.in, &v)
	if err == io.EOF {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	mask := uint64(1)<<(8*uint(width)) - 1
	if width == 8 {
		mask = ^uint64(0)
	}

	return uint64(v) & mask, nil
}
