// Command elmsend is the one-shot low-level UART sender utility (spec.md
// §6): it opens the UART directly, serializes exactly one packet, writes
// it, and exits. Argument parsing deliberately has no dependency on
// cmd/elmlinkd - this is meant to work as a standalone diagnostic tool
// even if the daemon's own config layer changes shape.
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/elmlink/elmlinkd/internal/frame"
	"github.com/elmlink/elmlinkd/internal/termio"
)

func main() {
	if len(os.Args) < 5 {
		fmt.Fprintf(os.Stderr, "usage: %s <uart-device-path> <baud> <channel> <hex-byte> [<hex-byte>...]\n", os.Args[0])
		os.Exit(1)
	}

	uartPath := os.Args[1]

	baudN, err := strconv.Atoi(os.Args[2])
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid baud %q: %v\n", os.Args[2], err)
		os.Exit(1)
	}
	baud, err := termio.ParseBaud(baudN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	channel, err := parseByteValue(os.Args[3])
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid channel %q: %v\n", os.Args[3], err)
		os.Exit(1)
	}

	payload := make([]byte, 0, len(os.Args)-4)
	for _, arg := range os.Args[4:] {
		b, err := parseByteValue(arg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid byte %q: %v\n", arg, err)
			os.Exit(1)
		}
		payload = append(payload, byte(b))
	}

	port, err := termio.Open(uartPath, baud)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open %s: %v\n", uartPath, err)
		os.Exit(1)
	}
	defer port.Close()

	packet := frame.Encode(uint8(channel), payload)
	if _, err := port.Write(packet); err != nil {
		fmt.Fprintf(os.Stderr, "write: %v\n", err)
		os.Exit(1)
	}
}

// parseByteValue parses an unsigned integer with an optional 0x/0 prefix
// (base 0, per strconv.ParseUint) and rejects anything above 0xff, per
// spec.md §6.
func parseByteValue(s string) (uint64, error) {
	n, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, err
	}
	if n > 0xff {
		return 0, fmt.Errorf("value %d exceeds 0xff", n)
	}
	return n, nil
}
