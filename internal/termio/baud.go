// Package termio opens and configures the UART device: raw, non-canonical,
// 8N1, non-blocking, per spec.md §4.5. Argument parsing and the meaning of
// the baud figure itself are out of scope (spec.md "Out of scope"); this
// package treats baud selection as an opaque lookup against the one table
// both the daemon and the low-level sender share (Design Note "source
// duplication").
package termio

import "fmt"

// Baud is one of the supported line rates.
type Baud int

const (
	B9600   Baud = 9600
	B19200  Baud = 19200
	B115200 Baud = 115200
)

// supported is the single table both cmd/elmlinkd and cmd/elmsend consult,
// so the two binaries never drift on which rates are legal.
var supported = map[int]Baud{
	9600:   B9600,
	19200:  B19200,
	115200: B115200,
}

// ParseBaud validates an integer baud figure against the supported table.
func ParseBaud(n int) (Baud, error) {
	b, ok := supported[n]
	if !ok {
		return 0, fmt.Errorf("termio: unsupported baud rate %d", n)
	}
	return b, nil
}
