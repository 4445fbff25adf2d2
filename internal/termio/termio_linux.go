//go:build linux

package termio

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Port is the minimal interface the engine needs from the UART fd: raw
// reads/writes plus the underlying descriptor, so it can be poll(2)'d
// alongside client sockets.
type Port interface {
	Fd() int
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

type port struct {
	f *os.File
}

func (p *port) Fd() int                     { return int(p.f.Fd()) }
func (p *port) Read(b []byte) (int, error)  { return p.f.Read(b) }
func (p *port) Write(b []byte) (int, error) { return p.f.Write(b) }
func (p *port) Close() error                { return p.f.Close() }

var unixBaud = map[Baud]uint32{
	B9600:   unix.B9600,
	B19200:  unix.B19200,
	B115200: unix.B115200,
}

// Open opens path O_NONBLOCK (so reads/writes never block the single
// engine thread) and puts it into raw, non-canonical, 8N1 mode at baud
// (spec.md §4.5: "opaque terminal-configuration call").
func Open(path string, baud Baud) (Port, error) {
	speed, ok := unixBaud[baud]
	if !ok {
		return nil, fmt.Errorf("termio: unsupported baud %d", baud)
	}

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("termio: open %s: %w", path, err)
	}

	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("termio: get termios: %w", err)
	}

	// cfmakeraw equivalent: disable all input/output processing, line
	// discipline, and parity/translation so bytes pass through untouched.
	// IGNCR is deliberately left out of this clear and set below instead:
	// the peer requires received CR bytes to be dropped on the floor
	// (spec.md §4.5), the opposite of cfmakeraw's usual all-flags-off
	// posture for that bit.
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.ICRNL | unix.IXON
	t.Iflag |= unix.IGNCR
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB
	t.Cflag |= unix.CS8 | unix.CLOCAL | unix.CREAD

	// Non-canonical, fully non-blocking read: return immediately with
	// whatever is available, even zero bytes (VMIN=0, VTIME=0).
	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = 0

	t.Ispeed = speed
	t.Ospeed = speed
	t.Cflag &^= unix.CBAUD
	t.Cflag |= speed & unix.CBAUD

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, t); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("termio: set termios: %w", err)
	}
	if err := unix.IoctlSetInt(fd, unix.TCFLSH, unix.TCIOFLUSH); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("termio: flush: %w", err)
	}

	return &port{f: os.NewFile(uintptr(fd), path)}, nil
}
