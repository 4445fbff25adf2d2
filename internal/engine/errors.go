package engine

import (
	"errors"

	"github.com/elmlink/elmlinkd/internal/metrics"
)

// Sentinel errors used for wrapping so callers can classify via errors.Is
// (spec.md §7 "stable error classification").
var (
	ErrUARTOpen    = errors.New("uart_open")
	ErrUARTRead    = errors.New("uart_read")
	ErrUARTWrite   = errors.New("uart_write")
	ErrTermios     = errors.New("termios")
	ErrListen      = errors.New("listen")
	ErrAccept      = errors.New("accept")
	ErrClientRead  = errors.New("client_read")
	ErrClientWrite = errors.New("client_write")
	ErrDirectory   = errors.New("directory")
	ErrPoll        = errors.New("poll")
)

// mapErrToMetric maps a wrapped sentinel error to its Prometheus error
// label, mirroring the teacher's internal/server/errors.go classification.
func mapErrToMetric(err error) string {
	switch {
	case errors.Is(err, ErrUARTOpen):
		return metrics.ErrUARTOpen
	case errors.Is(err, ErrUARTRead):
		return metrics.ErrUARTRead
	case errors.Is(err, ErrUARTWrite):
		return metrics.ErrUARTWrite
	case errors.Is(err, ErrTermios):
		return metrics.ErrTermios
	case errors.Is(err, ErrListen):
		return metrics.ErrListen
	case errors.Is(err, ErrAccept):
		return metrics.ErrAccept
	case errors.Is(err, ErrClientRead):
		return metrics.ErrClientRead
	case errors.Is(err, ErrClientWrite):
		return metrics.ErrClientWrite
	case errors.Is(err, ErrDirectory):
		return metrics.ErrDirectory
	case errors.Is(err, ErrPoll):
		return metrics.ErrPoll
	default:
		return "other"
	}
}
