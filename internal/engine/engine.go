// Package engine implements the single-threaded, poll(2)-driven
// multiplex loop described in spec.md §4.4: UART bytes in and out,
// channel-0 index handling, and fair per-iteration client admission and
// service, all within one OS thread and no background goroutines
// (spec.md §5).
package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	"github.com/elmlink/elmlinkd/internal/chandir"
	"github.com/elmlink/elmlinkd/internal/frame"
	"github.com/elmlink/elmlinkd/internal/index"
	"github.com/elmlink/elmlinkd/internal/logging"
	"github.com/elmlink/elmlinkd/internal/metrics"
	"github.com/elmlink/elmlinkd/internal/termio"
)

// port is the subset of termio.Port the engine needs; satisfied by
// termio.Port and by a fake in tests.
type port interface {
	Fd() int
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Engine owns the UART port, the channel directory, and the UART-side
// buffers. It is not safe for concurrent use; it is driven entirely by
// Run, which loops over iterations from a single goroutine.
type Engine struct {
	cfg  Config
	port port
	dir  *chandir.Config

	rxBuf bytes.Buffer // bytes read from the UART awaiting decode
	txBuf []byte       // bytes queued for write to the UART

	lastIndex          index.Index
	resyncRequested    bool
	lastIndexRequestAt time.Time
}

// New resolves the UART path to an absolute path, opens the device, and
// prepares an empty channel directory. The first iteration always performs an initial resync
// (spec.md §4.4 "initial startup").
func New(cfg Config) (*Engine, error) {
	if abs, err := filepath.Abs(cfg.UARTPath); err == nil {
		cfg.UARTPath = abs
	}
	baud, err := termio.ParseBaud(cfg.Baud)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUARTOpen, err)
	}
	p, err := termio.Open(cfg.UARTPath, baud)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUARTOpen, err)
	}
	return newWithPort(cfg, p), nil
}

func newWithPort(cfg Config, p port) *Engine {
	return &Engine{
		cfg:             cfg,
		port:            p,
		dir:             chandir.NewConfig(cfg.SocketDir, cfg.UARTPath, cfg.Baud),
		resyncRequested: true,
	}
}

// Close releases the UART port.
func (e *Engine) Close() error { return e.port.Close() }

// Run drives the engine until ctx is cancelled or an unrecoverable error
// occurs.
func (e *Engine) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := e.iterate(); err != nil {
			return err
		}
	}
}

// iterate runs exactly one Setup/Readiness/Service cycle.
func (e *Engine) iterate() error {
	e.setup()

	fds, refs, timeoutMillis := e.buildPollSet()

	n, err := unix.Poll(fds, timeoutMillis)
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		metrics.IncError(metrics.ErrPoll)
		return fmt.Errorf("%w: %v", ErrPoll, err)
	}
	if n == 0 {
		return nil // nothing ready; next iteration's Setup re-checks the refresh timer
	}

	if fds[0].Revents&unix.POLLIN != 0 {
		e.serviceUARTRead()
	}
	if fds[0].Revents&unix.POLLOUT != 0 {
		e.serviceUARTWrite()
	}
	e.servicePerChannel(fds, refs)

	return nil
}

// setup implements spec.md §4.4's Setup phase.
func (e *Engine) setup() {
	if e.resyncRequested {
		if err := chandir.Resync(e.dir, e.lastIndex); err != nil {
			logging.L().Error("directory_resync_failed", "error", err)
			metrics.IncError(mapErrToMetric(fmt.Errorf("%w: %v", ErrDirectory, err)))
		}
		e.resyncRequested = false
	}
	if time.Since(e.lastIndexRequestAt) >= ChannelIndexRefreshPeriod {
		e.enqueueUART(frame.Encode(0, index.EncodeRequest()))
		e.lastIndexRequestAt = time.Now()
		metrics.IncIndexRequestSent()
	}
}

// fdRef associates a built PollFd with what it represents, so the
// service phase can dispatch on revents without recomputing lookups.
type fdRef struct {
	channel *chandir.Channel
	client  *chandir.Client // nil when this ref is the channel's listener
}

// buildPollSet implements spec.md §4.4's Readiness phase: fds[0] is
// always the UART; the rest are channel listeners and clients, armed
// per the admission and backpressure rules.
func (e *Engine) buildPollSet() ([]unix.PollFd, []fdRef, int) {
	acceptingClientPackets := len(e.txBuf) < MaxUARTSendBuf
	metrics.SetUARTSendBuf(len(e.txBuf))
	if !acceptingClientPackets {
		metrics.IncBackpressureIteration()
	}

	var uartEvents int16 = unix.POLLIN
	if len(e.txBuf) > 0 {
		uartEvents |= unix.POLLOUT
	}
	fds := []unix.PollFd{{Fd: int32(e.port.Fd()), Events: uartEvents}}
	refs := []fdRef{{}}

	totalClients := 0
	for _, num := range sortedChannelNumbers(e.dir.Channels) {
		ch := e.dir.Channels[num]
		totalClients += len(ch.Clients)
		if len(ch.Clients) < MaxClientsPerChannel {
			fds = append(fds, unix.PollFd{Fd: int32(ch.ListenFD), Events: unix.POLLIN})
			refs = append(refs, fdRef{channel: ch})
		}
		for _, c := range ch.Clients {
			var ev int16
			if acceptingClientPackets {
				ev |= unix.POLLIN
			}
			if c.OutSize > 0 {
				ev |= unix.POLLOUT
			}
			fds = append(fds, unix.PollFd{Fd: int32(c.FD), Events: ev})
			refs = append(refs, fdRef{channel: ch, client: c})
		}
	}
	metrics.SetClientsActive(totalClients)

	timeout := time.Until(e.lastIndexRequestAt.Add(ChannelIndexRefreshPeriod))
	if timeout < 0 {
		timeout = 0
	}
	if timeout > pollTimeoutCap {
		timeout = pollTimeoutCap
	}
	return fds, refs, int(timeout / time.Millisecond)
}

// enqueueUART appends an already wire-encoded packet to the UART send
// buffer.
func (e *Engine) enqueueUART(encoded []byte) {
	e.txBuf = append(e.txBuf, encoded...)
	metrics.IncUARTTx()
}

// serviceUARTRead implements spec.md §4.4 Service step 1.
func (e *Engine) serviceUARTRead() {
	var buf [frame.MaxEncodedPayloadLength]byte
	n, err := e.port.Read(buf[:])
	if err != nil {
		if !errors.Is(err, unix.EAGAIN) && !errors.Is(err, unix.EWOULDBLOCK) {
			logging.L().Error("uart_read_failed", "error", err)
			metrics.IncError(metrics.ErrUARTRead)
		}
		return
	}
	if n > 0 {
		e.rxBuf.Write(buf[:n])
	}

	for {
		pkt, ok := frame.DecodeStream(&e.rxBuf)
		if !ok {
			break
		}
		metrics.IncUARTRx()
		e.handleDecodedPacket(pkt)
	}
	frame.CompactBuffer(&e.rxBuf)
}

func (e *Engine) handleDecodedPacket(pkt frame.Packet) {
	if pkt.Channel == 0 {
		e.lastIndex = index.Parse(pkt.Payload)
		e.resyncRequested = true
		return
	}
	ch, ok := e.dir.Channels[pkt.Channel]
	if !ok {
		return // unknown channel: dropped per spec.md §4.4 Service step 1
	}
	if len(ch.Clients) == 0 {
		return
	}
	buf := frame.NewBuf(pkt.Payload)
	// Hold a reference across the fan-out so a drop at one client cannot
	// return the backing array to the pool before later clients retain it.
	buf.Retain()
	for _, c := range ch.Clients {
		buf.Retain()
		enqueueClient(c, buf)
	}
	buf.Release()
}

// serviceUARTWrite implements spec.md §4.4 Service step 2: write at
// most baud/100 bytes (~10ms of wire time) so a single write can never
// block the loop for long even under O_NONBLOCK worst cases.
func (e *Engine) serviceUARTWrite() {
	if len(e.txBuf) == 0 {
		return
	}
	writeCap := e.cfg.Baud / 100
	if writeCap <= 0 {
		writeCap = len(e.txBuf)
	}
	chunk := e.txBuf
	if len(chunk) > writeCap {
		chunk = chunk[:writeCap]
	}
	n, err := e.port.Write(chunk)
	if err != nil {
		if !errors.Is(err, unix.EAGAIN) && !errors.Is(err, unix.EWOULDBLOCK) {
			logging.L().Error("uart_write_failed", "error", err)
			metrics.IncError(metrics.ErrUARTWrite)
		}
		return
	}
	if n > 0 {
		metrics.IncUARTTx()
		e.txBuf = e.txBuf[n:]
	}
}

// servicePerChannel implements spec.md §4.4 Service step 3, in the
// exact fd order buildPollSet produced (listener then each client, per
// channel, in ascending channel-number order).
func (e *Engine) servicePerChannel(fds []unix.PollFd, refs []fdRef) {
	closed := make(map[*chandir.Client]bool)

	for i := 1; i < len(fds); i++ {
		ref := refs[i]
		revents := fds[i].Revents
		if ref.client == nil {
			if revents&unix.POLLIN != 0 {
				e.acceptOne(ref.channel)
			}
			continue
		}
		if revents&unix.POLLIN != 0 {
			if !e.readFromClient(ref.channel, ref.client) {
				closed[ref.client] = true
				continue
			}
		}
		if revents&unix.POLLOUT != 0 && ref.client.OutSize > 0 {
			if !e.writeToClient(ref.client) {
				closed[ref.client] = true
			}
		}
	}

	if len(closed) > 0 {
		pruneClosed(e.dir, closed)
	}
}

func (e *Engine) acceptOne(ch *chandir.Channel) {
	nfd, _, err := unix.Accept4(ch.ListenFD, unix.SOCK_NONBLOCK)
	if err != nil {
		if err != unix.EAGAIN && err != unix.EWOULDBLOCK {
			logging.L().Warn("accept_failed", "channel", ch.Number, "error", err)
			metrics.IncError(metrics.ErrAccept)
		}
		return
	}
	ch.Clients = append(ch.Clients, &chandir.Client{FD: nfd})
}

// readFromClient reads one datagram (one packet per client per
// iteration: the spec's per-loop fairness rule) and serializes it onto
// the UART send buffer. Returns false if the client should be dropped.
func (e *Engine) readFromClient(ch *chandir.Channel, c *chandir.Client) bool {
	var buf [frame.MaxDecodedPacketLength]byte
	n, err := unix.Read(c.FD, buf[:])
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return true
		}
		metrics.IncError(metrics.ErrClientRead)
		return false
	}
	if n == 0 {
		return false // peer closed
	}
	metrics.IncClientRx()
	e.enqueueUART(frame.Encode(ch.Number, buf[:n]))
	return true
}

// writeToClient sends the head-of-queue payload as one datagram.
// Returns false if the client should be dropped (broken pipe).
func (e *Engine) writeToClient(c *chandir.Client) bool {
	head := c.Out[0]
	err := unix.Send(c.FD, head.Bytes(), unix.MSG_DONTWAIT|unix.MSG_NOSIGNAL)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return true
		}
		metrics.IncError(metrics.ErrClientWrite)
		return err != unix.EPIPE // EPIPE: drop; other errors: keep trying next iteration
	}
	metrics.IncClientTx()
	c.OutSize -= head.Len()
	head.Release()
	c.Out = c.Out[1:]
	return true
}

// pruneClosed closes fds and removes closed clients from their
// channels' client lists, releasing any still-queued payload refs.
func pruneClosed(dir *chandir.Config, closed map[*chandir.Client]bool) {
	for _, ch := range dir.Channels {
		kept := ch.Clients[:0]
		for _, c := range ch.Clients {
			if closed[c] {
				for _, b := range c.Out {
					b.Release()
				}
				_ = unix.Close(c.FD)
				continue
			}
			kept = append(kept, c)
		}
		ch.Clients = kept
	}
}
