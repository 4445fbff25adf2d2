// Package chandir manages the on-disk channel directory: per-channel
// unixpacket listening sockets, their accepted clients, and the
// human-readable .index file mirroring the current channel set, per
// spec.md §4.3. Sockets are raw fds (not net.UnixListener/net.UnixConn)
// so the engine can poll(2) them directly alongside the UART fd.
package chandir

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/elmlink/elmlinkd/internal/frame"
	"github.com/elmlink/elmlinkd/internal/index"
	"github.com/elmlink/elmlinkd/internal/logging"
	"github.com/elmlink/elmlinkd/internal/metrics"
)

// socketPerm is the default permission applied to channel sockets:
// world read/write/execute, per spec.md §6 ("mode 0777 (or configured)").
const socketPerm = 0o777

// listenBacklog is the spec's arbitrary admission throttle (Design Note
// "listener backlog of 1"); MaxClientsPerChannel is the real bound.
const listenBacklog = 1

// Client is one connected peer on a channel's socket.
type Client struct {
	FD      int
	Out     []*frame.Buf
	OutSize int
}

// Channel is one instantiated channel: its listening socket and its
// currently connected clients.
type Channel struct {
	Number   uint8
	Name     string
	ListenFD int
	Clients  []*Client
}

// Config is the directory's mutable state: where sockets live, the UART
// parameters recorded in .index, and the live channel set.
type Config struct {
	SocketDir string
	UARTPath  string
	Baud      int

	Channels map[uint8]*Channel
}

// NewConfig returns an empty directory rooted at socketDir.
func NewConfig(socketDir, uartPath string, baud int) *Config {
	return &Config{
		SocketDir: socketDir,
		UARTPath:  uartPath,
		Baud:      baud,
		Channels:  make(map[uint8]*Channel),
	}
}

// Resync reconciles the live channel set against a freshly parsed index,
// implementing spec.md §4.3 steps 1-4 in order. It is only ever called
// from the engine's Setup phase, never mid-iteration.
func Resync(cfg *Config, idx index.Index) error {
	metrics.IncIndexResync()

	// Step 1: create or rename-via-destroy channels named in the index.
	for num, name := range idx {
		if num == 0 {
			continue
		}
		existing, ok := cfg.Channels[num]
		if ok && existing.Name != name {
			destroy(cfg, existing)
			ok = false
		}
		if !ok {
			if num >= 0x80 {
				logging.L().Warn("channel_rejected", "number", num, "name", name, "reason", "number >= 0x80")
				continue
			}
			ch, err := create(cfg, num, name)
			if err != nil {
				logging.L().Error("channel_create_failed", "number", num, "name", name, "error", err)
				metrics.IncError(metrics.ErrListen)
				continue
			}
			cfg.Channels[num] = ch
		}
	}

	// Step 2: destroy anything no longer named by the index.
	for num, ch := range cfg.Channels {
		if _, ok := idx[num]; !ok {
			destroy(cfg, ch)
			delete(cfg.Channels, num)
		}
	}

	metrics.SetChannelsActive(len(cfg.Channels))

	if err := writeIndexFile(cfg); err != nil {
		return err
	}
	return sweepStaleFiles(cfg)
}

func create(cfg *Config, num uint8, name string) (*Channel, error) {
	path := filepath.Join(cfg.SocketDir, name)
	_ = os.Remove(path) // stale socket from a prior crash; bind would otherwise fail

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_SEQPACKET|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("chandir: socket: %w", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("chandir: bind %s: %w", path, err)
	}
	if err := os.Chmod(path, socketPerm); err != nil {
		unix.Close(fd)
		_ = os.Remove(path)
		return nil, fmt.Errorf("chandir: chmod %s: %w", path, err)
	}
	if err := unix.Listen(fd, listenBacklog); err != nil {
		unix.Close(fd)
		_ = os.Remove(path)
		return nil, fmt.Errorf("chandir: listen %s: %w", path, err)
	}

	return &Channel{Number: num, Name: name, ListenFD: fd}, nil
}

func destroy(cfg *Config, ch *Channel) {
	for _, c := range ch.Clients {
		for _, b := range c.Out {
			b.Release()
		}
		_ = unix.Close(c.FD)
	}
	ch.Clients = nil
	if ch.ListenFD >= 0 {
		_ = unix.Close(ch.ListenFD)
	}
	_ = os.Remove(filepath.Join(cfg.SocketDir, ch.Name))
}

// writeIndexFile atomically rewrites <socket_dir>/.index (spec.md §4.3
// step 3): write the temp file, then rename over the live one. If the
// temp file can't be created, any stale .index is unlinked rather than
// left around as a misleadingly-named handle (Design Note "fopen return
// check": never treat an unopenable file as usable).
func writeIndexFile(cfg *Config) error {
	tmp := filepath.Join(cfg.SocketDir, ".index~")
	live := filepath.Join(cfg.SocketDir, ".index")

	f, err := os.Create(tmp)
	if err != nil {
		_ = os.Remove(live)
		return fmt.Errorf("chandir: create %s: %w", tmp, err)
	}

	if _, err := fmt.Fprintf(f, "UART %s %d\n", cfg.UARTPath, cfg.Baud); err != nil {
		f.Close()
		return err
	}
	for _, n := range sortedNumbers(cfg.Channels) {
		ch := cfg.Channels[n]
		if _, err := fmt.Fprintf(f, "CHANNEL %d %s\n", ch.Number, ch.Name); err != nil {
			f.Close()
			return err
		}
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, live)
}

// sweepStaleFiles unlinks anything in SocketDir that isn't ".", "..",
// ".index", ".index~", or a currently known channel name (spec.md §4.3
// step 4).
func sweepStaleFiles(cfg *Config) error {
	entries, err := os.ReadDir(cfg.SocketDir)
	if err != nil {
		return fmt.Errorf("chandir: readdir %s: %w", cfg.SocketDir, err)
	}
	known := make(map[string]bool, len(cfg.Channels)+2)
	known[".index"] = true
	known[".index~"] = true
	for _, ch := range cfg.Channels {
		known[ch.Name] = true
	}
	for _, e := range entries {
		name := e.Name()
		if known[name] {
			continue
		}
		if err := os.Remove(filepath.Join(cfg.SocketDir, name)); err != nil {
			logging.L().Warn("stale_file_unlink_failed", "name", name, "error", err)
		}
	}
	return nil
}

func sortedNumbers(m map[uint8]*Channel) []uint8 {
	out := make([]uint8, 0, len(m))
	for n := range m {
		out = append(out, n)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}
