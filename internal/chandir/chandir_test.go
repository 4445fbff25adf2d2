package chandir

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/elmlink/elmlinkd/internal/index"
)

func TestResync_CreatesListenersAndIndexFile(t *testing.T) {
	dir := t.TempDir()
	cfg := NewConfig(dir, "/dev/ttyUSB0", 115200)

	if err := Resync(cfg, index.Index{1: "telemetry", 2: "gps"}); err != nil {
		t.Fatalf("Resync: %v", err)
	}
	if len(cfg.Channels) != 2 {
		t.Fatalf("got %d channels, want 2", len(cfg.Channels))
	}
	for _, name := range []string{"telemetry", "gps"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("expected socket %s: %v", name, err)
		}
	}
	data, err := os.ReadFile(filepath.Join(dir, ".index"))
	if err != nil {
		t.Fatalf("reading .index: %v", err)
	}
	if string(data[:5]) != "UART " {
		t.Fatalf(".index does not start with UART line: %q", data)
	}
}

func TestResync_DestroysDroppedChannels(t *testing.T) {
	dir := t.TempDir()
	cfg := NewConfig(dir, "/dev/ttyUSB0", 9600)

	if err := Resync(cfg, index.Index{1: "telemetry"}); err != nil {
		t.Fatalf("first Resync: %v", err)
	}
	if err := Resync(cfg, index.Index{}); err != nil {
		t.Fatalf("second Resync: %v", err)
	}
	if len(cfg.Channels) != 0 {
		t.Fatalf("expected all channels destroyed, got %v", cfg.Channels)
	}
	if _, err := os.Stat(filepath.Join(dir, "telemetry")); !os.IsNotExist(err) {
		t.Fatalf("expected telemetry socket to be unlinked, stat err = %v", err)
	}
}

func TestResync_RenameDestroysBeforeRecreate(t *testing.T) {
	dir := t.TempDir()
	cfg := NewConfig(dir, "/dev/ttyUSB0", 9600)

	if err := Resync(cfg, index.Index{1: "old-name"}); err != nil {
		t.Fatalf("first Resync: %v", err)
	}
	if err := Resync(cfg, index.Index{1: "new-name"}); err != nil {
		t.Fatalf("second Resync: %v", err)
	}
	if cfg.Channels[1].Name != "new-name" {
		t.Fatalf("got %q, want new-name", cfg.Channels[1].Name)
	}
	if _, err := os.Stat(filepath.Join(dir, "old-name")); !os.IsNotExist(err) {
		t.Fatalf("expected old-name socket unlinked")
	}
}

func TestResync_RejectsChannelsAtOrAboveMaxChannel(t *testing.T) {
	dir := t.TempDir()
	cfg := NewConfig(dir, "/dev/ttyUSB0", 9600)

	if err := Resync(cfg, index.Index{0x80: "too-high"}); err != nil {
		t.Fatalf("Resync: %v", err)
	}
	if len(cfg.Channels) != 0 {
		t.Fatalf("expected channel 0x80 rejected, got %v", cfg.Channels)
	}
}

func TestResync_SweepsStaleFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "leftover"), []byte("x"), 0o644); err != nil {
		t.Fatalf("seeding stale file: %v", err)
	}
	cfg := NewConfig(dir, "/dev/ttyUSB0", 9600)
	if err := Resync(cfg, index.Index{}); err != nil {
		t.Fatalf("Resync: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "leftover")); !os.IsNotExist(err) {
		t.Fatalf("expected leftover file swept")
	}
}
