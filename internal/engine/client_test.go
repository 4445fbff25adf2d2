package engine

import (
	"testing"

	"github.com/elmlink/elmlinkd/internal/chandir"
	"github.com/elmlink/elmlinkd/internal/frame"
	"github.com/elmlink/elmlinkd/internal/metrics"
)

func TestEnqueueClient_DropsPastSendBufBound(t *testing.T) {
	c := &chandir.Client{}

	big := make([]byte, MaxClientSendBuf)
	bigBuf := frame.NewBuf(big)
	bigBuf.Retain()
	enqueueClient(c, bigBuf)
	if c.OutSize != len(big) {
		t.Fatalf("OutSize = %d, want %d", c.OutSize, len(big))
	}

	before := metrics.Snap().ClientDrops
	extra := frame.NewBuf([]byte("one more byte pushes past the bound"))
	extra.Retain()
	enqueueClient(c, extra)
	if c.OutSize != len(big) {
		t.Fatalf("OutSize changed after a drop: got %d, want %d", c.OutSize, len(big))
	}
	if len(c.Out) != 1 {
		t.Fatalf("expected the dropped buffer to not be queued, got %d entries", len(c.Out))
	}
	after := metrics.Snap().ClientDrops
	if after <= before {
		t.Fatalf("expected client-drop metric increment, before=%d after=%d", before, after)
	}
}

func TestSortedChannelNumbers(t *testing.T) {
	m := map[uint8]*chandir.Channel{5: {}, 1: {}, 127: {}, 2: {}}
	got := sortedChannelNumbers(m)
	want := []uint8{1, 2, 5, 127}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
