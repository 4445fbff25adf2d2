package frame

import (
	"bytes"
	"testing"

	"github.com/elmlink/elmlinkd/internal/metrics"
)

// TestDecodeStream_CorruptCRC ensures a checksum mismatch is dropped and
// bumps the malformed-packet metric rather than being returned or panicking.
func TestDecodeStream_CorruptCRC(t *testing.T) {
	before := metrics.Snap().Malformed

	wire := Encode(4, []byte{0xAA, 0xBB})
	wire[len(wire)-1] ^= 0xFF // corrupt the trailing CRC byte

	var buf bytes.Buffer
	buf.Write(wire)
	buf.Write(Encode(5, []byte("next")))

	got, ok := DecodeStream(&buf)
	if !ok {
		t.Fatalf("expected decoder to resync onto the following valid packet")
	}
	if got.Channel != 5 || string(got.Payload) != "next" {
		t.Fatalf("got %+v, want channel 5 payload \"next\"", got)
	}

	after := metrics.Snap().Malformed
	if after <= before {
		t.Fatalf("expected malformed metric increment, before=%d after=%d", before, after)
	}
}

func FuzzDecodeStream_NeverPanics(f *testing.F) {
	f.Add(Encode(1, []byte("seed")))
	f.Add([]byte{delimiter, 0x01, 0x00})
	f.Add([]byte{})
	f.Fuzz(func(t *testing.T, data []byte) {
		var buf bytes.Buffer
		buf.Write(data)
		for {
			if _, ok := DecodeStream(&buf); !ok {
				break
			}
		}
	})
}
