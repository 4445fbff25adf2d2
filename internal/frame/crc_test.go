package frame

import (
	"bytes"
	"testing"
)

func TestChecksum_KnownVector(t *testing.T) {
	// "123456789" is the standard CRC-32/ISO-HDLC (== IEEE 802.3) check
	// vector; the expected checksum is the textbook constant 0xCBF43926.
	got := Checksum([]byte("123456789"))
	if got != 0xCBF43926 {
		t.Fatalf("Checksum(%q) = %#x, want 0xCBF43926", "123456789", got)
	}
}

func TestAccumulator_MatchesOneShot(t *testing.T) {
	data := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog"), 17)

	want := Checksum(data)

	var acc Accumulator
	chunk := 7
	for i := 0; i < len(data); i += chunk {
		end := i + chunk
		if end > len(data) {
			end = len(data)
		}
		acc = acc.Update(data[i:end])
	}
	if acc.Sum32() != want {
		t.Fatalf("incremental accumulator = %#x, want %#x", acc.Sum32(), want)
	}
}

func TestAccumulator_ZeroValueIsFreshState(t *testing.T) {
	var acc Accumulator
	acc = acc.Update([]byte("abc"))
	if acc.Sum32() != Checksum([]byte("abc")) {
		t.Fatalf("zero-value accumulator did not behave as a fresh CRC state")
	}
}
