package frame

import "hash/crc32"

// Accumulator is an externally-held CRC-32 (IEEE 802.3: reflected
// input/output, polynomial 0xEDB88320, initial value all-ones, final XOR
// all-ones) checksum state. Callers thread it through successive Update
// calls to fold in data incrementally; this is exactly the accumulator
// contract spec.md §4.1 requires of the CRC routine.
type Accumulator uint32

// Update folds p into the accumulator and returns the new state.
func (a Accumulator) Update(p []byte) Accumulator {
	return Accumulator(crc32.Update(uint32(a), crc32.IEEETable, p))
}

// Sum32 returns the checksum represented by the current accumulator state.
func (a Accumulator) Sum32() uint32 { return uint32(a) }

// Checksum computes the CRC-32 (IEEE 802.3) of p in a single call.
func Checksum(p []byte) uint32 { return crc32.ChecksumIEEE(p) }
