// Package frame implements the UART link protocol: framing, byte-stuffed
// escaping, CRC-32 protection, and incremental packet-boundary recovery
// described in spec.md §4.1.
package frame

import (
	"bytes"
	"encoding/binary"

	"github.com/elmlink/elmlinkd/internal/metrics"
)

const (
	// delimiter marks the start of every serialized packet. Its absence
	// from a packet's escaped interior is what makes resynchronization
	// after corruption possible.
	delimiter byte = 0x7E
	// escape introduces a byte-stuffed literal; the following byte, XORed
	// with escapeXOR, is the real logical byte.
	escape    byte = 0x7D
	escapeXOR byte = 0x20

	channelSize = 1
	lengthSize  = 2
	crcSize     = 4
	headerSize  = channelSize + lengthSize

	// MaxDecodedPacketLength bounds payload size (spec.md §4.1, "Bounds").
	MaxDecodedPacketLength = 4096

	// MaxEncodedPayloadLength is the worst-case escaped-body size: every
	// logical byte of header+payload+CRC needs one escape byte.
	MaxEncodedPayloadLength = 2 * (headerSize + MaxDecodedPacketLength + crcSize)

	// MaxChannel is one past the highest usable channel number (0x7F);
	// channel numbers at or above it are rejected (spec.md §3).
	MaxChannel = 0x80
)

// Packet is the atomic protocol unit: a channel number and an opaque
// payload (spec.md §3).
type Packet struct {
	Channel uint8
	Payload []byte
}

// Encode serializes (channel, payload) into its wire form: a start
// delimiter followed by the escape-encoded body of channel, length,
// payload, and a CRC-32 over the logical (pre-escape) body.
func Encode(channel uint8, payload []byte) []byte {
	body := make([]byte, 0, headerSize+len(payload)+crcSize)
	body = append(body, channel)
	body = binary.BigEndian.AppendUint16(body, uint16(len(payload)))
	body = append(body, payload...)
	body = binary.BigEndian.AppendUint32(body, Checksum(body))

	out := make([]byte, 0, 1+len(body)*2)
	out = append(out, delimiter)
	for _, b := range body {
		if b == delimiter || b == escape {
			out = append(out, escape, b^escapeXOR)
		} else {
			out = append(out, b)
		}
	}
	return out
}

// CompactBuffer reclaims consumed prefix capacity once an accumulation
// buffer has grown large relative to its unread bytes, e.g. after bursts of
// UART noise that never frame up. Returns true if compaction occurred.
func CompactBuffer(b *bytes.Buffer) bool {
	data := b.Bytes()
	if len(data) < 1024 {
		return false
	}
	if cap(data) > 0 && len(data)*4 < cap(data) {
		clone := make([]byte, len(data))
		copy(clone, data)
		b.Reset()
		_, _ = b.Write(clone)
		return true
	}
	return false
}

// DecodeStream tries to pull one packet from the front of in. It returns
// (packet, true) on success, consuming in through the end of that packet,
// or (Packet{}, false) if no complete packet is available yet, in which
// case in is left with no good bytes discarded.
//
// Garbage preceding the next delimiter is discarded silently. A candidate
// whose CRC fails, or whose length field is out of range, is discarded
// through as much of itself as can be determined, and parsing resumes from
// the next delimiter. The function never blocks and never reads beyond
// what in already holds.
func DecodeStream(in *bytes.Buffer) (Packet, bool) {
	for {
		data := in.Bytes()
		idx := bytes.IndexByte(data, delimiter)
		if idx < 0 {
			if in.Len() > 0 {
				in.Reset()
			}
			return Packet{}, false
		}
		if idx > 0 {
			in.Next(idx)
			continue
		}

		logical := make([]byte, 0, headerSize+crcSize)
		needed := headerSize
		i := 1
		aborted := false
		for len(logical) < needed {
			if i >= len(data) {
				return Packet{}, false // incomplete; wait for more bytes
			}
			b := data[i]
			i++
			if b == delimiter {
				// A second delimiter arrived before the candidate
				// completed: the first was garbage (or a truncated
				// frame). Discard up to, but not including, the new
				// delimiter and restart there.
				in.Next(i - 1)
				aborted = true
				break
			}
			if b == escape {
				if i >= len(data) {
					return Packet{}, false // incomplete escape pair
				}
				if data[i] == delimiter {
					// A delimiter is never an escaped byte: this
					// candidate is corrupt. Discard it up to, but not
					// including, the delimiter and restart there.
					in.Next(i)
					aborted = true
					break
				}
				b = data[i] ^ escapeXOR
				i++
			}
			logical = append(logical, b)
			if len(logical) == headerSize && needed == headerSize {
				length := int(binary.BigEndian.Uint16(logical[channelSize:headerSize]))
				if length > MaxDecodedPacketLength {
					// Length field inconsistent with any possible body:
					// we cannot know where this bogus candidate ends, so
					// drop just the delimiter and resync from the next
					// one found in the buffer.
					metrics.IncMalformed()
					in.Next(1)
					aborted = true
					break
				}
				needed = headerSize + length + crcSize
			}
		}
		if aborted {
			continue
		}

		length := int(binary.BigEndian.Uint16(logical[channelSize:headerSize]))
		body := logical[:headerSize+length]
		want := binary.BigEndian.Uint32(logical[headerSize+length:])
		got := Checksum(body)
		in.Next(i) // consume the candidate regardless of CRC outcome
		if got != want {
			metrics.IncMalformed()
			continue // resync: search for the next delimiter
		}

		payload := make([]byte, length)
		copy(payload, body[headerSize:])
		return Packet{Channel: body[0], Payload: payload}, true
	}
}
