// Package index parses and encodes the channel-0 index subchannel
// described in spec.md §4.2: a text listing of (channel number, channel
// name) pairs the peer advertises, and the literal INDEX_REQUEST token
// used to ask for a fresh one.
package index

import (
	"bytes"
	"fmt"
	"strconv"
)

// MaxNameLength bounds a channel name's printable length.
const MaxNameLength = 64

// Request is the literal payload of a channel-0 request packet.
const Request = "INDEX_REQUEST"

// Index maps channel number to channel name.
type Index map[uint8]string

// Parse extracts (number, name) records from a channel-0 payload. One
// record per line, "<number> <name>". The parser is total: it never
// errors, silently skipping any line that isn't a well-formed record,
// any number outside 0-255, or any empty name, per spec.md §4.2.
func Parse(payload []byte) Index {
	idx := make(Index)
	for _, line := range bytes.Split(payload, []byte("\n")) {
		line = bytes.TrimRight(line, "\r")
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		sp := bytes.IndexByte(line, ' ')
		if sp < 0 {
			continue
		}
		numField := line[:sp]
		name := string(bytes.TrimSpace(line[sp+1:]))
		if name == "" || len(name) > MaxNameLength || !isPrintable(name) {
			continue
		}
		n, err := strconv.ParseUint(string(numField), 10, 8)
		if err != nil {
			continue
		}
		idx[uint8(n)] = name
	}
	return idx
}

func isPrintable(s string) bool {
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			return false
		}
	}
	return true
}

// Encode renders idx in the same "<number> <name>" line format Parse
// accepts, one record per line, in ascending channel-number order.
func Encode(idx Index) []byte {
	nums := make([]int, 0, len(idx))
	for n := range idx {
		nums = append(nums, int(n))
	}
	sortInts(nums)

	var buf bytes.Buffer
	for _, n := range nums {
		fmt.Fprintf(&buf, "%d %s\n", n, idx[uint8(n)])
	}
	return buf.Bytes()
}

// EncodeRequest returns the channel-0 payload that asks the peer to
// (re)send its index: the literal token INDEX_REQUEST, no terminator.
func EncodeRequest() []byte {
	return []byte(Request)
}

func sortInts(a []int) {
	for i := 1; i < len(a); i++ {
		for j := i; j > 0 && a[j-1] > a[j]; j-- {
			a[j-1], a[j] = a[j], a[j-1]
		}
	}
}
