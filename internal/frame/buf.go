package frame

import "sync"

// pool recycles backing arrays for payload buffers so sustained traffic
// doesn't churn the allocator once MaxDecodedPacketLength-sized buffers
// settle into steady use.
var pool = sync.Pool{
	New: func() any { return make([]byte, 0, MaxDecodedPacketLength) },
}

// Buf is a reference-counted, effectively-immutable payload buffer (spec.md
// §9, "shared per-packet payload across many clients"). The UART reader
// allocates one Buf per decoded packet and every client queue fed from that
// packet holds a reference to the same Buf; the backing array returns to
// the pool only once the last queue holding it pops it.
//
// The engine is single-threaded, so the refcount is a plain int: nothing
// ever touches a Buf concurrently with the engine's own iteration.
type Buf struct {
	data []byte
	refs int
}

// NewBuf copies p into a pooled backing array. The returned Buf starts with
// a zero refcount; call Retain once for every queue it is enqueued onto.
func NewBuf(p []byte) *Buf {
	b := pool.Get().([]byte)[:0]
	b = append(b, p...)
	return &Buf{data: b}
}

// Bytes returns the payload. Callers must not mutate the returned slice.
func (b *Buf) Bytes() []byte { return b.data }

// Len returns the payload length.
func (b *Buf) Len() int { return len(b.data) }

// Retain records that one more queue now holds a reference to b.
func (b *Buf) Retain() { b.refs++ }

// Release drops one reference. Once the last reference is released, the
// backing array is returned to the pool.
func (b *Buf) Release() {
	b.refs--
	if b.refs <= 0 && b.data != nil {
		pool.Put(b.data[:0])
		b.data = nil
	}
}
