package engine

import (
	"github.com/elmlink/elmlinkd/internal/chandir"
	"github.com/elmlink/elmlinkd/internal/frame"
	"github.com/elmlink/elmlinkd/internal/metrics"
)

// enqueueClient attaches one more reference of buf to c's outbound
// queue, unless that would push the client's outbound queue past
// MaxClientSendBuf, per spec.md §3 ("individual clients' inbound
// payloads that would push their per-client outbound queue past
// MAX_CLIENT_SENDBUF are dropped"). buf must already carry the
// reference being transferred (the caller retains once per client it
// fans out to); a dropped reference is released here instead.
func enqueueClient(c *chandir.Client, buf *frame.Buf) {
	if c.OutSize+buf.Len() > MaxClientSendBuf {
		buf.Release()
		metrics.IncClientDrop()
		return
	}
	c.Out = append(c.Out, buf)
	c.OutSize += buf.Len()
}

func sortedChannelNumbers(m map[uint8]*chandir.Channel) []uint8 {
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
