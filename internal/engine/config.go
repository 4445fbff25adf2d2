package engine

import "time"

// Bounds from spec.md §4.4/§5 (coarse backpressure and fairness caps).
const (
	MaxUARTSendBuf       = 1 << 20 // 1 MiB
	MaxClientSendBuf     = 1 << 18 // 256 KiB per client
	MaxClientsPerChannel = 16

	// ChannelIndexRefreshPeriod is how often an INDEX_REQUEST is
	// synthesized on channel 0, measured from the previous request;
	// inbound index packets do not reset it (spec.md §4.4 Setup phase).
	ChannelIndexRefreshPeriod = 30 * time.Second

	// pollTimeoutCap bounds how long unix.Poll may block even when no
	// refresh is imminent, so the loop stays responsive to signals
	// (Design Note "no timeout on the readiness wait").
	pollTimeoutCap = 5 * time.Second
)

// Config is the engine's immutable startup configuration.
type Config struct {
	UARTPath  string
	Baud      int
	SocketDir string
}
