package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/elmlink/elmlinkd/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus counters
var (
	UARTRxPackets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "uart_rx_packets_total",
		Help: "Total packets decoded from the UART link.",
	})
	UARTTxPackets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "uart_tx_packets_total",
		Help: "Total packets serialized onto the UART link.",
	})
	ClientRxPackets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "client_rx_packets_total",
		Help: "Total packets received from local channel-socket clients.",
	})
	ClientTxPackets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "client_tx_packets_total",
		Help: "Total packets delivered to local channel-socket clients.",
	})
	ClientDroppedPackets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "client_dropped_packets_total",
		Help: "Total packets dropped because a client's outbound queue was full.",
	})
	ClientsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "clients_active",
		Help: "Current number of connected channel-socket clients across all channels.",
	})
	ChannelsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "channels_active",
		Help: "Current number of instantiated channel sockets.",
	})
	UARTSendBufBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "uart_sendbuf_bytes",
		Help: "Current bytes queued for write to the UART.",
	})
	BackpressureIterations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backpressure_iterations_total",
		Help: "Total engine iterations in which client reads were suspended due to UART backpressure.",
	})
	IndexResyncs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "index_resyncs_total",
		Help: "Total channel-index resyncs performed (directory create/rename/destroy passes).",
	})
	IndexRequestsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "index_requests_sent_total",
		Help: "Total INDEX_REQUEST packets sent toward the peer.",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})
	MalformedPackets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "malformed_packets_total",
		Help: "Total rejected malformed UART packets (CRC failure, bad length, truncated).",
	})

	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality)
const (
	ErrUARTOpen    = "uart_open"
	ErrUARTRead    = "uart_read"
	ErrUARTWrite   = "uart_write"
	ErrTermios     = "termios"
	ErrListen      = "listen"
	ErrAccept      = "accept"
	ErrClientRead  = "client_read"
	ErrClientWrite = "client_write"
	ErrDirectory   = "directory"
	ErrPoll        = "poll"
)

// StartHTTP serves Prometheus metrics at /metrics and readiness at /ready.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters for easy logging (avoid Prometheus scraping in-process)
var (
	localUARTRx      uint64
	localUARTTx      uint64
	localClientRx    uint64
	localClientTx    uint64
	localClientDrop  uint64
	localErrors      uint64
	localClients     uint64
	localChannels    uint64
	localMalformed   uint64
	localBackpress   uint64
	localResyncs     uint64
	localIndexReqs   uint64
	localUARTSendBuf uint64
)

// Snapshot is a cheap copy of local counters.
type Snapshot struct {
	UARTRx          uint64
	UARTTx          uint64
	ClientRx        uint64
	ClientTx        uint64
	ClientDrops     uint64
	Errors          uint64 // sum across error labels
	ClientsActive   uint64
	ChannelsActive  uint64
	Malformed       uint64
	Backpressure    uint64
	IndexResyncs    uint64
	IndexRequests   uint64
	UARTSendBuf     uint64
}

func Snap() Snapshot {
	return Snapshot{
		UARTRx:          atomic.LoadUint64(&localUARTRx),
		UARTTx:          atomic.LoadUint64(&localUARTTx),
		ClientRx:        atomic.LoadUint64(&localClientRx),
		ClientTx:        atomic.LoadUint64(&localClientTx),
		ClientDrops:     atomic.LoadUint64(&localClientDrop),
		Errors:          atomic.LoadUint64(&localErrors),
		ClientsActive:   atomic.LoadUint64(&localClients),
		ChannelsActive:  atomic.LoadUint64(&localChannels),
		Malformed:       atomic.LoadUint64(&localMalformed),
		Backpressure:    atomic.LoadUint64(&localBackpress),
		IndexResyncs:    atomic.LoadUint64(&localResyncs),
		IndexRequests:   atomic.LoadUint64(&localIndexReqs),
		UARTSendBuf:     atomic.LoadUint64(&localUARTSendBuf),
	}
}

// Wrapper helpers to keep call sites simple.
func IncUARTRx() {
	UARTRxPackets.Inc()
	atomic.AddUint64(&localUARTRx, 1)
}

func IncUARTTx() {
	UARTTxPackets.Inc()
	atomic.AddUint64(&localUARTTx, 1)
}

func IncClientRx() {
	ClientRxPackets.Inc()
	atomic.AddUint64(&localClientRx, 1)
}

func IncClientTx() {
	ClientTxPackets.Inc()
	atomic.AddUint64(&localClientTx, 1)
}

func IncClientDrop() {
	ClientDroppedPackets.Inc()
	atomic.AddUint64(&localClientDrop, 1)
}

func SetClientsActive(n int) {
	ClientsActive.Set(float64(n))
	atomic.StoreUint64(&localClients, uint64(n))
}

func SetChannelsActive(n int) {
	ChannelsActive.Set(float64(n))
	atomic.StoreUint64(&localChannels, uint64(n))
}

func SetUARTSendBuf(n int) {
	UARTSendBufBytes.Set(float64(n))
	atomic.StoreUint64(&localUARTSendBuf, uint64(n))
}

func IncBackpressureIteration() {
	BackpressureIterations.Inc()
	atomic.AddUint64(&localBackpress, 1)
}

func IncIndexResync() {
	IndexResyncs.Inc()
	atomic.AddUint64(&localResyncs, 1)
}

func IncIndexRequestSent() {
	IndexRequestsSent.Inc()
	atomic.AddUint64(&localIndexReqs, 1)
}

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

func IncMalformed() {
	MalformedPackets.Inc()
	atomic.AddUint64(&localMalformed, 1)
}

// InitBuildInfo sets the build info gauge (should be called once at startup).
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	for _, lbl := range []string{
		ErrUARTOpen, ErrUARTRead, ErrUARTWrite, ErrTermios,
		ErrListen, ErrAccept, ErrClientRead, ErrClientWrite,
		ErrDirectory, ErrPoll,
	} {
		Errors.WithLabelValues(lbl).Add(0)
	}
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil { // if not set yet, treat as ready so metrics endpoint doesn't flap
		return true
	}
	return fn()
}

// Ready is a concise alias used at call sites.
func Ready() bool { return IsReady() }
