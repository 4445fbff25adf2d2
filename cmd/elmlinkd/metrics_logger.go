package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/elmlink/elmlinkd/internal/metrics"
)

func startMetricsLogger(ctx context.Context, interval time.Duration, l *slog.Logger, wg *sync.WaitGroup) {
	if interval <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				snap := metrics.Snap()
				l.Info("metrics_snapshot",
					"uart_rx", snap.UARTRx,
					"uart_tx", snap.UARTTx,
					"client_rx", snap.ClientRx,
					"client_tx", snap.ClientTx,
					"client_drops", snap.ClientDrops,
					"clients_active", snap.ClientsActive,
					"channels_active", snap.ChannelsActive,
					"malformed", snap.Malformed,
					"backpressure", snap.Backpressure,
					"index_resyncs", snap.IndexResyncs,
					"index_requests", snap.IndexRequests,
					"uart_sendbuf", snap.UARTSendBuf,
					"errors", snap.Errors,
				)
			case <-ctx.Done():
				return
			}
		}
	}()
}
