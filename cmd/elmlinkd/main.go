// Command elmlinkd multiplexes a single UART among many local
// unixpacket channel sockets, per spec.md.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/elmlink/elmlinkd/internal/config"
	"github.com/elmlink/elmlinkd/internal/engine"
	"github.com/elmlink/elmlinkd/internal/metrics"
)

func main() {
	cfg, showVersion, err := config.Parse()
	if showVersion {
		fmt.Printf("elmlinkd %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	l := setupLogger(cfg.LogFormat, cfg.LogLevel)

	if err := os.MkdirAll(cfg.SocketDir, 0o777); err != nil {
		l.Error("socket_dir_create_failed", "dir", cfg.SocketDir, "error", err)
		os.Exit(1)
	}

	eng, err := engine.New(engine.Config{
		UARTPath:  cfg.UARTPath,
		Baud:      cfg.Baud,
		SocketDir: cfg.SocketDir,
	})
	if err != nil {
		l.Error("engine_init_failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	startMetricsLogger(ctx, cfg.LogMetricsEvery, l, &wg)

	go func() {
		if err := eng.Run(ctx); err != nil && ctx.Err() == nil {
			l.Error("engine_error", "error", err)
			cancel()
		}
	}()

	go func() {
		if !cfg.MDNSEnable {
			return
		}
		var port int
		if cfg.MetricsAddr != "" {
			_, p, err := splitPort(cfg.MetricsAddr)
			if err == nil {
				port = p
			}
		}
		cleanup, err := startMDNS(ctx, cfg, port)
		if err != nil {
			l.Warn("mdns_start_failed", "error", err)
			return
		}
		l.Info("mdns_started", "service", mdnsServiceType, "name", cfg.MDNSName, "port", port)
		go func() { <-ctx.Done(); cleanup() }()
	}()

	metrics.SetReadinessFunc(func() bool { return ctx.Err() == nil })
	if cfg.MetricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		srvHTTP := metrics.StartHTTP(cfg.MetricsAddr)
		defer func() { _ = srvHTTP.Shutdown(context.Background()) }()
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	s := <-sigCh
	l.Info("shutdown_signal", "signal", s.String())
	cancel()
	_ = eng.Close()
	wg.Wait()
}
