package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/grandcat/zeroconf"

	"github.com/elmlink/elmlinkd/internal/config"
)

const mdnsServiceType = "_elmlinkd._tcp"

// startMDNS registers the daemon's presence via mDNS so LAN discovery
// tooling can find it. elmlinkd has no TCP service of its own to
// advertise a port for (spec.md's own protocol runs over local unix
// sockets), so it piggybacks on the metrics port when one is configured;
// with no metrics port there's nothing meaningful to advertise a
// connection to, so registration is skipped.
func startMDNS(ctx context.Context, cfg *config.Config, port int) (func(), error) {
	if !cfg.MDNSEnable {
		return func() {}, nil
	}
	if port == 0 {
		return func() {}, fmt.Errorf("mdns: no metrics port configured, nothing to advertise a connection to")
	}
	instance := cfg.MDNSName
	if instance == "" {
		host, _ := os.Hostname()
		instance = fmt.Sprintf("elmlinkd-%s", host)
	}
	meta := []string{
		"uart=" + cfg.UARTPath,
		fmt.Sprintf("baud=%d", cfg.Baud),
		"version=" + version,
		"commit=" + commit,
	}
	svc, err := zeroconf.Register(instance, mdnsServiceType, "local.", port, meta, nil)
	if err != nil {
		return nil, fmt.Errorf("mdns register: %w", err)
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		svc.Shutdown()
	}()
	return func() { close(done); svc.Shutdown(); time.Sleep(50 * time.Millisecond) }, nil
}
