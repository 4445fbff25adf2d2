// Package config parses and validates cmd/elmlinkd's flags, layered with
// ELMLINKD_* environment variable overrides, following the teacher's
// cmd/can-server/config.go pattern (flag wins over env, env wins over
// default).
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/elmlink/elmlinkd/internal/termio"
)

// Config is the daemon's full runtime configuration.
type Config struct {
	UARTPath  string
	Baud      int
	SocketDir string

	LogFormat string
	LogLevel  string

	MetricsAddr string

	MDNSEnable bool
	MDNSName   string

	LogMetricsEvery time.Duration
}

// Parse reads os.Args, applies ELMLINKD_* overrides for any flag not
// explicitly set, validates, and returns the result. showVersion is true
// when -version was passed, independent of validation outcome.
func Parse() (*Config, bool, error) {
	cfg := &Config{}
	uartPath := flag.String("uart", "/dev/ttyUSB0", "UART device path")
	baud := flag.Int("baud", 115200, "UART baud rate (9600|19200|115200)")
	socketDir := flag.String("socket-dir", "/var/run/elmlinkd", "Directory holding per-channel sockets and the .index file")
	logFormat := flag.String("log-format", "text", "Log format: text|json")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	metricsAddr := flag.String("metrics-addr", "", "Metrics HTTP listen address (e.g., :9100); empty disables")
	mdnsEnable := flag.Bool("mdns-enable", false, "Enable mDNS/Avahi advertisement")
	mdnsName := flag.String("mdns-name", "", "mDNS instance name (default elmlinkd-<hostname>)")
	logMetricsEvery := flag.Duration("log-metrics-interval", 0, "If >0, periodically log metrics counters")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	set := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = struct{}{} })

	cfg.UARTPath = *uartPath
	cfg.Baud = *baud
	cfg.SocketDir = *socketDir
	cfg.LogFormat = *logFormat
	cfg.LogLevel = *logLevel
	cfg.MetricsAddr = *metricsAddr
	cfg.MDNSEnable = *mdnsEnable
	cfg.MDNSName = *mdnsName
	cfg.LogMetricsEvery = *logMetricsEvery

	if err := applyEnvOverrides(cfg, set); err != nil {
		return nil, *showVersion, fmt.Errorf("environment override error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, *showVersion, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, *showVersion, nil
}

// Validate performs semantic validation only - it never touches the
// filesystem or opens devices.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.LogFormat)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.LogLevel)
	}
	if _, err := termio.ParseBaud(c.Baud); err != nil {
		return err
	}
	if c.UARTPath == "" {
		return errors.New("uart path must not be empty")
	}
	if c.SocketDir == "" {
		return errors.New("socket-dir must not be empty")
	}
	if c.LogMetricsEvery < 0 {
		return errors.New("log-metrics-interval must be >= 0")
	}
	return nil
}

// applyEnvOverrides maps ELMLINKD_* environment variables onto cfg
// unless the corresponding flag was explicitly set, mirroring the
// teacher's applyEnvOverrides exactly in shape.
func applyEnvOverrides(c *Config, set map[string]struct{}) error {
	var firstErr error
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }

	if _, ok := set["uart"]; !ok {
		if v, ok := get("ELMLINKD_UART"); ok && v != "" {
			c.UARTPath = v
		}
	}
	if _, ok := set["baud"]; !ok {
		if v, ok := get("ELMLINKD_BAUD"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.Baud = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid ELMLINKD_BAUD: %w", err)
			}
		}
	}
	if _, ok := set["socket-dir"]; !ok {
		if v, ok := get("ELMLINKD_SOCKET_DIR"); ok && v != "" {
			c.SocketDir = v
		}
	}
	if _, ok := set["log-format"]; !ok {
		if v, ok := get("ELMLINKD_LOG_FORMAT"); ok && v != "" {
			c.LogFormat = v
		}
	}
	if _, ok := set["log-level"]; !ok {
		if v, ok := get("ELMLINKD_LOG_LEVEL"); ok && v != "" {
			c.LogLevel = v
		}
	}
	if _, ok := set["metrics-addr"]; !ok {
		if v, ok := get("ELMLINKD_METRICS"); ok {
			c.MetricsAddr = v
		}
	}
	if _, ok := set["mdns-enable"]; !ok {
		if v, ok := get("ELMLINKD_MDNS_ENABLE"); ok && v != "" {
			switch strings.ToLower(v) {
			case "1", "true", "yes", "on":
				c.MDNSEnable = true
			case "0", "false", "no", "off":
				c.MDNSEnable = false
			}
		}
	}
	if _, ok := set["mdns-name"]; !ok {
		if v, ok := get("ELMLINKD_MDNS_NAME"); ok && v != "" {
			c.MDNSName = v
		}
	}
	if _, ok := set["log-metrics-interval"]; !ok {
		if v, ok := get("ELMLINKD_LOG_METRICS_INTERVAL"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d >= 0 {
				c.LogMetricsEvery = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid ELMLINKD_LOG_METRICS_INTERVAL: %w", err)
			}
		}
	}
	return firstErr
}
