package config

import "testing"

func baseConfig() *Config {
	return &Config{
		UARTPath:  "/dev/null",
		Baud:      115200,
		SocketDir: "/tmp/elmlinkd",
		LogFormat: "text",
		LogLevel:  "info",
	}
}

func TestConfigValidate_OK(t *testing.T) {
	if err := baseConfig().Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
}

func TestConfigValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*Config)
	}{
		{"badLogFormat", func(c *Config) { c.LogFormat = "xx" }},
		{"badLogLevel", func(c *Config) { c.LogLevel = "nope" }},
		{"badBaud", func(c *Config) { c.Baud = 0 }},
		{"unsupportedBaud", func(c *Config) { c.Baud = 4800 }},
		{"emptyUARTPath", func(c *Config) { c.UARTPath = "" }},
		{"emptySocketDir", func(c *Config) { c.SocketDir = "" }},
		{"negativeLogMetricsEvery", func(c *Config) { c.LogMetricsEvery = -1 }},
	}
	for _, tc := range tests {
		c := baseConfig()
		tc.mod(c)
		if err := c.Validate(); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestApplyEnvOverrides_SkipsExplicitlySetFlags(t *testing.T) {
	t.Setenv("ELMLINKD_BAUD", "9600")
	c := baseConfig()
	c.Baud = 115200
	if err := applyEnvOverrides(c, map[string]struct{}{"baud": {}}); err != nil {
		t.Fatalf("applyEnvOverrides: %v", err)
	}
	if c.Baud != 115200 {
		t.Fatalf("explicit flag should win over env, got baud=%d", c.Baud)
	}
}

func TestApplyEnvOverrides_AppliesUnsetFlags(t *testing.T) {
	t.Setenv("ELMLINKD_BAUD", "9600")
	c := baseConfig()
	c.Baud = 115200
	if err := applyEnvOverrides(c, map[string]struct{}{}); err != nil {
		t.Fatalf("applyEnvOverrides: %v", err)
	}
	if c.Baud != 9600 {
		t.Fatalf("expected env override to apply, got baud=%d", c.Baud)
	}
}

func TestApplyEnvOverrides_InvalidBaudReportsError(t *testing.T) {
	t.Setenv("ELMLINKD_BAUD", "not-a-number")
	c := baseConfig()
	if err := applyEnvOverrides(c, map[string]struct{}{}); err == nil {
		t.Fatalf("expected error for invalid ELMLINKD_BAUD")
	}
}
