package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	tests := []struct {
		name   string
		check  func(*Config) bool
		expect string
	}{
		{
			name:   "default host is 0.0.0.0",
			check:  func(c *Config) bool { return c.Host == "0.0.0.0" },
			expect: "0.0.0.0",
		},
		{
			name:   "default port is 8080",
			check:  func(c *Config) bool { return c.Port == 8080 },
			expect: "8080",
		},
		{
			name:   "default log level is info",
			check:  func(c *Config) bool { return c.LogLevel == "info" },
			expect: "info",
		},
		{
			name:   "default log format is json",
			check:  func(c *Config) bool { return c.LogFormat == "json" },
			expect: "json",
		},
		{
			name:   "default metrics path",
			check:  func(c *Config) bool { return c.MetricsPath == "/metrics" },
			expect: "/metrics",
		},
		{
			name:   "default migrations dir",
			check:  func(c *Config) bool { return c.MigrationsDir == "migrations" },
			expect: "migrations",
		},
		{
			name:   "default cors allowed origins",
			check:  func(c *Config) bool { return len(c.CORSAllowedOrigins) == 1 && c.CORSAllowedOrigins[0] == "*" },
			expect: `["*"]`,
		},
		{
			name:   "default user token ttl",
			check:  func(c *Config) bool { return c.UserTokenTTL == 15*time.Minute },
			expect: "15m",
		},
		{
			name:   "default refresh token ttl",
			check:  func(c *Config) bool { return c.RefreshTokenTTL == 168*time.Hour },
			expect: "168h",
		},
		{
			name:   "default api key token ttl",
			check:  func(c *Config) bool { return c.APIKeyTTL == time.Hour },
			expect: "1h",
		},
		{
			name:   "default end user token ttl",
			check:  func(c *Config) bool { return c.EndUserTTL == 15*time.Minute },
			expect: "15m",
		},
		{
			name:   "default issuer",
			check:  func(c *Config) bool { return c.Issuer == "compute-gateway" },
			expect: "compute-gateway",
		},
		{
			name:   "default cluster namespace",
			check:  func(c *Config) bool { return c.ClusterNamespace == "compute-workloads" },
			expect: "compute-workloads",
		},
		{
			name:   "default preview domain",
			check:  func(c *Config) bool { return c.PreviewDomain == "preview.local" },
			expect: "preview.local",
		},
		{
			name:   "idle teardown enabled by default",
			check:  func(c *Config) bool { return c.EnableIdleTeardown },
			expect: "true",
		},
		{
			name:   "default idle teardown delay",
			check:  func(c *Config) bool { return c.IdleTeardownDelay == 5*time.Minute },
			expect: "5m",
		},
		{
			name:   "default proxy dial timeout",
			check:  func(c *Config) bool { return c.ProxyDialTimeout == 10*time.Second },
			expect: "10s",
		},
		{
			name:   "default login rate limit max",
			check:  func(c *Config) bool { return c.LoginRateLimitMax == 10 },
			expect: "10",
		},
		{
			name:   "listen addr format",
			check:  func(c *Config) bool { return c.ListenAddr() == "0.0.0.0:8080" },
			expect: "0.0.0.0:8080",
		},
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.check(cfg) {
				t.Errorf("expected %s", tt.expect)
			}
		})
	}
}

func TestListenAddrUsesConfiguredHostAndPort(t *testing.T) {
	cfg := &Config{Host: "127.0.0.1", Port: 9090}
	if got := cfg.ListenAddr(); got != "127.0.0.1:9090" {
		t.Errorf("ListenAddr() = %q, want %q", got, "127.0.0.1:9090")
	}
}
