package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"WALLET_GRPC_ADDRESS", "GATEWAY_LISTEN", "GATEWAY_ENV", "GATEWAY_LOG_LEVEL",
		"GATEWAY_AUTH_HMAC_SECRET", "GATEWAY_COMPAT_MODE", "OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_HEADERS",
	} {
		t.Setenv(name, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ListenAddress != ":3000" {
		t.Fatalf("unexpected listen address %q", cfg.ListenAddress)
	}
	if cfg.Wallet.Address != "127.0.0.1:18143" {
		t.Fatalf("unexpected wallet address %q", cfg.Wallet.Address)
	}
	if cfg.Wallet.CallTimeout != 30*time.Second || cfg.Wallet.StreamTimeout != 2*time.Minute {
		t.Fatalf("unexpected wallet timeouts %v / %v", cfg.Wallet.CallTimeout, cfg.Wallet.StreamTimeout)
	}
	if cfg.Transfer.MaxPaymentIDBytes != 256 {
		t.Fatalf("unexpected payment id limit %d", cfg.Transfer.MaxPaymentIDBytes)
	}
	if cfg.Auth.Enabled {
		t.Fatalf("expected auth to default to disabled")
	}
	if cfg.Idempotency.Path != "" || cfg.Idempotency.TTL != 24*time.Hour {
		t.Fatalf("unexpected idempotency defaults %+v", cfg.Idempotency)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Fatalf("unexpected logging defaults %+v", cfg.Logging)
	}
}

func TestLoadYAML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "gateway.yaml", `
listen: 127.0.0.1:3100
wallet:
  address: grpcs://wallet.internal:18143
  callTimeout: 5s
  streamTimeout: 45s
upstream:
  mapStatusCodes: true
rateLimits:
  - id: transfer
    requestsPerMinute: 30
    burst: 3
    tokens:
      POST /transfer: 2
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ListenAddress != "127.0.0.1:3100" || cfg.Wallet.Address != "grpcs://wallet.internal:18143" {
		t.Fatalf("unexpected addresses %+v", cfg)
	}
	if cfg.Wallet.CallTimeout != 5*time.Second || cfg.Wallet.StreamTimeout != 45*time.Second {
		t.Fatalf("unexpected timeouts %v / %v", cfg.Wallet.CallTimeout, cfg.Wallet.StreamTimeout)
	}
	if !cfg.Upstream.MapStatusCodes {
		t.Fatalf("expected mapStatusCodes")
	}
	if len(cfg.RateLimits) != 1 || cfg.RateLimits[0].PerSecond() != 0.5 || cfg.RateLimits[0].Tokens["POST /transfer"] != 2 {
		t.Fatalf("unexpected rate limits %+v", cfg.RateLimits)
	}
	if cfg.Transfer.MaxPaymentIDBytes != 256 {
		t.Fatalf("expected defaults to survive partial file")
	}
}

func TestLoadTOML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "gateway.toml", `
listen = ":3200"

[wallet]
address = "10.0.0.5:18143"
callTimeout = "10s"

[auth]
enabled = true
hmacSecret = "shh"

[idempotency]
path = "/var/lib/gateway/idempotency"
ttl = "1h"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ListenAddress != ":3200" || cfg.Wallet.Address != "10.0.0.5:18143" {
		t.Fatalf("unexpected addresses %+v", cfg)
	}
	if cfg.Wallet.CallTimeout != 10*time.Second {
		t.Fatalf("unexpected call timeout %v", cfg.Wallet.CallTimeout)
	}
	if !cfg.Auth.Enabled || !cfg.Auth.EnabledSet() {
		t.Fatalf("expected auth enabled explicitly")
	}
	if cfg.Idempotency.TTL != time.Hour {
		t.Fatalf("unexpected ttl %v", cfg.Idempotency.TTL)
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("WALLET_GRPC_ADDRESS", "wallet:9000")
	t.Setenv("GATEWAY_LISTEN", ":4000")
	t.Setenv("GATEWAY_LOG_LEVEL", "debug")
	t.Setenv("GATEWAY_ENV", "staging")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Wallet.Address != "wallet:9000" || cfg.ListenAddress != ":4000" {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if cfg.Logging.Level != "debug" || cfg.Environment != "staging" {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
}

func TestApplyEnvIgnoresBlankValues(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(func(name string) (string, bool) {
		if name == "WALLET_GRPC_ADDRESS" {
			return "   ", true
		}
		return "", false
	})
	if err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if cfg.Wallet.Address != "127.0.0.1:18143" {
		t.Fatalf("blank env should not override, got %q", cfg.Wallet.Address)
	}
}

func TestLoadRequiresExplicitAuthForTLS(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "gateway.yaml", "security:\n  tlsCertFile: /etc/gateway/cert.pem\n  tlsKeyFile: /etc/gateway/key.pem\n")
	if _, err := Load(path); !errors.Is(err, ErrAuthEnabledNotConfigured) {
		t.Fatalf("expected ErrAuthEnabledNotConfigured, got %v", err)
	}

	path = writeConfig(t, "gateway.yaml", "auth:\n  enabled: false\nsecurity:\n  tlsCertFile: /etc/gateway/cert.pem\n  tlsKeyFile: /etc/gateway/key.pem\n")
	if _, err := Load(path); err != nil {
		t.Fatalf("explicitly disabled auth should load: %v", err)
	}
}

func TestAuthEnabledNeedsSecret(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "gateway.yaml", "auth:\n  enabled: true\n")
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "hmacSecret") {
		t.Fatalf("expected secret error, got %v", err)
	}

	t.Setenv("GATEWAY_AUTH_HMAC_SECRET", "from-env")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("secret from env should satisfy validation: %v", err)
	}
	if cfg.Auth.HMACSecret != "from-env" {
		t.Fatalf("unexpected secret %q", cfg.Auth.HMACSecret)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"empty wallet":       func(c *Config) { c.Wallet.Address = " " },
		"empty listen":       func(c *Config) { c.ListenAddress = "" },
		"zero call timeout":  func(c *Config) { c.Wallet.CallTimeout = 0 },
		"zero stream":        func(c *Config) { c.Wallet.StreamTimeout = 0 },
		"payment id too big": func(c *Config) { c.Transfer.MaxPaymentIDBytes = 257 },
		"payment id zero":    func(c *Config) { c.Transfer.MaxPaymentIDBytes = 0 },
		"rate limit no id":   func(c *Config) { c.RateLimits = []RateLimitConfig{{RatePerSecond: 1}} },
		"rate limit no rate": func(c *Config) { c.RateLimits = []RateLimitConfig{{ID: "read"}} },
		"duplicate limit": func(c *Config) {
			c.RateLimits = []RateLimitConfig{{ID: "read", RatePerSecond: 1}, {ID: "read", RatePerSecond: 2}}
		},
		"bad log level": func(c *Config) { c.Logging.Level = "shouty" },
		"bad sample":    func(c *Config) { c.Observability.SampleRatio = 1.5 },
		"write timeout below stream": func(c *Config) {
			c.WriteTimeout = time.Minute
			c.Wallet.StreamTimeout = 2 * time.Minute
		},
		"write timeout equals stream": func(c *Config) { c.WriteTimeout = c.Wallet.StreamTimeout },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestValidateAcceptsUnboundedWriteTimeout(t *testing.T) {
	cfg := Default()
	cfg.WriteTimeout = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected zero write timeout to be accepted, got %v", err)
	}
}

func TestLoadRejectsUnknownYAMLFields(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "gateway.yaml", "walet:\n  address: typo\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected unknown field to be rejected")
	}
}
