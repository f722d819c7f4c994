package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"walletgateway/gateway/walletrpc"
	"walletgateway/observability/logging"
)

type WalletConfig struct {
	// Address is host:port or a grpc://, grpcs://, http:// or https:// URL.
	Address       string        `yaml:"address" toml:"address"`
	CAFile        string        `yaml:"caFile" toml:"caFile"`
	ServerName    string        `yaml:"serverName" toml:"serverName"`
	CallTimeout   time.Duration `yaml:"callTimeout" toml:"callTimeout"`
	StreamTimeout time.Duration `yaml:"streamTimeout" toml:"streamTimeout"`
	MaxRecvBytes  int           `yaml:"maxRecvBytes" toml:"maxRecvBytes"`
}

type TransferConfig struct {
	MaxPaymentIDBytes int    `yaml:"maxPaymentIdBytes" toml:"maxPaymentIdBytes"`
	MaxBodyBytes      int64  `yaml:"maxBodyBytes" toml:"maxBodyBytes"`
	RequiredScope     string `yaml:"requiredScope" toml:"requiredScope"`
}

type IdempotencyConfig struct {
	// Path enables idempotent transfers backed by LevelDB at this location.
	Path          string        `yaml:"path" toml:"path"`
	TTL           time.Duration `yaml:"ttl" toml:"ttl"`
	PruneInterval time.Duration `yaml:"pruneInterval" toml:"pruneInterval"`
}

type CompatConfig struct {
	Mode string `yaml:"mode" toml:"mode"`
}

type UpstreamConfig struct {
	// MapStatusCodes translates gRPC codes to HTTP statuses instead of
	// answering every wallet failure with 500.
	MapStatusCodes bool `yaml:"mapStatusCodes" toml:"mapStatusCodes"`
}

type RateLimitConfig struct {
	ID                string         `yaml:"id" toml:"id"`
	RequestsPerMinute float64        `yaml:"requestsPerMinute" toml:"requestsPerMinute"`
	RatePerSecond     float64        `yaml:"ratePerSecond" toml:"ratePerSecond"`
	Burst             int            `yaml:"burst" toml:"burst"`
	DefaultTokens     int            `yaml:"defaultTokens" toml:"defaultTokens"`
	Tokens            map[string]int `yaml:"tokens" toml:"tokens"`
}

// PerSecond resolves the effective refill rate.
func (r RateLimitConfig) PerSecond() float64 {
	if r.RatePerSecond > 0 {
		return r.RatePerSecond
	}
	return r.RequestsPerMinute / 60.0
}

type ObservabilityConfig struct {
	ServiceName   string  `yaml:"serviceName" toml:"serviceName"`
	Metrics       bool    `yaml:"metrics" toml:"metrics"`
	Tracing       bool    `yaml:"tracing" toml:"tracing"`
	LogRequests   bool    `yaml:"logRequests" toml:"logRequests"`
	MetricsPrefix string  `yaml:"metricsPrefix" toml:"metricsPrefix"`
	OTLPEndpoint  string  `yaml:"otlpEndpoint" toml:"otlpEndpoint"`
	OTLPInsecure  bool    `yaml:"otlpInsecure" toml:"otlpInsecure"`
	OTLPHeaders   string  `yaml:"otlpHeaders" toml:"otlpHeaders"`
	SampleRatio   float64 `yaml:"sampleRatio" toml:"sampleRatio"`
}

type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowedOrigins" toml:"allowedOrigins"`
	AllowedHeaders   []string `yaml:"allowedHeaders" toml:"allowedHeaders"`
	AllowCredentials bool     `yaml:"allowCredentials" toml:"allowCredentials"`
}

type Config struct {
	ListenAddress string              `yaml:"listen" toml:"listen"`
	Environment   string              `yaml:"env" toml:"env"`
	ReadTimeout   time.Duration       `yaml:"readTimeout" toml:"readTimeout"`
	WriteTimeout  time.Duration       `yaml:"writeTimeout" toml:"writeTimeout"`
	IdleTimeout   time.Duration       `yaml:"idleTimeout" toml:"idleTimeout"`
	Wallet        WalletConfig        `yaml:"wallet" toml:"wallet"`
	Transfer      TransferConfig      `yaml:"transfer" toml:"transfer"`
	Idempotency   IdempotencyConfig   `yaml:"idempotency" toml:"idempotency"`
	Compat        CompatConfig        `yaml:"compat" toml:"compat"`
	Upstream      UpstreamConfig      `yaml:"upstream" toml:"upstream"`
	RateLimits    []RateLimitConfig   `yaml:"rateLimits" toml:"rateLimits"`
	Observability ObservabilityConfig `yaml:"observability" toml:"observability"`
	Logging       logging.Config      `yaml:"logging" toml:"logging"`
	CORS          CORSConfig          `yaml:"cors" toml:"cors"`
	Auth          AuthConfig          `yaml:"auth" toml:"auth"`
	Security      SecurityConfig      `yaml:"security" toml:"security"`
}

type AuthConfig struct {
	Enabled    bool          `yaml:"enabled" toml:"enabled"`
	HMACSecret string        `yaml:"hmacSecret" toml:"hmacSecret"`
	Issuer     string        `yaml:"issuer" toml:"issuer"`
	Audience   string        `yaml:"audience" toml:"audience"`
	ScopeClaim string        `yaml:"scopeClaim" toml:"scopeClaim"`
	ClockSkew  time.Duration `yaml:"clockSkew" toml:"clockSkew"`
	enabledSet bool
}

func (a *AuthConfig) UnmarshalYAML(node *yaml.Node) error {
	type rawAuthConfig struct {
		Enabled    *bool         `yaml:"enabled"`
		HMACSecret string        `yaml:"hmacSecret"`
		Issuer     string        `yaml:"issuer"`
		Audience   string        `yaml:"audience"`
		ScopeClaim string        `yaml:"scopeClaim"`
		ClockSkew  time.Duration `yaml:"clockSkew"`
	}
	var raw rawAuthConfig
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if raw.Enabled != nil {
		a.Enabled = *raw.Enabled
		a.enabledSet = true
	} else {
		a.Enabled = false
		a.enabledSet = false
	}
	a.HMACSecret = raw.HMACSecret
	a.Issuer = raw.Issuer
	a.Audience = raw.Audience
	a.ScopeClaim = raw.ScopeClaim
	a.ClockSkew = raw.ClockSkew
	return nil
}

// EnabledSet reports whether auth.enabled was written explicitly.
func (a AuthConfig) EnabledSet() bool {
	return a.enabledSet
}

type SecurityConfig struct {
	AllowInsecure bool `yaml:"allowInsecure" toml:"allowInsecure"`
	// TrustProxyHeaders lets X-Real-IP and X-Forwarded-For name the client
	// for rate limiting. Enable only behind a proxy that overwrites them.
	TrustProxyHeaders bool   `yaml:"trustProxyHeaders" toml:"trustProxyHeaders"`
	TLSCertFile       string `yaml:"tlsCertFile" toml:"tlsCertFile"`
	TLSKeyFile        string `yaml:"tlsKeyFile" toml:"tlsKeyFile"`
	TLSClientCAFile   string `yaml:"tlsClientCAFile" toml:"tlsClientCAFile"`
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{
		ListenAddress: ":3000",
		ReadTimeout:   30 * time.Second,
		WriteTimeout:  150 * time.Second,
		IdleTimeout:   120 * time.Second,
		Wallet: WalletConfig{
			Address:       walletrpc.DefaultAddress,
			CallTimeout:   30 * time.Second,
			StreamTimeout: 2 * time.Minute,
			MaxRecvBytes:  16 << 20,
		},
		Transfer: TransferConfig{
			MaxPaymentIDBytes: 256,
			MaxBodyBytes:      1 << 20,
			RequiredScope:     "wallet:transfer",
		},
		Idempotency: IdempotencyConfig{
			TTL:           24 * time.Hour,
			PruneInterval: time.Hour,
		},
		Compat: CompatConfig{Mode: "auto"},
		Observability: ObservabilityConfig{
			ServiceName:   "wallet-gateway",
			Metrics:       true,
			Tracing:       true,
			LogRequests:   true,
			MetricsPrefix: "gateway",
			OTLPInsecure:  true,
			SampleRatio:   1,
		},
		Logging: logging.DefaultConfig(),
		Auth: AuthConfig{
			ScopeClaim: "scope",
			ClockSkew:  2 * time.Minute,
		},
	}
}

// Load decodes path over the defaults, applies environment overrides and
// validates the result. A .toml extension selects TOML, anything else YAML.
// An empty path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, fmt.Errorf("apply environment: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return fmt.Errorf("decode config: %w", err)
		}
		cfg.Auth.enabledSet = meta.IsDefined("auth", "enabled")
		return nil
	}
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(string) (string, bool)

// ApplyEnv overrides file values with the supported environment variables.
func (cfg *Config) ApplyEnv(lookup LookupFunc) error {
	if lookup == nil {
		return nil
	}
	get := func(name string) (string, bool) {
		value, ok := lookup(name)
		value = strings.TrimSpace(value)
		return value, ok && value != ""
	}
	if v, ok := get("WALLET_GRPC_ADDRESS"); ok {
		cfg.Wallet.Address = v
	}
	if v, ok := get("GATEWAY_LISTEN"); ok {
		cfg.ListenAddress = v
	}
	if v, ok := get("GATEWAY_ENV"); ok {
		cfg.Environment = v
	}
	if v, ok := get("GATEWAY_LOG_LEVEL"); ok {
		cfg.Logging.Level = v
	}
	if v, ok := get("GATEWAY_AUTH_HMAC_SECRET"); ok {
		cfg.Auth.HMACSecret = v
	}
	if v, ok := get("GATEWAY_COMPAT_MODE"); ok {
		cfg.Compat.Mode = v
	}
	if v, ok := get("OTEL_EXPORTER_OTLP_ENDPOINT"); ok {
		cfg.Observability.OTLPEndpoint = v
	}
	if v, ok := get("OTEL_EXPORTER_OTLP_HEADERS"); ok {
		cfg.Observability.OTLPHeaders = v
	}
	return nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Auth.ClockSkew <= 0 {
		cfg.Auth.ClockSkew = 2 * time.Minute
	}
	if cfg.Auth.ScopeClaim == "" {
		cfg.Auth.ScopeClaim = "scope"
	}
	if cfg.Idempotency.TTL <= 0 {
		cfg.Idempotency.TTL = 24 * time.Hour
	}
	if cfg.Idempotency.PruneInterval <= 0 {
		cfg.Idempotency.PruneInterval = time.Hour
	}
	if cfg.Transfer.MaxBodyBytes <= 0 {
		cfg.Transfer.MaxBodyBytes = 1 << 20
	}
}

var ErrAuthEnabledNotConfigured = errors.New("auth.enabled must be explicitly set for sensitive deployments")

func (cfg *Config) Validate() error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		return fmt.Errorf("listen address is required")
	}
	if strings.TrimSpace(cfg.Wallet.Address) == "" {
		return fmt.Errorf("wallet.address is required")
	}
	if cfg.Wallet.CallTimeout <= 0 {
		return fmt.Errorf("wallet.callTimeout must be positive")
	}
	if cfg.Wallet.StreamTimeout <= 0 {
		return fmt.Errorf("wallet.streamTimeout must be positive")
	}
	// A zero writeTimeout leaves responses unbounded.
	if cfg.WriteTimeout > 0 && cfg.WriteTimeout <= cfg.Wallet.StreamTimeout {
		return fmt.Errorf("writeTimeout (%s) must exceed wallet.streamTimeout (%s)", cfg.WriteTimeout, cfg.Wallet.StreamTimeout)
	}
	if cfg.Transfer.MaxPaymentIDBytes < 1 || cfg.Transfer.MaxPaymentIDBytes > 256 {
		return fmt.Errorf("transfer.maxPaymentIdBytes must be between 1 and 256")
	}
	if cfg.isSensitiveDeployment() && !cfg.Auth.enabledSet {
		return ErrAuthEnabledNotConfigured
	}
	if cfg.Auth.Enabled && strings.TrimSpace(cfg.Auth.HMACSecret) == "" {
		return fmt.Errorf("auth.hmacSecret is required when auth is enabled")
	}
	seen := make(map[string]struct{}, len(cfg.RateLimits))
	for i, limit := range cfg.RateLimits {
		id := strings.TrimSpace(limit.ID)
		if id == "" {
			return fmt.Errorf("rateLimits[%d].id is required", i)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("rateLimits[%d].id %q is duplicated", i, id)
		}
		seen[id] = struct{}{}
		if limit.PerSecond() <= 0 {
			return fmt.Errorf("rateLimits[%d] needs ratePerSecond or requestsPerMinute", i)
		}
	}
	if _, err := logging.ParseLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if r := cfg.Observability.SampleRatio; r < 0 || r > 1 {
		return fmt.Errorf("observability.sampleRatio must be within [0, 1]")
	}
	return nil
}

func (cfg *Config) isSensitiveDeployment() bool {
	if cfg == nil {
		return false
	}
	return strings.TrimSpace(cfg.Security.TLSCertFile) != "" ||
		strings.TrimSpace(cfg.Security.TLSKeyFile) != "" ||
		strings.TrimSpace(cfg.Security.TLSClientCAFile) != ""
}
