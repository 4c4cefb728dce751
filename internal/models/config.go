// Package models - Service configuration and operational settings.
// This file defines the configuration structures for all service components.
//
// Configuration Philosophy:
// - Hierarchical configuration with logical grouping (server, rate_limit, etc.)
// - Environment-friendly defaults that work out of the box
// - Comprehensive validation to catch misconfigurations early
// - Security-first approach with safe defaults
package models

import (
	"errors"
	"fmt"
	"time"
)

// Rate limit store type constants
const (
	StoreTypeMemory = "memory"
	StoreTypeRedis  = "redis"
)

// Config is the root configuration structure containing all service settings.
type Config struct {
	Server        ServerConfig        `yaml:"server" json:"server"`               // HTTP server configuration
	RateLimit     RateLimitConfig     `yaml:"rate_limit" json:"rate_limit"`       // Rate limiting policy
	Security      SecurityConfig      `yaml:"security" json:"security"`           // Admin endpoint protection
	Logging       LoggingConfig       `yaml:"logging" json:"logging"`             // Logging and output configuration
	Metrics       MetricsConfig       `yaml:"metrics" json:"metrics"`             // Monitoring and metrics
	Observability ObservabilityConfig `yaml:"observability" json:"observability"` // Tracing and service identity
}

type ServerConfig struct {
	Port         int           `yaml:"port" json:"port"`
	Host         string        `yaml:"host" json:"host"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	TLSEnabled   bool          `yaml:"tls_enabled" json:"tls_enabled"`
	TLSCertFile  string        `yaml:"tls_cert_file" json:"tls_cert_file"`
	TLSKeyFile   string        `yaml:"tls_key_file" json:"tls_key_file"`
}

// RateLimitConfig describes the sliding-window policy applied to incoming
// requests. EndpointLimits override the global MaxRequests/Window pair for
// individual routes; identifiers in Whitelist bypass limiting entirely.
type RateLimitConfig struct {
	Enabled         bool                     `yaml:"enabled" json:"enabled"`
	Store           string                   `yaml:"store" json:"store"`
	MaxRequests     int                      `yaml:"max_requests" json:"max_requests"`
	Window          time.Duration            `yaml:"window" json:"window"`
	BurstLimit      int                      `yaml:"burst_limit" json:"burst_limit"`
	Whitelist       []string                 `yaml:"whitelist" json:"whitelist"`
	EndpointLimits  map[string]EndpointLimit `yaml:"endpoint_limits" json:"endpoint_limits"`
	CleanupInterval time.Duration            `yaml:"cleanup_interval" json:"cleanup_interval"`
	Redis           RedisConfig              `yaml:"redis" json:"redis"`
}

// EndpointLimit is a per-route override of the global window policy.
type EndpointLimit struct {
	MaxRequests int           `yaml:"max_requests" json:"max_requests"`
	Window      time.Duration `yaml:"window" json:"window"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
	PoolSize int    `yaml:"pool_size" json:"pool_size"`
}

type SecurityConfig struct {
	// AdminKey protects the block/reset/config endpoints. When empty, the
	// admin surface is disabled entirely.
	AdminKey string `yaml:"admin_key" json:"admin_key"`
}

type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	Format   string `yaml:"format" json:"format"`
	Output   string `yaml:"output" json:"output"`
	FilePath string `yaml:"file_path" json:"file_path"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
	Port    int    `yaml:"port" json:"port"`
}

type ObservabilityConfig struct {
	ServiceName string        `yaml:"service_name" json:"service_name"`
	Tracing     TracingConfig `yaml:"tracing" json:"tracing"`
}

type TracingConfig struct {
	Enabled      bool   `yaml:"enabled" json:"enabled"`
	Exporter     string `yaml:"exporter" json:"exporter"`
	OTLPEndpoint string `yaml:"otlp_endpoint" json:"otlp_endpoint"`
}

// NewDefaultConfig creates a configuration with production-ready defaults.
//
// Default Values Rationale:
// - Port 8080: Standard non-privileged HTTP port
// - 30-second timeouts: Balance between user experience and resource protection
// - 100 requests / 60s window, burst of 10: conservative but usable defaults
// - Loopback whitelist: local health probes are never throttled
// - Tighter per-endpoint limits on the expensive CUBE API routes
// - Memory store: no external dependencies required to start
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
			TLSEnabled:   false,
		},
		RateLimit: RateLimitConfig{
			Enabled:     true,
			Store:       StoreTypeMemory,
			MaxRequests: 100,
			Window:      60 * time.Second,
			BurstLimit:  10,
			Whitelist:   []string{"127.0.0.1", "::1"},
			EndpointLimits: map[string]EndpointLimit{
				"/api/auth/login": {MaxRequests: 5, Window: 5 * time.Minute},
				"/api/ai/chat":    {MaxRequests: 10, Window: 60 * time.Second},
				"/api/contact":    {MaxRequests: 3, Window: 10 * time.Minute},
			},
			CleanupInterval: 60 * time.Second,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				DB:       0,
				PoolSize: 10,
			},
		},
		Security: SecurityConfig{
			AdminKey: "",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9090,
		},
		Observability: ObservabilityConfig{
			ServiceName: "cubegate",
			Tracing: TracingConfig{
				Enabled:  false,
				Exporter: "stdout",
			},
		},
	}
}

func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}

	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("invalid rate limit config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("invalid metrics config: %w", err)
	}

	return nil
}

func (sc *ServerConfig) Validate() error {
	if sc.Port <= 0 || sc.Port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}

	if sc.Host == "" {
		return errors.New("host cannot be empty")
	}

	if sc.ReadTimeout < 0 {
		return errors.New("read timeout cannot be negative")
	}

	if sc.WriteTimeout < 0 {
		return errors.New("write timeout cannot be negative")
	}

	if sc.IdleTimeout < 0 {
		return errors.New("idle timeout cannot be negative")
	}

	if sc.TLSEnabled {
		if sc.TLSCertFile == "" {
			return errors.New("TLS cert file is required when TLS is enabled")
		}
		if sc.TLSKeyFile == "" {
			return errors.New("TLS key file is required when TLS is enabled")
		}
	}

	return nil
}

func (rc *RateLimitConfig) Validate() error {
	if rc.Store != StoreTypeMemory && rc.Store != StoreTypeRedis {
		return fmt.Errorf("invalid rate limit store: %s", rc.Store)
	}

	if rc.MaxRequests <= 0 {
		return errors.New("max_requests must be positive")
	}

	if rc.Window <= 0 {
		return errors.New("window must be positive")
	}

	if rc.BurstLimit <= 0 {
		return errors.New("burst_limit must be positive")
	}

	if rc.CleanupInterval <= 0 {
		return errors.New("cleanup_interval must be positive")
	}

	for endpoint, limit := range rc.EndpointLimits {
		if endpoint == "" {
			return errors.New("endpoint limit key cannot be empty")
		}
		if limit.MaxRequests <= 0 {
			return fmt.Errorf("endpoint %s: max_requests must be positive", endpoint)
		}
		if limit.Window <= 0 {
			return fmt.Errorf("endpoint %s: window must be positive", endpoint)
		}
	}

	if rc.Store == StoreTypeRedis && rc.Redis.Addr == "" {
		return errors.New("redis addr is required for the redis store")
	}

	return nil
}

func (lc *LoggingConfig) Validate() error {
	validLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLevels, lc.Level) {
		return fmt.Errorf("invalid log level: %s", lc.Level)
	}

	validFormats := []string{"json", "text"}
	if !contains(validFormats, lc.Format) {
		return fmt.Errorf("invalid log format: %s", lc.Format)
	}

	validOutputs := []string{"stdout", "stderr", "file"}
	if !contains(validOutputs, lc.Output) {
		return fmt.Errorf("invalid log output: %s", lc.Output)
	}

	if lc.Output == "file" && lc.FilePath == "" {
		return errors.New("file path is required when output is file")
	}

	return nil
}

func (mc *MetricsConfig) Validate() error {
	if !mc.Enabled {
		return nil
	}

	if mc.Port <= 0 || mc.Port > 65535 {
		return errors.New("metrics port must be between 1 and 65535")
	}

	if mc.Path == "" {
		return errors.New("metrics path cannot be empty")
	}

	return nil
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
