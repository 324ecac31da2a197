package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/volscan/volscan/internal/core"
)

// Config represents the complete application configuration.
// Layer 1: built-in defaults (setDefaults)
// Layer 2: config file (--config, $XDG_CONFIG_HOME/volscan/config.yaml, ./config)
// Layer 3: .env file, environment variables and runtime overrides
type Config struct {
	Server    ServerConfig              `mapstructure:"server"`
	Store     StoreConfig               `mapstructure:"store"`
	Logging   LoggingConfig             `mapstructure:"logging"`
	Metrics   MetricsConfig             `mapstructure:"metrics"`
	Health    HealthConfig              `mapstructure:"health"`
	Client    ClientConfig              `mapstructure:"client"`
	Workloads map[string]WorkloadConfig `mapstructure:"workloads"`
	FRED      FREDConfig                `mapstructure:"fred"`
	Watch     WatchConfig               `mapstructure:"watch"`
	Workers   int                       `mapstructure:"workers"`
	EnvFile   string                    `mapstructure:"env_file"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StoreConfig contains database configuration for libsql/Turso
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// LoggingConfig contains logging configuration.
// Profile is SIMPLE for CLI use or STRUCTURED for the server.
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// ClientConfig configures the rate-limited API client.
type ClientConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	Token      string `mapstructure:"token"`
	AuthScheme string `mapstructure:"auth_scheme"`
	UserAgent  string `mapstructure:"user_agent"`

	AcquireTimeout time.Duration `mapstructure:"acquire_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	DialTimeout    time.Duration `mapstructure:"dial_timeout"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`

	MaxReconnectTries   int `mapstructure:"max_reconnect_tries"`
	MaxRedirects        int `mapstructure:"max_redirects"`
	MaxRateLimitRetries int `mapstructure:"max_rate_limit_retries"`

	InsecureSkipVerify bool `mapstructure:"insecure_skip_verify"`

	// PersistBuckets saves bucket state to the store after each exchange and
	// restores it at startup.
	PersistBuckets bool `mapstructure:"persist_buckets"`
	// Journal records every exchange in the store.
	Journal bool `mapstructure:"journal"`
	// JournalRetention bounds the age of journal entries kept by serve and
	// watch. Zero keeps everything.
	JournalRetention time.Duration `mapstructure:"journal_retention"`
}

// WorkloadConfig is a named request profile. It also carries the bucket
// settings of its workload type.
type WorkloadConfig struct {
	Type    string            `mapstructure:"type"`
	Method  string            `mapstructure:"method"`
	BaseURL string            `mapstructure:"base_url"`
	Path    string            `mapstructure:"path"`
	Headers map[string]string `mapstructure:"headers"`
	Payload string            `mapstructure:"payload"`
	Special bool              `mapstructure:"special"`
	Spacing time.Duration     `mapstructure:"spacing"`
	Label   string            `mapstructure:"label"`
}

// FREDConfig configures the risk-free rate lookup.
type FREDConfig struct {
	BaseURL      string `mapstructure:"base_url"`
	APIKey       string `mapstructure:"api_key"`
	Series       string `mapstructure:"series"`
	WorkloadType string `mapstructure:"workload_type"`
}

// WatchConfig configures the watchlist polling loop.
type WatchConfig struct {
	File            string        `mapstructure:"file"`
	WorkloadType    string        `mapstructure:"workload_type"`
	PathTemplate    string        `mapstructure:"path_template"`
	Interval        time.Duration `mapstructure:"interval"`
	Rate            float64       `mapstructure:"rate"`
	Burst           int           `mapstructure:"burst"`
	MarketHoursOnly bool          `mapstructure:"market_hours_only"`
}

// TypeName returns the workload type of a profile, defaulting to its name.
func (w WorkloadConfig) TypeName(name string) core.WorkloadType {
	if t := strings.TrimSpace(w.Type); t != "" {
		return core.WorkloadType(t)
	}
	return core.WorkloadType(name)
}

// Build turns a profile into a workload. Headers are added in key order.
func (w WorkloadConfig) Build(name string) (core.Workload, error) {
	method, err := core.ParseMethod(w.Method)
	if err != nil {
		return core.Workload{}, fmt.Errorf("workload %s: %w", name, err)
	}
	payload, err := core.ParsePayloadKind(w.Payload)
	if err != nil {
		return core.Workload{}, fmt.Errorf("workload %s: %w", name, err)
	}

	out := core.Workload{
		Type:    w.TypeName(name),
		Method:  method,
		BaseURL: strings.TrimSpace(w.BaseURL),
		Path:    strings.TrimSpace(w.Path),
		Payload: payload,
		Label:   w.Label,
	}
	if out.Label == "" {
		out.Label = name
	}

	keys := make([]string, 0, len(w.Headers))
	for key := range w.Headers {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		out.SetHeader(key, w.Headers[key])
	}
	return out, nil
}

// Workload looks up and builds a named profile.
func (c *Config) Workload(name string) (core.Workload, error) {
	if c == nil {
		return core.Workload{}, fmt.Errorf("config is not loaded")
	}
	profile, ok := c.Workloads[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return core.Workload{}, fmt.Errorf("unknown workload profile: %s", name)
	}
	return profile.Build(name)
}
