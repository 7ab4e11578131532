// Package config loads the dashboard server configuration from a YAML file and
// COSTWATCH_* environment overrides.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/costwatch/costwatch-dashboard/dataset"
)

// Consistency modes for overlay projection.
const (
	ConsistencyRelaxed = "relaxed"
	ConsistencyStrict  = "strict"
)

// Config holds server configuration.
type Config struct {
	Addr        string          `yaml:"addr"`
	CORSOrigin  string          `yaml:"cors_origin"`
	BearerToken string          `yaml:"bearer_token"`
	TLS         TLSConfig       `yaml:"tls"`
	Log         LogConfig       `yaml:"log"`
	Secret      ProviderConfig  `yaml:"secret"`
	Source      ProviderConfig  `yaml:"source"`
	Refresh     RefreshConfig   `yaml:"refresh"`
	Consistency string          `yaml:"consistency"`
	Views       ViewsConfig     `yaml:"views"`
	Threshold   ThresholdConfig `yaml:"threshold"`
	// Location is the IANA zone used for table date-time text. Chart ticks stay in UTC.
	Location string `yaml:"location"`
}

// TLSConfig enables HTTPS when both files are set.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// ProviderConfig names a registered provider or a plugin binary plus its config.
type ProviderConfig struct {
	Provider string         `yaml:"provider" json:"provider"`
	Plugin   string         `yaml:"plugin" json:"plugin,omitempty"`
	Config   map[string]any `yaml:"config" json:"config"`
}

// Empty reports whether neither a provider nor a plugin is set.
func (p ProviderConfig) Empty() bool {
	return strings.TrimSpace(p.Provider) == "" && strings.TrimSpace(p.Plugin) == ""
}

// RefreshConfig holds per-dataset refresh intervals in milliseconds.
type RefreshConfig struct {
	UsageMs        int64 `yaml:"usage_ms"`
	PercentilesMs  int64 `yaml:"percentiles_ms"`
	AlertWindowsMs int64 `yaml:"alert_windows_ms"`
	AnomaliesMs    int64 `yaml:"anomalies_ms"`
	AlertRulesMs   int64 `yaml:"alert_rules_ms"`
}

// ViewsConfig controls view lifetime.
type ViewsConfig struct {
	TTLMs int64 `yaml:"ttl_ms"`
}

// ThresholdConfig throttles upstream threshold writes. Zero disables throttling.
type ThresholdConfig struct {
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Addr:       ":8080",
		CORSOrigin: "*",
		Log:        LogConfig{Level: "info", Format: "text"},
		Refresh: RefreshConfig{
			UsageMs:        30000,
			PercentilesMs:  30000,
			AlertWindowsMs: 30000,
			AnomaliesMs:    30000,
			AlertRulesMs:   10000,
		},
		Consistency: ConsistencyRelaxed,
		Views:       ViewsConfig{TTLMs: int64(30 * time.Minute / time.Millisecond)},
		Threshold:   ThresholdConfig{Burst: 1},
		Location:    "UTC",
	}
}

// Load reads path (optional), applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := cfg.decode(data); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	ms := func(key string, dst *int64) error {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = n
		return nil
	}
	jsonMap := func(key string, dst *map[string]any) error {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			return fmt.Errorf("invalid config in %s: %w", key, err)
		}
		*dst = m
		return nil
	}

	str("COSTWATCH_ADDR", &c.Addr)
	str("COSTWATCH_CORS_ORIGIN", &c.CORSOrigin)
	str("COSTWATCH_BEARER_TOKEN", &c.BearerToken)
	str("COSTWATCH_TLS_CERT_FILE", &c.TLS.CertFile)
	str("COSTWATCH_TLS_KEY_FILE", &c.TLS.KeyFile)
	str("COSTWATCH_LOG_LEVEL", &c.Log.Level)
	str("COSTWATCH_LOG_FORMAT", &c.Log.Format)
	str("COSTWATCH_SECRET_PROVIDER", &c.Secret.Provider)
	str("COSTWATCH_SECRET_PLUGIN", &c.Secret.Plugin)
	str("COSTWATCH_SOURCE_PROVIDER", &c.Source.Provider)
	str("COSTWATCH_SOURCE_PLUGIN", &c.Source.Plugin)
	str("COSTWATCH_CONSISTENCY", &c.Consistency)
	str("COSTWATCH_LOCATION", &c.Location)

	for _, step := range []error{
		jsonMap("COSTWATCH_SECRET_CONFIG", &c.Secret.Config),
		jsonMap("COSTWATCH_SOURCE_CONFIG", &c.Source.Config),
		ms("COSTWATCH_REFRESH_USAGE_MS", &c.Refresh.UsageMs),
		ms("COSTWATCH_REFRESH_PERCENTILES_MS", &c.Refresh.PercentilesMs),
		ms("COSTWATCH_REFRESH_ALERT_WINDOWS_MS", &c.Refresh.AlertWindowsMs),
		ms("COSTWATCH_REFRESH_ANOMALIES_MS", &c.Refresh.AnomaliesMs),
		ms("COSTWATCH_REFRESH_ALERT_RULES_MS", &c.Refresh.AlertRulesMs),
		ms("COSTWATCH_VIEW_TTL_MS", &c.Views.TTLMs),
	} {
		if step != nil {
			return step
		}
	}

	if v, ok := lookup("COSTWATCH_THRESHOLD_RATE"); ok && strings.TrimSpace(v) != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("invalid COSTWATCH_THRESHOLD_RATE: %w", err)
		}
		c.Threshold.RatePerSecond = f
	}
	return nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		return fmt.Errorf("both tls.cert_file and tls.key_file must be set together")
	}
	switch c.Consistency {
	case ConsistencyRelaxed, ConsistencyStrict:
	default:
		return fmt.Errorf("unknown consistency mode %q", c.Consistency)
	}
	for name, v := range map[string]int64{
		"usage_ms":         c.Refresh.UsageMs,
		"percentiles_ms":   c.Refresh.PercentilesMs,
		"alert_windows_ms": c.Refresh.AlertWindowsMs,
		"anomalies_ms":     c.Refresh.AnomaliesMs,
		"alert_rules_ms":   c.Refresh.AlertRulesMs,
	} {
		if v <= 0 {
			return fmt.Errorf("refresh.%s must be positive", name)
		}
	}
	if c.Views.TTLMs <= 0 {
		return fmt.Errorf("views.ttl_ms must be positive")
	}
	if c.Threshold.RatePerSecond < 0 {
		return fmt.Errorf("threshold.rate_per_second must not be negative")
	}
	if _, err := time.LoadLocation(c.Location); err != nil {
		return fmt.Errorf("invalid location %q: %w", c.Location, err)
	}
	return nil
}

// Intervals converts the refresh settings for the dataset layer.
func (c *Config) Intervals() dataset.Intervals {
	d := func(v int64) time.Duration { return time.Duration(v) * time.Millisecond }
	return dataset.Intervals{
		dataset.Usage:        d(c.Refresh.UsageMs),
		dataset.Percentiles:  d(c.Refresh.PercentilesMs),
		dataset.AlertWindows: d(c.Refresh.AlertWindowsMs),
		dataset.Anomalies:    d(c.Refresh.AnomaliesMs),
		dataset.AlertRules:   d(c.Refresh.AlertRulesMs),
	}
}

// ViewTTL returns the idle lifetime of a view.
func (c *Config) ViewTTL() time.Duration {
	return time.Duration(c.Views.TTLMs) * time.Millisecond
}

// TimeLocation returns the table zone. Validate guarantees it loads.
func (c *Config) TimeLocation() *time.Location {
	loc, err := time.LoadLocation(c.Location)
	if err != nil {
		return time.UTC
	}
	return loc
}
