package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend names accepted in CollectionConfig.Backend.
const (
	BackendPairtree = "pairtree"
	BackendBolt     = "bolt"
	BackendS3       = "s3"
	BackendMemory   = "memory"
)

// Config holds runtime configuration for augeias.
//
// YAML example:
//
//	address: ":6543"
//	logLevel: "info"
//	collections:
//	  - name: "default"
//	    dataDir: "./data/default"
//	  - name: "beeldbank"
//	    backend: "bolt"
//	    dataDir: "./data/beeldbank"
//	    uriPattern: "https://id.erfgoed.net/beeldbank/"
//
// Environment overrides:
//
//	AUGEIAS_ADDR, AUGEIAS_ADMIN_ADDR, AUGEIAS_LOG_LEVEL, AUGEIAS_LOG_ENCODING
//	AUGEIAS_DATA_DIR sets the data directory of the default collection.
//	AUGEIAS_MAX_OBJECT_BYTES, AUGEIAS_TRACING_*, AUGEIAS_JANITOR_*
//	AUGEIAS_CONFIG path to YAML config file; if empty, loader tries ./config.yaml then defaults.
type Config struct {
	Address      string             `yaml:"address"`
	AdminAddress string             `yaml:"adminAddress"` // optional separate admin port
	LogLevel     string             `yaml:"logLevel"`
	LogEncoding  string             `yaml:"logEncoding"` // "console" or "json"
	Collections  []CollectionConfig `yaml:"collections"`
	Limits       LimitsConfig       `yaml:"limits"`
	Tracing      TracingConfig      `yaml:"tracing"`
	Janitor      JanitorConfig      `yaml:"janitor"`
}

// CollectionConfig describes one named collection and the backend holding it.
type CollectionConfig struct {
	Name    string `yaml:"name"`
	Backend string `yaml:"backend,omitempty"` // pairtree (default), bolt, s3 or memory
	DataDir string `yaml:"dataDir,omitempty"`

	URIBase      string `yaml:"uriBase,omitempty"`
	URIPattern   string `yaml:"uriPattern,omitempty"`
	URISeparator string `yaml:"uriSeparator,omitempty"`

	PairtreePrefix string   `yaml:"pairtreePrefix,omitempty"`
	NoSync         bool     `yaml:"noSync,omitempty"`
	S3             S3Config `yaml:"s3,omitempty"`
}

// S3Config points a collection at an S3 bucket.
type S3Config struct {
	Bucket         string `yaml:"bucket"`
	Prefix         string `yaml:"prefix,omitempty"`
	Region         string `yaml:"region,omitempty"`
	Endpoint       string `yaml:"endpoint,omitempty"`
	ForcePathStyle bool   `yaml:"forcePathStyle,omitempty"`
}

// LimitsConfig controls request size limits (bytes). Zero disables the check.
type LimitsConfig struct {
	MaxObjectBytes int64 `yaml:"maxObjectBytes"`
}

// TracingConfig controls OpenTelemetry tracing.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`              // OTLP collector endpoint (host:port or URL)
	Protocol    string  `yaml:"protocol,omitempty"`    // "grpc" (default) or "http"
	SampleRatio float64 `yaml:"sampleRatio,omitempty"` // 0.0 - 1.0
	ServiceName string  `yaml:"serviceName,omitempty"`
}

// JanitorConfig controls the periodic sweep of stale write temporaries.
type JanitorConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Interval    string `yaml:"interval,omitempty"`  // e.g., "15m"
	OlderThan   string `yaml:"olderThan,omitempty"` // e.g., "1h"
	Concurrency int    `yaml:"concurrency,omitempty"`
}

// IntervalDuration parses Interval, falling back to 15m.
func (j JanitorConfig) IntervalDuration() time.Duration {
	return parseDurationOr(j.Interval, 15*time.Minute)
}

// OlderThanDuration parses OlderThan, falling back to 1h.
func (j JanitorConfig) OlderThanDuration() time.Duration {
	return parseDurationOr(j.OlderThan, time.Hour)
}

func parseDurationOr(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// Default returns a Config with safe, local defaults: a single pairtree
// collection named "default" under ./data.
func Default() Config {
	return Config{
		Address:     ":6543",
		LogLevel:    "info",
		LogEncoding: "console",
		Collections: []CollectionConfig{{
			Name:    "default",
			Backend: BackendPairtree,
			DataDir: "./data/default",
		}},
		Limits: LimitsConfig{
			MaxObjectBytes: 1 << 30, // 1 GiB
		},
		Tracing: TracingConfig{
			Protocol:    "grpc",
			ServiceName: "augeias",
		},
		Janitor: JanitorConfig{
			Interval:    "15m",
			OlderThan:   "1h",
			Concurrency: 2,
		},
	}
}

// Load reads configuration from path. If path is empty, it attempts to read
// ./config.yaml; if not found, returns Default(). The result is validated.
func Load(path string) (Config, error) {
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	cfg = applyEnvOverrides(cfg)
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	for i := range c.Collections {
		col := &c.Collections[i]
		col.Name = strings.TrimSpace(col.Name)
		col.Backend = strings.ToLower(strings.TrimSpace(col.Backend))
		if col.Backend == "" {
			col.Backend = BackendPairtree
		}
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.LogEncoding = strings.ToLower(strings.TrimSpace(c.LogEncoding))
}

// Validate reports the first configuration problem found.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Address) == "" {
		return errors.New("config: address must not be empty")
	}
	if len(c.Collections) == 0 {
		return errors.New("config: at least one collection is required")
	}
	seen := make(map[string]struct{}, len(c.Collections))
	for i, col := range c.Collections {
		if col.Name == "" {
			return fmt.Errorf("config: collections[%d]: name must not be empty", i)
		}
		if _, dup := seen[col.Name]; dup {
			return fmt.Errorf("config: collection %q defined twice", col.Name)
		}
		seen[col.Name] = struct{}{}

		switch col.Backend {
		case BackendPairtree, BackendBolt:
			if col.DataDir == "" {
				return fmt.Errorf("config: collection %q: dataDir is required for backend %s", col.Name, col.Backend)
			}
		case BackendS3:
			if col.S3.Bucket == "" {
				return fmt.Errorf("config: collection %q: s3.bucket is required", col.Name)
			}
		case BackendMemory:
		default:
			return fmt.Errorf("config: collection %q: unknown backend %q", col.Name, col.Backend)
		}
	}
	if c.Limits.MaxObjectBytes < 0 {
		return errors.New("config: limits.maxObjectBytes must not be negative")
	}
	switch c.LogEncoding {
	case "", "console", "json":
	default:
		return fmt.Errorf("config: unknown logEncoding %q", c.LogEncoding)
	}
	return nil
}

// EnsureDirs creates collection data directories with 0700 if they don't exist.
func EnsureDirs(cfg Config) error {
	for _, col := range cfg.Collections {
		if col.DataDir == "" || col.Backend == BackendS3 || col.Backend == BackendMemory {
			continue
		}
		abs, err := filepath.Abs(col.DataDir)
		if err != nil {
			return fmt.Errorf("abs path %q: %w", col.DataDir, err)
		}
		if err := os.MkdirAll(abs, 0o700); err != nil {
			return fmt.Errorf("mkdir %q: %w", abs, err)
		}
	}
	return nil
}

func applyEnvOverrides(cfg Config) Config {
	if v := os.Getenv("AUGEIAS_ADDR"); v != "" {
		cfg.Address = v
	}
	if v := os.Getenv("AUGEIAS_ADMIN_ADDR"); v != "" {
		cfg.AdminAddress = v
	}
	if v := os.Getenv("AUGEIAS_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("AUGEIAS_LOG_ENCODING"); v != "" {
		cfg.LogEncoding = v
	}
	if v := os.Getenv("AUGEIAS_DATA_DIR"); v != "" {
		for i := range cfg.Collections {
			if cfg.Collections[i].Name == "default" {
				cfg.Collections[i].DataDir = strings.TrimSpace(v)
			}
		}
	}
	if v := os.Getenv("AUGEIAS_MAX_OBJECT_BYTES"); v != "" {
		if x, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil && x >= 0 {
			cfg.Limits.MaxObjectBytes = x
		}
	}

	if b, ok := envBool("AUGEIAS_TRACING_ENABLED"); ok {
		cfg.Tracing.Enabled = b
	}
	if v := os.Getenv("AUGEIAS_TRACING_ENDPOINT"); v != "" {
		cfg.Tracing.Endpoint = strings.TrimSpace(v)
	}
	if v := os.Getenv("AUGEIAS_TRACING_PROTOCOL"); v != "" {
		p := strings.ToLower(strings.TrimSpace(v))
		if p == "grpc" || p == "http" {
			cfg.Tracing.Protocol = p
		}
	}
	if v := os.Getenv("AUGEIAS_TRACING_SAMPLE"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			cfg.Tracing.SampleRatio = min(max(f, 0), 1)
		}
	}
	if v := os.Getenv("AUGEIAS_TRACING_SERVICE"); v != "" {
		cfg.Tracing.ServiceName = strings.TrimSpace(v)
	}

	if b, ok := envBool("AUGEIAS_JANITOR_ENABLED"); ok {
		cfg.Janitor.Enabled = b
	}
	if v := os.Getenv("AUGEIAS_JANITOR_INTERVAL"); v != "" {
		cfg.Janitor.Interval = strings.TrimSpace(v)
	}
	if v := os.Getenv("AUGEIAS_JANITOR_OLDER_THAN"); v != "" {
		cfg.Janitor.OlderThan = strings.TrimSpace(v)
	}
	if v := os.Getenv("AUGEIAS_JANITOR_CONCURRENCY"); v != "" {
		if x, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && x > 0 {
			cfg.Janitor.Concurrency = x
		}
	}
	return cfg
}

// envBool reads a truthy/falsy variable. ok is false when unset or unrecognized.
func envBool(name string) (value, ok bool) {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "yes", "y", "on":
		return true, true
	case "0", "false", "no", "n", "off":
		return false, true
	}
	return false, false
}
