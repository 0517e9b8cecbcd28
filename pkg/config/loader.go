package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix is the prefix of environment overrides (TENANTOBS_DATASET_DIR -> dataset.dir).
	EnvPrefix = "TENANTOBS_"

	maxConfigFileSize = 1024 * 1024 // 1MB
)

// Config is the runtime configuration of the pipeline and its collaborators.
type Config struct {
	Dataset DatasetConfig `koanf:"dataset"`
	Report  ReportConfig  `koanf:"report"`
	Storage StorageConfig `koanf:"storage"`
	Server  ServerConfig  `koanf:"server"`
	Log     LogConfig     `koanf:"log"`
}

// DatasetConfig describes where the sources live and which ones are expected.
type DatasetConfig struct {
	Dir          string   `koanf:"dir"`
	Cutoff       string   `koanf:"cutoff"`
	Sources      []string `koanf:"sources"`
	SourcePrefix string   `koanf:"source_prefix"`
	SourceSuffix string   `koanf:"source_suffix"`
}

// ReportConfig is consumed only by presentation collaborators.
type ReportConfig struct {
	Titles bool `koanf:"titles"`
}

// StorageConfig configures the snapshot store.
type StorageConfig struct {
	Path        string `koanf:"path"`
	InMemory    bool   `koanf:"in_memory"`
	MaxMemoryMB int64  `koanf:"max_memory_mb"`
}

// ServerConfig configures the read API.
type ServerConfig struct {
	Port           string        `koanf:"port"`
	ReloadInterval time.Duration `koanf:"reload_interval"`
	Watch          bool          `koanf:"watch"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{
		Report: ReportConfig{Titles: true},
	}
	applyDefaults(cfg)
	return cfg
}

// Load reads configuration from an optional YAML file, then overrides it
// with TENANTOBS_* environment variables.
//
// Precedence (highest to lowest):
//  1. Environment variables
//  2. YAML file at path (skipped when path is empty)
//  3. Defaults
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// report.titles defaults to true; a bool zero value can't be told apart later.
	if err := k.Load(rawbytes.Provider([]byte("report:\n  titles: true\n")), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		content, err := readConfigFile(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// TENANTOBS_DATASET_SOURCE_PREFIX -> dataset.source_prefix
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func readConfigFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("config path %s is a directory", path)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file %s exceeds %d bytes", path, maxConfigFileSize)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Dataset.Cutoff == "" {
		cfg.Dataset.Cutoff = DefaultCutoff
	}
	if len(cfg.Dataset.Sources) == 0 {
		cfg.Dataset.Sources = append([]string(nil), DefaultSources...)
	}
	if cfg.Dataset.SourcePrefix == "" {
		cfg.Dataset.SourcePrefix = SourcePrefix
	}
	if cfg.Dataset.SourceSuffix == "" {
		cfg.Dataset.SourceSuffix = SourceSuffix
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = DefaultStoragePath
	}
	if cfg.Storage.MaxMemoryMB == 0 {
		cfg.Storage.MaxMemoryMB = DefaultMaxMemoryMB
	}
	if cfg.Server.Port == "" {
		cfg.Server.Port = DefaultPort
	}
	if cfg.Server.ReloadInterval == 0 {
		cfg.Server.ReloadInterval = DefaultReloadInterval
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
}

// Validate checks values that defaults can't repair.
func (c *Config) Validate() error {
	if _, err := c.CutoffTime(); err != nil {
		return err
	}
	for _, s := range c.Dataset.Sources {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("dataset.sources contains an empty entry")
		}
	}
	if c.Server.ReloadInterval < 0 {
		return fmt.Errorf("server.reload_interval must not be negative")
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}
	return nil
}

// CutoffTime parses dataset.cutoff as a UTC date.
func (c *Config) CutoffTime() (time.Time, error) {
	t, err := time.ParseInLocation(CutoffLayout, c.Dataset.Cutoff, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid dataset.cutoff %q: %w", c.Dataset.Cutoff, err)
	}
	return t, nil
}
