package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the engine's tunables. Zero values are filled from defaults,
// so a config file only needs the keys it wants to change.
type Config struct {
	// DataDir is where the status log and allocator watermark live.
	DataDir string

	// ClogCacheSize bounds the status log's in-memory page cache, in bytes.
	ClogCacheSize int64

	// MaxSnapshotAge bounds how long any single snapshot may pin the horizon.
	// Operations through an older snapshot fail with ErrSnapshotTooOld.
	MaxSnapshotAge time.Duration

	// MaxIdleTransaction bounds how long an open transaction may sit idle
	// before the reaper force-aborts it.
	MaxIdleTransaction time.Duration

	// ReaperInterval is how often the reaper scans for offenders.
	ReaperInterval time.Duration
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		DataDir:            "helixdata",
		ClogCacheSize:      4 << 20,
		MaxSnapshotAge:     10 * time.Minute,
		MaxIdleTransaction: 30 * time.Minute,
		ReaperInterval:     30 * time.Second,
	}
}

// rawConfig is the on-disk shape. Durations come in as strings ("2m", "30s")
// and go through time.ParseDuration.
type rawConfig struct {
	DataDir            string `yaml:"data_dir"`
	ClogCacheSize      int64  `yaml:"clog_cache_size"`
	MaxSnapshotAge     string `yaml:"max_snapshot_age"`
	MaxIdleTransaction string `yaml:"max_idle_transaction"`
	ReaperInterval     string `yaml:"reaper_interval"`
}

// Load reads a YAML config file over the defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if raw.DataDir != "" {
		cfg.DataDir = raw.DataDir
	}
	if raw.ClogCacheSize > 0 {
		cfg.ClogCacheSize = raw.ClogCacheSize
	}
	for _, d := range []struct {
		value string
		key   string
		dst   *time.Duration
	}{
		{raw.MaxSnapshotAge, "max_snapshot_age", &cfg.MaxSnapshotAge},
		{raw.MaxIdleTransaction, "max_idle_transaction", &cfg.MaxIdleTransaction},
		{raw.ReaperInterval, "reaper_interval", &cfg.ReaperInterval},
	} {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return cfg, fmt.Errorf("invalid %s %q: %w", d.key, d.value, err)
		}
		*d.dst = parsed
	}
	return cfg.withDefaults(), nil
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.DataDir == "" {
		c.DataDir = def.DataDir
	}
	if c.ClogCacheSize <= 0 {
		c.ClogCacheSize = def.ClogCacheSize
	}
	if c.MaxSnapshotAge <= 0 {
		c.MaxSnapshotAge = def.MaxSnapshotAge
	}
	if c.MaxIdleTransaction <= 0 {
		c.MaxIdleTransaction = def.MaxIdleTransaction
	}
	if c.ReaperInterval <= 0 {
		c.ReaperInterval = def.ReaperInterval
	}
	return c
}
