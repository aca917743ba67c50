// Package config loads and validates the index engine configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sushant-115/namedex/core/storage/pagefile"
	"github.com/sushant-115/namedex/pkg/logger"
	"github.com/sushant-115/namedex/pkg/telemetry"
)

const (
	// minPoolSize keeps enough frames resident for a full descent plus the
	// sibling and parent pages a split or merge pins at once.
	minPoolSize = 16

	defaultPoolSize = 128
)

// StorageConfig configures the index page file and its buffer pool.
type StorageConfig struct {
	// Path is the index page file on disk. Created on first open.
	Path string `yaml:"path"`
	// PageSize is the on-disk page size in bytes. Fixed at creation time;
	// reopening with a different value is an error.
	PageSize int `yaml:"page_size"`
	// PoolSize is the number of page frames kept in memory.
	PoolSize int `yaml:"pool_size"`
}

// Config is the root configuration for the index engine.
type Config struct {
	Storage   StorageConfig    `yaml:"storage"`
	Logging   logger.Config    `yaml:"logging"`
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// Default returns the configuration used when no file is supplied. The
// storage path still has to be set by the caller.
func Default() Config {
	return Config{
		Storage: StorageConfig{
			PageSize: pagefile.DefaultPageSize,
			PoolSize: defaultPoolSize,
		},
		Logging: logger.Config{
			Level:      "info",
			Format:     "json",
			OutputFile: "stderr",
		},
		Telemetry: telemetry.Config{
			Enabled:     false,
			ServiceName: "namedex",
		},
	}
}

// Load reads a YAML configuration file, fills in defaults for omitted
// fields and validates the result.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Storage.PageSize == 0 {
		c.Storage.PageSize = pagefile.DefaultPageSize
	}
	if c.Storage.PoolSize == 0 {
		c.Storage.PoolSize = defaultPoolSize
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "namedex"
	}
}

// Validate rejects configurations the storage layer cannot serve.
func (c *Config) Validate() error {
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path must be set")
	}
	if c.Storage.PageSize < pagefile.MinPageSize {
		return fmt.Errorf("storage.page_size %d is below the minimum %d", c.Storage.PageSize, pagefile.MinPageSize)
	}
	if c.Storage.PoolSize < minPoolSize {
		return fmt.Errorf("storage.pool_size %d is below the minimum %d", c.Storage.PoolSize, minPoolSize)
	}
	return nil
}
