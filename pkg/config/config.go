// Package config loads the YAML configuration that wires together the
// disk manager, buffer pool, logger, and telemetry for an Engine.
package config

import (
	"fmt"
	"os"

	"github.com/emberdb/storage/core/storage/buffer"
	"github.com/emberdb/storage/pkg/logger"
	"github.com/emberdb/storage/pkg/telemetry"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for an embedded storage Engine.
type Config struct {
	// DataFile is the path to the single database file on disk.
	DataFile string `yaml:"data_file"`
	// CreateIfMissing allows OpenOrCreate to create DataFile when it
	// doesn't already exist.
	CreateIfMissing bool `yaml:"create_if_missing"`
	// BufferPoolSize is the number of page frames held in memory.
	BufferPoolSize int `yaml:"buffer_pool_size"`
	// Replacer selects the eviction policy: "lru" or "clock".
	Replacer buffer.ReplacerKind `yaml:"replacer"`

	Logger    logger.Config    `yaml:"logger"`
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// Default returns a Config suitable for an embedder that wants to start
// quickly without a config file: a modest in-memory-sized pool, LRU
// eviction, console logging, and telemetry disabled.
func Default() Config {
	return Config{
		DataFile:        "emberdb.db",
		CreateIfMissing: true,
		BufferPoolSize:  256,
		Replacer:        buffer.ReplacerLRU,
		Logger: logger.Config{
			Level:      "info",
			Format:     "console",
			OutputFile: "stdout",
		},
		Telemetry: telemetry.Config{
			Enabled: false,
		},
	}
}

// Load reads and unmarshals a YAML config file at path, filling any
// zero-valued fields from Default.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %q: %w", path, err)
	}
	if cfg.BufferPoolSize <= 0 {
		cfg.BufferPoolSize = Default().BufferPoolSize
	}
	if cfg.Replacer == "" {
		cfg.Replacer = buffer.ReplacerLRU
	}
	return cfg, nil
}
