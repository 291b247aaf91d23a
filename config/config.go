package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config carries the operator-tunable settings for the fee ledger.
type Config struct {
	DataDir string `toml:"DataDir"`
	// OverrideForcedShutdown lets fee accrual continue past a cache
	// overflow fault at the operator's risk.
	OverrideForcedShutdown bool  `toml:"OverrideForcedShutdown"`
	FeeThresholdDivisor    int64 `toml:"FeeThresholdDivisor"`
	StateHistoryBlocks     int64 `toml:"StateHistoryBlocks"`
}

const (
	defaultDataDir             = "./feeledger-data"
	defaultFeeThresholdDivisor = 100000
	defaultStateHistoryBlocks  = 50
)

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = defaultDataDir
	}
	if c.FeeThresholdDivisor == 0 {
		c.FeeThresholdDivisor = defaultFeeThresholdDivisor
	}
	if c.StateHistoryBlocks == 0 {
		c.StateHistoryBlocks = defaultStateHistoryBlocks
	}
}

// Validate rejects configurations the ledger cannot run with.
func (c *Config) Validate() error {
	if c.FeeThresholdDivisor < 0 {
		return fmt.Errorf("config: FeeThresholdDivisor must be positive, got %d", c.FeeThresholdDivisor)
	}
	if c.StateHistoryBlocks < 0 {
		return fmt.Errorf("config: StateHistoryBlocks must be positive, got %d", c.StateHistoryBlocks)
	}
	return nil
}

// FeeCacheDir returns the LevelDB path for the fee cache table.
func (c *Config) FeeCacheDir() string {
	return filepath.Join(c.DataDir, "feecache")
}

// FeeHistoryDir returns the LevelDB path for the fee history table.
func (c *Config) FeeHistoryDir() string {
	return filepath.Join(c.DataDir, "feehistory")
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return toml.NewEncoder(file).Encode(cfg)
}
