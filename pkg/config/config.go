// Package config loads the chain-state cache settings from an optional TOML file and the
// environment. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/canopy-network/chaincache/pkg/db/engine"
	"github.com/canopy-network/chaincache/pkg/db/kv/leveldb"
	"github.com/canopy-network/chaincache/pkg/db/kv/pebble"
	"github.com/canopy-network/chaincache/pkg/retry"
	"github.com/canopy-network/chaincache/pkg/utils"
)

// Environment overrides.
const (
	EnvDataDir          = "CHAINCACHE_DATA_DIR"
	EnvBackend          = "CHAINCACHE_BACKEND"
	EnvInMemory         = "CHAINCACHE_IN_MEMORY"
	EnvSyncWrites       = "CHAINCACHE_SYNC_WRITES"
	EnvOpenMaxRetries   = "CHAINCACHE_OPEN_MAX_RETRIES"
	EnvOpenInitialDelay = "CHAINCACHE_OPEN_INITIAL_DELAY"
	EnvLogLevel         = "LOG_LEVEL"
	EnvLogEncoding      = "LOG_ENCODING"
)

type Config struct {
	DataDir    string `toml:"DataDir"`
	Backend    string `toml:"Backend"`
	InMemory   bool   `toml:"InMemory"`
	SyncWrites bool   `toml:"SyncWrites"`

	// OpenMaxRetries bounds the attempts at opening an on-disk store held by another process.
	OpenMaxRetries int `toml:"OpenMaxRetries"`
	// OpenInitialDelay is a Go duration string such as "200ms".
	OpenInitialDelay string `toml:"OpenInitialDelay"`

	LogLevel    string `toml:"LogLevel"`
	LogEncoding string `toml:"LogEncoding"`
}

// Default returns the settings of an on-disk leveldb store under ./chaincache-data.
func Default() *Config {
	open := retry.OpenConfig()
	return &Config{
		DataDir:          "./chaincache-data",
		Backend:          leveldb.Name,
		SyncWrites:       true,
		OpenMaxRetries:   open.MaxRetries,
		OpenInitialDelay: open.InitialDelay.String(),
		LogLevel:         "info",
		LogEncoding:      "json",
	}
}

// Memory returns settings for an isolated in-memory store.
func Memory() *Config {
	cfg := Default()
	cfg.DataDir = ""
	cfg.InMemory = true
	cfg.SyncWrites = false
	cfg.OpenMaxRetries = 1
	return cfg
}

// Load reads path over Default when path is set and the file exists, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			meta, err := toml.DecodeFile(path, cfg)
			if err != nil {
				return nil, fmt.Errorf("config %s: %w", path, err)
			}
			if undecoded := meta.Undecoded(); len(undecoded) > 0 {
				return nil, fmt.Errorf("config %s: unknown key %s", path, undecoded[0])
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.DataDir = utils.Env(EnvDataDir, c.DataDir)
	c.Backend = utils.Env(EnvBackend, c.Backend)
	c.InMemory = utils.EnvBool(EnvInMemory, c.InMemory)
	c.SyncWrites = utils.EnvBool(EnvSyncWrites, c.SyncWrites)
	c.OpenMaxRetries = utils.EnvInt(EnvOpenMaxRetries, c.OpenMaxRetries)
	c.OpenInitialDelay = utils.Env(EnvOpenInitialDelay, c.OpenInitialDelay)
	c.LogLevel = utils.Env(EnvLogLevel, c.LogLevel)
	c.LogEncoding = utils.Env(EnvLogEncoding, c.LogEncoding)
}

// Validate checks the settings without touching the filesystem.
func (c *Config) Validate() error {
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	switch c.Backend {
	case "", leveldb.Name, pebble.Name:
	default:
		return fmt.Errorf("config: unknown backend %q", c.Backend)
	}
	if !c.InMemory && strings.TrimSpace(c.DataDir) == "" {
		return errors.New("config: DataDir is required unless InMemory is set")
	}
	if c.OpenMaxRetries < 0 {
		return fmt.Errorf("config: OpenMaxRetries must not be negative, got %d", c.OpenMaxRetries)
	}
	if _, err := c.openDelay(); err != nil {
		return err
	}
	switch c.LogEncoding {
	case "", "json", "console":
	default:
		return fmt.Errorf("config: unknown log encoding %q", c.LogEncoding)
	}
	return nil
}

func (c *Config) openDelay() (time.Duration, error) {
	if c.OpenInitialDelay == "" {
		return retry.OpenConfig().InitialDelay, nil
	}
	d, err := time.ParseDuration(c.OpenInitialDelay)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("config: invalid OpenInitialDelay %q", c.OpenInitialDelay)
	}
	return d, nil
}

// EngineOptions converts the settings for engine.Open.
func (c *Config) EngineOptions() engine.Options {
	openRetry := retry.OpenConfig()
	if c.OpenMaxRetries > 0 {
		openRetry.MaxRetries = c.OpenMaxRetries
	}
	if d, err := c.openDelay(); err == nil {
		openRetry.InitialDelay = d
	}
	dir := c.DataDir
	if dir != "" && !c.InMemory {
		dir = filepath.Clean(dir)
	}
	return engine.Options{
		Backend:    c.Backend,
		Dir:        dir,
		InMemory:   c.InMemory,
		SyncWrites: c.SyncWrites,
		OpenRetry:  openRetry,
	}
}

// Save writes the settings to path as TOML, creating parent directories.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(c)
}
