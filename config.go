// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cellflow

import (
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/xyproto/env/v2"
	"gopkg.in/yaml.v3"
)

// Config holds the package defaults for combinator calls.
//
// Priority when loading: environment > file > defaults.
type Config struct {
	// JIT selects compiled execution unless a call passes WithJIT.
	JIT bool `yaml:"jit"`

	// DisableJIT forces interpreted execution everywhere. Useful for
	// debugging bodies with ordinary Go control flow.
	DisableJIT bool `yaml:"disable_jit"`

	// Unroll is the default number of loop steps fused per iteration.
	Unroll int `yaml:"unroll"`

	// CacheSize bounds the number of cached discoveries.
	CacheSize int `yaml:"cache_size"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		JIT:       true,
		Unroll:    1,
		CacheSize: 1024,
		LogLevel:  "info",
	}
}

// Environment variables read by LoadConfig.
const (
	EnvJIT        = "CELLFLOW_JIT"
	EnvDisableJIT = "CELLFLOW_DISABLE_JIT"
	EnvUnroll     = "CELLFLOW_UNROLL"
	EnvCacheSize  = "CELLFLOW_CACHE_SIZE"
	EnvLogLevel   = "CELLFLOW_LOG_LEVEL"
)

// LoadConfig loads the defaults, then path if it is not empty and exists,
// then the environment, and validates the result.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return cfg, errors.Wrap(err, "cellflow: read config")
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, errors.Wrapf(err, "cellflow: parse config %s", path)
			}
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrap(err, "cellflow: invalid config")
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	// env caches the environment on first use; reread it on every load.
	env.Load()
	if env.Has(EnvJIT) {
		c.JIT = env.Bool(EnvJIT)
	}
	if env.Has(EnvDisableJIT) {
		c.DisableJIT = env.Bool(EnvDisableJIT)
	}
	c.Unroll = env.Int(EnvUnroll, c.Unroll)
	c.CacheSize = env.Int(EnvCacheSize, c.CacheSize)
	c.LogLevel = env.Str(EnvLogLevel, c.LogLevel)
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if c.Unroll < 1 {
		return errors.New("unroll must be >= 1")
	}
	if c.CacheSize < 1 {
		return errors.New("cache_size must be >= 1")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return 0, errors.Errorf("log_level %q is not one of debug, info, warn, error", c.LogLevel)
	}
	return l, nil
}

// Marshal returns the configuration as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

var currentConfig atomic.Pointer[Config]

func init() {
	cfg := DefaultConfig()
	currentConfig.Store(&cfg)
}

// CurrentConfig returns the installed configuration.
func CurrentConfig() Config { return *currentConfig.Load() }

// Configure validates and installs cfg. The discovery cache is resized to
// cfg.CacheSize.
func Configure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "cellflow: configure")
	}
	currentConfig.Store(&cfg)
	discoveries.resize(cfg.CacheSize)
	logger().Debug("configuration installed",
		slog.Bool("jit", cfg.JIT),
		slog.Bool("disable_jit", cfg.DisableJIT),
		slog.Int("unroll", cfg.Unroll),
		slog.Int("cache_size", cfg.CacheSize))
	return nil
}
