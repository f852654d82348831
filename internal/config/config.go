// Package config loads the optional usc configuration file.
//
// YAML (.yaml, .yml) and TOML (.toml) files share one layout:
//
//	compiler:
//	  gas_usage_check: true
//	  max_bytecode_size: 0
//	  add_pythonic_hints: true
//	cache:
//	  path: ""
//	log:
//	  level: info
//
// Keys left out keep their defaults. Unknown keys are rejected.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/roach88/usc/internal/contract"
	"github.com/roach88/usc/internal/raw"
)

// Config is the effective configuration of an invocation.
type Config struct {
	Compiler Compiler `yaml:"compiler" toml:"compiler"`
	Cache    Cache    `yaml:"cache" toml:"cache"`
	Log      Log      `yaml:"log" toml:"log"`
}

// Compiler tunes the compilation capability.
type Compiler struct {
	// GasUsageCheck applies to compile-raw. Contract families fix their own.
	GasUsageCheck bool `yaml:"gas_usage_check" toml:"gas_usage_check"`

	// MaxBytecodeSize bounds compiled code; zero means unlimited.
	MaxBytecodeSize int `yaml:"max_bytecode_size" toml:"max_bytecode_size"`

	AddPythonicHints bool `yaml:"add_pythonic_hints" toml:"add_pythonic_hints"`
}

// Cache locates the compilation cache. An empty path disables it.
type Cache struct {
	Path string `yaml:"path" toml:"path"`
}

// Log configures the diagnostic logger.
type Log struct {
	// Level is one of debug, info, warn or error.
	Level string `yaml:"level" toml:"level"`
}

// Default returns the configuration used without a file.
func Default() *Config {
	return &Config{
		Compiler: Compiler{GasUsageCheck: true, AddPythonicHints: true},
		Log:      Log{Level: "info"},
	}
}

// Load reads a configuration file, choosing the format by extension.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return ParseYAML(data)
	case ".toml":
		return ParseTOML(data)
	default:
		return nil, fmt.Errorf("config file %s: unsupported extension %q", path, ext)
	}
}

// ParseYAML decodes a YAML configuration over the defaults.
func ParseYAML(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	// An empty document leaves the defaults in place.
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return cfg, cfg.validate()
}

// ParseTOML decodes a TOML configuration over the defaults.
func ParseTOML(data []byte) (*Config, error) {
	cfg := Default()
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("failed to parse TOML: unknown key %q", undecoded[0].String())
	}
	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if c.Compiler.MaxBytecodeSize < 0 {
		return fmt.Errorf("compiler.max_bytecode_size must not be negative, got %d", c.Compiler.MaxBytecodeSize)
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	return nil
}

// LogLevel parses log.level.
func (c *Config) LogLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return l, nil
}

// ContractOptions derives compile-contract options.
func (c *Config) ContractOptions() contract.Options {
	return contract.Options{
		AddPythonicHints: c.Compiler.AddPythonicHints,
		MaxBytecodeSize:  c.Compiler.MaxBytecodeSize,
	}
}

// RawOptions derives compile-raw options.
func (c *Config) RawOptions() raw.Options {
	return raw.Options{
		GasUsageCheck:   c.Compiler.GasUsageCheck,
		MaxBytecodeSize: c.Compiler.MaxBytecodeSize,
	}
}
