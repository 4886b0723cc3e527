package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Load reads and parses a config file, validates it, and returns the
// resulting Config. The format follows the extension: .yaml and .yml are
// YAML, anything else is TOML. Unknown keys are fatal in both formats.
func Load(path string) (*Config, error) {
	cfg, err := decodeFile(path)
	if err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// decodeFile parses path over the defaults without validating, so later
// override layers can still fix up the result.
func decodeFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = decodeYAML(path, cfg)
	default:
		err = decodeTOML(path, cfg)
	}

	if err != nil {
		return nil, err
	}

	cfg.PersistentLocation = expandTilde(cfg.PersistentLocation)

	return cfg, nil
}

func decodeTOML(path string, cfg *Config) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}

	return checkUnknownKeys(&md)
}

func decodeYAML(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening config file %s: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	// An empty document leaves the defaults in place.
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}

	return nil
}

// LoadOrDefault reads a config file if it exists, otherwise returns a
// Config populated with all default values.
func LoadOrDefault(path string) (*Config, error) {
	if !fileExists(path) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

func decodeOrDefault(path string) (*Config, error) {
	if !fileExists(path) {
		return DefaultConfig(), nil
	}

	return decodeFile(path)
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}

	_, err := os.Stat(path)

	return !errors.Is(err, os.ErrNotExist)
}

// Resolve loads configuration and applies the four-layer override chain:
// defaults -> config file -> environment variables -> CLI flags.
// It returns a validated Config ready for Options.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Config, error) {
	// An explicitly named file must exist; the default one is optional.
	explicit := cli.ConfigPath
	if explicit == "" {
		explicit = env.ConfigPath
	}

	var (
		cfg *Config
		err error
	)

	if explicit != "" {
		cfg, err = decodeFile(explicit)
	} else {
		cfg, err = decodeOrDefault(DefaultConfigPath())
	}

	if err != nil {
		return nil, err
	}

	overlay(&cfg.Backend, env.Backend, cli.Backend)
	overlay(&cfg.PersistentLocation, env.PersistentLocation, cli.PersistentLocation)
	overlay(&cfg.Logging.Level, env.LogLevel, cli.LogLevel)

	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	cfg.PersistentLocation = expandTilde(cfg.PersistentLocation)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// overlay sets *dst to the last non-empty value, so later layers win.
func overlay(dst *string, layers ...string) {
	for _, v := range layers {
		if v != "" {
			*dst = v
		}
	}
}
