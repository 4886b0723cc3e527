// Package config implements configuration loading, validation, and
// platform-specific path resolution for hive. It supports a four-layer
// override chain (defaults -> config file -> environment -> CLI flags).
// Config files are TOML or YAML, chosen by extension.
package config

import (
	"github.com/tonimelisma/hive/pkg/hive/ipfs"
	"github.com/tonimelisma/hive/pkg/hive/native"
	"github.com/tonimelisma/hive/pkg/hive/onedrive"
	"github.com/tonimelisma/hive/pkg/hive/owncloud"
	"github.com/tonimelisma/hive/pkg/hive/s3"
)

// Config is the top-level configuration structure. Each backend has its own
// section; only the section of the selected backend is validated and handed
// to the driver.
type Config struct {
	Backend            string        `toml:"backend" yaml:"backend" validate:"required,oneof=native ipfs onedrive owncloud s3"`
	PersistentLocation string        `toml:"persistent_location" yaml:"persistent_location" validate:"required"`
	Logging            LoggingConfig `toml:"logging" yaml:"logging"`

	Native   native.Config   `toml:"native" yaml:"native" validate:"-"`
	IPFS     ipfs.Config     `toml:"ipfs" yaml:"ipfs" validate:"-"`
	OneDrive onedrive.Config `toml:"onedrive" yaml:"onedrive" validate:"-"`
	OwnCloud owncloud.Config `toml:"owncloud" yaml:"owncloud" validate:"-"`
	S3       s3.Config       `toml:"s3" yaml:"s3" validate:"-"`
}

// LoggingConfig controls log output: level, format, and an optional file.
// Format "auto" picks text on a terminal and JSON otherwise.
type LoggingConfig struct {
	Level  string `toml:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format string `toml:"format" yaml:"format" validate:"oneof=auto text json"`
	File   string `toml:"file" yaml:"file"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Empty strings mean "not specified".
type CLIOverrides struct {
	ConfigPath         string // --config
	Backend            string // --backend
	PersistentLocation string // --location
	LogLevel           string // derived from -v / -q
}
