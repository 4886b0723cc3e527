package config

import (
	"github.com/tonimelisma/hive/pkg/hive/ipfs"
	"github.com/tonimelisma/hive/pkg/hive/onedrive"
	"github.com/tonimelisma/hive/pkg/hive/s3"
)

// Default values for configuration options. These are "layer 0" of the
// override chain; a missing config file leaves a working native setup.
const (
	defaultBackend   = "native"
	defaultLogLevel  = "info"
	defaultLogFormat = "auto"
)

// DefaultConfig returns a Config populated with all default values. It is
// the starting point for decoding, so unset fields keep their defaults.
func DefaultConfig() *Config {
	return &Config{
		Backend:            defaultBackend,
		PersistentLocation: DefaultDataDir(),
		Logging: LoggingConfig{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
		IPFS:     ipfs.Config{Node: ipfs.DefaultNode},
		OneDrive: onedrive.Config{Flow: onedrive.FlowDevice},
		S3:       s3.Config{Region: s3.DefaultRegion},
	}
}
