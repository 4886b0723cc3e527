package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig             = "HIVE_CONFIG"
	EnvBackend            = "HIVE_BACKEND"
	EnvPersistentLocation = "HIVE_PERSISTENT_LOCATION"
	EnvLogLevel           = "HIVE_LOG_LEVEL"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath         string // HIVE_CONFIG: config file path
	Backend            string // HIVE_BACKEND: backend name
	PersistentLocation string // HIVE_PERSISTENT_LOCATION: state directory
	LogLevel           string // HIVE_LOG_LEVEL: debug, info, warn, error
}

// ReadEnvOverrides reads environment variables and returns any overrides
// found. It does not modify a Config; Resolve applies the fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:         os.Getenv(EnvConfig),
		Backend:            os.Getenv(EnvBackend),
		PersistentLocation: os.Getenv(EnvPersistentLocation),
		LogLevel:           os.Getenv(EnvLogLevel),
	}
}
