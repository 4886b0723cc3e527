package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/tonimelisma/hive/pkg/hive"
)

// stateDirPerms restricts the persistent location to the owner; it holds
// OAuth tokens and the account store.
const stateDirPerms = 0o700

// Options converts the resolved configuration into hive.Options. The
// persistent location is created if missing. Config points at the selected
// backend section, which is the driver's own *Config type; drivers copy it.
func (c *Config) Options(logger *slog.Logger) (hive.Options, error) {
	backend, err := hive.ParseBackendType(c.Backend)
	if err != nil {
		return hive.Options{}, fmt.Errorf("config: %w", err)
	}

	if err := os.MkdirAll(c.PersistentLocation, stateDirPerms); err != nil {
		return hive.Options{}, fmt.Errorf("config: creating persistent location: %w", err)
	}

	section, _ := c.section()

	return hive.Options{
		Backend:            backend,
		PersistentLocation: c.PersistentLocation,
		Logger:             logger,
		Config:             section,
	}, nil
}
