package config

import (
	"fmt"
	"io"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Output formats for RenderEffective.
const (
	FormatTOML = "toml"
	FormatYAML = "yaml"
)

const redacted = "<redacted>"

// RenderEffective writes the resolved configuration to w in the given
// format. This powers the "config show" command, giving users visibility
// into the effective values after all four override layers have been
// applied. Secrets are replaced by a placeholder.
func RenderEffective(cfg *Config, format string, w io.Writer) error {
	shown := *cfg
	shown.OwnCloud.Password = redact(shown.OwnCloud.Password)
	shown.S3.SecretAccessKey = redact(shown.S3.SecretAccessKey)

	switch format {
	case FormatTOML, "":
		if _, err := fmt.Fprintf(w, "# Effective configuration (backend %q)\n\n", cfg.Backend); err != nil {
			return err
		}

		return toml.NewEncoder(w).Encode(&shown)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)

		if err := enc.Encode(&shown); err != nil {
			return err
		}

		return enc.Close()
	default:
		return fmt.Errorf("config: unknown output format %q", format)
	}
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}

	return redacted
}
