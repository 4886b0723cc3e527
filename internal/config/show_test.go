package config

import (
	"bytes"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func showConfig(t *testing.T) *Config {
	t.Helper()

	cfg := validConfig(t)
	cfg.Backend = "s3"
	cfg.S3.Bucket = "photos"
	cfg.S3.AccessKeyID = "AKIA"
	cfg.S3.SecretAccessKey = "very-secret"
	cfg.OwnCloud.Password = "hunter2"

	return cfg
}

func TestRenderEffective_TOML(t *testing.T) {
	cfg := showConfig(t)

	var buf bytes.Buffer
	require.NoError(t, RenderEffective(cfg, FormatTOML, &buf))

	out := buf.String()
	assert.Contains(t, out, `# Effective configuration (backend "s3")`)
	assert.NotContains(t, out, "very-secret")
	assert.NotContains(t, out, "hunter2")
	assert.Equal(t, "very-secret", cfg.S3.SecretAccessKey, "the caller's config is untouched")

	// The output is itself a loadable config.
	var back Config
	_, err := toml.Decode(out, &back)
	require.NoError(t, err)
	assert.Equal(t, "photos", back.S3.Bucket)
	assert.Equal(t, redacted, back.S3.SecretAccessKey)
}

func TestRenderEffective_YAML(t *testing.T) {
	cfg := showConfig(t)

	var buf bytes.Buffer
	require.NoError(t, RenderEffective(cfg, FormatYAML, &buf))

	var back Config
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &back))
	assert.Equal(t, "s3", back.Backend)
	assert.Equal(t, redacted, back.OwnCloud.Password)
}

func TestRenderEffective_EmptySecretStaysEmpty(t *testing.T) {
	cfg := validConfig(t)

	var buf bytes.Buffer
	require.NoError(t, RenderEffective(cfg, FormatYAML, &buf))
	assert.NotContains(t, buf.String(), redacted)
}

func TestRenderEffective_UnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	require.Error(t, RenderEffective(validConfig(t), "ini", &buf))
}
