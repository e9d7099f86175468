package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadEnvOverrides_AllSet(t *testing.T) {
	t.Setenv(EnvConfig, "/tmp/config.toml")
	t.Setenv(EnvManifest, "https://example.com/manifest.json")
	t.Setenv(EnvInstall, "/opt/app")
	t.Setenv(EnvBranch, "beta")

	overrides := ReadEnvOverrides()

	assert.Equal(t, "/tmp/config.toml", overrides.ConfigPath)
	assert.Equal(t, "https://example.com/manifest.json", overrides.Manifest)
	assert.Equal(t, "/opt/app", overrides.InstallDir)
	assert.Equal(t, "beta", overrides.Branch)
}

func TestReadEnvOverrides_NoneSet(t *testing.T) {
	overrides := ReadEnvOverrides()

	assert.Empty(t, overrides.ConfigPath)
	assert.Empty(t, overrides.Manifest)
	assert.Empty(t, overrides.InstallDir)
	assert.Empty(t, overrides.Branch)
}

func TestEnvOverrides_Apply(t *testing.T) {
	cfg := DefaultConfig()
	overrides := EnvOverrides{Manifest: "https://example.com/m.json", Branch: "beta"}

	overrides.Apply(cfg)

	assert.Equal(t, "https://example.com/m.json", cfg.Manifest.URL)
	assert.Equal(t, "beta", cfg.Manifest.Branch)
	assert.Equal(t, DefaultInstallDir(), cfg.Install.Dir)
}

func TestEnvOverrides_Apply_EmptyLeavesDefaults(t *testing.T) {
	cfg := DefaultConfig()

	EnvOverrides{}.Apply(cfg)

	assert.Equal(t, defaultBranch, cfg.Manifest.Branch)
}
