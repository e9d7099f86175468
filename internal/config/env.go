package config

import "os"

// Environment variable names for overrides, checked between the config
// file and CLI flags in the four-layer resolution order.
const (
	EnvConfig   = "CUPDATER_CONFIG"
	EnvManifest = "CUPDATER_MANIFEST"
	EnvInstall  = "CUPDATER_INSTALLDIR"
	EnvBranch   = "CUPDATER_BRANCH"
)

// EnvOverrides holds values read from the environment. Empty fields mean
// the variable was unset; callers leave the corresponding Config field
// untouched in that case.
type EnvOverrides struct {
	ConfigPath string
	Manifest   string
	InstallDir string
	Branch     string
}

// ReadEnvOverrides reads the CUPDATER_* environment variables.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		Manifest:   os.Getenv(EnvManifest),
		InstallDir: os.Getenv(EnvInstall),
		Branch:     os.Getenv(EnvBranch),
	}
}

// Apply overlays non-empty env override fields onto cfg.
func (e EnvOverrides) Apply(cfg *Config) {
	if e.Manifest != "" {
		cfg.Manifest.URL = e.Manifest
	}

	if e.InstallDir != "" {
		cfg.Install.Dir = e.InstallDir
	}

	if e.Branch != "" {
		cfg.Manifest.Branch = e.Branch
	}
}
