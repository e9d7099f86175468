package config

import "log/slog"

// Resolve runs the first three layers of the defaults -> file -> env ->
// CLI flags chain: DefaultConfig, then the file at path (if present),
// then env. CLI flag overrides are applied by the caller directly onto
// the returned Config, since cobra already parsed them by the time this
// runs.
func Resolve(path string, env EnvOverrides, logger *slog.Logger) (*Config, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := LoadOrDefault(path)
	if err != nil {
		return nil, err
	}

	env.Apply(cfg)

	logger.Debug("config resolved", "path", path, "manifest_url", cfg.Manifest.URL,
		"install_dir", cfg.Install.Dir, "branch", cfg.Manifest.Branch)

	return cfg, nil
}
