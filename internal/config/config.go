package config

// Config is the top-level TOML configuration structure. It supplies the
// defaults that the CLI flags in root.go override — there is exactly one
// install target per invocation, so unlike a multi-profile client this
// config has no concept of named profiles or accounts.
type Config struct {
	Manifest ManifestConfig `toml:"manifest"`
	Install  InstallConfig  `toml:"install"`
	Network  NetworkConfig  `toml:"network"`
	Logging  LoggingConfig  `toml:"logging"`
}

// ManifestConfig controls where the manifest is fetched from and which
// branch is selected by default.
type ManifestConfig struct {
	URL    string `toml:"url"`
	Branch string `toml:"branch"`
}

// InstallConfig controls the local install directory and self-update gate.
type InstallConfig struct {
	Dir              string `toml:"dir"`
	IgnoreSelfUpdate bool   `toml:"ignore_self_update"`
}

// NetworkConfig controls the HTTP client's timeout and connection limit.
type NetworkConfig struct {
	HTTPTimeout      string `toml:"http_timeout"`
	ConnectionLimit  int    `toml:"connection_limit"`
	DownloadRetries  int    `toml:"download_retries"`
	RemoteZipRetries int    `toml:"remote_zip_retries"`
	ExtractRetries   int    `toml:"extract_retries"`
}

// LoggingConfig controls log output verbosity.
type LoggingConfig struct {
	LogLevel string `toml:"log_level"`
}
