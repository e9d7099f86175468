package config

// Default values for configuration options — the "layer 0" of the
// defaults -> config file -> CLI flags override chain. Chosen to match
// spec.md §6's CLI surface defaults and §5's concurrency bounds.
const (
	defaultBranch           = "public"
	defaultHTTPTimeout      = "3600s"
	defaultConnectionLimit  = 50
	defaultDownloadRetries  = 5
	defaultRemoteZipRetries = 5
	defaultExtractRetries   = 15
	defaultLogLevel         = "info"
)

// DefaultConfig returns a Config populated with all default values. Used
// both as the starting point for TOML decoding (so unset fields retain
// defaults) and as the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Manifest: ManifestConfig{
			Branch: defaultBranch,
		},
		Install: InstallConfig{
			Dir: DefaultInstallDir(),
		},
		Network: NetworkConfig{
			HTTPTimeout:      defaultHTTPTimeout,
			ConnectionLimit:  defaultConnectionLimit,
			DownloadRetries:  defaultDownloadRetries,
			RemoteZipRetries: defaultRemoteZipRetries,
			ExtractRetries:   defaultExtractRetries,
		},
		Logging: LoggingConfig{
			LogLevel: defaultLogLevel,
		},
	}
}
