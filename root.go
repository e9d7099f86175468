package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/HappyDOGE/cupdater/internal/config"
	"github.com/HappyDOGE/cupdater/internal/engine"
	"github.com/HappyDOGE/cupdater/internal/filedb"
	"github.com/HappyDOGE/cupdater/internal/frontend"
	"github.com/HappyDOGE/cupdater/internal/httpx"
	"github.com/HappyDOGE/cupdater/internal/ident"
	"github.com/HappyDOGE/cupdater/internal/manifest"
	"github.com/HappyDOGE/cupdater/internal/provision"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

// filedbName is the tracked-file database's name within the install
// directory.
const filedbName = "updatedata.db"

var (
	flagConfigPath   string
	flagManifestURL  string
	flagBranch       string
	flagInstallDir   string
	flagConsole      bool
	flagVerbose      bool
	flagForce        bool
	flagNoSelfUpdate bool
	flagHTTPTimeout  int
	flagNoPause      bool
)

type cliContextKey struct{}

// CLIContext carries the config resolved by PersistentPreRunE, and the
// logger built from it, into RunE.
type CLIContext struct {
	Cfg    *config.Config
	Logger *slog.Logger
}

func cliContextFrom(ctx context.Context) (*CLIContext, bool) {
	c, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	return c, ok
}

func mustCLIContext(ctx context.Context) *CLIContext {
	c, ok := cliContextFrom(ctx)
	if !ok {
		panic("cupdater: CLIContext missing from command context")
	}

	return c
}

// buildLogger derives the run's logger from the resolved config file
// level, overridden by --verbose.
func buildLogger(cfg *config.Config, verbose bool) *slog.Logger {
	level := slog.LevelInfo

	switch cfg.Logging.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	if verbose {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// newRootCmd builds the single command this binary exposes: fetching
// the manifest and reconciling the install directory against it. There
// is no subcommand tree — every flag here is the driver's external
// interface.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "cupdater",
		Short:         "Fetch and apply manifest-declared content updates",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd)
		},
		RunE: runUpdate,
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "",
		"config file path (defaults to the platform config directory)")

	cmd.Flags().StringVarP(&flagManifestURL, "manifest", "m", "", "manifest URL")
	cmd.Flags().StringVarP(&flagBranch, "branch", "b", "", `branch to install (default "public")`)
	cmd.Flags().StringVarP(&flagInstallDir, "installdir", "i", "", "install directory")
	cmd.Flags().BoolVar(&flagConsole, "console", false, "print progress to the console instead of running quietly")
	cmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.Flags().BoolVarP(&flagForce, "force", "f", false, "bypass the unchanged-manifest and unchanged-layer short-circuits")
	cmd.Flags().BoolVar(&flagNoSelfUpdate, "noselfupdate", false, "skip the self-update hash check")
	cmd.Flags().IntVar(&flagHTTPTimeout, "http-timeout", 0, "overall HTTP timeout in seconds (default 3600)")
	cmd.Flags().BoolVar(&flagNoPause, "nopause", false, "exit immediately instead of waiting for a keypress")

	return cmd
}

// loadConfig resolves the defaults -> file -> env -> CLI flags chain
// once per invocation and stashes the result in the command's context.
func loadConfig(cmd *cobra.Command) error {
	bootstrapLogger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	env := config.ReadEnvOverrides()

	path := flagConfigPath
	if path == "" {
		path = env.ConfigPath
	}
	if path == "" {
		path = config.DefaultConfigPath()
	}

	cfg, err := config.Resolve(path, env, bootstrapLogger)
	if err != nil {
		return err
	}

	if flagManifestURL != "" {
		cfg.Manifest.URL = flagManifestURL
	}

	if flagBranch != "" {
		cfg.Manifest.Branch = flagBranch
	}

	if flagInstallDir != "" {
		cfg.Install.Dir = flagInstallDir
	}

	if flagNoSelfUpdate {
		cfg.Install.IgnoreSelfUpdate = true
	}

	if flagHTTPTimeout > 0 {
		cfg.Network.HTTPTimeout = fmt.Sprintf("%ds", flagHTTPTimeout)
	}

	logger := buildLogger(cfg, flagVerbose)

	cmd.SetContext(context.WithValue(cmd.Context(), cliContextKey{}, &CLIContext{Cfg: cfg, Logger: logger}))

	return nil
}

// runUpdate resolves the manifest URL and install directory (CLI flag,
// config, provisioning header, or an interactive prompt, in that
// order), then runs one engine.Update pass.
func runUpdate(cmd *cobra.Command, args []string) error {
	cctx := mustCLIContext(cmd.Context())
	cfg := cctx.Cfg
	logger := cctx.Logger
	ctx := cmd.Context()

	fe := frontend.NewTerminal(!flagConsole, logger)

	provisioned := scanProvisioning()

	installDirUnset := cfg.Install.Dir == "" || cfg.Install.Dir == config.DefaultInstallDir()
	if installDirUnset && provisioned != nil && provisioned.InstallDir != "" {
		cfg.Install.Dir = provisioned.InstallDir
	}

	if cfg.Install.Dir == "" {
		cfg.Install.Dir = config.DefaultInstallDir()
	}

	if err := os.MkdirAll(cfg.Install.Dir, 0o755); err != nil {
		return fmt.Errorf("creating install directory %s: %w", cfg.Install.Dir, err)
	}

	if cfg.Manifest.URL == "" && provisioned != nil {
		cfg.Manifest.URL = provisioned.URL
	}

	if cfg.Manifest.URL == "" {
		answer, ok := fe.Ask(ctx, "manifest URL: ")
		if !ok {
			return fmt.Errorf("no manifest URL supplied")
		}

		cfg.Manifest.URL = answer
	}

	timeout, err := time.ParseDuration(cfg.Network.HTTPTimeout)
	if err != nil {
		timeout = 3600 * time.Second
	}

	client := httpx.New(timeout, cfg.Network.ConnectionLimit, logger)

	db, err := filedb.Open(ctx, filepath.Join(cfg.Install.Dir, filedbName), logger)
	if err != nil {
		return err
	}
	defer db.Close()

	session, err := manifest.Load(ctx, client, db, cfg.Manifest.URL, flagForce)
	if err != nil {
		fe.Fatal(err.Error())
		return err
	}

	if session.Manifest != nil {
		fe.SetBranding(session.Manifest.Brand.Name)
	}

	branchID, err := ident.NewBranchID(cfg.Manifest.Branch)
	if err != nil {
		return fmt.Errorf("invalid branch %q: %w", cfg.Manifest.Branch, err)
	}

	eng := engine.New(engine.Config{
		DB:                      db,
		Client:                  client,
		Frontend:                fe,
		InstallRoot:             cfg.Install.Dir,
		DownloadRetries:         cfg.Network.DownloadRetries,
		RemoteZipOpenRetries:    cfg.Network.RemoteZipRetries,
		SelectiveExtractRetries: cfg.Network.ExtractRetries,
		Logger:                  logger,
	})

	return eng.Update(ctx, session, engine.Options{
		Branch:           branchID,
		Force:            flagForce,
		IgnoreSelfUpdate: cfg.Install.IgnoreSelfUpdate,
	})
}

// scanProvisioning looks for a provisioning header in the running
// executable. A scan failure (the executable being unreadable, say) is
// treated the same as no header found — this is a best-effort fallback,
// never a fatal condition on its own.
func scanProvisioning() *provision.Payload {
	exe, err := os.Executable()
	if err != nil {
		return nil
	}

	payload, err := provision.Scan(exe)
	if err != nil {
		return nil
	}

	return payload
}
