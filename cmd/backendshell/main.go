package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/core-tools/hsu-backend-shell/pkg/config"
	"github.com/core-tools/hsu-backend-shell/pkg/errors"
	"github.com/core-tools/hsu-backend-shell/pkg/logging"
	"github.com/core-tools/hsu-backend-shell/pkg/shell"

	flags "github.com/jessevdk/go-flags"
)

type flagOptions struct {
	Config       string `long:"config" description:"path to the YAML startup configuration"`
	Packaged     bool   `long:"packaged" description:"use the packaged resources layout"`
	ResourcesDir string `long:"resources-dir" description:"resources directory of a packaged install"`
	AppDir       string `long:"app-dir" description:"application source directory, defaults to the executable's directory"`
	LogLevel     string `long:"log-level" description:"log level: debug, info, warn, error"`
	OpenBrowser  bool   `long:"open-browser" description:"open the UI in the default browser once the backend is ready"`
	PrintConfig  bool   `long:"print-config" description:"print the effective configuration and exit"`
}

func logPrefix(module string) string {
	return fmt.Sprintf("module: %s , ", module)
}

func main() {
	var opts flagOptions
	var argv []string = os.Args[1:]
	var parser = flags.NewParser(&opts, flags.HelpFlag)
	var err error
	_, err = parser.ParseArgs(argv)
	if err != nil {
		fmt.Printf("Command line flags parsing failed: %v\n", err)
		os.Exit(1)
	}

	cfg, err := shell.LoadConfig(shell.RunOptions{
		ConfigFile: opts.Config,
		Configure:  func(cfg *config.StartupConfig) { applyFlags(cfg, opts) },
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	if opts.PrintConfig {
		if err := shell.PrintConfig(os.Stdout, cfg); err != nil {
			os.Exit(1)
		}
		return
	}

	zapLogger, err := logging.NewZapLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	logger := logging.ForBackend(logPrefix("backend-shell"), zapLogger)
	logger.Infof("opts: %+v", opts)

	err = shell.Run(context.Background(), cfg, shell.BuildOptions{}, zapLogger)
	if err != nil {
		logger.Errorf("Backend shell failed, type: %s, error: %v", errors.TypeOf(err), err)
	}
	zapLogger.Close()
	if err != nil {
		os.Exit(1)
	}
}

// applyFlags overlays explicitly set flags on the loaded configuration.
func applyFlags(cfg *config.StartupConfig, opts flagOptions) {
	if opts.Packaged {
		cfg.App.Packaged = true
	}
	if opts.ResourcesDir != "" {
		cfg.App.ResourcesDir = opts.ResourcesDir
	}
	if opts.AppDir != "" {
		cfg.App.AppDir = opts.AppDir
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	if opts.OpenBrowser {
		cfg.UI.OpenBrowser = true
	}

	if cfg.App.AppDir == "" || (cfg.App.Packaged && cfg.App.ResourcesDir == "") {
		executable, err := os.Executable()
		if err != nil {
			return
		}
		dir := filepath.Dir(executable)
		if cfg.App.AppDir == "" {
			cfg.App.AppDir = dir
		}
		if cfg.App.Packaged && cfg.App.ResourcesDir == "" {
			cfg.App.ResourcesDir = filepath.Join(dir, "resources")
		}
	}
}
