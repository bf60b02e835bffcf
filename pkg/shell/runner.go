package shell

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/core-tools/hsu-backend-shell/pkg/config"
	"github.com/core-tools/hsu-backend-shell/pkg/errors"
	"github.com/core-tools/hsu-backend-shell/pkg/logging"
)

// closeTimeout bounds the final teardown: graceful plus kill timeouts with slack.
const closeTimeout = 15 * time.Second

// RunOptions configure one shell run.
type RunOptions struct {
	ConfigFile string
	// Configure is applied after the file and the environment
	Configure func(cfg *config.StartupConfig)
	Build     BuildOptions
}

// LoadConfig resolves the effective configuration: defaults, optional file,
// environment, then Configure.
func LoadConfig(options RunOptions) (*config.StartupConfig, error) {
	cfg := config.DefaultConfig()
	if options.ConfigFile != "" {
		loaded, err := config.LoadConfigFromFile(options.ConfigFile)
		if err != nil {
			return nil, errors.NewIOError("failed to load configuration", err).WithContext("config_file", options.ConfigFile)
		}
		cfg = loaded
	}
	if err := config.ApplyEnvironment(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if options.Configure != nil {
		options.Configure(cfg)
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, errors.NewValidationError("configuration validation failed", err).WithContext("config_file", options.ConfigFile)
	}
	return cfg, nil
}

// Run builds a shell and drives it until an interrupt, a termination signal
// or the backend going away, then tears everything down.
func Run(ctx context.Context, cfg *config.StartupConfig, options BuildOptions, logger logging.Logger) error {
	logger.Infof("Backend shell starting, packaged: %t, output: %s", cfg.App.Packaged, cfg.Output.Type)

	shell, err := Build(cfg, logger, options)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sig := make(chan os.Signal, 1)
	if runtime.GOOS == "windows" {
		signal.Notify(sig, os.Interrupt)
	} else {
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	}
	defer signal.Stop(sig)

	go func() {
		select {
		case receivedSignal := <-sig:
			logger.Infof("Backend shell received signal: %v", receivedSignal)
			cancel()
		case <-ctx.Done():
		}
	}()

	runErr := shell.Run(ctx)

	// Fresh context, the run context may already be cancelled
	closeCtx, closeCancel := context.WithTimeout(context.Background(), closeTimeout)
	defer closeCancel()
	closeErr := shell.Close(closeCtx)

	if runErr != nil {
		if closeErr != nil {
			logger.Errorf("Failed to close shell: %v", closeErr)
		}
		return runErr
	}
	logger.Infof("Backend shell stopped")
	return closeErr
}
