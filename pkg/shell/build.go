package shell

import (
	"fmt"
	"io"
	"os"

	"github.com/core-tools/hsu-backend-shell/pkg/appdirs"
	"github.com/core-tools/hsu-backend-shell/pkg/config"
	"github.com/core-tools/hsu-backend-shell/pkg/errors"
	"github.com/core-tools/hsu-backend-shell/pkg/locator"
	"github.com/core-tools/hsu-backend-shell/pkg/logcollection"
	logconfig "github.com/core-tools/hsu-backend-shell/pkg/logcollection/config"
	"github.com/core-tools/hsu-backend-shell/pkg/logging"
	"github.com/core-tools/hsu-backend-shell/pkg/monitoring"
	"github.com/core-tools/hsu-backend-shell/pkg/portalloc"
	"github.com/core-tools/hsu-backend-shell/pkg/process"
	"github.com/core-tools/hsu-backend-shell/pkg/reporting"
	"github.com/core-tools/hsu-backend-shell/pkg/startup"
)

// BuildOptions overrides the interactive parts of a shell.
type BuildOptions struct {
	// Presenter defaults to a native dialog falling back to stderr
	Presenter reporting.Presenter
	// Loader defaults to the browser or log loader depending on the UI config
	Loader UILoader
	// Environ defaults to os.Environ
	Environ func() []string
	// DirsOptions customize per-user directory resolution
	DirsOptions []appdirs.Option
}

func logPrefix(module string) string {
	return fmt.Sprintf("module: %s , ", module)
}

// Build assembles a shell from a validated configuration. logger is the root
// logger; every component gets its own prefixed logger derived from it.
func Build(cfg *config.StartupConfig, logger logging.Logger, options BuildOptions) (*Shell, error) {
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, err
	}

	dirs := appdirs.New(cfg.Directories, logging.ForBackend(logPrefix("appdirs"), logger), options.DirsOptions...)

	output := cfg.Output
	if output.Type == logconfig.OutputTypeFile {
		output.Path = dirs.LogFilePath(output.Path)
	}
	sink, err := logcollection.NewSink(output, logging.ForBackend(logPrefix("output"), logger))
	if err != nil {
		return nil, err
	}

	supervisorOpts := []process.SupervisorOption{process.WithPIDRecorder(dirs.PIDFile())}
	if options.Environ != nil {
		supervisorOpts = append(supervisorOpts, process.WithEnviron(options.Environ))
	}
	supervisor := process.NewSupervisor(cfg.SupervisorOptions(), sink,
		logging.ForBackend(logPrefix("supervisor"), logger), supervisorOpts...)

	poller, err := monitoring.NewPoller(cfg.HealthCheck, logging.ForBackend(logPrefix("health"), logger))
	if err != nil {
		sink.Close()
		return nil, err
	}

	presenter := options.Presenter
	if presenter == nil {
		presenter = reporting.NewDialogPresenter(reporting.NewConsolePresenter(os.Stderr),
			logging.ForBackend(logPrefix("reporting"), logger))
	}

	dataDir := cfg.Backend.DataDir
	if dataDir == "" {
		dataDir = dirs.BackendDataDir()
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		sink.Close()
		return nil, errors.NewIOError("failed to create backend data directory", err).WithContext("path", dataDir)
	}

	orchestrator := startup.NewOrchestrator(startup.Options{
		Packaged:    cfg.App.Packaged,
		Platform:    locator.CurrentPlatform(),
		Host:        cfg.Backend.Host,
		DataDir:     dataDir,
		Environment: cfg.Backend.Environment,
		LogLocation: sink.Location(),
	}, startup.Dependencies{
		Allocator:  portalloc.NewLoopbackAllocator(cfg.Backend.Host, logging.ForBackend(logPrefix("portalloc"), logger)),
		Locator:    locator.NewLocator(cfg.LocatorOptions(), logging.ForBackend(logPrefix("locator"), logger)),
		Supervisor: supervisor,
		Poller:     poller,
		Reporter:   reporting.NewDialogReporter(presenter, logging.ForBackend(logPrefix("reporting"), logger)),
	}, logging.ForBackend(logPrefix("startup"), logger))

	loader := options.Loader
	if loader == nil {
		uiLogger := logging.ForBackend(logPrefix("ui"), logger)
		if cfg.UI.OpenBrowser {
			loader = NewBrowserLoader(uiLogger)
		} else {
			loader = NewLogLoader(uiLogger)
		}
	}

	return New(Components{
		Orchestrator: orchestrator,
		Supervisor:   supervisor,
		Sink:         sink,
		Loader:       loader,
		PIDFile:      dirs.PIDFile(),
	}, logging.ForBackend(logPrefix("shell"), logger)), nil
}

// PrintConfig writes the effective configuration.
func PrintConfig(w io.Writer, cfg *config.StartupConfig) error {
	_, err := io.WriteString(w, cfg.Summary())
	return err
}
