package shell

import (
	"context"
	"os/exec"
	"runtime"

	"github.com/core-tools/hsu-backend-shell/pkg/domain"
	"github.com/core-tools/hsu-backend-shell/pkg/errors"
	"github.com/core-tools/hsu-backend-shell/pkg/logging"
)

// UILoader presents the UI served by a ready backend. Load is called at most
// once and only after the backend answered its health check.
type UILoader interface {
	Load(ctx context.Context, origin domain.Origin) error
}

// OpenFunc starts the platform opener for url.
type OpenFunc func(ctx context.Context, url string) error

type browserLoader struct {
	open   OpenFunc
	logger logging.Logger
}

// NewBrowserLoader opens the origin in the user's default browser.
func NewBrowserLoader(logger logging.Logger) UILoader {
	return NewBrowserLoaderWithOpener(platformOpener(runtime.GOOS), logger)
}

func NewBrowserLoaderWithOpener(open OpenFunc, logger logging.Logger) UILoader {
	return &browserLoader{
		open:   open,
		logger: logger,
	}
}

func (l *browserLoader) Load(ctx context.Context, origin domain.Origin) error {
	url := origin.URL("/")
	l.logger.Infof("Opening UI in browser, url: %s", url)
	if err := l.open(ctx, url); err != nil {
		return errors.NewIOError("failed to open browser", err).WithContext("url", url)
	}
	return nil
}

func openerCommand(goos, url string) (string, []string) {
	switch goos {
	case "darwin":
		return "open", []string{url}
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", url}
	default:
		return "xdg-open", []string{url}
	}
}

func platformOpener(goos string) OpenFunc {
	return func(ctx context.Context, url string) error {
		name, args := openerCommand(goos, url)
		cmd := exec.Command(name, args...)
		if err := cmd.Start(); err != nil {
			return err
		}
		// The opener hands off to the browser and exits
		go cmd.Wait()
		return nil
	}
}

type logLoader struct {
	logger logging.Logger
}

// NewLogLoader only announces the origin. Used when no browser should be opened.
func NewLogLoader(logger logging.Logger) UILoader {
	return &logLoader{logger: logger}
}

func (l *logLoader) Load(ctx context.Context, origin domain.Origin) error {
	l.logger.Infof("Backend UI available at %s", origin.URL("/"))
	return nil
}
