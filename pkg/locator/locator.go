package locator

import (
	"os"
	"path/filepath"

	"github.com/core-tools/hsu-backend-shell/pkg/domain"
	"github.com/core-tools/hsu-backend-shell/pkg/errors"
	"github.com/core-tools/hsu-backend-shell/pkg/logging"
)

const (
	DefaultBackendDir     = "backend"
	DefaultBackendName    = "pdfwm_backend"
	DefaultScriptName     = "app.py"
	DefaultInterpreterEnv = "PYTHON_BIN"
)

type Options struct {
	// ResourcesDir is the root of packaged resources.
	ResourcesDir string
	// AppDir is the application directory used when running unpackaged.
	AppDir string

	BackendDir  string
	BackendName string
	ScriptName  string

	// Interpreter is used in the fallback when the override variable is unset.
	Interpreter string
	// InterpreterEnv names the environment variable that overrides the interpreter.
	InterpreterEnv string
}

// Locator decides how the backend will be launched.
type Locator interface {
	Resolve(packaged bool, platform Platform) (domain.BackendCommand, error)
}

type LookupEnvFunc func(key string) (string, bool)
type StatFunc func(path string) (os.FileInfo, error)

type locator struct {
	options   Options
	lookupEnv LookupEnvFunc
	stat      StatFunc
	logger    logging.Logger
}

type LocatorOption func(*locator)

// WithLookupEnv replaces os.LookupEnv.
func WithLookupEnv(fn LookupEnvFunc) LocatorOption {
	return func(l *locator) {
		l.lookupEnv = fn
	}
}

// WithStat replaces os.Stat.
func WithStat(fn StatFunc) LocatorOption {
	return func(l *locator) {
		l.stat = fn
	}
}

func NewLocator(options Options, logger logging.Logger, opts ...LocatorOption) Locator {
	if options.BackendDir == "" {
		options.BackendDir = DefaultBackendDir
	}
	if options.BackendName == "" {
		options.BackendName = DefaultBackendName
	}
	if options.ScriptName == "" {
		options.ScriptName = DefaultScriptName
	}
	if options.InterpreterEnv == "" {
		options.InterpreterEnv = DefaultInterpreterEnv
	}

	l := &locator{
		options:   options,
		lookupEnv: os.LookupEnv,
		stat:      os.Stat,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *locator) Resolve(packaged bool, platform Platform) (domain.BackendCommand, error) {
	root := l.options.AppDir
	if packaged {
		root = l.options.ResourcesDir
	}
	if root == "" {
		return domain.BackendCommand{}, errors.NewValidationError("backend root directory is not set", nil).
			WithContext("packaged", packaged)
	}

	if path, ok := l.findBundled(root, platform); ok {
		l.logger.Infof("Using bundled backend executable, path: %s", path)
		return domain.BackendCommand{
			Path:    path,
			Args:    []string{},
			Dir:     filepath.Dir(path),
			Bundled: true,
		}, nil
	}

	interpreter := l.interpreter(platform)
	script := filepath.Join(l.options.AppDir, l.options.ScriptName)
	if packaged {
		script = filepath.Join(l.options.ResourcesDir, l.options.BackendDir, l.options.ScriptName)
	}

	l.logger.Infof("Bundled backend not found, falling back to interpreter, interpreter: %s, script: %s", interpreter, script)

	return domain.BackendCommand{
		Path:    interpreter,
		Args:    []string{script},
		Dir:     filepath.Dir(script),
		Bundled: false,
	}, nil
}

// findBundled checks candidates in order and returns the first regular file.
// The checks are hints; the spawn itself is authoritative.
func (l *locator) findBundled(root string, platform Platform) (string, bool) {
	base := filepath.Join(root, l.options.BackendDir, l.options.BackendName)
	exeName := l.options.BackendName + platform.ExecutableExt()

	candidates := []string{
		base,
		filepath.Join(base, exeName),
		// Same as base when the platform has no executable extension
		filepath.Join(root, l.options.BackendDir, exeName),
	}
	for _, candidate := range candidates {
		if info, err := l.stat(candidate); err == nil && info.Mode().IsRegular() {
			return candidate, true
		}
		l.logger.Debugf("Bundled backend candidate is not a file, path: %s", candidate)
	}

	return "", false
}

func (l *locator) interpreter(platform Platform) string {
	if value, ok := l.lookupEnv(l.options.InterpreterEnv); ok && value != "" {
		return value
	}
	if l.options.Interpreter != "" {
		return l.options.Interpreter
	}
	return platform.DefaultInterpreter()
}
