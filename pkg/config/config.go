package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/core-tools/hsu-backend-shell/pkg/appdirs"
	"github.com/core-tools/hsu-backend-shell/pkg/domain"
	"github.com/core-tools/hsu-backend-shell/pkg/errors"
	logconfig "github.com/core-tools/hsu-backend-shell/pkg/logcollection/config"
	"github.com/core-tools/hsu-backend-shell/pkg/locator"
	"github.com/core-tools/hsu-backend-shell/pkg/logging"
	"github.com/core-tools/hsu-backend-shell/pkg/monitoring"
	"github.com/core-tools/hsu-backend-shell/pkg/process"

	"gopkg.in/yaml.v3"
)

// Environment variables read by ApplyEnvironment
const (
	EnvPackaged     = "BACKENDSHELL_PACKAGED"
	EnvResourcesDir = "BACKENDSHELL_RESOURCES_DIR"
	EnvLogLevel     = "BACKENDSHELL_LOG_LEVEL"
)

// StartupConfig is assembled once before startup and passed to every component.
type StartupConfig struct {
	App         AppConfig                    `yaml:"app"`
	Backend     BackendConfig                `yaml:"backend"`
	HealthCheck monitoring.HealthCheckConfig `yaml:"health_check"`
	Output      logconfig.OutputConfig       `yaml:"output"`
	Directories appdirs.Config               `yaml:"directories"`
	Logging     logging.Config               `yaml:"logging"`
	UI          UIConfig                     `yaml:"ui"`
}

type AppConfig struct {
	// Packaged selects the distribution layout over the source checkout
	Packaged     bool   `yaml:"packaged"`
	ResourcesDir string `yaml:"resources_dir,omitempty"`
	AppDir       string `yaml:"app_dir,omitempty"`
}

type BackendConfig struct {
	Dir    string `yaml:"dir,omitempty"`
	Name   string `yaml:"name,omitempty"`
	Script string `yaml:"script,omitempty"`

	Interpreter    string `yaml:"interpreter,omitempty"`
	InterpreterEnv string `yaml:"interpreter_env,omitempty"`

	Host string `yaml:"host,omitempty"`
	// DataDir overrides the per-user backend data directory
	DataDir string `yaml:"data_dir,omitempty"`
	// Environment entries in KEY=VALUE form passed to the backend
	Environment []string `yaml:"environment,omitempty"`

	GracefulTimeout time.Duration `yaml:"graceful_timeout,omitempty"`
}

type UIConfig struct {
	OpenBrowser bool `yaml:"open_browser"`
}

func DefaultConfig() *StartupConfig {
	config := &StartupConfig{}
	setConfigDefaults(config)
	return config
}

// LoadConfigFromFile loads the startup configuration from a YAML file
func LoadConfigFromFile(filename string) (*StartupConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.NewIOError("failed to read configuration file", err).WithContext("filename", filename)
	}

	return ParseConfig(data, filename)
}

// ParseConfig decodes YAML and applies defaults. source is used in errors only.
func ParseConfig(data []byte, source string) (*StartupConfig, error) {
	var config StartupConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.NewValidationError("failed to parse YAML configuration", err).WithContext("filename", source)
	}

	setConfigDefaults(&config)

	return &config, nil
}

func setConfigDefaults(config *StartupConfig) {
	if config.Backend.Dir == "" {
		config.Backend.Dir = locator.DefaultBackendDir
	}
	if config.Backend.Name == "" {
		config.Backend.Name = locator.DefaultBackendName
	}
	if config.Backend.Script == "" {
		config.Backend.Script = locator.DefaultScriptName
	}
	if config.Backend.InterpreterEnv == "" {
		config.Backend.InterpreterEnv = locator.DefaultInterpreterEnv
	}
	if config.Backend.Host == "" {
		config.Backend.Host = domain.LoopbackHost
	}
	if config.Backend.GracefulTimeout == 0 {
		config.Backend.GracefulTimeout = process.DefaultGracefulTimeout
	}

	defaultHealth := monitoring.DefaultHealthCheckConfig()
	if config.HealthCheck.Type == "" {
		config.HealthCheck.Type = defaultHealth.Type
	}
	if config.HealthCheck.HTTP.Path == "" {
		config.HealthCheck.HTTP.Path = defaultHealth.HTTP.Path
	}
	if config.HealthCheck.HTTP.Method == "" {
		config.HealthCheck.HTTP.Method = defaultHealth.HTTP.Method
	}
	if config.HealthCheck.Timeout == 0 {
		config.HealthCheck.Timeout = defaultHealth.Timeout
	}
	if config.HealthCheck.Interval == 0 {
		config.HealthCheck.Interval = defaultHealth.Interval
	}
	if config.HealthCheck.ProbeTimeout == 0 {
		config.HealthCheck.ProbeTimeout = defaultHealth.ProbeTimeout
	}

	defaultOutput := logconfig.DefaultOutputConfig()
	if config.Output.Type == "" {
		config.Output.Type = defaultOutput.Type
	}
	if config.Output.Type == logconfig.OutputTypeFile && config.Output.Path == "" {
		config.Output.Path = defaultOutput.Path
	}

	if config.Directories.AppName == "" {
		config.Directories.AppName = appdirs.DefaultAppName
	}

	defaultLogging := logging.DefaultConfig()
	if config.Logging.Level == "" {
		config.Logging.Level = defaultLogging.Level
	}
	if config.Logging.Format == "" {
		config.Logging.Format = defaultLogging.Format
	}
	if config.Logging.Output == "" {
		config.Logging.Output = defaultLogging.Output
	}
}

// ApplyEnvironment overlays the shell's own environment variables.
func ApplyEnvironment(config *StartupConfig, lookup func(string) (string, bool)) error {
	if value, ok := lookup(EnvPackaged); ok && value != "" {
		packaged, err := strconv.ParseBool(value)
		if err != nil {
			return errors.NewValidationError("invalid boolean in "+EnvPackaged, err).WithContext("value", value)
		}
		config.App.Packaged = packaged
	}
	if value, ok := lookup(EnvResourcesDir); ok && value != "" {
		config.App.ResourcesDir = value
	}
	if value, ok := lookup(EnvLogLevel); ok && value != "" {
		config.Logging.Level = value
	}
	return nil
}

// ValidateConfig validates the entire configuration structure
func ValidateConfig(config *StartupConfig) error {
	if config == nil {
		return errors.NewValidationError("configuration cannot be nil", nil)
	}

	collection := errors.NewErrorCollection()

	if config.App.Packaged && config.App.ResourcesDir == "" {
		collection.Add(errors.NewValidationError("resources directory is required when packaged", nil))
	}
	if !config.App.Packaged && config.App.AppDir == "" {
		collection.Add(errors.NewValidationError("application directory is required when not packaged", nil))
	}

	if err := validateBackendConfig(&config.Backend); err != nil {
		collection.Add(errors.NewValidationError("invalid backend configuration", err))
	}

	if err := monitoring.ValidateHealthCheckConfig(config.HealthCheck); err != nil {
		collection.Add(errors.NewValidationError("invalid health check configuration", err))
	}

	if err := config.Output.Validate(); err != nil {
		collection.Add(errors.NewValidationError("invalid output configuration", err))
	}

	switch strings.ToLower(config.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		collection.Add(errors.NewValidationError("invalid log level: "+config.Logging.Level, nil))
	}

	return collection.ToError()
}

func validateBackendConfig(backend *BackendConfig) error {
	for _, field := range []struct {
		name  string
		value string
	}{
		{"dir", backend.Dir},
		{"name", backend.Name},
		{"script", backend.Script},
	} {
		if strings.TrimSpace(field.value) == "" {
			return errors.NewValidationError(fmt.Sprintf("backend %s cannot be empty", field.name), nil)
		}
		if strings.ContainsAny(field.value, `/\`) && field.name != "script" {
			return errors.NewValidationError(fmt.Sprintf("backend %s must be a single path element", field.name), nil).
				WithContext("value", field.value)
		}
	}

	if backend.Host != domain.LoopbackHost && backend.Host != "localhost" && backend.Host != "::1" {
		return errors.NewValidationError("backend host must be a loopback address: "+backend.Host, nil)
	}

	for _, entry := range backend.Environment {
		key, _, found := strings.Cut(entry, "=")
		if !found || key == "" {
			return errors.NewValidationError("environment entry must be KEY=VALUE: "+entry, nil)
		}
	}

	if backend.GracefulTimeout < 0 {
		return errors.NewValidationError("graceful timeout cannot be negative", nil)
	}

	return nil
}

// LocatorOptions maps the configuration onto the backend locator.
func (c *StartupConfig) LocatorOptions() locator.Options {
	return locator.Options{
		ResourcesDir:   c.App.ResourcesDir,
		AppDir:         c.App.AppDir,
		BackendDir:     c.Backend.Dir,
		BackendName:    c.Backend.Name,
		ScriptName:     c.Backend.Script,
		Interpreter:    c.Backend.Interpreter,
		InterpreterEnv: c.Backend.InterpreterEnv,
	}
}

// SupervisorOptions maps the configuration onto the process supervisor.
func (c *StartupConfig) SupervisorOptions() process.SupervisorOptions {
	return process.SupervisorOptions{
		GracefulTimeout: c.Backend.GracefulTimeout,
	}
}

// Summary renders the configuration for logging and --print-config.
func (c *StartupConfig) Summary() string {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("%+v", *c)
	}
	return string(data)
}
