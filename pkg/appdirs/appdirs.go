package appdirs

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/core-tools/hsu-backend-shell/pkg/logging"
)

const (
	DefaultAppName     = "hsu-backend-shell"
	BackendDataDirName = "backend-data"
	PIDFileName        = "backend.pid"
)

// Config holds overrides for the per-user directories
type Config struct {
	// AppName is the subdirectory created under the OS user directories
	AppName string `yaml:"app_name,omitempty"`

	// DataDirectory replaces the OS user data directory, e.g. for portable installs
	DataDirectory string `yaml:"data_directory,omitempty"`

	// LogDirectory replaces the OS user log directory
	LogDirectory string `yaml:"log_directory,omitempty"`
}

type Option func(*Dirs)

// WithPlatform replaces runtime.GOOS, the environment and the home directory lookup.
func WithPlatform(goos string, getenv func(string) string, homeDir func() (string, error)) Option {
	return func(d *Dirs) {
		d.goos = goos
		d.getenv = getenv
		d.homeDir = homeDir
	}
}

// Dirs resolves the per-user locations the shell and the backend write to.
type Dirs struct {
	config  Config
	goos    string
	getenv  func(string) string
	homeDir func() (string, error)
	logger  logging.Logger
}

func New(config Config, logger logging.Logger, opts ...Option) *Dirs {
	if config.AppName == "" {
		config.AppName = DefaultAppName
	}

	d := &Dirs{
		config:  config,
		goos:    runtime.GOOS,
		getenv:  os.Getenv,
		homeDir: os.UserHomeDir,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dirs) AppName() string {
	return d.config.AppName
}

// UserDataDir is the per-user application data directory.
func (d *Dirs) UserDataDir() string {
	if d.config.DataDirectory != "" {
		return d.config.DataDirectory
	}
	return filepath.Join(d.userDataBase(), d.config.AppName)
}

// BackendDataDir is handed to the backend through its environment.
func (d *Dirs) BackendDataDir() string {
	return filepath.Join(d.UserDataDir(), BackendDataDirName)
}

// LogDir is the per-user log directory of the application.
func (d *Dirs) LogDir() string {
	if d.config.LogDirectory != "" {
		return d.config.LogDirectory
	}
	return d.userLogDir()
}

// LogFilePath resolves name against LogDir. Absolute names are returned as is.
func (d *Dirs) LogFilePath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(d.LogDir(), name)
}

func (d *Dirs) PIDFilePath() string {
	return filepath.Join(d.UserDataDir(), PIDFileName)
}

// PIDFile returns the file the backend PID is recorded in while it runs.
func (d *Dirs) PIDFile() *PIDFile {
	return NewPIDFile(d.PIDFilePath(), d.logger)
}

func (d *Dirs) home() string {
	home, err := d.homeDir()
	if err != nil || home == "" {
		d.logger.Warnf("Home directory is not available, using temp directory, error: %v", err)
		return os.TempDir()
	}
	return home
}

func (d *Dirs) userDataBase() string {
	switch d.goos {
	case "windows":
		if appData := d.getenv("APPDATA"); appData != "" {
			return appData
		}
		if userProfile := d.getenv("USERPROFILE"); userProfile != "" {
			return filepath.Join(userProfile, "AppData", "Roaming")
		}
		return filepath.Join(d.home(), "AppData", "Roaming")

	case "darwin":
		return filepath.Join(d.home(), "Library", "Application Support")

	default:
		if configHome := d.getenv("XDG_CONFIG_HOME"); configHome != "" {
			return configHome
		}
		return filepath.Join(d.home(), ".config")
	}
}

func (d *Dirs) userLogDir() string {
	switch d.goos {
	case "windows":
		localAppData := d.getenv("LOCALAPPDATA")
		if localAppData == "" {
			if userProfile := d.getenv("USERPROFILE"); userProfile != "" {
				localAppData = filepath.Join(userProfile, "AppData", "Local")
			} else {
				localAppData = filepath.Join(d.home(), "AppData", "Local")
			}
		}
		return filepath.Join(localAppData, d.config.AppName, "logs")

	case "darwin":
		return filepath.Join(d.home(), "Library", "Logs", d.config.AppName)

	default:
		if stateHome := d.getenv("XDG_STATE_HOME"); stateHome != "" {
			return filepath.Join(stateHome, d.config.AppName, "logs")
		}
		return filepath.Join(d.home(), ".local", "state", d.config.AppName, "logs")
	}
}
