package process

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/core-tools/hsu-backend-shell/pkg/domain"
	"github.com/core-tools/hsu-backend-shell/pkg/errors"
)

// Variables the backend reads at startup.
const (
	EnvHost    = "HOST"
	EnvPort    = "PORT"
	EnvDebug   = "FLASK_DEBUG"
	EnvDataDir = "DATA_DIR"
)

// Environment holds the values the shell passes to the backend on top of its
// own environment.
type Environment struct {
	Host    string
	Port    int
	DataDir string
	// Extra entries in KEY=VALUE form. They are applied before the fixed
	// overrides, so they cannot change the bind address, port or debug flag.
	Extra []string
}

// Build returns parent followed by the extra entries and the fixed overrides.
// exec.Cmd uses the last value of a duplicated key.
func (e Environment) Build(parent []string) []string {
	host := e.Host
	if host == "" {
		host = domain.LoopbackHost
	}

	env := make([]string, 0, len(parent)+len(e.Extra)+4)
	env = append(env, parent...)
	env = append(env, e.Extra...)
	env = append(env,
		EnvHost+"="+host,
		EnvPort+"="+strconv.Itoa(e.Port),
		EnvDebug+"=0",
		EnvDataDir+"="+e.DataDir,
	)
	return env
}

// workingDirectory returns the directory implied by the command
func workingDirectory(command domain.BackendCommand) string {
	if command.Dir != "" {
		return command.Dir
	}
	if filepath.IsAbs(command.Path) {
		return filepath.Dir(command.Path)
	}
	return ""
}

// ensureExecutable sets the execute bits on a bundled backend that lost them
// while being unpacked. Failures are left for the spawn to report.
func ensureExecutable(path string) error {
	if runtime.GOOS == "windows" {
		return nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return errors.NewIOError("file does not exist", err).WithContext("path", path)
	}

	mode := info.Mode()
	if mode&0111 != 0 {
		return nil
	}

	if err := os.Chmod(path, mode|0111); err != nil {
		return errors.NewPermissionError("failed to make file executable", err).WithContext("path", path)
	}
	return nil
}
