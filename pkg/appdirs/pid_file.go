package appdirs

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/core-tools/hsu-backend-shell/pkg/errors"
	"github.com/core-tools/hsu-backend-shell/pkg/logging"
)

// PIDFile records the PID of the running backend so that a later run can
// tell whether a previous shell left its backend behind.
type PIDFile struct {
	path   string
	logger logging.Logger
}

func NewPIDFile(path string, logger logging.Logger) *PIDFile {
	return &PIDFile{path: path, logger: logger}
}

func (f *PIDFile) Path() string {
	return f.path
}

func (f *PIDFile) WritePID(pid int) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return errors.NewIOError("failed to create PID file directory", err).WithContext("pid_file", f.path)
	}

	if err := os.WriteFile(f.path, []byte(fmt.Sprintf("%d\n", pid)), 0644); err != nil {
		return errors.NewIOError("failed to write PID file", err).WithContext("pid_file", f.path).WithContext("pid", pid)
	}

	f.logger.Debugf("PID file written, pid: %d, path: %s", pid, f.path)
	return nil
}

// ReadPID returns the recorded PID. A missing file is reported as 0 and no error.
func (f *PIDFile) ReadPID() (int, error) {
	content, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.NewIOError("failed to read PID file", err).WithContext("pid_file", f.path)
	}

	pidStr := strings.TrimSpace(string(content))
	pid, err := strconv.Atoi(pidStr)
	if err != nil || pid <= 0 {
		return 0, errors.NewValidationError("invalid PID in PID file", err).
			WithContext("pid_file", f.path).WithContext("content", pidStr)
	}
	return pid, nil
}

// RemovePID deletes the file. Removing a missing file is not an error.
func (f *PIDFile) RemovePID() error {
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return errors.NewIOError("failed to remove PID file", err).WithContext("pid_file", f.path)
	}
	return nil
}
