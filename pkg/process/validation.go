package process

import (
	"strings"

	"github.com/core-tools/hsu-backend-shell/pkg/domain"
	"github.com/core-tools/hsu-backend-shell/pkg/errors"
)

// ValidateCommand checks the resolved command before it is spawned
func ValidateCommand(command domain.BackendCommand) error {
	if strings.TrimSpace(command.Path) == "" {
		return errors.NewValidationError("backend command path cannot be empty", nil)
	}

	for i, arg := range command.Args {
		if strings.ContainsRune(arg, 0) {
			return errors.NewValidationError("backend argument contains a NUL byte", nil).WithContext("index", i)
		}
	}

	return nil
}

// ValidateEnvironment checks the values passed to the backend
func ValidateEnvironment(env Environment) error {
	if env.Port <= 0 || env.Port > 65535 {
		return errors.NewValidationError("port must be between 1 and 65535", nil).WithContext("port", env.Port)
	}

	if strings.TrimSpace(env.DataDir) == "" {
		return errors.NewValidationError("data directory cannot be empty", nil)
	}

	for _, entry := range env.Extra {
		key, _, found := strings.Cut(entry, "=")
		if !found || key == "" {
			return errors.NewValidationError("environment entry must be KEY=VALUE: "+entry, nil)
		}
	}

	return nil
}
