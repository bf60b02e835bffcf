package monitoring

import (
	"net/http"
	"strings"
	"time"

	"github.com/core-tools/hsu-backend-shell/pkg/errors"
)

// ValidateHealthCheckConfig validates health check configuration
func ValidateHealthCheckConfig(config HealthCheckConfig) error {
	switch config.Type {
	case HealthCheckTypeHTTP:
		if !strings.HasPrefix(config.HTTP.Path, "/") {
			return errors.NewValidationError("HTTP health path must start with '/': "+config.HTTP.Path, nil)
		}
		switch config.HTTP.Method {
		case http.MethodGet, http.MethodHead:
		default:
			return errors.NewValidationError("unsupported HTTP health method: "+config.HTTP.Method, nil)
		}

	case HealthCheckTypeGRPC, HealthCheckTypeTCP:

	default:
		return errors.NewValidationError("unsupported health check type: "+string(config.Type), nil)
	}

	return ValidateTimings(config.Timeout, config.Interval, config.ProbeTimeout)
}

// ValidateTimings validates the readiness budget and the polling cadence
func ValidateTimings(timeout, interval, probeTimeout time.Duration) error {
	if timeout <= 0 {
		return errors.NewValidationError("health check timeout must be positive", nil)
	}
	if interval <= 0 {
		return errors.NewValidationError("health check interval must be positive", nil)
	}
	if interval > timeout {
		return errors.NewValidationError("health check interval cannot exceed the timeout", nil).
			WithContext("interval", interval).WithContext("timeout", timeout)
	}
	if probeTimeout <= 0 {
		return errors.NewValidationError("probe timeout must be positive", nil)
	}
	return nil
}
