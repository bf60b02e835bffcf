package monitoring

import (
	"testing"
	"time"

	"github.com/core-tools/hsu-backend-shell/pkg/errors"

	"github.com/stretchr/testify/assert"
)

func TestValidateHealthCheckConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*HealthCheckConfig)
		shouldErr bool
	}{
		{
			name:      "defaults",
			mutate:    func(c *HealthCheckConfig) {},
			shouldErr: false,
		},
		{
			name:      "grpc",
			mutate:    func(c *HealthCheckConfig) { c.Type = HealthCheckTypeGRPC },
			shouldErr: false,
		},
		{
			name:      "head method",
			mutate:    func(c *HealthCheckConfig) { c.HTTP.Method = "HEAD" },
			shouldErr: false,
		},
		{
			name:      "unknown type",
			mutate:    func(c *HealthCheckConfig) { c.Type = "exec" },
			shouldErr: true,
		},
		{
			name:      "relative path",
			mutate:    func(c *HealthCheckConfig) { c.HTTP.Path = "health" },
			shouldErr: true,
		},
		{
			name:      "post method",
			mutate:    func(c *HealthCheckConfig) { c.HTTP.Method = "POST" },
			shouldErr: true,
		},
		{
			name:      "zero timeout",
			mutate:    func(c *HealthCheckConfig) { c.Timeout = 0 },
			shouldErr: true,
		},
		{
			name:      "negative interval",
			mutate:    func(c *HealthCheckConfig) { c.Interval = -time.Second },
			shouldErr: true,
		},
		{
			name: "interval longer than timeout",
			mutate: func(c *HealthCheckConfig) {
				c.Timeout = time.Second
				c.Interval = 2 * time.Second
			},
			shouldErr: true,
		},
		{
			name:      "zero probe timeout",
			mutate:    func(c *HealthCheckConfig) { c.ProbeTimeout = 0 },
			shouldErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultHealthCheckConfig()
			tt.mutate(&config)

			err := ValidateHealthCheckConfig(config)
			if tt.shouldErr {
				assert.True(t, errors.IsValidationError(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDefaultHealthCheckConfig(t *testing.T) {
	config := DefaultHealthCheckConfig()

	assert.Equal(t, HealthCheckTypeHTTP, config.Type)
	assert.Equal(t, "/health", config.HTTP.Path)
	assert.Equal(t, 20*time.Second, config.Timeout)
	assert.Equal(t, 300*time.Millisecond, config.Interval)
	assert.False(t, config.HTTP.AcceptAnyStatus)
}

func TestWithDefaults_KeepsExplicitValues(t *testing.T) {
	config := HealthCheckConfig{Type: HealthCheckTypeTCP, Timeout: 5 * time.Second}.withDefaults()

	assert.Equal(t, HealthCheckTypeTCP, config.Type)
	assert.Equal(t, 5*time.Second, config.Timeout)
	assert.Equal(t, DefaultInterval, config.Interval)
	assert.Equal(t, DefaultProbeTimeout, config.ProbeTimeout)
}
