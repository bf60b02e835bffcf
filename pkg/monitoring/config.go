package monitoring

import "time"

type HealthCheckType string

const (
	HealthCheckTypeHTTP HealthCheckType = "http"
	HealthCheckTypeGRPC HealthCheckType = "grpc"
	HealthCheckTypeTCP  HealthCheckType = "tcp"
)

const (
	DefaultHealthPath   = "/health"
	DefaultTimeout      = 20 * time.Second
	DefaultInterval     = 300 * time.Millisecond
	DefaultProbeTimeout = time.Second
)

type HTTPHealthCheckConfig struct {
	Path    string            `yaml:"path,omitempty"`
	Method  string            `yaml:"method,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	// AcceptAnyStatus treats any HTTP response as ready; otherwise only 2xx is.
	AcceptAnyStatus bool `yaml:"accept_any_status,omitempty"`
}

type GRPCHealthCheckConfig struct {
	// Service name passed to grpc.health.v1.Health/Check, empty for the server as a whole
	Service string `yaml:"service,omitempty"`
}

// HealthCheckConfig describes how readiness of the backend is established.
type HealthCheckConfig struct {
	Type HealthCheckType `yaml:"type"`

	HTTP HTTPHealthCheckConfig `yaml:"http,omitempty"`
	GRPC GRPCHealthCheckConfig `yaml:"grpc,omitempty"`

	// Timeout is the total budget for the backend to become ready
	Timeout time.Duration `yaml:"timeout,omitempty"`
	// Interval is the constant pause between failed probes
	Interval time.Duration `yaml:"interval,omitempty"`
	// ProbeTimeout bounds a single probe
	ProbeTimeout time.Duration `yaml:"probe_timeout,omitempty"`
}

func DefaultHealthCheckConfig() HealthCheckConfig {
	return HealthCheckConfig{
		Type: HealthCheckTypeHTTP,
		HTTP: HTTPHealthCheckConfig{
			Path:   DefaultHealthPath,
			Method: "GET",
		},
		Timeout:      DefaultTimeout,
		Interval:     DefaultInterval,
		ProbeTimeout: DefaultProbeTimeout,
	}
}

// withDefaults fills in zero values
func (c HealthCheckConfig) withDefaults() HealthCheckConfig {
	defaults := DefaultHealthCheckConfig()
	if c.Type == "" {
		c.Type = defaults.Type
	}
	if c.HTTP.Path == "" {
		c.HTTP.Path = defaults.HTTP.Path
	}
	if c.HTTP.Method == "" {
		c.HTTP.Method = defaults.HTTP.Method
	}
	if c.Timeout == 0 {
		c.Timeout = defaults.Timeout
	}
	if c.Interval == 0 {
		c.Interval = defaults.Interval
	}
	if c.ProbeTimeout == 0 {
		c.ProbeTimeout = defaults.ProbeTimeout
	}
	return c
}
