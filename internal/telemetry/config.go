package telemetry

import "github.com/felixgeelhaar/capboard/internal/version"

// Config holds configuration for the tracer
type Config struct {
	// ServiceName is the name of the service
	ServiceName string

	// ServiceVersion is the version of the service
	ServiceVersion string

	// Environment is the deployment environment (dev, staging, production)
	Environment string

	// Enabled determines whether tracing is enabled.
	// When false, a noop tracer is used and no spans are recorded.
	Enabled bool

	// Endpoint is the OTLP/HTTP collector, either host:port or a full URL.
	// Empty means spans are recorded in-process but never exported.
	Endpoint string

	// Insecure sends to a host:port endpoint over plain HTTP.
	Insecure bool

	// SampleRate is the fraction of traces to sample (0.0 to 1.0)
	SampleRate float64
}

// DefaultConfig returns the CLI default: tracing off.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "capboard",
		ServiceVersion: version.GetInfo().Version,
		Environment:    "development",
		SampleRate:     1.0,
	}
}

// normalized clamps the sample rate and fills blank names.
func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.ServiceName == "" {
		c.ServiceName = def.ServiceName
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = def.ServiceVersion
	}
	if c.Environment == "" {
		c.Environment = def.Environment
	}
	switch {
	case c.SampleRate < 0:
		c.SampleRate = 0
	case c.SampleRate > 1:
		c.SampleRate = 1
	}
	return c
}
