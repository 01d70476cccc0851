package telemetry

// Config configures the OTLP trace exporter.
type Config struct {
	Enabled bool

	// ServiceName and ServiceVersion identify this process in the
	// trace backend.
	ServiceName    string
	ServiceVersion string

	// Endpoint is the OTLP gRPC endpoint, host:port without scheme.
	Endpoint string

	// Insecure disables TLS on the exporter connection.
	Insecure bool

	// SampleRate is the fraction of traces to sample, from 0.0 (none)
	// to 1.0 (all).
	SampleRate float64
}

// DefaultConfig returns tracing disabled with a local collector endpoint.
func DefaultConfig() Config {
	return Config{
		Enabled:        false,
		ServiceName:    "dittoshare",
		ServiceVersion: "dev",
		Endpoint:       "localhost:4317",
		Insecure:       true,
		SampleRate:     1.0,
	}
}
