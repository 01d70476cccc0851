package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// sampleConfig is the annotated configuration written by InitConfig.
// It must stay loadable by Load.
const sampleConfig = `# DittoShare Configuration File
#
# This file configures the DittoShare HTTP file sharing server.
# All values shown are defaults unless noted otherwise.
# Environment variables (DITTOSHARE_*) override file values,
# e.g. DITTOSHARE_LOGGING_LEVEL=DEBUG.

logging:
  # Minimum log level: DEBUG, INFO, WARN, ERROR
  level: "INFO"
  # Output format: text or json
  format: "text"
  # Destination: stdout, stderr, or a file path
  output: "stdout"

# Maximum time to wait for in-flight requests on shutdown before
# force-closing connections
shutdown_wait: 30s

# Addresses the HTTP server binds to. Set cert_file and key_file
# together to serve HTTPS on a listener.
listeners:
  - address: "0.0.0.0"
    port: 8080
    # cert_file: /etc/dittoshare/tls/server.crt
    # key_file: /etc/dittoshare/tls/server.key

# Exported directories. Each share is served under /<name>/.
shares: []
#  - name: public
#    path: /srv/share/public
#  - name: dropbox
#    path: /srv/share/dropbox
#    hidden: true
#  - name: docs
#    path: /srv/share/docs
#    read_only: true
#    list_dir: false

metrics:
  # Prometheus metrics, served on the path below when enabled
  enabled: false
  path: "/metrics"

limits:
  # Maximum upload body size, e.g. "100MB" or "1Gi". Zero means unlimited.
  max_upload_size: 0

# Reload the share list when this file changes. Listeners are not reloaded.
watch_config: false

telemetry:
  # OpenTelemetry tracing, exported over OTLP gRPC
  enabled: false
  endpoint: "localhost:4317"
  insecure: true
  sample_rate: 1.0
  profiling:
    # Pyroscope continuous profiling
    enabled: false
    endpoint: "http://localhost:4040"
`

// InitConfig writes a sample configuration file to the default location.
// Returns the path of the created file. Fails if the file already exists
// unless force is true.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a sample configuration file to the given path.
// Fails if the file already exists unless force is true.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", path)
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
