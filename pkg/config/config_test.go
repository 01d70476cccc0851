package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marmos91/dittoshare/internal/bytesize"
)

// yamlSafePath converts a filesystem path to a YAML-safe representation.
// On Windows, backslashes in double-quoted YAML strings are interpreted as
// escape sequences (e.g. \U -> Unicode escape), causing parse errors.
func yamlSafePath(p string) string {
	return filepath.ToSlash(p)
}

func TestLoad_DefaultConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	// Write minimal config
	configContent := `
logging:
  level: "INFO"

listeners:
  - port: 8080

shares:
  - name: public
    path: "` + yamlSafePath(tmpDir) + `/public"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Verify defaults were applied
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default output 'stdout', got %q", cfg.Logging.Output)
	}
	if cfg.ShutdownWait != 30*time.Second {
		t.Errorf("Expected default shutdown_wait 30s, got %v", cfg.ShutdownWait)
	}
	if len(cfg.Listeners) != 1 || cfg.Listeners[0].Address != "0.0.0.0" {
		t.Errorf("Expected default listener address 0.0.0.0, got %+v", cfg.Listeners)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Expected default metrics path /metrics, got %q", cfg.Metrics.Path)
	}
	if len(cfg.Shares) != 1 {
		t.Fatalf("Expected one share, got %d", len(cfg.Shares))
	}
	if !cfg.Shares[0].ListDirEnabled() {
		t.Error("Expected directory listing to default to enabled")
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "does-not-exist.yaml")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Expected defaults when config file missing, got error: %v", err)
	}

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default level INFO, got %q", cfg.Logging.Level)
	}
	if len(cfg.Listeners) != 1 || cfg.Listeners[0].Port != 8080 {
		t.Errorf("Expected default listener on port 8080, got %+v", cfg.Listeners)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
logging:
  level: "INFO
  broken yaml here
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Expected error for invalid YAML")
	}
}

func TestLoad_DurationAndSizeParsing(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
shutdown_wait: 5s

listeners:
  - port: 9000

limits:
  max_upload_size: 100Mi
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.ShutdownWait != 5*time.Second {
		t.Errorf("Expected shutdown_wait 5s, got %v", cfg.ShutdownWait)
	}
	if cfg.Limits.MaxUploadSize != bytesize.ByteSize(100*bytesize.MiB) {
		t.Errorf("Expected max_upload_size 100Mi, got %d", cfg.Limits.MaxUploadSize)
	}
}

func TestLoad_TLSListener(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
listeners:
  - address: "127.0.0.1"
    port: 8443
    cert_file: "` + yamlSafePath(tmpDir) + `/server.crt"
    key_file: "` + yamlSafePath(tmpDir) + `/server.key"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Listeners[0].CertFile == "" || cfg.Listeners[0].KeyFile == "" {
		t.Errorf("Expected cert and key paths to load, got %+v", cfg.Listeners[0])
	}
}

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default level INFO, got %q", cfg.Logging.Level)
	}
	if cfg.ShutdownWait != 30*time.Second {
		t.Errorf("Expected default shutdown_wait 30s, got %v", cfg.ShutdownWait)
	}
	if len(cfg.Listeners) != 1 {
		t.Fatalf("Expected one default listener, got %d", len(cfg.Listeners))
	}
	if cfg.Listeners[0].Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", cfg.Listeners[0].Port)
	}
	if cfg.Metrics.Enabled {
		t.Error("Expected metrics disabled by default")
	}
}

func TestConfigExists(t *testing.T) {
	// With a temp XDG_CONFIG_HOME, no config exists
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	if DefaultConfigExists() {
		t.Error("Expected no default config in fresh directory")
	}
}

func TestGetDefaultConfigPath(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	path := GetDefaultConfigPath()
	expected := filepath.Join(tmpDir, "dittoshare", "config.yaml")
	if path != expected {
		t.Errorf("Expected %q, got %q", expected, path)
	}
}

func TestGetConfigDir(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	dir := GetConfigDir()
	expected := filepath.Join(tmpDir, "dittoshare")
	if dir != expected {
		t.Errorf("Expected %q, got %q", expected, dir)
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
logging:
  level: "INFO"

listeners:
  - port: 8080
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	t.Setenv("DITTOSHARE_LOGGING_LEVEL", "DEBUG")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected env override DEBUG, got %q", cfg.Logging.Level)
	}
}

func TestSaveConfig_Roundtrip(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nested", "config.yaml")

	cfg := GetDefaultConfig()
	cfg.Shares = []ShareConfig{{Name: "public", Path: "/srv/public"}}

	if err := SaveConfig(cfg, configPath); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	loaded, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load saved config: %v", err)
	}

	if len(loaded.Shares) != 1 || loaded.Shares[0].Name != "public" {
		t.Errorf("Expected saved share to round-trip, got %+v", loaded.Shares)
	}
	if loaded.ShutdownWait != cfg.ShutdownWait {
		t.Errorf("Expected shutdown_wait %v, got %v", cfg.ShutdownWait, loaded.ShutdownWait)
	}
}
