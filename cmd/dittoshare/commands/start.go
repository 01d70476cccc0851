package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/marmos91/dittoshare/internal/cli/health"
	"github.com/marmos91/dittoshare/internal/logger"
	"github.com/marmos91/dittoshare/internal/telemetry"
	"github.com/marmos91/dittoshare/pkg/config"
	"github.com/marmos91/dittoshare/pkg/fileops"
	"github.com/marmos91/dittoshare/pkg/metrics"
	promMetrics "github.com/marmos91/dittoshare/pkg/metrics/prometheus"
	"github.com/marmos91/dittoshare/pkg/registry"
	"github.com/marmos91/dittoshare/pkg/server"
	"github.com/spf13/cobra"
)

var (
	foreground bool
	pidFile    string
	logFile    string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the DittoShare server",
	Long: `Start the DittoShare server with the specified configuration.

By default, the server runs in the background (daemon mode). Use --foreground
to run in the foreground for debugging or when managed by a process supervisor.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/dittoshare/config.yaml.

Examples:
  # Start in background (default)
  dittoshare start

  # Start in foreground
  dittoshare start --foreground

  # Start with custom config file
  dittoshare start --config /etc/dittoshare/config.yaml

  # Start with environment variable overrides
  DITTOSHARE_LOGGING_LEVEL=DEBUG dittoshare start --foreground`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "Run in foreground (default: background/daemon mode)")
	startCmd.Flags().StringVar(&pidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/dittoshare/dittoshare.pid)")
	startCmd.Flags().StringVar(&logFile, "log-file", "", "Path to log file for daemon mode (default: $XDG_STATE_HOME/dittoshare/dittoshare.log)")
}

func runStart(cmd *cobra.Command, args []string) error {
	// Handle daemon mode (background)
	if !foreground {
		return startDaemon()
	}

	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	// Initialize the structured logger
	if err := InitLogger(cfg); err != nil {
		return err
	}

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry (if enabled)
	telemetryCfg := telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "dittoshare",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	}
	telemetryShutdown, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	// Initialize Pyroscope profiling (if enabled)
	profilingCfg := telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "dittoshare",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	}
	profilingShutdown, err := telemetry.InitProfiling(profilingCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", "error", err)
		}
	}()

	fmt.Println("DittoShare - HTTP file sharing server")
	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	} else {
		logger.Info("Telemetry disabled")
	}
	if telemetry.IsProfilingEnabled() {
		logger.Info("Profiling enabled", "endpoint", cfg.Telemetry.Profiling.Endpoint, "profile_types", cfg.Telemetry.Profiling.ProfileTypes)
	} else {
		logger.Info("Profiling disabled")
	}

	// Initialize metrics FIRST so the HTTP metrics constructor sees the
	// registry as enabled
	var httpMetrics metrics.HTTPMetrics
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		httpMetrics = promMetrics.NewHTTPMetrics()
		logger.Info("Metrics enabled", "path", cfg.Metrics.Path)
	} else {
		logger.Info("Metrics collection disabled")
	}

	// Build the share registry from configuration
	reg, err := config.BuildRegistry(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize registry: %w", err)
	}

	// Log share details
	for _, share := range reg.ListAll() {
		logger.Info("Share configured",
			"name", share.Name,
			"root", share.Root,
			"read_only", share.ReadOnly,
			"hidden", share.Hidden)
	}

	// Mount the health endpoint alongside the shares
	if err := reg.RegisterHandler("health", newHealthHandler()); err != nil {
		return fmt.Errorf("failed to register health endpoint: %w", err)
	}

	listeners, err := config.BuildListeners(cfg)
	if err != nil {
		return err
	}

	srv := server.New(server.Options{
		Listeners:     listeners,
		ShutdownWait:  cfg.ShutdownWait,
		Metrics:       httpMetrics,
		MetricsPath:   metricsPath(cfg),
		MaxUploadSize: cfg.Limits.MaxUploadSize.Int64(),
	}, reg, fileops.New())

	// Write PID file if specified
	if pidFile != "" {
		if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d", os.Getpid())), 0644); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = os.Remove(pidFile) }()
	}

	// Hot-reload the share list when the config file changes
	if cfg.WatchConfig {
		stopWatch, err := watchConfig(ctx, reg)
		if err != nil {
			logger.Warn("Config watch disabled", "error", err)
		} else {
			defer stopWatch()
		}
	}

	// Start server in background
	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Run(ctx)
	}()

	// Wait for interrupt signal or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Server is running. Press Ctrl+C to stop.")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		cancel()

		// Wait for server to shut down gracefully
		if err := <-serverDone; err != nil {
			logger.Error("Server shutdown error", "error", err)
			return err
		}
		logger.Info("Server stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("Server error", "error", err)
			return err
		}
		logger.Info("Server stopped")
	}

	return nil
}

// metricsPath returns the metrics mount path, or empty when disabled.
func metricsPath(cfg *config.Config) string {
	if !cfg.Metrics.Enabled {
		return ""
	}
	return cfg.Metrics.Path
}

// newHealthHandler serves the health endpoint used by `dittoshare status`.
func newHealthHandler() http.Handler {
	startedAt := time.Now()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uptime := time.Since(startedAt).Round(time.Second)

		var resp health.Response
		resp.Status = "healthy"
		resp.Timestamp = time.Now().Format(time.RFC3339)
		resp.Data.Service = "dittoshare"
		resp.Data.StartedAt = startedAt.Format(time.RFC3339)
		resp.Data.Uptime = uptime.String()
		resp.Data.UptimeSec = int64(uptime.Seconds())

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})
}

// watchConfig watches the configuration file and reconciles the share
// registry when it changes. Returns a stop function.
func watchConfig(ctx context.Context, reg *registry.Registry) (func(), error) {
	path := GetConfigFile()
	if path == "" {
		if !config.DefaultConfigExists() {
			return nil, fmt.Errorf("no config file to watch")
		}
		path = config.GetDefaultConfigPath()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	// Watch the directory: editors replace the file on save, which
	// would otherwise drop the watch.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch config directory: %w", err)
	}

	logger.Info("Watching configuration for share changes", "path", path)

	go func() {
		// Debounce bursts of events from a single save.
		var pending *time.Timer
		reload := func() {
			cfg, err := config.Load(path)
			if err != nil {
				logger.Error("Config reload failed", "error", err)
				return
			}
			if err := config.SyncShares(reg, cfg); err != nil {
				logger.Error("Share reload failed", "error", err)
				return
			}
			logger.Info("Shares reloaded", "count", reg.Count())
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if pending != nil {
					pending.Stop()
				}
				pending = time.AfterFunc(250*time.Millisecond, reload)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("Config watcher error", "error", err)
			}
		}
	}()

	return func() { _ = watcher.Close() }, nil
}

// startDaemon starts the server as a background daemon process.
func startDaemon() error {
	stateDir := GetDefaultStateDir()

	// Create state directory if it doesn't exist
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	// Set default PID file if not specified
	pidPath := pidFile
	if pidPath == "" {
		pidPath = GetDefaultPidFile()
	}

	// Check if already running
	if _, err := os.Stat(pidPath); err == nil {
		pidData, err := os.ReadFile(pidPath)
		if err == nil {
			var pid int
			if _, err := fmt.Sscanf(string(pidData), "%d", &pid); err == nil {
				if process, err := os.FindProcess(pid); err == nil {
					if err := process.Signal(syscall.Signal(0)); err == nil {
						return fmt.Errorf("DittoShare is already running (PID %d)\nUse 'dittoshare stop' to stop the running instance", pid)
					}
				}
			}
		}
		// Stale PID file, remove it
		_ = os.Remove(pidPath)
	}

	// Set default log file if not specified
	logPath := logFile
	if logPath == "" {
		logPath = GetDefaultLogFile()
	}

	// Get the executable path
	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	// Build argument list for the child process
	childArgs := []string{"start", "--foreground", "--pid-file", pidPath}
	if cfgFile != "" {
		childArgs = append(childArgs, "--config", cfgFile)
	}

	// Open the log file for the child's output
	logHandle, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = logHandle.Close() }()

	child := exec.Command(executable, childArgs...)
	child.Stdout = logHandle
	child.Stderr = logHandle
	child.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := child.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	fmt.Printf("DittoShare started in background (PID %d)\n", child.Process.Pid)
	fmt.Printf("  PID file: %s\n", pidPath)
	fmt.Printf("  Log file: %s\n", logPath)
	fmt.Println("\nUse 'dittoshare status' to check the server status.")
	fmt.Println("Use 'dittoshare stop' to stop the server.")

	return nil
}
