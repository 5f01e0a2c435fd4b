package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/marmos91/multiport/internal/logger"
	"github.com/marmos91/multiport/internal/telemetry"
	"github.com/marmos91/multiport/pkg/config"
	"github.com/marmos91/multiport/pkg/metrics"
	"github.com/marmos91/multiport/pkg/metrics/prometheus"
	"github.com/marmos91/multiport/pkg/multiport"
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the multiport runtime",
	Long: `Start the multiport runtime with the configured listeners and a sample
connection handler, running until interrupted.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/multiportd/config.yaml.

Examples:
  # Start with default config location
  multiportd start

  # Start with custom config
  multiportd start --config /etc/multiportd/config.yaml

  # Start with environment variable overrides
  MULTIPORT_LOGGING_LEVEL=DEBUG multiportd start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryCfg := telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "multiportd",
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

	profilingCfg := telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "multiportd",
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

	var runtimeMetrics metrics.RuntimeMetrics
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		runtimeMetrics = prometheus.NewRuntimeMetrics()
		logger.Info("Metrics enabled", "port", cfg.Metrics.Port)
	} else {
		logger.Info("Metrics collection disabled")
	}

	ports := make([]uint16, len(cfg.Listeners))
	for i, l := range cfg.Listeners {
		ports[i] = l.Port
	}

	srv, err := multiport.NewServer(
		sampleHandler(),
		0, // per-listener limit applied individually below
		cfg.Queue.GlobalLimit,
		cfg.Server.WorkerLimit,
		ports...,
	)
	if err != nil {
		return fmt.Errorf("failed to start runtime: %w", err)
	}
	if runtimeMetrics != nil {
		srv.SetMetrics(runtimeMetrics)
	}
	for _, l := range cfg.Listeners {
		if err := srv.Queue().SetListenerLimit(l.Port, l.BufferLimit); err != nil {
			return fmt.Errorf("failed to configure listener %d: %w", l.Port, err)
		}
		logger.Info("Listener started", "port", l.Port, "buffer_limit", l.BufferLimit)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Runtime is running. Press Ctrl+C to stop.")
	<-sigChan
	signal.Stop(sigChan)
	logger.Info("Shutdown signal received, draining connections")

	shutdownDone := make(chan error, 1)
	go func() { shutdownDone <- srv.Close() }()

	select {
	case err := <-shutdownDone:
		if err != nil {
			logger.Error("Runtime shutdown error", "error", err)
			return err
		}
		logger.Info("Runtime stopped gracefully")
	case <-time.After(cfg.ShutdownTimeout):
		logger.Warn("Shutdown timeout elapsed, exiting without waiting further", "timeout", cfg.ShutdownTimeout)
	}

	return nil
}

// sampleHandler returns a minimal connection handler for `multiportd start`:
// it reads until EOF or error and closes the connection. Real deployments
// embed pkg/multiport directly and supply their own handler; handler
// duration and panic metrics are recorded by the Server itself.
func sampleHandler() multiport.Handler {
	return func(c multiport.Connection) {
		defer func() { _ = c.Close() }()

		buf := make([]byte, 4096)
		for {
			if _, err := c.Conn.Read(buf); err != nil {
				break
			}
		}
	}
}
