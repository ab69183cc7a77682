package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sentra-security/sentra/internal/adapter/inbound/http"
	"github.com/sentra-security/sentra/internal/adapter/outbound/telemetry"
	"github.com/sentra-security/sentra/internal/config"
	"github.com/sentra-security/sentra/internal/domain/plugin"
	"github.com/sentra-security/sentra/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the evaluation server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Server.LogLevel),
	}))

	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return run(ctx, cfg, logger)
}

// run wires the plugin pipeline, telemetry sink, metrics, evaluation
// service, and HTTP transport, then blocks until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	built, err := plugin.Build(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to build plugin pipeline: %w", err)
	}
	pipeline := plugin.New(built.Plugins, time.Duration(cfg.PluginWarnMs)*time.Millisecond, logger)

	sink, err := buildTelemetrySink(cfg.Telemetry, logger)
	if err != nil {
		return fmt.Errorf("failed to build telemetry sink: %w", err)
	}

	budget := time.Duration(cfg.PluginBudgetMs) * time.Millisecond

	reg, metrics := http.NewRegistry(Version, 1, sink)

	evalService := service.New(pipeline, built.Matchers, budget, cfg.AuditOnly, sink, metrics, logger)

	transport := http.NewHTTPTransport(evalService,
		http.WithAddr(cfg.Server.HTTPAddr),
		http.WithLogger(logger),
		http.WithMaxRequestBytes(cfg.MaxRequestBytes),
		http.WithStrictAuthTokens(cfg.StrictAuthAllowedTokens),
		http.WithHealthInfo(evalService.PluginCount, cfg.PluginBudgetMs, Version),
		http.WithMetrics(reg, metrics),
	)

	logger.Info("sentra starting",
		"version", Version,
		"http_addr", cfg.Server.HTTPAddr,
		"plugins", strings.Join(cfg.Plugins, ","),
		"audit_only", cfg.AuditOnly,
		"budget_ms", cfg.PluginBudgetMs,
	)

	if configFile := config.ConfigFileUsed(); configFile != "" {
		go watchConfig(ctx, configFile, evalService, logger)
	}

	return transport.Start(ctx)
}

// watchConfig reloads the plugin pipeline whenever the config file on disk
// changes, without requiring a restart. A config that fails to load or
// validate is logged and ignored; the previous pipeline stays in effect.
func watchConfig(ctx context.Context, configFile string, evalService *service.EvaluationService, logger *slog.Logger) {
	watcher, err := config.NewWatcher(configFile, logger)
	if err != nil {
		logger.Warn("config hot-reload disabled", "error", err)
		return
	}

	err = watcher.Watch(ctx, func() {
		cfg, err := config.LoadConfig()
		if err != nil {
			logger.Error("config reload failed, keeping previous pipeline", "error", err)
			return
		}

		built, err := plugin.Build(cfg, logger)
		if err != nil {
			logger.Error("plugin pipeline rebuild failed, keeping previous pipeline", "error", err)
			return
		}

		evalService.Reload(plugin.New(built.Plugins, time.Duration(cfg.PluginWarnMs)*time.Millisecond, logger), built.Matchers)
		logger.Info("config reloaded", "plugins", strings.Join(cfg.Plugins, ","))
	})
	if err != nil {
		logger.Error("config watcher stopped", "error", err)
	}
}

func buildTelemetrySink(cfg config.TelemetryConfig, logger *slog.Logger) (*telemetry.Sink, error) {
	var telemetryWriter, auditWriter *telemetry.RotatingWriter
	var err error

	if cfg.FilePath != "" {
		telemetryWriter, err = telemetry.OpenRotatingWriter(cfg.FilePath, cfg.MaxBytes, cfg.RotateKeep, cfg.RotateCompress)
		if err != nil {
			return nil, err
		}
	}
	if cfg.AuditFilePath != "" {
		auditWriter, err = telemetry.OpenRotatingWriter(cfg.AuditFilePath, cfg.MaxBytes, cfg.RotateKeep, cfg.RotateCompress)
		if err != nil {
			return nil, err
		}
	}

	return telemetry.New(telemetry.Config{
		Telemetry:    telemetryWriter,
		Audit:        auditWriter,
		MirrorStdout: cfg.MirrorStdout,
		SampleEveryN: cfg.SampleEveryN,
	}, logger), nil
}

// parseLogLevel converts a string log level to slog.Level, defaulting to
// info for unrecognized values.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
