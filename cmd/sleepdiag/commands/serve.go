package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/akarsh-2005/sleepdiagnosis/internal/metrics"
	"github.com/akarsh-2005/sleepdiagnosis/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP analysis service",
	Long: `Run the HTTP analysis service.

Endpoints:
  POST /analyze   multipart upload, field "audio"
  GET  /health    service and model status
  GET  /config    sanitized configuration
  GET  /metrics   Prometheus metrics

Examples:
  sleepdiag serve
  sleepdiag --config /etc/sleepdiag/config.yaml serve`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		if !cfg.HTTP.Enabled {
			return errors.New("http is disabled in the configuration, nothing to serve")
		}

		logger := initLogger(cfg.Logging)

		logger.Info("Service starting",
			slog.String("service", server.ServiceName),
			slog.String("version", serviceVersion),
			slog.String("config_path", configPath),
		)

		// Log configuration summary
		logger.Info("Configuration loaded",
			slog.String("address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
			slog.Int("max_concurrent_analyses", cfg.HTTP.MaxConcurrentAnalyses),
			slog.Duration("analysis_timeout", cfg.HTTP.GetAnalysisTimeout()),
			slog.Int("target_sample_rate", cfg.Audio.TargetSampleRate),
			slog.Duration("max_duration", cfg.Audio.GetMaxDuration()),
			slog.Int64("max_upload_bytes", cfg.Audio.MaxUploadBytes),
			slog.String("ffmpeg_path", cfg.Decoder.FFmpegPath),
			slog.Bool("render_enabled", cfg.Spectrogram.RenderEnabled),
			slog.String("model_path", cfg.Model.Path),
			slog.String("log_level", cfg.Logging.Level),
		)

		// Initialize Prometheus metrics
		appMetrics := metrics.NewMetrics(prometheus.DefaultRegisterer)
		logger.Info("Prometheus metrics initialized")

		p, err := buildPipeline(cfg, logger, appMetrics)
		if err != nil {
			logger.Error("Failed to initialize pipeline", slog.String("error", err.Error()))
			return err
		}

		httpServer := server.NewHTTPServer(cfg, serviceVersion, logger, p, appMetrics, nil)
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			return err
		}

		// Setup signal handling for graceful shutdown
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger.Info("Service started successfully, waiting for signals...")
		<-ctx.Done()

		logger.Info("Starting graceful shutdown...")

		// In-flight analyses get the full analysis timeout to finish
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.GetAnalysisTimeout()+10*time.Second)
		defer cancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}

		logger.Info("Service stopped")
		return nil
	},
}
