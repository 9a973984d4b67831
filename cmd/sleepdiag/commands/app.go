package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/akarsh-2005/sleepdiagnosis/internal/classify"
	"github.com/akarsh-2005/sleepdiagnosis/internal/config"
	"github.com/akarsh-2005/sleepdiagnosis/internal/decoder"
	"github.com/akarsh-2005/sleepdiagnosis/internal/features"
	"github.com/akarsh-2005/sleepdiagnosis/internal/metrics"
	"github.com/akarsh-2005/sleepdiagnosis/internal/model"
	"github.com/akarsh-2005/sleepdiagnosis/internal/pipeline"
	"github.com/akarsh-2005/sleepdiagnosis/internal/spectrogram"
)

// buildPipeline loads the model once and wires the analysis components
func buildPipeline(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*pipeline.Pipeline, error) {
	clf, err := model.Load(cfg.Model.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to load model: %w", err)
	}

	engine := classify.NewEngine(clf, logger)
	if engine.HasModel() {
		logger.Info("Model loaded",
			slog.String("path", cfg.Model.Path),
			slog.String("kind", engine.ModelKind()),
		)
	} else {
		logger.Warn("No model found, using heuristic fallback",
			slog.String("path", cfg.Model.Path),
		)
	}

	opts := decoder.Options{
		TargetRate:       cfg.Audio.TargetSampleRate,
		MaxDuration:      cfg.Audio.GetMaxDuration(),
		MinSamples:       cfg.Audio.MinSamples,
		FFmpegPath:       cfg.Decoder.FFmpegPath,
		TranscodeTimeout: cfg.Decoder.GetTranscodeTimeout(),
		TempDir:          cfg.Decoder.TempDir,
	}
	chain := decoder.NewChain(decoder.DefaultStrategies(opts, nil), opts, logger, m)

	var renderer spectrogram.Renderer
	if cfg.Spectrogram.RenderEnabled {
		renderer = &spectrogram.PNGRenderer{
			Width:         cfg.Spectrogram.Width,
			HeatmapHeight: cfg.Spectrogram.HeatmapHeight,
			PlotHeight:    cfg.Spectrogram.PlotHeight,
		}
	}

	return pipeline.New(
		chain,
		features.NewExtractor(cfg.Audio.TargetSampleRate),
		spectrogram.NewAnalyzer(cfg.Audio.MinSamples),
		engine,
		pipeline.Options{
			Renderer:        renderer,
			RenderMinBudget: cfg.Spectrogram.GetRenderMinBudget(),
		},
		logger,
		m,
	), nil
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stderr\n", cfg.Output, err)
			output = os.Stderr
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
