package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	HTTP        HTTPConfig        `yaml:"http"`
	Audio       AudioConfig       `yaml:"audio"`
	Decoder     DecoderConfig     `yaml:"decoder"`
	Spectrogram SpectrogramConfig `yaml:"spectrogram"`
	Model       ModelConfig       `yaml:"model"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port                  int    `yaml:"port"`
	Address               string `yaml:"address"`
	Enabled               bool   `yaml:"enabled"`
	MaxConcurrentAnalyses int    `yaml:"max_concurrent_analyses"`
	AnalysisTimeout       int    `yaml:"analysis_timeout"` // seconds
	ReadTimeout           int    `yaml:"read_timeout"`     // seconds
	WriteTimeout          int    `yaml:"write_timeout"`    // seconds
	CORSOrigin            string `yaml:"cors_origin"`
}

// AudioConfig contains the canonical waveform parameters
type AudioConfig struct {
	TargetSampleRate int     `yaml:"target_sample_rate"`
	MaxDuration      float64 `yaml:"max_duration"` // seconds
	MinSamples       int     `yaml:"min_samples"`
	MaxUploadBytes   int64   `yaml:"max_upload_bytes"`
}

// DecoderConfig contains decode fallback parameters
type DecoderConfig struct {
	FFmpegPath       string `yaml:"ffmpeg_path"`
	TranscodeTimeout int    `yaml:"transcode_timeout"` // seconds
	TempDir          string `yaml:"temp_dir"`
}

// SpectrogramConfig contains spectrogram rendering parameters
type SpectrogramConfig struct {
	RenderEnabled   bool    `yaml:"render_enabled"`
	RenderMinBudget float64 `yaml:"render_min_budget"` // seconds
	Width           int     `yaml:"width"`
	HeatmapHeight   int     `yaml:"heatmap_height"`
	PlotHeight      int     `yaml:"plot_height"`
}

// ModelConfig points at the optional classifier artifact
type ModelConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the configuration used when no file overrides a value
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Port:                  5000,
			Address:               "0.0.0.0",
			Enabled:               true,
			MaxConcurrentAnalyses: 4,
			AnalysisTimeout:       120,
			ReadTimeout:           60,
			WriteTimeout:          150,
			CORSOrigin:            "*",
		},
		Audio: AudioConfig{
			TargetSampleRate: 22050,
			MaxDuration:      300,
			MinSamples:       1024,
			MaxUploadBytes:   50 << 20,
		},
		Decoder: DecoderConfig{
			FFmpegPath:       "ffmpeg",
			TranscodeTimeout: 60,
		},
		Spectrogram: SpectrogramConfig{
			RenderEnabled:   true,
			RenderMinBudget: 2,
			Width:           800,
			HeatmapHeight:   320,
			PlotHeight:      200,
		},
		Model: ModelConfig{
			Path: "models/apnea_model.json",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// Load reads and parses the configuration file. Keys absent from the file
// keep their Default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Decoder.Validate(); err != nil {
		return fmt.Errorf("decoder config: %w", err)
	}

	if err := c.Spectrogram.Validate(); err != nil {
		return fmt.Errorf("spectrogram config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	if h.MaxConcurrentAnalyses < 1 {
		return fmt.Errorf("max_concurrent_analyses must be at least 1, got %d", h.MaxConcurrentAnalyses)
	}

	if h.AnalysisTimeout < 1 {
		return fmt.Errorf("analysis_timeout must be at least 1 second, got %d", h.AnalysisTimeout)
	}

	if h.ReadTimeout < 0 || h.WriteTimeout < 0 {
		return fmt.Errorf("read_timeout and write_timeout cannot be negative")
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.TargetSampleRate < 8000 || a.TargetSampleRate > 192000 {
		return fmt.Errorf("target_sample_rate must be between 8000 and 192000 Hz, got %d", a.TargetSampleRate)
	}

	if a.MaxDuration <= 0 {
		return fmt.Errorf("max_duration must be positive, got %f", a.MaxDuration)
	}

	if a.MinSamples < 1 {
		return fmt.Errorf("min_samples must be at least 1, got %d", a.MinSamples)
	}

	if float64(a.MinSamples) > a.MaxDuration*float64(a.TargetSampleRate) {
		return fmt.Errorf("min_samples (%d) exceeds max_duration (%f s) at %d Hz",
			a.MinSamples, a.MaxDuration, a.TargetSampleRate)
	}

	if a.MaxUploadBytes < 1024 {
		return fmt.Errorf("max_upload_bytes must be at least 1024, got %d", a.MaxUploadBytes)
	}

	return nil
}

// Validate validates decoder configuration
func (d *DecoderConfig) Validate() error {
	if d.FFmpegPath == "" {
		return fmt.Errorf("ffmpeg_path cannot be empty")
	}

	if d.TranscodeTimeout < 1 {
		return fmt.Errorf("transcode_timeout must be at least 1 second, got %d", d.TranscodeTimeout)
	}

	if d.TempDir != "" {
		info, err := os.Stat(d.TempDir)
		if err != nil {
			return fmt.Errorf("temp_dir %s: %w", d.TempDir, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("temp_dir %s is not a directory", d.TempDir)
		}
	}

	return nil
}

// Validate validates spectrogram configuration
func (s *SpectrogramConfig) Validate() error {
	if s.RenderMinBudget < 0 {
		return fmt.Errorf("render_min_budget cannot be negative, got %f", s.RenderMinBudget)
	}

	if s.RenderEnabled {
		if s.Width < 64 || s.HeatmapHeight < 16 || s.PlotHeight < 16 {
			return fmt.Errorf("render size too small: width %d, heatmap_height %d, plot_height %d",
				s.Width, s.HeatmapHeight, s.PlotHeight)
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	// Output is stdout, stderr or a file path
	return nil
}

// GetMaxDuration returns the maximum analysed duration as a time.Duration
func (a *AudioConfig) GetMaxDuration() time.Duration {
	return time.Duration(a.MaxDuration * float64(time.Second))
}

// GetTranscodeTimeout returns the transcoder timeout as a time.Duration
func (d *DecoderConfig) GetTranscodeTimeout() time.Duration {
	return time.Duration(d.TranscodeTimeout) * time.Second
}

// GetRenderMinBudget returns the minimum time left required to render
func (s *SpectrogramConfig) GetRenderMinBudget() time.Duration {
	return time.Duration(s.RenderMinBudget * float64(time.Second))
}

// GetAnalysisTimeout returns the per-request analysis timeout
func (h *HTTPConfig) GetAnalysisTimeout() time.Duration {
	return time.Duration(h.AnalysisTimeout) * time.Second
}

// GetReadTimeout returns the HTTP read timeout
func (h *HTTPConfig) GetReadTimeout() time.Duration {
	return time.Duration(h.ReadTimeout) * time.Second
}

// GetWriteTimeout returns the HTTP write timeout
func (h *HTTPConfig) GetWriteTimeout() time.Duration {
	return time.Duration(h.WriteTimeout) * time.Second
}
