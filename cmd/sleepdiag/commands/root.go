package commands

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/akarsh-2005/sleepdiagnosis/internal/config"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceVersion    = "1.0.0"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "sleepdiag",
	Short: "Sleep apnea audio analysis",
	Long: `Sleep apnea audio analysis.

Decodes a recording, extracts a fixed feature vector and a 0-1000 Hz
spectrogram summary, and estimates the likelihood of sleep apnea with the
configured model or a deterministic heuristic.`,
	Version:       serviceVersion,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to configuration file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(analyzeCmd)
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads the configuration file. A missing file at the default
// location falls back to built-in defaults; an explicit path must exist.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err == nil {
		return cfg, nil
	}

	if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config") {
		return config.Default(), nil
	}

	return nil, fmt.Errorf("failed to load configuration: %w", err)
}
