package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"

	"github.com/akarsh-2005/sleepdiagnosis/internal/config"
)

func newFlagCommand(t *testing.T, path string, explicit bool) *cobra.Command {
	t.Helper()

	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "")
	if explicit {
		if err := cmd.Flags().Set("config", path); err != nil {
			t.Fatalf("Failed to set flag: %v", err)
		}
	} else {
		configPath = path
	}
	return cmd
}

func TestLoadConfig(t *testing.T) {
	saved := configPath
	defer func() { configPath = saved }()

	tmpDir := t.TempDir()
	missing := filepath.Join(tmpDir, "missing.yaml")

	valid := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(valid, []byte("audio:\n  target_sample_rate: 16000\n"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	tests := []struct {
		name        string
		path        string
		explicit    bool
		expectError bool
		sampleRate  int
	}{
		{"default path missing uses defaults", missing, false, false, 22050},
		{"explicit path missing fails", missing, true, true, 0},
		{"explicit path loads", valid, true, false, 16000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newFlagCommand(t, tt.path, tt.explicit)

			cfg, err := loadConfig(cmd)
			if tt.expectError {
				if err == nil {
					t.Error("Expected error but got none")
				}
				return
			}

			if err != nil {
				t.Fatalf("Expected no error but got: %v", err)
			}

			if cfg.Audio.TargetSampleRate != tt.sampleRate {
				t.Errorf("Expected sample rate %d, got %d", tt.sampleRate, cfg.Audio.TargetSampleRate)
			}
		})
	}
}

func TestInitLogger(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "service.log")

	logger := initLogger(config.LoggingConfig{Level: "debug", Format: "json", Output: logFile})
	logger.Info("hello")

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}

	if len(data) == 0 {
		t.Error("Expected log output in file")
	}
}
