package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/akarsh-2005/sleepdiagnosis/internal/pipeline"
)

var (
	analyzeNoImage bool
	analyzePretty  bool
	analyzeOutput  string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Analyse one recording and print the result as JSON",
	Long: `Analyse one recording and print the result as JSON.

The result has the same shape as the POST /analyze response. Logs go to
stderr when the configured output is stdout.

Examples:
  sleepdiag analyze night.wav
  sleepdiag analyze night.mp3 --no-image --pretty
  sleepdiag analyze night.webm -o result.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		if cfg.Logging.Output == "stdout" || cfg.Logging.Output == "" {
			cfg.Logging.Output = "stderr"
		}
		if analyzeNoImage {
			cfg.Spectrogram.RenderEnabled = false
		}

		logger := initLogger(cfg.Logging)

		path := args[0]
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}

		p, err := buildPipeline(cfg, logger, nil)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.HTTP.GetAnalysisTimeout())
		defer cancel()

		result, err := p.Analyze(ctx, pipeline.Input{
			Data:      data,
			MediaType: mime.TypeByExtension(filepath.Ext(path)),
			Filename:  filepath.Base(path),
		})
		if err != nil {
			return fmt.Errorf("analysis of %s failed: %w", path, err)
		}

		out := os.Stdout
		if analyzeOutput != "" {
			f, err := os.Create(analyzeOutput)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", analyzeOutput, err)
			}
			defer f.Close()
			out = f
		}

		enc := json.NewEncoder(out)
		if analyzePretty {
			enc.SetIndent("", "  ")
		}
		return enc.Encode(result)
	},
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeNoImage, "no-image", false, "Skip spectrogram rendering")
	analyzeCmd.Flags().BoolVar(&analyzePretty, "pretty", false, "Indent the JSON output")
	analyzeCmd.Flags().StringVarP(&analyzeOutput, "output", "o", "", "Write the result to a file instead of stdout")
}
