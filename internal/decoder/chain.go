package decoder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/akarsh-2005/sleepdiagnosis/internal/audio"
	"github.com/akarsh-2005/sleepdiagnosis/internal/metrics"
)

// Strategy turns raw bytes into a mono signal at the chain's target rate
type Strategy interface {
	Name() string
	Decode(ctx context.Context, data []byte, hints Hints) (*audio.Signal, error)
}

// Options contains the parameters shared by all strategies
type Options struct {
	TargetRate       int
	MaxDuration      time.Duration
	MinSamples       int
	FFmpegPath       string
	TranscodeTimeout time.Duration
	TempDir          string
}

// Result is a successfully decoded input
type Result struct {
	Signal   *audio.Signal
	Strategy string
	Format   Format
}

// Chain tries its strategies in order and returns the first success
type Chain struct {
	strategies []Strategy
	minSamples int
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// DefaultStrategies returns the beep, riff and transcode strategies in
// priority order. A nil transcoder uses ffmpeg from opts.
func DefaultStrategies(opts Options, transcoder Transcoder) []Strategy {
	if transcoder == nil {
		transcoder = &FFmpeg{
			Path:       opts.FFmpegPath,
			Timeout:    opts.TranscodeTimeout,
			SampleRate: opts.TargetRate,
		}
	}

	primary := NewBeepStrategy(opts.TargetRate, opts.MaxDuration)
	return []Strategy{
		primary,
		NewRIFFStrategy(opts.TargetRate, opts.MaxDuration),
		NewTranscodeStrategy(transcoder, primary, opts.TempDir),
	}
}

// NewChain creates a decode chain over the given strategies
func NewChain(strategies []Strategy, opts Options, logger *slog.Logger, m *metrics.Metrics) *Chain {
	return &Chain{
		strategies: strategies,
		minSamples: opts.MinSamples,
		logger:     logger,
		metrics:    m,
	}
}

// Decode runs the strategies in order. Empty input fails before any attempt,
// a decode that yields fewer than the minimum samples is terminal.
func (c *Chain) Decode(ctx context.Context, data []byte, hints Hints) (*Result, error) {
	if len(data) == 0 {
		return nil, ErrEmptyInput
	}

	sniffed := Sniff(data)
	causes := make([]StrategyError, 0, len(c.strategies))

	for _, s := range c.strategies {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("decode cancelled: %w", err)
		}

		start := time.Now()
		sig, err := safeDecode(ctx, s, data, hints)
		c.metrics.RecordDecodeAttempt(s.Name(), err == nil)

		if err != nil {
			c.logger.Debug("Decode strategy failed",
				slog.String("strategy", s.Name()),
				slog.String("sniffed", string(sniffed)),
				slog.String("error", err.Error()),
			)
			causes = append(causes, StrategyError{Strategy: s.Name(), Err: err})
			continue
		}

		if sig.Len() < c.minSamples {
			return nil, &TooShortError{Strategy: s.Name(), Samples: sig.Len(), Min: c.minSamples}
		}

		c.logger.Debug("Decoded audio",
			slog.String("strategy", s.Name()),
			slog.String("sniffed", string(sniffed)),
			slog.Int("samples", sig.Len()),
			slog.Int("sample_rate", sig.SampleRate),
			slog.Duration("elapsed", time.Since(start)),
		)

		return &Result{Signal: sig, Strategy: s.Name(), Format: sniffed}, nil
	}

	return nil, &UnsupportedFormatError{Causes: causes}
}

// safeDecode converts a panic inside a strategy into an error
func safeDecode(ctx context.Context, s Strategy, data []byte, hints Hints) (sig *audio.Signal, err error) {
	defer func() {
		if r := recover(); r != nil {
			sig = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	sig, err = s.Decode(ctx, data, hints)
	if err == nil && (sig == nil || sig.Len() == 0) {
		return nil, fmt.Errorf("no samples decoded")
	}
	return sig, err
}
