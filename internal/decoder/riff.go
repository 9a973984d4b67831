package decoder

import (
	"context"
	"fmt"
	"time"

	"github.com/akarsh-2005/sleepdiagnosis/internal/audio"
)

// RIFFStrategy decodes RIFF/WAVE buffers that the primary decoder rejects:
// odd chunk layouts, bogus sizes, truncated data and float or 24/32-bit PCM
type RIFFStrategy struct {
	targetRate  int
	maxDuration time.Duration
}

// NewRIFFStrategy creates the secondary decode strategy
func NewRIFFStrategy(targetRate int, maxDuration time.Duration) *RIFFStrategy {
	return &RIFFStrategy{targetRate: targetRate, maxDuration: maxDuration}
}

// Name implements Strategy
func (r *RIFFStrategy) Name() string {
	return "riff"
}

// Decode implements Strategy
func (r *RIFFStrategy) Decode(ctx context.Context, data []byte, _ Hints) (*audio.Signal, error) {
	sig, _, err := audio.DecodeWAV(data, 0)
	if err != nil {
		return nil, err
	}
	sig = sig.Truncate(r.maxDuration)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out, err := audio.Resample(sig, r.targetRate)
	if err != nil {
		return nil, fmt.Errorf("failed to resample from %d Hz: %w", sig.SampleRate, err)
	}
	return out, nil
}
