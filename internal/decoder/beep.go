package decoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/flac"
	"github.com/gopxl/beep/mp3"
	"github.com/gopxl/beep/vorbis"
	"github.com/gopxl/beep/wav"

	"github.com/akarsh-2005/sleepdiagnosis/internal/audio"
)

const (
	// beep.Resample quality, 1 (linear) to 64
	resampleQuality = 4

	// frames pulled from the streamer per call
	streamBlock = 4096
)

// BeepStrategy decodes WAV, MP3, FLAC and Ogg Vorbis through beep. The order
// in which the format decoders are tried comes from sniffing and hints.
type BeepStrategy struct {
	targetRate  int
	maxDuration time.Duration
}

// NewBeepStrategy creates the primary decode strategy
func NewBeepStrategy(targetRate int, maxDuration time.Duration) *BeepStrategy {
	return &BeepStrategy{targetRate: targetRate, maxDuration: maxDuration}
}

// Name implements Strategy
func (b *BeepStrategy) Name() string {
	return "beep"
}

// Decode implements Strategy
func (b *BeepStrategy) Decode(ctx context.Context, data []byte, hints Hints) (*audio.Signal, error) {
	var errs []error

	for _, f := range decodeOrder(data, hints) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		sig, err := b.decodeFormat(ctx, f, data)
		if err == nil {
			return sig, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", f, err))
	}

	return nil, errors.Join(errs...)
}

// decodeFormat runs a single beep decoder, recovering from decoder panics so
// that the next format still gets a chance
func (b *BeepStrategy) decodeFormat(ctx context.Context, f Format, data []byte) (sig *audio.Signal, err error) {
	defer func() {
		if r := recover(); r != nil {
			sig = nil
			err = fmt.Errorf("decoder panic: %v", r)
		}
	}()

	stream, format, err := openBeep(f, data)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	if format.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %d", format.SampleRate)
	}

	var s beep.Streamer = stream
	if int(format.SampleRate) != b.targetRate {
		s = beep.Resample(resampleQuality, format.SampleRate, beep.SampleRate(b.targetRate), stream)
	}

	limit := audio.MaxSamples(b.maxDuration, b.targetRate)
	samples := make([]float32, 0, initialCapacity(stream.Len(), int(format.SampleRate), b.targetRate, limit))
	buf := make([][2]float64, streamBlock)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, ok := s.Stream(buf)
		for _, frame := range buf[:n] {
			// Mono sources are duplicated into both channels by beep
			samples = append(samples, float32((frame[0]+frame[1])/2))
		}

		if limit > 0 && len(samples) >= limit {
			samples = samples[:limit]
			break
		}
		if !ok {
			break
		}
	}

	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("stream error: %w", err)
	}

	return audio.NewSignal(samples, b.targetRate)
}

func openBeep(f Format, data []byte) (beep.StreamSeekCloser, beep.Format, error) {
	r := &readSeekNopCloser{Reader: bytes.NewReader(data)}

	switch f {
	case FormatWAV:
		return wav.Decode(r)
	case FormatMP3:
		return mp3.Decode(r)
	case FormatFLAC:
		return flac.Decode(r)
	case FormatVorbis:
		return vorbis.Decode(r)
	}
	return nil, beep.Format{}, fmt.Errorf("no beep decoder for %q", f)
}

// initialCapacity estimates the output length so the sample slice is
// allocated once for well-formed inputs
func initialCapacity(srcFrames, srcRate, dstRate, limit int) int {
	if srcFrames <= 0 || srcRate <= 0 {
		return streamBlock
	}
	n := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	if limit > 0 && n > limit {
		n = limit
	}
	return n + 1
}

type readSeekNopCloser struct {
	*bytes.Reader
}

func (readSeekNopCloser) Close() error {
	return nil
}

var _ io.ReadSeekCloser = (*readSeekNopCloser)(nil)
