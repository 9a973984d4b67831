package audio

import (
	"fmt"
	"time"
)

// Signal is a decoded mono waveform. Samples are normalized to [-1, 1].
// A Signal is never modified after the decoder returns it; analysis stages
// only read from it.
type Signal struct {
	Samples    []float32
	SampleRate int
}

// NewSignal creates a signal from mono samples
func NewSignal(samples []float32, sampleRate int) (*Signal, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("signal has no samples")
	}

	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	return &Signal{Samples: samples, SampleRate: sampleRate}, nil
}

// Len returns the number of samples
func (s *Signal) Len() int {
	return len(s.Samples)
}

// Seconds returns the signal duration in seconds
func (s *Signal) Seconds() float64 {
	if s.SampleRate <= 0 {
		return 0
	}
	return float64(len(s.Samples)) / float64(s.SampleRate)
}

// Duration returns the signal duration
func (s *Signal) Duration() time.Duration {
	return time.Duration(s.Seconds() * float64(time.Second))
}

// Truncate returns a signal holding at most maxDuration of audio.
// The receiver is returned unchanged when it is already short enough.
func (s *Signal) Truncate(maxDuration time.Duration) *Signal {
	limit := MaxSamples(maxDuration, s.SampleRate)
	if limit <= 0 || len(s.Samples) <= limit {
		return s
	}
	return &Signal{Samples: s.Samples[:limit:limit], SampleRate: s.SampleRate}
}

// Float64 returns a float64 copy of the samples
func (s *Signal) Float64() []float64 {
	out := make([]float64, len(s.Samples))
	for i, v := range s.Samples {
		out[i] = float64(v)
	}
	return out
}

// MaxSamples returns the number of samples covering d at sampleRate.
// A non-positive duration means no limit and yields 0.
func MaxSamples(d time.Duration, sampleRate int) int {
	if d <= 0 || sampleRate <= 0 {
		return 0
	}
	return int(d.Seconds() * float64(sampleRate))
}

// Downmix averages interleaved frames into a mono slice
func Downmix(interleaved []float64, channels int) []float32 {
	if channels <= 1 {
		out := make([]float32, len(interleaved))
		for i, v := range interleaved {
			out[i] = float32(v)
		}
		return out
	}

	frames := len(interleaved) / channels
	out := make([]float32, frames)
	for f := 0; f < frames; f++ {
		var sum float64
		base := f * channels
		for c := 0; c < channels; c++ {
			sum += interleaved[base+c]
		}
		out[f] = float32(sum / float64(channels))
	}
	return out
}
