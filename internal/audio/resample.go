package audio

import (
	"fmt"

	resampling "github.com/tphakala/go-audio-resampling"
)

// resampleTail is the amount of trailing silence fed through the resampler so
// that its filter delay line is drained into the output.
const resampleTail = 0.1 // seconds

// Resample converts the signal to targetRate. The receiver is returned as is
// when the rates already match.
func Resample(sig *Signal, targetRate int) (*Signal, error) {
	if targetRate <= 0 {
		return nil, fmt.Errorf("target sample rate must be positive, got %d", targetRate)
	}

	if sig.SampleRate == targetRate {
		return sig, nil
	}

	rs, err := resampling.New(&resampling.Config{
		InputRate:  float64(sig.SampleRate),
		OutputRate: float64(targetRate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create resampler: %w", err)
	}

	tail := int(resampleTail * float64(sig.SampleRate))
	input := make([]float64, len(sig.Samples)+tail)
	for i, v := range sig.Samples {
		input[i] = float64(v)
	}

	output, err := rs.Process(input)
	if err != nil {
		return nil, fmt.Errorf("resample error: %w", err)
	}

	want := int(int64(len(sig.Samples)) * int64(targetRate) / int64(sig.SampleRate))
	if want == 0 {
		return nil, fmt.Errorf("resampled signal is empty")
	}

	samples := make([]float32, want)
	for i := 0; i < want && i < len(output); i++ {
		samples[i] = float32(clampUnit(output[i]))
	}

	return &Signal{Samples: samples, SampleRate: targetRate}, nil
}
