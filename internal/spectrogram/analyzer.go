package spectrogram

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/akarsh-2005/sleepdiagnosis/internal/audio"
)

const (
	FrameLength = 4096
	HopLength   = 1024
	MaxFreq     = 1000.0

	LowBandMax = 100.0
	MidBandMax = 500.0

	amplitudeAmin = 1e-5
	topDB         = 80.0
)

// Summary keys
const (
	KeyLowEnergy         = "low_freq_energy"
	KeyMidEnergy         = "mid_freq_energy"
	KeyHighEnergy        = "high_freq_energy"
	KeyLowRatio          = "low_freq_ratio"
	KeyMidRatio          = "mid_freq_ratio"
	KeyHighRatio         = "high_freq_ratio"
	KeyDominantFrequency = "dominant_frequency"
	KeySpectralPeak      = "spectral_peak"
	KeyFrequencySpread   = "frequency_spread"
	KeyCentroidEnhanced  = "spectral_centroid_enhanced"
)

// ErrInsufficientAudio is reported for inputs below the analyzer minimum
var ErrInsufficientAudio = errors.New("insufficient audio for spectrogram analysis")

// Analysis is the time-frequency view of a signal restricted to 0..MaxFreq
type Analysis struct {
	SampleRate int

	// Freqs holds the centre frequency of each retained bin
	Freqs []float64

	// DB is indexed [bin][frame], in dB relative to the loudest cell
	DB [][]float64

	// AverageSpectrum is DB averaged over frames
	AverageSpectrum []float64

	// MeanMagnitude is the linear magnitude averaged over frames
	MeanMagnitude []float64

	Frames       int
	TimeDuration float64
	Summary      map[string]float64
}

// Analyzer computes spectrogram band summaries. It holds no mutable state.
type Analyzer struct {
	minSamples int
	window     []float64
}

// NewAnalyzer creates an analyzer that refuses signals shorter than minSamples
func NewAnalyzer(minSamples int) *Analyzer {
	window := make([]float64, FrameLength)
	for i := range window {
		window[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/FrameLength)
	}
	return &Analyzer{minSamples: minSamples, window: window}
}

// Analyze computes the restricted spectrogram and its band summary. Signals
// below the minimum length yield an empty summary and ErrInsufficientAudio.
func (a *Analyzer) Analyze(sig *audio.Signal) (*Analysis, error) {
	if sig == nil || sig.Len() < a.minSamples || sig.SampleRate <= 0 {
		n := 0
		if sig != nil {
			n = sig.Len()
		}
		return &Analysis{Summary: map[string]float64{}}, fmt.Errorf("%w: %d samples, need %d", ErrInsufficientAudio, n, a.minSamples)
	}

	sr := float64(sig.SampleRate)
	halfFFT := FrameLength/2 + 1

	// Bins up to MaxFreq
	bins := 0
	for k := 0; k < halfFFT && float64(k)*sr/FrameLength <= MaxFreq; k++ {
		bins++
	}

	freqs := make([]float64, bins)
	for k := range freqs {
		freqs[k] = float64(k) * sr / FrameLength
	}

	// Centered frames over a zero-padded copy
	x := sig.Float64()
	pad := FrameLength / 2
	padded := make([]float64, len(x)+2*pad)
	copy(padded[pad:], x)
	frames := 1 + len(x)/HopLength

	fft := fourier.NewFFT(FrameLength)
	buf := make([]float64, FrameLength)
	coeffs := make([]complex128, halfFFT)

	mag := make([][]float64, bins)
	for k := range mag {
		mag[k] = make([]float64, frames)
	}

	// The dB reference is the loudest cell over the full band
	maxMag := 0.0
	for t := 0; t < frames; t++ {
		floats.MulTo(buf, padded[t*HopLength:t*HopLength+FrameLength], a.window)
		coeffs = fft.Coefficients(coeffs, buf)

		for k, c := range coeffs {
			m := math.Hypot(real(c), imag(c))
			if m > maxMag {
				maxMag = m
			}
			if k < bins {
				mag[k][t] = m
			}
		}
	}

	refDB := 20 * math.Log10(math.Max(amplitudeAmin, maxMag))

	db := make([][]float64, bins)
	avg := make([]float64, bins)
	meanMag := make([]float64, bins)
	for k := range mag {
		row := make([]float64, frames)
		for t, m := range mag[k] {
			v := 20*math.Log10(math.Max(amplitudeAmin, m)) - refDB
			row[t] = math.Max(v, -topDB)
		}
		db[k] = row
		avg[k] = stat.Mean(row, nil)
		meanMag[k] = stat.Mean(mag[k], nil)
	}

	return &Analysis{
		SampleRate:      sig.SampleRate,
		Freqs:           freqs,
		DB:              db,
		AverageSpectrum: avg,
		MeanMagnitude:   meanMag,
		Frames:          frames,
		TimeDuration:    float64(frames-1) * HopLength / sr,
		Summary:         summarize(freqs, avg, meanMag),
	}, nil
}

// summarize reduces the average spectrum to the band summary
func summarize(freqs, avg, meanMag []float64) map[string]float64 {
	var (
		lowDB, midDB, highDB    []float64
		lowMag, midMag, highMag float64
	)

	for k, f := range freqs {
		switch {
		case f <= LowBandMax:
			lowDB = append(lowDB, avg[k])
			lowMag += meanMag[k]
		case f <= MidBandMax:
			midDB = append(midDB, avg[k])
			midMag += meanMag[k]
		default:
			highDB = append(highDB, avg[k])
			highMag += meanMag[k]
		}
	}

	summary := map[string]float64{
		KeyLowEnergy:  bandMean(lowDB),
		KeyMidEnergy:  bandMean(midDB),
		KeyHighEnergy: bandMean(highDB),
		KeyLowRatio:   0,
		KeyMidRatio:   0,
		KeyHighRatio:  0,
	}

	if total := lowMag + midMag + highMag; total > 0 {
		summary[KeyLowRatio] = lowMag / total
		summary[KeyMidRatio] = midMag / total
		summary[KeyHighRatio] = highMag / total
	}

	peakIdx := floats.MaxIdx(avg)
	summary[KeyDominantFrequency] = freqs[peakIdx]
	summary[KeySpectralPeak] = avg[peakIdx]

	_, spread := stat.PopMeanStdDev(avg, nil)
	summary[KeyFrequencySpread] = spread

	summary[KeyCentroidEnhanced] = 0
	if total := floats.Sum(meanMag); total > 0 {
		summary[KeyCentroidEnhanced] = floats.Dot(freqs, meanMag) / total
	}

	for k, v := range summary {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			summary[k] = 0
		}
	}
	return summary
}

func bandMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}
