package features

import (
	"fmt"
	"math"
	"math/cmplx"
	"strconv"

	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/floats"

	"github.com/akarsh-2005/sleepdiagnosis/internal/audio"
)

const (
	// SchemaVersion tags the vector layout. Any change to Names or to the
	// meaning of a position requires a new version and retrained models.
	SchemaVersion = "v1"

	// VectorLen is the number of values in a Vector
	VectorLen = 18

	FrameLength    = 2048
	HopLength      = 512
	NumMels        = 128
	NumMFCC        = 13
	RolloffPercent = 0.85

	dbAmin  = 1e-10
	dbTopDB = 80.0
)

// Names lists the summary key of every vector position, in schema order
var Names = func() []string {
	names := []string{"rms", "zcr", "spectral_centroid", "spectral_bandwidth", "spectral_rolloff"}
	for i := 1; i <= NumMFCC; i++ {
		names = append(names, "mfcc_"+strconv.Itoa(i))
	}
	return names
}()

// Vector is the fixed-schema feature descriptor consumed by classifiers
type Vector [VectorLen]float64

// Slice returns the vector as a slice in schema order
func (v Vector) Slice() []float64 {
	out := make([]float64, VectorLen)
	copy(out, v[:])
	return out
}

// Summary returns the vector keyed by feature name
func (v Vector) Summary() map[string]float64 {
	out := make(map[string]float64, VectorLen)
	for i, name := range Names {
		out[name] = v[i]
	}
	return out
}

// Energy returns the mean RMS energy
func (v Vector) Energy() float64 { return v[0] }

// ZCR returns the mean zero-crossing rate
func (v Vector) ZCR() float64 { return v[1] }

// Extractor computes feature vectors. It is immutable after construction and
// safe for concurrent use.
type Extractor struct {
	sampleRate int
	window     []float64
	melBank    [][]float64
	dct        [][]float64
}

// NewExtractor creates an extractor with the mel filterbank precomputed for
// sampleRate
func NewExtractor(sampleRate int) *Extractor {
	return &Extractor{
		sampleRate: sampleRate,
		window:     hannWindow(FrameLength),
		melBank:    melFilterBank(NumMels, FrameLength, sampleRate),
		dct:        dctMatrix(NumMFCC, NumMels),
	}
}

// Extract computes the feature vector of sig. Signals at a rate other than
// the extractor's get a filterbank built for their own rate.
func (e *Extractor) Extract(sig *audio.Signal) (Vector, error) {
	var v Vector

	if sig == nil || sig.Len() == 0 {
		return v, fmt.Errorf("cannot extract features from an empty signal")
	}

	if sig.SampleRate <= 0 {
		return v, fmt.Errorf("invalid sample rate: %d", sig.SampleRate)
	}

	melBank := e.melBank
	if sig.SampleRate != e.sampleRate {
		melBank = melFilterBank(NumMels, FrameLength, sig.SampleRate)
	}

	x := sig.Float64()
	frames := numFrames(len(x), HopLength)
	zeroPad := zeroPadded(x, FrameLength)
	edgePad := edgePadded(x, FrameLength)

	halfFFT := FrameLength/2 + 1
	freqs := make([]float64, halfFFT)
	for k := range freqs {
		freqs[k] = float64(k) * float64(sig.SampleRate) / FrameLength
	}

	var rmsSum, zcrSum, centroidSum, bandwidthSum, rolloffSum float64

	buf := make([]float64, FrameLength)
	mag := make([]float64, halfFFT)
	power := make([]float64, halfFFT)
	melPower := make([][]float64, frames)

	for t := 0; t < frames; t++ {
		start := t * HopLength

		// Energy on the zero-padded frame
		seg := zeroPad[start : start+FrameLength]
		rmsSum += math.Sqrt(floats.Dot(seg, seg) / FrameLength)

		// Zero crossings on the edge-padded frame, zero counts as positive
		zcrSum += zeroCrossingRate(edgePad[start : start+FrameLength])

		// Windowed magnitude spectrum
		floats.MulTo(buf, seg, e.window)
		spectrum := fft.FFTReal(buf)
		for k := 0; k < halfFFT; k++ {
			mag[k] = cmplx.Abs(spectrum[k])
			power[k] = mag[k] * mag[k]
		}

		centroid := spectralCentroid(mag, freqs)
		centroidSum += centroid
		bandwidthSum += spectralBandwidth(mag, freqs, centroid)
		rolloffSum += spectralRolloff(mag, freqs, RolloffPercent)

		row := make([]float64, NumMels)
		for m, filter := range melBank {
			row[m] = floats.Dot(filter, power)
		}
		melPower[t] = row
	}

	n := float64(frames)
	v[0] = rmsSum / n
	v[1] = zcrSum / n
	v[2] = centroidSum / n
	v[3] = bandwidthSum / n
	v[4] = rolloffSum / n

	powerToDB(melPower, dbAmin, dbTopDB)
	for c, basis := range e.dct {
		var sum float64
		for _, row := range melPower {
			sum += floats.Dot(basis, row)
		}
		v[5+c] = sum / n
	}

	for i, val := range v {
		if math.IsNaN(val) || math.IsInf(val, 0) {
			v[i] = 0
		}
	}

	return v, nil
}

func zeroCrossingRate(frame []float64) float64 {
	crossings := 0
	for i := 1; i < len(frame); i++ {
		if math.Signbit(frame[i]) != math.Signbit(frame[i-1]) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(frame))
}

func spectralCentroid(mag, freqs []float64) float64 {
	total := floats.Sum(mag)
	if total == 0 {
		return 0
	}
	return floats.Dot(freqs, mag) / total
}

func spectralBandwidth(mag, freqs []float64, centroid float64) float64 {
	total := floats.Sum(mag)
	if total == 0 {
		return 0
	}

	var acc float64
	for k, m := range mag {
		d := freqs[k] - centroid
		acc += (m / total) * d * d
	}
	return math.Sqrt(acc)
}

func spectralRolloff(mag, freqs []float64, percent float64) float64 {
	total := floats.Sum(mag)
	if total == 0 {
		return 0
	}

	threshold := percent * total
	var cumulative float64
	for k, m := range mag {
		cumulative += m
		if cumulative >= threshold {
			return freqs[k]
		}
	}
	return freqs[len(freqs)-1]
}
