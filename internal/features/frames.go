package features

import "math"

// hannWindow returns a periodic Hann window of length n
func hannWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return w
}

// numFrames returns the number of centered frames for a signal of length n
func numFrames(n, hop int) int {
	return 1 + n/hop
}

// zeroPadded returns x with frame/2 zeros on both sides
func zeroPadded(x []float64, frame int) []float64 {
	pad := frame / 2
	out := make([]float64, len(x)+2*pad)
	copy(out[pad:], x)
	return out
}

// edgePadded returns x with frame/2 copies of its first and last samples on
// the respective sides
func edgePadded(x []float64, frame int) []float64 {
	pad := frame / 2
	out := make([]float64, len(x)+2*pad)
	copy(out[pad:], x)
	if len(x) == 0 {
		return out
	}
	for i := 0; i < pad; i++ {
		out[i] = x[0]
		out[len(out)-1-i] = x[len(x)-1]
	}
	return out
}
