// Package features reduces a waveform to the fixed 18-value descriptor
// (energy, zero-crossing rate, spectral shape and 13 MFCC means) that
// classifiers are trained on.
package features
