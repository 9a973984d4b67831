// Package pipeline runs one recording through decode, feature extraction,
// spectrogram analysis and classification, producing the response record.
package pipeline
