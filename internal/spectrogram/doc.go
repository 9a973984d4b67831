// Package spectrogram derives interpretable 0-1000 Hz frequency-band summaries
// from a waveform and optionally renders them as a PNG.
package spectrogram
