// Package audio holds the canonical mono waveform shared by every analysis
// stage, plus the RIFF/WAVE codec and sample-rate conversion used to produce it.
package audio
