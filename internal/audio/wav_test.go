package audio

import (
	"encoding/binary"
	"math"
	"testing"
)

// buildWAV assembles a RIFF buffer from a fmt body and raw data, with optional
// extra chunks inserted before the data chunk
func buildWAV(fmtBody []byte, data []byte, extra ...[]byte) []byte {
	out := []byte("RIFF\x00\x00\x00\x00WAVE")
	out = appendChunk(out, "fmt ", fmtBody)
	for _, chunk := range extra {
		out = append(out, chunk...)
	}
	out = appendChunk(out, "data", data)
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(out)-8))
	return out
}

func appendChunk(out []byte, id string, body []byte) []byte {
	out = append(out, id...)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(body)))
	out = append(out, body...)
	if len(body)%2 == 1 {
		out = append(out, 0)
	}
	return out
}

func fmtChunk(format, channels uint16, rate uint32, bits uint16) []byte {
	b := make([]byte, 16)
	binary.LittleEndian.PutUint16(b[0:2], format)
	binary.LittleEndian.PutUint16(b[2:4], channels)
	binary.LittleEndian.PutUint32(b[4:8], rate)
	binary.LittleEndian.PutUint32(b[8:12], rate*uint32(channels)*uint32(bits/8))
	binary.LittleEndian.PutUint16(b[12:14], channels*bits/8)
	binary.LittleEndian.PutUint16(b[14:16], bits)
	return b
}

func TestEncodeWAV(t *testing.T) {
	// Generate test audio samples (440Hz sine wave for 0.1 seconds at 8kHz)
	sampleRate := 8000
	duration := 0.1
	frequency := 440.0

	numSamples := int(float64(sampleRate) * duration)
	samples := make([]int16, numSamples)

	for i := 0; i < numSamples; i++ {
		t := float64(i) / float64(sampleRate)
		amplitude := 16383.0 // Half of max int16 to avoid clipping
		samples[i] = int16(amplitude * math.Sin(2*math.Pi*frequency*t))
	}

	wavData, err := EncodeWAV(samples, sampleRate)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	// WAV header should be 44 bytes
	expectedSize := 44 + len(samples)*2
	if len(wavData) != expectedSize {
		t.Errorf("Expected WAV size %d, got %d", expectedSize, len(wavData))
	}

	info, err := ParseWAVInfo(wavData)
	if err != nil {
		t.Fatalf("Failed to get WAV info: %v", err)
	}

	if info.SampleRate != uint32(sampleRate) {
		t.Errorf("Expected sample rate %d, got %d", sampleRate, info.SampleRate)
	}

	if info.Channels != 1 {
		t.Errorf("Expected 1 channel, got %d", info.Channels)
	}

	if info.BitsPerSample != 16 {
		t.Errorf("Expected 16 bits per sample, got %d", info.BitsPerSample)
	}

	expectedDuration := float64(numSamples) / float64(sampleRate)
	if math.Abs(info.Duration-expectedDuration) > 0.001 {
		t.Errorf("Expected duration %.3f, got %.3f", expectedDuration, info.Duration)
	}
}

func TestDecodeWAV(t *testing.T) {
	originalSamples := []int16{100, -200, 300, -400, 500}
	sampleRate := 8000

	wavData, err := EncodeWAV(originalSamples, sampleRate)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	sig, info, err := DecodeWAV(wavData, 0)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}

	if sig.SampleRate != sampleRate {
		t.Errorf("Expected sample rate %d, got %d", sampleRate, sig.SampleRate)
	}

	if info.Truncated {
		t.Error("Expected well-formed file not to be marked truncated")
	}

	if sig.Len() != len(originalSamples) {
		t.Fatalf("Expected %d samples, got %d", len(originalSamples), sig.Len())
	}

	// Round trip through PCM16 is exact up to the 32767/32768 scale difference
	for i, original := range originalSamples {
		got := float64(sig.Samples[i]) * 32768
		if math.Abs(got-float64(original)) > 0.5 {
			t.Errorf("Sample %d: expected %d, got %.1f", i, original, got)
		}
	}
}

func TestDecodeWAVMaxFrames(t *testing.T) {
	samples := make([]int16, 1000)
	wavData, err := EncodeWAV(samples, 8000)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	sig, _, err := DecodeWAV(wavData, 250)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}

	if sig.Len() != 250 {
		t.Errorf("Expected 250 samples, got %d", sig.Len())
	}
}

func TestDecodeWAVStereoDownmix(t *testing.T) {
	// Left and right cancel out on even frames, add up on odd frames
	interleaved := []int16{16384, -16384, 8192, 8192, 16384, -16384, 8192, 8192}
	wavData, err := EncodeInterleavedWAV(interleaved, 16000, 2)
	if err != nil {
		t.Fatalf("EncodeInterleavedWAV failed: %v", err)
	}

	sig, info, err := DecodeWAV(wavData, 0)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}

	if info.Channels != 2 {
		t.Errorf("Expected 2 channels, got %d", info.Channels)
	}

	expected := []float32{0, 0.25, 0, 0.25}
	if sig.Len() != len(expected) {
		t.Fatalf("Expected %d frames, got %d", len(expected), sig.Len())
	}
	for i, want := range expected {
		if math.Abs(float64(sig.Samples[i]-want)) > 1e-6 {
			t.Errorf("Frame %d: expected %.4f, got %.4f", i, want, sig.Samples[i])
		}
	}
}

func TestDecodeWAVFormats(t *testing.T) {
	float32Data := make([]byte, 8)
	binary.LittleEndian.PutUint32(float32Data[0:4], math.Float32bits(0.5))
	binary.LittleEndian.PutUint32(float32Data[4:8], math.Float32bits(-0.25))

	float64Data := make([]byte, 16)
	binary.LittleEndian.PutUint64(float64Data[0:8], math.Float64bits(0.5))
	binary.LittleEndian.PutUint64(float64Data[8:16], math.Float64bits(-0.25))

	extensible := make([]byte, 40)
	copy(extensible, fmtChunk(wavFormatExtensible, 1, 8000, 16))
	binary.LittleEndian.PutUint16(extensible[16:18], 22)
	binary.LittleEndian.PutUint16(extensible[24:26], wavFormatPCM)

	tests := []struct {
		name     string
		wav      []byte
		expected []float64
	}{
		{
			name:     "8-bit unsigned",
			wav:      buildWAV(fmtChunk(wavFormatPCM, 1, 8000, 8), []byte{192, 64}),
			expected: []float64{0.5, -0.5},
		},
		{
			name:     "24-bit",
			wav:      buildWAV(fmtChunk(wavFormatPCM, 1, 8000, 24), []byte{0x00, 0x00, 0x40, 0x00, 0x00, 0xE0}),
			expected: []float64{0.5, -0.25},
		},
		{
			name:     "32-bit",
			wav:      buildWAV(fmtChunk(wavFormatPCM, 1, 8000, 32), []byte{0, 0, 0, 0x40, 0, 0, 0, 0xE0}),
			expected: []float64{0.5, -0.25},
		},
		{
			name:     "float32",
			wav:      buildWAV(fmtChunk(wavFormatIEEEFloat, 1, 8000, 32), float32Data),
			expected: []float64{0.5, -0.25},
		},
		{
			name:     "float64",
			wav:      buildWAV(fmtChunk(wavFormatIEEEFloat, 1, 8000, 64), float64Data),
			expected: []float64{0.5, -0.25},
		},
		{
			name:     "extensible",
			wav:      buildWAV(extensible, []byte{0x00, 0x40, 0x00, 0xE0}),
			expected: []float64{0.5, -0.25},
		},
		{
			name:     "odd sized chunk before data",
			wav:      buildWAV(fmtChunk(wavFormatPCM, 1, 8000, 16), []byte{0x00, 0x40}, appendChunk(nil, "LIST", []byte{1, 2, 3})),
			expected: []float64{0.5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig, _, err := DecodeWAV(tt.wav, 0)
			if err != nil {
				t.Fatalf("DecodeWAV failed: %v", err)
			}
			if sig.Len() != len(tt.expected) {
				t.Fatalf("Expected %d samples, got %d", len(tt.expected), sig.Len())
			}
			for i, want := range tt.expected {
				if math.Abs(float64(sig.Samples[i])-want) > 1e-6 {
					t.Errorf("Sample %d: expected %.4f, got %.4f", i, want, sig.Samples[i])
				}
			}
		})
	}
}

func TestDecodeWAVTruncatedData(t *testing.T) {
	wavData, err := EncodeWAV([]int16{1000, 2000, 3000, 4000}, 8000)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	// Bogus sizes: RIFF and data lengths claim far more than is present
	binary.LittleEndian.PutUint32(wavData[4:8], 0xFFFFFFFF)
	binary.LittleEndian.PutUint32(wavData[40:44], 0xFFFFFFFF)
	wavData = wavData[:len(wavData)-3]

	sig, info, err := DecodeWAV(wavData, 0)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}

	if !info.Truncated {
		t.Error("Expected truncated data chunk to be reported")
	}

	if sig.Len() != 2 {
		t.Errorf("Expected 2 complete frames, got %d", sig.Len())
	}
}

func TestParseWAVInfoErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"too short", []byte{1, 2, 3}},
		{"no riff", append([]byte("FAKE\x00\x00\x00\x00WAVE"), make([]byte, 40)...)},
		{"no wave", []byte("RIFF\x00\x00\x00\x00AVI ")},
		{"missing data", appendChunk([]byte("RIFF\x00\x00\x00\x00WAVE"), "fmt ", fmtChunk(wavFormatPCM, 1, 8000, 16))},
		{"missing fmt", appendChunk([]byte("RIFF\x00\x00\x00\x00WAVE"), "data", []byte{0, 0})},
		{"zero channels", buildWAV(fmtChunk(wavFormatPCM, 0, 8000, 16), []byte{0, 0})},
		{"zero rate", buildWAV(fmtChunk(wavFormatPCM, 1, 0, 16), []byte{0, 0})},
		{"12-bit", buildWAV(fmtChunk(wavFormatPCM, 1, 8000, 12), []byte{0, 0})},
		{"mu-law", buildWAV(fmtChunk(0x0007, 1, 8000, 8), []byte{0, 0})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseWAVInfo(tt.data); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

func TestEncodeWAVEmpty(t *testing.T) {
	_, err := EncodeWAV([]int16{}, 8000)
	if err == nil {
		t.Error("Expected error for empty samples")
	}
}

func TestEncodeWAVInvalidSampleRate(t *testing.T) {
	samples := []int16{100, 200, 300}
	_, err := EncodeWAV(samples, 0)
	if err == nil {
		t.Error("Expected error for zero sample rate")
	}

	_, err = EncodeWAV(samples, -1000)
	if err == nil {
		t.Error("Expected error for negative sample rate")
	}
}

func TestEncodeInterleavedWAVBadLayout(t *testing.T) {
	_, err := EncodeInterleavedWAV([]int16{1, 2, 3}, 8000, 2)
	if err == nil {
		t.Error("Expected error for partial frame")
	}
}
