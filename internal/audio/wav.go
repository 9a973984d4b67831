package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// WAV format tags understood by DecodeWAV
const (
	wavFormatPCM        = 0x0001
	wavFormatIEEEFloat  = 0x0003
	wavFormatExtensible = 0xFFFE
)

// WAVHeader represents the canonical 44-byte header written by EncodeWAV
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16  // Number of channels
	SampleRate    uint32  // Sample rate
	ByteRate      uint32  // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16  // NumChannels * BitsPerSample / 8
	BitsPerSample uint16  // Bits per sample
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Number of bytes in the data
}

// WAVInfo describes the stream found in a RIFF/WAVE buffer
type WAVInfo struct {
	AudioFormat   uint16  `json:"audio_format"`
	SampleRate    uint32  `json:"sample_rate"`
	Channels      uint16  `json:"channels"`
	BitsPerSample uint16  `json:"bits_per_sample"`
	Duration      float64 `json:"duration_seconds"`
	DataSize      uint32  `json:"data_size_bytes"`
	NumFrames     uint32  `json:"num_frames"`
	Truncated     bool    `json:"truncated"`

	dataOffset int
}

// EncodeWAV encodes mono PCM-16 samples into WAV format
func EncodeWAV(samples []int16, sampleRate int) ([]byte, error) {
	return EncodeInterleavedWAV(samples, sampleRate, 1)
}

// EncodeInterleavedWAV encodes interleaved PCM-16 frames into WAV format
func EncodeInterleavedWAV(samples []int16, sampleRate, channels int) ([]byte, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("cannot encode empty audio samples")
	}

	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	if channels <= 0 || len(samples)%channels != 0 {
		return nil, fmt.Errorf("invalid channel layout: %d samples for %d channels", len(samples), channels)
	}

	numChannels := uint16(channels)
	bitsPerSample := uint16(16)
	dataSize := uint32(len(samples) * 2)
	fileSize := 36 + dataSize // WAV header is 44 bytes, data starts at offset 44

	header := WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     fileSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   wavFormatPCM,
		NumChannels:   numChannels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * uint32(numChannels) * uint32(bitsPerSample) / 8,
		BlockAlign:    numChannels * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := bytes.NewBuffer(make([]byte, 0, 44+len(samples)*2))

	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}

	if err := binary.Write(buf, binary.LittleEndian, samples); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}

	return buf.Bytes(), nil
}

// ParseWAVInfo walks the RIFF chunk list and returns the stream description.
// Unknown chunks are skipped, an oversized or missing data length is clamped to
// the bytes actually present.
func ParseWAVInfo(data []byte) (*WAVInfo, error) {
	if len(data) < 12 {
		return nil, fmt.Errorf("WAV data too short: need at least 12 bytes, got %d", len(data))
	}

	if string(data[0:4]) != "RIFF" {
		return nil, fmt.Errorf("invalid WAV file: missing RIFF header")
	}

	if string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("invalid WAV file: missing WAVE format")
	}

	var (
		info    WAVInfo
		haveFmt bool
		haveDat bool
	)

	pos := 12
	for pos+8 <= len(data) && !(haveFmt && haveDat) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8

		switch id {
		case "fmt ":
			if size < 16 || body+16 > len(data) {
				return nil, fmt.Errorf("invalid WAV file: fmt chunk too short (%d bytes)", size)
			}
			info.AudioFormat = binary.LittleEndian.Uint16(data[body : body+2])
			info.Channels = binary.LittleEndian.Uint16(data[body+2 : body+4])
			info.SampleRate = binary.LittleEndian.Uint32(data[body+4 : body+8])
			info.BitsPerSample = binary.LittleEndian.Uint16(data[body+14 : body+16])

			// WAVE_FORMAT_EXTENSIBLE carries the real tag in the sub-format GUID
			if info.AudioFormat == wavFormatExtensible && size >= 40 && body+26 <= len(data) {
				info.AudioFormat = binary.LittleEndian.Uint16(data[body+24 : body+26])
			}
			haveFmt = true

		case "data":
			available := len(data) - body
			if size > available || size < 0 {
				size = available
				info.Truncated = true
			}
			info.dataOffset = body
			info.DataSize = uint32(size)
			haveDat = true
		}

		// Chunks are word aligned
		next := body + size + size%2
		if next <= pos {
			break
		}
		pos = next
	}

	if !haveFmt {
		return nil, fmt.Errorf("invalid WAV file: missing fmt chunk")
	}

	if !haveDat {
		return nil, fmt.Errorf("invalid WAV file: missing data chunk")
	}

	if info.Channels == 0 {
		return nil, fmt.Errorf("invalid WAV file: zero channels")
	}

	if info.SampleRate == 0 {
		return nil, fmt.Errorf("invalid sample rate: 0")
	}

	if err := checkSampleFormat(info.AudioFormat, info.BitsPerSample); err != nil {
		return nil, err
	}

	blockAlign := uint32(info.Channels) * uint32(info.BitsPerSample/8)
	info.NumFrames = info.DataSize / blockAlign
	info.Duration = float64(info.NumFrames) / float64(info.SampleRate)

	return &info, nil
}

// DecodeWAV decodes a RIFF/WAVE buffer into a mono signal at its native rate.
// maxFrames bounds the number of decoded frames; zero means no bound.
func DecodeWAV(data []byte, maxFrames int) (*Signal, *WAVInfo, error) {
	info, err := ParseWAVInfo(data)
	if err != nil {
		return nil, nil, err
	}

	frames := int(info.NumFrames)
	if frames <= 0 {
		return nil, nil, fmt.Errorf("no audio data found")
	}
	if maxFrames > 0 && frames > maxFrames {
		frames = maxFrames
	}

	channels := int(info.Channels)
	width := int(info.BitsPerSample / 8)
	raw := data[info.dataOffset:]

	interleaved := make([]float64, frames*channels)
	for i := range interleaved {
		interleaved[i] = decodeSample(raw[i*width:(i+1)*width], info.AudioFormat, info.BitsPerSample)
	}

	sig, err := NewSignal(Downmix(interleaved, channels), int(info.SampleRate))
	if err != nil {
		return nil, nil, err
	}
	return sig, info, nil
}

func checkSampleFormat(format, bits uint16) error {
	switch format {
	case wavFormatPCM:
		switch bits {
		case 8, 16, 24, 32:
			return nil
		}
		return fmt.Errorf("unsupported bit depth: %d (PCM supports 8, 16, 24, 32)", bits)
	case wavFormatIEEEFloat:
		switch bits {
		case 32, 64:
			return nil
		}
		return fmt.Errorf("unsupported bit depth: %d (float supports 32, 64)", bits)
	default:
		return fmt.Errorf("unsupported audio format: %#04x (only PCM and IEEE float are supported)", format)
	}
}

// decodeSample converts one little-endian sample to [-1, 1]
func decodeSample(b []byte, format, bits uint16) float64 {
	if format == wavFormatIEEEFloat {
		if bits == 64 {
			return clampUnit(math.Float64frombits(binary.LittleEndian.Uint64(b)))
		}
		return clampUnit(float64(math.Float32frombits(binary.LittleEndian.Uint32(b))))
	}

	switch bits {
	case 8:
		// 8-bit PCM is unsigned
		return (float64(b[0]) - 128) / 128
	case 16:
		return float64(int16(binary.LittleEndian.Uint16(b))) / 32768
	case 24:
		v := int32(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16)
		if v&0x800000 != 0 {
			v |= ^0xFFFFFF
		}
		return float64(v) / 8388608
	default:
		return float64(int32(binary.LittleEndian.Uint32(b))) / 2147483648
	}
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(-1, math.Min(1, v))
}
