package decoder

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/akarsh-2005/sleepdiagnosis/internal/audio"
)

// Transcoder converts the media file at src into a mono PCM WAV file at dst
type Transcoder interface {
	Transcode(ctx context.Context, src, dst string) error
}

// FFmpeg transcodes through an external ffmpeg binary
type FFmpeg struct {
	Path       string
	Timeout    time.Duration
	SampleRate int
}

// Transcode implements Transcoder
func (f *FFmpeg) Transcode(ctx context.Context, src, dst string) error {
	path := f.Path
	if path == "" {
		path = "ffmpeg"
	}

	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	args := []string{
		"-hide_banner", "-v", "error", "-nostdin", "-y",
		"-i", src,
		"-vn",
		"-ac", "1",
		"-acodec", "pcm_s16le",
	}
	if f.SampleRate > 0 {
		args = append(args, "-ar", strconv.Itoa(f.SampleRate))
	}
	args = append(args, "-f", "wav", dst)

	cmd := exec.CommandContext(ctx, path, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return fmt.Errorf("ffmpeg: %w: %s", err, msg)
		}
		return fmt.Errorf("ffmpeg: %w", err)
	}
	return nil
}

// TranscodeStrategy handles container formats none of the direct decoders
// read. The payload is written to a private temp directory, transcoded to WAV
// and handed to the primary strategy. The directory is always removed.
type TranscodeStrategy struct {
	transcoder Transcoder
	primary    Strategy
	tempDir    string
}

// NewTranscodeStrategy creates the container fallback strategy
func NewTranscodeStrategy(transcoder Transcoder, primary Strategy, tempDir string) *TranscodeStrategy {
	return &TranscodeStrategy{transcoder: transcoder, primary: primary, tempDir: tempDir}
}

// Name implements Strategy
func (t *TranscodeStrategy) Name() string {
	return "transcode"
}

// Decode implements Strategy
func (t *TranscodeStrategy) Decode(ctx context.Context, data []byte, _ Hints) (*audio.Signal, error) {
	container := Sniff(data)
	if !IsContainer(container) {
		return nil, fmt.Errorf("no container signature recognized")
	}

	dir, err := os.MkdirTemp(t.tempDir, "sleepdiag-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	src := filepath.Join(dir, "input."+string(container))
	dst := filepath.Join(dir, "output.wav")

	if err := os.WriteFile(src, data, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write temp input: %w", err)
	}

	if err := t.transcoder.Transcode(ctx, src, dst); err != nil {
		return nil, fmt.Errorf("transcode %s: %w", container, err)
	}

	wavData, err := os.ReadFile(dst)
	if err != nil {
		return nil, fmt.Errorf("failed to read transcoded output: %w", err)
	}

	sig, err := t.primary.Decode(ctx, wavData, Hints{MediaType: "audio/wav"})
	if err != nil {
		return nil, fmt.Errorf("decode transcoded %s: %w", container, err)
	}
	return sig, nil
}
