package decoder

import (
	"bytes"
	"mime"
	"path/filepath"
	"strings"
)

// Format identifies an audio encoding or container
type Format string

const (
	FormatUnknown Format = ""
	FormatWAV     Format = "wav"
	FormatMP3     Format = "mp3"
	FormatFLAC    Format = "flac"
	FormatVorbis  Format = "vorbis"

	// Containers only reachable through the transcoder
	FormatWebM Format = "webm"
	FormatMP4  Format = "mp4"
	FormatOpus Format = "opus"
	FormatAAC  Format = "aac"
	FormatAMR  Format = "amr"
	FormatASF  Format = "asf"
	FormatCAF  Format = "caf"
)

// sniffWindow is how far into an Ogg stream the codec header is searched for
const sniffWindow = 128

var asfGUID = []byte{0x30, 0x26, 0xB2, 0x75, 0x8E, 0x66, 0xCF, 0x11}

// Hints carries caller-declared, untrusted information about the input
type Hints struct {
	MediaType string
	Filename  string
}

// Sniff identifies the format from magic bytes
func Sniff(data []byte) Format {
	switch {
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return FormatWAV
	case bytes.HasPrefix(data, []byte("fLaC")):
		return FormatFLAC
	case bytes.HasPrefix(data, []byte("OggS")):
		head := data[:min(len(data), sniffWindow)]
		if bytes.Contains(head, []byte("OpusHead")) {
			return FormatOpus
		}
		return FormatVorbis
	case bytes.HasPrefix(data, []byte("ID3")):
		return FormatMP3
	case bytes.HasPrefix(data, []byte{0x1A, 0x45, 0xDF, 0xA3}):
		return FormatWebM
	case len(data) >= 8 && string(data[4:8]) == "ftyp":
		return FormatMP4
	case bytes.HasPrefix(data, []byte("#!AMR")):
		return FormatAMR
	case bytes.HasPrefix(data, asfGUID):
		return FormatASF
	case bytes.HasPrefix(data, []byte("caff")):
		return FormatCAF
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xF6 == 0xF0:
		// ADTS sync word with layer bits 00
		return FormatAAC
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0 && data[1]&0x06 != 0:
		// MPEG audio frame sync with a non-reserved layer
		return FormatMP3
	}
	return FormatUnknown
}

// HintFormat derives a format from the declared media type or, failing that,
// the filename extension
func HintFormat(h Hints) Format {
	if mt, _, err := mime.ParseMediaType(h.MediaType); err == nil {
		switch mt {
		case "audio/wav", "audio/x-wav", "audio/wave", "audio/vnd.wave":
			return FormatWAV
		case "audio/mpeg", "audio/mp3":
			return FormatMP3
		case "audio/flac", "audio/x-flac":
			return FormatFLAC
		case "audio/ogg", "application/ogg", "audio/vorbis":
			return FormatVorbis
		case "audio/webm", "video/webm":
			return FormatWebM
		case "audio/mp4", "audio/m4a", "audio/x-m4a", "video/mp4", "audio/3gpp":
			return FormatMP4
		case "audio/opus":
			return FormatOpus
		case "audio/aac", "audio/x-aac":
			return FormatAAC
		case "audio/amr":
			return FormatAMR
		case "audio/x-ms-wma":
			return FormatASF
		case "audio/x-caf":
			return FormatCAF
		}
	}

	switch strings.ToLower(filepath.Ext(h.Filename)) {
	case ".wav", ".wave":
		return FormatWAV
	case ".mp3":
		return FormatMP3
	case ".flac":
		return FormatFLAC
	case ".ogg", ".oga":
		return FormatVorbis
	case ".webm", ".mkv":
		return FormatWebM
	case ".m4a", ".mp4", ".3gp", ".mov":
		return FormatMP4
	case ".opus":
		return FormatOpus
	case ".aac":
		return FormatAAC
	case ".amr":
		return FormatAMR
	case ".wma", ".asf":
		return FormatASF
	case ".caf":
		return FormatCAF
	}
	return FormatUnknown
}

// IsContainer reports whether f can only be decoded through the transcoder
func IsContainer(f Format) bool {
	switch f {
	case FormatWebM, FormatMP4, FormatOpus, FormatAAC, FormatAMR, FormatASF, FormatCAF:
		return true
	}
	return false
}

// decodeOrder returns the direct formats in the order they should be tried:
// the sniffed format first, then the hinted one, then the rest
func decodeOrder(data []byte, h Hints) []Format {
	order := make([]Format, 0, 4)
	add := func(f Format) {
		if f == FormatUnknown || IsContainer(f) {
			return
		}
		for _, existing := range order {
			if existing == f {
				return
			}
		}
		order = append(order, f)
	}

	add(Sniff(data))
	add(HintFormat(h))
	for _, f := range []Format{FormatWAV, FormatMP3, FormatFLAC, FormatVorbis} {
		add(f)
	}
	return order
}
