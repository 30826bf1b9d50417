// Package adapter converts non-text modalities into text the response
// generator can use. Every adapter releases its temporary resources on all
// exit paths and reports failures through the AdapterError taxonomy.
package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"kisanbot/internal/domain"
)

// transcribableFormats are audio containers the transcription backend
// accepts directly. Anything else goes through one ffmpeg re-encode.
var transcribableFormats = map[string]bool{
	"ogg":  true,
	"mp3":  true,
	"wav":  true,
	"flac": true,
	"m4a":  true,
	"webm": true,
}

// audioFormatByMIME maps media content types to container names.
var audioFormatByMIME = map[string]string{
	"audio/ogg":       "ogg",
	"application/ogg": "ogg",
	"video/ogg":       "ogg",
	"audio/opus":      "ogg",
	"audio/mpeg":      "mp3",
	"audio/mp3":       "mp3",
	"audio/wav":       "wav",
	"audio/x-wav":     "wav",
	"audio/flac":      "flac",
	"audio/mp4":       "m4a",
	"audio/webm":      "webm",
	"audio/3gpp":      "3gp",
	"audio/3gpp2":     "3g2",
	"audio/amr":       "amr",
}

// Speech turns a voice message into text.
type Speech struct {
	fetcher     domain.MediaFetcher
	transcriber domain.Transcriber
	ffmpegPath  string
	logger      *slog.Logger
}

type SpeechConfig struct {
	Fetcher     domain.MediaFetcher
	Transcriber domain.Transcriber
	FFmpegPath  string
	Logger      *slog.Logger
}

func NewSpeech(cfg SpeechConfig) *Speech {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	return &Speech{
		fetcher:     cfg.Fetcher,
		transcriber: cfg.Transcriber,
		ffmpegPath:  cfg.FFmpegPath,
		logger:      cfg.Logger,
	}
}

// ToText fetches the audio behind mediaRef and transcribes it. Audio in a
// container the backend cannot take is re-encoded exactly once to 16 kHz
// mono WAV before the final transcription attempt.
func (s *Speech) ToText(ctx context.Context, mediaRef string) (string, error) {
	audio, mimeType, err := s.fetcher.FetchMedia(ctx, mediaRef)
	if err != nil {
		return "", &domain.AdapterError{Kind: domain.AdapterFetchFailed, Err: err}
	}

	format, known := audioFormatByMIME[baseMIME(mimeType)]
	if !known {
		s.logger.Warn("unknown audio content type, attempting re-encode", "mime", mimeType)
		format = "bin"
	}

	if !transcribableFormats[format] {
		reencoded, err := s.reencode(ctx, audio, format)
		if err != nil {
			return "", &domain.AdapterError{Kind: domain.AdapterUnsupportedFormat, Err: err}
		}
		audio, format = reencoded, "wav"
	}

	text, err := s.transcriber.Transcribe(ctx, audio, format)
	if err != nil {
		return "", &domain.AdapterError{Kind: domain.AdapterTranscriptionFailed, Err: err}
	}
	if strings.TrimSpace(text) == "" {
		return "", &domain.AdapterError{
			Kind: domain.AdapterTranscriptionFailed,
			Err:  fmt.Errorf("empty transcript"),
		}
	}

	s.logger.Info("voice message transcribed", "format", format, "text_len", len(text))
	return text, nil
}

// reencode converts audio to 16 kHz mono 16-bit WAV via ffmpeg, using a
// temp directory removed on every path.
func (s *Speech) reencode(ctx context.Context, audio []byte, format string) ([]byte, error) {
	tmpDir, err := os.MkdirTemp("", "kisanbot-audio-")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	src := filepath.Join(tmpDir, "voice."+format)
	dst := filepath.Join(tmpDir, "voice.wav")
	if err := os.WriteFile(src, audio, 0o600); err != nil {
		return nil, fmt.Errorf("write source audio: %w", err)
	}

	cmd := exec.CommandContext(ctx, s.ffmpegPath,
		"-i", src,
		"-acodec", "pcm_s16le",
		"-ar", "16000",
		"-ac", "1",
		"-y", dst,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("ffmpeg re-encode: %w: %.200s", err, string(out))
	}

	converted, err := os.ReadFile(dst)
	if err != nil {
		return nil, fmt.Errorf("read converted audio: %w", err)
	}

	s.logger.Info("audio re-encoded", "from", format, "bytes", len(converted))
	return converted, nil
}

// baseMIME strips parameters like "; codecs=opus".
func baseMIME(mimeType string) string {
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return strings.TrimSpace(strings.ToLower(mimeType))
}
