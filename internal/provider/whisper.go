package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"
)

const (
	whisperDefaultAPIBase = "https://api.openai.com/v1"
	whisperDefaultModel   = "whisper-1"
)

// Whisper implements domain.Transcriber against an OpenAI-compatible
// transcription endpoint.
type Whisper struct {
	apiBase  string
	apiKey   string
	model    string
	language string
	client   *http.Client
	logger   *slog.Logger
}

type WhisperConfig struct {
	APIBase  string
	APIKey   string
	Model    string
	Language string // optional ISO-639-1 hint
	Timeout  time.Duration
	Logger   *slog.Logger
}

func NewWhisper(cfg WhisperConfig) *Whisper {
	if cfg.APIBase == "" {
		cfg.APIBase = whisperDefaultAPIBase
	}
	if cfg.Model == "" {
		cfg.Model = whisperDefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Whisper{
		apiBase:  cfg.APIBase,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		language: cfg.Language,
		client:   &http.Client{Timeout: cfg.Timeout},
		logger:   cfg.Logger,
	}
}

type whisperResponse struct {
	Text string `json:"text"`
}

// Transcribe converts audio bytes to text. format names the container
// ("ogg", "mp3", "wav", ...) and becomes the upload filename extension so
// the backend can pick the right decoder.
func (w *Whisper) Transcribe(ctx context.Context, audio []byte, format string) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "audio."+format)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("write audio data: %w", err)
	}

	writer.WriteField("model", w.model)
	writer.WriteField("response_format", "json")
	if w.language != "" {
		writer.WriteField("language", w.language)
	}
	writer.Close()

	url := w.apiBase + "/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+w.apiKey)

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("transcription API status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var result whisperResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode transcription response: %w", err)
	}

	w.logger.Info("transcription complete", "format", format, "text_len", len(result.Text))
	return result.Text, nil
}
