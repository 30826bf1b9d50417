// Package translate provides language detection and best-effort text
// translation between the user's language and the pipeline's working
// language. Translation failure is never fatal: callers fall back to the
// untranslated text.
package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"kisanbot/internal/domain"
)

const defaultAPIBase = "https://translation.googleapis.com/language/translate/v2"

// HTTPTranslator implements domain.Translator against a Google-style
// translation REST endpoint.
type HTTPTranslator struct {
	apiBase string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

type Config struct {
	APIBase string
	APIKey  string
	Timeout time.Duration
	Logger  *slog.Logger
}

func New(cfg Config) *HTTPTranslator {
	if cfg.APIBase == "" {
		cfg.APIBase = defaultAPIBase
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &HTTPTranslator{
		apiBase: cfg.APIBase,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  cfg.Logger,
	}
}

func (t *HTTPTranslator) Detect(text string) string {
	return DetectLanguage(text)
}

type translateRequest struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
}

type translateResponse struct {
	Data struct {
		Translations []struct {
			TranslatedText string `json:"translatedText"`
		} `json:"translations"`
	} `json:"data"`
}

// Translate converts text from source to target language. Identical source
// and target is a no-op. Any failure is wrapped in a TranslationError so
// the pipeline can log it and keep the original text.
func (t *HTTPTranslator) Translate(ctx context.Context, text, source, target string) (string, error) {
	if source == target || text == "" {
		return text, nil
	}

	payload, err := json.Marshal(translateRequest{
		Q:      text,
		Source: source,
		Target: target,
		Format: "text",
	})
	if err != nil {
		return "", &domain.TranslationError{Source: source, Target: target, Err: err}
	}

	url := fmt.Sprintf("%s?key=%s", t.apiBase, t.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", &domain.TranslationError{Source: source, Target: target, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", &domain.TranslationError{Source: source, Target: target, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", &domain.TranslationError{
			Source: source,
			Target: target,
			Err:    fmt.Errorf("translation API status %d: %.200s", resp.StatusCode, string(respBody)),
		}
	}

	var out translateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &domain.TranslationError{Source: source, Target: target, Err: err}
	}
	if len(out.Data.Translations) == 0 {
		return "", &domain.TranslationError{
			Source: source,
			Target: target,
			Err:    errors.New("empty translations array"),
		}
	}

	translated := out.Data.Translations[0].TranslatedText
	t.logger.Debug("translated", "source", source, "target", target, "len", len(translated))
	return translated, nil
}

// Noop is the translator used when translation is disabled: detection still
// works, translation returns the input unchanged.
type Noop struct{}

func (Noop) Detect(text string) string { return DetectLanguage(text) }

func (Noop) Translate(_ context.Context, text, _, _ string) (string, error) {
	return text, nil
}
