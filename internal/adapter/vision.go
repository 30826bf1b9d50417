package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"kisanbot/internal/domain"
	"kisanbot/internal/prompt"
)

// maxImageBytes is the largest image accepted for analysis; the backends
// reject anything bigger anyway.
const maxImageBytes = 10 << 20

var supportedImageMIMEs = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// Vision turns an image message into descriptive text using the generative
// backend's vision capability.
type Vision struct {
	fetcher  domain.MediaFetcher
	provider domain.Provider
	prompts  *prompt.Builder
	logger   *slog.Logger
}

type VisionConfig struct {
	Fetcher  domain.MediaFetcher
	Provider domain.Provider
	Prompts  *prompt.Builder
	Logger   *slog.Logger
}

func NewVision(cfg VisionConfig) *Vision {
	return &Vision{
		fetcher:  cfg.Fetcher,
		provider: cfg.Provider,
		prompts:  cfg.Prompts,
		logger:   cfg.Logger,
	}
}

// ToText fetches the image behind mediaRef, validates it against backend
// limits, and asks the provider to describe it in the conversation's
// context.
func (v *Vision) ToText(ctx context.Context, mediaRef, caption string, history []domain.Exchange) (string, error) {
	img, mimeType, err := v.fetcher.FetchMedia(ctx, mediaRef)
	if err != nil {
		return "", &domain.AdapterError{Kind: domain.AdapterFetchFailed, Err: err}
	}

	mime := baseMIME(mimeType)
	if !supportedImageMIMEs[mime] {
		return "", &domain.AdapterError{
			Kind: domain.AdapterUnsupportedFormat,
			Err:  fmt.Errorf("image type %s not supported", mimeType),
		}
	}
	if len(img) > maxImageBytes {
		return "", &domain.AdapterError{
			Kind: domain.AdapterUnsupportedFormat,
			Err:  fmt.Errorf("image too large: %d bytes", len(img)),
		}
	}
	if !v.provider.SupportsVision() {
		return "", &domain.AdapterError{
			Kind: domain.AdapterAnalysisFailed,
			Err:  fmt.Errorf("provider %s has no vision capability", v.provider.Name()),
		}
	}

	text, err := v.provider.Complete(ctx, domain.CompletionRequest{
		Prompt:    v.prompts.VisionPrompt(caption, history),
		Image:     img,
		ImageMIME: mime,
	})
	if err != nil {
		return "", &domain.AdapterError{Kind: domain.AdapterAnalysisFailed, Err: err}
	}
	if strings.TrimSpace(text) == "" {
		return "", &domain.AdapterError{
			Kind: domain.AdapterAnalysisFailed,
			Err:  fmt.Errorf("empty analysis result"),
		}
	}

	v.logger.Info("image analyzed", "bytes", len(img), "text_len", len(text))
	return text, nil
}
