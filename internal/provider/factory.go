package provider

import (
	"fmt"
	"log/slog"
	"time"

	"kisanbot/internal/config"
	"kisanbot/internal/domain"
)

// Build constructs the single active generative backend named by
// cfg.Default. Backend switching happens here, at process start, and
// nowhere else.
func Build(cfg config.ProvidersConfig, logger *slog.Logger) (domain.Provider, error) {
	pc, ok := cfg.Entries[cfg.Default]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", cfg.Default)
	}
	if pc.APIKey == "" {
		return nil, fmt.Errorf("provider %s: no API key configured", cfg.Default)
	}

	timeout := time.Duration(pc.TimeoutSeconds) * time.Second

	switch cfg.Default {
	case "gemini":
		return NewGemini(GeminiConfig{
			APIBase:     pc.APIBase,
			APIKey:      pc.APIKey,
			Model:       pc.Model,
			VisionModel: pc.VisionModel,
			Temperature: pc.Temperature,
			Timeout:     timeout,
			Logger:      logger,
		}), nil
	case "openai":
		return NewOpenAI(OpenAIConfig{
			APIBase:     pc.APIBase,
			APIKey:      pc.APIKey,
			Model:       pc.Model,
			VisionModel: pc.VisionModel,
			Temperature: pc.Temperature,
			Timeout:     timeout,
			Logger:      logger,
		}), nil
	default:
		// Any other entry with an API base is treated as OpenAI-compatible.
		if pc.APIBase != "" {
			return NewOpenAI(OpenAIConfig{
				APIBase:     pc.APIBase,
				APIKey:      pc.APIKey,
				Model:       pc.Model,
				VisionModel: pc.VisionModel,
				Temperature: pc.Temperature,
				Timeout:     timeout,
				Logger:      logger,
			}), nil
		}
		return nil, fmt.Errorf("provider %s: no constructor and no API base configured", cfg.Default)
	}
}
