package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"kisanbot/internal/domain"
)

const (
	openaiDefaultAPIBase = "https://api.openai.com/v1"
	openaiDefaultModel   = "gpt-4o-mini"
)

// OpenAI implements domain.Provider for OpenAI-compatible chat completion
// endpoints.
type OpenAI struct {
	apiBase     string
	apiKey      string
	model       string
	visionModel string
	temperature float64
	client      *http.Client
	logger      *slog.Logger
}

type OpenAIConfig struct {
	APIBase     string
	APIKey      string
	Model       string
	VisionModel string
	Temperature float64
	Timeout     time.Duration
	Logger      *slog.Logger
}

func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.APIBase == "" {
		cfg.APIBase = openaiDefaultAPIBase
	}
	if cfg.Model == "" {
		cfg.Model = openaiDefaultModel
	}
	if cfg.VisionModel == "" {
		cfg.VisionModel = cfg.Model
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &OpenAI{
		apiBase:     cfg.APIBase,
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		visionModel: cfg.VisionModel,
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: cfg.Timeout},
		logger:      cfg.Logger,
	}
}

func (o *OpenAI) Name() string         { return "openai" }
func (o *OpenAI) SupportsVision() bool { return true }

type openaiRequest struct {
	Model       string      `json:"model"`
	Messages    []openaiMsg `json:"messages"`
	Temperature float64     `json:"temperature,omitempty"`
}

type openaiMsg struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string or []openaiContentPart
}

type openaiContentPart struct {
	Type     string           `json:"type"` // "text" | "image_url"
	Text     string           `json:"text,omitempty"`
	ImageURL *openaiImagePart `json:"image_url,omitempty"`
}

type openaiImagePart struct {
	URL string `json:"url"`
}

type openaiResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (o *OpenAI) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	model := o.model
	var msgs []openaiMsg
	if req.System != "" {
		msgs = append(msgs, openaiMsg{Role: "system", Content: req.System})
	}

	if len(req.Image) > 0 {
		model = o.visionModel
		dataURL := fmt.Sprintf("data:%s;base64,%s",
			req.ImageMIME, base64.StdEncoding.EncodeToString(req.Image))
		msgs = append(msgs, openaiMsg{
			Role: "user",
			Content: []openaiContentPart{
				{Type: "text", Text: req.Prompt},
				{Type: "image_url", ImageURL: &openaiImagePart{URL: dataURL}},
			},
		})
	} else {
		msgs = append(msgs, openaiMsg{Role: "user", Content: req.Prompt})
	}

	payload, err := json.Marshal(openaiRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: o.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	url := o.apiBase + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return "", classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", classifyStatus(resp.StatusCode, string(respBody))
	}

	var out openaiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode openai response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", &domain.GenerationError{
			Kind: domain.GenerationBackendRejected,
			Err:  errors.New("openai returned no choices"),
		}
	}

	text := out.Choices[0].Message.Content
	o.logger.Debug("openai completion", "model", model, "response_len", len(text))
	return text, nil
}
