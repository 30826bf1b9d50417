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
	geminiDefaultAPIBase = "https://generativelanguage.googleapis.com/v1beta"
	geminiDefaultModel   = "gemini-1.5-flash-latest"
)

// Gemini implements domain.Provider for the Google generative language API.
type Gemini struct {
	apiBase     string
	apiKey      string
	model       string
	visionModel string
	temperature float64
	client      *http.Client
	logger      *slog.Logger
}

type GeminiConfig struct {
	APIBase     string
	APIKey      string
	Model       string
	VisionModel string
	Temperature float64
	Timeout     time.Duration
	Logger      *slog.Logger
}

func NewGemini(cfg GeminiConfig) *Gemini {
	if cfg.APIBase == "" {
		cfg.APIBase = geminiDefaultAPIBase
	}
	if cfg.Model == "" {
		cfg.Model = geminiDefaultModel
	}
	if cfg.VisionModel == "" {
		cfg.VisionModel = cfg.Model
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Gemini{
		apiBase:     cfg.APIBase,
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		visionModel: cfg.VisionModel,
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: cfg.Timeout},
		logger:      cfg.Logger,
	}
}

func (g *Gemini) Name() string         { return "gemini" }
func (g *Gemini) SupportsVision() bool { return true }

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
	GenerationConfig  *geminiGenCfg   `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string          `json:"text,omitempty"`
	InlineData *geminiBlobPart `json:"inlineData,omitempty"`
}

type geminiBlobPart struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"` // base64
}

type geminiGenCfg struct {
	Temperature float64 `json:"temperature,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (g *Gemini) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	model := g.model
	parts := []geminiPart{{Text: req.Prompt}}
	if len(req.Image) > 0 {
		model = g.visionModel
		parts = append(parts, geminiPart{InlineData: &geminiBlobPart{
			MimeType: req.ImageMIME,
			Data:     base64.StdEncoding.EncodeToString(req.Image),
		}})
	}

	body := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: parts}},
	}
	if req.System != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.System}}}
	}
	if g.temperature > 0 {
		body.GenerationConfig = &geminiGenCfg{Temperature: g.temperature}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.apiBase, model, g.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", classifyStatus(resp.StatusCode, string(respBody))
	}

	var out geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode gemini response: %w", err)
	}
	if out.Error != nil {
		return "", classifyStatus(out.Error.Code, out.Error.Message)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", &domain.GenerationError{
			Kind: domain.GenerationBackendRejected,
			Err:  errors.New("gemini returned no candidates"),
		}
	}

	var text string
	for _, p := range out.Candidates[0].Content.Parts {
		text += p.Text
	}

	g.logger.Debug("gemini completion", "model", model, "response_len", len(text))
	return text, nil
}
