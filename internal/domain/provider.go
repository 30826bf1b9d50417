package domain

import "context"

// CompletionRequest is a single generative backend call: a composed prompt
// plus an optional image for vision analysis.
type CompletionRequest struct {
	System    string
	Prompt    string
	Image     []byte // optional; raw image bytes
	ImageMIME string // required when Image is set, e.g. "image/jpeg"
}

// Provider is the generative backend capability. Exactly one provider is
// active per deployment, selected by configuration at process start.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	Name() string
	SupportsVision() bool
}

// Transcriber converts raw audio bytes into text.
// format is the audio container/codec name, e.g. "ogg", "mp3", "wav".
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, format string) (string, error)
}

// Translator is the bidirectional text translation capability. Both
// directions are best-effort: callers fall back to the input text on error.
type Translator interface {
	Translate(ctx context.Context, text, source, target string) (string, error)
	Detect(text string) string
}

// Sender dispatches a formatted reply to the messaging channel.
type Sender interface {
	Send(ctx context.Context, userID, text string) DeliveryResult
}

// MediaFetcher resolves a provider media reference to binary content.
type MediaFetcher interface {
	FetchMedia(ctx context.Context, mediaRef string) (data []byte, mimeType string, err error)
}
