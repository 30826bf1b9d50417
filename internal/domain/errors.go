package domain

import "fmt"

// AdapterErrorKind classifies modality-adapter failures.
type AdapterErrorKind string

const (
	AdapterFetchFailed         AdapterErrorKind = "fetch_failed"
	AdapterUnsupportedFormat   AdapterErrorKind = "unsupported_format"
	AdapterTranscriptionFailed AdapterErrorKind = "transcription_failed"
	AdapterAnalysisFailed      AdapterErrorKind = "analysis_failed"
)

// AdapterError is returned by modality adapters. The raw backend error is
// kept for logs only; user-facing replies never include it.
type AdapterError struct {
	Kind AdapterErrorKind
	Err  error
}

func (e *AdapterError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("adapter: %s", e.Kind)
	}
	return fmt.Sprintf("adapter: %s: %v", e.Kind, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }

// GenerationErrorKind classifies generative-backend failures.
type GenerationErrorKind string

const (
	GenerationBackendUnavailable GenerationErrorKind = "backend_unavailable"
	GenerationBackendRejected    GenerationErrorKind = "backend_rejected"
	GenerationTimeout            GenerationErrorKind = "timeout"
)

// GenerationError is returned by the response generator.
type GenerationError struct {
	Kind GenerationErrorKind
	Err  error
}

func (e *GenerationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("generation: %s", e.Kind)
	}
	return fmt.Sprintf("generation: %s: %v", e.Kind, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// NormalizationError reports a malformed or unrecognized webhook payload.
// The webhook handler logs it and still acknowledges the delivery.
type NormalizationError struct {
	Reason string
}

func (e *NormalizationError) Error() string {
	return "normalize: malformed_payload: " + e.Reason
}

// TranslationError is non-fatal: the pipeline falls back to the
// untranslated text.
type TranslationError struct {
	Source string
	Target string
	Err    error
}

func (e *TranslationError) Error() string {
	return fmt.Sprintf("translate %s->%s: %v", e.Source, e.Target, e.Err)
}

func (e *TranslationError) Unwrap() error { return e.Err }
