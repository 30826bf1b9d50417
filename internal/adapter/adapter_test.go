package adapter

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"kisanbot/internal/domain"
	"kisanbot/internal/prompt"
)

func adapterLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeFetcher struct {
	data []byte
	mime string
	err  error
}

func (f *fakeFetcher) FetchMedia(context.Context, string) ([]byte, string, error) {
	return f.data, f.mime, f.err
}

type fakeTranscriber struct {
	text   string
	err    error
	format string
}

func (t *fakeTranscriber) Transcribe(_ context.Context, _ []byte, format string) (string, error) {
	t.format = format
	return t.text, t.err
}

type fakeVisionProvider struct {
	text   string
	err    error
	vision bool
	req    domain.CompletionRequest
}

func (p *fakeVisionProvider) Complete(_ context.Context, req domain.CompletionRequest) (string, error) {
	p.req = req
	return p.text, p.err
}

func (p *fakeVisionProvider) Name() string         { return "fake" }
func (p *fakeVisionProvider) SupportsVision() bool { return p.vision }

func adapterKind(t *testing.T, err error) domain.AdapterErrorKind {
	t.Helper()
	var adapterErr *domain.AdapterError
	if !errors.As(err, &adapterErr) {
		t.Fatalf("expected AdapterError, got %v", err)
	}
	return adapterErr.Kind
}

func TestSpeech_DirectTranscription(t *testing.T) {
	tr := &fakeTranscriber{text: "onion price in nashik"}
	s := NewSpeech(SpeechConfig{
		Fetcher:     &fakeFetcher{data: []byte("audio"), mime: "audio/ogg; codecs=opus"},
		Transcriber: tr,
		Logger:      adapterLogger(),
	})

	text, err := s.ToText(context.Background(), "media-1")
	if err != nil {
		t.Fatal(err)
	}
	if text != "onion price in nashik" {
		t.Errorf("unexpected transcript: %q", text)
	}
	if tr.format != "ogg" {
		t.Errorf("format hint not derived from MIME: %q", tr.format)
	}
}

func TestSpeech_FetchFailure(t *testing.T) {
	s := NewSpeech(SpeechConfig{
		Fetcher:     &fakeFetcher{err: errors.New("network down")},
		Transcriber: &fakeTranscriber{},
		Logger:      adapterLogger(),
	})

	_, err := s.ToText(context.Background(), "media-1")
	if kind := adapterKind(t, err); kind != domain.AdapterFetchFailed {
		t.Errorf("expected fetch_failed, got %s", kind)
	}
}

func TestSpeech_UnsupportedFormatWithoutFFmpeg(t *testing.T) {
	s := NewSpeech(SpeechConfig{
		Fetcher:     &fakeFetcher{data: []byte("audio"), mime: "audio/amr"},
		Transcriber: &fakeTranscriber{text: "never reached"},
		FFmpegPath:  "/nonexistent/ffmpeg",
		Logger:      adapterLogger(),
	})

	_, err := s.ToText(context.Background(), "media-1")
	if kind := adapterKind(t, err); kind != domain.AdapterUnsupportedFormat {
		t.Errorf("expected unsupported_format when re-encode fails, got %s", kind)
	}
}

func TestSpeech_TranscriptionFailure(t *testing.T) {
	s := NewSpeech(SpeechConfig{
		Fetcher:     &fakeFetcher{data: []byte("audio"), mime: "audio/mpeg"},
		Transcriber: &fakeTranscriber{err: errors.New("api error")},
		Logger:      adapterLogger(),
	})

	_, err := s.ToText(context.Background(), "media-1")
	if kind := adapterKind(t, err); kind != domain.AdapterTranscriptionFailed {
		t.Errorf("expected transcription_failed, got %s", kind)
	}
}

func TestSpeech_EmptyTranscript(t *testing.T) {
	s := NewSpeech(SpeechConfig{
		Fetcher:     &fakeFetcher{data: []byte("audio"), mime: "audio/ogg"},
		Transcriber: &fakeTranscriber{text: "   "},
		Logger:      adapterLogger(),
	})

	_, err := s.ToText(context.Background(), "media-1")
	if kind := adapterKind(t, err); kind != domain.AdapterTranscriptionFailed {
		t.Errorf("expected transcription_failed for empty transcript, got %s", kind)
	}
}

func TestVision_Analysis(t *testing.T) {
	p := &fakeVisionProvider{text: "This looks like early blight on tomato.", vision: true}
	v := NewVision(VisionConfig{
		Fetcher:  &fakeFetcher{data: []byte("jpegbytes"), mime: "image/jpeg"},
		Provider: p,
		Prompts:  prompt.NewBuilder(),
		Logger:   adapterLogger(),
	})

	text, err := v.ToText(context.Background(), "media-2", "what disease is this", nil)
	if err != nil {
		t.Fatal(err)
	}
	if text != "This looks like early blight on tomato." {
		t.Errorf("unexpected analysis: %q", text)
	}
	if !bytes.Equal(p.req.Image, []byte("jpegbytes")) || p.req.ImageMIME != "image/jpeg" {
		t.Error("image bytes not forwarded to the provider")
	}
}

func TestVision_UnsupportedMIME(t *testing.T) {
	v := NewVision(VisionConfig{
		Fetcher:  &fakeFetcher{data: []byte("gifbytes"), mime: "image/gif"},
		Provider: &fakeVisionProvider{vision: true},
		Prompts:  prompt.NewBuilder(),
		Logger:   adapterLogger(),
	})

	_, err := v.ToText(context.Background(), "media-2", "", nil)
	if kind := adapterKind(t, err); kind != domain.AdapterUnsupportedFormat {
		t.Errorf("expected unsupported_format, got %s", kind)
	}
}

func TestVision_OversizedImage(t *testing.T) {
	v := NewVision(VisionConfig{
		Fetcher:  &fakeFetcher{data: make([]byte, maxImageBytes+1), mime: "image/png"},
		Provider: &fakeVisionProvider{vision: true},
		Prompts:  prompt.NewBuilder(),
		Logger:   adapterLogger(),
	})

	_, err := v.ToText(context.Background(), "media-2", "", nil)
	if kind := adapterKind(t, err); kind != domain.AdapterUnsupportedFormat {
		t.Errorf("expected unsupported_format for oversized image, got %s", kind)
	}
}

func TestVision_NoVisionCapability(t *testing.T) {
	v := NewVision(VisionConfig{
		Fetcher:  &fakeFetcher{data: []byte("jpegbytes"), mime: "image/jpeg"},
		Provider: &fakeVisionProvider{vision: false},
		Prompts:  prompt.NewBuilder(),
		Logger:   adapterLogger(),
	})

	_, err := v.ToText(context.Background(), "media-2", "", nil)
	if kind := adapterKind(t, err); kind != domain.AdapterAnalysisFailed {
		t.Errorf("expected analysis_failed, got %s", kind)
	}
}
