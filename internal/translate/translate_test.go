package translate

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"kisanbot/internal/domain"
)

func TestDetectLanguage_Scripts(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"मेरी फसल में कीड़े लग गए हैं", "hi"},
		{"আমার ধানের সমস্যা", "bn"},
		{"என் பயிரில் நோய்", "ta"},
		{"నా పంటకు తెగులు", "te"},
		{"ನನ್ನ ಬೆಳೆಗೆ ರೋಗ", "kn"},
		{"എന്റെ വിളയ്ക്ക് രോഗം", "ml"},
		{"my tomato crop has spots", "en"},
		{"", "en"},
	}
	for _, tc := range cases {
		if got := DetectLanguage(tc.text); got != tc.want {
			t.Errorf("DetectLanguage(%q) = %s, want %s", tc.text, got, tc.want)
		}
	}
}

func TestDetectLanguage_RomanizedHints(t *testing.T) {
	if got := DetectLanguage("Namaste bhai"); got != "hi" {
		t.Errorf("expected hi for romanized greeting, got %s", got)
	}
	if got := DetectLanguage("Vanakkam sir"); got != "ta" {
		t.Errorf("expected ta for romanized greeting, got %s", got)
	}
}

func testTranslator(apiBase string) *HTTPTranslator {
	return New(Config{
		APIBase: apiBase,
		APIKey:  "test-key",
		Logger:  slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})),
	})
}

func TestTranslate_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req translateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Error(err)
		}
		if req.Source != "hi" || req.Target != "en" || req.Format != "text" {
			t.Errorf("unexpected request: %+v", req)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"translations": []map[string]string{{"translatedText": "my crop has pests"}},
			},
		})
	}))
	defer srv.Close()

	got, err := testTranslator(srv.URL).Translate(context.Background(), "मेरी फसल", "hi", "en")
	if err != nil {
		t.Fatal(err)
	}
	if got != "my crop has pests" {
		t.Errorf("unexpected translation: %q", got)
	}
}

func TestTranslate_SameLanguageNoop(t *testing.T) {
	// No server: a same-language call must never hit the network.
	got, err := testTranslator("http://127.0.0.1:0").Translate(context.Background(), "hello", "en", "en")
	if err != nil {
		t.Fatal(err)
	}
	if got != "hello" {
		t.Errorf("expected passthrough, got %q", got)
	}
}

func TestTranslate_APIErrorWrapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := testTranslator(srv.URL).Translate(context.Background(), "text", "en", "hi")
	var trErr *domain.TranslationError
	if !errors.As(err, &trErr) {
		t.Fatalf("expected TranslationError, got %v", err)
	}
	if trErr.Source != "en" || trErr.Target != "hi" {
		t.Errorf("language pair not recorded: %+v", trErr)
	}
}

func TestTranslate_EmptyResultWrapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"translations": []any{}}})
	}))
	defer srv.Close()

	_, err := testTranslator(srv.URL).Translate(context.Background(), "text", "en", "hi")
	var trErr *domain.TranslationError
	if !errors.As(err, &trErr) {
		t.Fatalf("expected TranslationError, got %v", err)
	}
}

func TestNoop(t *testing.T) {
	var tr Noop
	got, err := tr.Translate(context.Background(), "unchanged", "en", "hi")
	if err != nil || got != "unchanged" {
		t.Errorf("noop must pass text through, got %q err %v", got, err)
	}
	if tr.Detect("धान") != "hi" {
		t.Error("noop detection should still work")
	}
}
