package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"kisanbot/internal/domain"
)

// Fixed user-facing texts for failure paths. The raw backend error never
// reaches the user; it goes to the logs only.
const (
	apologyFetch         = "Sorry, I could not download your file. Please try sending it again."
	apologyAudioFormat   = "Sorry, I could not read that audio format. Please send a regular voice note."
	apologyTranscription = "Sorry, I could not understand the voice note. Could you type your question instead?"
	apologyAnalysis      = "Sorry, I could not analyze the photo. Please try a clearer picture of the plant."
	apologyGeneration    = "Sorry, I am having trouble answering right now. Please try again in a few minutes."

	noticeUnsupported = "Sorry, I can only process text, image, and voice messages right now."
)

// apologyFor maps a pipeline error to its fixed reply text.
func apologyFor(err error) string {
	var adapterErr *domain.AdapterError
	if errors.As(err, &adapterErr) {
		switch adapterErr.Kind {
		case domain.AdapterFetchFailed:
			return apologyFetch
		case domain.AdapterUnsupportedFormat:
			return apologyAudioFormat
		case domain.AdapterTranscriptionFailed:
			return apologyTranscription
		case domain.AdapterAnalysisFailed:
			return apologyAnalysis
		}
	}
	return apologyGeneration
}

// greetings that get an instant templated answer without a backend call.
var greetings = map[string]bool{
	"hi":             true,
	"hello":          true,
	"hey":            true,
	"namaste":        true,
	"namaskar":       true,
	"vanakkam":       true,
	"hola":           true,
	"good morning":   true,
	"good afternoon": true,
	"good evening":   true,
}

// greetingReply answers bare greetings from a template. Anything beyond a
// short salutation goes through the full pipeline.
func greetingReply(text, userName string) (string, bool) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	normalized = strings.TrimRight(normalized, "!.,?")
	if !greetings[normalized] {
		return "", false
	}
	name := strings.TrimSpace(userName)
	if name == "" {
		name = "farmer"
	}
	return fmt.Sprintf("Namaste %s! I am your farming assistant. Ask me about crop diseases, market prices, or government schemes. You can also send a photo of a sick plant or a voice note.", name), true
}
