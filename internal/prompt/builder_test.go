package prompt

import (
	"strings"
	"testing"
	"time"

	"kisanbot/internal/domain"
)

func builderAt(month time.Month) *Builder {
	return &Builder{now: func() time.Time {
		return time.Date(2026, month, 15, 12, 0, 0, 0, time.UTC)
	}}
}

func TestSystemPrompt_SeasonalContext(t *testing.T) {
	cases := []struct {
		month time.Month
		want  string
	}{
		{time.July, "Kharif season"},
		{time.October, "Rabi sowing"},
		{time.January, "Rabi season"},
		{time.April, "Zaid season"},
	}
	for _, tc := range cases {
		got := builderAt(tc.month).SystemPrompt("")
		if !strings.Contains(got, tc.want) {
			t.Errorf("month %s: expected %q in prompt", tc.month, tc.want)
		}
	}
}

func TestSystemPrompt_FarmerName(t *testing.T) {
	got := builderAt(time.July).SystemPrompt("Ravi")
	if !strings.Contains(got, "farmer Ravi") {
		t.Error("farmer name missing from system prompt")
	}
	if !strings.Contains(got, "July 15, 2026") {
		t.Error("date missing from system prompt")
	}
}

func TestUserPrompt_Order(t *testing.T) {
	history := []domain.Exchange{
		{Role: domain.RoleUser, Content: "what about wheat"},
		{Role: domain.RoleAssistant, Content: "wheat is a rabi crop"},
	}
	got := builderAt(time.January).UserPrompt("Relevant knowledge:\n- [Wheat] rabi crop\n", history, "when should I sow")

	ki := strings.Index(got, "Relevant knowledge:")
	hi := strings.Index(got, "Conversation so far:")
	qi := strings.Index(got, "Farmer asked: when should I sow")
	if ki == -1 || hi == -1 || qi == -1 {
		t.Fatalf("prompt sections missing:\n%s", got)
	}
	if !(ki < hi && hi < qi) {
		t.Errorf("sections out of order: knowledge=%d history=%d question=%d", ki, hi, qi)
	}
	if !strings.Contains(got, "Farmer: what about wheat") || !strings.Contains(got, "Assistant: wheat is a rabi crop") {
		t.Error("history roles not rendered")
	}
}

func TestUserPrompt_NoOptionalSections(t *testing.T) {
	got := builderAt(time.January).UserPrompt("", nil, "hello question")
	if strings.Contains(got, "Conversation so far") || strings.Contains(got, "Relevant knowledge") {
		t.Errorf("empty sections must be omitted:\n%s", got)
	}
	if !strings.HasPrefix(got, "Farmer asked: ") {
		t.Errorf("unexpected prompt shape: %q", got)
	}
}

func TestVisionPrompt(t *testing.T) {
	got := builderAt(time.July).VisionPrompt("leaves turning yellow", []domain.Exchange{
		{Role: domain.RoleUser, Content: "earlier question"},
	})
	if !strings.Contains(got, "Farmer's caption: leaves turning yellow") {
		t.Error("caption missing from vision prompt")
	}
	if !strings.Contains(got, "earlier question") {
		t.Error("history missing from vision prompt")
	}
}
