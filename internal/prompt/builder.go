// Package prompt composes the grounded prompt sent to the generative
// backend: system instructions, ranked knowledge facts, bounded history,
// then the current message.
package prompt

import (
	"fmt"
	"strings"
	"time"

	"kisanbot/internal/domain"
)

// Builder assembles prompts for the advisory persona.
type Builder struct {
	now func() time.Time
}

func NewBuilder() *Builder {
	return &Builder{now: time.Now}
}

// SystemPrompt returns the time-aware system instructions for a farmer.
func (b *Builder) SystemPrompt(farmerName string) string {
	now := b.now()
	var sb strings.Builder
	sb.WriteString("You are Kisan, an assistant for Indian farmers. Today is ")
	sb.WriteString(now.Format("January 2, 2006"))
	sb.WriteString(".\n\n")
	sb.WriteString("Core principles:\n")
	sb.WriteString("- Provide accurate, practical farming advice tailored to Indian agriculture\n")
	sb.WriteString("- Include specific market prices when the knowledge section has them\n")
	sb.WriteString("- Mention relevant government schemes when applicable\n")
	sb.WriteString("- Keep responses concise but thorough, and format prices in rupees\n")
	sb.WriteString("- Consider the current season in your advice\n")
	if farmerName != "" {
		fmt.Fprintf(&sb, "\nYou are helping farmer %s with their query.\n", farmerName)
	}
	sb.WriteString("\nSeasonal context: ")
	sb.WriteString(seasonalContext(now))
	sb.WriteString("\n")
	return sb.String()
}

// UserPrompt renders grounding context, history (oldest first) and the
// current message into a single user turn.
func (b *Builder) UserPrompt(groundingContext string, history []domain.Exchange, messageText string) string {
	var sb strings.Builder

	if groundingContext != "" {
		sb.WriteString(groundingContext)
		sb.WriteString("\n")
	}

	if len(history) > 0 {
		sb.WriteString("Conversation so far:\n")
		for _, e := range history {
			role := "Farmer"
			if e.Role == domain.RoleAssistant {
				role = "Assistant"
			}
			fmt.Fprintf(&sb, "%s: %s\n", role, e.Content)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Farmer asked: ")
	sb.WriteString(messageText)
	return sb.String()
}

// VisionPrompt frames an image analysis request, keeping the caption and
// recent conversation as context.
func (b *Builder) VisionPrompt(caption string, history []domain.Exchange) string {
	var sb strings.Builder
	sb.WriteString("Analyze this photo from a farmer's field. ")
	sb.WriteString("Identify any crop, pest, or disease visible and give practical advice.\n")
	if caption != "" {
		sb.WriteString("Farmer's caption: ")
		sb.WriteString(caption)
		sb.WriteString("\n")
	}
	if len(history) > 0 {
		sb.WriteString("Recent conversation:\n")
		for _, e := range history {
			fmt.Fprintf(&sb, "%s: %s\n", e.Role, e.Content)
		}
	}
	return sb.String()
}

// seasonalContext names the Indian cropping season for a date.
func seasonalContext(now time.Time) string {
	switch now.Month() {
	case time.June, time.July, time.August, time.September:
		return "Kharif season (monsoon crops: rice, maize, cotton, soybean)"
	case time.October, time.November:
		return "Kharif harvest and Rabi sowing period"
	case time.December, time.January, time.February:
		return "Rabi season (winter crops: wheat, mustard, gram)"
	default:
		return "Zaid season (summer crops: vegetables, melons, fodder)"
	}
}
