package channel

import (
	"regexp"
	"strings"
)

// Generated text arrives as generic markdown; WhatsApp supports only a
// narrow rich-text subset (*bold*, _italic_). Unsupported markup is
// converted or stripped before dispatch.

var (
	bracketRefPattern = regexp.MustCompile(`【.*?】`)
	doubleStarPattern = regexp.MustCompile(`\*\*(.*?)\*\*`)
	headingPattern    = regexp.MustCompile(`(?m)^#{1,6}\s+`)
)

// FormatForWhatsApp converts internal markup to the channel's rich-text
// subset: **bold** becomes *bold*, bracketed references and markdown
// headings are stripped.
func FormatForWhatsApp(text string) string {
	text = bracketRefPattern.ReplaceAllString(text, "")
	text = doubleStarPattern.ReplaceAllString(text, "*$1*")
	text = headingPattern.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}
