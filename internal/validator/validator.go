// Package validator gates generated text before it can reach the user.
// A rejected response never leaves the pipeline; the caller substitutes the
// policy's fallback message.
package validator

import (
	"log/slog"
	"strings"
	"unicode"

	"kisanbot/internal/domain"
)

// Validator applies the safety policy to generated responses.
type Validator struct {
	policy Policy
	logger *slog.Logger
}

func New(policy Policy, logger *slog.Logger) *Validator {
	return &Validator{policy: policy, logger: logger}
}

// FallbackMessage returns the reply to substitute for rejected responses.
func (v *Validator) FallbackMessage() string {
	return v.policy.FallbackMessage
}

// Validate checks a generated response against the policy and sets its
// ValidationStatus. The returned reason is empty for approved responses.
func (v *Validator) Validate(resp *domain.GeneratedResponse) string {
	reason := v.check(resp.Text)
	if reason != "" {
		resp.ValidationStatus = domain.ValidationRejected
		v.logger.Warn("response rejected", "reason", reason, "len", len(resp.Text))
		return reason
	}
	resp.ValidationStatus = domain.ValidationApproved
	return ""
}

func (v *Validator) check(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < v.policy.MinLength {
		return "response too short"
	}
	if len(trimmed) > v.policy.MaxLength {
		return "response exceeds maximum length"
	}

	lower := strings.ToLower(trimmed)
	for _, phrase := range v.policy.BannedPhrases {
		if strings.Contains(lower, strings.ToLower(phrase)) {
			return "banned phrase: " + phrase
		}
	}

	words := strings.Fields(trimmed)
	if len(words) >= 5 {
		if freq := maxWordFrequency(words); freq > v.policy.MaxWordRepetition {
			return "excessive word repetition"
		}
		if gibberishRatio(words) > 0.3 {
			return "text appears corrupted"
		}
	}

	if symbolRatio(trimmed) > v.policy.MaxSymbolRatio {
		return "excessive symbols"
	}

	for _, rule := range v.policy.Disclaimers {
		if !v.touches(lower, rule) {
			continue
		}
		if !strings.Contains(lower, strings.ToLower(rule.RequiredText)) {
			return "missing required disclaimer: " + rule.Category
		}
	}

	return ""
}

func (v *Validator) touches(lowerText string, rule DisclaimerRule) bool {
	for _, kw := range rule.Keywords {
		if strings.Contains(lowerText, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// maxWordFrequency returns the share of the most repeated word.
func maxWordFrequency(words []string) float64 {
	counts := make(map[string]int, len(words))
	max := 0
	for _, w := range words {
		lw := strings.ToLower(w)
		counts[lw]++
		if counts[lw] > max {
			max = counts[lw]
		}
	}
	return float64(max) / float64(len(words))
}

// gibberishRatio estimates the share of corrupted-looking Latin words by
// vowel density: real words sit between the extremes.
func gibberishRatio(words []string) float64 {
	corrupted := 0
	for _, w := range words {
		if len(w) <= 4 || !isLatinWord(w) {
			continue
		}
		vowels := 0
		for _, r := range strings.ToLower(w) {
			switch r {
			case 'a', 'e', 'i', 'o', 'u':
				vowels++
			}
		}
		ratio := float64(vowels) / float64(len(w))
		if ratio < 0.15 || ratio > 0.7 {
			corrupted++
		}
	}
	return float64(corrupted) / float64(len(words))
}

func isLatinWord(w string) bool {
	for _, r := range w {
		if r > unicode.MaxASCII || !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// symbolRatio is the share of characters that are neither letters, digits,
// whitespace, nor common punctuation.
func symbolRatio(text string) float64 {
	if text == "" {
		return 0
	}
	symbols := 0
	total := 0
	for _, r := range text {
		total++
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			continue
		}
		switch r {
		case '.', ',', '!', '?', ';', ':', '-', '(', ')', '\'', '"', '%', '₹', '।':
			continue
		}
		symbols++
	}
	return float64(symbols) / float64(total)
}
