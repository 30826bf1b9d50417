package translate

import "strings"

// scriptRange maps a Unicode block to a language code. Indian languages are
// detected by script: any character in the block is a strong signal, so the
// first block with a hit wins.
type scriptRange struct {
	lo, hi rune
	lang   string
}

var scriptRanges = []scriptRange{
	{0x0900, 0x097F, "hi"}, // Devanagari
	{0x0980, 0x09FF, "bn"}, // Bengali
	{0x0A00, 0x0A7F, "pa"}, // Gurmukhi
	{0x0A80, 0x0AFF, "gu"}, // Gujarati
	{0x0B00, 0x0B7F, "or"}, // Oriya
	{0x0B80, 0x0BFF, "ta"}, // Tamil
	{0x0C00, 0x0C7F, "te"}, // Telugu
	{0x0C80, 0x0CFF, "kn"}, // Kannada
	{0x0D00, 0x0D7F, "ml"}, // Malayalam
}

// romanizedHints catches common transliterated greetings that script
// detection cannot see.
var romanizedHints = map[string]string{
	"namaste":  "hi",
	"namaskar": "hi",
	"vanakkam": "ta",
}

// DetectLanguage returns the language code for a text. Detection is
// script-based with romanized-greeting hints; pure-Latin text defaults to
// English.
func DetectLanguage(text string) string {
	for _, r := range text {
		for _, sr := range scriptRanges {
			if r >= sr.lo && r <= sr.hi {
				return sr.lang
			}
		}
	}

	lower := strings.ToLower(text)
	for hint, lang := range romanizedHints {
		if strings.Contains(lower, hint) {
			return lang
		}
	}

	return "en"
}
