package validator

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Policy is the domain safety policy, loaded from a YAML file at startup.
type Policy struct {
	MinLength         int     `yaml:"minLength"`
	MaxLength         int     `yaml:"maxLength"`
	MaxWordRepetition float64 `yaml:"maxWordRepetition"` // max share of any single word
	MaxSymbolRatio    float64 `yaml:"maxSymbolRatio"`    // max share of non-word characters

	BannedPhrases []string         `yaml:"bannedPhrases,omitempty"`
	Disclaimers   []DisclaimerRule `yaml:"disclaimers,omitempty"`

	FallbackMessage string `yaml:"fallbackMessage"`
}

// DisclaimerRule requires a disclaimer fragment when a response touches a
// high-stakes advice category, recognized by keyword.
type DisclaimerRule struct {
	Category     string   `yaml:"category"`
	Keywords     []string `yaml:"keywords"`
	RequiredText string   `yaml:"requiredText"`
}

// DefaultPolicy is used when no policy file is configured.
func DefaultPolicy() Policy {
	return Policy{
		MinLength:         10,
		MaxLength:         4000,
		MaxWordRepetition: 0.2,
		MaxSymbolRatio:    0.08,
		FallbackMessage: "I can help you with farming questions, market prices, and crop advice. " +
			"Please let me know what specific information you need.",
	}
}

// LoadPolicy reads the YAML policy file, filling unset numeric fields from
// the defaults. A missing file yields the default policy.
func LoadPolicy(path string, logger *slog.Logger) (Policy, error) {
	policy := DefaultPolicy()

	if path == "" {
		return policy, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warn("policy file not found, using defaults", "path", path)
			return policy, nil
		}
		return policy, fmt.Errorf("read policy file %s: %w", path, err)
	}

	var loaded Policy
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return policy, fmt.Errorf("parse policy file %s: %w", path, err)
	}

	if loaded.MinLength > 0 {
		policy.MinLength = loaded.MinLength
	}
	if loaded.MaxLength > 0 {
		policy.MaxLength = loaded.MaxLength
	}
	if loaded.MaxWordRepetition > 0 {
		policy.MaxWordRepetition = loaded.MaxWordRepetition
	}
	if loaded.MaxSymbolRatio > 0 {
		policy.MaxSymbolRatio = loaded.MaxSymbolRatio
	}
	if loaded.FallbackMessage != "" {
		policy.FallbackMessage = loaded.FallbackMessage
	}
	policy.BannedPhrases = loaded.BannedPhrases
	policy.Disclaimers = loaded.Disclaimers

	logger.Info("safety policy loaded", "path", path, "disclaimer_rules", len(policy.Disclaimers))
	return policy, nil
}
