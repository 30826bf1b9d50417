package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Config is the root configuration for kisanbot.
type Config struct {
	General      GeneralConfig      `json:"general"`
	Providers    ProvidersConfig    `json:"providers"`
	Transcribe   TranscribeConfig   `json:"transcribe"`
	Translate    TranslateConfig    `json:"translate"`
	WhatsApp     WhatsAppConfig     `json:"whatsapp"`
	Conversation ConversationConfig `json:"conversation"`
	Knowledge    KnowledgeConfig    `json:"knowledge"`
	Validator    ValidatorConfig    `json:"validator"`
	Metrics      MetricsConfig      `json:"metrics"`
}

type GeneralConfig struct {
	LogLevel        string `json:"logLevel"`
	Host            string `json:"host"`
	Port            int    `json:"port"`
	Workers         int    `json:"workers"`         // max messages processed in parallel
	DefaultLanguage string `json:"defaultLanguage"` // pipeline working language
}

// ProvidersConfig selects and configures the generative backends. Exactly
// one backend is active per deployment (Default); the others stay configured
// but unused until the operator switches the selection.
type ProvidersConfig struct {
	Default string                    `json:"default"` // "gemini" | "openai"
	Entries map[string]ProviderConfig `json:"entries"`
}

type ProviderConfig struct {
	APIBase        string  `json:"apiBase,omitempty"`
	APIKey         string  `json:"apiKey,omitempty"`
	Model          string  `json:"model,omitempty"`
	VisionModel    string  `json:"visionModel,omitempty"`
	TimeoutSeconds int     `json:"timeoutSeconds,omitempty"`
	Temperature    float64 `json:"temperature,omitempty"`
}

type TranscribeConfig struct {
	APIBase        string `json:"apiBase,omitempty"`
	APIKey         string `json:"apiKey,omitempty"`
	Model          string `json:"model,omitempty"`
	Language       string `json:"language,omitempty"` // optional ISO-639-1 hint
	FFmpegPath     string `json:"ffmpegPath,omitempty"`
	TimeoutSeconds int    `json:"timeoutSeconds,omitempty"`
}

type TranslateConfig struct {
	Enabled        bool   `json:"enabled"`
	APIBase        string `json:"apiBase,omitempty"`
	APIKey         string `json:"apiKey,omitempty"`
	TimeoutSeconds int    `json:"timeoutSeconds,omitempty"`
}

type WhatsAppConfig struct {
	AppSecret     string `json:"appSecret,omitempty"`
	AccessToken   string `json:"accessToken,omitempty"`
	VerifyToken   string `json:"verifyToken,omitempty"`
	PhoneNumberID string `json:"phoneNumberId,omitempty"`
	WebhookPath   string `json:"webhookPath,omitempty"`
	GraphAPIBase  string `json:"graphApiBase,omitempty"`
}

type ConversationConfig struct {
	DBPath        string `json:"dbPath"`
	MaxExchanges  int    `json:"maxExchanges"`  // K: retained user/assistant pairs per user
	RetentionDays int    `json:"retentionDays"` // seen-message and history retention
}

type KnowledgeConfig struct {
	DataDir       string `json:"dataDir"`
	SearchTopK    int    `json:"searchTopK"`
	ContextBudget int    `json:"contextBudget"` // max characters of grounding context per prompt
}

type ValidatorConfig struct {
	PolicyPath string `json:"policyPath"` // YAML safety policy
	MaxLength  int    `json:"maxLength"`
	MinLength  int    `json:"minLength"`
}

type MetricsConfig struct {
	Enabled  bool   `json:"enabled"`
	Endpoint string `json:"endpoint"`
}

// DefaultConfigDir returns the default config directory (~/.kisanbot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".kisanbot"
	}
	return filepath.Join(home, ".kisanbot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.Conversation.DBPath = ExpandPath(cfg.Conversation.DBPath)
	cfg.Knowledge.DataDir = ExpandPath(cfg.Knowledge.DataDir)
	cfg.Validator.PolicyPath = ExpandPath(cfg.Validator.PolicyPath)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // keep original if no env var and no default
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.General.Port < 0 || cfg.General.Port > 65535 {
		errs = append(errs, "general.port must be between 0 and 65535")
	}
	if cfg.General.Workers < 1 || cfg.General.Workers > 100 {
		errs = append(errs, "general.workers must be between 1 and 100")
	}
	if cfg.General.DefaultLanguage == "" {
		errs = append(errs, "general.defaultLanguage must not be empty")
	}

	if cfg.Providers.Default == "" {
		errs = append(errs, "providers.default must name the active backend")
	} else if _, ok := cfg.Providers.Entries[cfg.Providers.Default]; !ok {
		errs = append(errs, fmt.Sprintf("providers.default references unknown provider: %s", cfg.Providers.Default))
	}

	if cfg.Conversation.MaxExchanges < 1 {
		errs = append(errs, "conversation.maxExchanges must be >= 1")
	}
	if cfg.Conversation.RetentionDays < 1 {
		errs = append(errs, "conversation.retentionDays must be >= 1")
	}

	if cfg.Knowledge.SearchTopK < 1 {
		errs = append(errs, "knowledge.searchTopK must be >= 1")
	}
	if cfg.Knowledge.ContextBudget < 1 {
		errs = append(errs, "knowledge.contextBudget must be >= 1")
	}

	if cfg.Validator.MaxLength <= cfg.Validator.MinLength {
		errs = append(errs, "validator.maxLength must be greater than validator.minLength")
	}

	if cfg.WhatsApp.WebhookPath != "" && !strings.HasPrefix(cfg.WhatsApp.WebhookPath, "/") {
		errs = append(errs, "whatsapp.webhookPath must start with /")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
