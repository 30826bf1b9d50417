package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:        "info",
			Host:            "0.0.0.0",
			Port:            8080,
			Workers:         5,
			DefaultLanguage: "en",
		},
		Providers: ProvidersConfig{
			Default: "gemini",
			Entries: map[string]ProviderConfig{
				"gemini": {
					APIBase:        "https://generativelanguage.googleapis.com/v1beta",
					Model:          "gemini-1.5-flash-latest",
					VisionModel:    "gemini-1.5-flash-latest",
					TimeoutSeconds: 30,
					Temperature:    0.7,
				},
				"openai": {
					APIBase:        "https://api.openai.com/v1",
					Model:          "gpt-4o-mini",
					VisionModel:    "gpt-4o-mini",
					TimeoutSeconds: 30,
					Temperature:    0.7,
				},
			},
		},
		Transcribe: TranscribeConfig{
			APIBase:        "https://api.openai.com/v1",
			Model:          "whisper-1",
			FFmpegPath:     "ffmpeg",
			TimeoutSeconds: 60,
		},
		Translate: TranslateConfig{
			Enabled:        true,
			APIBase:        "https://translation.googleapis.com/language/translate/v2",
			TimeoutSeconds: 15,
		},
		WhatsApp: WhatsAppConfig{
			WebhookPath:  "/webhook",
			GraphAPIBase: "https://graph.facebook.com/v21.0",
		},
		Conversation: ConversationConfig{
			DBPath:        "~/.kisanbot/conversations.db",
			MaxExchanges:  10,
			RetentionDays: 2,
		},
		Knowledge: KnowledgeConfig{
			DataDir:       "~/.kisanbot/data",
			SearchTopK:    5,
			ContextBudget: 3000,
		},
		Validator: ValidatorConfig{
			PolicyPath: "~/.kisanbot/policy.yaml",
			MinLength:  10,
			MaxLength:  4000,
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Endpoint: "/metrics",
		},
	}
}
