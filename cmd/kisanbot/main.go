package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kisanbot/internal/adapter"
	"kisanbot/internal/bus"
	"kisanbot/internal/channel"
	"kisanbot/internal/config"
	"kisanbot/internal/conversation"
	"kisanbot/internal/domain"
	"kisanbot/internal/knowledge"
	"kisanbot/internal/metrics"
	"kisanbot/internal/pipeline"
	"kisanbot/internal/prompt"
	"kisanbot/internal/provider"
	"kisanbot/internal/translate"
	"kisanbot/internal/validator"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "kisanbot",
		Short: "KisanBot: WhatsApp agricultural advisory assistant",
		Long:  "KisanBot answers farmers' questions over WhatsApp with text, voice note, and crop photo support, grounded in local agricultural datasets.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.kisanbot/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(doctorCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize config and data directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgDir := config.DefaultConfigDir()
			cfgPath := config.DefaultConfigPath()
			if err := os.MkdirAll(cfgDir, 0o755); err != nil {
				return err
			}
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("config already exists at %s", cfgPath)
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			dataDir := config.ExpandPath(cfg.Knowledge.DataDir)
			if err := os.MkdirAll(dataDir, 0o755); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath, "data", dataDir)
			logger.Info("next: place the knowledge datasets in the data directory and set the WhatsApp and provider credentials")
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server and message pipeline",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	// .env is optional; config values reference its variables.
	_ = godotenv.Load()

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger = newLogger(cfg.General.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := conversation.NewSQLiteStore(conversation.StoreConfig{
		DBPath:       cfg.Conversation.DBPath,
		MaxExchanges: cfg.Conversation.MaxExchanges,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("open conversation store: %w", err)
	}
	defer store.Close()

	kb, err := knowledge.Load(knowledge.IndexConfig{
		DataDir: cfg.Knowledge.DataDir,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("load knowledge base: %w", err)
	}

	prov, err := provider.Build(cfg.Providers, logger)
	if err != nil {
		return fmt.Errorf("build provider: %w", err)
	}

	transcriber := provider.NewWhisper(provider.WhisperConfig{
		APIBase:  cfg.Transcribe.APIBase,
		APIKey:   cfg.Transcribe.APIKey,
		Model:    cfg.Transcribe.Model,
		Language: cfg.Transcribe.Language,
		Timeout:  time.Duration(cfg.Transcribe.TimeoutSeconds) * time.Second,
		Logger:   logger,
	})

	var translator domain.Translator
	if cfg.Translate.Enabled && cfg.Translate.APIKey != "" {
		translator = translate.New(translate.Config{
			APIBase: cfg.Translate.APIBase,
			APIKey:  cfg.Translate.APIKey,
			Timeout: time.Duration(cfg.Translate.TimeoutSeconds) * time.Second,
			Logger:  logger,
		})
	} else {
		logger.Info("translation disabled, replies stay in the detected script")
		translator = translate.Noop{}
	}

	messageBus := bus.New(100, logger)
	defer messageBus.Close()

	wa := channel.NewWhatsApp(channel.WhatsAppChannelConfig{
		Config: cfg.WhatsApp,
		Bus:    messageBus,
		Logger: logger,
	})
	messageBus.OnOutbound(func(reply domain.OutboundReply) {
		sendCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if res := wa.Send(sendCtx, reply.UserID, reply.Text); res.Err != nil {
			logger.Error("reply delivery failed", "user", reply.UserID, "error", res.Err)
		}
	})

	prompts := prompt.NewBuilder()

	policy, err := validator.LoadPolicy(cfg.Validator.PolicyPath, logger)
	if err != nil {
		return fmt.Errorf("load validation policy: %w", err)
	}
	if cfg.Validator.MinLength > 0 {
		policy.MinLength = cfg.Validator.MinLength
	}
	if cfg.Validator.MaxLength > 0 {
		policy.MaxLength = cfg.Validator.MaxLength
	}

	pipe := pipeline.New(pipeline.Config{
		Store:    store,
		Bus:      messageBus,
		Provider: prov,
		Speech: adapter.NewSpeech(adapter.SpeechConfig{
			Fetcher:     wa,
			Transcriber: transcriber,
			FFmpegPath:  cfg.Transcribe.FFmpegPath,
			Logger:      logger,
		}),
		Vision: adapter.NewVision(adapter.VisionConfig{
			Fetcher:  wa,
			Provider: prov,
			Prompts:  prompts,
			Logger:   logger,
		}),
		Translator:      translator,
		Knowledge:       kb,
		Prompts:         prompts,
		Validator:       validator.New(policy, logger),
		Logger:          logger,
		Workers:         cfg.General.Workers,
		SearchTopK:      cfg.Knowledge.SearchTopK,
		ContextBudget:   cfg.Knowledge.ContextBudget,
		DefaultLanguage: cfg.General.DefaultLanguage,
	})
	go pipe.Run(ctx)

	go pruneLoop(ctx, store, time.Duration(cfg.Conversation.RetentionDays)*24*time.Hour)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	wa.Mount(r)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	if cfg.Metrics.Enabled {
		r.Get(cfg.Metrics.Endpoint, metrics.Collector.Handler())
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.General.Host, cfg.General.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr, "webhook", cfg.WhatsApp.WebhookPath, "kb_entries", kb.Size())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			logger.Warn("shutdown incomplete", "error", err)
		}
	}
	return nil
}

// pruneLoop expires old history and seen-message records on a fixed cadence.
func pruneLoop(ctx context.Context, store *conversation.SQLiteStore, retention time.Duration) {
	if retention <= 0 {
		return
	}
	ticker := time.NewTicker(6 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := store.Prune(ctx, retention); err != nil {
				logger.Warn("prune failed", "error", err)
			}
		}
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
