// Package pipeline orchestrates message processing: it consumes normalized
// messages from the bus, runs them through the modality adapters, knowledge
// grounding, generation, validation, and translation, and hands the reply
// back through the bus for channel delivery.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"kisanbot/internal/adapter"
	"kisanbot/internal/channel"
	"kisanbot/internal/domain"
	"kisanbot/internal/knowledge"
	"kisanbot/internal/metrics"
	"kisanbot/internal/prompt"
	"kisanbot/internal/validator"
)

const (
	defaultWorkers     = 5
	defaultGenTimeout  = 60 * time.Second
	defaultTopK        = 3
	defaultCtxBudget   = 3000
	generationBackoff  = 2 * time.Second
	defaultLanguageTag = "en"
)

// Pipeline is the message-processing engine.
type Pipeline struct {
	store      domain.ConversationStore
	bus        domain.MessageBus
	provider   domain.Provider
	speech     *adapter.Speech
	vision     *adapter.Vision
	translator domain.Translator
	kb         *knowledge.Index
	prompts    *prompt.Builder
	validator  *validator.Validator
	logger     *slog.Logger

	workers     int
	genTimeout  time.Duration
	topK        int
	ctxBudget   int
	defaultLang string

	locks userLocks
}

// Config holds all dependencies and tuning parameters for the pipeline.
type Config struct {
	Store      domain.ConversationStore
	Bus        domain.MessageBus
	Provider   domain.Provider
	Speech     *adapter.Speech
	Vision     *adapter.Vision
	Translator domain.Translator
	Knowledge  *knowledge.Index
	Prompts    *prompt.Builder
	Validator  *validator.Validator
	Logger     *slog.Logger

	Workers         int           // max messages processed in parallel
	GenTimeout      time.Duration // per generation call
	SearchTopK      int
	ContextBudget   int    // max characters of grounding context
	DefaultLanguage string // working language of prompts and history
}

// New creates a pipeline with the given configuration.
func New(cfg Config) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.GenTimeout <= 0 {
		cfg.GenTimeout = defaultGenTimeout
	}
	if cfg.SearchTopK <= 0 {
		cfg.SearchTopK = defaultTopK
	}
	if cfg.ContextBudget <= 0 {
		cfg.ContextBudget = defaultCtxBudget
	}
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = defaultLanguageTag
	}
	return &Pipeline{
		store:       cfg.Store,
		bus:         cfg.Bus,
		provider:    cfg.Provider,
		speech:      cfg.Speech,
		vision:      cfg.Vision,
		translator:  cfg.Translator,
		kb:          cfg.Knowledge,
		prompts:     cfg.Prompts,
		validator:   cfg.Validator,
		logger:      cfg.Logger,
		workers:     cfg.Workers,
		genTimeout:  cfg.GenTimeout,
		topK:        cfg.SearchTopK,
		ctxBudget:   cfg.ContextBudget,
		defaultLang: cfg.DefaultLanguage,
	}
}

// Run consumes inbound messages and processes them with bounded concurrency.
// It returns when ctx is cancelled or the bus closes; in-flight messages run
// to completion on a detached context so a shutdown never truncates a reply
// mid-send.
func (p *Pipeline) Run(ctx context.Context) {
	p.logger.Info("pipeline started", "workers", p.workers, "provider", p.provider.Name())

	sem := make(chan struct{}, p.workers)
	inbound := p.bus.Subscribe()
	var wg sync.WaitGroup

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping")
			wg.Wait()
			return
		case msg, ok := <-inbound:
			if !ok {
				p.logger.Info("inbound channel closed, pipeline stopping")
				wg.Wait()
				return
			}
			sem <- struct{}{}
			wg.Add(1)
			go func(m domain.Message) {
				defer func() { <-sem; wg.Done() }()
				p.process(context.WithoutCancel(ctx), m)
			}(msg)
		}
	}
}

// process handles one message end to end. Every failure path still produces
// a user-facing reply; only redeliveries are dropped silently.
func (p *Pipeline) process(ctx context.Context, msg domain.Message) {
	start := time.Now()
	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()
	defer metrics.ProcessingLatency.ObserveSince(start)

	logger := p.logger.With("trace", uuid.NewString(), "user", msg.UserID, "modality", msg.Modality)

	// One message per user at a time: history reads and appends for the
	// same user must not interleave, and simultaneous redeliveries of the
	// same message id must not both pass the dedup check.
	unlock := p.locks.lock(msg.UserID)
	defer unlock()

	seen, err := p.store.Seen(ctx, msg.MessageID)
	if err != nil {
		logger.Warn("dedup check failed, processing anyway", "error", err)
	} else if seen {
		metrics.DuplicatesDropped.Inc()
		logger.Info("duplicate delivery dropped", "message_id", msg.MessageID)
		return
	}
	if err := p.store.MarkSeen(ctx, msg.MessageID); err != nil {
		logger.Warn("cannot record message id", "error", err)
	}

	history, err := p.store.History(ctx, msg.UserID)
	if err != nil {
		logger.Warn("cannot load history, continuing without it", "error", err)
		history = nil
	}

	userLang := p.defaultLang
	if msg.Text != "" {
		userLang = p.translator.Detect(msg.Text)
	}

	question, reply, done := p.resolveModality(ctx, msg, history, logger)
	if done {
		p.deliver(ctx, msg.UserID, reply, userLang, logger)
		return
	}

	// Voice notes carry no caption, so the language lives in the transcript.
	if msg.Modality == domain.ModalityAudio {
		userLang = p.translator.Detect(question)
	}

	// Bring the question into the working language. Best effort: on
	// failure we proceed with the original text.
	working := question
	if userLang != p.defaultLang {
		if t, err := p.translator.Translate(ctx, question, userLang, p.defaultLang); err != nil {
			logger.Warn("inbound translation failed, using original text", "error", err)
		} else {
			working = t
		}
	}

	if greeting, ok := greetingReply(working, msg.UserName); ok {
		p.deliver(ctx, msg.UserID, greeting, userLang, logger)
		p.append(ctx, msg.UserID, working, greeting, logger)
		return
	}

	facts := p.kb.TopK(working, "", p.topK)
	grounding := p.kb.BuildContext(facts, p.ctxBudget)

	answer, err := p.generate(ctx, msg.UserName, grounding, history, working, logger)
	if err != nil {
		metrics.GenerationFailures.Inc()
		logger.Error("generation failed", "error", err)
		p.deliver(ctx, msg.UserID, apologyFor(err), userLang, logger)
		return
	}

	resp := &domain.GeneratedResponse{Text: answer, Grounded: len(facts) > 0}
	if reason := p.validator.Validate(resp); reason != "" {
		metrics.ValidationRejections.Inc()
		resp.Text = p.validator.FallbackMessage()
	}

	p.deliver(ctx, msg.UserID, resp.Text, userLang, logger)
	p.append(ctx, msg.UserID, working, resp.Text, logger)

	logger.Info("message processed",
		"grounded", resp.Grounded,
		"status", resp.ValidationStatus,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
}

// resolveModality turns a media message into text. For audio the transcript
// becomes the question and the pipeline continues; for images the analysis
// is the reply itself. done reports that reply should be delivered as is.
func (p *Pipeline) resolveModality(ctx context.Context, msg domain.Message, history []domain.Exchange, logger *slog.Logger) (question, reply string, done bool) {
	switch msg.Modality {
	case domain.ModalityAudio:
		transcript, err := p.speech.ToText(ctx, msg.MediaRef)
		if err != nil {
			metrics.AdapterFailures.Inc()
			logger.Error("voice note failed", "error", err)
			return "", apologyFor(err), true
		}
		return transcript, "", false

	case domain.ModalityImage:
		analysis, err := p.vision.ToText(ctx, msg.MediaRef, msg.Text, history)
		if err != nil {
			metrics.AdapterFailures.Inc()
			logger.Error("image analysis failed", "error", err)
			return "", apologyFor(err), true
		}
		resp := &domain.GeneratedResponse{Text: analysis, Grounded: false}
		if reason := p.validator.Validate(resp); reason != "" {
			metrics.ValidationRejections.Inc()
			resp.Text = p.validator.FallbackMessage()
		}
		question = msg.Text
		if question == "" {
			question = "Sent a photo for analysis"
		}
		p.append(ctx, msg.UserID, question, resp.Text, logger)
		return "", resp.Text, true

	case domain.ModalityUnsupported:
		logger.Info("unsupported message type, sending fixed notice")
		return "", noticeUnsupported, true

	default:
		return msg.Text, "", false
	}
}

// generate calls the backend once, retrying a single time on transient
// unavailability with a fixed short backoff. Each attempt gets its own
// timeout so a hung backend surfaces as GenerationError{timeout}.
func (p *Pipeline) generate(ctx context.Context, userName, grounding string, history []domain.Exchange, question string, logger *slog.Logger) (string, error) {
	req := domain.CompletionRequest{
		System: p.prompts.SystemPrompt(userName),
		Prompt: p.prompts.UserPrompt(grounding, history, question),
	}

	attempt := func() (string, error) {
		callCtx, cancel := context.WithTimeout(ctx, p.genTimeout)
		defer cancel()
		start := time.Now()
		out, err := p.provider.Complete(callCtx, req)
		metrics.GenerationLatency.ObserveSince(start)
		return out, err
	}

	out, err := attempt()
	if err == nil {
		return out, nil
	}

	var genErr *domain.GenerationError
	if errors.As(err, &genErr) && genErr.Kind == domain.GenerationBackendUnavailable {
		logger.Warn("backend unavailable, retrying once", "error", err)
		select {
		case <-ctx.Done():
			return "", err
		case <-time.After(generationBackoff):
		}
		return attempt()
	}
	return "", err
}

// deliver translates the reply back to the user's language (best effort),
// applies channel formatting, and hands it to the bus.
func (p *Pipeline) deliver(ctx context.Context, userID, text, userLang string, logger *slog.Logger) {
	if userLang != p.defaultLang {
		if t, err := p.translator.Translate(ctx, text, p.defaultLang, userLang); err != nil {
			logger.Warn("outbound translation failed, replying untranslated", "error", err)
		} else {
			text = t
		}
	}
	p.bus.SendOutbound(domain.OutboundReply{
		UserID: userID,
		Text:   channel.FormatForWhatsApp(text),
	})
}

// append records one exchange pair. History is kept in the working language
// so later prompts stay consistent regardless of the user's language.
func (p *Pipeline) append(ctx context.Context, userID, userText, assistantText string, logger *slog.Logger) {
	if err := p.store.Append(ctx, userID, userText, assistantText); err != nil {
		logger.Error("cannot append exchange", "error", err)
	}
}

// userLocks serializes processing per user so concurrent webhook deliveries
// for the same farmer cannot interleave their history. Entries are dropped
// once the last holder releases, keeping the map bounded by in-flight work.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func (u *userLocks) lock(userID string) func() {
	u.mu.Lock()
	if u.locks == nil {
		u.locks = make(map[string]*userLock)
	}
	l, ok := u.locks[userID]
	if !ok {
		l = &userLock{}
		u.locks[userID] = l
	}
	l.refs++
	u.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		u.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(u.locks, userID)
		}
		u.mu.Unlock()
	}
}
