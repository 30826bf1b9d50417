// Package channel is the WhatsApp Cloud API boundary: webhook ingestion
// with signature verification, media download, and outbound dispatch.
package channel

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"kisanbot/internal/config"
	"kisanbot/internal/domain"
	"kisanbot/internal/metrics"

	"github.com/go-chi/chi/v5"
)

const defaultGraphAPIBase = "https://graph.facebook.com/v21.0"

// maxWebhookBody bounds how much of a webhook delivery is read.
const maxWebhookBody = 1 << 20

// WhatsApp handles the webhook and implements domain.Sender and
// domain.MediaFetcher for the WhatsApp Business Cloud API.
type WhatsApp struct {
	cfg    config.WhatsAppConfig
	bus    domain.MessageBus
	logger *slog.Logger
	client *http.Client
}

type WhatsAppChannelConfig struct {
	Config config.WhatsAppConfig
	Bus    domain.MessageBus
	Logger *slog.Logger
}

func NewWhatsApp(cfg WhatsAppChannelConfig) *WhatsApp {
	c := cfg.Config
	if c.GraphAPIBase == "" {
		c.GraphAPIBase = defaultGraphAPIBase
	}
	if c.WebhookPath == "" {
		c.WebhookPath = "/webhook"
	}
	return &WhatsApp{
		cfg:    c,
		bus:    cfg.Bus,
		logger: cfg.Logger,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Mount registers the webhook routes on the server router.
func (w *WhatsApp) Mount(r chi.Router) {
	r.Get(w.cfg.WebhookPath, w.handleVerification)
	r.Post(w.cfg.WebhookPath, w.handleIncoming)
	w.logger.Info("whatsapp webhook ready", "path", w.cfg.WebhookPath)
}

// --- Webhook handlers ---

// handleVerification answers the provider's challenge handshake: the
// challenge token is echoed back byte for byte, and only when the
// pre-shared verify token matches.
func (w *WhatsApp) handleVerification(rw http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode == "subscribe" && token == w.cfg.VerifyToken && w.cfg.VerifyToken != "" {
		w.logger.Info("webhook verified")
		rw.WriteHeader(http.StatusOK)
		fmt.Fprint(rw, challenge)
		return
	}

	w.logger.Warn("webhook verification failed", "mode", mode)
	http.Error(rw, "Forbidden", http.StatusForbidden)
}

// handleIncoming verifies the signature over the raw body before any
// parsing, then normalizes and publishes each user message. The provider
// always gets 200 once the signature checks out, even for payloads we
// cannot use, so it never enters a retry storm.
func (w *WhatsApp) handleIncoming(rw http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(rw, "Bad request", http.StatusBadRequest)
		return
	}

	if w.cfg.AppSecret != "" {
		sig := r.Header.Get("X-Hub-Signature-256")
		if !VerifySignature(body, sig, w.cfg.AppSecret) {
			w.logger.Warn("invalid webhook signature")
			metrics.SignatureFailures.Inc()
			http.Error(rw, "Forbidden", http.StatusForbidden)
			return
		}
	}

	messages, err := Normalize(body)
	if err != nil {
		var normErr *domain.NormalizationError
		if errors.As(err, &normErr) {
			// Acknowledge and drop; retrying cannot fix a malformed payload.
			w.logger.Warn("malformed webhook payload dropped", "reason", normErr.Reason)
			metrics.MalformedPayloads.Inc()
			rw.WriteHeader(http.StatusOK)
			return
		}
		http.Error(rw, "Bad request", http.StatusBadRequest)
		return
	}

	for _, msg := range messages {
		w.logger.Info("message received",
			"user", msg.UserID, "modality", msg.Modality, "message_id", msg.MessageID)
		metrics.MessagesReceived.Inc()
		w.bus.Publish(msg)
	}

	rw.WriteHeader(http.StatusOK)
}

// VerifySignature checks an X-Hub-Signature-256 header value against the
// HMAC-SHA256 of the raw body. Constant-time compare; missing or malformed
// signatures fail closed.
func VerifySignature(body []byte, signature, secret string) bool {
	if len(signature) < 8 || signature[:7] != "sha256=" {
		return false
	}
	provided, err := hex.DecodeString(signature[7:])
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)

	return hmac.Equal(provided, mac.Sum(nil))
}

// --- Outbound send ---

// Send dispatches a text message via the Cloud API. Failures are reported
// in the DeliveryResult, not raised: the pipeline records the exchange
// either way.
func (w *WhatsApp) Send(ctx context.Context, userID, text string) domain.DeliveryResult {
	if err := w.sendMessage(ctx, userID, text); err != nil {
		w.logger.Error("send failed", "user", userID, "err", err)
		metrics.DeliveryFailures.Inc()
		return domain.DeliveryResult{Sent: false, Err: err}
	}
	metrics.RepliesSent.Inc()
	return domain.DeliveryResult{Sent: true}
}

func (w *WhatsApp) sendMessage(ctx context.Context, to, text string) error {
	url := fmt.Sprintf("%s/%s/messages", w.cfg.GraphAPIBase, w.cfg.PhoneNumberID)

	payload := map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"type":              "text",
		"text":              map[string]any{"preview_url": false, "body": text},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+w.cfg.AccessToken)

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("whatsapp API %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// --- Media download ---

type mediaLookupResponse struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
}

// FetchMedia resolves a media ID to its binary content: first a lookup for
// the short-lived download URL, then the authenticated download itself.
func (w *WhatsApp) FetchMedia(ctx context.Context, mediaRef string) ([]byte, string, error) {
	lookupURL := fmt.Sprintf("%s/%s", w.cfg.GraphAPIBase, mediaRef)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, lookupURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build media lookup: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+w.cfg.AccessToken)

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("media lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("media lookup status %d", resp.StatusCode)
	}

	var lookup mediaLookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&lookup); err != nil {
		return nil, "", fmt.Errorf("decode media lookup: %w", err)
	}
	if lookup.URL == "" {
		return nil, "", fmt.Errorf("media lookup returned no URL")
	}

	dlReq, err := http.NewRequestWithContext(ctx, http.MethodGet, lookup.URL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build media download: %w", err)
	}
	dlReq.Header.Set("Authorization", "Bearer "+w.cfg.AccessToken)

	dlResp, err := w.client.Do(dlReq)
	if err != nil {
		return nil, "", fmt.Errorf("media download: %w", err)
	}
	defer dlResp.Body.Close()

	if dlResp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("media download status %d", dlResp.StatusCode)
	}

	data, err := io.ReadAll(dlResp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read media body: %w", err)
	}

	mimeType := dlResp.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = lookup.MimeType
	}

	w.logger.Info("media downloaded", "media_id", mediaRef, "bytes", len(data), "mime", mimeType)
	return data, mimeType, nil
}
