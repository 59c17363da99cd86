package webhook

import (
	"context"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/chiehyu-lin/line-ai-relay/internal/line"
	"github.com/chiehyu-lin/line-ai-relay/internal/observability"
	"github.com/chiehyu-lin/line-ai-relay/internal/service/relay"
)

// Relay handles one inbound text message.
type Relay interface {
	HandleText(ctx context.Context, userID, text string) (relay.Reply, error)
}

// Replier delivers the generated reply through the platform.
type Replier interface {
	ReplyMessage(ctx context.Context, replyToken, text string) error
}

// Handler 處理 LINE Webhook 回呼。
type Handler struct {
	channelSecret string
	relay         Relay
	replier       Replier // nil when the channel access token is missing
	metrics       *observability.Metrics
}

// New 建立 Webhook 處理器。
func New(channelSecret string, relaySvc Relay, replier Replier, metrics *observability.Metrics) *Handler {
	return &Handler{
		channelSecret: channelSecret,
		relay:         relaySvc,
		replier:       replier,
		metrics:       metrics,
	}
}

// RegisterRoutes 註冊 Webhook 路由。
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/callback", h.handleCallback)
}

func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	if h.channelSecret == "" {
		log.Printf("[webhook] channel secret not configured, cannot verify request")
		h.metrics.WebhookEvents.WithLabelValues("unconfigured").Inc()
		http.Error(w, "webhook not configured", http.StatusInternalServerError)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.metrics.WebhookEvents.WithLabelValues("error").Inc()
		http.Error(w, "failed to read body", http.StatusInternalServerError)
		return
	}

	signature := r.Header.Get("X-Line-Signature")
	if !line.ValidateSignature(h.channelSecret, body, signature) {
		log.Printf("[webhook] invalid signature")
		h.metrics.WebhookEvents.WithLabelValues("bad_signature").Inc()
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	events, err := line.ParseWebhook(body)
	if err != nil {
		log.Printf("[webhook] failed to parse events: %v", err)
		h.metrics.WebhookEvents.WithLabelValues("error").Inc()
		http.Error(w, "invalid body", http.StatusInternalServerError)
		return
	}

	for _, event := range events {
		h.handleEvent(r.Context(), event)
	}

	// The platform retries undelivered webhooks; acknowledge once the
	// request was authentic, regardless of per-event outcomes.
	h.metrics.WebhookEvents.WithLabelValues("ok").Inc()
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handler) handleEvent(ctx context.Context, event line.Event) {
	if !event.IsTextMessage() {
		return
	}

	userID := event.Source.UserID
	if userID == "" {
		log.Printf("[webhook] text message without user ID, skipping")
		return
	}

	log.Printf("[webhook] message from %s, length=%d", userID, len(event.Message.Text))

	reply, err := h.relay.HandleText(ctx, userID, event.Message.Text)
	if err != nil {
		log.Printf("[webhook] relay for %s failed: %v", userID, err)
		return
	}

	if h.replier == nil {
		log.Printf("[webhook] LINE client not configured, dropping reply for %s", userID)
		return
	}

	if err := h.replier.ReplyMessage(ctx, event.ReplyToken, reply.Text); err != nil {
		// Reply tokens are single-use and short-lived; nothing to retry.
		log.Printf("[webhook] reply to %s failed: %v", userID, err)
		return
	}

	log.Printf("[webhook] replied to %s, source=%s", userID, reply.Source)
}
