// Package line adapts the LINE Messaging API to the relay: it verifies and
// decodes webhook callbacks and sends replies.
package line

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
	mpkg "github.com/local/linerelay/internal/metrics"
	"github.com/local/linerelay/internal/relay"
	"github.com/local/linerelay/internal/store"
	"github.com/rs/zerolog/log"
)

// MessageHandler consumes one decoded message event.
type MessageHandler interface {
	Handle(ctx context.Context, msg relay.Message) (relay.Outcome, error)
}

// HandlerOptions configures a Handler. EventTimeout bounds the background
// handling of one event.
type HandlerOptions struct {
	ChannelSecret string
	EventTimeout  time.Duration
}

// Handler acknowledges webhook callbacks immediately and processes their
// events in the background.
type Handler struct {
	secret  string
	timeout time.Duration
	dedup   store.Deduper
	next    MessageHandler
	wg      sync.WaitGroup
}

func NewHandler(opts HandlerOptions, dedup store.Deduper, next MessageHandler) *Handler {
	if opts.EventTimeout <= 0 {
		opts.EventTimeout = 30 * time.Second
	}
	return &Handler{secret: opts.ChannelSecret, timeout: opts.EventTimeout, dedup: dedup, next: next}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cb, err := webhook.ParseRequest(h.secret, r)
	if err != nil {
		if errors.Is(err, webhook.ErrInvalidSignature) {
			log.Warn().Str("remote", r.RemoteAddr).Msg("webhook signature rejected")
			http.Error(w, "invalid signature", http.StatusBadRequest)
			return
		}
		log.Warn().Err(err).Msg("webhook body rejected")
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	for _, ev := range cb.Events {
		msg, ok := toMessage(ev)
		if !ok {
			mpkg.IncWebhookEvent(ev.GetType(), "ignored")
			continue
		}
		h.wg.Add(1)
		go h.process(msg)
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Wait blocks until in-flight events finish or ctx ends.
func (h *Handler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handler) process(msg relay.Message) {
	defer h.wg.Done()
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	logger := log.With().Str("event_id", msg.EventID).Str("message_type", msg.Type).Logger()
	defer func() {
		if p := recover(); p != nil {
			logger.Error().Interface("panic", p).Msg("webhook event handler panicked")
		}
	}()

	if h.dedup != nil && msg.EventID != "" {
		first, err := h.dedup.FirstSeen(ctx, msg.EventID)
		if err != nil {
			logger.Warn().Err(err).Msg("dedup lookup failed; handling event anyway")
		} else if !first {
			mpkg.IncWebhookEvent("message", "duplicate")
			logger.Info().Msg("skipping redelivered event")
			return
		}
	}

	mpkg.IncWebhookEvent("message", "handled")
	outcome, err := h.next.Handle(ctx, msg)
	if err != nil {
		logger.Error().Err(err).Str("outcome", string(outcome)).Msg("handle message failed")
		return
	}
	logger.Debug().Str("outcome", string(outcome)).Msg("message handled")
}

func toMessage(ev webhook.EventInterface) (relay.Message, bool) {
	e, ok := ev.(webhook.MessageEvent)
	if !ok {
		return relay.Message{}, false
	}
	msg := relay.Message{
		EventID:    e.WebhookEventId,
		ReplyToken: e.ReplyToken,
		UserID:     sourceUserID(e.Source),
	}
	switch m := e.Message.(type) {
	case webhook.TextMessageContent:
		msg.Type = "text"
		msg.Text = m.Text
	case nil:
		msg.Type = "unknown"
	default:
		msg.Type = m.GetType()
	}
	return msg, true
}

func sourceUserID(src webhook.SourceInterface) string {
	switch s := src.(type) {
	case webhook.UserSource:
		return s.UserId
	case webhook.GroupSource:
		return s.UserId
	case webhook.RoomSource:
		return s.UserId
	}
	return ""
}
