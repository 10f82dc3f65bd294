// Package relay decides what to say back to one inbound chat message.
package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/local/linerelay/internal/dispatcher"
	"github.com/local/linerelay/internal/fallback"
	mpkg "github.com/local/linerelay/internal/metrics"
	"github.com/local/linerelay/internal/store"
	"github.com/rs/zerolog/log"
)

// Default fixed replies; Options.Replies overrides them.
const (
	NonTextReply    = "只接受文字訊息"
	FarewellReply   = "Bye!"
	EmptyInputReply = "請多說一點，小天使才知道怎麼回答喔！"
	TalkOnReply     = "小天使回來了，有什麼想問的嗎？"
	TalkOffReply    = "好的，小天使先安靜。"
)

// Outcome labels how a message was handled.
type Outcome string

const (
	OutcomeNonText    Outcome = "non_text"
	OutcomeFarewell   Outcome = "farewell"
	OutcomeTalkOn     Outcome = "talk_on"
	OutcomeTalkOff    Outcome = "talk_off"
	OutcomeMuted      Outcome = "muted"
	OutcomeEmptyInput Outcome = "empty_input"
	OutcomeGenerated  Outcome = "generated"
	OutcomeFallback   Outcome = "fallback"
)

// Message is an inbound chat message stripped of transport details.
type Message struct {
	EventID    string
	ReplyToken string
	UserID     string
	Type       string
	Text       string
}

type Replier interface {
	Reply(ctx context.Context, replyToken, text string) error
}

type Invoker interface {
	Invoke(ctx context.Context, text string, deadline time.Duration) dispatcher.Result
}

type Options struct {
	Timeout         time.Duration
	FarewellKeyword string
	TalkOnKeyword   string
	TalkOffKeyword  string
	Replies         Replies
}

// Replies holds the fixed texts sent outside generation. Empty fields use the
// package defaults; an empty TalkOff also names TalkOnKeyword.
type Replies struct {
	NonText    string
	Farewell   string
	EmptyInput string
	TalkOn     string
	TalkOff    string
}

func (r Replies) withDefaults(talkOnKeyword string) Replies {
	if r.NonText == "" {
		r.NonText = NonTextReply
	}
	if r.Farewell == "" {
		r.Farewell = FarewellReply
	}
	if r.EmptyInput == "" {
		r.EmptyInput = EmptyInputReply
	}
	if r.TalkOn == "" {
		r.TalkOn = TalkOnReply
	}
	if r.TalkOff == "" {
		r.TalkOff = TalkOffReply
		if talkOnKeyword != "" {
			r.TalkOff += fmt.Sprintf("想聊天時請說「%s」。", talkOnKeyword)
		}
	}
	return r
}

type Relay struct {
	invoker  Invoker
	fallback *fallback.Dispatcher
	state    store.State
	replier  Replier
	opts     Options
}

func New(invoker Invoker, fb *fallback.Dispatcher, state store.State, replier Replier, opts Options) *Relay {
	if opts.Timeout <= 0 {
		opts.Timeout = 8 * time.Second
	}
	opts.Replies = opts.Replies.withDefaults(opts.TalkOnKeyword)
	return &Relay{invoker: invoker, fallback: fb, state: state, replier: replier, opts: opts}
}

// Handle replies to msg at most once and reports what it did.
func (r *Relay) Handle(ctx context.Context, msg Message) (Outcome, error) {
	logger := log.With().Str("event_id", msg.EventID).Str("user_id", msg.UserID).Logger()

	if msg.Type != "text" {
		return r.reply(ctx, msg, OutcomeNonText, r.opts.Replies.NonText)
	}

	trimmed := strings.TrimSpace(msg.Text)
	switch {
	case r.opts.FarewellKeyword != "" && trimmed == r.opts.FarewellKeyword:
		return r.reply(ctx, msg, OutcomeFarewell, r.opts.Replies.Farewell)
	case r.opts.TalkOnKeyword != "" && trimmed == r.opts.TalkOnKeyword:
		return r.toggle(ctx, msg, true)
	case r.opts.TalkOffKeyword != "" && trimmed == r.opts.TalkOffKeyword:
		return r.toggle(ctx, msg, false)
	}

	talking, err := r.state.TalkingEnabled(ctx)
	if err != nil {
		logger.Warn().Err(err).Bool("talking", talking).Msg("read talking state failed; using fallback value")
	}
	if !talking {
		mpkg.IncReply(string(OutcomeMuted))
		return OutcomeMuted, nil
	}

	text, err := r.fallback.PrepareInput(msg.Text)
	if errors.Is(err, fallback.ErrEmptyInput) {
		return r.reply(ctx, msg, OutcomeEmptyInput, r.opts.Replies.EmptyInput)
	}

	res := r.invoker.Invoke(ctx, text, r.opts.Timeout)
	outcome := OutcomeGenerated
	if !res.OK() {
		outcome = OutcomeFallback
		logger.Error().
			Str("kind", res.Failure.Kind.String()).
			Str("detail", res.Failure.Detail).
			Msg("generation failed; replying with fallback")
	}
	return r.reply(ctx, msg, outcome, r.fallback.Resolve(res))
}

func (r *Relay) toggle(ctx context.Context, msg Message, enabled bool) (Outcome, error) {
	outcome := OutcomeTalkOff
	if enabled {
		outcome = OutcomeTalkOn
	}
	if err := r.state.SetTalkingEnabled(ctx, enabled); err != nil {
		log.Error().Err(err).Bool("enabled", enabled).Msg("set talking state failed")
		return r.reply(ctx, msg, outcome, r.fallback.Resolve(dispatcher.Fail(dispatcher.KindUnknown, err.Error(), err)))
	}
	mpkg.SetTalking(enabled)
	log.Info().Str("user_id", msg.UserID).Bool("enabled", enabled).Msg("talking state changed")
	return r.reply(ctx, msg, outcome, r.toggleReply(enabled))
}

func (r *Relay) toggleReply(enabled bool) string {
	if enabled {
		return r.opts.Replies.TalkOn
	}
	return r.opts.Replies.TalkOff
}

func (r *Relay) reply(ctx context.Context, msg Message, outcome Outcome, text string) (Outcome, error) {
	mpkg.IncReply(string(outcome))
	if err := r.replier.Reply(ctx, msg.ReplyToken, text); err != nil {
		return outcome, fmt.Errorf("reply %s: %w", outcome, err)
	}
	return outcome, nil
}
