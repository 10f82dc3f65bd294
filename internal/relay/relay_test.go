package relay

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/local/linerelay/internal/dispatcher"
	"github.com/local/linerelay/internal/fallback"
	"github.com/local/linerelay/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockReplier struct{ mock.Mock }

func (m *mockReplier) Reply(ctx context.Context, replyToken, text string) error {
	return m.Called(ctx, replyToken, text).Error(0)
}

type fakeInvoker struct {
	mu       sync.Mutex
	result   dispatcher.Result
	texts    []string
	deadline time.Duration
}

func (f *fakeInvoker) Invoke(ctx context.Context, text string, deadline time.Duration) dispatcher.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	f.deadline = deadline
	return f.result
}

type brokenState struct{ store.MemoryState }

func (b *brokenState) TalkingEnabled(ctx context.Context) (bool, error) {
	return true, errors.New("redis down")
}

func (b *brokenState) SetTalkingEnabled(ctx context.Context, enabled bool) error {
	return errors.New("redis down")
}

var testOpts = Options{
	Timeout:         3 * time.Second,
	FarewellKeyword: "再見",
	TalkOnKeyword:   "說話",
	TalkOffKeyword:  "閉嘴",
}

func newTestRelay(t *testing.T, inv *fakeInvoker, state store.State) (*Relay, *mockReplier) {
	t.Helper()
	rep := &mockReplier{}
	t.Cleanup(func() { rep.AssertExpectations(t) })
	return New(inv, fallback.New(fallback.DefaultTable(), 20), state, rep, testOpts), rep
}

func textMsg(text string) Message {
	return Message{EventID: "evt", ReplyToken: "tok", UserID: "U1", Type: "text", Text: text}
}

func TestHandle_GeneratedReply(t *testing.T) {
	inv := &fakeInvoker{result: dispatcher.Success("a dreamy answer")}
	r, rep := newTestRelay(t, inv, store.NewMemoryState(true))
	rep.On("Reply", mock.Anything, "tok", "a dreamy answer").Return(nil).Once()

	outcome, err := r.Handle(context.Background(), textMsg("  who are you?  "))

	require.NoError(t, err)
	assert.Equal(t, OutcomeGenerated, outcome)
	assert.Equal(t, []string{"who are you?"}, inv.texts)
	assert.Equal(t, 3*time.Second, inv.deadline)
}

func TestHandle_FailureRepliesWithFallback(t *testing.T) {
	inv := &fakeInvoker{result: dispatcher.Fail(dispatcher.KindQuotaExceeded, "429 from backend", nil)}
	r, rep := newTestRelay(t, inv, store.NewMemoryState(true))
	want := fallback.DefaultTable().Messages[dispatcher.KindQuotaExceeded]
	rep.On("Reply", mock.Anything, "tok", want).Return(nil).Once()

	outcome, err := r.Handle(context.Background(), textMsg("hi"))

	require.NoError(t, err)
	assert.Equal(t, OutcomeFallback, outcome)
}

func TestHandle_TruncatesBeforeInvoking(t *testing.T) {
	inv := &fakeInvoker{result: dispatcher.Success("ok")}
	r, rep := newTestRelay(t, inv, store.NewMemoryState(true))
	rep.On("Reply", mock.Anything, "tok", "ok").Return(nil).Once()

	_, err := r.Handle(context.Background(), textMsg(strings.Repeat("z", 50)))

	require.NoError(t, err)
	require.Len(t, inv.texts, 1)
	assert.Equal(t, strings.Repeat("z", 20)+fallback.TruncationMarker, inv.texts[0])
}

func TestHandle_NonText(t *testing.T) {
	inv := &fakeInvoker{}
	r, rep := newTestRelay(t, inv, store.NewMemoryState(true))
	rep.On("Reply", mock.Anything, "tok", NonTextReply).Return(nil).Once()

	outcome, err := r.Handle(context.Background(), Message{ReplyToken: "tok", Type: "sticker"})

	require.NoError(t, err)
	assert.Equal(t, OutcomeNonText, outcome)
	assert.Empty(t, inv.texts)
}

func TestHandle_Farewell(t *testing.T) {
	inv := &fakeInvoker{}
	r, rep := newTestRelay(t, inv, store.NewMemoryState(false))
	rep.On("Reply", mock.Anything, "tok", FarewellReply).Return(nil).Once()

	outcome, err := r.Handle(context.Background(), textMsg(" 再見 "))

	require.NoError(t, err)
	assert.Equal(t, OutcomeFarewell, outcome)
	assert.Empty(t, inv.texts)
}

func TestHandle_ToggleAndMute(t *testing.T) {
	inv := &fakeInvoker{result: dispatcher.Success("back")}
	state := store.NewMemoryState(true)
	r, rep := newTestRelay(t, inv, state)
	rep.On("Reply", mock.Anything, "tok", "好的，小天使先安靜。想聊天時請說「說話」。").Return(nil).Once()
	rep.On("Reply", mock.Anything, "tok", TalkOnReply).Return(nil).Once()
	rep.On("Reply", mock.Anything, "tok", "back").Return(nil).Once()

	outcome, err := r.Handle(context.Background(), textMsg("閉嘴"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeTalkOff, outcome)
	on, _ := state.TalkingEnabled(context.Background())
	assert.False(t, on)

	outcome, err = r.Handle(context.Background(), textMsg("hello?"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeMuted, outcome)
	assert.Empty(t, inv.texts)

	outcome, err = r.Handle(context.Background(), textMsg("說話"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeTalkOn, outcome)

	outcome, err = r.Handle(context.Background(), textMsg("hello?"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeGenerated, outcome)
}

func TestHandle_StateErrorsDoNotBreakReplies(t *testing.T) {
	inv := &fakeInvoker{result: dispatcher.Success("still here")}
	r, rep := newTestRelay(t, inv, &brokenState{})
	rep.On("Reply", mock.Anything, "tok", "still here").Return(nil).Once()
	rep.On("Reply", mock.Anything, "tok", fallback.DefaultMessage).Return(nil).Once()

	outcome, err := r.Handle(context.Background(), textMsg("hi"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeGenerated, outcome)

	outcome, err = r.Handle(context.Background(), textMsg("閉嘴"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeTalkOff, outcome)
}

func TestHandle_EmptyInputAsksForMore(t *testing.T) {
	inv := &fakeInvoker{}
	r, rep := newTestRelay(t, inv, store.NewMemoryState(true))
	rep.On("Reply", mock.Anything, "tok", EmptyInputReply).Return(nil).Once()

	outcome, err := r.Handle(context.Background(), textMsg(" \n "))

	require.NoError(t, err)
	assert.Equal(t, OutcomeEmptyInput, outcome)
	assert.Empty(t, inv.texts)
}

func TestHandle_ReplyErrorIsReturned(t *testing.T) {
	inv := &fakeInvoker{result: dispatcher.Success("x")}
	r, rep := newTestRelay(t, inv, store.NewMemoryState(true))
	rep.On("Reply", mock.Anything, "tok", "x").Return(errors.New("token expired")).Once()

	outcome, err := r.Handle(context.Background(), textMsg("hi"))

	assert.Equal(t, OutcomeGenerated, outcome)
	assert.ErrorContains(t, err, "token expired")
}

func TestHandle_ConfiguredReplies(t *testing.T) {
	inv := &fakeInvoker{}
	opts := testOpts
	opts.Replies = Replies{NonText: "text only, please", TalkOff: "shh"}
	rep := &mockReplier{}
	t.Cleanup(func() { rep.AssertExpectations(t) })
	r := New(inv, fallback.New(fallback.DefaultTable(), 20), store.NewMemoryState(true), rep, opts)

	rep.On("Reply", mock.Anything, "tok", "text only, please").Return(nil).Once()
	rep.On("Reply", mock.Anything, "tok", "shh").Return(nil).Once()
	rep.On("Reply", mock.Anything, "tok", FarewellReply).Return(nil).Once()

	_, err := r.Handle(context.Background(), Message{ReplyToken: "tok", Type: "image"})
	require.NoError(t, err)
	_, err = r.Handle(context.Background(), textMsg("閉嘴"))
	require.NoError(t, err)
	_, err = r.Handle(context.Background(), textMsg("再見"))
	require.NoError(t, err)
}

func TestReplies_TalkOffWithoutKeyword(t *testing.T) {
	assert.Equal(t, TalkOffReply, Replies{}.withDefaults("").TalkOff)
	assert.Equal(t, NonTextReply, Replies{}.withDefaults("說話").NonText)
}
